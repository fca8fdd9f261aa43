package auth

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/alphabot-ai/fmylife/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
)

// Digest is the lowercase hex MD5 of password, the form in which the service
// receives passwords.
func Digest(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

type Service struct {
	store        store.Store
	tokenTTL     time.Duration
	autoRegister bool
	staff        map[string]bool
	now          func() time.Time
}

// Verified is the account behind a valid session token.
type Verified struct {
	AccountID int64
	Username  string
	Staff     bool
}

type Option func(*Service)

// WithAutoRegister creates accounts on first login instead of rejecting
// unknown usernames.
func WithAutoRegister(enabled bool) Option {
	return func(s *Service) { s.autoRegister = enabled }
}

// WithStaff marks usernames whose accounts are created as staff.
func WithStaff(usernames ...string) Option {
	return func(s *Service) {
		for _, name := range usernames {
			if name = strings.TrimSpace(name); name != "" {
				s.staff[name] = true
			}
		}
	}
}

func NewService(st store.Store, tokenTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		store:    st,
		tokenTTL: tokenTTL,
		staff:    map[string]bool{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register stores a new account. digest is the MD5 form sent by clients; it
// is kept bcrypt-hashed.
func (s *Service) Register(ctx context.Context, username, digest string) (store.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.ToLower(digest)), bcrypt.DefaultCost)
	if err != nil {
		return store.Account{}, err
	}
	account := store.Account{
		Username:     username,
		PasswordHash: string(hash),
		Staff:        s.staff[username],
		CreatedAt:    s.now(),
	}
	if _, err := s.store.CreateAccount(ctx, &account); err != nil {
		return store.Account{}, err
	}
	return account, nil
}

// Login checks a username and password digest and issues a session token
// bound to apiKey.
func (s *Service) Login(ctx context.Context, apiKey, username, digest string) (store.Token, error) {
	account, err := s.store.GetAccountByName(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound) && s.autoRegister:
		if account, err = s.Register(ctx, username, digest); err != nil {
			return store.Token{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		return store.Token{}, ErrInvalidCredentials
	case err != nil:
		return store.Token{}, err
	default:
		if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(strings.ToLower(digest))) != nil {
			return store.Token{}, ErrInvalidCredentials
		}
	}

	value, err := randomToken(24)
	if err != nil {
		return store.Token{}, err
	}
	now := s.now()
	token := store.Token{
		Token:     value,
		AccountID: account.ID,
		APIKey:    apiKey,
		ExpiresAt: now.Add(s.tokenTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return store.Token{}, err
	}
	return token, nil
}

// Logout revokes a token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.store.DeleteToken(ctx, token); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

func (s *Service) Authenticate(ctx context.Context, token string) (Verified, error) {
	if token == "" {
		return Verified{}, ErrInvalidToken
	}
	t, err := s.store.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Verified{}, ErrInvalidToken
		}
		return Verified{}, err
	}
	if s.now().After(t.ExpiresAt) {
		return Verified{}, ErrTokenExpired
	}
	account, err := s.store.GetAccount(ctx, t.AccountID)
	if err != nil {
		return Verified{}, err
	}
	return Verified{AccountID: account.ID, Username: account.Username, Staff: account.Staff}, nil
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
