package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateVote = errors.New("duplicate vote")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrDuplicateName = errors.New("duplicate name")
	ErrNotPending    = errors.New("story is not awaiting moderation")
	ErrNotPublished  = errors.New("story is not published")
)

type StoryStatus string

const (
	StatusPending   StoryStatus = "pending"
	StatusPublished StoryStatus = "published"
	StatusRejected  StoryStatus = "rejected"
)

type Story struct {
	ID          int64
	Author      string
	Category    string
	Text        string
	Language    string
	Status      StoryStatus
	Agree       int
	Deserved    int
	Comments    int
	Yes         int
	No          int
	CreatedAt   time.Time
	ModeratedAt *time.Time
	AccountID   int64
}

type Comment struct {
	ID        int64
	StoryID   int64
	PubID     int
	Author    string
	AuthorURL string
	Text      string
	Staff     bool
	CreatedAt time.Time
	AccountID int64
}

type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Staff        bool
	CreatedAt    time.Time
}

type Token struct {
	Token     string
	AccountID int64
	APIKey    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Developer struct {
	APIKey      string
	Name        string
	Project     string
	Description string
	URL         string
	Email       string
	CreatedAt   time.Time
}

// StoryListOpts selects published stories. Sort is "new" (default), "top"
// (most agree votes) or "flop" (most deserved votes).
type StoryListOpts struct {
	Sort     string
	Since    time.Time
	Category string
	Search   string
	Language string
	Limit    int
	Offset   int
}

type Store interface {
	StoryStore
	CommentStore
	VoteStore
	ModerationStore
	AccountStore
	AuthStore
	DeveloperStore
	Close() error
}

type StoryStore interface {
	CreateStory(ctx context.Context, story *Story) (int64, error)
	GetStory(ctx context.Context, id int64) (Story, error)
	ListStories(ctx context.Context, opts StoryListOpts) ([]Story, error)
	RandomStory(ctx context.Context, language string) (Story, error)
	ListUnseen(ctx context.Context, accountID int64, language string, limit int) ([]Story, error)
	MarkSeen(ctx context.Context, accountID int64, storyIDs []int64) error
	ListFavorites(ctx context.Context, accountID int64, limit int) ([]Story, error)
}

type CommentStore interface {
	// CreateComment assigns the next per-story PubID.
	CreateComment(ctx context.Context, comment *Comment) (int64, error)
	ListCommentsByStory(ctx context.Context, storyID int64) ([]Comment, error)
}

type VoteStore interface {
	// CreateVote records an agree or deserved vote on a published story.
	CreateVote(ctx context.Context, storyID, accountID int64, kind string) error
}

type ModerationStore interface {
	ListPending(ctx context.Context, limit int) ([]Story, error)
	// Moderate records one verdict and settles the story once either side
	// reaches quorum. It returns the story after the update.
	Moderate(ctx context.Context, storyID, accountID int64, approve bool, quorum int) (Story, error)
	LastModerated(ctx context.Context) (Story, error)
}

type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) (int64, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByName(ctx context.Context, username string) (Account, error)
}

type AuthStore interface {
	CreateToken(ctx context.Context, token Token) error
	GetToken(ctx context.Context, token string) (Token, error)
	DeleteToken(ctx context.Context, token string) error
}

type DeveloperStore interface {
	CreateDeveloper(ctx context.Context, dev *Developer) error
	GetDeveloper(ctx context.Context, apiKey string) (Developer, error)
	RecordAPICall(ctx context.Context, apiKey string, at time.Time) error
	CountAPICalls(ctx context.Context, apiKey string, since time.Time) (int, error)
	CountTokens(ctx context.Context, apiKey string, now time.Time) (int, error)
}
