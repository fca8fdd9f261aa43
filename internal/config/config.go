package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Client configures an API session. Values come from defaults, then the
// [client] table of a config file, then FML_* environment variables.
type Client struct {
	APIKey     string
	Language   string
	Sandbox    bool
	Backend    string
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	RateBurst  int
}

// Sandbox configures the local API emulator.
type Sandbox struct {
	Addr         string
	DBPath       string
	TokenTTL     time.Duration
	Quorum       int
	AutoRegister bool
	Staff        []string
	RateLimits   RateLimits
}

type RateLimits struct {
	SubmitPerMinute   int
	CommentPerMinute  int
	VotePerMinute     int
	ModeratePerMinute int
}

// Session is the login state the CLI keeps between runs.
type Session struct {
	Username string `toml:"username,omitempty"`
	Token    string `toml:"token,omitempty"`
}

// File is the on-disk TOML layout. Durations are strings accepted by
// time.ParseDuration.
type File struct {
	Client  FileClient  `toml:"client,omitempty"`
	Sandbox FileSandbox `toml:"sandbox,omitempty"`
	Session Session     `toml:"session,omitempty"`
}

type FileClient struct {
	APIKey     string  `toml:"api_key,omitempty"`
	Language   string  `toml:"language,omitempty"`
	Sandbox    *bool   `toml:"sandbox,omitempty"`
	Backend    string  `toml:"backend,omitempty"`
	BaseURL    string  `toml:"base_url,omitempty"`
	Timeout    string  `toml:"timeout,omitempty"`
	RatePerSec float64 `toml:"rate_per_sec,omitempty"`
	RateBurst  int     `toml:"rate_burst,omitempty"`
}

type FileSandbox struct {
	Addr         string   `toml:"addr,omitempty"`
	DBPath       string   `toml:"db,omitempty"`
	TokenTTL     string   `toml:"token_ttl,omitempty"`
	Quorum       int      `toml:"quorum,omitempty"`
	AutoRegister *bool    `toml:"auto_register,omitempty"`
	Staff        []string `toml:"staff,omitempty"`
}

func DefaultClient() Client {
	return Client{
		APIKey:    "readonly",
		Language:  "en",
		Backend:   "stdlib",
		Timeout:   30 * time.Second,
		RateBurst: 1,
	}
}

func DefaultSandbox() Sandbox {
	return Sandbox{
		Addr:         ":8080",
		DBPath:       "fmlsandbox.db",
		TokenTTL:     24 * time.Hour,
		Quorum:       3,
		AutoRegister: true,
		RateLimits: RateLimits{
			SubmitPerMinute:   10,
			CommentPerMinute:  30,
			VotePerMinute:     120,
			ModeratePerMinute: 120,
		},
	}
}

// DefaultPath is ~/.fml/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fml", "config.toml"), nil
}

// ReadFile parses path. A missing file yields an empty File.
func ReadFile(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return f, err
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

// WriteFile stores f at path with owner-only permissions.
func WriteFile(path string, f File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := toml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadClient resolves client settings from f and the environment.
func LoadClient(f File) (Client, error) {
	cfg := DefaultClient()
	fc := f.Client
	if fc.APIKey != "" {
		cfg.APIKey = fc.APIKey
	}
	if fc.Language != "" {
		cfg.Language = fc.Language
	}
	if fc.Sandbox != nil {
		cfg.Sandbox = *fc.Sandbox
	}
	if fc.Backend != "" {
		cfg.Backend = fc.Backend
	}
	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("client.timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if fc.RatePerSec > 0 {
		cfg.RatePerSec = fc.RatePerSec
	}
	if fc.RateBurst > 0 {
		cfg.RateBurst = fc.RateBurst
	}

	cfg.APIKey = envString("FML_API_KEY", cfg.APIKey)
	cfg.Language = envString("FML_LANGUAGE", cfg.Language)
	cfg.Sandbox = envBool("FML_SANDBOX", cfg.Sandbox)
	cfg.Backend = envString("FML_BACKEND", cfg.Backend)
	cfg.BaseURL = envString("FML_BASE_URL", cfg.BaseURL)
	cfg.Timeout = envDuration("FML_TIMEOUT", cfg.Timeout)
	cfg.RatePerSec = envFloat("FML_RATE_PER_SEC", cfg.RatePerSec)
	cfg.RateBurst = envInt("FML_RATE_BURST", cfg.RateBurst)
	return cfg, nil
}

// LoadSandbox resolves emulator settings from f and the environment. PORT is
// honoured when FMLSANDBOX_ADDR is unset.
func LoadSandbox(f File) (Sandbox, error) {
	cfg := DefaultSandbox()
	fs := f.Sandbox
	if fs.Addr != "" {
		cfg.Addr = fs.Addr
	}
	if fs.DBPath != "" {
		cfg.DBPath = fs.DBPath
	}
	if fs.TokenTTL != "" {
		d, err := time.ParseDuration(fs.TokenTTL)
		if err != nil {
			return cfg, fmt.Errorf("sandbox.token_ttl: %w", err)
		}
		cfg.TokenTTL = d
	}
	if fs.Quorum > 0 {
		cfg.Quorum = fs.Quorum
	}
	if fs.AutoRegister != nil {
		cfg.AutoRegister = *fs.AutoRegister
	}
	if len(fs.Staff) > 0 {
		cfg.Staff = append([]string(nil), fs.Staff...)
	}

	addr := envString("FMLSANDBOX_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
	}
	if addr != "" {
		cfg.Addr = addr
	}
	cfg.DBPath = envString("FMLSANDBOX_DB", cfg.DBPath)
	cfg.TokenTTL = envDuration("FMLSANDBOX_TOKEN_TTL", cfg.TokenTTL)
	cfg.Quorum = envInt("FMLSANDBOX_QUORUM", cfg.Quorum)
	cfg.AutoRegister = envBool("FMLSANDBOX_AUTO_REGISTER", cfg.AutoRegister)
	if v := os.Getenv("FMLSANDBOX_STAFF"); v != "" {
		cfg.Staff = splitList(v)
	}
	cfg.RateLimits = RateLimits{
		SubmitPerMinute:   envInt("FMLSANDBOX_RL_SUBMIT_PER_MIN", cfg.RateLimits.SubmitPerMinute),
		CommentPerMinute:  envInt("FMLSANDBOX_RL_COMMENT_PER_MIN", cfg.RateLimits.CommentPerMinute),
		VotePerMinute:     envInt("FMLSANDBOX_RL_VOTE_PER_MIN", cfg.RateLimits.VotePerMinute),
		ModeratePerMinute: envInt("FMLSANDBOX_RL_MODERATE_PER_MIN", cfg.RateLimits.ModeratePerMinute),
	}
	if cfg.Quorum < 1 {
		cfg.Quorum = 1
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
