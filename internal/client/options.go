package client

import (
	"log/slog"

	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

// Option configures an Account.
type Option func(*Account)

// WithLanguage sets the language stories are requested in. Default "en".
func WithLanguage(lang string) Option {
	return func(a *Account) {
		if lang != "" {
			a.language = lang
		}
	}
}

// WithSandbox routes every call to the sandbox host.
func WithSandbox(sandbox bool) Option {
	return func(a *Account) { a.sandbox = sandbox }
}

// WithBackend pins the XML backend instead of the process default.
func WithBackend(b xmlbackend.Backend) Option {
	return func(a *Account) {
		if b != nil {
			a.backend = b
		}
	}
}

func WithTransport(t Transport) Option {
	return func(a *Account) {
		if t != nil {
			a.transport = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Account) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithToken resumes a session from a previously issued token.
func WithToken(token string) Option {
	return func(a *Account) { a.token = token }
}
