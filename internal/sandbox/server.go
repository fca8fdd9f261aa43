// Package sandbox serves a local emulation of the FMyLife API. Every answer
// is an XML envelope; failures are reported in the envelope with HTTP 200,
// as the live service does.
package sandbox

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alphabot-ai/fmylife/internal/auth"
	"github.com/alphabot-ai/fmylife/internal/config"
	"github.com/alphabot-ai/fmylife/internal/rate"
	"github.com/alphabot-ai/fmylife/internal/store"
)

// PageSize is the number of stories per listing page.
const PageSize = 15

// ReadOnlyKey may read but never write.
const ReadOnlyKey = "readonly"

type Server struct {
	store   store.Store
	auth    *auth.Service
	limiter rate.Limiter
	cfg     config.Sandbox
	logger  *slog.Logger
	now     func() time.Time
	router  chi.Router
}

func NewServer(st store.Store, authSvc *auth.Service, limiter rate.Limiter, cfg config.Sandbox, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:   st,
		auth:    authSvc,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		failure("Unknown method").write(w, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		failure("Method not allowed").write(w, http.StatusMethodNotAllowed)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)

		r.Get("/account/login/{username}/{digest}", s.handleLogin)
		r.Post("/account/login/{username}/{digest}", s.handleLogin)
		r.Get("/account/logout/{token}", s.handleLogout)

		r.Get("/view/random", s.handleRandom)
		r.Get("/view/new", s.handleUnseen)
		r.Get("/view/favorites", s.handleFavorites)
		r.Get("/view/search", s.handleSearch)
		r.Get("/view/search/", s.handleSearch)
		r.Get("/view/{ref}", s.handleStory)
		r.Get("/view/{ref}/nocomment", s.handleStory)
		r.Get("/view/{ref}/{page}", s.handleListing)

		r.Get("/dev", s.handleDeveloper)

		r.Get("/mod/view", s.handlePending)
		r.Get("/mod/view/{ref}", s.handlePendingStory)
		r.Get("/mod/last", s.handleLastModerated)

		r.Group(func(r chi.Router) {
			r.Use(s.requireWritableKey)
			for _, method := range []string{http.MethodGet, http.MethodPost} {
				r.Method(method, "/submit", http.HandlerFunc(s.handleSubmit))
				r.Method(method, "/vote/{ref}/{kind}", http.HandlerFunc(s.handleVote))
				r.Method(method, "/comment", http.HandlerFunc(s.handleComment))
				r.Method(method, "/mod/{verdict}/{ref}", http.HandlerFunc(s.handleModerate))
			}
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("sandbox request",
			"id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
		)
	})
}

// requireKey rejects calls without an api key and counts the rest against
// the key's developer record, creating the record on first use.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.URL.Query().Get("key"))
		if key == "" {
			failure("Missing API key").write(w, http.StatusOK)
			return
		}
		ctx := r.Context()
		if _, err := s.store.GetDeveloper(ctx, key); errors.Is(err, store.ErrNotFound) {
			dev := store.Developer{APIKey: key, Name: key, CreatedAt: s.now()}
			if err := s.store.CreateDeveloper(ctx, &dev); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
				s.internalError(w, err)
				return
			}
		} else if err != nil {
			s.internalError(w, err)
			return
		}
		if err := s.store.RecordAPICall(ctx, key, s.now()); err != nil {
			s.internalError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireWritableKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == ReadOnlyKey {
			failure("This API key is read-only").write(w, http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth resolves the token parameter to an account. It writes the
// failure envelope and returns false when there is none.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (auth.Verified, bool) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	verified, err := s.auth.Authenticate(r.Context(), token)
	switch {
	case err == nil:
		return verified, true
	case errors.Is(err, auth.ErrTokenExpired):
		failure("Your session has expired").write(w, http.StatusOK)
	case errors.Is(err, auth.ErrInvalidToken):
		failure("You must be logged in").write(w, http.StatusOK)
	default:
		s.internalError(w, err)
	}
	return auth.Verified{}, false
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 || s.limiter == nil {
		return true
	}
	if ok, retry := s.limiter.Allow(rate.Key(action, r.URL.Query().Get("key")), limit, time.Minute); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
		failure("Rate limit exceeded").write(w, http.StatusOK)
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("sandbox failure", "err", err)
	failure("Internal error").write(w, http.StatusInternalServerError)
}

// parsePage reads a zero-based page number.
func parsePage(value string) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parseID(value string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func language(r *http.Request) string {
	if lang := strings.TrimSpace(r.URL.Query().Get("language")); lang != "" {
		return lang
	}
	return "en"
}
