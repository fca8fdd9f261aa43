package sandbox

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/fmylife/internal/auth"
	"github.com/alphabot-ai/fmylife/internal/config"
	"github.com/alphabot-ai/fmylife/internal/envelope"
	"github.com/alphabot-ai/fmylife/internal/rate"
	"github.com/alphabot-ai/fmylife/internal/store/sqlite"
	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

func testConfig() config.Sandbox {
	cfg := config.DefaultSandbox()
	cfg.Quorum = 2
	cfg.TokenTTL = time.Hour
	cfg.RateLimits = config.RateLimits{SubmitPerMinute: 1000, CommentPerMinute: 1000, VotePerMinute: 1000, ModeratePerMinute: 1000}
	return cfg
}

func newTestServer(t *testing.T, cfg config.Sandbox) *Server {
	t.Helper()
	dsnName := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnName))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	authSvc := auth.NewService(st, cfg.TokenTTL, auth.WithAutoRegister(cfg.AutoRegister), auth.WithStaff(cfg.Staff...))
	return NewServer(st, authSvc, rate.NewMemory(), cfg, nil)
}

// get serves path and interprets the envelope it returns.
func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, envelope.Envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)

	b := xmlbackend.Default()
	doc, err := b.Parse(resp.Body.Bytes())
	if err != nil {
		t.Fatalf("%s: parse: %v\n%s", path, err, resp.Body.String())
	}
	env, err := envelope.Interpret(b, doc)
	if err != nil {
		t.Fatalf("%s: interpret: %v", path, err)
	}
	return resp, env
}

func login(t *testing.T, s *Server, key, username string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/account/login/"+username+"/"+auth.Digest("pw")+"?key="+key, nil)
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)

	b := xmlbackend.Default()
	doc, err := b.Parse(resp.Body.Bytes())
	if err != nil {
		t.Fatalf("parse login: %v", err)
	}
	token, ok, err := envelope.Token(b, doc)
	if err != nil || !ok {
		t.Fatalf("expected a token, got %q (%v)\n%s", token, err, resp.Body.String())
	}
	return token
}

func TestMissingKey(t *testing.T) {
	s := newTestServer(t, testConfig())
	resp, env := get(t, s, "/view/last/0")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if env.OK() || env.Error != "Missing API key" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestUnknownPath(t *testing.T) {
	s := newTestServer(t, testConfig())
	resp, env := get(t, s, "/nowhere?key=k")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if env.OK() {
		t.Fatalf("expected failure envelope")
	}
}

func TestListingValidation(t *testing.T) {
	s := newTestServer(t, testConfig())
	for path, want := range map[string]string{
		"/view/last/x?key=k":     "Invalid page",
		"/view/last/-1?key=k":    "Invalid page",
		"/view/top_year/0?key=k": "Unknown interval",
		"/view/bogus/0?key=k":    "Unknown category",
		"/view/search/?key=k":    "Missing search term",
		"/view/abc?key=k":        "Story not found",
		"/view/99?key=k":         "Story not found",
		"/view/new?key=k":        "You must be logged in",
	} {
		_, env := get(t, s, path)
		if env.OK() || env.Error != want {
			t.Fatalf("%s: expected %q, got %+v", path, want, env)
		}
	}

	_, env := get(t, s, "/view/love/0?key=k")
	if !env.OK() || len(env.Items) != 0 {
		t.Fatalf("expected an empty listing, got %+v", env)
	}
}

func TestReadOnlyKeyCannotWrite(t *testing.T) {
	s := newTestServer(t, testConfig())
	token := login(t, s, ReadOnlyKey, "ann")
	_, env := get(t, s, "/submit?key=readonly&cat=love&text=FML&token="+token)
	if env.OK() || env.Error != "This API key is read-only" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits.SubmitPerMinute = 1
	s := newTestServer(t, cfg)
	token := login(t, s, "k", "ann")

	path := "/submit?key=k&cat=love&text=FML&token=" + token
	if _, env := get(t, s, path); !env.OK() {
		t.Fatalf("first submit failed: %+v", env)
	}
	resp, env := get(t, s, path)
	if env.OK() || env.Error != "Rate limit exceeded" {
		t.Fatalf("expected rate limit, got %+v", env)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t, testConfig())
	token := login(t, s, "k", "ann")

	long := strings.Repeat("x", maxStoryLength+1)
	for query, want := range map[string]string{
		"cat=love&text=":                "Your story is empty",
		"cat=love&text=" + long:         "Your story is too long",
		"cat=bogus&text=FML":            "Unknown category",
		"cat=miscellaneous&text=FML&x=": "",
	} {
		_, env := get(t, s, "/submit?key=k&token="+token+"&"+query)
		if want == "" {
			if !env.OK() {
				t.Fatalf("%s: expected success, got %+v", query, env)
			}
			continue
		}
		if env.OK() || env.Error != want {
			t.Fatalf("%s: expected %q, got %+v", query, want, env)
		}
	}

	_, env := get(t, s, "/mod/view?key=k")
	if !env.OK() || len(env.Items) != 1 {
		t.Fatalf("expected one pending story, got %+v", env)
	}
}

func TestWrongPassword(t *testing.T) {
	s := newTestServer(t, testConfig())
	login(t, s, "k", "ann")
	_, env := get(t, s, "/account/login/ann/"+auth.Digest("nope")+"?key=k")
	if env.OK() || env.Error != "Wrong login or password" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDeveloperIsCreatedOnFirstUse(t *testing.T) {
	s := newTestServer(t, testConfig())
	get(t, s, "/view/last/0?key=fresh")
	_, env := get(t, s, "/dev?key=fresh")
	if !env.OK() {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
