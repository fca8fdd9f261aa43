package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Host is one of the two fixed service hosts.
type Host string

const (
	Primary Host = "api.betacie.com"
	Sandbox Host = "sandbox.betacie.com"
)

// Request is one call to the service.
type Request struct {
	Host   Host
	Method string
	Path   string
	Query  map[string]string
	Body   string
}

// Transport performs a request and returns the raw response body.
type Transport interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) ([]byte, error)

func (f TransportFunc) Do(ctx context.Context, req Request) ([]byte, error) { return f(ctx, req) }

// HTTPTransport sends requests over net/http.
type HTTPTransport struct {
	HTTPClient *http.Client
	// BaseURL replaces scheme and host for every request when set, e.g. to
	// point at a local sandbox.
	BaseURL string
	// Limiter throttles outgoing requests when set.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// NewHTTPTransport returns a transport with a 30s timeout.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithThrottle limits the transport to perSec requests per second.
func (t *HTTPTransport) WithThrottle(perSec float64, burst int) *HTTPTransport {
	if perSec > 0 {
		if burst < 1 {
			burst = 1
		}
		t.Limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
	return t
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) ([]byte, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if req.Body != "" || req.Method == http.MethodPost {
		body = strings.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, t.URL(req), body)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	hreq.Header.Set("X-Request-Id", id)
	hreq.Header.Set("Accept", "application/xml")

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	logger.Debug("fmylife request", "id", id, "method", req.Method, "path", req.Path)

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.Path, err)
	}
	logger.Debug("fmylife response", "id", id, "status", resp.StatusCode, "bytes", len(data), "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// URL renders the request URL with the service's escaping rules.
func (t *HTTPTransport) URL(req Request) string {
	base := t.BaseURL
	if base == "" {
		base = "http://" + string(req.Host)
	}
	u := strings.TrimRight(base, "/") + escape(req.Path, pathSafe)
	if q := EncodeQuery(req.Query); q != "" {
		u += "?" + q
	}
	return u
}

// EncodeQuery joins params as k=v pairs sorted by key. Only bytes outside
// -_!~*'()A-Za-z0-9;/?:@&=+$,[] are percent-escaped.
func EncodeQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(escape(k, querySafe))
		sb.WriteByte('=')
		sb.WriteString(escape(params[k], querySafe))
	}
	return sb.String()
}

func querySafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_!~*'();/?:@&=+$,[]", c) >= 0
}

// pathSafe is querySafe without '?', which would end the path.
func pathSafe(c byte) bool {
	return c != '?' && querySafe(c)
}

func escape(s string, safe func(byte) bool) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if safe(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&15])
	}
	return sb.String()
}
