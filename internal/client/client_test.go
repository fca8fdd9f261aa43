package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/fmylife/internal/auth"
	"github.com/alphabot-ai/fmylife/internal/envelope"
	"github.com/alphabot-ai/fmylife/internal/model"
	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

const (
	okEmpty  = `<root><code>1</code></root>`
	okToken  = `<root><code>1</code><token>abc123</token></root>`
	okStory  = `<root><code>1</code><items><item id="7"><author>ann</author><category>love</category><text>FML</text></item></items><comments><comment id="c1" pub_id="1"><author>bob</author><text>ouch</text></comment></comments></root>`
	okList   = `<root><code>1</code><items><item id="1"><text>a</text></item><item id="2"><text>b</text></item></items></root>`
	failure  = `<root><code>0</code><errors><error>Invalid key </error></errors></root>`
	noCode   = `<root><items/></root>`
	badToken = `<root><code>1</code></root>`
)

// recorder is a fake transport that answers every call with body.
type recorder struct {
	body  string
	err   error
	calls []Request
}

func (r *recorder) Do(_ context.Context, req Request) ([]byte, error) {
	r.calls = append(r.calls, req)
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.body), nil
}

func newAccount(t *testing.T, body string, opts ...Option) (*Account, *recorder) {
	t.Helper()
	rec := &recorder{body: body}
	b, err := xmlbackend.New(xmlbackend.Stdlib)
	require.NoError(t, err)
	opts = append([]Option{WithTransport(rec), WithBackend(b)}, opts...)
	return New("key", opts...), rec
}

func TestNewDefaults(t *testing.T) {
	a := New("")
	assert.Equal(t, DefaultAPIKey, a.APIKey())
	assert.Equal(t, DefaultLanguage, a.Language())
	assert.False(t, a.Sandbox())
	assert.False(t, a.IsAuthenticated())
	assert.NotNil(t, a.Backend())

	a = New("k", WithLanguage("fr"), WithSandbox(true), WithToken("t"))
	assert.Equal(t, "fr", a.Language())
	assert.True(t, a.Sandbox())
	assert.True(t, a.IsAuthenticated())
	assert.Equal(t, Sandbox, a.host())
}

func TestSessionCapturesBackend(t *testing.T) {
	require.NoError(t, xmlbackend.Select(xmlbackend.Etree))
	t.Cleanup(func() { _ = xmlbackend.Select(xmlbackend.Stdlib) })

	a := New("k")
	require.NoError(t, xmlbackend.Select(xmlbackend.XMLQuery))
	assert.Equal(t, xmlbackend.Etree, a.Backend().Name())
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccount(t, okEmpty, WithToken("tok"))

	err := a.Submit(ctx, model.NewStory("ann", model.Love, strings.Repeat("x", 301)))
	var tooLong *StoryTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, 301, tooLong.Length)
	assert.True(t, IsValidation(err))

	// Length is checked before the category.
	err = a.Submit(ctx, model.NewStory("ann", "bogus", strings.Repeat("x", 301)))
	require.ErrorAs(t, err, &tooLong)

	err = a.Submit(ctx, model.NewStory("ann", "bogus", "FML"))
	var badCat *InvalidCategoryError
	require.ErrorAs(t, err, &badCat)
	assert.Equal(t, "bogus", badCat.Category)

	err = a.Submit(ctx, nil)
	assert.True(t, IsValidation(err))
	assert.Empty(t, rec.calls)

	// Multi-byte text is counted in characters.
	require.NoError(t, a.Submit(ctx, model.NewStory("ann", "miscellaneous stuff", strings.Repeat("é", 300))))
	require.Len(t, rec.calls, 1)
	req := rec.calls[0]
	assert.Equal(t, "/submit", req.Path)
	assert.Equal(t, "miscellaneous", req.Query["cat"])
	assert.Equal(t, "ann", req.Query["author"])
	assert.Equal(t, "tok", req.Query["token"])
	assert.Equal(t, "key", req.Query["key"])
	assert.Equal(t, "en", req.Query["language"])
}

func TestWritesNeedSession(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccount(t, okEmpty)
	ref := model.ByID("7")

	checks := map[string]error{
		"submit":    a.Submit(ctx, model.NewStory("ann", model.Love, "FML")),
		"vote":      a.Vote(ctx, ref, model.Agree),
		"comment":   a.Comment(ctx, ref, model.NewComment("ouch", "")),
		"moderate":  a.Moderate(ctx, ref, model.Approve),
		"logout":    a.Logout(ctx),
		"favorites": second(a.Favorites(ctx)),
		"unseen":    second(a.Unseen(ctx)),
		"last":      second(a.LastModerated(ctx)),
		"pending":   second(a.Unmoderated(ctx, "7")),
		// Session comes before argument checks on submit and comment.
		"long story":   a.Submit(ctx, model.NewStory("ann", model.Love, strings.Repeat("x", 301))),
		"bad category": a.Submit(ctx, model.NewStory("ann", "bogus", "FML")),
		"nil story":    a.Submit(ctx, nil),
		"empty ref":    a.Comment(ctx, model.StoryRef{}, model.NewComment("ouch", "")),
		"empty text":   a.Comment(ctx, ref, model.NewComment(" ", "")),
	}
	for name, err := range checks {
		assert.Truef(t, IsAuthentication(err), "%s: got %v", name, err)
		assert.Truef(t, errors.Is(err, ErrNotAuthenticated), "%s: got %v", name, err)
	}
	assert.Empty(t, rec.calls)
}

func second[T any](_ T, err error) error { return err }

func TestArgumentChecks(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccount(t, okEmpty, WithToken("tok"))

	assert.True(t, IsValidation(a.Vote(ctx, model.ByID("7"), "maybe")))
	assert.True(t, IsValidation(a.Vote(ctx, model.ByID("  "), model.Agree)))
	assert.True(t, IsValidation(a.Moderate(ctx, model.ByID("7"), "perhaps")))
	assert.True(t, IsValidation(a.Comment(ctx, model.ByID("7"), model.NewComment(" ", ""))))
	assert.True(t, IsValidation(a.Authenticate(ctx, "", "pw")))
	assert.True(t, IsValidation(second(a.Top(ctx, "year", 0))))
	assert.True(t, IsValidation(second(a.Latest(ctx, -1))))
	assert.True(t, IsValidation(second(a.Story(ctx, model.StoryRef{}, true))))
	assert.True(t, IsValidation(a.Authenticate(ctx, "ann/../x", "pw")))
	assert.True(t, IsValidation(second(a.Story(ctx, model.ByID("7/nocomment"), true))))
	assert.True(t, IsValidation(second(a.Unmoderated(ctx, "../7"))))
	assert.True(t, IsValidation(a.Vote(ctx, model.ByID("7/agree"), model.Agree)))
	assert.True(t, IsValidation(a.Moderate(ctx, model.ByID("1/2"), model.Approve)))

	_, err := a.Category(ctx, "bogus", 0)
	var badCat *InvalidCategoryError
	require.ErrorAs(t, err, &badCat)
	assert.Empty(t, rec.calls)
}

func TestAuthenticateAndLogout(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccount(t, okToken)

	require.NoError(t, a.Authenticate(ctx, "ann", "password"))
	assert.Equal(t, "abc123", a.Token())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, http.MethodPost, rec.calls[0].Method)
	assert.Equal(t, "/account/login/ann/"+auth.Digest("password"), rec.calls[0].Path)
	assert.NotContains(t, rec.calls[0].Query, "token")

	rec.body = okEmpty
	require.NoError(t, a.Logout(ctx))
	assert.False(t, a.IsAuthenticated())
	assert.Equal(t, "/account/logout/abc123", rec.calls[1].Path)
}

func TestAuthenticateFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	a, _ := newAccount(t, failure)

	err := a.Authenticate(ctx, "ann", "wrong")
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid key ", authErr.Message)
	assert.False(t, a.IsAuthenticated())

	b, _ := newAccount(t, badToken)
	err = b.Authenticate(ctx, "ann", "pw")
	var protoErr *envelope.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.False(t, b.IsAuthenticated())
}

func TestServiceErrorsVerbatim(t *testing.T) {
	ctx := context.Background()
	a, _ := newAccount(t, failure, WithToken("tok"))

	_, err := a.Latest(ctx, 0)
	var re *RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Invalid key ", re.Message)

	err = a.Vote(ctx, model.ByID("9"), model.Deserved)
	var ve *VotingError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "9", ve.ID)
	assert.Equal(t, "Invalid key ", ve.Message)
	assert.False(t, IsRetrieval(err))
	assert.True(t, IsVoting(err))

	_, err = a.DeveloperInfo(ctx)
	assert.True(t, IsRetrieval(err))
}

func TestProtocolErrors(t *testing.T) {
	ctx := context.Background()
	a, _ := newAccount(t, noCode)
	_, err := a.Latest(ctx, 0)
	require.ErrorIs(t, err, envelope.ErrMissingCode)

	a, _ = newAccount(t, "not xml at all")
	_, err = a.Random(ctx, false)
	var parseErr *xmlbackend.ParseError
	require.ErrorAs(t, err, &parseErr)

	a, _ = newAccount(t, okEmpty)
	_, err = a.Random(ctx, false)
	var protoErr *envelope.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestTransportFailureIsWrapped(t *testing.T) {
	a, rec := newAccount(t, "")
	rec.err = &TransportError{Method: "GET", Path: "/view/random", Status: 502, Body: "bad gateway"}
	_, err := a.Random(context.Background(), false)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 502, te.Status)
}

func TestListingPaths(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccount(t, okList)

	cases := []struct {
		run  func() ([]model.Story, error)
		path string
	}{
		{func() ([]model.Story, error) { return a.Latest(ctx, 2) }, "/view/last/2"},
		{func() ([]model.Story, error) { return a.Top(ctx, model.AllTime, 0) }, "/view/top/0"},
		{func() ([]model.Story, error) { return a.Top(ctx, model.Week, 1) }, "/view/top_week/1"},
		{func() ([]model.Story, error) { return a.Flop(ctx, model.Day, 3) }, "/view/flop_day/3"},
		{func() ([]model.Story, error) { return a.Flop(ctx, model.AllTime, 0) }, "/view/flop/0"},
		{func() ([]model.Story, error) { return a.Category(ctx, "love", 1) }, "/view/love/1"},
		{func() ([]model.Story, error) { return a.Category(ctx, "my misc", 0) }, "/view/miscellaneous/0"},
		{func() ([]model.Story, error) { return a.Search(ctx, "boss") }, "/view/search/"},
	}
	for _, tc := range cases {
		stories, err := tc.run()
		require.NoError(t, err, tc.path)
		require.Len(t, stories, 2)
		assert.Equal(t, "1", stories[0].ID)
		assert.Equal(t, "2", stories[1].ID)
		assert.Equal(t, tc.path, rec.calls[len(rec.calls)-1].Path)
	}
	assert.Equal(t, "boss", rec.calls[len(rec.calls)-1].Query["search"])
}

func TestStoryWithComments(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccount(t, okStory)

	s, err := a.Story(ctx, model.ByID(" 7 "), true)
	require.NoError(t, err)
	assert.Equal(t, "/view/7", rec.calls[0].Path)
	assert.Equal(t, "7", s.ID)
	require.Len(t, s.Comments, 1)
	assert.Equal(t, "ouch", s.Comments[0].Text)

	s, err = a.Story(ctx, model.ByStory(s), false)
	require.NoError(t, err)
	assert.Equal(t, "/view/7/nocomment", rec.calls[1].Path)
	assert.Empty(t, s.Comments)
}

func TestModerationCalls(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccount(t, `<root><code>1</code><items><item>12</item><item> 13 </item><item/></items></root>`)

	ids, err := a.AllUnmoderated(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"12", "13"}, ids)
	assert.NotContains(t, rec.calls[0].Query, "token")

	b, rec := newAccount(t, okEmpty, WithToken("tok"))
	require.NoError(t, b.Moderate(ctx, model.ByID("12"), model.Reject))
	assert.Equal(t, "/mod/no/12", rec.calls[0].Path)

	require.NoError(t, b.Comment(ctx, model.ByID("12"), model.NewComment("hi", "http://x.example")))
	assert.Equal(t, "/comment", rec.calls[1].Path)
	assert.Equal(t, map[string]string{"id": "12", "text": "hi", "url": "http://x.example", "key": "key", "language": "en", "token": "tok"}, rec.calls[1].Query)
}

func TestDeveloperInfo(t *testing.T) {
	a, _ := newAccount(t, `<root><code>1</code><infos><name>Jane</name><project>cli</project><mail>j@example.com</mail></infos><actions><last24h>4</last24h><alltime>40</alltime></actions><tokens>2</tokens></root>`)
	dev, err := a.DeveloperInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane", dev.Name)
	assert.Equal(t, "j@example.com", dev.Email)
	assert.Equal(t, 4, dev.Last24h)
	assert.Equal(t, 40, dev.Alltime)
	assert.Equal(t, 2, dev.Tokens)
	assert.False(t, dev.Has("url"))
}

func TestEncodeQuery(t *testing.T) {
	assert.Equal(t, "", EncodeQuery(nil))
	assert.Equal(t, "a=1&b=x%20y&c=%C3%A9t%C3%A9", EncodeQuery(map[string]string{"c": "été", "b": "x y", "a": "1"}))
	assert.Equal(t, "q=-_!~*'();/?:@$,[]%22%3C%3E%25", EncodeQuery(map[string]string{"q": `-_!~*'();/?:@$,[]"<>%`}))
}

func TestTransportURL(t *testing.T) {
	tr := NewHTTPTransport()
	u := tr.URL(Request{Host: Primary, Path: "/view/search/", Query: map[string]string{"key": "k", "search": "my boss"}})
	assert.Equal(t, "http://api.betacie.com/view/search/?key=k&search=my%20boss", u)

	tr.BaseURL = "http://127.0.0.1:9000/"
	u = tr.URL(Request{Host: Sandbox, Path: "/account/login/a?b/x"})
	assert.Equal(t, "http://127.0.0.1:9000/account/login/a%3Fb/x", u)
}

func TestHTTPTransport(t *testing.T) {
	var gotID, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-Id")
		gotMethod = r.Method
		if r.URL.Path == "/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(okToken))
	}))
	defer srv.Close()

	tr := NewHTTPTransport().WithThrottle(100, 2)
	tr.BaseURL = srv.URL
	require.NotNil(t, tr.Limiter)

	a := New("k", WithTransport(tr))
	require.NoError(t, a.Authenticate(context.Background(), "ann", "pw"))
	assert.Equal(t, "abc123", a.Token())
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.NotEmpty(t, gotID)

	_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/broken"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Contains(t, te.Body, "boom")
}
