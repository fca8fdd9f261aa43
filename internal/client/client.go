// Package client provides a Go client for the FMyLife API.
//
// Every call follows the same shape: build a path and parameters, send them
// with the api key and language (plus the session token where one is needed),
// parse the XML response, interpret its envelope, then either raise the typed
// error for the operation or materialize the returned items.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alphabot-ai/fmylife/internal/auth"
	"github.com/alphabot-ai/fmylife/internal/envelope"
	"github.com/alphabot-ai/fmylife/internal/model"
	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

const (
	// DefaultAPIKey is the read-only key the service hands out to everyone.
	DefaultAPIKey   = "readonly"
	DefaultLanguage = "en"

	// MaxStoryLength is the longest story text accepted, in characters.
	MaxStoryLength = 300
)

// Account is a session with the service. It is not safe for concurrent use;
// run one Account per goroutine.
type Account struct {
	apiKey    string
	language  string
	token     string
	sandbox   bool
	backend   xmlbackend.Backend
	transport Transport
	logger    *slog.Logger
}

// New creates an Account. The XML backend is captured from
// xmlbackend.Default() unless WithBackend is given.
func New(apiKey string, opts ...Option) *Account {
	if apiKey == "" {
		apiKey = DefaultAPIKey
	}
	a := &Account{
		apiKey:   apiKey,
		language: DefaultLanguage,
		backend:  xmlbackend.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.transport == nil {
		t := NewHTTPTransport()
		t.Logger = a.logger
		a.transport = t
	}
	return a
}

func (a *Account) APIKey() string              { return a.apiKey }
func (a *Account) Language() string            { return a.language }
func (a *Account) Sandbox() bool               { return a.sandbox }
func (a *Account) Backend() xmlbackend.Backend { return a.backend }

// Token returns the session token, empty when not authenticated.
func (a *Account) Token() string { return a.token }

// IsAuthenticated reports whether the account holds a session token.
func (a *Account) IsAuthenticated() bool { return a.token != "" }

func (a *Account) host() Host {
	if a.sandbox {
		return Sandbox
	}
	return Primary
}

type call struct {
	op     string
	method string
	path   string
	params map[string]string
	auth   bool
}

type response struct {
	doc xmlbackend.Node
	env envelope.Envelope
}

func (a *Account) do(ctx context.Context, c call) (*response, error) {
	if c.auth && a.token == "" {
		return nil, &AuthenticationError{Op: c.op, Err: ErrNotAuthenticated}
	}
	if c.method == "" {
		c.method = http.MethodGet
	}

	query := map[string]string{"key": a.apiKey, "language": a.language}
	for k, v := range c.params {
		query[k] = v
	}
	if c.auth {
		query["token"] = a.token
	}

	raw, err := a.transport.Do(ctx, Request{
		Host:   a.host(),
		Method: c.method,
		Path:   c.path,
		Query:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.op, err)
	}

	doc, err := a.backend.Parse(raw)
	if err != nil {
		return nil, err
	}
	env, err := envelope.Interpret(a.backend, doc)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("fmylife call", "op", c.op, "path", c.path, "code", int(env.Code), "items", len(env.Items))
	return &response{doc: doc, env: env}, nil
}

func (a *Account) stories(ctx context.Context, c call) ([]model.Story, error) {
	resp, err := a.do(ctx, c)
	if err != nil {
		return nil, err
	}
	if !resp.env.OK() {
		return nil, &RetrievalError{Op: c.op, Message: resp.env.Error}
	}
	return model.ParseStories(a.backend, resp.env.Items)
}

func (a *Account) story(ctx context.Context, c call, withComments bool) (*model.Story, error) {
	resp, err := a.do(ctx, c)
	if err != nil {
		return nil, err
	}
	if !resp.env.OK() {
		return nil, &RetrievalError{Op: c.op, Message: resp.env.Error}
	}
	if len(resp.env.Items) == 0 {
		return nil, &envelope.ProtocolError{Err: errors.New("success without items")}
	}
	story, err := model.ParseStory(a.backend, resp.env.Items[0])
	if err != nil {
		return nil, err
	}
	if withComments {
		nodes, err := envelope.Comments(a.backend, resp.doc)
		if err != nil {
			return nil, err
		}
		if story.Comments, err = model.ParseComments(a.backend, nodes); err != nil {
			return nil, err
		}
	}
	return story, nil
}

func (a *Account) write(ctx context.Context, c call, id string) error {
	resp, err := a.do(ctx, c)
	if err != nil {
		return err
	}
	if !resp.env.OK() {
		return &VotingError{Op: c.op, ID: id, Message: resp.env.Error}
	}
	return nil
}

// Authenticate logs in. The password travels as its MD5 digest. On failure
// the account stays unauthenticated.
func (a *Account) Authenticate(ctx context.Context, username, password string) error {
	const op = "authenticate"
	if username == "" || strings.Contains(username, "/") {
		return &ArgumentError{Op: op, Arg: "username", Value: username, Want: "a non-empty name without '/'"}
	}
	resp, err := a.do(ctx, call{
		op:     op,
		method: http.MethodPost,
		path:   "/account/login/" + username + "/" + auth.Digest(password),
	})
	if err != nil {
		return err
	}
	if !resp.env.OK() {
		return &AuthenticationError{Op: op, Message: resp.env.Error}
	}
	token, ok, err := envelope.Token(a.backend, resp.doc)
	if err != nil {
		return err
	}
	if !ok {
		return &envelope.ProtocolError{Err: errors.New("login succeeded without a token")}
	}
	a.token = token
	return nil
}

// Logout ends the session.
func (a *Account) Logout(ctx context.Context) error {
	const op = "logout"
	if a.token == "" {
		return &AuthenticationError{Op: op, Err: ErrNotAuthenticated}
	}
	resp, err := a.do(ctx, call{op: op, path: "/account/logout/" + a.token, auth: true})
	if err != nil {
		return err
	}
	if !resp.env.OK() {
		return &AuthenticationError{Op: op, Message: resp.env.Error}
	}
	a.token = ""
	return nil
}

// storyID resolves ref to a single path segment.
func storyID(op string, ref model.StoryRef) (string, error) {
	id, ok := ref.ID()
	if !ok {
		return "", &ArgumentError{Op: op, Arg: "story", Want: "a story id"}
	}
	if strings.Contains(id, "/") {
		return "", &ArgumentError{Op: op, Arg: "story", Value: id, Want: "an id without '/'"}
	}
	return id, nil
}

func checkPage(op string, page int) error {
	if page < 0 {
		return &ArgumentError{Op: op, Arg: "page", Value: strconv.Itoa(page), Want: "a page number >= 0"}
	}
	return nil
}

// Latest lists the most recent stories.
func (a *Account) Latest(ctx context.Context, page int) ([]model.Story, error) {
	if err := checkPage("latest", page); err != nil {
		return nil, err
	}
	return a.stories(ctx, call{op: "latest", path: fmt.Sprintf("/view/last/%d", page)})
}

// Top lists the best rated stories over interval.
func (a *Account) Top(ctx context.Context, interval model.Interval, page int) ([]model.Story, error) {
	return a.ranking(ctx, "top", interval, page)
}

// Flop lists the worst rated stories over interval.
func (a *Account) Flop(ctx context.Context, interval model.Interval, page int) ([]model.Story, error) {
	return a.ranking(ctx, "flop", interval, page)
}

func (a *Account) ranking(ctx context.Context, op string, interval model.Interval, page int) ([]model.Story, error) {
	if !interval.Valid() {
		return nil, &ArgumentError{Op: op, Arg: "interval", Value: string(interval), Want: `"", day, week or month`}
	}
	if err := checkPage(op, page); err != nil {
		return nil, err
	}
	name := op
	if interval != model.AllTime {
		name += "_" + string(interval)
	}
	return a.stories(ctx, call{op: op, path: fmt.Sprintf("/view/%s/%d", name, page)})
}

// Category lists stories of one category. Any input containing "misc" means
// miscellaneous.
func (a *Account) Category(ctx context.Context, category string, page int) ([]model.Story, error) {
	const op = "category"
	cat, ok := model.ParseCategory(category)
	if !ok {
		return nil, &InvalidCategoryError{Op: op, Category: category}
	}
	if err := checkPage(op, page); err != nil {
		return nil, err
	}
	return a.stories(ctx, call{op: op, path: fmt.Sprintf("/view/%s/%d", cat, page)})
}

// Random fetches one random story.
func (a *Account) Random(ctx context.Context, withComments bool) (*model.Story, error) {
	return a.story(ctx, call{op: "random", path: "/view/random"}, withComments)
}

// Story fetches one story, with its comments when withComments is set.
func (a *Account) Story(ctx context.Context, ref model.StoryRef, withComments bool) (*model.Story, error) {
	const op = "story"
	id, err := storyID(op, ref)
	if err != nil {
		return nil, err
	}
	path := "/view/" + id
	if !withComments {
		path += "/nocomment"
	}
	return a.story(ctx, call{op: op, path: path}, withComments)
}

// Unseen lists stories the authenticated user has not read yet.
func (a *Account) Unseen(ctx context.Context) ([]model.Story, error) {
	return a.stories(ctx, call{op: "unseen", path: "/view/new", auth: true})
}

// Favorites lists the authenticated user's favorite stories.
func (a *Account) Favorites(ctx context.Context) ([]model.Story, error) {
	return a.stories(ctx, call{op: "favorites", path: "/view/favorites", auth: true})
}

func (a *Account) Search(ctx context.Context, term string) ([]model.Story, error) {
	return a.stories(ctx, call{op: "search", path: "/view/search/", params: map[string]string{"search": term}})
}

// Submit sends a new story for moderation.
func (a *Account) Submit(ctx context.Context, story *model.Story) error {
	const op = "submit"
	if a.token == "" {
		return &AuthenticationError{Op: op, Err: ErrNotAuthenticated}
	}
	if story == nil {
		return &ArgumentError{Op: op, Arg: "story", Value: "<nil>", Want: "a story"}
	}
	if n := utf8.RuneCountInString(story.Text); n > MaxStoryLength {
		return &StoryTooLongError{Length: n, Max: MaxStoryLength}
	}
	cat, ok := model.ParseCategory(string(story.Category))
	if !ok {
		return &InvalidCategoryError{Op: op, Category: string(story.Category)}
	}
	return a.write(ctx, call{
		op:   op,
		path: "/submit",
		params: map[string]string{
			"author": story.Author,
			"text":   story.Text,
			"cat":    string(cat),
		},
		auth: true,
	}, "")
}

// Vote agrees with a story or says it was deserved.
func (a *Account) Vote(ctx context.Context, ref model.StoryRef, vote model.VoteType) error {
	const op = "vote"
	if !vote.Valid() {
		return &ArgumentError{Op: op, Arg: "vote", Value: string(vote), Want: "agree or deserved"}
	}
	id, err := storyID(op, ref)
	if err != nil {
		return err
	}
	return a.write(ctx, call{op: op, path: "/vote/" + id + "/" + string(vote), auth: true}, id)
}

// Comment posts comment on a story.
func (a *Account) Comment(ctx context.Context, ref model.StoryRef, comment *model.Comment) error {
	const op = "comment"
	if a.token == "" {
		return &AuthenticationError{Op: op, Err: ErrNotAuthenticated}
	}
	id, err := storyID(op, ref)
	if err != nil {
		return err
	}
	if comment == nil || strings.TrimSpace(comment.Text) == "" {
		return &ArgumentError{Op: op, Arg: "comment", Want: "non-empty text"}
	}
	params := map[string]string{"id": id, "text": comment.Text}
	if comment.AuthorURL != "" {
		params["url"] = comment.AuthorURL
	}
	return a.write(ctx, call{op: op, path: "/comment", params: params, auth: true}, id)
}

// DeveloperInfo describes the owner of the api key.
func (a *Account) DeveloperInfo(ctx context.Context) (*model.Developer, error) {
	const op = "developer info"
	resp, err := a.do(ctx, call{op: op, path: "/dev"})
	if err != nil {
		return nil, err
	}
	if !resp.env.OK() {
		return nil, &RetrievalError{Op: op, Message: resp.env.Error}
	}
	return model.ParseDeveloper(a.backend, resp.doc)
}

// AllUnmoderated lists the ids of stories waiting for moderation.
func (a *Account) AllUnmoderated(ctx context.Context) ([]string, error) {
	const op = "all unmoderated"
	resp, err := a.do(ctx, call{op: op, path: "/mod/view"})
	if err != nil {
		return nil, err
	}
	if !resp.env.OK() {
		return nil, &RetrievalError{Op: op, Message: resp.env.Error}
	}
	ids := make([]string, 0, len(resp.env.Items))
	for _, item := range resp.env.Items {
		if id := strings.TrimSpace(a.backend.Text(item)); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Unmoderated fetches one story from the moderation queue.
func (a *Account) Unmoderated(ctx context.Context, id string) (*model.Story, error) {
	const op = "unmoderated"
	id, err := storyID(op, model.ByID(id))
	if err != nil {
		return nil, err
	}
	return a.story(ctx, call{op: op, path: "/mod/view/" + id, auth: true}, false)
}

// LastModerated fetches the story whose moderation finished most recently.
func (a *Account) LastModerated(ctx context.Context) (*model.Story, error) {
	return a.story(ctx, call{op: "last moderated", path: "/mod/last", auth: true}, false)
}

// Moderate casts a yes or no moderation vote.
func (a *Account) Moderate(ctx context.Context, ref model.StoryRef, verdict model.ModerationType) error {
	const op = "moderate"
	if !verdict.Valid() {
		return &ArgumentError{Op: op, Arg: "moderation", Value: string(verdict), Want: "yes or no"}
	}
	id, err := storyID(op, ref)
	if err != nil {
		return err
	}
	return a.write(ctx, call{op: op, path: "/mod/" + string(verdict) + "/" + id, auth: true}, id)
}
