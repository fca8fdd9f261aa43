package sandbox

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/alphabot-ai/fmylife/internal/auth"
	"github.com/alphabot-ai/fmylife/internal/model"
	"github.com/alphabot-ai/fmylife/internal/store"
)

const maxStoryLength = 300

// storyFailure maps store errors on a single story to envelope messages.
func (s *Server) storyFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotPublished):
		failure("Story not found").write(w, http.StatusOK)
	case errors.Is(err, store.ErrNotPending):
		failure("Story is not awaiting moderation").write(w, http.StatusOK)
	case errors.Is(err, store.ErrDuplicateVote):
		failure("You already voted for this story").write(w, http.StatusOK)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	digest := strings.TrimSpace(chi.URLParam(r, "digest"))
	if username == "" || digest == "" {
		failure("Wrong login or password").write(w, http.StatusOK)
		return
	}
	token, err := s.auth.Login(r.Context(), r.URL.Query().Get("key"), username, digest)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			failure("Wrong login or password").write(w, http.StatusOK)
			return
		}
		s.internalError(w, err)
		return
	}
	s.logger.Info("login", "username", username)
	success().setToken(token.Token).write(w, http.StatusOK)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), chi.URLParam(r, "token")); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			failure("Invalid token").write(w, http.StatusOK)
			return
		}
		s.internalError(w, err)
		return
	}
	success().write(w, http.StatusOK)
}

// handleListing serves /view/{ref}/{page} where ref is last, a ranking such
// as top or flop_week, or a category.
func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(chi.URLParam(r, "page"))
	if !ok {
		failure("Invalid page").write(w, http.StatusOK)
		return
	}
	opts := store.StoryListOpts{
		Language: language(r),
		Limit:    PageSize,
		Offset:   page * PageSize,
	}

	ref := chi.URLParam(r, "ref")
	switch name, interval, _ := strings.Cut(ref, "_"); {
	case ref == "last":
	case name == "top" || name == "flop":
		since, ok := s.intervalStart(model.Interval(interval))
		if !ok {
			failure("Unknown interval").write(w, http.StatusOK)
			return
		}
		opts.Sort = name
		opts.Since = since
	case model.Category(ref).Valid():
		opts.Category = ref
	default:
		failure("Unknown category").write(w, http.StatusOK)
		return
	}

	stories, err := s.store.ListStories(r.Context(), opts)
	if err != nil {
		s.internalError(w, err)
		return
	}
	success().addStories(stories...).write(w, http.StatusOK)
}

func (s *Server) intervalStart(interval model.Interval) (time.Time, bool) {
	now := s.now()
	switch interval {
	case model.AllTime:
		return time.Time{}, true
	case model.Day:
		return now.Add(-24 * time.Hour), true
	case model.Week:
		return now.AddDate(0, 0, -7), true
	case model.Month:
		return now.AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "ref"))
	if !ok {
		failure("Story not found").write(w, http.StatusOK)
		return
	}
	story, err := s.store.GetStory(r.Context(), id)
	if err == nil && story.Status != store.StatusPublished {
		err = store.ErrNotPublished
	}
	if err != nil {
		s.storyFailure(w, err)
		return
	}
	s.writeStory(w, r, story, !strings.HasSuffix(r.URL.Path, "/nocomment"))
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	story, err := s.store.RandomStory(r.Context(), language(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			failure("No stories yet").write(w, http.StatusOK)
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeStory(w, r, story, true)
}

func (s *Server) writeStory(w http.ResponseWriter, r *http.Request, story store.Story, withComments bool) {
	resp := success().addStories(story)
	if withComments {
		comments, err := s.store.ListCommentsByStory(r.Context(), story.ID)
		if err != nil {
			s.internalError(w, err)
			return
		}
		resp.addComments(comments)
	}
	resp.write(w, http.StatusOK)
}

func (s *Server) handleUnseen(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	stories, err := s.store.ListUnseen(r.Context(), verified.AccountID, language(r), PageSize)
	if err != nil {
		s.internalError(w, err)
		return
	}
	ids := make([]int64, len(stories))
	for i, st := range stories {
		ids[i] = st.ID
	}
	if err := s.store.MarkSeen(r.Context(), verified.AccountID, ids); err != nil {
		s.internalError(w, err)
		return
	}
	success().addStories(stories...).write(w, http.StatusOK)
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	stories, err := s.store.ListFavorites(r.Context(), verified.AccountID, 100)
	if err != nil {
		s.internalError(w, err)
		return
	}
	success().addStories(stories...).write(w, http.StatusOK)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("search"))
	if term == "" {
		failure("Missing search term").write(w, http.StatusOK)
		return
	}
	stories, err := s.store.ListStories(r.Context(), store.StoryListOpts{
		Search:   term,
		Language: language(r),
		Limit:    PageSize,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}
	success().addStories(stories...).write(w, http.StatusOK)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "submit", s.cfg.RateLimits.SubmitPerMinute) {
		return
	}
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("text"))
	switch {
	case text == "":
		failure("Your story is empty").write(w, http.StatusOK)
		return
	case utf8.RuneCountInString(text) > maxStoryLength:
		failure("Your story is too long").write(w, http.StatusOK)
		return
	}
	cat, ok := model.ParseCategory(q.Get("cat"))
	if !ok {
		failure("Unknown category").write(w, http.StatusOK)
		return
	}
	author := strings.TrimSpace(q.Get("author"))
	if author == "" {
		author = verified.Username
	}

	story := store.Story{
		Author:    author,
		Category:  string(cat),
		Text:      text,
		Language:  language(r),
		Status:    store.StatusPending,
		CreatedAt: s.now(),
		AccountID: verified.AccountID,
	}
	id, err := s.store.CreateStory(r.Context(), &story)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.logger.Info("story submitted", "id", id, "account", verified.AccountID, "category", story.Category)
	success().write(w, http.StatusOK)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "vote", s.cfg.RateLimits.VotePerMinute) {
		return
	}
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	kind := model.VoteType(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		failure("Unknown vote type").write(w, http.StatusOK)
		return
	}
	id, ok := parseID(chi.URLParam(r, "ref"))
	if !ok {
		failure("Story not found").write(w, http.StatusOK)
		return
	}
	if err := s.store.CreateVote(r.Context(), id, verified.AccountID, string(kind)); err != nil {
		s.storyFailure(w, err)
		return
	}
	success().write(w, http.StatusOK)
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "comment", s.cfg.RateLimits.CommentPerMinute) {
		return
	}
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	id, ok := parseID(q.Get("id"))
	if !ok {
		failure("Story not found").write(w, http.StatusOK)
		return
	}
	text := strings.TrimSpace(q.Get("text"))
	if text == "" {
		failure("Your comment is empty").write(w, http.StatusOK)
		return
	}

	comment := store.Comment{
		StoryID:   id,
		Author:    verified.Username,
		AuthorURL: strings.TrimSpace(q.Get("url")),
		Text:      text,
		Staff:     verified.Staff,
		CreatedAt: s.now(),
		AccountID: verified.AccountID,
	}
	if _, err := s.store.CreateComment(r.Context(), &comment); err != nil {
		s.storyFailure(w, err)
		return
	}
	success().write(w, http.StatusOK)
}

func (s *Server) handleDeveloper(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.URL.Query().Get("key")
	dev, err := s.store.GetDeveloper(ctx, key)
	if err != nil {
		s.internalError(w, err)
		return
	}

	now := s.now()
	var u usage
	if u.Last24h, err = s.store.CountAPICalls(ctx, key, now.Add(-24*time.Hour)); err != nil {
		s.internalError(w, err)
		return
	}
	if u.Alltime, err = s.store.CountAPICalls(ctx, key, time.Time{}); err != nil {
		s.internalError(w, err)
		return
	}
	if u.Tokens, err = s.store.CountTokens(ctx, key, now); err != nil {
		s.internalError(w, err)
		return
	}
	success().setDeveloper(dev, u).write(w, http.StatusOK)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	stories, err := s.store.ListPending(r.Context(), 500)
	if err != nil {
		s.internalError(w, err)
		return
	}
	success().addIDs(stories...).write(w, http.StatusOK)
}

func (s *Server) handlePendingStory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	id, ok := parseID(chi.URLParam(r, "ref"))
	if !ok {
		failure("Story not found").write(w, http.StatusOK)
		return
	}
	story, err := s.store.GetStory(r.Context(), id)
	if err == nil && story.Status != store.StatusPending {
		err = store.ErrNotPending
	}
	if err != nil {
		s.storyFailure(w, err)
		return
	}
	success().addStories(story).write(w, http.StatusOK)
}

func (s *Server) handleLastModerated(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	story, err := s.store.LastModerated(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			failure("Nothing has been moderated yet").write(w, http.StatusOK)
			return
		}
		s.internalError(w, err)
		return
	}
	success().addStories(story).write(w, http.StatusOK)
}

func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "moderate", s.cfg.RateLimits.ModeratePerMinute) {
		return
	}
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	verdict := model.ModerationType(chi.URLParam(r, "verdict"))
	if !verdict.Valid() {
		failure("Unknown method").write(w, http.StatusNotFound)
		return
	}
	id, ok := parseID(chi.URLParam(r, "ref"))
	if !ok {
		failure("Story not found").write(w, http.StatusOK)
		return
	}
	story, err := s.store.Moderate(r.Context(), id, verified.AccountID, verdict == model.Approve, s.cfg.Quorum)
	if err != nil {
		s.storyFailure(w, err)
		return
	}
	if story.Status != store.StatusPending {
		s.logger.Info("story moderated", "id", story.ID, "status", story.Status, "yes", story.Yes, "no", story.No)
	}
	success().write(w, http.StatusOK)
}
