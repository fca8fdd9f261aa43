package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/fmylife/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; sqlite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	staff INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username);

CREATE TABLE IF NOT EXISTS stories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	author TEXT NOT NULL,
	category TEXT NOT NULL,
	text TEXT NOT NULL,
	language TEXT NOT NULL,
	status TEXT NOT NULL,
	agree INTEGER NOT NULL DEFAULT 0,
	deserved INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	mod_yes INTEGER NOT NULL DEFAULT 0,
	mod_no INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	moderated_at INTEGER,
	account_id INTEGER NOT NULL,
	FOREIGN KEY(account_id) REFERENCES accounts(id)
);
CREATE INDEX IF NOT EXISTS idx_stories_status_created ON stories(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_stories_moderated_at ON stories(moderated_at DESC);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	story_id INTEGER NOT NULL,
	pub_id INTEGER NOT NULL,
	author TEXT NOT NULL,
	author_url TEXT,
	text TEXT NOT NULL,
	staff INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	FOREIGN KEY(story_id) REFERENCES stories(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_story_id ON comments(story_id, pub_id);

CREATE TABLE IF NOT EXISTS votes (
	story_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (story_id, account_id)
);

CREATE TABLE IF NOT EXISTS moderation_votes (
	story_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	approve INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (story_id, account_id)
);

CREATE TABLE IF NOT EXISTS seen (
	account_id INTEGER NOT NULL,
	story_id INTEGER NOT NULL,
	PRIMARY KEY (account_id, story_id)
);

CREATE TABLE IF NOT EXISTS auth_tokens (
	token TEXT PRIMARY KEY,
	account_id INTEGER NOT NULL,
	api_key TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS developers (
	api_key TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	project TEXT,
	description TEXT,
	url TEXT,
	email TEXT,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS api_calls (
	api_key TEXT NOT NULL,
	at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_calls_key_at ON api_calls(api_key, at);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

const storyColumns = `s.id, s.author, s.category, s.text, s.language, s.status, s.agree, s.deserved,
s.comment_count, s.mod_yes, s.mod_no, s.created_at, s.moderated_at, s.account_id`

func (s *Store) CreateStory(ctx context.Context, story *store.Story) (int64, error) {
	status := story.Status
	if status == "" {
		status = store.StatusPending
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO stories (author, category, text, language, status, created_at, account_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, story.Author, story.Category, story.Text, story.Language, string(status), story.CreatedAt.Unix(), story.AccountID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetStory(ctx context.Context, id int64) (store.Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories s WHERE s.id = ?`, id)
	return scanStory(row)
}

func (s *Store) ListStories(ctx context.Context, opts store.StoryListOpts) ([]store.Story, error) {
	where := []string{"s.status = ?"}
	args := []any{string(store.StatusPublished)}
	if opts.Language != "" {
		where = append(where, "s.language = ?")
		args = append(args, opts.Language)
	}
	if opts.Category != "" {
		where = append(where, "s.category = ?")
		args = append(args, opts.Category)
	}
	if !opts.Since.IsZero() {
		where = append(where, "s.created_at >= ?")
		args = append(args, opts.Since.Unix())
	}
	if term := strings.TrimSpace(opts.Search); term != "" {
		where = append(where, "s.text LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(term)+"%")
	}

	order := "s.created_at DESC, s.id DESC"
	switch opts.Sort {
	case "top":
		order = "s.agree DESC, s.id DESC"
	case "flop":
		order = "s.deserved DESC, s.id DESC"
	}

	args = append(args, clamp(opts.Limit, 1, 100), max(opts.Offset, 0))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM stories s
WHERE %s
ORDER BY %s
LIMIT ? OFFSET ?
`, storyColumns, strings.Join(where, " AND "), order), args...)
	if err != nil {
		return nil, err
	}
	return collectStories(rows)
}

func (s *Store) RandomStory(ctx context.Context, language string) (store.Story, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+storyColumns+`
FROM stories s
WHERE s.status = ? AND (? = '' OR s.language = ?)
ORDER BY RANDOM()
LIMIT 1
`, string(store.StatusPublished), language, language)
	return scanStory(row)
}

func (s *Store) ListUnseen(ctx context.Context, accountID int64, language string, limit int) ([]store.Story, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+storyColumns+`
FROM stories s
LEFT JOIN seen ON seen.story_id = s.id AND seen.account_id = ?
WHERE s.status = ? AND seen.story_id IS NULL AND (? = '' OR s.language = ?)
ORDER BY s.created_at DESC, s.id DESC
LIMIT ?
`, accountID, string(store.StatusPublished), language, language, clamp(limit, 1, 100))
	if err != nil {
		return nil, err
	}
	return collectStories(rows)
}

func (s *Store) MarkSeen(ctx context.Context, accountID int64, storyIDs []int64) error {
	for _, id := range storyIDs {
		if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO seen (account_id, story_id) VALUES (?, ?)`, accountID, id); err != nil {
			return err
		}
	}
	return nil
}

// ListFavorites returns the stories the account agreed with, latest vote first.
func (s *Store) ListFavorites(ctx context.Context, accountID int64, limit int) ([]store.Story, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+storyColumns+`
FROM stories s
JOIN votes v ON v.story_id = s.id
WHERE v.account_id = ? AND v.kind = 'agree'
ORDER BY v.created_at DESC, s.id DESC
LIMIT ?
`, accountID, clamp(limit, 1, 100))
	if err != nil {
		return nil, err
	}
	return collectStories(rows)
}

func (s *Store) CreateComment(ctx context.Context, comment *store.Comment) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status string
	var count int
	row := tx.QueryRowContext(ctx, `SELECT status, comment_count FROM stories WHERE id = ?`, comment.StoryID)
	if err = row.Scan(&status, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = store.ErrNotFound
		}
		return 0, err
	}
	if store.StoryStatus(status) != store.StatusPublished {
		err = store.ErrNotPublished
		return 0, err
	}

	comment.PubID = count + 1
	res, err := tx.ExecContext(ctx, `
INSERT INTO comments (story_id, pub_id, author, author_url, text, staff, created_at, account_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, comment.StoryID, comment.PubID, comment.Author, nullIfEmpty(comment.AuthorURL), comment.Text,
		boolToInt(comment.Staff), comment.CreatedAt.Unix(), comment.AccountID)
	if err != nil {
		return 0, err
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE stories SET comment_count = comment_count + 1 WHERE id = ?`, comment.StoryID); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	comment.ID = id
	return id, nil
}

func (s *Store) ListCommentsByStory(ctx context.Context, storyID int64) ([]store.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, story_id, pub_id, author, author_url, text, staff, created_at, account_id
FROM comments
WHERE story_id = ?
ORDER BY pub_id ASC
`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []store.Comment
	for rows.Next() {
		var c store.Comment
		var url sql.NullString
		var staff int
		var created int64
		if err := rows.Scan(&c.ID, &c.StoryID, &c.PubID, &c.Author, &url, &c.Text, &staff, &created, &c.AccountID); err != nil {
			return nil, err
		}
		c.AuthorURL = url.String
		c.Staff = staff == 1
		c.CreatedAt = time.Unix(created, 0).UTC()
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) CreateVote(ctx context.Context, storyID, accountID int64, kind string) (err error) {
	column := map[string]string{"agree": "agree", "deserved": "deserved"}[kind]
	if column == "" {
		return fmt.Errorf("unknown vote kind %q", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = requireStatus(ctx, tx, storyID, store.StatusPublished, store.ErrNotPublished); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO votes (story_id, account_id, kind, created_at)
VALUES (?, ?, ?, ?)
`, storyID, accountID, kind, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			err = store.ErrDuplicateVote
		}
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE stories SET `+column+` = `+column+` + 1 WHERE id = ?`, storyID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]store.Story, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+storyColumns+`
FROM stories s
WHERE s.status = ?
ORDER BY s.created_at ASC, s.id ASC
LIMIT ?
`, string(store.StatusPending), clamp(limit, 1, 500))
	if err != nil {
		return nil, err
	}
	return collectStories(rows)
}

func (s *Store) Moderate(ctx context.Context, storyID, accountID int64, approve bool, quorum int) (story store.Story, err error) {
	if quorum < 1 {
		quorum = 1
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Story{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = requireStatus(ctx, tx, storyID, store.StatusPending, store.ErrNotPending); err != nil {
		return store.Story{}, err
	}
	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
INSERT INTO moderation_votes (story_id, account_id, approve, created_at)
VALUES (?, ?, ?, ?)
`, storyID, accountID, boolToInt(approve), now)
	if err != nil {
		if isUniqueViolation(err) {
			err = store.ErrDuplicateVote
		}
		return store.Story{}, err
	}

	column := "mod_no"
	if approve {
		column = "mod_yes"
	}
	if _, err = tx.ExecContext(ctx, `UPDATE stories SET `+column+` = `+column+` + 1 WHERE id = ?`, storyID); err != nil {
		return store.Story{}, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE stories
SET status = CASE WHEN mod_yes >= ? THEN ? WHEN mod_no >= ? THEN ? ELSE status END,
    moderated_at = CASE WHEN mod_yes >= ? OR mod_no >= ? THEN ? ELSE moderated_at END
WHERE id = ?
`, quorum, string(store.StatusPublished), quorum, string(store.StatusRejected), quorum, quorum, now, storyID)
	if err != nil {
		return store.Story{}, err
	}

	story, err = scanStory(tx.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories s WHERE s.id = ?`, storyID))
	if err != nil {
		return store.Story{}, err
	}
	if err = tx.Commit(); err != nil {
		return store.Story{}, err
	}
	return story, nil
}

func (s *Store) LastModerated(ctx context.Context) (store.Story, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+storyColumns+`
FROM stories s
WHERE s.moderated_at IS NOT NULL
ORDER BY s.moderated_at DESC, s.id DESC
LIMIT 1
`)
	return scanStory(row)
}

func (s *Store) CreateAccount(ctx context.Context, account *store.Account) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO accounts (username, password_hash, staff, created_at)
VALUES (?, ?, ?, ?)
`, account.Username, account.PasswordHash, boolToInt(account.Staff), account.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateName
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	account.ID = id
	return id, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (store.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, staff, created_at FROM accounts WHERE id = ?
`, id))
}

func (s *Store) GetAccountByName(ctx context.Context, username string) (store.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, staff, created_at FROM accounts WHERE username = ?
`, username))
}

func (s *Store) CreateToken(ctx context.Context, token store.Token) error {
	created := token.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO auth_tokens (token, account_id, api_key, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)
`, token.Token, token.AccountID, token.APIKey, token.ExpiresAt.Unix(), created.Unix())
	return err
}

func (s *Store) GetToken(ctx context.Context, token string) (store.Token, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT token, account_id, api_key, expires_at, created_at
FROM auth_tokens
WHERE token = ?
`, token)
	var t store.Token
	var expires, created int64
	if err := row.Scan(&t.Token, &t.AccountID, &t.APIKey, &expires, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Token{}, store.ErrNotFound
		}
		return store.Token{}, err
	}
	t.ExpiresAt = time.Unix(expires, 0)
	t.CreatedAt = time.Unix(created, 0)
	return t, nil
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE token = ?`, token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateDeveloper(ctx context.Context, dev *store.Developer) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO developers (api_key, name, project, description, url, email, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, dev.APIKey, dev.Name, nullIfEmpty(dev.Project), nullIfEmpty(dev.Description),
		nullIfEmpty(dev.URL), nullIfEmpty(dev.Email), dev.CreatedAt.Unix())
	if err != nil && isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) GetDeveloper(ctx context.Context, apiKey string) (store.Developer, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT api_key, name, project, description, url, email, created_at
FROM developers
WHERE api_key = ?
`, apiKey)
	var d store.Developer
	var project, description, url, email sql.NullString
	var created int64
	if err := row.Scan(&d.APIKey, &d.Name, &project, &description, &url, &email, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Developer{}, store.ErrNotFound
		}
		return store.Developer{}, err
	}
	d.Project = project.String
	d.Description = description.String
	d.URL = url.String
	d.Email = email.String
	d.CreatedAt = time.Unix(created, 0)
	return d, nil
}

func (s *Store) RecordAPICall(ctx context.Context, apiKey string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO api_calls (api_key, at) VALUES (?, ?)`, apiKey, at.Unix())
	return err
}

func (s *Store) CountAPICalls(ctx context.Context, apiKey string, since time.Time) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_calls WHERE api_key = ? AND at >= ?`, apiKey, since.Unix())
	return n, row.Scan(&n)
}

func (s *Store) CountTokens(ctx context.Context, apiKey string, now time.Time) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_tokens WHERE api_key = ? AND expires_at > ?`, apiKey, now.Unix())
	return n, row.Scan(&n)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func requireStatus(ctx context.Context, q queryRower, storyID int64, want store.StoryStatus, wrong error) error {
	var status string
	if err := q.QueryRowContext(ctx, `SELECT status FROM stories WHERE id = ?`, storyID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if store.StoryStatus(status) != want {
		return wrong
	}
	return nil
}

func collectStories(rows *sql.Rows) ([]store.Story, error) {
	defer rows.Close()
	var stories []store.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

func scanStory(scanner interface{ Scan(dest ...any) error }) (store.Story, error) {
	var s store.Story
	var status string
	var created int64
	var moderated sql.NullInt64
	if err := scanner.Scan(&s.ID, &s.Author, &s.Category, &s.Text, &s.Language, &status, &s.Agree, &s.Deserved,
		&s.Comments, &s.Yes, &s.No, &created, &moderated, &s.AccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Story{}, store.ErrNotFound
		}
		return store.Story{}, err
	}
	s.Status = store.StoryStatus(status)
	s.CreatedAt = time.Unix(created, 0).UTC()
	if moderated.Valid {
		at := time.Unix(moderated.Int64, 0).UTC()
		s.ModeratedAt = &at
	}
	return s, nil
}

func scanAccount(row *sql.Row) (store.Account, error) {
	var a store.Account
	var staff int
	var created int64
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &staff, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Account{}, store.ErrNotFound
		}
		return store.Account{}, err
	}
	a.Staff = staff == 1
	a.CreatedAt = time.Unix(created, 0)
	return a, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
