package model

import (
	"strings"
	"time"

	"github.com/alphabot-ai/fmylife/internal/schema"
)

// Story is one published or pending story. The counters Agreed, Deserved and
// NumComments are read as integers; non-numeric text in any of them fails
// materialization instead of reading as zero.
type Story struct {
	schema.Record

	ID           string
	Author       string
	Category     Category
	Date         time.Time
	Agreed       int
	Deserved     int
	NumComments  int
	Text         string
	CommentsFlag string

	// Comments is attached by the client on comment-bearing reads.
	Comments []Comment
}

type Comment struct {
	schema.Record

	ID        string
	Order     string
	Staff     bool
	Author    string
	AuthorURL string
	Date      time.Time
	Text      string
}

// Developer describes the owner of an API key. Last24h, Alltime and Tokens
// must be numeric like the story counters.
type Developer struct {
	schema.Record

	Name        string
	Project     string
	Description string
	URL         string
	Email       string
	Last24h     int
	Alltime     int
	Tokens      int
}

// NewStory builds a story for submission.
func NewStory(author string, category Category, text string) *Story {
	s := &Story{Author: author, Category: category, Text: text}
	s.Mark("author")
	s.Mark("category")
	s.Mark("text")
	return s
}

// NewComment builds a comment for submission. authorURL may be empty.
func NewComment(text, authorURL string) *Comment {
	c := &Comment{Text: text, AuthorURL: authorURL}
	c.Mark("text")
	if authorURL != "" {
		c.Mark("author_url")
	}
	return c
}

type Category string

const (
	Love          Category = "love"
	Money         Category = "money"
	Kids          Category = "kids"
	Work          Category = "work"
	Health        Category = "health"
	Sex           Category = "sex"
	Miscellaneous Category = "miscellaneous"
)

// Categories lists the canonical categories.
func Categories() []Category {
	return []Category{Love, Money, Kids, Work, Health, Sex, Miscellaneous}
}

// ParseCategory maps user input to a canonical category. Anything containing
// "misc" in any case becomes Miscellaneous; other values must match exactly.
func ParseCategory(s string) (Category, bool) {
	if strings.Contains(strings.ToLower(s), "misc") {
		return Miscellaneous, true
	}
	c := Category(s)
	return c, c.Valid()
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type VoteType string

const (
	Agree    VoteType = "agree"
	Deserved VoteType = "deserved"
)

func (v VoteType) Valid() bool { return v == Agree || v == Deserved }

type ModerationType string

const (
	Approve ModerationType = "yes"
	Reject  ModerationType = "no"
)

func (m ModerationType) Valid() bool { return m == Approve || m == Reject }

// Interval narrows top and flop rankings. The zero value is all time.
type Interval string

const (
	AllTime Interval = ""
	Day     Interval = "day"
	Week    Interval = "week"
	Month   Interval = "month"
)

func (i Interval) Valid() bool {
	switch i {
	case AllTime, Day, Week, Month:
		return true
	}
	return false
}

// StoryRef names a story either by id or by a story value.
type StoryRef struct {
	id    string
	story *Story
}

func ByID(id string) StoryRef { return StoryRef{id: id} }

func ByStory(s *Story) StoryRef { return StoryRef{story: s} }

// ID resolves the reference. It reports false when no id is known.
func (r StoryRef) ID() (string, bool) {
	id := r.id
	if r.story != nil {
		id = r.story.ID
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}
