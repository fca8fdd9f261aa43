package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/fmylife/internal/schema"
	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

var (
	StorySchema     = storySchema()
	CommentSchema   = commentSchema()
	DeveloperSchema = developerSchema()
)

func storySchema() *schema.Schema[Story] {
	b := schema.NewBuilder[Story]("story")
	b.Attribute("id", "id", ".", func(s *Story, v string) { s.ID = v })
	b.Text("author", "author", func(s *Story, v string) { s.Author = v })
	b.Text("category", "category", func(s *Story, v string) { s.Category = Category(v) })
	schema.Compute(b, "date", schema.TextAs("date", schema.ParseTime), func(s *Story, v time.Time) { s.Date = v })
	schema.Compute(b, "agreed", count("agree"), func(s *Story, v int) { s.Agreed = v })
	schema.Compute(b, "deserved", count("deserved"), func(s *Story, v int) { s.Deserved = v })
	schema.Compute(b, "num_comments", count("comments"), func(s *Story, v int) { s.NumComments = v })
	b.Text("text", "text", func(s *Story, v string) { s.Text = v })
	b.Text("comments_flag", "comments_flag", func(s *Story, v string) { s.CommentsFlag = v })
	return b.Build()
}

func commentSchema() *schema.Schema[Comment] {
	b := schema.NewBuilder[Comment]("comment")
	b.Attribute("id", "id", ".", func(c *Comment, v string) { c.ID = v })
	b.Attribute("order", "pub_id", ".", func(c *Comment, v string) { c.Order = v })
	schema.Compute(b, "staff", schema.AttrAs("staff", schema.ParseFlag), func(c *Comment, v bool) { c.Staff = v })
	b.Text("author", "author", func(c *Comment, v string) { c.Author = v })
	b.Attribute("author_url", "url", "author", func(c *Comment, v string) { c.AuthorURL = v })
	schema.Compute(b, "date", schema.TextAs("date", schema.ParseTime), func(c *Comment, v time.Time) { c.Date = v })
	b.Text("text", "text", func(c *Comment, v string) { c.Text = v })
	return b.Build()
}

func developerSchema() *schema.Schema[Developer] {
	b := schema.NewBuilder[Developer]("developer")
	b.Text("name", "//infos/name", func(d *Developer, v string) { d.Name = v })
	b.Text("project", "//infos/project", func(d *Developer, v string) { d.Project = v })
	b.Text("description", "//infos/description", func(d *Developer, v string) { d.Description = v })
	b.Text("url", "//infos/url", func(d *Developer, v string) { d.URL = v })
	b.Text("email", "//infos/mail", func(d *Developer, v string) { d.Email = v })
	schema.Compute(b, "last24h", count("//actions/last24h"), func(d *Developer, v int) { d.Last24h = v })
	schema.Compute(b, "alltime", count("//actions/alltime"), func(d *Developer, v int) { d.Alltime = v })
	schema.Compute(b, "tokens", count("//tokens"), func(d *Developer, v int) { d.Tokens = v })
	return b.Build()
}

// count reads an integer counter. An empty node counts as absent and any
// other non-numeric text is an error.
func count(path string) func(xmlbackend.Backend, xmlbackend.Node) (int, bool, error) {
	return func(b xmlbackend.Backend, n xmlbackend.Node) (int, bool, error) {
		raw, ok, err := xmlbackend.FirstText(b, n, path)
		raw = strings.TrimSpace(raw)
		if err != nil || !ok || raw == "" {
			return 0, false, err
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false, err
		}
		return v, true, nil
	}
}

// ParseStories materializes story items in the order given.
func ParseStories(b xmlbackend.Backend, items []xmlbackend.Node) ([]Story, error) {
	return schema.MaterializeAll(b, StorySchema, items)
}

func ParseComments(b xmlbackend.Backend, items []xmlbackend.Node) ([]Comment, error) {
	return schema.MaterializeAll(b, CommentSchema, items)
}

func ParseStory(b xmlbackend.Backend, item xmlbackend.Node) (*Story, error) {
	return schema.Materialize(b, StorySchema, item)
}

func ParseDeveloper(b xmlbackend.Backend, doc xmlbackend.Node) (*Developer, error) {
	return schema.Materialize(b, DeveloperSchema, doc)
}
