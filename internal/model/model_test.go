package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/fmylife/internal/envelope"
	"github.com/alphabot-ai/fmylife/internal/schema"
	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

const storyDoc = `<?xml version="1.0" encoding="UTF-8"?>
<root>
  <code>1</code>
  <items>
    <item id="42">
      <author>Anonymous</author>
      <category>love</category>
      <date>2009-05-08T10:15:00Z</date>
      <agree>1203</agree>
      <deserved>87</deserved>
      <comments>2</comments>
      <text>FML</text>
      <comments_flag>1</comments_flag>
    </item>
  </items>
  <comments>
    <comment id="c1" pub_id="1" staff="1">
      <author url="http://example.com/ann">ann</author>
      <date>2009-05-08T11:00:00Z</date>
      <text>ouch</text>
    </comment>
    <comment id="c2" pub_id="2">
      <author>bob</author>
      <text>FYL</text>
    </comment>
  </comments>
</root>`

func eachBackend(t *testing.T, fn func(t *testing.T, b xmlbackend.Backend)) {
	t.Helper()
	for _, name := range xmlbackend.Names() {
		b, err := xmlbackend.New(name)
		require.NoError(t, err)
		t.Run(string(name), func(t *testing.T) { fn(t, b) })
	}
}

func parseStoryDoc(t *testing.T, b xmlbackend.Backend) (*Story, []Comment) {
	t.Helper()
	doc, err := b.Parse([]byte(storyDoc))
	require.NoError(t, err)
	env, err := envelope.Interpret(b, doc)
	require.NoError(t, err)
	require.Len(t, env.Items, 1)

	story, err := ParseStory(b, env.Items[0])
	require.NoError(t, err)
	nodes, err := envelope.Comments(b, doc)
	require.NoError(t, err)
	comments, err := ParseComments(b, nodes)
	require.NoError(t, err)
	return story, comments
}

func TestStoryRoundTrip(t *testing.T) {
	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		story, _ := parseStoryDoc(t, b)
		assert.Equal(t, "42", story.ID)
		assert.Equal(t, "Anonymous", story.Author)
		assert.Equal(t, Love, story.Category)
		assert.Equal(t, "FML", story.Text)
		assert.Equal(t, time.Date(2009, 5, 8, 10, 15, 0, 0, time.UTC), story.Date)
		assert.Equal(t, 1203, story.Agreed)
		assert.Equal(t, 87, story.Deserved)
		assert.Equal(t, 2, story.NumComments)
		assert.Equal(t, "1", story.CommentsFlag)
		assert.Nil(t, story.Comments)
	})
}

func TestBackendsMaterializeIdentically(t *testing.T) {
	ref, err := xmlbackend.New(xmlbackend.Stdlib)
	require.NoError(t, err)
	wantStory, wantComments := parseStoryDoc(t, ref)

	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		story, comments := parseStoryDoc(t, b)
		assert.Equal(t, wantStory, story)
		assert.Equal(t, wantComments, comments)
	})
}

func TestCommentFields(t *testing.T) {
	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		_, comments := parseStoryDoc(t, b)
		require.Len(t, comments, 2)

		first := comments[0]
		assert.Equal(t, "c1", first.ID)
		assert.Equal(t, "1", first.Order)
		assert.True(t, first.Staff)
		assert.Equal(t, "ann", first.Author)
		assert.Equal(t, "http://example.com/ann", first.AuthorURL)
		assert.Equal(t, "ouch", first.Text)
		assert.Equal(t, time.Date(2009, 5, 8, 11, 0, 0, 0, time.UTC), first.Date)

		second := comments[1]
		assert.Equal(t, "bob", second.Author)
		assert.False(t, second.Staff)
		for _, name := range []string{"staff", "author_url", "date"} {
			assert.False(t, second.Has(name), name)
		}
	})
}

func TestStoryMissingOptionalFields(t *testing.T) {
	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		doc, err := b.Parse([]byte(`<root><items><item><text>short</text><agree/></item></items></root>`))
		require.NoError(t, err)
		items, err := b.Query(doc, "//items/item")
		require.NoError(t, err)

		story, err := ParseStory(b, items[0])
		require.NoError(t, err)
		assert.Equal(t, []string{"text"}, story.Populated())
		assert.True(t, story.Date.IsZero())
	})
}

func TestStoryMalformedDate(t *testing.T) {
	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		doc, err := b.Parse([]byte(`<root><items><item id="1"><date>last tuesday</date></item></items></root>`))
		require.NoError(t, err)
		items, err := b.Query(doc, "//items/item")
		require.NoError(t, err)

		_, err = ParseStory(b, items[0])
		var merr *schema.MaterializationError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, "story", merr.Entity)
		assert.Equal(t, "date", merr.Field)
	})
}

func TestStoryNonNumericCounter(t *testing.T) {
	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		doc, err := b.Parse([]byte(`<root><items><item id="1"><agree>lots</agree></item></items></root>`))
		require.NoError(t, err)
		items, err := b.Query(doc, "//items/item")
		require.NoError(t, err)

		_, err = ParseStory(b, items[0])
		var merr *schema.MaterializationError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, "agreed", merr.Field)
	})
}

func TestStoryDateForms(t *testing.T) {
	cases := map[string]time.Time{
		"2009-06-16T13:38:00Z":      time.Date(2009, 6, 16, 13, 38, 0, 0, time.UTC),
		"2009-06-16T13:38:00.5Z":    time.Date(2009, 6, 16, 13, 38, 0, 500_000_000, time.UTC),
		"2009-06-16T13:38:00+02:00": time.Date(2009, 6, 16, 11, 38, 0, 0, time.UTC),
		"2009-06-16T13:38:00":       time.Date(2009, 6, 16, 13, 38, 0, 0, time.UTC),
		"2009-06-16":                time.Date(2009, 6, 16, 0, 0, 0, 0, time.UTC),
	}
	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		for raw, want := range cases {
			doc, err := b.Parse([]byte(`<root><items><item id="1"><date>` + raw + `</date></item></items></root>`))
			require.NoError(t, err)
			items, err := b.Query(doc, "//items/item")
			require.NoError(t, err)

			story, err := ParseStory(b, items[0])
			require.NoError(t, err, raw)
			assert.True(t, want.Equal(story.Date), "%s: got %s", raw, story.Date)
		}
	})
}

func TestDeveloper(t *testing.T) {
	const raw = `<root><code>1</code>
<infos><name>Jane</name><project>fml-cli</project><description>terminal FML</description>
<url>http://example.com</url><mail>jane@example.com</mail></infos>
<actions><last24h>12</last24h><alltime>3400</alltime></actions>
<tokens>5</tokens></root>`

	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		doc, err := b.Parse([]byte(raw))
		require.NoError(t, err)
		dev, err := ParseDeveloper(b, doc)
		require.NoError(t, err)
		assert.Equal(t, "Jane", dev.Name)
		assert.Equal(t, "fml-cli", dev.Project)
		assert.Equal(t, "terminal FML", dev.Description)
		assert.Equal(t, "http://example.com", dev.URL)
		assert.Equal(t, "jane@example.com", dev.Email)
		assert.Equal(t, 12, dev.Last24h)
		assert.Equal(t, 3400, dev.Alltime)
		assert.Equal(t, 5, dev.Tokens)
	})
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"love", Love, true},
		{"misc", Miscellaneous, true},
		{"MISC", Miscellaneous, true},
		{"Miscellaneous", Miscellaneous, true},
		{"randomisc", Miscellaneous, true},
		{"Love", "", false},
		{"bogus", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseCategory(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestEnums(t *testing.T) {
	assert.True(t, Agree.Valid())
	assert.True(t, Deserved.Valid())
	assert.False(t, VoteType("maybe").Valid())

	assert.True(t, Approve.Valid())
	assert.False(t, ModerationType("perhaps").Valid())

	for _, i := range []Interval{AllTime, Day, Week, Month} {
		assert.True(t, i.Valid(), string(i))
	}
	assert.False(t, Interval("year").Valid())
}

func TestNewEntities(t *testing.T) {
	s := NewStory("Anonymous", Work, "my boss. FML")
	assert.Equal(t, []string{"author", "category", "text"}, s.Populated())
	s.Text = "edited. FML"
	assert.Equal(t, "edited. FML", s.Text)

	c := NewComment("same", "")
	assert.True(t, c.Has("text"))
	assert.False(t, c.Has("author_url"))
	assert.True(t, NewComment("same", "http://x").Has("author_url"))
}

func TestStoryRef(t *testing.T) {
	id, ok := ByID("42").ID()
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	id, ok = ByStory(&Story{ID: "7"}).ID()
	assert.True(t, ok)
	assert.Equal(t, "7", id)

	_, ok = ByStory(NewStory("a", Love, "b")).ID()
	assert.False(t, ok)
	_, ok = StoryRef{}.ID()
	assert.False(t, ok)
}
