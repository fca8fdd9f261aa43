package envelope

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

func interpret(t *testing.T, b xmlbackend.Backend, raw string) (Envelope, error) {
	t.Helper()
	doc, err := b.Parse([]byte(raw))
	require.NoError(t, err)
	return Interpret(b, doc)
}

func eachBackend(t *testing.T, fn func(t *testing.T, b xmlbackend.Backend)) {
	t.Helper()
	for _, name := range xmlbackend.Names() {
		b, err := xmlbackend.New(name)
		require.NoError(t, err)
		t.Run(string(name), func(t *testing.T) { fn(t, b) })
	}
}

func TestSuccessWithItems(t *testing.T) {
	const raw = `<?xml version="1.0" encoding="UTF-8"?>
<root><code>1</code><pubdate>2009-05-08</pubdate>
<items><item id="3"/><item id="1"/><item id="2"/></items></root>`

	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		env, err := interpret(t, b, raw)
		require.NoError(t, err)
		assert.True(t, env.OK())
		assert.Equal(t, Success, env.Code)
		assert.Equal(t, "", env.Error)
		require.Len(t, env.Items, 3)

		var ids []string
		for _, item := range env.Items {
			id, _ := b.Attr(item, "id")
			ids = append(ids, id)
		}
		assert.Equal(t, []string{"3", "1", "2"}, ids)
	})
}

func TestFailureText(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want string
	}{
		"error": {
			raw:  `<root><code>0</code><error>Invalid key</error></root>`,
			want: "Invalid key",
		},
		"errors fallback": {
			raw:  `<root><code>0</code><errors>Story not found</errors></root>`,
			want: "Story not found",
		},
		"error preferred": {
			raw:  `<root><code>0</code><errors><error>first</error></errors><error>second</error></root>`,
			want: "first",
		},
		"no text": {
			raw:  `<root><code>0</code></root>`,
			want: "",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
				env, err := interpret(t, b, tc.raw)
				require.NoError(t, err)
				assert.False(t, env.OK())
				assert.Equal(t, tc.want, env.Error)
				assert.Empty(t, env.Items)
			})
		})
	}
}

func TestProtocolErrors(t *testing.T) {
	cases := map[string]string{
		"missing":      `<root><items/></root>`,
		"non-numeric":  `<root><code>yes</code></root>`,
		"out of range": `<root><code>2</code></root>`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
				_, err := interpret(t, b, raw)
				var perr *ProtocolError
				require.ErrorAs(t, err, &perr)
			})
		})
	}

	_, err := interpret(t, xmlbackend.Default(), `<root/>`)
	assert.True(t, errors.Is(err, ErrMissingCode))

	_, err = interpret(t, xmlbackend.Default(), `<root><code>x</code></root>`)
	var numErr *strconv.NumError
	assert.ErrorAs(t, err, &numErr)
}

func TestCodeTolerantOfWhitespace(t *testing.T) {
	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		env, err := interpret(t, b, "<root><code>\n 1 \n</code></root>")
		require.NoError(t, err)
		assert.True(t, env.OK())
	})
}

func TestCommentsAndToken(t *testing.T) {
	const raw = `<root><code>1</code>
<items><item id="9"><text>FML</text></item></items>
<comments><comment id="a"/><comment id="b"/></comments>
<token>abc123</token></root>`

	eachBackend(t, func(t *testing.T, b xmlbackend.Backend) {
		doc, err := b.Parse([]byte(raw))
		require.NoError(t, err)

		comments, err := Comments(b, doc)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		id, _ := b.Attr(comments[1], "id")
		assert.Equal(t, "b", id)

		token, ok, err := Token(b, doc)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "abc123", token)
	})

	doc, err := xmlbackend.Default().Parse([]byte(`<root><code>1</code><token/></root>`))
	require.NoError(t, err)
	_, ok, err := Token(xmlbackend.Default(), doc)
	require.NoError(t, err)
	assert.False(t, ok)
}
