package xmlbackend

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// nethtmlBackend uses the golang.org/x/net/html tokenizer as its lexer and
// assembles *html.Node trees itself, so no HTML tree-construction rules
// (implied html/body, void elements) are applied. Element and attribute names
// keep the case they have in the document, and a declared encoding is decoded
// to UTF-8 first.
type nethtmlBackend struct{}

type htNode struct{ n *html.Node }

func (htNode) owner() Name { return NetHTML }

var nethtmlNav = navigator[*html.Node]{
	children: func(n *html.Node) []*html.Node {
		var out []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, c)
			}
		}
		return out
	},
	parent: func(n *html.Node) (*html.Node, bool) {
		return n.Parent, n.Parent != nil
	},
	matches: func(n *html.Node, name string) bool {
		return n.Data == name
	},
}

func (nethtmlBackend) Name() Name { return NetHTML }

func (nethtmlBackend) Parse(raw []byte) (Node, error) {
	doc := &html.Node{Type: html.DocumentNode}
	current := doc
	found := false

	var r io.Reader = bytes.NewReader(raw)
	if label := declaredEncoding(raw); label != "" {
		decoded, err := charset.NewReaderLabel(label, r)
		if err != nil {
			return nil, &ParseError{Backend: NetHTML, Err: err}
		}
		r = decoded
	}

	z := html.NewTokenizer(r)
	z.AllowCDATA(true)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return nil, &ParseError{Backend: NetHTML, Err: z.Err()}
		}

		// Token lower-cases names in place, so keep the raw text first.
		rawTag := append([]byte(nil), z.Raw()...)
		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			restoreCase(&tok, rawTag)
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			el := &html.Node{
				Type:     html.ElementNode,
				Data:     tok.Data,
				DataAtom: tok.DataAtom,
				Attr:     tok.Attr,
			}
			current.AppendChild(el)
			found = true
			z.NextIsNotRawText()
			if tt == html.StartTagToken {
				current = el
			}
		case html.EndTagToken:
			if current == doc || current.Data != tok.Data {
				return nil, &ParseError{Backend: NetHTML, Err: fmt.Errorf("unexpected end tag </%s>", tok.Data)}
			}
			current = current.Parent
		case html.TextToken:
			if current != doc {
				current.AppendChild(&html.Node{Type: html.TextNode, Data: tok.Data})
			}
		}
	}

	if current != doc {
		return nil, &ParseError{Backend: NetHTML, Err: fmt.Errorf("unclosed element <%s>", current.Data)}
	}
	if !found {
		return nil, &ParseError{Backend: NetHTML, Err: ErrNoRoot}
	}
	return htNode{doc}, nil
}

func (nethtmlBackend) Query(n Node, expr string) ([]Node, error) {
	x, ok := n.(htNode)
	if !ok {
		return nil, ErrForeignNode
	}
	p, err := parsePath(expr)
	if err != nil {
		return nil, err
	}
	matches := nethtmlNav.eval(x.n, p)
	out := make([]Node, len(matches))
	for i, m := range matches {
		out[i] = htNode{m}
	}
	return out, nil
}

func (nethtmlBackend) Text(n Node) string {
	x, ok := n.(htNode)
	if !ok {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(c.Data)
			case html.ElementNode:
				walk(c)
			}
		}
	}
	walk(x.n)
	return sb.String()
}

func (nethtmlBackend) Attr(n Node, name string) (string, bool) {
	x, ok := n.(htNode)
	if !ok {
		return "", false
	}
	if strings.Contains(name, ":") {
		return "", false
	}
	for _, a := range x.n.Attr {
		if localName(a.Key) == name {
			return a.Val, true
		}
	}
	return "", false
}

func localName(qualified string) string {
	if i := strings.LastIndexByte(qualified, ':'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// restoreCase puts back the tag and attribute names as written in raw.
func restoreCase(tok *html.Token, raw []byte) {
	raw = bytes.TrimPrefix(bytes.TrimPrefix(raw, []byte("<")), []byte("/"))
	name, rest := scanName(raw)
	if !strings.EqualFold(name, tok.Data) {
		return
	}
	tok.Data = name

	var keys []string
	for {
		rest = bytes.TrimLeft(rest, " \t\r\n\f/")
		if len(rest) == 0 || rest[0] == '>' {
			break
		}
		var key string
		key, rest = scanName(rest)
		if key == "" {
			// "=" with no key; the tokenizer folds it into the next key.
			return
		}
		keys = append(keys, key)
		rest = bytes.TrimLeft(rest, " \t\r\n\f")
		if len(rest) == 0 || rest[0] != '=' {
			continue
		}
		rest = bytes.TrimLeft(rest[1:], " \t\r\n\f")
		if len(rest) > 0 && (rest[0] == '"' || rest[0] == '\'') {
			end := bytes.IndexByte(rest[1:], rest[0])
			if end < 0 {
				return
			}
			rest = rest[end+2:]
			continue
		}
		end := bytes.IndexAny(rest, " \t\r\n\f>")
		if end < 0 {
			end = len(rest)
		}
		rest = rest[end:]
	}
	if len(keys) != len(tok.Attr) {
		return
	}
	for i, key := range keys {
		if strings.EqualFold(key, tok.Attr[i].Key) {
			tok.Attr[i].Key = key
		}
	}
}

// scanName reads a tag or attribute name the way the tokenizer delimits it.
func scanName(b []byte) (string, []byte) {
	end := bytes.IndexAny(b, " \t\r\n\f/=>")
	if end < 0 {
		end = len(b)
	}
	return string(b[:end]), b[end:]
}

// declaredEncoding returns the encoding named in an XML declaration.
func declaredEncoding(raw []byte) string {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	if !bytes.HasPrefix(raw, []byte("<?xml")) {
		return ""
	}
	end := bytes.Index(raw, []byte("?>"))
	if end < 0 {
		return ""
	}
	decl := string(raw[:end])
	i := strings.Index(decl, "encoding")
	if i < 0 {
		return ""
	}
	rest := strings.TrimLeft(decl[i+len("encoding"):], " \t\r\n")
	if !strings.HasPrefix(rest, "=") {
		return ""
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
		return ""
	}
	q := rest[0]
	rest = rest[1:]
	j := strings.IndexByte(rest, q)
	if j < 0 {
		return ""
	}
	return rest[:j]
}
