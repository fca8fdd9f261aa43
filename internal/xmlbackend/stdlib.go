package xmlbackend

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// stdlibBackend builds its own element tree from the encoding/xml token
// stream. Declared encodings other than UTF-8 go through x/net's charset
// readers.
type stdlibBackend struct{}

type element struct {
	name    string // qualified, "prefix:local" when prefixed
	attrs   []xml.Attr
	parent  *element
	content []any // string or *element, in document order
}

func (*element) owner() Name { return Stdlib }

func (e *element) elements() []*element {
	var out []*element
	for _, c := range e.content {
		if child, ok := c.(*element); ok {
			out = append(out, child)
		}
	}
	return out
}

var stdlibNav = navigator[*element]{
	children: (*element).elements,
	parent: func(e *element) (*element, bool) {
		return e.parent, e.parent != nil
	},
	matches: func(e *element, name string) bool {
		return e.name == name
	},
}

func (stdlibBackend) Name() Name { return Stdlib }

func (stdlibBackend) Parse(raw []byte) (Node, error) {
	doc := &element{}
	current := doc
	found := false

	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel
	// RawToken keeps prefixes as written; end tags are checked here instead.
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Backend: Stdlib, Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &element{name: qualified(t.Name), attrs: t.Attr, parent: current}
			current.content = append(current.content, child)
			current = child
			found = true
		case xml.EndElement:
			if current == doc || current.name != qualified(t.Name) {
				return nil, &ParseError{Backend: Stdlib, Err: fmt.Errorf("unexpected end tag </%s>", qualified(t.Name))}
			}
			current = current.parent
		case xml.CharData:
			if current != doc {
				current.content = append(current.content, string(t))
			}
		}
	}
	if current != doc {
		return nil, &ParseError{Backend: Stdlib, Err: fmt.Errorf("unclosed element <%s>", current.name)}
	}
	if !found {
		return nil, &ParseError{Backend: Stdlib, Err: ErrNoRoot}
	}
	return doc, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func (stdlibBackend) Query(n Node, expr string) ([]Node, error) {
	e, ok := n.(*element)
	if !ok {
		return nil, ErrForeignNode
	}
	p, err := parsePath(expr)
	if err != nil {
		return nil, err
	}
	matches := stdlibNav.eval(e, p)
	out := make([]Node, len(matches))
	for i, m := range matches {
		out[i] = m
	}
	return out, nil
}

func (stdlibBackend) Text(n Node) string {
	e, ok := n.(*element)
	if !ok {
		return ""
	}
	var sb strings.Builder
	var walk func(*element)
	walk = func(e *element) {
		for _, c := range e.content {
			switch v := c.(type) {
			case string:
				sb.WriteString(v)
			case *element:
				walk(v)
			}
		}
	}
	walk(e)
	return sb.String()
}

func (stdlibBackend) Attr(n Node, name string) (string, bool) {
	e, ok := n.(*element)
	if !ok {
		return "", false
	}
	for _, a := range e.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
