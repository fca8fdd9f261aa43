package xmlbackend

import (
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// etreeBackend delegates to beevik/etree. The etree path engine walks
// descendants breadth-first, so multi-step results are put back into
// document order before they are returned.
type etreeBackend struct{}

type etNode struct{ e *etree.Element }

func (etNode) owner() Name { return Etree }

var etreeNav = navigator[*etree.Element]{
	children: (*etree.Element).ChildElements,
	parent: func(e *etree.Element) (*etree.Element, bool) {
		p := e.Parent()
		return p, p != nil
	},
	matches: func(e *etree.Element, name string) bool {
		return e.Tag == name
	},
}

func (etreeBackend) Name() Name { return Etree }

func (etreeBackend) Parse(raw []byte) (Node, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, &ParseError{Backend: Etree, Err: err}
	}
	if doc.Root() == nil {
		return nil, &ParseError{Backend: Etree, Err: ErrNoRoot}
	}
	return etNode{&doc.Element}, nil
}

func (etreeBackend) Query(n Node, expr string) ([]Node, error) {
	x, ok := n.(etNode)
	if !ok {
		return nil, ErrForeignNode
	}
	p, err := parsePath(expr)
	if err != nil {
		return nil, err
	}
	if p.self {
		return []Node{x}, nil
	}
	compiled, err := etree.CompilePath(strings.TrimSpace(p.raw))
	if err != nil {
		return nil, &PathError{Path: expr, Reason: err.Error()}
	}
	matches := x.e.FindElementsPath(compiled)
	matches = unprefixedSteps(matches, p.steps)
	matches = etreeNav.documentOrder(etreeNav.root(x.e), matches)
	out := make([]Node, len(matches))
	for i, m := range matches {
		out[i] = etNode{m}
	}
	return out, nil
}

func (etreeBackend) Text(n Node) string {
	x, ok := n.(etNode)
	if !ok {
		return ""
	}
	var sb strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				sb.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(x.e)
	return sb.String()
}

func (etreeBackend) Attr(n Node, name string) (string, bool) {
	x, ok := n.(etNode)
	if !ok {
		return "", false
	}
	// SelectAttr would treat "p:name" as a prefixed lookup.
	if strings.Contains(name, ":") {
		return "", false
	}
	if a := x.e.SelectAttr(name); a != nil {
		return a.Value, true
	}
	return "", false
}

// unprefixedSteps drops matches that reached a named step through a prefixed
// element. etree lets "item" match "f:item"; the path language does not.
func unprefixedSteps(matches []*etree.Element, steps []string) []*etree.Element {
	out := matches[:0]
next:
	for _, m := range matches {
		e := m
		for i := len(steps) - 1; i >= 0 && e != nil; i-- {
			if steps[i] != "*" && e.Space != "" {
				continue next
			}
			e = e.Parent()
		}
		out = append(out, m)
	}
	return out
}
