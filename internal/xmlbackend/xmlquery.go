package xmlbackend

import (
	"bytes"

	"github.com/antchfx/xmlquery"
)

// xmlqueryBackend delegates to antchfx/xmlquery and its XPath engine. Paths
// are validated against the package language first so every backend rejects
// the same inputs.
type xmlqueryBackend struct{}

type xqNode struct{ n *xmlquery.Node }

func (xqNode) owner() Name { return XMLQuery }

var xmlqueryNav = navigator[*xmlquery.Node]{
	children: func(n *xmlquery.Node) []*xmlquery.Node {
		var out []*xmlquery.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode {
				out = append(out, c)
			}
		}
		return out
	},
	parent: func(n *xmlquery.Node) (*xmlquery.Node, bool) {
		return n.Parent, n.Parent != nil
	},
	matches: func(n *xmlquery.Node, name string) bool {
		return n.Data == name
	},
}

func (xmlqueryBackend) Name() Name { return XMLQuery }

func (xmlqueryBackend) Parse(raw []byte) (Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Backend: XMLQuery, Err: err}
	}
	if len(xmlqueryNav.children(doc)) == 0 {
		return nil, &ParseError{Backend: XMLQuery, Err: ErrNoRoot}
	}
	return xqNode{doc}, nil
}

func (xmlqueryBackend) Query(n Node, expr string) ([]Node, error) {
	x, ok := n.(xqNode)
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
	matches, err := xmlquery.QueryAll(x.n, p.raw)
	if err != nil {
		return nil, &PathError{Path: expr, Reason: err.Error()}
	}
	matches = xmlqueryNav.documentOrder(xmlqueryNav.root(x.n), matches)
	out := make([]Node, 0, len(matches))
	for _, m := range matches {
		if m.Type == xmlquery.ElementNode {
			out = append(out, xqNode{m})
		}
	}
	return out, nil
}

func (xmlqueryBackend) Text(n Node) string {
	x, ok := n.(xqNode)
	if !ok {
		return ""
	}
	return x.n.InnerText()
}

func (xmlqueryBackend) Attr(n Node, name string) (string, bool) {
	x, ok := n.(xqNode)
	if !ok {
		return "", false
	}
	for _, a := range x.n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
