package xmlbackend

import (
	"sort"
	"strings"
)

// path is a parsed expression of the package's path language.
type path struct {
	raw      string
	self     bool
	absolute bool
	anywhere bool
	steps    []string
}

func parsePath(raw string) (path, error) {
	p := path{raw: raw}
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return p, &PathError{Path: raw, Reason: "empty"}
	}
	if expr == "." {
		p.self = true
		return p, nil
	}

	switch {
	case strings.HasPrefix(expr, "//"):
		p.anywhere = true
		expr = expr[2:]
	case strings.HasPrefix(expr, "/"):
		p.absolute = true
		expr = expr[1:]
	}
	if expr == "" {
		return p, &PathError{Path: raw, Reason: "no step"}
	}

	for _, step := range strings.Split(expr, "/") {
		if step == "" {
			return p, &PathError{Path: raw, Reason: "empty step"}
		}
		if step != "*" && !validName(step) {
			return p, &PathError{Path: raw, Reason: "unsupported step " + step}
		}
		p.steps = append(p.steps, step)
	}
	return p, nil
}

func validName(s string) bool {
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

// navigator evaluates paths over any element tree whose nodes are comparable
// handles. The top of the tree (the node without a parent) is the document.
type navigator[N comparable] struct {
	children func(N) []N
	parent   func(N) (N, bool)
	matches  func(n N, name string) bool
}

func (nav navigator[N]) root(n N) N {
	for {
		p, ok := nav.parent(n)
		if !ok {
			return n
		}
		n = p
	}
}

func (nav navigator[N]) eval(from N, p path) []N {
	if p.self {
		return []N{from}
	}

	steps := p.steps
	var current []N
	switch {
	case p.anywhere:
		current = nav.descendants(nav.root(from), steps[0])
		steps = steps[1:]
	case p.absolute:
		current = []N{nav.root(from)}
	default:
		current = []N{from}
	}

	for _, step := range steps {
		var next []N
		for _, parent := range current {
			for _, c := range nav.children(parent) {
				if step == "*" || nav.matches(c, step) {
					next = append(next, c)
				}
			}
		}
		current = next
	}

	if p.anywhere && len(p.steps) > 1 {
		current = nav.documentOrder(nav.root(from), current)
	}
	return current
}

// descendants returns the elements below top matching step, in pre-order.
func (nav navigator[N]) descendants(top N, step string) []N {
	var matches []N
	var walk func(N)
	walk = func(n N) {
		for _, c := range nav.children(n) {
			if step == "*" || nav.matches(c, step) {
				matches = append(matches, c)
			}
			walk(c)
		}
	}
	walk(top)
	return matches
}

// documentOrder sorts nodes by their pre-order position under top.
func (nav navigator[N]) documentOrder(top N, nodes []N) []N {
	if len(nodes) < 2 {
		return nodes
	}
	pos := make(map[N]int)
	i := 0
	var walk func(N)
	walk = func(n N) {
		pos[n] = i
		i++
		for _, c := range nav.children(n) {
			walk(c)
		}
	}
	walk(top)

	sorted := append([]N(nil), nodes...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return pos[sorted[a]] < pos[sorted[b]]
	})
	return sorted
}
