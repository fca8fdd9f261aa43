// Package xmlbackend hides the concrete XML library behind a four-operation
// contract: parse a document, query a node with a path, read a node's text and
// read one of its attributes.
//
// Every implementation accepts the same small path language:
//
//	.        the node itself
//	a        child elements named a
//	a/b      children b of children a
//	/a/b     absolute, starting at the document
//	//a/b    elements a anywhere in the document, then their children b
//	*        any element
//
// Names are matched exactly, case included. Namespace prefixes are not part of
// the language: a step containing ":" is rejected, and Attr looks attributes up
// by local name.
//
// Query results are always returned in document order.
package xmlbackend

import (
	"errors"
	"fmt"
	"sync"
)

// Name identifies a backend implementation.
type Name string

const (
	Stdlib   Name = "stdlib"
	XMLQuery Name = "xmlquery"
	Etree    Name = "etree"
	NetHTML  Name = "nethtml"
)

// Names returns every supported backend name.
func Names() []Name {
	return []Name{Stdlib, XMLQuery, Etree, NetHTML}
}

// Node is an opaque handle to a document or element. A Node is only
// meaningful to the backend that produced it.
type Node interface {
	owner() Name
}

// Backend is the uniform XML contract used by the rest of the module.
// Implementations hold no mutable state and are safe for concurrent use.
type Backend interface {
	Name() Name
	Parse(raw []byte) (Node, error)
	Query(n Node, path string) ([]Node, error)
	Text(n Node) string
	Attr(n Node, name string) (string, bool)
}

var (
	// ErrForeignNode is returned when a node is handed to a backend that did
	// not produce it.
	ErrForeignNode = errors.New("xmlbackend: node belongs to another backend")

	// ErrNoRoot is wrapped by ParseError when the input holds no element.
	ErrNoRoot = errors.New("no root element")
)

// ParseError reports input that a backend could not turn into a document.
type ParseError struct {
	Backend Name
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("xmlbackend: %s: parse: %v", e.Backend, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnsupportedBackendError reports a backend name outside Names().
type UnsupportedBackendError struct {
	Name string
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("xmlbackend: unsupported backend %q", e.Name)
}

// PathError reports a path outside the supported path language.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("xmlbackend: invalid path %q: %s", e.Path, e.Reason)
}

var factories = map[Name]func() Backend{
	Stdlib:   func() Backend { return stdlibBackend{} },
	XMLQuery: func() Backend { return xmlqueryBackend{} },
	Etree:    func() Backend { return etreeBackend{} },
	NetHTML:  func() Backend { return nethtmlBackend{} },
}

// New returns the backend registered under name.
func New(name Name) (Backend, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, &UnsupportedBackendError{Name: string(name)}
	}
	return factory(), nil
}

// ParseName validates a backend name read from configuration.
func ParseName(name string) (Name, error) {
	n := Name(name)
	if _, ok := factories[n]; !ok {
		return "", &UnsupportedBackendError{Name: name}
	}
	return n, nil
}

var (
	mu     sync.RWMutex
	active Backend = stdlibBackend{}
)

// Select changes the process-wide default backend. An unknown name leaves the
// previous selection in place. Sessions capture their backend when they are
// created, so Select only affects sessions built afterwards.
func Select(name Name) error {
	b, err := New(name)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	active = b
	return nil
}

// Default returns the process-wide default backend.
func Default() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// First returns the first match of path under n.
func First(b Backend, n Node, path string) (Node, bool, error) {
	nodes, err := b.Query(n, path)
	if err != nil {
		return nil, false, err
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}
	return nodes[0], true, nil
}

// FirstText returns the text of the first match of path under n.
func FirstText(b Backend, n Node, path string) (string, bool, error) {
	node, ok, err := First(b, n, path)
	if err != nil || !ok {
		return "", false, err
	}
	return b.Text(node), true, nil
}
