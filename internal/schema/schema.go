// Package schema binds XML fragments to typed entities. A Schema is an ordered
// list of field descriptors built once per entity type; Materialize walks it
// against a parsed node through an xmlbackend.Backend.
package schema

import (
	"fmt"
	"slices"

	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

// Kind tells the materializer how a field is extracted.
type Kind int

const (
	// Attribute reads Selector from the node found at Scope.
	Attribute Kind = iota
	// NodeText reads the text of the first node matching Selector.
	NodeText
	// Computed hands the whole node to a function.
	Computed
)

func (k Kind) String() string {
	switch k {
	case Attribute:
		return "attribute"
	case NodeText:
		return "text"
	case Computed:
		return "computed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ComputeFunc derives a field value from the item node. ok=false leaves the
// field unset; an error aborts materialization.
type ComputeFunc func(b xmlbackend.Backend, n xmlbackend.Node) (value any, ok bool, err error)

// Field is an immutable field descriptor.
type Field struct {
	Name     string
	Kind     Kind
	Selector string
	Scope    string
	Compute  ComputeFunc
}

type binding[T any] struct {
	field  Field
	assign func(*T, any)
}

// Builder collects field declarations for entity type T.
type Builder[T any] struct {
	entity   string
	bindings []binding[T]
}

// NewBuilder starts a schema for the named entity.
func NewBuilder[T any](entity string) *Builder[T] {
	return &Builder[T]{entity: entity}
}

func (b *Builder[T]) declare(f Field, assign func(*T, any)) *Builder[T] {
	for i := range b.bindings {
		if b.bindings[i].field.Name == f.Name {
			b.bindings[i] = binding[T]{field: f, assign: assign}
			return b
		}
	}
	b.bindings = append(b.bindings, binding[T]{field: f, assign: assign})
	return b
}

// Attribute declares a field read from attribute attr of the first node at
// scope. Scope "." (or "") is the item node itself.
func (b *Builder[T]) Attribute(name, attr, scope string, set func(*T, string)) *Builder[T] {
	if scope == "" {
		scope = "."
	}
	return b.declare(Field{Name: name, Kind: Attribute, Selector: attr, Scope: scope},
		func(v *T, x any) { set(v, x.(string)) })
}

// Text declares a field holding the text of the first node matching path.
func (b *Builder[T]) Text(name, path string, set func(*T, string)) *Builder[T] {
	return b.declare(Field{Name: name, Kind: NodeText, Selector: path},
		func(v *T, x any) { set(v, x.(string)) })
}

// Compute declares a computed field of type V.
func Compute[T, V any](b *Builder[T], name string, fn func(xmlbackend.Backend, xmlbackend.Node) (V, bool, error), set func(*T, V)) *Builder[T] {
	compute := func(be xmlbackend.Backend, n xmlbackend.Node) (any, bool, error) {
		return fn(be, n)
	}
	return b.declare(Field{Name: name, Kind: Computed, Compute: compute},
		func(v *T, x any) { set(v, x.(V)) })
}

// Build freezes the declarations. The builder may keep being used; the
// returned schema does not observe later changes.
func (b *Builder[T]) Build() *Schema[T] {
	return &Schema[T]{entity: b.entity, bindings: slices.Clone(b.bindings)}
}

// Schema is the frozen, ordered field list of one entity type. It is safe to
// share between goroutines.
type Schema[T any] struct {
	entity   string
	bindings []binding[T]
}

// Entity returns the entity name used in errors.
func (s *Schema[T]) Entity() string { return s.entity }

// Fields returns the descriptors in declaration order.
func (s *Schema[T]) Fields() []Field {
	out := make([]Field, len(s.bindings))
	for i, b := range s.bindings {
		out[i] = b.field
	}
	return out
}

// Field looks a descriptor up by name.
func (s *Schema[T]) Field(name string) (Field, bool) {
	for _, b := range s.bindings {
		if b.field.Name == name {
			return b.field, true
		}
	}
	return Field{}, false
}

// Record tracks which schema fields of an entity hold a value. Entities embed
// it; the zero value has nothing populated.
type Record struct {
	populated []string
}

func (r *Record) record() *Record { return r }

// Has reports whether field name was populated.
func (r *Record) Has(name string) bool {
	return slices.Contains(r.populated, name)
}

// Populated lists the populated field names in the order they were set.
func (r *Record) Populated() []string {
	return slices.Clone(r.populated)
}

// Mark flags name as populated. Constructors for outgoing entities use it.
func (r *Record) Mark(name string) {
	if !r.Has(name) {
		r.populated = append(r.populated, name)
	}
}

// Entity is satisfied by any type embedding Record.
type Entity interface {
	record() *Record
}
