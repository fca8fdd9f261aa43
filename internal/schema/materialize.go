package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

// MaterializationError reports a computed field that failed or a declared path
// the backend rejected.
type MaterializationError struct {
	Entity string
	Field  string
	Err    error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("schema: materialize %s.%s: %v", e.Entity, e.Field, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }

// Materialize populates a new T from node n. Fields whose nodes or attributes
// are missing stay unset. When a path matches several nodes the first one wins.
func Materialize[T any, PT interface {
	*T
	Entity
}](b xmlbackend.Backend, s *Schema[T], n xmlbackend.Node) (*T, error) {
	v := new(T)
	rec := PT(v).record()
	for _, bd := range s.bindings {
		val, ok, err := extract(b, bd.field, n)
		if err != nil {
			return nil, &MaterializationError{Entity: s.entity, Field: bd.field.Name, Err: err}
		}
		if !ok {
			continue
		}
		bd.assign(v, val)
		rec.Mark(bd.field.Name)
	}
	return v, nil
}

// MaterializeAll materializes every node, keeping their order.
func MaterializeAll[T any, PT interface {
	*T
	Entity
}](b xmlbackend.Backend, s *Schema[T], nodes []xmlbackend.Node) ([]T, error) {
	out := make([]T, 0, len(nodes))
	for _, n := range nodes {
		v, err := Materialize[T, PT](b, s, n)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func extract(b xmlbackend.Backend, f Field, n xmlbackend.Node) (any, bool, error) {
	switch f.Kind {
	case Attribute:
		owner := n
		if f.Scope != "." {
			found, ok, err := xmlbackend.First(b, n, f.Scope)
			if err != nil || !ok {
				return nil, false, err
			}
			owner = found
		}
		v, ok := b.Attr(owner, f.Selector)
		return v, ok, nil
	case NodeText:
		v, ok, err := xmlbackend.FirstText(b, n, f.Selector)
		return v, ok, err
	case Computed:
		if f.Compute == nil {
			return nil, false, fmt.Errorf("no compute function")
		}
		return f.Compute(b, n)
	default:
		return nil, false, fmt.Errorf("unknown field kind %v", f.Kind)
	}
}

// TextAs returns a compute function that parses the first node at path. A
// missing node leaves the field unset; a parse failure is an error.
func TextAs[V any](path string, parse func(string) (V, error)) func(xmlbackend.Backend, xmlbackend.Node) (V, bool, error) {
	return func(b xmlbackend.Backend, n xmlbackend.Node) (V, bool, error) {
		var zero V
		raw, ok, err := xmlbackend.FirstText(b, n, path)
		if err != nil || !ok {
			return zero, false, err
		}
		v, err := parse(strings.TrimSpace(raw))
		if err != nil {
			return zero, false, err
		}
		return v, true, nil
	}
}

// AttrAs is TextAs for an attribute of the item node.
func AttrAs[V any](attr string, parse func(string) (V, error)) func(xmlbackend.Backend, xmlbackend.Node) (V, bool, error) {
	return func(b xmlbackend.Backend, n xmlbackend.Node) (V, bool, error) {
		var zero V
		raw, ok := b.Attr(n, attr)
		if !ok {
			return zero, false, nil
		}
		v, err := parse(strings.TrimSpace(raw))
		if err != nil {
			return zero, false, err
		}
		return v, true, nil
	}
}

// timeLayouts are the ISO-8601 forms the service emits. Values without a zone
// are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime reads an ISO-8601 timestamp, a zoneless timestamp or a bare date.
func ParseTime(s string) (time.Time, error) {
	var first error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if first == nil {
			first = err
		}
	}
	return time.Time{}, first
}

// ParseFlag reads the service's integer booleans; "1" is true.
func ParseFlag(s string) (bool, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return false, fmt.Errorf("flag %q: %w", s, err)
	}
	return n == 1, nil
}
