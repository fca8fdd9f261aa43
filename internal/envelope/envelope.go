// Package envelope interprets the status wrapper every service response
// carries: a numeric code, an optional error text and the payload items.
package envelope

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

// Code is the envelope status.
type Code int

const (
	Failure Code = 0
	Success Code = 1
)

const (
	codePath     = "//code"
	errorPath    = "//error"
	errorsPath   = "//errors"
	itemsPath    = "//items/item"
	commentsPath = "//comments/comment"
	tokenPath    = "//token"
)

// ErrMissingCode is wrapped by ProtocolError when a response has no code node.
var ErrMissingCode = errors.New("missing code")

// ProtocolError reports a response that does not follow the envelope format.
type ProtocolError struct {
	Raw string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("envelope: unexpected code %q: %v", e.Raw, e.Err)
	}
	return fmt.Sprintf("envelope: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Envelope is the interpreted response wrapper. It is not retained past the
// call that produced it.
type Envelope struct {
	Code  Code
	Error string
	Items []xmlbackend.Node
}

// OK reports whether the service accepted the call.
func (e Envelope) OK() bool { return e.Code == Success }

// Interpret reads the envelope of a parsed response document.
func Interpret(b xmlbackend.Backend, doc xmlbackend.Node) (Envelope, error) {
	raw, ok, err := xmlbackend.FirstText(b, doc, codePath)
	if err != nil {
		return Envelope{}, err
	}
	if !ok {
		return Envelope{}, &ProtocolError{Err: ErrMissingCode}
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return Envelope{}, &ProtocolError{Raw: raw, Err: err}
	}
	code := Code(n)
	if code != Failure && code != Success {
		return Envelope{}, &ProtocolError{Raw: raw, Err: errors.New("not 0 or 1")}
	}

	env := Envelope{Code: code}
	if env.Error, err = errorText(b, doc); err != nil {
		return Envelope{}, err
	}
	if env.Items, err = b.Query(doc, itemsPath); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func errorText(b xmlbackend.Backend, doc xmlbackend.Node) (string, error) {
	for _, p := range []string{errorPath, errorsPath} {
		text, ok, err := xmlbackend.FirstText(b, doc, p)
		if err != nil {
			return "", err
		}
		if ok {
			return text, nil
		}
	}
	return "", nil
}

// Comments returns the comment nodes of a comment-bearing response.
func Comments(b xmlbackend.Backend, doc xmlbackend.Node) ([]xmlbackend.Node, error) {
	return b.Query(doc, commentsPath)
}

// Token returns the session token of a login response.
func Token(b xmlbackend.Backend, doc xmlbackend.Node) (string, bool, error) {
	text, ok, err := xmlbackend.FirstText(b, doc, tokenPath)
	if err != nil || !ok {
		return "", false, err
	}
	text = strings.TrimSpace(text)
	return text, text != "", nil
}
