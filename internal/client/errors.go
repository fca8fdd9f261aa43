package client

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is wrapped by AuthenticationError when an operation that
// needs a session is called without one.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthenticationError reports a missing session or a rejected login/logout.
type AuthenticationError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fmylife: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fmylife: %s: authentication failed: %s", e.Op, e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RetrievalError carries the service's message for a failed read.
type RetrievalError struct {
	Op      string
	Message string
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("fmylife: %s: error retrieving: %s", e.Op, e.Message)
}

// VotingError carries the service's message for a failed write: submit, vote,
// comment or moderate.
type VotingError struct {
	Op      string
	ID      string
	Message string
}

func (e *VotingError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("fmylife: %s #%s: %s", e.Op, e.ID, e.Message)
	}
	return fmt.Sprintf("fmylife: %s: %s", e.Op, e.Message)
}

// InvalidCategoryError reports a category outside the fixed set.
type InvalidCategoryError struct {
	Op       string
	Category string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("fmylife: %s: invalid category %q", e.Op, e.Category)
}

// ArgumentError reports a malformed argument caught before any request.
type ArgumentError struct {
	Op    string
	Arg   string
	Value string
	Want  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("fmylife: %s: invalid %s %q, want %s", e.Op, e.Arg, e.Value, e.Want)
}

// StoryTooLongError reports a submission over MaxStoryLength characters.
type StoryTooLongError struct {
	Length int
	Max    int
}

func (e *StoryTooLongError) Error() string {
	return fmt.Sprintf("fmylife: submit: story is %d characters, max %d", e.Length, e.Max)
}

// TransportError reports a non-2xx HTTP response.
type TransportError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fmylife: %s %s failed (%d): %s", e.Method, e.Path, e.Status, e.Body)
}

// IsAuthentication reports whether err is an AuthenticationError.
func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsRetrieval reports whether err is a RetrievalError.
func IsRetrieval(err error) bool {
	var target *RetrievalError
	return errors.As(err, &target)
}

// IsVoting reports whether err is a VotingError.
func IsVoting(err error) bool {
	var target *VotingError
	return errors.As(err, &target)
}

// IsValidation reports whether err was raised client-side before any request
// was sent because an argument was rejected.
func IsValidation(err error) bool {
	var (
		category *InvalidCategoryError
		argument *ArgumentError
		tooLong  *StoryTooLongError
	)
	return errors.As(err, &category) || errors.As(err, &argument) || errors.As(err, &tooLong)
}
