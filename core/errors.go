package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the agentrelay error taxonomy. Match them with
// errors.Is; concrete failures wrap one of these.
var (
	// ErrNotFound reports an unknown agent, provider or session key.
	ErrNotFound = errors.New("not found")
	// ErrValidation reports an empty agent registry or a malformed AgentSpec.
	ErrValidation = errors.New("validation failed")
	// ErrUpstream reports a network or HTTP failure reaching a provider.
	ErrUpstream = errors.New("upstream provider failure")
	// ErrMalformedResponse reports a provider payload lacking the expected reply field.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrConfiguration reports a missing credential, model or unknown provider type.
	ErrConfiguration = errors.New("configuration error")
)

// Error wraps a sentinel with the failing operation and a human readable detail.
type Error struct {
	Op     string // operation name (e.g. "AgentRegistry.Get")
	Err    error  // underlying sentinel or wrapped error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new Error.
func NewError(op string, err error, detail string) *Error {
	return &Error{Op: op, Err: err, Detail: detail}
}

// Upstream wraps cause as an ErrUpstream failure of op. Both the sentinel and
// the cause remain matchable with errors.Is / errors.As.
func Upstream(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, cause)
}
