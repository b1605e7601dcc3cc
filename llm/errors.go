// Error taxonomy for completion streams.
//
// Every vendor error is classified exactly once, at the adapter boundary,
// into one of the kinds below. Downstream code (the lifecycle engine) never
// reclassifies; its only decision is retry-or-surface based on Retryable
// plus the attempt budget.

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the classification of a completion error.
type ErrorKind int

const (
	// ErrTransientNetwork covers connection resets, timeouts, and 5xx
	// responses. Retryable.
	ErrTransientNetwork ErrorKind = iota
	// ErrRateLimited is a 429, possibly with an explicit retry-after hint.
	// Retryable.
	ErrRateLimited
	// ErrAuthInvalid is a rejected credential. Fatal.
	ErrAuthInvalid
	// ErrModelUnavailable means the model id is unknown to the vendor or
	// lacks a required capability. Fatal.
	ErrModelUnavailable
	// ErrMalformedResponse means the vendor payload could not be decoded or
	// the request contract was violated. Fatal: retrying would likely
	// reproduce the same payload.
	ErrMalformedResponse
	// ErrToolCallInvalid means one tool call's arguments failed to parse or
	// validate. Fatal for that call id only; sibling calls and text output
	// are unaffected.
	ErrToolCallInvalid
	// ErrCancelled is the terminal status of a caller-cancelled request.
	ErrCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransientNetwork:
		return "transient_network"
	case ErrRateLimited:
		return "rate_limited"
	case ErrAuthInvalid:
		return "auth_invalid"
	case ErrModelUnavailable:
		return "model_unavailable"
	case ErrMalformedResponse:
		return "malformed_response"
	case ErrToolCallInvalid:
		return "tool_call_invalid"
	case ErrCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// retryable reports whether the kind is retryable by default.
func (k ErrorKind) retryable() bool {
	return k == ErrTransientNetwork || k == ErrRateLimited
}

// Error is a classified completion error. It doubles as a stream Event so a
// terminal failure travels the same channel as content.
type Error struct {
	Kind     ErrorKind
	Provider string

	// Retryable starts as the kind's default and is cleared by the engine
	// when the attempt budget is exhausted or delivered content makes a
	// replay unsafe.
	Retryable bool

	// RetryAfter is the vendor-supplied delay hint, if any. Only meaningful
	// for ErrRateLimited.
	RetryAfter time.Duration

	// ToolCallID scopes an ErrToolCallInvalid to a single call.
	ToolCallID string

	Err error
}

// NewError classifies err under kind for the given provider.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{
		Kind:      kind,
		Provider:  provider,
		Retryable: kind.retryable(),
		Err:       err,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal returns a copy of e with the retryable flag cleared. Used when a
// retryable error must be surfaced because the budget ran out or content
// from the failing attempt was already delivered.
func (e *Error) Fatal() *Error {
	c := *e
	c.Retryable = false
	return &c
}

// Classify wraps an arbitrary error from a vendor SDK. Context
// cancellation maps to ErrCancelled; already-classified errors pass
// through; everything else is treated as transient network failure, the
// only honest default at an I/O boundary.
func Classify(provider string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(provider, ErrCancelled, err)
	}
	return NewError(provider, ErrTransientNetwork, err)
}

// ClassifyHTTPStatus maps a vendor HTTP status to the taxonomy.
// retryAfter carries the Retry-After hint when the vendor provided one.
func ClassifyHTTPStatus(provider string, status int, retryAfter time.Duration, err error) *Error {
	var kind ErrorKind
	switch {
	case status == 429:
		kind = ErrRateLimited
	case status == 401 || status == 403:
		kind = ErrAuthInvalid
	case status == 404:
		kind = ErrModelUnavailable
	case status == 408 || status >= 500:
		kind = ErrTransientNetwork
	case status >= 400:
		kind = ErrMalformedResponse
	default:
		kind = ErrTransientNetwork
	}
	e := NewError(provider, kind, err)
	e.RetryAfter = retryAfter
	return e
}
