// Package gwerrors implements the error taxonomy for the gateway data-plane
// core: expected negatives, typed retrieval failures, rate-limit errors, and
// transient/corrupt faults, as specified in §7.
package gwerrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is the sentinel for an expected negative lookup (absent cache
// entry, absent boundary, absent ArNS record, empty shard result). Callers
// should prefer a typed absence (nil, ok-bool) over this error where
// possible; it exists for call sites that must return an error value.
var ErrNotFound = errors.New("gwerrors: not found")

// RetrievalErrorType enumerates the machine-readable ChunkNotFound reasons.
type RetrievalErrorType string

const (
	ErrorTypeOffsetLookupFailed RetrievalErrorType = "offset_lookup_failed"
	ErrorTypeTxNotFound         RetrievalErrorType = "tx_not_found"
	ErrorTypeBoundaryNotFound   RetrievalErrorType = "boundary_not_found"
	ErrorTypeFetchFailed        RetrievalErrorType = "fetch_failed"
)

// RetrievalError is raised by the chunk retrieval pipeline (§4.H) when no
// tier of the pipeline could produce a chunk.
type RetrievalError struct {
	ErrorType RetrievalErrorType
	Cause     error
}

func NewRetrievalError(t RetrievalErrorType, cause error) *RetrievalError {
	return &RetrievalError{ErrorType: t, Cause: cause}
}

func (e *RetrievalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chunk not found (%s): %v", e.ErrorType, e.Cause)
	}
	return fmt.Sprintf("chunk not found (%s)", e.ErrorType)
}

func (e *RetrievalError) Unwrap() error { return e.Cause }

// LimitType distinguishes which axis of the two-axis rate limiter tripped.
type LimitType string

const (
	LimitTypeResource LimitType = "resource"
	LimitTypeIP       LimitType = "ip"
)

// RateLimitedError is surfaced by the rate limiter middleware contract
// (§4.J) as a 429 when enabled.
type RateLimitedError struct {
	LimitType LimitType
	Domain    string
}

func NewRateLimitedError(t LimitType, domain string) *RateLimitedError {
	return &RateLimitedError{LimitType: t, Domain: domain}
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s bucket exhausted for %s", e.LimitType, e.Domain)
}

// CorruptError marks a fatal open-time failure: a malformed CDB64 header or
// an invalid manifest shape (§7 Corrupt).
type CorruptError struct {
	Component string
	Reason    string
}

func NewCorruptError(component, reason string) *CorruptError {
	return &CorruptError{Component: component, Reason: reason}
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s: corrupt: %s", e.Component, e.Reason)
}

// TransientError wraps a single-shard, single-adjustment, or
// single-broadcast failure that the caller logs and contains rather than
// propagating as a whole-operation failure (§7 Transient).
type TransientError struct {
	Component string
	Cause     error
	At        time.Time
}

func NewTransientError(component string, cause error) *TransientError {
	return &TransientError{Component: component, Cause: cause, At: time.Now()}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Component, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// IsNotFound reports whether err represents an expected-absence result
// rather than a genuine failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
