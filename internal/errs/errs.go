// Package errs classifies the failures that can cross a rifflux component
// boundary into the fixed set of kinds the retrieval engine distinguishes:
// NotFound, Transient, Schema, InvalidInput, EmbedderUnavailable, and
// Internal. Callers switch on Kind rather than inspecting error strings.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the six error classifications the engine surfaces.
type Kind string

const (
	// NotFound means the requested chunk_id or path is not indexed.
	NotFound Kind = "not_found"
	// Transient means a retryable lock/busy/IO failure. Only the
	// background worker retries these; query paths surface them directly.
	Transient Kind = "transient"
	// Schema means the database structure is incompatible with what the
	// code expects. The operator must rebuild.
	Schema Kind = "schema"
	// InvalidInput means a malformed query, out-of-range top_k, or
	// unknown mode. Rejected at the boundary.
	InvalidInput Kind = "invalid_input"
	// EmbedderUnavailable means a query embedding could not be produced.
	EmbedderUnavailable Kind = "embedder_unavailable"
	// Internal is anything else: corrupt vector length, unexpected state.
	Internal Kind = "internal"
)

// Error wraps an underlying cause with a classification kind and optional
// context.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// New creates a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap classifies an existing error, attaching context.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// Of returns the Kind of err, walking the wrap chain. Unclassified errors
// are reported as Internal.
func Of(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Internal
}

// IsRetryable reports whether the background worker should retry a job
// that failed with err.
func IsRetryable(err error) bool {
	return Of(err) == Transient
}

// ClassifySQLite maps a raw SQLite driver error message to a Kind:
// SQLITE_BUSY/SQLITE_LOCKED are Transient, constraint violations are
// non-retryable, missing table/column errors are Schema.
func ClassifySQLite(err error) Kind {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"), strings.Contains(msg, "locked"):
		return Transient
	case strings.Contains(msg, "constraint"):
		return InvalidInput
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "no such column"), strings.Contains(msg, "malformed"):
		return Schema
	default:
		return Internal
	}
}
