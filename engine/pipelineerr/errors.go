// Package pipelineerr defines the stable error-kind taxonomy shared by every
// component of the lumen pipeline, and the retry policy attached to each kind.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure independent of where it occurred.
type Kind string

const (
	KindConfigInvalid      Kind = "config_invalid"
	KindQueueFull          Kind = "queue_full"
	KindFileNotFound       Kind = "file_not_found"
	KindUnknownTask        Kind = "unknown_task"
	KindInvalidInput       Kind = "invalid_input"
	KindTimeout            Kind = "timeout"
	KindProviderTransport  Kind = "provider_transport"
	KindAuthFailure        Kind = "auth_failure"
	KindRateLimited        Kind = "rate_limited"
	KindEmbeddingFailure   Kind = "embedding_failure"
	KindDimensionMismatch  Kind = "dimension_mismatch"
	KindStorageIO          Kind = "storage_io"
	KindCancelled          Kind = "cancelled"
	KindMissingVariable    Kind = "missing_variable"
	KindUnknownPlaceholder Kind = "unknown_placeholder"
	KindNotFound           Kind = "not_found"
)

// retryable maps each kind to the policy column of the error handling design.
var retryable = map[Kind]bool{
	KindConfigInvalid:      false,
	KindQueueFull:          false,
	KindFileNotFound:       false,
	KindUnknownTask:        false,
	KindInvalidInput:       false,
	KindTimeout:            true,
	KindProviderTransport:  true,
	KindAuthFailure:        false,
	KindRateLimited:        true,
	KindEmbeddingFailure:   true,
	KindDimensionMismatch:  false,
	KindStorageIO:          true,
	KindCancelled:          false,
	KindMissingVariable:    false,
	KindUnknownPlaceholder: false,
	KindNotFound:           false,
}

// Error is the wrapping struct every component returns on failure.
type Error struct {
	Kind    Kind
	Detail  string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Wrapped)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Retryable reports whether the policy for this kind allows a retry.
func (e *Error) Retryable() bool { return retryable[e.Kind] }

// New builds an Error for kind with a detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an Error for kind, wrapping an underlying cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Wrapped: cause}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err isn't a *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Retryable reports whether err's kind allows a retry; non-*Error errors are
// treated as not retryable.
func Retryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
