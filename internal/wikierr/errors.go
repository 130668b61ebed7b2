// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package wikierr

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags the taxonomy of public failures the core can return.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindNotReady          Kind = "not_ready"
	KindPermissionDenied  Kind = "permission_denied"
	KindRateLimited       Kind = "rate_limited"
	KindResourceExhausted Kind = "resource_exhausted"
	KindTimeout           Kind = "timeout"
	KindIndexingFailed    Kind = "indexing_failed"
	KindQueryFailed       Kind = "query_failed"
	KindValidation        Kind = "validation"
	KindInternal          Kind = "internal"
)

// Error is the typed error returned by every public core operation.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Recoverable   bool
	RetryAfter    time.Duration
	Wrapped       error
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("[%s] %s (correlation=%s)", e.Kind, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is allows errors.Is to match on Kind alone.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

func newErr(kind Kind, recoverable bool, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Recoverable: recoverable}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return newErr(KindNotFound, false, format, args...)
}

// NotReady builds a KindNotReady error.
func NotReady(repoID, state string) *Error {
	return newErr(KindNotReady, true, "repository %s is not ready (state=%s)", repoID, state)
}

// PermissionDenied builds a KindPermissionDenied error.
func PermissionDenied(required string) *Error {
	return newErr(KindPermissionDenied, false, "permission denied: requires %s", required)
}

// RateLimited builds a KindRateLimited error carrying a retry hint.
func RateLimited(retryAfter time.Duration) *Error {
	e := newErr(KindRateLimited, true, "rate limit exceeded, retry after %s", retryAfter)
	e.RetryAfter = retryAfter
	return e
}

// ResourceExhausted builds a KindResourceExhausted error.
func ResourceExhausted(resource string) *Error {
	return newErr(KindResourceExhausted, true, "resource exhausted: %s", resource)
}

// Timeout builds a KindTimeout error.
func Timeout(operation string, d time.Duration) *Error {
	return newErr(KindTimeout, true, "%s timed out after %s", operation, d)
}

// IndexingFailed builds a KindIndexingFailed error.
func IndexingFailed(recoverable bool, attempt int, cause error) *Error {
	e := newErr(KindIndexingFailed, recoverable, "indexing failed on attempt %d: %v", attempt, cause)
	e.Wrapped = cause
	return e
}

// QueryFailed builds a KindQueryFailed error.
func QueryFailed(reason string) *Error {
	return newErr(KindQueryFailed, true, "query failed: %s", reason)
}

// Validation builds a KindValidation error.
func Validation(field string, value interface{}, expected string) *Error {
	return newErr(KindValidation, false, "invalid %s=%v, expected %s", field, value, expected)
}

// Internal builds a KindInternal error with a correlation id for log cross-reference.
func Internal(component, correlationID string, cause error) *Error {
	e := newErr(KindInternal, false, "internal error in %s", component)
	e.CorrelationID = correlationID
	e.Wrapped = cause
	return e
}

// Of reports whether err (or any error it wraps) carries the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
