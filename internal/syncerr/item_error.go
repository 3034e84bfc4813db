// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ItemError attaches a canonical key and an optional retry hint to a Reason,
// the exact shape a pair-sync result surfaces as
// unresolved[].{key, reason, hint?} per spec §6/§7.
type ItemError struct {
	Key    string
	Reason Reason
	Hint   string
	Err    error
}

func (e *ItemError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Key, e.Reason, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

func (e *ItemError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Reason.Sentinel()
}

// NewItemError builds an ItemError, defaulting Err to the reason's sentinel
// when the caller has no underlying cause to wrap.
func NewItemError(key string, reason Reason, hint string) *ItemError {
	return &ItemError{Key: key, Reason: reason, Hint: hint}
}

// WithCause attaches an underlying error (e.g. the raw HTTP/transport
// failure) that Unwrap exposes alongside the reason sentinel.
func (e *ItemError) WithCause(err error) *ItemError {
	e.Err = err
	return e
}

// ReasonOf extracts the Reason from err if it is (or wraps) an *ItemError,
// falling back to classifying a bare error/status via ClassifyHTTPStatus /
// ClassifyError so callers never need a type switch at every call site.
func ReasonOf(err error) (Reason, bool) {
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	for reason, sentinel := range sentinelByReason {
		if errors.Is(err, sentinel) {
			return reason, true
		}
	}
	return "", false
}

// ClassifyHTTPStatus maps an HTTP response status code to an abstract
// Reason, per spec §7's taxonomy. A 2xx has no reason (ok == false).
func ClassifyHTTPStatus(status int) (Reason, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuthFailed, true
	case status == http.StatusTooManyRequests:
		return ReasonRateLimited, true
	case status == http.StatusNotFound:
		return ReasonNotFound, true
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return ReasonConflict, true
	case status >= 500:
		return ReasonUpstreamError, true
	default:
		return ReasonUpstreamError, true
	}
}

// ClassifyError maps a transport-level error (context cancellation,
// deadline, or a generic network failure) to an abstract Reason.
func ClassifyError(err error) (Reason, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, context.Canceled):
		return ReasonCancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout, true
	default:
		return ReasonNetworkError, true
	}
}
