// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package syncerr defines the error taxonomy shared by every ProviderAdapter
// and the Reconciler, per spec §7 "Error Handling Design". The taxonomy is
// abstract kinds rather than HTTP status codes, so adapters across very
// different vendor APIs (Plex XML, Trakt/SIMKL JSON, AniList GraphQL) can
// report failures in one vocabulary that the Reconciler and StateStore both
// understand.
package syncerr

import "errors"

// Reason is one of the abstract error kinds surfaced in unresolved[].reason
// or health.status. It is a plain string so it serializes directly into
// state files and API responses without a lookup table.
type Reason string

const (
	// ReasonMissingConfig indicates credentials or a base URL are absent;
	// never retried.
	ReasonMissingConfig Reason = "missing_config"
	// ReasonAuthFailed indicates a 401/403 or explicit vendor auth error;
	// requires user intervention.
	ReasonAuthFailed Reason = "auth_failed"
	// ReasonRateLimited indicates a 429 survived retries; the item becomes
	// unresolved with a retry_after hint.
	ReasonRateLimited Reason = "rate_limited"
	// ReasonNotFound indicates the vendor could not match the given ids;
	// the item is frozen in shadow state with this reason.
	ReasonNotFound Reason = "not_found"
	// ReasonMissingIDs indicates insufficient ids on the input item.
	ReasonMissingIDs Reason = "missing_ids"
	// ReasonUnresolvedIDs indicates ids were present but none resolved to
	// a vendor-addressable entity.
	ReasonUnresolvedIDs Reason = "unresolved_ids"
	// ReasonNetworkError indicates a DNS/TLS/connection/timeout failure;
	// retried per policy, else unresolved.
	ReasonNetworkError Reason = "network_error"
	// ReasonUpstreamError indicates a 5xx survived retries.
	ReasonUpstreamError Reason = "upstream_error"
	// ReasonConflict indicates a write was rejected for semantic reasons
	// (duplicate, invalid value, out of range).
	ReasonConflict Reason = "conflict"
	// ReasonCancelled indicates the caller's context was cancelled.
	ReasonCancelled Reason = "cancelled"
	// ReasonTimeout indicates the outer deadline elapsed.
	ReasonTimeout Reason = "timeout"
)

// Sentinel errors for the abstract kinds that call sites compare against
// with errors.Is.
var (
	ErrMissingConfig  = errors.New("missing_config: credentials or base url not configured")
	ErrAuthFailed     = errors.New("auth_failed: vendor rejected credentials")
	ErrRateLimited    = errors.New("rate_limited: request rate exceeded after retries")
	ErrNotFound       = errors.New("not_found: vendor could not match item")
	ErrMissingIDs     = errors.New("missing_ids: item has no usable identifiers")
	ErrUnresolvedIDs  = errors.New("unresolved_ids: no identifier resolved on vendor side")
	ErrNetworkError   = errors.New("network_error: connection failed after retries")
	ErrUpstreamError  = errors.New("upstream_error: vendor returned a server error after retries")
	ErrConflict       = errors.New("conflict: write rejected for semantic reasons")
	ErrCancelled      = errors.New("cancelled: context cancelled")
	ErrTimeout        = errors.New("timeout: deadline exceeded")
)

var sentinelByReason = map[Reason]error{
	ReasonMissingConfig: ErrMissingConfig,
	ReasonAuthFailed:    ErrAuthFailed,
	ReasonRateLimited:   ErrRateLimited,
	ReasonNotFound:      ErrNotFound,
	ReasonMissingIDs:    ErrMissingIDs,
	ReasonUnresolvedIDs: ErrUnresolvedIDs,
	ReasonNetworkError:  ErrNetworkError,
	ReasonUpstreamError: ErrUpstreamError,
	ReasonConflict:      ErrConflict,
	ReasonCancelled:     ErrCancelled,
	ReasonTimeout:       ErrTimeout,
}

// Sentinel returns the package sentinel error for a Reason, or nil if the
// Reason is unrecognized.
func (r Reason) Sentinel() error {
	return sentinelByReason[r]
}

// Retryable reports whether the reason is worth a retry at a higher level
// (e.g. the next scheduled pair-sync), per spec §7 propagation policy.
// missing_config and auth_failed require user intervention and are not.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonRateLimited, ReasonNetworkError, ReasonUpstreamError, ReasonTimeout:
		return true
	default:
		return false
	}
}

// Fatal reports whether this reason, when it applies to the destination of
// a pair-sync, should abort that pair-sync entirely rather than surface as
// a per-item unresolved entry (spec §7: "Per-sync fatal errors ... abort
// that pair-sync with a top-level error; other pair-syncs continue").
func (r Reason) Fatal() bool {
	return r == ReasonMissingConfig
}
