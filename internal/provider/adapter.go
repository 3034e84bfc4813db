// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package provider

import (
	"context"

	"github.com/crosswatch-sync/crosswatch/internal/identity"
)

// Adapter defines the operations every vendor integration implements, per
// spec §4.3 "ProviderAdapter (interface contract)". Concrete adapters (Plex,
// Jellyfin/Emby, Trakt, SIMKL, MDBList, TMDb, AniList, Tautulli, the local
// CrossWatch store) all satisfy this interface so the Reconciler, Snapshotter
// and ManifestRegistry can treat them uniformly.
type Adapter interface {
	// Manifest returns the static, declared-once description of this adapter.
	Manifest() Manifest

	// Features reports which of the manifest's declared features are
	// effectively enabled, given installed dependencies/build tags.
	Features() map[string]bool

	// Capabilities returns this adapter's capability document (duplicated
	// here for callers that want it without the rest of the manifest).
	Capabilities() Capabilities

	// IsConfigured reports whether this instance has the credentials/URL it
	// needs to operate at all.
	IsConfigured() bool

	// Health performs one cheap probe per relevant endpoint.
	Health(ctx context.Context) Health

	// BuildIndex returns the complete present set for a feature under this
	// adapter's configured instance, keyed by canonical key.
	BuildIndex(ctx context.Context, feature Feature) (map[string]identity.Item, error)

	// Add idempotently upserts items for a feature. Already-applied items
	// are reported as confirmed, not as an error (spec §4.3 "HTTP 409/422 on
	// add → treated as success").
	Add(ctx context.Context, feature Feature, items []identity.Item, dryRun bool) (WriteResult, error)

	// Remove idempotently deletes items for a feature. Already-absent
	// items are reported as confirmed (spec §4.3 "HTTP 404 on delete →
	// treated as success").
	Remove(ctx context.Context, feature Feature, items []identity.Item, dryRun bool) (WriteResult, error)
}

// Health is the result of one adapter-level health probe, per spec §4.3.
type Health struct {
	OK        bool                    `json:"ok"`
	Status    string                  `json:"status"`
	LatencyMS int64                   `json:"latency_ms"`
	Features  map[string]bool         `json:"features"`
	Details   HealthDetails           `json:"details,omitempty"`
	API       map[string]EndpointInfo `json:"api,omitempty"`
}

// HealthDetails carries the optional reason/retry hint attached to a
// degraded or failed Health result.
type HealthDetails struct {
	Reason      string `json:"reason,omitempty"`
	RetryAfterS int    `json:"retry_after_s,omitempty"`
}

// EndpointInfo is one entry of Health.API, describing a single probed
// endpoint's outcome and observed rate-limit headers.
type EndpointInfo struct {
	Status     int    `json:"status"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Rate       string `json:"rate,omitempty"`
}

// Unresolved describes one item that could not be applied, in the exact
// shape surfaced by a pair-sync result: {key, reason, hint?} per spec §6/§7.
type Unresolved struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
	Hint   string `json:"hint,omitempty"`
}

// WriteResult is the outcome of an Add or Remove call, per spec §4.3.
type WriteResult struct {
	OK             bool         `json:"ok"`
	Count          int          `json:"count"`
	ConfirmedKeys  []string     `json:"confirmed_keys,omitempty"`
	SkippedKeys    []string     `json:"skipped_keys,omitempty"`
	Unresolved     []Unresolved `json:"unresolved,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// ReadOnlyWriteResult is the canned response read-only adapters (Tautulli)
// return from Add/Remove, per spec §4.3 "Read-only adapters".
func ReadOnlyWriteResult() (WriteResult, error) {
	return WriteResult{OK: false, Error: "read-only", Count: 0}, nil
}
