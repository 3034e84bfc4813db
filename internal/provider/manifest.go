// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package provider defines the ProviderAdapter contract every vendor
// integration (Plex, Jellyfin/Emby, Trakt, SIMKL, MDBList, TMDb, AniList,
// Tautulli, the local CrossWatch store) implements, per spec §4.3, plus the
// shared result/manifest types the Reconciler and ManifestRegistry consume.
package provider

// Feature names a syncable surface a provider may expose.
type Feature string

const (
	FeatureWatchlist Feature = "watchlist"
	FeatureRatings   Feature = "ratings"
	FeatureHistory   Feature = "history"
	FeaturePlaylists Feature = "playlists"
)

// IndexSemantics describes how a provider's build_index reflects reality.
type IndexSemantics string

const (
	// SemanticsPresent means the index is the complete current set; absence
	// implies deletion.
	SemanticsPresent IndexSemantics = "present"
	// SemanticsEvents means the provider can only report additions
	// (e.g. SIMKL history); the Reconciler must rely on baseline diffs to
	// infer deletions, never provider-observed ones.
	SemanticsEvents IndexSemantics = "events"
)

// RatingCapabilities enumerates what a provider's ratings feature supports.
type RatingCapabilities struct {
	Types    map[string]bool `json:"types"` // movies, shows, seasons, episodes
	Upsert   bool            `json:"upsert"`
	Unrate   bool            `json:"unrate"`
	FromDate bool            `json:"from_date"`
}

// Capabilities is the capabilities sub-document of a Manifest, per spec §3.
type Capabilities struct {
	Ratings         RatingCapabilities `json:"ratings"`
	IndexSemantics  IndexSemantics     `json:"index_semantics"`
	ObservedDeletes bool               `json:"observed_deletes"`
	CanTarget       bool               `json:"can_target"`
}

// Manifest is the static, declared-once description of an adapter, per
// spec §3 "Entity Manifest".
type Manifest struct {
	Name          string          `json:"name"`
	Label         string          `json:"label"`
	Version       string          `json:"version"`
	Type          string          `json:"type"`
	Bidirectional bool            `json:"bidirectional"`
	Features      map[string]bool `json:"features"`
	Requires      []string        `json:"requires"`
	Capabilities  Capabilities    `json:"capabilities"`
}
