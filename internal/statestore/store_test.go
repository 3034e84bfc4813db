// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package statestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosswatch-sync/crosswatch/internal/identity"
)

func TestSanitizeScope(t *testing.T) {
	assert.Equal(t, "default", SanitizeScope(""))
	assert.Equal(t, "a_b_c", SanitizeScope("a/b c"))
	assert.Equal(t, "a_b", SanitizeScope("a//b"))
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, SanitizeScope(string(long)), maxScopeLen)
}

func TestDisabledScopes(t *testing.T) {
	assert.True(t, Disabled(""))
	assert.True(t, Disabled("unscoped"))
	assert.True(t, Disabled("default"))
	assert.True(t, Disabled("none"))
	assert.False(t, Disabled("trakt.default__simkl.default__watchlist"))
}

func TestStoreLoadSaveRoundtrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	scope := PairScope{SrcProvider: "trakt", DstProvider: "simkl", Feature: "watchlist"}
	ps, err := store.Load("pairstate", scope)
	require.NoError(t, err)
	assert.Empty(t, ps.Baseline)

	ps.Baseline["imdb:tt0111161"] = identity.Item{Type: identity.TypeMovie, Title: "The Shawshank Redemption"}
	require.NoError(t, store.Save("pairstate", scope, ps))

	reloaded, err := store.Load("pairstate", scope)
	require.NoError(t, err)
	assert.Contains(t, reloaded.Baseline, "imdb:tt0111161")
}

func TestStoreDisabledScopeNoops(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	scope := PairScope{SrcProvider: "", DstProvider: "", Feature: ""}
	ps := NewPairState()
	ps.Baseline["x"] = identity.Item{Type: identity.TypeMovie}
	require.NoError(t, store.Save("pairstate", scope, ps))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreMigratesLegacyFile(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "pairstate.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"baseline":{"tmdb:550":{"type":"movie"}},"shadow":{}}`), 0o644))

	store, err := New(dir)
	require.NoError(t, err)

	scope := PairScope{SrcProvider: "trakt", DstProvider: "simkl", Feature: "watchlist"}
	ps, err := store.Load("pairstate", scope)
	require.NoError(t, err)
	assert.Contains(t, ps.Baseline, "tmdb:550")

	_, statErr := os.Stat(legacy)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPairStateMarkAndClearShadow(t *testing.T) {
	ps := NewPairState()
	ps.MarkUnresolved("imdb:tt9999999", "not_found", "2026-01-01T00:00:00Z")
	assert.Equal(t, 1, ps.Shadow["imdb:tt9999999"].Attempts)

	ps.MarkUnresolved("imdb:tt9999999", "not_found", "2026-01-02T00:00:00Z")
	assert.Equal(t, 2, ps.Shadow["imdb:tt9999999"].Attempts)
	assert.Equal(t, "2026-01-01T00:00:00Z", ps.Shadow["imdb:tt9999999"].FirstSeen)

	ps.ClearShadow("imdb:tt9999999")
	assert.NotContains(t, ps.Shadow, "imdb:tt9999999")
}

func TestPairStateIgnoredSurvivesClear(t *testing.T) {
	ps := NewPairState()
	ps.Shadow["anilist:1"] = ShadowEntry{Ignored: true, IgnoreReason: "not anime"}
	ps.ClearShadow("anilist:1")
	assert.True(t, ps.IsIgnored("anilist:1"))
}
