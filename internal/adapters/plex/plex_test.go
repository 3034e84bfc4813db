// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package plex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosswatch-sync/crosswatch/internal/config"
	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
)

func TestIsConfiguredRequiresAccountToken(t *testing.T) {
	a := &Adapter{}
	assert.False(t, a.IsConfigured())
	a.cfg = config.PlexConfig{AccountToken: "tok"}
	assert.True(t, a.IsConfigured())
}

func TestGUIDsToIDsExtractsKnownAgents(t *testing.T) {
	ids := guidsToIDs([]plexGUID{{ID: "imdb://tt0111161"}, {ID: "tmdb://278"}, {ID: "unknown://x"}})
	assert.Equal(t, "tt0111161", ids["imdb"])
	assert.Equal(t, "278", ids["tmdb"])
	assert.NotContains(t, ids, "unknown")
}

func TestToItemTypeMapsShowAndDefaultsToMovie(t *testing.T) {
	assert.Equal(t, identity.TypeShow, toItemType("show"))
	assert.Equal(t, identity.TypeMovie, toItemType("movie"))
	assert.Equal(t, identity.TypeMovie, toItemType(""))
}

func TestBuildIndexNonWatchlistFeatureReturnsEmpty(t *testing.T) {
	a := &Adapter{cfg: config.PlexConfig{AccountToken: "tok"}}
	idx, err := a.BuildIndex(context.Background(), provider.FeatureRatings)
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestWriteRejectsItemsWithoutRatingKey(t *testing.T) {
	a := &Adapter{cfg: config.PlexConfig{AccountToken: "tok"}}
	result, err := a.write(context.Background(), []identity.Item{{Type: identity.TypeMovie, Title: "x"}}, false, false)
	require.NoError(t, err)
	require.Len(t, result.Unresolved, 1)
	assert.Equal(t, "unresolved_ids", result.Unresolved[0].Reason)
}

func TestWriteDryRunSkipsNetworkCall(t *testing.T) {
	a := &Adapter{cfg: config.PlexConfig{AccountToken: "tok"}}
	item := identity.Item{Type: identity.TypeMovie, Title: "x", IDs: map[string]string{"plex_rating_key": "123"}}
	result, err := a.Add(context.Background(), provider.FeatureWatchlist, []identity.Item{item}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}
