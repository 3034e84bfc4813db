// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
	"github.com/crosswatch-sync/crosswatch/internal/statestore"
)

// fakeAdapter is a minimal in-memory provider.Adapter for reconciler tests.
type fakeAdapter struct {
	index map[string]identity.Item
	added []identity.Item
	removed []identity.Item
	unresolvedKey string
}

func (f *fakeAdapter) Manifest() provider.Manifest           { return provider.Manifest{} }
func (f *fakeAdapter) Features() map[string]bool             { return map[string]bool{"watchlist": true} }
func (f *fakeAdapter) Capabilities() provider.Capabilities   { return provider.Capabilities{} }
func (f *fakeAdapter) IsConfigured() bool                    { return true }
func (f *fakeAdapter) Health(ctx context.Context) provider.Health { return provider.Health{OK: true} }

func (f *fakeAdapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	return f.index, nil
}

func (f *fakeAdapter) Add(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	wr := provider.WriteResult{OK: true, Count: len(items)}
	for _, item := range items {
		key := identity.CanonicalKey(item)
		if key == f.unresolvedKey {
			wr.Unresolved = append(wr.Unresolved, provider.Unresolved{Key: key, Reason: "not_found"})
			continue
		}
		if !dryRun {
			f.added = append(f.added, item)
			if f.index == nil {
				f.index = map[string]identity.Item{}
			}
			f.index[key] = item
		}
		wr.ConfirmedKeys = append(wr.ConfirmedKeys, key)
	}
	return wr, nil
}

func (f *fakeAdapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	wr := provider.WriteResult{OK: true, Count: len(items)}
	for _, item := range items {
		key := identity.CanonicalKey(item)
		if !dryRun {
			f.removed = append(f.removed, item)
			delete(f.index, key)
		}
		wr.ConfirmedKeys = append(wr.ConfirmedKeys, key)
	}
	return wr, nil
}

func movieItem(imdb, title string) identity.Item {
	return identity.Item{Type: identity.TypeMovie, Title: title, IDs: map[string]string{"imdb": imdb}}
}

func TestMirrorRunAddsMissingItemsToDst(t *testing.T) {
	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	r := New(store, "pairstate")

	src := &fakeAdapter{index: map[string]identity.Item{
		identity.CanonicalKey(movieItem("tt1", "A")): movieItem("tt1", "A"),
	}}
	dst := &fakeAdapter{index: map[string]identity.Item{}}

	spec := PairSpec{SrcProvider: "trakt", DstProvider: "simkl", Feature: provider.FeatureWatchlist, Direction: DirectionMirror}
	result, err := r.Run(context.Background(), src, dst, spec, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.AddedToDst)
	assert.Equal(t, 0, result.RemovedFromDst)
	assert.Len(t, dst.added, 1)
}

func TestMirrorRunRemovesItemsDeletedFromSrcSinceBaseline(t *testing.T) {
	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	r := New(store, "pairstate")

	key := identity.CanonicalKey(movieItem("tt1", "A"))
	scope := statestore.PairScope{SrcProvider: "trakt", SrcInstance: "default", DstProvider: "simkl", DstInstance: "default", Feature: "watchlist"}
	seed := statestore.NewPairState()
	seed.Baseline[key] = movieItem("tt1", "A")
	require.NoError(t, store.Save("pairstate", scope, seed))

	src := &fakeAdapter{index: map[string]identity.Item{}}
	dst := &fakeAdapter{index: map[string]identity.Item{key: movieItem("tt1", "A")}}

	spec := PairSpec{SrcProvider: "trakt", DstProvider: "simkl", Feature: provider.FeatureWatchlist, Direction: DirectionMirror}
	result, err := r.Run(context.Background(), src, dst, spec, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RemovedFromDst)
	assert.Len(t, dst.removed, 1)
}

func TestUnresolvedItemsAreFrozenAsShadowEntries(t *testing.T) {
	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	r := New(store, "pairstate")

	key := identity.CanonicalKey(movieItem("tt9", "Ghost"))
	src := &fakeAdapter{index: map[string]identity.Item{key: movieItem("tt9", "Ghost")}}
	dst := &fakeAdapter{index: map[string]identity.Item{}, unresolvedKey: key}

	spec := PairSpec{SrcProvider: "trakt", DstProvider: "simkl", Feature: provider.FeatureWatchlist, Direction: DirectionMirror}
	result, err := r.Run(context.Background(), src, dst, spec, RunOptions{})
	require.NoError(t, err)
	require.Len(t, result.Unresolved, 1)
	assert.Equal(t, key, result.Unresolved[0].Key)

	scope := spec.scope()
	ps, err := store.Load("pairstate", scope)
	require.NoError(t, err)
	entry, ok := ps.Shadow[key]
	require.True(t, ok)
	assert.Equal(t, 1, entry.Attempts)
}

func TestIgnoredShadowEntryIsNeverReadded(t *testing.T) {
	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	r := New(store, "pairstate")

	key := identity.CanonicalKey(movieItem("tt2", "B"))
	scope := statestore.PairScope{SrcProvider: "trakt", SrcInstance: "default", DstProvider: "simkl", DstInstance: "default", Feature: "watchlist"}
	seed := statestore.NewPairState()
	seed.Shadow[key] = statestore.ShadowEntry{Ignored: true, IgnoreReason: "user-excluded"}
	require.NoError(t, store.Save("pairstate", scope, seed))

	src := &fakeAdapter{index: map[string]identity.Item{key: movieItem("tt2", "B")}}
	dst := &fakeAdapter{index: map[string]identity.Item{}}

	spec := PairSpec{SrcProvider: "trakt", DstProvider: "simkl", Feature: provider.FeatureWatchlist, Direction: DirectionMirror}
	result, err := r.Run(context.Background(), src, dst, spec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.AddedToDst)
	assert.Empty(t, dst.added)
}

func TestTwoWayRunSyncsBothDirections(t *testing.T) {
	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	r := New(store, "pairstate")

	keyA := identity.CanonicalKey(movieItem("tt1", "A"))
	keyB := identity.CanonicalKey(movieItem("tt2", "B"))
	src := &fakeAdapter{index: map[string]identity.Item{keyA: movieItem("tt1", "A")}}
	dst := &fakeAdapter{index: map[string]identity.Item{keyB: movieItem("tt2", "B")}}

	spec := PairSpec{SrcProvider: "trakt", DstProvider: "simkl", Feature: provider.FeatureWatchlist, Direction: DirectionTwoWay}
	result, err := r.Run(context.Background(), src, dst, spec, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.AddedToDst)
	assert.Equal(t, 1, result.AddedToSrc)
	assert.Contains(t, dst.index, keyA)
	assert.Contains(t, src.index, keyB)
}

func TestDryRunDoesNotMutateAdapterState(t *testing.T) {
	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	r := New(store, "pairstate")

	src := &fakeAdapter{index: map[string]identity.Item{
		identity.CanonicalKey(movieItem("tt1", "A")): movieItem("tt1", "A"),
	}}
	dst := &fakeAdapter{index: map[string]identity.Item{}}

	spec := PairSpec{SrcProvider: "trakt", DstProvider: "simkl", Feature: provider.FeatureWatchlist, Direction: DirectionMirror}
	result, err := r.Run(context.Background(), src, dst, spec, RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.AddedToDst)
	assert.Empty(t, dst.added)
}
