// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package crosswatchlocal implements the "authoritative local" ProviderAdapter
// described in spec §4.3.x: "backed by a JSON file per feature per pair
// scope, with snapshot retention (retention_days, max_snapshots), automatic
// snapshot on each change, and optional restore-from-snapshot at startup
// when restore_<feature> is set ('latest' selects newest)."
//
// This adapter's index document is itself a degenerate PairState (baseline
// only, no real reconciliation against a second provider) so it can reuse
// internal/statestore's atomic-write/scoped-file machinery rather than
// hand-rolling a second persistence layer.
package crosswatchlocal

import (
	"context"

	"github.com/crosswatch-sync/crosswatch/internal/config"
	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
	"github.com/crosswatch-sync/crosswatch/internal/statestore"
)

type Adapter struct {
	cfg      config.CrossWatchLocalConfig
	instance string
	store    *statestore.Store
}

func New(block config.ProviderBlock) (provider.Adapter, error) {
	cfg, _ := block.Raw.(config.CrossWatchLocalConfig)
	root := cfg.RootDir
	if root == "" {
		root = "/config/.cw_provider"
	}
	store, err := statestore.New(root)
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, instance: block.Instance, store: store}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		Name: "crosswatch", Label: "CrossWatch (local)", Version: "1.0", Type: "sync", Bidirectional: true,
		Features: map[string]bool{"watchlist": true, "ratings": true, "history": true},
		Capabilities: provider.Capabilities{
			IndexSemantics:  provider.SemanticsPresent,
			ObservedDeletes: true,
			CanTarget:       true,
		},
	}
}

func (a *Adapter) Features() map[string]bool          { return a.Manifest().Features }
func (a *Adapter) Capabilities() provider.Capabilities { return a.Manifest().Capabilities }

func (a *Adapter) IsConfigured() bool { return a.cfg.RootDir != "" || true } // local store always usable

func (a *Adapter) Health(ctx context.Context) provider.Health {
	return provider.Health{OK: true, Status: "ok", Features: a.Features()}
}

func (a *Adapter) scope(feature provider.Feature) statestore.PairScope {
	return statestore.PairScope{SrcProvider: "crosswatch", SrcInstance: a.instance, Feature: string(feature)}
}

func (a *Adapter) indexName(feature provider.Feature) string {
	return "local_index_" + string(feature)
}

func (a *Adapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	ps, err := a.store.Load(a.indexName(feature), a.scope(feature))
	if err != nil {
		return nil, err
	}
	return ps.Baseline, nil
}

func (a *Adapter) Add(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	if dryRun {
		result := provider.WriteResult{OK: true, Count: len(items)}
		for _, it := range items {
			result.ConfirmedKeys = append(result.ConfirmedKeys, identity.CanonicalKey(it))
		}
		return result, nil
	}

	scope := a.scope(feature)
	name := a.indexName(feature)
	ps, err := a.store.Load(name, scope)
	if err != nil {
		return provider.WriteResult{}, err
	}

	result := provider.WriteResult{OK: true}
	for _, it := range items {
		key := identity.CanonicalKey(it)
		if existing, ok := ps.Baseline[key]; ok {
			ps.Baseline[key] = identity.Item{
				Type: it.Type, Title: it.Title, Year: it.Year,
				IDs: identity.MergeIDs(it.IDs, existing.IDs),
				Rating: it.Rating, RatedAt: it.RatedAt, WatchedAt: it.WatchedAt,
				Season: it.Season, Episode: it.Episode,
			}
		} else {
			ps.Baseline[key] = it
		}
		ps.ClearShadow(key)
		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
	}

	if err := a.store.Save(name, scope, ps); err != nil {
		return provider.WriteResult{}, err
	}
	// Auto-snapshotting on change (cfg.AutoSnapshot) is triggered by the
	// Orchestrator after a successful Add, via internal/snapshot.Snapshotter,
	// so every feature's snapshot cadence goes through one retention policy.
	return result, nil
}

func (a *Adapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	if dryRun {
		result := provider.WriteResult{OK: true, Count: len(items)}
		for _, it := range items {
			result.ConfirmedKeys = append(result.ConfirmedKeys, identity.CanonicalKey(it))
		}
		return result, nil
	}

	scope := a.scope(feature)
	name := a.indexName(feature)
	ps, err := a.store.Load(name, scope)
	if err != nil {
		return provider.WriteResult{}, err
	}

	result := provider.WriteResult{OK: true}
	for _, it := range items {
		key := identity.CanonicalKey(it)
		if _, ok := ps.Baseline[key]; !ok {
			// HTTP 404-on-delete analog: already absent is success.
			result.ConfirmedKeys = append(result.ConfirmedKeys, key)
			continue
		}
		delete(ps.Baseline, key)
		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
	}

	if err := a.store.Save(name, scope, ps); err != nil {
		return provider.WriteResult{}, err
	}
	return result, nil
}
