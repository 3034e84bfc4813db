// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package reconciler implements C5 Reconciler: computes add/remove deltas
// between two ProviderAdapter indexes, applies them in chunks, and
// persists the resulting baseline/shadow state, per spec §4.5.
//
// Concurrency for the two build_index calls is grounded on
// internal/supervisor's preference for explicit goroutine coordination;
// golang.org/x/sync/errgroup is used instead of a bespoke
// WaitGroup+error-channel, since it already ships in the dependency graph
// (previously only an indirect transitive dep — promoted to direct use
// here) and is the idiomatic choice for "run N things concurrently, stop
// on first error, collect a ctx-aware cancellation."
package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/logging"
	"github.com/crosswatch-sync/crosswatch/internal/progress"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
	"github.com/crosswatch-sync/crosswatch/internal/statestore"
	"github.com/crosswatch-sync/crosswatch/internal/syncerr"
)

// Direction selects mirror (one-way, src authoritative) or two-way
// reconciliation, per spec §4.5 step 3.
type Direction string

const (
	DirectionMirror Direction = "mirror"
	DirectionTwoWay Direction = "two-way"
)

// PairSpec names one reconciliation task: (src_adapter, dst_adapter,
// feature, direction), per spec §4.5's opening line.
type PairSpec struct {
	SrcProvider string
	SrcInstance string
	DstProvider string
	DstInstance string
	Feature     provider.Feature
	Direction   Direction

	// AvoidReaddingDstRemovals intersects to_add with "not present in dst
	// baseline", per spec §4.5 step 3's "policy flag" for avoiding
	// re-adding items the user explicitly removed on dst.
	AvoidReaddingDstRemovals bool
}

// RunOptions controls one Run invocation.
type RunOptions struct {
	DryRun   bool
	Sink     progress.Sink
	Throttle time.Duration
}

// Result is the outcome of one Run, aggregated across both adapters and
// (for two-way) both directions.
type Result struct {
	AddedToDst     int
	RemovedFromDst int
	AddedToSrc     int
	RemovedFromSrc int
	ConfirmedKeys  []string
	SkippedKeys    []string
	Unresolved     []provider.Unresolved
	Status         string // "ok", "timeout", "partial"
}

// Reconciler applies PairSpecs against a pair of ProviderAdapters,
// persisting baseline/shadow state via the given Store.
type Reconciler struct {
	store     *statestore.Store
	stateName string
}

// New builds a Reconciler persisting PairState documents named stateName
// (e.g. "pairstate") under store.
func New(store *statestore.Store, stateName string) *Reconciler {
	return &Reconciler{store: store, stateName: stateName}
}

func (spec PairSpec) scope() statestore.PairScope {
	return statestore.PairScope{
		SrcProvider: spec.SrcProvider,
		SrcInstance: spec.SrcInstance,
		DstProvider: spec.DstProvider,
		DstInstance: spec.DstInstance,
		Feature:     string(spec.Feature),
	}
}

// Run executes one pair-sync task per spec §4.5 steps 1-7.
func (r *Reconciler) Run(ctx context.Context, src, dst provider.Adapter, spec PairSpec, opts RunOptions) (Result, error) {
	log := logging.ForProvider("reconciler")

	var srcIdx, dstIdx map[string]identity.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		idx, err := src.BuildIndex(gctx, spec.Feature)
		if err != nil {
			return fmt.Errorf("build src index: %w", err)
		}
		srcIdx = idx
		return nil
	})
	g.Go(func() error {
		idx, err := dst.BuildIndex(gctx, spec.Feature)
		if err != nil {
			return fmt.Errorf("build dst index: %w", err)
		}
		dstIdx = idx
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return Result{Status: "timeout"}, ctx.Err()
		}
		return Result{}, err
	}

	scope := spec.scope()
	ps, err := r.store.Load(r.stateName, scope)
	if err != nil {
		return Result{}, fmt.Errorf("load baseline: %w", err)
	}

	var result Result
	total := len(srcIdx) + len(dstIdx)
	emitter := progress.New(opts.Sink, spec.DstProvider, string(spec.Feature), progress.IntPtr(total), opts.Throttle)

	mirrorResult, newBaseline, err := r.applyOneWay(ctx, dst, srcIdx, dstIdx, ps, spec, opts, emitter)
	if err != nil {
		return Result{}, err
	}
	result = mirrorResult

	if spec.Direction == DirectionTwoWay {
		reverseSpec := spec
		reverseSpec.SrcProvider, reverseSpec.DstProvider = spec.DstProvider, spec.SrcProvider
		reverseSpec.SrcInstance, reverseSpec.DstInstance = spec.DstInstance, spec.SrcInstance

		reconciled := resolveConflicts(srcIdx, dstIdx)

		backResult, _, err := r.applyOneWay(ctx, src, dstIdx, srcIdx, ps, reverseSpec, opts, emitter)
		if err != nil {
			return Result{}, err
		}
		result.AddedToSrc = backResult.AddedToDst
		result.RemovedFromSrc = backResult.RemovedFromDst
		result.ConfirmedKeys = append(result.ConfirmedKeys, backResult.ConfirmedKeys...)
		result.SkippedKeys = append(result.SkippedKeys, backResult.SkippedKeys...)
		result.Unresolved = append(result.Unresolved, backResult.Unresolved...)

		newBaseline = reconciled
	}

	ps.Baseline = newBaseline
	if err := r.store.Save(r.stateName, scope, ps); err != nil {
		return Result{}, fmt.Errorf("save baseline: %w", err)
	}

	ok := len(result.Unresolved) == 0
	emitter.Done(progress.BoolPtr(ok), progress.IntPtr(total))

	result.Status = "ok"
	if !ok {
		result.Status = "partial"
	}
	log.Info().
		Str("src", spec.SrcProvider).Str("dst", spec.DstProvider).Str("feature", string(spec.Feature)).
		Int("added", result.AddedToDst).Int("removed", result.RemovedFromDst).
		Int("unresolved", len(result.Unresolved)).Msg("pair-sync complete")
	return result, nil
}

// applyOneWay computes and applies the delta for a single direction
// (src -> dst), per spec §4.5 steps 3-6. It returns the partial result and
// the new baseline to persist (mirror semantics: baseline becomes srcIdx).
func (r *Reconciler) applyOneWay(
	ctx context.Context,
	dst provider.Adapter,
	srcIdx, dstIdx map[string]identity.Item,
	ps *statestore.PairState,
	spec PairSpec,
	opts RunOptions,
	emitter *progress.Emitter,
) (Result, map[string]identity.Item, error) {
	toAdd, toRemove := computeDelta(srcIdx, dstIdx, ps.Baseline, spec.AvoidReaddingDstRemovals)

	var addItems, removeItems []identity.Item
	for _, key := range toAdd {
		if ps.IsIgnored(key) {
			continue
		}
		addItems = append(addItems, resolveItem(key, srcIdx, dstIdx))
	}
	for _, key := range toRemove {
		removeItems = append(removeItems, resolveItem(key, srcIdx, dstIdx))
	}

	result := Result{}
	now := time.Now().UTC().Format(time.RFC3339)
	done := 0

	for _, chunk := range provider.Chunk(addItems, provider.DefaultChunkSize) {
		if err := ctx.Err(); err != nil {
			return result, nil, err
		}
		wr, err := dst.Add(ctx, spec.Feature, chunk, opts.DryRun)
		if err != nil {
			return result, nil, fmt.Errorf("add chunk: %w", err)
		}
		applyWriteResult(wr, &result, ps, now)
		result.AddedToDst += wr.Count
		done += len(chunk)
		emitter.Tick(done, nil, progress.BoolPtr(wr.OK), false)
	}
	for _, chunk := range provider.Chunk(removeItems, provider.DefaultChunkSize) {
		if err := ctx.Err(); err != nil {
			return result, nil, err
		}
		wr, err := dst.Remove(ctx, spec.Feature, chunk, opts.DryRun)
		if err != nil {
			return result, nil, fmt.Errorf("remove chunk: %w", err)
		}
		applyWriteResult(wr, &result, ps, now)
		result.RemovedFromDst += wr.Count
		done += len(chunk)
		emitter.Tick(done, nil, progress.BoolPtr(wr.OK), false)
	}

	return result, srcIdx, nil
}

// applyWriteResult folds one WriteResult into the running Result and
// shadow state, per spec §4.3/§4.5: confirmed keys clear any shadow entry,
// unresolved keys are frozen via MarkUnresolved.
func applyWriteResult(wr provider.WriteResult, result *Result, ps *statestore.PairState, now string) {
	result.ConfirmedKeys = append(result.ConfirmedKeys, wr.ConfirmedKeys...)
	result.SkippedKeys = append(result.SkippedKeys, wr.SkippedKeys...)
	result.Unresolved = append(result.Unresolved, wr.Unresolved...)

	for _, key := range wr.ConfirmedKeys {
		ps.ClearShadow(key)
	}
	for _, u := range wr.Unresolved {
		reason := u.Reason
		if reason == "" {
			reason = string(syncerr.ReasonUpstreamError)
		}
		ps.MarkUnresolved(u.Key, reason, now)
	}
}

// computeDelta implements spec §4.5 step 3's to_add/to_remove formulas.
//
//	to_add(dst)    = src_idx.keys − dst_idx.keys
//	to_remove(dst) = baseline.keys ∩ dst_idx.keys − src_idx.keys
//
// avoidReadd additionally removes from to_add any key present in baseline
// (i.e. the user previously had it and removed it from dst deliberately).
func computeDelta(srcIdx, dstIdx, baseline map[string]identity.Item, avoidReadd bool) (toAdd, toRemove []string) {
	for key := range srcIdx {
		if _, inDst := dstIdx[key]; inDst {
			continue
		}
		if avoidReadd {
			if _, wasBaseline := baseline[key]; wasBaseline {
				continue
			}
		}
		toAdd = append(toAdd, key)
	}
	for key := range baseline {
		if _, inDst := dstIdx[key]; !inDst {
			continue
		}
		if _, inSrc := srcIdx[key]; inSrc {
			continue
		}
		toRemove = append(toRemove, key)
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

// resolveItem picks the richer Item for key, preferring dst's copy (its
// vendor ids are what the destination adapter will need to target) merged
// with src's ids, per spec §4.5 step 4 and §4.1 merge_ids.
func resolveItem(key string, srcIdx, dstIdx map[string]identity.Item) identity.Item {
	srcItem, inSrc := srcIdx[key]
	dstItem, inDst := dstIdx[key]
	switch {
	case inDst && inSrc:
		merged := dstItem
		merged.IDs = identity.MergeIDs(dstItem.IDs, srcItem.IDs)
		return merged
	case inSrc:
		return srcItem
	default:
		return dstItem
	}
}

// resolveConflicts implements spec §4.5 step 3's two-way conflict policy:
// for keys present on both sides with different feature payloads,
// last-writer-wins by rated_at/watched_at when available, else union (IDs
// merged, richer Item kept). The result is the reconciled baseline stored
// after a two-way run.
func resolveConflicts(a, b map[string]identity.Item) map[string]identity.Item {
	out := make(map[string]identity.Item, len(a)+len(b))
	for key, item := range a {
		out[key] = item
	}
	for key, bItem := range b {
		aItem, ok := out[key]
		if !ok {
			out[key] = bItem
			continue
		}
		out[key] = mergeByRecency(aItem, bItem)
	}
	return out
}

// mergeByRecency picks whichever of a/b has the later rated_at/watched_at
// timestamp; when neither carries a timestamp it falls back to a plain ID
// union (§4.5: "conflict policy: last-writer-wins ... else union").
func mergeByRecency(a, b identity.Item) identity.Item {
	at := latestTimestamp(a)
	bt := latestTimestamp(b)
	switch {
	case at.IsZero() && bt.IsZero():
		merged := a
		merged.IDs = identity.MergeIDs(a.IDs, b.IDs)
		return merged
	case bt.After(at):
		merged := b
		merged.IDs = identity.MergeIDs(b.IDs, a.IDs)
		return merged
	default:
		merged := a
		merged.IDs = identity.MergeIDs(a.IDs, b.IDs)
		return merged
	}
}

func latestTimestamp(item identity.Item) time.Time {
	best := time.Time{}
	for _, raw := range []string{item.RatedAt, item.WatchedAt} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil && t.After(best) {
			best = t
		}
	}
	return best
}
