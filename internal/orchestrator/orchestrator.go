// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package orchestrator is the process composition root: it builds the
// ManifestRegistry (C7), owns one suture.Supervisor-backed service per
// configured pair, and exposes a TriggerSync entry point alongside each
// pair's periodic-trigger loop — the Go-native replacement for the Python
// original's ad-hoc scheduler thread.
//
// Lifecycle (Start/Stop, mutex-guarded running, on-demand trigger) is
// grounded on internal/sync/manager.go's Manager; per-pair supervision is
// grounded on internal/supervisor/tree.go's SupervisorTree.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/crosswatch-sync/crosswatch/internal/config"
	"github.com/crosswatch-sync/crosswatch/internal/logging"
	"github.com/crosswatch-sync/crosswatch/internal/progress"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
	"github.com/crosswatch-sync/crosswatch/internal/reconciler"
	"github.com/crosswatch-sync/crosswatch/internal/registry"
	"github.com/crosswatch-sync/crosswatch/internal/statestore"
	"github.com/crosswatch-sync/crosswatch/internal/supervisor"
)

// pairID names a configured pair uniquely for lookup/trigger purposes.
func pairID(p config.PairConfig) string {
	return fmt.Sprintf("%s/%s->%s/%s", p.Source, p.SourceInstance, p.Target, p.TargetInstance)
}

// Orchestrator is the top-level process composition root. It is built
// once at startup from a Registry (C7) and a Reconciler (C5).
type Orchestrator struct {
	registry   *registry.Registry
	reconciler *reconciler.Reconciler
	sink       progress.Sink

	mu      sync.RWMutex
	cfg     *config.Config
	running bool
	tree    *supervisor.SupervisorTree
	pairs   map[string]*pairService
}

// New builds an Orchestrator. sink receives progress events for every
// pair-sync task (may be nil, per spec §4.8).
func New(reg *registry.Registry, rec *reconciler.Reconciler, cfg *config.Config, sink progress.Sink) *Orchestrator {
	return &Orchestrator{
		registry:   reg,
		reconciler: rec,
		cfg:        cfg,
		sink:       sink,
		pairs:      map[string]*pairService{},
	}
}

// Start builds the supervisor tree and one pairService per enabled pair,
// then begins serving in the background. Mirrors Manager.Start's
// mutex-guarded running flag.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already running")
	}

	log := logging.ForProvider("orchestrator")
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("build supervisor tree: %w", err)
	}
	o.tree = tree

	for _, pc := range o.cfg.Pairs {
		if !pc.Enabled {
			continue
		}
		svc := o.newPairService(pc)
		o.pairs[pairID(pc)] = svc
		o.tree.AddMessagingService(svc)
	}
	o.running = true
	o.mu.Unlock()

	log.Info().Int("pairs", len(o.pairs)).Msg("orchestrator starting")
	go func() {
		if err := o.tree.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("supervisor tree stopped with error")
		}
	}()
	return nil
}

// Stop signals every pairService to exit and waits for the tree to drain.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: not running")
	}
	o.running = false
	tree := o.tree
	o.mu.Unlock()

	if _, err := tree.UnstoppedServiceReport(); err != nil {
		logging.ForProvider("orchestrator").Warn().Err(err).Msg("unstopped services at shutdown")
	}
	return nil
}

// TriggerSync runs one pair immediately, out of band from its periodic
// schedule. It blocks until the run completes.
func (o *Orchestrator) TriggerSync(ctx context.Context, id string) (reconciler.Result, error) {
	o.mu.RLock()
	svc, ok := o.pairs[id]
	o.mu.RUnlock()
	if !ok {
		return reconciler.Result{}, fmt.Errorf("orchestrator: unknown pair %q", id)
	}
	return svc.runOnce(ctx)
}

// PairIDs lists every currently-enabled pair's id, stable until Stop.
func (o *Orchestrator) PairIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.pairs))
	for id := range o.pairs {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) newPairService(pc config.PairConfig) *pairService {
	interval := time.Duration(pc.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.DefaultPairIntervalSeconds) * time.Second
	}
	return &pairService{
		orch:     o,
		cfg:      pc,
		interval: interval,
		trigger:  make(chan chan runOutcome, 1),
	}
}

type runOutcome struct {
	result reconciler.Result
	err    error
}

// pairService is a suture.Service running one pair's periodic-trigger
// loop. Each tick (and each manual TriggerSync) resolves fresh adapters
// from the Registry and reconciles through the Reconciler, so config
// edits to a pair's instances take effect on the next run without a
// restart, per spec §4.7 "never caches across config changes".
type pairService struct {
	orch     *Orchestrator
	cfg      config.PairConfig
	interval time.Duration
	trigger  chan chan runOutcome
}

// Serve implements suture.Service: it loops until ctx is canceled,
// re-running the pair on every tick of interval and on every manual
// trigger request.
func (p *pairService) Serve(ctx context.Context) error {
	log := logging.ForProvider("orchestrator").With().Str("pair", pairID(p.cfg)).Logger()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case reply := <-p.trigger:
			result, err := p.run(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("triggered pair-sync failed")
			}
			reply <- runOutcome{result: result, err: err}
		case <-ticker.C:
			if _, err := p.run(ctx); err != nil {
				log.Warn().Err(err).Msg("scheduled pair-sync failed")
			}
		}
	}
}

// runOnce asks the running Serve loop to execute the pair immediately and
// waits for its outcome, so concurrent triggers and ticks never race
// against each other on the same pair's adapters/state.
func (p *pairService) runOnce(ctx context.Context) (reconciler.Result, error) {
	reply := make(chan runOutcome, 1)
	select {
	case p.trigger <- reply:
	case <-ctx.Done():
		return reconciler.Result{}, ctx.Err()
	}
	select {
	case out := <-reply:
		return out.result, out.err
	case <-ctx.Done():
		return reconciler.Result{}, ctx.Err()
	}
}

// run builds both adapters for the current config snapshot and runs every
// enabled feature through the Reconciler, accumulating a combined Result.
func (p *pairService) run(ctx context.Context) (reconciler.Result, error) {
	p.orch.mu.RLock()
	cfg := p.orch.cfg
	p.orch.mu.RUnlock()

	src, err := p.orch.registry.Build(cfg, p.cfg.Source, p.cfg.SourceInstance)
	if err != nil {
		return reconciler.Result{}, fmt.Errorf("build source adapter: %w", err)
	}
	dst, err := p.orch.registry.Build(cfg, p.cfg.Target, p.cfg.TargetInstance)
	if err != nil {
		return reconciler.Result{}, fmt.Errorf("build target adapter: %w", err)
	}

	var total reconciler.Result
	for feature, enabled := range p.cfg.Features {
		if !enabled {
			continue
		}
		spec := reconciler.PairSpec{
			SrcProvider: p.cfg.Source,
			SrcInstance: config.NormalizeInstanceID(p.cfg.SourceInstance),
			DstProvider: p.cfg.Target,
			DstInstance: config.NormalizeInstanceID(p.cfg.TargetInstance),
			Feature:     provider.Feature(feature),
			Direction:   reconciler.Direction(p.cfg.Direction),
		}
		result, err := p.orch.reconciler.Run(ctx, src, dst, spec, reconciler.RunOptions{Sink: p.orch.sink})
		if err != nil {
			return total, fmt.Errorf("reconcile feature %q: %w", feature, err)
		}
		total.AddedToDst += result.AddedToDst
		total.RemovedFromDst += result.RemovedFromDst
		total.AddedToSrc += result.AddedToSrc
		total.RemovedFromSrc += result.RemovedFromSrc
		total.ConfirmedKeys = append(total.ConfirmedKeys, result.ConfirmedKeys...)
		total.SkippedKeys = append(total.SkippedKeys, result.SkippedKeys...)
		total.Unresolved = append(total.Unresolved, result.Unresolved...)
	}
	total.Status = "ok"
	if len(total.Unresolved) > 0 {
		total.Status = "partial"
	}
	return total, nil
}

// NewStateBackedReconciler is a small convenience constructor used by the
// cmd/ entrypoint to wire the Reconciler and a statestore.Store together
// without that caller needing to import statestore directly.
func NewStateBackedReconciler(dir, stateName string) (*reconciler.Reconciler, error) {
	store, err := statestore.New(dir)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return reconciler.New(store, stateName), nil
}

var _ suture.Service = (*pairService)(nil)
