// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package main is the entry point for the CrossWatch sync engine.
//
// CrossWatch reconciles watchlists, ratings, play history, and playlists
// across Plex, Jellyfin, Emby, Trakt, SIMKL, AniList, MDBList, TMDb,
// Tautulli, and a local "CrossWatch" store. It has no HTTP façade: the
// process composition root below builds the ManifestRegistry (C7), starts
// one supervised pair-sync service per configured pair, and blocks until
// signaled to shut down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, an optional config.yaml, then
// built-in defaults. See internal/config.Load.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/crosswatch-sync/crosswatch/internal/config"
	"github.com/crosswatch-sync/crosswatch/internal/logging"
	"github.com/crosswatch-sync/crosswatch/internal/orchestrator"
	"github.com/crosswatch-sync/crosswatch/internal/progress"
	"github.com/crosswatch-sync/crosswatch/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Info().Int("pairs", len(cfg.Pairs)).Msg("starting CrossWatch")

	reg := registry.NewDefault()

	stateDir := cfg.CrossWatch.RootDir
	if stateDir == "" {
		stateDir = "/config/.cw_provider"
	}
	rec, err := orchestrator.NewStateBackedReconciler(stateDir, "pairstate")
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open state store")
	}

	sink := progress.Sink(func(ev progress.Event) {
		logging.ForProvider(ev.Dst).Debug().
			Str("feature", ev.Feature).Int("done", ev.Done).Bool("final", ev.Final).
			Msg("pair-sync progress")
	})

	orch := orchestrator.New(reg, rec, cfg, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to start orchestrator")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info().Msg("shutting down CrossWatch")
	cancel()
	if err := orch.Stop(); err != nil {
		logging.Warn().Err(err).Msg("error during orchestrator shutdown")
	}
}
