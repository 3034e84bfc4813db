// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package logging provides centralized zerolog-based structured logging for
// CrossWatch's orchestrator, reconciler, snapshotter, and provider adapters.
//
// # Overview
//
// The package provides:
//   - Zero-allocation structured logging via zerolog
//   - JSON output format for production (CW_LOG_FORMAT=json, machine-parseable)
//   - Console/kv output format for development (CW_LOG_FORMAT=kv)
//   - Global logger configuration plus per-provider level overrides
//     (CW_LOG_LEVEL, CW_<PROV>_LOG_LEVEL)
//   - Context-aware logging with correlation ID propagation
//   - slog adapter for Suture v4 supervisor integration
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("pair", pairID).Msg("pair-sync started")
//	logging.ForProvider("plex").Debug().Msg("watchlist index built")
//
// # Component Loggers
//
//	syncLogger := logging.With().Str("component", "reconciler").Logger()
//	syncLogger.Info().Msg("delta computed")
//
// # slog Adapter
//
//	slogger := slog.New(logging.NewSlogHandler())
//	// pass slogger to supervisor.NewTree for suture's EventHook
package logging
