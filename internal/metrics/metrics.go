// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package metrics exposes Prometheus instrumentation for the pair-sync
// engine: reconciliation duration, add/remove outcomes, circuit breaker
// state, and snapshot operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileDuration observes wall-clock time for one pair-sync run.
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crosswatch_reconcile_duration_seconds",
			Help:    "Duration of a pair-sync reconciliation run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pair", "feature", "direction"},
	)

	// ReconcileOutcomes counts pair-sync runs by terminal status.
	ReconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_reconcile_outcomes_total",
			Help: "Total pair-sync runs by terminal status",
		},
		[]string{"pair", "feature", "status"}, // status: ok, timeout, error
	)

	// ItemsApplied counts items successfully added/removed at a destination.
	ItemsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_items_applied_total",
			Help: "Total items applied to a destination provider",
		},
		[]string{"provider", "feature", "op"}, // op: add, remove
	)

	// UnresolvedTotal counts items that could not be applied, by taxonomy reason.
	UnresolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_unresolved_total",
			Help: "Total items left unresolved, labeled by error-taxonomy reason",
		},
		[]string{"provider", "feature", "reason"},
	)

	// CircuitBreakerState reports the current gobreaker state per adapter
	// (0=closed, 1=half-open, 2=open), grounded on internal/sync's
	// stateToFloat helper.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crosswatch_circuit_breaker_state",
			Help: "Circuit breaker state per provider instance (0=closed,1=half-open,2=open)",
		},
		[]string{"provider", "instance"},
	)

	// HTTPRequestDuration observes outbound HTTPClient call latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crosswatch_http_request_duration_seconds",
			Help:    "Outbound HTTP request duration by endpoint label",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"provider", "label", "status_class"},
	)

	// HTTPRetries counts retry attempts issued by HTTPClient.request_with_retries.
	HTTPRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_http_retries_total",
			Help: "Total HTTP retry attempts, labeled by cause",
		},
		[]string{"provider", "label", "cause"}, // cause: status_code, network_error
	)

	// SnapshotOperations counts Snapshotter operations by kind and outcome.
	SnapshotOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_snapshot_operations_total",
			Help: "Total snapshot operations by kind and outcome",
		},
		[]string{"op", "outcome"}, // op: create,restore,delete,diff; outcome: ok,error
	)

	// SnapshotRetentionDeleted counts snapshots pruned by retention policy.
	SnapshotRetentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosswatch_snapshot_retention_deleted_total",
			Help: "Total snapshots removed by retention_days/max_snapshots policy",
		},
		[]string{"provider", "reason"}, // reason: age, overflow
	)
)

// StateToFloat converts a gobreaker state name into the gauge value used by
// CircuitBreakerState, mirroring internal/sync's stateToFloat helper.
func StateToFloat(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
