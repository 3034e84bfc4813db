// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package progress implements C8 ProgressEmitter: a tiny throttled progress
// ticker wrapping a callback, grounded directly on the original CrossWatch
// Python implementation's providers/sync/_mod_common.py SnapshotProgress
// class (same throttle default, same event shape, same force/final
// semantics).
package progress

import (
	"sync"
	"time"
)

// Event is the payload emitted on every (non-dropped) tick, per spec §4.8:
// "{dst, feature, done, total?, ok?, final?}".
type Event struct {
	Dst     string `json:"dst"`
	Feature string `json:"feature"`
	Done    int    `json:"done"`
	Total   *int   `json:"total,omitempty"`
	OK      *bool  `json:"ok,omitempty"`
	Final   bool   `json:"final,omitempty"`
}

// Sink receives progress events. If no consumer is attached (a nil Sink),
// events are silently dropped, per spec §4.8.
type Sink func(Event)

// Emitter throttles ticks to at most one event per window unless force is
// set, always emitting a final event with Final:true.
type Emitter struct {
	sink    Sink
	dst     string
	feature string
	total   *int
	window  time.Duration

	mu       sync.Mutex
	lastTick time.Time
	lastDone int
}

// DefaultThrottle matches spec §4.8 and the Python original's throttle_ms
// default of 300.
const DefaultThrottle = 300 * time.Millisecond

// New builds an Emitter. throttle <= 0 falls back to DefaultThrottle,
// mirroring the Python original's `max(100, int(throttle_ms))` floor.
func New(sink Sink, dst, feature string, total *int, throttle time.Duration) *Emitter {
	if throttle < 100*time.Millisecond {
		throttle = DefaultThrottle
	}
	return &Emitter{sink: sink, dst: dst, feature: feature, total: total, window: throttle}
}

// Tick reports done (and optionally updates total/ok), throttled unless
// force is set. A done==0 with no total and not forced is dropped
// entirely, matching the Python original's zero-progress short-circuit.
func (e *Emitter) Tick(done int, total *int, ok *bool, force bool) {
	t := e.total
	if total != nil {
		t = total
	}

	if !force && done == 0 && (t == nil || *t == 0) {
		e.mu.Lock()
		e.lastDone = 0
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	now := time.Now()
	if !force && !e.lastTick.IsZero() && now.Sub(e.lastTick) < e.window {
		if done > e.lastDone {
			e.lastDone = done
		}
		e.mu.Unlock()
		return
	}
	e.lastTick = now
	if done > e.lastDone {
		e.lastDone = done
	}
	e.mu.Unlock()

	e.emit(Event{Dst: e.dst, Feature: e.feature, Done: done, Total: t, OK: ok})
}

// Done emits the final event with Final:true and the last recorded done
// count, per spec §4.8 "always emits a final event with final:true".
func (e *Emitter) Done(ok *bool, total *int) {
	t := e.total
	if total != nil {
		t = total
	}
	e.mu.Lock()
	done := e.lastDone
	e.mu.Unlock()
	e.emit(Event{Dst: e.dst, Feature: e.feature, Done: done, Total: t, OK: ok, Final: true})
}

func (e *Emitter) emit(ev Event) {
	if e.sink == nil {
		return
	}
	e.sink(ev)
}

// BoolPtr is a convenience constructor for Event.OK/Tick's ok argument.
func BoolPtr(b bool) *bool { return &b }

// IntPtr is a convenience constructor for Event.Total/Tick's total argument.
func IntPtr(n int) *int { return &n }
