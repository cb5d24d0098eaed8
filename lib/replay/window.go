// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"errors"
	"sync"
	"time"

	"github.com/overyonder/turret/lib/clock"
)

// MaxSkew is the tolerated distance between an envelope timestamp and
// the gate's wall clock, in either direction.
const MaxSkew = 120 * time.Second

// DefaultMaxEntries bounds the window's cardinality. 65536 live
// nonces inside a two-minute window is far beyond any legitimate
// local workload.
const DefaultMaxEntries = 65536

var (
	// ErrOutsideWindow reports a timestamp more than MaxSkew away
	// from the current wall clock.
	ErrOutsideWindow = errors.New("timestamp outside replay window")

	// ErrReplay reports a (principal, nonce) pair already seen inside
	// the window.
	ErrReplay = errors.New("nonce already seen")

	// ErrWindowFull reports that the window is at capacity and the
	// entry could not be recorded. The dispatcher surfaces this as an
	// internal error rather than admitting an unverifiable envelope.
	ErrWindowFull = errors.New("replay window at capacity")
)

// entry records when a (principal, nonce) pair was observed, by the
// envelope's own timestamp. Eviction compares the stored timestamp
// against the wall clock so the whole pair ages out together.
type entry struct {
	timestampMS uint64
}

// Window is the sliding anti-replay map. All methods are safe for
// concurrent use.
type Window struct {
	clock      clock.Clock
	maxEntries int

	mu   sync.Mutex
	seen map[string]entry
}

// NewWindow creates an empty window. maxEntries bounds cardinality;
// zero or negative selects DefaultMaxEntries.
func NewWindow(clk clock.Clock, maxEntries int) *Window {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Window{
		clock:      clk,
		maxEntries: maxEntries,
		seen:       make(map[string]entry),
	}
}

// Check validates an envelope's freshness and records its nonce.
// Returns nil and records the pair if the timestamp is within MaxSkew
// of the current wall clock and the (principal, nonce) pair is new.
func (w *Window) Check(principal []byte, timestampMS uint64, nonce []byte) error {
	nowMS := uint64(w.clock.Now().UnixMilli())
	if !withinSkew(nowMS, timestampMS) {
		return ErrOutsideWindow
	}

	key := windowKey(principal, nonce)

	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, dup := w.seen[key]; dup {
		if withinSkew(nowMS, existing.timestampMS) {
			return ErrReplay
		}
		// The stored pair has aged out; overwriting it does not grow
		// the map, so skip the capacity check.
		w.seen[key] = entry{timestampMS: timestampMS}
		return nil
	}

	if len(w.seen) >= w.maxEntries {
		w.evictExpired(nowMS)
		if len(w.seen) >= w.maxEntries {
			return ErrWindowFull
		}
	}

	w.seen[key] = entry{timestampMS: timestampMS}
	return nil
}

// Len reports the number of live entries. Test and status hook.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// evictExpired removes entries whose timestamps have aged out of the
// skew window. Called with w.mu held.
func (w *Window) evictExpired(nowMS uint64) {
	for key, e := range w.seen {
		if !withinSkew(nowMS, e.timestampMS) {
			delete(w.seen, key)
		}
	}
}

// withinSkew reports whether two millisecond timestamps are within
// MaxSkew of each other. Unsigned arithmetic, so compare both ways.
func withinSkew(nowMS, timestampMS uint64) bool {
	maxSkewMS := uint64(MaxSkew / time.Millisecond)
	if timestampMS > nowMS {
		return timestampMS-nowMS <= maxSkewMS
	}
	return nowMS-timestampMS <= maxSkewMS
}

// windowKey joins principal and nonce into a single map key. The
// length prefix keeps ("ab","c") distinct from ("a","bc").
func windowKey(principal, nonce []byte) string {
	key := make([]byte, 0, 4+len(principal)+len(nonce))
	key = append(key,
		byte(len(principal)>>24), byte(len(principal)>>16),
		byte(len(principal)>>8), byte(len(principal)))
	key = append(key, principal...)
	key = append(key, nonce...)
	return string(key)
}
