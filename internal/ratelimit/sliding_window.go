// Package ratelimit implements a per-key sliding window counter used for
// per-user login throttling. Per-IP throttling lives at the HTTP edge
// (internal/middleware) and does not go through this package.
package ratelimit

import (
	"sync"
	"time"
)

// Window counts events per key within a trailing time window. Expired
// events are pruned lazily on every record/count; there is no background
// sweeper. Keys whose events have all expired are dropped from the map.
//
// All operations are atomic per key. Different keys do not contend beyond
// a short map lookup.
type Window struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	events []time.Time
	gone   bool // entry was removed from the map; holders must re-lookup
}

// NewWindow creates an empty counter.
func NewWindow() *Window {
	return &Window{
		entries: make(map[string]*entry),
	}
}

// Record appends an event timestamp for key.
func (w *Window) Record(key string, now time.Time) {
	for {
		e := w.getOrCreate(key)
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		e.events = append(e.events, now)
		e.mu.Unlock()
		return
	}
}

// CountWithin returns the number of events for key with timestamp at or
// after now-window. Unknown keys count zero.
func (w *Window) CountWithin(key string, window time.Duration, now time.Time) int {
	w.mu.Lock()
	e, ok := w.entries[key]
	w.mu.Unlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return 0
	}
	e.prune(window, now)
	count := len(e.events)
	e.mu.Unlock()

	if count == 0 {
		w.evictIfEmpty(key, e)
	}
	return count
}

// RecordAndCount atomically records an event for key and returns the
// number of events within the window, including the one just recorded.
// This is the operation the login path uses: check-then-record as two
// separate calls would let concurrent attempts race past the limit.
func (w *Window) RecordAndCount(key string, window time.Duration, now time.Time) int {
	for {
		e := w.getOrCreate(key)
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		e.prune(window, now)
		e.events = append(e.events, now)
		count := len(e.events)
		e.mu.Unlock()
		return count
	}
}

// Keys reports the number of tracked keys. Used by tests to verify lazy
// eviction.
func (w *Window) Keys() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Window) getOrCreate(key string) *entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[key]
	if !ok {
		e = &entry{}
		w.entries[key] = e
	}
	return e
}

// evictIfEmpty removes an entry that lazily pruned down to nothing.
// Lock order is always map then entry, so the entry lock is reacquired
// after the map lock; the emptiness check repeats because a concurrent
// Record may have run in between.
func (w *Window) evictIfEmpty(key string, e *entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entries[key] != e {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		e.gone = true
		delete(w.entries, key)
	}
}

// prune drops events older than now-window. Events are appended in
// arrival order, so a single scan from the front suffices. Caller holds
// e.mu.
func (e *entry) prune(window time.Duration, now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(e.events) && e.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		e.events = append(e.events[:0], e.events[i:]...)
	}
}
