// Package lockout tracks failed login attempts per username and locks
// accounts that exceed the configured failure threshold within a window.
//
// A username is in one of three states: Clear (no record), Accruing
// (failures below the threshold) or Locked (lockedUntil in the future).
// Lock expiry is passive: it is evaluated whenever the record is read or
// updated, never by a timer.
package lockout

import (
	"sync"
	"time"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
)

// Config holds the lockout thresholds. Values are fixed per Tracker;
// tests construct trackers with tightened thresholds directly.
type Config struct {
	// Threshold is the number of failures within Window that locks the
	// account.
	Threshold int
	// Window anchors failure accrual: a failure arriving more than
	// Window after the first one restarts the count.
	Window time.Duration
	// Duration is how long a triggered lock lasts.
	Duration time.Duration
}

// Tracker is the lockout state machine. All operations are atomic per
// username; different usernames do not contend beyond a short map lookup.
type Tracker struct {
	cfg     Config
	mu      sync.Mutex
	records map[string]*record
}

type record struct {
	mu           sync.Mutex
	failureCount int
	windowStart  time.Time
	lockedUntil  *time.Time
	gone         bool // removed from the map; holders must re-lookup
}

// NewTracker creates an empty tracker with the given thresholds.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg,
		records: make(map[string]*record),
	}
}

// Status reports the current lockout state for username, applying passive
// expiry first. Usernames without a record report Clear.
func (t *Tracker) Status(username string, now time.Time) models.LockoutStatus {
	t.mu.Lock()
	r, ok := t.records[username]
	t.mu.Unlock()
	if !ok {
		return models.LockoutStatus{}
	}

	r.mu.Lock()
	if r.gone {
		r.mu.Unlock()
		return models.LockoutStatus{}
	}
	r.expire(now)
	st := r.status(now)
	empty := r.failureCount == 0 && r.lockedUntil == nil
	r.mu.Unlock()

	if empty {
		t.evict(username, r)
	}
	return st
}

// RecordFailure registers a failed attempt for username and returns the
// resulting state. A failure arriving after the accrual window restarts
// the count at one; a failure that reaches the threshold sets
// lockedUntil. Callers must not invoke RecordFailure for attempts
// rejected because the account was already locked: a standing lock is
// never extended.
func (t *Tracker) RecordFailure(username string, now time.Time) models.LockoutStatus {
	for {
		r := t.getOrCreate(username)
		r.mu.Lock()
		if r.gone {
			r.mu.Unlock()
			continue
		}
		r.expire(now)

		if r.failureCount == 0 || now.Sub(r.windowStart) > t.cfg.Window {
			r.failureCount = 1
			r.windowStart = now
		} else {
			r.failureCount++
		}

		if r.lockedUntil == nil && r.failureCount >= t.cfg.Threshold {
			until := now.Add(t.cfg.Duration)
			r.lockedUntil = &until
		}

		st := r.status(now)
		r.mu.Unlock()
		return st
	}
}

// RecordSuccess clears accrued failures for username. A success cannot
// occur while locked (locked attempts are rejected before credential
// verification), so an active lock is left untouched.
func (t *Tracker) RecordSuccess(username string, now time.Time) {
	t.mu.Lock()
	r, ok := t.records[username]
	t.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	if r.gone {
		r.mu.Unlock()
		return
	}
	r.expire(now)
	locked := r.lockedUntil != nil && now.Before(*r.lockedUntil)
	if !locked {
		r.failureCount = 0
		r.lockedUntil = nil
	}
	empty := r.failureCount == 0 && r.lockedUntil == nil
	r.mu.Unlock()

	if empty {
		t.evict(username, r)
	}
}

// Unblock clears any lock and accrued failures for username. Idempotent:
// unblocking a clear username is a no-op.
func (t *Tracker) Unblock(username string) {
	t.mu.Lock()
	r, ok := t.records[username]
	t.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	if r.gone {
		r.mu.Unlock()
		return
	}
	r.failureCount = 0
	r.lockedUntil = nil
	r.mu.Unlock()

	t.evict(username, r)
}

// Tracked reports the number of usernames with live records. Used by
// tests to verify passive cleanup.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

func (t *Tracker) getOrCreate(username string) *record {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[username]
	if !ok {
		r = &record{}
		t.records[username] = r
	}
	return r
}

// evict removes a record that decayed to Clear. Lock order is always map
// then record; the emptiness check repeats under both locks because a
// concurrent RecordFailure may have run in between.
func (t *Tracker) evict(username string, r *record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.records[username] != r {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failureCount == 0 && r.lockedUntil == nil {
		r.gone = true
		delete(t.records, username)
	}
}

// expire applies the passive Locked -> Clear transition. Caller holds
// r.mu.
func (r *record) expire(now time.Time) {
	if r.lockedUntil != nil && !now.Before(*r.lockedUntil) {
		r.failureCount = 0
		r.lockedUntil = nil
	}
}

// status snapshots the record. Caller holds r.mu and has already applied
// expiry.
func (r *record) status(now time.Time) models.LockoutStatus {
	st := models.LockoutStatus{FailureCount: r.failureCount}
	if r.lockedUntil != nil && now.Before(*r.lockedUntil) {
		st.Locked = true
		until := *r.lockedUntil
		st.LockedUntil = &until
	}
	return st
}
