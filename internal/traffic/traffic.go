// Package traffic keeps short sliding windows of forecast lookup outcomes. The health
// endpoint reads them to decide whether upstream trouble makes the service degraded.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how far back any window may look.
const DefaultRetention = 5 * time.Minute

// Tracker maintains sliding windows of outcome timestamps. The zero value is not usable;
// call NewTracker.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	retention time.Duration

	servedTimes []time.Time
	failedTimes []time.Time
	deniedTimes []time.Time
}

// NewTracker returns a Tracker keeping DefaultRetention of history.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, retention: DefaultRetention}
}

// RecordServed records a lookup that produced a forecast (cached or fetched).
func (t *Tracker) RecordServed() {
	t.recordOutcome(&t.servedTimes)
}

// RecordFailed records a lookup that could not produce a forecast because of upstream.
func (t *Tracker) RecordFailed() {
	t.recordOutcome(&t.failedTimes)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns served + failed + denied within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countInWindow(t.servedTimes, cutoff) +
		countInWindow(t.failedTimes, cutoff) +
		countInWindow(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, t.now().Add(-window))
}

// ErrorRate returns (failed, served+failed) within the window. Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (failed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	failed = countInWindow(t.failedTimes, cutoff)
	return failed, failed + countInWindow(t.servedTimes, cutoff)
}

// Degraded reports whether failures reached thresholdPct of lookups in the window.
// An empty window is never degraded.
func (t *Tracker) Degraded(window time.Duration, thresholdPct int) bool {
	failed, total := t.ErrorRate(window)
	if total == 0 {
		return false
	}
	return failed*100 >= thresholdPct*total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servedTimes = nil
	t.failedTimes = nil
	t.deniedTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.servedTimes)
	prune(&t.failedTimes)
	prune(&t.deniedTimes)
}
