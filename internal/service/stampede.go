package service

import (
	"sync"

	"github.com/kjstillabower/forecast-service/internal/observability"
)

// Outcomes of a cache miss that overlapped another miss for the same location.
const (
	missFetched   = "fetched"
	missCoalesced = "coalesced"
)

// missTracker follows cache misses per normalized location while their fetch is in
// progress. More than one in-progress miss for a location is a stampede.
type missTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newMissTracker() *missTracker {
	return &missTracker{active: make(map[string]int)}
}

// begin registers a miss for location. It returns how many misses for location are in
// progress, this one included, and the func that ends the miss.
func (mt *missTracker) begin(location string) (int, func()) {
	mt.mu.Lock()
	mt.active[location]++
	n := mt.active[location]
	mt.mu.Unlock()

	var once sync.Once
	return n, func() { once.Do(func() { mt.end(location) }) }
}

func (mt *missTracker) end(location string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.active[location] <= 1 {
		delete(mt.active, location)
		return
	}
	mt.active[location]--
}

func (mt *missTracker) inProgress(location string) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.active[location]
}

// observeMiss publishes a resolved miss. concurrent is the count begin returned;
// absorbed reports that another caller's fetch answered this miss.
func observeMiss(location string, concurrent int, absorbed bool) {
	outcome := missFetched
	if absorbed {
		outcome = missCoalesced
		observability.CoalescedRequestsTotal.Inc()
	}
	if concurrent <= 1 {
		return
	}
	label := observability.MetricLocationLabel(location)
	observability.CacheStampedeDetectedTotal.WithLabelValues(label, outcome).Inc()
	observability.CacheStampedeConcurrency.WithLabelValues(label).Observe(float64(concurrent))
}
