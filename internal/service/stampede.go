package service

import (
	"sync"

	"github.com/kjstillabower/address-weather-service/internal/observability"
)

// stampedeTracker tracks concurrent cache misses per key to detect cache stampede.
// RecordMiss increments and returns the count for the key; Done decrements.
// When multiple requests miss the same key simultaneously, concurrent count exceeds 1.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int // key -> number of concurrent misses in progress
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{
		activeMisses: make(map[string]int),
	}
}

// RecordMiss records a cache miss for key and returns the concurrent miss count after incrementing.
// Caller should defer Done(key) when the miss is resolved.
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

// Done records completion of a miss for key.
func (st *stampedeTracker) Done(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[key]; ok && count > 0 {
		st.activeMisses[key]--
		if st.activeMisses[key] == 0 {
			delete(st.activeMisses, key)
		}
	}
}

// track records a miss on key for kind and returns the func that resolves it.
func (st *stampedeTracker) track(kind, key string) func() {
	if n := st.RecordMiss(key); n > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(kind).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(kind).Observe(float64(n))
	}
	return func() { st.Done(key) }
}
