// Package telemetry collects the operational metrics of the embedding
// service: cache counters, memory gauges, per-operation timings and a
// self-consistent JSON snapshot.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// ewmaAlpha is the decay factor of the moving averages. Recent samples
// dominate after ~20 observations.
const ewmaAlpha = 0.1

// Stats is the process-wide telemetry of the embedding service.
//
// Hot counters (hits, misses, evictions) are plain atomics. Composite state
// (memory gauge, entry count, last eviction, moving averages) is guarded by
// a short-held mutex that Snapshot reads exactly once.
type Stats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	mu           sync.Mutex
	memoryUsage  int64
	maxMemory    int64
	entriesCount int
	lastEviction time.Time

	avgSimilarityUS float64
	avgSearchMS     float64
	totalSimilarity uint64
	totalSearches   uint64
}

// NewStats creates a Stats with the configured memory ceiling.
func NewStats(maxMemory int64) *Stats {
	return &Stats{maxMemory: maxMemory}
}

// RecordHit counts a cache hit.
func (s *Stats) RecordHit() {
	s.hits.Add(1)
	cacheHits.Inc()
}

// RecordMiss counts a cache miss.
func (s *Stats) RecordMiss() {
	s.misses.Add(1)
	cacheMisses.Inc()
}

// RecordEviction counts one evicted table.
func (s *Stats) RecordEviction(at time.Time) {
	s.evictions.Add(1)
	cacheEvictions.Inc()

	s.mu.Lock()
	s.lastEviction = at
	s.mu.Unlock()
}

// SetMemory updates the memory gauge and entry count. Called under the
// cache's admission lock after every admission and eviction.
func (s *Stats) SetMemory(usage int64, entries int) {
	s.mu.Lock()
	s.memoryUsage = usage
	s.entriesCount = entries
	s.mu.Unlock()

	cacheMemoryBytes.Set(float64(usage))
	cacheEntries.Set(float64(entries))
}

// RecordSimilarity implements similarity.Recorder. total covers n
// computations of one scan; the moving average tracks the per-computation
// cost in microseconds.
func (s *Stats) RecordSimilarity(total time.Duration, n int) {
	if n <= 0 {
		return
	}
	perUS := float64(total.Microseconds()) / float64(n)

	s.mu.Lock()
	if s.totalSimilarity == 0 {
		s.avgSimilarityUS = perUS
	} else {
		s.avgSimilarityUS = ewmaAlpha*perUS + (1-ewmaAlpha)*s.avgSimilarityUS
	}
	s.totalSimilarity += uint64(n)
	s.mu.Unlock()
}

// RecordSearch implements similarity.Recorder.
func (s *Stats) RecordSearch(total time.Duration) {
	ms := float64(total.Microseconds()) / 1000

	s.mu.Lock()
	if s.totalSearches == 0 {
		s.avgSearchMS = ms
	} else {
		s.avgSearchMS = ewmaAlpha*ms + (1-ewmaAlpha)*s.avgSearchMS
	}
	s.totalSearches++
	s.mu.Unlock()

	searchDuration.Observe(total.Seconds())
}

// RecordLoad reports one completed file load to the histogram.
func (s *Stats) RecordLoad(total time.Duration) {
	loadDuration.Observe(total.Seconds())
}

// Reset clears the counters and moving averages. The memory gauge and
// entry count describe live state and are left untouched.
func (s *Stats) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.evictions.Store(0)

	s.mu.Lock()
	s.avgSimilarityUS = 0
	s.avgSearchMS = 0
	s.totalSimilarity = 0
	s.totalSearches = 0
	s.lastEviction = time.Time{}
	s.mu.Unlock()
}

// Hits returns the hit counter.
func (s *Stats) Hits() uint64 { return s.hits.Load() }

// Misses returns the miss counter.
func (s *Stats) Misses() uint64 { return s.misses.Load() }

// Evictions returns the eviction counter.
func (s *Stats) Evictions() uint64 { return s.evictions.Load() }

// MemoryUsage returns the current memory gauge.
func (s *Stats) MemoryUsage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memoryUsage
}

// MaxMemory returns the configured ceiling.
func (s *Stats) MaxMemory() int64 { return s.maxMemory }
