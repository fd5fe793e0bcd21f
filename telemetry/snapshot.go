package telemetry

import "time"

// CacheSnapshot is the cache section of a telemetry snapshot.
type CacheSnapshot struct {
	Hits             uint64     `json:"hits"`
	Misses           uint64     `json:"misses"`
	Evictions        uint64     `json:"evictions"`
	MemoryUsage      int64      `json:"memory_usage"`
	MaxMemory        int64      `json:"max_memory"`
	EntriesCount     int        `json:"entries_count"`
	LastEviction     *time.Time `json:"last_eviction,omitempty"`
	HitRatio         float64    `json:"hit_ratio"`
	MemoryUsageRatio float64    `json:"memory_usage_ratio"`
}

// PerfSnapshot is the performance section of a telemetry snapshot.
type PerfSnapshot struct {
	AvgSimilarityTimeUS        float64 `json:"avg_similarity_time_us"`
	AvgSearchTimeMS            float64 `json:"avg_search_time_ms"`
	TotalSimilarityComputations uint64 `json:"total_similarity_computations"`
	TotalSearches              uint64  `json:"total_searches"`
}

// Snapshot is a self-consistent view of the service telemetry.
type Snapshot struct {
	Cache       CacheSnapshot `json:"cache"`
	Performance PerfSnapshot  `json:"performance"`
	System      SystemInfo    `json:"system"`
	CollectedAt time.Time     `json:"collected_at"`
}

// Snapshot copies the current state. The composite lock is taken once so
// the cache and performance sections are mutually consistent.
func (s *Stats) Snapshot() Snapshot {
	hits := s.hits.Load()
	misses := s.misses.Load()
	evictions := s.evictions.Load()

	s.mu.Lock()
	cache := CacheSnapshot{
		Hits:         hits,
		Misses:       misses,
		Evictions:    evictions,
		MemoryUsage:  s.memoryUsage,
		MaxMemory:    s.maxMemory,
		EntriesCount: s.entriesCount,
	}
	if !s.lastEviction.IsZero() {
		t := s.lastEviction
		cache.LastEviction = &t
	}
	perf := PerfSnapshot{
		AvgSimilarityTimeUS:         s.avgSimilarityUS,
		AvgSearchTimeMS:             s.avgSearchMS,
		TotalSimilarityComputations: s.totalSimilarity,
		TotalSearches:               s.totalSearches,
	}
	s.mu.Unlock()

	if total := hits + misses; total > 0 {
		cache.HitRatio = float64(hits) / float64(total)
	}
	if s.maxMemory > 0 {
		cache.MemoryUsageRatio = float64(cache.MemoryUsage) / float64(s.maxMemory)
	}

	return Snapshot{
		Cache:       cache,
		Performance: perf,
		System:      CollectSystemInfo(),
		CollectedAt: time.Now().UTC(),
	}
}
