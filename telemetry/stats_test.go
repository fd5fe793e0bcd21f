package telemetry

import (
	"runtime"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_Counters(t *testing.T) {
	s := NewStats(1000)

	s.RecordHit()
	s.RecordHit()
	s.RecordMiss()
	s.RecordEviction(time.Now())

	assert.EqualValues(t, 2, s.Hits())
	assert.EqualValues(t, 1, s.Misses())
	assert.EqualValues(t, 1, s.Evictions())
}

func TestStats_MemoryGauge(t *testing.T) {
	s := NewStats(1000)
	s.SetMemory(600, 2)

	assert.Equal(t, int64(600), s.MemoryUsage())
	assert.Equal(t, int64(1000), s.MaxMemory())
}

func TestStats_MovingAverages(t *testing.T) {
	s := NewStats(0)

	// First sample seeds the average directly.
	s.RecordSimilarity(100*time.Microsecond, 10)
	snap := s.Snapshot()
	assert.InDelta(t, 10.0, snap.Performance.AvgSimilarityTimeUS, 1e-9)
	assert.EqualValues(t, 10, snap.Performance.TotalSimilarityComputations)

	// Later samples decay toward the new value.
	s.RecordSimilarity(200*time.Microsecond, 10)
	snap = s.Snapshot()
	assert.InDelta(t, 0.1*20+0.9*10, snap.Performance.AvgSimilarityTimeUS, 1e-9)

	s.RecordSearch(4 * time.Millisecond)
	snap = s.Snapshot()
	assert.InDelta(t, 4.0, snap.Performance.AvgSearchTimeMS, 1e-9)
	assert.EqualValues(t, 1, snap.Performance.TotalSearches)
}

func TestStats_ZeroSampleIgnored(t *testing.T) {
	s := NewStats(0)
	s.RecordSimilarity(time.Second, 0)
	assert.Zero(t, s.Snapshot().Performance.TotalSimilarityComputations)
}

func TestStats_Reset(t *testing.T) {
	s := NewStats(1000)
	s.RecordHit()
	s.RecordMiss()
	s.RecordEviction(time.Now())
	s.RecordSearch(time.Millisecond)
	s.SetMemory(500, 1)

	s.Reset()

	snap := s.Snapshot()
	assert.Zero(t, snap.Cache.Hits)
	assert.Zero(t, snap.Cache.Misses)
	assert.Zero(t, snap.Cache.Evictions)
	assert.Nil(t, snap.Cache.LastEviction)
	assert.Zero(t, snap.Performance.TotalSearches)

	// Live state survives a reset.
	assert.Equal(t, int64(500), snap.Cache.MemoryUsage)
	assert.Equal(t, 1, snap.Cache.EntriesCount)
}

func TestSnapshot_Shape(t *testing.T) {
	s := NewStats(2000)
	s.RecordHit()
	s.RecordHit()
	s.RecordHit()
	s.RecordMiss()
	s.SetMemory(500, 1)
	evictedAt := time.Now()
	s.RecordEviction(evictedAt)

	snap := s.Snapshot()
	assert.InDelta(t, 0.75, snap.Cache.HitRatio, 1e-9)
	assert.InDelta(t, 0.25, snap.Cache.MemoryUsageRatio, 1e-9)
	require.NotNil(t, snap.Cache.LastEviction)
	assert.WithinDuration(t, evictedAt, *snap.Cache.LastEviction, time.Second)
	assert.False(t, snap.CollectedAt.IsZero())

	assert.Equal(t, runtime.NumCPU(), snap.System.CPUCores)
	assert.Equal(t, runtime.GOARCH, snap.System.Architecture)
	assert.Equal(t, runtime.GOOS, snap.System.OperatingSystem)
}

func TestSnapshot_JSONFields(t *testing.T) {
	s := NewStats(100)
	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "cache")
	assert.Contains(t, decoded, "performance")
	assert.Contains(t, decoded, "system")
	assert.Contains(t, decoded, "collected_at")

	cache := decoded["cache"].(map[string]any)
	for _, field := range []string{"hits", "misses", "evictions", "memory_usage", "max_memory", "entries_count"} {
		assert.Contains(t, cache, field)
	}
	// Omitted until the first eviction.
	assert.NotContains(t, cache, "last_eviction")
}
