// Package cache keeps loaded embedding tables in memory, bounded by soft
// and hard watermarks, with LRU eviction and TTL cleanup.
//
// Concurrency model: the entry map is guarded by an RWMutex so readers
// never block each other; per-entry access times are atomics. A single
// admission mutex serializes eviction planning and publication but is never
// held while a file is read from disk. Concurrent misses for the same key
// are coalesced through singleflight, so one file load serves all waiters;
// every request that found the key absent still counts as a miss.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/histtext/lexivec/blobstore"
	"github.com/histtext/lexivec/descriptor"
	"github.com/histtext/lexivec/embedding"
	"github.com/histtext/lexivec/loader"
	"github.com/histtext/lexivec/resolver"
	"github.com/histtext/lexivec/resource"
	"github.com/histtext/lexivec/telemetry"
)

// Key identifies a cached table: one collection on one backend.
type Key = descriptor.Key

// Loader decodes an embeddings file. Satisfied by *loader.Loader.
type Loader interface {
	Load(ctx context.Context, path string) (*embedding.Table, *loader.Stats, error)
}

// Watermarks of the memory budget: eviction triggers above the high mark
// and frees down to the target.
const (
	highWatermark   = 0.8
	targetWatermark = 0.6
)

// Default background cadence and lifetime.
const (
	DefaultTTL              = 24 * time.Hour
	DefaultSweepInterval    = 5 * time.Minute
	DefaultPressureInterval = time.Minute
)

// Options configure a Manager.
type Options struct {
	// MaxMemory is the hard cap for cached tables in bytes.
	MaxMemory int64

	// TTL evicts tables not accessed for this long.
	TTL time.Duration

	// SweepInterval is the TTL sweep cadence.
	SweepInterval time.Duration

	// PressureInterval is the memory pressure log cadence.
	PressureInterval time.Duration

	// Loader decodes embedding files. Defaults to loader.New(loader.DefaultConfig()).
	Loader Loader

	// Registry stages remote embedding URLs. Optional; without it only
	// local paths resolve.
	Registry *blobstore.Registry

	// Controller enforces the process memory budget. Optional.
	Controller *resource.Controller

	// Stats receives telemetry. Defaults to a fresh telemetry.Stats.
	Stats *telemetry.Stats

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager is the embedding table cache.
type Manager struct {
	mu      sync.RWMutex
	entries map[Key]*entry

	// admission serializes the decide-to-evict and publish windows.
	// It is NOT held during file loads.
	admission sync.Mutex

	flight singleflight.Group

	res      *resolver.Resolver
	ldr      Loader
	registry *blobstore.Registry
	rc       *resource.Controller
	stats    *telemetry.Stats
	logger   *slog.Logger

	maxMemory        int64
	memoryUsage      int64 // Σ entry.memorySize; mutated under admission
	ttl              time.Duration
	sweepInterval    time.Duration
	pressureInterval time.Duration

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager creates a Manager over the given resolver.
func NewManager(res *resolver.Resolver, optFns ...func(o *Options)) *Manager {
	opts := Options{
		MaxMemory:        3 * 512 << 20,
		TTL:              DefaultTTL,
		SweepInterval:    DefaultSweepInterval,
		PressureInterval: DefaultPressureInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Loader == nil {
		opts.Loader = loader.New(loader.DefaultConfig())
	}
	if opts.Stats == nil {
		opts.Stats = telemetry.NewStats(opts.MaxMemory)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Manager{
		entries:          make(map[Key]*entry),
		res:              res,
		ldr:              opts.Loader,
		registry:         opts.Registry,
		rc:               opts.Controller,
		stats:            opts.Stats,
		logger:           opts.Logger,
		maxMemory:        opts.MaxMemory,
		ttl:              opts.TTL,
		sweepInterval:    opts.SweepInterval,
		pressureInterval: opts.PressureInterval,
		stopCh:           make(chan struct{}),
	}
}

// Stats returns the telemetry sink shared with the manager.
func (m *Manager) Stats() *telemetry.Stats {
	return m.stats
}

// Fetch returns the shared table for key, loading it on a miss.
//
// Returns ErrNotConfigured when the descriptor store marks the collection
// as having no embeddings, ErrMemoryPressure when the table cannot be
// admitted, and loader errors verbatim.
func (m *Manager) Fetch(ctx context.Context, key Key) (*embedding.Table, error) {
	if e := m.lookup(key); e != nil {
		e.touch()
		m.stats.RecordHit()
		return e.table, nil
	}
	m.stats.RecordMiss()

	// Coalesce concurrent misses: one load serves all waiters. The load
	// runs detached from this request's cancellation so a dropped client
	// cannot waste the work for everyone else.
	ch := m.flight.DoChan(key.String(), func() (any, error) {
		return m.loadAndPublish(context.WithoutCancel(ctx), key)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*embedding.Table), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) lookup(key Key) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key]
}

// loadAndPublish is the slow path. Admission is held only for the
// evict-and-publish windows, never across the file read.
func (m *Manager) loadAndPublish(ctx context.Context, key Key) (*embedding.Table, error) {
	m.admission.Lock()

	// A concurrent loader may have published while we queued.
	if e := m.lookup(key); e != nil {
		m.admission.Unlock()
		e.touch()
		return e.table, nil
	}

	res, err := m.res.Resolve(ctx, key)
	if err != nil {
		m.admission.Unlock()
		m.logger.Error("descriptor lookup failed", "key", key.String(), "error", err)
		return nil, &Error{Op: "path lookup", Err: err}
	}
	if !res.Configured {
		m.admission.Unlock()
		return nil, ErrNotConfigured
	}

	if float64(m.memoryUsage) > float64(m.maxMemory)*highWatermark {
		m.evictUntil(int64(float64(m.maxMemory) * targetWatermark))
	}
	m.admission.Unlock()

	// Stage and decode outside admission; this can take seconds.
	path := res.Path
	if m.registry != nil {
		path, err = m.registry.Localize(ctx, path)
		if err != nil {
			return nil, &Error{Op: "stage remote file", Err: err}
		}
	}

	if err := m.rc.AcquireLoad(ctx); err != nil {
		return nil, &Error{Op: "acquire load slot", Err: err}
	}
	start := time.Now()
	table, lstats, err := m.ldr.Load(ctx, path)
	m.rc.ReleaseLoad()
	if err != nil {
		return nil, err
	}
	m.stats.RecordLoad(time.Since(start))

	m.admission.Lock()
	defer m.admission.Unlock()

	// Someone else may have published during our load; prefer the
	// published table and drop ours.
	if e := m.lookup(key); e != nil {
		e.touch()
		return e.table, nil
	}

	size := lstats.MemoryUsage
	if err := m.admit(size); err != nil {
		return nil, err
	}

	e := newEntry(table, size)
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()

	m.memoryUsage += size
	m.stats.SetMemory(m.memoryUsage, m.entryCount())

	m.logger.Info("embedding table cached",
		"key", key.String(),
		"words", table.Len(),
		"dimension", table.Dimension(),
		"bytes", size,
		"load_ms", time.Since(start).Milliseconds(),
	)
	return table, nil
}

// admit reserves size bytes, evicting LRU entries if needed.
// Caller holds admission.
func (m *Manager) admit(size int64) error {
	if m.memoryUsage+size > m.maxMemory {
		m.evictUntil(m.maxMemory - size)
	}
	if m.memoryUsage+size > m.maxMemory {
		return &Error{Op: "admit", Err: ErrMemoryPressure}
	}
	if m.rc != nil && !m.rc.TryAcquireMemory(size) {
		return &Error{Op: "admit", Err: ErrMemoryPressure}
	}
	return nil
}

// evictUntil removes least-recently-accessed entries until memoryUsage is
// at or below target, or the cache is empty. Caller holds admission.
func (m *Manager) evictUntil(target int64) {
	if target < 0 {
		target = 0
	}

	type victim struct {
		key      Key
		accessed time.Time
		size     int64
	}

	m.mu.RLock()
	victims := make([]victim, 0, len(m.entries))
	for k, e := range m.entries {
		victims = append(victims, victim{key: k, accessed: e.accessedAt(), size: e.memorySize})
	}
	m.mu.RUnlock()

	sort.Slice(victims, func(i, j int) bool {
		return victims[i].accessed.Before(victims[j].accessed)
	})

	for _, v := range victims {
		if m.memoryUsage <= target {
			return
		}
		m.removeLocked(v.key, v.size)
		m.logger.Info("embedding table evicted",
			"key", v.key.String(),
			"bytes", v.size,
			"idle", time.Since(v.accessed).Round(time.Second).String(),
		)
	}
}

// removeLocked deletes one entry and updates accounting. Caller holds
// admission.
func (m *Manager) removeLocked(key Key, size int64) {
	m.mu.Lock()
	_, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.memoryUsage -= size
	if m.rc != nil {
		m.rc.ReleaseMemory(size)
	}
	m.stats.RecordEviction(time.Now())
	m.stats.SetMemory(m.memoryUsage, m.entryCount())
}

func (m *Manager) entryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Len returns the number of cached tables.
func (m *Manager) Len() int {
	return m.entryCount()
}

// Contains reports whether key is cached, without touching access time.
func (m *Manager) Contains(key Key) bool {
	return m.lookup(key) != nil
}

// MemoryUsage returns the summed size of cached tables.
func (m *Manager) MemoryUsage() int64 {
	m.admission.Lock()
	defer m.admission.Unlock()
	return m.memoryUsage
}

// Clear drops every entry and resets the statistics counters. Tables still
// referenced by in-flight queries stay alive until those references drop.
func (m *Manager) Clear() {
	m.admission.Lock()
	defer m.admission.Unlock()

	m.mu.Lock()
	for k, e := range m.entries {
		if m.rc != nil {
			m.rc.ReleaseMemory(e.memorySize)
		}
		delete(m.entries, k)
	}
	m.mu.Unlock()

	m.memoryUsage = 0
	m.stats.Reset()
	m.stats.SetMemory(0, 0)
}
