package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/histtext/lexivec/descriptor"
	"github.com/histtext/lexivec/embedding"
	"github.com/histtext/lexivec/loader"
	"github.com/histtext/lexivec/resolver"
)

// stubLoader counts loads and fabricates tables of a fixed reported size.
type stubLoader struct {
	loads     atomic.Int64
	delay     time.Duration
	tableSize int64
	err       error
}

func (s *stubLoader) Load(ctx context.Context, path string) (*embedding.Table, *loader.Stats, error) {
	s.loads.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, nil, s.err
	}

	table := embedding.NewTable(map[string]embedding.Embedding{
		"a": embedding.New([]float32{1, 0}),
		"b": embedding.New([]float32{0, 1}),
	}, 2)
	return table, &loader.Stats{
		WordCount:   table.Len(),
		Dimension:   2,
		MemoryUsage: s.tableSize,
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, store descriptor.Store, stub *stubLoader, maxMemory int64) *Manager {
	t.Helper()
	res := resolver.New(store, "", func(o *resolver.Options) {
		o.MemoTTL = 0
		o.Logger = quietLogger()
	})
	return NewManager(res, func(o *Options) {
		o.MaxMemory = maxMemory
		o.Loader = stub
		o.Logger = quietLogger()
	})
}

func key(id int32, coll string) Key {
	return Key{BackendID: id, Collection: coll}
}

func TestFetch_HitAndMiss(t *testing.T) {
	store := descriptor.Static{key(1, "books"): "/data/books.vec"}
	stub := &stubLoader{tableSize: 100}
	m := newTestManager(t, store, stub, 1000)

	table, err := m.Fetch(context.Background(), key(1, "books"))
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.EqualValues(t, 1, stub.loads.Load())
	assert.Equal(t, 1, m.Len())

	again, err := m.Fetch(context.Background(), key(1, "books"))
	require.NoError(t, err)
	assert.Same(t, table, again)
	assert.EqualValues(t, 1, stub.loads.Load())

	assert.EqualValues(t, 1, m.Stats().Hits())
	assert.EqualValues(t, 1, m.Stats().Misses())
	assert.Equal(t, int64(100), m.MemoryUsage())
}

func TestFetch_NotConfigured(t *testing.T) {
	store := descriptor.Static{key(1, "bare"): descriptor.ValueNone}
	stub := &stubLoader{tableSize: 100}
	m := newTestManager(t, store, stub, 1000)

	_, err := m.Fetch(context.Background(), key(1, "bare"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, stub.loads.Load())

	// Unknown collections behave the same.
	_, err = m.Fetch(context.Background(), key(9, "missing"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFetch_EvictionUnderPressure(t *testing.T) {
	store := descriptor.Static{
		key(1, "one"): "/data/one.vec",
		key(1, "two"): "/data/two.vec",
	}
	// Budget holds one table at a time.
	stub := &stubLoader{tableSize: 600}
	m := newTestManager(t, store, stub, 1000)

	tableA, err := m.Fetch(context.Background(), key(1, "one"))
	require.NoError(t, err)

	_, err = m.Fetch(context.Background(), key(1, "two"))
	require.NoError(t, err)

	assert.Equal(t, 1, m.Len())
	assert.False(t, m.Contains(key(1, "one")))
	assert.True(t, m.Contains(key(1, "two")))
	assert.EqualValues(t, 1, m.Stats().Evictions())
	assert.Equal(t, int64(600), m.MemoryUsage())

	// The evicted table stays usable for holders of the old reference.
	e, ok := tableA.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, e.Vector)
}

func TestFetch_MemoryPressure(t *testing.T) {
	store := descriptor.Static{key(1, "huge"): "/data/huge.vec"}
	stub := &stubLoader{tableSize: 2000}
	m := newTestManager(t, store, stub, 1000)

	_, err := m.Fetch(context.Background(), key(1, "huge"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMemoryPressure)
	assert.Zero(t, m.Len())
	assert.Zero(t, m.MemoryUsage())
}

func TestFetch_CoalescesConcurrentMisses(t *testing.T) {
	store := descriptor.Static{key(1, "books"): "/data/books.vec"}
	stub := &stubLoader{tableSize: 100, delay: 50 * time.Millisecond}
	m := newTestManager(t, store, stub, 1000)

	const n = 8
	tables := make([]*embedding.Table, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i], errs[i] = m.Fetch(context.Background(), key(1, "books"))
		}(i)
	}
	wg.Wait()

	// One file load serves all waiters.
	assert.EqualValues(t, 1, stub.loads.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, tables[0], tables[i])
	}

	// Every request that found the key absent counted as a miss.
	misses := m.Stats().Misses()
	assert.GreaterOrEqual(t, misses, uint64(1))
	assert.LessOrEqual(t, misses, uint64(n))
}

func TestFetch_CanceledWaiter(t *testing.T) {
	store := descriptor.Static{key(1, "slow"): "/data/slow.vec"}
	stub := &stubLoader{tableSize: 100, delay: 200 * time.Millisecond}
	m := newTestManager(t, store, stub, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Fetch(ctx, key(1, "slow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The detached load still completes and publishes.
	assert.Eventually(t, func() bool {
		return m.Contains(key(1, "slow"))
	}, time.Second, 10*time.Millisecond)
}

func TestFetch_LoaderErrorPropagates(t *testing.T) {
	store := descriptor.Static{key(1, "bad"): "/data/bad.vec"}
	stub := &stubLoader{err: &loader.FormatError{Path: "/data/bad.vec", Reason: "broken"}}
	m := newTestManager(t, store, stub, 1000)

	_, err := m.Fetch(context.Background(), key(1, "bad"))
	var ferr *loader.FormatError
	assert.ErrorAs(t, err, &ferr)
	assert.Zero(t, m.Len())
}

func TestSweepExpired(t *testing.T) {
	store := descriptor.Static{key(1, "old"): "/data/old.vec"}
	stub := &stubLoader{tableSize: 100}

	res := resolver.New(store, "", func(o *resolver.Options) {
		o.Logger = quietLogger()
	})
	m := NewManager(res, func(o *Options) {
		o.MaxMemory = 1000
		o.TTL = 30 * time.Millisecond
		o.Loader = stub
		o.Logger = quietLogger()
	})

	_, err := m.Fetch(context.Background(), key(1, "old"))
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	time.Sleep(60 * time.Millisecond)
	m.sweepExpired()

	assert.Zero(t, m.Len())
	assert.Zero(t, m.MemoryUsage())
	assert.EqualValues(t, 1, m.Stats().Evictions())
}

func TestClear(t *testing.T) {
	store := descriptor.Static{
		key(1, "a"): "/a.vec",
		key(1, "b"): "/b.vec",
	}
	stub := &stubLoader{tableSize: 100}
	m := newTestManager(t, store, stub, 1000)

	_, err := m.Fetch(context.Background(), key(1, "a"))
	require.NoError(t, err)
	_, err = m.Fetch(context.Background(), key(1, "b"))
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	m.Clear()
	assert.Zero(t, m.Len())
	assert.Zero(t, m.MemoryUsage())
	assert.Zero(t, m.Stats().Hits())
	assert.Zero(t, m.Stats().Misses())
}

func TestMemoryAccountingInvariant(t *testing.T) {
	store := descriptor.Static{}
	for i := 0; i < 6; i++ {
		store[key(1, fmt.Sprintf("c%d", i))] = fmt.Sprintf("/c%d.vec", i)
	}
	stub := &stubLoader{tableSize: 300}
	m := newTestManager(t, store, stub, 1000)

	for i := 0; i < 6; i++ {
		_, err := m.Fetch(context.Background(), key(1, fmt.Sprintf("c%d", i)))
		require.NoError(t, err)

		// Usage equals entries x size and respects the hard cap.
		usage := m.MemoryUsage()
		assert.Equal(t, int64(m.Len())*300, usage)
		assert.LessOrEqual(t, usage, int64(1000))
	}
}

func TestStartStop(t *testing.T) {
	store := descriptor.Static{}
	m := newTestManager(t, store, &stubLoader{tableSize: 1}, 1000)

	m.Start()
	m.Stop()
	// Stop is idempotent.
	m.Stop()
}
