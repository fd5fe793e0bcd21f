package similarity

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/histtext/lexivec/embedding"
	"github.com/histtext/lexivec/internal/queue"
)

// DefaultParallelThreshold is the table size above which top-k search is
// dispatched to the worker pool.
const DefaultParallelThreshold = 1000

// Neighbor is one entry of a top-k result.
type Neighbor struct {
	Word       string
	Similarity float32
}

// Recorder receives engine timings. Implemented by the telemetry package.
type Recorder interface {
	// RecordSimilarity reports the aggregate duration of n similarity
	// computations. Sampled per scan, not per pair.
	RecordSimilarity(total time.Duration, n int)

	// RecordSearch reports the end-to-end duration of one top-k search.
	RecordSearch(total time.Duration)
}

// Options configure an Engine.
type Options struct {
	// ParallelThreshold is the minimum table size for parallel search.
	ParallelThreshold int

	// Workers is the parallel fan-out. Defaults to GOMAXPROCS.
	Workers int

	// Recorder receives per-operation timings. Optional.
	Recorder Recorder
}

// Engine performs top-k similarity search with a fixed metric.
// An Engine is stateless apart from telemetry and safe for concurrent use.
type Engine struct {
	metric    Metric
	fn        Func
	threshold int
	workers   int
	recorder  Recorder
}

// NewEngine creates an Engine for the given metric.
func NewEngine(metric Metric, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		ParallelThreshold: DefaultParallelThreshold,
		Workers:           runtime.GOMAXPROCS(0),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	fn, err := Provider(metric)
	if err != nil {
		return nil, err
	}

	return &Engine{
		metric:    metric,
		fn:        fn,
		threshold: opts.ParallelThreshold,
		workers:   opts.Workers,
		recorder:  opts.Recorder,
	}, nil
}

// Metric returns the engine's similarity metric.
func (e *Engine) Metric() Metric {
	return e.metric
}

// TopK returns up to k neighbors of word, ordered by similarity descending
// with ties broken by word ascending. Neighbors below threshold are
// excluded and the query word never appears in the result.
//
// A query word missing from the table yields an empty result, not an error.
func (e *Engine) TopK(ctx context.Context, table *embedding.Table, word string, k int, threshold float32) ([]Neighbor, error) {
	start := time.Now()

	query, ok := table.Lookup(word)
	if !ok {
		return []Neighbor{}, nil
	}

	var items []queue.Item
	if table.Len() <= e.threshold || e.workers <= 1 {
		items = e.searchSequential(table, word, query, k, threshold)
	} else {
		var err error
		items, err = e.searchParallel(ctx, table, word, query, k, threshold)
		if err != nil {
			return nil, err
		}
	}

	neighbors := make([]Neighbor, len(items))
	for i, it := range items {
		neighbors[i] = Neighbor{Word: it.Word, Similarity: it.Score}
	}

	if e.recorder != nil {
		e.recorder.RecordSearch(time.Since(start))
	}
	return neighbors, nil
}

// searchSequential scans the whole table through a bounded heap.
func (e *Engine) searchSequential(table *embedding.Table, word string, query embedding.Embedding, k int, threshold float32) []queue.Item {
	heap := queue.NewTopK(k)

	scanStart := time.Now()
	n := 0
	table.Range(func(w string, cand embedding.Embedding) bool {
		if w == word {
			return true
		}
		sim := e.fn(query, cand)
		n++
		if sim < threshold {
			return true
		}
		heap.Push(queue.Item{Word: w, Score: sim})
		return true
	})

	if e.recorder != nil && n > 0 {
		e.recorder.RecordSimilarity(time.Since(scanStart), n)
	}
	return heap.Drain()
}

// searchParallel partitions the vocabulary across workers, reduces each
// partition through a bounded heap and partial-sorts the merged candidates.
func (e *Engine) searchParallel(ctx context.Context, table *embedding.Table, word string, query embedding.Embedding, k int, threshold float32) ([]queue.Item, error) {
	words := table.Words()
	workers := e.workers
	if workers > len(words) {
		workers = len(words)
	}

	partials := make([][]queue.Item, workers)
	chunk := (len(words) + workers - 1) / workers

	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(words) {
			hi = len(words)
		}
		part := words[lo:hi]

		w := w
		g.Go(func() error {
			heap := queue.NewTopK(k)
			scanStart := time.Now()
			n := 0
			for _, cw := range part {
				if cw == word {
					continue
				}
				cand, ok := table.Lookup(cw)
				if !ok {
					continue
				}
				sim := e.fn(query, cand)
				n++
				if sim < threshold {
					continue
				}
				heap.Push(queue.Item{Word: cw, Score: sim})
			}
			if e.recorder != nil && n > 0 {
				e.recorder.RecordSimilarity(time.Since(scanStart), n)
			}
			partials[w] = heap.Drain()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]queue.Item, 0, workers*k)
	for _, p := range partials {
		merged = append(merged, p...)
	}
	queue.SortDescending(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}
