// Package lexivec serves nearest-neighbor queries over word-embedding
// tables for historical text collections.
//
// Each collection of a search backend may carry one embeddings file on
// disk (plain text, GloVe, word2vec, fastText or length-prefixed
// binary, optionally gzip/zstd/lz4 compressed). Tables are loaded on
// first use, held in a memory-bounded LRU cache, and scanned exactly
// for the top-k most similar words.
//
// # Quick Start
//
//	store := descriptor.Static{
//	    {BackendID: 1, Collection: "press-1900"}: "/data/press-1900.vec",
//	}
//	res := resolver.New(store, "")
//	manager := cache.NewManager(res, func(o *cache.Options) {
//	    o.MaxMemory = 3 * 512 << 20
//	})
//	manager.Start()
//	defer manager.Stop()
//
//	engine, _ := similarity.NewEngine(similarity.MetricCosine)
//	svc := lexivec.New(manager, engine)
//
//	resp, _ := svc.ComputeNeighbors(ctx, lexivec.NeighborsRequest{
//	    Word: "locomotive",
//	    Key:  cache.Key{BackendID: 1, Collection: "press-1900"},
//	    K:    10,
//	})
//
// # Answer Model
//
// Data problems never fail a request. An unconfigured collection, a
// missing or unparsable file, or an absent query word all produce an
// empty answer with HasEmbeddings reporting whether a table was
// available. Only infrastructure faults (IO failures, cache memory
// pressure) return an error; Kind and Retryable classify them.
//
// # Serving
//
// cmd/lexivecd wraps the service in an HTTP API with JWT auth, rate
// limiting, Prometheus metrics and hot-reloaded YAML configuration.
package lexivec
