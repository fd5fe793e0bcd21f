package lexivec

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/histtext/lexivec/cache"
	"github.com/histtext/lexivec/similarity"
	"github.com/histtext/lexivec/telemetry"
)

// Request bounds per the public API contract.
const (
	MinK     = 1
	MaxK     = 100
	DefaultK = 10
)

// NeighborsRequest asks for the nearest neighbors of a word in one
// collection's embedding table.
type NeighborsRequest struct {
	Word          string
	Key           cache.Key
	K             int
	Threshold     float32
	IncludeScores bool
}

// Neighbor is one result entry. Similarity is nil when scores were not
// requested.
type Neighbor struct {
	Word       string   `json:"word"`
	Similarity *float32 `json:"similarity,omitempty"`
}

// NeighborsResponse is the answer to a NeighborsRequest. Neighbors is
// ordered by similarity descending, word ascending.
type NeighborsResponse struct {
	Neighbors     []Neighbor `json:"neighbors"`
	HasEmbeddings bool       `json:"has_embeddings"`
	QueryWord     string     `json:"query_word"`
	K             int        `json:"k"`
	Threshold     float32    `json:"threshold"`
}

// Service ties the cache manager and the similarity engine together behind
// the operations the HTTP surface exposes.
type Service struct {
	cache  *cache.Manager
	engine *similarity.Engine
	stats  *telemetry.Stats
	logger *Logger
}

// New creates a Service.
func New(manager *cache.Manager, engine *similarity.Engine, optFns ...Option) *Service {
	opts := options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.stats == nil {
		opts.stats = manager.Stats()
	}
	if opts.logger == nil {
		opts.logger = NewTextLogger(slog.LevelInfo)
	}

	return &Service{
		cache:  manager,
		engine: engine,
		stats:  opts.stats,
		logger: opts.logger.WithComponent("service"),
	}
}

// ComputeNeighbors validates and executes one neighbor query.
//
// Collections without embeddings, failed descriptor lookups and malformed
// embedding files all answer has_embeddings=false with empty neighbors.
// Only infrastructure failures (io, memory pressure) return an error.
func (s *Service) ComputeNeighbors(ctx context.Context, req NeighborsRequest) (*NeighborsResponse, error) {
	req = clamp(req)

	resp := &NeighborsResponse{
		Neighbors: []Neighbor{},
		QueryWord: req.Word,
		K:         req.K,
		Threshold: req.Threshold,
	}

	table, err := s.cache.Fetch(ctx, req.Key)
	if err != nil {
		if errors.Is(err, cache.ErrNotConfigured) {
			return resp, nil
		}
		if errors.Is(err, cache.ErrMemoryPressure) || Kind(err) == KindIo {
			return nil, err
		}
		// Malformed files and descriptor failures degrade to an empty
		// answer; the operator sees the log, the caller a clean response.
		s.logger.Error("embedding load failed",
			"key", req.Key.String(), "kind", Kind(err), "error", err)
		return resp, nil
	}

	resp.HasEmbeddings = true

	neighbors, err := s.engine.TopK(ctx, table, req.Word, req.K, req.Threshold)
	if err != nil {
		return nil, err
	}

	resp.Neighbors = make([]Neighbor, len(neighbors))
	for i, n := range neighbors {
		resp.Neighbors[i] = Neighbor{Word: n.Word}
		if req.IncludeScores {
			sim := n.Similarity
			resp.Neighbors[i].Similarity = &sim
		}
	}
	return resp, nil
}

// Telemetry returns a self-consistent metrics snapshot.
func (s *Service) Telemetry() telemetry.Snapshot {
	return s.stats.Snapshot()
}

// ResetMetrics clears counters and timing averages.
func (s *Service) ResetMetrics() {
	s.stats.Reset()
	s.logger.Info("metrics reset")
}

// clamp enforces the documented request bounds.
func clamp(req NeighborsRequest) NeighborsRequest {
	if req.K == 0 {
		req.K = DefaultK
	}
	if req.K < MinK {
		req.K = MinK
	}
	if req.K > MaxK {
		req.K = MaxK
	}
	if req.Threshold < 0 {
		req.Threshold = 0
	}
	if req.Threshold > 1 {
		req.Threshold = 1
	}
	// Tables are stored lowercase, so lookups must match.
	req.Word = strings.ToLower(strings.TrimSpace(req.Word))
	return req
}
