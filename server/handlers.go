package server

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/histtext/lexivec"
	"github.com/histtext/lexivec/descriptor"
)

const maxRequestBody = 1 << 20

// neighborsRequest is the wire form of a neighbor query.
type neighborsRequest struct {
	Word           string   `json:"word"`
	SolrDatabaseID *int32   `json:"solr_database_id"`
	CollectionName string   `json:"collection_name"`
	K              *int     `json:"k"`
	Threshold      *float32 `json:"threshold"`
	IncludeScores  bool     `json:"include_scores"`
}

func (s *Server) handleComputeNeighbors(w http.ResponseWriter, r *http.Request) {
	var req neighborsRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "parse", "malformed request body: "+err.Error())
		return
	}

	if req.Word == "" {
		writeError(w, http.StatusBadRequest, "parse", "word is required")
		return
	}
	if req.SolrDatabaseID == nil {
		writeError(w, http.StatusBadRequest, "parse", "solr_database_id is required")
		return
	}
	if req.CollectionName == "" {
		writeError(w, http.StatusBadRequest, "parse", "collection_name is required")
		return
	}

	svcReq := lexivec.NeighborsRequest{
		Word: req.Word,
		Key: descriptor.Key{
			BackendID:  *req.SolrDatabaseID,
			Collection: req.CollectionName,
		},
		IncludeScores: req.IncludeScores,
	}
	if req.K != nil {
		if *req.K < 0 {
			writeError(w, http.StatusBadRequest, "parse", "k cannot be negative")
			return
		}
		svcReq.K = *req.K
	}
	if req.Threshold != nil {
		if *req.Threshold < 0 || *req.Threshold > 1 {
			writeError(w, http.StatusBadRequest, "parse", "threshold must be within [0, 1]")
			return
		}
		svcReq.Threshold = *req.Threshold
	}

	resp, err := s.svc.ComputeNeighbors(r.Context(), svcReq)
	if err != nil {
		kind := lexivec.Kind(err)
		s.logger.Error("compute-neighbors failed",
			"request_id", RequestID(r.Context()),
			"kind", kind,
			"error", err,
		)
		writeError(w, http.StatusServiceUnavailable, kind, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdvancedStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Telemetry())
}

func (s *Server) handleResetMetrics(w http.ResponseWriter, r *http.Request) {
	s.svc.ResetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"reset_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
