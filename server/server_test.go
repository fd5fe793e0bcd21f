package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/histtext/lexivec"
	"github.com/histtext/lexivec/cache"
	"github.com/histtext/lexivec/config"
	"github.com/histtext/lexivec/descriptor"
	"github.com/histtext/lexivec/resolver"
	"github.com/histtext/lexivec/similarity"
)

const testSecret = "test-secret"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandler wires a full stack over a static descriptor store.
func newTestHandler(t *testing.T, store descriptor.Store, configYAML string) http.Handler {
	t.Helper()

	if configYAML == "" {
		configYAML = "server:\n  port: 8080\n"
	}
	cfgPath := filepath.Join(t.TempDir(), "lexivec.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))
	cfgMgr, err := config.NewManager(cfgPath, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cfgMgr.Close() })

	res := resolver.New(store, "", func(o *resolver.Options) {
		o.Logger = discard()
	})
	manager := cache.NewManager(res, func(o *cache.Options) {
		o.MaxMemory = 512 << 20
		o.Logger = discard()
	})
	engine, err := similarity.NewEngine(similarity.MetricCosine)
	require.NoError(t, err)

	svc := lexivec.New(manager, engine, lexivec.WithLogger(lexivec.NoopLogger()))
	return New(svc, cfgMgr, discard()).Handler()
}

func vectorsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.vec")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func postNeighbors(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/compute-neighbors", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestComputeNeighbors_OK(t *testing.T) {
	path := vectorsFile(t, "a 1 0\nb 0 1\nc 1 1\n")
	h := newTestHandler(t, descriptor.Static{
		{BackendID: 1, Collection: "books"}: path,
	}, "")

	w := postNeighbors(t, h, `{"word":"a","solr_database_id":1,"collection_name":"books","k":2,"include_scores":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp lexivec.NeighborsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.HasEmbeddings)
	require.Len(t, resp.Neighbors, 2)
	assert.Equal(t, "c", resp.Neighbors[0].Word)
	require.NotNil(t, resp.Neighbors[0].Similarity)
	assert.InDelta(t, 0.7071, *resp.Neighbors[0].Similarity, 1e-4)
}

func TestComputeNeighbors_UnconfiguredCollection(t *testing.T) {
	h := newTestHandler(t, descriptor.Static{
		{BackendID: 1, Collection: "bare"}: descriptor.ValueNone,
	}, "")

	w := postNeighbors(t, h, `{"word":"a","solr_database_id":1,"collection_name":"bare"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp lexivec.NeighborsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.HasEmbeddings)
	assert.Empty(t, resp.Neighbors)
}

func TestComputeNeighbors_BadRequests(t *testing.T) {
	h := newTestHandler(t, descriptor.Static{}, "")

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"word":`},
		{name: "missing word", body: `{"solr_database_id":1,"collection_name":"x"}`},
		{name: "missing backend", body: `{"word":"a","collection_name":"x"}`},
		{name: "missing collection", body: `{"word":"a","solr_database_id":1}`},
		{name: "negative k", body: `{"word":"a","solr_database_id":1,"collection_name":"x","k":-2}`},
		{name: "threshold above one", body: `{"word":"a","solr_database_id":1,"collection_name":"x","threshold":1.5}`},
		{name: "non-numeric threshold", body: `{"word":"a","solr_database_id":1,"collection_name":"x","threshold":"high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postNeighbors(t, h, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "parse", resp.Error.Kind)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestComputeNeighbors_InfrastructureFailureIs503(t *testing.T) {
	// A directory where a file is expected produces a read failure, which
	// must surface as 503 rather than an empty answer.
	h := newTestHandler(t, descriptor.Static{
		{BackendID: 1, Collection: "books"}: t.TempDir(),
	}, "")

	w := postNeighbors(t, h, `{"word":"a","solr_database_id":1,"collection_name":"books"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "io", resp.Error.Kind)
}

func TestAdvancedStats(t *testing.T) {
	h := newTestHandler(t, descriptor.Static{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/embeddings/advanced-stats", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Contains(t, snap, "cache")
	assert.Contains(t, snap, "performance")
	assert.Contains(t, snap, "system")
	assert.Contains(t, snap, "collected_at")
}

func TestResetMetrics(t *testing.T) {
	h := newTestHandler(t, descriptor.Static{}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/embeddings/reset-metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, descriptor.Static{}, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, descriptor.Static{}, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lexivec_")
}

func TestAuth(t *testing.T) {
	authYAML := "auth:\n  enabled: true\n  jwt_secret: " + testSecret + "\n"
	path := vectorsFile(t, "a 1 0\nb 0 1\n")
	h := newTestHandler(t, descriptor.Static{
		{BackendID: 1, Collection: "books"}: path,
	}, authYAML)

	body := `{"word":"a","solr_database_id":1,"collection_name":"books"}`

	t.Run("missing token", func(t *testing.T) {
		w := postNeighbors(t, h, body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/compute-neighbors", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "external-collaborator",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/compute-neighbors", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("healthz stays open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimit(t *testing.T) {
	yaml := "rate_limit:\n  enabled: true\n  requests_per_minute: 60\n  burst_size: 2\n"
	h := newTestHandler(t, descriptor.Static{}, yaml)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/embeddings/advanced-stats", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes[2:], http.StatusTooManyRequests)
}
