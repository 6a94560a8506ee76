package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathways-group/skillmap-cli/internal/resilience"
)

func TestEncode_BatchesAndOrders(t *testing.T) {
	t.Parallel()
	var requests [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jina-embeddings-v3", req.Model)
		assert.True(t, req.Normalized)
		requests = append(requests, req.Input)

		// Reply in reverse order; the client must reorder by index.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithBatchSize(2))
	got, err := client.Encode(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, []string{"a", "bb"}, requests[0])
	assert.Equal(t, []string{"ccc"}, requests[1])

	require.Len(t, got, 3)
	assert.Equal(t, float32(1), got[0][0])
	assert.Equal(t, float32(2), got[1][0])
	assert.Equal(t, float32(3), got[2][0])
}

func TestEncode_RetriesTransientStatus(t *testing.T) {
	t.Parallel()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 0}}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Encode(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
	require.Len(t, got, 1)
}

func TestEncode_CountMismatch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Encode(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestEncode_Empty(t *testing.T) {
	t.Parallel()
	client := NewClient("test-key")
	got, err := client.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEncode_CircuitBreakerShedsLoad(t *testing.T) {
	t.Parallel()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(error) bool { return true },
	})
	client := NewClient("test-key", WithBaseURL(srv.URL), WithCircuitBreaker(cb))

	_, err := client.Encode(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, 1, hits)

	// The breaker is open now; the next call never reaches the server.
	_, err = client.Encode(context.Background(), []string{"y"})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, hits)
}

func TestSimilarity(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, Similarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Similarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Similarity([]float32{0, 0}, []float32{1, 0}))
}
