package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathways-group/skillmap-cli/internal/config"
	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/store"
)

// fakeEmbeddingServer answers the Jina wire format with a constant
// vector per input and counts calls.
func fakeEmbeddingServer(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": []float32{1, 0}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func testConfig(jinaURL string) *config.Config {
	c := &config.Config{}
	c.Store.Driver = "memory"
	c.Store.CacheTTLHours = 1
	c.Jina.Key = "test-key"
	c.Jina.BaseURL = jinaURL
	c.Jina.Model = "jina-embeddings-v3"
	c.Jina.BatchSize = 128
	c.Transfer.EmbeddingOnly = true
	c.Circuit.FailureThreshold = 5
	c.Circuit.ResetTimeoutSecs = 30
	return c
}

func TestEmbedRecords_UsesCache(t *testing.T) {
	var hits int
	srv := fakeEmbeddingServer(t, &hits)
	defer srv.Close()
	cfg = testConfig(srv.URL)

	st := store.NewMemory()
	recs := []model.SkillRecord{
		{ID: "s1", Name: "Tig Welding"},
		{ID: "s2", Name: "Blueprint Reading"},
	}

	require.NoError(t, embedRecords(context.Background(), st, newEmbedder(), recs))
	assert.Equal(t, 1, hits)
	assert.Equal(t, []float32{1, 0}, recs[0].Embedding)

	// Same batch again: served from cache, no API call.
	again := []model.SkillRecord{
		{ID: "s1", Name: "Tig Welding"},
		{ID: "s2", Name: "Blueprint Reading"},
	}
	require.NoError(t, embedRecords(context.Background(), st, newEmbedder(), again))
	assert.Equal(t, 1, hits)
	assert.Equal(t, []float32{1, 0}, again[1].Embedding)
}

func TestEmbedRecords_NoCacheWhenTTLZero(t *testing.T) {
	var hits int
	srv := fakeEmbeddingServer(t, &hits)
	defer srv.Close()
	cfg = testConfig(srv.URL)
	cfg.Store.CacheTTLHours = 0

	st := store.NewMemory()
	recs := []model.SkillRecord{{ID: "s1", Name: "Tig Welding"}}

	require.NoError(t, embedRecords(context.Background(), st, newEmbedder(), recs))
	require.NoError(t, embedRecords(context.Background(), st, newEmbedder(), recs))
	assert.Equal(t, 2, hits)
}

func TestFinishRun_RecordsError(t *testing.T) {
	cfg = testConfig("")
	st := store.NewMemory()
	ctx := context.Background()

	run, err := st.CreateRun(ctx, model.RunKindDedup, model.RunInput{})
	require.NoError(t, err)

	finishRun(ctx, st, run.ID, &model.RunSummary{}, time.Now().Add(-time.Second), assert.AnError)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, assert.AnError.Error(), got.Result.Error)
	assert.Greater(t, got.Result.DurationSeconds, 0.0)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = testConfig("")
	cfg.Store.Driver = "bolt"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestCoverageJudge_EmbeddingOnly(t *testing.T) {
	cfg = testConfig("")
	cfg.Anthropic.Key = "key"
	cfg.Transfer.EmbeddingOnly = true
	assert.Nil(t, coverageJudge())

	cfg.Transfer.EmbeddingOnly = false
	assert.NotNil(t, coverageJudge())

	cfg.Anthropic.Key = ""
	assert.Nil(t, coverageJudge())
}
