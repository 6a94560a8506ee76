package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/resilience"
	"github.com/pathways-group/skillmap-cli/internal/store"
	"github.com/pathways-group/skillmap-cli/internal/transfer"
	"github.com/pathways-group/skillmap-cli/pkg/embedder"
	"github.com/pathways-group/skillmap-cli/pkg/genai"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "skillmap.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// breakers is the process-wide breaker registry, one breaker per
// upstream so an embeddings outage never blocks generation calls.
// Lazy because cfg is only loaded in PersistentPreRunE.
var breakers *resilience.ServiceBreakers

func serviceBreakers() *resilience.ServiceBreakers {
	if breakers == nil {
		breakers = resilience.NewServiceBreakers(cfg.Circuit.Build())
	}
	return breakers
}

// newEmbedder builds the Jina client with the shared circuit breaker so
// a failing embeddings API sheds load instead of retrying per batch.
func newEmbedder() embedder.Client {
	return embedder.NewClient(cfg.Jina.Key,
		embedder.WithBaseURL(cfg.Jina.BaseURL),
		embedder.WithModel(cfg.Jina.Model),
		embedder.WithBatchSize(cfg.Jina.BatchSize),
		embedder.WithCircuitBreaker(serviceBreakers().Get(resilience.ServiceEmbeddings)),
	)
}

// newReranker returns the GenAI client, or nil when no API key is
// configured. Callers treat nil as "re-ranking disabled".
func newReranker() genai.Client {
	if cfg.Anthropic.Key == "" {
		return nil
	}
	return genai.NewClient(cfg.Anthropic.Key,
		genai.WithModel(cfg.Anthropic.Model),
		genai.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)),
	)
}

// coverageJudge returns the pairwise GenAI judge, or nil when the
// profile forces embedding-only matching or no key is configured.
func coverageJudge() transfer.Judge {
	if cfg.Transfer.EmbeddingOnly {
		return nil
	}
	client := newReranker()
	if client == nil {
		return nil
	}
	return transfer.NewGenAIJudge(client)
}

// embedRecords fills the Embedding field of every record, going through
// the store's embedding cache when a TTL is configured. The cache key is
// a content hash of model plus texts, so edits or reorders miss cleanly.
func embedRecords(ctx context.Context, st store.Store, emb embedder.Client, recs []model.SkillRecord) error {
	if len(recs) == 0 {
		return nil
	}

	texts := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = r.CombinedText()
	}

	ttl := time.Duration(cfg.Store.CacheTTLHours) * time.Hour
	key := store.CacheKey(cfg.Jina.Model, texts)

	if st != nil && ttl > 0 {
		cached, err := st.GetEmbeddings(ctx, key)
		if err != nil {
			return eris.Wrap(err, "read embedding cache")
		}
		if len(cached) == len(recs) {
			for i := range recs {
				recs[i].Embedding = cached[i]
			}
			zap.L().Debug("embedding cache hit", zap.Int("records", len(recs)))
			return nil
		}
	}

	vectors, err := emb.Encode(ctx, texts)
	if err != nil {
		return err
	}
	for i := range recs {
		recs[i].Embedding = vectors[i]
	}

	if st != nil && ttl > 0 {
		if err := st.SetEmbeddings(ctx, key, vectors, ttl); err != nil {
			zap.L().Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return nil
}

// finishRun records a run outcome, logging rather than failing the
// command when persistence itself has a problem.
func finishRun(ctx context.Context, st store.Store, runID string, summary *model.RunSummary, started time.Time, runErr error) {
	summary.DurationSeconds = time.Since(started).Seconds()
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	if err := st.UpdateRunSummary(ctx, runID, summary); err != nil {
		zap.L().Warn("record run outcome failed", zap.String("run_id", runID), zap.Error(err))
	}
}
