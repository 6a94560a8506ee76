// Package store persists pipeline runs and cached embeddings. Both a
// SQLite and a Postgres implementation are provided; SQLite is the
// default for single-machine CLI use.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pathways-group/skillmap-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   model.RunKind   `json:"kind,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the matching pipelines.
//
// Embeddings are a derived projection of skill text: the cache is keyed
// by a content hash of the embedding model plus the text batch, so any
// change to either produces a fresh key and stale vectors are simply
// never read again. Entries also carry a TTL for housekeeping.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, kind model.RunKind, input model.RunInput) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunSummary(ctx context.Context, runID string, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Embedding cache
	GetEmbeddings(ctx context.Context, key string) ([][]float32, error)
	SetEmbeddings(ctx context.Context, key string, vectors [][]float32, ttl time.Duration) error
	DeleteEmbeddings(ctx context.Context, key string) error
	DeleteExpiredEmbeddings(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// CacheKey derives the embedding-cache key for a text batch. The hash
// covers the model name and every text with a separator, so reordering
// or editing any text changes the key.
func CacheKey(embeddingModel string, texts []string) string {
	h := sha256.New()
	h.Write([]byte(embeddingModel))
	for _, t := range texts {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))
}
