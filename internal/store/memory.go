package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/pathways-group/skillmap-cli/internal/model"
)

// MemoryStore is an in-memory Store for tests and one-shot CLI runs
// where persistence adds nothing.
type MemoryStore struct {
	mu         sync.RWMutex
	runs       map[string]model.Run
	embeddings map[string]memoryEntry
}

type memoryEntry struct {
	vectors   [][]float32
	expiresAt time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs:       make(map[string]model.Run),
		embeddings: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) CreateRun(_ context.Context, kind model.RunKind, input model.RunInput) (*model.Run, error) {
	now := time.Now().UTC()
	r := model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Input:     input,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.runs[r.ID] = r
	s.mu.Unlock()
	return &r, nil
}

func (s *MemoryStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	s.runs[runID] = r
	return nil
}

func (s *MemoryStore) UpdateRunSummary(_ context.Context, runID string, summary *model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	r.Result = summary
	r.Status = model.RunStatusComplete
	if summary != nil && summary.Error != "" {
		r.Status = model.RunStatusFailed
	}
	r.UpdatedAt = time.Now().UTC()
	s.runs[runID] = r
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, eris.New("run not found")
	}
	return &r, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	s.mu.RLock()
	var runs []model.Run
	for _, r := range s.runs {
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) GetEmbeddings(_ context.Context, key string) ([][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.embeddings[key]
	if !ok || time.Now().UTC().After(e.expiresAt) {
		return nil, nil
	}
	return e.vectors, nil
}

func (s *MemoryStore) SetEmbeddings(_ context.Context, key string, vectors [][]float32, ttl time.Duration) error {
	s.mu.Lock()
	s.embeddings[key] = memoryEntry{vectors: vectors, expiresAt: time.Now().UTC().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteEmbeddings(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.embeddings, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteExpiredEmbeddings(context.Context) (int, error) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for k, e := range s.embeddings {
		if now.After(e.expiresAt) {
			delete(s.embeddings, k)
			n++
		}
	}
	return n, nil
}
