// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/app/storage"
)

// Store is an in-memory execution store.
type Store struct {
	mu      sync.RWMutex
	records map[string]execution.Record
}

var _ storage.ExecutionStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]execution.Record)}
}

func (s *Store) SaveExecution(ctx context.Context, rec execution.Record) (execution.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return rec, nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (execution.Record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return execution.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListExecutions(ctx context.Context, limit int) ([]execution.Record, error) {
	s.mu.RLock()
	out := make([]execution.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
