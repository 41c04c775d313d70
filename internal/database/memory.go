package database

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/arbiscout/arbiscout/internal/models"
)

// MemoryResultStore keeps scan results in memory. The CLI uses it when no
// database is configured; tests use it as a drop-in for ScanResultStore.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]*models.ScanResult
	order   []string
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		results: make(map[string]*models.ScanResult),
	}
}

func (s *MemoryResultStore) StoreScanResult(ctx context.Context, result *models.ScanResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	result.ResultID = id

	copied := *result

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = &copied
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryResultStore) GetScanResult(ctx context.Context, id string) (*models.ScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[id]
	if !ok {
		return nil, ErrResultNotFound
	}
	copied := *result
	return &copied, nil
}

func (s *MemoryResultStore) ListScanResults(ctx context.Context, limit int) ([]*models.ScanResult, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*models.ScanResult, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(results) < limit; i-- {
		copied := *s.results[s.order[i]]
		results = append(results, &copied)
	}
	return results, nil
}

func (s *MemoryResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
