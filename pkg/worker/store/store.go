// Package store persists execution records for the worker service.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/actflow/actflow/pkg/models"
)

// Store is the persistence surface for execution records.
type Store interface {
	Save(ctx context.Context, info *models.ExecutionInfo) error
	Get(ctx context.Context, id string) (*models.ExecutionInfo, bool, error)
	List(ctx context.Context) ([]*models.ExecutionInfo, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.ExecutionInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.ExecutionInfo)}
}

func (s *MemoryStore) Save(_ context.Context, info *models.ExecutionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[info.ID] = cloneInfo(info)

	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.ExecutionInfo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}

	return cloneInfo(info), true, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.ExecutionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.ExecutionInfo, 0, len(s.records))
	for _, info := range s.records {
		records = append(records, cloneInfo(info))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})

	return records, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// cloneInfo keeps stored records isolated from caller mutation.
func cloneInfo(info *models.ExecutionInfo) *models.ExecutionInfo {
	clone := *info
	clone.Logs = make([]models.ExecutionLog, len(info.Logs))
	copy(clone.Logs, info.Logs)

	return &clone
}
