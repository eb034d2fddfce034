package memory

import (
	"context"
	"sync"

	"sms-dlr-aggregator/internal/domain"
	"sms-dlr-aggregator/internal/storage"
)

// DatasetStore is an in-memory implementation of storage.DatasetStore.
type DatasetStore struct {
	mu sync.RWMutex
	ds *domain.Dataset
}

// NewDatasetStore creates an empty in-memory dataset store.
func NewDatasetStore() *DatasetStore {
	return &DatasetStore{}
}

// Compile-time interface check.
var _ storage.DatasetStore = (*DatasetStore)(nil)

// Load returns a deep copy of the stored dataset, or ErrNotFound.
func (s *DatasetStore) Load(_ context.Context) (*domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ds == nil {
		return nil, storage.ErrNotFound
	}
	return cloneDataset(s.ds), nil
}

// Save replaces the stored dataset with a deep copy of ds.
func (s *DatasetStore) Save(_ context.Context, ds *domain.Dataset) error {
	if ds == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ds = cloneDataset(ds)
	return nil
}

// cloneDataset copies rows and key maps to prevent external mutation.
func cloneDataset(ds *domain.Dataset) *domain.Dataset {
	out := domain.NewDataset(ds.Shape)
	out.Rows = make([]*domain.AggregateRow, len(ds.Rows))
	for i, r := range ds.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}
