package cache

import (
	"context"
	"sync"

	"github.com/kjstillabower/forecast-service/internal/models"
)

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data models.Document
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(models.Document)}
}

// Load returns a copy of the document, so callers cannot mutate the store.
func (m *MemoryStore) Load(ctx context.Context) (models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(models.Document, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

// Save implements Store.Save.
func (m *MemoryStore) Save(ctx context.Context, key string, record models.ForecastRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = record
	return nil
}
