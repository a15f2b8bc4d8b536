package settings

import (
	"context"
	"sync"
)

// Store is the configuration repository the adapter and client read from.
// Implementations must make GetAll return every field (defaults merged) and
// Save replace the whole record; there are no partial-field transactions.
type Store interface {
	GetAll(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu      sync.RWMutex
	current Settings
}

// NewMemoryStore creates a MemoryStore seeded with the given settings.
func NewMemoryStore(s Settings) *MemoryStore {
	return &MemoryStore{current: s}
}

// GetAll returns the stored settings with defaults merged in.
func (m *MemoryStore) GetAll(ctx context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return withDefaults(m.current), nil
}

// Save replaces the stored settings.
func (m *MemoryStore) Save(ctx context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
	return nil
}
