package settings

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory settings store for tests and the memory
// storage backend.
type MemoryRepository struct {
	mu          sync.RWMutex
	current     Settings
	initialized bool
}

// NewMemoryRepository creates an empty, un-bootstrapped repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) GetActive(_ context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return Settings{}, ErrNotBootstrapped
	}
	return m.current, nil
}

func (m *MemoryRepository) Bootstrap(_ context.Context, defaults Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	m.current = defaults
	m.initialized = true
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = s
	m.initialized = true
	return nil
}

func (m *MemoryRepository) Close() error { return nil }
