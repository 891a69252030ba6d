// Package settings persists the active decoder options across restarts.
//
// Reads and writes go through a Gateway that prefers a structured settings
// Store and degrades to a flat LocalStore when the Store is absent or fails.
package settings

import (
	"context"
	"maps"
	"sync"

	"github.com/cockroachdb/errors"
)

const (
	// Category is the settings store category holding decoder options.
	Category = "decoder"
	// LocalKey is the local config store key holding decoder options.
	LocalKey = "decoder_options"
)

// Store is a structured, category-based settings store.
type Store interface {
	// GetCategory returns the stored values, or nil when the category is unset.
	GetCategory(ctx context.Context, name string) (map[string]any, error)
	UpdateCategory(ctx context.Context, name string, values map[string]any) error
}

// LocalStore is a flat key-value config store used as the fallback tier.
type LocalStore interface {
	// Get returns the stored value for key, or fallback when unset.
	Get(key string, fallback any) (any, error)
	Set(key string, value any) error
}

// MemoryStore is an in-process Store and LocalStore.
type MemoryStore struct {
	mu         sync.RWMutex
	categories map[string]map[string]any
	values     map[string]any
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: make(map[string]map[string]any),
		values:     make(map[string]any),
	}
}

func (m *MemoryStore) GetCategory(_ context.Context, name string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values, ok := m.categories[name]
	if !ok {
		return nil, nil
	}
	return maps.Clone(values), nil
}

func (m *MemoryStore) UpdateCategory(_ context.Context, name string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[name] = maps.Clone(values)
	return nil
}

func (m *MemoryStore) Get(key string, fallback any) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return fallback, nil
	}
	return v, nil
}

func (m *MemoryStore) Set(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "" {
		return errors.New("empty key")
	}
	m.values[key] = value
	return nil
}
