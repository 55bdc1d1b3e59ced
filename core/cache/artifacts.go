package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrMissing is returned by an ArtifactCache when no artifact exists for the
// identity. The coordinator treats it as a no-op.
var ErrMissing = errors.New("artifact not found")

// ArtifactCache stores derived artifacts keyed by record identity.
type ArtifactCache interface {
	// Evict drops the artifact of identity.
	Evict(ctx context.Context, identity string) error
	// Migrate moves the artifact of oldIdentity to newIdentity.
	Migrate(ctx context.Context, oldIdentity, newIdentity string) error
}

// MemoryArtifacts is an in-process ArtifactCache.
type MemoryArtifacts struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryArtifacts creates an empty in-process cache.
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{items: make(map[string][]byte)}
}

// Put stores an artifact.
func (m *MemoryArtifacts) Put(identity string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[identity] = data
}

// Get returns the artifact of identity.
func (m *MemoryArtifacts) Get(identity string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.items[identity]
	return data, ok
}

// Len returns the number of cached artifacts.
func (m *MemoryArtifacts) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryArtifacts) Evict(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[identity]; !ok {
		return ErrMissing
	}
	delete(m.items, identity)
	return nil
}

func (m *MemoryArtifacts) Migrate(_ context.Context, oldIdentity, newIdentity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.items[oldIdentity]
	if !ok {
		return ErrMissing
	}
	delete(m.items, oldIdentity)
	m.items[newIdentity] = data
	return nil
}
