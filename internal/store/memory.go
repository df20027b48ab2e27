package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend keeps every store in process memory
type MemoryBackend struct {
	mu     sync.RWMutex
	order  []string
	stores map[string]map[string]*Entry
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: make(map[string]map[string]*Entry)}
}

func (b *MemoryBackend) CreateStore(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.create(name)
	return nil
}

// create must be called with mu held.
func (b *MemoryBackend) create(name string) map[string]*Entry {
	s, ok := b.stores[name]
	if !ok {
		s = make(map[string]*Entry)
		b.stores[name] = s
		b.order = append(b.order, name)
	}
	return s
}

func (b *MemoryBackend) ListStores(context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.order), nil
}

func (b *MemoryBackend) DeleteStore(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.stores, name)
	b.order = slices.DeleteFunc(b.order, func(n string) bool { return n == name })
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, storeName, key string) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.stores[storeName][key]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (b *MemoryBackend) Set(_ context.Context, storeName, key string, entry *Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.create(storeName)[key] = entry.Clone()
	return nil
}

func (b *MemoryBackend) Close() error { return nil }
