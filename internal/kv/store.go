package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/harvest"
)

// Store is a JSON-document backed implementation of KV.
type Store[V any] struct {
	mu      sync.RWMutex
	name    string
	backend Backend
	data    map[string]V
	logger  *zap.Logger
}

// Open reads the backend document into memory. A missing document yields an
// empty store. An unreadable or corrupt document is logged and also yields an
// empty store; only a nil backend is an error.
func Open[V any](ctx context.Context, name string, backend Backend, logger *zap.Logger) (*Store[V], error) {
	if backend == nil {
		return nil, fmt.Errorf("kv store %q: backend is required", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store[V]{
		name:    name,
		backend: backend,
		data:    make(map[string]V),
		logger:  logger,
	}
	if err := s.load(ctx); err != nil {
		logger.Warn("store unreadable, starting empty",
			zap.String("store", name),
			zap.Error(err),
		)
		s.data = make(map[string]V)
	}
	return s, nil
}

func (s *Store[V]) load(ctx context.Context) error {
	raw, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", harvest.ErrStoreCorrupt, s.name, err)
	}
	if len(raw) == 0 {
		return nil
	}
	data := make(map[string]V)
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: decode %s: %w", harvest.ErrStoreCorrupt, s.name, err)
	}
	s.data = data
	return nil
}

// Name returns the logical store name used in logs.
func (s *Store[V]) Name() string {
	return s.name
}

// Get returns the value stored under key.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key in memory.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key from memory.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// All returns a shallow copy of every entry.
func (s *Store[V]) All() map[string]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// Len returns the number of entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Persist rewrites the whole document through the backend.
func (s *Store[V]) Persist(ctx context.Context) error {
	s.mu.RLock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.name, err)
	}
	if err := s.backend.Write(ctx, raw); err != nil {
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	return nil
}
