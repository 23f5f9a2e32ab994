// Package memory provides an in-memory kv.Backend for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/bidharvest/internal/kv"
)

// Backend keeps the last written document in memory.
type Backend struct {
	mu     sync.Mutex
	data   []byte
	writes int
	err    error
}

// New creates an empty Backend.
func New() *Backend {
	return &Backend{}
}

// NewWithDocument creates a Backend pre-loaded with data.
func NewWithDocument(data []byte) *Backend {
	return &Backend{data: append([]byte(nil), data...)}
}

// Read returns the stored document or kv.ErrNotFound.
func (b *Backend) Read(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), b.data...), nil
}

// Write replaces the stored document.
func (b *Backend) Write(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.data = append([]byte(nil), data...)
	b.writes++
	return nil
}

// FailWrites makes every subsequent Write return err (nil restores writes).
func (b *Backend) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Writes returns how many successful writes happened.
func (b *Backend) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Document returns a copy of the stored document.
func (b *Backend) Document() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}
