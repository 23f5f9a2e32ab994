// Package kv provides the key-value store abstraction behind the ledger and the
// contact store. A Store keeps the full map in memory and rewrites the whole
// document through a Backend on every Persist.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when no document has been written yet.
var ErrNotFound = errors.New("kv document not found")

// Backend reads and writes one serialized document.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// KV is the store contract the business logic depends on.
type KV[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
	All() map[string]V
	Len() int
	Persist(ctx context.Context) error
}
