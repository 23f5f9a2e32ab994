// Package ledger keeps the per-item completion records that make a crawl
// resumable. Entries are keyed by item identity and never mutated once written.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/kv"
)

// Store is the item ledger.
type Store struct {
	kv        kv.KV[harvest.LedgerEntry]
	retention time.Duration
	logger    *zap.Logger
}

// Config controls ledger retention.
type Config struct {
	RetentionDays int
}

// Open loads the ledger document from backend.
func Open(ctx context.Context, backend kv.Backend, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ledger")
	data, err := kv.Open[harvest.LedgerEntry](ctx, "ledger", backend, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return New(data, cfg, logger), nil
}

// New wraps an already opened key-value store.
func New(data kv.KV[harvest.LedgerEntry], cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:        data,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:    logger,
	}
}

// Prune drops entries older than the retention window and persists when any
// were removed. A zero retention keeps everything.
func (s *Store) Prune(ctx context.Context, now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.retention)
	removed := 0
	for identity, entry := range s.kv.All() {
		if entry.Timestamp.Before(cutoff) {
			s.kv.Delete(identity)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	s.logger.Info("pruned expired ledger entries",
		zap.Int("removed", removed),
		zap.Time("cutoff", cutoff),
	)
	if err := s.kv.Persist(ctx); err != nil {
		return removed, fmt.Errorf("persist pruned ledger: %w", err)
	}
	return removed, nil
}

// IsComplete reports whether identity has a completed entry.
func (s *Store) IsComplete(identity string) bool {
	entry, ok := s.kv.Get(identity)
	return ok && entry.Complete()
}

// Get returns the entry stored for identity.
func (s *Store) Get(identity string) (harvest.LedgerEntry, bool) {
	return s.kv.Get(identity)
}

// Add records a new entry. Existing entries are left untouched and Add reports
// false for them.
func (s *Store) Add(identity string, entry harvest.LedgerEntry) bool {
	if _, ok := s.kv.Get(identity); ok {
		return false
	}
	entry.Timestamp = entry.Timestamp.UTC()
	s.kv.Set(identity, entry)
	return true
}

// Entries returns a copy of every entry keyed by identity.
func (s *Store) Entries() map[string]harvest.LedgerEntry {
	return s.kv.All()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return s.kv.Len()
}

// Commit persists the ledger document.
func (s *Store) Commit(ctx context.Context) error {
	if err := s.kv.Persist(ctx); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}
