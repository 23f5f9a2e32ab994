// Package contacts keeps the outreach state of every discovered address.
package contacts

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/kv"
)

// MaxSends is the number of messages an address receives in total.
const MaxSends = 4

// Store is the contact store. Mutations are serialised by mu so concurrent
// processors can upsert safely.
type Store struct {
	mu     sync.Mutex
	kv     kv.KV[harvest.ContactRecord]
	clock  harvest.Clock
	logger *zap.Logger
}

// Open loads the contact document from backend.
func Open(ctx context.Context, backend kv.Backend, clock harvest.Clock, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("contacts")
	data, err := kv.Open[harvest.ContactRecord](ctx, "contacts", backend, logger)
	if err != nil {
		return nil, fmt.Errorf("open contacts: %w", err)
	}
	return New(data, clock, logger), nil
}

// New wraps an already opened key-value store.
func New(data kv.KV[harvest.ContactRecord], clock harvest.Clock, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: data, clock: clock, logger: logger}
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

// Upsert adds unseen addresses with a zero send count and repairs records that
// reached MaxSends back to MaxSends-1. The document is written only when a
// record changed.
func (s *Store) Upsert(ctx context.Context, addresses []string) (harvest.UpsertResult, error) {
	var res harvest.UpsertResult
	if len(addresses) == 0 {
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, addr := range harvest.SortedSet(addresses) {
		rec, ok := s.kv.Get(addr)
		switch {
		case !ok:
			s.kv.Set(addr, harvest.ContactRecord{Address: addr, DateAdded: now})
			res.Created++
		case rec.SendCount == MaxSends:
			rec.SendCount = MaxSends - 1
			s.kv.Set(addr, rec)
			res.Corrected++
		}
	}
	if !res.Changed() {
		return res, nil
	}
	if err := s.kv.Persist(ctx); err != nil {
		return res, fmt.Errorf("persist contacts: %w", err)
	}
	s.logger.Debug("contacts upserted",
		zap.Int("created", res.Created),
		zap.Int("corrected", res.Corrected),
	)
	return res, nil
}

// MarkSent records a successful send to every address and persists.
func (s *Store) MarkSent(ctx context.Context, addresses []string, sentAt time.Time) error {
	if len(addresses) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sentAt = sentAt.UTC()
	for _, addr := range addresses {
		rec, ok := s.kv.Get(addr)
		if !ok {
			rec = harvest.ContactRecord{Address: addr, DateAdded: sentAt}
		}
		rec.SendCount++
		ts := sentAt
		rec.LastSentAt = &ts
		s.kv.Set(addr, rec)
	}
	if err := s.kv.Persist(ctx); err != nil {
		return fmt.Errorf("persist contacts: %w", err)
	}
	return nil
}

// Get returns the record for address.
func (s *Store) Get(address string) (harvest.ContactRecord, bool) {
	return s.kv.Get(address)
}

// Records returns every record sorted by address.
func (s *Store) Records() []harvest.ContactRecord {
	all := s.kv.All()
	out := make([]harvest.ContactRecord, 0, len(all))
	for addr, rec := range all {
		if rec.Address == "" {
			rec.Address = addr
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b harvest.ContactRecord) int {
		switch {
		case a.Address < b.Address:
			return -1
		case a.Address > b.Address:
			return 1
		}
		return 0
	})
	return out
}

// DomainCount is the number of addresses sharing a domain.
type DomainCount struct {
	Domain string
	Count  int
}

// DomainCounts groups addresses by domain and keeps domains with at least
// threshold addresses, largest first.
func (s *Store) DomainCounts(threshold int) []DomainCount {
	counts := make(map[string]int)
	for _, rec := range s.Records() {
		if d := rec.Domain(); d != "" {
			counts[d]++
		}
	}
	out := make([]DomainCount, 0, len(counts))
	for d, n := range counts {
		if n >= threshold {
			out = append(out, DomainCount{Domain: d, Count: n})
		}
	}
	slices.SortFunc(out, func(a, b DomainCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		switch {
		case a.Domain < b.Domain:
			return -1
		case a.Domain > b.Domain:
			return 1
		}
		return 0
	})
	return out
}
