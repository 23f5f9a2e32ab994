// Package memory records outreach payloads instead of sending them. It backs
// dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/bidharvest/internal/harvest"
)

// Sink stores every payload it receives.
type Sink struct {
	mu       sync.RWMutex
	payloads []harvest.Payload
	err      error
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Notify records payload, or returns the configured failure.
func (s *Sink) Notify(_ context.Context, payload harvest.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	payload.Addresses = append([]string(nil), payload.Addresses...)
	s.payloads = append(s.payloads, payload)
	return nil
}

// Fail makes every later Notify return err.
func (s *Sink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Payloads returns the recorded payloads.
func (s *Sink) Payloads() []harvest.Payload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.Payload, len(s.payloads))
	copy(out, s.payloads)
	return out
}
