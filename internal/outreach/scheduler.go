// Package outreach selects contacts that are due a message and hands them to
// the mail sender as one payload.
package outreach

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/contacts"
	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/metrics"
	"github.com/JakeFAU/bidharvest/internal/telemetry"
)

const (
	// MaxSends is the number of messages an address receives in total.
	MaxSends = contacts.MaxSends
	// FollowupGapDays is the minimum gap before a follow-up.
	FollowupGapDays = 10
	// NeverSent is the DaysSince value of an address never contacted.
	NeverSent = math.MaxInt
)

// Store is the contact store as seen by the scheduler.
type Store interface {
	Records() []harvest.ContactRecord
	MarkSent(ctx context.Context, addresses []string, sentAt time.Time) error
}

// Config controls a scheduler run.
type Config struct {
	Mode harvest.PayloadKind
	// Domains restricts outreach to these domains; empty means every domain.
	Domains []string
	// MaxBatch caps the addresses per payload; zero means no cap.
	MaxBatch int
}

// Result reports a scheduler run.
type Result struct {
	Eligible int
	Sent     []string
}

// Scheduler runs outreach.
type Scheduler struct {
	store    Store
	notifier harvest.Notifier
	clock    harvest.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(store Store, notifier harvest.Notifier, clock harvest.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = harvest.PayloadBatch
	}
	return &Scheduler{store: store, notifier: notifier, clock: clock, cfg: cfg, logger: logger.Named("outreach")}
}

// DaysSince returns the whole days between last and now, rounded up. A nil
// last returns NeverSent.
func DaysSince(last *time.Time, now time.Time) int {
	if last == nil {
		return NeverSent
	}
	diff := now.Sub(*last)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// Eligible reports whether rec is due a first message or a follow-up.
func Eligible(rec harvest.ContactRecord, now time.Time) bool {
	if rec.SendCount == 0 {
		return true
	}
	return rec.SendCount < MaxSends && DaysSince(rec.LastSentAt, now) > FollowupGapDays
}

// Select returns the eligible addresses sorted by address.
func (s *Scheduler) Select(now time.Time) []string {
	allowed := domainSet(s.cfg.Domains)
	var out []string
	for _, rec := range s.store.Records() {
		if len(allowed) > 0 {
			if _, ok := allowed[rec.Domain()]; !ok {
				continue
			}
		}
		if Eligible(rec, now) {
			out = append(out, rec.Address)
		}
	}
	slices.Sort(out)
	return out
}

// Run sends one payload with every eligible address and commits the send on
// success. A failed send leaves the store untouched.
func (s *Scheduler) Run(ctx context.Context) (res Result, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "outreach.run",
		trace.WithAttributes(attribute.String("outreach.mode", string(s.cfg.Mode))))
	defer func() {
		span.SetAttributes(
			attribute.Int("outreach.eligible", res.Eligible),
			attribute.Int("outreach.sent", len(res.Sent)),
		)
		telemetry.End(span, err)
	}()
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (Result, error) {
	now := s.clock.Now().UTC()
	batch := s.Select(now)
	res := Result{Eligible: len(batch)}
	if len(batch) == 0 {
		s.logger.Info("no contacts due")
		return res, nil
	}
	if s.cfg.MaxBatch > 0 && len(batch) > s.cfg.MaxBatch {
		batch = batch[:s.cfg.MaxBatch]
	}

	payload := harvest.Payload{Kind: s.cfg.Mode, Addresses: batch}
	if err := payload.Validate(); err != nil {
		metrics.ObserveOutreach("invalid")
		return res, fmt.Errorf("validate payload: %w", err)
	}
	if err := s.notifier.Notify(ctx, payload); err != nil {
		metrics.ObserveOutreach("failed")
		s.logger.Error("outreach send failed", zap.Int("addresses", len(batch)), zap.Error(err))
		return res, fmt.Errorf("notify: %w", err)
	}
	if err := s.store.MarkSent(ctx, batch, now); err != nil {
		metrics.ObserveOutreach("uncommitted")
		return res, fmt.Errorf("commit send: %w", err)
	}
	metrics.ObserveOutreach("sent")
	s.logger.Info("outreach sent", zap.String("mode", string(s.cfg.Mode)), zap.Int("addresses", len(batch)))
	res.Sent = batch
	return res, nil
}

func domainSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(d), "@")))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}
