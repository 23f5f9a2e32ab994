// Package crawl drives a listing source page by page and feeds its items
// through the worker pool in fixed-size batches.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/clock/system"
	"github.com/JakeFAU/bidharvest/internal/dispatcher"
	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/metrics"
	"github.com/JakeFAU/bidharvest/internal/telemetry"
)

// StopReason explains why a crawl ended.
type StopReason string

// Stop reasons reported in Summary.
const (
	StopEmptyPage    StopReason = "empty_page"
	StopStalled      StopReason = "stalled"
	StopLastPage     StopReason = "last_page"
	StopPageLimit    StopReason = "page_limit"
	StopListingError StopReason = "listing_error"
	StopCanceled     StopReason = "canceled"
)

// DefaultBatchSize is the number of items processed concurrently.
const DefaultBatchSize = 5

// Processor handles one item.
type Processor interface {
	Process(ctx context.Context, desc harvest.ItemDescriptor, ledger harvest.LedgerView) (*harvest.LedgerEntry, error)
}

// Ledger is the item store as seen by the controller.
type Ledger interface {
	harvest.LedgerView
	Add(identity string, entry harvest.LedgerEntry) bool
	Commit(ctx context.Context) error
}

// Config controls the crawl loop.
type Config struct {
	BatchSize int
	// MaxPages stops after this many pages; zero means no limit.
	MaxPages int
}

// Summary reports what a run did.
type Summary struct {
	Pages         int
	Items         int
	Processed     int
	Duplicates    int
	Skipped       int
	Failed        int
	Relevant      int
	PersistErrors int
	StopReason    StopReason
	Duration      time.Duration
}

// Controller runs the crawl loop.
type Controller struct {
	source    harvest.ListingSource
	processor Processor
	ledger    Ledger
	clock     harvest.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Controller.
func New(source harvest.ListingSource, processor Processor, ledger Ledger, clock harvest.Clock, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if clock == nil {
		clock = system.New()
	}
	return &Controller{
		source:    source,
		processor: processor,
		ledger:    ledger,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("crawl"),
	}
}

// Run walks the listing until it is exhausted, stalls, or ctx is canceled.
// Only a failure to read the first page is returned as an error; later
// failures end the run with a StopReason.
func (c *Controller) Run(ctx context.Context) (summary Summary, err error) {
	start := c.clock.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "crawl.run")
	defer func() {
		summary.Duration = c.clock.Now().Sub(start)
		span.SetAttributes(
			attribute.Int("crawl.pages", summary.Pages),
			attribute.Int("crawl.processed", summary.Processed),
			attribute.Int("crawl.failed", summary.Failed),
			attribute.String("crawl.stop_reason", string(summary.StopReason)),
		)
		telemetry.End(span, err)
	}()

	pool := dispatcher.New(c.cfg.BatchSize, func(batchCtx context.Context, desc harvest.ItemDescriptor) (*harvest.LedgerEntry, error) {
		return c.processor.Process(batchCtx, desc, c.ledger)
	}, c.logger)

	var previous string
	for {
		if ctx.Err() != nil {
			summary.StopReason = StopCanceled
			return summary, nil
		}

		items, itemsErr := c.source.Items(ctx)
		if itemsErr != nil {
			if summary.Pages == 0 {
				return summary, fmt.Errorf("%w: read first page: %w", harvest.ErrListingUnavailable, itemsErr)
			}
			c.logger.Error("listing page unreadable", zap.Int("page", summary.Pages+1), zap.Error(itemsErr))
			summary.StopReason = StopListingError
			return summary, nil
		}
		if len(items) == 0 {
			c.logger.Info("empty listing page", zap.Int("page", summary.Pages+1))
			summary.StopReason = StopEmptyPage
			return summary, nil
		}
		signature := PageSignature(items)
		if signature == previous {
			c.logger.Warn("listing did not advance", zap.Int("page", summary.Pages))
			summary.StopReason = StopStalled
			return summary, nil
		}
		previous = signature

		summary.Pages++
		metrics.ObservePage()
		if canceled := c.runPage(ctx, pool, uniqueItems(items), &summary); canceled {
			summary.StopReason = StopCanceled
			return summary, nil
		}

		if c.cfg.MaxPages > 0 && summary.Pages >= c.cfg.MaxPages {
			summary.StopReason = StopPageLimit
			return summary, nil
		}
		hasNext, err := c.source.HasNext(ctx)
		if err != nil {
			c.logger.Error("listing pagination check failed", zap.Error(err))
			summary.StopReason = StopListingError
			return summary, nil
		}
		if !hasNext {
			summary.StopReason = StopLastPage
			return summary, nil
		}
		if err := c.source.Next(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				summary.StopReason = StopCanceled
				return summary, nil
			}
			c.logger.Error("listing next page failed", zap.Error(err))
			summary.StopReason = StopListingError
			return summary, nil
		}
	}
}

// runPage processes items in consecutive batches. Each batch runs to
// completion; cancellation is only observed between batches.
func (c *Controller) runPage(ctx context.Context, pool *dispatcher.Pool[harvest.ItemDescriptor, *harvest.LedgerEntry], items []harvest.ItemDescriptor, summary *Summary) bool {
	for batch := range slices.Chunk(items, c.cfg.BatchSize) {
		if ctx.Err() != nil {
			return true
		}
		summary.Items += len(batch)
		results := pool.RunBatch(context.WithoutCancel(ctx), batch)

		added := 0
		for _, res := range results {
			switch {
			case res.Err != nil && errors.Is(res.Err, harvest.ErrDownload):
				summary.Skipped++
			case res.Err != nil:
				summary.Failed++
				c.logger.Error("item failed", zap.String("identity", res.Task.Identity), zap.Error(res.Err))
			case res.Value == nil:
				summary.Duplicates++
			default:
				if c.ledger.Add(res.Task.Identity, *res.Value) {
					added++
					summary.Processed++
					if res.Value.Relevance.IsMatch {
						summary.Relevant++
					}
				}
			}
		}
		if added == 0 {
			continue
		}
		if err := c.ledger.Commit(context.WithoutCancel(ctx)); err != nil {
			summary.PersistErrors++
			c.logger.Error("ledger persist failed", zap.Int("entries", added), zap.Error(err))
		}
	}
	return false
}

// PageSignature identifies a page by its sorted, comma-joined display ids, so
// the same items in a different order compare equal.
func PageSignature(items []harvest.ItemDescriptor) string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		id := it.DisplayID
		if id == "" {
			id = it.Identity
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return strings.Join(ids, ",")
}

func uniqueItems(items []harvest.ItemDescriptor) []harvest.ItemDescriptor {
	seen := make(map[string]struct{}, len(items))
	out := make([]harvest.ItemDescriptor, 0, len(items))
	for _, it := range items {
		if it.Identity == "" {
			continue
		}
		if _, ok := seen[it.Identity]; ok {
			continue
		}
		seen[it.Identity] = struct{}{}
		out = append(out, it)
	}
	return out
}
