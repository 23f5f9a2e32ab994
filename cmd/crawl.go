package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/analyzer"
	"github.com/JakeFAU/bidharvest/internal/config"
	"github.com/JakeFAU/bidharvest/internal/crawl"
	collyfetcher "github.com/JakeFAU/bidharvest/internal/fetcher/colly"
	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/hash/sha256"
	"github.com/JakeFAU/bidharvest/internal/id/uuid"
	"github.com/JakeFAU/bidharvest/internal/keyword"
	"github.com/JakeFAU/bidharvest/internal/listing/headless"
	"github.com/JakeFAU/bidharvest/internal/parser/pdf"
	"github.com/JakeFAU/bidharvest/internal/policy/ratelimit"
	"github.com/JakeFAU/bidharvest/internal/report"
	"github.com/JakeFAU/bidharvest/internal/spool"
	"github.com/JakeFAU/bidharvest/internal/worker"
)

// listingSource is a ListingSource that holds a browser open.
type listingSource interface {
	harvest.ListingSource
	Close()
}

// openListing starts a listing session for one query. Tests replace it.
var openListing = func(ctx context.Context, cfg headless.Config, logger *zap.Logger) (listingSource, error) {
	return headless.Open(ctx, cfg, logger)
}

type crawlOptions struct {
	queries  []string
	maxPages int
}

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Walk the tender listing and process every new bid",
		Long: `Prunes expired ledger entries, then opens the listing once per search
term, walks its pages and downloads, analyzes and records each bid not
already in the ledger.`,
		RunE: withSession(func(cmd *cobra.Command, sess *session) error {
			return runCrawl(cmd, sess, opts)
		}),
	}
	cmd.Flags().StringSliceVar(&opts.queries, "query", nil, "search terms, overriding listing.search_terms")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", -1, "stop each query after this many pages (0 = no limit)")
	return cmd
}

func runCrawl(cmd *cobra.Command, sess *session, opts *crawlOptions) error {
	ctx := cmd.Context()
	a := sess.app
	cfg := a.Config()
	logger := a.Logger()

	pruned, err := a.Ledger().Prune(ctx, a.Clock().Now())
	if err != nil {
		logger.Warn("Failed to persist pruned ledger", zap.Error(err))
	} else if pruned > 0 {
		logger.Info("Pruned expired ledger entries", zap.Int("removed", pruned))
	}

	proc, err := buildProcessor(cfg, a.Contacts(), a.Clock(), logger)
	if err != nil {
		return err
	}

	terms := cfg.Listing.SearchTerms
	if len(opts.queries) > 0 {
		terms = opts.queries
	}
	maxPages := cfg.Listing.MaxPages
	if opts.maxPages >= 0 {
		maxPages = opts.maxPages
	}

	var rows []report.CrawlRow
	failures := 0
	for _, query := range headless.Queries(terms) {
		if ctx.Err() != nil {
			break
		}
		row := runQuery(ctx, cfg, query, maxPages, proc, sess, logger)
		if row.Err != nil {
			failures++
		}
		rows = append(rows, row)
	}

	report.RenderCrawl(cmd.OutOrStdout(), rows)
	if len(rows) > 0 && failures == len(rows) {
		return fmt.Errorf("%w: every query failed", harvest.ErrListingUnavailable)
	}
	return nil
}

func runQuery(ctx context.Context, cfg config.Config, query string, maxPages int, proc *worker.Processor, sess *session, logger *zap.Logger) report.CrawlRow {
	row := report.CrawlRow{Query: query}
	qlog := logger.With(zap.String("query", query))

	src, err := openListing(ctx, headless.Config{
		URL:          cfg.Listing.URL,
		Category:     cfg.Listing.Category,
		Query:        query,
		ReadyTimeout: cfg.Listing.ReadyTimeout,
		Settle:       cfg.Listing.Settle,
		UserAgent:    cfg.Listing.UserAgent,
		Selectors:    cfg.Listing.Selectors,
		Headless:     cfg.Listing.Headless,
	}, qlog)
	if err != nil {
		qlog.Error("Listing unavailable", zap.Error(err))
		row.Err = err
		return row
	}
	defer src.Close()

	ctrl := crawl.New(src, proc, sess.app.Ledger(), sess.app.Clock(), crawl.Config{
		BatchSize: cfg.Harvest.BatchSize,
		MaxPages:  maxPages,
	}, qlog)
	summary, err := ctrl.Run(ctx)
	row.Summary = summary
	if err != nil && !errors.Is(err, context.Canceled) {
		qlog.Error("Crawl failed", zap.Error(err))
		row.Err = err
	}
	return row
}

func buildProcessor(cfg config.Config, contacts harvest.ContactSink, clock harvest.Clock, logger *zap.Logger) (*worker.Processor, error) {
	sp, err := spool.New(cfg.Harvest.SpoolDir, uuid.New())
	if err != nil {
		return nil, fmt.Errorf("init spool: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.HTTP.RatePerHost,
		Burst: cfg.HTTP.Burst,
	})
	primary := collyfetcher.New(collyfetcher.Config{
		UserAgent:        cfg.Listing.UserAgent,
		Timeout:          cfg.Timeout(),
		MaxBodyBytes:     cfg.HTTP.MaxBodyBytes,
		DefaultExtension: cfg.Harvest.LinkExtension,
		Kind:             "main",
	}, sp, limiter, logger)

	docAnalyzer := analyzer.New(pdf.New(logger), keyword.New(), analyzer.Config{
		RelevanceTerms: cfg.Harvest.RelevanceTerms,
		LinkExtension:  cfg.Harvest.LinkExtension,
		MaxEvidenceLen: analyzer.DefaultMaxEvidenceLen,
	}, logger)

	return worker.New(
		primary,
		primary.WithKind("linked"),
		docAnalyzer,
		contacts,
		sha256.New(),
		clock,
		worker.Config{
			LinkDepth:               cfg.Harvest.LinkDepth,
			MaxAggregateEvidenceLen: worker.DefaultMaxAggregateEvidenceLen,
		},
		logger,
	), nil
}
