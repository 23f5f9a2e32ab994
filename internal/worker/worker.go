// Package worker implements the fetch-and-analyze unit run for each listing item.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/analyzer"
	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/metrics"
	"github.com/JakeFAU/bidharvest/internal/telemetry"
)

const (
	// DefaultLinkDepth follows links found in the main document only.
	DefaultLinkDepth = 1
	// DefaultMaxAggregateEvidenceLen caps evidence gathered across documents.
	DefaultMaxAggregateEvidenceLen = 4000
	// LinkedEvidenceSeparator precedes evidence taken from a linked document.
	LinkedEvidenceSeparator = " | (Linked): "
)

// ErrContacts marks a failure to record discovered contacts.
var ErrContacts = errors.New("contact upsert failed")

// Config controls Processor behavior.
type Config struct {
	// LinkDepth is how many hops of linked documents are expanded.
	// Zero disables linked documents.
	LinkDepth               int
	MaxAggregateEvidenceLen int
}

// Processor downloads and analyzes one item and its linked documents.
type Processor struct {
	downloader harvest.Downloader
	linked     harvest.Downloader
	analyzer   harvest.Analyzer
	contacts   harvest.ContactSink
	hasher     harvest.Hasher
	clock      harvest.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Processor. linked may be nil, in which case linked
// documents are fetched through downloader.
func New(
	downloader harvest.Downloader,
	linked harvest.Downloader,
	docAnalyzer harvest.Analyzer,
	contacts harvest.ContactSink,
	hasher harvest.Hasher,
	clock harvest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if linked == nil {
		linked = downloader
	}
	if cfg.LinkDepth < 0 {
		cfg.LinkDepth = 0
	}
	if cfg.MaxAggregateEvidenceLen <= 0 {
		cfg.MaxAggregateEvidenceLen = DefaultMaxAggregateEvidenceLen
	}
	return &Processor{
		downloader: downloader,
		linked:     linked,
		analyzer:   docAnalyzer,
		contacts:   contacts,
		hasher:     hasher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger.Named("worker"),
	}
}

// Process handles one item. It returns nil, nil when the ledger already holds a
// completed entry for the item, and an error wrapping harvest.ErrDownload when
// the main document cannot be fetched. Every spooled file is removed before
// Process returns.
func (p *Processor) Process(
	ctx context.Context,
	desc harvest.ItemDescriptor,
	ledger harvest.LedgerView,
) (entry *harvest.LedgerEntry, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "worker.process",
		trace.WithAttributes(attribute.String("item.identity", desc.Identity)))
	defer func() {
		if entry != nil {
			span.SetAttributes(
				attribute.Bool("item.relevant", entry.Relevance.IsMatch),
				attribute.Int("item.contacts", len(entry.ExtractedContacts)),
			)
		}
		telemetry.End(span, err)
	}()
	return p.process(ctx, desc, ledger)
}

func (p *Processor) process(
	ctx context.Context,
	desc harvest.ItemDescriptor,
	ledger harvest.LedgerView,
) (*harvest.LedgerEntry, error) {
	logger := p.logger.With(zap.String("identity", desc.Identity), zap.String("display_id", desc.DisplayID))
	if ledger != nil && ledger.IsComplete(desc.Identity) {
		metrics.ObserveItem("duplicate")
		logger.Debug("item already complete")
		return nil, nil
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var spooled []spooledArtifact
	defer func() {
		for _, s := range spooled {
			if err := s.downloader.Remove(s.artifact); err != nil {
				logger.Warn("spool cleanup failed", zap.String("artifact", s.artifact.Name), zap.Error(err))
			}
		}
	}()

	mainArtifact, mainData, err := p.fetch(ctx, p.downloader, desc.Identity)
	if mainArtifact.Name != "" {
		spooled = append(spooled, spooledArtifact{downloader: p.downloader, artifact: mainArtifact})
	}
	if err != nil {
		metrics.ObserveItem("skipped")
		logger.Warn("main document unavailable", zap.Error(err))
		return nil, err
	}

	primary := p.analyzer.Analyze(ctx, mainData)
	agg := newAggregate(primary, p.cfg.MaxAggregateEvidenceLen)

	frontier := primary.Links
	visited := map[string]struct{}{desc.Identity: {}}
	for depth := 1; depth <= p.cfg.LinkDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, link := range frontier {
			if _, seen := visited[link]; seen {
				continue
			}
			visited[link] = struct{}{}
			artifact, data, err := p.fetch(ctx, p.linked, link)
			if artifact.Name != "" {
				spooled = append(spooled, spooledArtifact{downloader: p.linked, artifact: artifact})
			}
			if err != nil {
				logger.Debug("linked document skipped", zap.String("link", link), zap.Error(err))
				continue
			}
			doc := p.analyzer.Analyze(ctx, data)
			agg.addLinked(doc)
			next = append(next, doc.Links...)
		}
		frontier = next
	}

	addresses := agg.addresses()
	if p.contacts != nil && len(addresses) > 0 {
		res, err := p.contacts.Upsert(ctx, addresses)
		if err != nil {
			metrics.ObserveItem("failed")
			return nil, fmt.Errorf("%w: %w", ErrContacts, err)
		}
		metrics.ObserveContacts(res.Created, res.Corrected)
	}

	entry := &harvest.LedgerEntry{
		Timestamp:         p.clock.Now().UTC(),
		DisplayID:         desc.DisplayID,
		Status:            harvest.StatusComplete,
		MatchedKeywords:   agg.terms(),
		ExtractedLinks:    agg.links(),
		ExtractedContacts: addresses,
		Relevance:         agg.relevance(),
		ArtifactName:      mainArtifact.Name,
	}
	if p.hasher != nil {
		digest, err := p.hasher.Hash(mainData)
		if err != nil {
			logger.Warn("hash failed", zap.Error(err))
		} else {
			entry.ContentHash = digest
		}
	}
	metrics.ObserveItem("processed")
	logger.Info("item processed",
		zap.Bool("relevant", entry.Relevance.IsMatch),
		zap.Int("contacts", len(entry.ExtractedContacts)),
		zap.Int("links", len(entry.ExtractedLinks)),
	)
	return entry, nil
}

type spooledArtifact struct {
	downloader harvest.Downloader
	artifact   harvest.Artifact
}

func (p *Processor) fetch(ctx context.Context, d harvest.Downloader, url string) (harvest.Artifact, []byte, error) {
	artifact, err := d.Download(ctx, url)
	if err != nil {
		return harvest.Artifact{}, nil, fmt.Errorf("download %s: %w", url, err)
	}
	data, err := d.Read(artifact)
	if err != nil {
		return artifact, nil, fmt.Errorf("%w: read %s: %w", harvest.ErrDownload, url, err)
	}
	return artifact, data, nil
}

// aggregate merges the main document analysis with its linked documents.
type aggregate struct {
	limit       int
	matched     bool
	evidence    strings.Builder
	addressList [][]string
	termList    [][]string
	linkList    [][]string
}

func newAggregate(main harvest.Analysis, limit int) *aggregate {
	a := &aggregate{limit: limit, matched: main.Relevance.IsMatch}
	a.evidence.WriteString(main.Relevance.Evidence)
	a.addressList = append(a.addressList, main.Addresses)
	a.termList = append(a.termList, main.MatchedTerms)
	a.linkList = append(a.linkList, main.Links)
	return a
}

func (a *aggregate) addLinked(linked harvest.Analysis) {
	a.addressList = append(a.addressList, linked.Addresses)
	a.termList = append(a.termList, linked.MatchedTerms)
	a.linkList = append(a.linkList, linked.Links)
	if !linked.Relevance.IsMatch {
		return
	}
	a.matched = true
	a.evidence.WriteString(LinkedEvidenceSeparator)
	a.evidence.WriteString(linked.Relevance.Evidence)
}

func (a *aggregate) addresses() []string { return harvest.SortedSet(a.addressList...) }

func (a *aggregate) terms() []string { return harvest.SortedSet(a.termList...) }

func (a *aggregate) links() []string { return harvest.SortedSet(a.linkList...) }

func (a *aggregate) relevance() harvest.Relevance {
	return harvest.Relevance{
		IsMatch:  a.matched,
		Evidence: analyzer.Truncate(a.evidence.String(), a.limit),
	}
}
