// Package analyzer extracts contact addresses, outbound document links and a
// relevance classification from raw document bytes.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/keyword"
)

// DefaultMaxEvidenceLen caps the evidence text of a single document.
const DefaultMaxEvidenceLen = 2000

// Config controls analyzer behavior.
type Config struct {
	RelevanceTerms []string
	// LinkExtension is the path suffix a link must carry to be followed.
	LinkExtension  string
	MaxEvidenceLen int
}

// Analyzer implements harvest.Analyzer on top of a pluggable Parser.
type Analyzer struct {
	parser  harvest.Parser
	matcher *keyword.Matcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Analyzer. A nil matcher gets a private one.
func New(parser harvest.Parser, matcher *keyword.Matcher, cfg Config, logger *zap.Logger) *Analyzer {
	if matcher == nil {
		matcher = keyword.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LinkExtension == "" {
		cfg.LinkExtension = ".pdf"
	}
	if cfg.MaxEvidenceLen <= 0 {
		cfg.MaxEvidenceLen = DefaultMaxEvidenceLen
	}
	return &Analyzer{
		parser:  parser,
		matcher: matcher,
		cfg:     cfg,
		logger:  logger,
	}
}

// Analyze parses data and extracts every signal. Parser failures degrade to an
// empty analysis; they never surface as errors.
func (a *Analyzer) Analyze(ctx context.Context, data []byte) harvest.Analysis {
	parsed, err := a.parse(ctx, data)
	if err != nil {
		a.logger.Warn("document parse failed", zap.Int("bytes", len(data)), zap.Error(err))
		return emptyAnalysis()
	}

	textLinks := ExtractTextLinks(parsed.Text)
	links := harvest.SortedSet(FilterByExtension(harvest.SortedSet(textLinks, parsed.Links), a.cfg.LinkExtension))

	result := a.Classify(parsed.Text)
	result.Text = parsed.Text
	result.Links = links
	result.Addresses = ExtractAddresses(parsed.Text)
	return result
}

// Classify runs relevance classification over text. Only the relevance fields
// of the returned Analysis are populated.
func (a *Analyzer) Classify(text string) harvest.Analysis {
	result := emptyAnalysis()
	if text == "" {
		return result
	}
	matched := a.matcher.FindAll(text, a.cfg.RelevanceTerms)
	if len(matched) == 0 {
		return result
	}

	snippets := make([]string, 0, maxSnippets)
	for _, sentence := range SplitSentences(text) {
		if a.matcher.MatchesAny(sentence, matched) {
			clean := CleanSentence(sentence)
			if snippetLengthOK(clean) {
				snippets = append(snippets, clean)
			}
		}
		if len(snippets) >= maxSnippets {
			break
		}
	}

	result.MatchedTerms = matched
	result.Snippets = snippets
	result.Relevance = harvest.Relevance{
		IsMatch:  true,
		Evidence: Truncate(strings.Join(snippets, EvidenceSeparator), a.cfg.MaxEvidenceLen),
	}
	return result
}

func (a *Analyzer) parse(ctx context.Context, data []byte) (result harvest.ParseResult, err error) {
	if a.parser == nil {
		return harvest.ParseResult{}, fmt.Errorf("%w: no parser configured", harvest.ErrParse)
	}
	defer func() {
		if r := recover(); r != nil {
			result = harvest.ParseResult{}
			err = fmt.Errorf("%w: parser panic: %v", harvest.ErrParse, r)
		}
	}()
	result, err = a.parser.Parse(ctx, data)
	if err != nil {
		return harvest.ParseResult{}, fmt.Errorf("%w: %w", harvest.ErrParse, err)
	}
	return result, nil
}

func emptyAnalysis() harvest.Analysis {
	return harvest.Analysis{
		Links:        []string{},
		Addresses:    []string{},
		MatchedTerms: []string{},
		Snippets:     []string{},
	}
}
