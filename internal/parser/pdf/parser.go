// Package pdf extracts text and link annotations from PDF documents with pdfcpu.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/harvest"
)

// Parser implements harvest.Parser.
type Parser struct {
	logger *zap.Logger
}

// New creates a Parser.
func New(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger.Named("pdf")}
}

// Parse returns the text of every page joined by newlines and the URI targets
// of all link annotations.
func (p *Parser) Parse(ctx context.Context, data []byte) (harvest.ParseResult, error) {
	if len(data) == 0 {
		return harvest.ParseResult{}, fmt.Errorf("%w: empty document", harvest.ErrParse)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return harvest.ParseResult{}, fmt.Errorf("%w: pdfcpu read: %w", harvest.ErrParse, err)
	}

	var (
		text  strings.Builder
		links []string
	)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return harvest.ParseResult{}, fmt.Errorf("parse canceled: %w", err)
		}
		if pageText := pageText(pdfCtx, pageNr); pageText != "" {
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(pageText)
		}
		pageLinks, err := pageLinks(pdfCtx, pageNr)
		if err != nil {
			p.logger.Debug("skipping page annotations", zap.Int("page", pageNr), zap.Error(err))
			continue
		}
		links = append(links, pageLinks...)
	}
	return harvest.ParseResult{Text: text.String(), Links: links}, nil
}

func pageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromStream(data)
}

func pageLinks(pdfCtx *model.Context, pageNr int) ([]string, error) {
	pageDict, _, _, err := pdfCtx.PageDict(pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("page dict: %w", err)
	}
	if pageDict == nil {
		return nil, nil
	}
	obj, found := pageDict.Find("Annots")
	if !found || obj == nil {
		return nil, nil
	}
	annots, err := pdfCtx.DereferenceArray(obj)
	if err != nil {
		return nil, fmt.Errorf("annotations: %w", err)
	}

	var links []string
	for _, entry := range annots {
		annot, err := pdfCtx.DereferenceDict(entry)
		if err != nil || annot == nil {
			continue
		}
		if subtype := annot.NameEntry("Subtype"); subtype == nil || *subtype != "Link" {
			continue
		}
		actionObj, found := annot.Find("A")
		if !found {
			continue
		}
		action, err := pdfCtx.DereferenceDict(actionObj)
		if err != nil || action == nil {
			continue
		}
		if s := action.NameEntry("S"); s == nil || *s != "URI" {
			continue
		}
		uriObj, found := action.Find("URI")
		if !found {
			continue
		}
		if uri := literalString(pdfCtx, uriObj); uri != "" {
			links = append(links, uri)
		}
	}
	return links, nil
}

func literalString(pdfCtx *model.Context, obj types.Object) string {
	o, err := pdfCtx.Dereference(obj)
	if err != nil {
		return ""
	}
	var s string
	switch v := o.(type) {
	case types.StringLiteral:
		s, err = types.StringLiteralToString(v)
	case types.HexLiteral:
		s, err = types.HexLiteralToString(v)
	default:
		return ""
	}
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
