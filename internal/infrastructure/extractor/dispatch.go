// Package extractor routes each document to the extractor that understands
// its format, keyed by MIME type with a filename-extension fallback.
package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/mkravets/docveil/internal/core/domain"
	"github.com/mkravets/docveil/internal/core/ports"
)

type Dispatcher struct {
	byMime   map[string]ports.TextExtractor
	byExt    map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

// NewDispatcher builds a dispatcher over format-specific extractors. The
// fallback handles everything unrecognized and must not be nil.
func NewDispatcher(fallback, pdfExtractor, xlsxExtractor ports.TextExtractor) *Dispatcher {
	d := &Dispatcher{
		byMime:   make(map[string]ports.TextExtractor),
		byExt:    make(map[string]ports.TextExtractor),
		fallback: fallback,
	}
	if pdfExtractor != nil {
		d.byMime["application/pdf"] = pdfExtractor
		d.byExt[".pdf"] = pdfExtractor
	}
	if xlsxExtractor != nil {
		d.byMime["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"] = xlsxExtractor
		d.byMime["application/vnd.ms-excel"] = xlsxExtractor
		d.byExt[".xlsx"] = xlsxExtractor
		d.byExt[".xls"] = xlsxExtractor
	}
	return d
}

func (d *Dispatcher) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	return d.pick(doc).Extract(ctx, doc)
}

func (d *Dispatcher) pick(doc *domain.Document) ports.TextExtractor {
	mimeType := doc.MimeType
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if ex, ok := d.byMime[mimeType]; ok {
		return ex
	}

	ext := strings.ToLower(filepath.Ext(doc.Filename))
	if ex, ok := d.byExt[ext]; ok {
		return ex
	}
	return d.fallback
}
