package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// TextExtractor is stage 1: PDF bytes -> text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (Result, error)
}

// Result is the extracted document. Pages holds one entry per PDF page in page
// order; a page without extractable text is "" and never omitted.
type Result struct {
	Text      string // concatenation of Pages
	Pages     []string
	PageCount int
	Method    string // "pdf-text" | "pdftotext", with "+ocr" when pages were OCRed
	Duration  time.Duration
	Warnings  []string
}

// EmptyPages returns the 1-based numbers of pages that yielded no text.
func (r Result) EmptyPages() []int {
	var out []int
	for i, p := range r.Pages {
		if p == "" {
			out = append(out, i+1)
		}
	}
	return out
}

// New picks the extraction backend named in the config, wrapped in the OCR
// fallback when that is enabled.
func New(cfg common.ExtractConfig, logger *slog.Logger) TextExtractor {
	var base TextExtractor = NewPDFExtractor(logger)
	if cfg.Backend == "pdftotext" {
		base = NewPdftotextExtractor(cfg.Pdftotext, logger)
	}
	if !cfg.OCR {
		return base
	}
	return NewOCRFallback(base, OCRConfig{
		Pdftoppm:    cfg.Pdftoppm,
		Tesseract:   cfg.Tesseract,
		Lang:        cfg.OCRLang,
		TessdataDir: cfg.TessdataDir,
		DPI:         cfg.OCRDPI,
		MaxPages:    cfg.OCRMaxPages,
	}, logger)
}
