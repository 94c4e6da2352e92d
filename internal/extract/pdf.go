package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/thesislens/constants"
	"github.com/joseph-ayodele/thesislens/internal/common"
)

const methodPDFText = "pdf-text"

var disableConfigDir sync.Once

// PDFExtractor validates the document structure with pdfcpu and pulls per-page
// text with ledongthuc/pdf. Everything happens in memory.
type PDFExtractor struct {
	logger *slog.Logger
}

func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	// pdfcpu would otherwise create a config dir under $HOME on first use.
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFExtractor{logger: logger}
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (Result, error) {
	start := time.Now()
	if !bytes.HasPrefix(data, []byte(constants.PDFMagic)) {
		e.logger.Warn("extract.pdf.bad_magic", "bytes", len(data))
		return Result{}, common.NewExtractionError("the uploaded file is not a PDF", nil)
	}

	pageCount, err := e.pageCount(data)
	if err != nil {
		e.logger.Warn("extract.pdf.invalid", "error", err, "bytes", len(data))
		return Result{}, common.NewExtractionError("the uploaded PDF could not be read; please re-upload it", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.logger.Warn("extract.pdf.open_failed", "error", err)
		return Result{}, common.NewExtractionError("the uploaded PDF could not be read; please re-upload it", err)
	}

	res := Result{
		Pages:     make([]string, pageCount),
		PageCount: pageCount,
		Method:    methodPDFText,
	}
	if n := reader.NumPage(); n != pageCount {
		res.Warnings = append(res.Warnings, fmt.Sprintf("page count mismatch: structure=%d text=%d", pageCount, n))
	}

	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		text, warn := pageText(reader, i)
		res.Pages[i-1] = text
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
	}
	res.Text = strings.Join(res.Pages, "")
	res.Duration = time.Since(start)

	e.logger.Info("extract.pdf.ok",
		"pages", res.PageCount,
		"empty_pages", len(res.EmptyPages()),
		"chars", len(res.Text),
		"warnings", len(res.Warnings),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *PDFExtractor) pageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	if ctx.PageCount < 1 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return ctx.PageCount, nil
}

// pageText returns "" for pages the text layer cannot be decoded from. The
// parser panics on some malformed content streams, so each page is isolated.
func pageText(r *pdf.Reader, pageNr int) (text string, warning string) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			warning = fmt.Sprintf("page %d: text decode panic: %v", pageNr, rec)
		}
	}()
	if pageNr > r.NumPage() {
		return "", fmt.Sprintf("page %d: missing from text layer", pageNr)
	}
	p := r.Page(pageNr)
	if p.V.IsNull() {
		return "", ""
	}
	t, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Sprintf("page %d: %v", pageNr, err)
	}
	return t, ""
}
