package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/thesislens/constants"
	"github.com/joseph-ayodele/thesislens/internal/common"
)

const methodPdftotext = "pdftotext"

// PdftotextExtractor shells out to poppler's pdftotext. It handles some PDFs the
// pure-Go text layer decodes poorly, at the cost of an external binary.
type PdftotextExtractor struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

func NewPdftotextExtractor(bin string, logger *slog.Logger) *PdftotextExtractor {
	if bin == "" {
		bin = "pdftotext"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PdftotextExtractor{bin: bin, runner: newExecRunner(logger), logger: logger}
}

// WithRunner swaps the command runner (tests).
func (e *PdftotextExtractor) WithRunner(r Runner) *PdftotextExtractor {
	e.runner = r
	return e
}

func (e *PdftotextExtractor) Extract(ctx context.Context, data []byte) (Result, error) {
	start := time.Now()
	if !bytes.HasPrefix(data, []byte(constants.PDFMagic)) {
		return Result{}, common.NewExtractionError("the uploaded file is not a PDF", nil)
	}

	tmp, err := os.CreateTemp("", "tl-in-*.pdf")
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func(path string) {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("extract.pdftotext.cleanup_failed", "path", path, "error", err)
		}
	}(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Result{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("close temp file: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.bin, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{Warnings: []string{string(errb)}}, common.NewExtractionError("the uploaded PDF could not be read; please re-upload it", err)
	}

	pages := SplitFormFeeds(string(out))
	res := Result{
		Text:      strings.Join(pages, ""),
		Pages:     pages,
		PageCount: len(pages),
		Method:    methodPdftotext,
		Duration:  time.Since(start),
	}
	e.logger.Info("extract.pdftotext.ok",
		"pages", res.PageCount,
		"empty_pages", len(res.EmptyPages()),
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// SplitFormFeeds splits pdftotext output into pages. pdftotext terminates every
// page (the last one included) with a form feed.
func SplitFormFeeds(out string) []string {
	if out == "" {
		return []string{}
	}
	parts := strings.Split(out, "\f")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			parts[i] = ""
		}
	}
	return parts
}
