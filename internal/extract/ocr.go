package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const methodOCRSuffix = "+ocr"

// OCRConfig points at the poppler and tesseract binaries used to recover
// scanned pages.
type OCRConfig struct {
	Pdftoppm    string // default "pdftoppm"
	Tesseract   string // default "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	DPI         int // default 300
	MaxPages    int // 0 = every empty page
}

// OCRFallback runs a base extractor and then rasterizes and OCRs the pages
// that came back empty. Pages the OCR cannot recover stay "".
type OCRFallback struct {
	base   TextExtractor
	cfg    OCRConfig
	runner Runner
	logger *slog.Logger
}

func NewOCRFallback(base TextExtractor, cfg OCRConfig, logger *slog.Logger) *OCRFallback {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRFallback{base: base, cfg: cfg, runner: newExecRunner(logger), logger: logger}
}

// WithRunner swaps the command runner (tests).
func (o *OCRFallback) WithRunner(r Runner) *OCRFallback {
	o.runner = r
	return o
}

func (o *OCRFallback) Extract(ctx context.Context, data []byte) (Result, error) {
	res, err := o.base.Extract(ctx, data)
	if err != nil {
		return res, err
	}
	empty := res.EmptyPages()
	if len(empty) == 0 {
		return res, nil
	}
	if o.cfg.MaxPages > 0 && len(empty) > o.cfg.MaxPages {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d empty pages; OCR limited to the first %d", len(empty), o.cfg.MaxPages))
		empty = empty[:o.cfg.MaxPages]
	}

	start := time.Now()
	dir, err := os.MkdirTemp("", "tl-ocr-*")
	if err != nil {
		return res, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			o.logger.Warn("extract.ocr.cleanup_failed", "path", dir, "error", err)
		}
	}()
	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return res, fmt.Errorf("write temp file: %w", err)
	}

	recovered := 0
	for _, n := range empty {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		txt, err := o.ocrPage(ctx, in, dir, n)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: ocr failed: %v", n, err))
			continue
		}
		if txt == "" {
			continue
		}
		res.Pages[n-1] = txt + "\n"
		recovered++
	}
	if recovered > 0 {
		res.Text = strings.Join(res.Pages, "")
		res.Method += methodOCRSuffix
	}
	res.Duration += time.Since(start)
	o.logger.Info("extract.ocr.done",
		"empty_pages", len(empty),
		"recovered", recovered,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// ocrPage renders one page to PNG and reads it back with tesseract.
func (o *OCRFallback) ocrPage(ctx context.Context, in, dir string, page int) (string, error) {
	prefix := filepath.Join(dir, "p"+strconv.Itoa(page))
	p := strconv.Itoa(page)
	// pdftoppm -r 300 -f N -l N -png -singlefile <in.pdf> <prefix>
	if _, errb, err := o.runner.Run(ctx, o.cfg.Pdftoppm,
		"-r", strconv.Itoa(o.cfg.DPI), "-f", p, "-l", p, "-png", "-singlefile", in, prefix); err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 200))
	}

	args := []string{prefix + ".png", "stdout", "-l", o.cfg.Lang}
	if o.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", o.cfg.TessdataDir)
	}
	// tesseract <file> stdout -l <lang>
	out, errb, err := o.runner.Run(ctx, o.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 200))
	}
	return NormalizeOCR(string(out)), nil
}

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^[ \t]*[_\-|]{3,}[ \t]*$`)
)

// NormalizeOCR collapses noisy whitespace in tesseract output. Line breaks are
// kept; runs of blank lines collapse to one.
func NormalizeOCR(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = reMultiBlank.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}
