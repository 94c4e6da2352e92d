// Package ingest feeds thesis PDFs from the local filesystem into the
// analysis pipeline: one file, a whole directory, or a watched folder.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joseph-ayodele/thesislens/internal/pipeline"
)

// Analyzer is the part of pipeline.Processor the ingestor needs.
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Path         string
	ReportPath   string
	JobID        string
	ResultKind   string
	HashHex      string
	Deduplicated bool
	Err          string
}

type Option func(*Runner)

// WithWorkers bounds how many files are analyzed at once.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRequest sets the category and prompt version used for every file.
func WithRequest(category, promptVersion string) Option {
	return func(r *Runner) {
		r.category = category
		r.promptVersion = promptVersion
	}
}

// Runner analyzes files and writes each report next to OutDir.
type Runner struct {
	analyzer      Analyzer
	outDir        string
	workers       int
	category      string
	promptVersion string
	logger        *slog.Logger

	mu   sync.Mutex
	seen map[string]string // content hash -> report path
}

// NewRunner writes reports into outDir. An empty outDir puts every report
// beside its input.
func NewRunner(a Analyzer, outDir string, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		analyzer: a,
		outDir:   outDir,
		workers:  2,
		logger:   logger,
		seen:     map[string]string{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ProcessFile analyzes one PDF. Files whose bytes were already analyzed by
// this Runner are skipped and reported as deduplicated.
func (r *Runner) ProcessFile(ctx context.Context, path string) FileResult {
	res := FileResult{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	sum := sha256.Sum256(data)
	res.HashHex = hex.EncodeToString(sum[:])

	r.mu.Lock()
	if prev, ok := r.seen[res.HashHex]; ok {
		r.mu.Unlock()
		res.Deduplicated = true
		res.ReportPath = prev
		r.logger.Info("ingest.file.duplicate", "path", path, "hash", res.HashHex[:12])
		return res
	}
	r.seen[res.HashHex] = ""
	r.mu.Unlock()

	out, err := r.analyzer.Analyze(ctx, pipeline.Request{
		Document:      data,
		Filename:      filepath.Base(path),
		Category:      r.category,
		PromptVersion: r.promptVersion,
	})
	if err != nil {
		r.forget(res.HashHex)
		res.Err = err.Error()
		r.logger.Warn("ingest.file.failed", "path", path, "error", err)
		return res
	}
	res.JobID = out.JobID.String()
	res.ResultKind = string(out.Result.Kind)

	res.ReportPath = r.reportPath(path)
	if err := os.WriteFile(res.ReportPath, out.Report.Bytes(), 0o644); err != nil {
		r.forget(res.HashHex)
		res.Err = fmt.Sprintf("write report: %v", err)
		res.ReportPath = ""
		return res
	}
	r.mu.Lock()
	r.seen[res.HashHex] = res.ReportPath
	r.mu.Unlock()

	r.logger.Info("ingest.file.ok", "path", path, "job_id", res.JobID, "report", res.ReportPath, "kind", res.ResultKind)
	return res
}

func (r *Runner) forget(hash string) {
	r.mu.Lock()
	delete(r.seen, hash)
	r.mu.Unlock()
}

func (r *Runner) reportPath(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + "-review.pdf"
	if r.outDir == "" {
		return filepath.Join(filepath.Dir(input), base)
	}
	return filepath.Join(r.outDir, base)
}
