package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/extract"
	"github.com/joseph-ayodele/thesislens/internal/llm"
)

// extractStage pulls the text layer. A PDF without any extractable text (a
// scan, for instance) cannot be analysed.
func (p *Processor) extractStage(ctx context.Context, log *slog.Logger, doc []byte) (extract.Result, error) {
	res, err := p.deps.Extractor.Extract(ctx, doc)
	if err != nil {
		return extract.Result{}, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return extract.Result{}, common.NewExtractionError("the PDF contains no extractable text (is it a scan?)", nil)
	}
	log.Info("pipeline.extract.ok",
		"method", res.Method,
		"pages", res.PageCount,
		"empty_pages", len(res.EmptyPages()),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// generateStage builds the prompt, calls the model and parses its answer. The
// answer is dropped when ctx ended while the call was in flight.
func (p *Processor) generateStage(ctx context.Context, log *slog.Logger, version, category, text string) (llm.AnalysisResult, error) {
	prompt, err := p.deps.Catalog.Build(version, llm.PromptRequest{Text: text, Category: category})
	if err != nil {
		return llm.AnalysisResult{}, err
	}

	gen := p.deps.Generator
	if prompt.Format == llm.FormatJSON && p.deps.JSONGenerator != nil {
		gen = p.deps.JSONGenerator
	}

	start := time.Now()
	raw, err := gen.Generate(ctx, prompt.Text)
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("pipeline.generate.discarded", "elapsed_ms", time.Since(start).Milliseconds())
		return llm.AnalysisResult{}, ctxErr
	}
	if err != nil {
		return llm.AnalysisResult{}, err
	}
	log.Info("pipeline.generate.ok",
		"prompt_version", prompt.Version,
		"format", prompt.Format,
		"prompt_chars", len(prompt.Text),
		"response_chars", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return p.deps.Parser.Parse(raw)
}
