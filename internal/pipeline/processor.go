// Package pipeline runs one analysis end to end: extract, prompt, generate,
// parse, render. Delivery is a separate step so the download never waits on
// email.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/thesislens/constants"
	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/delivery"
	"github.com/joseph-ayodele/thesislens/internal/extract"
	"github.com/joseph-ayodele/thesislens/internal/llm"
	"github.com/joseph-ayodele/thesislens/internal/render"
	"github.com/joseph-ayodele/thesislens/internal/repository"
)

// Deps are the collaborators of a Processor. Extractor, Catalog, Generator,
// Parser and Renderer are required. JSONGenerator serves prompts of the json
// format when set (providers can be asked for a JSON response type); Generator
// serves everything else. Mailer may be nil when email is not configured, and
// Jobs defaults to the no-op audit repository.
type Deps struct {
	Extractor     extract.TextExtractor
	Catalog       *llm.Catalog
	Generator     llm.Generator
	JSONGenerator llm.Generator
	Parser        *llm.Parser
	Renderer      *render.Renderer
	Mailer        *delivery.Mailer
	Jobs          repository.AnalysisJobRepository
	Model         string // recorded on the audit row
}

// Processor coordinates the stages of one analysis.
type Processor struct {
	logger *slog.Logger
	deps   Deps
}

func NewProcessor(logger *slog.Logger, deps Deps) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Jobs == nil {
		deps.Jobs = repository.NopAnalysisJobRepository{}
	}
	return &Processor{logger: logger, deps: deps}
}

// Request is one submission.
type Request struct {
	Document      []byte
	Filename      string
	Category      string // optional
	PromptVersion string // optional; catalog default when empty
}

// Outcome is a finished analysis. Report is ready for download and delivery.
type Outcome struct {
	JobID         uuid.UUID
	Filename      string
	PromptVersion string
	PageCount     int
	EmptyPages    []int
	Result        llm.AnalysisResult
	Report        *render.RenderedReport
	Elapsed       time.Duration
}

// Download packages the report for the download path.
func (o *Outcome) Download() delivery.Download {
	return delivery.AsDownload(o.Report)
}

// EmailEnabled reports whether Deliver can send anything.
func (p *Processor) EmailEnabled() bool { return p.deps.Mailer != nil }

// Catalog exposes the prompt catalog (listing endpoints).
func (p *Processor) Catalog() *llm.Catalog { return p.deps.Catalog }

// Analyze runs extract -> prompt -> generate -> parse -> render. If ctx is
// cancelled while the model call is in flight the answer is discarded: nothing
// is rendered and ctx.Err() is returned.
func (p *Processor) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	if len(req.Document) == 0 {
		return nil, common.NewInvalidInputError("a PDF file is required")
	}
	version := req.PromptVersion
	if version == "" {
		version = p.deps.Catalog.DefaultVersion()
	}

	job, err := p.deps.Jobs.Start(ctx, repository.StartParams{
		Filename:      req.Filename,
		Category:      req.Category,
		PromptVersion: version,
		Model:         p.deps.Model,
	})
	if err != nil {
		// The audit trail is optional; the analysis still runs.
		p.logger.Warn("pipeline.audit.start_failed", "error", err)
		job, _ = repository.NopAnalysisJobRepository{}.Start(ctx, repository.StartParams{})
	}
	jobID := job.ID
	ctx = common.WithJobID(ctx, jobID.String())
	log := p.logger.With("job_id", jobID.String(), "req_id", common.RequestIDFromContext(ctx))
	log.Info("pipeline.analyze.start",
		"filename", req.Filename,
		"bytes", len(req.Document),
		"category", req.Category,
		"prompt_version", version,
	)

	text, err := p.extractStage(ctx, log, req.Document)
	if err != nil {
		return nil, p.fail(ctx, log, jobID, "extract", err)
	}
	p.setStatus(ctx, log, jobID, constants.JobStatusExtracted)

	result, err := p.generateStage(ctx, log, version, req.Category, text.Text)
	if err != nil {
		return nil, p.fail(ctx, log, jobID, "generate", err)
	}
	p.setStatus(ctx, log, jobID, constants.JobStatusGenerated)

	report, err := p.deps.Renderer.RenderResult(result)
	if err != nil {
		return nil, p.fail(ctx, log, jobID, "render", err)
	}

	out := &Outcome{
		JobID:         jobID,
		Filename:      req.Filename,
		PromptVersion: version,
		PageCount:     text.PageCount,
		EmptyPages:    text.EmptyPages(),
		Result:        result,
		Report:        report,
		Elapsed:       time.Since(start),
	}
	if err := p.deps.Jobs.FinishSuccess(context.WithoutCancel(ctx), jobID, repository.JobResult{
		PageCount:        out.PageCount,
		ResultKind:       string(result.Kind),
		PlagiarismScore:  result.PlagiarismScore,
		ClarityScore:     result.ClarityScore,
		ReadabilityScore: result.ReadabilityScore,
		TodoList:         result.TodoList,
		Warnings:         len(result.Warnings),
	}); err != nil {
		log.Warn("pipeline.audit.finish_failed", "error", err)
	}

	log.Info("pipeline.analyze.ok",
		"pages", out.PageCount,
		"result_kind", result.Kind,
		"warnings", len(result.Warnings),
		"report_pages", report.PageCount(),
		"replaced_chars", report.Replaced(),
		"elapsed_ms", out.Elapsed.Milliseconds(),
	)
	return out, nil
}

// Deliver emails the report to every recipient and records the counts on the
// job. It returns one outcome per recipient, in order.
func (p *Processor) Deliver(ctx context.Context, out *Outcome, recipients []string) []delivery.Outcome {
	if len(recipients) == 0 || out == nil {
		return nil
	}
	log := p.logger.With("job_id", out.JobID.String(), "req_id", common.RequestIDFromContext(ctx))

	var outcomes []delivery.Outcome
	if p.deps.Mailer == nil {
		outcomes = make([]delivery.Outcome, len(recipients))
		for i, r := range recipients {
			outcomes[i] = delivery.Outcome{Recipient: r, ErrorDetail: "email delivery is not configured"}
		}
	} else {
		outcomes = p.deps.Mailer.Send(ctx, recipients, out.Report.Bytes())
	}

	sent := 0
	for _, o := range outcomes {
		if o.Success {
			sent++
		}
	}
	if err := p.deps.Jobs.RecordDelivery(context.WithoutCancel(ctx), out.JobID, sent, len(outcomes)-sent); err != nil {
		log.Warn("pipeline.audit.delivery_failed", "error", err)
	}
	log.Info("pipeline.deliver.done", "recipients", len(recipients), "sent", sent)
	return outcomes
}

func (p *Processor) setStatus(ctx context.Context, log *slog.Logger, jobID uuid.UUID, status constants.JobStatus) {
	if err := p.deps.Jobs.SetStatus(context.WithoutCancel(ctx), jobID, status); err != nil {
		log.Warn("pipeline.audit.status_failed", "status", status, "error", err)
	}
}

// fail records the terminal state and passes err through unchanged.
func (p *Processor) fail(ctx context.Context, log *slog.Logger, jobID uuid.UUID, stage string, err error) error {
	status := constants.JobStatusFailed
	msg := common.UserMessage(err)
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		status = constants.JobStatusCanceled
		msg = "request cancelled; result discarded"
		log.Warn("pipeline.analyze.canceled", "stage", stage)
	} else {
		log.Error("pipeline.analyze.failed", "stage", stage, "error", err)
	}
	if ferr := p.deps.Jobs.FinishFailure(context.WithoutCancel(ctx), jobID, status, msg); ferr != nil {
		log.Warn("pipeline.audit.finish_failed", "error", ferr)
	}
	return err
}
