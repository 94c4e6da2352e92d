package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/joseph-ayodele/thesislens/constants"
	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/delivery"
	"github.com/joseph-ayodele/thesislens/internal/extract"
	"github.com/joseph-ayodele/thesislens/internal/llm"
	"github.com/joseph-ayodele/thesislens/internal/render"
	"github.com/joseph-ayodele/thesislens/internal/repository"
)

type fakeExtractor struct {
	res extract.Result
	err error
}

func (f fakeExtractor) Extract(context.Context, []byte) (extract.Result, error) {
	return f.res, f.err
}

func textResult(pages ...string) extract.Result {
	return extract.Result{Text: strings.Join(pages, ""), Pages: pages, PageCount: len(pages), Method: "fake"}
}

// recordingGenerator answers with a canned response and keeps the prompts.
type recordingGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
	hook    func()
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.hook != nil {
		g.hook()
	}
	return g.answer, g.err
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// auditRepo records status transitions.
type auditRepo struct {
	repository.NopAnalysisJobRepository
	mu       sync.Mutex
	statuses []constants.JobStatus
	result   *repository.JobResult
	failMsg  string
	sent     int
	failed   int
}

func (r *auditRepo) SetStatus(_ context.Context, _ uuid.UUID, s constants.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	return nil
}

func (r *auditRepo) FinishSuccess(_ context.Context, _ uuid.UUID, res repository.JobResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, constants.JobStatusRendered)
	r.result = &res
	return nil
}

func (r *auditRepo) FinishFailure(_ context.Context, _ uuid.UUID, s constants.JobStatus, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	r.failMsg = msg
	return nil
}

func (r *auditRepo) RecordDelivery(_ context.Context, _ uuid.UUID, sent, failed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, constants.JobStatusDelivered)
	r.sent, r.failed = sent, failed
	return nil
}

type okSender struct{}

func (okSender) Send(context.Context, *mail.Msg) error { return nil }

func newProcessor(t *testing.T, ex extract.TextExtractor, gen llm.Generator, jobs repository.AnalysisJobRepository) *Processor {
	t.Helper()
	cat, err := llm.DefaultCatalog()
	require.NoError(t, err)
	parser, err := llm.NewParser(llm.PolicyDropField, nil)
	require.NoError(t, err)
	return NewProcessor(nil, Deps{
		Extractor: ex,
		Catalog:   cat,
		Generator: gen,
		Parser:    parser,
		Renderer:  render.NewRenderer(),
		Mailer:    delivery.NewMailer(okSender{}, "reports@example.com"),
		Jobs:      jobs,
		Model:     "fake-model",
	})
}

var pdfBytes = []byte("%PDF-1.4 stub")

func TestAnalyze_Structured(t *testing.T) {
	gen := &recordingGenerator{answer: "```json\n" +
		`{"report":"# Review\n\nSolid work.","plagirism_score":5.0,"clarity_score":8,"readability_score":7,"todo_list":["fix abstract"]}` +
		"\n```"}
	jobs := &auditRepo{}
	p := newProcessor(t, fakeExtractor{res: textResult("Chapter one. ", "", "Chapter three.")}, gen, jobs)

	out, err := p.Analyze(context.Background(), Request{
		Document:      pdfBytes,
		Filename:      "thesis.pdf",
		Category:      "gaming",
		PromptVersion: "json-v1",
	})
	require.NoError(t, err)

	require.Equal(t, 1, gen.calls())
	assert.Contains(t, gen.prompts[0], "Chapter one. Chapter three.")
	assert.Contains(t, gen.prompts[0], "Gaming")

	assert.Equal(t, llm.StateParsedStructured, out.Result.Kind)
	require.NotNil(t, out.Result.PlagiarismScore)
	assert.Equal(t, 5.0, *out.Result.PlagiarismScore)
	assert.Equal(t, 3, out.PageCount)
	assert.Equal(t, []int{2}, out.EmptyPages)
	assert.Equal(t, "json-v1", out.PromptVersion)
	require.NotNil(t, out.Report)

	d := out.Download()
	assert.Equal(t, "Thesis_Report.pdf", d.Filename)
	assert.True(t, strings.HasPrefix(string(d.Bytes), "%PDF-"))

	assert.Equal(t, []constants.JobStatus{
		constants.JobStatusExtracted, constants.JobStatusGenerated, constants.JobStatusRendered,
	}, jobs.statuses)
	require.NotNil(t, jobs.result)
	assert.Equal(t, []string{"fix abstract"}, jobs.result.TodoList)
}

func TestAnalyze_NarrativeIsUnstructured(t *testing.T) {
	gen := &recordingGenerator{answer: "# Report\n\nThe thesis is clear."}
	p := newProcessor(t, fakeExtractor{res: textResult("text")}, gen, nil)

	out, err := p.Analyze(context.Background(), Request{Document: pdfBytes})
	require.NoError(t, err)
	assert.Equal(t, llm.StateParsedUnstructured, out.Result.Kind)
	assert.Equal(t, "# Report\n\nThe thesis is clear.", out.Result.Report)
	assert.Equal(t, "narrative-v1", out.PromptVersion)

	var headings []string
	for _, b := range out.Report.Blocks() {
		if b.Kind == render.BlockHeading {
			headings = append(headings, b.Plain())
		}
	}
	assert.Equal(t, []string{"Report"}, headings)
}

func TestAnalyze_JSONPromptsUseJSONGenerator(t *testing.T) {
	plain := &recordingGenerator{answer: "plain"}
	jsonGen := &recordingGenerator{answer: `{"report":"ok"}`}
	p := newProcessor(t, fakeExtractor{res: textResult("text")}, plain, nil)
	p.deps.JSONGenerator = jsonGen

	_, err := p.Analyze(context.Background(), Request{Document: pdfBytes, PromptVersion: "json-v1"})
	require.NoError(t, err)
	assert.Equal(t, 0, plain.calls())
	assert.Equal(t, 1, jsonGen.calls())

	_, err = p.Analyze(context.Background(), Request{Document: pdfBytes, PromptVersion: "narrative-v1"})
	require.NoError(t, err)
	assert.Equal(t, 1, plain.calls())
}

func TestAnalyze_CancelledDuringGenerationDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &recordingGenerator{answer: `{"report":"late"}`, hook: cancel}
	jobs := &auditRepo{}
	p := newProcessor(t, fakeExtractor{res: textResult("text")}, gen, jobs)

	out, err := p.Analyze(ctx, Request{Document: pdfBytes})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
	assert.Equal(t, constants.JobStatusCanceled, jobs.statuses[len(jobs.statuses)-1])
	assert.NotContains(t, jobs.statuses, constants.JobStatusGenerated)
}

func TestAnalyze_Failures(t *testing.T) {
	fatal := common.NewModelAuthError("the model API key was rejected", nil)
	cases := []struct {
		name     string
		ex       extract.TextExtractor
		gen      *recordingGenerator
		req      Request
		sentinel error
		genCalls int
	}{
		{
			name:     "no document",
			ex:       fakeExtractor{res: textResult("x")},
			gen:      &recordingGenerator{},
			req:      Request{},
			sentinel: common.ErrInvalidInput,
		},
		{
			name:     "unreadable pdf",
			ex:       fakeExtractor{err: common.NewExtractionError("bad", nil)},
			gen:      &recordingGenerator{},
			req:      Request{Document: pdfBytes},
			sentinel: common.ErrExtraction,
		},
		{
			name:     "scanned pdf without text",
			ex:       fakeExtractor{res: textResult("", " \n")},
			gen:      &recordingGenerator{},
			req:      Request{Document: pdfBytes},
			sentinel: common.ErrExtraction,
		},
		{
			name:     "unknown category",
			ex:       fakeExtractor{res: textResult("x")},
			gen:      &recordingGenerator{},
			req:      Request{Document: pdfBytes, Category: "astrology"},
			sentinel: common.ErrInvalidInput,
		},
		{
			name:     "unknown prompt",
			ex:       fakeExtractor{res: textResult("x")},
			gen:      &recordingGenerator{},
			req:      Request{Document: pdfBytes, PromptVersion: "v99"},
			sentinel: common.ErrInvalidInput,
		},
		{
			name:     "fatal model error",
			ex:       fakeExtractor{res: textResult("x")},
			gen:      &recordingGenerator{err: fatal},
			req:      Request{Document: pdfBytes},
			sentinel: common.ErrModelAuth,
			genCalls: 1,
		},
		{
			name:     "empty model response",
			ex:       fakeExtractor{res: textResult("x")},
			gen:      &recordingGenerator{answer: "  \n "},
			req:      Request{Document: pdfBytes},
			sentinel: common.ErrEmptyResponse,
			genCalls: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jobs := &auditRepo{}
			p := newProcessor(t, tc.ex, tc.gen, jobs)
			out, err := p.Analyze(context.Background(), tc.req)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, tc.sentinel), "got %v", err)
			assert.Equal(t, tc.genCalls, tc.gen.calls())
			if len(jobs.statuses) > 0 {
				assert.Equal(t, constants.JobStatusFailed, jobs.statuses[len(jobs.statuses)-1])
				assert.NotEmpty(t, jobs.failMsg)
			}
		})
	}
}

type pickySender struct{}

func (pickySender) Send(_ context.Context, msg *mail.Msg) error {
	rcpts, _ := msg.GetRecipients()
	for _, r := range rcpts {
		if strings.HasPrefix(r, "bounce") {
			return errors.New("550 no such user")
		}
	}
	return nil
}

func TestDeliver_PerRecipientOutcomes(t *testing.T) {
	jobs := &auditRepo{}
	p := newProcessor(t, fakeExtractor{res: textResult("x")}, &recordingGenerator{answer: "fine"}, jobs)
	p.deps.Mailer = delivery.NewMailer(pickySender{}, "reports@example.com")

	out, err := p.Analyze(context.Background(), Request{Document: pdfBytes})
	require.NoError(t, err)

	res := p.Deliver(context.Background(), out, []string{"a@x.com", "bad-address", "bounce@x.com"})
	require.Len(t, res, 3)
	assert.True(t, res[0].Success)
	assert.False(t, res[1].Success)
	assert.NotEmpty(t, res[1].ErrorDetail)
	assert.False(t, res[2].Success)
	assert.Contains(t, res[2].ErrorDetail, "550")
	assert.Equal(t, 1, jobs.sent)
	assert.Equal(t, 2, jobs.failed)

	// the download is unaffected
	assert.True(t, strings.HasPrefix(string(out.Download().Bytes), "%PDF-"))
}

func TestDeliver_WithoutMailer(t *testing.T) {
	p := newProcessor(t, fakeExtractor{res: textResult("x")}, &recordingGenerator{answer: "fine"}, nil)
	p.deps.Mailer = nil
	assert.False(t, p.EmailEnabled())

	out, err := p.Analyze(context.Background(), Request{Document: pdfBytes})
	require.NoError(t, err)

	res := p.Deliver(context.Background(), out, []string{"a@x.com"})
	require.Len(t, res, 1)
	assert.False(t, res[0].Success)
	assert.Equal(t, "email delivery is not configured", res[0].ErrorDetail)

	assert.Nil(t, p.Deliver(context.Background(), out, nil))
}

func TestAnalyze_RealPDF(t *testing.T) {
	doc, err := render.NewRenderer(render.WithCompression(false), render.WithPageNumbers(false)).
		Render("Methodology chapter\n\nResults chapter")
	require.NoError(t, err)

	gen := &recordingGenerator{answer: "# Review\n\nok"}
	p := newProcessor(t, extract.NewPDFExtractor(nil), gen, nil)

	out, err := p.Analyze(context.Background(), Request{Document: doc.Bytes(), Filename: "in.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.PageCount)
	require.Equal(t, 1, gen.calls())
	assert.Contains(t, gen.prompts[0], "Methodology")
	assert.Contains(t, gen.prompts[0], "Results")
}
