package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/thesislens/constants"
	"github.com/joseph-ayodele/thesislens/internal/async"
	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/delivery"
	"github.com/joseph-ayodele/thesislens/internal/export"
	"github.com/joseph-ayodele/thesislens/internal/llm"
	"github.com/joseph-ayodele/thesislens/internal/pipeline"
	"github.com/joseph-ayodele/thesislens/internal/repository"
)

// statusClientClosedRequest is answered when the caller went away mid-request.
const statusClientClosedRequest = 499

// API is the HTTP surface.
type API struct {
	proc      *pipeline.Processor
	sessions  *delivery.SessionStore
	queue     async.Queue
	jobs      repository.AnalysisJobRepository
	exporter  *export.Service
	maxUpload int64
	timeout   time.Duration
	logger    *slog.Logger
}

type APIOption func(*API)

// WithDeliveryQueue enables async=true on analysis requests.
func WithDeliveryQueue(q async.Queue) APIOption {
	return func(a *API) { a.queue = q }
}

// WithJobHistory enables the job listing and XLSX export endpoints.
func WithJobHistory(jobs repository.AnalysisJobRepository, exporter *export.Service) APIOption {
	return func(a *API) {
		a.jobs = jobs
		a.exporter = exporter
	}
}

// WithMaxUploadMB bounds the request body. Default: 25.
func WithMaxUploadMB(mb int) APIOption {
	return func(a *API) {
		if mb > 0 {
			a.maxUpload = int64(mb) << 20
		}
	}
}

// WithRequestTimeout bounds one analysis request. Zero means no bound beyond
// the caller's.
func WithRequestTimeout(d time.Duration) APIOption {
	return func(a *API) { a.timeout = d }
}

func NewAPI(proc *pipeline.Processor, sessions *delivery.SessionStore, logger *slog.Logger, opts ...APIOption) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if sessions == nil {
		sessions = delivery.NewSessionStore()
	}
	a := &API{
		proc:      proc,
		sessions:  sessions,
		maxUpload: 25 << 20,
		logger:    logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Routes builds the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.withRequestID)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/prompts", a.listPrompts)
		r.Get("/categories", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"categories": constants.AsStringSlice()})
		})

		r.Post("/analyses", a.analyze)
		r.Post("/analyses/report", a.analyzeReport)

		r.Post("/sessions", a.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", a.deleteSession)
			r.Get("/recipients", a.listRecipients)
			r.Post("/recipients", a.addRecipient)
			r.Delete("/recipients", a.clearRecipients)
		})

		r.Get("/jobs", a.listJobs)
		r.Get("/jobs/export.xlsx", a.exportJobs)
	})
	return r
}

func (a *API) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), id)))
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("http.request",
			"req_id", common.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// --- analyses ---

type reportJSON struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Pages    int    `json:"pages"`
	Replaced int    `json:"replaced_chars"`
	Data     []byte `json:"data"` // base64 in JSON
}

type analysisResponse struct {
	JobID          string             `json:"job_id"`
	Filename       string             `json:"filename"`
	PromptVersion  string             `json:"prompt_version"`
	PageCount      int                `json:"page_count"`
	EmptyPages     []int              `json:"empty_pages,omitempty"`
	ElapsedMS      int64              `json:"elapsed_ms"`
	Result         llm.AnalysisResult `json:"result"`
	Report         reportJSON         `json:"report"`
	Deliveries     []delivery.Outcome `json:"deliveries,omitempty"`
	DeliveryQueued bool               `json:"delivery_queued,omitempty"`
}

type analysisForm struct {
	req        pipeline.Request
	recipients []string
	// rejected holds a failed outcome per malformed "to" address; they do
	// not block the analysis.
	rejected []delivery.Outcome
	async    bool
}

// readAnalysisForm parses the multipart upload: file, category,
// prompt_version, session_id, repeated to, async.
func (a *API) readAnalysisForm(w http.ResponseWriter, r *http.Request) (analysisForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return analysisForm{}, common.NewInvalidInputError(fmt.Sprintf("upload exceeds %d MB", a.maxUpload>>20))
		}
		return analysisForm{}, common.NewInvalidInputError("expected a multipart form with a file field")
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return analysisForm{}, common.NewInvalidInputError("a PDF file is required in the file field")
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		return analysisForm{}, common.NewInvalidInputError("the upload could not be read")
	}

	form := analysisForm{
		req: pipeline.Request{
			Document:      data,
			Filename:      hdr.Filename,
			Category:      strings.TrimSpace(r.FormValue("category")),
			PromptVersion: strings.TrimSpace(r.FormValue("prompt_version")),
		},
	}
	if v := r.FormValue("async"); v != "" {
		if form.async, err = strconv.ParseBool(v); err != nil {
			return analysisForm{}, common.NewInvalidInputError("async must be a boolean")
		}
	}

	var list delivery.RecipientList
	if sid := strings.TrimSpace(r.FormValue("session_id")); sid != "" {
		sess, ok := a.sessions.Get(sid)
		if !ok {
			return analysisForm{}, common.NewNotFoundError("unknown session")
		}
		for _, addr := range sess.All() {
			_, _ = list.Add(addr)
		}
	}
	if form.rejected, err = addRecipients(&list, r.MultipartForm.Value["to"]); err != nil {
		return analysisForm{}, err
	}
	form.recipients = list.All()
	return form, nil
}

// addRecipients adds addrs to list. A malformed address becomes a failed
// outcome for that recipient; only overflowing the list is an error.
func addRecipients(list *delivery.RecipientList, addrs []string) ([]delivery.Outcome, error) {
	var rejected []delivery.Outcome
	for _, addr := range addrs {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		if _, err := list.Add(addr); err != nil {
			if len(list.All()) >= delivery.MaxRecipients {
				return nil, common.NewInvalidInputError("too many recipients")
			}
			rejected = append(rejected, delivery.Outcome{Recipient: strings.TrimSpace(addr), ErrorDetail: common.UserMessage(err)})
		}
	}
	return rejected, nil
}

func (a *API) analyze(w http.ResponseWriter, r *http.Request) {
	form, err := a.readAnalysisForm(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ctx, cancel := a.requestContext(r.Context())
	defer cancel()

	out, err := a.proc.Analyze(ctx, form.req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := analysisResponse{
		JobID:         out.JobID.String(),
		Filename:      out.Filename,
		PromptVersion: out.PromptVersion,
		PageCount:     out.PageCount,
		EmptyPages:    out.EmptyPages,
		ElapsedMS:     out.Elapsed.Milliseconds(),
		Result:        out.Result,
		Report: reportJSON{
			Filename: constants.ReportFilename,
			MimeType: constants.ReportMimeType,
			Pages:    out.Report.PageCount(),
			Replaced: out.Report.Replaced(),
			Data:     out.Report.Bytes(),
		},
	}

	if len(form.recipients) > 0 {
		if form.async && a.queue != nil {
			err := a.queue.Enqueue(ctx, async.Job{Outcome: out, Recipients: form.recipients})
			if err != nil {
				a.logger.Warn("http.delivery.enqueue_failed", "req_id", common.RequestIDFromContext(ctx), "error", err)
				resp.Deliveries = a.proc.Deliver(ctx, out, form.recipients)
			} else {
				resp.DeliveryQueued = true
			}
		} else {
			resp.Deliveries = a.proc.Deliver(ctx, out, form.recipients)
		}
	}
	if len(form.rejected) > 0 {
		a.logger.Warn("http.delivery.rejected", "req_id", common.RequestIDFromContext(ctx), "recipients", len(form.rejected))
		resp.Deliveries = append(resp.Deliveries, form.rejected...)
	}
	writeJSON(w, http.StatusOK, resp)
}

// analyzeReport answers with the PDF itself.
func (a *API) analyzeReport(w http.ResponseWriter, r *http.Request) {
	form, err := a.readAnalysisForm(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ctx, cancel := a.requestContext(r.Context())
	defer cancel()

	out, err := a.proc.Analyze(ctx, form.req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	dl := out.Download()
	w.Header().Set("Content-Type", dl.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Bytes)))
	w.Header().Set("X-Job-ID", out.JobID.String())
	w.Header().Set("X-Result-Kind", string(out.Result.Kind))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Bytes)
}

func (a *API) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}

func (a *API) listPrompts(w http.ResponseWriter, _ *http.Request) {
	cat := a.proc.Catalog()
	type promptJSON struct {
		Version     string `json:"version"`
		Format      string `json:"format"`
		Description string `json:"description,omitempty"`
		Default     bool   `json:"default"`
	}
	var out []promptJSON
	for _, p := range cat.Versions() {
		out = append(out, promptJSON{
			Version:     p.Version,
			Format:      string(p.Format),
			Description: p.Description,
			Default:     p.Version == cat.DefaultVersion(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": out})
}

// --- sessions ---

func (a *API) createSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": a.sessions.Create()})
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	a.sessions.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*delivery.RecipientList, bool) {
	list, ok := a.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, r, common.NewNotFoundError("unknown session"))
	}
	return list, ok
}

func (a *API) listRecipients(w http.ResponseWriter, r *http.Request) {
	list, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipients": list.All()})
}

func (a *API) addRecipient(w http.ResponseWriter, r *http.Request) {
	list, ok := a.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		a.writeError(w, r, common.NewInvalidInputError("expected a JSON body like {\"email\": \"a@b.c\"}"))
		return
	}
	added, err := list.Add(body.Email)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"added": added, "recipients": list.All()})
}

func (a *API) clearRecipients(w http.ResponseWriter, r *http.Request) {
	list, ok := a.session(w, r)
	if !ok {
		return
	}
	list.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// --- job history ---

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	if a.jobs == nil {
		a.writeError(w, r, common.NewNotFoundError("job history is not enabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := a.jobs.List(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (a *API) exportJobs(w http.ResponseWriter, r *http.Request) {
	if a.exporter == nil {
		a.writeError(w, r, common.NewNotFoundError("job history is not enabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	data, err := a.exporter.ExportJobsXLSX(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", constants.XLSXMimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "analyses.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// --- helpers ---

type errorJSON struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	if errors.Is(err, context.Canceled) {
		status = statusClientClosedRequest
	} else if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	body := errorJSON{
		Error:     common.UserMessage(err),
		RequestID: common.RequestIDFromContext(r.Context()),
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
	}
	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	a.logger.Log(r.Context(), level, "http.request.failed",
		"req_id", body.RequestID,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
