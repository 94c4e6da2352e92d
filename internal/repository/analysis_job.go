package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/thesislens/constants"
	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/entity"
)

const jobTable = "analysis_job"

var jobColumns = []string{
	"id", "filename", "category", "prompt_version", "model", "status", "page_count",
	"result_kind", "plagiarism_score", "clarity_score", "readability_score", "todo_list",
	"warnings", "emails_sent", "emails_failed", "error_message", "started_at", "finished_at",
}

// StartParams describes a job when it is opened.
type StartParams struct {
	Filename      string
	Category      string
	PromptVersion string
	Model         string
}

// JobResult is what a successful analysis records. Scores are nil when the
// model did not return them.
type JobResult struct {
	PageCount        int
	ResultKind       string
	PlagiarismScore  *float64
	ClarityScore     *int
	ReadabilityScore *int
	TodoList         []string
	Warnings         int
}

type AnalysisJobRepository interface {
	Start(ctx context.Context, p StartParams) (*entity.AnalysisJob, error)
	SetStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus) error
	FinishSuccess(ctx context.Context, jobID uuid.UUID, res JobResult) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, message string) error
	RecordDelivery(ctx context.Context, jobID uuid.UUID, sent, failed int) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.AnalysisJob, error)
	List(ctx context.Context, limit int) ([]entity.AnalysisJob, error)
}

type analysisJobRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewAnalysisJobRepository(db *DB, log *slog.Logger) AnalysisJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &analysisJobRepo{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (r *analysisJobRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

func (r *analysisJobRepo) Start(ctx context.Context, p StartParams) (*entity.AnalysisJob, error) {
	job := &entity.AnalysisJob{
		ID:            uuid.New(),
		Filename:      p.Filename,
		Category:      p.Category,
		PromptVersion: p.PromptVersion,
		Model:         p.Model,
		Status:        string(constants.JobStatusRunning),
		StartedAt:     r.now(),
	}
	query, args := r.builder().Insert(jobTable).
		Columns("id", "filename", "category", "prompt_version", "model", "status", "started_at").
		Values(job.ID.String(), job.Filename, job.Category, job.PromptVersion, job.Model, job.Status, job.StartedAt).
		Query()
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("analysis_job start failed", "filename", p.Filename, "err", err)
		return nil, common.NewDatabaseError("could not record the analysis job", err)
	}
	r.log.Info("analysis_job started", "job_id", job.ID, "filename", p.Filename, "prompt_version", p.PromptVersion)
	return job, nil
}

func (r *analysisJobRepo) SetStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus) error {
	return r.update(ctx, jobID, "status", map[string]any{"status": string(status)})
}

func (r *analysisJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, res JobResult) error {
	todo := res.TodoList
	if todo == nil {
		todo = []string{}
	}
	todoJSON, err := json.Marshal(todo)
	if err != nil {
		return err
	}
	err = r.update(ctx, jobID, "finish(OK)", map[string]any{
		"status":            string(constants.JobStatusRendered),
		"page_count":        res.PageCount,
		"result_kind":       res.ResultKind,
		"plagiarism_score":  nullable(res.PlagiarismScore),
		"clarity_score":     nullable(res.ClarityScore),
		"readability_score": nullable(res.ReadabilityScore),
		"todo_list":         string(todoJSON),
		"warnings":          res.Warnings,
		"finished_at":       r.now(),
	})
	if err == nil {
		r.log.Info("analysis_job finished (RENDERED)", "job_id", jobID, "result_kind", res.ResultKind)
	}
	return err
}

func (r *analysisJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, message string) error {
	if status == "" {
		status = constants.JobStatusFailed
	}
	err := r.update(ctx, jobID, "finish(FAILED)", map[string]any{
		"status":        string(status),
		"error_message": message,
		"finished_at":   r.now(),
	})
	if err == nil {
		r.log.Warn("analysis_job finished", "job_id", jobID, "status", status, "error", message)
	}
	return err
}

func (r *analysisJobRepo) RecordDelivery(ctx context.Context, jobID uuid.UUID, sent, failed int) error {
	return r.update(ctx, jobID, "delivery", map[string]any{
		"status":        string(constants.JobStatusDelivered),
		"emails_sent":   sent,
		"emails_failed": failed,
	})
}

func (r *analysisJobRepo) update(ctx context.Context, jobID uuid.UUID, op string, set map[string]any) error {
	b := r.builder().Update(jobTable)
	// Stable column order keeps statements cacheable.
	for _, col := range jobColumns {
		if v, ok := set[col]; ok {
			b.Set(col, v)
		}
	}
	query, args := b.Where(entsql.EQ("id", jobID.String())).Query()
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("analysis_job update failed", "op", op, "job_id", jobID, "err", err)
		return common.NewDatabaseError("could not update the analysis job", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewNotFoundError("analysis job not found")
	}
	return nil
}

func (r *analysisJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.AnalysisJob, error) {
	query, args := r.builder().Select(jobColumns...).
		From(entsql.Table(jobTable)).
		Where(entsql.EQ("id", jobID.String())).
		Query()
	row := r.db.SQL.QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewNotFoundError("analysis job not found")
	}
	if err != nil {
		return nil, common.NewDatabaseError("could not load the analysis job", err)
	}
	return job, nil
}

// List returns the most recent jobs first. limit <= 0 means 100.
func (r *analysisJobRepo) List(ctx context.Context, limit int) ([]entity.AnalysisJob, error) {
	if limit <= 0 {
		limit = 100
	}
	query, args := r.builder().Select(jobColumns...).
		From(entsql.Table(jobTable)).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit).
		Query()
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.NewDatabaseError("could not list analysis jobs", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, common.NewDatabaseError("could not list analysis jobs", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewDatabaseError("could not list analysis jobs", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (*entity.AnalysisJob, error) {
	var (
		job                  entity.AnalysisJob
		id                   string
		plag                 sql.NullFloat64
		clarity, readability sql.NullInt64
		todoJSON             string
		errMsg               sql.NullString
		finishedAt           sql.NullTime
	)
	err := s.Scan(&id, &job.Filename, &job.Category, &job.PromptVersion, &job.Model, &job.Status,
		&job.PageCount, &job.ResultKind, &plag, &clarity, &readability, &todoJSON,
		&job.Warnings, &job.EmailsSent, &job.EmailsFailed, &errMsg, &job.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if plag.Valid {
		job.PlagiarismScore = &plag.Float64
	}
	if clarity.Valid {
		v := int(clarity.Int64)
		job.ClarityScore = &v
	}
	if readability.Valid {
		v := int(readability.Int64)
		job.ReadabilityScore = &v
	}
	if todoJSON != "" {
		_ = json.Unmarshal([]byte(todoJSON), &job.TodoList)
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// NopAnalysisJobRepository is used when no database is configured. Start hands
// out ids so logs stay correlated; nothing is stored.
type NopAnalysisJobRepository struct{}

func (NopAnalysisJobRepository) Start(_ context.Context, p StartParams) (*entity.AnalysisJob, error) {
	return &entity.AnalysisJob{
		ID:            uuid.New(),
		Filename:      p.Filename,
		Category:      p.Category,
		PromptVersion: p.PromptVersion,
		Model:         p.Model,
		Status:        string(constants.JobStatusRunning),
		StartedAt:     time.Now().UTC(),
	}, nil
}

func (NopAnalysisJobRepository) SetStatus(context.Context, uuid.UUID, constants.JobStatus) error {
	return nil
}

func (NopAnalysisJobRepository) FinishSuccess(context.Context, uuid.UUID, JobResult) error {
	return nil
}

func (NopAnalysisJobRepository) FinishFailure(context.Context, uuid.UUID, constants.JobStatus, string) error {
	return nil
}

func (NopAnalysisJobRepository) RecordDelivery(context.Context, uuid.UUID, int, int) error {
	return nil
}

func (NopAnalysisJobRepository) Get(context.Context, uuid.UUID) (*entity.AnalysisJob, error) {
	return nil, common.NewNotFoundError("job history is not enabled")
}

func (NopAnalysisJobRepository) List(context.Context, int) ([]entity.AnalysisJob, error) {
	return nil, nil
}
