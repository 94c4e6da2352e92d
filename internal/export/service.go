package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/thesislens/internal/entity"
	"github.com/joseph-ayodele/thesislens/internal/repository"
)

const (
	sheetJobs  = "Analyses"
	sheetTodos = "To-do"
)

// Service produces XLSX bytes for the analysis history.
type Service struct {
	jobs   repository.AnalysisJobRepository
	logger *slog.Logger
}

func NewService(jobs repository.AnalysisJobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ExportJobsXLSX returns a workbook with one row per recent job on the first
// sheet and one row per to-do item on the second. limit <= 0 uses the
// repository default.
func (s *Service) ExportJobsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// The default workbook has "Sheet1"; rename it rather than leave it empty.
	if err := f.SetSheetName(f.GetSheetName(0), sheetJobs); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetTodos); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	writeRow(f, sheetJobs, 1, []any{
		"Started", "File", "Category", "Prompt", "Model", "Status", "Pages", "Result",
		"Plagiarism %", "Clarity", "Readability", "To-do items", "Emails sent", "Emails failed",
		"Duration (s)", "Error",
	})
	writeRow(f, sheetTodos, 1, []any{"Started", "File", "#", "Item"})

	todoRow := 2
	for i, j := range jobs {
		writeRow(f, sheetJobs, i+2, []any{
			j.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			j.Filename,
			j.Category,
			j.PromptVersion,
			j.Model,
			j.Status,
			j.PageCount,
			j.ResultKind,
			optional(j.PlagiarismScore),
			optional(j.ClarityScore),
			optional(j.ReadabilityScore),
			len(j.TodoList),
			j.EmailsSent,
			j.EmailsFailed,
			durationSeconds(j),
			truncate(deref(j.ErrorMessage), 140),
		})
		for n, item := range j.TodoList {
			writeRow(f, sheetTodos, todoRow, []any{
				j.StartedAt.UTC().Format("2006-01-02 15:04:05"),
				j.Filename,
				n + 1,
				item,
			})
			todoRow++
		}
	}

	_ = f.SetColWidth(sheetJobs, "A", "A", 20) // started
	_ = f.SetColWidth(sheetJobs, "B", "B", 32) // file
	_ = f.SetColWidth(sheetJobs, "C", "H", 14)
	_ = f.SetColWidth(sheetJobs, "P", "P", 48) // error
	_ = f.SetColWidth(sheetTodos, "A", "A", 20)
	_ = f.SetColWidth(sheetTodos, "B", "B", 32)
	_ = f.SetColWidth(sheetTodos, "D", "D", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(jobs),
		"todo_rows", todoRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func optional[T any](p *T) any {
	if p == nil {
		return ""
	}
	return *p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func durationSeconds(j entity.AnalysisJob) any {
	if j.FinishedAt == nil {
		return ""
	}
	return j.Duration().Round(time.Millisecond).Seconds()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
