package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/thesislens/internal/entity"
	"github.com/joseph-ayodele/thesislens/internal/repository"
)

type listRepo struct {
	repository.NopAnalysisJobRepository
	jobs []entity.AnalysisJob
	err  error
}

func (r listRepo) List(context.Context, int) ([]entity.AnalysisJob, error) {
	return r.jobs, r.err
}

func TestExportJobsXLSX(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	p, c := 4.5, 8
	msg := "model timed out"
	repo := listRepo{jobs: []entity.AnalysisJob{
		{
			Filename: "thesis.pdf", Category: "Gaming", PromptVersion: "json-v1", Model: "gemini",
			Status: "DELIVERED", PageCount: 12, ResultKind: "PARSED_STRUCTURED",
			PlagiarismScore: &p, ClarityScore: &c, TodoList: []string{"tighten intro", "add figures"},
			EmailsSent: 2, StartedAt: started, FinishedAt: &finished,
		},
		{
			Filename: "broken.pdf", PromptVersion: "narrative-v1", Model: "gemini",
			Status: "FAILED", ErrorMessage: &msg, StartedAt: started.Add(-time.Hour),
		},
	}}

	data, err := NewService(repo, nil).ExportJobsXLSX(context.Background(), 0)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{sheetJobs, sheetTodos}, f.GetSheetList())

	rows, err := f.GetRows(sheetJobs)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Started", rows[0][0])
	assert.Equal(t, "2026-03-01 10:00:00", rows[1][0])
	assert.Equal(t, "thesis.pdf", rows[1][1])
	assert.Equal(t, "4.5", rows[1][8])
	assert.Equal(t, "8", rows[1][9])
	assert.Equal(t, "", rows[1][10])
	assert.Equal(t, "2", rows[1][11])
	assert.Equal(t, "1.5", rows[1][14])
	assert.Equal(t, "model timed out", rows[2][15])

	todos, err := f.GetRows(sheetTodos)
	require.NoError(t, err)
	require.Len(t, todos, 3)
	assert.Equal(t, []string{"2026-03-01 10:00:00", "thesis.pdf", "1", "tighten intro"}, todos[1])
	assert.Equal(t, "add figures", todos[2][3])
}

func TestExportJobsXLSX_RepositoryError(t *testing.T) {
	_, err := NewService(listRepo{err: errors.New("boom")}, nil).ExportJobsXLSX(context.Background(), 0)
	assert.ErrorContains(t, err, "boom")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
