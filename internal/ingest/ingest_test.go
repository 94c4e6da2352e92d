package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/thesislens/internal/llm"
	"github.com/joseph-ayodele/thesislens/internal/pipeline"
	"github.com/joseph-ayodele/thesislens/internal/render"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []pipeline.Request
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if strings.Contains(string(req.Document), "broken") {
		return nil, errors.New("extraction failed")
	}
	rep, err := render.NewRenderer(render.WithCompression(false)).Render("# Review of " + req.Filename)
	if err != nil {
		return nil, err
	}
	return &pipeline.Outcome{
		JobID:    uuid.New(),
		Filename: req.Filename,
		Result:   llm.AnalysisResult{Kind: llm.StateParsedUnstructured, Report: "ok"},
		Report:   rep,
	}, nil
}

func (f *fakeAnalyzer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestFindPDFs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.pdf"), "%PDF-b")
	writeFile(t, filepath.Join(root, "a.PDF"), "%PDF-a")
	writeFile(t, filepath.Join(root, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, "a-review.pdf"), "%PDF-r")
	writeFile(t, filepath.Join(root, ".hidden", "c.pdf"), "%PDF-c")
	writeFile(t, filepath.Join(root, "sub", "d.pdf"), "%PDF-d")

	paths, stats, err := FindPDFs(root, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.PDF"),
		filepath.Join(root, "b.pdf"),
		filepath.Join(root, "sub", "d.pdf"),
	}, paths)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(5), stats.Scanned)

	paths, _, err = FindPDFs(root, false)
	require.NoError(t, err)
	assert.Len(t, paths, 4)

	_, _, err = FindPDFs(" ", true)
	assert.Error(t, err)
}

func TestProcessDirectory(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(root, "one.pdf"), "%PDF-one")
	writeFile(t, filepath.Join(root, "two.pdf"), "%PDF-broken")
	writeFile(t, filepath.Join(root, "copy", "one.pdf"), "%PDF-one")

	a := &fakeAnalyzer{}
	r := NewRunner(a, out, quietLogger(), WithWorkers(1), WithRequest("Engineering", "json-v1"))
	results, stats, err := r.ProcessDirectory(context.Background(), root, true)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// lexical order: copy/one.pdf, one.pdf, two.pdf
	assert.Empty(t, results[0].Err)
	assert.NotEmpty(t, results[0].JobID)
	assert.Equal(t, filepath.Join(out, "one-review.pdf"), results[0].ReportPath)
	assert.True(t, results[1].Deduplicated)
	assert.Equal(t, results[0].HashHex, results[1].HashHex)
	assert.Contains(t, results[2].Err, "extraction failed")

	assert.Equal(t, DirStats{Scanned: 3, Matched: 3, Succeeded: 1, Deduplicated: 1, Failed: 1}, stats)
	assert.Equal(t, 2, a.count())
	assert.Equal(t, "Engineering", a.calls[0].Category)
	assert.Equal(t, "json-v1", a.calls[0].PromptVersion)

	pdf, err := os.ReadFile(filepath.Join(out, "one-review.pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF-"))
}

func TestProcessFile_ReportBesideInput(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "thesis.pdf")
	writeFile(t, in, "%PDF-thesis")

	res := NewRunner(&fakeAnalyzer{}, "", quietLogger()).ProcessFile(context.Background(), in)
	assert.Empty(t, res.Err)
	assert.Equal(t, filepath.Join(root, "thesis-review.pdf"), res.ReportPath)
	assert.Equal(t, string(llm.StateParsedUnstructured), res.ResultKind)

	res = NewRunner(&fakeAnalyzer{}, "", quietLogger()).ProcessFile(context.Background(), filepath.Join(root, "missing.pdf"))
	assert.NotEmpty(t, res.Err)
}

func TestProcessFile_RetriesAfterFailure(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "x.pdf")
	writeFile(t, in, "%PDF-broken")

	a := &fakeAnalyzer{}
	r := NewRunner(a, "", quietLogger())
	assert.NotEmpty(t, r.ProcessFile(context.Background(), in).Err)
	res := r.ProcessFile(context.Background(), in)
	assert.False(t, res.Deduplicated, "failed files are not remembered")
	assert.Equal(t, 2, a.count())
}

func TestWatch_AnalyzesNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "%PDF-existing")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan FileResult, 4)
	r := NewRunner(&fakeAnalyzer{}, "", quietLogger())
	done := make(chan error, 1)
	go func() {
		done <- r.Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 50 * time.Millisecond}, func(res FileResult) {
			got <- res
		})
	}()

	first := <-got
	assert.Equal(t, filepath.Join(root, "existing.pdf"), first.Path)

	writeFile(t, filepath.Join(root, "new.pdf"), "%PDF-new")
	select {
	case res := <-got:
		assert.Equal(t, filepath.Join(root, "new.pdf"), res.Path)
		assert.Empty(t, res.Err)
	case <-ctx.Done():
		t.Fatal("new file was not picked up")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := NewRunner(&fakeAnalyzer{}, "", quietLogger()).StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
