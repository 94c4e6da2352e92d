package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// FindPDFs walks root and returns the PDFs below it in lexical order. Reports
// written by a Runner are not inputs and are skipped.
func FindPDFs(root string, skipHidden bool) ([]string, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, errors.New("root directory is required")
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != root && skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !IsPDF(path) || IsReport(path) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk: %w", err)
	}
	return paths, stats, nil
}

// ProcessDirectory analyzes every PDF below root. A failing file does not
// stop the others; results keep the order of FindPDFs.
func (r *Runner) ProcessDirectory(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	paths, stats, err := FindPDFs(root, skipHidden)
	if err != nil {
		return nil, stats, err
	}
	r.logger.Info("ingest.dir.start", "root", root, "matched", stats.Matched, "workers", r.workers)

	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, p := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = FileResult{Path: p, Err: gctx.Err().Error()}
				return nil
			}
			results[i] = r.ProcessFile(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		switch {
		case res.Err != "":
			stats.Failed++
		case res.Deduplicated:
			stats.Deduplicated++
		default:
			stats.Succeeded++
		}
	}
	r.logger.Info("ingest.dir.done", "root", root,
		"succeeded", stats.Succeeded, "deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, ctx.Err()
}
