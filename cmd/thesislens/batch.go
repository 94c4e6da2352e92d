package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/export"
	"github.com/joseph-ayodele/thesislens/internal/ingest"
	"github.com/joseph-ayodele/thesislens/internal/pipeline"
	svc "github.com/joseph-ayodele/thesislens/internal/server"
)

type ingestFlags struct {
	category   string
	prompt     string
	outDir     string
	workers    int
	skipHidden bool
	inmem      bool
}

func (f *ingestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.category, "category", "", "discipline applied to every thesis")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "prompt version (default from PROMPT_VERSION)")
	cmd.Flags().StringVar(&f.outDir, "out-dir", "", "directory for report PDFs (default beside each input)")
	cmd.Flags().IntVar(&f.workers, "workers", 2, "files analyzed at once")
	cmd.Flags().BoolVar(&f.skipHidden, "skip-hidden", true, "ignore dot files and directories")
	cmd.Flags().BoolVar(&f.inmem, "inmem", false, "record job history in an in-memory SQLite database")
}

// setup wires the processor and a Runner. The returned cleanup closes the
// provider and the database.
func (f *ingestFlags) setup(cmd *cobra.Command, logger *slog.Logger) (*ingest.Runner, *export.Service, func(), error) {
	cfg := common.LoadConfig()
	if f.inmem {
		cfg.Database.DSN = "sqlite::memory:"
	}
	if f.outDir != "" {
		if err := os.MkdirAll(f.outDir, 0o755); err != nil {
			return nil, nil, nil, err
		}
	}

	jobs, db, err := svc.ConnectJobs(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	proc, closeLLM, err := pipeline.FromConfig(cmd.Context(), cfg, jobs, logger)
	if err != nil {
		if db != nil {
			db.Close(logger)
		}
		return nil, nil, nil, err
	}
	cleanup := func() {
		_ = closeLLM()
		if db != nil {
			db.Close(logger)
		}
	}
	var exporter *export.Service
	if db != nil {
		exporter = export.NewService(jobs, logger)
	}
	runner := ingest.NewRunner(proc, f.outDir, logger,
		ingest.WithWorkers(f.workers),
		ingest.WithRequest(f.category, f.prompt),
	)
	return runner, exporter, cleanup, nil
}

func newBatchCmd(logger *slog.Logger) *cobra.Command {
	var (
		flags ingestFlags
		xlsx  string
	)
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Analyze every PDF below a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, exporter, cleanup, err := flags.setup(cmd, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			start := time.Now()
			results, stats, err := runner.ProcessDirectory(cmd.Context(), args[0], flags.skipHidden)
			w := cmd.OutOrStdout()
			for _, r := range results {
				switch {
				case r.Err != "":
					fmt.Fprintf(w, "FAIL %s: %s\n", r.Path, r.Err)
				case r.Deduplicated:
					fmt.Fprintf(w, "SKIP %s (same content as an earlier file)\n", r.Path)
				default:
					fmt.Fprintf(w, "OK   %s -> %s\n", r.Path, r.ReportPath)
				}
			}
			fmt.Fprintf(w, "%d matched, %d succeeded, %d duplicates, %d failed in %s\n",
				stats.Matched, stats.Succeeded, stats.Deduplicated, stats.Failed, time.Since(start).Round(time.Millisecond))
			if err != nil {
				return err
			}

			if exporter != nil {
				if xlsx == "" {
					xlsx = filepath.Join(filepath.Dir(filepath.Clean(args[0])), "analyses.xlsx")
				}
				data, err := exporter.ExportJobsXLSX(cmd.Context(), 0)
				if err != nil {
					return err
				}
				if err := os.WriteFile(xlsx, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", xlsx, err)
				}
				fmt.Fprintf(w, "job history written to %s\n", xlsx)
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d files failed", stats.Failed)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "job history workbook (default analyses.xlsx beside <dir>; needs DB_URL or --inmem)")
	return cmd
}

func newWatchCmd(logger *slog.Logger) *cobra.Command {
	var (
		flags    ingestFlags
		debounce time.Duration
		existing bool
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Analyze PDFs as they are dropped into directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, _, cleanup, err := flags.setup(cmd, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			w := cmd.OutOrStdout()
			err = runner.Watch(cmd.Context(), ingest.WatchConfig{
				Roots:       args,
				InitialScan: existing,
				Debounce:    debounce,
				SkipHidden:  flags.skipHidden,
			}, func(r ingest.FileResult) {
				switch {
				case r.Err != "":
					fmt.Fprintf(w, "FAIL %s: %s\n", r.Path, r.Err)
				case !r.Deduplicated:
					fmt.Fprintf(w, "OK   %s -> %s\n", r.Path, r.ReportPath)
				}
			})
			if cmd.Context().Err() != nil {
				// interrupted; a normal way to stop watching
				return nil
			}
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "wait this long after the last write before analyzing")
	cmd.Flags().BoolVar(&existing, "existing", false, "also analyze PDFs already present")
	return cmd
}
