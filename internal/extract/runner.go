package extract

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// stderrLogCap bounds how much of a failing tool's stderr reaches the log.
const stderrLogCap = 4 << 10

// Runner executes an external tool and hands back its captured output.
// Tests swap it for a fake so pdftotext, pdftoppm and tesseract need not be
// installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func newExecRunner(logger *slog.Logger) execRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return execRunner{logger: logger}
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	attrs := []any{
		"tool", name,
		"argc", len(args),
		"duration_ms", time.Since(started).Milliseconds(),
	}

	switch {
	case ctx.Err() != nil:
		r.logger.Warn("extract.exec.canceled", append(attrs, "error", ctx.Err())...)
	case err != nil:
		r.logger.Error("extract.exec.failed", append(attrs,
			"error", err,
			"stderr", truncate(stderr.String(), stderrLogCap),
		)...)
	default:
		r.logger.Debug("extract.exec.ok", append(attrs, "stdout_bytes", stdout.Len())...)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
