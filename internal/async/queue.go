package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/thesislens/internal/pipeline"
)

// Job is one deferred email delivery of a finished analysis.
type Job struct {
	Outcome     *pipeline.Outcome
	Recipients  []string
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
