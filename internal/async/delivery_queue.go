package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/delivery"
	"github.com/joseph-ayodele/thesislens/internal/pipeline"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("delivery queue is shutting down")

// Deliverer sends a finished report to recipients.
type Deliverer interface {
	Deliver(ctx context.Context, out *pipeline.Outcome, recipients []string) []delivery.Outcome
}

// DeliveryQueue sends reports in the background with a fixed pool of workers.
// Outcomes are logged and recorded on the job row by the Deliverer.
type DeliveryQueue struct {
	deliverer Deliverer
	logger    *slog.Logger
	workers   int
	timeout   time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// done is closed first on Shutdown so blocked senders give up before
	// ch is closed under mu.
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*DeliveryQueue)

func WithWorkers(n int) Option {
	return func(q *DeliveryQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *DeliveryQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithDeliveryTimeout bounds one job (all of its recipients). Default: 5m.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(q *DeliveryQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewDeliveryQueue(d Deliverer, logger *slog.Logger, opts ...Option) *DeliveryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &DeliveryQueue{
		deliverer: d,
		logger:    logger,
		workers:   2,
		timeout:   5 * time.Minute,
		ch:        make(chan Job, 64),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *DeliveryQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("delivery worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("delivery worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *DeliveryQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(common.WithRequestID(context.Background(), job.RequestID), q.timeout)
	defer cancel()

	outcomes := q.deliverer.Deliver(ctx, job.Outcome, job.Recipients)
	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}
	attrs := []any{
		"worker_id", workerID,
		"job_id", job.Outcome.JobID.String(),
		"req_id", job.RequestID,
		"recipients", len(job.Recipients),
		"failed", failed,
		"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
	}
	if failed > 0 {
		q.logger.Warn("delivery.queue.partial", attrs...)
		return
	}
	q.logger.Info("delivery.queue.done", attrs...)
}

// Enqueue hands a job to the workers. When the buffer is full it blocks until
// a slot frees up, ctx ends or Shutdown starts.
func (q *DeliveryQueue) Enqueue(ctx context.Context, job Job) error {
	if job.Outcome == nil || len(job.Recipients) == 0 {
		return common.NewInvalidInputError("nothing to deliver")
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.RequestID == "" {
		job.RequestID = common.RequestIDFromContext(ctx)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.Outcome.JobID.String())
		return ErrClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued report for delivery", "job_id", job.Outcome.JobID.String(), "recipients", len(job.Recipients))
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "job_id", job.Outcome.JobID.String())
	select {
	case q.ch <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to
// end.
func (q *DeliveryQueue) Shutdown(ctx context.Context) {
	q.stopOnce.Do(func() { close(q.done) })

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("delivery queue drained, shutdown complete")
	}
}
