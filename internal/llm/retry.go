package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// Retrying wraps a Generator with per-attempt timeouts and bounded exponential
// backoff. Only ErrModelTimeout and ErrModelUnavailable are retried; auth,
// quota and rejected-request failures surface immediately.
type Retrying struct {
	next        Generator
	maxAttempts int
	timeout     time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// RetryOption configures Retrying.
type RetryOption func(*Retrying)

// WithMaxAttempts sets the total number of calls, first one included. Default: 3.
func WithMaxAttempts(n int) RetryOption {
	return func(r *Retrying) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithAttemptTimeout bounds every single call. Zero leaves only the caller's deadline.
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(r *Retrying) { r.timeout = d }
}

// WithBackoff sets the first delay and the cap. Default: 1s, 10s.
func WithBackoff(base, max time.Duration) RetryOption {
	return func(r *Retrying) {
		r.baseBackoff = base
		r.maxBackoff = max
	}
}

// WithSleep replaces the wait between attempts (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *Retrying) { r.sleep = fn }
}

// WithRetryLogger sets a custom logger.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(r *Retrying) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetrying wraps next.
func NewRetrying(next Generator, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:        next,
		maxAttempts: 3,
		baseBackoff: time.Second,
		maxBackoff:  10 * time.Second,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Generate calls the wrapped Generator until it succeeds, fails permanently, the
// attempts run out or ctx is done.
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			d := r.Backoff(attempt - 1)
			r.logger.Warn("llm.generate.retry",
				"req_id", common.RequestIDFromContext(ctx),
				"attempt", attempt,
				"backoff_ms", d.Milliseconds(),
				"error", lastErr,
			)
			if err := r.sleep(ctx, d); err != nil {
				return "", err
			}
		}

		out, err := r.once(ctx, prompt)
		if err == nil {
			return out, nil
		}
		// caller gave up: discard, don't retry
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if !common.IsRetryable(err) {
			return "", err
		}
	}
	r.logger.Error("llm.generate.exhausted",
		"req_id", common.RequestIDFromContext(ctx),
		"attempts", r.maxAttempts,
		"error", lastErr,
	)
	return "", lastErr
}

func (r *Retrying) once(ctx context.Context, prompt string) (string, error) {
	actx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err := r.next.Generate(actx, prompt)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, common.ErrModelTimeout) {
		return "", common.NewModelTimeoutError("the model did not answer in time", err)
	}
	return out, err
}

// Backoff is the delay before retry number k (k >= 1): base*2^(k-1), capped.
func (r *Retrying) Backoff(k int) time.Duration {
	d := r.baseBackoff
	for i := 1; i < k; i++ {
		d *= 2
		if r.maxBackoff > 0 && d >= r.maxBackoff {
			return r.maxBackoff
		}
	}
	if r.maxBackoff > 0 && d > r.maxBackoff {
		return r.maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
