package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// scripted returns the queued errors in order, then "ok".
type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return "ok", nil
}

func noSleep(sleeps *[]time.Duration) RetryOption {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	})
}

func TestRetrying_RetriesTransientFailures(t *testing.T) {
	var sleeps []time.Duration
	gen := &scripted{errs: []error{
		common.NewModelUnavailableError("503", nil),
		common.NewModelTimeoutError("slow", nil),
	}}
	r := NewRetrying(gen, WithMaxAttempts(3), WithBackoff(time.Second, 10*time.Second), noSleep(&sleeps))

	out, err := r.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestRetrying_FatalErrorsAreNotRetried(t *testing.T) {
	for _, fatal := range []error{
		common.NewModelAuthError("401", nil),
		common.NewModelQuotaError("429", nil),
		common.NewModelRejectedError("400", nil),
		errors.New("unclassified"),
	} {
		var sleeps []time.Duration
		gen := &scripted{errs: []error{fatal}}
		r := NewRetrying(gen, noSleep(&sleeps))

		_, err := r.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.Same(t, fatal, err)
		assert.Equal(t, 1, gen.calls)
		assert.Empty(t, sleeps)
	}
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	var sleeps []time.Duration
	gen := &scripted{errs: []error{
		common.NewModelUnavailableError("a", nil),
		common.NewModelUnavailableError("b", nil),
		common.NewModelUnavailableError("c", nil),
		common.NewModelUnavailableError("d", nil),
	}}
	r := NewRetrying(gen, WithMaxAttempts(3), noSleep(&sleeps))

	_, err := r.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrModelUnavailable))
	assert.Equal(t, 3, gen.calls)
	assert.Len(t, sleeps, 2)
}

func TestRetrying_AttemptTimeoutBecomesModelTimeout(t *testing.T) {
	calls := 0
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	})
	var sleeps []time.Duration
	r := NewRetrying(gen, WithMaxAttempts(2), WithAttemptTimeout(5*time.Millisecond), noSleep(&sleeps))

	_, err := r.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrModelTimeout))
	assert.Equal(t, 2, calls)
}

func TestRetrying_CallerCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		cancel()
		return "", common.NewModelUnavailableError("boom", nil)
	})
	var sleeps []time.Duration
	r := NewRetrying(gen, noSleep(&sleeps))

	_, err := r.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps)
}

func TestRetrying_BackoffIsCapped(t *testing.T) {
	r := NewRetrying(&scripted{}, WithBackoff(time.Second, 5*time.Second))
	assert.Equal(t, time.Second, r.Backoff(1))
	assert.Equal(t, 2*time.Second, r.Backoff(2))
	assert.Equal(t, 4*time.Second, r.Backoff(3))
	assert.Equal(t, 5*time.Second, r.Backoff(4))
	assert.Equal(t, 5*time.Second, r.Backoff(10))
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		retryable bool
	}{
		{http.StatusUnauthorized, common.ErrModelAuth, false},
		{http.StatusForbidden, common.ErrModelAuth, false},
		{http.StatusTooManyRequests, common.ErrModelQuota, false},
		{http.StatusRequestTimeout, common.ErrModelUnavailable, true},
		{http.StatusInternalServerError, common.ErrModelUnavailable, true},
		{http.StatusServiceUnavailable, common.ErrModelUnavailable, true},
		{http.StatusBadRequest, common.ErrModelRejected, false},
	}
	for _, tt := range tests {
		err := ClassifyHTTP(tt.status, []byte("body"), nil)
		assert.True(t, errors.Is(err, tt.sentinel), "status %d", tt.status)
		assert.Equal(t, tt.retryable, common.IsRetryable(err), "status %d", tt.status)
	}

	assert.True(t, errors.Is(ClassifyHTTP(0, nil, context.DeadlineExceeded), common.ErrModelTimeout))
	assert.True(t, errors.Is(ClassifyHTTP(0, nil, errors.New("connection refused")), common.ErrModelUnavailable))
	assert.Equal(t, context.Canceled, ClassifyHTTP(0, nil, context.Canceled))
}
