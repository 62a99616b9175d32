package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	maxJitter          = time.Second
)

// Retrier runs an operation up to MaxAttempts times, strictly one after another.
//
// Every failure is retried until the budget runs out, including statuses such
// as 400 that will never succeed. 429 and 503 add up to a second of jitter on
// top of the exponential delay. Nothing waits after the final attempt.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
	logger *zap.Logger
}

func NewRetrier(maxAttempts int, baseDelay time.Duration, logger *zap.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay < 0 {
		baseDelay = defaultBaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		sleep:       sleepContext,
		jitter:      func() time.Duration { return time.Duration(rand.Int63n(int64(maxJitter))) },
		logger:      logger.With(zap.String("component", "retrier")),
	}
}

// Delay is the wait after the zero-based attempt i failed with err.
func (r *Retrier) Delay(i int, err error) time.Duration {
	d := r.BaseDelay * time.Duration(1<<uint(i))
	if isTransient(err) {
		d += r.jitter()
	}
	return d
}

// Retry is a function rather than a method so the result type can be generic.
func Retry[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for i := 0; i < r.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if i == r.MaxAttempts-1 {
			break
		}

		delay := r.Delay(i, err)
		r.logger.Warn("AI request failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", r.MaxAttempts),
			zap.Duration("sleep", delay),
			zap.Bool("transient", isTransient(err)),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &AIServiceError{Attempts: r.MaxAttempts, Err: lastErr}
}

func isTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ProviderTransient
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
