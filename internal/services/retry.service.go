package services

import (
	"context"
	"fmt"
	"math"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/config"
)

// RetryExhaustedError is returned once every attempt of a transient failure has
// been used up.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type RetryExecutor struct {
	maxRetries int
	baseDelay  time.Duration
	multiplier float64
	sleep      sleepFunc
	log        logger.Logger
}

func NewRetryExecutor(maxRetries int, baseDelay time.Duration, multiplier float64) *RetryExecutor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &RetryExecutor{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		multiplier: multiplier,
		sleep:      sleepContext,
		log:        logger.New("retryExecutor"),
	}
}

func NewRetryExecutorFromConfig(cfg config.Config) *RetryExecutor {
	return NewRetryExecutor(cfg.MaxRetries, cfg.RetryDelay(), cfg.BackoffMultiplier)
}

func (r *RetryExecutor) MaxAttempts() int {
	return r.maxRetries + 1
}

// Delay returns the pause taken after the given zero-based failed attempt.
func (r *RetryExecutor) Delay(attempt int) time.Duration {
	return time.Duration(float64(r.baseDelay) * math.Pow(r.multiplier, float64(attempt)))
}

// Run calls op until it succeeds, fails with a non-transient error, or has been
// attempted MaxRetries+1 times.
func (r *RetryExecutor) Run(ctx context.Context, name string, op func(ctx context.Context) error) error {
	log := r.log.TraceFromContext(ctx).Function("Run")

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info("Operation succeeded after retry", "operation", name, "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err

		kind := Classify(err)
		if kind != KindTransient {
			log.Debug("Operation failed without retry", "operation", name, "kind", kind.String(), "error", err)
			return err
		}

		if attempt == r.maxRetries {
			break
		}

		delay := r.Delay(attempt)
		log.Warn("Transient failure, retrying",
			"operation", name,
			"attempt", attempt+1,
			"maxAttempts", r.MaxAttempts(),
			"delay", delay,
			"error", err)

		if err := r.sleep(ctx, delay); err != nil {
			return log.Err("retry cancelled during backoff", err, "operation", name)
		}
	}

	return log.Err("operation exhausted retries", &RetryExhaustedError{
		Operation: name,
		Attempts:  r.MaxAttempts(),
		Last:      lastErr,
	}, "operation", name)
}

// Do is Run for operations that produce a value.
func Do[T any](ctx context.Context, r *RetryExecutor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Run(ctx, name, func(ctx context.Context) error {
		value, err := op(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}
