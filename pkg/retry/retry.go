// Package retry provides a bounded retry wrapper for transient network
// failures. The delay before attempt k (k >= 2) is initialDelay + base^(k-1)
// time units.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Config controls a retried operation.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	BackoffBase  float64

	// Unit scales the base^k term. Defaults to one second so that delays
	// line up with InitialDelay expressed in seconds.
	Unit time.Duration

	Logger *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default matches the download/upsert call sites: 3 attempts, 1s initial
// delay, backoff base 2.
func Default() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Second, BackoffBase: 2}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a caller error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Error is the aggregated failure returned once all attempts are exhausted.
type Error struct {
	Attempts int
	Last     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *Error) Unwrap() error { return e.Last }

// Do invokes op up to cfg.MaxAttempts times, sleeping between attempts.
// A Permanent error or a canceled context stops retrying immediately.
func Do(ctx context.Context, name string, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Unit == 0 {
		cfg.Unit = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := cfg.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := cfg.InitialDelay + time.Duration(math.Pow(cfg.BackoffBase, float64(attempt-1))*float64(cfg.Unit))
			logger.Warn("retrying operation",
				"op", name, "attempt", attempt, "delay", delay, "err", last)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
	}

	return &Error{Attempts: cfg.MaxAttempts, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
