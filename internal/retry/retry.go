// Package retry wraps an upstream attempt in exponential-backoff-with-jitter
// retry, classifying failures via a typed error hierarchy rather than string
// matching on error messages (the design note in section 9 prefers this over
// the teacher's doRequestWithRetry substring checks, while preserving the
// same observable retry contract: same inputs retried, same inputs surface).
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// TimeoutError marks a request that failed because a deadline elapsed.
type TimeoutError struct{ Err error }

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %v", e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// ConnectionError marks a low-level transport failure: refused, reset, or a
// connection that could not be established.
type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// HTTPStatusError marks an upstream response whose status code is itself a
// retry signal (429, 502, 503, 504).
type HTTPStatusError struct{ Code int }

func (e *HTTPStatusError) Error() string { return fmt.Sprintf("upstream status %d", e.Code) }

var retryableStatus = map[int]bool{
	429: true,
	502: true,
	503: true,
	504: true,
}

// WrapStatus returns a retryable HTTPStatusError if code is one of the
// retryable upstream statuses, or nil otherwise. Callers should check the
// upstream status code and call this before running the attempt's error
// through Classify.
func WrapStatus(code int) error {
	if retryableStatus[code] {
		return &HTTPStatusError{Code: code}
	}
	return nil
}

// Classify reports whether err should trigger a retry.
func Classify(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return true
	}
	var he *HTTPStatusError
	if errors.As(err, &he) {
		return retryableStatus[he.Code]
	}

	// Fall back to classifying errors surfaced directly from net/http's
	// transport, which doesn't give us a typed hierarchy of its own.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

// Do executes attempt up to maxRetries+1 times total. label is used only for
// logging. The backoff between attempts is min(100ms*2^k, 10s) scaled by a
// uniform random factor in [0.75, 1.25], for attempt index k starting at 0.
// If the remaining context budget is shorter than the next backoff, Do fails
// immediately with the last error rather than sleeping past the deadline.
func Do(ctx context.Context, log *zap.SugaredLogger, label string, maxRetries int, attempt func(ctx context.Context) error) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.25,
		Multiplier:          2,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var lastErr error
	for attemptsTaken := 0; ; attemptsTaken++ {
		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if !Classify(lastErr) {
			return lastErr
		}
		if attemptsTaken >= maxRetries {
			return lastErr
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return lastErr
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			if log != nil {
				log.Warnw("retry budget exhausted before next backoff", "label", label, "attempt", attemptsTaken+1)
			}
			return lastErr
		}
		if log != nil {
			log.Infow("retrying after backoff", "label", label, "attempt", attemptsTaken+1, "delay", delay, "error", lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}
