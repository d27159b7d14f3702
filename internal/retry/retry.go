package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds external calls: base delay doubles per attempt up to the
// attempt cap. The zero value is unusable; use New or fill both fields.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func New(maxAttempts int, baseDelay time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// PermanentError marks a failure that must not be retried, e.g. a malformed
// payload or missing identifier.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Do surfaces it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError marker.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// Delay returns the backoff before the given zero-based attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.BaseDelay
	}
	return p.BaseDelay << uint(attempt)
}

// Do runs op until it succeeds, returns a permanent failure, exhausts the
// attempt cap, or the context ends. Backoff waits respect ctx cancellation.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
