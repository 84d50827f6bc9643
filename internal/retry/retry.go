// Package retry implements bounded retries with exponential backoff,
// used for webhook delivery and other best-effort outbound calls.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

// PermanentError marks an error as not worth retrying (e.g. a 4xx
// response from a webhook endpoint).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do stops immediately instead of retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do invokes fn up to maxAttempts times. Between attempts it sleeps for
// an exponentially growing delay with +-25% jitter, starting at baseDelay.
// It returns early when fn succeeds, fn returns a *PermanentError, or
// ctx is cancelled.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(baseDelay, attempt)):
		}
	}

	return err
}

// backoff returns the sleep duration before retry number attempt+1:
// base * 2^attempt, jittered by +-25%.
func backoff(base time.Duration, attempt int) time.Duration {
	delay := base << attempt
	jitter := delay / 4
	return delay - jitter + time.Duration(randInt64n(int64(2*jitter+1)))
}

// randInt64n returns a uniform random int64 in [0, n), or 0 when n <= 0.
func randInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.LittleEndian.Uint64(b[:]) >> 1
	return int64(v % uint64(n)) //nolint:gosec // v>>1 fits in int64 and v%n < n
}
