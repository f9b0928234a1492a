package retry

import (
	"context"
	"math/rand"
	"time"
)

const (
	DefaultBaseTime time.Duration = 100 * time.Millisecond
)

// Redeclare time functions so they can be overridden in tests.
type Clock struct {
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

// BackoffHandler manages exponential backoff and limits the maximum number of retries.
// The base time period doubles with each retry.
type BackoffHandler struct {
	// maxRetries of 0 disables retry completely.
	maxRetries uint
	baseTime   time.Duration

	retries uint

	Clock Clock
}

func NewBackoff(maxRetries uint, baseTime time.Duration) BackoffHandler {
	return BackoffHandler{
		maxRetries: maxRetries,
		baseTime:   baseTime,
		Clock:      Clock{Now: time.Now, After: time.After},
	}
}

// BackoffTimer returns a channel that sends the current time when the exponential backoff timeout expires.
// Returns nil if the maximum number of retries have been used.
func (b *BackoffHandler) BackoffTimer() <-chan time.Time {
	if b.retries >= b.maxRetries {
		return nil
	}
	b.retries++
	maxTimeToWait := b.GetBaseTime() * (1 << b.retries)
	timeToWait := time.Duration(rand.Int63n(maxTimeToWait.Nanoseconds())) // #nosec G404
	after := b.Clock.After
	if after == nil {
		after = time.After
	}
	return after(timeToWait)
}

// Backoff is used to wait according to exponential backoff. Returns false if the
// maximum number of retries have been used or if the underlying context has been cancelled.
func (b *BackoffHandler) Backoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	c := b.BackoffTimer()
	if c == nil {
		return false
	}
	select {
	case <-c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b BackoffHandler) GetBaseTime() time.Duration {
	if b.baseTime == 0 {
		return DefaultBaseTime
	}
	return b.baseTime
}

// Retries returns the number of retries consumed so far.
func (b *BackoffHandler) Retries() int {
	return int(b.retries) // #nosec G115
}

func (b *BackoffHandler) ReachedMaxRetries() bool {
	return b.retries == b.maxRetries
}

func (b *BackoffHandler) ResetNow() {
	b.retries = 0
}

// Do runs op until it succeeds, returns a permanent error or the retries are used up. op reports
// whether its error is worth another attempt. The last error is returned.
func Do(ctx context.Context, b *BackoffHandler, op func() (retryable bool, err error)) error {
	for {
		retryable, err := op()
		if err == nil || !retryable {
			return err
		}
		if !b.Backoff(ctx) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}
