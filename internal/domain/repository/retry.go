package repository

import (
	"context"
	stderrors "errors"
	"time"

	"dosewise/pkg/errors"
)

// Store writes get a bounded number of attempts with exponential backoff
// before the failure surfaces to the caller.
const (
	WriteRetryAttempts = 3
	writeRetryBaseWait = 100 * time.Millisecond
)

// IsRetryableWrite reports whether a store-write error is worth another
// attempt. Uniqueness suppression, version conflicts and missing records are
// deterministic outcomes; retrying them only repeats the answer.
func IsRetryableWrite(err error) bool {
	switch {
	case err == nil:
		return false
	case stderrors.Is(err, errors.ErrDuplicateOccurrence):
		return false
	case stderrors.Is(err, ErrVersionConflict):
		return false
	case stderrors.Is(err, ErrCommandNotFound):
		return false
	}
	return true
}

// RetryWrite runs a store write up to WriteRetryAttempts times, doubling the
// wait between attempts. Non-retryable errors and context cancellation end
// the loop immediately; the last error is surfaced once the ceiling is hit.
func RetryWrite(ctx context.Context, fn func() error) error {
	wait := writeRetryBaseWait
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsRetryableWrite(err) {
			return err
		}
		if attempt == WriteRetryAttempts {
			return err
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return err
		}
		wait *= 2
	}
}
