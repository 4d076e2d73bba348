package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvariantViolation = errors.New("queue invariant violation")
	ErrConcurrency        = errors.New("concurrent modification, retry")
	ErrInvalidOrder       = errors.New("queue order out of range")
	ErrQueueFull          = errors.New("queue is full")
)

// Postgres SQLSTATE codes that indicate a lost race rather than a bad request.
var retryableCodes = map[pq.ErrorCode]struct{}{
	"23503": {}, // foreign_key_violation
	"23505": {}, // unique_violation
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// classify maps driver errors onto the package sentinels. Unknown errors are
// returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if _, ok := retryableCodes[pqErr.Code]; ok {
			return errors.Join(ErrConcurrency, err)
		}
	}
	return err
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrency)
}
