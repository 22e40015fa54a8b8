package store

import (
	"errors"
	"fmt"
)

// ErrConflict is returned by Create when an entity with the same ID
// already exists.
var ErrConflict = errors.New("entity already exists")

// TransientError marks a failure worth retrying: connection drops,
// timeouts, serialization conflicts. Backends wrap such failures so the
// retry policy can distinguish them from permanent errors like
// constraint violations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
