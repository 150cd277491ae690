package refresh

import (
	"fmt"
	"time"
)

var (
	// ErrClosed is returned for refreshes requested after Close
	ErrClosed = fmt.Errorf("refresh: pipeline is closed")

	// ErrNilDependency is returned when a source or writer is missing
	ErrNilDependency = fmt.Errorf("refresh: source and writer are required")
)

// ErrInvalidTimeout returns an error for a non-positive timeout setting
func ErrInvalidTimeout(field string, d time.Duration) error {
	return fmt.Errorf("refresh: invalid config: %s must be positive, got %v", field, d)
}

// ErrDetached is returned to a caller that stopped waiting for an attempt.
// The attempt itself keeps running for the other callers.
func ErrDetached(cause error) error {
	return fmt.Errorf("refresh: caller detached from in-flight attempt: %w", cause)
}
