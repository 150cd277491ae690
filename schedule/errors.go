package schedule

import (
	"fmt"
	"time"

	"github.com/dailyyoga/vidcache/playlist"
)

var (
	// ErrClosed is returned by Schedule after Close
	ErrClosed = fmt.Errorf("schedule: scheduler is closed")

	// ErrNilRefresher is returned by New without a refresher
	ErrNilRefresher = fmt.Errorf("schedule: refresher is required")
)

// ErrInvalidConfig returns an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("schedule: invalid config: %s", msg)
}

// ErrInvalidName returns an error for an empty series name
func ErrInvalidName(name string) error {
	return fmt.Errorf("schedule: invalid series name %q", name)
}

// ErrInvalidPeriod returns an error for a non-positive period
func ErrInvalidPeriod(d time.Duration) error {
	return fmt.Errorf("schedule: invalid period %v, must be positive", d)
}

// ErrInvalidPolicy returns an error for an unknown conflict policy
func ErrInvalidPolicy(s string) error {
	return fmt.Errorf("schedule: invalid policy %q, must be keep or replace", s)
}

// ErrConflict reports a Keep registration that differs from the running series
func ErrConflict(name string) error {
	return playlist.NewFailure(playlist.KindScheduleConflict, "schedule "+name,
		fmt.Errorf("series %q is already registered with a different period or constraints", name))
}

// ErrState wraps a state store failure
func ErrState(op string, err error) error {
	return fmt.Errorf("schedule: state %s: %w", op, err)
}
