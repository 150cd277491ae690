package playlist

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a refresh, a cache write or a schedule
// registration failed
type FailureKind int

const (
	// KindUnknown is reported for errors that carry no Failure
	KindUnknown FailureKind = iota
	// KindNetworkError means the remote source could not be reached or answered badly
	KindNetworkError
	// KindTimeout means the remote source did not answer within the fetch timeout
	KindTimeout
	// KindStorageUnavailable means the cache backend rejected or failed a write
	KindStorageUnavailable
	// KindScheduleConflict means a schedule registration clashed with an existing series
	KindScheduleConflict
)

func (k FailureKind) String() string {
	switch k {
	case KindNetworkError:
		return "network_error"
	case KindTimeout:
		return "timeout"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindScheduleConflict:
		return "schedule_conflict"
	default:
		return "unknown"
	}
}

// Sentinels matched through errors.Is against any *Failure of the same kind
var (
	ErrNetwork            = fmt.Errorf("playlist: network error")
	ErrTimeout            = fmt.Errorf("playlist: timeout")
	ErrStorageUnavailable = fmt.Errorf("playlist: storage unavailable")
	ErrScheduleConflict   = fmt.Errorf("playlist: schedule conflict")
)

// Failure is an error tagged with its FailureKind
type Failure struct {
	Kind FailureKind
	Op   string
	Err  error
}

// NewFailure wraps err as a Failure of the given kind
func NewFailure(kind FailureKind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("playlist: %s: %s", f.Op, f.Kind)
	}
	return fmt.Sprintf("playlist: %s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the kind sentinel, so errors.Is(err, ErrTimeout) works on wrapped failures
func (f *Failure) Is(target error) bool {
	return target == f.Kind.sentinel()
}

func (k FailureKind) sentinel() error {
	switch k {
	case KindNetworkError:
		return ErrNetwork
	case KindTimeout:
		return ErrTimeout
	case KindStorageUnavailable:
		return ErrStorageUnavailable
	case KindScheduleConflict:
		return ErrScheduleConflict
	default:
		return nil
	}
}

// KindOf returns the kind of the first Failure in err's chain
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}
