package store

import (
	"fmt"

	"github.com/dailyyoga/vidcache/playlist"
)

var (
	// ErrStoreClosed is the cause reported by ReplaceAll after Close
	ErrStoreClosed = fmt.Errorf("store: store is closed")

	// ErrNotInitialized is returned by Shared before InitShared succeeded
	ErrNotInitialized = fmt.Errorf("store: shared store is not initialized")
)

// ErrInvalidConfig returns an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("store: invalid config: %s", msg)
}

// ErrLoad wraps a failure to read the persisted snapshot
func ErrLoad(err error) error {
	return playlist.NewFailure(playlist.KindStorageUnavailable, "store load", err)
}

// ErrReplace wraps a failure to commit a replacement
func ErrReplace(err error) error {
	return playlist.NewFailure(playlist.KindStorageUnavailable, "store replace", err)
}

// ErrDecode returns an error for a persisted item that cannot be decoded
func ErrDecode(index int, err error) error {
	return fmt.Errorf("store: decode item %d: %w", index, err)
}
