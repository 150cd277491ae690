package remote

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dailyyoga/vidcache/playlist"
)

// ErrInvalidConfig returns an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("remote: invalid config: %s", msg)
}

// ErrUnexpectedStatus returns an error for a non-2xx answer
func ErrUnexpectedStatus(code int) error {
	return fmt.Errorf("remote: unexpected status code: %d", code)
}

// ErrBodyTooLarge returns an error for a response larger than the configured cap
func ErrBodyTooLarge(limit int64) error {
	return fmt.Errorf("remote: response body exceeds %d bytes", limit)
}

// ErrDecode returns an error for a response body that is not a playlist document
func ErrDecode(err error) error {
	return fmt.Errorf("remote: decode playlist: %w", err)
}

// Classify tags err as a Timeout or a NetworkError failure.
// Errors that already carry a kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if playlist.KindOf(err) != playlist.KindUnknown {
		return err
	}
	if isTimeout(err) {
		return playlist.NewFailure(playlist.KindTimeout, op, err)
	}
	return playlist.NewFailure(playlist.KindNetworkError, op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
