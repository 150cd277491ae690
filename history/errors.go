package history

import "fmt"

var (
	// ErrRecorderClosed is logged for attempts recorded after Close
	ErrRecorderClosed = fmt.Errorf("history: recorder is closed")

	// ErrBufferFull is logged when an attempt cannot be queued
	ErrBufferFull = fmt.Errorf("history: buffer is full")
)

// ErrInvalidConfig returns an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("history: invalid config: %s", msg)
}

// ErrConnection returns a ClickHouse connection error
func ErrConnection(err error) error {
	return fmt.Errorf("history: connection failed: %w", err)
}

// ErrInsert returns a batch insert error
func ErrInsert(table string, err error) error {
	return fmt.Errorf("history: insert to table %s failed: %w", table, err)
}
