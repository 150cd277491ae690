package notify

import "fmt"

// ErrProducerClosed is returned by Produce after Close
var ErrProducerClosed = fmt.Errorf("notify: producer is closed")

// ErrInvalidConfig returns a Kafka configuration error
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("notify: invalid config: %s", msg)
}

// ErrConnection returns a Kafka connection error
func ErrConnection(err error) error {
	return fmt.Errorf("notify: connection failed: %w", err)
}

// ErrEncode returns an error for a snapshot that cannot be encoded
func ErrEncode(err error) error {
	return fmt.Errorf("notify: encode event: %w", err)
}

// ErrProduce returns an error for a message the producer rejected
func ErrProduce(topic string, err error) error {
	return fmt.Errorf("notify: produce to topic %s failed: %w", topic, err)
}
