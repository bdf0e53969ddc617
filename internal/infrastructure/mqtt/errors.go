package mqtt

import (
	"errors"
	"fmt"
	"time"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe request cannot be issued.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or malformed topic is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrTLSConfig is returned when certificates cannot be loaded.
	ErrTLSConfig = errors.New("mqtt: invalid TLS configuration")
)

// ConnackError is a connection refused by the broker with a CONNACK code.
type ConnackError struct {
	Code byte
	Err  error
}

func (e *ConnackError) Error() string {
	return fmt.Sprintf("mqtt: broker refused connection (code %d): %v", e.Code, e.Err)
}

func (e *ConnackError) Unwrap() error { return e.Err }

// ReturnCode returns the broker's CONNACK return code.
func (e *ConnackError) ReturnCode() byte { return e.Code }

// Is makes every ConnackError match ErrConnectionFailed.
func (e *ConnackError) Is(target error) bool { return target == ErrConnectionFailed }

// TimeoutError reports an operation that did not complete in time.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mqtt: %s timed out after %v", e.Op, e.After)
}

// Timeout reports true; callers classify errors through this method.
func (e *TimeoutError) Timeout() bool { return true }

// Is makes every TimeoutError match ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
