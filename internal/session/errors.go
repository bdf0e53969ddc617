package session

import (
	"errors"
	"fmt"
	"time"
)

// Domain-specific errors for session operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidState is returned when an operation is called in a state
	// that does not allow it (for example Connect while already connected).
	ErrInvalidState = errors.New("session: invalid state for operation")

	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("session: not connected")

	// ErrConnectFailed is returned when a connection attempt fails.
	ErrConnectFailed = errors.New("session: connect failed")

	// ErrDisconnectFailed is returned when the transport reports an error
	// while releasing the connection. The session is still Disconnected.
	ErrDisconnectFailed = errors.New("session: disconnect failed")

	// ErrSubscribeFailed is returned when the subscribe request cannot be issued.
	ErrSubscribeFailed = errors.New("session: subscribe request failed")

	// ErrHandshakeTimeout is returned when no subscribe acknowledgment arrives in time.
	ErrHandshakeTimeout = errors.New("session: subscribe handshake timed out")

	// ErrAllSubscriptionsRejected is returned when the broker acknowledged the
	// subscription but granted none of its entries.
	ErrAllSubscriptionsRejected = errors.New("session: all subscriptions rejected")

	// ErrPublishFailed is matched by every *PublishFailure.
	ErrPublishFailed = errors.New("session: publish failed")

	// ErrInterrupted is returned when a wait ends because a stop was requested.
	ErrInterrupted = errors.New("session: interrupted by stop request")

	// ErrInvalidTopic is returned when an empty topic or filter is provided.
	ErrInvalidTopic = errors.New("session: topic cannot be empty")

	// ErrInvalidQoS is returned when a QoS level outside 0..2 is provided.
	ErrInvalidQoS = errors.New("session: invalid QoS level (must be 0, 1, or 2)")
)

// ConnectError describes a failed connection attempt.
// Code is the broker's CONNACK return code, or 0 when the failure happened
// before the broker answered (network error, timeout, cancellation).
type ConnectError struct {
	Code byte
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("session: connect failed (return code %d: %s): %v", e.Code, connackText(e.Code), e.Err)
	}
	return fmt.Sprintf("session: connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is makes every ConnectError match ErrConnectFailed.
func (e *ConnectError) Is(target error) bool { return target == ErrConnectFailed }

// connackText returns the MQTT 3.1.1 meaning of a CONNACK return code.
func connackText(code byte) string {
	switch code {
	case 1:
		return "unacceptable protocol version"
	case 2:
		return "identifier rejected"
	case 3:
		return "server unavailable"
	case 4:
		return "bad user name or password"
	case 5:
		return "not authorized"
	default:
		return "unknown"
	}
}

// newConnectError translates a transport error. The transport exposes the
// broker code through a ReturnCode method when it has one.
func newConnectError(err error) *ConnectError {
	ce := &ConnectError{Err: err}
	var coded interface{ ReturnCode() byte }
	if errors.As(err, &coded) {
		ce.Code = coded.ReturnCode()
	}
	return ce
}

// HandshakeTimeoutError is returned when the subscribe acknowledgment for
// Filter did not arrive within Timeout.
type HandshakeTimeoutError struct {
	Filter  string
	Timeout time.Duration
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("session: no subscribe acknowledgment for %q within %v", e.Filter, e.Timeout)
}

// Is makes every HandshakeTimeoutError match ErrHandshakeTimeout.
func (e *HandshakeTimeoutError) Is(target error) bool { return target == ErrHandshakeTimeout }

// PublishReason classifies a failed publish. Callers branch on the reason,
// never on raw transport errors.
type PublishReason string

const (
	ReasonNotConnected PublishReason = "not_connected"
	ReasonTimeout      PublishReason = "timeout"
	ReasonInterrupted  PublishReason = "interrupted"
	ReasonRejected     PublishReason = "rejected"
	ReasonInvalid      PublishReason = "invalid"
)

// PublishFailure describes one failed publish attempt.
type PublishFailure struct {
	Reason PublishReason
	Err    error
}

func (e *PublishFailure) Error() string {
	return fmt.Sprintf("session: publish failed (%s): %v", e.Reason, e.Err)
}

func (e *PublishFailure) Unwrap() error { return e.Err }

// Is makes every PublishFailure match ErrPublishFailed.
func (e *PublishFailure) Is(target error) bool { return target == ErrPublishFailed }
