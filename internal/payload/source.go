// Package payload produces the message bodies sent by the publish loop.
//
// Exactly one Source is active per run: a simulated sensor (the default), a
// fixed message with a counter, a file re-read on every send, or
// delimiter-separated records from a reader (standard input).
package payload

import (
	"errors"
	"fmt"
)

var (
	// ErrDrained is returned when a source has nothing more to send.
	ErrDrained = errors.New("payload: source drained")

	// ErrTooLarge is returned when a file exceeds MaxFileSize.
	ErrTooLarge = errors.New("payload: file too large")

	// ErrUnknownFormat is returned for an unsupported sensor encoding.
	ErrUnknownFormat = errors.New("payload: unknown format")
)

// Source yields the payload for send seq (counting from 1).
type Source interface {
	Next(seq int) ([]byte, error)
}

// Format is the encoding of a sensor reading.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a configured format. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatMsgpack:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}
