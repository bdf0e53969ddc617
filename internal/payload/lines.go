package payload

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxLength is the record size limit when none is configured.
const DefaultMaxLength = 100

// Lines reads delimiter-separated records from r.
//
// A record ends at the delimiter or after maxLength bytes, whichever comes
// first. The delimiter is never part of the returned payload, so a record
// made of the delimiter alone yields an empty payload; raw line mode
// publishers that send the delimiter along will differ here. End of input
// ends the run; a trailing record without its delimiter is discarded.
type Lines struct {
	mu        sync.Mutex
	r         *bufio.Reader
	delim     []byte
	maxLength int
	eof       bool
}

// NewLines creates a record source. An empty delimiter means "\n".
func NewLines(r io.Reader, delimiter string, maxLength int) *Lines {
	if delimiter == "" {
		delimiter = "\n"
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Lines{
		r:         bufio.NewReader(r),
		delim:     []byte(delimiter),
		maxLength: maxLength,
	}
}

// Next implements Source.
func (l *Lines) Next(int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.eof {
		return nil, ErrDrained
	}

	buf := make([]byte, 0, l.maxLength)
	for len(buf) < l.maxLength {
		c, err := l.r.ReadByte()
		if errors.Is(err, io.EOF) {
			l.eof = true
			return nil, ErrDrained
		}
		if err != nil {
			return nil, fmt.Errorf("payload: reading input: %w", err)
		}
		buf = append(buf, c)
		if bytes.HasSuffix(buf, l.delim) {
			return buf[:len(buf)-len(l.delim)], nil
		}
	}
	return buf, nil
}
