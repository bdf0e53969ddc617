package payload

import "fmt"

// Message sends a fixed text followed by the number of prior sends.
type Message struct {
	text string
}

// NewMessage creates a message source.
func NewMessage(text string) *Message {
	return &Message{text: text}
}

// Next implements Source. Send 1 yields "<text> #0".
func (m *Message) Next(seq int) ([]byte, error) {
	return []byte(fmt.Sprintf("%s #%d", m.text, seq-1)), nil
}
