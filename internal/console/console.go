// Package console writes the client's user-facing output lines.
//
// Logs go to stderr through slog; these lines go to stdout so scripts can
// grep them.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Printer writes console lines. Safe for concurrent use: received messages
// arrive on the MQTT library's goroutine while publishes come from the loop.
type Printer struct {
	mu sync.Mutex
	w  io.Writer

	label *color.Color
	topic *color.Color
	warn  *color.Color
}

// New creates a printer on w. Colour is applied only when colorize is set.
func New(w io.Writer, colorize bool) *Printer {
	p := &Printer{
		w:     w,
		label: color.New(color.FgGreen),
		topic: color.New(color.FgCyan),
		warn:  color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.label, p.topic, p.warn} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Publishing prints "Publishing message: <payload>".
func (p *Printer) Publishing(payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.label.Fprint(p.w, "Publishing message:")
	fmt.Fprintf(p.w, " %s\n", payload)
}

// Granted prints one "on_subscribe: <i>:granted qos = <q>" line per entry.
func (p *Printer) Granted(granted []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range granted {
		c := p.label
		if q > 2 {
			c = p.warn
		}
		c.Fprint(p.w, "on_subscribe:")
		fmt.Fprintf(p.w, " %d:granted qos = %d\n", i, q)
	}
}

// Received prints "<topic> <qos> <payload>".
func (p *Printer) Received(topic string, qos byte, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic.Fprint(p.w, topic)
	fmt.Fprintf(p.w, " %d %s\n", qos, payload)
}
