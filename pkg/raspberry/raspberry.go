//go:build linux
// +build linux

package raspberry

import (
	"fmt"
	"time"

	"github.com/warthog618/gpiod"
	"github.com/womat/debug"
	"quickjack/pkg/port"
)

var ErrInvalidParam = fmt.Errorf("invalid parameters")

// Chip represents a single GPIO chip that controls a set of lines.
type Chip struct {
	gpiodChip *gpiod.Chip
}

// Line represents a single requested input line.
type Line struct {
	gpiodLine *gpiod.Line
	// lastEvent is the timestamp of the last accepted edge.
	lastEvent time.Duration
	// debounce is the minimal interval between two edges, shorter edges are glitches.
	debounce time.Duration
	// C receives the edges of the line.
	C chan port.Event
}

// OutputLine represents a single requested output line.
type OutputLine struct {
	gpiodLine *gpiod.Line
}

// Open opens a GPIO character device, e.g. gpiochip0.
func Open(name string) (*Chip, error) {
	c, err := gpiod.NewChip(name)
	if err != nil {
		return nil, err
	}
	return &Chip{gpiodChip: c}, nil
}

// NewInputLine requests control of a single line on a chip.
//   If granted, control is maintained until the Line is closed.
//   Both edges are sent to channel C, edges closer than debounce to the last edge are dropped.
//   There can only be one watcher on the pin at a time.
func (c *Chip) NewInputLine(offset int, terminator string, debounce time.Duration) (*Line, error) {
	var err error

	line := &Line{
		debounce:  debounce,
		lastEvent: -debounce,
		C:         make(chan port.Event, eventBuffer),
	}

	// handler is called by the gpiod event goroutine
	handler := func(evt gpiod.LineEvent) {
		if evt.Timestamp-line.lastEvent < line.debounce {
			debug.TraceLog.Println("bounce signal detected")
			return
		}
		line.lastEvent = evt.Timestamp

		e := port.Event{Timestamp: evt.Timestamp}
		switch evt.Type {
		case gpiod.LineEventRisingEdge:
			e.Type = port.RisingEdge
		case gpiod.LineEventFallingEdge:
			e.Type = port.FallingEdge
		default:
			debug.ErrorLog.Printf("invalid event type: %v", evt.Type)
			return
		}

		select {
		case line.C <- e:
		default:
			debug.ErrorLog.Println("edge buffer full, edge dropped")
		}
	}

	switch terminator {
	case "pullup":
		line.gpiodLine, err = c.gpiodChip.RequestLine(offset, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullUp)
	case "pulldown":
		line.gpiodLine, err = c.gpiodChip.RequestLine(offset, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullDown)
	case "none", "":
		line.gpiodLine, err = c.gpiodChip.RequestLine(offset, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput)
	default:
		return nil, ErrInvalidParam
	}

	if err != nil {
		return nil, err
	}
	return line, nil
}

// NewOutputLine requests a line as output and drives it to level.
func (c *Chip) NewOutputLine(offset int, level port.Level) (*OutputLine, error) {
	l, err := c.gpiodChip.RequestLine(offset, gpiod.AsOutput(value(level)))
	if err != nil {
		return nil, err
	}
	return &OutputLine{gpiodLine: l}, nil
}

// Close releases the Chip.
//
// It does not release any lines which may be requested - they must be closed
// independently.
func (c *Chip) Close() error {
	return c.gpiodChip.Close()
}

// Close releases all resources held by the requested line.
//
// Note that this includes waiting for any running event handler to return.
// As a consequence the Close must not be called from the context of the event
// handler - the Close should be called from a different goroutine.
func (l *Line) Close() error {
	if err := l.gpiodLine.Close(); err != nil {
		return err
	}
	close(l.C)
	return nil
}

// Events returns the edge channel of the line.
func (l *Line) Events() <-chan port.Event {
	return l.C
}

// Set drives the line to level.
func (o *OutputLine) Set(level port.Level) error {
	return o.gpiodLine.SetValue(value(level))
}

// Close releases the line.
func (o *OutputLine) Close() error {
	return o.gpiodLine.Close()
}

func value(l port.Level) int {
	if l {
		return 1
	}
	return 0
}
