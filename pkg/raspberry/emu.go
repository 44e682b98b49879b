// Package raspberry holds the line drivers of the audio jack interface (gpio character device, gpiomem and emulation).
package raspberry

import (
	"sync"
	"time"

	"github.com/womat/debug"
	"quickjack/pkg/port"
)

// eventBuffer is the count of edge events buffered for the decoder.
const eventBuffer = 256

// EmuLine is a loopback line for systems without gpio.
// Every level change of the output side is sent as edge to its own channel C.
type EmuLine struct {
	mu      sync.Mutex
	level   port.Level
	clock   func() time.Duration
	closed  bool
	dropped uint64
	// C receives the edges of the line.
	C chan port.Event
}

// NewEmuLine creates a loopback line at level. The edges are stamped by clock,
// a nil clock uses the time since the line was created.
func NewEmuLine(level port.Level, clock func() time.Duration) *EmuLine {
	if clock == nil {
		start := time.Now()
		clock = func() time.Duration { return time.Since(start) }
	}

	return &EmuLine{
		level: level,
		clock: clock,
		C:     make(chan port.Event, eventBuffer),
	}
}

// Set drives the line to level and emulates the edge.
func (l *EmuLine) Set(level port.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level == l.level || l.closed {
		return nil
	}
	l.level = level

	evt := port.Event{Timestamp: l.clock(), Type: port.FallingEdge}
	if level == port.High {
		evt.Type = port.RisingEdge
	}

	select {
	case l.C <- evt:
	default:
		l.dropped++
		debug.ErrorLog.Println("emulated edge dropped")
	}
	return nil
}

// Read returns the line level.
func (l *EmuLine) Read() port.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Events returns the edge channel of the line.
func (l *EmuLine) Events() <-chan port.Event {
	return l.C
}

// Dropped returns the count of edges lost because C was full.
func (l *EmuLine) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes channel C, further level changes are ignored.
func (l *EmuLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		close(l.C)
	}
	return nil
}
