//go:build !linux
// +build !linux

package raspberry

import (
	"errors"
	"time"

	"quickjack/pkg/port"
)

var (
	// ErrInvalidParam is returned for an unknown line terminator.
	ErrInvalidParam = errors.New("invalid parameters")
	// ErrUnsupported is returned by every gpio driver outside linux.
	ErrUnsupported = errors.New("gpio is only supported on linux, use the emu driver")
)

// Chip stands in for the GPIO character device, it can't be opened.
type Chip struct{}

// Line stands in for the receive line, C is never written.
type Line struct {
	C chan port.Event
}

// OutputLine stands in for the transmit line of the character device.
type OutputLine struct{}

// MemPin stands in for the gpiomem output pin.
type MemPin struct{}

// Open GPIO character device, not supported.
func Open(string) (*Chip, error) {
	return nil, ErrUnsupported
}

// NewInputLine always returns ErrUnsupported.
func (c *Chip) NewInputLine(int, string, time.Duration) (*Line, error) {
	return nil, ErrUnsupported
}

// NewOutputLine always returns ErrUnsupported.
func (c *Chip) NewOutputLine(int, port.Level) (*OutputLine, error) {
	return nil, ErrUnsupported
}

// Close does nothing.
func (c *Chip) Close() error { return nil }

// Events returns the (empty) event channel.
func (l *Line) Events() <-chan port.Event { return l.C }

// Close does nothing.
func (l *Line) Close() error { return nil }

// Set always returns ErrUnsupported.
func (o *OutputLine) Set(port.Level) error { return ErrUnsupported }

// Close does nothing.
func (o *OutputLine) Close() error { return nil }

// OpenMemPin maps the GPIO memory, not supported.
func OpenMemPin(int, port.Level) (*MemPin, error) {
	return nil, ErrUnsupported
}

// Set always returns ErrUnsupported.
func (p *MemPin) Set(port.Level) error { return ErrUnsupported }

// Pin returns 0, there is no pin.
func (p *MemPin) Pin() int { return 0 }

// Close does nothing.
func (p *MemPin) Close() error { return nil }
