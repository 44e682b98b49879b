// Package port holds the definition of a physical port
package port

import "time"

// EventType indicates the type of change to the line active state.
//
// Note that for active low lines a low line level results in a high active
// state.
type EventType int

const (
	_ EventType = iota
	// RisingEdge indicates an inactive to active event (low to high).
	RisingEdge
	// FallingEdge indicates an active to inactive event (high to low).
	FallingEdge
)

// Event is a detected edge on an input line.
type Event struct {
	// Timestamp indicates the time the event was detected.
	Timestamp time.Duration
	// The type of state change event this structure represents.
	Type EventType
}

// Level is the electrical level of a line.
type Level bool

const (
	// High indicates a logical 1.
	High Level = true
	// Low indicates a logical 0.
	Low Level = false
)

// Output is a line the encoder can drive.
type Output interface {
	// Set drives the line to the given level.
	Set(Level) error
}

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

func (t EventType) String() string {
	switch t {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	default:
		return "unknown"
	}
}
