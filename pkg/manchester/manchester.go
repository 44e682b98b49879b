// Package manchester is a software Decoder and Encoder for the biphase (Manchester) line code
// used on the audio jack link between a phone and the board.
// https://en.wikipedia.org/wiki/Manchester_code
// https://en.wikipedia.org/wiki/Differential_Manchester_encoding
//
// Every bit cell starts with a transition. A 1 adds a transition in the middle of the cell,
// a 0 does not. So a 1 is seen by the receiver as two short edge intervals and a 0 as one
// long interval, whatever the polarity of the line is.
//
// A frame on the wire is
//   silence (at least two cells)
//   preamble cells 1 1 0
//   eight data bits, LSB first
//   stop cell 0, closed by a trailing boundary edge
package manchester

import "errors"

const (
	// AudioClock is the sample clock of the phone audio path (Hz).
	AudioClock = 44100
	// CommunicationClock is the bit rate of the link, AudioClock/32 = 1378 bit/s.
	CommunicationClock = AudioClock >> 5
	// EncodeClock is the rate Encode has to be called with: one call per half bit cell.
	EncodeClock = CommunicationClock * 2

	// RxClockSampleBits is the count of receive ticks per bit cell.
	RxClockSampleBits = 32
	// HalfBitTicks is the count of receive ticks per half bit cell.
	HalfBitTicks = RxClockSampleBits / 2
	// RxCounterMin is the shortest long interval, shorter intervals are short ones.
	RxCounterMin = RxClockSampleBits/2 + RxClockSampleBits/4
	// RxCounterMax is the longest valid interval, longer intervals are treated as line silence.
	RxCounterMax = RxClockSampleBits + RxClockSampleBits/2

	// GapTicks is the count of encode ticks the line is held before a frame and before the
	// idle level is restored. 4 ticks are 64 receive ticks, well above RxCounterMax.
	GapTicks = 4

	// dataBits is the count of data bits per frame.
	dataBits = 8
)

// ErrBusy is returned by Send if a byte is pending or in flight.
var ErrBusy = errors.New("encoder busy")

// Pulse is the class of an edge interval.
type Pulse int

const (
	// Invalid is an interval out of range (line silence or a glitch).
	Invalid Pulse = iota
	// Short is half a bit cell, a mid cell transition.
	Short
	// Long is a full bit cell without mid cell transition.
	Long
)

// Classify sorts an edge interval (in receive ticks) into short, long or invalid.
//  short:   0 < elapsed < RxCounterMin
//  long:    RxCounterMin <= elapsed <= RxCounterMax
//  invalid: everything else
func Classify(elapsed uint32) Pulse {
	switch {
	case elapsed == 0:
		return Invalid
	case elapsed < RxCounterMin:
		return Short
	case elapsed <= RxCounterMax:
		return Long
	default:
		return Invalid
	}
}

func (p Pulse) String() string {
	switch p {
	case Short:
		return "short"
	case Long:
		return "long"
	default:
		return "invalid"
	}
}

// Sink receives decoded bytes.
type Sink interface {
	// Put stores a decoded byte and reports whether an unread byte was overwritten.
	Put(b byte) bool
}
