package manchester

import (
	"sync"

	"github.com/womat/debug"
	"quickjack/pkg/port"
)

// TxState represents the state of the encoding process.
type TxState int

const (
	// TxIdle holds the line, no frame in flight.
	TxIdle TxState = iota
	// TxStartBit0 sends preamble cell 0 (1).
	TxStartBit0
	// TxStartBit1 sends preamble cell 1 (1).
	TxStartBit1
	// TxStartBit2 sends preamble cell 2 (0).
	TxStartBit2
	// TxSendBit sends the data bits.
	TxSendBit
	// TxStopBit sends the stop cell (0).
	TxStopBit
	// TxByte sends the trailing edge which closes the stop cell.
	TxByte
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxStartBit0:
		return "startbit0"
	case TxStartBit1:
		return "startbit1"
	case TxStartBit2:
		return "startbit2"
	case TxSendBit:
		return "sendbit"
	case TxStopBit:
		return "stopbit"
	case TxByte:
		return "byte"
	default:
		return "unknown"
	}
}

// Encoder drives the output line, one half bit cell per call of Encode.
type Encoder struct {
	mu sync.Mutex

	// state contains the current encoding state.
	state TxState
	// out is the driven line.
	out port.Output
	// idle is the line level between frames.
	idle port.Level
	// level is the current line level.
	level port.Level
	// second is set while the second half of a cell is sent.
	second bool
	// txBit is the number of the currently sent data bit.
	txBit int
	// txRegister is the byte in flight.
	txRegister byte

	// pending marks next as latched but not yet started.
	pending bool
	next    byte
	// last is the byte latched by the last accepted Send.
	last byte

	// gap counts the ticks the line is held in idle state.
	gap int

	frames      uint64
	writeErrors uint64
}

// EncoderStats is a snapshot of the encoder.
type EncoderStats struct {
	State       TxState
	Level       port.Level
	Pending     bool
	Frames      uint64
	WriteErrors uint64
}

// NewEncoder initials a new Encoder driving out, the line is held at idle between frames.
func NewEncoder(out port.Output, idle port.Level) *Encoder {
	e := Encoder{out: out, idle: idle}
	e.Init()
	return &e
}

// Init drops a pending byte, stops a frame in flight and drives the line to idle level.
func (e *Encoder) Init() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = TxIdle
	e.second = false
	e.txBit = 0
	e.txRegister = 0
	e.pending = false
	e.next = 0
	e.last = 0
	e.gap = 0
	e.frames = 0
	e.writeErrors = 0
	e.level = e.idle
	e.write()
}

// Send latches b for transmission and returns the byte latched by the previous Send.
// If a byte is still pending or in flight, nothing is changed and Send returns that byte and ErrBusy.
// The transmission itself is done by Encode.
func (e *Encoder) Send(b byte) (byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending {
		return e.next, ErrBusy
	}
	if e.state != TxIdle {
		return e.txRegister, ErrBusy
	}

	prev := e.last
	e.next = b
	e.last = b
	e.pending = true
	return prev, nil
}

// Encode advances the encoder by half a bit cell and toggles the line if the code needs it.
func (e *Encoder) Encode() {
	e.encode(true)
}

// Hold advances the encoder like Encode but keeps an idle line untouched: a pending byte
// isn't started and the idle level isn't restored. A frame in flight is continued.
func (e *Encoder) Hold() {
	e.encode(false)
}

func (e *Encoder) encode(start bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case TxIdle:
		if e.gap < GapTicks {
			e.gap++
		}
		if e.gap < GapTicks || !start {
			return
		}

		if e.level != e.idle {
			// the last frame left the line inverted
			e.toggle()
			e.gap = 0
			return
		}

		if !e.pending {
			return
		}

		e.pending = false
		e.txRegister = e.next
		e.txBit = 0
		e.second = false
		e.state = TxStartBit0
		e.cell(1)

	case TxStartBit0:
		if e.cell(1) {
			e.state = TxStartBit1
		}
	case TxStartBit1:
		if e.cell(1) {
			e.state = TxStartBit2
		}
	case TxStartBit2:
		if e.cell(0) {
			e.state = TxSendBit
		}
	case TxSendBit:
		if !e.cell(e.txRegister >> e.txBit & 1) {
			return
		}
		e.txBit++
		if e.txBit == dataBits {
			e.state = TxStopBit
		}
	case TxStopBit:
		if e.cell(0) {
			e.state = TxByte
		}
	case TxByte:
		e.toggle()
		e.frames++
		e.gap = 0
		e.state = TxIdle
	}
}

// cell sends one half of a bit cell and reports whether the cell is complete.
//  first half:  always a transition
//  second half: a transition for a 1
func (e *Encoder) cell(bit byte) bool {
	if !e.second {
		e.toggle()
		e.second = true
		return false
	}

	if bit == 1 {
		e.toggle()
	}
	e.second = false
	return true
}

func (e *Encoder) toggle() {
	e.level = !e.level
	e.write()
}

func (e *Encoder) write() {
	if e.out == nil {
		return
	}
	if err := e.out.Set(e.level); err != nil {
		e.writeErrors++
		debug.ErrorLog.Printf("can't set tx line %v: %v", e.level, err)
	}
}

// State returns the current encoding state.
func (e *Encoder) State() TxState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Sending reports whether a frame is in flight, a pending byte doesn't drive the line yet.
func (e *Encoder) Sending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != TxIdle
}

// Busy reports whether a byte is pending or in flight.
func (e *Encoder) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending || e.state != TxIdle
}

// Stats returns a snapshot of the encoder counters.
func (e *Encoder) Stats() EncoderStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return EncoderStats{
		State:       e.state,
		Level:       e.level,
		Pending:     e.pending,
		Frames:      e.frames,
		WriteErrors: e.writeErrors,
	}
}
