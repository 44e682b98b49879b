package manchester

import (
	"sync"

	"github.com/womat/debug"
)

// RxState represents the state of the decoding process.
type RxState int

const (
	// RxStartBit waits for the first preamble interval.
	RxStartBit RxState = iota
	// RxStartBitFalling has seen the first half of preamble cell 0.
	RxStartBitFalling
	// RxStartBit0 has seen preamble cell 0.
	RxStartBit0
	// RxStartBit1 has seen the first half of preamble cell 1.
	RxStartBit1
	// RxStartBit2 has seen preamble cell 1 and waits for the long preamble cell 2.
	RxStartBit2
	// RxDecoding collects the data bits.
	RxDecoding
	// RxStopBit waits for the long stop cell.
	RxStopBit
	// RxByteReady has delivered a byte and waits for the line to go silent.
	RxByteReady
)

func (s RxState) String() string {
	switch s {
	case RxStartBit:
		return "startbit"
	case RxStartBitFalling:
		return "startbit-falling"
	case RxStartBit0:
		return "startbit0"
	case RxStartBit1:
		return "startbit1"
	case RxStartBit2:
		return "startbit2"
	case RxDecoding:
		return "decoding"
	case RxStopBit:
		return "stopbit"
	case RxByteReady:
		return "byte-ready"
	default:
		return "unknown"
	}
}

// Decoder represents the handler of the Decoder.
// Decode is called once per edge, from one goroutine at a time.
type Decoder struct {
	mu sync.Mutex

	// state contains the current decoding state.
	state RxState
	// armed is set by line silence, a preamble is only accepted after silence.
	armed bool
	// half is set while the first short interval of a 1 is seen.
	half bool
	// rxBit is the number of the currently received data bit.
	rxBit int
	// rxRegister is the buffer of the currently received byte.
	rxRegister byte
	// received is the last completely decoded byte.
	received byte
	// elapsed is the last interval passed to Decode.
	elapsed uint32

	frames        uint64
	framingErrors uint64

	// sink gets every completely decoded byte.
	sink Sink
}

// DecoderStats is a snapshot of the decoder.
type DecoderStats struct {
	State         RxState
	Received      byte
	Elapsed       uint32
	Frames        uint64
	FramingErrors uint64
}

// NewDecoder initials a new Decoder which hands decoded bytes to sink.
func NewDecoder(sink Sink) *Decoder {
	d := Decoder{sink: sink}
	d.Init()
	return &d
}

// Init resets the decoder to wait for a preamble. The line is treated as silent.
func (d *Decoder) Init() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = RxStartBit
	d.armed = true
	d.half = false
	d.rxBit = 0
	d.rxRegister = 0
	d.received = 0
	d.elapsed = 0
	d.frames = 0
	d.framingErrors = 0
}

// Resync drops a frame in flight and waits for the next line silence.
func (d *Decoder) Resync() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fail()
}

// Decode decodes the interval between two edges (in receive ticks):
//  * line silence (an invalid interval) arms the decoder
//  * preamble: short short short short long
//  * data:     short short is a 1, long is a 0 (LSB first)
//  * stop:     long
// Every unexpected interval drops the frame, nothing is delivered.
func (d *Decoder) Decode(elapsed uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.elapsed = elapsed
	p := Classify(elapsed)

	if p == Invalid {
		if d.inFrame() {
			d.framingErrors++
			debug.TraceLog.Printf("interval %v out of range in state %v", elapsed, d.state)
		}
		d.state = RxStartBit
		d.armed = true
		return
	}

	switch d.state {
	case RxStartBit:
		if !d.armed {
			return
		}
		if p != Short {
			d.armed = false
			return
		}
		d.state = RxStartBitFalling
	case RxStartBitFalling:
		d.expect(p, Short, RxStartBit0)
	case RxStartBit0:
		d.expect(p, Short, RxStartBit1)
	case RxStartBit1:
		d.expect(p, Short, RxStartBit2)
	case RxStartBit2:
		if d.expect(p, Long, RxDecoding) {
			d.half = false
			d.rxBit = 0
			d.rxRegister = 0
		}
	case RxDecoding:
		d.decodeBit(p)
	case RxStopBit:
		if !d.expect(p, Long, RxByteReady) {
			return
		}
		d.received = d.rxRegister
		d.frames++
		d.armed = false
		if d.sink != nil {
			if d.sink.Put(d.received) {
				debug.TraceLog.Printf("byte 0x%02x overwrites unread byte", d.received)
			}
		}
	case RxByteReady:
		// an edge right after the stop cell: not our frame, wait for silence
		d.state = RxStartBit
		d.armed = false
	}
}

// decodeBit handles one interval of the data bits and fills the rxRegister.
func (d *Decoder) decodeBit(p Pulse) {
	var bit byte

	switch p {
	case Short:
		if !d.half {
			d.half = true
			return
		}
		d.half = false
		bit = 1
	case Long:
		if d.half {
			// a long interval after half a cell is no valid code
			d.fail()
			return
		}
	}

	d.rxRegister |= bit << d.rxBit
	d.rxBit++
	if d.rxBit == dataBits {
		d.state = RxStopBit
	}
}

// expect moves to next if p is the wanted pulse, otherwise the frame is dropped.
func (d *Decoder) expect(p, want Pulse, next RxState) bool {
	if p != want {
		d.fail()
		return false
	}
	d.state = next
	return true
}

// fail drops the current frame and waits for line silence.
func (d *Decoder) fail() {
	if d.inFrame() {
		d.framingErrors++
		debug.TraceLog.Printf("framing error in state %v", d.state)
	}
	d.state = RxStartBit
	d.armed = false
	d.half = false
}

// inFrame reports whether a preamble has been started.
func (d *Decoder) inFrame() bool {
	return d.state != RxStartBit && d.state != RxByteReady
}

// State returns the current decoding state.
func (d *Decoder) State() RxState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Busy reports whether a frame is being received.
func (d *Decoder) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFrame()
}

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() DecoderStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return DecoderStats{
		State:         d.state,
		Received:      d.received,
		Elapsed:       d.elapsed,
		Frames:        d.frames,
		FramingErrors: d.framingErrors,
	}
}
