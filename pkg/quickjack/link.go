// Package quickjack is the half duplex byte link to a phone over the audio jack.
// It wires the manchester Decoder and Encoder to the mailbox and owns the two callback
// sources: the edge events of the receive line and the encode ticker.
package quickjack

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/womat/debug"
	"quickjack/pkg/mailbox"
	"quickjack/pkg/manchester"
	"quickjack/pkg/port"
)

const (
	// BitPeriod is the duration of one bit cell.
	BitPeriod = time.Second / manchester.CommunicationClock
	// RxTick is the duration of one receive tick.
	RxTick = BitPeriod / manchester.RxClockSampleBits
	// EncodePeriod is the interval Encode is called with (half a bit cell).
	EncodePeriod = BitPeriod / 2
)

// HandshakeBytes is the byte sequence sent at link start.
var HandshakeBytes = []byte{0xAA, 0x55, 0xAA, 0x55}

// Config holds the link settings.
type Config struct {
	// IdleLevel is the level of the tx line between frames.
	IdleLevel port.Level
	// RxTimeout drops a frame in flight if no edge arrives in time, 0 waits forever.
	RxTimeout time.Duration
	// HalfDuplex drops received edges while a frame is sent and holds a pending byte
	// while a frame is received.
	HalfDuplex bool
}

// Link is the handler of the audio jack link.
type Link struct {
	config Config

	dec *manchester.Decoder
	enc *manchester.Encoder
	mb  *mailbox.Mailbox

	// el guards lastEdge and seenEdge.
	el       sync.Mutex
	lastEdge time.Duration
	seenEdge bool

	ticks        atomic.Uint64
	droppedEdges atomic.Uint64
	rxTimeouts   atomic.Uint64
}

// Stats is a snapshot of the link.
type Stats struct {
	RxState       string `json:"rxState"`
	TxState       string `json:"txState"`
	Received      byte   `json:"received"`
	Elapsed       uint32 `json:"elapsed"`
	RxFrames      uint64 `json:"rxFrames"`
	FramingErrors uint64 `json:"framingErrors"`
	Overruns      uint64 `json:"overruns"`
	Ready         bool   `json:"ready"`
	TxFrames      uint64 `json:"txFrames"`
	TxPending     bool   `json:"txPending"`
	TxLevel       string `json:"txLevel"`
	WriteErrors   uint64 `json:"writeErrors"`
	DroppedEdges  uint64 `json:"droppedEdges"`
	RxTimeouts    uint64 `json:"rxTimeouts"`
	Ticks         uint64 `json:"ticks"`
}

// New initials a new link which drives out.
func New(out port.Output, config Config) *Link {
	mb := mailbox.New()

	l := &Link{
		config: config,
		mb:     mb,
		dec:    manchester.NewDecoder(mb),
		enc:    manchester.NewEncoder(out, config.IdleLevel),
	}

	debug.DebugLog.Printf("link: %v bit/s, rx tick %v, encode period %v", manchester.CommunicationClock, RxTick, EncodePeriod)
	return l
}

// Init resets decoder, encoder, mailbox and counters. It is safe to call it at any time.
func (l *Link) Init() {
	l.dec.Init()
	l.enc.Init()
	l.mb.Reset()

	l.el.Lock()
	l.lastEdge = 0
	l.seenEdge = false
	l.el.Unlock()

	l.ticks.Store(0)
	l.droppedEdges.Store(0)
	l.rxTimeouts.Store(0)
}

// Decode handles the interval (in receive ticks) between two edges.
func (l *Link) Decode(elapsed uint32) {
	l.dec.Decode(elapsed)
}

// Encode advances the encoder by half a bit cell. In half duplex mode a pending byte
// isn't started while a frame is received.
func (l *Link) Encode() {
	l.ticks.Add(1)
	if l.config.HalfDuplex && l.dec.Busy() {
		l.enc.Hold()
		return
	}
	l.enc.Encode()
}

// Send latches b for transmission, see manchester.Encoder.Send.
func (l *Link) Send(b byte) (byte, error) {
	return l.enc.Send(b)
}

// SendWait retries Send until b is accepted or ctx is done.
func (l *Link) SendWait(ctx context.Context, b byte) error {
	if _, err := l.enc.Send(b); err == nil {
		return nil
	}

	t := time.NewTicker(EncodePeriod)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := l.enc.Send(b); err == nil {
				return nil
			}
		}
	}
}

// Handshake sends the handshake sequence AA 55 AA 55.
func (l *Link) Handshake(ctx context.Context) error {
	for _, b := range HandshakeBytes {
		if err := l.SendWait(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// TryReceive returns the last received byte if it isn't read yet.
func (l *Link) TryReceive() (byte, bool) {
	return l.mb.TryReceive()
}

// Ready returns a channel which gets a token if a byte is received.
func (l *Link) Ready() <-chan struct{} {
	return l.mb.Ready()
}

// HandleEvent converts the timestamp of an edge to the interval since the last edge and decodes it.
// The first edge is handled like an edge after line silence.
func (l *Link) HandleEvent(evt port.Event) {
	elapsed := uint32(math.MaxUint32)

	l.el.Lock()
	if l.seenEdge {
		d := evt.Timestamp - l.lastEdge
		if d < 0 {
			d = 0
		}
		if ticks := (d + RxTick/2) / RxTick; ticks < math.MaxUint32 {
			elapsed = uint32(ticks)
		}
	}
	l.lastEdge = evt.Timestamp
	l.seenEdge = true
	l.el.Unlock()

	if l.config.HalfDuplex && l.enc.Sending() {
		l.droppedEdges.Add(1)
		if l.dec.Busy() {
			l.dec.Resync()
		}
		return
	}

	l.dec.Decode(elapsed)
}

// Run calls Encode with the encode period and decodes the events of the receive line
// until ctx is done or events is closed. A nil events channel runs the encoder only.
func (l *Link) Run(ctx context.Context, events <-chan port.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.runEncoder(ctx)
	}()

	err := l.runDecoder(ctx, events)
	cancel()
	wg.Wait()
	return err
}

// runEncoder is the periodic timer of the encoder.
func (l *Link) runEncoder(ctx context.Context) {
	t := time.NewTicker(EncodePeriod)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Encode()
		}
	}
}

// runDecoder receives the line events and sends them to HandleEvent.
func (l *Link) runDecoder(ctx context.Context, events <-chan port.Event) error {
	var timeout <-chan time.Time
	var timer *time.Timer

	if l.config.RxTimeout > 0 {
		timer = time.NewTimer(l.config.RxTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, open := <-events:
			if !open {
				debug.InfoLog.Print("receive line closed")
				return nil
			}
			l.HandleEvent(evt)

			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(l.config.RxTimeout)
			}

		case <-timeout:
			if l.dec.Busy() {
				debug.DebugLog.Printf("no edge for %v, drop frame", l.config.RxTimeout)
				l.rxTimeouts.Add(1)
				l.dec.Resync()
			}
			timer.Reset(l.config.RxTimeout)
		}
	}
}

// Ticks returns the count of Encode calls since Init.
func (l *Link) Ticks() uint64 {
	return l.ticks.Load()
}

// Stats returns a snapshot of the link.
func (l *Link) Stats() Stats {
	ds := l.dec.Stats()
	es := l.enc.Stats()
	ms := l.mb.Stats()

	return Stats{
		RxState:       ds.State.String(),
		TxState:       es.State.String(),
		Received:      ds.Received,
		Elapsed:       ds.Elapsed,
		RxFrames:      ds.Frames,
		FramingErrors: ds.FramingErrors,
		Overruns:      ms.Overruns,
		Ready:         ms.Ready,
		TxFrames:      es.Frames,
		TxPending:     es.Pending,
		TxLevel:       es.Level.String(),
		WriteErrors:   es.WriteErrors,
		DroppedEdges:  l.droppedEdges.Load(),
		RxTimeouts:    l.rxTimeouts.Load(),
		Ticks:         l.ticks.Load(),
	}
}
