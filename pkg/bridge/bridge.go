// Package bridge relays the bytes of the audio jack link to a host terminal (serial port) and back.
package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/womat/debug"
	"go.bug.st/serial"
)

// readTimeout bounds a serial read, so the reader notices a canceled context.
const readTimeout = 100 * time.Millisecond

// Link is the part of the audio jack link the bridge needs.
type Link interface {
	SendWait(ctx context.Context, b byte) error
	TryReceive() (byte, bool)
	Ready() <-chan struct{}
}

// Bridge relays bytes between a Link and a host connection.
type Bridge struct {
	link Link
	conn io.ReadWriter
	// OnReceive is called with every byte received from the link, it may be nil.
	OnReceive func(b byte)

	mu      sync.Mutex
	rxBytes uint64
	txBytes uint64
}

// Stats is a snapshot of the bridge counters.
type Stats struct {
	// RxBytes is the count of bytes relayed from the link to the host.
	RxBytes uint64 `json:"rxBytes"`
	// TxBytes is the count of bytes relayed from the host to the link.
	TxBytes uint64 `json:"txBytes"`
}

// OpenSerial opens the host serial port with 8N1 framing.
func OpenSerial(device string, baudRate int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", device, err)
	}

	if err = p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout of %q: %w", device, err)
	}
	return p, nil
}

// New initials a new bridge between link and conn.
// A Read of conn must return after a while even without data (like a serial port opened
// by OpenSerial), otherwise Run can't return after its context is done.
func New(link Link, conn io.ReadWriter) *Bridge {
	return &Bridge{link: link, conn: conn}
}

// Run relays bytes until ctx is done or the host connection fails.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- b.toHost(ctx) }()
	go func() { errc <- b.fromHost(ctx) }()

	err := <-errc
	cancel()
	<-errc
	return err
}

// toHost writes every byte received from the link to the host connection.
func (b *Bridge) toHost(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.link.Ready():
		}

		v, ok := b.link.TryReceive()
		if !ok {
			continue
		}

		debug.DebugLog.Printf("received 0x%02x", v)
		if b.OnReceive != nil {
			b.OnReceive(v)
		}

		if _, err := b.conn.Write([]byte{v}); err != nil {
			debug.ErrorLog.Printf("write to host: %v", err)
			return err
		}

		b.mu.Lock()
		b.rxBytes++
		b.mu.Unlock()
	}
}

// fromHost reads bytes from the host connection and sends them one by one.
func (b *Bridge) fromHost(ctx context.Context) error {
	buf := make([]byte, 64)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := b.conn.Read(buf)
		for _, v := range buf[:n] {
			if e := b.link.SendWait(ctx, v); e != nil {
				return e
			}

			b.mu.Lock()
			b.txBytes++
			b.mu.Unlock()
		}

		switch {
		case err == io.EOF:
			debug.InfoLog.Print("host connection closed")
			<-ctx.Done()
			return ctx.Err()
		case err != nil:
			debug.ErrorLog.Printf("read from host: %v", err)
			return err
		}
	}
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{RxBytes: b.rxBytes, TxBytes: b.txBytes}
}
