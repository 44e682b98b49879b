package bridge

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quickjack/pkg/mailbox"
)

type testLink struct {
	*mailbox.Mailbox
	sent chan byte
}

func (l *testLink) SendWait(ctx context.Context, b byte) error {
	select {
	case l.sent <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// testConn behaves like a serial port with read timeout.
type testConn struct {
	in  chan []byte
	mu  sync.Mutex
	out bytes.Buffer
}

func (c *testConn) Read(p []byte) (int, error) {
	select {
	case d := <-c.in:
		return copy(p, d), nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (c *testConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *testConn) written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.out.Bytes()...)
}

func TestBridge(t *testing.T) {
	link := &testLink{Mailbox: mailbox.New(), sent: make(chan byte, 8)}
	conn := &testConn{in: make(chan []byte, 1)}

	var mu sync.Mutex
	var seen []byte

	b := New(link, conn)
	b.OnReceive = func(v byte) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	link.Put(0x41)
	require.Eventually(t, func() bool { return bytes.Equal(conn.written(), []byte{0x41}) }, time.Second, time.Millisecond)

	conn.in <- []byte("hi")
	assert.Equal(t, byte('h'), <-link.sent)
	assert.Equal(t, byte('i'), <-link.sent)

	require.Eventually(t, func() bool { return b.Stats() == Stats{RxBytes: 1, TxBytes: 2} }, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []byte{0x41}, seen)
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestBridgeStopsWhileHostIsQuiet(t *testing.T) {
	link := &testLink{Mailbox: mailbox.New(), sent: make(chan byte)}
	b := New(link, &testConn{in: make(chan []byte)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// the read timeout of the host connection lets Run notice the deadline
	assert.ErrorIs(t, b.Run(ctx), context.DeadlineExceeded)
}
