package quickjack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quickjack/pkg/manchester"
	"quickjack/pkg/port"
	"quickjack/pkg/raspberry"
)

// frameTicks is more than one frame including gaps and the idle level restore.
const frameTicks = 40

// pair returns a sending link whose tx line is stamped with its own tick count.
func pair(t *testing.T, config Config) (*Link, *raspberry.EmuLine) {
	t.Helper()

	var tx *Link
	line := raspberry.NewEmuLine(config.IdleLevel, func() time.Duration {
		return time.Duration(tx.Ticks()) * EncodePeriod
	})
	tx = New(line, config)
	t.Cleanup(func() { _ = line.Close() })
	return tx, line
}

// pump runs n encode ticks on tx and hands all edges to rx.
func pump(tx, rx *Link, line *raspberry.EmuLine, n int) {
	for i := 0; i < n; i++ {
		tx.Encode()
		for {
			select {
			case evt := <-line.C:
				rx.HandleEvent(evt)
				continue
			default:
			}
			break
		}
	}
}

// record runs n encode ticks on tx and returns the edges of its line.
func record(tx *Link, line *raspberry.EmuLine, n int) []port.Event {
	var events []port.Event
	for i := 0; i < n; i++ {
		tx.Encode()
		for {
			select {
			case evt := <-line.C:
				events = append(events, evt)
				continue
			default:
			}
			break
		}
	}
	return events
}

func TestTimingConstants(t *testing.T) {
	assert.Equal(t, time.Duration(manchester.HalfBitTicks), (EncodePeriod+RxTick/2)/RxTick)
	assert.Equal(t, time.Duration(manchester.RxClockSampleBits), (BitPeriod+RxTick/2)/RxTick)
}

func TestLinkRoundTrip(t *testing.T) {
	tx, line := pair(t, Config{})
	rx := New(nil, Config{HalfDuplex: true})

	for _, b := range []byte{0xAA, 0x55, 0x00, 0xff, 0x3c} {
		_, err := tx.Send(b)
		require.NoError(t, err)
		pump(tx, rx, line, frameTicks)

		got, ok := rx.TryReceive()
		require.True(t, ok, "byte 0x%02x", b)
		assert.Equal(t, b, got)
	}

	s := rx.Stats()
	assert.Equal(t, uint64(5), s.RxFrames)
	assert.Equal(t, uint64(0), s.FramingErrors)
	assert.Equal(t, uint64(0), s.Overruns)
	assert.Equal(t, uint64(5), tx.Stats().TxFrames)
}

func TestLinkOverrun(t *testing.T) {
	tx, line := pair(t, Config{})
	rx := New(nil, Config{})

	for _, b := range []byte{1, 2} {
		_, err := tx.Send(b)
		require.NoError(t, err)
		pump(tx, rx, line, frameTicks)
	}

	got, ok := rx.TryReceive()
	require.True(t, ok)
	assert.Equal(t, byte(2), got)
	assert.Equal(t, uint64(1), rx.Stats().Overruns)
}

func TestLinkHalfDuplexDropsEcho(t *testing.T) {
	var l *Link
	line := raspberry.NewEmuLine(port.Low, func() time.Duration {
		return time.Duration(l.Ticks()) * EncodePeriod
	})
	defer line.Close()
	l = New(line, Config{HalfDuplex: true})

	_, err := l.Send(0x42)
	require.NoError(t, err)
	pump(l, l, line, frameTicks)

	_, ok := l.TryReceive()
	assert.False(t, ok)
	assert.NotZero(t, l.Stats().DroppedEdges)
}

func TestLinkInit(t *testing.T) {
	tx, line := pair(t, Config{})
	rx := New(nil, Config{})

	_, err := tx.Send(0x10)
	require.NoError(t, err)
	pump(tx, rx, line, frameTicks)

	rx.Init()
	first := rx.Stats()
	rx.Init()
	assert.Equal(t, first, rx.Stats())

	_, ok := rx.TryReceive()
	assert.False(t, ok)
	assert.Equal(t, "startbit", first.RxState)
	assert.Equal(t, uint64(0), first.RxFrames)
}

func TestLinkRun(t *testing.T) {
	tx, line := pair(t, Config{})
	rx := New(nil, Config{HalfDuplex: true, RxTimeout: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	txDone := make(chan error, 1)
	rxDone := make(chan error, 1)
	go func() { txDone <- tx.Run(ctx, nil) }()
	go func() { rxDone <- rx.Run(ctx, line.Events()) }()

	require.NoError(t, tx.Handshake(ctx))

	var got []byte
	for len(got) < len(HandshakeBytes) {
		select {
		case <-rx.Ready():
			if b, ok := rx.TryReceive(); ok {
				got = append(got, b)
			}
		case <-ctx.Done():
			t.Fatalf("received %x only", got)
		}
	}
	assert.Equal(t, HandshakeBytes, got)

	cancel()
	assert.ErrorIs(t, <-txDone, context.Canceled)
	assert.ErrorIs(t, <-rxDone, context.Canceled)
}

func TestSendWaitCanceled(t *testing.T) {
	l := New(nil, Config{})

	_, err := l.Send(0x01)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// nobody calls Encode, the first byte stays pending
	assert.ErrorIs(t, l.SendWait(ctx, 0x02), context.DeadlineExceeded)
}

func TestLinkSendDuringReception(t *testing.T) {
	tx, line := pair(t, Config{})
	rx := New(nil, Config{HalfDuplex: true})

	_, err := tx.Send(0x5a)
	require.NoError(t, err)

	edges := 0
	for i := 0; i < frameTicks; i++ {
		tx.Encode()
		for {
			select {
			case evt := <-line.C:
				rx.HandleEvent(evt)
				edges++
				if edges == 6 {
					// latched, but the line is still owned by the receiver
					_, err := rx.Send(0x11)
					require.NoError(t, err)
				}
				continue
			default:
			}
			break
		}

		rx.Encode()
		if s := rx.Stats(); s.RxFrames == 0 {
			require.Equal(t, "idle", s.TxState, "tick %v", i)
		}
	}

	got, ok := rx.TryReceive()
	require.True(t, ok)
	assert.Equal(t, byte(0x5a), got)

	s := rx.Stats()
	assert.Equal(t, uint64(1), s.RxFrames)
	assert.Equal(t, uint64(0), s.FramingErrors)
	assert.False(t, s.TxPending, "the held byte is sent after the frame")
}

func TestLinkRxTimeout(t *testing.T) {
	tx, line := pair(t, Config{})

	_, err := tx.Send(0x5a)
	require.NoError(t, err)
	first := record(tx, line, frameTicks)

	_, err = tx.Send(0x3c)
	require.NoError(t, err)
	second := record(tx, line, frameTicks)

	rx := New(nil, Config{RxTimeout: 50 * time.Millisecond})
	events := make(chan port.Event, len(first)+len(second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rx.Run(ctx, events) }()

	// a frame which stops in the middle of the data bits
	for _, evt := range first[:10] {
		events <- evt
	}
	require.Eventually(t, func() bool { return rx.Stats().RxTimeouts == 1 }, 5*time.Second, 5*time.Millisecond)

	s := rx.Stats()
	assert.Equal(t, "startbit", s.RxState)
	assert.Equal(t, uint64(1), s.FramingErrors)
	_, ok := rx.TryReceive()
	assert.False(t, ok)

	for _, evt := range second {
		events <- evt
	}
	require.Eventually(t, func() bool { return rx.Stats().RxFrames == 1 }, 5*time.Second, 5*time.Millisecond)

	got, ok := rx.TryReceive()
	require.True(t, ok)
	assert.Equal(t, byte(0x3c), got)
	assert.Equal(t, uint64(1), rx.Stats().RxTimeouts)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
