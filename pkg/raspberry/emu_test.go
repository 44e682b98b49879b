package raspberry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quickjack/pkg/port"
)

func TestEmuLine(t *testing.T) {
	now := time.Duration(0)
	l := NewEmuLine(port.Low, func() time.Duration { return now })

	// no level change, no edge
	require.NoError(t, l.Set(port.Low))
	assert.Len(t, l.C, 0)

	now = 10 * time.Microsecond
	require.NoError(t, l.Set(port.High))
	now = 25 * time.Microsecond
	require.NoError(t, l.Set(port.Low))

	assert.Equal(t, port.Event{Timestamp: 10 * time.Microsecond, Type: port.RisingEdge}, <-l.Events())
	assert.Equal(t, port.Event{Timestamp: 25 * time.Microsecond, Type: port.FallingEdge}, <-l.Events())
	assert.Equal(t, port.Low, l.Read())

	require.NoError(t, l.Close())
	require.NoError(t, l.Set(port.High))
	_, open := <-l.C
	assert.False(t, open)
	require.NoError(t, l.Close())
}

func TestEmuLineDropsWhenFull(t *testing.T) {
	l := NewEmuLine(port.Low, nil)
	defer l.Close()

	level := port.Low
	for i := 0; i < eventBuffer+3; i++ {
		level = !level
		require.NoError(t, l.Set(level))
	}
	assert.Equal(t, uint64(3), l.Dropped())
}
