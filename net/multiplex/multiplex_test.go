package multiplex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) [2]int {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds
}

func newMux(t *testing.T, capacity int) *Multiplex {
	m, err := New(capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestEmptySet(t *testing.T) {
	m := newMux(t, 0)
	require.Zero(t, m.Registered())
	require.Equal(t, protocol.DefaultNumEvents, m.Capacity())

	_, _, err := m.Wait(-1)
	require.ErrorIs(t, err, protocol.ErrWaitForever)

	ready, timedOut, err := m.Wait(0)
	require.NoError(t, err)
	require.True(t, timedOut)
	require.Empty(t, ready)

	start := time.Now()
	_, timedOut, err = m.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, timedOut)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWakeInterruptsSleep(t *testing.T) {
	m := newMux(t, 0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Wake()
	}()
	start := time.Now()
	_, timedOut, err := m.Wait(5 * time.Second)
	require.NoError(t, err)
	require.False(t, timedOut)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWakeInterruptsPoll(t *testing.T) {
	m := newMux(t, 0)
	fds := socketPair(t)
	require.NoError(t, m.Add(fds[0], protocol.EventRead))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Wake()
	}()
	start := time.Now()
	ready, timedOut, err := m.Wait(5 * time.Second)
	require.NoError(t, err)
	require.False(t, timedOut)
	require.Empty(t, ready)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestReadReady(t *testing.T) {
	m := newMux(t, 0)
	fds := socketPair(t)
	require.NoError(t, m.Add(fds[0], protocol.EventRead))
	require.Equal(t, 1, m.Registered())

	ready, timedOut, err := m.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, timedOut)
	require.Empty(t, ready)

	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	ready, timedOut, err = m.Wait(time.Second)
	require.NoError(t, err)
	require.False(t, timedOut)
	require.Len(t, ready, 1)
	require.Equal(t, fds[0], ready[0].Fd)
	require.True(t, ready[0].Events.Has(protocol.EventRead))
}

func TestUpdateAndRemove(t *testing.T) {
	m := newMux(t, 0)
	fds := socketPair(t)
	require.NoError(t, m.Add(fds[0], protocol.EventRead))
	require.NoError(t, m.Update(fds[0], protocol.EventWrite))

	flags, ok := m.Flags(fds[0])
	require.True(t, ok)
	require.Equal(t, protocol.EventWrite, flags)

	ready, _, err := m.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.True(t, ready[0].Events.Has(protocol.EventWrite))

	require.ErrorIs(t, m.Update(fds[0], protocol.EventNone), protocol.ErrInvalidFlags)

	require.NoError(t, m.Remove(fds[0], protocol.EventWrite))
	require.Zero(t, m.Registered())
	require.ErrorIs(t, m.Remove(fds[0], protocol.EventWrite), protocol.ErrInvalidDescriptor)
	require.ErrorIs(t, m.Update(fds[0], protocol.EventRead), protocol.ErrInvalidDescriptor)
}

func TestAddRejects(t *testing.T) {
	m := newMux(t, 1)
	a := socketPair(t)
	b := socketPair(t)

	require.ErrorIs(t, m.Add(-1, protocol.EventRead), protocol.ErrInvalidDescriptor)
	require.ErrorIs(t, m.Add(a[0], protocol.EventErr), protocol.ErrInvalidFlags)
	require.NoError(t, m.Add(a[0], protocol.EventRead))
	require.ErrorIs(t, m.Add(a[0], protocol.EventWrite), protocol.ErrInvalidDescriptor)
	require.ErrorIs(t, m.Add(b[0], protocol.EventRead), protocol.ErrMuxCapacity)
	require.Equal(t, 1, m.Registered())
}

func TestClose(t *testing.T) {
	m, err := New(4)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Close(), protocol.ErrClosed)
	_, _, err = m.Wait(0)
	require.ErrorIs(t, err, protocol.ErrClosed)
}

func TestToMillis(t *testing.T) {
	for in, want := range map[time.Duration]int{
		-time.Second:            -1,
		0:                       0,
		time.Nanosecond:         1,
		time.Millisecond:        1,
		1500 * time.Microsecond: 2,
		time.Second:             1000,
	} {
		require.Equal(t, want, toMillis(in), in.String())
	}
}
