package tcpconnect

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zput/zput_reactor/net/codec"
	"github.com/zput/zput_reactor/net/connect"
	"github.com/zput/zput_reactor/net/event_loop"
	"github.com/zput/zput_reactor/net/iobuf"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

func newLoop(t *testing.T) *event_loop.EventLoop {
	loop, err := event_loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

// echoServer copies every accepted stream back to its sender.
func echoServer(t *testing.T) net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				_, _ = io.Copy(conn, conn)
				_ = conn.Close()
			}()
		}
	}()
	return ln
}

func TestDialAndExchange(t *testing.T) {
	loop := newLoop(t)
	ln := echoServer(t)

	var got string
	var dialErr error
	tc, err := Dial(loop, protocol.NewOptions(protocol.Address(ln.Addr().String())), time.Second,
		func(c *connect.Connect, err error) {
			if err != nil {
				dialErr = err
				loop.Terminate()
				return
			}
			c.SetMessageCallback(func(c *connect.Connect, buf *iobuf.Buffer) error {
				got = string(buf.Bytes()[codec.HeaderSize:])
				_ = buf.Release()
				loop.Terminate()
				return c.Close()
			})
			if err := c.Write(codec.Encode(1, []byte("over tcp"))); err != nil {
				dialErr = err
				loop.Terminate()
			}
		})
	require.NoError(t, err)
	assert.Equal(t, connect.Connecting, tc.State())

	require.NoError(t, loop.Run(5*time.Second))
	require.NoError(t, dialErr)
	assert.Equal(t, "over tcp", got)
	assert.Equal(t, connect.Connected, tc.State())
}

func TestDialRefused(t *testing.T) {
	loop := newLoop(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := ln.Addr().String()
	require.NoError(t, ln.Close())

	var calls int
	var dialErr error
	tc, err := Dial(loop, protocol.NewOptions(protocol.Address(address)), time.Second,
		func(c *connect.Connect, err error) {
			calls++
			dialErr = err
			assert.Nil(t, c)
		})
	if err != nil {
		// refused before the descriptor was scheduled
		assert.True(t, errors.Is(err, unix.ECONNREFUSED), "%v", err)
		return
	}
	require.NoError(t, loop.Run(5*time.Second))
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(dialErr, unix.ECONNREFUSED), "%v", dialErr)
	assert.Equal(t, connect.Disconnected, tc.State())
	assert.Zero(t, loop.Registered())
}

func TestDialTimeout(t *testing.T) {
	loop := newLoop(t)
	var dialErr error
	start := time.Now()
	_, err := Dial(loop, protocol.NewOptions(protocol.Address("10.255.255.1:9")), 100*time.Millisecond,
		func(c *connect.Connect, err error) { dialErr = err })
	if err != nil {
		t.Skipf("no route for a black-holed connect: %v", err)
	}
	require.NoError(t, loop.Run(5*time.Second))
	if !errors.Is(dialErr, protocol.ErrConnectTimeout) {
		t.Skipf("connect ended before the timeout: %v", dialErr)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestCloseAbandonsDial(t *testing.T) {
	loop := newLoop(t)
	var dialErr error
	tc, err := Dial(loop, protocol.NewOptions(protocol.Address("10.255.255.1:9")), 0,
		func(c *connect.Connect, err error) { dialErr = err })
	if err != nil {
		t.Skipf("no route for a black-holed connect: %v", err)
	}
	require.NoError(t, tc.Close())
	assert.ErrorIs(t, dialErr, protocol.ErrConnectionClosed)
	assert.ErrorIs(t, tc.Close(), protocol.ErrConnectionClosed)
	assert.False(t, tc.event.Valid())
	assert.Zero(t, loop.EventCount())
}

func TestDialRejectsNilCallback(t *testing.T) {
	loop := newLoop(t)
	_, err := Dial(loop, protocol.NewOptions(), time.Second, nil)
	assert.ErrorIs(t, err, protocol.ErrNoCallback)
}
