package connect

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zput/zput_reactor/net/codec"
	"github.com/zput/zput_reactor/net/event_loop"
	"github.com/zput/zput_reactor/net/iobuf"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

const (
	ping uint16 = 1
	pong uint16 = 2
)

// pair returns a connection over one end of a socket pair and the raw
// peer descriptor. The connection closes its own end.
func pair(t *testing.T, loop *event_loop.EventLoop, opts ...protocol.Option) (*Connect, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() { _ = unix.Close(fds[1]) })

	c, err := New(loop, fds[0], &unix.SockaddrUnix{Name: "peer"}, protocol.NewOptions(opts...))
	require.NoError(t, err)
	return c, fds[1]
}

func newLoop(t *testing.T) *event_loop.EventLoop {
	loop, err := event_loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

func readAll(t *testing.T, fd int) []byte {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if n <= 0 || err != nil {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func TestBadVersionClosesWithoutDispatch(t *testing.T) {
	loop := newLoop(t)
	c, peer := pair(t, loop)
	var calls, closed int
	c.SetMessageCallback(func(*Connect, *iobuf.Buffer) error {
		calls++
		return nil
	})
	c.SetConnectCloseCallback(func(*Connect) { closed++ })
	require.NoError(t, c.ConnectedHandle())
	require.Equal(t, "peer", c.PeerAddr())

	// header only, so nothing is left unread when our end closes
	msg := codec.Encode(ping, nil)
	msg[0] = 7
	_, err := unix.Write(peer, msg)
	require.NoError(t, err)

	require.NoError(t, loop.Run(2*time.Second))
	require.Zero(t, calls)
	require.Equal(t, 1, closed)
	require.Equal(t, Disconnected, c.State())
	require.False(t, c.Event().Valid())
	require.Zero(t, loop.Cascade().Users(c))

	// our end is closed: the peer reads EOF
	n, err := unix.Read(peer, make([]byte, 1))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestChunkedMessageDispatchedOnce(t *testing.T) {
	loop := newLoop(t)
	c, peer := pair(t, loop)

	payload := make([]byte, 1000)
	rand.New(rand.NewSource(1)).Read(payload)
	msg := codec.Encode(ping, payload)

	var got [][]byte
	c.SetMessageCallback(func(c *Connect, buf *iobuf.Buffer) error {
		got = append(got, append([]byte(nil), buf.Bytes()...))
		loop.Terminate()
		return buf.Release()
	})
	require.NoError(t, c.ConnectedHandle())

	// the writer feeds the message 7 bytes at a time through a timer
	var off int
	writer, err := loop.NewTimer(time.Millisecond, event_loop.HandlerFunc(func(ev *event_loop.Event, _ protocol.EventType) error {
		end := off + 7
		if end > len(msg) {
			end = len(msg)
		}
		n, err := unix.Write(peer, msg[off:end])
		if err != nil {
			return err
		}
		if off += n; off < len(msg) {
			return ev.Add()
		}
		return nil
	}), nil)
	require.NoError(t, err)
	require.NoError(t, writer.Add())

	require.NoError(t, loop.Run(10*time.Second))
	require.Len(t, got, 1)
	require.True(t, bytes.Equal(msg, got[0]))
	require.EqualValues(t, len(msg), c.TotalReceived())
	require.Equal(t, AwaitingHeader, c.FrameState())
	require.Greater(t, c.Count(), int64(2))
}

func TestPingPongDestroyAfterSend(t *testing.T) {
	loop := newLoop(t)
	c, peer := pair(t, loop)

	var echoed *iobuf.Buffer
	var completed int
	c.SetMessageCallback(func(c *Connect, buf *iobuf.Buffer) error {
		if err := codec.SetType(buf.Bytes(), pong); err != nil {
			return err
		}
		if err := buf.Rewind(); err != nil {
			return err
		}
		buf.SetDestroyAfterSend(true)
		echoed = buf
		return c.Send(buf)
	})
	c.SetWriteCompleteCallback(func(c *Connect) {
		completed++
		loop.Terminate()
	})
	require.NoError(t, c.ConnectedHandle())

	_, err := unix.Write(peer, codec.Encode(ping, []byte("are you there")))
	require.NoError(t, err)
	require.NoError(t, loop.Run(2*time.Second))

	require.Equal(t, 1, completed)
	require.NotNil(t, echoed)
	require.True(t, echoed.Released())
	require.False(t, c.Event().IsWriting())

	reply := readAll(t, peer)
	h, err := codec.Decode(reply)
	require.NoError(t, err)
	require.Equal(t, pong, h.Type)
	require.Equal(t, "are you there", string(reply[codec.HeaderSize:]))
	require.EqualValues(t, len(reply), c.TotalSent())
}

func TestConsumerErrorTearsDown(t *testing.T) {
	loop := newLoop(t)
	c, peer := pair(t, loop)
	var kept *iobuf.Buffer
	c.SetMessageCallback(func(c *Connect, buf *iobuf.Buffer) error {
		kept = buf
		return protocol.ErrBadHeader
	})
	require.NoError(t, c.ConnectedHandle())

	_, err := unix.Write(peer, codec.Encode(ping, nil))
	require.NoError(t, err)
	require.NoError(t, loop.Run(2*time.Second))

	require.Equal(t, Disconnected, c.State())
	require.True(t, kept.Released())
}

func TestMessageTooLarge(t *testing.T) {
	loop := newLoop(t)
	c, peer := pair(t, loop, protocol.MaxMessageSize(64))
	var calls int
	c.SetMessageCallback(func(*Connect, *iobuf.Buffer) error {
		calls++
		return nil
	})
	require.NoError(t, c.ConnectedHandle())

	_, err := unix.Write(peer, codec.Encode(ping, make([]byte, 100)))
	require.NoError(t, err)
	require.NoError(t, loop.Run(2*time.Second))
	require.Zero(t, calls)
	require.Equal(t, Disconnected, c.State())
}

func TestReceiveBufferGrows(t *testing.T) {
	loop := newLoop(t)
	c, peer := pair(t, loop, protocol.RecvBufferSize(16))
	var size int
	c.SetMessageCallback(func(c *Connect, buf *iobuf.Buffer) error {
		size = buf.Len()
		loop.Terminate()
		return buf.Release()
	})
	require.NoError(t, c.ConnectedHandle())

	_, err := unix.Write(peer, codec.Encode(ping, make([]byte, 500)))
	require.NoError(t, err)
	require.NoError(t, loop.Run(2*time.Second))
	require.Equal(t, 508, size)
}

func TestIdleTimeoutCloses(t *testing.T) {
	loop := newLoop(t)
	c, _ := pair(t, loop, protocol.IdleTime(50*time.Millisecond))
	c.SetMessageCallback(func(*Connect, *iobuf.Buffer) error { return nil })
	closed := make(chan time.Time, 1)
	c.SetConnectCloseCallback(func(*Connect) {
		closed <- time.Now()
		loop.Terminate()
	})

	start := time.Now()
	require.NoError(t, c.ConnectedHandle())
	require.NoError(t, loop.Run(2*time.Second))

	select {
	case at := <-closed:
		require.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	default:
		t.Fatal("idle connection was not closed")
	}
}

func TestCloseDestroysOwnedEvents(t *testing.T) {
	loop := newLoop(t)
	c, _ := pair(t, loop)
	require.NoError(t, c.ConnectedHandle())

	keepalive, err := loop.NewTimer(time.Second, event_loop.HandlerFunc(func(*event_loop.Event, protocol.EventType) error {
		return nil
	}), c)
	require.NoError(t, err)
	require.NoError(t, c.Own(keepalive))
	require.NoError(t, keepalive.Add())
	require.Equal(t, 2, loop.EventCount())
	require.Equal(t, 2, loop.Cascade().Users(c))

	require.NoError(t, c.Close())
	require.Zero(t, loop.EventCount())
	require.Zero(t, loop.Registered())
	require.False(t, keepalive.Valid())
	require.False(t, c.Valid())
	require.ErrorIs(t, c.Close(), protocol.ErrConnectionClosed)
	require.ErrorIs(t, c.Write([]byte("late")), protocol.ErrConnectionClosed)
}

func TestReceiveContract(t *testing.T) {
	loop := newLoop(t)
	c, _ := pair(t, loop)
	require.NoError(t, c.ConnectedHandle())
	defer c.Close()

	require.ErrorIs(t, c.Receive(8, nil, nil), protocol.ErrNoCallback)
	require.ErrorIs(t, c.Receive(0, func([]byte) (int, error) { return 0, nil },
		func(*Connect, *iobuf.Buffer) error { return nil }), protocol.ErrInvalidAmount)
}

// 10MB sent 497 bytes per writable event; the peer reads into one 10MB buffer.
func TestLargeTransferInSmallChunks(t *testing.T) {
	const total = 10 << 20
	loop := newLoop(t)
	c, peer := pair(t, loop)
	c.SetMessageCallback(func(*Connect, *iobuf.Buffer) error { return nil })
	require.NoError(t, c.ConnectedHandle())
	c.OutQueue().SetChunkSize(497)

	src := make([]byte, total)
	rand.New(rand.NewSource(2)).Read(src)
	require.NoError(t, c.Send(iobuf.FromBytes(src)))

	dst := iobuf.New(total)
	reader, err := loop.NewDescriptor(peer, protocol.EventRead, 0, event_loop.HandlerFunc(func(ev *event_loop.Event, _ protocol.EventType) error {
		if _, err := iobuf.Recv(ev.GetFd(), dst, dst.Free()); err != nil {
			return err
		}
		if dst.Len() == total {
			loop.Terminate()
			return nil
		}
		return ev.Add()
	}), nil)
	require.NoError(t, err)
	require.NoError(t, reader.Add())

	require.NoError(t, loop.Run(60*time.Second))
	require.EqualValues(t, total, dst.Len())
	require.EqualValues(t, total, dst.Total())
	require.EqualValues(t, total, c.TotalSent())
	require.True(t, bytes.Equal(src, dst.Bytes()))
	require.Zero(t, c.OutQueue().Len())
}
