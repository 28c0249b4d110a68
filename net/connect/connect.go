package connect

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/codec"
	"github.com/zput/zput_reactor/net/event_loop"
	"github.com/zput/zput_reactor/net/iobuf"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

// MessageFunc consumes one complete message. It owns buf: release it, or
// queue it (usually with SetDestroyAfterSend) to have the sender release it.
type MessageFunc func(c *Connect, buf *iobuf.Buffer) error

// SizeFunc returns the total message length declared by a header.
type SizeFunc func(header []byte) (int, error)

type OnConnectCloseCallback func(*Connect)
type OnWriteCompletCallback func(*Connect)

type ConnectState int

const (
	Disconnected  ConnectState = 1
	Connecting    ConnectState = 2
	Connected     ConnectState = 3
	Disconnecting ConnectState = 4
)

func (this ConnectState) String() string {
	switch this {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	}
	return "state(" + strconv.Itoa(int(this)) + ")"
}

// Connection TCP 连接
type Connect struct {
	loop  *event_loop.EventLoop
	event *event_loop.Event

	fd       int
	peerAddr string
	state    ConnectState

	framer
	outQueue *iobuf.Queue
	codeImp  protocol.ICodec

	messageCallback       MessageFunc
	connectCloseCallback  []OnConnectCloseCallback
	writeCompleteCallback OnWriteCompletCallback

	count   int64 // readiness dispatches handled
	context interface{}
}

// New 创建 Connection. The descriptor is switched to non-blocking mode; it
// is closed on failure.
func New(loop *event_loop.EventLoop, fd int, sa unix.Sockaddr, options *protocol.Options) (*Connect, error) {
	var tcpConnection = Connect{
		loop:     loop,
		fd:       fd,
		peerAddr: sockAddrToString(sa),
		state:    Disconnected,
		codeImp:  options.GetCode(),
		framer: framer{
			recvBufferSize: options.RecvBufferSize,
			maxMessageSize: options.MaxMessageSize,
		},
	}
	if tcpConnection.codeImp == nil {
		tcpConnection.codeImp = codec.New(options.MaxMessageSize)
	}

	if err := tcpConnection.setNonblock(); err != nil {
		return nil, err
	}

	var err error
	tcpConnection.event, err = loop.NewDescriptor(fd, protocol.EventRead, options.IdleTime, &tcpConnection, nil)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	tcpConnection.outQueue = iobuf.NewQueue(tcpConnection.event)
	return &tcpConnection, nil
}

func (this *Connect) setNonblock() (err error) {
	if err = unix.SetNonblock(this.fd, true); err != nil {
		_ = unix.Close(this.fd)
		log.Errorf("fd[%d] set nonblock; error[%v]", this.fd, err)
		return errors.Wrapf(err, "fd[%d] set nonblock", this.fd)
	}
	return nil
}

func (this *Connect) SetMessageCallback(messageCallback MessageFunc) {
	this.messageCallback = messageCallback
}

// SetConnectCloseCallback adds a hook run on teardown, before the
// descriptor is closed. Hooks run in the order they were added.
func (this *Connect) SetConnectCloseCallback(connectCloseCallback OnConnectCloseCallback) {
	this.connectCloseCallback = append(this.connectCloseCallback, connectCloseCallback)
}

// SetWriteCompleteCallback runs each time the outbound queue drains.
func (this *Connect) SetWriteCompleteCallback(writeCompletCallback OnWriteCompletCallback) {
	this.writeCompleteCallback = writeCompletCallback
}

func (this *Connect) SetCodec(codeImp protocol.ICodec) {
	this.codeImp = codeImp
}

// ConnectedHandle schedules the connection event and owns it, so that
// tearing the connection down destroys it.
func (this *Connect) ConnectedHandle() error {
	if err := this.Own(this.event); err != nil {
		return err
	}
	if err := this.event.Add(); err != nil {
		log.Errorf("fd[%d] creating tcpConnect failure; AddEvent; error[%v]", this.fd, err)
		return err
	}
	this.state = Connected
	log.Debugf("fd[%d] peer[%s] connected", this.fd, this.peerAddr)
	return nil
}

// Own ties ev to the lifetime of the connection.
func (this *Connect) Own(ev *event_loop.Event) error {
	return this.loop.Cascade().Register(this, ev)
}

// Valid reports whether callbacks may still run against the connection.
func (this *Connect) Valid() bool {
	return this.state != Disconnected
}

// HandleEvent re-arms the connection event, then drains one outbound
// buffer on write readiness and feeds the framer on read readiness.
func (this *Connect) HandleEvent(ev *event_loop.Event, revents protocol.EventType) error {
	if revents.Has(protocol.EventTimeout) {
		log.Infof("fd[%d] peer[%s] idle for %v, closing", this.fd, this.peerAddr, ev.Timeout())
		return this.Close()
	}
	if err := ev.Add(); err != nil {
		this.teardown(err)
		return err
	}
	this.count++

	if revents.Has(protocol.EventWrite) {
		if err := this.DrainOne(); err != nil {
			return err
		}
	}
	if this.state == Disconnected {
		return nil
	}
	if revents&(protocol.EventRead|protocol.EventErr|protocol.EventClose) != protocol.EventNone {
		if this.messageCallback == nil {
			log.Errorf("fd[%d] readable but no message callback", this.fd)
			this.teardown(protocol.ErrNoCallback)
			return protocol.ErrNoCallback
		}
		return this.Receive(this.codeImp.HeaderSize(), this.codeImp.MessageSize, this.messageCallback)
	}
	return nil
}

// Send queues buf for writing. The queue owns buf until fully sent.
func (this *Connect) Send(buf *iobuf.Buffer) error {
	if this.state != Connected {
		return protocol.ErrConnectionClosed
	}
	return this.outQueue.Enqueue(buf)
}

// Write queues a copy of data.
func (this *Connect) Write(data []byte) error {
	buf := iobuf.FromBytes(data)
	buf.SetDestroyAfterSend(true)
	if err := this.Send(buf); err != nil {
		_ = buf.Release()
		return err
	}
	return nil
}

// WriteInSelfLoop 用来在非 loop 协程发送
func (this *Connect) WriteInSelfLoop(data []byte) error {
	if this.state != Connected {
		return protocol.ErrConnectionClosed
	}
	p := append([]byte(nil), data...)
	this.loop.RunInLoop(func() {
		if err := this.Write(p); err != nil {
			log.Errorf("fd[%d] write in loop; error[%v]", this.fd, err)
		}
	})
	return nil
}

// DrainOne writes once from the outbound queue. A transport error tears the
// connection down.
func (this *Connect) DrainOne() error {
	had := this.outQueue.Len()
	_, err := this.outQueue.DrainOne(this.fd)
	if err != nil {
		log.Errorf("fd[%d] sender; error[%v]", this.fd, err)
		this.teardown(err)
		return err
	}
	if had > 0 && this.outQueue.Len() == 0 {
		if this.state == Disconnecting {
			return this.shutdown()
		}
		if this.writeCompleteCallback != nil {
			this.writeCompleteCallback(this)
		}
	}
	return nil
}

// Close tears the connection down now. Loop goroutine only.
func (this *Connect) Close() error {
	if this.state == Disconnected {
		return protocol.ErrConnectionClosed
	}
	this.teardown(nil)
	return nil
}

// CloseInLoop asks the loop to close the connection; safe from any goroutine.
func (this *Connect) CloseInLoop() error {
	if this.state == Disconnected {
		return protocol.ErrConnectionClosed
	}
	this.loop.RunInLoop(func() {
		_ = this.Close()
	})
	return nil
}

// teardown releases the inbound buffer, drops queued output, destroys every
// event the connection owns, runs the close hooks and closes the socket.
func (this *Connect) teardown(reason error) {
	if this.state == Disconnected {
		return
	}
	log.Debugf("fd[%d] peer[%s] closing; reason[%v]", this.fd, this.peerAddr, reason)
	this.state = Disconnected

	this.framer.discard()
	if n := this.outQueue.Discard(); n > 0 {
		log.Debugf("fd[%d] dropped %d queued buffers", this.fd, n)
	}
	if this.event.Valid() && this.loop.Cascade().Users(this) == 0 {
		// never handed to ConnectedHandle
		_ = this.event.Destroy()
	}
	this.loop.Cascade().DestroyUsers(this)

	for _, f := range this.connectCloseCallback {
		f(this)
	}
	if err := unix.Close(this.fd); err != nil {
		log.Errorf("fd[%d] close; error[%v]", this.fd, err)
	}
}

// ShutdownWrite 关闭可写端; queued output is flushed first.
func (this *Connect) ShutdownWrite() error {
	if this.state != Connected {
		return nil
	}
	this.state = Disconnecting
	if this.outQueue.Len() > 0 {
		return nil
	}
	return this.shutdown()
}

func (this *Connect) shutdown() error {
	if err := unix.Shutdown(this.fd, unix.SHUT_WR); err != nil {
		return errors.Wrapf(err, "fd[%d] shutdown", this.fd)
	}
	return nil
}

func (this *Connect) Fd() int {
	return this.fd
}

func (this *Connect) Event() *event_loop.Event {
	return this.event
}

func (this *Connect) Loop() *event_loop.EventLoop {
	return this.loop
}

func (this *Connect) State() ConnectState {
	return this.state
}

// PeerAddr 获取客户端地址信息
func (this *Connect) PeerAddr() string {
	return this.peerAddr
}

func (this *Connect) TotalReceived() int64 {
	return this.totalReceived
}

func (this *Connect) TotalSent() int64 {
	return this.outQueue.TotalSent()
}

// Count is the number of readiness dispatches handled.
func (this *Connect) Count() int64 {
	return this.count
}

func (this *Connect) OutQueue() *iobuf.Queue {
	return this.outQueue
}

func (this *Connect) Context() interface{} {
	return this.context
}

func (this *Connect) SetContext(ctx interface{}) {
	this.context = ctx
}

func sockAddrToString(sa unix.Sockaddr) string {
	switch sa := (sa).(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	case *unix.SockaddrUnix:
		return sa.Name
	default:
		return fmt.Sprintf("(unknown - %T)", sa)
	}
}
