package tcpconnect

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/connect"
	"github.com/zput/zput_reactor/net/event_loop"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

// OnConnectedCallback reports the outcome of a Dial exactly once: a
// scheduled connection, or the error that ended the attempt.
type OnConnectedCallback func(c *connect.Connect, err error)

// TcpConnect 主动发起的TCP连接
type TcpConnect struct {
	loop     *event_loop.EventLoop
	event    *event_loop.Event
	options  *protocol.Options
	callback OnConnectedCallback

	fd      int
	sa      unix.Sockaddr
	address string
	state   connect.ConnectState
}

// Dial starts a non-blocking connect to the address in options. Write
// readiness completes it; a positive timeout bounds the wait. Loop
// goroutine only.
func Dial(loop *event_loop.EventLoop, options *protocol.Options, timeout time.Duration, callback OnConnectedCallback) (*TcpConnect, error) {
	if callback == nil {
		return nil, errors.Wrap(protocol.ErrNoCallback, "dial")
	}
	option := options.GetNet()
	sa, domain, err := resolve(option.Network, option.Address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, errors.Wrap(err, "socket")
	}
	unix.CloseOnExec(fd)
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(err, "fd[%d] set nonblock", fd)
	}

	var tcpConnect = TcpConnect{
		loop:     loop,
		options:  options,
		callback: callback,
		fd:       fd,
		sa:       sa,
		address:  option.Address,
		state:    connect.Connecting,
	}
	if err = unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		log.Debugf("connect %s; error[%v]", option.Address, err)
		return nil, errors.Wrapf(err, "connect %s", option.Address)
	}

	tcpConnect.event, err = loop.NewDescriptor(fd, protocol.EventWrite, timeout, &tcpConnect, nil)
	if err == nil {
		err = tcpConnect.event.Add()
	}
	if err != nil {
		if tcpConnect.event.Valid() {
			_ = tcpConnect.event.Destroy()
		}
		_ = unix.Close(fd)
		return nil, err
	}
	log.Debugf("fd[%d] connecting to %s; timeout[%v]", fd, option.Address, timeout)
	return &tcpConnect, nil
}

func resolve(network, address string) (unix.Sockaddr, int, error) {
	addr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "resolve %s", address)
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		return sa, unix.AF_INET6, nil
	}
	return nil, 0, errors.Errorf("resolve %s: no ip address", address)
}

// HandleEvent finishes the connect on write readiness or fails it on
// timeout.
func (this *TcpConnect) HandleEvent(ev *event_loop.Event, revents protocol.EventType) error {
	if revents.Has(protocol.EventTimeout) {
		this.fail(errors.Wrapf(protocol.ErrConnectTimeout, "connect %s after %v", this.address, ev.Timeout()))
		return nil
	}
	soErr, err := unix.GetsockoptInt(this.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		this.fail(errors.Wrapf(err, "fd[%d] getsockopt", this.fd))
		return nil
	}
	if soErr != 0 {
		this.fail(errors.Wrapf(unix.Errno(soErr), "connect %s", this.address))
		return nil
	}

	_ = ev.Destroy()
	this.state = connect.Connected
	c, err := connect.New(this.loop, this.fd, this.sa, this.options)
	if err != nil {
		this.state = connect.Disconnected
		this.callback(nil, err)
		return nil
	}
	if err = c.ConnectedHandle(); err != nil {
		_ = c.Close()
		this.state = connect.Disconnected
		this.callback(nil, err)
		return nil
	}
	log.Infof("fd[%d] connected to %s", this.fd, this.address)
	this.callback(c, nil)
	return nil
}

func (this *TcpConnect) fail(err error) {
	log.Warnf("fd[%d] %v", this.fd, err)
	if this.event.Valid() {
		_ = this.event.Destroy()
	}
	if cerr := unix.Close(this.fd); cerr != nil {
		log.Errorf("fd[%d] close; error[%v]", this.fd, cerr)
	}
	this.state = connect.Disconnected
	this.callback(nil, err)
}

// Close abandons a pending connect; the callback sees ErrConnectionClosed.
// Loop goroutine only.
func (this *TcpConnect) Close() error {
	if this.state != connect.Connecting {
		return protocol.ErrConnectionClosed
	}
	this.fail(errors.Wrapf(protocol.ErrConnectionClosed, "connect %s abandoned", this.address))
	return nil
}

func (this *TcpConnect) Fd() int {
	return this.fd
}

func (this *TcpConnect) State() connect.ConnectState {
	return this.state
}

func (this *TcpConnect) Address() string {
	return this.address
}
