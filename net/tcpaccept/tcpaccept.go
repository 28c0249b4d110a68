package tcpaccept

import (
	"net"
	"os"

	reuseport "github.com/libp2p/go-reuseport"
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/connect"
	"github.com/zput/zput_reactor/net/event_loop"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

// OnNewConnectCallback runs once per accepted connection, after its event
// is scheduled and before any of its callbacks. An error closes the
// connection.
type OnNewConnectCallback func(c *connect.Connect) error

// TcpAccept 监听TCP连接
type TcpAccept struct {
	listener                   net.Listener
	aCopyOfTheUnderlyingOsFile *os.File
	loop                       *event_loop.EventLoop
	event                      *event_loop.Event
	options                    *protocol.Options
	filter                     protocol.AcceptFilter
	newConnectCallback         OnNewConnectCallback

	maxPeers int
	numPeers int
}

// New 创建TcpAccept. Peers are limited to options.MaxPeers, which must lie in
// [1, protocol.MaxPeers]; without an accept filter only loopback peers are
// let in.
func New(loop *event_loop.EventLoop, options *protocol.Options) (*TcpAccept, error) {
	if options.MaxPeers <= 0 || options.MaxPeers > protocol.MaxPeers {
		log.Debugf("max peers[%d] outside range", options.MaxPeers)
		return nil, errors.Wrapf(protocol.ErrInvalidMaxPeers, "max peers[%d]", options.MaxPeers)
	}
	option := options.GetNet()
	var (
		listener net.Listener
		err      error
	)
	if option.ReusePort {
		listener, err = reuseport.Listen(option.Network, option.Address)
	} else {
		listener, err = net.Listen(option.Network, option.Address)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s[%s]", option.Network, option.Address)
	}
	var tcpAccept = TcpAccept{
		listener: listener,
		loop:     loop,
		options:  options,
		filter:   options.GetAcceptFilter(),
		maxPeers: options.MaxPeers,
	}
	if tcpAccept.filter == nil {
		tcpAccept.filter = FilterLocalhost
	}

	//从listener中得到FD填充到TcpAccept.
	if err = tcpAccept.setFd(); err != nil {
		_ = listener.Close()
		return nil, err
	}
	log.Debugf("created listen fd[%d]; in tcp accept", tcpAccept.Fd())

	//新建Tcp Accept event.
	tcpAccept.event, err = loop.NewDescriptor(tcpAccept.Fd(), protocol.EventRead, 0,
		event_loop.HandlerFunc(tcpAccept.AcceptHandle), &tcpAccept)
	if err != nil {
		tcpAccept.closeListener()
		return nil, err
	}
	return &tcpAccept, nil
}

// Listen schedules the accept event. Loop goroutine only.
func (this *TcpAccept) Listen() error {
	log.Debugf("listening; in tcp accept activity; FD(%d)", this.Fd())
	return this.event.Add()
}

// Close TcpAccept. Connections already accepted are left alone. Loop
// goroutine only, or after the loop has returned.
func (this *TcpAccept) Close() error {
	if this.event.Valid() {
		if err := this.event.Destroy(); err != nil {
			log.Errorf("close; destroy accept event; error[%v]", err)
		}
	}
	this.closeListener()
	return nil
}

func (this *TcpAccept) closeListener() {
	if this.aCopyOfTheUnderlyingOsFile != nil {
		_ = this.aCopyOfTheUnderlyingOsFile.Close()
		this.aCopyOfTheUnderlyingOsFile = nil
	}
	if err := this.listener.Close(); err != nil {
		log.Debugf("[Listener] close; error[%v] ", err)
	}
}

func (this *TcpAccept) setFd() error {
	tcpListener, ok := this.listener.(*net.TCPListener)
	if !ok {
		return errors.New("could not get file descriptor")
	}
	file, err := tcpListener.File()
	if err != nil {
		return err
	}
	this.aCopyOfTheUnderlyingOsFile = file
	//设置非阻塞
	if err = unix.SetNonblock(int(file.Fd()), true); err != nil {
		_ = file.Close()
		return err
	}
	// listen again on the bound socket to apply the configured backlog
	if err = unix.Listen(int(file.Fd()), this.options.GetNet().Backlog); err != nil {
		log.Warnf("fd[%d] backlog[%d]; error[%v]", file.Fd(), this.options.GetNet().Backlog, err)
	}
	return nil
}

func (this *TcpAccept) SetNewConnectCallback(newConnectCallback OnNewConnectCallback) {
	this.newConnectCallback = newConnectCallback
}

// AcceptHandle供event loop回调处理
func (this *TcpAccept) AcceptHandle(ev *event_loop.Event, _ protocol.EventType) error {
	if err := ev.Add(); err != nil {
		return err
	}

	nfd, sa, err := unix.Accept(this.Fd())
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		log.Errorf("accept; error[%v]", err)
		return errors.Wrap(err, "accept")
	}
	unix.CloseOnExec(nfd)
	peer := sockAddrString(sa)

	if this.numPeers >= this.maxPeers {
		_ = unix.Close(nfd)
		log.Warnf("rejected connection from %s (too many, max[%d])", peer, this.maxPeers)
		return errors.Wrapf(protocol.ErrTooManyPeers, "peer[%s]", peer)
	}
	if err = this.filter(sa); err != nil {
		_ = unix.Close(nfd)
		log.Warnf("rejected connection from %s (filtered)", peer)
		return errors.Wrapf(err, "peer[%s]", peer)
	}
	log.Infof("accepted connection from %s", peer)

	c, err := connect.New(this.loop, nfd, sa, this.options)
	if err != nil {
		return err
	}
	this.numPeers++
	c.SetConnectCloseCallback(this.decrementPeers)

	if err = c.ConnectedHandle(); err != nil {
		_ = c.Close()
		return err
	}
	if this.newConnectCallback != nil {
		if err = this.newConnectCallback(c); err != nil {
			log.Errorf("fd[%d] new connect callback; error[%v]", nfd, err)
			_ = c.Close()
			return err
		}
	}
	return nil
}

func (this *TcpAccept) decrementPeers(c *connect.Connect) {
	if this.numPeers <= 0 {
		log.Errorf("cannot decrement num peers[%d]", this.numPeers)
		return
	}
	this.numPeers--
	log.Debugf("fd[%d] closed; num peers[%d]", c.Fd(), this.numPeers)
}

// Fd TcpAccept fd
func (this *TcpAccept) Fd() int {
	return int(this.aCopyOfTheUnderlyingOsFile.Fd())
}

func (this *TcpAccept) Addr() net.Addr {
	return this.listener.Addr()
}

func (this *TcpAccept) Peers() int {
	return this.numPeers
}

func (this *TcpAccept) MaxPeers() int {
	return this.maxPeers
}
