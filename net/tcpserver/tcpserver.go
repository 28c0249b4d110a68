package tcpserver

import (
	"net"
	"time"

	"github.com/Allenxuxu/toolkit/sync/atomic"
	"github.com/RussellLuo/timingwheel"
	"github.com/zput/zput_reactor/net/connect"
	"github.com/zput/zput_reactor/net/event_loop"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
	"github.com/zput/zput_reactor/net/tcpaccept"
)

// TcpServer ties a listener, its connections and a housekeeping wheel to
// one event loop.
type TcpServer struct {
	options     *protocol.Options
	handleEvent IHandleEvent
	loop        *event_loop.EventLoop
	tcpAccept   *tcpaccept.TcpAccept
	connectPool map[*connect.Connect]struct{}

	timingWheel *timingwheel.TimingWheel
	started     atomic.Bool
	done        chan struct{}
}

func New(handleEvent IHandleEvent, opts ...protocol.Option) (*TcpServer, error) {
	var err error
	var tcpServer = TcpServer{
		handleEvent: handleEvent,
		options:     protocol.NewOptions(opts...),
		connectPool: make(map[*connect.Connect]struct{}),
		done:        make(chan struct{}),
	}

	tcpServer.loop, err = event_loop.New(opts...)
	if err != nil {
		log.Errorf("new loop error[%v]", err)
		return nil, err
	}

	//创建一个tcp accept
	tcpServer.tcpAccept, err = tcpaccept.New(tcpServer.loop, tcpServer.options)
	if err != nil {
		log.Errorf("new accept error[%v]", err)
		_ = tcpServer.loop.Close()
		return nil, err
	}

	//设置有连接到来后,的回调函数.
	tcpServer.tcpAccept.SetNewConnectCallback(tcpServer.newConnected)

	tcpServer.timingWheel = timingwheel.NewTimingWheel(tcpServer.options.GetTick(), tcpServer.options.GetWheelSize())
	return &tcpServer, nil
}

// Start 启动 Server; it blocks until Stop, or until maxDuration (when
// positive) has elapsed. Connections still open on return are closed.
func (this *TcpServer) Start(maxDuration time.Duration) error {
	if this.started.Get() {
		return protocol.ErrLoopRunning
	}
	this.started.Set(true)
	defer close(this.done)
	this.timingWheel.Start()
	defer this.timingWheel.Stop()

	if err := this.tcpAccept.Listen(); err != nil {
		this.shutdown()
		return err
	}
	log.Infof("listening on %s", this.tcpAccept.Addr())

	err := this.loop.Run(maxDuration)
	this.shutdown()
	return err
}

// 先关闭tcpaccept, connect，然后再关闭loop
func (this *TcpServer) shutdown() {
	if err := this.tcpAccept.Close(); err != nil {
		log.Error(err)
	}
	for c := range this.connectPool {
		if err := c.Close(); err != nil {
			log.Errorf("closed [%s] failure, error[%v]", c.PeerAddr(), err)
		}
	}
	if err := this.loop.Close(); err != nil {
		log.Error(err)
	}
}

// Stop 停止系统; safe from any goroutine. Once Start has been called it
// waits for Start to return; a Stop that comes first makes the next Start
// return right after listening.
func (this *TcpServer) Stop() {
	if err := this.loop.Stop(); err != nil {
		log.Debugf("stop; error[%v]", err)
	}
	if this.started.Get() {
		<-this.done
	}
}

// RunAfter 延时任务, run by the loop goroutine.
func (this *TcpServer) RunAfter(d time.Duration, f func()) *timingwheel.Timer {
	return this.timingWheel.AfterFunc(d, func() {
		this.loop.RunInLoop(f)
	})
}

// RunEvery 定时任务, run by the loop goroutine.
func (this *TcpServer) RunEvery(d time.Duration, f func()) *timingwheel.Timer {
	return this.timingWheel.ScheduleFunc(&protocol.EveryScheduler{Interval: d}, func() {
		this.loop.RunInLoop(f)
	})
}

func (this *TcpServer) newConnected(c *connect.Connect) error {
	log.Debugf("a connection[%s] is enter", c.PeerAddr())

	this.connectPool[c] = struct{}{}
	c.SetMessageCallback(this.handleEvent.MessageCallback)
	c.SetConnectCloseCallback(this.connectCloseEvent)
	c.SetWriteCompleteCallback(this.handleEvent.WriteCompletCallback)
	this.handleEvent.ConnectCallback(c)
	return nil
}

func (this *TcpServer) connectCloseEvent(c *connect.Connect) {
	delete(this.connectPool, c)
	this.handleEvent.ConnectCloseCallback(c)
}

func (this *TcpServer) Addr() net.Addr {
	return this.tcpAccept.Addr()
}

// Connections is the number of open connections. Loop goroutine only.
func (this *TcpServer) Connections() int {
	return len(this.connectPool)
}

func (this *TcpServer) Loop() *event_loop.EventLoop {
	return this.loop
}
