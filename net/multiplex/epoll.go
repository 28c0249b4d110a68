//go:build linux

package multiplex

import (
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

// epoll 状态
type poller struct {
	wakeEventFd int // 用户唤醒的作用file describe
	waitEvents  []unix.EpollEvent
}

func (this *Multiplex) open() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	wakeEventFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	err = unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, wakeEventFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeEventFd),
	})
	if err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(wakeEventFd)
		return err
	}
	this.fd = fd
	this.wakeEventFd = wakeEventFd
	this.waitEvents = make([]unix.EpollEvent, protocol.WaitEventsNumber)
	return nil
}

func epollEvents(eventType protocol.EventType) (events uint32) {
	if eventType&protocol.EventRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	}
	if eventType&protocol.EventWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return
}

func (this *Multiplex) ctlAdd(fd int, eventType protocol.EventType) error {
	return unix.EpollCtl(this.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: epollEvents(eventType),
		Fd:     int32(fd),
	})
}

func (this *Multiplex) ctlDel(fd int, _ protocol.EventType) error {
	return unix.EpollCtl(this.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (this *Multiplex) poll(msec int) (int, error) {
	n, err := unix.EpollWait(this.fd, this.waitEvents, msec)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		ev := this.waitEvents[i]
		fd := int(ev.Fd)
		if fd == this.wakeEventFd {
			this.wakeHandlerRead()
			continue
		}
		var rEvents protocol.EventType
		if ev.Events&unix.EPOLLHUP != 0 && ev.Events&unix.EPOLLIN == 0 {
			rEvents |= protocol.EventClose
		}
		if ev.Events&unix.EPOLLERR != 0 {
			rEvents |= protocol.EventErr
		}
		if ev.Events&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
			rEvents |= protocol.EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			rEvents |= protocol.EventWrite
		}
		this.ready = append(this.ready, Ready{Fd: fd, Events: rEvents})
	}
	if n == len(this.waitEvents) {
		this.waitEvents = make([]unix.EpollEvent, n*2)
	}
	return n, nil
}

var wakeBytes = []byte{1, 0, 0, 0, 0, 0, 0, 0}

// 唤醒 epoll
func (this *Multiplex) wake() error {
	_, err := unix.Write(this.wakeEventFd, wakeBytes)
	if err == unix.EAGAIN {
		// counter saturated, a wake is already pending
		return nil
	}
	return err
}

func (this *Multiplex) wakeHandlerRead() {
	var buf [8]byte
	n, err := unix.Read(this.wakeEventFd, buf[:])
	if err != nil || n != 8 {
		log.Errorf("wakeHandlerRead; n[%d] error[%v]", n, err)
	}
	this.drainWakeCh()
}

func (this *Multiplex) close() error {
	err := unix.Close(this.fd)
	_ = unix.Close(this.wakeEventFd)
	return err
}
