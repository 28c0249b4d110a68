//go:build darwin || netbsd || freebsd || dragonfly

package multiplex

import (
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

// kqueue 状态; ident 0 of EVFILT_USER is the wake trigger
type poller struct {
	waitEvents []unix.Kevent_t
	index      map[int]int // fd -> position in ready, read and write arrive separately
}

func (this *Multiplex) open() error {
	fd, err := unix.Kqueue()
	if err != nil {
		return err
	}
	_, err = unix.Kevent(fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	this.fd = fd
	this.waitEvents = make([]unix.Kevent_t, protocol.WaitEventsNumber)
	this.index = make(map[int]int)
	return nil
}

func (this *Multiplex) kEvents(old protocol.EventType, new protocol.EventType, fd int) (ret []unix.Kevent_t) {
	if new&protocol.EventRead != 0 {
		if old&protocol.EventRead == 0 {
			ret = append(ret, unix.Kevent_t{Ident: uint64(fd), Flags: unix.EV_ADD, Filter: unix.EVFILT_READ})
		}
	} else if old&protocol.EventRead != 0 {
		ret = append(ret, unix.Kevent_t{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_READ})
	}

	if new&protocol.EventWrite != 0 {
		if old&protocol.EventWrite == 0 {
			ret = append(ret, unix.Kevent_t{Ident: uint64(fd), Flags: unix.EV_ADD, Filter: unix.EVFILT_WRITE})
		}
	} else if old&protocol.EventWrite != 0 {
		ret = append(ret, unix.Kevent_t{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_WRITE})
	}
	return
}

func (this *Multiplex) ctlAdd(fd int, eventType protocol.EventType) error {
	_, err := unix.Kevent(this.fd, this.kEvents(protocol.EventNone, eventType, fd), nil, nil)
	return err
}

func (this *Multiplex) ctlDel(fd int, eventType protocol.EventType) error {
	_, err := unix.Kevent(this.fd, this.kEvents(eventType, protocol.EventNone, fd), nil, nil)
	return err
}

func (this *Multiplex) poll(msec int) (int, error) {
	var timeout *unix.Timespec
	if msec >= 0 {
		ts := unix.NsecToTimespec(int64(msec) * 1e6)
		timeout = &ts
	}
	n, err := unix.Kevent(this.fd, nil, this.waitEvents, timeout)
	if err != nil {
		return 0, err
	}

	for k := range this.index {
		delete(this.index, k)
	}
	for i := 0; i < n; i++ {
		ev := this.waitEvents[i]
		if ev.Filter == unix.EVFILT_USER {
			this.drainWakeCh()
			continue
		}
		fd := int(ev.Ident)
		var rEvents protocol.EventType
		if ev.Flags&unix.EV_ERROR != 0 {
			rEvents |= protocol.EventErr
		}
		if ev.Flags&unix.EV_EOF != 0 {
			rEvents |= protocol.EventClose
		}
		if ev.Filter == unix.EVFILT_WRITE {
			rEvents |= protocol.EventWrite
		}
		if ev.Filter == unix.EVFILT_READ {
			rEvents |= protocol.EventRead
		}
		if pos, ok := this.index[fd]; ok {
			this.ready[pos].Events |= rEvents
			continue
		}
		this.index[fd] = len(this.ready)
		this.ready = append(this.ready, Ready{Fd: fd, Events: rEvents})
	}
	if n == len(this.waitEvents) {
		this.waitEvents = make([]unix.Kevent_t, n*2)
	}
	return n, nil
}

// 唤醒 kqueue
func (this *Multiplex) wake() error {
	_, err := unix.Kevent(this.fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return err
}

func (this *Multiplex) close() error {
	return unix.Close(this.fd)
}
