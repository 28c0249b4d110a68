// Package multiplex wraps the OS readiness primitive (epoll, kqueue).
//
// It counts registered descriptors so that a wait with nothing registered
// becomes a plain, wakeable sleep instead of a poll on an empty set.
package multiplex

import (
	"time"

	"github.com/Allenxuxu/toolkit/sync/atomic"
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

// Ready is one descriptor reported by Wait together with its returned flags.
type Ready struct {
	Fd     int
	Events protocol.EventType
}

type Multiplex struct {
	poller

	fd       int
	capacity int
	sockets  map[int]protocol.EventType // fd -> requested flags
	ready    []Ready
	wakeCh   chan struct{}
	running  atomic.Bool
}

// 创建Poller对象
func New(capacity int) (*Multiplex, error) {
	if capacity <= 0 {
		capacity = protocol.DefaultNumEvents
	}
	var m = Multiplex{
		capacity: capacity,
		sockets:  make(map[int]protocol.EventType),
		wakeCh:   make(chan struct{}, 1),
	}
	if err := m.open(); err != nil {
		return nil, errors.Wrap(err, "open multiplexer")
	}
	m.running.Set(true)
	return &m, nil
}

// Registered is the number of descriptors currently in the set.
func (this *Multiplex) Registered() int {
	return len(this.sockets)
}

func (this *Multiplex) Capacity() int {
	return this.capacity
}

// Flags returns the requested flags fd is registered with.
func (this *Multiplex) Flags(fd int) (protocol.EventType, bool) {
	flags, ok := this.sockets[fd]
	return flags, ok
}

func (this *Multiplex) Add(fd int, flags protocol.EventType) error {
	if fd < 0 {
		return errors.Wrapf(protocol.ErrInvalidDescriptor, "fd[%d]", fd)
	}
	if flags&(protocol.EventRead|protocol.EventWrite) == protocol.EventNone {
		return errors.Wrapf(protocol.ErrInvalidFlags, "fd[%d] flags[%v]", fd, flags)
	}
	if _, ok := this.sockets[fd]; ok {
		return errors.Wrapf(protocol.ErrInvalidDescriptor, "fd[%d] already registered", fd)
	}
	if len(this.sockets) >= this.capacity {
		return errors.Wrapf(protocol.ErrMuxCapacity, "fd[%d] capacity[%d]", fd, this.capacity)
	}
	if err := this.ctlAdd(fd, flags); err != nil {
		log.Errorf("add fd[%d] flags[%v]; error[%v]", fd, flags, err)
		return errors.Wrapf(err, "add fd[%d]", fd)
	}
	this.sockets[fd] = flags
	log.Debugf("added fd[%d] flags[%v]; registered[%d]", fd, flags, len(this.sockets))
	return nil
}

// Remove drops fd from the set. The flags registered with Add are the ones
// withdrawn; a mismatching flags argument is only logged.
func (this *Multiplex) Remove(fd int, flags protocol.EventType) error {
	old, ok := this.sockets[fd]
	if !ok {
		return errors.Wrapf(protocol.ErrInvalidDescriptor, "fd[%d] not registered", fd)
	}
	if flags != old {
		log.Debugf("remove fd[%d]; flags[%v] differ from registered[%v]", fd, flags, old)
	}
	delete(this.sockets, fd)
	if err := this.ctlDel(fd, old); err != nil {
		if err == unix.EBADF || err == unix.ENOENT {
			// already closed, the kernel dropped it for us
			log.Debugf("remove fd[%d]; already gone[%v]", fd, err)
			return nil
		}
		log.Errorf("remove fd[%d]; error[%v]", fd, err)
		return errors.Wrapf(err, "remove fd[%d]", fd)
	}
	log.Debugf("removed fd[%d]; registered[%d]", fd, len(this.sockets))
	return nil
}

// Update changes the requested flags of fd by removing and re-adding it.
func (this *Multiplex) Update(fd int, flags protocol.EventType) error {
	old, ok := this.sockets[fd]
	if !ok {
		return errors.Wrapf(protocol.ErrInvalidDescriptor, "fd[%d] not registered", fd)
	}
	if old == flags {
		return nil
	}
	if flags&(protocol.EventRead|protocol.EventWrite) == protocol.EventNone {
		return errors.Wrapf(protocol.ErrInvalidFlags, "fd[%d] flags[%v]", fd, flags)
	}
	log.Debugf("updating fd[%d] from[%v] to[%v]", fd, old, flags)
	if err := this.Remove(fd, old); err != nil {
		return err
	}
	return this.Add(fd, flags)
}

// Wait blocks up to timeout (negative means forever) and reports the ready
// descriptors and whether the wait ended by timing out. The returned slice
// is reused by the next Wait.
func (this *Multiplex) Wait(timeout time.Duration) ([]Ready, bool, error) {
	if !this.running.Get() {
		return nil, false, protocol.ErrClosed
	}
	this.ready = this.ready[:0]

	if len(this.sockets) == 0 {
		if timeout < 0 {
			log.Error("waiting forever on an empty set")
			return nil, false, protocol.ErrWaitForever
		}
		if timeout == 0 {
			log.Debug("timeout 0 and set empty, skipping wait")
			return nil, true, nil
		}
		woken := this.sleep(timeout)
		return nil, !woken, nil
	}

	msec := toMillis(timeout)
	var (
		n   int
		err error
	)
	for retry := 0; ; retry++ {
		n, err = this.poll(msec)
		if err != unix.EINTR {
			break
		}
		if retry >= protocol.MaxWaitRetries {
			log.Debugf("wait interrupted %d times", retry+1)
			return nil, false, errors.Wrap(protocol.ErrInterrupted, "wait")
		}
	}
	if err != nil {
		log.Errorf("wait; error[%v]", err)
		return nil, false, errors.Wrap(err, "wait")
	}
	return this.ready, n == 0, nil
}

func (this *Multiplex) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-this.wakeCh:
		return true
	}
}

// Wake interrupts a Wait in progress. Safe from any goroutine.
func (this *Multiplex) Wake() error {
	select {
	case this.wakeCh <- struct{}{}:
	default:
	}
	if !this.running.Get() {
		return protocol.ErrClosed
	}
	return this.wake()
}

func (this *Multiplex) drainWakeCh() {
	select {
	case <-this.wakeCh:
	default:
	}
}

// Close 关闭 poller
func (this *Multiplex) Close() error {
	if !this.running.Get() {
		return protocol.ErrClosed
	}
	this.running.Set(false)
	this.sockets = make(map[int]protocol.EventType)
	return this.close()
}

// toMillis rounds up, so a wait never ends before the timer it serves.
func toMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	msec := d / time.Millisecond
	if d%time.Millisecond != 0 {
		msec++
	}
	return int(msec)
}
