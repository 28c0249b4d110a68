package event_loop

import (
	"time"

	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
)

type Kind int8

const (
	KindTimer Kind = iota
	KindDescriptor
)

func (this Kind) String() string {
	if this == KindTimer {
		return "timer"
	}
	return "descriptor"
}

// Handler is invoked once per dispatch. The event has already been taken out
// of scheduling when HandleEvent runs; re-adding it is the handler's call.
type Handler interface {
	HandleEvent(ev *Event, revents protocol.EventType) error
}

// Validator may be implemented by a Handler whose backing resource can go
// away before its event does. An invalid handler is never called; its event
// is destroyed instead.
type Validator interface {
	Valid() bool
}

type HandlerFunc func(ev *Event, revents protocol.EventType) error

func (this HandlerFunc) HandleEvent(ev *Event, revents protocol.EventType) error {
	return this(ev, revents)
}

// Event is a one-shot unit of future work: a timer or a descriptor readiness
// watch. It belongs to the loop that created it and is used only from that
// loop's goroutine.
type Event struct {
	loop *EventLoop
	kind Kind

	eventFd int
	events  protocol.EventType // requested
	revents protocol.EventType // returned by the last dispatch

	timeout    time.Duration
	expiration int64 // µs since loop epoch, valid while scheduled

	handler Handler
	ctx     interface{}
	owner   interface{}

	valid     bool
	scheduled bool
}

// NewTimer creates a timer event that fires timeout after each Add.
func (this *EventLoop) NewTimer(timeout time.Duration, handler Handler, ctx interface{}) (*Event, error) {
	if timeout <= 0 {
		log.Errorf("new timer; timeout[%v]", timeout)
		return nil, errors.Wrapf(protocol.ErrInvalidTimeout, "timer timeout[%v]", timeout)
	}
	if handler == nil {
		return nil, errors.Wrap(protocol.ErrNoCallback, "new timer")
	}
	return &Event{
		loop:    this,
		kind:    KindTimer,
		eventFd: -1,
		timeout: timeout,
		handler: handler,
		ctx:     ctx,
		valid:   true,
	}, nil
}

// NewDescriptor creates an event watching fd for flags. A zero timeout means
// no inactivity expiry.
func (this *EventLoop) NewDescriptor(fd int, flags protocol.EventType, timeout time.Duration, handler Handler, ctx interface{}) (*Event, error) {
	if fd < 0 {
		log.Errorf("new descriptor; fd[%d]", fd)
		return nil, errors.Wrapf(protocol.ErrInvalidDescriptor, "fd[%d]", fd)
	}
	if flags&(protocol.EventRead|protocol.EventWrite) == protocol.EventNone {
		log.Errorf("new descriptor; fd[%d] flags[%v]", fd, flags)
		return nil, errors.Wrapf(protocol.ErrInvalidFlags, "fd[%d] flags[%v]", fd, flags)
	}
	if timeout < 0 {
		return nil, errors.Wrapf(protocol.ErrInvalidTimeout, "fd[%d] timeout[%v]", fd, timeout)
	}
	if handler == nil {
		return nil, errors.Wrapf(protocol.ErrNoCallback, "fd[%d]", fd)
	}
	return &Event{
		loop:    this,
		kind:    KindDescriptor,
		eventFd: fd,
		events:  flags,
		timeout: timeout,
		handler: handler,
		ctx:     ctx,
		valid:   true,
	}, nil
}

func (this *Event) check() error {
	if this == nil || !this.valid {
		log.Error("operation on destroyed event")
		return protocol.ErrEventDestroyed
	}
	return nil
}

// Add schedules the event to expire one timeout from now.
func (this *Event) Add() error {
	if err := this.check(); err != nil {
		return err
	}
	timeout := this.timeout
	if timeout == 0 {
		timeout = protocol.NoTimeoutHorizon
	}
	return this.addAt(this.loop.nowMicros() + int64(timeout/time.Microsecond))
}

// AddAt schedules the event with an explicit absolute expiration.
func (this *Event) AddAt(expiration time.Time) error {
	if err := this.check(); err != nil {
		return err
	}
	return this.addAt(this.loop.toMicros(expiration))
}

func (this *Event) addAt(expiration int64) error {
	if this.scheduled {
		log.Errorf("event[%v] fd[%d] scheduled twice", this.kind, this.eventFd)
		return errors.Wrapf(protocol.ErrEventScheduled, "fd[%d]", this.eventFd)
	}
	this.expiration = expiration
	return this.loop.eventCtrl.AddEvent(this)
}

// Rearm moves the expiration of the event, scheduled or not. Used after
// SetTimeout when the new cadence must apply before the old expiration.
func (this *Event) Rearm(expiration time.Time) error {
	if err := this.check(); err != nil {
		return err
	}
	if this.scheduled {
		if err := this.loop.eventCtrl.RemoveEvent(this); err != nil {
			return err
		}
	}
	return this.addAt(this.loop.toMicros(expiration))
}

// Remove takes the event out of scheduling without destroying it.
func (this *Event) Remove() error {
	if err := this.check(); err != nil {
		return err
	}
	if !this.scheduled {
		log.Errorf("remove event[%v] fd[%d]; not in queue", this.kind, this.eventFd)
		return errors.Wrapf(protocol.ErrEventNotScheduled, "fd[%d]", this.eventFd)
	}
	return this.loop.eventCtrl.RemoveEvent(this)
}

// Destroy unschedules the event if needed and invalidates the handle.
func (this *Event) Destroy() error {
	if err := this.check(); err != nil {
		return err
	}
	var err error
	if this.scheduled {
		err = this.loop.eventCtrl.RemoveEvent(this)
	} else {
		log.Warnf("destroy event[%v] fd[%d]; not in queue", this.kind, this.eventFd)
	}
	if this.owner != nil {
		this.loop.cascade.unregister(this.owner, this)
	}
	this.valid = false
	this.handler = nil
	this.ctx = nil
	log.Debugf("destroyed event[%v] fd[%d]", this.kind, this.eventFd)
	return err
}

// SetTimeout changes the relative timeout used by the next Add. A
// descriptor event accepts 0 for no expiry.
func (this *Event) SetTimeout(timeout time.Duration) error {
	if err := this.check(); err != nil {
		return err
	}
	if timeout < 0 || (timeout == 0 && this.kind == KindTimer) {
		log.Errorf("set timeout event[%v]; timeout[%v]", this.kind, timeout)
		return errors.Wrapf(protocol.ErrInvalidTimeout, "timeout[%v]", timeout)
	}
	this.timeout = timeout
	return nil
}

// Update replaces the requested flags. A scheduled event is re-registered
// right away, otherwise the flags apply on the next Add.
func (this *Event) Update(flags protocol.EventType) error {
	if err := this.check(); err != nil {
		return err
	}
	if this.kind != KindDescriptor || flags&(protocol.EventRead|protocol.EventWrite) == protocol.EventNone {
		return errors.Wrapf(protocol.ErrInvalidFlags, "event[%v] flags[%v]", this.kind, flags)
	}
	if flags == this.events {
		return nil
	}
	this.events = flags
	if !this.scheduled {
		return nil
	}
	return this.loop.eventCtrl.ModifyEvent(this)
}

func (this *Event) EnableReading(isEnable bool) error {
	if isEnable {
		return this.Update(this.events | protocol.EventRead)
	}
	return this.Update(this.events &^ protocol.EventRead)
}

func (this *Event) EnableWriting(isEnable bool) error {
	if isEnable {
		return this.Update(this.events | protocol.EventWrite)
	}
	return this.Update(this.events &^ protocol.EventWrite)
}

func (this *Event) IsWriting() bool {
	return this.events.Has(protocol.EventWrite)
}

func (this *Event) IsReading() bool {
	return this.events.Has(protocol.EventRead)
}

func (this *Event) Valid() bool {
	return this != nil && this.valid
}

func (this *Event) Scheduled() bool {
	return this.scheduled
}

func (this *Event) Kind() Kind {
	return this.kind
}

func (this *Event) GetFd() int {
	return this.eventFd
}

func (this *Event) GetEvents() protocol.EventType {
	return this.events
}

// ReturnedEvents are the flags of the most recent dispatch.
func (this *Event) ReturnedEvents() protocol.EventType {
	return this.revents
}

func (this *Event) Timeout() time.Duration {
	return this.timeout
}

// Expiration is meaningful only while the event is scheduled.
func (this *Event) Expiration() time.Time {
	return this.loop.fromMicros(this.expiration)
}

func (this *Event) Context() interface{} {
	return this.ctx
}

func (this *Event) SetContext(ctx interface{}) {
	this.ctx = ctx
}

func (this *Event) Loop() *EventLoop {
	return this.loop
}

func (this *Event) dispatch(revents protocol.EventType) {
	this.revents = revents
	if v, ok := this.handler.(Validator); ok && !v.Valid() {
		log.Warnf("event[%v] fd[%d]; handler no longer valid, destroying", this.kind, this.eventFd)
		_ = this.Destroy()
		return
	}
	if err := this.handler.HandleEvent(this, revents); err != nil {
		log.Errorf("event[%v] fd[%d] revents[%v] callback; error[%v]", this.kind, this.eventFd, revents, err)
	}
}
