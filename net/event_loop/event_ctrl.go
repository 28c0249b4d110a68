package event_loop

import (
	"time"

	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/event_queue"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/multiplex"
	"github.com/zput/zput_reactor/net/protocol"
)

// EventCtrl keeps the ordered event queue and the multiplexer in step.
type EventCtrl struct {
	queue     *event_queue.Queue[*Event]
	eventPool map[int]*Event // fd -> scheduled descriptor event
	multi     *multiplex.Multiplex
}

func NewEventCtrl(numEvents int) (*EventCtrl, error) {
	var eventCtrl EventCtrl
	var err error
	eventCtrl.multi, err = multiplex.New(numEvents)
	if err != nil {
		log.Errorf("create multiplex error[%v]; in eventCtrl", err)
		return nil, err
	}
	eventCtrl.queue = event_queue.New[*Event]()
	eventCtrl.eventPool = make(map[int]*Event)
	return &eventCtrl, nil
}

func (this *EventCtrl) Stop() error {
	return this.multi.Close()
}

func (this *EventCtrl) AddEvent(eventPtr *Event) error {
	if eventPtr.kind == KindDescriptor {
		if other, ok := this.eventPool[eventPtr.eventFd]; ok && other != eventPtr {
			return errors.Wrapf(protocol.ErrInvalidDescriptor, "fd[%d] already watched by another event", eventPtr.eventFd)
		}
		if err := this.multi.Add(eventPtr.eventFd, eventPtr.events); err != nil {
			return err
		}
		this.eventPool[eventPtr.eventFd] = eventPtr
	}
	this.queue.Insert(eventPtr, eventPtr.expiration)
	eventPtr.scheduled = true
	log.Debugf("scheduled event[%v] fd[%d] expiration[%d]; events[%d]",
		eventPtr.kind, eventPtr.eventFd, eventPtr.expiration, this.queue.Len())
	return nil
}

func (this *EventCtrl) RemoveEvent(eventPtr *Event) error {
	if !this.queue.Remove(eventPtr) {
		log.Errorf("remove event[%v] fd[%d]; not found in queue", eventPtr.kind, eventPtr.eventFd)
	}
	eventPtr.scheduled = false
	if eventPtr.kind != KindDescriptor {
		return nil
	}
	delete(this.eventPool, eventPtr.eventFd)
	return this.multi.Remove(eventPtr.eventFd, eventPtr.events)
}

func (this *EventCtrl) ModifyEvent(eventPtr *Event) error {
	return this.multi.Update(eventPtr.eventFd, eventPtr.events)
}

func (this *EventCtrl) earliest() (*Event, int64, bool) {
	return this.queue.Peek()
}

func (this *EventCtrl) lookup(fd int) *Event {
	return this.eventPool[fd]
}

func (this *EventCtrl) count() int {
	return this.queue.Len()
}

func (this *EventCtrl) wait(timeout time.Duration) ([]multiplex.Ready, bool, error) {
	return this.multi.Wait(timeout)
}

// destroyAll destroys every scheduled event, earliest first.
func (this *EventCtrl) destroyAll() int {
	var n int
	for {
		ev, _, ok := this.queue.Peek()
		if !ok {
			return n
		}
		if err := ev.Destroy(); err != nil {
			log.Errorf("destroy event[%v] fd[%d] at exit; error[%v]", ev.kind, ev.eventFd, err)
			// never spin on an entry that will not leave
			this.queue.Remove(ev)
		}
		n++
	}
}

func (this *EventCtrl) Wake() error {
	return this.multi.Wake()
}
