package event_loop

import (
	"sync"
	"time"

	"github.com/Allenxuxu/toolkit/sync/atomic"
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
)

// EventLoop is a single-threaded reactor. Events, the cascade and every
// callback belong to the goroutine running Run; only Stop, Wake and
// RunInLoop may be called from elsewhere.
type EventLoop struct {
	eventCtrl *EventCtrl
	cascade   *Cascade
	epoch     time.Time

	functions []protocol.AddFunToLoopWaitingRun
	mutex     sync.Mutex

	master    *Event
	terminate bool
	stopping  atomic.Bool
	running   atomic.Bool
}

func New(opts ...protocol.Option) (*EventLoop, error) {
	options := protocol.NewOptions(opts...)
	var loop = EventLoop{
		cascade: newCascade(),
		epoch:   time.Now(),
	}
	var err error
	loop.eventCtrl, err = NewEventCtrl(options.NumEvents)
	if err != nil {
		log.Errorf("create eventCtrl error[%v]; in EventLoop", err)
		return nil, err
	}
	return &loop, nil
}

// Run dispatches events until none is left, Terminate or Stop is called, or
// maxDuration (when positive) has elapsed. Events still scheduled on return
// are destroyed.
func (this *EventLoop) Run(maxDuration time.Duration) error {
	if maxDuration < 0 {
		return errors.Wrapf(protocol.ErrInvalidDuration, "run[%v]", maxDuration)
	}
	if this.running.Get() {
		return protocol.ErrLoopRunning
	}
	this.running.Set(true)
	this.terminate = false
	defer func() {
		n := this.eventCtrl.destroyAll()
		if this.master.Valid() {
			// fired, so no longer scheduled
			_ = this.master.Destroy()
		}
		this.cascade.reset()
		this.master = nil
		this.stopping.Set(false)
		this.running.Set(false)
		log.Debugf("loop exit; destroyed[%d]", n)
	}()

	if maxDuration > 0 {
		master, err := this.NewTimer(maxDuration, HandlerFunc(func(*Event, protocol.EventType) error {
			log.Debugf("master timer[%v] fired", maxDuration)
			this.terminate = true
			return nil
		}), nil)
		if err != nil {
			return err
		}
		if err = master.Add(); err != nil {
			return err
		}
		this.master = master
	}

	for {
		this.runAllFunctionInLoop()
		if this.terminate || this.stopping.Get() {
			log.Debug("loop terminated")
			return nil
		}

		_, expiration, ok := this.eventCtrl.earliest()
		if !ok {
			log.Debug("no event left; leaving loop")
			return nil
		}
		wait := expiration - this.nowMicros()
		if wait < 0 {
			wait = 0
		}

		ready, timedOut, err := this.eventCtrl.wait(time.Duration(wait) * time.Microsecond)
		if err != nil {
			if errors.Is(err, protocol.ErrInterrupted) {
				log.Warnf("wait; error[%v]", err)
				continue
			}
			log.Errorf("wait; error[%v], leaving loop", err)
			return err
		}

		for _, r := range ready {
			ev := this.eventCtrl.lookup(r.Fd)
			if ev == nil || !ev.scheduled {
				// removed by an earlier callback of this round
				log.Debugf("fd[%d] revents[%v]; no scheduled event", r.Fd, r.Events)
				continue
			}
			if err := this.eventCtrl.RemoveEvent(ev); err != nil {
				log.Errorf("unschedule fd[%d]; error[%v]", r.Fd, err)
			}
			ev.dispatch(r.Events)
		}

		// re-peek: a descriptor dispatched above has left the queue, so
		// nothing fires twice in one round
		if wait == 0 || timedOut {
			ev, expiration, ok := this.eventCtrl.earliest()
			if ok && expiration <= this.nowMicros() {
				if err := this.eventCtrl.RemoveEvent(ev); err != nil {
					log.Errorf("unschedule expired event[%v] fd[%d]; error[%v]", ev.kind, ev.eventFd, err)
				}
				ev.dispatch(protocol.EventTimeout)
			}
		}
	}
}

// Terminate ends Run after the current callback. Loop goroutine only.
func (this *EventLoop) Terminate() {
	this.terminate = true
}

// Stop asks the loop to return; safe from any goroutine. A request made
// before Run starts ends that Run at once. It fails with ErrClosed after
// Close.
func (this *EventLoop) Stop() error {
	this.stopping.Set(true)
	return this.eventCtrl.Wake()
}

func (this *EventLoop) Running() bool {
	return this.running.Get()
}

// Close releases the multiplexer. The loop must not be running.
func (this *EventLoop) Close() error {
	if this.running.Get() {
		return protocol.ErrLoopRunning
	}
	return this.eventCtrl.Stop()
}

// EventCount is the number of scheduled events, the master timer excluded.
func (this *EventLoop) EventCount() int {
	n := this.eventCtrl.count()
	if this.master != nil && this.master.scheduled {
		n--
	}
	return n
}

// Registered is the number of descriptors in the multiplexer.
func (this *EventLoop) Registered() int {
	return this.eventCtrl.multi.Registered()
}

func (this *EventLoop) Cascade() *Cascade {
	return this.cascade
}

// Now reads the loop's monotonic clock.
func (this *EventLoop) Now() time.Time {
	return this.epoch.Add(time.Since(this.epoch))
}

func (this *EventLoop) nowMicros() int64 {
	return int64(time.Since(this.epoch) / time.Microsecond)
}

func (this *EventLoop) toMicros(t time.Time) int64 {
	return int64(t.Sub(this.epoch) / time.Microsecond)
}

func (this *EventLoop) fromMicros(us int64) time.Time {
	return this.epoch.Add(time.Duration(us) * time.Microsecond)
}

func (this *EventLoop) runAllFunctionInLoop() {
	this.mutex.Lock()
	functions := this.functions
	this.functions = nil
	this.mutex.Unlock()

	for i := 0; i < len(functions); i++ {
		functions[i]()
	}
}

// RunInLoop queues fun for the loop goroutine and wakes it. Safe from any
// goroutine.
func (this *EventLoop) RunInLoop(fun protocol.AddFunToLoopWaitingRun) {
	this.mutex.Lock()
	this.functions = append(this.functions, fun)
	this.mutex.Unlock()

	if err := this.eventCtrl.Wake(); err != nil {
		log.Errorf("wake loop; error[%v]", err)
	}
}
