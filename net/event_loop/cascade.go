package event_loop

import (
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
)

// Cascade maps an owner (normally a connection) to the events that must not
// outlive it.
type Cascade struct {
	users map[interface{}][]*Event
}

func newCascade() *Cascade {
	return &Cascade{users: make(map[interface{}][]*Event)}
}

// Register makes ev a dependent of owner. An event has at most one owner.
func (this *Cascade) Register(owner interface{}, ev *Event) error {
	if owner == nil {
		return protocol.ErrNoOwner
	}
	if !ev.Valid() {
		return errors.Wrap(protocol.ErrEventDestroyed, "cascade register")
	}
	if ev.owner != nil {
		if ev.owner == owner {
			return nil
		}
		this.unregister(ev.owner, ev)
	}
	ev.owner = owner
	this.users[owner] = append(this.users[owner], ev)
	log.Debugf("cascade owner[%T] event[%v] fd[%d]; users[%d]", owner, ev.kind, ev.eventFd, len(this.users[owner]))
	return nil
}

// DestroyUsers destroys every event registered for owner and forgets owner.
// It returns how many events were destroyed.
func (this *Cascade) DestroyUsers(owner interface{}) int {
	list, ok := this.users[owner]
	if !ok {
		return 0
	}
	delete(this.users, owner)
	var n int
	for _, ev := range list {
		ev.owner = nil
		if !ev.Valid() {
			continue
		}
		if err := ev.Destroy(); err != nil {
			log.Errorf("cascade destroy event[%v] fd[%d]; error[%v]", ev.kind, ev.eventFd, err)
		}
		n++
	}
	log.Debugf("cascade owner[%T]; destroyed[%d]", owner, n)
	return n
}

func (this *Cascade) Users(owner interface{}) int {
	return len(this.users[owner])
}

func (this *Cascade) Owners() int {
	return len(this.users)
}

func (this *Cascade) unregister(owner interface{}, ev *Event) {
	list := this.users[owner]
	for i, e := range list {
		if e != ev {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		break
	}
	if len(list) == 0 {
		delete(this.users, owner)
	} else {
		this.users[owner] = list
	}
	ev.owner = nil
}

func (this *Cascade) reset() {
	for owner, list := range this.users {
		for _, ev := range list {
			ev.owner = nil
		}
		delete(this.users, owner)
	}
}
