package protocol

import (
	"strings"
	"time"
)

const (
	// NoTimeoutHorizon stands in for "never expires" on descriptor events
	// with a zero timeout; some wait primitives misbehave on huge timeouts.
	NoTimeoutHorizon = 24 * time.Hour

	// MaxPeers caps the concurrent connections of one listening socket.
	MaxPeers = 1000

	// DefaultNumEvents is the default number of descriptors the multiplexer
	// tracks: a full listener's peers plus the listener itself.
	DefaultNumEvents = MaxPeers + 1

	// MaxWaitRetries bounds the EINTR retries inside one multiplexer wait.
	MaxWaitRetries = 5

	WaitEventsNumber = 1024
)

// EventType readiness flags, both requested and returned.
type EventType uint32

const (
	EventRead    EventType = 0x1
	EventWrite   EventType = 0x2
	EventErr     EventType = 0x80
	EventClose   EventType = 0x100
	EventTimeout EventType = 0x200
	EventNone    EventType = 0
)

func (this EventType) Has(flag EventType) bool {
	return this&flag != EventNone
}

func (this EventType) String() string {
	if this == EventNone {
		return "none"
	}
	var parts []string
	if this.Has(EventRead) {
		parts = append(parts, "read")
	}
	if this.Has(EventWrite) {
		parts = append(parts, "write")
	}
	if this.Has(EventErr) {
		parts = append(parts, "err")
	}
	if this.Has(EventClose) {
		parts = append(parts, "close")
	}
	if this.Has(EventTimeout) {
		parts = append(parts, "timeout")
	}
	return strings.Join(parts, "|")
}

// The network must be "tcp", "tcp4" or "tcp6".
type NetWorkAndAddressAndOption struct {
	Network, Address string
	ReusePort        bool
	Backlog          int
}

type AddFunToLoopWaitingRun func()

// ICodec tells the stream framer how long a message is once its fixed
// header has been received.
type ICodec interface {
	HeaderSize() int
	MessageSize(header []byte) (int, error)
}
