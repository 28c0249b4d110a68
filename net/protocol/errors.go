package protocol

import "github.com/pkg/errors"

// caller-contract violations
var (
	ErrInvalidTimeout     = errors.New("invalid timeout")
	ErrInvalidDescriptor  = errors.New("invalid descriptor")
	ErrInvalidFlags       = errors.New("invalid readiness flags")
	ErrNoCallback         = errors.New("event without callback")
	ErrEventDestroyed     = errors.New("event handle already destroyed")
	ErrEventScheduled     = errors.New("event already scheduled")
	ErrEventNotScheduled  = errors.New("event not scheduled")
	ErrInvalidAmount      = errors.New("invalid byte count")
	ErrBlockingDescriptor = errors.New("descriptor is not in non-blocking mode")
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrWaitForever        = errors.New("waiting forever with no descriptor registered")
	ErrBufferCursor       = errors.New("buffer has non-zero cursor")
	ErrBufferEmpty        = errors.New("buffer is empty")
	ErrBufferQueued       = errors.New("buffer already queued")
	ErrBufferReleased     = errors.New("buffer already released")
	ErrNoOwner            = errors.New("cascade owner is nil")
	ErrLoopRunning        = errors.New("event loop already running")
	ErrInvalidMaxPeers    = errors.New("max peers out of range")
)

// errors after which a byte stream cannot be resynchronized
var (
	ErrBadHeader       = errors.New("bad message header")
	ErrMessageTooLarge = errors.New("message too large")
)

// resource exhaustion
var (
	ErrMuxCapacity  = errors.New("multiplexer capacity exceeded")
	ErrTooManyPeers = errors.New("too many peers")
	ErrFiltered     = errors.New("peer rejected by accept filter")
)

var (
	ErrWouldBlock       = errors.New("no data ready on non-blocking descriptor")
	ErrNoSpace          = errors.New("no buffer space or data to move")
	ErrInterrupted      = errors.New("wait interrupted")
	ErrConnectionClosed = errors.New("connection closed")
	ErrConnectTimeout   = errors.New("connect timeout")
)

// ErrClosed 重复 close poller 错误
var ErrClosed = errors.New("poller instance is not running")
