// Package iobuf holds the reactor's byte buffers, the non-blocking send and
// receive primitives that move them, and the per-connection outbound queue.
package iobuf

import (
	"github.com/panjf2000/gnet/pkg/pool/bytebuffer"
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/protocol"
)

// Buffer is a fixed-capacity byte region with a cursor.
//
// For sending, cursor is the next byte to go out and Bytes() is the whole
// message. For receiving, cursor is the next free slot and always equals
// Len(). cursor <= length <= capacity holds at all times.
//
// A Buffer is owned by one party at a time: the caller, or a Queue while
// Queued() is true. The owner of a queued buffer must not touch it.
type Buffer struct {
	bb *bytebuffer.ByteBuffer

	capacity int
	length   int
	cursor   int
	total    int64 // bytes moved over the buffer's lifetime

	queued           bool
	destroyAfterSend bool
	released         bool
}

func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	b := Buffer{bb: bytebuffer.Get(), capacity: capacity}
	if cap(b.bb.B) < capacity {
		b.bb.B = make([]byte, capacity)
	} else {
		b.bb.B = b.bb.B[:capacity]
	}
	return &b
}

// FromBytes returns a buffer holding a copy of p, ready to be queued.
func FromBytes(p []byte) *Buffer {
	b := New(len(p))
	copy(b.bb.B, p)
	b.length = len(p)
	return b
}

// Bytes returns the valid bytes. The slice aliases the buffer.
func (this *Buffer) Bytes() []byte {
	if this.released {
		return nil
	}
	return this.bb.B[:this.length]
}

// Unsent returns the bytes between cursor and length.
func (this *Buffer) Unsent() []byte {
	if this.released {
		return nil
	}
	return this.bb.B[this.cursor:this.length]
}

func (this *Buffer) Len() int {
	return this.length
}

func (this *Buffer) Cap() int {
	return this.capacity
}

func (this *Buffer) Cursor() int {
	return this.cursor
}

// Remaining is what is left to send.
func (this *Buffer) Remaining() int {
	return this.length - this.cursor
}

// Free is the space left to receive into.
func (this *Buffer) Free() int {
	return this.capacity - this.cursor
}

func (this *Buffer) Total() int64 {
	return this.total
}

func (this *Buffer) Queued() bool {
	return this.queued
}

func (this *Buffer) Released() bool {
	return this.released
}

func (this *Buffer) DestroyAfterSend() bool {
	return this.destroyAfterSend
}

// SetDestroyAfterSend hands the buffer's release to the queue that sends it.
func (this *Buffer) SetDestroyAfterSend(destroy bool) {
	this.destroyAfterSend = destroy
}

func (this *Buffer) writable() error {
	if this.released {
		return protocol.ErrBufferReleased
	}
	if this.queued {
		return protocol.ErrBufferQueued
	}
	return nil
}

// Write appends p after the valid bytes. It never writes partially.
func (this *Buffer) Write(p []byte) (int, error) {
	if err := this.writable(); err != nil {
		return 0, err
	}
	if len(p) > this.capacity-this.length {
		return 0, errors.Wrapf(protocol.ErrNoSpace, "write[%d] free[%d]", len(p), this.capacity-this.length)
	}
	copy(this.bb.B[this.length:], p)
	this.length += len(p)
	return len(p), nil
}

// Grow raises the capacity to at least n, keeping content and cursor.
func (this *Buffer) Grow(n int) error {
	if err := this.writable(); err != nil {
		return err
	}
	if n <= this.capacity {
		return nil
	}
	if cap(this.bb.B) >= n {
		this.bb.B = this.bb.B[:n]
	} else {
		grown := make([]byte, n)
		copy(grown, this.bb.B[:this.length])
		this.bb.B = grown
	}
	this.capacity = n
	return nil
}

// Truncate drops valid bytes past n.
func (this *Buffer) Truncate(n int) error {
	if err := this.writable(); err != nil {
		return err
	}
	if n < 0 {
		return errors.Wrapf(protocol.ErrInvalidAmount, "truncate[%d]", n)
	}
	if n < this.length {
		this.length = n
	}
	if this.cursor > this.length {
		this.cursor = this.length
	}
	return nil
}

// Rewind moves the cursor back to the start, e.g. to send back what was
// just received.
func (this *Buffer) Rewind() error {
	if err := this.writable(); err != nil {
		return err
	}
	this.cursor = 0
	return nil
}

// Reset empties the buffer for reuse; the cumulative counter is kept.
func (this *Buffer) Reset() error {
	if err := this.writable(); err != nil {
		return err
	}
	this.length = 0
	this.cursor = 0
	return nil
}

// Release returns the storage to the pool. A queued buffer belongs to its
// queue and cannot be released by the caller.
func (this *Buffer) Release() error {
	if err := this.writable(); err != nil {
		return err
	}
	this.release()
	return nil
}

func (this *Buffer) release() {
	bytebuffer.Put(this.bb)
	this.bb = nil
	this.released = true
	this.length = 0
	this.cursor = 0
	this.capacity = 0
}
