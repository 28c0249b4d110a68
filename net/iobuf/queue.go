package iobuf

import (
	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
)

// WriteGate turns write readiness on and off for the descriptor a Queue
// drains into.
type WriteGate interface {
	EnableWriting(isEnable bool) error
}

// Queue is a FIFO of buffers waiting to be written. Write readiness is
// requested exactly while the queue is not empty.
type Queue struct {
	gate  WriteGate
	fifo  *queue.Queue
	chunk int

	totalSent    int64
	totalInQueue int64
}

func NewQueue(gate WriteGate) *Queue {
	return &Queue{gate: gate, fifo: queue.New()}
}

// SetChunkSize caps the bytes written per DrainOne; 0 means whole buffer.
func (this *Queue) SetChunkSize(n int) {
	if n < 0 {
		n = 0
	}
	this.chunk = n
}

func (this *Queue) Len() int {
	return this.fifo.Length()
}

func (this *Queue) TotalSent() int64 {
	return this.totalSent
}

// TotalInQueue is the number of bytes of the buffers currently queued.
func (this *Queue) TotalInQueue() int64 {
	return this.totalInQueue
}

// Enqueue appends buf and requests write readiness. The queue owns buf
// until it has been sent in full.
func (this *Queue) Enqueue(buf *Buffer) error {
	switch {
	case buf.released:
		return protocol.ErrBufferReleased
	case buf.cursor != 0:
		log.Debugf("enqueue; buffer cursor[%d] not zero", buf.cursor)
		return errors.Wrapf(protocol.ErrBufferCursor, "cursor[%d]", buf.cursor)
	case buf.length == 0:
		log.Debug("enqueue; buffer is empty")
		return protocol.ErrBufferEmpty
	case buf.queued:
		log.Debugf("enqueue; buffer already queued; nelems[%d]", this.fifo.Length())
		return protocol.ErrBufferQueued
	}

	this.fifo.Add(buf)
	buf.queued = true
	this.totalInQueue += int64(buf.length)
	log.Debugf("enqueued len[%d]; nelems[%d]", buf.length, this.fifo.Length())

	if err := this.gate.EnableWriting(true); err != nil {
		if this.fifo.Length() == 1 {
			// first buffer; the queue was idle so nothing else depends on it
			this.fifo.Remove()
			buf.queued = false
			this.totalInQueue -= int64(buf.length)
		}
		return errors.Wrap(err, "enqueue")
	}
	return nil
}

// DrainOne writes from the head buffer once. A fully sent buffer leaves the
// queue with its cursor rewound, and is released if it was marked
// destroy-after-send. Write readiness is withdrawn once the queue is empty.
func (this *Queue) DrainOne(fd int) (int, error) {
	if this.fifo.Length() == 0 {
		log.Debugf("fd[%d] queue empty, disabling write", fd)
		return 0, this.gate.EnableWriting(false)
	}

	buf := this.fifo.Peek().(*Buffer)
	max := buf.Remaining()
	if this.chunk > 0 && this.chunk < max {
		max = this.chunk
	}
	n, err := Send(fd, buf, max)
	this.totalSent += int64(n)
	if err != nil {
		return n, err
	}
	if buf.cursor < buf.length {
		return n, nil
	}

	this.fifo.Remove()
	buf.queued = false
	buf.cursor = 0
	this.totalInQueue -= int64(buf.length)
	log.Debugf("fd[%d] buffer len[%d] completely sent; nelems[%d]", fd, buf.length, this.fifo.Length())
	if buf.destroyAfterSend {
		buf.release()
	}
	if this.fifo.Length() == 0 {
		return n, this.gate.EnableWriting(false)
	}
	return n, nil
}

// Discard drops every queued buffer, releasing those marked
// destroy-after-send. Used on teardown.
func (this *Queue) Discard() int {
	var n int
	for this.fifo.Length() > 0 {
		buf := this.fifo.Remove().(*Buffer)
		buf.queued = false
		buf.cursor = 0
		if buf.destroyAfterSend {
			buf.release()
		}
		n++
	}
	this.totalInQueue = 0
	return n
}
