package connect

import (
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/iobuf"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
)

type FrameState int

const (
	AwaitingHeader FrameState = iota
	AwaitingBody
	Dispatching
)

func (this FrameState) String() string {
	switch this {
	case AwaitingHeader:
		return "awaiting-header"
	case AwaitingBody:
		return "awaiting-body"
	}
	return "dispatching"
}

// framer accumulates one message at a time into a single buffer.
type framer struct {
	inBuffer       *iobuf.Buffer
	frame          FrameState
	msgSize        int // declared total length, set once the header is parsed
	recvBufferSize int
	maxMessageSize int
	totalReceived  int64
}

func (this *framer) discard() {
	if this.inBuffer != nil {
		_ = this.inBuffer.Release()
		this.inBuffer = nil
	}
	this.frame = AwaitingHeader
	this.msgSize = 0
}

func (this *framer) FrameState() FrameState {
	return this.frame
}

// MessageSize is the declared length of the message being received, 0
// before its header is complete.
func (this *framer) MessageSize() int {
	return this.msgSize
}

// Receive reads once from the socket toward the next message: the first
// headerSize bytes, then the rest of the length size reports. A complete
// message goes to message and the framer starts over. It is meant to be
// called on read readiness.
//
// A header that size rejects, a message larger than the configured maximum,
// a transport error, or an error from message tears the connection down:
// nothing in a byte stream marks where the next message would start.
func (this *Connect) Receive(headerSize int, size SizeFunc, message MessageFunc) error {
	if size == nil || message == nil {
		log.Error("receive; nil callbacks")
		return protocol.ErrNoCallback
	}
	if headerSize <= 0 {
		return errors.Wrapf(protocol.ErrInvalidAmount, "header size[%d]", headerSize)
	}
	if this.state == Disconnected {
		return protocol.ErrConnectionClosed
	}

	if this.inBuffer == nil {
		capacity := this.recvBufferSize
		if capacity < headerSize {
			capacity = headerSize
		}
		this.inBuffer = iobuf.New(capacity)
		this.frame = AwaitingHeader
	}
	buf := this.inBuffer

	switch this.frame {
	case AwaitingHeader:
		n, err := iobuf.Recv(this.fd, buf, headerSize-buf.Len())
		this.totalReceived += int64(n)
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionClosed) {
				log.Infof("fd[%d] remote end closed connection", this.fd)
			} else {
				log.Errorf("fd[%d] recv failed reading header; error[%v]", this.fd, err)
			}
			this.teardown(err)
			return err
		}
		if buf.Len() < headerSize {
			log.Debugf("fd[%d] header: have[%d] need[%d]", this.fd, buf.Len(), headerSize)
			return nil
		}

		msgSize, err := size(buf.Bytes()[:headerSize])
		if err == nil && msgSize <= 0 {
			err = errors.Wrapf(protocol.ErrBadHeader, "declared length[%d]", msgSize)
		}
		if err == nil && this.maxMessageSize > 0 && msgSize > this.maxMessageSize {
			err = errors.Wrapf(protocol.ErrMessageTooLarge, "declared length[%d] max[%d]", msgSize, this.maxMessageSize)
		}
		if err != nil {
			log.Errorf("fd[%d] error in obtaining msg size, dropping connection; error[%v]", this.fd, err)
			this.teardown(err)
			return err
		}
		if msgSize > buf.Cap() {
			if err = buf.Grow(msgSize); err != nil {
				this.teardown(err)
				return err
			}
		}
		this.msgSize = msgSize
		this.frame = AwaitingBody
		if buf.Len() < msgSize {
			// the body is read on the next readiness
			return nil
		}

	case AwaitingBody:
		if want := this.msgSize - buf.Len(); want > 0 {
			n, err := iobuf.Recv(this.fd, buf, want)
			this.totalReceived += int64(n)
			if err != nil {
				log.Errorf("fd[%d] recv failed reading body, have[%d] of[%d]; error[%v]", this.fd, buf.Len(), this.msgSize, err)
				this.teardown(err)
				return err
			}
			if buf.Len() < this.msgSize {
				log.Debugf("fd[%d] body: have[%d] need[%d]", this.fd, buf.Len(), this.msgSize)
				return nil
			}
		}
	}

	if buf.Len() != this.msgSize {
		log.Warnf("fd[%d] declared length[%d] accumulated[%d]; using the smaller", this.fd, this.msgSize, buf.Len())
		if buf.Len() > this.msgSize {
			_ = buf.Truncate(this.msgSize)
		}
	}

	this.frame = Dispatching
	this.inBuffer = nil
	log.Debugf("fd[%d] dispatching message len[%d]", this.fd, buf.Len())
	err := message(this, buf)
	this.frame = AwaitingHeader
	this.msgSize = 0
	if err != nil {
		log.Errorf("fd[%d] message consumer; error[%v]", this.fd, err)
		if !buf.Queued() && !buf.Released() {
			_ = buf.Release()
		}
		this.teardown(err)
		return err
	}
	return nil
}
