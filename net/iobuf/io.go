package iobuf

import (
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

func checkNonblock(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return errors.Wrapf(err, "fcntl fd[%d]", fd)
	}
	if flags&unix.O_NONBLOCK == 0 {
		log.Errorf("fd[%d] is in blocking mode", fd)
		return errors.Wrapf(protocol.ErrBlockingDescriptor, "fd[%d]", fd)
	}
	return nil
}

// Send writes at most max bytes of buf, from its cursor, to fd. A partial
// write is normal; a full socket buffer returns (0, nil).
func Send(fd int, buf *Buffer, max int) (int, error) {
	if buf.released {
		return 0, protocol.ErrBufferReleased
	}
	if max <= 0 {
		return 0, errors.Wrapf(protocol.ErrInvalidAmount, "send max[%d]", max)
	}
	if err := checkNonblock(fd); err != nil {
		return 0, err
	}
	n := buf.length - buf.cursor
	if n == 0 {
		log.Debugf("send fd[%d]; nothing left in buffer", fd)
		return 0, errors.Wrapf(protocol.ErrNoSpace, "send fd[%d]", fd)
	}
	if n > max {
		n = max
	}

	n, err := unix.Write(fd, buf.bb.B[buf.cursor:buf.cursor+n])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			log.Debugf("send fd[%d]; error[%v]", fd, err)
			return 0, nil
		}
		log.Debugf("send fd[%d]; error[%v]", fd, err)
		return 0, errors.Wrapf(err, "send fd[%d]", fd)
	}
	buf.cursor += n
	buf.total += int64(n)
	log.Debugf("sent[%d] fd[%d]; cursor[%d] len[%d]", n, fd, buf.cursor, buf.length)
	return n, nil
}

// Recv reads at most max bytes from fd into the free space of buf. It is
// meant to be called on read readiness only: nothing to read is reported
// as ErrWouldBlock and logged as a caller bug. A closed peer yields
// ErrConnectionClosed.
func Recv(fd int, buf *Buffer, max int) (int, error) {
	if buf.released {
		return 0, protocol.ErrBufferReleased
	}
	if buf.queued {
		return 0, protocol.ErrBufferQueued
	}
	if max <= 0 {
		return 0, errors.Wrapf(protocol.ErrInvalidAmount, "recv max[%d]", max)
	}
	if err := checkNonblock(fd); err != nil {
		return 0, err
	}
	n := buf.capacity - buf.cursor
	if n == 0 {
		log.Debugf("recv fd[%d]; no buffer space", fd)
		return 0, errors.Wrapf(protocol.ErrNoSpace, "recv fd[%d]", fd)
	}
	if n > max {
		n = max
	}

	n, err := unix.Read(fd, buf.bb.B[buf.cursor:buf.cursor+n])
	if err != nil {
		if err == unix.EAGAIN {
			log.Errorf("recv fd[%d]; non-blocking and no data ready, programming error", fd)
			return 0, errors.Wrapf(protocol.ErrWouldBlock, "recv fd[%d]", fd)
		}
		log.Debugf("recv fd[%d]; error[%v]", fd, err)
		return 0, errors.Wrapf(err, "recv fd[%d]", fd)
	}
	if n == 0 {
		log.Debugf("recv fd[%d]; peer closed", fd)
		return 0, errors.Wrapf(protocol.ErrConnectionClosed, "recv fd[%d]", fd)
	}
	buf.cursor += n
	buf.length = buf.cursor
	buf.total += int64(n)
	log.Debugf("received[%d] fd[%d]; cursor[%d]", n, fd, buf.cursor)
	return n, nil
}
