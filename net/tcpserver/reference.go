package tcpserver

import (
	"github.com/zput/zput_reactor/net/connect"
	"github.com/zput/zput_reactor/net/iobuf"
	"github.com/zput/zput_reactor/net/log"
)

// IHandleEvent receives the connection callbacks of a TcpServer, all on the
// loop goroutine. MessageCallback owns the buffer it is given.
type IHandleEvent interface {
	ConnectCallback(*connect.Connect)
	MessageCallback(*connect.Connect, *iobuf.Buffer) error
	WriteCompletCallback(*connect.Connect)
	ConnectCloseCallback(*connect.Connect)
}

// HandleEventImpl logs every callback and drops messages. Embed it to
// override only what is needed.
type HandleEventImpl struct{}

func (this *HandleEventImpl) ConnectCallback(c *connect.Connect) {
	log.Infof("connect:[%s]", c.PeerAddr())
}

func (this *HandleEventImpl) MessageCallback(c *connect.Connect, buf *iobuf.Buffer) error {
	log.Debugf("connect:[%s] message[%d bytes]", c.PeerAddr(), buf.Len())
	return buf.Release()
}

func (this *HandleEventImpl) WriteCompletCallback(c *connect.Connect) {
	log.Debugf("write complet:[%s]", c.PeerAddr())
}

func (this *HandleEventImpl) ConnectCloseCallback(c *connect.Connect) {
	log.Infof("connect close:[%s]", c.PeerAddr())
}
