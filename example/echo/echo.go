package main

import (
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/zput/zput_reactor/net/connect"
	"github.com/zput/zput_reactor/net/iobuf"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/tcpserver"
)

// Echo sends every message back to its sender unchanged.
type Echo struct {
	tcpserver.HandleEventImpl
	connectTimes int64
}

func (this *Echo) GetConnectTimes() int64 {
	return this.connectTimes
}

func (this *Echo) ConnectCallback(c *connect.Connect) {
	this.connectTimes++
	this.HandleEventImpl.ConnectCallback(c)
}

func (this *Echo) MessageCallback(c *connect.Connect, buf *iobuf.Buffer) error {
	if err := buf.Rewind(); err != nil {
		return err
	}
	buf.SetDestroyAfterSend(true)
	return c.Send(buf)
}

func (this *Echo) ConnectCloseCallback(c *connect.Connect) {
	this.connectTimes--
	this.HandleEventImpl.ConnectCloseCallback(c)
}

func main() {
	var (
		address string
		envFile string
	)
	flag.StringVar(&address, "address", "", "listen address, overrides ECHO_ADDRESS")
	flag.StringVar(&envFile, "env", ".env", "env file")
	flag.Parse()

	cfg, err := loadConfig(envFile)
	if err != nil {
		log.Errorf("config; error[%v]", err)
		os.Exit(1)
	}
	if address != "" {
		cfg.Address = address
	}
	log.SetLevel(cfg.LogLevel)

	if cfg.Pprof != "" {
		go func() {
			if err := http.ListenAndServe(cfg.Pprof, nil); err != nil {
				log.Errorf("pprof; error[%v]", err)
			}
		}()
	}

	handler := new(Echo)
	s, err := tcpserver.New(handler, cfg.Options()...)
	if err != nil {
		log.Errorf("new tcpserver; error[%v]", err)
		os.Exit(1)
	}
	log.Info("created tcpserver successful")

	s.RunEvery(time.Second*20, func() {
		log.Infof("connections[%d]", handler.GetConnectTimes())
	})

	if err = s.Start(cfg.RunTime); err != nil {
		log.Errorf("server; error[%v]", err)
		os.Exit(1)
	}
	log.Info("server end")
}
