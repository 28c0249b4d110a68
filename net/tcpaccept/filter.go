package tcpaccept

import (
	"net"

	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/protocol"
	"golang.org/x/sys/unix"
)

// FilterAny lets every peer in.
func FilterAny(unix.Sockaddr) error {
	return nil
}

// FilterLocalhost only lets loopback peers in.
func FilterLocalhost(sa unix.Sockaddr) error {
	var ip net.IP
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ip = net.IP(sa.Addr[:])
	case *unix.SockaddrInet6:
		ip = net.IP(sa.Addr[:])
	}
	if ip != nil && ip.IsLoopback() {
		return nil
	}
	return errors.Wrapf(protocol.ErrFiltered, "peer[%s]", sockAddrString(sa))
}

func sockAddrString(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return (&net.TCPAddr{IP: net.IP(sa.Addr[:]), Port: sa.Port}).String()
	case *unix.SockaddrInet6:
		return (&net.TCPAddr{IP: net.IP(sa.Addr[:]), Port: sa.Port}).String()
	}
	return "unknown"
}
