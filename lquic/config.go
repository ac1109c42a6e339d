package lquic

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// DefaultConfig returns the QUIC configuration lanterm expects.
// Datagrams must be enabled; snapshots travel only as datagrams.
func DefaultConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,

		// Sessions sit idle while players think,
		// so keep the path alive well inside the idle timeout.
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 5 * time.Second,

		HandshakeIdleTimeout: 10 * time.Second,
	}
}

// MakeTransport returns a QUIC transport over the given UDP socket.
// The caller retains ownership of udpConn and must close it
// after closing the transport.
func MakeTransport(udpConn *net.UDPConn) *quic.Transport {
	return &quic.Transport{Conn: udpConn}
}

// StartListener begins accepting QUIC connections on qt.
func StartListener(tlsConf *tls.Config, qConf *quic.Config, qt *quic.Transport) (*quic.Listener, error) {
	if !qConf.EnableDatagrams {
		panic("BUG: QUIC datagrams must be enabled; set EnableDatagrams=true")
	}

	ql, err := qt.Listen(tlsConf, qConf)
	if err != nil {
		return nil, fmt.Errorf("failed to start QUIC listener: %w", err)
	}
	return ql, nil
}
