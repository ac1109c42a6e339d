package lquic

import (
	"context"
	"fmt"
	"net"

	"github.com/gordian-engine/lanterm/lcert"
	"github.com/quic-go/quic-go"
)

// Dialer handles establishing QUIC connections with remote peers.
type Dialer struct {
	Identity lcert.Identity

	QUICTransport *quic.Transport
	QUICConfig    *quic.Config
}

// DialResult is the return type for [Dialer.Dial].
type DialResult struct {
	Conn Conn

	// The identity the remote presented during the TLS handshake.
	Remote lcert.PeerID
}

// Dial opens a QUIC connection to the given address.
// If expect is non-zero, the TLS handshake fails
// unless the remote presents that key.
func (d Dialer) Dial(ctx context.Context, addr net.Addr, expect lcert.PeerID) (DialResult, error) {
	tlsConf := lcert.ClientTLSConfig(d.Identity, expect)

	rawQC, err := d.QUICTransport.Dial(ctx, addr, tlsConf, d.QUICConfig)
	if err != nil {
		return DialResult{}, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	qc := WrapConn(rawQC)

	remote, err := lcert.PeerIDFromState(qc.TLSConnectionState())
	if err != nil {
		// The TLS verification callback already parsed this certificate,
		// so failing here means the handshake state is inconsistent.
		_ = qc.CloseWithError(CloseProtocolViolation, "unreadable certificate")
		return DialResult{}, fmt.Errorf("failed to read remote identity: %w", err)
	}

	return DialResult{
		Conn:   qc,
		Remote: remote,
	}, nil
}

// RemotePeerID returns the identity of the remote side of an established connection.
func RemotePeerID(c Conn) (lcert.PeerID, error) {
	return lcert.PeerIDFromState(c.TLSConnectionState())
}
