package lquictest

import (
	"context"
	"net"
	"testing"

	"github.com/gordian-engine/lanterm/internal/ltest"
	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lquic"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"
)

// Pair is a live QUIC connection between two local endpoints.
// By convention the accepting side is the host.
type Pair struct {
	HostIdentity, ClientIdentity lcert.Identity

	// HostConn is the connection accepted by the host's listener.
	// ClientConn is the connection returned from the client's dial.
	HostConn, ClientConn lquic.Conn
}

// NewPair creates two UDP sockets on 127.0.0.1,
// starts a listener on the first, dials it from the second,
// and returns both ends of the resulting connection.
//
// Sockets and connections are closed through [*testing.T.Cleanup].
func NewPair(t *testing.T, ctx context.Context) Pair {
	t.Helper()

	hostID, err := lcert.GenerateIdentity(lcert.IdentityConfig{})
	require.NoError(t, err)
	clientID, err := lcert.GenerateIdentity(lcert.IdentityConfig{})
	require.NoError(t, err)

	hostUDP := listenLocalUDP(t)
	clientUDP := listenLocalUDP(t)

	hostQT := lquic.MakeTransport(hostUDP)
	clientQT := lquic.MakeTransport(clientUDP)
	t.Cleanup(func() {
		_ = hostQT.Close()
		_ = clientQT.Close()
	})

	ql, err := lquic.StartListener(lcert.ServerTLSConfig(hostID), lquic.DefaultConfig(), hostQT)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ql.Close() })

	acceptedCh := make(chan *quic.Conn, 1)
	go func() {
		qc, err := ql.Accept(ctx)
		if err != nil {
			t.Error(err)
			acceptedCh <- nil
			return
		}
		acceptedCh <- qc
	}()

	d := lquic.Dialer{
		Identity:      clientID,
		QUICTransport: clientQT,
		QUICConfig:    lquic.DefaultConfig(),
	}
	res, err := d.Dial(ctx, hostUDP.LocalAddr(), hostID.ID)
	require.NoError(t, err)
	require.Equal(t, hostID.ID, res.Remote)

	accepted := ltest.ReceiveSoon(t, acceptedCh)
	require.NotNil(t, accepted)

	hostConn := lquic.WrapConn(accepted)
	t.Cleanup(func() {
		_ = hostConn.CloseWithError(lquic.CloseNormal, "test done")
		_ = res.Conn.CloseWithError(lquic.CloseNormal, "test done")
	})

	return Pair{
		HostIdentity:   hostID,
		ClientIdentity: clientID,

		HostConn:   hostConn,
		ClientConn: res.Conn,
	}
}

func listenLocalUDP(t *testing.T) *net.UDPConn {
	t.Helper()

	uc, err := net.ListenUDP("udp", &net.UDPAddr{
		IP: net.IPv4(127, 0, 0, 1),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = uc.Close() })

	return uc
}
