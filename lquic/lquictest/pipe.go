package lquictest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lquic"
)

// MaxPipeDatagramSize mirrors a conservative QUIC datagram payload limit.
// [PipeConn.SendDatagram] rejects anything larger,
// the way a real connection rejects an oversized datagram.
const MaxPipeDatagramSize = 1200

// ErrPipeClosed is returned from PipeConn methods after either side closes.
var ErrPipeClosed = errors.New("pipe connection closed")

// DatagramTooLargeError is returned from [PipeConn.SendDatagram]
// for payloads over [MaxPipeDatagramSize].
type DatagramTooLargeError struct {
	Size int
}

func (e DatagramTooLargeError) Error() string {
	return fmt.Sprintf("datagram of %d bytes exceeds limit of %d", e.Size, MaxPipeDatagramSize)
}

// pipeShared is the state common to both ends of a pipe.
type pipeShared struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	streams []net.Conn
}

// PipeConn is one end of an in-memory connection created by [NewPipe].
//
// Streams are backed by [net.Pipe], so writes block until the peer reads.
// Datagrams are delivered through a buffered channel
// and silently dropped when the peer's buffer is full.
type PipeConn struct {
	shared *pipeShared
	peer   *PipeConn

	local, remote lcert.Identity

	incomingStreams chan net.Conn
	datagrams       chan []byte

	mu   sync.Mutex
	drop bool
}

var _ lquic.Conn = (*PipeConn)(nil)

// NewPipe returns two connected in-memory endpoints.
// hostID and clientID determine what each side reports
// as the remote certificate in [PipeConn.TLSConnectionState].
func NewPipe(hostID, clientID lcert.Identity) (host, client *PipeConn) {
	ctx, cancel := context.WithCancelCause(context.Background())
	shared := &pipeShared{ctx: ctx, cancel: cancel}

	host = &PipeConn{
		shared: shared,
		local:  hostID, remote: clientID,

		incomingStreams: make(chan net.Conn, 1),
		datagrams:       make(chan []byte, 64),
	}
	client = &PipeConn{
		shared: shared,
		local:  clientID, remote: hostID,

		incomingStreams: make(chan net.Conn, 1),
		datagrams:       make(chan []byte, 64),
	}
	host.peer = client
	client.peer = host

	return host, client
}

// AcceptStream implements [lquic.Conn].
func (c *PipeConn) AcceptStream(ctx context.Context) (lquic.Stream, error) {
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-c.shared.ctx.Done():
		return nil, ErrPipeClosed
	case nc := <-c.incomingStreams:
		return pipeStream{Conn: nc}, nil
	}
}

// OpenStreamSync implements [lquic.Conn].
func (c *PipeConn) OpenStreamSync(ctx context.Context) (lquic.Stream, error) {
	if err := c.shared.ctx.Err(); err != nil {
		return nil, ErrPipeClosed
	}

	mine, theirs := net.Pipe()

	c.shared.mu.Lock()
	c.shared.streams = append(c.shared.streams, mine, theirs)
	c.shared.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-c.shared.ctx.Done():
		return nil, ErrPipeClosed
	case c.peer.incomingStreams <- theirs:
		return pipeStream{Conn: mine}, nil
	}
}

// SendDatagram implements [lquic.Conn].
func (c *PipeConn) SendDatagram(p []byte) error {
	if err := c.shared.ctx.Err(); err != nil {
		return ErrPipeClosed
	}
	if len(p) > MaxPipeDatagramSize {
		return DatagramTooLargeError{Size: len(p)}
	}

	c.mu.Lock()
	drop := c.drop
	c.mu.Unlock()
	if drop {
		return nil
	}

	c.peer.deliver(p)
	return nil
}

// ReceiveDatagram implements [lquic.Conn].
func (c *PipeConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-c.shared.ctx.Done():
		return nil, ErrPipeClosed
	case b := <-c.datagrams:
		return b, nil
	}
}

// Inject places b in c's own inbound datagram queue,
// as though the peer had sent it.
// The send is dropped if the queue is full.
func (c *PipeConn) Inject(b []byte) {
	c.deliver(b)
}

// SetDropDatagrams controls whether datagrams sent from c
// are silently discarded instead of delivered.
func (c *PipeConn) SetDropDatagrams(drop bool) {
	c.mu.Lock()
	c.drop = drop
	c.mu.Unlock()
}

func (c *PipeConn) deliver(b []byte) {
	cp := make([]byte, len(b))
	_ = copy(cp, b)

	select {
	case c.datagrams <- cp:
	default:
		// Buffer full; unreliable delivery allows dropping.
	}
}

// CloseWithError implements [lquic.Conn].
// It closes both ends and every stream opened on the pipe.
func (c *PipeConn) CloseWithError(code lquic.ApplicationErrorCode, msg string) error {
	c.shared.cancel(fmt.Errorf("%w (code %d: %s)", ErrPipeClosed, code, msg))

	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	for _, s := range c.shared.streams {
		_ = s.Close()
	}
	c.shared.streams = nil

	return nil
}

// Context implements [lquic.Conn].
func (c *PipeConn) Context() context.Context {
	return c.shared.ctx
}

// TLSConnectionState implements [lquic.Conn].
// Only PeerCertificates is populated.
func (c *PipeConn) TLSConnectionState() tls.ConnectionState {
	return tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{c.remote.Cert.Leaf},
	}
}

// LocalAddr implements [lquic.Conn].
func (c *PipeConn) LocalAddr() net.Addr {
	return StubNetAddr{NetworkValue: "pipe", StringValue: c.local.ID.Short()}
}

// RemoteAddr implements [lquic.Conn].
func (c *PipeConn) RemoteAddr() net.Addr {
	return StubNetAddr{NetworkValue: "pipe", StringValue: c.remote.ID.Short()}
}

// pipeStream adapts a [net.Conn] from [net.Pipe] to [lquic.Stream].
// net.Pipe has no half-close, so Close and both cancels close the whole pipe.
type pipeStream struct {
	net.Conn
}

func (s pipeStream) CancelRead(lquic.StreamErrorCode)  { _ = s.Conn.Close() }
func (s pipeStream) CancelWrite(lquic.StreamErrorCode) { _ = s.Conn.Close() }

func (s pipeStream) SetReadDeadline(t time.Time) error  { return s.Conn.SetReadDeadline(t) }
func (s pipeStream) SetWriteDeadline(t time.Time) error { return s.Conn.SetWriteDeadline(t) }

// StubNetAddr is a fixed [net.Addr].
type StubNetAddr struct {
	NetworkValue string
	StringValue  string
}

var _ net.Addr = StubNetAddr{}

func (a StubNetAddr) Network() string { return a.NetworkValue }
func (a StubNetAddr) String() string  { return a.StringValue }
