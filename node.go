package lanterm

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lquic"
	"github.com/gordian-engine/lanterm/lsession"
	"github.com/quic-go/quic-go"
)

// Node is a lanterm peer.
// It contains a QUIC listener and dials outgoing connections
// over the same UDP socket.
type Node struct {
	log *slog.Logger

	ctx context.Context
	wg  sync.WaitGroup

	identity lcert.Identity

	quicConf      *quic.Config
	quicTransport *quic.Transport
	quicListener  *quic.Listener

	dialer lquic.Dialer

	sessCfg lsession.Config
}

// NodeConfig is the configuration for a [Node].
type NodeConfig struct {
	// The caller retains ownership of the socket
	// and should close it after [*Node.Wait] returns.
	UDPConn *net.UDPConn

	// If nil, [lquic.DefaultConfig] is used.
	QUIC *quic.Config

	Identity lcert.Identity

	// Applied to every session the node creates.
	Session lsession.Config
}

// validate panics if there are any illegal settings in the configuration.
// It also warns about suspect settings.
func (c NodeConfig) validate(log *slog.Logger) {
	var panicErrs error

	if c.UDPConn == nil {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("NodeConfig.UDPConn must not be nil"),
		)
	}

	if c.QUIC != nil && !c.QUIC.EnableDatagrams {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("QUIC datagrams must be enabled; set NodeConfig.QUIC.EnableDatagrams=true"),
		)
	}

	if c.Identity.ID.IsZero() || c.Identity.Cert.Leaf == nil {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("NodeConfig.Identity must be set (use lcert.GenerateIdentity)"),
		)
	} else {
		leaf := c.Identity.Cert.Leaf
		now := time.Now()
		if leaf.NotAfter.Before(now) {
			log.Error(
				"Certificate's not after field is in the past",
				"not_after", leaf.NotAfter,
			)
		}
		if !slices.Contains(leaf.ExtKeyUsage, x509.ExtKeyUsageServerAuth) ||
			!slices.Contains(leaf.ExtKeyUsage, x509.ExtKeyUsageClientAuth) {
			log.Error(
				"Certificate is missing server or client authentication usage; remotes will reject TLS handshake",
			)
		}
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// NewNode returns a new Node with the given configuration.
// The ctx parameter controls the lifecycle of the Node;
// cancel the context to stop the node,
// and then use [*Node.Wait] to block until all background work has completed.
//
// NewNode returns runtime errors that happen during initialization.
// Configuration errors cause a panic.
func NewNode(ctx context.Context, log *slog.Logger, cfg NodeConfig) (*Node, error) {
	cfg.validate(log)

	qConf := cfg.QUIC
	if qConf == nil {
		qConf = lquic.DefaultConfig()
	}

	qt := lquic.MakeTransport(cfg.UDPConn)

	ql, err := lquic.StartListener(lcert.ServerTLSConfig(cfg.Identity), qConf, qt)
	if err != nil {
		// Already wrapped.
		return nil, err
	}

	n := &Node{
		log: log,
		ctx: ctx,

		identity: cfg.Identity,

		quicConf:      qConf,
		quicTransport: qt,
		quicListener:  ql,

		dialer: lquic.Dialer{
			Identity: cfg.Identity,

			QUICTransport: qt,
			QUICConfig:    qConf,
		},

		sessCfg: cfg.Session,
	}

	n.wg.Add(1)
	go n.closeOnDone()

	log.Info(
		"Node started",
		"id", cfg.Identity.ID.String(),
		"addr", cfg.UDPConn.LocalAddr().String(),
	)

	return n, nil
}

func (n *Node) closeOnDone() {
	defer n.wg.Done()

	<-n.ctx.Done()

	if err := n.quicListener.Close(); err != nil {
		n.log.Info("Error closing QUIC listener", "err", err)
	}
	if err := n.quicTransport.Close(); err != nil {
		n.log.Info("Error closing QUIC transport", "err", err)
	}
}

// ID returns the node's peer ID.
func (n *Node) ID() lcert.PeerID {
	return n.identity.ID
}

// Addr returns the local address of the node's socket.
func (n *Node) Addr() net.Addr {
	return n.quicListener.Addr()
}

// Wait blocks until the node has finished all background work.
func (n *Node) Wait() {
	n.wg.Wait()
}

// Accept blocks until an incoming connection completes its TLS handshake,
// and returns it as a host session.
func (n *Node) Accept(ctx context.Context) (*lsession.Negotiating, error) {
	for {
		qc, err := n.quicListener.Accept(ctx)
		if err != nil {
			if n.ctx.Err() != nil {
				return nil, ErrNodeStopped
			}
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			return nil, fmt.Errorf("failed to accept connection: %w", err)
		}

		conn := lquic.WrapConn(qc)
		s, err := lsession.New(
			n.log.With("dir", "in"), conn, lsession.Host, n.identity.ID, n.sessCfg,
		)
		if err != nil {
			// The TLS callback already parsed the certificate,
			// so this is unexpected; drop the connection and keep accepting.
			n.log.Warn("Dropping connection with unreadable identity", "err", err)
			_ = conn.CloseWithError(lquic.CloseProtocolViolation, "unreadable certificate")
			continue
		}

		n.log.Info(
			"Accepted connection",
			"remote", s.Remote().String(),
			"addr", qc.RemoteAddr().String(),
		)
		return s, nil
	}
}

// AcceptLoop accepts connections in a background goroutine
// and sends each resulting host session on out,
// until ctx or the node's lifecycle context is canceled.
//
// The loop never closes out.
// Sessions are only passed by message,
// so a running engine can receive them without sharing state.
func (n *Node) AcceptLoop(ctx context.Context, out chan<- *lsession.Negotiating) {
	n.wg.Add(1)
	go n.acceptLoop(ctx, out)
}

func (n *Node) acceptLoop(ctx context.Context, out chan<- *lsession.Negotiating) {
	defer n.wg.Done()

	for {
		s, err := n.Accept(ctx)
		if err != nil {
			if errors.Is(err, ErrNodeStopped) || ctx.Err() != nil {
				n.log.Debug("Accept loop quitting", "cause", err)
				return
			}

			// Debug-level because garbage connections could make this spammy.
			n.log.Debug("Failed to accept incoming connection", "err", err)
			continue
		}

		select {
		case <-ctx.Done():
			_ = s.Close("node not accepting")
			return
		case <-n.ctx.Done():
			_ = s.Close("node stopping")
			return
		case out <- s:
		}
	}
}

// Dial connects to addr and returns a client session.
// If expect is non-zero, the connection fails
// unless the remote presents that peer ID.
func (n *Node) Dial(ctx context.Context, addr string, expect lcert.PeerID) (*lsession.Negotiating, error) {
	if n.ctx.Err() != nil {
		return nil, ErrNodeStopped
	}

	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", addr, err)
	}

	res, err := n.dialer.Dial(ctx, ua, expect)
	if err != nil {
		// Already wrapped.
		return nil, err
	}

	s, err := lsession.New(
		n.log.With("dir", "out"), res.Conn, lsession.Client, n.identity.ID, n.sessCfg,
	)
	if err != nil {
		_ = res.Conn.CloseWithError(lquic.CloseProtocolViolation, "unreadable certificate")
		return nil, err
	}

	n.log.Info("Dialed peer", "remote", res.Remote.String(), "addr", addr)
	return s, nil
}
