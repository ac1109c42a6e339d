package lsession

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lchan"
	"github.com/gordian-engine/lanterm/lcodec"
	"github.com/gordian-engine/lanterm/lquic"
	"github.com/gordian-engine/lanterm/lsync"
	"github.com/google/uuid"
)

// Active is a session running the application selected during the handshake,
// exchanging [lsync.Envelope] values typed on action A and state S.
//
// Send and receive methods may be called from different goroutines,
// so an engine can pump inbound messages in the background
// while its main loop sends.
type Active[A, S any] struct {
	base, log *slog.Logger

	// Fields copied from the Negotiating session.
	id            uuid.UUID
	conn          lquic.Conn
	stream        lquic.Stream
	role          Role
	cfg           Config
	local, remote lcert.PeerID
	selector      string

	env *lchan.Channel[lsync.Envelope[A, S]]
	ctl *lchan.Channel[lsync.Control]

	reset atomic.Bool
}

// Upgrade consumes n, which must have completed its handshake,
// and returns the Active session for the selected application.
// A nil codec selects [lcodec.Default].
//
// Both peers must upgrade with the same types and an equivalent codec.
func Upgrade[A, S any](n *Negotiating, codec lcodec.Codec) (*Active[A, S], error) {
	if n.upgraded {
		return nil, ErrAlreadyUpgraded
	}
	if n.stream == nil {
		return nil, ErrHandshakeIncomplete
	}
	n.upgraded = true

	log := n.log.With("app", n.selector)

	return &Active[A, S]{
		base: n.base,
		log:  log,

		id:       n.id,
		conn:     n.conn,
		stream:   n.stream,
		role:     n.role,
		cfg:      n.cfg,
		local:    n.local,
		remote:   n.remote,
		selector: n.selector,

		env: lchan.New[lsync.Envelope[A, S]](log, n.conn, n.stream, codec, n.cfg.Channel),
		ctl: lchan.New[lsync.Control](log, n.conn, nil, codec, n.cfg.Channel),
	}, nil
}

// ID returns the correlation ID of the handshake that produced a.
func (a *Active[A, S]) ID() uuid.UUID { return a.id }

// Role reports whether this side is host or client.
func (a *Active[A, S]) Role() Role { return a.role }

// Local returns this side's peer identity.
func (a *Active[A, S]) Local() lcert.PeerID { return a.local }

// Remote returns the other side's peer identity.
func (a *Active[A, S]) Remote() lcert.PeerID { return a.remote }

// Selector returns the application agreed during the handshake.
func (a *Active[A, S]) Selector() string { return a.selector }

// Context is canceled when the underlying connection closes.
func (a *Active[A, S]) Context() context.Context { return a.conn.Context() }

// SendAction sends an action to the host on the reliable channel.
// Only a client may send actions;
// the host applies its own actions directly.
func (a *Active[A, S]) SendAction(act A) error {
	if a.reset.Load() {
		return ErrSessionReset
	}
	if a.role != Client {
		return ErrNotClient
	}
	return a.env.SendReliable(lsync.ActionEnvelope[A, S](act))
}

// SendSnapshot broadcasts state stamped with seq on the unreliable channel.
// Only the host may send snapshots.
func (a *Active[A, S]) SendSnapshot(seq uint64, state S) error {
	if a.reset.Load() {
		return ErrSessionReset
	}
	if a.role != Host {
		return ErrNotHost
	}
	return a.env.SendUnreliable(lsync.SnapshotEnvelope[A](seq, state))
}

// NextReliable blocks until the next envelope on the reliable channel.
// Every returned error is fatal to the session.
func (a *Active[A, S]) NextReliable() (lsync.Envelope[A, S], error) {
	if a.reset.Load() {
		return lsync.Envelope[A, S]{}, ErrSessionReset
	}
	return a.env.NextReliable()
}

// NextUnreliable blocks until the next decodable envelope datagram.
// Undecodable datagrams, including stray start signals, are dropped.
func (a *Active[A, S]) NextUnreliable(ctx context.Context) (lsync.Envelope[A, S], error) {
	if a.reset.Load() {
		return lsync.Envelope[A, S]{}, ErrSessionReset
	}
	return a.env.NextUnreliable(ctx)
}

// SendStart sends one start signal to the client.
// Delivery is not guaranteed;
// the host may call SendStart again until the client begins participating.
func (a *Active[A, S]) SendStart() error {
	if a.reset.Load() {
		return ErrSessionReset
	}
	if a.role != Host {
		return ErrNotHost
	}
	return a.ctl.SendUnreliable(lsync.Start())
}

// AwaitStart blocks until the client receives a start signal,
// discarding any other datagram.
func (a *Active[A, S]) AwaitStart(ctx context.Context) error {
	if a.reset.Load() {
		return ErrSessionReset
	}
	if a.role != Client {
		return ErrNotClient
	}

	if _, err := a.ctl.NextUnreliable(ctx); err != nil {
		return err
	}

	a.log.Debug("Received start signal")
	return nil
}

// Reset ends the application phase and returns a new Negotiating session
// on the same connection.
// The session stream is canceled, which unblocks a pending [Active.NextReliable]
// here and fails the peer's reliable reads on the old stream.
//
// Reset panics if called twice on the same value.
func (a *Active[A, S]) Reset() *Negotiating {
	if !a.reset.CompareAndSwap(false, true) {
		panic("BUG: Active.Reset called more than once")
	}

	a.stream.CancelRead(lquic.StreamCanceled)
	a.stream.CancelWrite(lquic.StreamCanceled)

	n := newNegotiating(a.base, a.conn, a.role, a.local, a.remote, a.cfg)
	a.log.Debug("Reset session", "next_session", n.id.String())
	return n
}

// Close closes the underlying connection normally.
// It is valid after Reset, but closes the connection
// under the new Negotiating session too.
func (a *Active[A, S]) Close(reason string) error {
	return a.CloseWithError(lquic.CloseNormal, reason)
}

// CloseWithError closes the underlying connection with the given code.
func (a *Active[A, S]) CloseWithError(code lquic.ApplicationErrorCode, reason string) error {
	if !a.reset.Load() {
		a.stream.CancelRead(lquic.StreamCanceled)
		a.stream.CancelWrite(lquic.StreamCanceled)
	}
	return a.conn.CloseWithError(code, reason)
}
