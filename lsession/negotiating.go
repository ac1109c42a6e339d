package lsession

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lchan"
	"github.com/gordian-engine/lanterm/lquic"
	"github.com/google/uuid"
)

// Config is the configuration shared by a session across resets.
type Config struct {
	// Limits and timeouts for the typed channels of the Active phase.
	Channel lchan.Config

	// Upper bound on the selector frame read during the handshake.
	MaxSelectorSize uint32
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		Channel:         lchan.DefaultConfig(),
		MaxSelectorSize: 256,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxSelectorSize == 0 {
		c.MaxSelectorSize = DefaultConfig().MaxSelectorSize
	}
	return c
}

// Negotiating is a session that may only perform the handshake.
//
// A Negotiating value is owned by a single goroutine.
type Negotiating struct {
	id   uuid.UUID
	base *slog.Logger
	log  *slog.Logger

	conn lquic.Conn
	role Role
	cfg  Config

	local, remote lcert.PeerID

	selector string
	stream   lquic.Stream
	upgraded bool
}

// New returns a Negotiating session over conn.
// The remote identity is read from the connection's TLS state.
func New(
	log *slog.Logger,
	conn lquic.Conn,
	role Role,
	local lcert.PeerID,
	cfg Config,
) (*Negotiating, error) {
	if role != Host && role != Client {
		panic(fmt.Errorf("BUG: invalid role %d", role))
	}

	remote, err := lquic.RemotePeerID(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to identify remote peer: %w", err)
	}

	return newNegotiating(log, conn, role, local, remote, cfg.withDefaults()), nil
}

func newNegotiating(
	log *slog.Logger,
	conn lquic.Conn,
	role Role,
	local, remote lcert.PeerID,
	cfg Config,
) *Negotiating {
	id := uuid.New()
	return &Negotiating{
		id:   id,
		base: log,
		log: log.With(
			"session", id.String(),
			"role", role.String(),
			"remote", remote.Short(),
		),

		conn: conn,
		role: role,
		cfg:  cfg,

		local:  local,
		remote: remote,
	}
}

// ID is a per-handshake correlation identifier used in logs.
// A session returned from [Active.Reset] has a new ID.
func (n *Negotiating) ID() uuid.UUID { return n.id }

// Role reports whether this side is host or client.
func (n *Negotiating) Role() Role { return n.role }

// Local returns this side's peer identity.
func (n *Negotiating) Local() lcert.PeerID { return n.local }

// Remote returns the other side's peer identity.
func (n *Negotiating) Remote() lcert.PeerID { return n.remote }

// Selector returns the agreed application selector,
// or the empty string before the handshake completes.
func (n *Negotiating) Selector() string { return n.selector }

// Conn returns the underlying connection.
func (n *Negotiating) Conn() lquic.Conn { return n.conn }

// HostHandshake opens the session's reliable stream
// and announces selector to the client.
func (n *Negotiating) HostHandshake(ctx context.Context, selector string) error {
	if n.role != Host {
		return ErrNotHost
	}
	if n.stream != nil {
		return ErrSessionActive
	}
	if selector == "" || !utf8.ValidString(selector) {
		return fmt.Errorf("invalid application selector %q", selector)
	}
	if uint32(len(selector)) > n.cfg.MaxSelectorSize {
		return fmt.Errorf("application selector longer than %d bytes", n.cfg.MaxSelectorSize)
	}

	s, err := n.conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session stream: %w", err)
	}

	// Bound the write by ctx.
	stop := context.AfterFunc(ctx, func() {
		_ = s.SetWriteDeadline(time.Now())
	})
	err = lchan.WriteFrame(s, []byte(selector), n.cfg.MaxSelectorSize)
	stop()
	if err != nil {
		s.CancelWrite(lquic.StreamCanceled)
		s.CancelRead(lquic.StreamCanceled)
		return fmt.Errorf("failed to send application selector: %w", err)
	}
	if err := s.SetWriteDeadline(time.Time{}); err != nil {
		return fmt.Errorf("failed to clear write deadline: %w", err)
	}

	n.stream = s
	n.selector = selector

	n.log.Debug("Sent application selector", "app", selector)
	return nil
}

// ClientHandshake accepts the host's session stream
// and reads the application selector from it.
//
// If want is non-empty and the host selected a different application,
// the stream is canceled and a [HandshakeMismatchError] is returned.
func (n *Negotiating) ClientHandshake(ctx context.Context, want string) (string, error) {
	if n.role != Client {
		return "", ErrNotClient
	}
	if n.stream != nil {
		return "", ErrSessionActive
	}

	s, err := n.conn.AcceptStream(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to accept session stream: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.SetReadDeadline(time.Now())
	})
	b, err := lchan.ReadFrame(s, n.cfg.MaxSelectorSize)
	stop()
	if err != nil {
		s.CancelRead(lquic.StreamCanceled)
		s.CancelWrite(lquic.StreamCanceled)
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		return "", fmt.Errorf("failed to read application selector: %w", err)
	}
	if err := s.SetReadDeadline(time.Time{}); err != nil {
		return "", fmt.Errorf("failed to clear read deadline: %w", err)
	}

	selector := string(b)
	if selector == "" || !utf8.Valid(b) {
		s.CancelRead(lquic.StreamCanceled)
		s.CancelWrite(lquic.StreamCanceled)
		return "", &lchan.FramingError{Reason: "invalid application selector"}
	}
	if want != "" && selector != want {
		s.CancelRead(lquic.StreamCanceled)
		s.CancelWrite(lquic.StreamCanceled)
		return "", HandshakeMismatchError{Host: selector, Client: want}
	}

	n.stream = s
	n.selector = selector

	n.log.Debug("Received application selector", "app", selector)
	return selector, nil
}

// Close closes the underlying connection.
func (n *Negotiating) Close(reason string) error {
	if n.stream != nil {
		n.stream.CancelRead(lquic.StreamCanceled)
		n.stream.CancelWrite(lquic.StreamCanceled)
	}
	return n.conn.CloseWithError(lquic.CloseNormal, reason)
}
