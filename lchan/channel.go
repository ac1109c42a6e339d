package lchan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordian-engine/lanterm/lcodec"
	"github.com/gordian-engine/lanterm/lquic"
)

// Config tunes a [Channel].
type Config struct {
	// Upper bound on a single reliable frame's payload.
	MaxFrameSize uint32

	// Deadline applied to each reliable write.
	// A peer that stops reading eventually fails our writes
	// instead of stalling the run loop forever.
	WriteTimeout time.Duration
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		MaxFrameSize: 4 << 20,
		WriteTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// validator is optionally implemented by message types
// that have structural invariants a codec cannot express,
// such as exactly one populated variant of a tagged union.
type validator interface {
	Validate() error
}

// Channel is the typed message channel over one connection.
//
// The reliable side may be nil for a datagram-only channel,
// such as the one carrying the start signal.
//
// A Channel holds no reference to its owner;
// it is safe to share between the run loop and receive goroutines.
// Reliable sends are serialized internally.
// At most one goroutine should call [Channel.NextReliable] at a time.
type Channel[M any] struct {
	log *slog.Logger

	conn   lquic.Conn
	stream lquic.Stream
	codec  lcodec.Codec
	cfg    Config

	writeMu sync.Mutex
}

// New returns a Channel over conn and stream.
// A nil codec selects [lcodec.Default].
func New[M any](
	log *slog.Logger,
	conn lquic.Conn,
	stream lquic.Stream,
	codec lcodec.Codec,
	cfg Config,
) *Channel[M] {
	if conn == nil {
		panic("BUG: lchan.New requires a non-nil connection")
	}
	if codec == nil {
		codec = lcodec.Default()
	}

	return &Channel[M]{
		log: log,

		conn:   conn,
		stream: stream,
		codec:  codec,
		cfg:    cfg.withDefaults(),
	}
}

// SendReliable serializes msg and writes it as one length-prefixed frame.
// On success the frame has been handed to the stream in order
// after every previously sent frame.
func (c *Channel[M]) SendReliable(msg M) error {
	if c.stream == nil {
		panic("BUG: SendReliable called on a datagram-only channel")
	}

	b, err := c.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode reliable message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.stream.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return &TransportError{Op: "set write deadline", Err: err}
	}

	return WriteFrame(c.stream, b, c.cfg.MaxFrameSize)
}

// NextReliable blocks until a complete frame arrives and decodes it.
//
// Any error returned is fatal to the connection.
// Closing the connection or canceling the stream's read side
// unblocks a pending call.
func (c *Channel[M]) NextReliable() (M, error) {
	if c.stream == nil {
		panic("BUG: NextReliable called on a datagram-only channel")
	}

	var msg M

	b, err := ReadFrame(c.stream, c.cfg.MaxFrameSize)
	if err != nil {
		return msg, err
	}

	if err := c.decode(b, &msg); err != nil {
		return msg, &DecodeError{Reliable: true, Err: err}
	}
	return msg, nil
}

// SendUnreliable serializes msg into a single datagram.
// There is no delivery guarantee.
// An error means the local transport rejected the send,
// typically because the payload exceeds the datagram size limit.
func (c *Channel[M]) SendUnreliable(msg M) error {
	b, err := c.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode unreliable message: %w", err)
	}

	if err := c.conn.SendDatagram(b); err != nil {
		return &TransportError{Op: "send datagram", Err: err}
	}
	return nil
}

// NextUnreliable blocks until a datagram arrives that decodes as M.
//
// Datagrams that fail to decode are dropped and the wait continues.
// The only errors returned are context cancellation
// or a [TransportError] from the connection.
// Each call is independent, so a canceled call can simply be issued again.
func (c *Channel[M]) NextUnreliable(ctx context.Context) (M, error) {
	var msg M
	for {
		b, err := c.conn.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return msg, context.Cause(ctx)
			}
			return msg, &TransportError{Op: "receive datagram", Err: err}
		}

		var candidate M
		if err := c.decode(b, &candidate); err != nil {
			c.log.Debug(
				"Dropping undecodable datagram",
				"size", len(b),
				"err", err,
			)
			continue
		}

		return candidate, nil
	}
}

func (c *Channel[M]) decode(b []byte, msg *M) error {
	if err := c.codec.Unmarshal(b, msg); err != nil {
		return err
	}

	if v, ok := any(msg).(validator); ok {
		return v.Validate()
	}
	if v, ok := any(*msg).(validator); ok {
		return v.Validate()
	}
	return nil
}

// Conn returns the underlying connection.
func (c *Channel[M]) Conn() lquic.Conn {
	return c.conn
}
