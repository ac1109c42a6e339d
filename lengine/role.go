package lengine

import (
	"errors"
	"slices"
	"time"

	"github.com/gordian-engine/lanterm/lchan"
	"github.com/gordian-engine/lanterm/lsync"
)

// roleStrategy holds everything that differs between host and client loops.
// Methods are only called from the loop goroutine.
type roleStrategy[A, S any] interface {
	onAttach(p *peer[A, S])

	onLocalAction(a A) error
	onActionReceived(from *peer[A, S], a A) error
	onSnapshotReceived(snap lsync.Snapshot[S])

	onTick(now time.Time)
	shouldBroadcast(now time.Time) bool
	broadcast(now time.Time)

	resendStart()

	// peerFailed handles a fatal error attributed to p,
	// or to the sole remote peer if p is nil.
	// A non-nil return ends the loop with that result.
	peerFailed(p *peer[A, S], err error) *stopResult[S]

	wantsDatagrams() bool
	view() S
}

type stopResult[S any] struct {
	res Result[S]
	err error
}

// hostRole owns the authoritative state.
type hostRole[A, S any] struct {
	e *Engine[A, S]

	state S
	dirty bool

	seq lsync.Sequencer

	ticker   Ticker[S]
	lastTick time.Time

	observer PeerObserver[S]

	lastBroadcast time.Time
}

func (h *hostRole[A, S]) onAttach(p *peer[A, S]) {
	remote := p.sess.Remote()
	h.e.log.Info("Peer joined application", "peer", remote.Short())

	if h.observer != nil {
		h.observer.PeerJoined(&h.state, remote)
	}
	h.dirty = true

	if err := p.sess.SendStart(); err != nil {
		h.detach(p, err)
	}
}

func (h *hostRole[A, S]) onLocalAction(a A) error {
	h.e.cfg.App.HandleInput(&h.state, a, h.e.cfg.Local)
	h.dirty = true
	return nil
}

func (h *hostRole[A, S]) onActionReceived(from *peer[A, S], a A) error {
	h.e.cfg.App.HandleInput(&h.state, a, from.sess.Remote())
	h.dirty = true
	return nil
}

func (h *hostRole[A, S]) onSnapshotReceived(lsync.Snapshot[S]) {
	// Host pumps no datagrams.
	panic("BUG: host received snapshot")
}

func (h *hostRole[A, S]) onTick(now time.Time) {
	if h.ticker == nil {
		return
	}

	elapsed, _ := h.e.cfg.tickInterval()
	if !h.lastTick.IsZero() {
		elapsed = now.Sub(h.lastTick)
	}
	h.lastTick = now

	h.ticker.OnTick(&h.state, elapsed)
	h.dirty = true
}

func (h *hostRole[A, S]) shouldBroadcast(now time.Time) bool {
	if len(h.e.peers) == 0 {
		return false
	}
	if h.ticker != nil || h.dirty {
		return true
	}
	return now.Sub(h.lastBroadcast) >= h.e.cfg.ResyncInterval
}

func (h *hostRole[A, S]) broadcast(now time.Time) {
	seq := h.seq.Next()

	for _, p := range slices.Clone(h.e.peers) {
		if err := p.sess.SendSnapshot(seq, h.state); err != nil {
			h.detach(p, err)
		}
	}

	h.dirty = false
	h.lastBroadcast = now
	h.e.publish(seq, cloneState(h.state))
}

func (h *hostRole[A, S]) resendStart() {
	for _, p := range slices.Clone(h.e.peers) {
		if err := p.sess.SendStart(); err != nil {
			h.detach(p, err)
		}
	}
}

func (h *hostRole[A, S]) peerFailed(p *peer[A, S], err error) *stopResult[S] {
	if p == nil {
		panic(errors.New("BUG: host failure without a peer"))
	}
	h.detach(p, err)
	return nil
}

// detach removes p after its channel failed.
// If the client only ended its application stream,
// the reset session is kept for the result;
// otherwise the connection is closed.
func (h *hostRole[A, S]) detach(p *peer[A, S], err error) {
	h.e.remove(p)

	remote := p.sess.Remote()
	if streamEnded(err, p.sess) {
		h.e.log.Info("Peer left application", "peer", remote.Short())
		h.e.departed = append(h.e.departed, p.sess.Reset())
	} else {
		h.e.log.Warn("Detaching failed peer", "peer", remote.Short(), "err", err)
		_ = p.sess.CloseWithError(closeCode(err), "application channel failed")
	}

	if h.observer != nil {
		h.observer.PeerLeft(&h.state, remote)
	}
	h.dirty = true

	if h.e.cfg.PeerDetached != nil {
		h.e.cfg.PeerDetached(remote)
	}
}

func (h *hostRole[A, S]) wantsDatagrams() bool { return false }

func (h *hostRole[A, S]) view() S { return h.state }

// clientRole replicates the host's state.
type clientRole[A, S any] struct {
	e *Engine[A, S]

	host    *peer[A, S]
	replica *lsync.Replica[S]
}

func (c *clientRole[A, S]) onAttach(p *peer[A, S]) {
	c.host = p
}

func (c *clientRole[A, S]) onLocalAction(a A) error {
	// Never applied locally; the next snapshot reflects the outcome.
	return c.host.sess.SendAction(a)
}

func (c *clientRole[A, S]) onActionReceived(*peer[A, S], A) error {
	return &lchan.DecodeError{Reliable: true, Err: errors.New("host sent an action")}
}

func (c *clientRole[A, S]) onSnapshotReceived(snap lsync.Snapshot[S]) {
	if !c.replica.Apply(snap) {
		c.e.log.Debug(
			"Dropping stale snapshot",
			"seq", snap.Seq, "last", c.replica.Last(),
		)
		return
	}

	// Each accepted state is freshly decoded and never mutated,
	// so it can be published without cloning.
	c.e.publish(snap.Seq, snap.State)
}

// Clients never self-tick.
func (c *clientRole[A, S]) onTick(time.Time) {}

func (c *clientRole[A, S]) shouldBroadcast(time.Time) bool { return false }

func (c *clientRole[A, S]) broadcast(time.Time) {
	panic("BUG: client asked to broadcast")
}

func (c *clientRole[A, S]) resendStart() {
	c.e.log.Debug("Ignoring start resend on client")
}

func (c *clientRole[A, S]) peerFailed(_ *peer[A, S], err error) *stopResult[S] {
	p := c.host
	c.e.remove(p)

	pe := &PeerError{Peer: p.sess.Remote(), Err: err}

	if streamEnded(err, p.sess) {
		c.e.log.Info("Host ended application")
		c.e.departed = append(c.e.departed, p.sess.Reset())
		return &stopResult[S]{res: c.e.finish(ReasonRemoteEnded)}
	}

	c.e.log.Warn("Host session failed", "err", err)
	_ = p.sess.CloseWithError(closeCode(err), "application channel failed")
	return &stopResult[S]{
		res: c.e.finish(ReasonFailed),
		err: pe,
	}
}

func (c *clientRole[A, S]) wantsDatagrams() bool { return true }

func (c *clientRole[A, S]) view() S { return c.replica.State() }

var (
	_ roleStrategy[int, int] = (*hostRole[int, int])(nil)
	_ roleStrategy[int, int] = (*clientRole[int, int])(nil)
)
