package lengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/lanterm/lchan"
	"github.com/gordian-engine/lanterm/lpubsub"
	"github.com/gordian-engine/lanterm/lquic"
	"github.com/gordian-engine/lanterm/lsession"
	"github.com/gordian-engine/lanterm/lsync"
)

// Engine runs one application over its active sessions.
// Create it with [NewHost] or [NewClient] and call [Engine.Run] once.
type Engine[A, S any] struct {
	log *slog.Logger
	cfg Config[A, S]

	role roleStrategy[A, S]

	// Attached sessions, only touched by the loop goroutine.
	peers []*peer[A, S]

	// Sessions that ended their application while keeping the connection,
	// collected for the Result.
	departed []*lsession.Negotiating

	reliableCh   chan reliableEvent[A, S]
	unreliableCh chan unreliableEvent[A, S]

	rev *lpubsub.Stream[Revision[S]]

	pumpWG sync.WaitGroup
	ran    atomic.Bool
}

type peer[A, S any] struct {
	sess   *lsession.Active[A, S]
	cancel context.CancelFunc
}

type reliableEvent[A, S any] struct {
	from *peer[A, S]
	env  lsync.Envelope[A, S]
	err  error
}

type unreliableEvent[A, S any] struct {
	from *peer[A, S]
	env  lsync.Envelope[A, S]
	err  error
}

// NewHost returns an engine that owns the authoritative state
// and broadcasts it to the given client sessions,
// plus any later sessions received on [Config.Joins].
//
// NewHost panics if any session is not a host session.
func NewHost[A, S any](
	log *slog.Logger,
	cfg Config[A, S],
	sessions ...*lsession.Active[A, S],
) *Engine[A, S] {
	cfg.validate()

	e := newEngine(log, cfg)
	h := &hostRole[A, S]{
		e:     e,
		state: cfg.App.NewGame(),
	}
	if t, ok := cfg.App.(Ticker[S]); ok && t.TickRate() > 0 {
		h.ticker = t
	}
	if o, ok := cfg.App.(PeerObserver[S]); ok {
		h.observer = o
	}
	e.role = h

	for _, s := range sessions {
		if s.Role() != lsession.Host {
			panic(fmt.Errorf("BUG: NewHost given %s session", s.Role()))
		}
		e.peers = append(e.peers, &peer[A, S]{sess: s})
	}

	return e
}

// NewClient returns an engine that replicates the host's state
// received over sess.
//
// NewClient panics if sess is not a client session,
// or if the config sets Joins.
func NewClient[A, S any](
	log *slog.Logger,
	cfg Config[A, S],
	sess *lsession.Active[A, S],
) *Engine[A, S] {
	cfg.validate()

	if sess.Role() != lsession.Client {
		panic(fmt.Errorf("BUG: NewClient given %s session", sess.Role()))
	}
	if cfg.Joins != nil {
		panic(errors.New("BUG: Joins is only valid for a host engine"))
	}

	e := newEngine(log, cfg)
	p := &peer[A, S]{sess: sess}
	e.peers = []*peer[A, S]{p}
	e.role = &clientRole[A, S]{
		e:       e,
		replica: lsync.NewReplica(cfg.App.NewGame()),
	}

	return e
}

func newEngine[A, S any](log *slog.Logger, cfg Config[A, S]) *Engine[A, S] {
	return &Engine[A, S]{
		log: log,
		cfg: cfg,

		// Unbuffered: a pump blocks until the loop services it,
		// so reliable messages are applied in read order.
		reliableCh:   make(chan reliableEvent[A, S]),
		unreliableCh: make(chan unreliableEvent[A, S]),

		rev: cfg.Revisions,
	}
}

// Run drives the loop until local input quits, ctx is canceled,
// or, for a client, the host session ends or fails.
//
// The returned error is nil for [ReasonQuit] and [ReasonRemoteEnded],
// the context's cause for [ReasonContextDone],
// and a [*PeerError] for [ReasonFailed].
//
// Run must only be called once.
func (e *Engine[A, S]) Run(ctx context.Context) (Result[S], error) {
	if !e.ran.CompareAndSwap(false, true) {
		panic("BUG: Engine.Run called more than once")
	}

	interval, _ := e.cfg.tickInterval()
	timer := time.NewTicker(interval)
	defer timer.Stop()

	initial := e.peers
	e.peers = nil
	for _, p := range initial {
		e.attach(ctx, p.sess)
	}

	joins := e.cfg.Joins
	inputs := e.cfg.Inputs

	e.render()
	for {
		select {
		case <-ctx.Done():
			return e.finish(ReasonContextDone), context.Cause(ctx)

		case in, ok := <-inputs:
			if !ok || in.Kind == InputQuit {
				return e.finish(ReasonQuit), nil
			}
			switch in.Kind {
			case InputAction:
				if err := e.role.onLocalAction(in.Action); err != nil {
					if stop := e.role.peerFailed(nil, err); stop != nil {
						return stop.res, stop.err
					}
				}
			case InputResendStart:
				e.role.resendStart()
			default:
				e.log.Warn("Ignoring unknown input kind", "kind", in.Kind)
			}

		case ev := <-e.reliableCh:
			if !e.isAttached(ev.from) {
				break
			}
			if err := e.handleReliable(ev); err != nil {
				if stop := e.role.peerFailed(ev.from, err); stop != nil {
					return stop.res, stop.err
				}
			}

		case ev := <-e.unreliableCh:
			if !e.isAttached(ev.from) {
				break
			}
			if ev.err != nil {
				err := &connectionLostError{Err: ev.err}
				if stop := e.role.peerFailed(ev.from, err); stop != nil {
					return stop.res, stop.err
				}
				break
			}
			if ev.env.Snapshot != nil {
				e.role.onSnapshotReceived(*ev.env.Snapshot)
			} else {
				e.log.Debug("Dropping action received as datagram")
			}

		case now := <-timer.C:
			e.role.onTick(now)
			if e.role.shouldBroadcast(now) {
				e.role.broadcast(now)
			}

		case sess, ok := <-joins:
			if !ok {
				joins = nil
				break
			}
			if sess.Role() != lsession.Host {
				panic(fmt.Errorf("BUG: joined session has role %s", sess.Role()))
			}
			e.attach(ctx, sess)
		}

		e.render()
	}
}

func (e *Engine[A, S]) handleReliable(ev reliableEvent[A, S]) error {
	if ev.err != nil {
		return ev.err
	}
	if ev.env.Action == nil {
		return &lchan.DecodeError{
			Reliable: true,
			Err:      errors.New("snapshot received on reliable channel"),
		}
	}
	return e.role.onActionReceived(ev.from, *ev.env.Action)
}

// attach starts the pumps for sess and registers it with the role.
func (e *Engine[A, S]) attach(ctx context.Context, sess *lsession.Active[A, S]) {
	pctx, cancel := context.WithCancel(ctx)
	p := &peer[A, S]{sess: sess, cancel: cancel}
	e.peers = append(e.peers, p)

	e.pumpWG.Add(1)
	go e.pumpReliable(pctx, p)

	if e.role.wantsDatagrams() {
		e.pumpWG.Add(1)
		go e.pumpUnreliable(pctx, p)
	}

	e.role.onAttach(p)
}

// remove stops p's pumps and forgets it.
// The caller decides what happens to the session.
func (e *Engine[A, S]) remove(p *peer[A, S]) {
	p.cancel()
	e.peers = slices.DeleteFunc(e.peers, func(q *peer[A, S]) bool { return q == p })
}

func (e *Engine[A, S]) isAttached(p *peer[A, S]) bool {
	return slices.Contains(e.peers, p)
}

func (e *Engine[A, S]) pumpReliable(ctx context.Context, p *peer[A, S]) {
	defer e.pumpWG.Done()

	for {
		env, err := p.sess.NextReliable()

		select {
		case <-ctx.Done():
			return
		case e.reliableCh <- reliableEvent[A, S]{from: p, env: env, err: err}:
		}

		if err != nil {
			return
		}
	}
}

func (e *Engine[A, S]) pumpUnreliable(ctx context.Context, p *peer[A, S]) {
	defer e.pumpWG.Done()

	for {
		env, err := p.sess.NextUnreliable(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case e.unreliableCh <- unreliableEvent[A, S]{from: p, env: env, err: err}:
		}

		if err != nil {
			return
		}
	}
}

func (e *Engine[A, S]) render() {
	if e.cfg.Render == nil {
		return
	}
	e.cfg.Render.Render(e.role.view(), e.cfg.Local)
}

func (e *Engine[A, S]) publish(seq uint64, state S) {
	if e.rev == nil {
		return
	}
	e.rev.Publish(Revision[S]{Seq: seq, State: state})
	e.rev = e.rev.Next
}

// finish resets every attached session and waits for the pumps to stop.
func (e *Engine[A, S]) finish(reason Reason) Result[S] {
	sessions := e.departed
	for _, p := range e.peers {
		p.cancel()
		sessions = append(sessions, p.sess.Reset())
	}
	e.peers = nil

	e.pumpWG.Wait()

	e.log.Debug("Engine finished", "reason", reason, "sessions", len(sessions))

	return Result[S]{
		Reason:   reason,
		State:    e.role.view(),
		Sessions: sessions,
	}
}

// streamEnded reports whether err came from the remote side
// ending its application stream while the connection stays open.
// A write deadline passing means the remote stopped reading,
// which is a failure, not an ended stream.
func streamEnded[A, S any](err error, sess *lsession.Active[A, S]) bool {
	var cl *connectionLostError
	if errors.As(err, &cl) {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}

	var te *lchan.TransportError
	return errors.As(err, &te) && sess.Context().Err() == nil
}

// closeCode picks the connection close code for a fatal err.
func closeCode(err error) lquic.ApplicationErrorCode {
	var de *lchan.DecodeError
	var fe *lchan.FramingError
	if errors.As(err, &de) || errors.As(err, &fe) {
		return lquic.CloseProtocolViolation
	}
	return lquic.CloseNormal
}

// connectionLostError marks a datagram receive failure,
// which means the whole connection is gone.
type connectionLostError struct {
	Err error
}

func (e *connectionLostError) Error() string {
	return fmt.Sprintf("connection lost: %v", e.Err)
}

func (e *connectionLostError) Unwrap() error { return e.Err }
