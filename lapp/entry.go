package lapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lcodec"
	"github.com/gordian-engine/lanterm/lengine"
	"github.com/gordian-engine/lanterm/lsession"
)

// Operator commands understood by every application.
const (
	QuitCommand        = "/quit"
	ResendStartCommand = "/start"
)

// RunConfig is the configuration for one run of an application.
type RunConfig struct {
	Local lcert.PeerID

	// Operator commands, one per line.
	// A closed channel ends the run as a quit.
	Lines <-chan string

	// Destination for rendered state and command feedback.
	Output io.Writer

	// Must match on both peers. Nil selects [lcodec.Default].
	Codec lcodec.Codec

	Cadence        time.Duration
	ResyncInterval time.Duration
}

func (c RunConfig) withDefaults() RunConfig {
	if c.Output == nil {
		c.Output = io.Discard
	}
	return c
}

// Outcome is the result of running an application.
type Outcome struct {
	Reason lengine.Reason

	// Sessions still connected, ready for another handshake.
	Sessions []*lsession.Negotiating
}

// ErrNotEnoughPlayers is returned when a host run cannot reach
// the application's minimum player count.
var ErrNotEnoughPlayers = errors.New("not enough players")

// Entry is a registered application with its types erased.
type Entry struct {
	info Info

	runHost   func(context.Context, *slog.Logger, RunConfig, []*lsession.Negotiating, <-chan *lsession.Negotiating) (Outcome, error)
	runClient func(context.Context, *slog.Logger, RunConfig, *lsession.Negotiating) (Outcome, error)
}

// Info returns the entry's metadata.
func (e *Entry) Info() Info { return e.info }

// RunHost performs the host handshake on each session,
// then runs a host engine until the operator quits or ctx is canceled.
//
// If joins is non-nil, sessions received on it are handshaken in the background
// and attached to the running engine.
func (e *Entry) RunHost(
	ctx context.Context,
	log *slog.Logger,
	cfg RunConfig,
	sessions []*lsession.Negotiating,
	joins <-chan *lsession.Negotiating,
) (Outcome, error) {
	return e.runHost(ctx, log.With("app", e.info.ID), cfg.withDefaults(), sessions, joins)
}

// RunClient runs a client engine over n,
// which must have completed its client handshake for this entry.
func (e *Entry) RunClient(
	ctx context.Context,
	log *slog.Logger,
	cfg RunConfig,
	n *lsession.Negotiating,
) (Outcome, error) {
	if n.Selector() != e.info.ID {
		return Outcome{}, lsession.HandshakeMismatchError{Host: n.Selector(), Client: e.info.ID}
	}
	return e.runClient(ctx, log.With("app", e.info.ID), cfg.withDefaults(), n)
}

func hostRunner[A, S any](info Info, app App[A, S]) func(
	context.Context, *slog.Logger, RunConfig, []*lsession.Negotiating, <-chan *lsession.Negotiating,
) (Outcome, error) {
	return func(
		ctx context.Context,
		log *slog.Logger,
		cfg RunConfig,
		pending []*lsession.Negotiating,
		joins <-chan *lsession.Negotiating,
	) (Outcome, error) {
		if joins == nil && 1+len(pending) < info.MinPlayers {
			return Outcome{Sessions: pending}, fmt.Errorf(
				"%w: %s needs %d, have %d", ErrNotEnoughPlayers, info.ID, info.MinPlayers, 1+len(pending),
			)
		}

		var actives []*lsession.Active[A, S]
		for _, n := range pending {
			if 1+len(actives) >= info.MaxPlayers {
				log.Info("Refusing peer over player limit", "peer", n.Remote().Short())
				_ = n.Close("application is full")
				continue
			}

			a, err := hostUpgrade[A, S](ctx, n, info.ID, cfg.Codec)
			if err != nil {
				log.Warn("Failed to start application with peer", "peer", n.Remote().Short(), "err", err)
				_ = n.Close("handshake failed")
				continue
			}
			actives = append(actives, a)
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var wg sync.WaitGroup

		// Includes the host.
		var players atomic.Int32
		players.Store(int32(1 + len(actives)))

		var activeJoins chan *lsession.Active[A, S]
		if joins != nil {
			activeJoins = make(chan *lsession.Active[A, S])
			wg.Add(1)
			go func() {
				defer wg.Done()
				forwardJoins(runCtx, log, info, cfg.Codec, &players, joins, activeJoins)
			}()
		}

		inputs := make(chan lengine.Input[A])
		wg.Add(1)
		go func() {
			defer wg.Done()
			translateLines(runCtx, app, cfg.Lines, cfg.Output, inputs)
		}()

		e := lengine.NewHost(log, lengine.Config[A, S]{
			App:            app,
			Local:          cfg.Local,
			Inputs:         inputs,
			Render:         newTextRenderer(cfg.Output, app),
			Joins:          activeJoins,
			PeerDetached:   func(lcert.PeerID) { players.Add(-1) },
			Cadence:        cfg.Cadence,
			ResyncInterval: cfg.ResyncInterval,
		}, actives...)

		res, err := e.Run(runCtx)
		cancel()
		wg.Wait()

		return Outcome{Reason: res.Reason, Sessions: res.Sessions}, err
	}
}

func hostUpgrade[A, S any](
	ctx context.Context, n *lsession.Negotiating, id string, codec lcodec.Codec,
) (*lsession.Active[A, S], error) {
	if err := n.HostHandshake(ctx, id); err != nil {
		return nil, err
	}
	return lsession.Upgrade[A, S](n, codec)
}

// forwardJoins handshakes each joining session
// and passes it to the engine loop.
// players counts everyone currently in the application, including the host;
// the engine decrements it when a peer is detached.
func forwardJoins[A, S any](
	ctx context.Context,
	log *slog.Logger,
	info Info,
	codec lcodec.Codec,
	players *atomic.Int32,
	joins <-chan *lsession.Negotiating,
	out chan<- *lsession.Active[A, S],
) {
	for {
		var n *lsession.Negotiating
		select {
		case <-ctx.Done():
			return
		case n = <-joins:
			if n == nil {
				return
			}
		}

		if int(players.Load()) >= info.MaxPlayers {
			log.Info("Refusing peer over player limit", "peer", n.Remote().Short())
			_ = n.Close("application is full")
			continue
		}

		a, err := hostUpgrade[A, S](ctx, n, info.ID, codec)
		if err != nil {
			log.Warn("Failed to start application with joining peer", "peer", n.Remote().Short(), "err", err)
			_ = n.Close("handshake failed")
			continue
		}

		select {
		case <-ctx.Done():
			_ = a.Close("application ended")
			return
		case out <- a:
			players.Add(1)
		}
	}
}

func clientRunner[A, S any](app App[A, S]) func(
	context.Context, *slog.Logger, RunConfig, *lsession.Negotiating,
) (Outcome, error) {
	return func(
		ctx context.Context,
		log *slog.Logger,
		cfg RunConfig,
		n *lsession.Negotiating,
	) (Outcome, error) {
		a, err := lsession.Upgrade[A, S](n, cfg.Codec)
		if err != nil {
			return Outcome{}, err
		}

		fmt.Fprintln(cfg.Output, "Waiting for host to start")
		if err := a.AwaitStart(ctx); err != nil {
			if ctx.Err() != nil {
				return Outcome{
					Reason:   lengine.ReasonContextDone,
					Sessions: []*lsession.Negotiating{a.Reset()},
				}, err
			}
			_ = a.Close("connection failed")
			return Outcome{Reason: lengine.ReasonFailed}, fmt.Errorf("failed waiting for start signal: %w", err)
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		inputs := make(chan lengine.Input[A])
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			translateLines(runCtx, app, cfg.Lines, cfg.Output, inputs)
		}()

		e := lengine.NewClient(log, lengine.Config[A, S]{
			App:            app,
			Local:          cfg.Local,
			Inputs:         inputs,
			Render:         newTextRenderer(cfg.Output, app),
			Cadence:        cfg.Cadence,
			ResyncInterval: cfg.ResyncInterval,
		}, a)

		res, err := e.Run(runCtx)
		cancel()
		wg.Wait()

		return Outcome{Reason: res.Reason, Sessions: res.Sessions}, err
	}
}

// translateLines converts operator lines into engine inputs
// until ctx is done or lines is closed.
// A closed lines channel closes inputs, which the engine treats as a quit.
func translateLines[A any](
	ctx context.Context,
	parser lengine.CommandParser[A],
	lines <-chan string,
	out io.Writer,
	inputs chan<- lengine.Input[A],
) {
	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				close(inputs)
				return
			}
			line = strings.TrimSpace(l)
		}

		var in lengine.Input[A]
		switch line {
		case "":
			continue
		case QuitCommand:
			in = lengine.QuitInput[A]()
		case ResendStartCommand:
			in = lengine.ResendStartInput[A]()
		default:
			a, err := parser.ParseCommand(line)
			if err != nil {
				fmt.Fprintf(out, "Invalid command %q: %v\n", line, err)
				continue
			}
			in = lengine.ActionInput(a)
		}

		select {
		case <-ctx.Done():
			return
		case inputs <- in:
		}
	}
}

// textRenderer prints a description of the state whenever it changes.
type textRenderer[S any] struct {
	w        io.Writer
	describe func(S, lcert.PeerID) string
	last     string
}

func newTextRenderer[A, S any](w io.Writer, app App[A, S]) lengine.Renderer[S] {
	r := &textRenderer[S]{w: w}
	if d, ok := app.(Describer[S]); ok {
		r.describe = d.Describe
	} else {
		r.describe = func(s S, _ lcert.PeerID) string {
			return fmt.Sprintf("%+v", s)
		}
	}
	return r
}

func (r *textRenderer[S]) Render(state S, local lcert.PeerID) {
	s := r.describe(state, local)
	if s == r.last {
		return
	}
	r.last = s
	_, _ = io.WriteString(r.w, s+"\n")
}
