package lengine_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gordian-engine/lanterm/internal/ltest"
	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lchan"
	"github.com/gordian-engine/lanterm/lengine"
	"github.com/gordian-engine/lanterm/lpubsub"
	"github.com/gordian-engine/lanterm/lsession"
	"github.com/gordian-engine/lanterm/lsession/lsessiontest"
	"github.com/stretchr/testify/require"
)

type fire struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type board struct {
	Hits    int  `json:"hits"`
	Last    fire `json:"last"`
	Ticks   int  `json:"ticks"`
	Players int  `json:"players"`
}

type shotApp struct{}

func (shotApp) NewGame() board { return board{} }

func (shotApp) HandleInput(s *board, a fire, _ lcert.PeerID) {
	s.Hits++
	s.Last = a
}

type tickingApp struct {
	shotApp
	rate time.Duration
}

func (a tickingApp) TickRate() time.Duration { return a.rate }

func (tickingApp) OnTick(s *board, _ time.Duration) { s.Ticks++ }

type observingApp struct {
	shotApp
}

func (observingApp) PeerJoined(s *board, _ lcert.PeerID) { s.Players++ }
func (observingApp) PeerLeft(s *board, _ lcert.PeerID)   { s.Players-- }

type runOutcome struct {
	Res lengine.Result[board]
	Err error
}

func startRun(ctx context.Context, e *lengine.Engine[fire, board]) <-chan runOutcome {
	ch := make(chan runOutcome, 1)
	go func() {
		res, err := e.Run(ctx)
		ch <- runOutcome{Res: res, Err: err}
	}()
	return ch
}

type revStream = lpubsub.Stream[lengine.Revision[board]]

func nextRevision(t *testing.T, s *revStream) (lengine.Revision[board], *revStream) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), ltest.ScaleDuration)
	defer cancel()

	r, next, err := s.Wait(ctx)
	require.NoError(t, err, "no revision published in time")
	return r, next
}

// lastRender records the most recent rendered state.
type lastRender struct {
	mu    sync.Mutex
	state board
	local lcert.PeerID
	n     int
}

func (r *lastRender) Render(s board, local lcert.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.local = local
	r.n++
}

func (r *lastRender) Get() (board, lcert.PeerID, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.local, r.n
}

func TestHost_actionAppliedOnceBeforeNextBroadcast(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, c := lsessiontest.NewActivePair[fire, board](t, ctx, "salvo")

	rev := lpubsub.NewStream[lengine.Revision[board]]()
	inputs := make(chan lengine.Input[fire])
	e := lengine.NewHost(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:       tickingApp{rate: 5 * time.Millisecond},
		Local:     f.HostIdentity.ID,
		Inputs:    inputs,
		Revisions: rev,
	}, h)
	outCh := startRun(ctx, e)

	require.NoError(t, c.AwaitStart(ctx))

	// The host is already ticking when the action is sent.
	r, rev := nextRevision(t, rev)
	require.Equal(t, uint64(1), r.Seq)
	require.Zero(t, r.State.Hits)

	require.NoError(t, c.SendAction(fire{Row: 3, Col: 4}))

	prevSeq := r.Seq
	for r.State.Hits == 0 {
		r, rev = nextRevision(t, rev)
		require.Equal(t, prevSeq+1, r.Seq)
		prevSeq = r.Seq
	}
	require.Equal(t, 1, r.State.Hits)
	require.Equal(t, fire{Row: 3, Col: 4}, r.State.Last)

	for range 5 {
		r, rev = nextRevision(t, rev)
		require.Equal(t, 1, r.State.Hits)
	}

	ltest.SendSoon(t, inputs, lengine.QuitInput[fire]())
	out := ltest.ReceiveSoon(t, outCh)
	require.NoError(t, out.Err)
	require.Equal(t, lengine.ReasonQuit, out.Res.Reason)
	require.Equal(t, 1, out.Res.State.Hits)
	require.Len(t, out.Res.Sessions, 1)
}

func TestHost_resyncWithoutTicks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, _ := lsessiontest.NewActivePair[fire, board](t, ctx, "guess")

	rev := lpubsub.NewStream[lengine.Revision[board]]()
	inputs := make(chan lengine.Input[fire])
	e := lengine.NewHost(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:            shotApp{},
		Local:          f.HostIdentity.ID,
		Inputs:         inputs,
		Revisions:      rev,
		Cadence:        2 * time.Millisecond,
		ResyncInterval: 10 * time.Millisecond,
	}, h)
	outCh := startRun(ctx, e)

	// Unchanged state is still broadcast periodically.
	for want := uint64(1); want <= 3; want++ {
		var r lengine.Revision[board]
		r, rev = nextRevision(t, rev)
		require.Equal(t, want, r.Seq)
		require.Zero(t, r.State.Hits)
	}

	// Local actions on the host apply directly.
	ltest.SendSoon(t, inputs, lengine.ActionInput(fire{Row: 1, Col: 1}))
	for {
		var r lengine.Revision[board]
		r, rev = nextRevision(t, rev)
		if r.State.Hits == 1 {
			require.Equal(t, fire{Row: 1, Col: 1}, r.State.Last)
			break
		}
	}

	cancel()
	out := ltest.ReceiveSoon(t, outCh)
	require.ErrorIs(t, out.Err, context.Canceled)
	require.Equal(t, lengine.ReasonContextDone, out.Res.Reason)
	require.Len(t, out.Res.Sessions, 1)
}

func TestClient_garbageDatagramsIgnored(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, c := lsessiontest.NewActivePair[fire, board](t, ctx, "salvo")

	rev := lpubsub.NewStream[lengine.Revision[board]]()
	inputs := make(chan lengine.Input[fire])
	var render lastRender
	e := lengine.NewClient(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:       shotApp{},
		Local:     f.ClientIdentity.ID,
		Inputs:    inputs,
		Revisions: rev,
		Render:    &render,
	}, c)
	outCh := startRun(ctx, e)

	require.NoError(t, h.SendSnapshot(1, board{Hits: 1}))
	r, rev := nextRevision(t, rev)
	require.Equal(t, uint64(1), r.Seq)
	require.Equal(t, 1, r.State.Hits)

	f.ClientPipe.Inject(ltest.RandomDataForTest(t, 50))

	require.NoError(t, h.SendSnapshot(2, board{Hits: 2}))
	r, _ = nextRevision(t, rev)
	require.Equal(t, uint64(2), r.Seq)
	require.Equal(t, 2, r.State.Hits)

	ltest.SendSoon(t, inputs, lengine.QuitInput[fire]())
	out := ltest.ReceiveSoon(t, outCh)
	require.NoError(t, out.Err)
	require.Equal(t, lengine.ReasonQuit, out.Res.Reason)
	require.Equal(t, 2, out.Res.State.Hits)

	state, local, n := render.Get()
	require.Equal(t, 2, state.Hits)
	require.Equal(t, f.ClientIdentity.ID, local)
	require.Positive(t, n)
}

func TestClient_staleSnapshotsIgnored(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, c := lsessiontest.NewActivePair[fire, board](t, ctx, "salvo")

	rev := lpubsub.NewStream[lengine.Revision[board]]()
	inputs := make(chan lengine.Input[fire])
	e := lengine.NewClient(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:       shotApp{},
		Local:     f.ClientIdentity.ID,
		Inputs:    inputs,
		Revisions: rev,
	}, c)
	outCh := startRun(ctx, e)

	require.NoError(t, h.SendSnapshot(2, board{Hits: 2}))
	require.NoError(t, h.SendSnapshot(1, board{Hits: 1}))
	require.NoError(t, h.SendSnapshot(2, board{Hits: 20}))
	require.NoError(t, h.SendSnapshot(3, board{Hits: 3}))

	r, rev := nextRevision(t, rev)
	require.Equal(t, uint64(2), r.Seq)
	require.Equal(t, 2, r.State.Hits)

	r, _ = nextRevision(t, rev)
	require.Equal(t, uint64(3), r.Seq)
	require.Equal(t, 3, r.State.Hits)

	ltest.SendSoon(t, inputs, lengine.QuitInput[fire]())
	out := ltest.ReceiveSoon(t, outCh)
	require.Equal(t, 3, out.Res.State.Hits)
}

func TestClient_neverBroadcastsOrTicks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, c := lsessiontest.NewActivePair[fire, board](t, ctx, "pong")

	inputs := make(chan lengine.Input[fire])
	e := lengine.NewClient(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:    tickingApp{rate: time.Millisecond},
		Local:  f.ClientIdentity.ID,
		Inputs: inputs,
	}, c)
	outCh := startRun(ctx, e)

	ltest.SendSoon(t, inputs, lengine.ActionInput(fire{Row: 3, Col: 4}))

	env, err := h.NextReliable()
	require.NoError(t, err)
	require.Equal(t, fire{Row: 3, Col: 4}, *env.Action)

	// Many client wakes pass without a single datagram reaching the host.
	waitCtx, waitCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer waitCancel()
	_, err = h.NextUnreliable(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ltest.SendSoon(t, inputs, lengine.QuitInput[fire]())
	out := ltest.ReceiveSoon(t, outCh)
	require.Equal(t, lengine.ReasonQuit, out.Res.Reason)

	// Neither the action nor any tick was applied locally.
	require.Zero(t, out.Res.State.Hits)
	require.Zero(t, out.Res.State.Ticks)
}

func TestNewClient_rejectsHostSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, c := lsessiontest.NewActivePair[fire, board](t, ctx, "salvo")

	cfg := lengine.Config[fire, board]{
		App:    shotApp{},
		Local:  f.HostIdentity.ID,
		Inputs: make(chan lengine.Input[fire]),
	}
	require.Panics(t, func() {
		_ = lengine.NewClient(ltest.NewLogger(t), cfg, h)
	})
	require.Panics(t, func() {
		_ = lengine.NewHost(ltest.NewLogger(t), cfg, c)
	})
}

func TestEngines_quitReturnsReusableSessions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, c := lsessiontest.NewActivePair[fire, board](t, ctx, "salvo")
	log := ltest.NewLogger(t)

	hostInputs := make(chan lengine.Input[fire])
	hostEngine := lengine.NewHost(log.With("side", "host"), lengine.Config[fire, board]{
		App:    shotApp{},
		Local:  f.HostIdentity.ID,
		Inputs: hostInputs,
	}, h)

	clientRev := lpubsub.NewStream[lengine.Revision[board]]()
	clientInputs := make(chan lengine.Input[fire])
	clientEngine := lengine.NewClient(log.With("side", "client"), lengine.Config[fire, board]{
		App:       shotApp{},
		Local:     f.ClientIdentity.ID,
		Inputs:    clientInputs,
		Revisions: clientRev,
	}, c)

	hostOut := startRun(ctx, hostEngine)
	clientOut := startRun(ctx, clientEngine)

	ltest.SendSoon(t, clientInputs, lengine.ActionInput(fire{Row: 3, Col: 4}))

	rev := clientRev
	for {
		var r lengine.Revision[board]
		r, rev = nextRevision(t, rev)
		if r.State.Hits == 1 {
			break
		}
	}

	ltest.SendSoon(t, hostInputs, lengine.QuitInput[fire]())

	ho := ltest.ReceiveSoon(t, hostOut)
	require.NoError(t, ho.Err)
	require.Equal(t, lengine.ReasonQuit, ho.Res.Reason)
	require.Equal(t, 1, ho.Res.State.Hits)
	require.Len(t, ho.Res.Sessions, 1)

	co := ltest.ReceiveSoon(t, clientOut)
	require.NoError(t, co.Err)
	require.Equal(t, lengine.ReasonRemoteEnded, co.Res.Reason)
	require.Equal(t, 1, co.Res.State.Hits)
	require.Len(t, co.Res.Sessions, 1)

	// Both sides can negotiate the next application on the same connection.
	lsessiontest.Handshake(t, ctx, ho.Res.Sessions[0], co.Res.Sessions[0], "pong")
}

func TestHost_joinsAndDepartures(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, c := lsessiontest.NewActivePair[fire, board](t, ctx, "salvo")

	joins := make(chan *lsession.Active[fire, board])
	inputs := make(chan lengine.Input[fire])
	detached := make(chan lcert.PeerID, 1)
	var render lastRender
	e := lengine.NewHost(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:    observingApp{},
		Local:  f.HostIdentity.ID,
		Inputs: inputs,
		Joins:  joins,
		Render: &render,

		PeerDetached: func(id lcert.PeerID) { detached <- id },
	})
	outCh := startRun(ctx, e)

	ltest.SendSoon(t, joins, h)
	require.NoError(t, c.AwaitStart(ctx))

	require.Eventually(t, func() bool {
		s, _, _ := render.Get()
		return s.Players == 1
	}, ltest.ScaleDuration, 2*time.Millisecond)

	// The client ends its side of the application but keeps the connection.
	_ = c.Reset()

	require.Eventually(t, func() bool {
		s, _, _ := render.Get()
		return s.Players == 0
	}, ltest.ScaleDuration, 2*time.Millisecond)
	require.Equal(t, f.ClientIdentity.ID, ltest.ReceiveSoon(t, detached))

	ltest.SendSoon(t, inputs, lengine.QuitInput[fire]())
	out := ltest.ReceiveSoon(t, outCh)
	require.Equal(t, lengine.ReasonQuit, out.Res.Reason)
	require.Zero(t, out.Res.State.Players)
	require.Len(t, out.Res.Sessions, 1)
	require.Equal(t, f.ClientIdentity.ID, out.Res.Sessions[0].Remote())
}

func TestHost_closedInputsQuit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, _ := lsessiontest.NewActivePair[fire, board](t, ctx, "salvo")

	inputs := make(chan lengine.Input[fire])
	e := lengine.NewHost(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:    shotApp{},
		Local:  f.HostIdentity.ID,
		Inputs: inputs,
	}, h)
	outCh := startRun(ctx, e)

	close(inputs)

	out := ltest.ReceiveSoon(t, outCh)
	require.Equal(t, lengine.ReasonQuit, out.Res.Reason)
}

func TestClient_stalledHostFailsInsteadOfEnding(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := lsessiontest.NewFixtureConfig(t, lsession.Config{
		Channel: lchan.Config{WriteTimeout: 20 * time.Millisecond},
	})
	lsessiontest.Handshake(t, ctx, f.Host, f.Client, "salvo")
	_, c := lsessiontest.Upgrade[fire, board](t, f.Host, f.Client)

	// Nothing reads the host side of the stream, so the write cannot complete.
	inputs := make(chan lengine.Input[fire])
	e := lengine.NewClient(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:    shotApp{},
		Local:  f.ClientIdentity.ID,
		Inputs: inputs,
	}, c)
	outCh := startRun(ctx, e)

	ltest.SendSoon(t, inputs, lengine.ActionInput(fire{Row: 1, Col: 1}))

	out := ltest.ReceiveSoon(t, outCh)
	require.Equal(t, lengine.ReasonFailed, out.Res.Reason)
	require.Empty(t, out.Res.Sessions)

	var pe *lengine.PeerError
	require.ErrorAs(t, out.Err, &pe)
	require.Equal(t, f.HostIdentity.ID, pe.Peer)
	require.ErrorIs(t, out.Err, os.ErrDeadlineExceeded)
}

func TestHost_rendersAfterJoinsClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, _ := lsessiontest.NewActivePair[fire, board](t, ctx, "salvo")

	joins := make(chan *lsession.Active[fire, board])
	inputs := make(chan lengine.Input[fire])
	var render lastRender
	e := lengine.NewHost(ltest.NewLogger(t), lengine.Config[fire, board]{
		App:    shotApp{},
		Local:  f.HostIdentity.ID,
		Inputs: inputs,
		Joins:  joins,
		Render: &render,

		// No timer wakes during the test.
		Cadence: time.Hour,
	}, h)
	outCh := startRun(ctx, e)

	require.Eventually(t, func() bool {
		_, _, n := render.Get()
		return n >= 1
	}, ltest.ScaleDuration, 2*time.Millisecond)
	_, _, before := render.Get()

	// Closing the join source is handled as its own loop iteration.
	close(joins)

	require.Eventually(t, func() bool {
		_, _, n := render.Get()
		return n > before
	}, ltest.ScaleDuration, 2*time.Millisecond)

	ltest.SendSoon(t, inputs, lengine.QuitInput[fire]())
	out := ltest.ReceiveSoon(t, outCh)
	require.Equal(t, lengine.ReasonQuit, out.Res.Reason)
}
