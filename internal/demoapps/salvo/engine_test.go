package salvo_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/lanterm/internal/demoapps/salvo"
	"github.com/gordian-engine/lanterm/internal/ltest"
	"github.com/gordian-engine/lanterm/lengine"
	"github.com/gordian-engine/lanterm/lpubsub"
	"github.com/gordian-engine/lanterm/lsession/lsessiontest"
	"github.com/stretchr/testify/require"
)

// waitFor returns the first published revision satisfying cond.
func waitFor(
	t *testing.T,
	s *lpubsub.Stream[lengine.Revision[salvo.State]],
	cond func(salvo.State) bool,
) (lengine.Revision[salvo.State], *lpubsub.Stream[lengine.Revision[salvo.State]]) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), ltest.ScaleDuration)
	defer cancel()

	for {
		r, next, err := s.Wait(ctx)
		require.NoError(t, err, "no matching revision in time")
		s = next
		if cond(r.State) {
			return r, s
		}
	}
}

func TestSalvo_hostAppliesRemoteFire(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, h, c := lsessiontest.NewActivePair[salvo.Fire, salvo.State](t, ctx, salvo.ID)

	rev := lpubsub.NewStream[lengine.Revision[salvo.State]]()
	inputs := make(chan lengine.Input[salvo.Fire])
	e := lengine.NewHost(ltest.NewLogger(t), lengine.Config[salvo.Fire, salvo.State]{
		App:       salvo.App{},
		Local:     f.HostIdentity.ID,
		Inputs:    inputs,
		Revisions: rev,
	}, h)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Run(ctx)
	}()

	require.NoError(t, c.AwaitStart(ctx))

	r, rev := waitFor(t, rev, func(s salvo.State) bool { return !s.Challenger.IsZero() })
	require.Equal(t, f.ClientIdentity.ID, r.State.Challenger)

	// Host hits, keeps the turn, then misses.
	ltest.SendSoon(t, inputs, lengine.ActionInput(salvo.Fire{Row: 3, Col: 4}))
	ltest.SendSoon(t, inputs, lengine.ActionInput(salvo.Fire{Row: 0, Col: 0}))
	r, rev = waitFor(t, rev, func(s salvo.State) bool { return s.Turn == 1 })
	require.Equal(t, uint(2), r.State.Grids[1].Shots.Count())

	require.NoError(t, c.SendAction(salvo.Fire{Row: 1, Col: 1}))
	r, _ = waitFor(t, rev, func(s salvo.State) bool { return s.Grids[0].Shots.Count() == 1 })
	require.True(t, r.State.Grids[0].Shots.Test(1*salvo.GridSize+1))
	require.Equal(t, 1, r.State.Turn)

	ltest.SendSoon(t, inputs, lengine.QuitInput[salvo.Fire]())
	ltest.ReceiveSoon(t, done)
}
