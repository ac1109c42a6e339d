package lchan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gordian-engine/lanterm/internal/ltest"
	"github.com/gordian-engine/lanterm/lchan"
	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lcodec"
	"github.com/gordian-engine/lanterm/lquic"
	"github.com/gordian-engine/lanterm/lquic/lquictest"
	"github.com/stretchr/testify/require"
)

type fire struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (f fire) Validate() error {
	if f.Row < 0 || f.Col < 0 {
		return errors.New("negative coordinate")
	}
	return nil
}

type fixture struct {
	HostPipe, ClientPipe *lquictest.PipeConn
	Host, Client         *lchan.Channel[fire]
}

func newFixture(t *testing.T, ctx context.Context) fixture {
	t.Helper()

	hostID, err := lcert.GenerateIdentity(lcert.IdentityConfig{})
	require.NoError(t, err)
	clientID, err := lcert.GenerateIdentity(lcert.IdentityConfig{})
	require.NoError(t, err)

	hp, cp := lquictest.NewPipe(hostID, clientID)
	t.Cleanup(func() { _ = hp.CloseWithError(lquic.CloseNormal, "") })

	acceptedCh := make(chan lquic.Stream, 1)
	go func() {
		s, err := cp.AcceptStream(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		acceptedCh <- s
	}()

	hs, err := hp.OpenStreamSync(ctx)
	require.NoError(t, err)
	cs := ltest.ReceiveSoon(t, acceptedCh)

	log := ltest.NewLogger(t)
	return fixture{
		HostPipe:   hp,
		ClientPipe: cp,

		Host:   lchan.New[fire](log.With("side", "host"), hp, hs, lcodec.JSON{}, lchan.Config{}),
		Client: lchan.New[fire](log.With("side", "client"), cp, cs, lcodec.JSON{}, lchan.Config{}),
	}
}

func TestChannel_reliableRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx)

	sent := []fire{{Row: 3, Col: 4}, {Row: 0, Col: 0}, {Row: 9, Col: 9}}

	errCh := make(chan error, 1)
	go func() {
		for _, f := range sent {
			if err := fx.Client.SendReliable(f); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	for _, want := range sent {
		got, err := fx.Host.NextReliable()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	require.NoError(t, ltest.ReceiveSoon(t, errCh))
}

func TestChannel_reliableInvalidIsFatal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx)

	go func() {
		_ = fx.Client.SendReliable(fire{Row: -1, Col: 2})
	}()

	_, err := fx.Host.NextReliable()

	var de *lchan.DecodeError
	require.ErrorAs(t, err, &de)
	require.True(t, de.Reliable)
	require.True(t, lchan.IsFatal(err))
}

func TestChannel_unreliableDropsGarbage(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx)

	fx.ClientPipe.Inject(ltest.RandomDataForTest(t, 50))
	fx.ClientPipe.Inject([]byte(`{"row":-5,"col":1}`))
	require.NoError(t, fx.Host.SendUnreliable(fire{Row: 1, Col: 2}))

	got, err := fx.Client.NextUnreliable(ctx)
	require.NoError(t, err)
	require.Equal(t, fire{Row: 1, Col: 2}, got)
}

func TestChannel_nextUnreliableRestartable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx)

	shortCtx, shortCancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer shortCancel()
	_, err := fx.Client.NextUnreliable(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, fx.Host.SendUnreliable(fire{Row: 5, Col: 6}))
	got, err := fx.Client.NextUnreliable(ctx)
	require.NoError(t, err)
	require.Equal(t, fire{Row: 5, Col: 6}, got)
}

func TestChannel_sendUnreliableTooLarge(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx)

	big := lchan.New[[]int](ltest.NewLogger(t), fx.HostPipe, nil, lcodec.JSON{}, lchan.Config{})
	err := big.SendUnreliable(make([]int, 2*lquictest.MaxPipeDatagramSize))

	var te *lchan.TransportError
	require.ErrorAs(t, err, &te)
}

func TestChannel_closeUnblocksReliableRead(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx)

	errCh := make(chan error, 1)
	go func() {
		_, err := fx.Host.NextReliable()
		errCh <- err
	}()

	require.NoError(t, fx.ClientPipe.CloseWithError(lquic.CloseNormal, "bye"))

	err := ltest.ReceiveSoon(t, errCh)
	require.True(t, lchan.IsFatal(err))
}
