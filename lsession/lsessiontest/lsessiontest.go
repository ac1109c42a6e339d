// Package lsessiontest builds handshaken session pairs for tests.
package lsessiontest

import (
	"context"
	"testing"

	"github.com/gordian-engine/lanterm/internal/ltest"
	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lquic"
	"github.com/gordian-engine/lanterm/lquic/lquictest"
	"github.com/gordian-engine/lanterm/lsession"
	"github.com/stretchr/testify/require"
)

// Fixture is a pair of Negotiating sessions over an in-memory pipe.
type Fixture struct {
	HostIdentity, ClientIdentity lcert.Identity

	HostPipe, ClientPipe *lquictest.PipeConn

	Host, Client *lsession.Negotiating
}

// NewFixture returns a Fixture whose pipe is closed during test cleanup.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	return NewFixtureConfig(t, lsession.Config{})
}

// NewFixtureConfig is like [NewFixture]
// but creates both sessions with cfg.
func NewFixtureConfig(t *testing.T, cfg lsession.Config) *Fixture {
	t.Helper()

	hostID, err := lcert.GenerateIdentity(lcert.IdentityConfig{})
	require.NoError(t, err)
	clientID, err := lcert.GenerateIdentity(lcert.IdentityConfig{})
	require.NoError(t, err)

	hp, cp := lquictest.NewPipe(hostID, clientID)
	t.Cleanup(func() { _ = hp.CloseWithError(lquic.CloseNormal, "") })

	log := ltest.NewLogger(t)

	host, err := lsession.New(log.With("side", "host"), hp, lsession.Host, hostID.ID, cfg)
	require.NoError(t, err)
	client, err := lsession.New(log.With("side", "client"), cp, lsession.Client, clientID.ID, cfg)
	require.NoError(t, err)

	return &Fixture{
		HostIdentity:   hostID,
		ClientIdentity: clientID,

		HostPipe:   hp,
		ClientPipe: cp,

		Host:   host,
		Client: client,
	}
}

// Handshake runs both sides of the handshake on the given sessions
// and fails the test on any error.
func Handshake(t *testing.T, ctx context.Context, host, client *lsession.Negotiating, selector string) {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- host.HostHandshake(ctx, selector)
	}()

	got, err := client.ClientHandshake(ctx, selector)
	require.NoError(t, err)
	require.Equal(t, selector, got)
	require.NoError(t, ltest.ReceiveSoon(t, errCh))
}

// Upgrade upgrades both sessions to action A and state S
// using the default codec.
func Upgrade[A, S any](t *testing.T, host, client *lsession.Negotiating) (
	*lsession.Active[A, S], *lsession.Active[A, S],
) {
	t.Helper()

	h, err := lsession.Upgrade[A, S](host, nil)
	require.NoError(t, err)
	c, err := lsession.Upgrade[A, S](client, nil)
	require.NoError(t, err)
	return h, c
}

// NewActivePair is shorthand for [NewFixture], [Handshake], and [Upgrade].
func NewActivePair[A, S any](t *testing.T, ctx context.Context, selector string) (
	f *Fixture, host, client *lsession.Active[A, S],
) {
	t.Helper()

	f = NewFixture(t)
	Handshake(t, ctx, f.Host, f.Client, selector)
	host, client = Upgrade[A, S](t, f.Host, f.Client)
	return f, host, client
}
