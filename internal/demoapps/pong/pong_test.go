package pong_test

import (
	"testing"

	"github.com/gordian-engine/lanterm/internal/demoapps/pong"
	"github.com/gordian-engine/lanterm/lcert"
	"github.com/stretchr/testify/require"
)

func TestPong_paddlesBySeat(t *testing.T) {
	t.Parallel()

	var app pong.App
	s := app.NewGame()

	var host, client lcert.PeerID
	host[0], client[0] = 1, 2

	app.PeerJoined(&s, client)
	require.Equal(t, client, s.Right)

	left, right := s.LeftY, s.RightY
	app.HandleInput(&s, pong.Move{Dir: 1}, client)
	require.Equal(t, right+1, s.RightY)
	require.Equal(t, left, s.LeftY)

	app.HandleInput(&s, pong.Move{Dir: -1}, host)
	require.Equal(t, left-1, s.LeftY)

	// Invalid moves are ignored.
	app.HandleInput(&s, pong.Move{Dir: 5}, host)
	require.Equal(t, left-1, s.LeftY)

	app.PeerLeft(&s, client)
	require.True(t, s.Right.IsZero())
}

func TestPong_paddleClamped(t *testing.T) {
	t.Parallel()

	var app pong.App
	s := app.NewGame()

	for range 3 * pong.Height {
		app.HandleInput(&s, pong.Move{Dir: -1}, lcert.PeerID{})
	}
	require.Zero(t, s.LeftY)

	for range 3 * pong.Height {
		app.HandleInput(&s, pong.Move{Dir: 1}, lcert.PeerID{})
	}
	require.Equal(t, pong.Height-pong.PaddleHeight, s.LeftY)
}

func TestPong_ballStaysInCourt(t *testing.T) {
	t.Parallel()

	var app pong.App
	s := app.NewGame()

	for range 10_000 {
		app.OnTick(&s, pong.TickRate)
		require.GreaterOrEqual(t, s.BallY, 0)
		require.LessOrEqual(t, s.BallY, pong.Height)
		require.GreaterOrEqual(t, s.BallX, 0)
		require.LessOrEqual(t, s.BallX, pong.Width)
	}
}

func TestPong_parse(t *testing.T) {
	t.Parallel()

	var app pong.App

	m, err := app.ParseCommand("W")
	require.NoError(t, err)
	require.Equal(t, pong.Move{Dir: -1}, m)

	m, err = app.ParseCommand("down")
	require.NoError(t, err)
	require.Equal(t, pong.Move{Dir: 1}, m)

	_, err = app.ParseCommand("left")
	require.Error(t, err)
}
