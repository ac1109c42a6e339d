package guess_test

import (
	"math/rand/v2"
	"testing"

	"github.com/gordian-engine/lanterm/internal/demoapps/guess"
	"github.com/gordian-engine/lanterm/lcert"
	"github.com/stretchr/testify/require"
)

func TestGuess_bisect(t *testing.T) {
	t.Parallel()

	a := guess.New(rand.New(rand.NewPCG(7, 7)))
	s := a.NewGame()

	var actor lcert.PeerID
	actor[0] = 1

	lo, hi := guess.Min, guess.Max
	for !s.Solved {
		mid := (lo + hi) / 2
		a.HandleInput(&s, guess.Guess{N: mid}, actor)
		require.LessOrEqual(t, s.Guesses, 7, "bisection must finish within 7 guesses")

		switch {
		case s.Solved:
		case len(s.Feedback) > 0 && s.Feedback[len(s.Feedback)-5:] == " low!":
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}

	require.Equal(t, actor, s.Winner)
	require.GreaterOrEqual(t, s.Answer, guess.Min)
	require.LessOrEqual(t, s.Answer, guess.Max)
	require.Contains(t, a.Describe(s, actor), "You won")

	// Further guesses are ignored.
	n := s.Guesses
	a.HandleInput(&s, guess.Guess{N: 1}, actor)
	require.Equal(t, n, s.Guesses)
}

func TestGuess_outOfRange(t *testing.T) {
	t.Parallel()

	a := guess.New(nil)
	s := a.NewGame()

	a.HandleInput(&s, guess.Guess{N: 500}, lcert.PeerID{})
	require.Zero(t, s.Guesses)
	require.Contains(t, s.Feedback, "out of range")
}

func TestGuess_parse(t *testing.T) {
	t.Parallel()

	a := guess.New(nil)

	g, err := a.ParseCommand("42")
	require.NoError(t, err)
	require.Equal(t, guess.Guess{N: 42}, g)

	_, err = a.ParseCommand("forty-two")
	require.Error(t, err)
}
