// Package guess is a number guessing game.
// The host picks a secret; every player guesses until someone finds it.
// It does not tick: state only changes when a guess arrives.
package guess

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/gordian-engine/lanterm/lcert"
)

// ID is the application selector.
const ID = "guess"

const (
	Min = 1
	Max = 99
)

// Guess is the only action.
type Guess struct {
	N int `json:"n"`
}

// State is the shared game state.
// The secret is not part of it until it has been found.
type State struct {
	Guesses  int          `json:"guesses"`
	Feedback string       `json:"feedback"`
	Solved   bool         `json:"solved"`
	Winner   lcert.PeerID `json:"winner"`
	Answer   int          `json:"answer,omitempty"`
}

// App holds the secret on the host.
type App struct {
	rng    *rand.Rand
	secret int
}

// New returns an App drawing secrets from rng,
// or from the default source if rng is nil.
func New(rng *rand.Rand) *App {
	return &App{rng: rng}
}

func (a *App) NewGame() State {
	if a.rng != nil {
		a.secret = Min + a.rng.IntN(Max-Min+1)
	} else {
		a.secret = Min + rand.IntN(Max-Min+1)
	}
	return State{Feedback: fmt.Sprintf("Guess a number from %d to %d.", Min, Max)}
}

func (a *App) HandleInput(s *State, g Guess, actor lcert.PeerID) {
	if s.Solved {
		return
	}
	if g.N < Min || g.N > Max {
		s.Feedback = fmt.Sprintf("%s guessed %d, which is out of range.", actor.Short(), g.N)
		return
	}

	s.Guesses++
	switch {
	case g.N < a.secret:
		s.Feedback = fmt.Sprintf("%s guessed %d: too low!", actor.Short(), g.N)
	case g.N > a.secret:
		s.Feedback = fmt.Sprintf("%s guessed %d: too high!", actor.Short(), g.N)
	default:
		s.Solved = true
		s.Winner = actor
		s.Answer = a.secret
		s.Feedback = fmt.Sprintf("%s found it! The number was %d.", actor.Short(), a.secret)
	}
}

func (a *App) ParseCommand(line string) (Guess, error) {
	n, err := strconv.Atoi(line)
	if err != nil {
		return Guess{}, fmt.Errorf("expected a number from %d to %d", Min, Max)
	}
	return Guess{N: n}, nil
}

func (a *App) Describe(s State, local lcert.PeerID) string {
	if s.Solved && s.Winner == local {
		return fmt.Sprintf("[%d guesses] You won! The number was %d.", s.Guesses, s.Answer)
	}
	return fmt.Sprintf("[%d guesses] %s", s.Guesses, s.Feedback)
}
