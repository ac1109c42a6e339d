package demoapps

import (
	"github.com/gordian-engine/lanterm/internal/demoapps/guess"
	"github.com/gordian-engine/lanterm/internal/demoapps/pong"
	"github.com/gordian-engine/lanterm/internal/demoapps/salvo"
	"github.com/gordian-engine/lanterm/lapp"
)

// NewRegistry returns a registry containing every bundled application.
func NewRegistry() *lapp.Registry {
	r := lapp.NewRegistry()

	lapp.Register[guess.Guess, guess.State](r, lapp.Info{
		ID:          guess.ID,
		Name:        "Number Guessing",
		Description: "Guess the host's secret number between 1 and 99.",
		Author:      "lanterm",
		MinPlayers:  2,
		MaxPlayers:  8,
	}, guess.New(nil))

	lapp.Register[pong.Move, pong.State](r, lapp.Info{
		ID:          pong.ID,
		Name:        "Pong",
		Description: "Two paddles, one ball.",
		Author:      "lanterm",
		MinPlayers:  2,
		MaxPlayers:  2,
	}, pong.App{})

	lapp.Register[salvo.Fire, salvo.State](r, lapp.Info{
		ID:          salvo.ID,
		Name:        "Salvo",
		Description: "Take turns firing at the other fleet.",
		Author:      "lanterm",
		MinPlayers:  2,
		MaxPlayers:  2,
	}, salvo.App{})

	return r
}
