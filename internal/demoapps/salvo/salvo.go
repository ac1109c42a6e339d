// Package salvo is a turn-based fleet battle on two 8x8 grids.
//
// The host fires from seat 0 at the client's grid;
// the first peer to join sits in seat 1 and fires back.
// A hit keeps the turn, a miss passes it.
// Turn rules live entirely in [App.HandleInput].
package salvo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/lanterm/lcert"
)

// ID is the application selector.
const ID = "salvo"

// GridSize is the width and height of each grid.
const GridSize = 8

// Fire targets one cell of the opponent's grid.
type Fire struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Grid records ship positions and shots received, one bit per cell.
type Grid struct {
	Ships *bitset.BitSet `json:"ships"`
	Shots *bitset.BitSet `json:"shots"`
}

func newGrid(ships ...Fire) Grid {
	g := Grid{
		Ships: bitset.MustNew(GridSize * GridSize),
		Shots: bitset.MustNew(GridSize * GridSize),
	}
	for _, s := range ships {
		g.Ships.Set(cell(s.Row, s.Col))
	}
	return g
}

// Sunk reports whether every ship cell has been shot.
func (g Grid) Sunk() bool {
	return g.Shots.IsSuperSet(g.Ships)
}

func (g Grid) clone() Grid {
	return Grid{Ships: g.Ships.Clone(), Shots: g.Shots.Clone()}
}

// State is the whole battle.
type State struct {
	// Grids[0] belongs to the host, Grids[1] to the challenger.
	Grids [2]Grid `json:"grids"`

	Challenger lcert.PeerID `json:"challenger"`

	// Seat whose turn it is.
	Turn int `json:"turn"`

	// Winning seat plus one, or zero while the battle continues.
	Winner int `json:"winner"`

	Message string `json:"message"`
}

// Clone deep-copies the grids.
func (s State) Clone() State {
	s.Grids[0] = s.Grids[0].clone()
	s.Grids[1] = s.Grids[1].clone()
	return s
}

// Seat returns 1 for the challenger and 0 for anyone else.
func (s State) Seat(p lcert.PeerID) int {
	if !s.Challenger.IsZero() && p == s.Challenger {
		return 1
	}
	return 0
}

// App is stateless; everything lives in [State].
type App struct{}

// DefaultFleets are the ship cells for seats 0 and 1.
var DefaultFleets = [2][]Fire{
	{{Row: 1, Col: 1}, {Row: 1, Col: 2}, {Row: 6, Col: 3}, {Row: 6, Col: 4}, {Row: 6, Col: 5}},
	{{Row: 3, Col: 4}, {Row: 3, Col: 5}, {Row: 5, Col: 1}, {Row: 6, Col: 1}, {Row: 7, Col: 1}},
}

func (App) NewGame() State {
	return State{
		Grids:   [2]Grid{newGrid(DefaultFleets[0]...), newGrid(DefaultFleets[1]...)},
		Message: "Host fires first.",
	}
}

func (App) HandleInput(s *State, f Fire, actor lcert.PeerID) {
	if s.Winner != 0 {
		return
	}

	if s.Challenger.IsZero() {
		s.Message = "Waiting for a challenger."
		return
	}
	seat := s.Seat(actor)
	if seat != s.Turn {
		s.Message = fmt.Sprintf("Seat %d: wait for your turn.", seat)
		return
	}
	if f.Row < 0 || f.Row >= GridSize || f.Col < 0 || f.Col >= GridSize {
		s.Message = fmt.Sprintf("Seat %d: %s is off the grid.", seat, f)
		return
	}

	target := s.Grids[1-seat]
	c := cell(f.Row, f.Col)
	if target.Shots.Test(c) {
		s.Message = fmt.Sprintf("Seat %d: already fired at %s.", seat, f)
		return
	}
	target.Shots.Set(c)

	if !target.Ships.Test(c) {
		s.Message = fmt.Sprintf("Seat %d missed at %s.", seat, f)
		s.Turn = 1 - seat
		return
	}

	s.Message = fmt.Sprintf("Seat %d hit at %s!", seat, f)
	if target.Sunk() {
		s.Winner = seat + 1
		s.Message = fmt.Sprintf("Seat %d sank the fleet!", seat)
	}
}

func (App) PeerJoined(s *State, peer lcert.PeerID) {
	if s.Challenger.IsZero() {
		s.Challenger = peer
		s.Message = "Challenger joined. Host fires first."
	}
}

func (App) PeerLeft(s *State, peer lcert.PeerID) {
	if s.Challenger == peer && s.Winner == 0 {
		s.Winner = 1
		s.Message = "Challenger left."
	}
}

// ParseCommand accepts "fire ROW COL", "ROW COL", or a cell like "d4",
// where the letter is the column and the digit is the row.
func (App) ParseCommand(line string) (Fire, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) > 0 && fields[0] == "fire" {
		fields = fields[1:]
	}

	var f Fire
	switch len(fields) {
	case 1:
		w := fields[0]
		if len(w) != 2 || w[0] < 'a' || w[0] >= 'a'+GridSize || w[1] < '0' || w[1] >= '0'+GridSize {
			return Fire{}, errCommand
		}
		f = Fire{Row: int(w[1] - '0'), Col: int(w[0] - 'a')}
	case 2:
		if _, err := fmt.Sscanf(fields[0]+" "+fields[1], "%d %d", &f.Row, &f.Col); err != nil {
			return Fire{}, errCommand
		}
	default:
		return Fire{}, errCommand
	}
	return f, nil
}

var errCommand = errors.New(`use "fire ROW COL" or a cell like "d4"`)

func (App) Describe(s State, local lcert.PeerID) string {
	me := s.Seat(local)

	var b strings.Builder
	fmt.Fprintf(&b, "  %-*s   %s\n", GridSize*2, "yours", "theirs")
	for r := range GridSize {
		fmt.Fprintf(&b, "%d ", r)
		writeRow(&b, s.Grids[me], r, true)
		b.WriteString("  ")
		writeRow(&b, s.Grids[1-me], r, false)
		b.WriteByte('\n')
	}

	switch {
	case s.Winner == me+1:
		b.WriteString("You won! ")
	case s.Winner != 0:
		b.WriteString("You lost. ")
	case s.Turn == me:
		b.WriteString("Your turn. ")
	default:
		b.WriteString("Their turn. ")
	}
	b.WriteString(s.Message)
	return b.String()
}

func writeRow(b *strings.Builder, g Grid, r int, showShips bool) {
	for c := range GridSize {
		i := cell(r, c)
		ch := '.'
		switch {
		case g.Shots.Test(i) && g.Ships.Test(i):
			ch = 'X'
		case g.Shots.Test(i):
			ch = 'o'
		case showShips && g.Ships.Test(i):
			ch = '#'
		}
		b.WriteRune(ch)
		b.WriteByte(' ')
	}
}

func (f Fire) String() string {
	return fmt.Sprintf("%c%d", 'a'+f.Col, f.Row)
}

func cell(row, col int) uint {
	return uint(row*GridSize + col)
}
