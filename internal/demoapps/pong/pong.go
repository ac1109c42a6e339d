// Package pong is a two-player paddle game.
// The host simulates the ball on every tick.
package pong

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gordian-engine/lanterm/lcert"
)

// ID is the application selector.
const ID = "pong"

// Court dimensions and paddle geometry.
const (
	Width        = 60
	Height       = 20
	PaddleHeight = 4

	maxPaddleY = Height - PaddleHeight
)

// TickRate is how often the ball moves.
const TickRate = 50 * time.Millisecond

// Move shifts the actor's paddle by Dir, which is -1 or 1.
type Move struct {
	Dir int `json:"dir"`
}

// State is the court.
// The host plays the left paddle;
// the first peer to join plays the right.
type State struct {
	BallX  int `json:"ball_x"`
	BallY  int `json:"ball_y"`
	BallDX int `json:"ball_dx"`
	BallDY int `json:"ball_dy"`

	LeftY  int `json:"left_y"`
	RightY int `json:"right_y"`

	Rallies int `json:"rallies"`

	Right lcert.PeerID `json:"right"`
}

// App is stateless; everything lives in [State].
type App struct{}

func (App) NewGame() State {
	return State{
		BallX: Width / 2, BallY: Height / 2,
		BallDX: 1, BallDY: 1,
		LeftY: maxPaddleY / 2, RightY: maxPaddleY / 2,
	}
}

func (App) HandleInput(s *State, m Move, actor lcert.PeerID) {
	if m.Dir != -1 && m.Dir != 1 {
		return
	}

	if !s.Right.IsZero() && actor == s.Right {
		s.RightY = clamp(s.RightY+m.Dir, 0, maxPaddleY)
	} else {
		s.LeftY = clamp(s.LeftY+m.Dir, 0, maxPaddleY)
	}
}

func (App) TickRate() time.Duration { return TickRate }

func (App) OnTick(s *State, _ time.Duration) {
	s.BallX += s.BallDX
	s.BallY += s.BallDY

	if s.BallY <= 0 || s.BallY >= Height {
		s.BallDY = -s.BallDY
		s.BallY = clamp(s.BallY, 0, Height)
	}

	if s.BallX <= 2 && onPaddle(s.BallY, s.LeftY) {
		s.BallDX = 1
		s.Rallies++
	}
	if s.BallX >= Width-3 && onPaddle(s.BallY, s.RightY) {
		s.BallDX = -1
		s.Rallies++
	}

	if s.BallX < 0 || s.BallX > Width {
		// Serve toward the side that just scored.
		dx := 1
		if s.BallX < 0 {
			dx = -1
		}
		s.BallX, s.BallY = Width/2, Height/2
		s.BallDX, s.BallDY = dx, 1
	}
}

func (App) PeerJoined(s *State, peer lcert.PeerID) {
	if s.Right.IsZero() {
		s.Right = peer
	}
}

func (App) PeerLeft(s *State, peer lcert.PeerID) {
	if s.Right == peer {
		s.Right = lcert.PeerID{}
	}
}

func (App) ParseCommand(line string) (Move, error) {
	switch strings.ToLower(line) {
	case "w", "up":
		return Move{Dir: -1}, nil
	case "s", "down":
		return Move{Dir: 1}, nil
	default:
		return Move{}, errors.New("use w/up or s/down")
	}
}

func (App) Describe(s State, local lcert.PeerID) string {
	side := "left"
	if !s.Right.IsZero() && local == s.Right {
		side = "right"
	}
	return fmt.Sprintf(
		"ball=(%d,%d) left=%d right=%d rallies=%d you=%s",
		s.BallX, s.BallY, s.LeftY, s.RightY, s.Rallies, side,
	)
}

func onPaddle(ballY, paddleY int) bool {
	return ballY >= paddleY && ballY <= paddleY+PaddleHeight
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
