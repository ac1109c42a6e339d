package lengine

import (
	"time"

	"github.com/gordian-engine/lanterm/lcert"
)

// Application is the contract a hosted application implements.
// The engine never inspects A or S;
// it only moves them between these methods and the network.
//
// Methods are called from the engine's loop goroutine only.
type Application[A, S any] interface {
	// NewGame returns the initial state.
	// Clients also call it, to have something to render
	// before the first snapshot arrives.
	NewGame() S

	// HandleInput applies action to state on the host.
	// actor is the peer that produced the action,
	// which is the host's own identity for local input.
	// Turn rules and validity checks belong here.
	HandleInput(state *S, action A, actor lcert.PeerID)
}

// Ticker is optionally implemented by applications
// that advance state on a fixed interval.
type Ticker[S any] interface {
	// TickRate returns the tick interval.
	// A non-positive value disables ticking.
	TickRate() time.Duration

	// OnTick advances state by elapsed,
	// the time since the previous tick.
	OnTick(state *S, elapsed time.Duration)
}

// CommandParser is optionally implemented by applications
// that accept text commands as local input.
type CommandParser[A any] interface {
	ParseCommand(line string) (A, error)
}

// PeerObserver is optionally implemented by applications
// that track which peers are participating.
// The host calls these when a session is attached or detached.
type PeerObserver[S any] interface {
	PeerJoined(state *S, peer lcert.PeerID)
	PeerLeft(state *S, peer lcert.PeerID)
}

// Cloner is optionally implemented by state types that hold references.
// The engine clones state before handing it to another goroutine
// through [Config.Revisions].
type Cloner[S any] interface {
	Clone() S
}

func cloneState[S any](s S) S {
	if c, ok := any(s).(Cloner[S]); ok {
		return c.Clone()
	}
	return s
}

// Renderer is called once per loop iteration with the current state.
// state is a shallow copy and must not be retained.
type Renderer[S any] interface {
	Render(state S, local lcert.PeerID)
}

// RenderFunc adapts a function to [Renderer].
type RenderFunc[S any] func(state S, local lcert.PeerID)

func (f RenderFunc[S]) Render(state S, local lcert.PeerID) {
	f(state, local)
}
