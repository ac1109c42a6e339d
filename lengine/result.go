package lengine

import (
	"fmt"

	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lsession"
)

// Reason describes why [Engine.Run] returned.
type Reason uint8

const (
	_ Reason = iota

	// ReasonQuit means local input requested the loop to end.
	ReasonQuit

	// ReasonContextDone means the context passed to Run was canceled.
	ReasonContextDone

	// ReasonRemoteEnded means the host ended the application
	// while keeping the connection open.
	// Only a client engine returns this.
	ReasonRemoteEnded

	// ReasonFailed means a fatal channel error occurred.
	// Only a client engine returns this;
	// a host detaches the failing peer and keeps running.
	ReasonFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonQuit:
		return "quit"
	case ReasonContextDone:
		return "context done"
	case ReasonRemoteEnded:
		return "remote ended"
	case ReasonFailed:
		return "failed"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

// Result is returned from [Engine.Run].
type Result[S any] struct {
	Reason Reason

	// Final application state.
	State S

	// Sessions whose connections are still open,
	// reset and ready for another handshake.
	Sessions []*lsession.Negotiating
}

// PeerError identifies the peer whose channel failed.
type PeerError struct {
	Peer lcert.PeerID
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %s: %v", e.Peer.Short(), e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }
