package lsync

import "errors"

// Envelope is the message alphabet of an active session.
// Exactly one of Action or Snapshot is set.
//
// Actions travel client to host on the reliable channel.
// Snapshots travel host to clients on the unreliable channel.
type Envelope[A, S any] struct {
	Action   *A           `json:"action,omitempty"`
	Snapshot *Snapshot[S] `json:"snapshot,omitempty"`
}

// Snapshot is the complete authoritative state at a point in time.
type Snapshot[S any] struct {
	Seq   uint64 `json:"seq"`
	State S      `json:"state"`
}

var (
	errEmptyEnvelope = errors.New("envelope has neither action nor snapshot")
	errBothEnvelope  = errors.New("envelope has both action and snapshot")
)

// Validate reports an error unless exactly one variant is populated.
func (e Envelope[A, S]) Validate() error {
	switch {
	case e.Action == nil && e.Snapshot == nil:
		return errEmptyEnvelope
	case e.Action != nil && e.Snapshot != nil:
		return errBothEnvelope
	}
	return nil
}

// ActionEnvelope wraps a.
func ActionEnvelope[A, S any](a A) Envelope[A, S] {
	return Envelope[A, S]{Action: &a}
}

// SnapshotEnvelope wraps a snapshot of state at seq.
func SnapshotEnvelope[A, S any](seq uint64, state S) Envelope[A, S] {
	return Envelope[A, S]{Snapshot: &Snapshot[S]{Seq: seq, State: state}}
}

// StartSignal is the only legal value of [Control.Signal].
const StartSignal = "start"

// Control is the single-variant control message
// the host sends over the unreliable channel to start the application.
type Control struct {
	Signal string `json:"signal"`
}

// Start returns the start signal.
func Start() Control {
	return Control{Signal: StartSignal}
}

// IsStart reports whether c is the start signal.
func (c Control) IsStart() bool {
	return c.Signal == StartSignal
}

// Validate rejects anything but the start signal,
// so that a datagram channel typed on Control
// drops every other payload.
func (c Control) Validate() error {
	if !c.IsStart() {
		return errors.New("unknown control signal")
	}
	return nil
}
