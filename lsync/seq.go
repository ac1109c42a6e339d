package lsync

// Sequencer hands out snapshot sequence numbers on the host.
//
// The zero value is ready to use.
// Current is 0 until the first call to Next, which returns 1.
// Sequencer is not safe for concurrent use;
// it belongs to the engine loop.
type Sequencer struct {
	n uint64
}

// Next advances the counter and returns the new value.
func (s *Sequencer) Next() uint64 {
	s.n++
	return s.n
}

// Current returns the most recently issued sequence number,
// or 0 if none has been issued.
func (s *Sequencer) Current() uint64 {
	return s.n
}

// Tracker holds a client's last accepted sequence number.
//
// The zero value starts at 0,
// which no broadcast ever carries,
// so the first delivered snapshot is always accepted.
type Tracker struct {
	last uint64
}

// Accept reports whether a snapshot carrying seq should replace local state.
// If so, the tracker records seq as the last accepted value.
// Otherwise the tracker is unchanged.
func (t *Tracker) Accept(seq uint64) bool {
	if seq <= t.last {
		return false
	}
	t.last = seq
	return true
}

// Last returns the last accepted sequence number.
func (t *Tracker) Last() uint64 {
	return t.last
}

// Replica pairs a [Tracker] with the state it guards.
type Replica[S any] struct {
	tracker Tracker
	state   S
}

// NewReplica returns a Replica holding initial
// with no snapshot accepted yet.
func NewReplica[S any](initial S) *Replica[S] {
	return &Replica[S]{state: initial}
}

// Apply replaces the held state with snap.State
// if snap is newer than every snapshot applied before.
func (r *Replica[S]) Apply(snap Snapshot[S]) bool {
	if !r.tracker.Accept(snap.Seq) {
		return false
	}
	r.state = snap.State
	return true
}

// State returns the held state.
func (r *Replica[S]) State() S {
	return r.state
}

// StatePtr returns a pointer to the held state.
func (r *Replica[S]) StatePtr() *S {
	return &r.state
}

// Last returns the sequence of the most recently applied snapshot.
func (r *Replica[S]) Last() uint64 {
	return r.tracker.Last()
}
