// Package lsync contains the host-authoritative synchronization protocol:
// the [Envelope] exchanged during an active session,
// the [Control] start signal,
// and the sequence bookkeeping on both sides.
//
// The host owns a [Sequencer] and stamps every broadcast [Snapshot]
// with the next sequence number, starting at 1.
// Each client owns a [Tracker] which starts at 0
// and accepts a snapshot only if its sequence is strictly greater
// than the last accepted one.
// Because snapshots always carry the full state,
// dropping a stale or duplicate snapshot loses nothing.
package lsync
