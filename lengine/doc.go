// Package lengine contains the run loop that drives one application
// over one or more active sessions.
//
// An [Engine] owns the application state exclusively.
// Network traffic is read by background goroutines
// which only pass messages into the loop;
// the loop applies them, ticks the simulation on the host,
// broadcasts snapshots, and renders.
//
// Host and client behavior differ only through an internal role strategy
// chosen at construction: [NewHost] or [NewClient].
// A client engine has no code path that broadcasts state.
//
// Two optional hooks look out of the loop without feeding back into it.
// [Config.Revisions] publishes every authoritative state for observers
// such as tests or recorders; rendering goes through [Config.Render] instead.
// [Config.PeerDetached] tells the host's owner that a seat was freed.
package lengine
