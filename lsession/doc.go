// Package lsession models the lifetime of one peer connection
// as two phases.
//
// A [Negotiating] session can only perform the handshake,
// in which the host names the application to run.
// [Upgrade] consumes a Negotiating session that completed its handshake
// and returns an [Active] session, typed on the application's action and state,
// which is the only value able to exchange application messages.
//
// When the application ends, [Active.Reset] returns a fresh Negotiating session
// over the same connection, ready for another handshake.
// The Active value is unusable afterward.
package lsession
