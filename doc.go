// Package lanterm contains the core APIs for running a lanterm node.
//
// A [Node] binds one UDP socket, listens for QUIC connections,
// and dials other nodes.
// Every connection, in either direction, is handed to the caller
// as a [lsession.Negotiating] session:
// accepted connections take the host role
// and dialed connections take the client role.
//
// Identity is a self-signed ed25519 certificate per node;
// a peer's ID is its public key.
// Dialing with an expected ID pins the remote key.
package lanterm
