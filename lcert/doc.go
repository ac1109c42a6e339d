// Package lcert manages the transport-level identity of a lanterm node.
//
// Every node generates a self-signed ed25519 certificate at startup.
// The certificate's public key is the node's [PeerID].
// Peers present their certificates to each other during the QUIC/TLS handshake,
// and each side derives the other's PeerID from the presented leaf.
//
// There is no certificate authority.
// A dialer that knows the PeerID it expects to reach
// pins that key through [ClientTLSConfig];
// otherwise identity is trust-on-first-use.
package lcert
