// Package lquic narrows quic-go down to the surface lanterm uses.
//
// A lanterm connection needs exactly two things from QUIC:
// one bidirectional stream for ordered reliable frames,
// and the unreliable datagram extension (RFC 9221) for snapshots.
// The [Conn] and [Stream] interfaces expose only that,
// which keeps the session and channel layers testable
// against the in-memory transport in [lquictest].
package lquic
