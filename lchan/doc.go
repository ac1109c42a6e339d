// Package lchan is the message channel layer of a lanterm session.
//
// A [Channel] pairs one reliable QUIC stream with the connection's datagram path
// and types both to a single message alphabet M.
//
// Reliable frames are a 4-byte big-endian payload length
// followed by the serialized payload.
// A frame that is truncated, oversized, or fails to decode is fatal:
// the stream can no longer be trusted to be aligned on frame boundaries.
//
// Each datagram carries exactly one serialized payload.
// Datagrams that fail to decode are dropped and logged at debug level;
// the protocol above already tolerates loss.
package lchan
