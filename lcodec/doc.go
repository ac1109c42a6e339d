// Package lcodec defines the pluggable serializer used by the channel layer.
//
// The core never inspects application Action or State values;
// it only hands them to a [Codec].
// [JSON] is the default.
// [Snappy] wraps another codec and compresses its output,
// which matters for snapshots: a full state must fit in one datagram.
package lcodec
