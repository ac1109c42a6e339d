// Package lquictest provides transports for tests of code built on [lquic.Conn].
//
// [NewPair] creates a real QUIC connection over localhost UDP.
// [NewPipe] creates an in-memory connection pair
// whose datagram path can be observed, dropped, or fed arbitrary bytes.
package lquictest
