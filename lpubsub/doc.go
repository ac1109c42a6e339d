// Package lpubsub contains types for in-application
// publish-subscribe patterns.
//
// The [Stream] type simplifies the pattern of
// a single publisher with many concurrent subscribers,
// who all need to observe the same sequence of values.
// The engine publishes applied state revisions on a Stream,
// and test transports publish outgoing datagrams on one.
package lpubsub
