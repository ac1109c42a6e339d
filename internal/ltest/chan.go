package ltest

import (
	"testing"
	"time"
)

// ScaleDuration is how long the Soon helpers wait.
// Localhost QUIC handshakes occasionally take tens of milliseconds
// on loaded CI machines, so this is deliberately not tiny.
const ScaleDuration = 2 * time.Second

// ReceiveSoon returns the value received from ch,
// failing the test if no value arrives within [ScaleDuration].
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(ScaleDuration)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("no value received within %s", ScaleDuration)
	}

	panic("unreachable")
}

// SendSoon sends v on ch,
// failing the test if the send does not complete within [ScaleDuration].
func SendSoon[T any](t testing.TB, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(ScaleDuration)
	defer timer.Stop()

	select {
	case ch <- v:
		return
	case <-timer.C:
		t.Fatalf("value not sent within %s", ScaleDuration)
	}
}

// IsSending asserts that ch is immediately readable.
// For a closed-to-signal channel, that means it has been closed.
func IsSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	select {
	case <-ch:
	default:
		t.Fatal("channel should have been sending but was not")
	}
}

// NotSending asserts that ch does not become readable
// within a short window.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	select {
	case <-ch:
		t.Fatal("channel should not have been sending but was")
	case <-time.After(10 * time.Millisecond):
	}
}
