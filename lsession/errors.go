package lsession

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshakeIncomplete is returned from [Upgrade]
	// when the session has not completed a handshake.
	ErrHandshakeIncomplete = errors.New("handshake has not completed")

	// ErrAlreadyUpgraded is returned from [Upgrade]
	// when the same Negotiating value is upgraded twice.
	ErrAlreadyUpgraded = errors.New("session already upgraded")

	// ErrSessionActive is returned from a handshake method
	// on a session whose handshake already ran.
	ErrSessionActive = errors.New("session handshake already performed")

	// ErrSessionReset is returned from [Active] methods
	// after [Active.Reset] has been called.
	ErrSessionReset = errors.New("session has been reset")

	// ErrNotHost is returned when a client attempts a host-only operation,
	// such as broadcasting a snapshot.
	ErrNotHost = errors.New("operation is only permitted for the host")

	// ErrNotClient is returned when the host attempts a client-only operation.
	ErrNotClient = errors.New("operation is only permitted for a client")
)

// HandshakeMismatchError is returned from [Negotiating.ClientHandshake]
// when the host selected a different application than the client required.
type HandshakeMismatchError struct {
	Host, Client string
}

func (e HandshakeMismatchError) Error() string {
	return fmt.Sprintf("host selected application %q but client expected %q", e.Host, e.Client)
}
