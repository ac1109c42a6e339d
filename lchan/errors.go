package lchan

import (
	"errors"
	"fmt"
)

// TransportError reports that the underlying connection or stream
// refused an operation, usually because it is closed.
// It is always fatal to the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FramingError reports a malformed length prefix or truncated frame
// on the reliable stream.
// It is always fatal to the session.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err == nil {
		return "framing error: " + e.Reason
	}
	return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// DecodeError reports a payload that could not be deserialized
// into the channel's message type.
//
// On the reliable path it is fatal;
// on the unreliable path it never escapes [Channel.NextUnreliable].
type DecodeError struct {
	Reliable bool
	Err      error
}

func (e *DecodeError) Error() string {
	path := "unreliable"
	if e.Reliable {
		path = "reliable"
	}
	return fmt.Sprintf("failed to decode %s message: %v", path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrFrameTooLarge is wrapped in a [FramingError]
// when a frame exceeds [Config.MaxFrameSize].
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// IsFatal reports whether err must tear down the session.
// Only decode failures on the unreliable path are recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return de.Reliable
	}
	return true
}
