package lchan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameHeaderSize is the width of the length prefix on every reliable frame.
const FrameHeaderSize = 4

// WriteFrame writes payload to w as a single length-prefixed frame.
// The header and payload are issued in one Write call,
// so a concurrent reader never observes a header without its payload
// sitting in the same stream segment.
func WriteFrame(w io.Writer, payload []byte, maxSize uint32) error {
	if uint64(len(payload)) > uint64(maxSize) {
		return &FramingError{
			Reason: fmt.Sprintf("outgoing frame of %d bytes", len(payload)),
			Err:    ErrFrameTooLarge,
		}
	}

	buf := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	_ = copy(buf[FrameHeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
//
// A clean end of stream before any header byte
// is reported as a [TransportError] wrapping [io.EOF].
// A stream ending mid-frame, or a length over maxSize,
// is reported as a [FramingError].
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{Reason: "truncated length prefix", Err: err}
		}
		return nil, &TransportError{Op: "read", Err: err}
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxSize {
		return nil, &FramingError{
			Reason: fmt.Sprintf("incoming frame declares %d bytes", n),
			Err:    ErrFrameTooLarge,
		}
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{Reason: "truncated payload", Err: err}
		}
		return nil, &TransportError{Op: "read", Err: err}
	}

	return buf, nil
}
