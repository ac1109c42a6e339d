package lchan_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/gordian-engine/lanterm/lchan"
	"github.com/stretchr/testify/require"
)

func TestFrame_roundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, lchan.WriteFrame(&buf, []byte("first"), 1024))
	require.NoError(t, lchan.WriteFrame(&buf, nil, 1024))
	require.NoError(t, lchan.WriteFrame(&buf, []byte("third"), 1024))

	// Length prefix is big-endian.
	require.Equal(t, []byte{0, 0, 0, 5}, buf.Bytes()[:4])

	for _, want := range []string{"first", "", "third"} {
		got, err := lchan.ReadFrame(&buf, 1024)
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}

	_, err := lchan.ReadFrame(&buf, 1024)
	var te *lchan.TransportError
	require.ErrorAs(t, err, &te)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_truncatedPrefix(t *testing.T) {
	t.Parallel()

	_, err := lchan.ReadFrame(bytes.NewReader([]byte{0, 0}), 1024)

	var fe *lchan.FramingError
	require.ErrorAs(t, err, &fe)
}

func TestReadFrame_truncatedPayload(t *testing.T) {
	t.Parallel()

	b := binary.BigEndian.AppendUint32(nil, 10)
	b = append(b, "short"...)

	_, err := lchan.ReadFrame(bytes.NewReader(b), 1024)

	var fe *lchan.FramingError
	require.ErrorAs(t, err, &fe)
}

func TestReadFrame_tooLarge(t *testing.T) {
	t.Parallel()

	b := binary.BigEndian.AppendUint32(nil, 2048)

	_, err := lchan.ReadFrame(bytes.NewReader(b), 1024)
	require.ErrorIs(t, err, lchan.ErrFrameTooLarge)
	require.True(t, lchan.IsFatal(err))
}

func TestWriteFrame_tooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := lchan.WriteFrame(&buf, make([]byte, 11), 10)
	require.ErrorIs(t, err, lchan.ErrFrameTooLarge)
	require.Zero(t, buf.Len())
}

func TestWriteFrame_writerError(t *testing.T) {
	t.Parallel()

	err := lchan.WriteFrame(failingWriter{}, []byte("x"), 10)

	var te *lchan.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "write", te.Op)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("stream closed")
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	require.False(t, lchan.IsFatal(nil))
	require.False(t, lchan.IsFatal(&lchan.DecodeError{Reliable: false, Err: io.EOF}))
	require.True(t, lchan.IsFatal(&lchan.DecodeError{Reliable: true, Err: io.EOF}))
	require.True(t, lchan.IsFatal(&lchan.TransportError{Op: "read", Err: io.EOF}))
	require.True(t, lchan.IsFatal(&lchan.FramingError{Reason: "x"}))
	require.True(t, lchan.IsFatal(errors.New("anything else")))
}
