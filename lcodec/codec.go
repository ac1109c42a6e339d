package lcodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Codec converts values to and from bytes.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON encodes values with encoding/json.
//
// Decoding rejects unknown fields,
// so a payload meant for one message type
// does not silently decode as another.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}

	// More reports false ahead of a stray closing delimiter,
	// so ask for one more token instead.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

var errTrailingData = errors.New("trailing data after JSON value")

// DefaultMaxDecodedLen bounds a decompressed payload
// when [Snappy.MaxDecodedLen] is zero.
// It matches the default reliable frame limit.
const DefaultMaxDecodedLen = 4 << 20

// ErrDecodedTooLarge is returned from [Snappy.Unmarshal]
// when the input claims a decompressed size over the limit.
var ErrDecodedTooLarge = errors.New("snappy payload decodes past size limit")

// Snappy compresses the output of Inner with snappy block encoding.
type Snappy struct {
	Inner Codec

	// Upper bound on the decompressed size of an incoming payload.
	// The length header is checked before anything is allocated.
	// Zero selects DefaultMaxDecodedLen.
	MaxDecodedLen uint32
}

var _ Codec = Snappy{}

func (c Snappy) Marshal(v any) ([]byte, error) {
	raw, err := c.Inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func (c Snappy) Unmarshal(data []byte, v any) error {
	limit := c.MaxDecodedLen
	if limit == 0 {
		limit = DefaultMaxDecodedLen
	}

	n, err := snappy.DecodedLen(data)
	if err != nil {
		return fmt.Errorf("failed to read decompressed length: %w", err)
	}
	if uint64(n) > uint64(limit) {
		return fmt.Errorf("%w: %d > %d", ErrDecodedTooLarge, n, limit)
	}

	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("failed to decompress: %w", err)
	}
	return c.Inner.Unmarshal(raw, v)
}

// Default returns the codec used when none is configured.
func Default() Codec {
	return JSON{}
}

// ByName resolves a codec from a configuration string.
// Recognized names are "json" and "snappy+json".
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "snappy+json":
		return Snappy{Inner: JSON{}}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
