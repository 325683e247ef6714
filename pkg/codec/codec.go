// Package codec provides the value encodings spoken on the method channel.
package codec

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnknownCodec is returned by ByName for unsupported names.
var ErrUnknownCodec = errors.New("unknown codec")

// Encoder writes a stream of values.
type Encoder interface {
	Encode(v any) error
}

// Decoder reads a stream of values.
type Decoder interface {
	Decode(v any) error
}

// Codec is a self-delimiting value encoding.
type Codec interface {
	Name() string
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r io.Reader) Decoder
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Names accepted by ByName.
const (
	NameJSON = "json"
	NameCBOR = "cbor"
)

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", NameJSON:
		return JSON, nil
	case NameCBOR:
		return CBOR, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Convert re-encodes src into dst through c. It is used to turn a
// generically decoded value into a typed one.
func Convert(c Codec, src, dst any) error {
	data, err := c.Marshal(src)
	if err != nil {
		return fmt.Errorf("%s encode: %w", c.Name(), err)
	}
	if err := c.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s decode: %w", c.Name(), err)
	}
	return nil
}
