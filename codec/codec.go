// Package codec converts cache values to and from bytes.
//
// polycache relies on the encoded form for three things: the size charged
// against the byte budget, the payload written to the backing store, and the
// deep copies held by undo history and snapshots. A codec must therefore
// round-trip: Decode(Encode(v)) must be indistinguishable from v to the caller.
package codec

import "encoding/json"

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// JSON serializes with encoding/json. The zero value is ready to use.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

// Bytes is the identity codec for []byte values. Decode copies, so values
// handed back to callers never alias cache-owned buffers.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// String stores Go strings as their UTF-8 bytes, so a string's size is its
// byte length.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
