package codec

import (
	"errors"
	"fmt"
)

var ErrTooLarge = errors.New("codec: payload too large")

// LimitCodec bounds payload sizes around another codec.
//
// MaxEncode rejects oversized values before they ever reach the cache.
// MaxDecode protects reads of durable records coming from a shared store
// (e.g. Redis) that other writers may have touched. Zero disables a limit.
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxEncode int
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxEncode > 0 && len(b) > c.MaxEncode {
		return nil, fmt.Errorf("%w: encode %d > %d", ErrTooLarge, len(b), c.MaxEncode)
	}
	return b, nil
}

func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: decode %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
