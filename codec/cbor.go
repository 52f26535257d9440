package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOROptions tunes NewCBOR. The zero value gives RFC 8949 Core Deterministic
// encoding and strict decoding.
type CBOROptions struct {
	// Unsorted skips map key sorting. Encoding gets cheaper, but equal maps
	// may produce different bytes, so an overwrite with an equal value can
	// change the snapshot and backing record bytes.
	Unsorted bool
	// MaxNestedLevels bounds decode depth. 0 keeps the library default.
	MaxNestedLevels int
}

// CBOR serializes values with fxamacker/cbor. Time values are encoded as
// RFC3339Nano strings. Duplicate map keys are rejected on decode.
//
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](o CBOROptions) (CBOR[V], error) {
	eo := cbor.CoreDetEncOptions()
	if o.Unsorted {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, fmt.Errorf("codec: cbor enc mode: %w", err)
	}
	dm, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: o.MaxNestedLevels,
	}.DecMode()
	if err != nil {
		return CBOR[V]{}, fmt.Errorf("codec: cbor dec mode: %w", err)
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR is like NewCBOR but panics on error. Meant for package-level vars.
func MustCBOR[V any](o CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](o)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	if c.enc == nil {
		return nil, fmt.Errorf("codec: cbor: use NewCBOR")
	}
	return c.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if c.dec == nil {
		return v, fmt.Errorf("codec: cbor: use NewCBOR")
	}
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
