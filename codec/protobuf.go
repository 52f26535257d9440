package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes proto messages. Decode allocates a fresh message with
// the constructor, so decoded values never share state with the original.
type Protobuf[T proto.Message] struct {
	new func() T // e.g. func() *pb.User { return &pb.User{} }
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	// deterministic so equal messages are charged the same size
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.new == nil {
		var zero T
		return zero, errors.New("protobuf codec: nil constructor")
	}
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
