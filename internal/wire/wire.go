package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindRecord byte = 1

	headerLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("polycache: corrupt record")
	magic4     = [...]byte{'P', 'L', 'Y', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record: magic(4) | ver(1) | kind(1=record) | seq(u64 be) | vlen(u32 be) | payload(vlen)
//
// seq is the manager's write sequence at the time the record was persisted.
func EncodeRecord(seq uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], seq)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeRecord validates framing strictly (no trailing bytes). The returned
// payload aliases b.
func DecodeRecord(b []byte) (seq uint64, payload []byte, err error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return 0, nil, ErrCorrupt
	}

	off := 6

	seq = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}

	return seq, b[off:], nil
}
