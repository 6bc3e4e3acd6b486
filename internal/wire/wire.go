// Package wire frames distributed cache payloads.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("weave: corrupt cache entry")
	magic4     = [...]byte{'W', 'E', 'A', 'V'}
)

const hdrLen = 4 + 1 + 8 + 1 // magic | ver | gen | clen

// Entry is one framed value: the key generation it was written under, the
// codec that produced Payload, and the payload itself.
type Entry struct {
	Gen     uint64
	Codec   string
	Payload []byte
}

// Encode lays e out as
//
//	magic(4) | ver(1) | gen(u64 be) | clen(u8) | codec(clen) | vlen(u32 be) | payload(vlen)
//
// Codec names longer than 255 bytes are cut.
func Encode(e Entry) []byte {
	name := e.Codec
	if len(name) > 0xFF {
		name = name[:0xFF]
	}

	var buf bytes.Buffer
	buf.Grow(hdrLen + len(name) + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])

	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// Decode parses b. The returned payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < hdrLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := 5

	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	clen := int(b[off])
	off++
	if clen > len(b)-off {
		return Entry{}, ErrCorrupt
	}
	name := string(b[off : off+clen])
	off += clen

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{Gen: gen, Codec: name, Payload: b[off:]}, nil
}
