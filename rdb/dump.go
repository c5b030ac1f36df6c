package rdb

import (
	"bytes"
	"encoding/binary"

	"github.com/itarato/gokv/store"
)

// version is the RDB version string this process writes. It mirrors the
// version the reader has been exercised against; followers loading a
// snapshot only ever read the Version field back out, never compare it
// against their own, so bumping this later is not a wire-compat hazard.
const version = "0011"

// Dump encodes every live string record in recs into a complete RDB byte
// stream: magic, version, one string (or expiring-string) record per
// entry, and a trailing EOF opcode with its CRC-64 checksum. List, stream
// and zset data has no encoding in this subset of the format and is
// never passed in here.
func Dump(recs []store.StringRecord) []byte {
	var buf bytes.Buffer
	buf.WriteString("REDIS")
	buf.WriteString(version)

	for _, r := range recs {
		if r.HasExpiry {
			buf.WriteByte(0xFC)
			var ts [8]byte
			binary.LittleEndian.PutUint64(ts[:], uint64(r.ExpiresAtMs))
			buf.Write(ts[:])
			buf.WriteByte(0x00)
		} else {
			buf.WriteByte(0x00)
		}
		writeLengthPrefixedString(&buf, r.Key)
		writeLengthPrefixedString(&buf, string(r.Value))
	}

	buf.WriteByte(0xFF)
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], checksum(buf.Bytes()))
	buf.Write(sum[:])

	return buf.Bytes()
}

// EmptySnapshot is the minimal valid RDB payload for a follower that has
// no real data to send yet: magic, version, immediate EOF, and the CRC
// of exactly those bytes.
func EmptySnapshot() []byte {
	return Dump(nil)
}

// writeLengthPrefixedString encodes s using the same top-2-bit length
// scheme readVariableLen decodes: 6-bit length for under 64 bytes,
// 14-bit for under 16384, otherwise a 32-bit big-endian length. Every
// string this package writes goes through the literal-length form, never
// the special-int encoding Read also accepts on the way in.
func writeLengthPrefixedString(buf *bytes.Buffer, s string) {
	n := len(s)
	switch {
	case n < 1<<6:
		buf.WriteByte(byte(n))
	case n < 1<<14:
		buf.WriteByte(0b0100_0000 | byte(n>>8))
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(0b1000_0000)
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(n))
		buf.Write(lb[:])
	}
	buf.WriteString(s)
}
