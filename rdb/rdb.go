// Package rdb parses the subset of the binary snapshot format required
// for cold start: header, auxiliary fields, resize hints, string values,
// and the trailing CRC-64 checksum. List/set/zset/hash encodings are
// explicitly out of scope and produce an error rather than corrupting the
// reader.
package rdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"io"
)

// crcTable is built from the Redis/Jones CRC-64 polynomial in its
// bit-reflected form (the input hash/crc64.MakeTable expects, matching
// how its ECMA/ISO presets are themselves already-reflected constants).
// No ecosystem library in reach of this module implements this specific
// polynomial, so the table is built directly on the standard library.
var crcTable = crc64.MakeTable(0x95ac9329ac4bc9b5)

// checksum computes the Redis CRC-64 of b: zero initial value and no
// final XOR. hash/crc64's Update inverts the register on entry and on
// exit, so both inversions are undone here.
func checksum(b []byte) uint64 {
	return ^crc64.Update(^uint64(0), crcTable, b)
}

// StringRecord is one loaded key=value string entry, with an optional
// absolute millisecond expiry.
type StringRecord struct {
	Key         string
	Value       []byte
	ExpiresAtMs int64
	HasExpiry   bool
}

// Snapshot is the parsed subset of an RDB file needed to repopulate the
// store on cold start.
type Snapshot struct {
	Version int
	Aux     map[string]string
	Strings []StringRecord
}

// recordingReader records every byte consumed, except the final 8 CRC
// bytes, into a memory buffer used to verify the trailing checksum — the
// same split responsibility as the original RecordingReader.
type recordingReader struct {
	br     *bufio.Reader
	memory []byte
}

func (r *recordingReader) readExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, err
	}
	r.memory = append(r.memory, buf...)
	return buf, nil
}

func (r *recordingReader) readExactNoMemory(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(r.br, buf)
	return buf, err
}

func (r *recordingReader) readByte() (byte, error) {
	b, err := r.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read parses a full RDB stream into a Snapshot.
func Read(r io.Reader) (*Snapshot, error) {
	rr := &recordingReader{br: bufio.NewReader(r)}
	content := &Snapshot{Aux: make(map[string]string)}

	magic, err := rr.readExact(5)
	if err != nil {
		return nil, fmt.Errorf("rdb: read magic: %w", err)
	}
	if string(magic) != "REDIS" {
		return nil, fmt.Errorf("rdb: missing magic string at beginning (REDIS)")
	}

	versionBytes, err := rr.readExact(4)
	if err != nil {
		return nil, fmt.Errorf("rdb: read version: %w", err)
	}
	version := 0
	for _, b := range versionBytes {
		if b < '0' || b > '9' {
			return nil, fmt.Errorf("rdb: invalid version string %q", versionBytes)
		}
		version = version*10 + int(b-'0')
	}
	content.Version = version

	header, err := rr.readByte()
	if err != nil {
		return nil, fmt.Errorf("rdb: read section header: %w", err)
	}

	if err := readSection(header, rr, content); err != nil {
		return nil, err
	}

	return content, nil
}

func readSection(header byte, rr *recordingReader, content *Snapshot) error {
	switch header {
	case 0xFF:
		return readEOF(rr)
	case 0xFE:
		return readDBSection(rr, content)
	case 0xFD:
		return readExpiringRecord(rr, content, 4, false)
	case 0xFC:
		return readExpiringRecord(rr, content, 8, true)
	case 0xFB:
		return readResizeDB(rr, content)
	case 0xFA:
		return readAuxSection(rr, content)
	case 0x00:
		return readStringRecord(rr, content, 0, false)
	default:
		return fmt.Errorf("rdb: unsupported value type 0x%02x (not implemented)", header)
	}
}

func readDBSection(rr *recordingReader, content *Snapshot) error {
	v, err := readVariableLen(rr)
	if err != nil {
		return err
	}
	if v.kind != lenInt {
		return fmt.Errorf("rdb: unsupported db selector encoding")
	}
	header, err := rr.readByte()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("rdb: read section header: %w", err)
	}
	return readSection(header, rr, content)
}

func readResizeDB(rr *recordingReader, content *Snapshot) error {
	if _, err := readVariableLen(rr); err != nil {
		return err
	}
	if _, err := readVariableLen(rr); err != nil {
		return err
	}
	header, err := rr.readByte()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("rdb: read section header: %w", err)
	}
	return readSection(header, rr, content)
}

func readAuxSection(rr *recordingReader, content *Snapshot) error {
	for {
		key, err := readVariableLen(rr)
		if err != nil {
			return err
		}
		if key.kind == notALength {
			return readSection(key.raw, rr, content)
		}
		value, err := readVariableLen(rr)
		if err != nil {
			return err
		}
		if value.kind == notALength {
			return fmt.Errorf("rdb: expected aux value for key %q, found header byte 0x%02x", key.str, value.raw)
		}
		content.Aux[key.str] = value.asString()
	}
}

// readExpiringRecord reads an expiry timestamp of the given byte width
// (little-endian; 8 for ms-precision 0xFC, 4 for seconds-precision
// 0xFD), converts to absolute ms, then reads the following typed value.
func readExpiringRecord(rr *recordingReader, content *Snapshot, width int, isMs bool) error {
	raw, err := rr.readExact(width)
	if err != nil {
		return fmt.Errorf("rdb: read expiry: %w", err)
	}
	var expiresAtMs int64
	if width == 8 {
		expiresAtMs = int64(binary.LittleEndian.Uint64(raw))
	} else {
		expiresAtMs = int64(binary.LittleEndian.Uint32(raw)) * 1000
	}
	_ = isMs

	valueType, err := rr.readByte()
	if err != nil {
		return fmt.Errorf("rdb: read value type: %w", err)
	}
	if valueType != 0 {
		return fmt.Errorf("rdb: unsupported value type 0x%02x for expiring key (not implemented)", valueType)
	}
	return readStringRecord(rr, content, expiresAtMs, true)
}

func readStringRecord(rr *recordingReader, content *Snapshot, expiresAtMs int64, hasExpiry bool) error {
	key, err := readVariableLen(rr)
	if err != nil {
		return err
	}
	if key.kind != lenStr {
		return fmt.Errorf("rdb: expected string key")
	}
	value, err := readVariableLen(rr)
	if err != nil {
		return err
	}
	content.Strings = append(content.Strings, StringRecord{
		Key:         key.str,
		Value:       []byte(value.asString()),
		ExpiresAtMs: expiresAtMs,
		HasExpiry:   hasExpiry,
	})

	header, err := rr.readByte()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("rdb: read section header: %w", err)
	}
	return readSection(header, rr, content)
}

func readEOF(rr *recordingReader) error {
	buf, err := rr.readExactNoMemory(8)
	if err != nil {
		return fmt.Errorf("rdb: read checksum: %w", err)
	}
	expected := binary.LittleEndian.Uint64(buf)
	actual := checksum(rr.memory)
	if expected != actual {
		return fmt.Errorf("rdb: checksum mismatch: expected %x, got %x", expected, actual)
	}
	return nil
}

type lenKind int

const (
	lenInt lenKind = iota
	lenStr
	notALength
)

type variableLen struct {
	kind     lenKind
	str      string
	i8       int8
	i16      int16
	i32      int32
	intWidth int
	raw      byte
}

// asString renders a variableLen as the string form a caller reading an
// aux value or a string-typed RDB value expects: the literal string for
// a length-prefixed payload, or the decimal rendering for one of the
// 11-prefixed special integer encodings.
func (v variableLen) asString() string {
	switch v.kind {
	case lenStr:
		return v.str
	case lenInt:
		return fmt.Sprintf("%d", v.combinedInt())
	default:
		return ""
	}
}

// combinedInt returns whichever integer width was actually populated.
// Exactly one of i8/i16/i32 is meaningful per variableLen, selected at
// construction time in readVariableLen, so this cannot disambiguate a
// genuine zero value at a wider width from an unset narrower one — not a
// concern here since RDB's own encoding already commits to a width
// before this value is built.
func (v variableLen) combinedInt() int64 {
	switch {
	case v.intWidth == 4:
		return int64(v.i32)
	case v.intWidth == 2:
		return int64(v.i16)
	default:
		return int64(v.i8)
	}
}

// readVariableLen implements the top-2-bit length/special-int dispatch:
// 00 -> 6-bit length, 01 -> 14-bit length, 10 -> 32-bit BE length,
// 11 -> special int (0/1/2 widths) or, for any other low-6-bits value, a
// "not a length" escape used by the aux-section loop to detect the next
// section header.
func readVariableLen(rr *recordingReader) (variableLen, error) {
	b, err := rr.readByte()
	if err != nil {
		return variableLen{}, err
	}

	switch b >> 6 {
	case 0b00:
		n := int(b & 0b0011_1111)
		s, err := readStringOfLen(rr, n)
		return variableLen{kind: lenStr, str: s}, err
	case 0b01:
		lo, err := rr.readByte()
		if err != nil {
			return variableLen{}, err
		}
		n := (int(b&0b0011_1111) << 8) | int(lo)
		s, err := readStringOfLen(rr, n)
		return variableLen{kind: lenStr, str: s}, err
	case 0b10:
		buf, err := rr.readExact(4)
		if err != nil {
			return variableLen{}, err
		}
		n := int(binary.BigEndian.Uint32(buf))
		s, err := readStringOfLen(rr, n)
		return variableLen{kind: lenStr, str: s}, err
	default: // 0b11
		switch b & 0b0011_1111 {
		case 0:
			buf, err := rr.readExact(1)
			if err != nil {
				return variableLen{}, err
			}
			return variableLen{kind: lenInt, i8: int8(buf[0]), intWidth: 1}, nil
		case 1:
			buf, err := rr.readExact(2)
			if err != nil {
				return variableLen{}, err
			}
			return variableLen{kind: lenInt, i16: int16(binary.LittleEndian.Uint16(buf)), intWidth: 2}, nil
		case 2:
			buf, err := rr.readExact(4)
			if err != nil {
				return variableLen{}, err
			}
			return variableLen{kind: lenInt, i32: int32(binary.LittleEndian.Uint32(buf)), intWidth: 4}, nil
		case 3:
			return variableLen{}, fmt.Errorf("rdb: LZF-encoded strings are not implemented")
		default:
			return variableLen{kind: notALength, raw: b}, nil
		}
	}
}

func readStringOfLen(rr *recordingReader, n int) (string, error) {
	buf, err := rr.readExact(n)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
