// Package resp implements the wire value model and codec: framing of
// SimpleString, SimpleError, Integer, BulkString, Array and BulkBytes
// frames over a byte stream.
package resp

import (
	"fmt"
)

// Value is a tagged wire frame. Every concrete type below is a variant;
// callers type-switch rather than duck-type.
type Value interface {
	isValue()
}

// SimpleString is a `+...\r\n` frame.
type SimpleString string

func (SimpleString) isValue() {}

// SimpleError is a `-...\r\n` frame.
type SimpleError string

func (e SimpleError) Error() string { return string(e) }
func (SimpleError) isValue()        {}

// Integer is a `:...\r\n` frame.
type Integer int64

func (Integer) isValue() {}

// BulkString is a `$<len>\r\n<payload>\r\n` frame, or `$-1\r\n` when Null.
type BulkString struct {
	Data []byte
	Null bool
}

func (BulkString) isValue() {}

// Bulk builds a non-null BulkString from a Go string.
func Bulk(s string) BulkString { return BulkString{Data: []byte(s)} }

// BulkBytesString builds a non-null BulkString from a raw byte slice.
func BulkBytesString(b []byte) BulkString { return BulkString{Data: b} }

// NullBulk is the `$-1\r\n` frame.
func NullBulk() BulkString { return BulkString{Null: true} }

// Array is a `*<count>\r\n<items>` frame, or `*-1\r\n` when Null.
type Array struct {
	Items []Value
	Null  bool
}

func (Array) isValue() {}

// NullArray is the `*-1\r\n` frame.
func NullArray() Array { return Array{Null: true} }

// BulkBytes is the raw-payload variant used only for RDB snapshot
// transfer: `$<len>\r\n<raw bytes>` with NO trailing CRLF.
type BulkBytes []byte

func (BulkBytes) isValue() {}

// AsString extracts the textual content of a SimpleString or a non-null
// BulkString, mirroring the original parser's `as_string` helper used to
// read command names and arguments uniformly regardless of frame type.
func AsString(v Value) (string, bool) {
	switch t := v.(type) {
	case SimpleString:
		return string(t), true
	case BulkString:
		if t.Null {
			return "", false
		}
		return string(t.Data), true
	default:
		return "", false
	}
}

func (v BulkString) String() string {
	if v.Null {
		return "(nil)"
	}
	return string(v.Data)
}

// ErrString formats an `ERR ...`-prefixed SimpleError.
func ErrString(format string, args ...any) SimpleError {
	return SimpleError("ERR " + fmt.Sprintf(format, args...))
}

// WrongTypeMsg is the fixed message returned for any type-invariant violation.
const WrongTypeMsg = "WRONGTYPE Operation against a key holding the wrong kind of value"

func WrongType() SimpleError { return SimpleError(WrongTypeMsg) }

// OK is the canonical `+OK\r\n` reply.
func OK() SimpleString { return SimpleString("OK") }
