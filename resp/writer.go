package resp

import "strconv"

// Serialize renders a Value into its exact wire bytes. This is the
// inverse of Reader.ReadValue, and the two must round-trip: every
// well-formed value read back in produces byte-identical output.
func Serialize(v Value) []byte {
	buf := make([]byte, 0, 64)
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch t := v.(type) {
	case SimpleString:
		buf = append(buf, '+')
		buf = append(buf, t...)
		return append(buf, '\r', '\n')
	case SimpleError:
		buf = append(buf, '-')
		buf = append(buf, t...)
		return append(buf, '\r', '\n')
	case Integer:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(t), 10)
		return append(buf, '\r', '\n')
	case BulkString:
		if t.Null {
			return append(buf, '$', '-', '1', '\r', '\n')
		}
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(t.Data)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, t.Data...)
		return append(buf, '\r', '\n')
	case Array:
		if t.Null {
			return append(buf, '*', '-', '1', '\r', '\n')
		}
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(t.Items)), 10)
		buf = append(buf, '\r', '\n')
		for _, item := range t.Items {
			buf = appendValue(buf, item)
		}
		return buf
	case BulkBytes:
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(t)), 10)
		buf = append(buf, '\r', '\n')
		return append(buf, t...)
	default:
		panic("resp: unknown value type in Serialize")
	}
}

// ArrayOf is a small helper for building command-shaped arrays of bulk
// strings, used both by the server tests and by the replication
// package's handshake and GETACK/ACK frames.
func ArrayOf(parts ...string) Array {
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = Bulk(p)
	}
	return Array{Items: items}
}
