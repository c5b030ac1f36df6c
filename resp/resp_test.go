package resp_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/itarato/gokv/resp"
)

func TestSerializeExactBytes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		v    resp.Value
		want string
	}{
		{"simple string", resp.SimpleString("OK"), "+OK\r\n"},
		{"simple error", resp.SimpleError("ERR bad"), "-ERR bad\r\n"},
		{"integer", resp.Integer(42), ":42\r\n"},
		{"integer negative", resp.Integer(-7), ":-7\r\n"},
		{"bulk string", resp.Bulk("bar"), "$3\r\nbar\r\n"},
		{"bulk string empty", resp.Bulk(""), "$0\r\n\r\n"},
		{"null bulk", resp.NullBulk(), "$-1\r\n"},
		{"null array", resp.NullArray(), "*-1\r\n"},
		{"empty array", resp.Array{Items: []resp.Value{}}, "*0\r\n"},
		{
			"nested array",
			resp.Array{Items: []resp.Value{resp.Bulk("k"), resp.Bulk("hello")}},
			"*2\r\n$1\r\nk\r\n$5\r\nhello\r\n",
		},
		{"bulk bytes", resp.BulkBytes("abc"), "$3\r\nabc"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			got := resp.Serialize(c.v)
			if string(got) != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestReadValueRoundTrip(t *testing.T) {
	t.Parallel()

	values := []resp.Value{
		resp.SimpleString("PONG"),
		resp.Integer(1234),
		resp.Bulk("hello world"),
		resp.NullBulk(),
		resp.Array{Items: []resp.Value{resp.Bulk("SET"), resp.Bulk("k"), resp.Bulk("v")}},
		resp.NullArray(),
	}

	for _, v := range values {
		encoded := resp.Serialize(v)
		r := resp.NewReader(bytes.NewReader(encoded))
		got, err := r.ReadValue()
		if err != nil {
			t.Fatalf("ReadValue(%q): %v", encoded, err)
		}
		if !bytes.Equal(resp.Serialize(got), encoded) {
			t.Fatalf("round trip mismatch: got %q, want %q", resp.Serialize(got), encoded)
		}
	}
}

func TestReadValueEOF(t *testing.T) {
	t.Parallel()
	r := resp.NewReader(bytes.NewReader(nil))
	if _, err := r.ReadValue(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadValueMalformed(t *testing.T) {
	t.Parallel()
	r := resp.NewReader(bytes.NewReader([]byte("$3\r\nabXYZ")))
	if _, err := r.ReadValue(); err == nil {
		t.Fatal("expected protocol error for missing CRLF terminator")
	}
}

func TestByteCounterCommitSemantics(t *testing.T) {
	t.Parallel()

	ping := resp.Serialize(resp.Array{Items: []resp.Value{resp.Bulk("PING")}})
	getack := resp.Serialize(resp.Array{Items: []resp.Value{
		resp.Bulk("REPLCONF"), resp.Bulk("GETACK"), resp.Bulk("*"),
	}})

	r := resp.NewReader(bytes.NewReader(append(append([]byte{}, ping...), getack...)))

	if _, err := r.ReadValue(); err != nil {
		t.Fatal(err)
	}
	r.Commit()
	if got := r.Committed(); got != int64(len(ping)) {
		t.Fatalf("committed = %d, want %d", got, len(ping))
	}

	// Reading the GETACK frame itself must not be reflected in Committed()
	// until it too is committed — this is what lets a follower report its
	// offset from before the GETACK frame's own bytes.
	if _, err := r.ReadValue(); err != nil {
		t.Fatal(err)
	}
	if got := r.Committed(); got != int64(len(ping)) {
		t.Fatalf("committed before commit = %d, want %d (unchanged)", got, len(ping))
	}
}

func TestReadBulkBytes(t *testing.T) {
	t.Parallel()
	payload := []byte("REDIS0011\xff")
	frame := append([]byte("$10\r\n"), payload...)
	r := resp.NewReader(bytes.NewReader(frame))
	got, err := r.ReadBulkBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}
