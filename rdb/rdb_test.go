package rdb_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/itarato/gokv/rdb"
)

// fixture is a minimal real RDB byte stream: header, five aux fields,
// and EOF+CRC — no database section, no keys. It mirrors the fixture the
// original implementation's own RDB reader test was built from.
const fixtureHex = "524544495330303131fa0972656469732d76657205372e322e30fa0a72656469732d62697473c040fa056374696d65c26d08bc65fa08757365642d6d656dc2b0c41000fa08616f662d62617365c000fff06e3bfec0ff5aa2"

func TestReadEmptySnapshot(t *testing.T) {
	t.Parallel()

	raw, err := hex.DecodeString(fixtureHex)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := rdb.Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 11 {
		t.Fatalf("got version %d, want 11", snap.Version)
	}
	if snap.Aux["redis-ver"] != "7.2.0" {
		t.Fatalf("got aux redis-ver=%q", snap.Aux["redis-ver"])
	}
	if len(snap.Strings) != 0 {
		t.Fatalf("expected no string records, got %d", len(snap.Strings))
	}
}

func TestReadChecksumMismatch(t *testing.T) {
	t.Parallel()

	raw, err := hex.DecodeString(fixtureHex)
	if err != nil {
		t.Fatal(err)
	}
	// Flip the last checksum byte.
	raw[len(raw)-1] ^= 0xFF

	if _, err := rdb.Read(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestReadUnsupportedValueType(t *testing.T) {
	t.Parallel()

	// REDIS0011 + 0xFE 0xC0 0x00 (db selector 0 as a one-byte special
	// int) + 0x04 (unsupported list
	// type byte) — must fail without panicking.
	raw := []byte("REDIS0011\xfe\xc0\x00\x04")
	if _, err := rdb.Read(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected not-implemented error for unsupported value type")
	}
}
