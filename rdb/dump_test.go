package rdb_test

import (
	"bytes"
	"testing"

	"github.com/itarato/gokv/rdb"
	"github.com/itarato/gokv/store"
)

func TestDumpRoundTrip(t *testing.T) {
	t.Parallel()

	recs := []store.StringRecord{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("hello world"), ExpiresAtMs: 1893456000000, HasExpiry: true},
	}

	raw := rdb.Dump(recs)
	snap, err := rdb.Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Strings) != 2 {
		t.Fatalf("got %d records, want 2", len(snap.Strings))
	}
	byKey := map[string]rdb.StringRecord{}
	for _, r := range snap.Strings {
		byKey[r.Key] = r
	}
	if string(byKey["a"].Value) != "1" || byKey["a"].HasExpiry {
		t.Fatalf("record a = %+v", byKey["a"])
	}
	if string(byKey["b"].Value) != "hello world" || !byKey["b"].HasExpiry || byKey["b"].ExpiresAtMs != 1893456000000 {
		t.Fatalf("record b = %+v", byKey["b"])
	}
}

func TestEmptySnapshotReadsBack(t *testing.T) {
	t.Parallel()

	raw := rdb.EmptySnapshot()
	snap, err := rdb.Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Strings) != 0 {
		t.Fatalf("expected no records, got %d", len(snap.Strings))
	}
}
