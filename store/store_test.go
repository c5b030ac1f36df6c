package store_test

import (
	"math"
	"testing"

	"github.com/itarato/gokv/store"
)

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := store.New()
	if err := s.Set("k", []byte("v"), 0, false); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get("k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("got v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestTypeInvariantViolation(t *testing.T) {
	t.Parallel()
	s := store.New()
	if err := s.Set("k", []byte("v"), 0, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PushBack("k", [][]byte{[]byte("x")}); err != store.ErrWrongType {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
	// Failed operation must not have mutated the stored type or value.
	v, ok, err := s.Get("k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("state mutated after WRONGTYPE: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestLpopMissingKeyVsEmptyDistinction(t *testing.T) {
	t.Parallel()
	s := store.New()
	if _, ok, _ := s.PopFront("missing"); ok {
		t.Fatal("expected ok=false for missing key")
	}
	if _, ok, _ := s.PopFrontN("missing", 3); ok {
		t.Fatal("expected ok=false for missing key on PopFrontN")
	}

	if _, err := s.PushBack("k", [][]byte{[]byte("a")}); err != nil {
		t.Fatal(err)
	}
	vals, ok, err := s.PopFrontN("k", 5)
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
	if len(vals) != 1 {
		t.Fatalf("got %d values, want 1", len(vals))
	}
}

func TestLRangeNegativeIndices(t *testing.T) {
	t.Parallel()
	s := store.New()
	if _, err := s.PushBack("k", [][]byte{[]byte("a"), []byte("b"), []byte("c")}); err != nil {
		t.Fatal(err)
	}
	got, err := s.LRange("k", -2, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || string(got[0]) != "b" || string(got[1]) != "c" {
		t.Fatalf("got %v", got)
	}
}

func TestIncrFromMissing(t *testing.T) {
	t.Parallel()
	s := store.New()
	n, err := s.Incr("c")
	if err != nil || n != 1 {
		t.Fatalf("got n=%d err=%v", n, err)
	}
	n, err = s.Incr("c")
	if err != nil || n != 2 {
		t.Fatalf("got n=%d err=%v", n, err)
	}
}

func TestIncrNonInteger(t *testing.T) {
	t.Parallel()
	s := store.New()
	if err := s.Set("c", []byte("abc"), 0, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Incr("c"); err == nil {
		t.Fatal("expected error")
	}
}

func TestStreamMonotonicity(t *testing.T) {
	t.Parallel()
	s := store.New()

	id1, err := s.StreamPush("s", store.IDSpec{MS: 1, Seq: 1}, nil, 1000)
	if err != nil || id1 != (store.ID{MS: 1, Seq: 1}) {
		t.Fatalf("got id=%v err=%v", id1, err)
	}

	if _, err := s.StreamPush("s", store.IDSpec{MS: 1, Seq: 1}, nil, 1000); err == nil {
		t.Fatal("expected monotonicity error on equal id")
	}
	if _, err := s.StreamPush("s", store.IDSpec{MS: 0, Seq: 0}, nil, 1000); err == nil {
		t.Fatal("expected 0-0 rejection")
	}

	id2, err := s.StreamPush("s", store.IDSpec{MSWildcard: true, MS: 1}, nil, 1000)
	if err != nil || id2 != (store.ID{MS: 1, Seq: 2}) {
		t.Fatalf("got id=%v err=%v", id2, err)
	}
}

func TestStreamWildcardSeqStartsAtOneWhenMsZero(t *testing.T) {
	t.Parallel()
	s := store.New()
	id, err := s.StreamPush("s", store.IDSpec{MSWildcard: true, MS: 0}, nil, 1000)
	if err != nil || id != (store.ID{MS: 0, Seq: 1}) {
		t.Fatalf("got id=%v err=%v", id, err)
	}
}

func TestZAddRankScoreOrder(t *testing.T) {
	t.Parallel()
	s := store.New()
	if _, err := s.ZAdd("z", 5, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ZAdd("z", 3, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ZAdd("z", 3, "c"); err != nil {
		t.Fatal(err)
	}
	members, err := s.ZRange("z", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "c", "b"}
	for i, w := range want {
		if members[i].Member != w {
			t.Fatalf("got order %v, want %v", members, want)
		}
	}
	rank, ok, err := s.ZRank("z", "b")
	if err != nil || !ok || rank != 2 {
		t.Fatalf("got rank=%d ok=%v err=%v", rank, ok, err)
	}
}

func TestGeohashRoundTrip(t *testing.T) {
	t.Parallel()
	lon, lat := 13.361389, 38.115556
	hash := store.EncodeGeohash(lon, lat)
	gotLon, gotLat := store.DecodeGeohash(hash)
	if math.Abs(gotLon-lon) > 0.01 || math.Abs(gotLat-lat) > 0.01 {
		t.Fatalf("decoded (%v, %v), want near (%v, %v)", gotLon, gotLat, lon, lat)
	}
}

func TestKeysGlob(t *testing.T) {
	t.Parallel()
	s := store.New()
	for _, k := range []string{"foo", "foobar", "baz"} {
		if err := s.Set(k, []byte("x"), 0, false); err != nil {
			t.Fatal(err)
		}
	}
	got := s.Keys("foo*")
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
}
