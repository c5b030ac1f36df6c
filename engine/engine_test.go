package engine

import (
	"context"
	"testing"
	"time"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
	"github.com/itarato/gokv/store"
)

func newTestEngine() *Engine {
	e := New(store.New(), nil, Config{Dir: "/tmp", DBFilename: "dump.rdb"})
	e.blockCapDuration = 50 * time.Millisecond
	return e
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	ctx := context.Background()

	v, err := e.Execute(ctx, "c1", command.Command{Kind: command.Set, Key: "k", Value: []byte("v")})
	if err != nil {
		t.Fatal(err)
	}
	if v != resp.OK() {
		t.Fatalf("SET reply = %v", v)
	}

	v, err = e.Execute(ctx, "c1", command.Command{Kind: command.Get, Key: "k"})
	if err != nil {
		t.Fatal(err)
	}
	bs, ok := v.(resp.BulkString)
	if !ok || string(bs.Data) != "v" {
		t.Fatalf("GET reply = %v", v)
	}
}

func TestGetMissingReturnsNullBulk(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	v, err := e.Execute(context.Background(), "c1", command.Command{Kind: command.Get, Key: "absent"})
	if err != nil {
		t.Fatal(err)
	}
	bs, ok := v.(resp.BulkString)
	if !ok || !bs.Null {
		t.Fatalf("expected null bulk, got %v", v)
	}
}

func TestTransactionQueuesAndExecutes(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	ctx := context.Background()

	v, err := e.Execute(ctx, "c1", command.Command{Kind: command.Multi})
	if err != nil || v != resp.OK() {
		t.Fatalf("MULTI reply = %v err = %v", v, err)
	}

	v, err = e.Execute(ctx, "c1", command.Command{Kind: command.Set, Key: "a", Value: []byte("1")})
	if err != nil {
		t.Fatal(err)
	}
	if ss, ok := v.(resp.SimpleString); !ok || ss != "QUEUED" {
		t.Fatalf("queued SET reply = %v", v)
	}

	v, err = e.Execute(ctx, "c1", command.Command{Kind: command.Get, Key: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if ss, ok := v.(resp.SimpleString); !ok || ss != "QUEUED" {
		t.Fatalf("queued GET reply = %v", v)
	}

	v, err = e.Execute(ctx, "c1", command.Command{Kind: command.Exec})
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := v.(resp.Array)
	if !ok || len(arr.Items) != 2 {
		t.Fatalf("EXEC reply = %v", v)
	}
	if arr.Items[0] != resp.OK() {
		t.Fatalf("first EXEC reply = %v", arr.Items[0])
	}
	bs, ok := arr.Items[1].(resp.BulkString)
	if !ok || string(bs.Data) != "1" {
		t.Fatalf("second EXEC reply = %v", arr.Items[1])
	}
}

func TestNestedMultiRejected(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	ctx := context.Background()
	if _, err := e.Execute(ctx, "c1", command.Command{Kind: command.Multi}); err != nil {
		t.Fatal(err)
	}
	v, err := e.Execute(ctx, "c1", command.Command{Kind: command.Multi})
	if err != nil {
		t.Fatal(err)
	}
	se, ok := v.(resp.SimpleError)
	if !ok || se != "ERR MULTI calls can not be nested" {
		t.Fatalf("nested MULTI reply = %v", v)
	}
}

func TestExecWithoutMultiErrors(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	v, err := e.Execute(context.Background(), "c1", command.Command{Kind: command.Exec})
	if err != nil {
		t.Fatal(err)
	}
	if se, ok := v.(resp.SimpleError); !ok || se != "ERR EXEC without MULTI" {
		t.Fatalf("reply = %v", v)
	}
}

func TestDiscardDropsQueuedCommands(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	ctx := context.Background()
	e.Execute(ctx, "c1", command.Command{Kind: command.Multi})
	e.Execute(ctx, "c1", command.Command{Kind: command.Set, Key: "a", Value: []byte("1")})

	v, err := e.Execute(ctx, "c1", command.Command{Kind: command.Discard})
	if err != nil || v != resp.OK() {
		t.Fatalf("DISCARD reply = %v err = %v", v, err)
	}

	if e.tx.inTx("c1") {
		t.Fatal("connection should no longer be in a transaction")
	}

	v, err = e.Execute(ctx, "c1", command.Command{Kind: command.Get, Key: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if bs, ok := v.(resp.BulkString); !ok || !bs.Null {
		t.Fatalf("discarded SET should not have run, GET = %v", v)
	}
}

func TestBlockingPopWakesOnPush(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	e.blockCapDuration = time.Second
	ctx := context.Background()

	type result struct {
		v   resp.Value
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := e.Execute(ctx, "blocker", command.Command{Kind: command.Blpop, Keys: []string{"q"}, TimeoutSecs: 1})
		done <- result{v, err}
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := e.Execute(ctx, "pusher", command.Command{Kind: command.Rpush, Key: "q", Values: [][]byte{[]byte("x")}}); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatal(r.err)
		}
		arr, ok := r.v.(resp.Array)
		if !ok || len(arr.Items) != 2 {
			t.Fatalf("BLPOP reply = %v", r.v)
		}
		key := arr.Items[0].(resp.BulkString)
		val := arr.Items[1].(resp.BulkString)
		if string(key.Data) != "q" || string(val.Data) != "x" {
			t.Fatalf("BLPOP reply = %v", r.v)
		}
	case <-time.After(time.Second):
		t.Fatal("BLPOP did not wake up after push")
	}
}

func TestBlockingPopTimesOut(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	e.blockCapDuration = time.Second

	v, err := e.Execute(context.Background(), "c1", command.Command{Kind: command.Blpop, Keys: []string{"empty"}, TimeoutSecs: 0.05})
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := v.(resp.Array)
	if !ok || !arr.Null {
		t.Fatalf("expected null array timeout reply, got %v", v)
	}
}

func TestWrongTypeError(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	ctx := context.Background()
	if _, err := e.Execute(ctx, "c1", command.Command{Kind: command.Set, Key: "k", Value: []byte("v")}); err != nil {
		t.Fatal(err)
	}
	v, err := e.Execute(ctx, "c1", command.Command{Kind: command.Rpush, Key: "k", Values: [][]byte{[]byte("x")}})
	if err != nil {
		t.Fatal(err)
	}
	if se, ok := v.(resp.SimpleError); !ok || string(se) != resp.WrongTypeMsg {
		t.Fatalf("reply = %v", v)
	}
}

func TestZaddAndZrange(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	ctx := context.Background()

	v, err := e.Execute(ctx, "c1", command.Command{
		Kind: command.Zadd,
		Key:  "z",
		ZMembers: []command.ScoreMember{
			{Score: 2, Member: "b"},
			{Score: 1, Member: "a"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v != resp.Integer(2) {
		t.Fatalf("ZADD reply = %v", v)
	}

	v, err = e.Execute(ctx, "c1", command.Command{Kind: command.Zrange, Key: "z", Start: 0, End: -1})
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := v.(resp.Array)
	if !ok || len(arr.Items) != 2 {
		t.Fatalf("ZRANGE reply = %v", v)
	}
	first := arr.Items[0].(resp.BulkString)
	second := arr.Items[1].(resp.BulkString)
	if string(first.Data) != "a" || string(second.Data) != "b" {
		t.Fatalf("ZRANGE order = %v", v)
	}
}

func TestConfigGetRecognizedParams(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	v, err := e.Execute(context.Background(), "c1", command.Command{
		Kind:         command.ConfigGet,
		ConfigParams: []string{"dir", "dbfilename"},
	})
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := v.(resp.Array)
	if !ok || len(arr.Items) != 4 {
		t.Fatalf("CONFIG GET reply = %v", v)
	}
}

func TestKeysGlob(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	ctx := context.Background()
	e.Execute(ctx, "c1", command.Command{Kind: command.Set, Key: "foo", Value: []byte("1")})
	e.Execute(ctx, "c1", command.Command{Kind: command.Set, Key: "bar", Value: []byte("1")})

	v, err := e.Execute(ctx, "c1", command.Command{Kind: command.Keys, Pattern: "fo*"})
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := v.(resp.Array)
	if !ok || len(arr.Items) != 1 {
		t.Fatalf("KEYS reply = %v", v)
	}
}

func TestCloseDropsTransactionState(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	ctx := context.Background()
	e.Execute(ctx, "c1", command.Command{Kind: command.Multi})
	if !e.tx.inTx("c1") {
		t.Fatal("expected connection in transaction")
	}
	e.Close("c1")
	if e.tx.inTx("c1") {
		t.Fatal("Close should drop transaction state")
	}
}
