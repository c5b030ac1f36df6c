package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/itarato/gokv/engine"
	"github.com/itarato/gokv/resp"
	"github.com/itarato/gokv/server"
	"github.com/itarato/gokv/store"
)

func startServer(t *testing.T) string {
	t.Helper()

	s := store.New()
	eng := engine.New(s, nil, engine.Config{Dir: "/tmp", DBFilename: "dump.rdb"})
	srv := server.New(eng, nil, s)

	var lc net.ListenConfig
	lis, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			t.Logf("server error: %v", err)
		}
	}()
	t.Cleanup(cancel)

	d := net.Dialer{Timeout: 100 * time.Millisecond}
	for range 50 {
		conn, dialErr := d.DialContext(ctx, "tcp", addr)
		if dialErr == nil {
			_ = conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return addr
}

func sendAndRead(t *testing.T, conn net.Conn, cmd resp.Array) resp.Value {
	t.Helper()
	if _, err := conn.Write(resp.Serialize(cmd)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := resp.NewReader(conn)
	v, err := reader.ReadValue()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return v
}

func TestSetGetOverWire(t *testing.T) {
	t.Parallel()
	addr := startServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	v := sendAndRead(t, conn, resp.ArrayOf("SET", "k", "v"))
	if v != resp.OK() {
		t.Fatalf("SET reply = %v", v)
	}

	v = sendAndRead(t, conn, resp.ArrayOf("GET", "k"))
	bs, ok := v.(resp.BulkString)
	if !ok || string(bs.Data) != "v" {
		t.Fatalf("GET reply = %v", v)
	}
}

func TestPingOverWire(t *testing.T) {
	t.Parallel()
	addr := startServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	v := sendAndRead(t, conn, resp.ArrayOf("PING"))
	if v != resp.SimpleString("PONG") {
		t.Fatalf("PING reply = %v", v)
	}
}

func TestPsyncWithoutCoordinatorErrors(t *testing.T) {
	t.Parallel()
	addr := startServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	v := sendAndRead(t, conn, resp.ArrayOf("PSYNC", "?", "-1"))
	if _, ok := v.(resp.SimpleError); !ok {
		t.Fatalf("expected error reply, got %v", v)
	}
}

func TestMalformedCommandGetsErrorNotDisconnect(t *testing.T) {
	t.Parallel()
	addr := startServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	v := sendAndRead(t, conn, resp.ArrayOf("NOTACOMMAND"))
	if _, ok := v.(resp.SimpleError); !ok {
		t.Fatalf("expected error reply, got %v", v)
	}

	v = sendAndRead(t, conn, resp.ArrayOf("PING"))
	if v != resp.SimpleString("PONG") {
		t.Fatalf("connection should survive a bad command, PING reply = %v", v)
	}
}
