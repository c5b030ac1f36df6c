package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/itarato/gokv/engine"
	"github.com/itarato/gokv/rdb"
	"github.com/itarato/gokv/replication"
	"github.com/itarato/gokv/server"
	"github.com/itarato/gokv/store"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("kvsrvd", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "kvsrvd — Redis-wire-compatible key-value server\n\nUsage:\n  kvsrvd [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	port := fs.Int("port", 6379, "client listen port")
	replicaof := fs.String("replicaof", "", `"<host> <port>" of a leader to follow`)
	dir := fs.String("dir", ".", "directory holding the snapshot file")
	dbfilename := fs.String("dbfilename", "dump.rdb", "snapshot file name")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("kvsrvd %s\n", version)
		return
	}

	if err := run(*port, *replicaof, *dir, *dbfilename); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(port int, replicaof, dir, dbfilename string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := store.New()
	if err := loadSnapshot(s, dir, dbfilename); err != nil {
		return fmt.Errorf("kvsrvd: %w", err)
	}

	isFollower := replicaof != ""
	cfg := engine.Config{Dir: dir, DBFilename: dbfilename, IsFollower: isFollower}

	if isFollower {
		return runFollower(ctx, s, cfg, port, replicaof)
	}
	return runLeader(ctx, s, cfg, port)
}

func loadSnapshot(s *store.Store, dir, dbfilename string) error {
	path := dir + "/" + dbfilename
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()

	snap, err := rdb.Read(f)
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", path, err)
	}
	if err := rdb.Apply(snap, s); err != nil {
		return fmt.Errorf("apply snapshot %s: %w", path, err)
	}
	log.Printf("kvsrvd: loaded %d keys from %s", len(snap.Strings), path)
	return nil
}

func runLeader(ctx context.Context, s *store.Store, cfg engine.Config, port int) error {
	coordinator := replication.NewCoordinator()
	eng := engine.New(s, coordinator, cfg)
	srv := server.New(eng, coordinator, s)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("kvsrvd: listening on %s (leader)", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("kvsrvd: %w", err)
	}
	return nil
}

func runFollower(ctx context.Context, s *store.Store, cfg engine.Config, port int, replicaof string) error {
	leaderAddr, err := parseReplicaOf(replicaof)
	if err != nil {
		return fmt.Errorf("kvsrvd: %w", err)
	}

	eng := engine.New(s, nil, cfg)

	fc, err := replication.Dial(ctx, leaderAddr, port, s, eng)
	if err != nil {
		return fmt.Errorf("kvsrvd: replication handshake with %s: %w", leaderAddr, err)
	}

	go func() {
		if err := fc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("kvsrvd: replication link to %s closed: %v", leaderAddr, err)
		}
	}()

	srv := server.New(eng, nil, s)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("kvsrvd: listening on %s (follower of %s)", addr, leaderAddr)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("kvsrvd: %w", err)
	}
	return nil
}

func parseReplicaOf(v string) (string, error) {
	fields := strings.Fields(v)
	if len(fields) != 2 {
		return "", fmt.Errorf("replicaof: expected \"<host> <port>\", got %q", v)
	}
	if _, err := strconv.Atoi(fields[1]); err != nil {
		return "", fmt.Errorf("replicaof: bad port %q", fields[1])
	}
	return fields[0] + ":" + fields[1], nil
}
