// Package server implements the connection dispatcher: one goroutine per
// accepted connection, a parse-execute-reply loop handed off to the
// engine, and the PSYNC handshake that promotes a connection into a
// replication follower.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/rs/xid"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/engine"
	"github.com/itarato/gokv/rdb"
	"github.com/itarato/gokv/replication"
	"github.com/itarato/gokv/resp"
	"github.com/itarato/gokv/store"
)

// Snapshotter renders the live store as the string records an RDB
// snapshot can carry, used to answer a follower's PSYNC with a full
// resync payload. *store.Store satisfies this directly.
type Snapshotter interface {
	SnapshotStrings() []store.StringRecord
}

// Server accepts client connections and dispatches each one to the
// engine. coordinator is nil on a plain standalone instance; present on
// a leader that must be reachable for PSYNC.
type Server struct {
	eng         *engine.Engine
	coordinator *replication.Coordinator
	snap        Snapshotter
}

// New creates a Server. coordinator may be nil (no replication); snap
// may be nil only alongside a nil coordinator.
func New(eng *engine.Engine, coordinator *replication.Coordinator, snap Snapshotter) *Server {
	return &Server{eng: eng, coordinator: coordinator, snap: snap}
}

// ListenAndServe binds addr and accepts connections until ctx is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	defer lis.Close()

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		id := engine.ConnID(xid.New().String())
		go s.handle(ctx, id, conn)
	}
}

// connMeta accumulates the REPLCONF args a would-be follower sends
// before its PSYNC, scoped to one connection's own goroutine so no
// shared map or mutex is needed across connections.
type connMeta struct {
	listeningPort int
	capabilities  []string
}

func (s *Server) handle(ctx context.Context, id engine.ConnID, conn net.Conn) {
	defer s.eng.Close(id)

	reader := resp.NewReader(conn)
	var meta connMeta

	for {
		if ctx.Err() != nil {
			conn.Close()
			return
		}

		v, err := reader.ReadValue()
		if err != nil {
			if !isClosedErr(err) {
				log.Printf("server: read from %s: %v", id, err)
			}
			conn.Close()
			return
		}

		cmd, perr := command.Parse(v)
		if perr != nil {
			s.reply(id, conn, resp.SimpleError(perr.Error()))
			continue
		}

		if cmd.IsReplConf() {
			applyReplConf(&meta, cmd)
			s.reply(id, conn, resp.OK())
			continue
		}

		if cmd.IsPSync() {
			if s.coordinator == nil {
				s.reply(id, conn, resp.SimpleError("ERR this instance is not a replication leader"))
				continue
			}
			s.servePSync(id, conn, meta)
			// The coordinator's drain task now owns this connection's
			// remaining lifetime (writes and solicited ACK reads); the
			// dispatcher loop has nothing left to do.
			return
		}

		reply, err := s.eng.Execute(ctx, id, cmd)
		if err != nil {
			s.reply(id, conn, resp.ErrString("%v", err))
			continue
		}
		s.reply(id, conn, reply)
	}
}

func applyReplConf(meta *connMeta, cmd command.Command) {
	args := cmd.ReplConfArgs
	for i := 0; i+1 < len(args); i += 2 {
		switch {
		case strings.EqualFold(args[i], "listening-port"):
			if p, err := strconv.Atoi(args[i+1]); err == nil {
				meta.listeningPort = p
			}
		case strings.EqualFold(args[i], "capa"):
			meta.capabilities = append(meta.capabilities, args[i+1])
		}
	}
}

// servePSync answers the handshake's final step: a FULLRESYNC line
// naming the leader's replication id and current offset, followed by an
// RDB snapshot as a raw bulk payload, then registers the connection with
// the coordinator for ongoing propagation.
func (s *Server) servePSync(id engine.ConnID, conn net.Conn, meta connMeta) {
	header := resp.SimpleString(fmt.Sprintf("FULLRESYNC %s %d", s.coordinator.ReplID(), s.coordinator.Offset()))
	if _, err := conn.Write(resp.Serialize(header)); err != nil {
		log.Printf("server: psync header to %s: %v", id, err)
		conn.Close()
		return
	}

	var snapshot []byte
	if s.snap != nil {
		snapshot = rdb.Dump(s.snap.SnapshotStrings())
	} else {
		snapshot = rdb.EmptySnapshot()
	}
	if _, err := conn.Write(resp.Serialize(resp.BulkBytes(snapshot))); err != nil {
		log.Printf("server: psync snapshot to %s: %v", id, err)
		conn.Close()
		return
	}

	s.coordinator.AddFollower(string(id), conn, meta.listeningPort, meta.capabilities)
}

func (s *Server) reply(id engine.ConnID, conn net.Conn, v resp.Value) {
	if _, err := conn.Write(resp.Serialize(v)); err != nil {
		if !isClosedErr(err) {
			log.Printf("server: write reply to %s: %v", id, err)
		}
	}
}

func isClosedErr(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return netErr.Err.Error() == "use of closed network connection"
	}
	return strings.Contains(err.Error(), "closed")
}
