package replication

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/engine"
	"github.com/itarato/gokv/rdb"
	"github.com/itarato/gokv/resp"
	"github.com/itarato/gokv/store"
)

// Executor is the narrow surface the follower apply loop needs from the
// engine: run a command with no reply sent back to the caller. Satisfied
// by *engine.Engine; importing engine here is safe because engine only
// depends back on replication through the Replicator interface it
// declares itself, never on the concrete Coordinator type.
type Executor interface {
	ExecuteNoReply(ctx context.Context, id engine.ConnID, cmd command.Command) error
}

// FollowerClient is the follower side of replication: it performs the
// handshake against a leader, loads the initial snapshot, then applies the
// leader's command stream until the connection drops.
type FollowerClient struct {
	conn   net.Conn
	reader *resp.Reader
	store  *store.Store
	exec   Executor

	masterReplID string
	masterOffset int64
}

// Dial connects to addr, performs the PING/REPLCONF/PSYNC handshake
// advertising ownListeningPort, loads the returned RDB snapshot into s, and
// returns a client ready for Run.
func Dial(ctx context.Context, addr string, ownListeningPort int, s *store.Store, exec Executor) (*FollowerClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("replication: dial leader %s: %w", addr, err)
	}

	fc := &FollowerClient{
		conn:   conn,
		reader: resp.NewReader(conn),
		store:  s,
		exec:   exec,
	}

	if err := fc.handshake(ownListeningPort); err != nil {
		conn.Close()
		return nil, err
	}
	return fc, nil
}

func (fc *FollowerClient) send(v resp.Value) error {
	_, err := fc.conn.Write(resp.Serialize(v))
	return err
}

func (fc *FollowerClient) expectSimple(want string) error {
	v, err := fc.reader.ReadValue()
	if err != nil {
		return err
	}
	s, ok := resp.AsString(v)
	if !ok {
		if ss, ok := v.(resp.SimpleString); ok {
			s = string(ss)
		}
	}
	if !strings.EqualFold(s, want) {
		return fmt.Errorf("replication: handshake expected %q, got %v", want, v)
	}
	return nil
}

func (fc *FollowerClient) handshake(ownListeningPort int) error {
	if err := fc.send(resp.ArrayOf("PING")); err != nil {
		return err
	}
	if err := fc.expectSimple("PONG"); err != nil {
		return err
	}

	if err := fc.send(resp.ArrayOf("REPLCONF", "listening-port", strconv.Itoa(ownListeningPort))); err != nil {
		return err
	}
	if err := fc.expectSimple("OK"); err != nil {
		return err
	}

	if err := fc.send(resp.ArrayOf("REPLCONF", "capa", "psync2")); err != nil {
		return err
	}
	if err := fc.expectSimple("OK"); err != nil {
		return err
	}

	if err := fc.send(resp.ArrayOf("PSYNC", "?", "-1")); err != nil {
		return err
	}

	v, err := fc.reader.ReadValue()
	if err != nil {
		return err
	}
	line, _ := resp.AsString(v)
	parts := strings.Fields(line)
	if len(parts) != 3 || !strings.EqualFold(parts[0], "FULLRESYNC") {
		return fmt.Errorf("replication: unexpected PSYNC reply %v", v)
	}
	fc.masterReplID = parts[1]
	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return fmt.Errorf("replication: bad PSYNC offset %q", parts[2])
	}
	fc.masterOffset = offset

	raw, err := fc.reader.ReadBulkBytes()
	if err != nil {
		return fmt.Errorf("replication: reading snapshot: %w", err)
	}
	snap, err := rdb.Read(newByteReader(raw))
	if err != nil {
		return fmt.Errorf("replication: parsing snapshot: %w", err)
	}
	fc.store.Clear()
	if err := rdb.Apply(snap, fc.store); err != nil {
		return fmt.Errorf("replication: applying snapshot: %w", err)
	}
	fc.reader.ResetByteCounter()

	return nil
}

// Run parses and applies the leader's command stream until ctx is
// cancelled or the connection fails. REPLCONF GETACK is the one frame that
// gets a reply; every other frame executes silently.
func (fc *FollowerClient) Run(ctx context.Context) error {
	connID := engine.ConnID("replication-link")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		v, err := fc.reader.ReadValue()
		if err != nil {
			return fmt.Errorf("replication: reading from leader: %w", err)
		}

		cmd, perr := command.Parse(v)
		if perr != nil {
			log.Printf("replication: malformed command from leader: %v", perr)
			fc.reader.Commit()
			continue
		}

		if cmd.IsReplConf() && len(cmd.ReplConfArgs) > 0 && strings.EqualFold(cmd.ReplConfArgs[0], "GETACK") {
			// The committed offset must reflect everything up to but not
			// including this GETACK frame itself.
			offset := fc.reader.Committed()
			fc.reader.Commit()
			if err := fc.send(resp.ArrayOf("REPLCONF", "ACK", strconv.FormatInt(offset, 10))); err != nil {
				return err
			}
			continue
		}

		if err := fc.exec.ExecuteNoReply(ctx, connID, cmd); err != nil {
			log.Printf("replication: error applying %s: %v", cmd.ShortName(), err)
		}
		fc.reader.Commit()
	}
}

// byteReader adapts a BulkBytes payload (already fully in memory) to the
// io.Reader the rdb package expects.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(b []byte) *byteReader { return &byteReader{data: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
