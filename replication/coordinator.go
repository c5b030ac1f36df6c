// Package replication implements leader→follower propagation: the
// per-follower write-queue drain loop, GETACK/ACK offset accounting, the
// WAIT barrier, and the follower-side handshake and apply loop.
package replication

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
)

// ackState is the three-state machine the spec assigns to each follower's
// pending-acknowledgement tracking.
type ackState int

const (
	ackIdle ackState = iota
	ackUpdateRequested
	ackUpdating
)

// queuedEntry is one propagated command plus its serialized byte length,
// so a follower's offset can be tracked in exact wire bytes rather than
// command counts.
type queuedEntry struct {
	wire []byte
	end  int64 // cumulative offset after this entry
}

// follower is the leader's bookkeeping record for one connected replica.
type follower struct {
	mu sync.Mutex

	conn          net.Conn
	reader        *resp.Reader
	listeningPort int
	capabilities  []string

	lastSynced int   // index into Coordinator.queue already written to conn
	ackOffset  int64 // highest offset this follower has acknowledged
	state      ackState
}

// Coordinator is the leader-side replication state: a replication id, the
// monotone byte offset of everything propagated, the write queue, and one
// record per connected follower. It implements engine.Replicator.
type Coordinator struct {
	replID string

	mu     sync.Mutex
	queue  []queuedEntry
	offset int64

	followers   map[string]*follower
	writeNotify chan struct{} // closed+replaced on every enqueue or ack-request

	ackMu     sync.Mutex
	ackNotify chan struct{} // closed+replaced on every ACK processed
}

// NewCoordinator creates a leader coordinator with a freshly generated
// 160-bit hex replication id.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		replID:      randomReplID(),
		followers:   make(map[string]*follower),
		writeNotify: make(chan struct{}),
		ackNotify:   make(chan struct{}),
	}
}

// randomReplID builds a 160-bit id the way a single 128-bit uuid can't:
// two independent uuid.New() draws, concatenated and truncated to 20
// bytes, hex-encoded to the 40-char form Redis clients expect.
func randomReplID() string {
	a, b := uuid.New(), uuid.New()
	raw := append(a[:], b[:4]...)
	return hex.EncodeToString(raw)
}

// ReplID returns the leader's replication id, used to answer PSYNC.
func (c *Coordinator) ReplID() string { return c.replID }

// Offset returns the current leader offset, used to answer PSYNC's
// FULLRESYNC line.
func (c *Coordinator) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Propagate appends cmd's wire form to the write queue and wakes every
// follower task blocked waiting for new work.
func (c *Coordinator) Propagate(cmd command.Command) {
	wire := resp.Serialize(cmd.ToWire())

	c.mu.Lock()
	c.offset += int64(len(wire))
	c.queue = append(c.queue, queuedEntry{wire: wire, end: c.offset})
	c.mu.Unlock()

	c.signalWrite()
}

func (c *Coordinator) signalWrite() {
	c.ackMu.Lock()
	close(c.writeNotify)
	c.writeNotify = make(chan struct{})
	c.ackMu.Unlock()
}

func (c *Coordinator) signalAck() {
	c.ackMu.Lock()
	close(c.ackNotify)
	c.ackNotify = make(chan struct{})
	c.ackMu.Unlock()
}

// InfoSection renders the "# Replication" INFO block for a leader.
func (c *Coordinator) InfoSection() string {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()
	return fmt.Sprintf("# Replication\r\nrole:master\r\nmaster_replid:%s\r\nmaster_repl_offset:%d\r\n\r\n", c.replID, offset)
}

// AddFollower registers conn as a newly handshaked follower and starts its
// drain task. id is typically the connection id assigned by the dispatcher.
func (c *Coordinator) AddFollower(id string, conn net.Conn, listeningPort int, capabilities []string) {
	f := &follower{conn: conn, reader: resp.NewReader(conn), listeningPort: listeningPort, capabilities: capabilities}

	c.mu.Lock()
	c.followers[id] = f
	c.mu.Unlock()

	go c.runFollower(id, f)
}

// RemoveFollower drops a disconnected follower's bookkeeping.
func (c *Coordinator) RemoveFollower(id string) {
	c.mu.Lock()
	delete(c.followers, id)
	c.mu.Unlock()
}

// runFollower is the per-follower drain task: forward newly queued
// commands, and when the engine has requested an ACK, solicit one with a
// bounded deadline.
func (c *Coordinator) runFollower(id string, f *follower) {
	for {
		wrote := c.drainTo(f)

		f.mu.Lock()
		needsAck := f.state == ackUpdateRequested
		if needsAck {
			f.state = ackUpdating
		}
		f.mu.Unlock()

		if needsAck {
			if err := c.solicitAck(id, f); err != nil {
				log.Printf("replication: follower %s ack solicit failed: %v", id, err)
				f.mu.Lock()
				f.state = ackIdle
				f.mu.Unlock()
			}
			continue
		}

		if wrote {
			continue
		}

		c.ackMu.Lock()
		waitCh := c.writeNotify
		c.ackMu.Unlock()

		select {
		case <-waitCh:
		case <-time.After(time.Second):
			// Periodic wakeup so a follower whose ack_request_state flips
			// to UpdateRequested between signals is not stuck waiting on a
			// write-queue notification that never fires.
		}

		f.mu.Lock()
		dead := f.conn == nil
		f.mu.Unlock()
		if dead {
			return
		}
	}
}

// drainTo writes every queued entry past f.lastSynced to f's connection.
// Returns whether anything was written.
func (c *Coordinator) drainTo(f *follower) bool {
	c.mu.Lock()
	pending := append([]queuedEntry(nil), c.queue[min(f.lastSynced, len(c.queue)):]...)
	c.mu.Unlock()

	if len(pending) == 0 {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range pending {
		if _, err := f.conn.Write(entry.wire); err != nil {
			log.Printf("replication: write to follower failed: %v", err)
			return true
		}
		f.lastSynced++
	}
	return true
}

// solicitAck sends REPLCONF GETACK * and waits up to 50ms for the
// follower's REPLCONF ACK <offset> reply.
func (c *Coordinator) solicitAck(id string, f *follower) error {
	getack := resp.Serialize(resp.ArrayOf("REPLCONF", "GETACK", "*"))

	f.mu.Lock()
	conn := f.conn
	reader := f.reader
	f.mu.Unlock()

	if _, err := conn.Write(getack); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	defer conn.SetReadDeadline(time.Time{})

	v, err := reader.ReadValue()
	if err != nil {
		return err
	}
	reader.Commit()

	arr, ok := v.(resp.Array)
	if !ok || len(arr.Items) != 3 {
		return fmt.Errorf("replication: malformed ACK from follower %s", id)
	}
	name, _ := resp.AsString(arr.Items[0])
	sub, _ := resp.AsString(arr.Items[1])
	offsetStr, _ := resp.AsString(arr.Items[2])
	if name != "REPLCONF" && name != "replconf" {
		return fmt.Errorf("replication: expected REPLCONF ACK, got %q", name)
	}
	if sub != "ACK" && sub != "ack" {
		return fmt.Errorf("replication: expected ACK, got %q", sub)
	}

	var offset int64
	if _, err := fmt.Sscanf(offsetStr, "%d", &offset); err != nil {
		return fmt.Errorf("replication: bad ACK offset %q", offsetStr)
	}

	f.mu.Lock()
	if offset > f.ackOffset {
		f.ackOffset = offset
	}
	f.state = ackIdle
	f.mu.Unlock()

	c.signalAck()
	return nil
}

// Wait implements the WAIT barrier: snapshot the leader's current offset,
// request acks from any follower not already caught up, and return once at
// least n followers have acknowledged it or timeout elapses.
func (c *Coordinator) Wait(ctx context.Context, n int, timeout time.Duration) int {
	target := c.Offset()
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Now().Add(24 * time.Hour)
	}

	for {
		count := c.countAcked(target)
		if count >= n || time.Now().After(deadline) {
			return count
		}

		c.ackMu.Lock()
		waitCh := c.ackNotify
		c.ackMu.Unlock()

		remaining := time.Until(deadline)
		timer := time.NewTimer(remaining)
		select {
		case <-waitCh:
			timer.Stop()
		case <-timer.C:
			return c.countAcked(target)
		case <-ctx.Done():
			timer.Stop()
			return c.countAcked(target)
		}
	}
}

func (c *Coordinator) countAcked(target int64) int {
	c.mu.Lock()
	ids := make([]*follower, 0, len(c.followers))
	for _, f := range c.followers {
		ids = append(ids, f)
	}
	c.mu.Unlock()

	count := 0
	for _, f := range ids {
		f.mu.Lock()
		acked := f.ackOffset >= target
		if !acked && f.state == ackIdle {
			f.state = ackUpdateRequested
		}
		f.mu.Unlock()
		if acked {
			count++
		}
	}
	if count < len(ids) {
		c.signalWrite()
	}
	return count
}

