package engine

import (
	"context"
	"time"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
)

// execInfo renders the "replication" section. A follower always reports
// role:slave regardless of whether it has a replicator wired (it never
// does — a single leader/many-replica topology has no chaining). A
// leader with no replicator is a standalone instance with nothing
// propagating, reported as role:master with an all-zero replication id
// and offset 0.
func (e *Engine) execInfo(cmd command.Command) resp.Value {
	if e.cfg.IsFollower {
		return resp.Bulk("# Replication\r\nrole:slave\r\n\r\n")
	}
	if e.replicator == nil {
		return resp.Bulk("# Replication\r\nrole:master\r\nmaster_replid:0000000000000000000000000000000000000000\r\nmaster_repl_offset:0\r\n\r\n")
	}
	return resp.Bulk(e.replicator.InfoSection())
}

// execReplConf handles both directions: a leader fielding a follower's
// handshake args (listening-port, capa) just acks OK, and a follower
// fielding GETACK replies with its own ACK — but that reply is produced by
// the replication package's follower loop, not here. From the engine's own
// dispatch, REPLCONF always just acknowledges.
func (e *Engine) execReplConf(cmd command.Command) resp.Value {
	return resp.OK()
}

func (e *Engine) execWait(ctx context.Context, cmd command.Command) resp.Value {
	if e.replicator == nil {
		return resp.Integer(0)
	}
	timeout := time.Duration(cmd.WaitTimeoutMs) * time.Millisecond
	n := e.replicator.Wait(ctx, cmd.WaitCount, timeout)
	return resp.Integer(int64(n))
}

func (e *Engine) execConfigGet(cmd command.Command) resp.Value {
	items := make([]resp.Value, 0, len(cmd.ConfigParams)*2)
	for _, p := range cmd.ConfigParams {
		switch p {
		case "dir":
			items = append(items, resp.Bulk("dir"), resp.Bulk(e.cfg.Dir))
		case "dbfilename":
			items = append(items, resp.Bulk("dbfilename"), resp.Bulk(e.cfg.DBFilename))
		}
	}
	return resp.Array{Items: items}
}

func (e *Engine) execKeys(cmd command.Command) resp.Value {
	keys := e.store.Keys(cmd.Pattern)
	items := make([]resp.Value, len(keys))
	for i, k := range keys {
		items[i] = resp.Bulk(k)
	}
	return resp.Array{Items: items}
}
