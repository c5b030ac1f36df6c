// Package engine is the stateful command executor: dispatch, per-
// connection transactions, blocking waits, key-pattern matching, and
// INFO/CONFIG/KEYS — everything that sits between a parsed Command and
// the typed store.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
	"github.com/itarato/gokv/store"
)

// ConnID identifies one client connection for transaction-buffer and
// blocking-wait bookkeeping. The dispatcher assigns these (see server
// package); the engine treats them as opaque keys.
type ConnID string

// Replicator is the narrow surface the engine needs from the replication
// coordinator: propagate a successful write, service a WAIT, and render
// the "# Replication" INFO section. Defined here (not in the replication
// package) so the engine has no import-time dependency on replication's
// concrete type — replication.Coordinator implements this interface, and
// main wires the two together.
type Replicator interface {
	Propagate(cmd command.Command)
	Wait(ctx context.Context, n int, timeout time.Duration) int
	InfoSection() string
}

// Config carries the server's startup configuration as exposed through
// CONFIG GET, plus the role INFO reports.
type Config struct {
	Dir        string
	DBFilename string
	IsFollower bool // selects "role:slave" vs "role:master" in INFO
}

// Engine is the single shared command executor. One Engine instance
// backs every connection in the process.
type Engine struct {
	store      *store.Store
	replicator Replicator
	cfg        Config

	notifier *broadcaster

	tx *txState

	blockCapDuration time.Duration // cap applied to a zero/forever timeout
}

// New creates an Engine over store s, propagating writes through r.
func New(s *store.Store, r Replicator, cfg Config) *Engine {
	return &Engine{
		store:            s,
		replicator:       r,
		cfg:              cfg,
		notifier:         newBroadcaster(),
		tx:               newTxState(),
		blockCapDuration: 24 * time.Hour,
	}
}

// Close releases per-connection transaction state; call when a
// connection disconnects.
func (e *Engine) Close(id ConnID) {
	e.tx.drop(id)
}

// Execute runs one command on behalf of connID and returns its reply
// frame. The transaction state machine is checked first: queued commands
// never reach dispatch until EXEC drains the buffer.
func (e *Engine) Execute(ctx context.Context, id ConnID, cmd command.Command) (resp.Value, error) {
	if cmd.IsMulti() {
		return e.beginTx(id)
	}

	if e.tx.inTx(id) {
		switch {
		case cmd.IsExec():
			return e.execTx(ctx, id)
		case cmd.IsDiscard():
			return e.discardTx(id)
		default:
			return e.queueTx(id, cmd)
		}
	}

	if cmd.IsExec() {
		return resp.SimpleError("ERR EXEC without MULTI"), nil
	}
	if cmd.IsDiscard() {
		return resp.SimpleError("ERR DISCARD without MULTI"), nil
	}

	return e.dispatch(ctx, id, cmd)
}

// ExecuteNoReply runs a command as a follower applying the leader's
// replication stream: identical dispatch, but the reply is discarded.
// REPLCONF GETACK never reaches here: the replication package's follower
// loop answers it itself.
func (e *Engine) ExecuteNoReply(ctx context.Context, id ConnID, cmd command.Command) error {
	_, err := e.dispatch(ctx, id, cmd)
	return err
}

func (e *Engine) dispatch(ctx context.Context, id ConnID, cmd command.Command) (resp.Value, error) {
	switch cmd.Kind {
	case command.Ping:
		return resp.SimpleString("PONG"), nil
	case command.Echo:
		return resp.BulkBytesString(cmd.Value), nil
	case command.Get:
		return e.execGet(cmd)
	case command.Set:
		return e.execSet(cmd)
	case command.Incr:
		return e.execIncr(cmd)
	case command.Rpush:
		return e.execPush(cmd, true)
	case command.Lpush:
		return e.execPush(cmd, false)
	case command.Lrange:
		return e.execLrange(cmd)
	case command.Llen:
		return e.execLlen(cmd)
	case command.Lpop:
		return e.execPop(cmd, true, false)
	case command.Rpop:
		return e.execPop(cmd, false, false)
	case command.Lpopn:
		return e.execPop(cmd, true, true)
	case command.Rpopn:
		return e.execPop(cmd, false, true)
	case command.Blpop:
		return e.execBlockingPop(ctx, cmd, true)
	case command.Brpop:
		return e.execBlockingPop(ctx, cmd, false)
	case command.TypeOf:
		return resp.SimpleString(e.store.TypeName(cmd.Key)), nil
	case command.Xadd:
		return e.execXadd(cmd)
	case command.Xrange:
		return e.execXrange(cmd)
	case command.Xread:
		return e.execXread(ctx, cmd)
	case command.Info:
		return e.execInfo(cmd), nil
	case command.ReplConf:
		return e.execReplConf(cmd), nil
	case command.Wait:
		return e.execWait(ctx, cmd), nil
	case command.ConfigGet:
		return e.execConfigGet(cmd), nil
	case command.Keys:
		return e.execKeys(cmd), nil
	case command.Subscribe, command.Unsubscribe, command.Publish:
		// Left parsed-but-unimplemented: these commands are recognized
		// so a pipelined client gets a clean error instead of a
		// desynced stream, but no fanout is wired.
		return resp.ErrString("unknown command '%s'", cmd.ShortName()), nil
	case command.Zadd:
		return e.execZadd(cmd)
	case command.Zrank:
		return e.execZrank(cmd)
	case command.Zscore:
		return e.execZscore(cmd)
	case command.Zrange:
		return e.execZrange(cmd)
	case command.Zcard:
		return e.execZcard(cmd)
	case command.Zrem:
		return e.execZrem(cmd)
	case command.Geoadd:
		return e.execGeoadd(cmd)
	case command.Psync:
		// PSYNC is a connection-level handshake step handled entirely by
		// the replication/server layer before any command reaches the
		// engine; seeing one here means the dispatcher mis-routed it.
		return resp.ErrString("PSYNC must be handled by the connection dispatcher"), nil
	default:
		return resp.ErrString("unknown command '%s'", cmd.Name), nil
	}
}

func (e *Engine) propagateIfNeeded(cmd command.Command) {
	if cmd.PropagatesToFollowers() && e.replicator != nil {
		e.replicator.Propagate(cmd)
	}
}

func wrongTypeOrErr(err error) (resp.Value, error) {
	if err == store.ErrWrongType {
		return resp.WrongType(), nil
	}
	return resp.SimpleError(fmt.Sprintf("ERR %v", err)), nil
}
