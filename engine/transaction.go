package engine

import (
	"context"
	"sync"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
)

// txState is the connection -> queued-command-buffer map. Only the
// owning connection ever mutates its own entry, but the map itself is
// guarded since connections run on independent goroutines.
type txState struct {
	mu     sync.Mutex
	queued map[ConnID][]command.Command
}

func newTxState() *txState {
	return &txState{queued: make(map[ConnID][]command.Command)}
}

func (t *txState) inTx(id ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.queued[id]
	return ok
}

func (t *txState) drop(id ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.queued, id)
}

func (e *Engine) beginTx(id ConnID) (resp.Value, error) {
	e.tx.mu.Lock()
	defer e.tx.mu.Unlock()
	if _, ok := e.tx.queued[id]; ok {
		// Nested MULTI: reply error, state unchanged.
		return resp.SimpleError("ERR MULTI calls can not be nested"), nil
	}
	e.tx.queued[id] = []command.Command{}
	return resp.OK(), nil
}

func (e *Engine) queueTx(id ConnID, cmd command.Command) (resp.Value, error) {
	e.tx.mu.Lock()
	defer e.tx.mu.Unlock()
	e.tx.queued[id] = append(e.tx.queued[id], cmd)
	return resp.SimpleString("QUEUED"), nil
}

func (e *Engine) discardTx(id ConnID) (resp.Value, error) {
	e.tx.mu.Lock()
	delete(e.tx.queued, id)
	e.tx.mu.Unlock()
	return resp.OK(), nil
}

// execTx drains the queued buffer in order, executing each command in
// place against dispatch (not Execute, since EXEC/DISCARD/MULTI cannot
// themselves be queued). Propagation happens individually per queued
// command as it runs — the spec does not require MULTI/EXEC to be
// atomic from a follower's point of view.
func (e *Engine) execTx(ctx context.Context, id ConnID) (resp.Value, error) {
	e.tx.mu.Lock()
	queued := e.tx.queued[id]
	delete(e.tx.queued, id)
	e.tx.mu.Unlock()

	replies := make([]resp.Value, 0, len(queued))
	for _, cmd := range queued {
		v, err := e.dispatch(ctx, id, cmd)
		if err != nil {
			return nil, err
		}
		replies = append(replies, v)
	}
	return resp.Array{Items: replies}, nil
}
