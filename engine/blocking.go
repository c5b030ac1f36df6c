package engine

import (
	"context"
	"time"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
	"github.com/itarato/gokv/store"
)

// execBlockingPop implements BLPOP/BRPOP: try a non-blocking pop across
// each key in order; if none succeed, wait on the broadcaster and retry
// until a deadline. A timeout of zero is treated as "forever", capped
// internally at blockCapDuration (see the Open Question decisions in
// SPEC_FULL.md).
func (e *Engine) execBlockingPop(ctx context.Context, cmd command.Command, front bool) (resp.Value, error) {
	deadline := e.deadlineFor(cmd.TimeoutSecs)

	for {
		for _, key := range cmd.Keys {
			var v []byte
			var ok bool
			var err error
			if front {
				v, ok, err = e.store.PopFront(key)
			} else {
				v, ok, err = e.store.PopBack(key)
			}
			if err == store.ErrWrongType {
				return resp.WrongType(), nil
			}
			if ok {
				// A satisfied blocking pop propagates as the plain pop
				// it performed, not as the blocking call itself.
				kind := command.Lpop
				if !front {
					kind = command.Rpop
				}
				e.propagateIfNeeded(command.Command{Kind: kind, Key: key})
				return resp.Array{Items: []resp.Value{resp.Bulk(key), resp.BulkBytesString(v)}}, nil
			}
		}

		waitCh := e.notifier.wait()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return resp.NullArray(), nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-waitCh:
			timer.Stop()
		case <-timer.C:
			return resp.NullArray(), nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (e *Engine) deadlineFor(timeoutSecs float64) time.Time {
	if timeoutSecs <= 0 {
		return time.Now().Add(e.blockCapDuration)
	}
	d := time.Duration(timeoutSecs * float64(time.Second))
	if d > e.blockCapDuration {
		d = e.blockCapDuration
	}
	return time.Now().Add(d)
}

func (e *Engine) deadlineForMs(timeoutMs int64, hasTimeout bool) time.Time {
	if !hasTimeout || timeoutMs <= 0 {
		return time.Now().Add(e.blockCapDuration)
	}
	d := time.Duration(timeoutMs) * time.Millisecond
	if d > e.blockCapDuration {
		d = e.blockCapDuration
	}
	return time.Now().Add(d)
}
