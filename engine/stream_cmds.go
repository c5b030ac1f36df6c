package engine

import (
	"context"
	"time"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
	"github.com/itarato/gokv/store"
)

func toStoreSpec(id command.StreamID) store.IDSpec {
	switch id.Kind {
	case command.StreamIDWildcard:
		return store.IDSpec{Wildcard: true}
	case command.StreamIDMSWildcard:
		return store.IDSpec{MSWildcard: true, MS: id.MS}
	default:
		return store.IDSpec{MS: id.MS, Seq: id.Seq}
	}
}

func toStoreRangeBound(id command.RangeID, isStart bool) store.ID {
	switch {
	case id.Min:
		return store.MinID
	case id.Max:
		return store.MaxID
	default:
		return store.ID{MS: id.MS, Seq: id.Seq}
	}
}

func (e *Engine) execXadd(cmd command.Command) (resp.Value, error) {
	fields := make([]store.FieldValue, len(cmd.Fields))
	for i, f := range cmd.Fields {
		fields[i] = store.FieldValue{Field: f.Name, Value: f.Value}
	}
	id, err := e.store.StreamPush(cmd.Key, toStoreSpec(cmd.StreamID), fields, time.Now().UnixMilli())
	if err != nil {
		if err == store.ErrWrongType {
			return resp.WrongType(), nil
		}
		return resp.SimpleError(err.Error()), nil
	}

	wireCmd := cmd
	wireCmd.StreamID = command.StreamID{Kind: command.StreamIDExplicit, MS: id.MS, Seq: id.Seq}
	e.propagateIfNeeded(wireCmd)

	e.notifier.signal()
	return resp.Bulk(id.String()), nil
}

func (e *Engine) execXrange(cmd command.Command) (resp.Value, error) {
	start := toStoreRangeBound(cmd.RangeStart, true)
	end := toStoreRangeBound(cmd.RangeEnd, false)
	count := int64(0)
	if cmd.HasCount {
		count = cmd.Count
	}
	entries, err := e.store.StreamRange(cmd.Key, start, end, count)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	return streamEntriesReply(entries), nil
}

func streamEntriesReply(entries []store.StreamEntry) resp.Array {
	items := make([]resp.Value, len(entries))
	for i, e := range entries {
		fieldItems := make([]resp.Value, 0, len(e.Fields)*2)
		for _, f := range e.Fields {
			fieldItems = append(fieldItems, resp.Bulk(f.Field), resp.Bulk(f.Value))
		}
		items[i] = resp.Array{Items: []resp.Value{
			resp.Bulk(e.ID.String()),
			resp.Array{Items: fieldItems},
		}}
	}
	return resp.Array{Items: items}
}

func (e *Engine) execXread(ctx context.Context, cmd command.Command) (resp.Value, error) {
	bounds := make([]struct {
		Key string
		ID  store.ID
	}, len(cmd.Queries))
	for i, q := range cmd.Queries {
		bound := store.ID{MS: q.ID.MS, Seq: q.ID.Seq}
		if q.ID.Max {
			// "$" resolves to the stream's current latest id at call
			// time, fixed once — not re-resolved on every retry.
			latest, err := e.store.ResolveLatestStreamID(q.Key)
			if err != nil {
				return wrongTypeOrErr(err)
			}
			bound = latest
		}
		if q.ID.Min {
			bound = store.ID{}
		}
		bounds[i] = struct {
			Key string
			ID  store.ID
		}{Key: q.Key, ID: bound}
	}

	count := int64(0)
	if cmd.HasCount {
		count = cmd.Count
	}

	results, err := e.store.StreamReadMulti(bounds, count)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	if len(results) > 0 || !cmd.HasBlockMs {
		return xreadReply(results), nil
	}

	deadline := e.deadlineForMs(cmd.BlockMs, true)
	for {
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

		results, err = e.store.StreamReadMulti(bounds, count)
		if err != nil {
			return wrongTypeOrErr(err)
		}
		if len(results) > 0 {
			return xreadReply(results), nil
		}
	}
}

func xreadReply(results []store.StreamReadResult) resp.Value {
	if len(results) == 0 {
		return resp.NullArray()
	}
	items := make([]resp.Value, len(results))
	for i, r := range results {
		items[i] = resp.Array{Items: []resp.Value{
			resp.Bulk(r.Key),
			streamEntriesReply(r.Entries),
		}}
	}
	return resp.Array{Items: items}
}
