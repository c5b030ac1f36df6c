package engine

import (
	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
)

func (e *Engine) execPush(cmd command.Command, back bool) (resp.Value, error) {
	var n int
	var err error
	if back {
		n, err = e.store.PushBack(cmd.Key, cmd.Values)
	} else {
		n, err = e.store.PushFront(cmd.Key, cmd.Values)
	}
	if err != nil {
		return wrongTypeOrErr(err)
	}
	e.propagateIfNeeded(cmd)
	e.notifier.signal()
	return resp.Integer(int64(n)), nil
}

func (e *Engine) execLrange(cmd command.Command) (resp.Value, error) {
	items, err := e.store.LRange(cmd.Key, cmd.Start, cmd.End)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	return bulkArray(items), nil
}

func (e *Engine) execLlen(cmd command.Command) (resp.Value, error) {
	n, err := e.store.LLen(cmd.Key)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	return resp.Integer(int64(n)), nil
}

// execPop handles LPOP/RPOP (single) and LPOPN/RPOPN (counted). A
// missing key returns a null bulk for the single form and a null array
// for the counted form — never an empty array, which is reserved for a
// present-but-fully-drained list.
func (e *Engine) execPop(cmd command.Command, front, counted bool) (resp.Value, error) {
	if !counted {
		var v []byte
		var ok bool
		var err error
		if front {
			v, ok, err = e.store.PopFront(cmd.Key)
		} else {
			v, ok, err = e.store.PopBack(cmd.Key)
		}
		if err != nil {
			return wrongTypeOrErr(err)
		}
		if !ok {
			return resp.NullBulk(), nil
		}
		e.propagateIfNeeded(cmd)
		return resp.BulkBytesString(v), nil
	}

	var vals [][]byte
	var ok bool
	var err error
	if front {
		vals, ok, err = e.store.PopFrontN(cmd.Key, cmd.N)
	} else {
		vals, ok, err = e.store.PopBackN(cmd.Key, cmd.N)
	}
	if err != nil {
		return wrongTypeOrErr(err)
	}
	if !ok {
		return resp.NullArray(), nil
	}
	e.propagateIfNeeded(cmd)
	return bulkArray(vals), nil
}

func bulkArray(vals [][]byte) resp.Array {
	items := make([]resp.Value, len(vals))
	for i, v := range vals {
		items[i] = resp.BulkBytesString(v)
	}
	return resp.Array{Items: items}
}
