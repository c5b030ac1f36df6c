package engine

import (
	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
	"github.com/itarato/gokv/store"
)

func (e *Engine) execGet(cmd command.Command) (resp.Value, error) {
	v, ok, err := e.store.Get(cmd.Key)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	if !ok {
		return resp.NullBulk(), nil
	}
	return resp.BulkBytesString(v), nil
}

func (e *Engine) execSet(cmd command.Command) (resp.Value, error) {
	if err := e.store.Set(cmd.Key, cmd.Value, cmd.ExpiryMs, cmd.HasExpiry); err != nil {
		return wrongTypeOrErr(err)
	}
	e.propagateIfNeeded(cmd)
	return resp.OK(), nil
}

func (e *Engine) execIncr(cmd command.Command) (resp.Value, error) {
	n, err := e.store.Incr(cmd.Key)
	if err != nil {
		if err == store.ErrWrongType {
			return resp.WrongType(), nil
		}
		return resp.SimpleError(err.Error()), nil
	}
	e.propagateIfNeeded(cmd)
	return resp.Integer(n), nil
}
