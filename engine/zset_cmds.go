package engine

import (
	"strconv"

	"github.com/itarato/gokv/command"
	"github.com/itarato/gokv/resp"
)

func (e *Engine) execZadd(cmd command.Command) (resp.Value, error) {
	added := int64(0)
	for _, m := range cmd.ZMembers {
		inserted, err := e.store.ZAdd(cmd.Key, m.Score, m.Member)
		if err != nil {
			return wrongTypeOrErr(err)
		}
		if inserted {
			added++
		}
	}
	e.propagateIfNeeded(cmd)
	return resp.Integer(added), nil
}

func (e *Engine) execZrank(cmd command.Command) (resp.Value, error) {
	rank, ok, err := e.store.ZRank(cmd.Key, cmd.Member)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	if !ok {
		return resp.NullBulk(), nil
	}
	return resp.Integer(int64(rank)), nil
}

func (e *Engine) execZscore(cmd command.Command) (resp.Value, error) {
	score, ok, err := e.store.ZScore(cmd.Key, cmd.Member)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	if !ok {
		return resp.NullBulk(), nil
	}
	return resp.Bulk(strconv.FormatFloat(score, 'g', -1, 64)), nil
}

func (e *Engine) execZrange(cmd command.Command) (resp.Value, error) {
	members, err := e.store.ZRange(cmd.Key, cmd.Start, cmd.End)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	items := make([]resp.Value, len(members))
	for i, m := range members {
		items[i] = resp.Bulk(m.Member)
	}
	return resp.Array{Items: items}, nil
}

func (e *Engine) execZcard(cmd command.Command) (resp.Value, error) {
	n, err := e.store.ZCard(cmd.Key)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	return resp.Integer(int64(n)), nil
}

func (e *Engine) execZrem(cmd command.Command) (resp.Value, error) {
	n, err := e.store.ZRem(cmd.Key, cmd.Members)
	if err != nil {
		return wrongTypeOrErr(err)
	}
	if n > 0 {
		e.propagateIfNeeded(cmd)
	}
	return resp.Integer(int64(n)), nil
}

func (e *Engine) execGeoadd(cmd command.Command) (resp.Value, error) {
	added := int64(0)
	for _, g := range cmd.GeoMembers {
		inserted, err := e.store.GeoAdd(cmd.Key, g.Lon, g.Lat, g.Member)
		if err != nil {
			return resp.SimpleError(err.Error()), nil
		}
		if inserted {
			added++
		}
	}
	e.propagateIfNeeded(cmd)
	return resp.Integer(added), nil
}
