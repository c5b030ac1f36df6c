package store

import "sort"

// ScoreMember is one (score, member) pair as stored in a sorted set.
type ScoreMember struct {
	Score  float64
	Member string
}

type zsetData struct {
	byMember map[string]float64
	ordered  []ScoreMember // kept sorted by (score, member)
}

func newZSet() *zsetData {
	return &zsetData{byMember: make(map[string]float64)}
}

func (z *zsetData) less(a, b ScoreMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

func (z *zsetData) insert(sm ScoreMember) {
	idx := sort.Search(len(z.ordered), func(i int) bool { return !z.less(z.ordered[i], sm) })
	z.ordered = append(z.ordered, ScoreMember{})
	copy(z.ordered[idx+1:], z.ordered[idx:])
	z.ordered[idx] = sm
}

func (z *zsetData) remove(sm ScoreMember) {
	idx := sort.Search(len(z.ordered), func(i int) bool { return !z.less(z.ordered[i], sm) })
	if idx < len(z.ordered) && z.ordered[idx].Member == sm.Member && z.ordered[idx].Score == sm.Score {
		z.ordered = append(z.ordered[:idx], z.ordered[idx+1:]...)
	}
}

func (s *Store) zsetFor(key string, create bool) (*zsetData, error) {
	e, ok := s.data[key]
	if !ok {
		if !create {
			return nil, nil
		}
		e = &entry{kind: KindZSet, zset: newZSet()}
		s.data[key] = e
		return e.zset, nil
	}
	if e.kind != KindZSet {
		return nil, ErrWrongType
	}
	return e.zset, nil
}

// ZAdd inserts or updates (score, member) in key's sorted set. Returns
// true if member was newly inserted, false if an existing member's score
// was updated.
func (s *Store) ZAdd(key string, score float64, member string) (inserted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.zsetFor(key, true)
	if err != nil {
		return false, err
	}
	if old, ok := z.byMember[member]; ok {
		z.remove(ScoreMember{Score: old, Member: member})
		z.byMember[member] = score
		z.insert(ScoreMember{Score: score, Member: member})
		return false, nil
	}
	z.byMember[member] = score
	z.insert(ScoreMember{Score: score, Member: member})
	return true, nil
}

// ZRank returns member's 0-based rank in ascending score order, or
// ok=false if the member or key is absent.
func (s *Store) ZRank(key, member string) (rank int, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.zsetFor(key, false)
	if err != nil {
		return 0, false, err
	}
	if z == nil {
		return 0, false, nil
	}
	score, present := z.byMember[member]
	if !present {
		return 0, false, nil
	}
	idx := sort.Search(len(z.ordered), func(i int) bool {
		return !z.less(z.ordered[i], ScoreMember{Score: score, Member: member})
	})
	return idx, true, nil
}

// ZScore returns member's score, or ok=false if absent.
func (s *Store) ZScore(key, member string) (score float64, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.zsetFor(key, false)
	if err != nil {
		return 0, false, err
	}
	if z == nil {
		return 0, false, nil
	}
	score, ok = z.byMember[member]
	return score, ok, nil
}

// ZCard returns the cardinality of key's sorted set.
func (s *Store) ZCard(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.zsetFor(key, false)
	if err != nil {
		return 0, err
	}
	if z == nil {
		return 0, nil
	}
	return len(z.ordered), nil
}

// ZRange returns members (with scores) in [start, end] rank order,
// negative indices resolved from the end, per the same rule as LRANGE.
func (s *Store) ZRange(key string, start, end int64) ([]ScoreMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.zsetFor(key, false)
	if err != nil {
		return nil, err
	}
	if z == nil || len(z.ordered) == 0 {
		return nil, nil
	}
	n := int64(len(z.ordered))
	start = clampIndex(start, n)
	end = clampIndex(end, n)
	if start > end || start >= n {
		return nil, nil
	}
	if end >= n {
		end = n - 1
	}
	out := make([]ScoreMember, end-start+1)
	copy(out, z.ordered[start:end+1])
	return out, nil
}

// ZRem removes members from key's sorted set, returning the count
// actually removed.
func (s *Store) ZRem(key string, members []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.zsetFor(key, false)
	if err != nil {
		return 0, err
	}
	if z == nil {
		return 0, nil
	}
	removed := 0
	for _, m := range members {
		if score, ok := z.byMember[m]; ok {
			z.remove(ScoreMember{Score: score, Member: m})
			delete(z.byMember, m)
			removed++
		}
	}
	if len(z.byMember) == 0 {
		delete(s.data, key)
	}
	return removed, nil
}
