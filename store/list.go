package store

import "container/list"

func (s *Store) listFor(key string, create bool) (*list.List, error) {
	e, ok := s.data[key]
	if !ok {
		if !create {
			return nil, nil
		}
		e = &entry{kind: KindList, list: list.New()}
		s.data[key] = e
		return e.list, nil
	}
	if e.kind != KindList {
		return nil, ErrWrongType
	}
	return e.list, nil
}

// PushBack appends values to the tail of key's list, creating it if
// absent, and returns the new length.
func (s *Store) PushBack(key string, values [][]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.listFor(key, true)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		l.PushBack(append([]byte(nil), v...))
	}
	return l.Len(), nil
}

// PushFront prepends values to the head of key's list, creating it if
// absent, and returns the new length. Values are pushed one at a time in
// argument order, so the last argument ends up at the very front —
// matching LPUSH's documented ordering.
func (s *Store) PushFront(key string, values [][]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.listFor(key, true)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		l.PushFront(append([]byte(nil), v...))
	}
	return l.Len(), nil
}

// LLen returns the length of key's list, or 0 if absent.
func (s *Store) LLen(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.listFor(key, false)
	if err != nil {
		return 0, err
	}
	if l == nil {
		return 0, nil
	}
	return l.Len(), nil
}

// LRange returns the inclusive [start, end] slice of key's list, with
// negative indices resolved as len+i (clamped to 0). Missing key yields
// an empty slice.
func (s *Store) LRange(key string, start, end int64) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.listFor(key, false)
	if err != nil {
		return nil, err
	}
	if l == nil || l.Len() == 0 {
		return nil, nil
	}

	n := int64(l.Len())
	start = clampIndex(start, n)
	end = clampIndex(end, n)
	if start > end || start >= n {
		return nil, nil
	}
	if end >= n {
		end = n - 1
	}

	out := make([][]byte, 0, end-start+1)
	i := int64(0)
	for el := l.Front(); el != nil; el = el.Next() {
		if i >= start && i <= end {
			out = append(out, el.Value.([]byte))
		}
		if i > end {
			break
		}
		i++
	}
	return out, nil
}

func clampIndex(i, n int64) int64 {
	if i < 0 {
		i = n + i
		if i < 0 {
			i = 0
		}
	}
	return i
}

// PopFront removes and returns the first element. ok is false if the key
// is absent (distinguished from a present-but-empty list, which cannot
// occur since an emptied list is removed).
func (s *Store) PopFront(key string) ([]byte, bool, error) {
	return s.popOne(key, true)
}

// PopBack removes and returns the last element.
func (s *Store) PopBack(key string) ([]byte, bool, error) {
	return s.popOne(key, false)
}

func (s *Store) popOne(key string, front bool) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.listFor(key, false)
	if err != nil {
		return nil, false, err
	}
	if l == nil || l.Len() == 0 {
		return nil, false, nil
	}
	var el *list.Element
	if front {
		el = l.Front()
	} else {
		el = l.Back()
	}
	l.Remove(el)
	if l.Len() == 0 {
		delete(s.data, key)
	}
	return el.Value.([]byte), true, nil
}

// PopFrontN removes and returns up to n elements from the front. ok is
// false only if the key is absent entirely — matching LPOPN's null-vs-
// empty-array distinction (missing key is null, present-but-drained-to-
// empty is an empty array).
func (s *Store) PopFrontN(key string, n int64) ([][]byte, bool, error) {
	return s.popMulti(key, n, true)
}

// PopBackN is PopFrontN from the tail.
func (s *Store) PopBackN(key string, n int64) ([][]byte, bool, error) {
	return s.popMulti(key, n, false)
}

func (s *Store) popMulti(key string, n int64, front bool) ([][]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.listFor(key, false)
	if err != nil {
		return nil, false, err
	}
	if l == nil {
		return nil, false, nil
	}
	out := make([][]byte, 0, n)
	for int64(len(out)) < n && l.Len() > 0 {
		var el *list.Element
		if front {
			el = l.Front()
		} else {
			el = l.Back()
		}
		l.Remove(el)
		out = append(out, el.Value.([]byte))
	}
	if l.Len() == 0 {
		delete(s.data, key)
	}
	return out, true, nil
}
