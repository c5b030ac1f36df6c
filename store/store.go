// Package store implements the typed key-value store: strings with TTL,
// lists, append-only streams and sorted sets (including geo members),
// behind a single reader/writer lock with per-key type invariants.
package store

import (
	"container/list"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Kind discriminates the Entry sum type. A key's Kind is immutable once
// set: any operation expecting a different kind fails with ErrWrongType
// instead of silently converting.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindStream
	KindZSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindStream:
		return "stream"
	case KindZSet:
		return "zset"
	default:
		return "none"
	}
}

// ErrWrongType is returned whenever an operation targets a key whose
// stored Kind does not match what the operation requires.
var ErrWrongType = fmt.Errorf("%s", "WRONGTYPE Operation against a key holding the wrong kind of value")

// entry is the tagged value behind one key. Only one of the typed fields
// is meaningful, selected by kind — the discriminated-union rendering of
// the original implementation's Entry enum.
type entry struct {
	kind Kind

	str       []byte
	expiresAt int64 // absolute ms since epoch; 0 means no TTL
	hasExpiry bool

	list *list.List // of []byte

	stream *streamData

	zset *zsetData
}

// Store is the single process-wide typed key-value store. All mutating
// and reading operations hold the RWMutex only for the duration of the
// in-memory work; callers clone values out before releasing it, never
// holding the lock across network I/O.
type Store struct {
	mu   sync.RWMutex
	data map[string]*entry
	now  func() int64 // overridable for tests
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		data: make(map[string]*entry),
		now:  func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *Store) nowMs() int64 { return s.now() }

// lookup returns the entry for key, treating (and clearing in the lazy
// sense, by ignoring) expired strings as absent. Caller must hold at
// least a read lock.
func (s *Store) lookup(key string) (*entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if e.kind == KindString && e.hasExpiry && e.expiresAt <= s.nowMs() {
		return nil, false
	}
	return e, true
}

// TypeName reports the stored type of key, or "none" if absent/expired.
func (s *Store) TypeName(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.lookup(key)
	if !ok {
		return "none"
	}
	return e.kind.String()
}

// Set stores key=value as a string, with an optional absolute expiry
// computed from ttlMs relative to the call time. Fails WRONGTYPE if key
// already holds a non-string value (a fresh Set is always allowed to
// replace an existing string or create a new key).
func (s *Store) Set(key string, value []byte, ttlMs int64, hasTTL bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[key]; ok && e.kind != KindString {
		return ErrWrongType
	}
	e := &entry{kind: KindString, str: append([]byte(nil), value...)}
	if hasTTL {
		e.hasExpiry = true
		e.expiresAt = s.nowMs() + ttlMs
	}
	s.data[key] = e
	return nil
}

// SetAbsoluteExpiry is Set's counterpart for loading a snapshot, where
// the expiry is already an absolute instant rather than a TTL relative
// to the call time.
func (s *Store) SetAbsoluteExpiry(key string, value []byte, expiresAtMs int64, hasExpiry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[key]; ok && e.kind != KindString {
		return ErrWrongType
	}
	e := &entry{kind: KindString, str: append([]byte(nil), value...)}
	if hasExpiry {
		e.hasExpiry = true
		e.expiresAt = expiresAtMs
	}
	s.data[key] = e
	return nil
}

// Get returns the stored string for key. ok is false if the key is
// absent, expired, or of a different type (in which case err is
// ErrWrongType rather than a plain miss).
func (s *Store) Get(key string) (value []byte, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, present := s.lookup(key)
	if !present {
		return nil, false, nil
	}
	if e.kind != KindString {
		return nil, false, ErrWrongType
	}
	return e.str, true, nil
}

// Incr parses the stored string as a base-10 int64, increments it, and
// re-stores the decimal result. A missing key is treated as "0". Returns
// the new value.
func (s *Store) Incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || (e.kind == KindString && e.hasExpiry && e.expiresAt <= s.nowMs()) {
		e = &entry{kind: KindString, str: []byte("0")}
		s.data[key] = e
	}
	if e.kind != KindString {
		return 0, ErrWrongType
	}
	n, perr := strconv.ParseInt(string(e.str), 10, 64)
	if perr != nil {
		return 0, fmt.Errorf("%s", "ERR value is not an integer or out of range")
	}
	n++
	e.str = []byte(strconv.FormatInt(n, 10))
	e.hasExpiry = false
	return n, nil
}

// Keys returns every live key matching the glob pattern ('*' and '?'
// only; no bracket classes).
func (s *Store) Keys(pattern string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		if _, ok := s.lookup(k); !ok {
			continue
		}
		if globMatch(pattern, k) {
			out = append(out, k)
		}
	}
	return out
}

// Clear removes every key. Used only by a follower reloading a snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*entry)
}

// StringRecord is one live string-kind entry, shaped for handing off to a
// snapshot encoder without that package reaching into Store internals.
type StringRecord struct {
	Key         string
	Value       []byte
	ExpiresAtMs int64
	HasExpiry   bool
}

// SnapshotStrings returns every live (non-expired) string-kind entry.
// List, stream and zset keys have no on-disk encoding in this subset of
// the format and are silently omitted, matching what Read can load back.
func (s *Store) SnapshotStrings() []StringRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StringRecord, 0, len(s.data))
	for k, e := range s.data {
		if e.kind != KindString {
			continue
		}
		if e.hasExpiry && e.expiresAt <= s.nowMs() {
			continue
		}
		out = append(out, StringRecord{
			Key:         k,
			Value:       append([]byte(nil), e.str...),
			ExpiresAtMs: e.expiresAt,
			HasExpiry:   e.hasExpiry,
		})
	}
	return out
}

// globMatch implements the restricted glob grammar: '*' matches any
// sequence of bytes, '?' matches exactly one byte, every other byte is
// literal. No bracket classes.
func globMatch(pattern, s string) bool {
	return globMatchBytes([]byte(pattern), []byte(s))
}

func globMatchBytes(p, s []byte) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			// Collapse consecutive stars and try every possible split.
			for len(p) > 0 && p[0] == '*' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchBytes(p, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			p, s = p[1:], s[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}
	return len(s) == 0
}
