package rdb

import "github.com/itarato/gokv/store"

// Apply loads every string record from a parsed Snapshot into s. Keys
// with expiry instants already in the past are still loaded — lazy
// expiry handles them the first time they are read, exactly as it would
// for any other expired string.
func Apply(snap *Snapshot, s *store.Store) error {
	for _, rec := range snap.Strings {
		ttl := int64(0)
		if rec.HasExpiry {
			ttl = rec.ExpiresAtMs
		}
		// Store.Set takes a TTL relative to "now"; a loaded snapshot
		// carries an absolute instant, so translate by handing the
		// absolute value through SetAbsolute instead.
		if err := s.SetAbsoluteExpiry(rec.Key, rec.Value, ttl, rec.HasExpiry); err != nil {
			return err
		}
	}
	return nil
}
