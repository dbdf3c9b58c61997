// Package denylist holds the local set of known spammer accounts and keeps it
// fresh from the public feeds.
package denylist

import "sync/atomic"

// Store is a set of account ids that is replaced wholesale on refresh.
// Readers always see either the old set or the new one, never a mix.
type Store struct {
	set atomic.Pointer[map[int64]struct{}]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{}
	empty := make(map[int64]struct{})
	s.set.Store(&empty)
	return s
}

// Contains reports whether id is in the current set.
func (s *Store) Contains(id int64) bool {
	_, ok := (*s.set.Load())[id]
	return ok
}

// Replace swaps in a new set. The caller must not modify ids afterwards.
func (s *Store) Replace(ids map[int64]struct{}) {
	if ids == nil {
		ids = make(map[int64]struct{})
	}
	s.set.Store(&ids)
	denylistSize.Set(float64(len(ids)))
}

// Size returns the number of ids in the current set.
func (s *Store) Size() int {
	return len(*s.set.Load())
}
