package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"photo-library/core/record"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StashEntry is the last known state of a removed record.
type StashEntry struct {
	Identity  string        `json:"identity"`
	Snapshot  record.Record `json:"snapshot"`
	RemovedAt time.Time     `json:"removed_at"`
}

// Stash is a bounded store of recently removed records. When full, the
// entry stashed longest ago is dropped first. Lookups do not refresh an
// entry. It is safe for concurrent use.
type Stash struct {
	cache    *lru.Cache[string, StashEntry]
	capacity atomic.Int64
}

// NewStash creates a stash holding at most capacity entries.
func NewStash(capacity int) (*Stash, error) {
	c, err := lru.New[string, StashEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create stash: %w", err)
	}
	s := &Stash{cache: c}
	s.capacity.Store(int64(capacity))
	return s, nil
}

// Put stashes entry, replacing an older entry for the same identity. It
// reports whether another entry was dropped to make room.
func (s *Stash) Put(entry StashEntry) bool {
	// Re-stashing counts as the newest removal.
	s.cache.Remove(entry.Identity)
	return s.cache.Add(entry.Identity, entry)
}

// Lookup returns the stashed entry of identity.
func (s *Stash) Lookup(identity string) (StashEntry, bool) {
	return s.cache.Peek(identity)
}

// Remove drops identity from the stash and reports whether it was present.
func (s *Stash) Remove(identity string) bool {
	return s.cache.Remove(identity)
}

// Resize changes the capacity, dropping the oldest entries when shrinking.
// It returns the number of entries dropped.
func (s *Stash) Resize(capacity int) int {
	if capacity <= 0 || int64(capacity) == s.capacity.Load() {
		return 0
	}
	s.capacity.Store(int64(capacity))
	return s.cache.Resize(capacity)
}

// Len returns the number of stashed entries.
func (s *Stash) Len() int {
	return s.cache.Len()
}

// Capacity returns the configured capacity.
func (s *Stash) Capacity() int {
	return int(s.capacity.Load())
}

// Entries returns the stashed entries, oldest first.
func (s *Stash) Entries() []StashEntry {
	keys := s.cache.Keys()
	out := make([]StashEntry, 0, len(keys))
	for _, k := range keys {
		if e, ok := s.cache.Peek(k); ok {
			out = append(out, e)
		}
	}
	return out
}
