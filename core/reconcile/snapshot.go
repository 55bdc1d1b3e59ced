package reconcile

import (
	"context"
	"sync"
	"time"

	"photo-library/core/record"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads a full, ordered snapshot of the backing store.
type Fetcher func(ctx context.Context) ([]record.Record, error)

// Snapshot holds a fetched sequence and when it was built.
type Snapshot struct {
	// Records is the ordered snapshot.
	Records []record.Record

	// Built is the timestamp when this snapshot was fetched.
	Built time.Time

	// TTL is the time-to-live for this snapshot.
	TTL time.Duration
}

// IsExpired returns true if this snapshot has expired based on its TTL.
func (s *Snapshot) IsExpired() bool {
	if s.TTL == 0 {
		return true // No caching
	}
	return time.Since(s.Built) > s.TTL
}

// SnapshotLoader coalesces concurrent snapshot fetches and keeps the most
// recent result for TTL.
type SnapshotLoader struct {
	key   string
	ttl   time.Duration
	fetch Fetcher

	mu     sync.RWMutex
	cached *Snapshot
	sf     singleflight.Group
}

// NewSnapshotLoader creates a loader. A zero ttl disables caching while still
// coalescing concurrent calls.
func NewSnapshotLoader(key string, ttl time.Duration, fetch Fetcher) *SnapshotLoader {
	return &SnapshotLoader{key: key, ttl: ttl, fetch: fetch}
}

// Load returns the cached snapshot if fresh, or fetches a new one.
// Uses singleflight to prevent fetch stampedes.
func (l *SnapshotLoader) Load(ctx context.Context) (*Snapshot, error) {
	// Fast path: check if snapshot exists and is fresh
	l.mu.RLock()
	snap := l.cached
	l.mu.RUnlock()

	if snap != nil && !snap.IsExpired() {
		return snap, nil
	}

	// Slow path: fetch using singleflight
	result, err, _ := l.sf.Do(l.key, func() (interface{}, error) {
		// Double-check after acquiring singleflight slot
		l.mu.RLock()
		snap := l.cached
		l.mu.RUnlock()

		if snap != nil && !snap.IsExpired() {
			return snap, nil
		}

		recs, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}

		fresh := &Snapshot{
			Records: recs,
			Built:   time.Now(),
			TTL:     l.ttl,
		}

		l.mu.Lock()
		l.cached = fresh
		l.mu.Unlock()

		return fresh, nil
	})

	if err != nil {
		return nil, err
	}

	return result.(*Snapshot), nil
}

// Invalidate drops the cached snapshot so the next Load fetches again.
func (l *SnapshotLoader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}
