package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photo-library/core/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotLoader_CachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	loader := NewSnapshotLoader("photos", time.Minute, func(ctx context.Context) ([]record.Record, error) {
		calls.Add(1)
		return recs("a"), nil
	})

	first, err := loader.Load(context.Background())
	require.NoError(t, err)
	second, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	loader.Invalidate()
	_, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSnapshotLoader_ZeroTTLRefetches(t *testing.T) {
	var calls atomic.Int32
	loader := NewSnapshotLoader("photos", 0, func(ctx context.Context) ([]record.Record, error) {
		calls.Add(1)
		return nil, nil
	})

	_, _ = loader.Load(context.Background())
	_, _ = loader.Load(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSnapshotLoader_CoalescesConcurrentLoads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	loader := NewSnapshotLoader("photos", 0, func(ctx context.Context) ([]record.Record, error) {
		calls.Add(1)
		<-release
		return recs("a"), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := loader.Load(context.Background())
			assert.NoError(t, err)
			assert.Len(t, snap.Records, 1)
		}()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestSnapshotLoader_Error(t *testing.T) {
	loader := NewSnapshotLoader("photos", time.Minute, func(ctx context.Context) ([]record.Record, error) {
		return nil, errors.New("store offline")
	})

	_, err := loader.Load(context.Background())
	assert.EqualError(t, err, "store offline")
}
