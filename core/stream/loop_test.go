package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"photo-library/core/metrics"
	"photo-library/core/reconcile"
	"photo-library/core/record"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	mu     sync.Mutex
	name   string
	sorted bool
	recs   []record.Record
	pos    int
	failAt int
	err    error
	// release, when set, blocks every fetch from position gateAt on until it
	// is closed.
	release chan struct{}
	gateAt  int
	// holdOnce blocks the first fetch until its context is canceled.
	holdOnce bool
	fetches  int
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Sorted() bool { return s.sorted }

func (s *fakeSource) FetchNext(ctx context.Context, limit int) ([]record.Record, error) {
	s.mu.Lock()
	s.fetches++
	hold := s.holdOnce
	s.holdOnce = false
	release := s.release
	if s.pos < s.gateAt {
		release = nil
	}
	s.mu.Unlock()

	if hold {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && s.pos >= s.failAt {
		return nil, s.err
	}
	end := s.pos + limit
	if end > len(s.recs) {
		end = len(s.recs)
	}
	page := s.recs[s.pos:end]
	s.pos = end
	return page, nil
}

func (s *fakeSource) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos < len(s.recs) || (s.err != nil && s.pos >= s.failAt)
}

func (s *fakeSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
}

type countedSource struct {
	*fakeSource
}

func (s countedSource) Count(context.Context) (int, error) {
	return len(s.recs), nil
}

type recorder struct {
	mu       sync.Mutex
	batches  [][]string
	firsts   []bool
	finished []bool
	errors   []string
	patches  []reconcile.Patch
	progress [][2]int
	// view is the consumer side copy rebuilt from batches.
	view []string
}

func (r *recorder) OnBatch(recs []record.Record, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, record.Identities(recs))
	r.firsts = append(r.firsts, first)
	if first {
		r.view = nil
	}
	r.view = append(r.view, record.Identities(recs)...)
}

func (r *recorder) viewCopy() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.view...)
}

func (r *recorder) OnProgress(current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, [2]int{current, total})
}

func (r *recorder) OnFinished(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, success)
}

func (r *recorder) OnError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func (r *recorder) OnPatch(patch reconcile.Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, patch)
}

func (r *recorder) finishedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.finished)
}

func (r *recorder) patchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patches)
}

func startLoop(t *testing.T, opts Options) (*Loop, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts.Consumer = rec
	opts.Logger = zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	l := NewLoop(Config{FlushInterval: 5 * time.Millisecond, PageSize: 2, BatchSize: 3}, opts)
	l.Start(context.Background())
	t.Cleanup(l.Stop)
	return l, rec
}

func identities(t *testing.T, l *Loop) []string {
	t.Helper()
	v, err := l.View(context.Background())
	require.NoError(t, err)
	return record.Identities(v.Records)
}

func TestLoop_LoadMergesSources(t *testing.T) {
	a := &fakeSource{name: "a", sorted: true, recs: []record.Record{at("a1", 100), at("a2", 90), at("a3", 10)}}
	b := &fakeSource{name: "b", sorted: true, recs: []record.Record{at("b1", 95), at("a2", 90), at("b2", 5)}}
	c := &fakeSource{name: "c", recs: []record.Record{at("c2", 1), at("c1", 50)}}
	l, rec := startLoop(t, Options{Sources: []Source{a, countedSource{b}, c}})

	epoch, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Epoch(1), epoch)

	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, []string{"a1", "b1", "a2", "c1", "a3", "b2", "c2"}, identities(t, l))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []bool{true}, rec.finished)
	assert.True(t, rec.firsts[0])
	for _, first := range rec.firsts[1:] {
		assert.False(t, first)
	}
	for _, batch := range rec.batches {
		assert.LessOrEqual(t, len(batch), 3)
	}
	last := rec.progress[len(rec.progress)-1]
	assert.Equal(t, 7, last[0])
}

func TestLoop_NoSources(t *testing.T) {
	l, rec := startLoop(t, Options{})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, identities(t, l))
}

func TestLoop_ReloadToEmptyClearsConsumerView(t *testing.T) {
	src := &fakeSource{name: "a", sorted: true, recs: []record.Record{at("a1", 2), at("a2", 1)}}
	l, rec := startLoop(t, Options{Sources: []Source{src}})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a1", "a2"}, rec.viewCopy())

	src.mu.Lock()
	src.recs = nil
	src.mu.Unlock()

	_, err = l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.finishedCount() == 2 }, time.Second, time.Millisecond)

	assert.Empty(t, identities(t, l))
	assert.Empty(t, rec.viewCopy())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, rec.firsts[len(rec.firsts)-1])
	assert.Empty(t, rec.batches[len(rec.batches)-1])
}

func TestLoop_SortedSourceStreamsWhileUnsortedRuns(t *testing.T) {
	release := make(chan struct{})
	store := &fakeSource{name: "store", sorted: true, recs: []record.Record{at("s1", 100), at("s2", 90), at("s3", 80)}}
	scan := &fakeSource{name: "scan", release: release, gateAt: 2, recs: []record.Record{at("c2", 85), at("c1", 95), at("c3", 5)}}
	l, rec := startLoop(t, Options{Sources: []Source{store, scan}})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := l.View(context.Background())
		return err == nil && len(v.Records) == 4
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"s1", "c1", "s2", "c2"}, identities(t, l))
	assert.Zero(t, rec.finishedCount())

	close(release)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"s1", "c1", "s2", "c2", "s3", "c3"}, identities(t, l))
}

func TestLoop_StrictOrderHoldsUntilUnsortedExhausted(t *testing.T) {
	release := make(chan struct{})
	store := &fakeSource{name: "store", sorted: true, recs: []record.Record{at("s1", 100), at("s2", 90)}}
	scan := &fakeSource{name: "scan", release: release, gateAt: 2, recs: []record.Record{at("c1", 95), at("c2", 85), at("c3", 99)}}

	rec := &recorder{}
	l := NewLoop(Config{FlushInterval: 5 * time.Millisecond, PageSize: 2, StrictOrder: true}, Options{
		Sources:  []Source{store, scan},
		Consumer: rec,
		Logger:   zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)),
	})
	l.Start(context.Background())
	t.Cleanup(l.Stop)

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, identities(t, l))

	close(release)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"s1", "c3", "c1", "s2", "c2"}, identities(t, l))
}

func TestLoop_CountsSkippedRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeSource{name: "a", sorted: true, recs: []record.Record{at("a1", 3), at("", 2), at("a2", 1)}}
	l, rec := startLoop(t, Options{Sources: []Source{src}, Metrics: metrics.New(reg)})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a1", "a2"}, identities(t, l))

	families, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, f := range families {
		if f.GetName() == "photo_library_records_skipped_total" {
			skipped = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), skipped)
}

func TestLoop_SourceFailure(t *testing.T) {
	good := &fakeSource{name: "good", sorted: true, recs: []record.Record{at("g1", 10)}}
	bad := &fakeSource{name: "bad", sorted: true, recs: []record.Record{at("b1", 20), at("b2", 15), at("b3", 5)}, failAt: 2, err: errors.New("disk gone")}
	l, rec := startLoop(t, Options{Sources: []Source{good, bad}})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, []bool{false}, rec.finished)
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "disk gone")
	rec.mu.Unlock()

	// Records merged before the failure are kept.
	assert.Subset(t, identities(t, l), []string{"b1", "b2"})
}

func TestLoop_SupersededLoadRestarts(t *testing.T) {
	src := &fakeSource{name: "a", sorted: true, holdOnce: true, recs: []record.Record{at("a1", 2), at("a2", 1)}}
	l, rec := startLoop(t, Options{Sources: []Source{src}})

	e1, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.fetches == 1
	}, time.Second, time.Millisecond)

	e2, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, e1+1, e2)

	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)

	v, err := l.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, e2, v.Epoch)
	assert.False(t, v.Loading)
	assert.Equal(t, []string{"a1", "a2"}, record.Identities(v.Records))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []bool{true}, rec.finished, "the superseded load is never reported")
	assert.True(t, rec.firsts[0])
}

func TestLoop_RefreshAppliesPatch(t *testing.T) {
	src := &fakeSource{name: "a", sorted: true, recs: []record.Record{at("x", 3), at("y", 2), at("z", 1)}}
	fresh := []record.Record{at("y", 2), at("z", 1), at("w", 0)}
	snapshots := reconcile.NewSnapshotLoader("library", 0, func(context.Context) ([]record.Record, error) {
		return fresh, nil
	})
	l, rec := startLoop(t, Options{Sources: []Source{src}, Snapshots: snapshots})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, l.Refresh(context.Background()))
	require.Eventually(t, func() bool { return rec.patchCount() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, []string{"y", "z", "w"}, identities(t, l))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	s := rec.patches[0].Summary()
	assert.Equal(t, 1, s.Removed)
	assert.Equal(t, 1, s.Inserted)
	assert.False(t, s.Reset)
}

func TestLoop_RefreshDeferredWhileLoading(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{name: "a", sorted: true, release: release, recs: []record.Record{at("x", 3)}}
	snapshots := reconcile.NewSnapshotLoader("library", 0, func(context.Context) ([]record.Record, error) {
		return []record.Record{at("x", 3), at("new", 1)}, nil
	})
	l, rec := startLoop(t, Options{Sources: []Source{src}, Snapshots: snapshots})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Refresh(context.Background()))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.patchCount())

	close(release)
	require.Eventually(t, func() bool { return rec.patchCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"x", "new"}, identities(t, l))
}

func TestLoop_RefreshWaitSettles(t *testing.T) {
	src := &fakeSource{name: "a", sorted: true, recs: []record.Record{at("x", 3)}}
	var (
		mu    sync.Mutex
		fresh = []record.Record{at("x", 3)}
		fail  error
	)
	snapshots := reconcile.NewSnapshotLoader("library", 0, func(context.Context) ([]record.Record, error) {
		mu.Lock()
		defer mu.Unlock()
		return fresh, fail
	})
	l, rec := startLoop(t, Options{Sources: []Source{src}, Snapshots: snapshots})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	patch, err := l.RefreshWait(ctx)
	require.NoError(t, err)
	assert.True(t, patch.Empty(), "nothing changed")
	assert.Zero(t, rec.patchCount())

	mu.Lock()
	fail = errors.New("disk gone")
	mu.Unlock()
	_, err = l.RefreshWait(ctx)
	assert.ErrorContains(t, err, "disk gone")

	mu.Lock()
	fail = nil
	fresh = []record.Record{at("x", 3), at("y", 1)}
	mu.Unlock()
	patch, err = l.RefreshWait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, patch.Summary().Inserted)
	assert.Equal(t, []string{"x", "y"}, identities(t, l))
}

func TestLoop_RefreshWithoutSnapshots(t *testing.T) {
	l, _ := startLoop(t, Options{})
	assert.ErrorIs(t, l.Refresh(context.Background()), ErrNoSnapshots)
	_, err := l.RefreshWait(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshots)
}

func TestLoop_PageAndLookup(t *testing.T) {
	src := &fakeSource{name: "a", sorted: true, recs: []record.Record{at("a", 3), at("b", 2), at("c", 1)}}
	l, rec := startLoop(t, Options{Sources: []Source{src}})

	_, err := l.StartLoad(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.finishedCount() == 1 }, time.Second, time.Millisecond)

	page, err := l.Page(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"b"}, record.Identities(page.Records))

	got, ok, err := l.Lookup(context.Background(), "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", got.SourceTag)

	_, ok, err = l.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoop_ClosedAfterStop(t *testing.T) {
	l := NewLoop(Config{}, Options{})
	l.Start(context.Background())
	l.Stop()
	l.Stop()

	_, err := l.StartLoad(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = l.View(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
