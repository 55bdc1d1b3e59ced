package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"photo-library/core/metrics"
	"photo-library/core/reconcile"
	"photo-library/core/record"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options wires the collaborators of a Loop.
type Options struct {
	// Sources are fetched concurrently on every load, one worker each.
	Sources []Source

	// Consumer receives batches, progress, completion, errors and patches.
	Consumer Consumer

	// Hooks are notified of every structural operation applied by a refresh.
	Hooks reconcile.Hooks

	// Comparator detects in-place changes during a refresh.
	Comparator reconcile.Comparator

	// Snapshots fetches the full snapshot used by Refresh. Optional.
	Snapshots *reconcile.SnapshotLoader

	// Metrics is optional.
	Metrics *metrics.Engine

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// View is a consistent read of the materialized sequence.
type View struct {
	Epoch   Epoch           `json:"epoch"`
	Loading bool            `json:"loading"`
	Total   int             `json:"total"`
	Records []record.Record `json:"records"`
}

type chunkMsg struct {
	epoch  Epoch
	source string
	recs   []record.Record
}

type sourceDoneMsg struct {
	epoch  Epoch
	source string
	err    error
}

type totalMsg struct {
	epoch Epoch
	total int
}

type refreshResult struct {
	patch reconcile.Patch
	err   error
}

type snapshotMsg struct {
	epoch Epoch
	gen   uint64
	recs  []record.Record
	err   error
}

// loadState tracks the workers of one started epoch.
type loadState struct {
	active   int
	failed   bool
	canceled bool
	cancel   context.CancelFunc
}

// Loop is the single apply point of the engine. All state below the channel
// fields is owned by the goroutine started in Start.
type Loop struct {
	cfg      Config
	opts     Options
	logger   *zap.Logger
	consumer Consumer
	hooks    reconcile.Hooks
	metrics  *metrics.Engine

	inbox    chan any
	calls    chan func()
	done     chan struct{}
	stopped  chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	seq   *record.Sequence
	pipe  *Pipeline
	merge *MergeEngine
	loads map[Epoch]*loadState
	total int
	timer *time.Timer
	now   func() time.Time

	refreshGen      uint64
	refreshInFlight bool
	refreshAgain    bool
	refreshPending  bool
	refreshWaiters  []chan refreshResult
}

// NewLoop creates a loop. Call Start before using it.
func NewLoop(cfg Config, opts Options) *Loop {
	cfg = cfg.withDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var consumer Consumer = ConsumerFuncs{}
	if opts.Consumer != nil {
		consumer = opts.Consumer
	}
	var hooks reconcile.Hooks = reconcile.NopHooks{}
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}

	l := &Loop{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		consumer: consumer,
		hooks:    hooks,
		metrics:  opts.Metrics,
		inbox:    make(chan any, cfg.InboxSize),
		calls:    make(chan func()),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		seq:      record.NewSequence(),
		merge:    NewMergeEngine(logger),
		loads:    make(map[Epoch]*loadState),
		now:      time.Now,
	}
	l.pipe = NewPipeline(cfg, l.seq.Contains, logger)
	l.merge.SetStrict(cfg.StrictOrder)
	return l
}

// Start launches the loop goroutine. ctx bounds every worker it spawns.
func (l *Loop) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	go l.run()
}

// Stop shuts the loop down and waits for it to exit. In-flight fetches are
// canceled; nothing more is delivered to the consumer.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	if l.started.Load() {
		<-l.stopped
		l.cancel()
	}
}

// StartLoad begins a new load and returns its epoch. A running load is
// superseded; the new one starts as soon as the old one has wound down.
func (l *Loop) StartLoad(ctx context.Context) (Epoch, error) {
	var epoch Epoch
	err := l.call(ctx, func() {
		epoch = l.startLoad()
	})
	return epoch, err
}

// Refresh fetches a fresh snapshot and patches the view with the difference.
// A refresh requested during a load runs once the load has finished.
func (l *Loop) Refresh(ctx context.Context) error {
	var rerr error
	err := l.call(ctx, func() {
		rerr = l.requestRefresh()
	})
	if err != nil {
		return err
	}
	return rerr
}

// RefreshWait is Refresh that blocks until the refresh settles. It returns
// the applied patch, which is empty when nothing changed.
func (l *Loop) RefreshWait(ctx context.Context) (reconcile.Patch, error) {
	done := make(chan refreshResult, 1)
	var rerr error
	err := l.call(ctx, func() {
		if rerr = l.requestRefresh(); rerr == nil {
			l.refreshWaiters = append(l.refreshWaiters, done)
		}
	})
	if err == nil {
		err = rerr
	}
	if err != nil {
		return reconcile.Patch{}, err
	}

	select {
	case res := <-done:
		return res.patch, res.err
	case <-l.done:
		return reconcile.Patch{}, ErrClosed
	case <-ctx.Done():
		return reconcile.Patch{}, ctx.Err()
	}
}

// View returns a copy of the whole materialized sequence.
func (l *Loop) View(ctx context.Context) (View, error) {
	return l.Page(ctx, 0, -1)
}

// Page returns a copy of at most limit records starting at offset. A negative
// limit returns everything from offset on.
func (l *Loop) Page(ctx context.Context, offset, limit int) (View, error) {
	var v View
	err := l.call(ctx, func() {
		if limit < 0 {
			limit = l.seq.Len()
		}
		v = View{
			Epoch:   l.pipe.Epoch(),
			Loading: l.pipe.Loading(),
			Total:   l.seq.Len(),
			Records: l.seq.Slice(offset, limit),
		}
	})
	return v, err
}

// Lookup returns the materialized record for identity.
func (l *Loop) Lookup(ctx context.Context, identity string) (record.Record, bool, error) {
	var (
		rec record.Record
		ok  bool
	)
	err := l.call(ctx, func() {
		rec, ok = l.seq.Get(identity)
	})
	return rec, ok, err
}

// call runs fn on the loop goroutine and waits for it. Consumer callbacks run
// on that goroutine too and must never call back into the loop.
func (l *Loop) call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case l.calls <- func() { fn(); close(ran) }:
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// send hands msg from a worker to the loop. It returns false after Stop.
func (l *Loop) send(msg any) bool {
	select {
	case l.inbox <- msg:
		return true
	case <-l.done:
		return false
	}
}

func (l *Loop) run() {
	defer close(l.stopped)

	l.timer = time.NewTimer(time.Hour)
	l.timer.Stop()

	for {
		select {
		case <-l.done:
			l.shutdown()
			return
		case fn := <-l.calls:
			fn()
		case msg := <-l.inbox:
			l.handle(msg)
		case <-l.timer.C:
		}
		l.flushDue()
		l.schedule()
	}
}

func (l *Loop) shutdown() {
	l.timer.Stop()
	for epoch, st := range l.loads {
		st.cancel()
		delete(l.loads, epoch)
	}
	l.pipe.Abort()
}

// schedule points the timer at the pipeline's next deadline. Resetting it on
// every iteration keeps rescheduling idempotent.
func (l *Loop) schedule() {
	deadline, ok := l.pipe.NextDeadline()
	if !ok {
		l.timer.Stop()
		return
	}
	d := deadline.Sub(l.now())
	if d < 0 {
		d = 0
	}
	l.timer.Reset(d)
}

func (l *Loop) flushDue() {
	for l.pipe.Due(l.now()) {
		if !l.flush() {
			return
		}
	}
}

func (l *Loop) flush() bool {
	batch, ok := l.pipe.Flush()
	if !ok {
		return false
	}

	l.seq.Append(batch.Records...)
	l.metrics.ObserveBatch(len(batch.Records))
	l.metrics.SetSequenceSize(l.seq.Len())

	l.consumer.OnBatch(batch.Records, batch.First)
	l.consumer.OnProgress(l.seq.Len(), l.total)

	l.settle(l.pipe.Commit(batch, l.now()))
	return true
}

func (l *Loop) settle(res FinishResult) {
	if res.Restart {
		l.beginLoad(l.pipe.Epoch())
	}
	if res.Clear {
		l.consumer.OnBatch(nil, true)
		l.consumer.OnProgress(l.seq.Len(), l.total)
	}
	if res.Propagate {
		l.finished(res.Outcome)
	}
}

func (l *Loop) finished(outcome Outcome) {
	l.logger.Info("Load finished",
		zap.Uint64("epoch", uint64(l.pipe.Epoch())),
		zap.String("outcome", outcome.String()),
		zap.Int("records", l.seq.Len()),
	)
	l.metrics.ObserveLoad(outcome.String())
	l.consumer.OnFinished(outcome == OutcomeSuccess)

	if l.refreshPending {
		l.refreshPending = false
		if err := l.requestRefresh(); err != nil {
			l.logger.Warn("Deferred refresh not started", zap.Error(err))
		}
	}
}

func (l *Loop) startLoad() Epoch {
	epoch, begin := l.pipe.StartLoad()

	// Superseded workers stop at their next page boundary; whatever they
	// still deliver carries an old epoch and is dropped.
	for _, st := range l.loads {
		st.canceled = true
		st.cancel()
	}

	if begin {
		l.beginLoad(epoch)
	} else {
		l.logger.Debug("Load superseded, restart deferred", zap.Uint64("epoch", uint64(epoch)))
	}
	return epoch
}

func (l *Loop) beginLoad(epoch Epoch) {
	l.seq.Reset(nil)
	l.merge.Reset()
	l.total = 0
	l.metrics.SetSequenceSize(0)

	sources := l.opts.Sources
	ctx, cancel := context.WithCancel(l.ctx)
	l.loads[epoch] = &loadState{active: len(sources), cancel: cancel}

	l.logger.Info("Load started", zap.Uint64("epoch", uint64(epoch)), zap.Int("sources", len(sources)))

	if len(sources) == 0 {
		cancel()
		delete(l.loads, epoch)
		l.settle(l.pipe.Finish(epoch, OutcomeSuccess, l.now()))
		return
	}

	for _, src := range sources {
		l.merge.AddSource(src.Name(), src.Sorted())
	}
	for _, src := range sources {
		go l.work(ctx, epoch, src)
	}
	go l.count(ctx, epoch)
}

// work is the fetch loop of one source for one epoch.
func (l *Loop) work(ctx context.Context, epoch Epoch, src Source) {
	src.Reset()

	var err error
	for src.HasMore() {
		if err = ctx.Err(); err != nil {
			break
		}
		var page []record.Record
		page, err = src.FetchNext(ctx, l.cfg.PageSize)
		if err != nil || len(page) == 0 {
			break
		}
		if !l.send(chunkMsg{epoch: epoch, source: src.Name(), recs: page}) {
			return
		}
	}
	l.send(sourceDoneMsg{epoch: epoch, source: src.Name(), err: err})
}

// count sums the totals of every source that can report one.
func (l *Loop) count(ctx context.Context, epoch Epoch) {
	var counters []Counter
	for _, src := range l.opts.Sources {
		if c, ok := src.(Counter); ok {
			counters = append(counters, c)
		}
	}
	if len(counters) == 0 {
		return
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range counters {
		g.Go(func() error {
			n, err := c.Count(gctx)
			if err != nil {
				return err
			}
			total.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.logger.Debug("Progress total unavailable", zap.Error(err))
		return
	}
	l.send(totalMsg{epoch: epoch, total: int(total.Load())})
}

func (l *Loop) handle(msg any) {
	switch m := msg.(type) {
	case chunkMsg:
		l.onChunk(m)
	case sourceDoneMsg:
		l.onSourceDone(m)
	case totalMsg:
		if m.epoch != l.pipe.Epoch() {
			l.metrics.ObserveStale("total")
			return
		}
		l.total = m.total
	case snapshotMsg:
		l.onSnapshot(m)
	}
}

func (l *Loop) onChunk(m chunkMsg) {
	if m.epoch != l.pipe.Epoch() {
		l.metrics.ObserveStale("chunk")
		l.logger.Debug("Dropping stale chunk",
			zap.Uint64("epoch", uint64(m.epoch)),
			zap.String("source", m.source),
		)
		return
	}
	skipped := l.merge.Skipped()
	l.merge.PushChunk(m.source, m.recs)
	l.metrics.ObserveSkipped(l.merge.Skipped() - skipped)
	l.pump(false)
}

// pump moves merged records into the pipeline. Until every source is
// exhausted only records that are safe to emit in global order are moved.
func (l *Loop) pump(all bool) {
	n := l.merge.Pending()
	if n == 0 {
		return
	}
	var recs []record.Record
	if all {
		recs = l.merge.PopNext(n)
	} else {
		recs = l.merge.PopReady(n)
	}
	if len(recs) > 0 {
		l.pipe.Add(l.pipe.Epoch(), recs, l.now())
	}
}

func (l *Loop) onSourceDone(m sourceDoneMsg) {
	st, ok := l.loads[m.epoch]
	if !ok {
		return
	}
	st.active--
	current := m.epoch == l.pipe.Epoch()

	if m.err != nil {
		switch {
		case errors.Is(m.err, context.Canceled):
			st.canceled = true
		case current:
			st.failed = true
			l.logger.Error("Source fetch failed",
				zap.Uint64("epoch", uint64(m.epoch)),
				zap.String("source", m.source),
				zap.Error(m.err),
			)
			l.consumer.OnError(fmt.Sprintf("%s: %v", m.source, m.err))
			// The epoch is lost; stop the sibling workers early.
			st.cancel()
		}
	}

	if current {
		l.merge.MarkExhausted(m.source)
		l.pump(false)
	}

	if st.active > 0 {
		return
	}
	st.cancel()
	delete(l.loads, m.epoch)

	if !current {
		l.metrics.ObserveStale("finish")
		l.settle(l.pipe.Finish(m.epoch, OutcomeCanceled, l.now()))
		return
	}

	l.pump(true)
	outcome := OutcomeSuccess
	switch {
	case st.failed:
		outcome = OutcomeFailure
	case st.canceled:
		outcome = OutcomeCanceled
	}
	l.settle(l.pipe.Finish(m.epoch, outcome, l.now()))
}

func (l *Loop) requestRefresh() error {
	if l.opts.Snapshots == nil {
		return ErrNoSnapshots
	}
	if l.pipe.Loading() {
		l.refreshPending = true
		return nil
	}
	if l.refreshInFlight {
		l.refreshAgain = true
		return nil
	}

	l.refreshGen++
	gen, epoch := l.refreshGen, l.pipe.Epoch()
	l.refreshInFlight = true

	go func() {
		snap, err := l.opts.Snapshots.Load(l.ctx)
		msg := snapshotMsg{epoch: epoch, gen: gen, err: err}
		if snap != nil {
			msg.recs = snap.Records
		}
		l.send(msg)
	}()
	return nil
}

func (l *Loop) onSnapshot(m snapshotMsg) {
	l.refreshInFlight = false
	again := l.refreshAgain
	l.refreshAgain = false

	patch, err := l.applySnapshot(m)
	if again {
		l.opts.Snapshots.Invalidate()
		if rerr := l.requestRefresh(); rerr != nil {
			l.logger.Warn("Follow-up refresh not started", zap.Error(rerr))
			l.settleRefresh(reconcile.Patch{}, rerr)
		}
		return
	}
	if l.refreshPending {
		// Waiters are answered by the refresh that runs after the load.
		return
	}
	l.settleRefresh(patch, err)
}

func (l *Loop) settleRefresh(patch reconcile.Patch, err error) {
	for _, w := range l.refreshWaiters {
		w <- refreshResult{patch: patch, err: err}
	}
	l.refreshWaiters = nil
}

func (l *Loop) applySnapshot(m snapshotMsg) (reconcile.Patch, error) {
	if m.epoch != l.pipe.Epoch() || m.gen != l.refreshGen || l.pipe.Loading() {
		l.metrics.ObserveStale("snapshot")
		l.logger.Debug("Dropping stale snapshot", zap.Uint64("epoch", uint64(m.epoch)))
		return reconcile.Patch{}, ErrSuperseded
	}

	if m.err != nil {
		l.logger.Error("Snapshot fetch failed", zap.Error(m.err))
		l.consumer.OnError(fmt.Sprintf("refresh: %v", m.err))
		return reconcile.Patch{}, m.err
	}

	patch := reconcile.Diff(l.seq.Records(), m.recs, reconcile.Options{
		Comparator: l.opts.Comparator,
		ResetRatio: l.cfg.ResetRatio,
	})
	if patch.Empty() {
		l.logger.Debug("Refresh found no changes")
		return patch, nil
	}

	if err := reconcile.Apply(l.seq, patch, l.hooks); err != nil {
		l.logger.Error("Applying refresh patch failed", zap.Error(err))
		l.consumer.OnError(fmt.Sprintf("refresh: %v", err))
		return reconcile.Patch{}, err
	}

	s := patch.Summary()
	l.metrics.ObservePatch(s.Removed, s.Inserted, s.Changed, s.Moved, s.Reset)
	l.metrics.SetSequenceSize(l.seq.Len())
	l.logger.Info("Refresh applied",
		zap.Int("removed", s.Removed),
		zap.Int("inserted", s.Inserted),
		zap.Int("changed", s.Changed),
		zap.Int("moved", s.Moved),
		zap.Bool("reset", s.Reset),
	)
	l.consumer.OnPatch(patch)
	return patch, nil
}
