package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"photo-library/core/metrics"
	"photo-library/core/record"

	"go.uber.org/zap"
)

type jobKind int

const (
	jobEvict jobKind = iota
	jobMigrate
)

type job struct {
	kind   jobKind
	from   string
	to     string
	reason string
}

// Coordinator keeps the artifact cache and the removal stash consistent with
// structural changes of the materialized sequence. It implements
// reconcile.Hooks.
//
// Artifact operations run inline until Start is called, and on a background
// worker afterwards. Hooks never wait for the worker: operations queue up
// without bound and repeated evictions of one identity are coalesced.
type Coordinator struct {
	cfg       Config
	artifacts ArtifactCache
	stash     *Stash
	sensitive map[string]struct{}
	logger    *zap.Logger
	metrics   *metrics.Engine
	now       func() time.Time

	mu       sync.Mutex
	pending  []job
	evicting map[string]struct{}
	wake     chan struct{}
	quit     chan struct{}
	started  bool
	stopped  bool
	wg       sync.WaitGroup

	carriedMu sync.Mutex
	carried   map[string]struct{}
}

// NewCoordinator creates a coordinator. A nil artifact cache disables
// eviction but keeps the stash.
func NewCoordinator(cfg Config, artifacts ArtifactCache, logger *zap.Logger, m *metrics.Engine) (*Coordinator, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	stash, err := NewStash(cfg.StashCapacity)
	if err != nil {
		return nil, err
	}

	sensitive := make(map[string]struct{}, len(cfg.SensitiveFields))
	for _, f := range cfg.SensitiveFields {
		sensitive[f] = struct{}{}
	}

	return &Coordinator{
		cfg:       cfg,
		artifacts: artifacts,
		stash:     stash,
		sensitive: sensitive,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		evicting:  make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		carried:   make(map[string]struct{}),
	}, nil
}

// Start moves artifact operations to a background worker bound to ctx.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.wg.Add(1)
	go c.work(ctx)
}

// Stop drains the queued operations and stops the worker. Later operations
// run inline.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.quit)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// ForgetCarried drops every pending Migrate marker. A full load inserts
// records without hooks, so markers left from before it would never clear.
func (c *Coordinator) ForgetCarried() {
	c.carriedMu.Lock()
	c.carried = make(map[string]struct{})
	c.carriedMu.Unlock()
}

// Removed evicts the artifact of rec and stashes its last known state.
func (c *Coordinator) Removed(rec record.Record) {
	c.carriedMu.Lock()
	delete(c.carried, rec.Identity)
	c.carriedMu.Unlock()

	c.Evict(rec.Identity, "removed")
	c.Stash(rec.Identity, rec, c.cfg.StashCapacity)
}

// Inserted evicts any artifact left over from a prior lifetime of rec and
// drops it from the stash. An artifact carried over by Migrate is kept.
func (c *Coordinator) Inserted(rec record.Record) {
	c.carriedMu.Lock()
	_, carried := c.carried[rec.Identity]
	delete(c.carried, rec.Identity)
	c.carriedMu.Unlock()

	if !carried {
		c.Evict(rec.Identity, "inserted")
	}
	if c.stash.Remove(rec.Identity) {
		c.metrics.SetStashSize(c.stash.Len())
	}
}

// Changed evicts the artifact only when one of fields is sensitive.
func (c *Coordinator) Changed(_, rec record.Record, fields []string) {
	for _, f := range fields {
		if _, ok := c.sensitive[f]; ok {
			c.Evict(rec.Identity, "changed:"+f)
			return
		}
	}
}

// Evict drops the artifact of identity. Missing artifacts are ignored.
func (c *Coordinator) Evict(identity, reason string) {
	c.dispatch(job{kind: jobEvict, from: identity, reason: reason})
}

// Migrate moves the artifact of oldIdentity to newIdentity. The next
// insertion of newIdentity keeps the moved artifact.
func (c *Coordinator) Migrate(oldIdentity, newIdentity string) {
	c.carriedMu.Lock()
	c.carried[newIdentity] = struct{}{}
	c.carriedMu.Unlock()

	c.dispatch(job{kind: jobMigrate, from: oldIdentity, to: newIdentity, reason: "moved"})
}

// Stash records the last known snapshot of a removed identity, resizing the
// stash first when capacity differs from the current one.
func (c *Coordinator) Stash(identity string, snapshot record.Record, capacity int) {
	if dropped := c.stash.Resize(capacity); dropped > 0 {
		c.logger.Debug("Stash shrunk", zap.Int("capacity", capacity), zap.Int("dropped", dropped))
	}
	c.stash.Put(StashEntry{Identity: identity, Snapshot: snapshot, RemovedAt: c.now()})
	c.metrics.SetStashSize(c.stash.Len())
}

// LookupStashed returns the stashed snapshot of a recently removed identity.
func (c *Coordinator) LookupStashed(identity string) (StashEntry, bool) {
	return c.stash.Lookup(identity)
}

// StashEntries returns the stash, oldest removal first.
func (c *Coordinator) StashEntries() []StashEntry {
	return c.stash.Entries()
}

func (c *Coordinator) dispatch(j job) {
	if c.artifacts == nil {
		return
	}

	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		c.run(context.Background(), j)
		return
	}

	switch j.kind {
	case jobEvict:
		if _, queued := c.evicting[j.from]; queued {
			c.mu.Unlock()
			c.metrics.ObserveEviction("coalesced")
			return
		}
		c.evicting[j.from] = struct{}{}
	case jobMigrate:
		// Later evictions of either side must run after the move.
		delete(c.evicting, j.from)
		delete(c.evicting, j.to)
	}
	c.pending = append(c.pending, j)
	backlog := len(c.pending)
	c.mu.Unlock()

	if backlog > c.cfg.QueueSize {
		c.metrics.ObserveQueueOverflow()
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// take hands the queued operations to the worker in dispatch order.
func (c *Coordinator) take() []job {
	c.mu.Lock()
	defer c.mu.Unlock()
	jobs := c.pending
	c.pending = nil
	c.evicting = make(map[string]struct{})
	return jobs
}

func (c *Coordinator) work(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-c.wake:
		case <-c.quit:
			for _, j := range c.take() {
				c.run(ctx, j)
			}
			return
		}
		for jobs := c.take(); len(jobs) > 0; jobs = c.take() {
			for _, j := range jobs {
				c.run(ctx, j)
			}
		}
	}
}

func (c *Coordinator) run(ctx context.Context, j job) {
	var (
		err    error
		result string
	)
	switch j.kind {
	case jobEvict:
		err = c.artifacts.Evict(ctx, j.from)
		result = "evicted"
	case jobMigrate:
		err = c.artifacts.Migrate(ctx, j.from, j.to)
		result = "migrated"
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrMissing):
		result = "missing"
	default:
		result = "failed"
		c.logger.Debug("Artifact operation failed",
			zap.String("identity", j.from),
			zap.String("reason", j.reason),
			zap.Error(err),
		)
	}
	c.metrics.ObserveEviction(result)
}
