package stream

import (
	"time"

	"photo-library/core/record"

	"go.uber.org/zap"
)

// FinishResult tells the apply loop what a completion means.
type FinishResult struct {
	// Propagate is set when the consumer must be told the load finished.
	Propagate bool
	// Outcome is the outcome to propagate.
	Outcome Outcome
	// Restart is set when a superseded load finished and the pending load
	// for the current epoch must begin now.
	Restart bool
	// Clear is set when the load finishes without having delivered a batch.
	// The consumer still has to replace its view with the empty sequence.
	Clear bool
}

// Pipeline is the staging buffer and epoch controller between the merge
// engine and the consumer. It holds no goroutines or timers: the owner asks
// for the next deadline, and calls Flush when it is due. It is not safe for
// concurrent use.
type Pipeline struct {
	cfg       Config
	logger    *zap.Logger
	committed func(identity string) bool

	epoch    Epoch
	loading  bool
	first    bool
	restart  bool
	flushing bool

	staging  []record.Record
	pending  map[string]struct{}
	deadline time.Time
	finish   *FinishEvent
}

// NewPipeline creates a pipeline. committed reports whether an identity is
// already part of the materialized sequence.
func NewPipeline(cfg Config, committed func(identity string) bool, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if committed == nil {
		committed = func(string) bool { return false }
	}
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		committed: committed,
		pending:   make(map[string]struct{}),
	}
}

// Epoch returns the current epoch.
func (p *Pipeline) Epoch() Epoch {
	return p.epoch
}

// Loading reports whether a load is active or waiting to restart.
func (p *Pipeline) Loading() bool {
	return p.loading
}

// RestartPending reports whether the current epoch waits for a superseded load.
func (p *Pipeline) RestartPending() bool {
	return p.restart
}

// Staged returns the number of records waiting to be flushed.
func (p *Pipeline) Staged() int {
	return len(p.staging)
}

// Pending reports whether identity is staged but not committed.
func (p *Pipeline) Pending(identity string) bool {
	_, ok := p.pending[identity]
	return ok
}

// StartLoad opens a new epoch. begin is false when a previous load is still
// running; the new load then starts once Finish observes the old one. A load
// whose finish was already recorded and is only draining is dropped at once.
func (p *Pipeline) StartLoad() (epoch Epoch, begin bool) {
	p.epoch++
	if p.loading && p.finish == nil {
		p.restart = true
		p.dropStaged()
		return p.epoch, false
	}
	p.begin()
	return p.epoch, true
}

func (p *Pipeline) begin() {
	p.loading = true
	p.first = true
	p.restart = false
	p.finish = nil
	p.dropStaged()
}

// dropStaged discards records staged under a superseded epoch.
func (p *Pipeline) dropStaged() {
	p.staging = nil
	p.pending = make(map[string]struct{})
	p.deadline = time.Time{}
}

// Add stages records produced under epoch. Records from another epoch, records
// without identity and records already committed or staged are dropped.
// It returns the number of records staged.
func (p *Pipeline) Add(epoch Epoch, recs []record.Record, now time.Time) int {
	if epoch != p.epoch || !p.loading || p.restart {
		return 0
	}

	admitted := 0
	for _, rec := range recs {
		if !rec.Valid() {
			p.logger.Warn("Skipping record without identity", zap.String("source", rec.SourceTag))
			continue
		}
		if _, staged := p.pending[rec.Identity]; staged {
			continue
		}
		if p.committed(rec.Identity) {
			continue
		}
		p.pending[rec.Identity] = struct{}{}
		p.staging = append(p.staging, rec)
		admitted++
	}

	if admitted > 0 && p.deadline.IsZero() {
		p.deadline = now.Add(p.cfg.FlushInterval)
	}
	return admitted
}

// NextDeadline returns when the next flush is due.
func (p *Pipeline) NextDeadline() (time.Time, bool) {
	if p.deadline.IsZero() || len(p.staging) == 0 || p.flushing {
		return time.Time{}, false
	}
	return p.deadline, true
}

// Due reports whether a flush should run now.
func (p *Pipeline) Due(now time.Time) bool {
	if p.flushing || len(p.staging) == 0 {
		return false
	}
	if len(p.staging) >= p.cfg.FlushThreshold {
		return true
	}
	return !p.deadline.IsZero() && !now.Before(p.deadline)
}

// Flush takes the next batch off the staging list. It returns false while a
// previous batch is still uncommitted or nothing is staged. Every batch must
// be handed back through Commit.
func (p *Pipeline) Flush() (Batch, bool) {
	if p.flushing || len(p.staging) == 0 {
		return Batch{}, false
	}
	p.flushing = true

	n := len(p.staging)
	if n > p.cfg.BatchSize {
		n = p.cfg.BatchSize
	}
	batch := Batch{
		Epoch:   p.epoch,
		Records: append([]record.Record(nil), p.staging[:n]...),
		First:   p.first,
	}
	p.staging = append([]record.Record(nil), p.staging[n:]...)
	p.first = false
	p.deadline = time.Time{}
	return batch, true
}

// Commit releases the flush guard after batch reached the sequence. When the
// buffer drained and a finish is pending, the finish is returned for
// propagation.
func (p *Pipeline) Commit(batch Batch, now time.Time) FinishResult {
	p.flushing = false
	for _, rec := range batch.Records {
		delete(p.pending, rec.Identity)
	}
	if batch.Epoch != p.epoch {
		return FinishResult{}
	}

	if len(p.staging) > 0 {
		interval := p.cfg.FlushInterval
		if p.finish != nil {
			interval = p.cfg.DrainInterval
		}
		p.deadline = now.Add(interval)
		return FinishResult{}
	}

	if p.finish != nil {
		outcome := p.finish.Outcome
		p.finish = nil
		p.loading = false
		return FinishResult{Propagate: true, Outcome: outcome}
	}
	return FinishResult{}
}

// Finish records the completion of the load started under epoch.
func (p *Pipeline) Finish(epoch Epoch, outcome Outcome, now time.Time) FinishResult {
	if epoch != p.epoch {
		if p.restart && p.loading {
			p.begin()
			return FinishResult{Restart: true}
		}
		return FinishResult{}
	}
	if !p.loading || p.restart || p.finish != nil {
		return FinishResult{}
	}

	if len(p.staging) == 0 && !p.flushing {
		p.loading = false
		empty := p.first
		p.first = false
		return FinishResult{Propagate: true, Outcome: outcome, Clear: empty}
	}

	p.finish = &FinishEvent{Outcome: outcome, Epoch: epoch}
	if len(p.staging) > 0 {
		p.deadline = now.Add(p.cfg.DrainInterval)
	}
	return FinishResult{}
}

// Abort drops all state of the current load without propagating anything.
func (p *Pipeline) Abort() {
	p.loading = false
	p.restart = false
	p.finish = nil
	p.flushing = false
	p.dropStaged()
}
