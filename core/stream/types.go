package stream

import (
	"context"
	"errors"

	"photo-library/core/reconcile"
	"photo-library/core/record"
)

// ErrClosed is returned by Loop methods after Stop.
var ErrClosed = errors.New("stream loop closed")

// ErrNoSnapshots is returned by Refresh when the loop has no snapshot loader.
var ErrNoSnapshots = errors.New("stream loop has no snapshot loader")

// ErrSuperseded is returned to refresh waiters when a load started before
// their snapshot could be applied.
var ErrSuperseded = errors.New("refresh superseded by a load")

// Epoch is the generation counter stamped on every load.
type Epoch uint64

// Source produces pages of records on demand. FetchNext may block on I/O;
// an empty page means the source is exhausted.
type Source interface {
	// Name identifies the source; it becomes the SourceTag of its records.
	Name() string

	// Sorted reports whether pages arrive ordered by record.Less and each page
	// continues where the previous one ended.
	Sorted() bool

	// FetchNext returns up to limit records.
	FetchNext(ctx context.Context, limit int) ([]record.Record, error)

	// HasMore reports whether another FetchNext may return records.
	HasMore() bool

	// Reset rewinds the source to its first page.
	Reset()
}

// Counter is implemented by sources that can report their total size up front.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Outcome is the result of a load.
type Outcome int

const (
	// OutcomeSuccess means every source was exhausted without error.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means a source failed; the error was reported via OnError.
	OutcomeFailure
	// OutcomeCanceled means the load was superseded or the loop stopped.
	OutcomeCanceled
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// FinishEvent is a completion held back until the staging buffer drains.
type FinishEvent struct {
	Outcome Outcome
	Epoch   Epoch
}

// Batch is a bounded group of records flushed to the consumer.
type Batch struct {
	Epoch   Epoch
	Records []record.Record
	// First marks the first batch of a load; the consumer replaces its view.
	First bool
}

// Consumer receives the engine's output. Every method is called from the
// loop goroutine and must not block. A load that produces no records still
// delivers one empty batch with first set before it finishes.
type Consumer interface {
	OnBatch(records []record.Record, first bool)
	OnProgress(current, total int)
	OnFinished(success bool)
	OnError(message string)
	OnPatch(patch reconcile.Patch)
}

// ConsumerFuncs adapts optional callbacks to Consumer. Nil fields are ignored.
type ConsumerFuncs struct {
	Batch    func(records []record.Record, first bool)
	Progress func(current, total int)
	Finished func(success bool)
	Error    func(message string)
	Patch    func(patch reconcile.Patch)
}

func (c ConsumerFuncs) OnBatch(records []record.Record, first bool) {
	if c.Batch != nil {
		c.Batch(records, first)
	}
}

func (c ConsumerFuncs) OnProgress(current, total int) {
	if c.Progress != nil {
		c.Progress(current, total)
	}
}

func (c ConsumerFuncs) OnFinished(success bool) {
	if c.Finished != nil {
		c.Finished(success)
	}
}

func (c ConsumerFuncs) OnError(message string) {
	if c.Error != nil {
		c.Error(message)
	}
}

func (c ConsumerFuncs) OnPatch(patch reconcile.Patch) {
	if c.Patch != nil {
		c.Patch(patch)
	}
}
