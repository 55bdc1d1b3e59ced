// Package stream implements the asset streaming engine: it merges pages from
// several record sources into one ordered, deduplicated stream, throttles
// delivery to a consumer in bounded batches and keeps the consumer's view in
// sync with the store through incremental patches.
//
// # Architecture
//
// The engine consists of three parts:
//
// 1. MergeEngine: a k-way merge over one queue per source. Pre-sorted sources
// (the store cursor) use a FIFO, unsorted sources (filesystem scanners) use an
// ordered heap. Identities are deduplicated across all sources.
//
// 2. Pipeline: the staging buffer and epoch controller. It deduplicates
// against the committed view and the staged records, decides when a batch is
// due (size threshold or debounce deadline) and holds the finish outcome back
// until every staged record has been delivered.
//
// 3. Loop: the single apply point. One goroutine owns the materialized
// sequence, the pipeline, the merge engine and the cache hooks. Source workers
// and snapshot fetches only talk to it through a bounded inbox channel; the
// loop discards every message stamped with an epoch other than the current
// one.
//
// # Epochs
//
// Every StartLoad increments the epoch. A load that is superseded while still
// running is canceled cooperatively: its workers stop at the next page
// boundary and anything they still deliver is dropped. Once the superseded
// load reports completion the pending load starts automatically.
//
// # Usage
//
//	loop := stream.NewLoop(cfg, stream.Options{
//	    Sources:   []stream.Source{cursor, scanner},
//	    Consumer:  consumer,
//	    Hooks:     coordinator,
//	    Snapshots: snapshots,
//	    Logger:    logger,
//	})
//	loop.Start(ctx)
//	defer loop.Stop()
//
//	epoch, err := loop.StartLoad(ctx)
package stream
