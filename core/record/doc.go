// Package record holds the types shared by every stage of the streaming engine.
//
// A Record is one photo-library entry as seen by the engine: a stable identity
// (the normalized path relative to the library root), a timestamp used for
// presentation order, the tag of the producer that emitted it and an opaque
// payload owned by the feature layer.
//
// # Ordering
//
// Records are presented newest first. Two records with the same timestamp are
// ordered by identity ascending so the order is total and reproducible:
//
//	record.Less(a, b) // a.Timestamp after b.Timestamp, or equal and a.Identity < b.Identity
//
// # Sequence
//
// Sequence is the materialized, ordered and deduplicated view exposed to the
// consumer. It keeps an identity to index lookup that is rebuilt after every
// structural mutation. A Sequence is not safe for concurrent use; the stream
// apply loop is its only writer.
package record
