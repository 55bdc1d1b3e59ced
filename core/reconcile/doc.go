// Package reconcile computes and applies minimal patches between the
// materialized sequence and a freshly fetched snapshot of the library.
//
// Replacing the consumer's view wholesale after every re-fetch is expensive
// and visually disruptive, so the reconciler diffs the two ordered lists by
// identity and reports only the structural operations needed:
//
//   - Removed: identities in the current view missing from the snapshot,
//     listed by descending index so each removal leaves later indices valid.
//   - Inserted: identities new in the snapshot, with their snapshot position,
//     listed by ascending index so each insertion leaves earlier ones valid.
//   - Changed: identities in both whose payload differs, replaced in place.
//   - Moved: identities in both whose relative order changed. They appear in
//     Removed and Inserted, and are flagged so cache hooks do not treat them as
//     a real removal.
//
// Applying the patch to the current view always yields exactly the snapshot's
// identity order.
//
// # Reset policy
//
// A patch degenerates to a reset only when the current view is empty. The
// optional ResetRatio turns very large patches into resets as well; it is a
// tuning knob and is disabled by default.
//
// # Snapshots
//
// SnapshotLoader wraps the function that fetches a full snapshot from the
// store. Concurrent refresh requests share one fetch through singleflight and
// a short TTL lets bursts of filesystem events reuse the same result.
//
// # Usage
//
//	patch := reconcile.Diff(seq.Records(), fresh, reconcile.Options{Comparator: cmp})
//	if err := reconcile.Apply(seq, patch, coordinator); err != nil {
//	    return err
//	}
package reconcile
