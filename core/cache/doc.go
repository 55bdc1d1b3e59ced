// Package cache keeps identity-keyed auxiliary state consistent with the
// materialized photo sequence.
//
// The Coordinator is installed as the reconcile hooks of the stream loop.
// Every structural operation applied by a refresh reaches it:
//
//   - Removed: the derived artifact (rendered thumbnail) is evicted and the
//     last known record is stashed for undo-style lookups.
//   - Inserted: a stale artifact from a prior lifetime is evicted and the
//     identity leaves the stash.
//   - Changed: the artifact is evicted only when a sensitive field changed
//     (by default mtime and size). Flags such as favorite or rating never
//     invalidate it.
//
// Artifacts live behind the ArtifactCache interface. Three backends are
// provided: in-process memory, object storage (MinIO/S3) and Redis. Missing
// artifacts are never an error.
package cache
