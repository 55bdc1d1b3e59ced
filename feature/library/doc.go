// Package library implements the photo library feature.
//
// The library is a single ordered view of every photo, newest first, built by
// streaming three kinds of sources through core/stream:
//  1. Store (database): the photo catalogue, paged with a keyset cursor.
//  2. Scan (file system): a walk of the library root.
//  3. Bucket (S3/MinIO): photos kept as objects under a prefix.
//
// A full load replaces the view batch by batch. A refresh fetches a fresh
// snapshot from new source instances and patches the view with the
// difference, keeping thumbnails and the recently removed stash in sync
// through core/cache.
//
// # Components
//
//   - Service: Owns the stream loop, the cache coordinator and status tracking.
//   - Handler: Exposes HTTP endpoints for browsing and driving the library.
//   - Watcher: Triggers debounced refreshes on file system changes.
//   - Loader: Registers the feature with the application.
//
// # HTTP Endpoints
//
//   - GET /library : A window of the library (offset, limit).
//   - GET /library/status : Engine and load status.
//   - GET /library/photo/* : A single photo.
//   - GET /library/stash : Recently removed photos.
//   - GET /library/stash/* : The last known state of a removed photo.
//   - POST /library/load : Start a full load.
//   - POST /library/refresh : Request an incremental refresh.
//   - POST /library/move : Rename a photo.
package library
