// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind a narrow interface. The photo library
// uses it twice: as a record source that lists photos kept in a bucket, and
// as the backend of the derived artifact cache (rendered thumbnails) that
// the cache coordinator evicts and migrates.
//
// # Client Interface
//
// The Client interface abstracts the underlying storage provider, making it easier
// to mock storage interactions for unit testing (as seen in core/storage/mocks).
//
// # Operations
//
//   - BucketExists / MakeBucket: bucket bootstrap (see EnsureBucket).
//   - PutObject / GetObject / StatObject: artifact content and metadata.
//   - ListObjects: bucket scanning (supports prefix/recursive).
//   - CopyObject / RemoveObject: artifact migration and eviction.
//
// # Usage
//
//	client, err := storage.NewClient(config)
//	err = storage.EnsureBucket(ctx, client, config.Bucket)
package storage
