package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"photo-library/core/storage"

	"github.com/minio/minio-go/v7"
)

// StorageArtifacts keeps artifacts as objects in a bucket.
type StorageArtifacts struct {
	client storage.Client
	bucket string
	prefix string
}

// NewStorageArtifacts creates an artifact cache on top of an object store.
func NewStorageArtifacts(client storage.Client, bucket, prefix string) *StorageArtifacts {
	return &StorageArtifacts{client: client, bucket: bucket, prefix: prefix}
}

func (s *StorageArtifacts) key(identity string) string {
	return s.prefix + identity
}

// Put uploads an artifact.
func (s *StorageArtifacts) Put(ctx context.Context, identity string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(identity), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact %s: %w", identity, err)
	}
	return nil
}

// Get downloads an artifact.
func (s *StorageArtifacts) Get(ctx context.Context, identity string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(identity), minio.GetObjectOptions{})
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", identity, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", identity, err)
	}
	return data, nil
}

func (s *StorageArtifacts) Evict(ctx context.Context, identity string) error {
	// RemoveObject succeeds for absent keys, so stat first to report misses.
	if _, err := s.client.StatObject(ctx, s.bucket, s.key(identity), minio.StatObjectOptions{}); err != nil {
		if storage.IsNotFound(err) {
			return ErrMissing
		}
		return fmt.Errorf("failed to stat artifact %s: %w", identity, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(identity), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove artifact %s: %w", identity, err)
	}
	return nil
}

func (s *StorageArtifacts) Migrate(ctx context.Context, oldIdentity, newIdentity string) error {
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: s.key(oldIdentity)}
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: s.key(newIdentity)}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		if storage.IsNotFound(err) {
			return ErrMissing
		}
		return fmt.Errorf("failed to copy artifact %s: %w", oldIdentity, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(oldIdentity), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove migrated artifact %s: %w", oldIdentity, err)
	}
	return nil
}
