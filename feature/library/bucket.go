package library

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"photo-library/core/record"
	"photo-library/core/storage"
	"photo-library/core/utils"
	"photo-library/feature/library/models"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// User metadata keys read from photo objects.
const (
	metaTakenAt  = "Taken-At"
	metaFavorite = "Favorite"
	metaRating   = "Rating"
)

// BucketSource lists photos kept in an object storage bucket. Listing order
// is lexical by key, so the source is unsorted.
type BucketSource struct {
	client  storage.Client
	bucket  string
	prefix  string
	exclude string
	exts    map[string]struct{}
	logger  *zap.Logger

	mu      sync.Mutex
	objects <-chan minio.ObjectInfo
	cancel  context.CancelFunc
	done    bool
}

// NewBucketSource lists bucket under prefix. Keys under exclude (the
// artifact cache prefix) are skipped.
func NewBucketSource(client storage.Client, bucket, prefix, exclude string, extensions []string, logger *zap.Logger) *BucketSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &BucketSource{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		exclude: exclude,
		exts:    exts,
		logger:  logger,
	}
}

func (b *BucketSource) Name() string { return SourceBucket }
func (b *BucketSource) Sorted() bool { return false }

func (b *BucketSource) HasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.done
}

func (b *BucketSource) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.objects = nil
	b.cancel = nil
	b.done = false
}

func (b *BucketSource) FetchNext(ctx context.Context, limit int) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return nil, nil
	}
	if b.objects == nil {
		listCtx, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		b.objects = b.client.ListObjects(listCtx, b.bucket, minio.ListObjectsOptions{
			Prefix:       b.prefix,
			Recursive:    true,
			WithMetadata: true,
		})
	}
	objects := b.objects
	b.mu.Unlock()

	var page []record.Record
	for len(page) < limit {
		select {
		case obj, ok := <-objects:
			if !ok {
				// A canceled listing closes the channel early.
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				b.finish(objects)
				return page, nil
			}
			if obj.Err != nil {
				b.finish(objects)
				return nil, fmt.Errorf("failed to list bucket %s: %w", b.bucket, obj.Err)
			}
			if rec, ok := b.toRecord(obj); ok {
				page = append(page, rec)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return page, nil
}

// finish marks the source exhausted unless a Reset replaced objects meanwhile.
func (b *BucketSource) finish(objects <-chan minio.ObjectInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects != objects {
		return
	}
	b.done = true
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *BucketSource) toRecord(obj minio.ObjectInfo) (record.Record, bool) {
	if strings.HasSuffix(obj.Key, "/") {
		return record.Record{}, false
	}
	if b.exclude != "" && strings.HasPrefix(obj.Key, b.exclude) {
		return record.Record{}, false
	}
	if len(b.exts) > 0 {
		if _, ok := b.exts[strings.ToLower(path.Ext(obj.Key))]; !ok {
			return record.Record{}, false
		}
	}

	photo := models.Photo{
		Path:    record.NormalizeIdentity(strings.TrimPrefix(obj.Key, b.prefix)),
		TakenAt: obj.LastModified.UTC(),
		ModTime: obj.LastModified.UTC(),
		Size:    obj.Size,
	}
	if v := metadata(obj, metaTakenAt); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			photo.TakenAt = t.UTC()
		} else {
			b.logger.Debug("Ignoring malformed taken-at metadata", zap.String("key", obj.Key), zap.String("value", v))
		}
	}
	photo.Favorite = utils.ToBool(metadata(obj, metaFavorite))
	photo.Rating = utils.ToInt(metadata(obj, metaRating))

	rec := photo.Record()
	rec.SourceTag = SourceBucket
	return rec, true
}

// metadata reads a user metadata value, with or without the amz prefix.
func metadata(obj minio.ObjectInfo, key string) string {
	if v, ok := obj.UserMetadata[key]; ok {
		return v
	}
	if v, ok := obj.UserMetadata["X-Amz-Meta-"+key]; ok {
		return v
	}
	return ""
}
