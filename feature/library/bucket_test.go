package library

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"photo-library/core/record"
	"photo-library/core/storage/mocks"
	"photo-library/feature/library/models"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func listing(objects ...minio.ObjectInfo) func(context.Context, string, minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return func(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
		ch := make(chan minio.ObjectInfo, len(objects))
		for _, o := range objects {
			ch <- o
		}
		close(ch)
		return ch
	}
}

func TestBucketSource(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "library", mock.MatchedBy(func(opts minio.ListObjectsOptions) bool {
		return opts.Prefix == "photos/" && opts.Recursive && opts.WithMetadata
	})).Return(listing(
		minio.ObjectInfo{
			Key:          "photos/2024/beach.jpg",
			Size:         2048,
			LastModified: day,
			UserMetadata: minio.StringMap{
				"X-Amz-Meta-Taken-At": "2023-07-01T10:00:00+02:00",
				"Favorite":            "true",
				"Rating":              "5",
			},
		},
		minio.ObjectInfo{Key: "photos/city.png", Size: 10, LastModified: day.Add(-time.Hour)},
		minio.ObjectInfo{Key: "photos/2024/", Size: 0},
		minio.ObjectInfo{Key: "photos/readme.txt", Size: 5},
		minio.ObjectInfo{Key: "photos/thumbnails/beach.jpg", Size: 5},
	))

	src := NewBucketSource(client, "library", "photos/", "photos/thumbnails/", []string{".jpg", ".png"}, nil)
	assert.Equal(t, SourceBucket, src.Name())
	assert.False(t, src.Sorted())

	recs := drain(t, src, 10)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Identity < recs[j].Identity })
	require.Equal(t, []string{"2024/beach.jpg", "city.png"}, record.Identities(recs))

	beach, ok := models.FromRecord(recs[0])
	require.True(t, ok)
	assert.True(t, beach.TakenAt.Equal(time.Date(2023, 7, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, beach.ModTime.Equal(day))
	assert.True(t, beach.Favorite)
	assert.Equal(t, 5, beach.Rating)
	assert.Equal(t, int64(2048), beach.Size)
	assert.Equal(t, SourceBucket, recs[0].SourceTag)

	city, _ := models.FromRecord(recs[1])
	assert.True(t, city.TakenAt.Equal(day.Add(-time.Hour)))
	assert.False(t, city.Favorite)

	client.AssertExpectations(t)
}

func TestBucketSourceListError(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "library", mock.Anything).Return(listing(
		minio.ObjectInfo{Key: "photos/a.jpg", LastModified: day},
		minio.ObjectInfo{Err: errors.New("access denied")},
	))

	src := NewBucketSource(client, "library", "photos/", "", nil, nil)
	_, err := src.FetchNext(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.False(t, src.HasMore())
}

func TestBucketSourcePaging(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "library", mock.Anything).Return(listing(
		minio.ObjectInfo{Key: "photos/a.jpg", LastModified: day},
		minio.ObjectInfo{Key: "photos/b.jpg", LastModified: day},
		minio.ObjectInfo{Key: "photos/c.jpg", LastModified: day},
	))

	src := NewBucketSource(client, "library", "photos/", "", nil, nil)
	page, err := src.FetchNext(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.True(t, src.HasMore())

	page, err = src.FetchNext(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.False(t, src.HasMore())

	// Reset lists again from the start.
	src.Reset()
	assert.Len(t, drain(t, src, 10), 3)
	client.AssertNumberOfCalls(t, "ListObjects", 2)
}
