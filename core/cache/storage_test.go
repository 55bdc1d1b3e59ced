package cache

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"photo-library/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var notFound = minio.ErrorResponse{Code: "NoSuchKey"}

func TestStorageArtifacts_Evict(t *testing.T) {
	ctx := context.Background()

	t.Run("Present", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("StatObject", ctx, "bucket", "thumbs/a.jpg", minio.StatObjectOptions{}).Return(minio.ObjectInfo{Key: "thumbs/a.jpg"}, nil)
		client.On("RemoveObject", ctx, "bucket", "thumbs/a.jpg", minio.RemoveObjectOptions{}).Return(nil)

		s := NewStorageArtifacts(client, "bucket", "thumbs/")
		assert.NoError(t, s.Evict(ctx, "a.jpg"))
		client.AssertExpectations(t)
	})

	t.Run("Missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("StatObject", ctx, "bucket", "thumbs/a.jpg", minio.StatObjectOptions{}).Return(minio.ObjectInfo{}, notFound)

		s := NewStorageArtifacts(client, "bucket", "thumbs/")
		assert.ErrorIs(t, s.Evict(ctx, "a.jpg"), ErrMissing)
		client.AssertNotCalled(t, "RemoveObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Failure", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("StatObject", ctx, "bucket", "thumbs/a.jpg", minio.StatObjectOptions{}).Return(minio.ObjectInfo{}, errors.New("timeout"))

		s := NewStorageArtifacts(client, "bucket", "thumbs/")
		err := s.Evict(ctx, "a.jpg")
		assert.ErrorContains(t, err, "timeout")
		assert.NotErrorIs(t, err, ErrMissing)
	})
}

func TestStorageArtifacts_Migrate(t *testing.T) {
	ctx := context.Background()
	src := minio.CopySrcOptions{Bucket: "bucket", Object: "thumbs/old.jpg"}
	dst := minio.CopyDestOptions{Bucket: "bucket", Object: "thumbs/new.jpg"}

	t.Run("Copies", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("CopyObject", ctx, dst, src).Return(minio.UploadInfo{}, nil)
		client.On("RemoveObject", ctx, "bucket", "thumbs/old.jpg", minio.RemoveObjectOptions{}).Return(nil)

		s := NewStorageArtifacts(client, "bucket", "thumbs/")
		assert.NoError(t, s.Migrate(ctx, "old.jpg", "new.jpg"))
		client.AssertExpectations(t)
	})

	t.Run("Missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("CopyObject", ctx, dst, src).Return(minio.UploadInfo{}, notFound)

		s := NewStorageArtifacts(client, "bucket", "thumbs/")
		assert.ErrorIs(t, s.Migrate(ctx, "old.jpg", "new.jpg"), ErrMissing)
	})
}

func TestStorageArtifacts_PutGet(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("PutObject", ctx, "bucket", "thumbs/a.jpg", mock.Anything, int64(5), minio.PutObjectOptions{ContentType: "image/jpeg"}).
		Return(minio.UploadInfo{}, nil)
	client.On("GetObject", ctx, "bucket", "thumbs/a.jpg", minio.GetObjectOptions{}).
		Return(io.NopCloser(strings.NewReader("thumb")), nil)
	client.On("GetObject", ctx, "bucket", "thumbs/b.jpg", minio.GetObjectOptions{}).
		Return(nil, notFound)

	s := NewStorageArtifacts(client, "bucket", "thumbs/")
	require.NoError(t, s.Put(ctx, "a.jpg", []byte("thumb"), "image/jpeg"))

	data, err := s.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("thumb"), data)

	_, err = s.Get(ctx, "b.jpg")
	assert.ErrorIs(t, err, ErrMissing)
}
