package storage_test

import (
	"context"
	"errors"
	"testing"

	"payout-reconciler/core/storage"
	"payout-reconciler/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestNewClient(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  "localhost:9000",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			Bucket:    "test-bucket",
			Region:    "us-east-1",
		})
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("EndpointWithScheme", func(t *testing.T) {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  "https://s3.amazonaws.com",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			UseSSL:    true,
		})
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("Exists", func(t *testing.T) {
		c := new(mocks.Client)
		c.On("BucketExists", ctx, "exports").Return(true, nil)

		ok, err := storage.EnsureBucket(ctx, c, "exports", "", true)
		assert.NoError(t, err)
		assert.True(t, ok)
		c.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("MissingWithoutCreate", func(t *testing.T) {
		c := new(mocks.Client)
		c.On("BucketExists", ctx, "exports").Return(false, nil)

		ok, err := storage.EnsureBucket(ctx, c, "exports", "", false)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Creates", func(t *testing.T) {
		c := new(mocks.Client)
		c.On("BucketExists", ctx, "exports").Return(false, nil)
		c.On("MakeBucket", ctx, "exports", minio.MakeBucketOptions{Region: "eu-west-1"}).Return(nil)

		ok, err := storage.EnsureBucket(ctx, c, "exports", "eu-west-1", true)
		assert.NoError(t, err)
		assert.True(t, ok)
		c.AssertExpectations(t)
	})

	t.Run("CheckFails", func(t *testing.T) {
		c := new(mocks.Client)
		c.On("BucketExists", ctx, "exports").Return(false, errors.New("forbidden"))

		_, err := storage.EnsureBucket(ctx, c, "exports", "", true)
		assert.ErrorContains(t, err, "forbidden")
	})
}
