package checks

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"payout-reconciler/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// BucketReport is the result of the export bucket check.
type BucketReport struct {
	Bucket        string `json:"bucket"`
	Exists        bool   `json:"exists"`
	PrefixPresent bool   `json:"prefix_present"`
	Fixed         bool   `json:"fixed"`
}

// Healthy reports whether exports can be uploaded without a fix.
func (r *BucketReport) Healthy() bool {
	return r.Exists && r.PrefixPresent
}

// CheckBucket verifies that bucket exists and holds prefix. With fix set a
// missing bucket is created and the prefix gets a folder marker.
func CheckBucket(ctx context.Context, client storage.Client, bucket, region, prefix string, fix bool, logger *zap.Logger) (*BucketReport, error) {
	if client == nil {
		return nil, errors.New("storage client is not configured")
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	report := &BucketReport{Bucket: bucket}
	exists, err := storage.EnsureBucket(ctx, client, bucket, region, fix)
	if err != nil {
		return nil, err
	}
	if !exists {
		return report, nil
	}
	report.Exists = true

	for range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		report.PrefixPresent = true
		break
	}
	if report.PrefixPresent || !fix {
		return report, nil
	}

	if _, err := client.PutObject(ctx, bucket, prefix, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		logger.Error("Failed to create export folder", zap.String("bucket", bucket), zap.Error(err))
		return report, err
	}
	logger.Info("Created export folder", zap.String("bucket", bucket), zap.String("prefix", prefix))
	report.PrefixPresent = true
	report.Fixed = true
	return report, nil
}
