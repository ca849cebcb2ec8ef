// Package storage wraps the MinIO client used to publish reconciliation
// exports to S3-compatible object storage.
//
// Client is the narrow surface the exporter and the integrity checks need;
// core/storage/mocks holds a testify mock of it. EnsureBucket checks and
// optionally creates the export bucket.
package storage
