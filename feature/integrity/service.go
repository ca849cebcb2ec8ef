package integrity

import (
	"context"

	"payout-reconciler/core/storage"
	"payout-reconciler/core/store"
	"payout-reconciler/feature/export"
	"payout-reconciler/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Report combines every check.
type Report struct {
	Healthy bool                 `json:"healthy"`
	Schema  *checks.SchemaReport `json:"schema,omitempty"`
	Bucket  *checks.BucketReport `json:"bucket,omitempty"`
	Errors  []string             `json:"errors,omitempty"`
}

// Service handles integrity checks.
type Service struct {
	db     *gorm.DB
	client storage.Client
	bucket string
	region string
	logger *zap.Logger
}

// NewService creates a new integrity service. client may be nil when
// exports are disabled; the bucket check is then skipped.
func NewService(db *gorm.DB, client storage.Client, bucket, region string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     db,
		client: client,
		bucket: bucket,
		region: region,
		logger: logger,
	}
}

// CheckSchema compares the transactions table with the model.
func (s *Service) CheckSchema(ctx context.Context) (*checks.SchemaReport, error) {
	return checks.CheckSchema(ctx, s.db, &store.Record{})
}

// FixSchema migrates the transactions table.
func (s *Service) FixSchema(ctx context.Context) error {
	return store.New(s.db).Migrate(ctx)
}

// BucketEnabled reports whether a storage client is configured.
func (s *Service) BucketEnabled() bool {
	return s.client != nil
}

// CheckBucket verifies the export bucket, creating what is missing when
// fix is set.
func (s *Service) CheckBucket(ctx context.Context, fix bool) (*checks.BucketReport, error) {
	return checks.CheckBucket(ctx, s.client, s.bucket, s.region, export.Prefix, fix, s.logger)
}

// Run executes every check. Check errors are collected in the report.
func (s *Service) Run(ctx context.Context, fix bool) Report {
	report := Report{Healthy: true}

	schemaReport, err := s.CheckSchema(ctx)
	if err == nil && !schemaReport.Matched && fix {
		s.logger.Info("Migrating transactions table",
			zap.Strings("missing", schemaReport.MissingColumns))
		if err = s.FixSchema(ctx); err == nil {
			schemaReport, err = s.CheckSchema(ctx)
		}
	}
	if err != nil {
		report.Errors = append(report.Errors, "schema: "+err.Error())
		report.Healthy = false
	} else {
		report.Schema = schemaReport
		if !schemaReport.Matched {
			report.Healthy = false
		}
	}

	if !s.BucketEnabled() {
		return report
	}
	bucketReport, err := s.CheckBucket(ctx, fix)
	if err != nil {
		report.Errors = append(report.Errors, "bucket: "+err.Error())
		report.Healthy = false
		return report
	}
	report.Bucket = bucketReport
	if !bucketReport.Healthy() {
		report.Healthy = false
	}
	return report
}
