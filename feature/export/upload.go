package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"payout-reconciler/core/storage"
	"payout-reconciler/core/store"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Prefix is the object prefix of uploaded exports.
const Prefix = "exports/"

// ObjectName returns the object key of an export taken at t.
func ObjectName(t time.Time) string {
	return Prefix + "reconciliation-" + t.UTC().Format("20060102T150405Z") + ".csv"
}

// Result describes an uploaded export.
type Result struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
	Rows   int    `json:"rows"`
	Size   int64  `json:"size"`
}

// Uploader writes exports to object storage.
type Uploader struct {
	client storage.Client
	bucket string
	logger *zap.Logger
	now    func() time.Time
}

// NewUploader creates an uploader targeting bucket.
func NewUploader(client storage.Client, bucket string, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{client: client, bucket: bucket, logger: logger, now: time.Now}
}

// Upload streams the CSV export straight into the bucket without buffering
// it in memory.
func (u *Uploader) Upload(ctx context.Context, lister Lister, f store.Filter) (Result, error) {
	name := ObjectName(u.now())
	pr, pw := io.Pipe()

	type written struct {
		rows int
		err  error
	}
	done := make(chan written, 1)
	go func() {
		rows, err := WriteCSV(ctx, pw, lister, f)
		_ = pw.CloseWithError(err)
		done <- written{rows, err}
	}()

	info, err := u.client.PutObject(ctx, u.bucket, name, pr, -1, minio.PutObjectOptions{ContentType: "text/csv"})
	// Unblocks the writer if the upload stopped reading early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	w := <-done

	// A closed pipe only means the upload gave up first.
	if w.err != nil && !errors.Is(w.err, io.ErrClosedPipe) {
		return Result{}, fmt.Errorf("export %s: %w", name, w.err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", name, err)
	}

	u.logger.Info("Export uploaded",
		zap.String("bucket", u.bucket),
		zap.String("object", name),
		zap.Int("rows", w.rows),
		zap.Int64("size", info.Size),
	)
	return Result{Bucket: u.bucket, Object: name, Rows: w.rows, Size: info.Size}, nil
}

// Object is an export already present in the bucket.
type Object struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List returns the uploaded exports, oldest first.
func (u *Uploader) List(ctx context.Context) ([]Object, error) {
	var out []Object
	for obj := range u.client.ListObjects(ctx, u.bucket, minio.ListObjectsOptions{Prefix: Prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list exports: %w", obj.Err)
		}
		out = append(out, Object{Name: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}
