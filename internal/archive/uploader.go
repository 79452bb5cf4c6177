// Package archive stores generated report artifacts in S3-compatible object
// storage. When the archive is not configured (empty bucket), the
// NoopUploader is used and every upload is skipped, keeping the system in
// mail-only mode.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/recap/internal/config"
)

// Uploader archives report artifacts after they have been mailed.
type Uploader interface {
	// Upload stores one artifact under the given job's prefix.
	Upload(ctx context.Context, job, filename string, data []byte, contentType string) error
}

// s3Client defines the minimal minio.Client operations used by S3Uploader.
// This interface enables testing with mock implementations.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.client.PutObject(ctx, bucket, objectName, reader, size, opts)
}

// S3Uploader archives artifacts in S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
	now    func() time.Time
}

// Upload stores the artifact under {job}/{yyyy}/{mm}/{filename}.
func (u *S3Uploader) Upload(ctx context.Context, job, filename string, data []byte, contentType string) error {
	key := objectKey(job, filename, u.now())
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

// NoopUploader is used when the archive is not configured.
type NoopUploader struct{}

// Upload is a no-op when the archive is not configured.
func (u *NoopUploader) Upload(ctx context.Context, job, filename string, data []byte, contentType string) error {
	return nil
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.ArchiveConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
		now:    time.Now,
	}, nil
}

// objectKey returns the archive key for an artifact.
// Convention: {job}/{yyyy}/{mm}/{filename}
func objectKey(job, filename string, now time.Time) string {
	return path.Join(job, now.UTC().Format("2006"), now.UTC().Format("01"), filename)
}
