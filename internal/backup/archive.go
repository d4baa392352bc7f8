package backup

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/quantlake/histkeeper/internal/common"
)

// MinIOConfig holds the connection settings for an S3-compatible
// snapshot bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinIOUploader pushes finished snapshot files to an S3-compatible
// bucket. It implements service.SnapshotUploader.
type MinIOUploader struct {
	client *minio.Client
	bucket string
}

// NewMinIOUploader connects to the object store and ensures the
// snapshot bucket exists.
func NewMinIOUploader(ctx context.Context, cfg MinIOConfig) (*MinIOUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinIOUploader{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores the local snapshot under key and returns the object URL.
func (u *MinIOUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	contentType := "application/octet-stream"
	switch filepath.Ext(localPath) {
	case ".json":
		contentType = "application/json"
	case ".gz":
		contentType = "application/gzip"
	}

	err := common.WithRetry(ctx, func() error {
		_, putErr := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
			ContentType: contentType,
		})
		return putErr
	}, common.RetryOptions{MaxAttempts: 3})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot %s: %w", key, err)
	}

	return fmt.Sprintf("%s/%s/%s", u.client.EndpointURL(), u.bucket, key), nil
}
