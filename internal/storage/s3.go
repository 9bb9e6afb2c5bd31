package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/moolinks/backend/internal/config"
)

// Uploader is the part of manager.Uploader the store depends on.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3ExportStore uploads bookmark exports to an S3-compatible bucket.
type S3ExportStore struct {
	uploader Uploader
	bucket   string
	prefix   string
	baseURL  string
}

// NewS3ExportStore configures an uploader targeting the provided object store.
func NewS3ExportStore(ctx context.Context, cfg config.ObjectStoreConfig) (*S3ExportStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return NewExportStore(uploader, cfg), nil
}

// NewExportStore wraps an existing uploader.
func NewExportStore(uploader Uploader, cfg config.ObjectStoreConfig) *S3ExportStore {
	return &S3ExportStore{
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}
}

// ExportKey names the object an export of userID taken at ts is stored under,
// relative to the configured prefix.
func ExportKey(userID string, ts time.Time) string {
	return path.Join(userID, "bookmarks-"+ts.UTC().Format("20060102-150405")+".html")
}

// Save uploads r under name and returns its public location, or the object
// key when no public base URL is configured.
func (s *S3ExportStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", fmt.Errorf("s3 storage: empty key")
	}
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               r,
		ContentType:        aws.String("text/html; charset=utf-8"),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", path.Base(key))),
	})
	if err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	if s.baseURL == "" {
		return key, nil
	}

	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}
