package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/carvajal-autotech/quiz-service/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioProvider stores question images in an S3 compatible bucket.
type MinioProvider struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

func NewMinioProvider(ctx context.Context, cfg config.StorageConfig) (*MinioProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
	}

	return &MinioProvider{
		client:        client,
		bucket:        cfg.MinioBucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (p *MinioProvider) Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.client.PutObject(ctx, p.bucket, objectPath, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.URL(objectPath), nil
}

func (p *MinioProvider) Delete(ctx context.Context, objectPath string) error {
	return p.client.RemoveObject(ctx, p.bucket, objectPath, minio.RemoveObjectOptions{})
}

func (p *MinioProvider) URL(objectPath string) string {
	return p.publicBaseURL + "/" + p.bucket + "/" + strings.TrimLeft(objectPath, "/")
}
