package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignExpiry = 7 * 24 * time.Hour

// MinioConfig captures the parameters for an S3-compatible backend.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// PublicBaseURL, when set, forms the returned links directly instead
	// of presigning, for buckets with a public read policy.
	PublicBaseURL string
}

// MinioProvider implements the Provider interface using an S3-compatible
// backend (MinIO, AWS S3, etc.). It is safe for concurrent use.
type MinioProvider struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinioProvider creates an S3-compatible storage client. It validates
// connectivity and ensures the bucket exists, creating it if missing.
func NewMinioProvider(ctx context.Context, cfg MinioConfig) (*MinioProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := cli.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(checkCtx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinioProvider{
		client:        cli,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Upload streams the data to the bucket and returns a link the chat can
// open: the public URL when configured, a presigned URL otherwise.
func (m *MinioProvider) Upload(ctx context.Context, objectName string, data []byte) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: pdfContentType})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectName, err)
	}

	if m.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", m.publicBaseURL, objectName), nil
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectName, err)
	}
	return u.String(), nil
}

// Close for MinioProvider does nothing and returns nil; the client holds no
// persistent connections.
func (m *MinioProvider) Close() error { return nil }
