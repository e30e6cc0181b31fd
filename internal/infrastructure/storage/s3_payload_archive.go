// Package storage archives raw marketplace payloads in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marketsync/backend/internal/domain/integration"
	infraconfig "github.com/marketsync/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const payloadContentType = "application/json"

// Ensure S3PayloadArchive implements PayloadArchive
var _ integration.PayloadArchive = (*S3PayloadArchive)(nil)

// S3PayloadArchive stores raw order payloads using AWS S3 SDK v2.
// It works with any S3-compatible storage (AWS S3, RustFS, MinIO, etc.)
type S3PayloadArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// Option is a functional option for configuring S3PayloadArchive
type Option func(*S3PayloadArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *S3PayloadArchive) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithKeyPrefix overrides the "raw" key prefix
func WithKeyPrefix(prefix string) Option {
	return func(a *S3PayloadArchive) {
		a.prefix = strings.Trim(prefix, "/")
	}
}

// NewS3PayloadArchive creates an archive from configuration. An empty
// endpoint targets AWS S3 itself.
func NewS3PayloadArchive(cfg *infraconfig.StorageConfig, opts ...Option) (*S3PayloadArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	archive := &S3PayloadArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: "raw",
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}

	return archive, nil
}

// Put uploads one payload to <prefix>/<marketplace>/<store>/<order>.json,
// overwriting any earlier copy.
func (a *S3PayloadArchive) Put(
	ctx context.Context,
	marketplace integration.Marketplace,
	storeID, orderID string,
	payload []byte,
) error {
	if orderID == "" {
		return errors.New("order id is required")
	}

	key := a.objectKey(marketplace, storeID, orderID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(payloadContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to archive payload %s: %w", key, err)
	}

	a.logger.Debug("Archived raw payload",
		zap.String("key", key),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

// GetBucket returns the bucket name
func (a *S3PayloadArchive) GetBucket() string {
	return a.bucket
}

func (a *S3PayloadArchive) objectKey(marketplace integration.Marketplace, storeID, orderID string) string {
	return path.Join(a.prefix, keySegment(string(marketplace)), keySegment(storeID), keySegment(orderID)+".json")
}

// keySegment keeps one path segment from escaping its directory
func keySegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
