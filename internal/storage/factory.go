package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/logging"
)

// StorageConfig selects and parameterizes a content backend.
type StorageConfig struct {
	Backend          string // "filesystem" or "s3"
	DataDir          string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3AccessKeyID    string
	S3SecretKey      string
	S3ForcePathStyle bool
}

// ConfigFromEnv reads storage configuration from environment variables.
func ConfigFromEnv() StorageConfig {
	return StorageConfig{
		Backend:          config.Get("STORAGE_BACKEND", "filesystem"),
		DataDir:          config.Get("DATA_DIR", "/data"),
		S3Bucket:         config.Get("S3_BUCKET", ""),
		S3Region:         config.Get("S3_REGION", "us-east-1"),
		S3Endpoint:       config.Get("S3_ENDPOINT", ""),
		S3AccessKeyID:    config.Get("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:      config.Get("S3_SECRET_ACCESS_KEY", ""),
		S3ForcePathStyle: config.GetBool("S3_FORCE_PATH_STYLE", false),
	}
}

// New builds the configured content backend.
func New(ctx context.Context, cfg StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case "s3":
		backend, err := newS3Backend(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 backend: %w", err)
		}
		logging.Logf("[STORAGE] Initialized S3 backend: s3://%s (endpoint: %s)", cfg.S3Bucket, cfg.S3Endpoint)
		return backend, nil

	case "filesystem":
		dir := filepath.Join(cfg.DataDir, "storage")
		logging.Logf("[STORAGE] Initialized filesystem backend: %s", dir)
		return NewFilesystemBackend(dir), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (valid options: filesystem, s3)", cfg.Backend)
	}
}

func newS3Backend(ctx context.Context, cfg StorageConfig) (Backend, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required for S3 backend")
	}

	var awsCfg aws.Config
	var err error
	if cfg.S3AccessKeyID != "" && cfg.S3SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKeyID,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		// default credential chain (IAM roles, etc.)
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.S3Endpoint != "" {
		if _, err := url.Parse(cfg.S3Endpoint); err != nil {
			return nil, fmt.Errorf("invalid S3_ENDPOINT: %w", err)
		}
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3ForcePathStyle
	})

	if _, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.S3Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.S3Bucket, err)
	}

	return NewS3Backend(s3Client, cfg.S3Bucket), nil
}
