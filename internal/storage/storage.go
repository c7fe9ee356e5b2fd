// Package storage provides the read-only object store client the pipeline
// uses to fetch document blobs.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/pkg/logger"
)

var Module = fx.Module("storage",
	fx.Provide(NewFetcher),
)

// Fetcher downloads document blobs from an S3-compatible object store.
type Fetcher struct {
	client       *s3.Client
	bucket       string
	fetchTimeout time.Duration
	log          *slog.Logger
}

// NewFetcher creates a fetcher against the configured endpoint. Path-style
// addressing is forced so MinIO and other S3-compatible stores work.
func NewFetcher(cfg *config.Config, log *slog.Logger) (*Fetcher, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3.EndpointURI,
				HostnameImmutable: true,
				SigningRegion:     cfg.S3.Region,
			}, nil
		},
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			"",
		)),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	log = log.With(logger.Scope("storage"))
	log.Info("object store client initialized",
		slog.String("endpoint", cfg.S3.EndpointURI),
		slog.String("bucket", cfg.S3.Bucket),
	)

	return &Fetcher{
		client:       client,
		bucket:       cfg.S3.Bucket,
		fetchTimeout: cfg.S3.FetchTimeout,
		log:          log,
	}, nil
}

// FetchObject downloads a blob by key and returns its bytes and size.
// The request is bounded by the configured fetch timeout.
func (f *Fetcher) FetchObject(ctx context.Context, key string) ([]byte, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		f.log.Error("failed to fetch object",
			slog.String("key", key),
			logger.Error(err),
		)
		return nil, 0, fmt.Errorf("get object %q: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read object %q: %w", key, err)
	}

	size := int64(len(data))
	if result.ContentLength != nil {
		size = *result.ContentLength
	}

	f.log.Debug("object fetched",
		slog.String("key", key),
		slog.Int64("size", size),
	)

	return data, size, nil
}

// Exists checks whether an object exists without downloading it.
func (f *Fetcher) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	_, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object %q: %w", key, err)
	}

	return true, nil
}

// IsNotFound reports whether an object store error means the key is absent.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "NoSuchKey")
}
