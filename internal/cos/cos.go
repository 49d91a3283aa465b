// Package cos is the object-storage client used to place dependency
// archives where the workflow's bootstrapper can fetch them. It speaks the
// S3 protocol against any compatible endpoint (MinIO, IBM COS, AWS).
package cos

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config locates the bucket and authenticates the client.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Client wraps an S3 client scoped to one bucket.
type Client struct {
	client   *awss3.Client
	uploader *manager.Uploader
	bucket   string
	endpoint string
	logger   *slog.Logger
}

// NewClient creates a Client from the given config. S3-compatible object
// stores require path-style addressing.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object storage bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion("us-east-1"),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load object storage config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
		logger:   logger.With("component", "cos"),
	}, nil
}

// VerifyConnectivity checks that the bucket exists and the credentials can
// reach it. Called once before any upload so a bad runtime configuration
// fails fast.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("verify object storage bucket %q at %s: %w", c.bucket, c.endpoint, err)
	}
	return nil
}

// Upload streams body to the given object key.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader) error {
	c.logger.Debug("uploading object", "bucket", c.bucket, "key", key)
	_, err := c.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("upload object %q to bucket %q: %w", key, c.bucket, err)
	}
	return nil
}

// Bucket returns the bucket the client is scoped to.
func (c *Client) Bucket() string {
	return c.bucket
}

// ObjectURL returns a browsable URL for the given key, using path-style
// addressing.
func (c *Client) ObjectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
}
