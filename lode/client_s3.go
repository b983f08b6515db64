package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates an archive in S3 or an S3-compatible store such as MinIO.
// Credentials come from the AWS default chain.
type S3Config struct {
	Bucket string
	Prefix string
	// Region overrides the region from the default chain.
	Region string
	// Endpoint overrides the AWS endpoint.
	Endpoint     string
	UsePathStyle bool
}

// ParseS3Path splits "bucket/prefix" into its parts. The prefix may be empty
// or contain further slashes.
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// Validate requires a bucket.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

func (c *S3Config) loadOptions() []func(*config.LoadOptions) error {
	if c.Region == "" {
		return nil
	}
	return []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
}

func (c *S3Config) clientOptions(o *s3.Options) {
	if c.Endpoint != "" {
		o.BaseEndpoint = aws.String(c.Endpoint)
	}
	o.UsePathStyle = c.UsePathStyle
}

// StoreFactory loads AWS configuration once and returns a factory for
// stores under Bucket/Prefix.
func (c *S3Config) StoreFactory(ctx context.Context) (lode.StoreFactory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, c.loadOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, c.clientOptions)
	storeCfg := lodes3.Config{Bucket: c.Bucket, Prefix: c.Prefix}

	return func() (lode.Store, error) {
		return lodes3.New(client, storeCfg)
	}, nil
}

// NewLodeS3Client creates a Lode client writing to S3.
func NewLodeS3Client(ctx context.Context, cfg Config, s3cfg S3Config) (*LodeClient, error) {
	factory, err := s3cfg.StoreFactory(ctx)
	if err != nil {
		return nil, err
	}
	return NewLodeClientWithFactory(cfg, factory)
}
