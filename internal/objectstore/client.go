package objectstore

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientOptions configures the production S3 client builder.
type ClientOptions struct {
	Region          string
	Endpoint        string // non-empty for S3-compatible stores (MinIO, R2, ...)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewDefaultStore builds an S3Store using aws-sdk-go-v2's standard
// credential chain, optionally overridden by explicit static credentials
// and a custom endpoint for S3-compatible object stores.
func NewDefaultStore(ctx context.Context, opts ClientOptions) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = &opts.Endpoint
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return NewS3Store(client), nil
}
