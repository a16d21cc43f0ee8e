package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3Client is the subset of *s3.Client this package calls, so tests can
// inject a fake without standing up a real AWS SDK client.
type s3Client interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store is a RangeReader backed by an S3-compatible object store.
type S3Store struct {
	client    s3Client
	presigner func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// NewS3Store builds an S3Store from an aws-sdk-go-v2 client.
func NewS3Store(client *s3.Client) *S3Store {
	presignClient := s3.NewPresignClient(client)
	return &S3Store{
		client: client,
		presigner: func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
			req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			}, s3.WithPresignExpires(ttl))
			if err != nil {
				return "", translateErr(err)
			}
			return req.URL, nil
		},
	}
}

var _ RangeReader = (*S3Store)(nil)

// Head implements RangeReader.
func (s *S3Store) Head(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, translateErr(err)
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	if size < 0 {
		size = 0
	}
	return ObjectInfo{SizeBytes: uint64(size)}, nil
}

// GetRange implements RangeReader using an HTTP Range request.
func (s *S3Store) GetRange(ctx context.Context, bucket, key string, startByte, endByte uint64) (io.ReadCloser, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", startByte, endByte)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return out.Body, nil
}

// Presign implements RangeReader.
func (s *S3Store) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return s.presigner(ctx, bucket, key, ttl)
}

// translateErr maps AWS SDK errors onto the package's sentinel errors so
// callers never need to import aws-sdk-go-v2 types to classify failures.
func translateErr(err error) error {
	if err == nil {
		return nil
	}

	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrTransport, err)
}
