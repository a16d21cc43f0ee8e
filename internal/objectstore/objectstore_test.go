package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 serves one in-memory object, honoring bytes=start-end ranges the
// way a real S3-compatible endpoint does.
type fakeS3 struct {
	body    []byte
	headErr error
	getErr  error
	ranges  []string
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	n := int64(len(f.body))
	return &s3.HeadObjectOutput{ContentLength: &n}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.ranges = append(f.ranges, *in.Range)

	var start, end int
	if _, err := fmt.Sscanf(*in.Range, "bytes=%d-%d", &start, &end); err != nil {
		return nil, fmt.Errorf("malformed range %q: %w", *in.Range, err)
	}
	if end >= len(f.body) {
		end = len(f.body) - 1
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body[start : end+1]))}, nil
}

func newFakeStore(client s3Client) *S3Store {
	return &S3Store{
		client: client,
		presigner: func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
			return "https://presigned.example/" + key, nil
		},
	}
}

func TestHeadReturnsSize(t *testing.T) {
	t.Parallel()

	store := newFakeStore(&fakeS3{body: make([]byte, 4096)})
	info, err := store.Head(context.Background(), "b", "k")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if info.SizeBytes != 4096 {
		t.Errorf("SizeBytes = %d, want 4096", info.SizeBytes)
	}
}

func TestGetRangeUsesInclusiveRangeHeader(t *testing.T) {
	t.Parallel()

	client := &fakeS3{body: []byte("0123456789")}
	store := newFakeStore(client)

	body, err := store.GetRange(context.Background(), "b", "k", 2, 5)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "2345" {
		t.Errorf("body = %q, want 2345 (inclusive bounds)", data)
	}
	if len(client.ranges) != 1 || client.ranges[0] != "bytes=2-5" {
		t.Errorf("ranges = %v, want [bytes=2-5]", client.ranges)
	}
}

func TestTranslateErrClassifiesMissingKeys(t *testing.T) {
	t.Parallel()

	store := newFakeStore(&fakeS3{headErr: &s3types.NoSuchKey{}})
	_, err := store.Head(context.Background(), "b", "gone")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestTranslateErrDefaultsToTransport(t *testing.T) {
	t.Parallel()

	store := newFakeStore(&fakeS3{getErr: errors.New("connection reset by peer")})
	_, err := store.GetRange(context.Background(), "b", "k", 0, 10)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestCopyRangeToFile(t *testing.T) {
	t.Parallel()

	store := newFakeStore(&fakeS3{body: []byte("streaming audio payload")})
	var buf bytes.Buffer

	n, err := CopyRangeToFile(context.Background(), store, "b", "k", 0, 8, &buf)
	if err != nil {
		t.Fatalf("CopyRangeToFile: %v", err)
	}
	if n != 9 || buf.String() != "streaming" {
		t.Errorf("copied %d bytes %q, want 9 bytes \"streaming\"", n, buf.String())
	}
}

func TestCopyRangeToFileWrapsReadFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore(&fakeS3{getErr: &s3types.NoSuchKey{}})
	var buf strings.Builder

	_, err := CopyRangeToFile(context.Background(), store, "b", "k", 0, 8, &buf)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound to survive wrapping", err)
	}
}

func TestPresign(t *testing.T) {
	t.Parallel()

	store := newFakeStore(&fakeS3{})
	url, err := store.Presign(context.Background(), "b", "k.mp3", time.Minute)
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	if url != "https://presigned.example/k.mp3" {
		t.Errorf("url = %q", url)
	}
}
