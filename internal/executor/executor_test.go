package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/streamscribe/streamscribe/internal/cache"
	"github.com/streamscribe/streamscribe/internal/iodeps"
	"github.com/streamscribe/streamscribe/internal/objectstore"
	"github.com/streamscribe/streamscribe/internal/transcribeclient"
	"github.com/streamscribe/streamscribe/internal/types"
)

type fakeReader struct {
	size   uint64
	ranges [][2]uint64
	err    error
}

func (f *fakeReader) Head(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	return objectstore.ObjectInfo{SizeBytes: f.size}, nil
}

func (f *fakeReader) GetRange(ctx context.Context, bucket, key string, start, end uint64) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.ranges = append(f.ranges, [2]uint64{start, end})
	return io.NopCloser(strings.NewReader("audio-bytes")), nil
}

func (f *fakeReader) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://example.invalid/" + key, nil
}

type fakeTranscriber struct {
	calls int
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, localPath string, chunkDuration float64, chunkIndex int) (transcribeclient.Result, error) {
	f.calls++
	if f.err != nil {
		return transcribeclient.Result{}, f.err
	}
	return transcribeclient.Result{
		Segments: []types.Segment{{Start: 0, End: chunkDuration, Text: fmt.Sprintf("chunk %d", chunkIndex)}},
		Language: "en",
	}, nil
}

type noopGate struct{}

func (noopGate) ShouldPause() bool                  { return false }
func (noopGate) WaitIfNeeded(ctx context.Context)  {}

// rootedTempDirs pins temp dirs under a known root so tests can verify
// they are gone afterwards.
type rootedTempDirs struct{ root string }

func (r rootedTempDirs) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(r.root, pattern)
}

func newTestExecutor(reader *fakeReader, tr *fakeTranscriber, c *cache.ChunkCache, root string) *Executor {
	return New(reader, tr, c, noopGate{}, 1000, nil).
		WithFileDeps(rootedTempDirs{root: root}, iodeps.OSFileCreator{}, iodeps.OSFileRemover{})
}

func TestExecuteTranscribesAndCaches(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{size: 100000}
	tr := &fakeTranscriber{}
	c := cache.New(time.Hour, 100)
	e := newTestExecutor(reader, tr, c, t.TempDir())

	plan := types.ChunkPlan{Index: 2, StartOffset: 10, EndOffset: 20}
	got, err := e.Execute(context.Background(), "b", "k", plan, 100000)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got.ChunkIndex != 2 || got.StartOffset != 10 {
		t.Errorf("transcript = %+v", got)
	}
	if got.Language != "en" || len(got.Segments) != 1 {
		t.Errorf("transcript = %+v", got)
	}

	key := types.CacheKey{Bucket: "b", ObjectKey: "k", ChunkIndex: 2, StartSeconds: 10, EndSeconds: 20}
	if _, ok := c.Get(key); !ok {
		t.Error("transcript was not cached under the plan's key")
	}
}

func TestExecuteCacheHitSkipsAllWork(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{size: 100000}
	tr := &fakeTranscriber{}
	c := cache.New(time.Hour, 100)
	e := newTestExecutor(reader, tr, c, t.TempDir())

	plan := types.ChunkPlan{Index: 0, StartOffset: 0, EndOffset: 10}
	key := types.CacheKey{Bucket: "b", ObjectKey: "k", ChunkIndex: 0, StartSeconds: 0, EndSeconds: 10}
	cached := types.ChunkTranscript{ChunkIndex: 0, StartOffset: 0, Segments: []types.Segment{{Start: 0, End: 10, Text: "cached"}}, Language: "en"}
	c.Put(key, cached)

	got, err := e.Execute(context.Background(), "b", "k", plan, 100000)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Segments[0].Text != "cached" {
		t.Errorf("expected cached transcript, got %+v", got)
	}
	if tr.calls != 0 {
		t.Errorf("transcriber called %d times on a cache hit", tr.calls)
	}
	if len(reader.ranges) != 0 {
		t.Errorf("reader called %d times on a cache hit", len(reader.ranges))
	}
}

func TestExecuteBleedPadsByteRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		plan          types.ChunkPlan
		fileSize      uint64
		wantStart     uint64
		wantEnd       uint64
	}{
		{
			name:      "interior chunk pads both ends",
			plan:      types.ChunkPlan{Index: 1, StartOffset: 10, EndOffset: 20},
			fileSize:  100000,
			wantStart: 9000,
			wantEnd:   21000,
		},
		{
			name:      "first chunk clamps start at zero",
			plan:      types.ChunkPlan{Index: 0, StartOffset: 0, EndOffset: 10},
			fileSize:  100000,
			wantStart: 0,
			wantEnd:   11000,
		},
		{
			name:      "last chunk clamps end at file size",
			plan:      types.ChunkPlan{Index: 9, StartOffset: 90, EndOffset: 100},
			fileSize:  100000,
			wantStart: 89000,
			wantEnd:   99999,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reader := &fakeReader{size: tc.fileSize}
			e := newTestExecutor(reader, &fakeTranscriber{}, cache.New(time.Hour, 100), t.TempDir())

			if _, err := e.Execute(context.Background(), "b", "k", tc.plan, tc.fileSize); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if len(reader.ranges) != 1 {
				t.Fatalf("got %d range reads, want 1", len(reader.ranges))
			}
			if got := reader.ranges[0]; got[0] != tc.wantStart || got[1] != tc.wantEnd {
				t.Errorf("range = [%d,%d], want [%d,%d]", got[0], got[1], tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestExecuteRemovesTempFilesOnSuccess(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	e := newTestExecutor(&fakeReader{size: 100000}, &fakeTranscriber{}, cache.New(time.Hour, 100), root)

	plan := types.ChunkPlan{Index: 0, StartOffset: 0, EndOffset: 10}
	if _, err := e.Execute(context.Background(), "b", "k", plan, 100000); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	assertEmptyDir(t, root)
}

func TestExecuteRemovesTempFilesOnFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	tr := &fakeTranscriber{err: errors.New("service exploded")}
	e := newTestExecutor(&fakeReader{size: 100000}, tr, cache.New(time.Hour, 100), root)

	plan := types.ChunkPlan{Index: 3, StartOffset: 0, EndOffset: 10}
	_, err := e.Execute(context.Background(), "b", "k", plan, 100000)
	if err == nil {
		t.Fatal("expected error")
	}

	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *types.PipelineError", err)
	}
	if pe.Kind != types.KindTransport || pe.ChunkIndex != 3 {
		t.Errorf("error = %+v, want Transport for chunk 3", pe)
	}
	assertEmptyDir(t, root)
}

func TestExecuteClassifiesMissingObject(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{size: 100000, err: fmt.Errorf("%w: no such key", objectstore.ErrNotFound)}
	e := newTestExecutor(reader, &fakeTranscriber{}, cache.New(time.Hour, 100), t.TempDir())

	_, err := e.Execute(context.Background(), "b", "k", types.ChunkPlan{Index: 0, StartOffset: 0, EndOffset: 10}, 100000)

	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *types.PipelineError", err)
	}
	if pe.Kind != types.KindNotFound {
		t.Errorf("kind = %s, want NotFound", pe.Kind)
	}
}

func TestExecuteFailureIsNotCached(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{err: errors.New("boom")}
	c := cache.New(time.Hour, 100)
	e := newTestExecutor(&fakeReader{size: 100000}, tr, c, t.TempDir())

	plan := types.ChunkPlan{Index: 0, StartOffset: 0, EndOffset: 10}
	if _, err := e.Execute(context.Background(), "b", "k", plan, 100000); err == nil {
		t.Fatal("expected error")
	}

	key := types.CacheKey{Bucket: "b", ObjectKey: "k", ChunkIndex: 0, StartSeconds: 0, EndSeconds: 10}
	if _, ok := c.Get(key); ok {
		t.Error("failed execution must not populate the cache")
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d temp entries left behind", len(entries))
	}
}
