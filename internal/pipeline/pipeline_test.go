package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/streamscribe/streamscribe/internal/cache"
	"github.com/streamscribe/streamscribe/internal/objectstore"
	"github.com/streamscribe/streamscribe/internal/transcribeclient"
	"github.com/streamscribe/streamscribe/internal/types"
)

const testBPS = 16000.0

type fakeReader struct {
	size    uint64
	headErr error
}

func (f *fakeReader) Head(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	if f.headErr != nil {
		return objectstore.ObjectInfo{}, f.headErr
	}
	return objectstore.ObjectInfo{SizeBytes: f.size}, nil
}

func (f *fakeReader) GetRange(ctx context.Context, bucket, key string, start, end uint64) (io.ReadCloser, error) {
	n := int(end - start + 1)
	if n < 0 {
		n = 0
	}
	return io.NopCloser(strings.NewReader(strings.Repeat("\x00", min(n, 64)))), nil
}

func (f *fakeReader) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://example.invalid/" + key, nil
}

type countingTranscriber struct {
	calls int
}

func (c *countingTranscriber) Transcribe(ctx context.Context, localPath string, chunkDuration float64, chunkIndex int) (transcribeclient.Result, error) {
	c.calls++
	return transcribeclient.Result{
		Segments: []types.Segment{{Start: 0, End: chunkDuration, Text: fmt.Sprintf("chunk %d text", chunkIndex)}},
		Language: "en",
	}, nil
}

// testParams shrinks chunks so multi-chunk runs stay fast; overlap mode
// never shells out to ffmpeg.
func testParams() Params {
	p := DefaultParams()
	p.Planner.BytesPerSecond = testBPS
	p.Planner.MaxChunkSeconds = 10
	p.OverlapSeconds = 2
	return p
}

func seconds(n float64) uint64 { return uint64(n * testBPS) }

func TestRunWalksStatesToCompleted(t *testing.T) {
	t.Parallel()

	p := New(&fakeReader{size: seconds(25)}, &countingTranscriber{}, cache.New(time.Hour, 100), testParams(), "ffmpeg", nil)

	var states []types.RunState
	res, err := p.Run(context.Background(), Request{Bucket: "b", Key: "k.mp3", Mode: types.ModeOverlap}, func(s Status) {
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Segments) == 0 {
		t.Fatal("no merged segments")
	}

	want := []types.RunState{types.StateRunning, types.StatePlanning, types.StateProcessing, types.StateMerging, types.StateCompleted}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("state sequence = %v, want %v", states, want)
	}
}

func TestRunProgressReachesOne(t *testing.T) {
	t.Parallel()

	p := New(&fakeReader{size: seconds(25)}, &countingTranscriber{}, cache.New(time.Hour, 100), testParams(), "ffmpeg", nil)

	var last Status
	_, err := p.Run(context.Background(), Request{Bucket: "b", Key: "k.mp3", Mode: types.ModeOverlap}, func(s Status) { last = s })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if last.State != types.StateCompleted || last.Progress != 1 {
		t.Errorf("final status = %+v", last)
	}
}

func TestRunMergedTimelineNeverDecreases(t *testing.T) {
	t.Parallel()

	p := New(&fakeReader{size: seconds(47)}, &countingTranscriber{}, cache.New(time.Hour, 100), testParams(), "ffmpeg", nil)

	res, err := p.Run(context.Background(), Request{Bucket: "b", Key: "k.mp3", Mode: types.ModeOverlap}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 1; i < len(res.Segments); i++ {
		if res.Segments[i].Start < res.Segments[i-1].Start {
			t.Fatalf("segment %d starts before segment %d", i, i-1)
		}
	}
}

func TestRunRejectsEmptyCoordinates(t *testing.T) {
	t.Parallel()

	p := New(&fakeReader{size: seconds(10)}, &countingTranscriber{}, cache.New(time.Hour, 100), testParams(), "ffmpeg", nil)

	for _, req := range []Request{{Bucket: "", Key: "k"}, {Bucket: "b", Key: ""}} {
		_, err := p.Run(context.Background(), req, nil)
		assertKind(t, err, types.KindValidationError)
	}
}

func TestRunRejectsOverlapWiderThanChunk(t *testing.T) {
	t.Parallel()

	params := testParams()
	params.OverlapSeconds = 15 // wider than the 10 s max chunk
	p := New(&fakeReader{size: seconds(30)}, &countingTranscriber{}, cache.New(time.Hour, 100), params, "ffmpeg", nil)

	_, err := p.Run(context.Background(), Request{Bucket: "b", Key: "k", Mode: types.ModeOverlap}, nil)
	assertKind(t, err, types.KindValidationError)
}

func TestRunRejectsTooLongFiles(t *testing.T) {
	t.Parallel()

	params := testParams()
	params.MaxFileDurationHours = 0.01 // 36 s limit
	tr := &countingTranscriber{}
	p := New(&fakeReader{size: seconds(100)}, tr, cache.New(time.Hour, 100), params, "ffmpeg", nil)

	_, err := p.Run(context.Background(), Request{Bucket: "b", Key: "k", Mode: types.ModeOverlap}, nil)
	assertKind(t, err, types.KindTooLong)
	if tr.calls != 0 {
		t.Errorf("fetched %d chunks before rejecting an oversized file", tr.calls)
	}
}

func TestRunClassifiesMissingObject(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{headErr: fmt.Errorf("%w: no such key", objectstore.ErrNotFound)}
	p := New(reader, &countingTranscriber{}, cache.New(time.Hour, 100), testParams(), "ffmpeg", nil)

	_, err := p.Run(context.Background(), Request{Bucket: "b", Key: "gone.mp3", Mode: types.ModeOverlap}, nil)
	assertKind(t, err, types.KindNotFound)
}

func TestRunCancelledBeforeProcessing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&fakeReader{size: seconds(25)}, &countingTranscriber{}, cache.New(time.Hour, 100), testParams(), "ffmpeg", nil)

	var last Status
	_, err := p.Run(ctx, Request{Bucket: "b", Key: "k.mp3", Mode: types.ModeOverlap}, func(s Status) { last = s })
	assertKind(t, err, types.KindCancelled)
	if last.State != types.StateFailed {
		t.Errorf("final state = %s, want FAILED", last.State)
	}
}

func TestRunResumesFromWarmCache(t *testing.T) {
	t.Parallel()

	chunkCache := cache.New(time.Hour, 100)
	tr := &countingTranscriber{}
	// 47 s with 10 s chunks stepping 8 s gives several chunks.
	p := New(&fakeReader{size: seconds(47)}, tr, chunkCache, testParams(), "ffmpeg", nil)
	req := Request{Bucket: "b", Key: "k.mp3", Mode: types.ModeOverlap}

	first, err := p.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	coldCalls := tr.calls
	if coldCalls == 0 {
		t.Fatal("cold run transcribed nothing")
	}

	second, err := p.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if tr.calls != coldCalls {
		t.Errorf("warm run transcribed %d additional chunks, want 0", tr.calls-coldCalls)
	}
	if !reflect.DeepEqual(first.Segments, second.Segments) {
		t.Error("warm run output differs from cold run output")
	}
}

func TestRunSilenceAwareSingleChunkConcatenates(t *testing.T) {
	t.Parallel()

	// A file shorter than maxChunkSeconds plans one chunk without any
	// silence probing, so silence-aware mode is hermetic here.
	params := testParams()
	params.Planner.MaxChunkSeconds = 3600
	p := New(&fakeReader{size: seconds(30)}, &countingTranscriber{}, cache.New(time.Hour, 100), params, "ffmpeg", nil)

	res, err := p.Run(context.Background(), Request{Bucket: "b", Key: "k.mp3", Mode: types.ModeSilenceAware}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("segments = %+v, want exactly one", res.Segments)
	}
	if res.Segments[0].Start != 0 || res.Segments[0].End != 30 {
		t.Errorf("segment times = [%g,%g], want [0,30]", res.Segments[0].Start, res.Segments[0].End)
	}
}

func TestFixedOverlapPlanInvariants(t *testing.T) {
	t.Parallel()

	params := testParams().Planner
	plans := fixedOverlapPlan(seconds(47), params, 2)

	if len(plans) == 0 {
		t.Fatal("no plans")
	}
	if plans[0].StartOffset != 0 {
		t.Errorf("first plan starts at %g", plans[0].StartOffset)
	}
	if last := plans[len(plans)-1]; last.EndOffset != 47 {
		t.Errorf("last plan ends at %g, want 47", last.EndOffset)
	}
	for i := 1; i < len(plans); i++ {
		prev, curr := plans[i-1], plans[i]
		if curr.StartOffset > prev.EndOffset {
			t.Errorf("gap between plans %d and %d", i-1, i)
		}
		if curr.StartOffset < prev.StartOffset {
			t.Errorf("plan %d starts before plan %d", i, i-1)
		}
		if curr.Duration() > params.MaxChunkSeconds {
			t.Errorf("plan %d duration %g exceeds max", i, curr.Duration())
		}
	}
}

func TestFixedOverlapPlanEmptyFile(t *testing.T) {
	t.Parallel()

	if plans := fixedOverlapPlan(0, testParams().Planner, 2); plans != nil {
		t.Fatalf("plans for empty file = %+v, want none", plans)
	}
}

func assertKind(t *testing.T, err error, want types.Kind) {
	t.Helper()
	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T (%v), want *types.PipelineError", err, err)
	}
	if pe.Kind != want {
		t.Fatalf("kind = %s, want %s", pe.Kind, want)
	}
}
