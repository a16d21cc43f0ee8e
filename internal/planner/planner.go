// Package planner implements the greedy, single-pass chunk planner:
// it streams a remote file forward in bounded windows, probing each window
// for silence, and emits a breakpoint per window either at the best
// silence midpoint it found or at a forced cut if none qualified.
package planner

import (
	"context"
	"fmt"

	"github.com/streamscribe/streamscribe/internal/iodeps"
	"github.com/streamscribe/streamscribe/internal/objectstore"
	"github.com/streamscribe/streamscribe/internal/silence"
	"github.com/streamscribe/streamscribe/internal/types"
)

// Params tunes the greedy planner.
type Params struct {
	MaxChunkSeconds float64
	LookbackSeconds float64
	BytesPerSecond  float64
	SilenceParams   silence.Params
	TempDir         string
}

// DefaultParams returns the planner's default tuning: hour-long chunks, a
// ten-minute lookback window, and the 128 kbps stereo byte-rate estimate.
func DefaultParams() Params {
	return Params{
		MaxChunkSeconds: 3600,
		LookbackSeconds: 600,
		BytesPerSecond:  16000,
		SilenceParams:   silence.DefaultParams(),
	}
}

// silenceDetector is the subset of *silence.Probe the planner calls,
// allowing tests to inject canned intervals.
type silenceDetector interface {
	Detect(ctx context.Context, localPath string) ([]types.SilenceInterval, error)
}

// GreedyPlanner streams forward through a remote object, one bounded
// window at a time, choosing a breakpoint per window.
type GreedyPlanner struct {
	reader   objectstore.RangeReader
	detector silenceDetector
	params   Params
	tempDirs iodeps.TempDirCreator
	files    iodeps.FileCreator
	remover  iodeps.FileRemover
}

// New builds a GreedyPlanner.
func New(reader objectstore.RangeReader, detector silenceDetector, params Params) *GreedyPlanner {
	return &GreedyPlanner{
		reader:   reader,
		detector: detector,
		params:   params,
		tempDirs: iodeps.OSTempDirCreator{},
		files:    iodeps.OSFileCreator{},
		remover:  iodeps.OSFileRemover{},
	}
}

// WithFileDeps overrides the filesystem seams, for tests.
func (g *GreedyPlanner) WithFileDeps(t iodeps.TempDirCreator, f iodeps.FileCreator, r iodeps.FileRemover) *GreedyPlanner {
	g.tempDirs, g.files, g.remover = t, f, r
	return g
}

// Plan streams forward through bucket/key (whose total size is
// fileSizeBytes) and returns the resulting sequence of chunk plans.
func (g *GreedyPlanner) Plan(ctx context.Context, bucket, key string, fileSizeBytes uint64) ([]types.ChunkPlan, error) {
	totalSeconds := float64(fileSizeBytes) / g.params.BytesPerSecond

	// A file that fits in one chunk needs no silence probing at all.
	if totalSeconds <= g.params.MaxChunkSeconds {
		return []types.ChunkPlan{{Index: 0, StartOffset: 0, EndOffset: totalSeconds}}, nil
	}

	breakpoints, err := g.streamBreakpoints(ctx, bucket, key, totalSeconds)
	if err != nil {
		return nil, err
	}

	return breakpointsToPlan(breakpoints, totalSeconds), nil
}

// streamBreakpoints performs the single forward pass: advance a window of
// MaxChunkSeconds at a time, probe it for silence, and choose one
// breakpoint per window.
func (g *GreedyPlanner) streamBreakpoints(ctx context.Context, bucket, key string, totalSeconds float64) ([]types.Breakpoint, error) {
	var breakpoints []types.Breakpoint
	position := 0.0

	for position < totalSeconds {
		windowEnd := min(position+g.params.MaxChunkSeconds, totalSeconds)

		intervals, err := g.probeWindow(ctx, bucket, key, position, windowEnd)
		if err != nil {
			return nil, err
		}

		lookbackStart := max(position, windowEnd-g.params.LookbackSeconds)
		best, found := bestIntervalIn(intervals, lookbackStart, windowEnd)

		bp := types.Breakpoint{TimeSeconds: windowEnd, HasSilence: false}
		if found {
			bp = types.Breakpoint{TimeSeconds: best.Midpoint(), HasSilence: true}
		}
		breakpoints = append(breakpoints, bp)
		position = bp.TimeSeconds

		if position >= totalSeconds-1 {
			break
		}
	}

	return breakpoints, nil
}

// probeWindow stages [position, windowEnd] of the remote object into a
// temp file, runs the silence probe against it, and remaps the returned
// intervals from "seconds since window start" to "seconds since file
// start" before deleting the temp file.
func (g *GreedyPlanner) probeWindow(ctx context.Context, bucket, key string, position, windowEnd float64) ([]types.SilenceInterval, error) {
	startByte := uint64(position * g.params.BytesPerSecond)
	endByte := uint64(windowEnd*g.params.BytesPerSecond) - 1

	dir, err := g.tempDirs.MkdirTemp(g.params.TempDir, "planner-window-*")
	if err != nil {
		return nil, types.NewPipelineError(types.KindInternalInvariant, "create planner temp dir", err)
	}
	defer func() { _ = g.remover.RemoveAll(dir) }()

	localPath := fmt.Sprintf("%s/window.audio", dir)
	f, err := g.files.Create(localPath)
	if err != nil {
		return nil, types.NewPipelineError(types.KindInternalInvariant, "create planner temp file", err)
	}

	_, copyErr := objectstore.CopyRangeToFile(ctx, g.reader, bucket, key, startByte, endByte, f)
	closeErr := f.Close()
	if copyErr != nil {
		return nil, wrapTransportErr(copyErr)
	}
	if closeErr != nil {
		return nil, types.NewPipelineError(types.KindInternalInvariant, "close planner temp file", closeErr)
	}

	intervals, err := g.detector.Detect(ctx, localPath)
	if err != nil {
		return nil, err
	}

	remapped := make([]types.SilenceInterval, len(intervals))
	for i, iv := range intervals {
		remapped[i] = types.SilenceInterval{Start: iv.Start + position, End: iv.End + position}
	}
	return remapped, nil
}

// bestIntervalIn searches intervals fully contained in
// [lookbackStart, windowEnd] and returns the longest one; ties break
// toward the earlier start. Intervals straddling the window boundary are
// skipped, since a midpoint computed from a partially visible silence
// could land outside the window.
func bestIntervalIn(intervals []types.SilenceInterval, lookbackStart, windowEnd float64) (types.SilenceInterval, bool) {
	var best types.SilenceInterval
	found := false

	for _, iv := range intervals {
		if iv.Start < lookbackStart || iv.End > windowEnd {
			continue
		}
		if !found {
			best, found = iv, true
			continue
		}
		if iv.Duration() > best.Duration() {
			best = iv
		} else if iv.Duration() == best.Duration() && iv.Start < best.Start {
			best = iv
		}
	}

	return best, found
}

// breakpointsToPlan converts an ordered sequence of breakpoints into
// contiguous chunk plans covering [0, totalSeconds]. When the final
// breakpoint lands short of the file end (a silence midpoint chosen in
// the last window), one more plan covers the remaining tail.
func breakpointsToPlan(breakpoints []types.Breakpoint, totalSeconds float64) []types.ChunkPlan {
	plans := make([]types.ChunkPlan, 0, len(breakpoints)+1)
	start := 0.0
	for _, bp := range breakpoints {
		end := min(bp.TimeSeconds, totalSeconds)
		plans = append(plans, types.ChunkPlan{
			Index:       len(plans),
			StartOffset: start,
			EndOffset:   end,
			HasSilence:  bp.HasSilence,
		})
		start = end
	}
	if totalSeconds-start > 1e-9 {
		plans = append(plans, types.ChunkPlan{
			Index:       len(plans),
			StartOffset: start,
			EndOffset:   totalSeconds,
		})
	}
	return plans
}

func wrapTransportErr(err error) error {
	return types.NewPipelineError(types.KindTransport, "streaming window bytes from object store", err)
}
