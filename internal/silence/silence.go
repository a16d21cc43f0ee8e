// Package silence runs an external audio analyser (ffmpeg's silencedetect
// filter) against a local file and returns the silent intervals it finds.
// It never looks at a remote object directly; the planner is responsible
// for staging the bytes it wants analysed into a local file.
package silence

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/streamscribe/streamscribe/internal/ffmpeg"
	"github.com/streamscribe/streamscribe/internal/types"
)

// MaxIntervals caps how many silence intervals a single probe will return,
// protecting the planner from a pathological file producing unbounded
// breakpoint candidates.
const MaxIntervals = 10000

// Params tunes the silencedetect invocation.
type Params struct {
	// NoiseThresholdDB is the dBFS level below which audio is silence.
	NoiseThresholdDB float64
	// MinDurationSeconds is the minimum silence span silencedetect reports.
	MinDurationSeconds float64
}

// DefaultParams mirrors the defaults a greedy planner will normally use.
func DefaultParams() Params {
	return Params{NoiseThresholdDB: -30.0, MinDurationSeconds: 0.5}
}

// runOutput is the subset of ffmpeg.Executor this package depends on, so
// tests can inject canned silencedetect output without invoking ffmpeg.
type runOutput interface {
	RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error)
}

// Probe detects silence intervals in local audio files.
type Probe struct {
	ffmpegPath string
	executor   runOutput
	params     Params
}

// NewProbe builds a Probe that invokes the resolved ffmpeg binary.
func NewProbe(ffmpegPath string, params Params) *Probe {
	return &Probe{
		ffmpegPath: ffmpegPath,
		executor:   ffmpeg.NewExecutor(),
		params:     params,
	}
}

// WithExecutor overrides the executor, for tests.
func (p *Probe) WithExecutor(e runOutput) *Probe {
	p.executor = e
	return p
}

// Detect runs silencedetect against localPath and returns the intervals it
// found, in file order, capped at MaxIntervals. An unpaired trailing
// silence_start (the analysis window ended mid-silence) is dropped rather
// than reported as a half-open interval.
func (p *Probe) Detect(ctx context.Context, localPath string) ([]types.SilenceInterval, error) {
	args := []string{
		"-i", localPath,
		"-af", fmt.Sprintf("silencedetect=noise=%gdB:d=%.3f", p.params.NoiseThresholdDB, p.params.MinDurationSeconds),
		"-f", "null",
		"-",
	}

	output, err := p.executor.RunOutput(ctx, p.ffmpegPath, args)
	if err != nil && len(output) == 0 {
		return nil, types.NewPipelineError(types.KindAnalysisFailed,
			fmt.Sprintf("silencedetect produced no output for %s", localPath), err)
	}

	intervals := parseSilenceOutput(output)
	if len(intervals) > MaxIntervals {
		intervals = intervals[:MaxIntervals]
	}
	return intervals, nil
}

var (
	startRe = regexp.MustCompile(`silence_start:\s*([\d.-]+)`)
	endRe   = regexp.MustCompile(`silence_end:\s*([\d.-]+)`)
)

// parseSilenceOutput extracts silence intervals from ffmpeg silencedetect
// stderr output, which interleaves lines like:
//
//	[silencedetect @ 0x...] silence_start: 42.123
//	[silencedetect @ 0x...] silence_end: 43.456 | silence_duration: 1.333
func parseSilenceOutput(output string) []types.SilenceInterval {
	var intervals []types.SilenceInterval
	var currentStart float64
	hasStart := false

	for _, line := range strings.Split(output, "\n") {
		if m := startRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				currentStart = v
				hasStart = true
			}
			continue
		}
		if m := endRe.FindStringSubmatch(line); m != nil && hasStart {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				intervals = append(intervals, types.SilenceInterval{Start: currentStart, End: v})
				hasStart = false
			}
		}
	}

	return intervals
}
