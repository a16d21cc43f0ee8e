// Package types defines the shared data model for the transcription
// pipeline: the values planners, executors and mergers pass between each
// other. Nothing in this package performs I/O.
package types

import "fmt"

// SilenceInterval is a detected span of near-silence in an audio stream,
// in seconds. The silence probe reports it relative to the start of the
// analysed window; the planner remaps it to seconds since file start.
type SilenceInterval struct {
	Start float64
	End   float64
}

// Duration returns the length of the interval in seconds.
func (s SilenceInterval) Duration() float64 {
	return s.End - s.Start
}

// Midpoint returns the interval's midpoint in seconds.
func (s SilenceInterval) Midpoint() float64 {
	return s.Start + s.Duration()/2
}

// Breakpoint is a single cut point chosen by the planner while it streams
// forward through a remote file.
type Breakpoint struct {
	TimeSeconds float64
	HasSilence  bool
}

// ChunkPlan describes one chunk of audio to execute as a time range of the
// remote object (before any executor bleed padding is applied); the
// executor derives the byte range from it.
type ChunkPlan struct {
	Index       int
	StartOffset float64 // seconds, inclusive
	EndOffset   float64 // seconds, exclusive
	HasSilence  bool
}

// Duration returns the planned chunk's length in seconds.
func (c ChunkPlan) Duration() float64 {
	return c.EndOffset - c.StartOffset
}

// Segment is a single timed span of transcribed text, relative to the
// start of the chunk that produced it.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// ChunkTranscript is the result of executing one ChunkPlan. StartOffset
// equals the producing plan's StartOffset; segment times are relative to
// it.
type ChunkTranscript struct {
	ChunkIndex  int
	StartOffset float64
	Segments    []Segment
	Language    string
}

// MergedSegment is a segment in the final, reconciled transcript, with
// timestamps absolute to the start of the source file.
type MergedSegment struct {
	Start float64
	End   float64
	Text  string
}

// CacheKey identifies one cached chunk execution. Two executions of the
// same logical chunk against the same object produce the same key.
type CacheKey struct {
	Bucket       string
	ObjectKey    string
	ChunkIndex   int
	StartSeconds float64
	EndSeconds   float64
}

// String renders the key in the canonical "bucket:key:chunk-<i>:<start>-<end>"
// form used both as the cache store's key and in log lines. Start and end
// are seconds, formatted to two decimal places so re-planned identical
// inputs land on the same key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:chunk-%d:%.2f-%.2f", k.Bucket, k.ObjectKey, k.ChunkIndex,
		k.StartSeconds, k.EndSeconds)
}

// MemoryBudget names the resident-heap-ratio thresholds the backpressure
// gate reacts to.
type MemoryBudget struct {
	WarnRatio     float64
	CriticalRatio float64
	PauseRatio    float64
}

// DefaultMemoryBudget returns the thresholds used when none are configured.
func DefaultMemoryBudget() MemoryBudget {
	return MemoryBudget{WarnRatio: 0.75, CriticalRatio: 0.85, PauseRatio: 0.90}
}

// ChunkingMode selects which planning/merge strategy a run uses.
type ChunkingMode int

const (
	// ModeSilenceAware plans chunks that meet at detected silence
	// midpoints with no shared audio; merging is plain concatenation.
	ModeSilenceAware ChunkingMode = iota
	// ModeOverlap plans fixed-duration chunks whose neighbors share a
	// configured overlap; merging reconciles the duplicated phrasing with
	// longest-common-word alignment.
	ModeOverlap
)

func (m ChunkingMode) String() string {
	switch m {
	case ModeSilenceAware:
		return "silence_aware"
	case ModeOverlap:
		return "overlap"
	default:
		return fmt.Sprintf("ChunkingMode(%d)", int(m))
	}
}

// RunState is the pipeline run's lifecycle state.
type RunState int

const (
	StatePending RunState = iota
	StateRunning
	StatePlanning
	StateProcessing
	StateMerging
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StatePlanning:
		return "PLANNING"
	case StateProcessing:
		return "PROCESSING"
	case StateMerging:
		return "MERGING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Terminal reports whether the state ends the run's lifecycle.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
