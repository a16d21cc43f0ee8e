// Package pipeline implements the run state machine that drives a
// single transcription run from planning through merging.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/streamscribe/streamscribe/internal/backpressure"
	"github.com/streamscribe/streamscribe/internal/cache"
	"github.com/streamscribe/streamscribe/internal/executor"
	"github.com/streamscribe/streamscribe/internal/lang"
	"github.com/streamscribe/streamscribe/internal/merger"
	"github.com/streamscribe/streamscribe/internal/objectstore"
	"github.com/streamscribe/streamscribe/internal/planner"
	"github.com/streamscribe/streamscribe/internal/silence"
	"github.com/streamscribe/streamscribe/internal/telemetry"
	"github.com/streamscribe/streamscribe/internal/transcribeclient"
	"github.com/streamscribe/streamscribe/internal/types"
)

// Request describes one run's input.
type Request struct {
	Bucket string
	Key    string
	Mode   types.ChunkingMode
}

// Status is a snapshot of a run's progress, safe to copy and hand to a
// status store.
type Status struct {
	State      types.RunState
	Progress   float64 // fraction of planned chunks executed, [0,1]
	Err        *types.PipelineError
	ChunkIndex int
}

// Result is the terminal output of a completed run.
type Result struct {
	Segments []types.MergedSegment
}

// ProgressFunc is called whenever the run's Status changes.
type ProgressFunc func(Status)

// Params tunes one pipeline instance.
type Params struct {
	Planner planner.Params
	Silence silence.Params
	// OverlapSeconds is the audio adjacent chunks share in overlap mode.
	OverlapSeconds float64
	// MaxFileDurationHours bounds the estimated input length; longer files
	// fail before any chunk is fetched.
	MaxFileDurationHours float64
	MinMatch             int
	Budget               types.MemoryBudget
}

// DefaultParams returns the default run configuration.
func DefaultParams() Params {
	return Params{
		Planner:              planner.DefaultParams(),
		Silence:              silence.DefaultParams(),
		OverlapSeconds:       30,
		MaxFileDurationHours: 24,
		MinMatch:             merger.DefaultMinMatchWords,
		Budget:               types.DefaultMemoryBudget(),
	}
}

// Pipeline wires the planner, executor, and merger together into one run.
type Pipeline struct {
	reader      objectstore.RangeReader
	transcriber transcribeclient.Client
	cache       *cache.ChunkCache
	gate        *backpressure.Gate
	metrics     *telemetry.Metrics
	params      Params
	ffmpegPath  string
	logger      *zap.Logger
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithGate overrides the backpressure gate shared by this pipeline's runs.
func WithGate(g *backpressure.Gate) Option {
	return func(p *Pipeline) {
		if g != nil {
			p.gate = g
		}
	}
}

// WithMetrics attaches a telemetry bundle; without it no metrics are
// reported.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New builds a Pipeline. chunkCache may be shared across runs. ffmpegPath
// is the resolved path to the ffmpeg binary the silence probe shells out
// to (see internal/ffmpeg.Resolve).
func New(reader objectstore.RangeReader, transcriber transcribeclient.Client, chunkCache *cache.ChunkCache, params Params, ffmpegPath string, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &Pipeline{
		reader:      reader,
		transcriber: transcriber,
		cache:       chunkCache,
		gate:        backpressure.New(params.Budget),
		params:      params,
		ffmpegPath:  ffmpegPath,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives req through PLANNING, PROCESSING, and MERGING, calling
// onProgress after every state transition and after every executed chunk.
// It returns the merged transcript on success, or a *types.PipelineError
// on failure; the run's terminal state is always reported via onProgress
// before Run returns.
func (p *Pipeline) Run(ctx context.Context, req Request, onProgress ProgressFunc) (Result, error) {
	report := func(s Status) {
		if onProgress != nil {
			onProgress(s)
		}
	}

	if err := p.validate(req); err != nil {
		return p.fail(report, err)
	}

	if p.metrics != nil {
		p.metrics.RunsStarted.Inc()
	}
	report(Status{State: types.StateRunning})

	info, err := p.reader.Head(ctx, req.Bucket, req.Key)
	if err != nil {
		kind := types.KindTransport
		if errors.Is(err, objectstore.ErrNotFound) {
			kind = types.KindNotFound
		}
		return p.fail(report, types.NewPipelineError(kind, fmt.Sprintf("head object %s/%s", req.Bucket, req.Key), err))
	}

	totalSeconds := float64(info.SizeBytes) / p.params.Planner.BytesPerSecond
	if maxSeconds := p.params.MaxFileDurationHours * 3600; maxSeconds > 0 && totalSeconds > maxSeconds {
		return p.fail(report, types.NewPipelineError(types.KindTooLong,
			fmt.Sprintf("estimated duration %.0fs exceeds the %.0fh limit", totalSeconds, p.params.MaxFileDurationHours), nil))
	}

	report(Status{State: types.StatePlanning})
	plans, err := p.plan(ctx, req, info.SizeBytes)
	if err != nil {
		return p.fail(report, asPipelineError(err))
	}

	report(Status{State: types.StateProcessing, Progress: 0})
	transcripts, err := p.process(ctx, req, plans, info.SizeBytes, report)
	if err != nil {
		return p.fail(report, asPipelineError(err))
	}

	p.warnMixedLanguages(transcripts)

	report(Status{State: types.StateMerging, Progress: 1})
	segments := p.merge(req.Mode, plans, transcripts)
	if err := checkMerged(segments); err != nil {
		return p.fail(report, asPipelineError(err))
	}

	if p.metrics != nil {
		p.metrics.RunsCompleted.Inc()
	}
	report(Status{State: types.StateCompleted, Progress: 1})
	return Result{Segments: segments}, nil
}

// validate rejects a malformed request before any remote call is made.
func (p *Pipeline) validate(req Request) *types.PipelineError {
	if req.Bucket == "" || req.Key == "" {
		return types.NewPipelineError(types.KindValidationError, "bucket and key must be non-empty", nil)
	}
	if req.Mode == types.ModeOverlap && p.params.OverlapSeconds >= p.params.Planner.MaxChunkSeconds {
		return types.NewPipelineError(types.KindValidationError,
			fmt.Sprintf("overlapSeconds (%g) must be less than maxChunkDurationSeconds (%g)",
				p.params.OverlapSeconds, p.params.Planner.MaxChunkSeconds), nil)
	}
	return nil
}

func (p *Pipeline) plan(ctx context.Context, req Request, sizeBytes uint64) ([]types.ChunkPlan, error) {
	if req.Mode == types.ModeOverlap {
		return fixedOverlapPlan(sizeBytes, p.params.Planner, p.params.OverlapSeconds), nil
	}

	probe := silence.NewProbe(p.ffmpegPath, p.params.Silence)
	gp := planner.New(p.reader, probe, p.params.Planner)
	return gp.Plan(ctx, req.Bucket, req.Key, sizeBytes)
}

func (p *Pipeline) process(ctx context.Context, req Request, plans []types.ChunkPlan, sizeBytes uint64, report ProgressFunc) ([]types.ChunkTranscript, error) {
	exec := executor.New(p.reader, p.transcriber, p.cache, p.gate, p.params.Planner.BytesPerSecond, p.logger).
		WithMetrics(p.metrics)

	transcripts := make([]types.ChunkTranscript, 0, len(plans))
	for i, plan := range plans {
		select {
		case <-ctx.Done():
			return nil, types.NewPipelineError(types.KindCancelled, "run cancelled", ctx.Err())
		default:
		}

		t, err := exec.Execute(ctx, req.Bucket, req.Key, plan, sizeBytes)
		if err != nil {
			return nil, err
		}
		transcripts = append(transcripts, t)

		report(Status{
			State:      types.StateProcessing,
			Progress:   float64(i+1) / float64(len(plans)),
			ChunkIndex: plan.Index,
		})
	}
	return transcripts, nil
}

// warnMixedLanguages flags a run whose chunks came back in different
// primary languages, which usually means the service misdetected some
// chunks and the merged transcript should be reviewed.
func (p *Pipeline) warnMixedLanguages(transcripts []types.ChunkTranscript) {
	var first string
	for _, t := range transcripts {
		primary := lang.Primary(t.Language)
		if primary == "" {
			continue
		}
		if first == "" {
			first = primary
			continue
		}
		if primary != first {
			p.logger.Warn("chunks disagree on detected language",
				zap.String("first", first),
				zap.String("other", primary),
				zap.Int("chunk_index", t.ChunkIndex))
			return
		}
	}
}

func (p *Pipeline) merge(mode types.ChunkingMode, plans []types.ChunkPlan, transcripts []types.ChunkTranscript) []types.MergedSegment {
	m := merger.New(p.params.MinMatch, p.logger)
	if mode == types.ModeOverlap {
		return m.MergeOverlap(plans, transcripts)
	}
	return m.MergeSilenceAware(plans, transcripts)
}

// checkMerged verifies the merged timeline never runs backwards; a
// violation is a bug in planning or merging, not bad input.
func checkMerged(segments []types.MergedSegment) error {
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].Start {
			return types.NewPipelineError(types.KindInternalInvariant,
				fmt.Sprintf("merged segment %d starts at %.3f, before segment %d at %.3f",
					i, segments[i].Start, i-1, segments[i-1].Start), nil)
		}
	}
	return nil
}

func (p *Pipeline) fail(report ProgressFunc, pe *types.PipelineError) (Result, error) {
	if p.metrics != nil {
		p.metrics.RunsFailed.Inc()
	}
	report(Status{State: types.StateFailed, Err: pe})
	return Result{}, pe
}

func asPipelineError(err error) *types.PipelineError {
	if pe, ok := err.(*types.PipelineError); ok {
		return pe
	}
	return types.NewPipelineError(types.KindInternalInvariant, "unclassified pipeline error", err)
}

// fixedOverlapPlan builds fixed-duration chunks whose neighbors share
// overlapSeconds of audio, for ModeOverlap runs that skip silence
// analysis entirely.
func fixedOverlapPlan(sizeBytes uint64, params planner.Params, overlapSeconds float64) []types.ChunkPlan {
	totalSeconds := float64(sizeBytes) / params.BytesPerSecond
	if totalSeconds <= 0 {
		return nil
	}
	step := params.MaxChunkSeconds - overlapSeconds
	if step <= 0 {
		step = params.MaxChunkSeconds
	}

	var plans []types.ChunkPlan
	start := 0.0
	for {
		end := min(start+params.MaxChunkSeconds, totalSeconds)
		plans = append(plans, types.ChunkPlan{Index: len(plans), StartOffset: start, EndOffset: end})
		if end >= totalSeconds {
			break
		}
		start += step
	}
	return plans
}
