// Package executor implements the chunk executor: for each planned
// chunk it checks the cache first, waits on backpressure, streams the
// padded byte range to a local temp file, transcribes it, and caches the
// result. The temp file is always removed, win or lose.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/streamscribe/streamscribe/internal/cache"
	"github.com/streamscribe/streamscribe/internal/iodeps"
	"github.com/streamscribe/streamscribe/internal/objectstore"
	"github.com/streamscribe/streamscribe/internal/telemetry"
	"github.com/streamscribe/streamscribe/internal/transcribeclient"
	"github.com/streamscribe/streamscribe/internal/types"
)

// BleedSeconds is the fixed padding applied to both ends of a chunk's byte
// range before reading, so a transcription model sees a little context
// across the cut.
const BleedSeconds = 1.0

// gate is the subset of *backpressure.Gate the executor depends on.
type gate interface {
	ShouldPause() bool
	WaitIfNeeded(ctx context.Context)
}

// Executor runs ChunkPlans against a remote object, producing
// ChunkTranscripts.
type Executor struct {
	reader         objectstore.RangeReader
	transcriber    transcribeclient.Client
	cache          *cache.ChunkCache
	gate           gate
	bytesPerSecond float64
	tempDirs       iodeps.TempDirCreator
	files          iodeps.FileCreator
	remover        iodeps.FileRemover
	metrics        *telemetry.Metrics
	logger         *zap.Logger
}

// New builds an Executor.
func New(reader objectstore.RangeReader, transcriber transcribeclient.Client, chunkCache *cache.ChunkCache, g gate, bytesPerSecond float64, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		reader:         reader,
		transcriber:    transcriber,
		cache:          chunkCache,
		gate:           g,
		bytesPerSecond: bytesPerSecond,
		tempDirs:       iodeps.OSTempDirCreator{},
		files:          iodeps.OSFileCreator{},
		remover:        iodeps.OSFileRemover{},
		logger:         logger,
	}
}

// WithFileDeps overrides the filesystem seams, for tests.
func (e *Executor) WithFileDeps(t iodeps.TempDirCreator, f iodeps.FileCreator, r iodeps.FileRemover) *Executor {
	e.tempDirs, e.files, e.remover = t, f, r
	return e
}

// WithMetrics attaches a telemetry bundle; nil leaves metrics off.
func (e *Executor) WithMetrics(m *telemetry.Metrics) *Executor {
	e.metrics = m
	return e
}

// Execute runs plan against bucket/key, consulting the cache first and
// honoring backpressure before doing any remote I/O.
func (e *Executor) Execute(ctx context.Context, bucket, key string, plan types.ChunkPlan, fileSizeBytes uint64) (types.ChunkTranscript, error) {
	cacheKey := types.CacheKey{
		Bucket:       bucket,
		ObjectKey:    key,
		ChunkIndex:   plan.Index,
		StartSeconds: plan.StartOffset,
		EndSeconds:   plan.EndOffset,
	}

	if cached, ok := e.cache.Get(cacheKey); ok {
		e.logger.Debug("chunk cache hit", zap.Int("chunk_index", plan.Index))
		if e.metrics != nil {
			e.metrics.CacheHits.Inc()
		}
		return cached, nil
	}
	if e.metrics != nil {
		e.metrics.CacheMisses.Inc()
	}

	if e.gate.ShouldPause() {
		if e.metrics != nil {
			e.metrics.BackpressurePauses.Inc()
		}
		e.logger.Warn("memory pressure high, pausing before next chunk", zap.Int("chunk_index", plan.Index))
	}
	e.gate.WaitIfNeeded(ctx)

	started := time.Now()
	startByte, endByte := bleedRange(plan, e.bytesPerSecond, fileSizeBytes)
	transcript, err := e.executeUncached(ctx, bucket, key, plan, startByte, endByte)
	if err != nil {
		return types.ChunkTranscript{}, err
	}
	if e.metrics != nil {
		e.metrics.ChunkDuration.Observe(time.Since(started).Seconds())
	}

	e.cache.Put(cacheKey, transcript)
	return transcript, nil
}

func (e *Executor) executeUncached(ctx context.Context, bucket, key string, plan types.ChunkPlan, startByte, endByte uint64) (types.ChunkTranscript, error) {
	dir, err := e.tempDirs.MkdirTemp("", "executor-chunk-*")
	if err != nil {
		return types.ChunkTranscript{}, types.NewChunkError(types.KindInternalInvariant, plan.Index, "create chunk temp dir", err)
	}
	defer func() { _ = e.remover.RemoveAll(dir) }()

	localPath := fmt.Sprintf("%s/chunk-%d.audio", dir, plan.Index)
	f, err := e.files.Create(localPath)
	if err != nil {
		return types.ChunkTranscript{}, types.NewChunkError(types.KindInternalInvariant, plan.Index, "create chunk temp file", err)
	}

	_, copyErr := objectstore.CopyRangeToFile(ctx, e.reader, bucket, key, startByte, endByte, f)
	closeErr := f.Close()
	if copyErr != nil {
		kind := types.KindTransport
		if errors.Is(copyErr, objectstore.ErrNotFound) {
			kind = types.KindNotFound
		}
		return types.ChunkTranscript{}, types.NewChunkError(kind, plan.Index, "stream chunk bytes", copyErr)
	}
	if closeErr != nil {
		return types.ChunkTranscript{}, types.NewChunkError(types.KindInternalInvariant, plan.Index, "close chunk temp file", closeErr)
	}

	result, err := e.transcriber.Transcribe(ctx, localPath, plan.Duration(), plan.Index)
	if err != nil {
		kind := types.KindTransport
		if errors.Is(err, context.Canceled) {
			kind = types.KindCancelled
		}
		return types.ChunkTranscript{}, types.NewChunkError(kind, plan.Index, "transcribe chunk", err)
	}

	return types.ChunkTranscript{
		ChunkIndex:  plan.Index,
		StartOffset: plan.StartOffset,
		Segments:    result.Segments,
		Language:    result.Language,
	}, nil
}

// bleedRange computes the byte range to read for plan, padding
// BleedSeconds on each side and clamping to the file bounds.
func bleedRange(plan types.ChunkPlan, bytesPerSecond float64, fileSizeBytes uint64) (uint64, uint64) {
	bleedBytes := uint64(BleedSeconds * bytesPerSecond)

	startBytesSigned := int64(plan.StartOffset*bytesPerSecond) - int64(bleedBytes)
	var startByte uint64
	if startBytesSigned > 0 {
		startByte = uint64(startBytesSigned)
	}

	endByte := uint64(plan.EndOffset*bytesPerSecond) + bleedBytes
	if fileSizeBytes > 0 && endByte > fileSizeBytes-1 {
		endByte = fileSizeBytes - 1
	}

	return startByte, endByte
}
