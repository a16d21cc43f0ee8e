// Package dispatcher is the asynchronous job dispatcher: it accepts
// transcription run requests and executes them against a bounded worker
// pool, so distinct runs execute concurrently while a single run's chunks
// still process sequentially inside internal/pipeline.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streamscribe/streamscribe/internal/jobstore"
	"github.com/streamscribe/streamscribe/internal/pipeline"
	"github.com/streamscribe/streamscribe/internal/types"
)

// DefaultConcurrentRuns is the worker-pool size when none is configured.
const DefaultConcurrentRuns = 4

// Job is one queued transcription run.
type Job struct {
	RunID string
	Req   pipeline.Request
}

// Dispatcher runs queued Jobs against a bounded pool of pipeline workers,
// recording progress in a jobstore.Store as each run advances.
type Dispatcher struct {
	pipeline *pipeline.Pipeline
	store    *jobstore.Store
	sem      chan struct{}
	logger   *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	onResult func(runID string, segments []types.MergedSegment)
}

// WithResultSink registers fn to receive each completed run's merged
// transcript, typically a jobstore.Results.
func (d *Dispatcher) WithResultSink(fn func(runID string, segments []types.MergedSegment)) *Dispatcher {
	d.onResult = fn
	return d
}

// New builds a Dispatcher that runs at most concurrentRuns pipelines at
// once. concurrentRuns <= 0 uses DefaultConcurrentRuns.
func New(p *pipeline.Pipeline, store *jobstore.Store, concurrentRuns int, logger *zap.Logger) *Dispatcher {
	if concurrentRuns <= 0 {
		concurrentRuns = DefaultConcurrentRuns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		pipeline: p,
		store:    store,
		sem:      make(chan struct{}, concurrentRuns),
		logger:   logger,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Cancel signals runID's context. In-flight external calls finish on their
// own; no new chunks start. Returns false when runID is not currently
// queued or running.
func (d *Dispatcher) Cancel(runID string) bool {
	d.mu.Lock()
	cancel, ok := d.cancels[runID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (d *Dispatcher) register(runID string, cancel context.CancelFunc) {
	d.mu.Lock()
	d.cancels[runID] = cancel
	d.mu.Unlock()
}

func (d *Dispatcher) unregister(runID string) {
	d.mu.Lock()
	delete(d.cancels, runID)
	d.mu.Unlock()
}

// Submit records jobs as PENDING and dispatches them onto the worker pool
// without blocking; jobs beyond the concurrency limit queue on the
// semaphore. Submit returns once every job has a goroutine queued for it,
// not once they've finished — poll the jobstore for terminal status.
func (d *Dispatcher) Submit(ctx context.Context, jobs ...Job) {
	for _, j := range jobs {
		d.store.Set(j.RunID, pipeline.Status{State: types.StatePending})
		go d.run(ctx, j)
	}
}

// RunAll dispatches jobs onto the worker pool and blocks until every job
// reaches a terminal state, returning the first error encountered (if
// any), aggregated via errgroup so a dispatcher-level cancellation (e.g.
// the caller's context expiring) aborts remaining queued work.
func (d *Dispatcher) RunAll(ctx context.Context, jobs ...Job) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, j := range jobs {
		job := j
		d.store.Set(job.RunID, pipeline.Status{State: types.StatePending})
		g.Go(func() error {
			return d.runAndReport(gctx, job)
		})
	}

	return g.Wait()
}

// run dispatches job in the background, logging but not propagating its
// error — Submit's fire-and-forget callers observe outcome via jobstore.
func (d *Dispatcher) run(ctx context.Context, j Job) {
	if err := d.runAndReport(ctx, j); err != nil {
		d.logger.Warn("dispatched run failed", zap.String("run_id", j.RunID), zap.Error(err))
	}
}

// runAndReport acquires a worker slot, executes job's pipeline run, and
// mirrors every progress callback into the jobstore under job.RunID.
func (d *Dispatcher) runAndReport(ctx context.Context, j Job) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.register(j.RunID, cancel)
	defer d.unregister(j.RunID)

	select {
	case d.sem <- struct{}{}:
	case <-runCtx.Done():
		d.store.Set(j.RunID, pipeline.Status{
			State: types.StateFailed,
			Err:   types.NewPipelineError(types.KindCancelled, "run cancelled before starting", runCtx.Err()),
		})
		return runCtx.Err()
	}
	defer func() { <-d.sem }()

	res, err := d.pipeline.Run(runCtx, j.Req, func(s pipeline.Status) {
		d.store.Set(j.RunID, s)
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", j.RunID, err)
	}
	if d.onResult != nil {
		d.onResult(j.RunID, res.Segments)
	}
	return nil
}
