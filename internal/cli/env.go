package cli

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/streamscribe/streamscribe/internal/cache"
	"github.com/streamscribe/streamscribe/internal/config"
	"github.com/streamscribe/streamscribe/internal/dispatcher"
	"github.com/streamscribe/streamscribe/internal/ffmpeg"
	"github.com/streamscribe/streamscribe/internal/jobstore"
	"github.com/streamscribe/streamscribe/internal/logging"
	"github.com/streamscribe/streamscribe/internal/objectstore"
	"github.com/streamscribe/streamscribe/internal/pipeline"
	"github.com/streamscribe/streamscribe/internal/transcribeclient"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	FFmpegResolver          FFmpegResolver
	PipelineConfigLoader    PipelineConfigLoader
	ObjectStoreFactory      ObjectStoreFactory
	TranscribeClientFactory TranscribeClientFactory
	PipelineFactory         PipelineFactory
	DispatcherFactory       DispatcherFactory
}

// FFmpegResolver resolves the path to the ffmpeg binary.
type FFmpegResolver interface {
	Resolve() (string, error)
}

// PipelineConfigLoader loads a run's pipeline tuning configuration from a
// YAML file path (empty path uses defaults).
type PipelineConfigLoader interface {
	LoadPipeline(path string) (config.PipelineConfig, error)
}

// ObjectStoreFactory builds the RangeReader a run streams audio through.
type ObjectStoreFactory interface {
	NewRangeReader(ctx context.Context, opts objectstore.ClientOptions) (objectstore.RangeReader, error)
}

// TranscribeClientFactory builds the client used to transcribe chunks.
type TranscribeClientFactory interface {
	NewClient(baseURL, apiKey string) transcribeclient.Client
}

// PipelineFactory assembles a Pipeline from its dependencies.
type PipelineFactory interface {
	NewPipeline(reader objectstore.RangeReader, transcriber transcribeclient.Client, chunkCache *cache.ChunkCache, params pipeline.Params, ffmpegPath string, logger *zap.Logger, opts ...pipeline.Option) *pipeline.Pipeline
}

// DispatcherFactory builds the worker pool that runs queued pipeline jobs.
type DispatcherFactory interface {
	NewDispatcher(p *pipeline.Pipeline, store *jobstore.Store, concurrentRuns int, logger *zap.Logger) *dispatcher.Dispatcher
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) {
		e.FFmpegResolver = r
	}
}

// WithPipelineConfigLoader sets the pipeline config loader.
func WithPipelineConfigLoader(l PipelineConfigLoader) EnvOption {
	return func(e *Env) {
		e.PipelineConfigLoader = l
	}
}

// WithObjectStoreFactory sets the object store factory.
func WithObjectStoreFactory(f ObjectStoreFactory) EnvOption {
	return func(e *Env) {
		e.ObjectStoreFactory = f
	}
}

// WithTranscribeClientFactory sets the transcribe client factory.
func WithTranscribeClientFactory(f TranscribeClientFactory) EnvOption {
	return func(e *Env) {
		e.TranscribeClientFactory = f
	}
}

// WithPipelineFactory sets the pipeline factory.
func WithPipelineFactory(f PipelineFactory) EnvOption {
	return func(e *Env) {
		e.PipelineFactory = f
	}
}

// WithDispatcherFactory sets the dispatcher factory.
func WithDispatcherFactory(f DispatcherFactory) EnvOption {
	return func(e *Env) {
		e.DispatcherFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stderr:                  os.Stderr,
		Getenv:                  os.Getenv,
		Now:                     time.Now,
		FFmpegResolver:          &defaultFFmpegResolver{},
		PipelineConfigLoader:    &defaultPipelineConfigLoader{},
		ObjectStoreFactory:      &defaultObjectStoreFactory{},
		TranscribeClientFactory: &defaultTranscribeClientFactory{},
		PipelineFactory:         &defaultPipelineFactory{},
		DispatcherFactory:       &defaultDispatcherFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultFFmpegResolver implements FFmpegResolver using the ffmpeg package.
type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve() (string, error) {
	return ffmpeg.Resolve()
}

// defaultPipelineConfigLoader implements PipelineConfigLoader using the
// config package's YAML loader.
type defaultPipelineConfigLoader struct{}

func (defaultPipelineConfigLoader) LoadPipeline(path string) (config.PipelineConfig, error) {
	return config.LoadPipeline(path)
}

// defaultObjectStoreFactory builds a production S3-compatible RangeReader.
type defaultObjectStoreFactory struct{}

func (defaultObjectStoreFactory) NewRangeReader(ctx context.Context, opts objectstore.ClientOptions) (objectstore.RangeReader, error) {
	return objectstore.NewDefaultStore(ctx, opts)
}

// defaultTranscribeClientFactory builds a production HTTP transcription
// client.
type defaultTranscribeClientFactory struct{}

func (defaultTranscribeClientFactory) NewClient(baseURL, apiKey string) transcribeclient.Client {
	return transcribeclient.NewHTTPClient(baseURL, apiKey)
}

// defaultPipelineFactory builds a production Pipeline.
type defaultPipelineFactory struct{}

func (defaultPipelineFactory) NewPipeline(reader objectstore.RangeReader, transcriber transcribeclient.Client, chunkCache *cache.ChunkCache, params pipeline.Params, ffmpegPath string, logger *zap.Logger, opts ...pipeline.Option) *pipeline.Pipeline {
	return pipeline.New(reader, transcriber, chunkCache, params, ffmpegPath, logger, opts...)
}

// defaultDispatcherFactory builds a production Dispatcher.
type defaultDispatcherFactory struct{}

func (defaultDispatcherFactory) NewDispatcher(p *pipeline.Pipeline, store *jobstore.Store, concurrentRuns int, logger *zap.Logger) *dispatcher.Dispatcher {
	return dispatcher.New(p, store, concurrentRuns, logger)
}

// NewLogger builds the process logger, delegating to internal/logging.
func NewLogger(level, encoding string) *zap.Logger {
	return logging.New(logging.Options{Level: level, Encoding: encoding})
}

// Compile-time interface verification.
var (
	_ FFmpegResolver          = (*defaultFFmpegResolver)(nil)
	_ PipelineConfigLoader    = (*defaultPipelineConfigLoader)(nil)
	_ ObjectStoreFactory      = (*defaultObjectStoreFactory)(nil)
	_ TranscribeClientFactory = (*defaultTranscribeClientFactory)(nil)
	_ PipelineFactory         = (*defaultPipelineFactory)(nil)
	_ DispatcherFactory       = (*defaultDispatcherFactory)(nil)
)
