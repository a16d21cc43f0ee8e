package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streamscribe/streamscribe/internal/cache"
	"github.com/streamscribe/streamscribe/internal/config"
	"github.com/streamscribe/streamscribe/internal/format"
	"github.com/streamscribe/streamscribe/internal/objectstore"
	"github.com/streamscribe/streamscribe/internal/pipeline"
	"github.com/streamscribe/streamscribe/internal/serialize"
	"github.com/streamscribe/streamscribe/internal/types"
)

// RunCmd builds the "run" subcommand: a synchronous, single-run
// transcription against one object-store coordinate, for scripting and
// one-off jobs outside the HTTP API.
func RunCmd(env *Env) *cobra.Command {
	var (
		bucket       string
		key          string
		mode         string
		pipelineConf string
		outputDir    string
		format       string
		endpoint     string
		apiKey       string
		s3Region     string
		s3Endpoint   string
		pathStyle    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transcribe one object-store file synchronously",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), env, runOptions{
				bucket:       bucket,
				key:          key,
				mode:         mode,
				pipelineConf: pipelineConf,
				outputDir:    outputDir,
				format:       format,
				endpoint:     endpoint,
				apiKey:       apiKey,
				s3Region:     s3Region,
				s3Endpoint:   s3Endpoint,
				pathStyle:    pathStyle,
			})
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "object-store bucket (required)")
	cmd.Flags().StringVar(&key, "key", "", "object-store key (required)")
	cmd.Flags().StringVar(&mode, "mode", "silence_aware", "chunking mode: silence_aware or overlap")
	cmd.Flags().StringVar(&pipelineConf, "pipeline-config", "", "path to a pipeline YAML config file")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write the transcript to (defaults to config/cwd)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, srt, or both")
	cmd.Flags().StringVar(&endpoint, "transcribe-endpoint", "", "base URL of the transcription service (or "+config.EnvTranscribeEndpoint+")")
	cmd.Flags().StringVar(&apiKey, "transcribe-api-key", "", "bearer token for the transcription service")
	cmd.Flags().StringVar(&s3Region, "s3-region", "", "object-store region")
	cmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "custom S3-compatible endpoint")
	cmd.Flags().BoolVar(&pathStyle, "s3-path-style", false, "use path-style S3 addressing")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

type runOptions struct {
	bucket, key, mode, pipelineConf, outputDir, format string
	endpoint, apiKey, s3Region, s3Endpoint             string
	pathStyle                                          bool
}

func runOnce(ctx context.Context, env *Env, opts runOptions) error {
	mode, err := parseMode(opts.mode)
	if err != nil {
		return err
	}

	svc := config.ServiceFromEnv(env.Getenv)
	endpoint := config.Fallback(opts.endpoint, svc.TranscribeEndpoint)
	if endpoint == "" {
		return types.NewPipelineError(types.KindValidationError,
			"transcription endpoint is required (--transcribe-endpoint or "+config.EnvTranscribeEndpoint+")", nil)
	}
	opts.outputDir = config.Fallback(opts.outputDir, svc.OutputDir)

	pipeConf, err := env.PipelineConfigLoader.LoadPipeline(opts.pipelineConf)
	if err != nil {
		return err
	}

	reader, err := env.ObjectStoreFactory.NewRangeReader(ctx, objectstore.ClientOptions{
		Region:       config.Fallback(opts.s3Region, svc.S3Region),
		Endpoint:     config.Fallback(opts.s3Endpoint, svc.S3Endpoint),
		UsePathStyle: opts.pathStyle || svc.S3PathStyle,
	})
	if err != nil {
		return fmt.Errorf("build object store client: %w", err)
	}

	transcriber := env.TranscribeClientFactory.NewClient(endpoint, config.Fallback(opts.apiKey, svc.TranscribeAPIKey))

	ffmpegPath, err := env.FFmpegResolver.Resolve()
	if err != nil {
		return err
	}

	logger := NewLogger("info", "json")
	defer func() { _ = logger.Sync() }()

	chunkCache := cache.New(
		time.Duration(pipeConf.Cache.TTLHours)*time.Hour,
		pipeConf.Cache.MaxSize,
	)

	p := env.PipelineFactory.NewPipeline(reader, transcriber, chunkCache, pipelineParams(pipeConf), ffmpegPath, logger)

	result, err := p.Run(ctx, pipeline.Request{Bucket: opts.bucket, Key: opts.key, Mode: mode}, func(s pipeline.Status) {
		logger.Info("run progress",
			zap.String("state", s.State.String()),
			zap.Float64("progress", s.Progress))
	})
	if err != nil {
		return err
	}

	if n := len(result.Segments); n > 0 {
		span := time.Duration(result.Segments[n-1].End * float64(time.Second))
		logger.Info("run completed",
			zap.Int("segments", n),
			zap.String("transcribed", format.Duration(span)))
	}

	return writeResult(result.Segments, opts)
}

func parseMode(s string) (types.ChunkingMode, error) {
	switch s {
	case "", "silence_aware":
		return types.ModeSilenceAware, nil
	case "overlap":
		return types.ModeOverlap, nil
	default:
		return 0, types.NewPipelineError(types.KindValidationError, fmt.Sprintf("unknown mode %q", s), nil)
	}
}

func writeResult(segments []types.MergedSegment, opts runOptions) error {
	outputDir := opts.outputDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := config.EnsureOutputDir(outputDir); err != nil {
		return err
	}

	base := filepath.Base(opts.key)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	if stem == "" {
		stem = "transcript"
	}

	writeJSON := opts.format == "json" || opts.format == "both"
	writeSRT := opts.format == "srt" || opts.format == "both"

	if writeJSON {
		data, err := serialize.JSON(segments)
		if err != nil {
			return fmt.Errorf("render json transcript: %w", err)
		}
		if err := os.WriteFile(filepath.Join(outputDir, stem+".json"), data, 0o644); err != nil { //nolint:gosec // transcript output, not secret
			return fmt.Errorf("write json transcript: %w", err)
		}
	}
	if writeSRT {
		data := serialize.SRT(segments)
		if err := os.WriteFile(filepath.Join(outputDir, stem+".srt"), []byte(data), 0o644); err != nil { //nolint:gosec // transcript output, not secret
			return fmt.Errorf("write srt transcript: %w", err)
		}
	}
	return nil
}
