package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streamscribe/streamscribe/internal/cache"
	"github.com/streamscribe/streamscribe/internal/config"
	"github.com/streamscribe/streamscribe/internal/dashboard"
	"github.com/streamscribe/streamscribe/internal/httpapi"
	"github.com/streamscribe/streamscribe/internal/jobstore"
	"github.com/streamscribe/streamscribe/internal/objectstore"
	"github.com/streamscribe/streamscribe/internal/pipeline"
	"github.com/streamscribe/streamscribe/internal/telemetry"
	"github.com/streamscribe/streamscribe/internal/types"
)

// ServeCmd builds the "serve" subcommand: a long-running HTTP server that
// accepts transcription run requests and dispatches them onto a bounded
// worker pool.
func ServeCmd(env *Env) *cobra.Command {
	var (
		addr           string
		dashboardBase  string
		concurrentRuns int
		pipelineConf   string
		endpoint       string
		apiKey         string
		s3Region       string
		s3Endpoint     string
		pathStyle      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API that accepts and dispatches transcription jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), env, serveOptions{
				addr:           addr,
				dashboardBase:  dashboardBase,
				concurrentRuns: concurrentRuns,
				pipelineConf:   pipelineConf,
				endpoint:       endpoint,
				apiKey:         apiKey,
				s3Region:       s3Region,
				s3Endpoint:     s3Endpoint,
				pathStyle:      pathStyle,
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&dashboardBase, "dashboard-base-url", "", "base URL for operator dashboard links (or "+config.EnvDashboardBaseURL+")")
	cmd.Flags().IntVar(&concurrentRuns, "concurrent-runs", 0, "max concurrent transcription runs (0 = config default)")
	cmd.Flags().StringVar(&pipelineConf, "pipeline-config", "", "path to a pipeline YAML config file")
	cmd.Flags().StringVar(&endpoint, "transcribe-endpoint", "", "base URL of the transcription service (or "+config.EnvTranscribeEndpoint+")")
	cmd.Flags().StringVar(&apiKey, "transcribe-api-key", "", "bearer token for the transcription service")
	cmd.Flags().StringVar(&s3Region, "s3-region", "", "object-store region")
	cmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "custom S3-compatible endpoint")
	cmd.Flags().BoolVar(&pathStyle, "s3-path-style", false, "use path-style S3 addressing")

	return cmd
}

type serveOptions struct {
	addr, dashboardBase                   string
	concurrentRuns                        int
	pipelineConf                          string
	endpoint, apiKey, s3Region, s3Endpoint string
	pathStyle                              bool
}

func serve(ctx context.Context, env *Env, opts serveOptions) error {
	svc := config.ServiceFromEnv(env.Getenv)
	endpoint := config.Fallback(opts.endpoint, svc.TranscribeEndpoint)
	if endpoint == "" {
		return types.NewPipelineError(types.KindValidationError,
			"transcription endpoint is required (--transcribe-endpoint or "+config.EnvTranscribeEndpoint+")", nil)
	}
	dashboardBase := config.Fallback(opts.dashboardBase, svc.DashboardBaseURL)
	if dashboardBase == "" {
		dashboardBase = "http://localhost:3000"
	}

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

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	chunkCache := cache.New(time.Duration(pipeConf.Cache.TTLHours)*time.Hour, pipeConf.Cache.MaxSize)
	p := env.PipelineFactory.NewPipeline(reader, transcriber, chunkCache, pipelineParams(pipeConf), ffmpegPath, logger,
		pipeline.WithMetrics(metrics))

	store := jobstore.New(0)
	results := jobstore.NewResults(0)
	concurrentRuns := opts.concurrentRuns
	if concurrentRuns <= 0 {
		concurrentRuns = pipeConf.ConcurrentRuns
	}
	d := env.DispatcherFactory.NewDispatcher(p, store, concurrentRuns, logger).
		WithResultSink(results.Set)

	runCounter := 0
	newID := func() string {
		runCounter++
		return fmt.Sprintf("run-%d-%d", env.Now().UnixNano(), runCounter)
	}

	server := httpapi.New(d, store, newID, dashboard.BaseURL(dashboardBase), logger).
		WithResults(results).
		WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", opts.addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
