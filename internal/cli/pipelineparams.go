package cli

import (
	"github.com/streamscribe/streamscribe/internal/config"
	"github.com/streamscribe/streamscribe/internal/pipeline"
	"github.com/streamscribe/streamscribe/internal/planner"
	"github.com/streamscribe/streamscribe/internal/silence"
	"github.com/streamscribe/streamscribe/internal/types"
)

// pipelineParams translates a loaded config.PipelineConfig into the typed
// pipeline.Params the core consumes.
func pipelineParams(cfg config.PipelineConfig) pipeline.Params {
	return pipeline.Params{
		Planner: planner.Params{
			MaxChunkSeconds: cfg.MaxChunkDurationSeconds,
			LookbackSeconds: cfg.LookbackSeconds,
			BytesPerSecond:  cfg.BytesPerSecond,
			TempDir:         cfg.TempDir,
			SilenceParams: silence.Params{
				NoiseThresholdDB:   cfg.SilenceNoiseThreshold,
				MinDurationSeconds: cfg.SilenceMinDuration,
			},
		},
		Silence: silence.Params{
			NoiseThresholdDB:   cfg.SilenceNoiseThreshold,
			MinDurationSeconds: cfg.SilenceMinDuration,
		},
		OverlapSeconds:       cfg.OverlapSeconds,
		MaxFileDurationHours: cfg.MaxFileDurationHours,
		MinMatch:             cfg.MinMatchWords,
		Budget:               types.DefaultMemoryBudget(),
	}
}
