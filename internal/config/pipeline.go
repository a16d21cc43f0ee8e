package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineConfig holds the recognized run-tuning options. Zero values are
// replaced with DefaultPipelineConfig's defaults by ApplyDefaults, so a
// partial YAML file only needs to name what it overrides.
type PipelineConfig struct {
	MaxChunkDurationSeconds float64 `yaml:"maxChunkDurationSeconds"`
	MaxFileDurationHours    float64 `yaml:"maxFileDurationHours"`
	OverlapSeconds          float64 `yaml:"overlapSeconds"`
	SilenceNoiseThreshold   float64 `yaml:"silenceNoiseThreshold"`
	SilenceMinDuration      float64 `yaml:"silenceMinDuration"`
	LookbackSeconds         float64 `yaml:"lookbackSeconds"`
	MinMatchWords           int     `yaml:"minMatchWords"`
	BytesPerSecond          float64 `yaml:"bytesPerSecond"`
	TempDir                 string  `yaml:"tempDir"`
	ConcurrentRuns          int     `yaml:"concurrentRuns"`

	Cache struct {
		MaxSize  int `yaml:"maxSize"`
		TTLHours int `yaml:"ttlHours"`
	} `yaml:"cache"`
}

// DefaultPipelineConfig returns the default run configuration: hour-long
// chunks, ten-minute lookback, and the 128 kbps stereo byte-rate estimate.
func DefaultPipelineConfig() PipelineConfig {
	cfg := PipelineConfig{
		MaxChunkDurationSeconds: 3600,
		MaxFileDurationHours:    24,
		OverlapSeconds:          30,
		SilenceNoiseThreshold:   -30,
		SilenceMinDuration:      0.5,
		LookbackSeconds:         600,
		MinMatchWords:           3,
		BytesPerSecond:          16000,
		TempDir:                 os.TempDir(),
		ConcurrentRuns:          4,
	}
	cfg.Cache.MaxSize = 10000
	cfg.Cache.TTLHours = 24
	return cfg
}

// ApplyDefaults fills every zero-valued field of cfg from
// DefaultPipelineConfig, so a YAML file that only sets one option leaves
// the rest at their spec-defined defaults.
func (cfg PipelineConfig) ApplyDefaults() PipelineConfig {
	d := DefaultPipelineConfig()
	if cfg.MaxChunkDurationSeconds == 0 {
		cfg.MaxChunkDurationSeconds = d.MaxChunkDurationSeconds
	}
	if cfg.MaxFileDurationHours == 0 {
		cfg.MaxFileDurationHours = d.MaxFileDurationHours
	}
	if cfg.OverlapSeconds == 0 {
		cfg.OverlapSeconds = d.OverlapSeconds
	}
	if cfg.SilenceNoiseThreshold == 0 {
		cfg.SilenceNoiseThreshold = d.SilenceNoiseThreshold
	}
	if cfg.SilenceMinDuration == 0 {
		cfg.SilenceMinDuration = d.SilenceMinDuration
	}
	if cfg.LookbackSeconds == 0 {
		cfg.LookbackSeconds = d.LookbackSeconds
	}
	if cfg.MinMatchWords == 0 {
		cfg.MinMatchWords = d.MinMatchWords
	}
	if cfg.BytesPerSecond == 0 {
		cfg.BytesPerSecond = d.BytesPerSecond
	}
	if cfg.TempDir == "" {
		cfg.TempDir = d.TempDir
	}
	if cfg.ConcurrentRuns == 0 {
		cfg.ConcurrentRuns = d.ConcurrentRuns
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = d.Cache.MaxSize
	}
	if cfg.Cache.TTLHours == 0 {
		cfg.Cache.TTLHours = d.Cache.TTLHours
	}
	return cfg
}

// Validate rejects a configuration no run could execute correctly, before
// any run starts.
func (cfg PipelineConfig) Validate() error {
	if cfg.OverlapSeconds >= cfg.MaxChunkDurationSeconds {
		return fmt.Errorf("overlapSeconds (%g) must be less than maxChunkDurationSeconds (%g)",
			cfg.OverlapSeconds, cfg.MaxChunkDurationSeconds)
	}
	if cfg.MinMatchWords <= 0 {
		return fmt.Errorf("minMatchWords must be positive, got %d", cfg.MinMatchWords)
	}
	if cfg.BytesPerSecond <= 0 {
		return fmt.Errorf("bytesPerSecond must be positive, got %g", cfg.BytesPerSecond)
	}
	if cfg.MaxFileDurationHours <= 0 {
		return fmt.Errorf("maxFileDurationHours must be positive, got %g", cfg.MaxFileDurationHours)
	}
	return nil
}

// LoadPipeline reads a YAML pipeline configuration from path, applying
// defaults to any option the file leaves unset. A missing file is not an
// error: LoadPipeline returns DefaultPipelineConfig() unchanged.
func LoadPipeline(path string) (PipelineConfig, error) {
	if path == "" {
		return DefaultPipelineConfig(), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied configuration
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPipelineConfig(), nil
		}
		return PipelineConfig{}, fmt.Errorf("read pipeline config %s: %w", path, err)
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("parse pipeline config %s: %w", path, err)
	}

	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return PipelineConfig{}, fmt.Errorf("invalid pipeline config %s: %w", path, err)
	}
	return cfg, nil
}
