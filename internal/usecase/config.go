package usecase

import (
	"fmt"
	"time"
)

// PredictionConfig tunes one prediction cycle.
type PredictionConfig struct {
	// Window is how many stored candles are loaded when a request carries none.
	Window int `yaml:"window" default:"50" validate:"gte=20,lte=500"`
	// StatsWindow bounds the approved predictions read to build risk-gate state.
	StatsWindow       int           `yaml:"stats_window" default:"500" validate:"gte=1"`
	EnrichmentTimeout time.Duration `yaml:"enrichment_timeout" default:"15s"`
	PerformanceDays   int           `yaml:"performance_days" default:"7" validate:"gte=1"`
}

func DefaultPredictionConfig() PredictionConfig {
	return PredictionConfig{Window: 50, StatsWindow: 500, EnrichmentTimeout: 15 * time.Second, PerformanceDays: 7}
}

func (c PredictionConfig) Validate() error {
	if c.Window < 20 {
		return fmt.Errorf("prediction: window must be >= 20")
	}
	if c.StatsWindow < 1 || c.PerformanceDays < 1 {
		return fmt.Errorf("prediction: stats_window and performance_days must be >= 1")
	}
	if c.EnrichmentTimeout <= 0 {
		return fmt.Errorf("prediction: enrichment_timeout must be positive")
	}
	return nil
}

// RetentionConfig drives the daily cleanup of candles and predictions.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	MaxAge   time.Duration `yaml:"max_age" default:"2160h"`
	Interval time.Duration `yaml:"interval" default:"24h"`
}

func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{Enabled: true, MaxAge: 90 * 24 * time.Hour, Interval: 24 * time.Hour}
}

func (c RetentionConfig) Validate() error {
	if c.MaxAge <= 0 || c.Interval <= 0 {
		return fmt.Errorf("retention: max_age and interval must be positive")
	}
	return nil
}
