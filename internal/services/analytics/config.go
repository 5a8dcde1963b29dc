package analytics

import (
	"fmt"
	"time"
)

// EnrichmentConfig configures the optional external analysis service. The service is
// expected to accept {"model","prompt"} and answer {"text"}.
type EnrichmentConfig struct {
	Enabled         bool          `yaml:"enabled" default:"false"`
	BaseURL         string        `yaml:"base_url" validate:"omitempty,url"`
	Path            string        `yaml:"path" default:"/v1/generate"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model" default:"gemini-2.0-flash-exp"`
	Timeout         time.Duration `yaml:"timeout" default:"10s"`
	Attempts        int           `yaml:"attempts" default:"2" validate:"gte=1,lte=5"`
	RatePerSecond   float64       `yaml:"rate_per_second" default:"1" validate:"gt=0"`
	Burst           int           `yaml:"burst" default:"2" validate:"gte=1"`
	BreakerFailures uint32        `yaml:"breaker_failures" default:"3" validate:"gte=1"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" default:"60s"`
}

func DefaultEnrichmentConfig() EnrichmentConfig {
	return EnrichmentConfig{
		Path:            "/v1/generate",
		Model:           "gemini-2.0-flash-exp",
		Timeout:         10 * time.Second,
		Attempts:        2,
		RatePerSecond:   1,
		Burst:           2,
		BreakerFailures: 3,
		BreakerTimeout:  60 * time.Second,
	}
}

func (c EnrichmentConfig) Validate() error {
	if c.Enabled && c.BaseURL == "" {
		return fmt.Errorf("enrichment: base_url is required when enabled")
	}
	if c.Attempts < 1 {
		return fmt.Errorf("enrichment: attempts must be >= 1")
	}
	if c.RatePerSecond <= 0 || c.Burst < 1 {
		return fmt.Errorf("enrichment: rate_per_second and burst must be positive")
	}
	if c.BreakerFailures < 1 {
		return fmt.Errorf("enrichment: breaker_failures must be >= 1")
	}
	return nil
}

// ManipulationConfig tunes the local outcome-based manipulation heuristic.
type ManipulationConfig struct {
	Enabled             bool    `yaml:"enabled" default:"true"`
	MinSampleSize       int     `yaml:"min_sample_size" default:"50" validate:"gte=1"`
	SuspiciousWinRate   float64 `yaml:"suspicious_win_rate" default:"0.45" validate:"gte=0,lte=1"`
	VolatilityThreshold float64 `yaml:"volatility_threshold" default:"2.5" validate:"gt=0"`
	// Window bounds how many recent validated predictions are inspected.
	Window int `yaml:"window" default:"200" validate:"gte=1"`
}

func DefaultManipulationConfig() ManipulationConfig {
	return ManipulationConfig{
		Enabled:             true,
		MinSampleSize:       50,
		SuspiciousWinRate:   0.45,
		VolatilityThreshold: 2.5,
		Window:              200,
	}
}

func (c ManipulationConfig) Validate() error {
	if c.MinSampleSize < 1 || c.Window < c.MinSampleSize {
		return fmt.Errorf("manipulation: window must be >= min_sample_size >= 1")
	}
	if c.SuspiciousWinRate < 0 || c.SuspiciousWinRate > 1 {
		return fmt.Errorf("manipulation: suspicious_win_rate must be in [0,1]")
	}
	if c.VolatilityThreshold <= 0 {
		return fmt.Errorf("manipulation: volatility_threshold must be positive")
	}
	return nil
}
