package service

import (
	"context"

	"CandleSense/internal/domain/models"
)

// EnrichmentRequest is the context handed to the optional enrichment service.
type EnrichmentRequest struct {
	Symbol      string
	Features    models.FeatureSet
	Patterns    []string
	Candles     []models.Candle
	Performance *models.Performance
}

// Judgment is a structured enrichment answer.
type Judgment struct {
	Direction            models.Direction `json:"-"`
	RawDirection         string           `json:"prediction"`
	Confidence           float64          `json:"confidence"`
	Reasoning            string           `json:"reasoning"`
	ManipulationDetected bool             `json:"manipulation_detected"`
	ManipulationReason   string           `json:"manipulation_reason"`
	RiskLevel            string           `json:"risk_level"`
}

// EnrichmentResult is either Parsed or Unparsed.
type EnrichmentResult interface {
	isEnrichmentResult()
}

// Parsed carries a response that decoded into a Judgment.
type Parsed struct {
	Judgment Judgment
}

// Unparsed carries response text that held no usable JSON judgment.
type Unparsed struct {
	Raw string
}

func (Parsed) isEnrichmentResult()   {}
func (Unparsed) isEnrichmentResult() {}

// Enricher asks an external service for a best-effort second opinion.
type Enricher interface {
	Enabled() bool
	Analyze(ctx context.Context, req EnrichmentRequest) (EnrichmentResult, error)
}

// ManipulationReport flags outcome patterns that suggest a hostile price feed.
type ManipulationReport struct {
	Detected bool     `json:"detected"`
	Reasons  []string `json:"reasons,omitempty"`
	WinRate  float64  `json:"win_rate"`
	Samples  int      `json:"samples"`
}

// ManipulationDetector inspects recent outcomes and the current feature set.
type ManipulationDetector interface {
	Detect(ctx context.Context, symbol string, fs models.FeatureSet) (ManipulationReport, error)
}
