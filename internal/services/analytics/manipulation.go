package analytics

import (
	"context"
	"fmt"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/domain/repository"
	"CandleSense/internal/domain/service"
)

// ManipulationDetector flags hostile feeds from recent outcomes: a win rate well below chance,
// or a current candle far more volatile than the window it sits in. It stays silent until
// enough validated predictions exist.
type ManipulationDetector struct {
	cfg   ManipulationConfig
	store repository.PredictionStore
}

func NewManipulationDetector(cfg ManipulationConfig, store repository.PredictionStore) (*ManipulationDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ManipulationDetector{cfg: cfg, store: store}, nil
}

func (d *ManipulationDetector) Detect(ctx context.Context, symbol string, fs models.FeatureSet) (service.ManipulationReport, error) {
	var rep service.ManipulationReport
	if !d.cfg.Enabled || d.store == nil {
		return rep, nil
	}
	preds, err := d.store.ListPredictions(ctx, models.PredictionFilter{
		Symbol:    symbol,
		Validated: models.BoolPtr(true),
		Limit:     d.cfg.Window,
	})
	if err != nil {
		return rep, fmt.Errorf("manipulation: list predictions: %w", err)
	}
	correct := 0
	for _, p := range preds {
		if p.Correct() {
			correct++
		}
	}
	rep.Samples = len(preds)
	if rep.Samples > 0 {
		rep.WinRate = float64(correct) / float64(rep.Samples)
	}
	if rep.Samples < d.cfg.MinSampleSize {
		return rep, nil
	}
	if rep.WinRate < d.cfg.SuspiciousWinRate {
		rep.Reasons = append(rep.Reasons, fmt.Sprintf("win rate %.2f below %.2f over %d predictions", rep.WinRate, d.cfg.SuspiciousWinRate, rep.Samples))
	}
	if v := fs.Scalars.VolatilityRatio; v > d.cfg.VolatilityThreshold {
		rep.Reasons = append(rep.Reasons, fmt.Sprintf("volatility ratio %.2f above %.2f", v, d.cfg.VolatilityThreshold))
	}
	rep.Detected = len(rep.Reasons) > 0
	return rep, nil
}

var _ service.ManipulationDetector = (*ManipulationDetector)(nil)
