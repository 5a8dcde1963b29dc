package usecase

import (
	"context"
	"fmt"
	"time"

	"CandleSense/internal/domain/models"
	drepo "CandleSense/internal/domain/repository"
	"CandleSense/internal/services/neural"
	"CandleSense/internal/services/training"
)

// Stats is the whole-system summary served by the stats endpoint.
type Stats struct {
	models.StoreStats
	ModelVersion     int64           `json:"model_version"`
	ModelReady       bool            `json:"model_ready"`
	LastTrainingTime time.Time       `json:"last_training_time"`
	NewSinceTraining int             `json:"validations_since_training"`
	Training         training.Status `json:"training"`
}

// ModelInfo describes the active network.
type ModelInfo struct {
	Version   int64           `json:"version"`
	Ready     bool            `json:"ready"`
	TrainedAt time.Time       `json:"trained_at,omitempty"`
	Accuracy  float64         `json:"accuracy"`
	Config    neural.Config   `json:"config"`
	Training  training.Status `json:"training"`
}

// Reporter reads counters from the stores and the learning components.
type Reporter struct {
	candles   drepo.CandleStore
	preds     drepo.PredictionStore
	predictor *neural.Predictor
	trainer   *training.Trainer
}

func NewReporter(candles drepo.CandleStore, preds drepo.PredictionStore, predictor *neural.Predictor, trainer *training.Trainer) *Reporter {
	return &Reporter{candles: candles, preds: preds, predictor: predictor, trainer: trainer}
}

func (r *Reporter) Stats(ctx context.Context, now time.Time) (Stats, error) {
	ps, err := r.preds.PredictionStats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("prediction stats: %w", err)
	}
	n, err := r.candles.CountCandles(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count candles: %w", err)
	}
	ps.TotalCandles = n
	fresh, err := r.trainer.NewSinceTraining(ctx, now)
	if err != nil {
		return Stats{}, fmt.Errorf("new since training: %w", err)
	}
	st := r.trainer.Status()
	return Stats{
		StoreStats:       ps,
		ModelVersion:     r.predictor.Version(),
		ModelReady:       r.predictor.Ready(),
		LastTrainingTime: st.LastTrainingTime,
		NewSinceTraining: fresh,
		Training:         st,
	}, nil
}

func (r *Reporter) Model() ModelInfo {
	info := ModelInfo{
		Version:  r.predictor.Version(),
		Ready:    r.predictor.Ready(),
		Config:   r.predictor.Config(),
		Training: r.trainer.Status(),
	}
	if n := r.predictor.Current(); n != nil {
		info.TrainedAt = n.TrainedAt
		info.Accuracy = n.Accuracy
	}
	return info
}
