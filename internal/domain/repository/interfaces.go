package repository

import (
	"context"
	"time"

	"CandleSense/internal/domain/models"
)

// CandleStream is a push source of candles (upstream websocket feed).
type CandleStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Candle, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// CandleStore keeps candles per symbol. Duplicate timestamps resolve latest-write-wins.
type CandleStore interface {
	UpsertCandles(ctx context.Context, candles []models.Candle) error
	// LatestCandles returns up to n candles in ascending time order.
	LatestCandles(ctx context.Context, symbol string, n int) ([]models.Candle, error)
	CandlesBetween(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
	CountCandles(ctx context.Context) (int64, error)
	DeleteCandlesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PredictionStore persists predictions and serves the analogy history derived from them.
type PredictionStore interface {
	AppendPrediction(ctx context.Context, p models.Prediction) error
	GetPrediction(ctx context.Context, id string) (models.Prediction, error)
	// ResolvePrediction applies the validation fields once; a second call returns models.ErrAlreadyValidated.
	ResolvePrediction(ctx context.Context, id string, r models.Resolution) (models.Prediction, error)
	// ListPredictions returns matches newest first.
	ListPredictions(ctx context.Context, f models.PredictionFilter) ([]models.Prediction, error)
	CountValidated(ctx context.Context, resolvedAfter, resolvedSince time.Time) (int, error)
	History(ctx context.Context, symbol string, limit int) ([]models.HistoricalRecord, error)
	PredictionStats(ctx context.Context) (models.StoreStats, error)
	DeletePredictionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PatternScoreStore is keyed by feature signature.
type PatternScoreStore interface {
	GetPatternScore(ctx context.Context, signature string) (models.PatternScore, error)
	PutPatternScore(ctx context.Context, s models.PatternScore) error
}

// ModelSnapshot is opaque model state plus its version.
type ModelSnapshot struct {
	Version   int64     `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
	Accuracy  float64   `json:"accuracy"`
	Payload   []byte    `json:"payload"`
}

// ModelStore durably saves and loads the latest model snapshot.
type ModelStore interface {
	SaveModel(ctx context.Context, s ModelSnapshot) error
	LoadModel(ctx context.Context) (ModelSnapshot, error)
}

// PredictionPublisher fans predictions and outcomes out to downstream consumers.
type PredictionPublisher interface {
	PublishPrediction(ctx context.Context, p models.Prediction) error
	PublishOutcome(ctx context.Context, p models.Prediction) error
	Close() error
}

// Locker guards periodic jobs across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordPrediction(symbol, method, direction string, confidence float64, approved bool)
	RecordValidation(correct bool)
	RecordTraining(result string, seconds float64)
	SetModelVersion(version int64)
	RecordRiskDenial(check string)
	RecordCandles(source string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordPrediction(string, string, string, float64, bool) {}
func (NopMetrics) RecordValidation(bool)                                  {}
func (NopMetrics) RecordTraining(string, float64)                         {}
func (NopMetrics) SetModelVersion(int64)                                  {}
func (NopMetrics) RecordRiskDenial(string)                                {}
func (NopMetrics) RecordCandles(string, int)                              {}
func (NopMetrics) RecordError(string)                                     {}
func (NopMetrics) RecordLatency(string, float64)                          {}

// NopPublisher drops everything.
type NopPublisher struct{}

func (NopPublisher) PublishPrediction(context.Context, models.Prediction) error { return nil }
func (NopPublisher) PublishOutcome(context.Context, models.Prediction) error    { return nil }
func (NopPublisher) Close() error                                               { return nil }
