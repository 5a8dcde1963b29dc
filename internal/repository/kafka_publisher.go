package repository

import (
	"context"
	"time"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
	pkgkafka "CandleSense/pkg/kafka"
)

// KafkaPredictionPublisher writes predictions and validation outcomes to their topics,
// keyed by symbol so each symbol stays ordered.
type KafkaPredictionPublisher struct {
	producer         *pkgkafka.Producer
	predictionsTopic string
	outcomesTopic    string
}

func NewKafkaPredictionPublisher(producer *pkgkafka.Producer, predictionsTopic, outcomesTopic string) *KafkaPredictionPublisher {
	return &KafkaPredictionPublisher{producer: producer, predictionsTopic: predictionsTopic, outcomesTopic: outcomesTopic}
}

type predictionEvent struct {
	ID             string           `json:"id"`
	Symbol         string           `json:"symbol"`
	Timestamp      int64            `json:"t"`
	Direction      models.Direction `json:"direction"`
	Confidence     float64          `json:"confidence"`
	Method         models.Method    `json:"method"`
	MeetsThreshold bool             `json:"meets_threshold"`
	Patterns       []string         `json:"patterns"`
	ModelVersion   int64            `json:"model_version"`
	Manipulation   bool             `json:"manipulation_warning"`
}

type outcomeEvent struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Predicted  models.Direction `json:"predicted"`
	Actual     models.Direction `json:"actual"`
	WasCorrect bool             `json:"was_correct"`
	ResolvedAt int64            `json:"resolved_at"`
}

// Every record carries an "event" header so mixed consumers can route without decoding.
func (p *KafkaPredictionPublisher) send(ctx context.Context, topic, symbol, event string, value interface{}) error {
	return p.producer.PublishBatch(ctx, topic, []pkgkafka.Message{{
		Key:     []byte(symbol),
		Value:   value,
		Headers: map[string]string{"event": event},
	}})
}

func (p *KafkaPredictionPublisher) PublishPrediction(ctx context.Context, pr models.Prediction) error {
	return p.send(ctx, p.predictionsTopic, pr.Symbol, "prediction", predictionEvent{
		ID:             pr.ID,
		Symbol:         pr.Symbol,
		Timestamp:      pr.Timestamp.UnixMilli(),
		Direction:      pr.Direction,
		Confidence:     pr.Confidence,
		Method:         pr.Method,
		MeetsThreshold: pr.MeetsThreshold,
		Patterns:       pr.Patterns,
		ModelVersion:   pr.ModelVersion,
		Manipulation:   pr.ManipulationWarning,
	})
}

func (p *KafkaPredictionPublisher) PublishOutcome(ctx context.Context, pr models.Prediction) error {
	ev := outcomeEvent{
		ID:         pr.ID,
		Symbol:     pr.Symbol,
		Predicted:  pr.Direction,
		Actual:     pr.ActualOutcome,
		WasCorrect: pr.Correct(),
	}
	if pr.ValidationTimestamp != nil {
		ev.ResolvedAt = pr.ValidationTimestamp.UnixMilli()
	} else {
		ev.ResolvedAt = time.Now().UnixMilli()
	}
	return p.send(ctx, p.outcomesTopic, pr.Symbol, "outcome", ev)
}

// PublishCandles republishes candles to topic in one batch.
func (p *KafkaPredictionPublisher) PublishCandles(ctx context.Context, topic string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(candles))
	for i, c := range candles {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(c.Symbol),
			Value:   models.CandleEventOf(c),
			Headers: map[string]string{"event": "candle"},
		}
	}
	return p.producer.PublishBatch(ctx, topic, msgs)
}

// KafkaCandleSink hands pipeline batches to the candles topic instead of a store.
type KafkaCandleSink struct {
	pub   *KafkaPredictionPublisher
	topic string
}

func (p *KafkaPredictionPublisher) CandleSink(topic string) *KafkaCandleSink {
	return &KafkaCandleSink{pub: p, topic: topic}
}

func (s *KafkaCandleSink) UpsertCandles(ctx context.Context, candles []models.Candle) error {
	return s.pub.PublishCandles(ctx, s.topic, candles)
}

func (p *KafkaPredictionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.PredictionPublisher = (*KafkaPredictionPublisher)(nil)
