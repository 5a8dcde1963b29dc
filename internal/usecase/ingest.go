package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"CandleSense/internal/domain/models"
	drepo "CandleSense/internal/domain/repository"
	mid "CandleSense/internal/middleware"
	pkgkafka "CandleSense/pkg/kafka"
	applogger "CandleSense/pkg/logger"
)

const maxReportedRejects = 5

// IngestReport counts accepted and rejected candles of one batch.
type IngestReport struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// CandleIngestor validates candles and writes them to the store. It takes no lock shared
// with prediction or training.
type CandleIngestor struct {
	store   drepo.CandleStore
	metrics drepo.Metrics
	log     *applogger.Logger
}

func NewCandleIngestor(store drepo.CandleStore, metrics drepo.Metrics, log *applogger.Logger) *CandleIngestor {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &CandleIngestor{store: store, metrics: metrics, log: applogger.OrNop(log).With(applogger.String("component", "ingestor"))}
}

// Ingest stores the valid candles of a batch. Invalid ones are counted and skipped.
func (i *CandleIngestor) Ingest(ctx context.Context, source string, candles []models.Candle) (IngestReport, error) {
	var rep IngestReport
	valid := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		err := c.Validate()
		if err == nil && c.Symbol == "" {
			err = fmt.Errorf("candle symbol is empty")
		}
		if err != nil {
			rep.Rejected++
			if len(rep.Errors) < maxReportedRejects {
				rep.Errors = append(rep.Errors, err.Error())
			}
			continue
		}
		valid = append(valid, c)
	}
	if rep.Rejected > 0 {
		i.metrics.RecordError("candle_invalid")
		i.log.Debug("candles rejected", applogger.String("source", source), applogger.Int("rejected", rep.Rejected))
	}
	if len(valid) == 0 {
		return rep, nil
	}

	start := time.Now()
	if err := i.store.UpsertCandles(ctx, valid); err != nil {
		i.metrics.RecordError("candle_store")
		return rep, fmt.Errorf("%w: store candles: %v", models.ErrPersistenceFailure, err)
	}
	rep.Accepted = len(valid)
	i.metrics.RecordCandles(source, rep.Accepted)
	i.metrics.RecordLatency("ingest", time.Since(start).Seconds())
	return rep, nil
}

// UpsertCandles lets the realtime pipeline flush through the ingestor.
func (i *CandleIngestor) UpsertCandles(ctx context.Context, candles []models.Candle) error {
	_, err := i.Ingest(ctx, "feed", candles)
	return err
}

var _ mid.CandleSink = (*CandleIngestor)(nil)

// KafkaCandleHandler consumes candle events, one object or an array per message.
type KafkaCandleHandler struct {
	topic    string
	ingestor *CandleIngestor
	validate *validator.Validate
	metrics  drepo.Metrics
}

func NewKafkaCandleHandler(topic string, ingestor *CandleIngestor, metrics drepo.Metrics) *KafkaCandleHandler {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &KafkaCandleHandler{topic: topic, ingestor: ingestor, validate: validator.New(), metrics: metrics}
}

func (h *KafkaCandleHandler) Topic() string { return h.topic }

func (h *KafkaCandleHandler) Handle(ctx context.Context, b []byte) error {
	var events []models.CandleEvent
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode candle events: %w", err)
		}
	} else {
		var ev models.CandleEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode candle event: %w", err)
		}
		events = []models.CandleEvent{ev}
	}

	candles := make([]models.Candle, 0, len(events))
	for _, ev := range events {
		if err := h.validate.Struct(ev); err != nil {
			h.metrics.RecordError("consumer_invalid")
			continue
		}
		candles = append(candles, ev.ToCandle(ev.Symbol))
	}
	if len(candles) == 0 {
		return nil
	}
	// event time to now
	last := candles[len(candles)-1].Timestamp
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(last).Seconds())

	_, err := h.ingestor.Ingest(ctx, "kafka", candles)
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaCandleHandler)(nil)
