package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"CandleSense/internal/domain/models"
	drepo "CandleSense/internal/domain/repository"
	"CandleSense/internal/domain/service"
	"CandleSense/internal/services/ensemble"
	"CandleSense/internal/services/features"
	"CandleSense/internal/services/neural"
	"CandleSense/internal/services/patterns"
	"CandleSense/internal/services/risk"
	"CandleSense/internal/services/similarity"
	applogger "CandleSense/pkg/logger"
)

const maxRawEnrichment = 2000

// Components are the stateless analysers and the live model one cycle runs through.
type Components struct {
	Extractor *features.Extractor
	Detector  *patterns.Detector
	Matcher   *similarity.Matcher
	Predictor *neural.Predictor
	Combiner  *ensemble.Combiner
	Gate      *risk.Gate
}

func (c Components) validate() error {
	if c.Extractor == nil || c.Detector == nil || c.Matcher == nil || c.Predictor == nil || c.Combiner == nil || c.Gate == nil {
		return fmt.Errorf("engine: every component is required")
	}
	return nil
}

// MatchRef is a compact view of one historical analogue.
type MatchRef struct {
	PredictionID string           `json:"prediction_id"`
	Timestamp    time.Time        `json:"timestamp"`
	Similarity   float64          `json:"similarity"`
	Outcome      models.Direction `json:"outcome,omitempty"`
}

// SimilaritySummary reports what the analogy search saw.
type SimilaritySummary struct {
	Scanned int              `json:"scanned"`
	Matched int              `json:"matched"`
	Vote    *similarity.Vote `json:"vote,omitempty"`
	Top     []MatchRef       `json:"top,omitempty"`
}

// Outcome is everything one cycle produced. Consumers act only when Approved.
type Outcome struct {
	Prediction   models.Prediction           `json:"prediction"`
	Ensemble     ensemble.Output             `json:"ensemble"`
	Similarity   SimilaritySummary           `json:"similarity"`
	Risk         risk.Decision               `json:"risk"`
	Manipulation *service.ManipulationReport `json:"manipulation,omitempty"`
	Approved     bool                        `json:"approved"`
	Duration     time.Duration               `json:"duration"`
}

// PredictionEngine runs the per-cycle pipeline and records its result.
type PredictionEngine struct {
	cfg       PredictionConfig
	comp      Components
	candles   drepo.CandleStore
	preds     drepo.PredictionStore
	enricher  service.Enricher
	manip     service.ManipulationDetector
	publisher drepo.PredictionPublisher
	metrics   drepo.Metrics
	log       *applogger.Logger

	now   func() time.Time
	newID func() string
}

// NewPredictionEngine wires a cycle runner. enricher and manip may be nil.
func NewPredictionEngine(
	cfg PredictionConfig,
	comp Components,
	candles drepo.CandleStore,
	preds drepo.PredictionStore,
	enricher service.Enricher,
	manip service.ManipulationDetector,
	publisher drepo.PredictionPublisher,
	metrics drepo.Metrics,
	log *applogger.Logger,
) (*PredictionEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := comp.validate(); err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = drepo.NopPublisher{}
	}
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &PredictionEngine{
		cfg:       cfg,
		comp:      comp,
		candles:   candles,
		preds:     preds,
		enricher:  enricher,
		manip:     manip,
		publisher: publisher,
		metrics:   metrics,
		log:       applogger.OrNop(log).With(applogger.String("component", "engine")),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}, nil
}

func (e *PredictionEngine) Config() PredictionConfig { return e.cfg }

// Predict runs one cycle over candles, or over the latest stored window when candles is
// empty. Recoverable failures come back as the models error kinds and nothing is stored.
func (e *PredictionEngine) Predict(ctx context.Context, symbol string, candles []models.Candle) (*Outcome, error) {
	start := time.Now()
	log := e.log.With(applogger.String("symbol", symbol))

	if len(candles) == 0 {
		loaded, err := e.LoadWindow(ctx, symbol, 0)
		if err != nil {
			return nil, err
		}
		candles = loaded
	}

	fs, err := e.comp.Extractor.Extract(candles)
	if err != nil {
		log.Warn("prediction skipped", applogger.Int("candles", len(candles)), applogger.Error(err))
		e.metrics.RecordError("insufficient_data")
		return nil, err
	}
	tags := e.comp.Detector.DetectNames(candles)
	fs = fs.WithPatterns(tags)

	simRes, vote, nn := e.runSources(ctx, log, symbol, fs)

	now := e.now()
	out := e.comp.Combiner.Combine(ensemble.Input{
		Historical: vote,
		Neural:     nn,
		Patterns:   tags,
		Features:   fs,
		At:         now,
	})
	if out.Method == models.MethodNone {
		log.Warn("no usable prediction",
			applogger.Int("history_scanned", simRes.Scanned),
			applogger.Bool("model_ready", e.comp.Predictor.Ready()))
		e.metrics.RecordError("no_usable_prediction")
		return nil, models.ErrNoUsablePrediction
	}

	res := &Outcome{Similarity: summarise(simRes, vote)}

	if e.manip != nil {
		rep, err := e.manip.Detect(ctx, symbol, fs)
		if err != nil {
			log.Warn("manipulation check failed", applogger.Error(err))
		} else {
			res.Manipulation = &rep
			if rep.Detected {
				out = e.comp.Combiner.FlagManipulation(out)
				log.Warn("manipulation suspected", applogger.Strings("reasons", rep.Reasons))
			}
		}
	}

	var note *models.EnrichmentNote
	if out.MeetsThreshold && e.enricher != nil && e.enricher.Enabled() {
		out, note = e.enrich(ctx, log, symbol, candles, fs, out)
	}

	stats, err := e.TradeStats(ctx, now)
	if err != nil {
		log.Warn("risk state unavailable", applogger.Error(err))
	}
	res.Risk = e.comp.Gate.Evaluate(out.Confidence, stats, now)
	res.Approved = out.MeetsThreshold && res.Risk.Allowed
	for _, name := range res.Risk.Failed() {
		e.metrics.RecordRiskDenial(name)
	}

	p := models.Prediction{
		ID:                  e.newID(),
		Symbol:              symbol,
		Timestamp:           candles[len(candles)-1].Timestamp,
		Direction:           out.Direction,
		Confidence:          out.Confidence,
		RawConfidence:       out.RawConfidence,
		Method:              out.Method,
		MeetsThreshold:      out.MeetsThreshold,
		FeatureSet:          fs,
		Patterns:            tags,
		ModelVersion:        e.comp.Predictor.Version(),
		ManipulationWarning: out.ManipulationWarning,
		Enrichment:          note,
	}
	if err := e.preds.AppendPrediction(ctx, p); err != nil {
		e.metrics.RecordError("persist_prediction")
		log.Warn("prediction not stored", applogger.String("prediction_id", p.ID), applogger.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
	}
	if err := e.publisher.PublishPrediction(ctx, p); err != nil {
		e.metrics.RecordError("publish_prediction")
		log.Warn("prediction not published", applogger.String("prediction_id", p.ID), applogger.Error(err))
	}

	res.Prediction = p
	res.Ensemble = out
	res.Duration = time.Since(start)

	e.metrics.RecordPrediction(symbol, string(p.Method), string(p.Direction), p.Confidence, res.Approved)
	e.metrics.RecordLatency("predict", res.Duration.Seconds())
	log.Info("prediction",
		applogger.String("prediction_id", p.ID),
		applogger.String("direction", string(p.Direction)),
		applogger.String("method", string(p.Method)),
		applogger.Float64("confidence", p.Confidence),
		applogger.Bool("meets_threshold", p.MeetsThreshold),
		applogger.Bool("approved", res.Approved),
		applogger.Int64("model_version", p.ModelVersion),
		applogger.Duration("duration_ms", res.Duration))
	return res, nil
}

// LoadWindow returns the newest n stored candles of symbol, oldest first. n <= 0 means Window.
func (e *PredictionEngine) LoadWindow(ctx context.Context, symbol string, n int) ([]models.Candle, error) {
	if n <= 0 {
		n = e.cfg.Window
	}
	candles, err := e.candles.LatestCandles(ctx, symbol, n)
	if err != nil {
		e.metrics.RecordError("predict_load")
		return nil, fmt.Errorf("load candles: %w", err)
	}
	return candles, nil
}

// runSources queries the analogy search and the network concurrently. A failing source is
// logged and reported as unusable.
func (e *PredictionEngine) runSources(ctx context.Context, log *applogger.Logger, symbol string, fs models.FeatureSet) (similarity.Result, *similarity.Vote, *neural.Output) {
	var (
		wg     sync.WaitGroup
		simRes similarity.Result
		vote   *similarity.Vote
		nn     *neural.Output
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		history, err := e.preds.History(ctx, symbol, e.comp.Matcher.Config().HistoryLimit)
		if err != nil {
			e.metrics.RecordError("history")
			log.Warn("history unavailable", applogger.Error(err))
			return
		}
		simRes = e.comp.Matcher.Match(fs, history)
		if simRes.HasVote {
			v := simRes.Vote
			vote = &v
		}
	}()
	go func() {
		defer wg.Done()
		out, err := e.comp.Predictor.Predict(features.Flatten(fs))
		if err != nil {
			if !errors.Is(err, models.ErrModelNotReady) {
				e.metrics.RecordError("neural_predict")
			}
			log.Debug("neural source unusable", applogger.Error(err))
			return
		}
		nn = &out
	}()
	wg.Wait()
	return simRes, vote, nn
}

// enrich consults the external service. Failures are dropped; a parsed judgment nudges
// confidence and an unparsed one is only kept for reference.
func (e *PredictionEngine) enrich(ctx context.Context, log *applogger.Logger, symbol string, candles []models.Candle, fs models.FeatureSet, out ensemble.Output) (ensemble.Output, *models.EnrichmentNote) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.EnrichmentTimeout)
	defer cancel()

	req := service.EnrichmentRequest{Symbol: symbol, Features: fs, Patterns: fs.Patterns, Candles: candles}
	if perf, err := e.Performance(ctx, "", e.cfg.PerformanceDays); err == nil {
		req.Performance = &perf
	}
	result, err := e.enricher.Analyze(ctx, req)
	if err != nil {
		e.metrics.RecordError("enrichment")
		log.Warn("enrichment failed", applogger.Error(err))
		return out, nil
	}
	switch r := result.(type) {
	case service.Parsed:
		j := r.Judgment
		note := &models.EnrichmentNote{
			Direction:            j.Direction,
			Confidence:           j.Confidence,
			Reasoning:            j.Reasoning,
			RiskLevel:            j.RiskLevel,
			ManipulationDetected: j.ManipulationDetected,
			ManipulationReason:   j.ManipulationReason,
		}
		return e.comp.Combiner.ApplyEnrichment(out, j.Confidence, j.ManipulationDetected), note
	case service.Unparsed:
		raw := r.Raw
		if len(raw) > maxRawEnrichment {
			raw = raw[:maxRawEnrichment]
		}
		return out, &models.EnrichmentNote{Raw: raw}
	}
	return out, nil
}

// TradeStats builds risk-gate state from recent predictions that met the threshold, across
// all symbols.
func (e *PredictionEngine) TradeStats(ctx context.Context, now time.Time) (models.TradeStats, error) {
	recent, err := e.preds.ListPredictions(ctx, models.PredictionFilter{Limit: e.cfg.StatsWindow})
	if err != nil {
		return models.TradeStats{}, err
	}
	taken := recent[:0]
	for _, p := range recent {
		if p.MeetsThreshold {
			taken = append(taken, p)
		}
	}
	return models.BuildTradeStats(now, taken, e.comp.Gate.Config().WinRateWindow), nil
}

// Performance summarises validated predictions of the last days. An empty symbol means all.
func (e *PredictionEngine) Performance(ctx context.Context, symbol string, days int) (models.Performance, error) {
	if days <= 0 {
		days = e.cfg.PerformanceDays
	}
	since := e.now().Add(-time.Duration(days) * 24 * time.Hour)
	preds, err := e.preds.ListPredictions(ctx, models.PredictionFilter{
		Symbol:    symbol,
		Validated: models.BoolPtr(true),
		From:      since,
	})
	if err != nil {
		return models.Performance{}, fmt.Errorf("performance: %w", err)
	}
	return models.BuildPerformance(since, preds), nil
}

// Prediction returns a stored prediction by id.
func (e *PredictionEngine) Prediction(ctx context.Context, id string) (models.Prediction, error) {
	return e.preds.GetPrediction(ctx, id)
}

func summarise(r similarity.Result, vote *similarity.Vote) SimilaritySummary {
	s := SimilaritySummary{Scanned: r.Scanned, Matched: len(r.Matches), Vote: vote}
	for i, m := range r.Matches {
		if i == 3 {
			break
		}
		s.Top = append(s.Top, MatchRef{
			PredictionID: m.Record.PredictionID,
			Timestamp:    m.Record.Timestamp,
			Similarity:   m.Similarity,
			Outcome:      m.Outcome,
		})
	}
	return s
}
