package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/domain/repository"
	"CandleSense/internal/services/features"
	applogger "CandleSense/pkg/logger"
)

type Config struct {
	// Delay is how long after a prediction its outcome can be read from the market.
	Delay time.Duration `yaml:"delay" default:"5m"`
	// Window is the symmetric tolerance when looking for the anchor and resolution candles.
	Window    time.Duration `yaml:"window" default:"1m"`
	Interval  time.Duration `yaml:"interval" default:"1m"`
	BatchSize int           `yaml:"batch_size" default:"500" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{Delay: 5 * time.Minute, Window: time.Minute, Interval: time.Minute, BatchSize: 500}
}

func (c Config) Validate() error {
	if c.Delay <= 0 || c.Window <= 0 || c.Interval <= 0 {
		return fmt.Errorf("validation: delay, window and interval must be positive")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validation: batch_size must be >= 1")
	}
	return nil
}

// Summary reports one validator pass.
type Summary struct {
	Scanned   int `json:"scanned"`
	Validated int `json:"validated"`
	Correct   int `json:"correct"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
}

// Validator resolves matured predictions against later market candles and feeds the
// outcome back into the pattern scores. It is the only writer of validation fields.
type Validator struct {
	cfg       Config
	candles   repository.CandleStore
	preds     repository.PredictionStore
	scores    repository.PatternScoreStore
	publisher repository.PredictionPublisher
	metrics   repository.Metrics
	log       *applogger.Logger
}

func NewValidator(
	cfg Config,
	candles repository.CandleStore,
	preds repository.PredictionStore,
	scores repository.PatternScoreStore,
	publisher repository.PredictionPublisher,
	metrics repository.Metrics,
	log *applogger.Logger,
) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = repository.NopPublisher{}
	}
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	return &Validator{
		cfg:       cfg,
		candles:   candles,
		preds:     preds,
		scores:    scores,
		publisher: publisher,
		metrics:   metrics,
		log:       applogger.OrNop(log).With(applogger.String("component", "validator")),
	}, nil
}

func (v *Validator) Config() Config { return v.cfg }

// RunOnce validates every unresolved prediction older than Delay. Predictions whose
// candles are not in the store yet stay pending for a later pass.
func (v *Validator) RunOnce(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary
	pending, err := v.preds.ListPredictions(ctx, models.PredictionFilter{
		Validated: models.BoolPtr(false),
		To:        now.Add(-v.cfg.Delay),
		Limit:     v.cfg.BatchSize,
	})
	if err != nil {
		return sum, fmt.Errorf("list unvalidated: %w", err)
	}
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Scanned++
		res, err := v.resolve(ctx, p, now)
		switch {
		case errors.Is(err, models.ErrValidationDataMissing):
			sum.Pending++
			v.log.Debug("prediction left pending", applogger.String("prediction_id", p.ID), applogger.Error(err))
			continue
		case errors.Is(err, models.ErrAlreadyValidated):
			continue
		case err != nil:
			sum.Failed++
			v.metrics.RecordError("validation")
			v.log.Warn("validate prediction", applogger.String("prediction_id", p.ID), applogger.Error(err))
			continue
		}
		sum.Validated++
		if res.Correct() {
			sum.Correct++
		}
	}
	if sum.Scanned > 0 {
		v.log.Info("validation pass",
			applogger.Int("scanned", sum.Scanned),
			applogger.Int("validated", sum.Validated),
			applogger.Int("correct", sum.Correct),
			applogger.Int("pending", sum.Pending))
	}
	return sum, nil
}

func (v *Validator) resolve(ctx context.Context, p models.Prediction, now time.Time) (models.Prediction, error) {
	anchor, err := v.nearest(ctx, p.Symbol, p.Timestamp)
	if err != nil {
		return p, err
	}
	later, err := v.nearest(ctx, p.Symbol, p.Timestamp.Add(v.cfg.Delay))
	if err != nil {
		return p, err
	}
	outcome := models.DirectionDown
	if later.Close > anchor.Close {
		outcome = models.DirectionUp
	}
	r := models.Resolution{
		Outcome:         outcome,
		WasCorrect:      outcome == p.Direction,
		ResolvedAt:      now,
		AnchorClose:     anchor.Close,
		ResolutionClose: later.Close,
	}
	resolved, err := v.preds.ResolvePrediction(ctx, p.ID, r)
	if err != nil {
		return p, err
	}
	v.metrics.RecordValidation(r.WasCorrect)

	if err := v.recordScore(ctx, resolved, now); err != nil {
		v.log.Warn("pattern score update", applogger.String("prediction_id", p.ID), applogger.Error(err))
	}
	if err := v.publisher.PublishOutcome(ctx, resolved); err != nil {
		v.log.Warn("publish outcome", applogger.String("prediction_id", p.ID), applogger.Error(err))
	}
	return resolved, nil
}

// nearest finds the candle closest to at within ±Window. Ties go to the earlier candle.
func (v *Validator) nearest(ctx context.Context, symbol string, at time.Time) (models.Candle, error) {
	candles, err := v.candles.CandlesBetween(ctx, symbol, at.Add(-v.cfg.Window), at.Add(v.cfg.Window))
	if err != nil {
		return models.Candle{}, fmt.Errorf("load candles: %w", err)
	}
	best, found := Nearest(candles, at)
	if !found {
		return models.Candle{}, fmt.Errorf("%s at %s: %w", symbol, at.Format(time.RFC3339), models.ErrValidationDataMissing)
	}
	return best, nil
}

// Nearest picks the candle whose timestamp is closest to at; on equal distance the
// earlier one wins.
func Nearest(candles []models.Candle, at time.Time) (models.Candle, bool) {
	var (
		best  models.Candle
		bestD time.Duration = -1
	)
	for _, c := range candles {
		d := c.Timestamp.Sub(at)
		if d < 0 {
			d = -d
		}
		if bestD < 0 || d < bestD || (d == bestD && c.Timestamp.Before(best.Timestamp)) {
			best, bestD = c, d
		}
	}
	return best, bestD >= 0
}

func (v *Validator) recordScore(ctx context.Context, p models.Prediction, now time.Time) error {
	if v.scores == nil || p.FeatureSet.IsZero() {
		return nil
	}
	sig := features.Signature(p.FeatureSet)
	score, err := v.scores.GetPatternScore(ctx, sig)
	if errors.Is(err, models.ErrNotFound) {
		score, err = models.PatternScore{Signature: sig}, nil
	}
	if err != nil {
		return err
	}
	return v.scores.PutPatternScore(ctx, score.Record(p.Correct(), now))
}
