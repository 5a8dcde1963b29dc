package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/domain/service"
	"CandleSense/internal/repository"
	"CandleSense/internal/services/ensemble"
	"CandleSense/internal/services/features"
	"CandleSense/internal/services/neural"
	"CandleSense/internal/services/patterns"
	"CandleSense/internal/services/risk"
	"CandleSense/internal/services/similarity"
)

const symbol = "EURUSD"

var base = time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)

func risingCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		open := 100 + float64(i)
		out[i] = models.Candle{
			Symbol:    symbol,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      open,
			Close:     open + 1,
			High:      open + 1.5,
			Low:       open - 0.5,
		}
	}
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	preds    []models.Prediction
	outcomes []models.Prediction
}

func (p *recordingPublisher) PublishPrediction(_ context.Context, pr models.Prediction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preds = append(p.preds, pr)
	return nil
}

func (p *recordingPublisher) PublishOutcome(_ context.Context, pr models.Prediction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, pr)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type stubEnricher struct {
	res   service.EnrichmentResult
	err   error
	calls int
}

func (s *stubEnricher) Enabled() bool { return true }

func (s *stubEnricher) Analyze(context.Context, service.EnrichmentRequest) (service.EnrichmentResult, error) {
	s.calls++
	return s.res, s.err
}

type stubManipulation struct{ rep service.ManipulationReport }

func (s stubManipulation) Detect(context.Context, string, models.FeatureSet) (service.ManipulationReport, error) {
	return s.rep, nil
}

type engineFixture struct {
	engine    *PredictionEngine
	candles   *repository.MemoryCandleStore
	preds     *repository.MemoryPredictionStore
	publisher *recordingPublisher
	comp      Components
}

func components(t *testing.T) Components {
	t.Helper()
	ex, err := features.NewExtractor(features.DefaultConfig())
	require.NoError(t, err)
	det, err := patterns.NewDetector(patterns.DefaultConfig())
	require.NoError(t, err)
	m, err := similarity.NewMatcher(similarity.DefaultConfig())
	require.NoError(t, err)
	// never built: the network source stays unusable so results are deterministic
	p, err := neural.NewPredictor(neural.DefaultConfig(), repository.NewMemoryModelStore(), nil)
	require.NoError(t, err)
	c, err := ensemble.NewCombiner(ensemble.DefaultConfig())
	require.NoError(t, err)
	g, err := risk.NewGate(risk.DefaultConfig())
	require.NoError(t, err)
	return Components{Extractor: ex, Detector: det, Matcher: m, Predictor: p, Combiner: c, Gate: g}
}

func newEngineFixture(t *testing.T, enricher service.Enricher, manip service.ManipulationDetector) *engineFixture {
	t.Helper()
	f := &engineFixture{
		candles:   repository.NewMemoryCandleStore(0),
		preds:     repository.NewMemoryPredictionStore(),
		publisher: &recordingPublisher{},
		comp:      components(t),
	}
	e, err := NewPredictionEngine(DefaultPredictionConfig(), f.comp, f.candles, f.preds, enricher, manip, f.publisher, nil, nil)
	require.NoError(t, err)
	e.now = func() time.Time { return base.Add(time.Hour) }
	f.engine = e
	return f
}

// seedAnalogue stores a validated prediction whose features equal those of candles.
func (f *engineFixture) seedAnalogue(t *testing.T, candles []models.Candle, outcome models.Direction) {
	t.Helper()
	fs, err := f.comp.Extractor.Extract(candles)
	require.NoError(t, err)
	fs = fs.WithPatterns(f.comp.Detector.DetectNames(candles))
	correct := true
	at := base.Add(-24 * time.Hour)
	require.NoError(t, f.preds.AppendPrediction(context.Background(), models.Prediction{
		ID:                  "analogue",
		Symbol:              symbol,
		Timestamp:           at,
		Direction:           outcome,
		FeatureSet:          fs,
		Validated:           true,
		WasCorrect:          &correct,
		ActualOutcome:       outcome,
		ValidationTimestamp: &at,
	}))
}

func TestPredictRejectsShortWindow(t *testing.T) {
	f := newEngineFixture(t, nil, nil)
	_, err := f.engine.Predict(context.Background(), symbol, risingCandles(10))
	assert.ErrorIs(t, err, models.ErrInsufficientData)

	stats, err := f.preds.PredictionStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPredictions)
}

func TestPredictWithoutSourcesYieldsNoSignal(t *testing.T) {
	f := newEngineFixture(t, nil, nil)
	_, err := f.engine.Predict(context.Background(), symbol, risingCandles(30))
	assert.ErrorIs(t, err, models.ErrNoUsablePrediction)
	assert.Empty(t, f.publisher.preds)
}

func TestPredictFromHistoricalAnalogue(t *testing.T) {
	f := newEngineFixture(t, nil, nil)
	candles := risingCandles(30)
	f.seedAnalogue(t, candles, models.DirectionUp)

	out, err := f.engine.Predict(context.Background(), symbol, candles)
	require.NoError(t, err)

	p := out.Prediction
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, models.DirectionUp, p.Direction)
	assert.Equal(t, models.MethodHistoricalOnly, p.Method)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
	assert.True(t, p.MeetsThreshold)
	assert.Equal(t, candles[len(candles)-1].Timestamp, p.Timestamp)
	assert.False(t, p.Validated)
	assert.True(t, out.Approved)
	assert.Len(t, out.Risk.Checks, 5)
	assert.Equal(t, 1, out.Similarity.Matched)
	require.NotNil(t, out.Similarity.Vote)

	stored, err := f.engine.Prediction(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Direction, stored.Direction)
	require.Len(t, f.publisher.preds, 1)
	assert.Equal(t, p.ID, f.publisher.preds[0].ID)
}

func TestPredictLoadsStoredWindow(t *testing.T) {
	f := newEngineFixture(t, nil, nil)
	candles := risingCandles(60)
	require.NoError(t, f.candles.UpsertCandles(context.Background(), candles))
	f.seedAnalogue(t, candles[10:], models.DirectionDown)

	out, err := f.engine.Predict(context.Background(), symbol, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDown, out.Prediction.Direction)
	assert.Equal(t, candles[59].Timestamp, out.Prediction.Timestamp)
}

func TestPredictFlagsManipulation(t *testing.T) {
	enr := &stubEnricher{res: service.Parsed{Judgment: service.Judgment{Confidence: 0.9}}}
	f := newEngineFixture(t, enr, stubManipulation{rep: service.ManipulationReport{Detected: true, Reasons: []string{"win rate"}}})
	candles := risingCandles(30)
	f.seedAnalogue(t, candles, models.DirectionUp)

	out, err := f.engine.Predict(context.Background(), symbol, candles)
	require.NoError(t, err)
	assert.True(t, out.Prediction.ManipulationWarning)
	assert.InDelta(t, 0.5, out.Prediction.Confidence, 1e-9)
	assert.False(t, out.Prediction.MeetsThreshold)
	assert.False(t, out.Approved)
	assert.Contains(t, out.Risk.Failed(), risk.CheckConfidence)
	assert.Zero(t, enr.calls, "enrichment only runs above the threshold")
}

func TestPredictEnrichment(t *testing.T) {
	t.Run("parsed nudges confidence", func(t *testing.T) {
		enr := &stubEnricher{res: service.Parsed{Judgment: service.Judgment{
			Direction:  models.DirectionDown,
			Confidence: 0.5,
			Reasoning:  "overbought",
		}}}
		f := newEngineFixture(t, enr, nil)
		candles := risingCandles(30)
		f.seedAnalogue(t, candles, models.DirectionUp)

		out, err := f.engine.Predict(context.Background(), symbol, candles)
		require.NoError(t, err)
		assert.Equal(t, 1, enr.calls)
		assert.Equal(t, models.DirectionUp, out.Prediction.Direction)
		assert.InDelta(t, 0.9, out.Prediction.Confidence, 1e-9)
		require.NotNil(t, out.Prediction.Enrichment)
		assert.Equal(t, "overbought", out.Prediction.Enrichment.Reasoning)
	})

	t.Run("unparsed keeps confidence", func(t *testing.T) {
		enr := &stubEnricher{res: service.Unparsed{Raw: "no idea"}}
		f := newEngineFixture(t, enr, nil)
		candles := risingCandles(30)
		f.seedAnalogue(t, candles, models.DirectionUp)

		out, err := f.engine.Predict(context.Background(), symbol, candles)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, out.Prediction.Confidence, 1e-9)
		require.NotNil(t, out.Prediction.Enrichment)
		assert.Equal(t, "no idea", out.Prediction.Enrichment.Raw)
	})

	t.Run("failure is swallowed", func(t *testing.T) {
		enr := &stubEnricher{err: errors.New("timeout")}
		f := newEngineFixture(t, enr, nil)
		candles := risingCandles(30)
		f.seedAnalogue(t, candles, models.DirectionUp)

		out, err := f.engine.Predict(context.Background(), symbol, candles)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, out.Prediction.Confidence, 1e-9)
		assert.Nil(t, out.Prediction.Enrichment)
	})
}

func TestPerformance(t *testing.T) {
	f := newEngineFixture(t, nil, nil)
	ctx := context.Background()
	for i, ok := range []bool{true, false, true, true} {
		correct := ok
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, f.preds.AppendPrediction(ctx, models.Prediction{
			ID:                  string(rune('a' + i)),
			Symbol:              symbol,
			Timestamp:           at,
			Direction:           models.DirectionUp,
			Validated:           true,
			WasCorrect:          &correct,
			ActualOutcome:       models.DirectionUp,
			ValidationTimestamp: &at,
		}))
	}
	perf, err := f.engine.Performance(ctx, "", 7)
	require.NoError(t, err)
	assert.Equal(t, 4, perf.Total)
	assert.Equal(t, 3, perf.Correct)
	assert.InDelta(t, 0.75, perf.WinRate, 1e-9)
	assert.Equal(t, "WWLW", perf.Last10)
}
