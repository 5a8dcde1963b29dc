package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/repository"
	"CandleSense/internal/services/features"
)

var t0 = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	outcomes []models.Prediction
}

func (p *recordingPublisher) PublishPrediction(context.Context, models.Prediction) error { return nil }
func (p *recordingPublisher) PublishOutcome(_ context.Context, pr models.Prediction) error {
	p.outcomes = append(p.outcomes, pr)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	candles *repository.MemoryCandleStore
	preds   *repository.MemoryPredictionStore
	scores  *repository.MemoryPatternScoreStore
	pub     *recordingPublisher
	v       *Validator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		candles: repository.NewMemoryCandleStore(0),
		preds:   repository.NewMemoryPredictionStore(),
		scores:  repository.NewMemoryPatternScoreStore(),
		pub:     &recordingPublisher{},
	}
	v, err := NewValidator(DefaultConfig(), f.candles, f.preds, f.scores, f.pub, nil, nil)
	require.NoError(t, err)
	f.v = v
	return f
}

func closeAt(minute int, close float64) models.Candle {
	return models.Candle{Symbol: "EURUSD", Timestamp: t0.Add(time.Duration(minute) * time.Minute),
		Open: close, High: close + 1, Low: close - 1, Close: close}
}

func upPrediction(id string) models.Prediction {
	return models.Prediction{
		ID:        id,
		Symbol:    "EURUSD",
		Timestamp: t0,
		Direction: models.DirectionUp,
		FeatureSet: models.FeatureSet{Arrays: models.ArrayFeatures{
			BodyRatios:     []float64{0.6},
			BodyDirections: []float64{1},
		}},
	}
}

func TestRunOnceResolvesDownMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.candles.UpsertCandles(ctx, []models.Candle{closeAt(0, 100), closeAt(5, 98)}))
	require.NoError(t, f.preds.AppendPrediction(ctx, upPrediction("p1")))

	now := t0.Add(6 * time.Minute)
	sum, err := f.v.RunOnce(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Validated: 1}, sum)

	got, err := f.preds.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Validated)
	assert.Equal(t, models.DirectionDown, got.ActualOutcome)
	require.NotNil(t, got.WasCorrect)
	assert.False(t, *got.WasCorrect)
	require.NotNil(t, got.ValidationTimestamp)
	assert.Equal(t, now, *got.ValidationTimestamp)

	require.Len(t, f.pub.outcomes, 1)
	assert.Equal(t, "p1", f.pub.outcomes[0].ID)

	score, err := f.scores.GetPatternScore(ctx, features.Signature(got.FeatureSet))
	require.NoError(t, err)
	assert.EqualValues(t, 0, score.SuccessCount)
	assert.EqualValues(t, 1, score.FailureCount)
}

func TestRunOnceEqualCloseCountsAsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.candles.UpsertCandles(ctx, []models.Candle{closeAt(0, 100), closeAt(5, 100)}))
	require.NoError(t, f.preds.AppendPrediction(ctx, upPrediction("p1")))

	_, err := f.v.RunOnce(ctx, t0.Add(6*time.Minute))
	require.NoError(t, err)

	got, err := f.preds.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDown, got.ActualOutcome)
}

func TestRunOnceLeavesPendingWithoutLaterCandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.candles.UpsertCandles(ctx, []models.Candle{closeAt(0, 100)}))
	require.NoError(t, f.preds.AppendPrediction(ctx, upPrediction("p1")))

	sum, err := f.v.RunOnce(ctx, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pending)
	assert.Zero(t, sum.Validated)

	got, err := f.preds.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, got.Validated)
	assert.Empty(t, f.pub.outcomes)

	// the candle arrives late; the next pass resolves it
	require.NoError(t, f.candles.UpsertCandles(ctx, []models.Candle{closeAt(5, 103)}))
	sum, err = f.v.RunOnce(ctx, t0.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Correct)
}

func TestRunOnceSkipsImmaturePredictions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.preds.AppendPrediction(ctx, upPrediction("p1")))

	sum, err := f.v.RunOnce(ctx, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, sum.Scanned)
}

func TestRunOnceDoesNotRevalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.candles.UpsertCandles(ctx, []models.Candle{closeAt(0, 100), closeAt(5, 101)}))
	require.NoError(t, f.preds.AppendPrediction(ctx, upPrediction("p1")))

	_, err := f.v.RunOnce(ctx, t0.Add(6*time.Minute))
	require.NoError(t, err)
	sum, err := f.v.RunOnce(ctx, t0.Add(7*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, sum.Scanned)
	assert.Len(t, f.pub.outcomes, 1)
}

func TestNearestPrefersEarlierOnTie(t *testing.T) {
	at := t0.Add(30 * time.Second)
	got, ok := Nearest([]models.Candle{closeAt(1, 2), closeAt(0, 1)}, at)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Close)

	_, ok = Nearest(nil, at)
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}
