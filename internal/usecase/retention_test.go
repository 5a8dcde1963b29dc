package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/repository"
	"CandleSense/pkg/cache"
)

func TestRetentionRun(t *testing.T) {
	ctx := context.Background()
	candles := repository.NewMemoryCandleStore(0)
	preds := repository.NewMemoryPredictionStore()
	locks := cache.NewMemoryCache()
	defer locks.Close()

	now := base.Add(100 * 24 * time.Hour)
	old, fresh := base, now.Add(-time.Hour)
	require.NoError(t, candles.UpsertCandles(ctx, []models.Candle{
		{Symbol: symbol, Timestamp: old, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Symbol: symbol, Timestamp: fresh, Open: 1, High: 2, Low: 0.5, Close: 1.5},
	}))
	require.NoError(t, preds.AppendPrediction(ctx, models.Prediction{ID: "old", Symbol: symbol, Timestamp: old, Direction: models.DirectionUp}))
	require.NoError(t, preds.AppendPrediction(ctx, models.Prediction{ID: "new", Symbol: symbol, Timestamp: fresh, Direction: models.DirectionUp}))

	r, err := NewRetention(DefaultRetentionConfig(), candles, preds, locks, nil, nil)
	require.NoError(t, err)

	rep, err := r.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*24*time.Hour), rep.Cutoff)
	assert.EqualValues(t, 1, rep.Candles)
	assert.EqualValues(t, 1, rep.Predictions)
	assert.False(t, rep.Skipped)

	_, err = preds.GetPrediction(ctx, "old")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = preds.GetPrediction(ctx, "new")
	assert.NoError(t, err)
	n, err := candles.CountCandles(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRetentionSkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	locks := cache.NewMemoryCache()
	defer locks.Close()
	ok, err := locks.TryLock(ctx, retentionLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	r, err := NewRetention(DefaultRetentionConfig(), repository.NewMemoryCandleStore(0), repository.NewMemoryPredictionStore(), locks, nil, nil)
	require.NoError(t, err)
	rep, err := r.Run(ctx, base)
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
}

func TestRetentionConfigValidate(t *testing.T) {
	cfg := DefaultRetentionConfig()
	cfg.MaxAge = 0
	assert.Error(t, cfg.Validate())
}
