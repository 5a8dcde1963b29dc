package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
	drepo "CandleSense/internal/domain/repository"
	"CandleSense/internal/repository"
	"CandleSense/internal/services/neural"
	"CandleSense/internal/services/training"
	"CandleSense/internal/services/validation"
	"CandleSense/pkg/cache"
)

type loopFixture struct {
	loop    *LearningLoop
	candles *repository.MemoryCandleStore
	preds   *repository.MemoryPredictionStore
	locks   *cache.MemoryCache
	store   *repository.MemoryModelStore
	nn      *neural.Predictor
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	f := &loopFixture{
		candles: repository.NewMemoryCandleStore(0),
		preds:   repository.NewMemoryPredictionStore(),
		locks:   cache.NewMemoryCache(),
		store:   repository.NewMemoryModelStore(),
	}
	t.Cleanup(func() { _ = f.locks.Close() })

	v, err := validation.NewValidator(validation.DefaultConfig(), f.candles, f.preds, repository.NewMemoryPatternScoreStore(), nil, nil, nil)
	require.NoError(t, err)
	p, err := neural.NewPredictor(neural.DefaultConfig(), f.store, nil)
	require.NoError(t, err)
	f.nn = p
	tr, err := training.NewTrainer(training.DefaultConfig(), p, f.preds, nil, nil)
	require.NoError(t, err)

	l, err := NewLearningLoop(v, tr, f.locks, time.Minute, time.Minute, nil)
	require.NoError(t, err)
	l.now = func() time.Time { return base.Add(10 * time.Minute) }
	f.loop = l
	return f
}

func (f *loopFixture) seedMatured(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.candles.UpsertCandles(ctx, []models.Candle{
		{Symbol: symbol, Timestamp: base, Open: 100, High: 101, Low: 99, Close: 100},
		{Symbol: symbol, Timestamp: base.Add(5 * time.Minute), Open: 100, High: 102, Low: 99, Close: 101},
	}))
	require.NoError(t, f.preds.AppendPrediction(ctx, models.Prediction{
		ID:        "p1",
		Symbol:    symbol,
		Timestamp: base,
		Direction: models.DirectionUp,
	}))
}

func TestRunCycleValidatesWithoutRetraining(t *testing.T) {
	f := newLoopFixture(t)
	f.seedMatured(t)

	rep, err := f.loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Validation.Validated)
	assert.Equal(t, 1, rep.Validation.Correct)
	assert.False(t, rep.Retrained)
	assert.Nil(t, rep.Training)

	got, err := f.preds.GetPrediction(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, got.Correct())

	last := f.loop.LastCycle()
	require.NotNil(t, last)
	assert.Equal(t, rep.At, last.At)

	// the lock is released after the cycle
	ok, err := f.locks.TryLock(context.Background(), learningLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	f := newLoopFixture(t)
	ok, err := f.locks.TryLock(context.Background(), learningLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.loop.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleBusy)
	assert.Nil(t, f.loop.LastCycle())
}

func TestRunCycleAdoptsModelWhenLockHeld(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()
	ok, err := f.locks.TryLock(ctx, learningLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// the lock holder promoted version 3
	other, err := neural.NewPredictor(neural.DefaultConfig(), f.store, nil)
	require.NoError(t, err)
	n := other.Build()
	payload, err := neural.Encode(n)
	require.NoError(t, err)
	require.NoError(t, f.store.SaveModel(ctx, drepo.ModelSnapshot{Version: 3, TrainedAt: base, Payload: payload}))

	_, err = f.loop.RunCycle(ctx)
	assert.ErrorIs(t, err, ErrCycleBusy)
	assert.EqualValues(t, 3, f.nn.Version())
	assert.True(t, f.loop.trainer.LastTrainingTime().Equal(base))
}

func TestRunCycleNeverOverlaps(t *testing.T) {
	f := newLoopFixture(t)
	f.loop.running.Store(true)

	_, err := f.loop.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleBusy)
	_, err = f.loop.Validate(context.Background())
	assert.ErrorIs(t, err, ErrCycleBusy)

	f.loop.running.Store(false)
	_, err = f.loop.Validate(context.Background())
	assert.NoError(t, err)
}

func TestLearningLoopStartStop(t *testing.T) {
	f := newLoopFixture(t)
	f.seedMatured(t)

	f.loop.Start(context.Background())
	require.Eventually(t, func() bool { return f.loop.LastCycle() != nil }, 2*time.Second, 10*time.Millisecond)
	f.loop.Stop()
	f.loop.Stop()

	got, err := f.preds.GetPrediction(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, got.Validated)
}

func TestNewLearningLoopRequiresParts(t *testing.T) {
	_, err := NewLearningLoop(nil, nil, nil, time.Minute, 0, nil)
	assert.Error(t, err)
}
