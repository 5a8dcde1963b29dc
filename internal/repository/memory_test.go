package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
	"CandleSense/pkg/cache"
)

var base = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

func candleAt(sym string, minute int, close float64) models.Candle {
	return models.Candle{
		Symbol:    sym,
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
	}
}

func TestMemoryCandleStoreLatestWriteWins(t *testing.T) {
	s := NewMemoryCandleStore(0)
	ctx := context.Background()

	require.NoError(t, s.UpsertCandles(ctx, []models.Candle{candleAt("EURUSD", 2, 102), candleAt("EURUSD", 0, 100), candleAt("EURUSD", 1, 101)}))
	require.NoError(t, s.UpsertCandles(ctx, []models.Candle{candleAt("EURUSD", 1, 150)}))

	got, err := s.LatestCandles(ctx, "EURUSD", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{100, 150, 102}, []float64{got[0].Close, got[1].Close, got[2].Close})

	n, err := s.CountCandles(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestMemoryCandleStoreReadersKeepTheirSnapshot(t *testing.T) {
	s := NewMemoryCandleStore(0)
	ctx := context.Background()
	require.NoError(t, s.UpsertCandles(ctx, []models.Candle{candleAt("X", 0, 100)}))

	before, err := s.LatestCandles(ctx, "X", 1)
	require.NoError(t, err)
	require.NoError(t, s.UpsertCandles(ctx, []models.Candle{candleAt("X", 0, 200)}))

	assert.Equal(t, 100.0, before[0].Close)
	after, err := s.LatestCandles(ctx, "X", 1)
	require.NoError(t, err)
	assert.Equal(t, 200.0, after[0].Close)
}

func TestMemoryCandleStoreRangeAndRetention(t *testing.T) {
	s := NewMemoryCandleStore(4)
	ctx := context.Background()
	var batch []models.Candle
	for i := 0; i < 6; i++ {
		batch = append(batch, candleAt("X", i, float64(100+i)))
	}
	require.NoError(t, s.UpsertCandles(ctx, batch))

	all, err := s.LatestCandles(ctx, "X", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 102.0, all[0].Close)

	between, err := s.CandlesBetween(ctx, "X", base.Add(3*time.Minute), base.Add(4*time.Minute))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, 103.0, between[0].Close)

	removed, err := s.DeleteCandlesBefore(ctx, base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
	assert.Equal(t, []string{"X"}, s.Symbols())
}

func prediction(id string, minute int, dir models.Direction) models.Prediction {
	return models.Prediction{
		ID:        id,
		Symbol:    "EURUSD",
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Direction: dir,
		Patterns:  []string{"doji"},
		FeatureSet: models.FeatureSet{
			Arrays: models.ArrayFeatures{BodyRatios: []float64{0.5}},
		},
	}
}

func TestMemoryPredictionStoreResolveOnce(t *testing.T) {
	s := NewMemoryPredictionStore()
	ctx := context.Background()
	require.NoError(t, s.AppendPrediction(ctx, prediction("a", 0, models.DirectionUp)))
	assert.Error(t, s.AppendPrediction(ctx, prediction("a", 1, models.DirectionUp)))

	r := models.Resolution{Outcome: models.DirectionDown, WasCorrect: false, ResolvedAt: base.Add(10 * time.Minute)}
	got, err := s.ResolvePrediction(ctx, "a", r)
	require.NoError(t, err)
	assert.True(t, got.Validated)
	assert.False(t, got.Correct())
	assert.Equal(t, models.DirectionDown, got.ActualOutcome)

	_, err = s.ResolvePrediction(ctx, "a", r)
	assert.ErrorIs(t, err, models.ErrAlreadyValidated)

	_, err = s.GetPrediction(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryPredictionStoreFiltersAndCounts(t *testing.T) {
	s := NewMemoryPredictionStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.AppendPrediction(ctx, prediction(id, i, models.DirectionUp)))
	}
	for i, id := range []string{"a", "b", "c"} {
		_, err := s.ResolvePrediction(ctx, id, models.Resolution{
			Outcome:    models.DirectionUp,
			WasCorrect: id != "c",
			ResolvedAt: base.Add(time.Duration(10+i) * time.Minute),
		})
		require.NoError(t, err)
	}

	pending, err := s.ListPredictions(ctx, models.PredictionFilter{Validated: models.BoolPtr(false)})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "d", pending[0].ID)

	newest, err := s.ListPredictions(ctx, models.PredictionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, []string{newest[0].ID, newest[1].ID})

	// resolved at 10, 11, 12: strictly after 10 and not before 11
	n, err := s.CountValidated(ctx, base.Add(10*time.Minute), base.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hist, err := s.History(ctx, "EURUSD", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "c", hist[0].PredictionID)
	assert.Equal(t, models.DirectionUp, hist[0].Outcome)

	st, err := s.PredictionStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, st.TotalPredictions)
	assert.EqualValues(t, 3, st.ValidatedPredictions)
	assert.InDelta(t, 2.0/3.0, st.WinRate, 1e-9)

	removed, err := s.DeletePredictionsBefore(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
}

func TestMemoryPredictionStoreReturnsCopies(t *testing.T) {
	s := NewMemoryPredictionStore()
	ctx := context.Background()
	require.NoError(t, s.AppendPrediction(ctx, prediction("a", 0, models.DirectionUp)))

	got, err := s.GetPrediction(ctx, "a")
	require.NoError(t, err)
	got.Patterns[0] = "mutated"

	again, err := s.GetPrediction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "doji", again.Patterns[0])
}

func TestFileModelStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "model.json")
	s := NewFileModelStore(path)
	ctx := context.Background()

	_, err := s.LoadModel(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	snap := domrepo.ModelSnapshot{Version: 3, TrainedAt: base, Accuracy: 0.61, Payload: []byte(`{"w":[1,2]}`)}
	require.NoError(t, s.SaveModel(ctx, snap))
	require.NoError(t, s.SaveModel(ctx, domrepo.ModelSnapshot{Version: 4, TrainedAt: base, Payload: []byte(`{}`)}))

	got, err := s.LoadModel(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got.Version)
}

func TestCachedPatternScoreStoreReadThrough(t *testing.T) {
	inner := NewMemoryPatternScoreStore()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCachedPatternScoreStore(inner, mc, time.Minute, nil)
	ctx := context.Background()

	_, err := s.GetPatternScore(ctx, "sig")
	assert.ErrorIs(t, err, models.ErrNotFound)

	sc := models.PatternScore{Signature: "sig"}.Record(true, base)
	require.NoError(t, s.PutPatternScore(ctx, sc))

	// a write behind the cache's back is not visible until the entry expires
	require.NoError(t, inner.PutPatternScore(ctx, sc.Record(false, base)))
	got, err := s.GetPatternScore(ctx, "sig")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.SuccessCount)
	assert.EqualValues(t, 0, got.FailureCount)
}
