package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
)

func sampleSet(shift float64, patterns ...string) models.FeatureSet {
	return models.FeatureSet{
		Arrays: models.ArrayFeatures{
			BodyRatios:      []float64{0.2 + shift, 0.4, 0.6, 0.5},
			BodyDirections:  []float64{1, -1, 1, 1},
			UpperWickRatios: []float64{0.1, 0.2, 0.1, 0.3},
			LowerWickRatios: []float64{0.3, 0.2, 0.2, 0.1},
		},
		Scalars: models.ScalarFeatures{
			ShortTermSlope:     0.4 + shift,
			MediumTermSlope:    0.2,
			LongTermSlope:      0.1,
			AverageTrueRange:   1.5,
			VolatilityRatio:    1.1,
			ConsecutiveBullish: 2,
			NearResistance:     true,
		},
		Patterns: patterns,
	}
}

func oppositeSet() models.FeatureSet {
	return models.FeatureSet{
		Arrays: models.ArrayFeatures{
			BodyRatios:      []float64{0.9, 0.9, 0.9, 0.9},
			BodyDirections:  []float64{-1, -1, -1, -1},
			UpperWickRatios: []float64{0.6, 0.6, 0.6, 0.6},
			LowerWickRatios: []float64{0.6, 0.6, 0.6, 0.6},
		},
		Scalars: models.ScalarFeatures{
			ShortTermSlope:     -5,
			MediumTermSlope:    -4,
			LongTermSlope:      -3,
			AverageTrueRange:   9,
			VolatilityRatio:    3,
			ConsecutiveBearish: 4,
			NearSupport:        true,
		},
		Patterns: []string{"three_black_crows"},
	}
}

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestDTW(t *testing.T) {
	assert.Equal(t, 0.0, DTW([]float64{1, 2, 3}, []float64{1, 2, 3}))
	// stretched sequence aligns for free
	assert.Equal(t, 0.0, DTW([]float64{1, 2, 3}, []float64{1, 1, 2, 2, 3}))
	assert.InDelta(t, 1.0, DTW([]float64{0, 0}, []float64{0, 1}), 1e-12)
	assert.True(t, math.IsInf(DTW(nil, []float64{1}), 1))
}

func TestScalarAndJaccard(t *testing.T) {
	assert.Equal(t, 1.0, ScalarSimilarity(3, 3))
	assert.InDelta(t, 0.5, ScalarSimilarity(0, 0.5), 1e-12)
	assert.Equal(t, 0.0, ScalarSimilarity(-10, 10))
	assert.Equal(t, 1.0, Jaccard(nil, nil))
	assert.InDelta(t, 1.0/3, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-12)
	assert.Equal(t, 0.0, Jaccard([]string{"a"}, nil))
}

func TestSimilarityReflexiveAndBounded(t *testing.T) {
	m := newTestMatcher(t)
	a := sampleSet(0, "hammer")

	self, err := m.Similarity(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, self, 1e-9)

	for _, shift := range []float64{0.1, 1, 50, -30} {
		s, err := m.Similarity(a, sampleSet(shift, "doji"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.Less(t, s, self)
	}
}

func TestSimilarityNonFiniteIsError(t *testing.T) {
	m := newTestMatcher(t)
	bad := sampleSet(0)
	bad.Scalars.ShortTermSlope = math.NaN()

	_, err := m.Similarity(sampleSet(0), bad)
	assert.ErrorIs(t, err, ErrNotComparable)
}

func TestMatchEmptyHistory(t *testing.T) {
	m := newTestMatcher(t)
	res := m.Match(sampleSet(0), nil)
	assert.Empty(t, res.Matches)
	assert.False(t, res.HasVote)
}

func TestMatchSkipsBrokenRecordsAndRanks(t *testing.T) {
	m := newTestMatcher(t)
	bad := sampleSet(0)
	bad.Arrays.BodyRatios = []float64{math.NaN()}

	history := []models.HistoricalRecord{
		{PredictionID: "far", FeatureSet: oppositeSet(), Outcome: models.DirectionDown},
		{PredictionID: "bad", FeatureSet: bad, Outcome: models.DirectionDown},
		{PredictionID: "near", FeatureSet: sampleSet(0.05), Outcome: models.DirectionUp},
		{PredictionID: "same", FeatureSet: sampleSet(0), Outcome: models.DirectionUp},
		{PredictionID: "pending", FeatureSet: sampleSet(0.01)},
	}
	res := m.Match(sampleSet(0), history)

	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, "same", res.Matches[0].Record.PredictionID)
	require.True(t, res.HasVote)
	assert.Equal(t, models.DirectionUp, res.Vote.Direction)
	assert.Equal(t, 2, res.Vote.Samples)
	assert.InDelta(t, 1.0, res.Vote.Confidence, 1e-9)
}

func TestMatchTruncatesToTopK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopK = 2
	m, err := NewMatcher(cfg)
	require.NoError(t, err)

	var history []models.HistoricalRecord
	for i := 0; i < 5; i++ {
		history = append(history, models.HistoricalRecord{FeatureSet: sampleSet(float64(i) * 0.01), Outcome: models.DirectionUp})
	}
	assert.Len(t, m.Match(sampleSet(0), history).Matches, 2)
}

func TestInferWeightedVote(t *testing.T) {
	vote, ok := Infer([]Match{
		{Similarity: 0.9, Outcome: models.DirectionUp},
		{Similarity: 0.3, Outcome: models.DirectionDown},
	})
	require.True(t, ok)
	assert.Equal(t, models.DirectionUp, vote.Direction)
	assert.InDelta(t, 0.75, vote.Confidence, 1e-9)
	assert.InDelta(t, 0.25, vote.Down, 1e-9)
}

func TestInferNoOutcomes(t *testing.T) {
	_, ok := Infer([]Match{{Similarity: 0.9}})
	assert.False(t, ok)
}
