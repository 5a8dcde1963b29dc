package training

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
	"CandleSense/internal/repository"
	"CandleSense/internal/services/neural"
)

var now = time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)

type failingModelStore struct{}

func (failingModelStore) SaveModel(context.Context, domrepo.ModelSnapshot) error {
	return errors.New("disk full")
}
func (failingModelStore) LoadModel(context.Context) (domrepo.ModelSnapshot, error) {
	return domrepo.ModelSnapshot{}, models.ErrNotFound
}

func smallNet() neural.Config {
	cfg := neural.DefaultConfig()
	cfg.Hidden = []int{8}
	cfg.Dropout = nil
	cfg.Epochs = 3
	return cfg
}

func newPredictor(t *testing.T, store domrepo.ModelStore) *neural.Predictor {
	t.Helper()
	p, err := neural.NewPredictor(smallNet(), store, nil)
	require.NoError(t, err)
	p.Build()
	return p
}

// seedValidated stores n validated predictions; odd ones went down.
func seedValidated(t *testing.T, store *repository.MemoryPredictionStore, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		dir := models.DirectionUp
		sign := 1.0
		if i%2 == 1 {
			dir, sign = models.DirectionDown, -1
		}
		ratios := make([]float64, 20)
		dirs := make([]float64, 20)
		for j := range ratios {
			ratios[j] = 0.3 + float64(j%5)/10
			dirs[j] = sign
		}
		ts := now.Add(-time.Duration(n-i) * time.Minute)
		resolved := ts.Add(5 * time.Minute)
		correct := true
		require.NoError(t, store.AppendPrediction(ctx, models.Prediction{
			ID:        fmt.Sprintf("p%03d", i),
			Symbol:    "EURUSD",
			Timestamp: ts,
			Direction: dir,
			FeatureSet: models.FeatureSet{
				Arrays:  models.ArrayFeatures{BodyRatios: ratios, BodyDirections: dirs},
				Scalars: models.ScalarFeatures{ShortTermSlope: sign * 0.01},
			},
			Validated:           true,
			WasCorrect:          &correct,
			ActualOutcome:       dir,
			ValidationTimestamp: &resolved,
		}))
	}
}

func newTrainer(t *testing.T, p *neural.Predictor, store *repository.MemoryPredictionStore) *Trainer {
	t.Helper()
	tr, err := NewTrainer(DefaultConfig(), p, store, nil, nil)
	require.NoError(t, err)
	return tr
}

func TestRetrainPromotesNewVersion(t *testing.T) {
	preds := repository.NewMemoryPredictionStore()
	seedValidated(t, preds, 60)
	modelStore := repository.NewMemoryModelStore()
	p := newPredictor(t, modelStore)
	tr := newTrainer(t, p, preds)

	ok, err := tr.ShouldRetrain(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := tr.Retrain(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, StatusTrained, res.Status)
	assert.EqualValues(t, 1, res.Version)
	assert.Equal(t, 60, res.Samples)
	assert.Equal(t, 48, res.TrainSamples)
	assert.Equal(t, 12, res.TestSamples)
	assert.Len(t, res.Epochs, 3)
	assert.EqualValues(t, 1, p.Version())
	assert.Equal(t, now, tr.LastTrainingTime())

	snap, err := modelStore.LoadModel(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Version)

	ok, err = tr.ShouldRetrain(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	st := tr.Status()
	assert.False(t, st.Running)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, StatusTrained, st.LastResult.Status)
}

func TestRetrainRequiresMinimumSamples(t *testing.T) {
	preds := repository.NewMemoryPredictionStore()
	seedValidated(t, preds, 10)
	p := newPredictor(t, repository.NewMemoryModelStore())
	tr := newTrainer(t, p, preds)

	res, err := tr.Retrain(context.Background(), now)
	assert.ErrorIs(t, err, models.ErrInsufficientTrainingData)
	assert.Equal(t, StatusInsufficient, res.Status)
	assert.True(t, tr.LastTrainingTime().IsZero())
	assert.EqualValues(t, 0, p.Version())
}

func TestRetrainWhileRunningIsBusy(t *testing.T) {
	preds := repository.NewMemoryPredictionStore()
	p := newPredictor(t, repository.NewMemoryModelStore())
	tr := newTrainer(t, p, preds)

	tr.running.Store(true)
	res, err := tr.Retrain(context.Background(), now)
	assert.ErrorIs(t, err, models.ErrTrainingBusy)
	assert.Equal(t, StatusBusy, res.Status)
	assert.True(t, tr.Status().Running)
	assert.Nil(t, tr.Status().LastResult)
}

func TestFailedSaveKeepsPreviousModel(t *testing.T) {
	preds := repository.NewMemoryPredictionStore()
	seedValidated(t, preds, 60)
	p := newPredictor(t, failingModelStore{})
	before := p.Current()
	tr := newTrainer(t, p, preds)

	res, err := tr.Retrain(context.Background(), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPersistenceFailure)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, tr.LastTrainingTime().IsZero())
	assert.Same(t, before, p.Current())
	assert.False(t, tr.Status().Running)

	// the model still serves predictions
	_, err = p.Predict(make([]float64, neural.DefaultConfig().InputSize))
	assert.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSamples = 10
	assert.Error(t, cfg.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}

func TestRetrainTimeoutLeavesModelUntouched(t *testing.T) {
	preds := repository.NewMemoryPredictionStore()
	seedValidated(t, preds, 60)
	p := newPredictor(t, repository.NewMemoryModelStore())
	before := p.Current()
	cfg := DefaultConfig()
	cfg.Timeout = time.Nanosecond
	tr, err := NewTrainer(cfg, p, preds, nil, nil)
	require.NoError(t, err)

	res, err := tr.Retrain(context.Background(), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusFailed, res.Status)
	assert.EqualValues(t, 0, p.Version())
	assert.Same(t, before, p.Current())
	assert.True(t, tr.LastTrainingTime().IsZero())
	assert.False(t, tr.Status().Running)
	assert.False(t, p.Busy())
}

func TestReplicasShareModelVersions(t *testing.T) {
	preds := repository.NewMemoryPredictionStore()
	seedValidated(t, preds, 60)
	modelStore := repository.NewMemoryModelStore()
	pa := newPredictor(t, modelStore)
	pb := newPredictor(t, modelStore)
	a := newTrainer(t, pa, preds)
	b := newTrainer(t, pb, preds)

	res, err := a.Retrain(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Version)

	// b adopts a's model and does not retrain on the same outcomes
	ok, err := b.ShouldRetrain(context.Background(), now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, pb.Version())
	assert.True(t, b.LastTrainingTime().Equal(pa.Current().TrainedAt))

	res, err = b.Retrain(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Version)
	snap, err := modelStore.LoadModel(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Version)

	_, err = a.ShouldRetrain(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, pa.Version())
}
