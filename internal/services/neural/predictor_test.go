package neural

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/domain/repository"
)

type stubModelStore struct {
	mu      sync.Mutex
	snap    *repository.ModelSnapshot
	saveErr error
	loadErr error
}

func (s *stubModelStore) SaveModel(_ context.Context, snap repository.ModelSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snap = &snap
	return nil
}

func (s *stubModelStore) LoadModel(context.Context) (repository.ModelSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return repository.ModelSnapshot{}, s.loadErr
	}
	if s.snap == nil {
		return repository.ModelSnapshot{}, models.ErrNotFound
	}
	return *s.snap, nil
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.InputSize = 4
	cfg.Hidden = []int{16, 8}
	cfg.Dropout = []float64{0.1}
	cfg.LearningRate = 0.01
	cfg.Epochs = 40
	cfg.BatchSize = 16
	return cfg
}

// separable: the sign of the first input decides the class
func separable(n int, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Sample, n)
	for i := range out {
		x := []float64{1 + rng.Float64(), rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1}
		label := ClassUp
		if i%2 == 1 {
			x[0] = -x[0]
			label = ClassDown
		}
		out[i] = NewSample(x, label)
	}
	return out
}

func newTestPredictor(t *testing.T, cfg Config, store repository.ModelStore) *Predictor {
	t.Helper()
	p, err := NewPredictor(cfg, store, nil)
	require.NoError(t, err)
	return p
}

func TestPredictWithoutModel(t *testing.T) {
	p := newTestPredictor(t, smallConfig(), nil)

	_, err := p.Predict(make([]float64, 4))
	assert.ErrorIs(t, err, models.ErrModelNotReady)
	_, err = p.Evaluate(separable(4, 1))
	assert.ErrorIs(t, err, models.ErrModelNotReady)
	assert.Equal(t, int64(-1), p.Version())
}

func TestPredictDistribution(t *testing.T) {
	p := newTestPredictor(t, smallConfig(), nil)
	p.Build()

	out, err := p.Predict([]float64{0.5, -1, 2, 0})
	require.NoError(t, err)
	require.Len(t, out.Probabilities, int(NumClasses))
	sum := 0.0
	for _, v := range out.Probabilities {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, out.Probabilities[out.Class], out.Confidence)

	_, err = p.Predict([]float64{1})
	assert.Error(t, err)
}

func TestTrainLearnsAndBumpsVersion(t *testing.T) {
	cfg := smallConfig()
	p := newTestPredictor(t, cfg, nil)
	p.Build()
	data := separable(400, 7)
	train, test := Split(data, 0.8, 1)

	run, err := p.Train(context.Background(), train, test)
	require.NoError(t, err)

	var epochs []EpochProgress
	for ep := range run.Progress() {
		epochs = append(epochs, ep)
	}
	res, err := run.Wait(context.Background())
	require.NoError(t, err)

	assert.Len(t, epochs, cfg.Epochs)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, int64(1), p.Version())
	assert.False(t, p.Busy())

	ev, err := p.Evaluate(test)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.Accuracy, 0.9)
	assert.Less(t, epochs[len(epochs)-1].Loss, epochs[0].Loss)
}

func TestTrainRejectsConcurrentRun(t *testing.T) {
	cfg := smallConfig()
	cfg.Epochs = 100000
	p := newTestPredictor(t, cfg, nil)
	p.Build()

	ctx, cancel := context.WithCancel(context.Background())
	run, err := p.Train(ctx, separable(400, 3), nil)
	require.NoError(t, err)

	_, err = p.Train(context.Background(), separable(10, 4), nil)
	assert.ErrorIs(t, err, models.ErrTrainingBusy)
	_, err = p.TrainCandidate(context.Background(), separable(10, 4), nil)
	assert.ErrorIs(t, err, models.ErrTrainingBusy)

	// predictions keep working while the run is in flight
	out, err := p.Predict([]float64{1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.Version)

	cancel()
	_, err = run.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), p.Version())
	assert.Nil(t, run.Candidate())

	require.Eventually(t, func() bool { return !p.Busy() }, time.Second, 5*time.Millisecond)
}

func TestTrainEmptySetClearsBusy(t *testing.T) {
	p := newTestPredictor(t, smallConfig(), nil)
	p.Build()

	_, err := p.Train(context.Background(), nil, nil)
	assert.ErrorIs(t, err, models.ErrInsufficientTrainingData)
	assert.False(t, p.Busy())
}

func TestConcurrentPredictSeesWholeVersions(t *testing.T) {
	cfg := smallConfig()
	p := newTestPredictor(t, cfg, nil)
	p.Build()

	run, err := p.Train(context.Background(), separable(200, 5), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				out, err := p.Predict([]float64{1, 0, 0, 0})
				if err != nil {
					errs <- err
					return
				}
				if out.Version != 0 && out.Version != 1 {
					errs <- errors.New("unexpected version")
					return
				}
				select {
				case <-run.Done():
					return
				default:
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	_, err = run.Wait(context.Background())
	require.NoError(t, err)
}

func TestPromoteFailedSaveKeepsOldModel(t *testing.T) {
	store := &stubModelStore{saveErr: errors.New("disk full")}
	p := newTestPredictor(t, smallConfig(), store)
	p.Build()
	before := p.Current()

	run, err := p.TrainCandidate(context.Background(), separable(100, 9), nil)
	require.NoError(t, err)
	_, err = p.Promote(context.Background(), run)

	assert.ErrorIs(t, err, models.ErrPersistenceFailure)
	assert.Same(t, before, p.Current())
	assert.Equal(t, int64(0), p.Version())
}

func TestPromotePersistsThenSwaps(t *testing.T) {
	store := &stubModelStore{}
	p := newTestPredictor(t, smallConfig(), store)
	p.Build()

	run, err := p.TrainCandidate(context.Background(), separable(100, 9), nil)
	require.NoError(t, err)
	v, err := p.Promote(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(1), p.Version())
	require.NotNil(t, store.snap)
	assert.Equal(t, int64(1), store.snap.Version)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := &stubModelStore{}
	p := newTestPredictor(t, smallConfig(), store)
	p.Build()
	run, err := p.Train(context.Background(), separable(100, 2), nil)
	require.NoError(t, err)
	_, err = run.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Save(context.Background()))

	q := newTestPredictor(t, smallConfig(), store)
	require.True(t, q.Load(context.Background()))
	assert.Equal(t, p.Version(), q.Version())

	x := []float64{0.3, -0.2, 0.1, 0.9}
	a, err := p.Predict(x)
	require.NoError(t, err)
	b, err := q.Predict(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, a.Probabilities, b.Probabilities, 1e-12)
}

func TestLoadFallsBackToFreshModel(t *testing.T) {
	for name, store := range map[string]*stubModelStore{
		"missing": {},
		"error":   {loadErr: errors.New("connection refused")},
		"corrupt": {snap: &repository.ModelSnapshot{Version: 3, Payload: []byte("{not json")}},
	} {
		t.Run(name, func(t *testing.T) {
			p := newTestPredictor(t, smallConfig(), store)
			assert.False(t, p.Load(context.Background()))
			assert.True(t, p.Ready())
			assert.Equal(t, int64(0), p.Version())
		})
	}
}

func TestPrepareSamplesAndSplit(t *testing.T) {
	fs := models.FeatureSet{Arrays: models.ArrayFeatures{BodyRatios: []float64{0.5}, BodyDirections: []float64{1}}}
	preds := []models.Prediction{
		{ID: "a", Validated: true, ActualOutcome: models.DirectionUp, FeatureSet: fs},
		{ID: "b", Validated: false, FeatureSet: fs},
		{ID: "c", Validated: true, ActualOutcome: models.DirectionDown},
		{ID: "d", Validated: true, ActualOutcome: models.DirectionDown, FeatureSet: fs},
	}
	samples := PrepareSamples(preds)
	require.Len(t, samples, 2)
	assert.Equal(t, []float64{1, 0, 0}, samples[0].Target)
	assert.Equal(t, ClassDown, samples[1].Label)
	assert.Len(t, samples[0].Input, DefaultConfig().InputSize)

	data := separable(50, 1)
	tr1, te1 := Split(data, 0.8, 42)
	tr2, te2 := Split(data, 0.8, 42)
	assert.Len(t, tr1, 40)
	assert.Len(t, te1, 10)
	assert.Equal(t, tr1, tr2)
	assert.Equal(t, te1, te2)
}

func TestDecodeRejectsMismatchedLayers(t *testing.T) {
	n, err := NewNetwork(smallConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	b, err := Encode(n)
	require.NoError(t, err)

	back, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 4, back.InputSize())

	n.layers[1].W[0] = n.layers[1].W[0][:3]
	b, err = Encode(n)
	require.NoError(t, err)
	_, err = Decode(b)
	assert.Error(t, err)
}

func TestBusyClearedWhenWaitReturns(t *testing.T) {
	p := newTestPredictor(t, smallConfig(), nil)
	p.Build()

	for i := 0; i < 3; i++ {
		run, err := p.Train(context.Background(), separable(40, int64(i)), nil)
		require.NoError(t, err)
		_, err = run.Wait(context.Background())
		require.NoError(t, err)
		assert.False(t, p.Busy())
	}
	assert.Equal(t, int64(3), p.Version())
}

func TestPromoteStaysAheadOfStore(t *testing.T) {
	store := &stubModelStore{}
	a := newTestPredictor(t, smallConfig(), store)
	a.Build()
	b := newTestPredictor(t, smallConfig(), store)
	b.Build()

	runA, err := a.TrainCandidate(context.Background(), separable(60, 1), nil)
	require.NoError(t, err)
	va, err := a.Promote(context.Background(), runA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), va)

	// b never saw version 1
	assert.Equal(t, int64(0), b.Version())
	runB, err := b.TrainCandidate(context.Background(), separable(60, 2), nil)
	require.NoError(t, err)
	vb, err := b.Promote(context.Background(), runB)
	require.NoError(t, err)

	assert.Equal(t, int64(2), vb)
	assert.Equal(t, int64(2), store.snap.Version)
}

func TestSyncAdoptsNewerModel(t *testing.T) {
	store := &stubModelStore{}
	a := newTestPredictor(t, smallConfig(), store)
	a.Build()
	b := newTestPredictor(t, smallConfig(), store)
	b.Build()

	changed, err := b.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	run, err := a.TrainCandidate(context.Background(), separable(60, 1), nil)
	require.NoError(t, err)
	_, err = a.Promote(context.Background(), run)
	require.NoError(t, err)

	changed, err = b.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(1), b.Version())
	assert.True(t, a.Current().TrainedAt.Equal(b.Current().TrainedAt))

	x := []float64{0.3, -0.2, 0.1, 0.9}
	pa, err := a.Predict(x)
	require.NoError(t, err)
	pb, err := b.Predict(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, pa.Probabilities, pb.Probabilities, 1e-12)

	// same version again is a no-op
	before := b.Current()
	changed, err = b.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, before, b.Current())

	store.loadErr = errors.New("connection refused")
	_, err = b.Sync(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int64(1), b.Version())
}
