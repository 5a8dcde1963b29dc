package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/domain/repository"
	"CandleSense/internal/services/neural"
	applogger "CandleSense/pkg/logger"
)

type Config struct {
	// Threshold is how many newly validated predictions trigger a retrain.
	Threshold int           `yaml:"threshold" default:"50" validate:"gte=1"`
	Lookback  time.Duration `yaml:"lookback" default:"720h"`
	// MinSamples is the absolute floor of usable samples, independent of Threshold.
	MinSamples int     `yaml:"min_samples" default:"50" validate:"gte=2"`
	MaxSamples int     `yaml:"max_samples" default:"1000" validate:"gte=2"`
	TrainRatio float64 `yaml:"train_ratio" default:"0.8" validate:"gt=0,lt=1"`
	Seed       int64   `yaml:"seed" default:"42"`
	// Timeout bounds one run so it cannot stall the schedule.
	Timeout time.Duration `yaml:"timeout" default:"10m"`
}

func DefaultConfig() Config {
	return Config{
		Threshold:  50,
		Lookback:   30 * 24 * time.Hour,
		MinSamples: 50,
		MaxSamples: 1000,
		TrainRatio: 0.8,
		Seed:       42,
		Timeout:    10 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("training: threshold must be >= 1")
	}
	if c.MinSamples < 2 || c.MaxSamples < c.MinSamples {
		return fmt.Errorf("training: need 2 <= min_samples <= max_samples")
	}
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		return fmt.Errorf("training: train_ratio must be in (0,1)")
	}
	if c.Lookback <= 0 || c.Timeout <= 0 {
		return fmt.Errorf("training: lookback and timeout must be positive")
	}
	return nil
}

// Outcome labels of a retrain attempt.
const (
	StatusTrained      = "trained"
	StatusBusy         = "busy"
	StatusInsufficient = "insufficient_data"
	StatusFailed       = "failed"
)

// Result describes one Retrain call.
type Result struct {
	Status       string                 `json:"status"`
	Version      int64                  `json:"version,omitempty"`
	Samples      int                    `json:"samples"`
	TrainSamples int                    `json:"train_samples"`
	TestSamples  int                    `json:"test_samples"`
	TestLoss     float64                `json:"test_loss"`
	TestAccuracy float64                `json:"test_accuracy"`
	Epochs       []neural.EpochProgress `json:"epochs,omitempty"`
	Duration     time.Duration          `json:"duration"`
	Error        string                 `json:"error,omitempty"`
	FinishedAt   time.Time              `json:"finished_at"`
}

// Status is the trainer state exposed over the API.
type Status struct {
	Running          bool      `json:"running"`
	LastTrainingTime time.Time `json:"last_training_time"`
	ModelVersion     int64     `json:"model_version"`
	LastResult       *Result   `json:"last_result,omitempty"`
}

// Trainer decides when the neural predictor is retrained and runs the retrain.
type Trainer struct {
	cfg       Config
	predictor *neural.Predictor
	preds     repository.PredictionStore
	metrics   repository.Metrics
	log       *applogger.Logger

	running atomic.Bool

	mu           sync.RWMutex
	lastTraining time.Time
	lastResult   *Result
}

// NewTrainer starts counting from the active model's training time, so a restart does not
// retrain on outcomes the loaded model has already seen.
func NewTrainer(cfg Config, predictor *neural.Predictor, preds repository.PredictionStore, metrics repository.Metrics, log *applogger.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if predictor == nil || preds == nil {
		return nil, fmt.Errorf("training: predictor and prediction store are required")
	}
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	t := &Trainer{
		cfg:       cfg,
		predictor: predictor,
		preds:     preds,
		metrics:   metrics,
		log:       applogger.OrNop(log).With(applogger.String("component", "trainer")),
	}
	if n := predictor.Current(); n != nil {
		t.lastTraining = n.TrainedAt
	}
	return t, nil
}

func (t *Trainer) LastTrainingTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTraining
}

func (t *Trainer) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := Status{
		Running:          t.running.Load(),
		LastTrainingTime: t.lastTraining,
		ModelVersion:     t.predictor.Version(),
	}
	if t.lastResult != nil {
		r := *t.lastResult
		st.LastResult = &r
	}
	return st
}

// NewSinceTraining counts predictions validated after the last training inside the lookback.
func (t *Trainer) NewSinceTraining(ctx context.Context, now time.Time) (int, error) {
	return t.preds.CountValidated(ctx, t.LastTrainingTime(), now.Add(-t.cfg.Lookback))
}

// ShouldRetrain first adopts any newer model in the store, so outcomes another replica has
// already trained on are not counted again.
func (t *Trainer) ShouldRetrain(ctx context.Context, now time.Time) (bool, error) {
	t.Sync(ctx)
	n, err := t.NewSinceTraining(ctx, now)
	if err != nil {
		return false, fmt.Errorf("count validated: %w", err)
	}
	return n >= t.cfg.Threshold, nil
}

// Retrain trains a candidate on recent validated outcomes and promotes it. A concurrent call
// returns StatusBusy with models.ErrTrainingBusy. On any failure the active model is left as
// it was and the last training time does not move.
func (t *Trainer) Retrain(ctx context.Context, now time.Time) (Result, error) {
	if !t.running.CompareAndSwap(false, true) {
		return Result{Status: StatusBusy, FinishedAt: now}, models.ErrTrainingBusy
	}
	defer t.running.Store(false)
	t.Sync(ctx)

	start := time.Now()
	res, err := t.retrain(ctx)
	res.Duration = time.Since(start)
	res.FinishedAt = now

	switch {
	case err == nil:
		res.Status = StatusTrained
		t.metrics.RecordTraining(StatusTrained, res.Duration.Seconds())
		t.metrics.SetModelVersion(res.Version)
		t.log.Info("model retrained",
			applogger.Int64("version", res.Version),
			applogger.Int("samples", res.Samples),
			applogger.Float64("test_accuracy", res.TestAccuracy),
			applogger.Duration("duration_ms", res.Duration))
	case errors.Is(err, models.ErrTrainingBusy):
		res.Status = StatusBusy
	case errors.Is(err, models.ErrInsufficientTrainingData):
		res.Status = StatusInsufficient
		res.Error = err.Error()
		t.metrics.RecordTraining(StatusInsufficient, res.Duration.Seconds())
		t.log.Info("retrain skipped", applogger.Int("samples", res.Samples), applogger.Int("min_samples", t.cfg.MinSamples))
	default:
		res.Status = StatusFailed
		res.Error = err.Error()
		t.metrics.RecordTraining(StatusFailed, res.Duration.Seconds())
		t.metrics.RecordError("training")
		t.log.Warn("retrain failed", applogger.Int64("active_version", t.predictor.Version()), applogger.Error(err))
	}

	t.mu.Lock()
	if err == nil {
		t.lastTraining = now
	}
	r := res
	t.lastResult = &r
	t.mu.Unlock()
	return res, err
}

// Sync installs a model promoted by another replica and moves the last training time up to
// its training time. A store error leaves the local model in place.
func (t *Trainer) Sync(ctx context.Context) {
	changed, err := t.predictor.Sync(ctx)
	if err != nil {
		t.log.Warn("model sync failed", applogger.Int64("active_version", t.predictor.Version()), applogger.Error(err))
		return
	}
	if !changed {
		return
	}
	n := t.predictor.Current()
	t.mu.Lock()
	if n.TrainedAt.After(t.lastTraining) {
		t.lastTraining = n.TrainedAt
	}
	t.mu.Unlock()
	t.metrics.SetModelVersion(n.Version)
}

func (t *Trainer) retrain(ctx context.Context) (Result, error) {
	var res Result
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	preds, err := t.preds.ListPredictions(ctx, models.PredictionFilter{
		Validated: models.BoolPtr(true),
		Limit:     t.cfg.MaxSamples,
	})
	if err != nil {
		return res, fmt.Errorf("load training data: %w", err)
	}
	samples := neural.PrepareSamples(preds)
	res.Samples = len(samples)
	if len(samples) < t.cfg.MinSamples {
		return res, fmt.Errorf("have %d samples, need %d: %w", len(samples), t.cfg.MinSamples, models.ErrInsufficientTrainingData)
	}

	train, test := neural.Split(samples, t.cfg.TrainRatio, t.cfg.Seed)
	res.TrainSamples, res.TestSamples = len(train), len(test)

	run, err := t.predictor.TrainCandidate(ctx, train, test)
	if err != nil {
		return res, err
	}
	for ep := range run.Progress() {
		res.Epochs = append(res.Epochs, ep)
		t.log.Debug("epoch",
			applogger.Int("epoch", ep.Epoch),
			applogger.Float64("loss", ep.Loss),
			applogger.Float64("val_accuracy", ep.ValAccuracy))
	}
	if _, err := run.Wait(ctx); err != nil {
		return res, fmt.Errorf("train: %w", err)
	}
	ev := neural.EvaluateNetwork(run.Candidate(), test)
	res.TestLoss, res.TestAccuracy = ev.Loss, ev.Accuracy

	version, err := t.predictor.Promote(ctx, run)
	if err != nil {
		return res, fmt.Errorf("promote: %w", err)
	}
	res.Version = version
	return res, nil
}
