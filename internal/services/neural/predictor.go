package neural

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/domain/repository"
	applogger "CandleSense/pkg/logger"
)

// ErrStaleCandidate means the active model changed while a candidate was training.
var ErrStaleCandidate = errors.New("active model changed during training")

// Output is one inference result.
type Output struct {
	Probabilities []float64        `json:"probabilities"`
	Class         Class            `json:"class"`
	Direction     models.Direction `json:"direction"`
	Confidence    float64          `json:"confidence"`
	Version       int64            `json:"version"`
}

func (o Output) Up() float64   { return o.Probabilities[ClassUp] }
func (o Output) Down() float64 { return o.Probabilities[ClassDown] }

// Predictor owns the active network. Readers load it through an atomic pointer and training
// always runs on a clone that replaces the pointer when finished, so Predict never sees a
// half-updated model. At most one training run is in flight.
type Predictor struct {
	cfg     Config
	current atomic.Pointer[Network]
	busy    atomic.Bool
	runs    atomic.Int64
	store   repository.ModelStore
	log     *applogger.Logger
	now     func() time.Time
}

func NewPredictor(cfg Config, store repository.ModelStore, log *applogger.Logger) (*Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Predictor{cfg: cfg, store: store, log: applogger.OrNop(log), now: time.Now}, nil
}

func (p *Predictor) Config() Config { return p.cfg }

// Build installs a freshly initialised, untrained network at version 0.
func (p *Predictor) Build() *Network {
	n, err := NewNetwork(p.cfg, rand.New(rand.NewSource(p.cfg.Seed)))
	if err != nil {
		// config was validated in NewPredictor
		panic(err)
	}
	p.current.Store(n)
	return n
}

// Current returns the active network, or nil before Build/Load.
func (p *Predictor) Current() *Network { return p.current.Load() }

func (p *Predictor) Ready() bool { return p.current.Load() != nil }

// Version of the active network; -1 before Build/Load.
func (p *Predictor) Version() int64 {
	if n := p.current.Load(); n != nil {
		return n.Version
	}
	return -1
}

// Busy reports whether a training run is in flight.
func (p *Predictor) Busy() bool { return p.busy.Load() }

// Predict runs the active network on a flattened feature vector. It is safe to call
// concurrently with itself and with training.
func (p *Predictor) Predict(x []float64) (Output, error) {
	n := p.current.Load()
	if n == nil {
		return Output{}, models.ErrModelNotReady
	}
	probs, err := n.Probabilities(x)
	if err != nil {
		return Output{}, err
	}
	c := Class(argmax(probs))
	return Output{
		Probabilities: probs,
		Class:         c,
		Direction:     c.Direction(),
		Confidence:    probs[c],
		Version:       n.Version,
	}, nil
}

// Evaluate scores the active network on samples.
func (p *Predictor) Evaluate(samples []Sample) (Evaluation, error) {
	n := p.current.Load()
	if n == nil {
		return Evaluation{}, models.ErrModelNotReady
	}
	return EvaluateNetwork(n, samples), nil
}

// Train starts a run that replaces the active model with version+1 when it completes.
// Nothing is persisted; call Save afterwards.
func (p *Predictor) Train(ctx context.Context, train, val []Sample) (*TrainingRun, error) {
	return p.start(ctx, train, val, true)
}

// TrainCandidate starts a run whose result is only activated by Promote.
func (p *Predictor) TrainCandidate(ctx context.Context, train, val []Sample) (*TrainingRun, error) {
	return p.start(ctx, train, val, false)
}

func (p *Predictor) start(ctx context.Context, train, val []Sample, swap bool) (*TrainingRun, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, models.ErrTrainingBusy
	}
	if len(train) == 0 {
		p.busy.Store(false)
		return nil, fmt.Errorf("train: empty training set: %w", models.ErrInsufficientTrainingData)
	}
	for _, s := range append(append([]Sample(nil), train...), val...) {
		if len(s.Input) != p.cfg.InputSize || len(s.Target) != int(NumClasses) {
			p.busy.Store(false)
			return nil, fmt.Errorf("train: sample width %d, want %d", len(s.Input), p.cfg.InputSize)
		}
	}

	base := p.current.Load()
	if base == nil {
		base = p.Build()
	}
	if len(val) == 0 && p.cfg.ValidationSplit > 0 && len(train) > 1 {
		train, val = Split(train, 1-p.cfg.ValidationSplit, p.cfg.Seed)
		if len(train) == 0 {
			train, val = val, nil
		}
	}

	run := newTrainingRun(base, p.cfg.Epochs)
	seed := p.cfg.Seed + p.runs.Add(1)

	go func() {
		// busy clears before done closes so a caller returning from Wait can start again
		finish := func(cand *Network, res TrainingResult, err error) {
			p.busy.Store(false)
			run.finish(cand, res, err)
		}

		cand := base.Clone()
		res, err := fit(ctx, cand, p.cfg, train, val, rand.New(rand.NewSource(seed)), run.progress)
		if err != nil {
			p.log.Warn("training run aborted", applogger.Int64("base_version", base.Version), applogger.Error(err))
			finish(nil, res, err)
			return
		}
		cand.Version = base.Version + 1
		if stored := p.storedVersion(ctx); stored >= cand.Version {
			cand.Version = stored + 1
		}
		cand.TrainedAt = p.now()
		cand.Accuracy = res.ValAccuracy
		if len(val) == 0 {
			cand.Accuracy = res.Accuracy
		}
		res.Version = cand.Version

		if swap && !p.current.CompareAndSwap(base, cand) {
			finish(nil, res, ErrStaleCandidate)
			return
		}
		finish(cand, res, nil)
	}()
	return run, nil
}

// Promote persists a finished candidate and then activates it. If persistence fails the
// previous model stays active.
func (p *Predictor) Promote(ctx context.Context, run *TrainingRun) (int64, error) {
	if _, err := run.Wait(ctx); err != nil {
		return 0, err
	}
	cand := run.Candidate()
	if cand == nil {
		return 0, fmt.Errorf("promote: run produced no candidate")
	}
	if p.current.Load() != run.base {
		return 0, ErrStaleCandidate
	}
	// another replica may have saved since the run started
	if stored := p.storedVersion(ctx); stored >= cand.Version {
		cand.Version = stored + 1
	}
	if err := p.save(ctx, cand); err != nil {
		return 0, err
	}
	if !p.current.CompareAndSwap(run.base, cand) {
		return 0, ErrStaleCandidate
	}
	return cand.Version, nil
}

// Save persists the active model.
func (p *Predictor) Save(ctx context.Context) error {
	n := p.current.Load()
	if n == nil {
		return models.ErrModelNotReady
	}
	return p.save(ctx, n)
}

func (p *Predictor) save(ctx context.Context, n *Network) error {
	if p.store == nil {
		return fmt.Errorf("save model: no model store: %w", models.ErrPersistenceFailure)
	}
	payload, err := Encode(n)
	if err != nil {
		return fmt.Errorf("save model: %v: %w", err, models.ErrPersistenceFailure)
	}
	snap := repository.ModelSnapshot{Version: n.Version, TrainedAt: n.TrainedAt, Accuracy: n.Accuracy, Payload: payload}
	if err := p.store.SaveModel(ctx, snap); err != nil {
		return fmt.Errorf("save model v%d: %v: %w", n.Version, err, models.ErrPersistenceFailure)
	}
	return nil
}

// storedVersion is the version of the persisted snapshot, or -1 when there is none or the
// store cannot be read.
func (p *Predictor) storedVersion(ctx context.Context) int64 {
	if p.store == nil {
		return -1
	}
	snap, err := p.store.LoadModel(ctx)
	if err != nil {
		return -1
	}
	return snap.Version
}

// Sync installs the persisted model when it is newer than the active one, which is how a
// replica picks up a model promoted elsewhere. It reports whether the active model changed.
func (p *Predictor) Sync(ctx context.Context) (bool, error) {
	if p.store == nil {
		return false, nil
	}
	snap, err := p.store.LoadModel(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sync model: %w", err)
	}
	cur := p.current.Load()
	if cur != nil && snap.Version <= cur.Version {
		return false, nil
	}
	n, err := Decode(snap.Payload)
	if err == nil && n.InputSize() != p.cfg.InputSize {
		err = fmt.Errorf("input width %d, configured %d", n.InputSize(), p.cfg.InputSize)
	}
	if err != nil {
		return false, fmt.Errorf("sync model v%d: %w", snap.Version, err)
	}
	n.Version = snap.Version
	n.TrainedAt = snap.TrainedAt
	n.Accuracy = snap.Accuracy
	if !p.current.CompareAndSwap(cur, n) {
		return false, nil
	}
	p.log.Info("model synced from store", applogger.Int64("version", n.Version), applogger.Int64("previous", versionOf(cur)))
	return true, nil
}

func versionOf(n *Network) int64 {
	if n == nil {
		return -1
	}
	return n.Version
}

// Load restores the persisted model. Any failure falls back to a fresh network; the
// return value reports whether a persisted model was used.
func (p *Predictor) Load(ctx context.Context) bool {
	if p.store == nil {
		p.Build()
		return false
	}
	snap, err := p.store.LoadModel(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			p.log.Warn("model load failed, building fresh model", applogger.Error(err))
		}
		p.Build()
		return false
	}
	n, err := Decode(snap.Payload)
	if err == nil && n.InputSize() != p.cfg.InputSize {
		err = fmt.Errorf("input width %d, configured %d", n.InputSize(), p.cfg.InputSize)
	}
	if err != nil {
		p.log.Warn("persisted model unusable, building fresh model",
			applogger.Int64("version", snap.Version), applogger.Error(err))
		p.Build()
		return false
	}
	n.Version = snap.Version
	p.current.Store(n)
	p.log.Info("model loaded", applogger.Int64("version", n.Version), applogger.Float64("accuracy", n.Accuracy))
	return true
}
