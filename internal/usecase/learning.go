package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	drepo "CandleSense/internal/domain/repository"
	"CandleSense/internal/services/training"
	"CandleSense/internal/services/validation"
	applogger "CandleSense/pkg/logger"
)

const learningLockKey = "candlesense:lock:learning"

// ErrCycleBusy is returned when a learning cycle is already running here or on another replica.
var ErrCycleBusy = errors.New("learning cycle already running")

// CycleReport describes one validator pass and the retrain decision that followed it.
type CycleReport struct {
	At         time.Time          `json:"at"`
	Validation validation.Summary `json:"validation"`
	Retrained  bool               `json:"retrained"`
	Training   *training.Result   `json:"training,omitempty"`
}

// LearningLoop runs the validator on a fixed interval and retrains when enough new outcomes
// arrived. Cycles never overlap.
type LearningLoop struct {
	validator *validation.Validator
	trainer   *training.Trainer
	locker    drepo.Locker
	interval  time.Duration
	lockTTL   time.Duration
	log       *applogger.Logger
	now       func() time.Time

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	last   *CycleReport
}

// NewLearningLoop builds the loop. locker may be nil for a single replica.
func NewLearningLoop(validator *validation.Validator, trainer *training.Trainer, locker drepo.Locker, interval, lockTTL time.Duration, log *applogger.Logger) (*LearningLoop, error) {
	if validator == nil || trainer == nil {
		return nil, fmt.Errorf("learning: validator and trainer are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("learning: interval must be positive")
	}
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	return &LearningLoop{
		validator: validator,
		trainer:   trainer,
		locker:    locker,
		interval:  interval,
		lockTTL:   lockTTL,
		log:       applogger.OrNop(log).With(applogger.String("component", "learning_loop")),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start runs a cycle right away and then every interval until Stop or ctx ends.
func (l *LearningLoop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		runEvery(ctx, l.interval, func(ctx context.Context) {
			if _, err := l.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleBusy) && ctx.Err() == nil {
				l.log.Warn("learning cycle failed", applogger.Error(err))
			}
		})
	}()
	l.log.Info("learning loop started", applogger.Duration("interval_ms", l.interval))
}

// Stop cancels the schedule and waits for a running cycle to return.
func (l *LearningLoop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	l.wg.Wait()
	l.log.Info("learning loop stopped")
}

// RunCycle validates matured predictions, then retrains if the trainer asks for it.
func (l *LearningLoop) RunCycle(ctx context.Context) (CycleReport, error) {
	rep := CycleReport{At: l.now()}
	release, err := l.acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrCycleBusy) {
			// the cycle runs elsewhere; serve whatever model it promoted
			l.trainer.Sync(ctx)
		}
		return rep, err
	}
	defer release()

	sum, err := l.validator.RunOnce(ctx, rep.At)
	rep.Validation = sum
	if err != nil {
		return rep, fmt.Errorf("validate: %w", err)
	}

	should, err := l.trainer.ShouldRetrain(ctx, rep.At)
	if err != nil {
		return rep, fmt.Errorf("retrain check: %w", err)
	}
	if should {
		res, err := l.trainer.Retrain(ctx, rep.At)
		rep.Training = &res
		rep.Retrained = err == nil
		if err != nil {
			// the next cycle retries
			l.log.Warn("retrain did not complete", applogger.String("status", res.Status), applogger.Error(err))
		}
	}
	l.remember(rep)
	return rep, nil
}

// Validate runs only the validator pass, under the same guard as a full cycle.
func (l *LearningLoop) Validate(ctx context.Context) (validation.Summary, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return validation.Summary{}, err
	}
	defer release()
	return l.validator.RunOnce(ctx, l.now())
}

// LastCycle returns the report of the last completed cycle, if any.
func (l *LearningLoop) LastCycle() *CycleReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return nil
	}
	cp := *l.last
	return &cp
}

func (l *LearningLoop) remember(rep CycleReport) {
	l.mu.Lock()
	l.last = &rep
	l.mu.Unlock()
}

// acquire takes the local guard and, when configured, the cross-replica lock.
func (l *LearningLoop) acquire(ctx context.Context) (func(), error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, ErrCycleBusy
	}
	if l.locker == nil {
		return func() { l.running.Store(false) }, nil
	}
	ok, err := l.locker.TryLock(ctx, learningLockKey, l.lockTTL)
	if err != nil {
		l.running.Store(false)
		return nil, fmt.Errorf("learning lock: %w", err)
	}
	if !ok {
		l.running.Store(false)
		return nil, ErrCycleBusy
	}
	return func() {
		if err := l.locker.Unlock(context.Background(), learningLockKey); err != nil {
			l.log.Warn("learning unlock failed", applogger.Error(err))
		}
		l.running.Store(false)
	}, nil
}

// runEvery calls fn now and then on every tick until ctx ends.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
