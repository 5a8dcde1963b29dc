package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	drepo "CandleSense/internal/domain/repository"
	applogger "CandleSense/pkg/logger"
)

const retentionLockKey = "candlesense:lock:retention"

// RetentionReport counts what one pass deleted. Pattern scores are never touched.
type RetentionReport struct {
	Cutoff      time.Time `json:"cutoff"`
	Candles     int64     `json:"candles"`
	Predictions int64     `json:"predictions"`
	Skipped     bool      `json:"skipped,omitempty"`
}

// Retention deletes candles and predictions older than MaxAge.
type Retention struct {
	cfg     RetentionConfig
	candles drepo.CandleStore
	preds   drepo.PredictionStore
	locker  drepo.Locker
	metrics drepo.Metrics
	log     *applogger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRetention(cfg RetentionConfig, candles drepo.CandleStore, preds drepo.PredictionStore, locker drepo.Locker, metrics drepo.Metrics, log *applogger.Logger) (*Retention, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &Retention{
		cfg:     cfg,
		candles: candles,
		preds:   preds,
		locker:  locker,
		metrics: metrics,
		log:     applogger.OrNop(log).With(applogger.String("component", "retention")),
	}, nil
}

// Run deletes everything older than now-MaxAge. Another replica holding the lock makes it a no-op.
func (r *Retention) Run(ctx context.Context, now time.Time) (RetentionReport, error) {
	rep := RetentionReport{Cutoff: now.Add(-r.cfg.MaxAge)}
	if r.locker != nil {
		ok, err := r.locker.TryLock(ctx, retentionLockKey, time.Hour)
		if err != nil {
			return rep, fmt.Errorf("retention lock: %w", err)
		}
		if !ok {
			rep.Skipped = true
			return rep, nil
		}
		defer func() {
			if err := r.locker.Unlock(context.Background(), retentionLockKey); err != nil {
				r.log.Warn("retention unlock failed", applogger.Error(err))
			}
		}()
	}

	start := time.Now()
	n, err := r.candles.DeleteCandlesBefore(ctx, rep.Cutoff)
	if err != nil {
		r.metrics.RecordError("retention_candles")
		return rep, fmt.Errorf("delete candles: %w", err)
	}
	rep.Candles = n
	n, err = r.preds.DeletePredictionsBefore(ctx, rep.Cutoff)
	if err != nil {
		r.metrics.RecordError("retention_predictions")
		return rep, fmt.Errorf("delete predictions: %w", err)
	}
	rep.Predictions = n
	r.metrics.RecordLatency("retention", time.Since(start).Seconds())
	r.log.Info("retention pass",
		applogger.Time("cutoff", rep.Cutoff),
		applogger.Int64("candles", rep.Candles),
		applogger.Int64("predictions", rep.Predictions))
	return rep, nil
}

// Start runs a pass now and then every Interval. Disabled retention does nothing.
func (r *Retention) Start(ctx context.Context) {
	if !r.cfg.Enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		runEvery(ctx, r.cfg.Interval, func(ctx context.Context) {
			if _, err := r.Run(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
				r.log.Warn("retention pass failed", applogger.Error(err))
			}
		})
	}()
}

func (r *Retention) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		r.wg.Wait()
	}
}
