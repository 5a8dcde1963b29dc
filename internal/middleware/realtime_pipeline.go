package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
	"CandleSense/internal/service/ratelimit"
	applogger "CandleSense/pkg/logger"
)

// CandleSink is where flushed batches go.
type CandleSink interface {
	UpsertCandles(ctx context.Context, candles []models.Candle) error
}

// Config tunes buffered ingestion from push sources.
type Config struct {
	BufferSize    int           `yaml:"buffer_size" default:"4096" validate:"gte=1"`
	BatchSize     int           `yaml:"batch_size" default:"200" validate:"gte=1"`
	FlushInterval time.Duration `yaml:"flush_interval" default:"1s"`
	MaxRetries    int           `yaml:"max_retries" default:"5" validate:"gte=0"`
	// PerSymbolRate caps accepted candles per second for each symbol.
	PerSymbolRate  float64 `yaml:"per_symbol_rate" default:"10" validate:"gt=0"`
	PerSymbolBurst int     `yaml:"per_symbol_burst" default:"50" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{BufferSize: 4096, BatchSize: 200, FlushInterval: time.Second, MaxRetries: 5, PerSymbolRate: 10, PerSymbolBurst: 50}
}

func (c Config) Validate() error {
	if c.BufferSize < 1 || c.BatchSize < 1 || c.FlushInterval <= 0 {
		return fmt.Errorf("pipeline: buffer_size, batch_size and flush_interval must be positive")
	}
	if c.PerSymbolRate <= 0 || c.PerSymbolBurst < 1 {
		return fmt.Errorf("pipeline: per_symbol_rate and per_symbol_burst must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("pipeline: max_retries must not be negative")
	}
	return nil
}

// ErrBufferFull is returned by Process when the buffer cannot take another candle.
var ErrBufferFull = errors.New("pipeline buffer full")

// RealtimePipeline sits between a push source and the store. It validates, throttles per
// symbol and buffers candles, and a single flusher writes them in batches. Process never
// waits on the store.
type RealtimePipeline struct {
	cfg     Config
	sink    CandleSink
	metrics domrepo.Metrics
	log     *applogger.Logger
	limiter *ratelimit.Limiter

	bufCh chan models.Candle

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRealtimePipeline(cfg Config, sink CandleSink, metrics domrepo.Metrics, log *applogger.Logger) (*RealtimePipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &RealtimePipeline{
		cfg:     cfg,
		sink:    sink,
		metrics: metrics,
		log:     applogger.OrNop(log).With(applogger.String("component", "pipeline")),
		limiter: ratelimit.New(cfg.PerSymbolRate, cfg.PerSymbolBurst, 10*time.Minute),
		bufCh:   make(chan models.Candle, cfg.BufferSize),
	}, nil
}

// Start launches the flusher.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.flushLoop(ctx, p.done)
}

// Stop flushes what is buffered and stops the flusher.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	cancel()
	<-done
}

// Depth is the number of buffered candles.
func (p *RealtimePipeline) Depth() int { return len(p.bufCh) }

// Process validates, throttles and enqueues one candle. Throttled candles are dropped
// silently; a full buffer returns ErrBufferFull.
func (p *RealtimePipeline) Process(_ context.Context, c models.Candle) error {
	if err := validateCandle(c); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.limiter.Allow(c.Symbol) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	select {
	case p.bufCh <- c:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return ErrBufferFull
	}
}

func (p *RealtimePipeline) flushLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()
	batch := make([]models.Candle, 0, p.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			p.drain(batch)
			return
		case c := <-p.bufCh:
			batch = append(batch, c)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// drain writes whatever is left after cancellation with a short deadline of its own.
func (p *RealtimePipeline) drain(batch []models.Candle) {
	for {
		select {
		case c := <-p.bufCh:
			batch = append(batch, c)
			continue
		default:
		}
		break
	}
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.flush(ctx, batch)
}

// flush retries with exponential backoff and drops the batch after MaxRetries.
func (p *RealtimePipeline) flush(ctx context.Context, batch []models.Candle) {
	start := time.Now()
	backoff := 50 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := p.sink.UpsertCandles(ctx, batch)
		if err == nil {
			p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
			return
		}
		p.metrics.RecordError("pipeline_flush")
		if attempt >= p.cfg.MaxRetries || ctx.Err() != nil {
			p.metrics.RecordError("pipeline_drop")
			p.log.Error("pipeline dropped batch", applogger.Int("candles", len(batch)), applogger.Int("attempts", attempt+1), applogger.Error(err))
			return
		}
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

func validateCandle(c models.Candle) error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	return c.Validate()
}
