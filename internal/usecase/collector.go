package usecase

import (
	"context"
	"errors"
	"sync"

	"CandleSense/internal/domain/models"
	drepo "CandleSense/internal/domain/repository"
	mid "CandleSense/internal/middleware"
	applogger "CandleSense/pkg/logger"
)

// CandleCollector reads the upstream feed and hands candles to the realtime pipeline.
type CandleCollector struct {
	stream  drepo.CandleStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	log     *applogger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCandleCollector(stream drepo.CandleStream, pipe *mid.RealtimePipeline, metrics drepo.Metrics, log *applogger.Logger) *CandleCollector {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &CandleCollector{stream: stream, pipe: pipe, metrics: metrics, log: applogger.OrNop(log).With(applogger.String("component", "collector"))}
}

// IsConnected returns true if the feed is connected.
func (c *CandleCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *CandleCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.pipe.Start(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx)
	}()
	return nil
}

// consume reads until ctx ends, reconnecting whenever the stream fails.
func (c *CandleCollector) consume(ctx context.Context) {
	for ctx.Err() == nil {
		candles, errs := c.stream.Read(ctx)
		c.drain(ctx, candles, errs)
		if ctx.Err() != nil {
			return
		}
		for ctx.Err() == nil {
			if err := c.stream.Reconnect(ctx); err != nil {
				c.metrics.RecordError("feed_reconnect")
				c.log.Warn("feed reconnect failed", applogger.Error(err))
				continue
			}
			c.log.Info("feed reconnected")
			break
		}
	}
}

func (c *CandleCollector) drain(ctx context.Context, candles <-chan models.Candle, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				c.metrics.RecordError("stream")
				c.log.Warn("feed read failed", applogger.Error(err))
			}
			return
		case cd, ok := <-candles:
			if !ok {
				return
			}
			if err := c.pipe.Process(ctx, cd); err != nil && !errors.Is(err, mid.ErrBufferFull) {
				c.log.Debug("candle rejected", applogger.String("symbol", cd.Symbol), applogger.Error(err))
			}
		}
	}
}

// Shutdown stops reading, flushes the pipeline and closes the stream.
func (c *CandleCollector) Shutdown(context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	c.wg.Wait()
	c.pipe.Stop()
	return err
}
