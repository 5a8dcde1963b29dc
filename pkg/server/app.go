package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"CandleSense/internal/usecase"
	"CandleSense/pkg/config"
	xhttp "CandleSense/pkg/http"
	pkgkafka "CandleSense/pkg/kafka"
	applogger "CandleSense/pkg/logger"
	"CandleSense/pkg/queue"
)

// App encapsulates the entire application lifecycle. Optional parts are nil when their
// feature is switched off.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	loop       *usecase.LearningLoop
	retention  *usecase.Retention
	collector  *usecase.CandleCollector
	consumer   *pkgkafka.Consumer
	kh         *usecase.KafkaCandleHandler
	jobs       *queue.RedisQueue

	cancel context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	loop *usecase.LearningLoop,
	retention *usecase.Retention,
	collector *usecase.CandleCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaCandleHandler,
	jobs *queue.RedisQueue,
) *App {
	return &App{
		cfg:        cfg,
		log:        applogger.OrNop(log).With(applogger.String("component", "app")),
		httpServer: httpServer,
		loop:       loop,
		retention:  retention,
		collector:  collector,
		consumer:   consumer,
		kh:         kh,
		jobs:       jobs,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))

	return a.Shutdown(context.Background())
}

// Start launches the background jobs, the ingestion paths and finally the HTTP server.
func (a *App) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	if a.jobs != nil {
		if err := a.jobs.Start(ctx); err != nil {
			return fmt.Errorf("job queue: %w", err)
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// a slow or failing feed must not hold up the API
	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.log.Error("collector error", applogger.Error(err))
				return
			}
			a.log.Info("collector started", applogger.Strings("symbols", a.cfg.Feed.Symbols))
		}()
	}

	a.loop.Start(ctx)
	a.retention.Start(ctx)

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.log.Info("candlesense started",
		applogger.String("backend", a.cfg.Storage.Backend),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
		applogger.Bool("redis", a.cfg.Redis.Enabled),
		applogger.Bool("feed", a.cfg.Feed.Enabled))
	return nil
}

// Shutdown stops intake first, then the background jobs. Clients are closed by the DI cleanup.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.jobs != nil {
		if err := a.jobs.Stop(shutdownCtx); err != nil {
			a.log.Warn("job queue stop error", applogger.Error(err))
		}
	}

	a.loop.Stop()
	a.retention.Stop()

	a.log.Info("shutdown complete")
	return nil
}
