package di

import (
	"context"
	"fmt"
	"time"

	drepo "CandleSense/internal/domain/repository"
	"CandleSense/internal/domain/service"
	"CandleSense/internal/handler/api"
	mid "CandleSense/internal/middleware"
	internalrepo "CandleSense/internal/repository"
	"CandleSense/internal/service/feed"
	apimetrics "CandleSense/internal/service/metrics"
	"CandleSense/internal/services/analytics"
	"CandleSense/internal/services/ensemble"
	"CandleSense/internal/services/features"
	"CandleSense/internal/services/neural"
	"CandleSense/internal/services/patterns"
	"CandleSense/internal/services/risk"
	"CandleSense/internal/services/similarity"
	"CandleSense/internal/services/training"
	"CandleSense/internal/services/validation"
	"CandleSense/internal/usecase"
	"CandleSense/pkg/cache"
	pkgch "CandleSense/pkg/clickhouse"
	"CandleSense/pkg/config"
	xhttp "CandleSense/pkg/http"
	pkgkafka "CandleSense/pkg/kafka"
	applogger "CandleSense/pkg/logger"
	"CandleSense/pkg/metrics"
	"CandleSense/pkg/queue"
	"CandleSense/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off. The producer is
// closed by its cleanup, after everything that publishes through it.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(cfg.Kafka.Producer,
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the process logger. With the collector enabled, error lines are
// aggregated and shipped to the logs topic; every child logger shares that collector.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	lc := cfg.Logging.Config
	l, err := applogger.New(&lc)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(applogger.String("env", cfg.Environment))
	if !cfg.Logging.Collector.Enabled || producer == nil {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Logging.Collector.Interval,
		CountThreshold: cfg.Logging.Collector.CountThreshold,
		Topic:          cfg.Kafka.LogsTopic,
		Publisher:      producer,
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) drepo.Metrics {
	if !cfg.Metrics.Enabled {
		return drepo.NopMetrics{}
	}
	apimetrics.Register(nil)
	return metrics.New()
}

// ProvideClickHouseClient connects and applies the schema, or returns nil on the memory backend.
func ProvideClickHouseClient(cfg *config.Config, log *applogger.Logger) (*pkgch.Client, func(), error) {
	if cfg.Storage.Backend != config.BackendClickHouse {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(cfg.ClickHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	log.Info("clickhouse ready",
		applogger.String("host", cfg.ClickHouse.Host),
		applogger.String("database", cfg.ClickHouse.Database))
	return client, func() { _ = client.Close() }, nil
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(cfg.Redis.RedisConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideLocker shares job locks through Redis when available. The in-process fallback only
// serialises jobs inside one replica.
func ProvideLocker(rc *cache.RedisCache) (drepo.Locker, func()) {
	if rc != nil {
		return rc, func() {}
	}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute))
	return mc, func() { _ = mc.Close() }
}

func ProvideCandleStore(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) drepo.CandleStore {
	if ch != nil {
		return internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database, log)
	}
	return internalrepo.NewMemoryCandleStore(cfg.Storage.MemoryMaxCandles)
}

func ProvidePredictionStore(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) drepo.PredictionStore {
	if ch != nil {
		return internalrepo.NewCHPredictionStore(ch, cfg.ClickHouse.Database, log)
	}
	return internalrepo.NewMemoryPredictionStore()
}

// ProvidePatternScoreStore puts a Redis read-through cache in front of the store when Redis is on.
func ProvidePatternScoreStore(cfg *config.Config, ch *pkgch.Client, rc *cache.RedisCache, log *applogger.Logger) drepo.PatternScoreStore {
	var store drepo.PatternScoreStore
	if ch != nil {
		store = internalrepo.NewCHPatternScoreStore(ch, cfg.ClickHouse.Database, log)
	} else {
		store = internalrepo.NewMemoryPatternScoreStore()
	}
	if rc != nil {
		return internalrepo.NewCachedPatternScoreStore(store, rc, cfg.Redis.PatternScoreTTL, log)
	}
	return store
}

func ProvideModelStore(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) drepo.ModelStore {
	if cfg.Storage.ModelStore == config.BackendClickHouse && ch != nil {
		return internalrepo.NewCHModelStore(ch, cfg.ClickHouse.Database, log)
	}
	return internalrepo.NewFileModelStore(cfg.Storage.ModelPath)
}

// ProvidePublisher fans predictions out to Kafka, or drops them when Kafka is off.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer) drepo.PredictionPublisher {
	if producer == nil {
		return drepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPredictionPublisher(producer, cfg.Kafka.PredictionsTopic, cfg.Kafka.OutcomesTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer for the candles topic, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvidePredictor restores the persisted model or starts from a fresh network.
func ProvidePredictor(cfg *config.Config, store drepo.ModelStore, log *applogger.Logger) (*neural.Predictor, error) {
	p, err := neural.NewPredictor(cfg.Engine.Model, store, log)
	if err != nil {
		return nil, fmt.Errorf("neural predictor: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.Load(ctx)
	return p, nil
}

func ProvideComponents(cfg *config.Config, predictor *neural.Predictor) (usecase.Components, error) {
	var comp usecase.Components
	var err error
	if comp.Extractor, err = features.NewExtractor(cfg.Engine.Features); err != nil {
		return comp, err
	}
	if comp.Detector, err = patterns.NewDetector(cfg.Engine.Patterns); err != nil {
		return comp, err
	}
	if comp.Matcher, err = similarity.NewMatcher(cfg.Engine.Similarity); err != nil {
		return comp, err
	}
	if comp.Combiner, err = ensemble.NewCombiner(cfg.Engine.Ensemble); err != nil {
		return comp, err
	}
	if comp.Gate, err = risk.NewGate(cfg.Engine.Risk); err != nil {
		return comp, err
	}
	comp.Predictor = predictor
	return comp, nil
}

func ProvideValidator(
	cfg *config.Config,
	candles drepo.CandleStore,
	preds drepo.PredictionStore,
	scores drepo.PatternScoreStore,
	publisher drepo.PredictionPublisher,
	m drepo.Metrics,
	log *applogger.Logger,
) (*validation.Validator, error) {
	return validation.NewValidator(cfg.Engine.Validation, candles, preds, scores, publisher, m, log)
}

func ProvideTrainer(cfg *config.Config, predictor *neural.Predictor, preds drepo.PredictionStore, m drepo.Metrics, log *applogger.Logger) (*training.Trainer, error) {
	return training.NewTrainer(cfg.Engine.Training, predictor, preds, m, log)
}

func ProvideEnricher(cfg *config.Config, log *applogger.Logger) (service.Enricher, error) {
	c, err := analytics.NewEnrichmentClient(cfg.Enrichment, log)
	if err != nil {
		return nil, fmt.Errorf("enrichment client: %w", err)
	}
	return c, nil
}

func ProvideManipulationDetector(cfg *config.Config, preds drepo.PredictionStore) (service.ManipulationDetector, error) {
	return analytics.NewManipulationDetector(cfg.Engine.Manipulation, preds)
}

func ProvidePredictionEngine(
	cfg *config.Config,
	comp usecase.Components,
	candles drepo.CandleStore,
	preds drepo.PredictionStore,
	enricher service.Enricher,
	manip service.ManipulationDetector,
	publisher drepo.PredictionPublisher,
	m drepo.Metrics,
	log *applogger.Logger,
) (*usecase.PredictionEngine, error) {
	return usecase.NewPredictionEngine(cfg.Engine.Prediction, comp, candles, preds, enricher, manip, publisher, m, log)
}

func ProvideLearningLoop(cfg *config.Config, v *validation.Validator, t *training.Trainer, locker drepo.Locker, log *applogger.Logger) (*usecase.LearningLoop, error) {
	return usecase.NewLearningLoop(v, t, locker, cfg.Engine.Validation.Interval, cfg.LearningLockTTL(), log)
}

func ProvideRetention(
	cfg *config.Config,
	candles drepo.CandleStore,
	preds drepo.PredictionStore,
	locker drepo.Locker,
	m drepo.Metrics,
	log *applogger.Logger,
) (*usecase.Retention, error) {
	return usecase.NewRetention(cfg.Engine.Retention, candles, preds, locker, m, log)
}

func ProvideCandleIngestor(candles drepo.CandleStore, m drepo.Metrics, log *applogger.Logger) *usecase.CandleIngestor {
	return usecase.NewCandleIngestor(candles, m, log)
}

// ProvideKafkaCandleHandler returns nil unless a consumer will read the candles topic.
func ProvideKafkaCandleHandler(cfg *config.Config, consumer *pkgkafka.Consumer, ingestor *usecase.CandleIngestor, m drepo.Metrics) *usecase.KafkaCandleHandler {
	if consumer == nil {
		return nil
	}
	return usecase.NewKafkaCandleHandler(cfg.Kafka.CandlesTopic, ingestor, m)
}

// ProvideCandleCollector builds the feed -> pipeline path, or nil when the feed is off.
// With a candles consumer running, batches go through the candles topic so every replica's
// consumer group shares the writes; otherwise they are stored directly.
func ProvideCandleCollector(
	cfg *config.Config,
	ingestor *usecase.CandleIngestor,
	consumer *pkgkafka.Consumer,
	publisher drepo.PredictionPublisher,
	m drepo.Metrics,
	log *applogger.Logger,
) (*usecase.CandleCollector, error) {
	if !cfg.Feed.Enabled {
		return nil, nil
	}
	var sink mid.CandleSink = ingestor
	if kp, ok := publisher.(*internalrepo.KafkaPredictionPublisher); ok && consumer != nil {
		sink = kp.CandleSink(cfg.Kafka.CandlesTopic)
	}
	pipe, err := mid.NewRealtimePipeline(cfg.Pipeline, sink, m, log)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return usecase.NewCandleCollector(feed.New(cfg.Feed, log), pipe, m, log), nil
}

func ProvideReporter(candles drepo.CandleStore, preds drepo.PredictionStore, predictor *neural.Predictor, trainer *training.Trainer) *usecase.Reporter {
	return usecase.NewReporter(candles, preds, predictor, trainer)
}

// ProvideJobQueue returns the Redis job queue with the retrain job registered, or nil
// without Redis.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, trainer *training.Trainer, log *applogger.Logger) (*queue.RedisQueue, error) {
	if rc == nil {
		return nil, nil
	}
	q, err := queue.NewRedisQueue(cfg.Jobs, rc.Client(), log)
	if err != nil {
		return nil, fmt.Errorf("job queue: %w", err)
	}
	q.Register(usecase.NewRetrainJob(trainer, log))
	return q, nil
}

func ProvideHandler(
	cfg *config.Config,
	engine *usecase.PredictionEngine,
	ingestor *usecase.CandleIngestor,
	loop *usecase.LearningLoop,
	trainer *training.Trainer,
	reporter *usecase.Reporter,
	q *queue.RedisQueue,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	log *applogger.Logger,
) *api.Handler {
	var jobs queue.Enqueuer
	if q != nil {
		jobs = q
	}
	h := api.NewHandler(api.Config{
		WSRatePerSecond: cfg.Server.WSRatePerSecond,
		WSBurst:         cfg.Server.WSBurst,
	}, engine, ingestor, loop, trainer, reporter, jobs, log)
	if ch != nil {
		h.AddHealthCheck("clickhouse", ch.Health)
	}
	if rc != nil {
		h.AddHealthCheck("redis", rc.Health)
	}
	return h
}

func ProvideHTTPServer(cfg *config.Config, h *api.Handler, log *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(log),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	srv *xhttp.Server,
	loop *usecase.LearningLoop,
	retention *usecase.Retention,
	collector *usecase.CandleCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaCandleHandler,
	q *queue.RedisQueue,
) *server.App {
	return server.New(cfg, log, srv, loop, retention, collector, consumer, kh, q)
}
