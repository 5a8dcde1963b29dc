//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"CandleSense/pkg/config"
	"CandleSense/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideRedisCache,
	ProvideLocker,
)

var storeSet = wire.NewSet(
	ProvideCandleStore,
	ProvidePredictionStore,
	ProvidePatternScoreStore,
	ProvideModelStore,
	ProvidePublisher,
)

var engineSet = wire.NewSet(
	ProvidePredictor,
	ProvideComponents,
	ProvideValidator,
	ProvideTrainer,
	ProvideEnricher,
	ProvideManipulationDetector,
	ProvidePredictionEngine,
)

var usecaseSet = wire.NewSet(
	ProvideLearningLoop,
	ProvideRetention,
	ProvideCandleIngestor,
	ProvideReporter,
)

// InitializeApp wires up all dependencies and returns the application. The cleanup closes
// infrastructure clients in reverse construction order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		storeSet,
		engineSet,
		usecaseSet,
		ProvideKafkaConsumer,
		ProvideKafkaCandleHandler,
		ProvideCandleCollector,
		ProvideJobQueue,
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeRuntime wires the engine graph without servers or intake, for one-shot commands.
func InitializeRuntime(cfg *config.Config) (*Runtime, func(), error) {
	wire.Build(
		infraSet,
		storeSet,
		engineSet,
		usecaseSet,
		wire.Struct(new(Runtime), "*"),
	)
	return nil, nil, nil
}
