package di

import (
	"CandleSense/internal/services/training"
	"CandleSense/internal/usecase"
	applogger "CandleSense/pkg/logger"
)

// Runtime is the engine graph without servers, for one-shot commands.
type Runtime struct {
	Log       *applogger.Logger
	Engine    *usecase.PredictionEngine
	Ingestor  *usecase.CandleIngestor
	Loop      *usecase.LearningLoop
	Trainer   *training.Trainer
	Retention *usecase.Retention
	Reporter  *usecase.Reporter
}
