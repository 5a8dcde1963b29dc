package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/services/training"
	applogger "CandleSense/pkg/logger"
	"CandleSense/pkg/queue"
)

// JobRetrain is the queue type for an operator-requested retrain.
const JobRetrain = "retrain"

type RetrainRequest struct {
	RequestedAt time.Time `json:"requested_at"`
	Source      string    `json:"source"`
}

// RetrainJob runs queued retrain requests on whichever replica dequeues them.
type RetrainJob struct {
	trainer *training.Trainer
	log     *applogger.Logger
	now     func() time.Time
}

func NewRetrainJob(trainer *training.Trainer, log *applogger.Logger) *RetrainJob {
	return &RetrainJob{
		trainer: trainer,
		log:     applogger.OrNop(log).With(applogger.String("component", "retrain_job")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *RetrainJob) Type() string { return JobRetrain }

// Handle treats a busy trainer and too little data as done: neither improves on retry.
func (j *RetrainJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[RetrainRequest](payload)
	if err != nil {
		return err
	}
	res, err := j.trainer.Retrain(ctx, j.now())
	switch {
	case err == nil:
		j.log.Info("queued retrain finished",
			applogger.String("source", req.Source),
			applogger.Int64("model_version", res.Version),
			applogger.Float64("test_accuracy", res.TestAccuracy))
		return nil
	case errors.Is(err, models.ErrTrainingBusy), errors.Is(err, models.ErrInsufficientTrainingData):
		j.log.Info("queued retrain skipped", applogger.String("status", res.Status))
		return nil
	default:
		return fmt.Errorf("retrain: %w", err)
	}
}
