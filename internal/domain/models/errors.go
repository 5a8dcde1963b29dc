package models

import "errors"

// Recoverable engine error kinds. None of them is fatal to the process.
var (
	ErrInsufficientData         = errors.New("insufficient candle data")
	ErrNoUsablePrediction       = errors.New("no usable prediction")
	ErrTrainingBusy             = errors.New("training already in progress")
	ErrInsufficientTrainingData = errors.New("insufficient training data")
	ErrValidationDataMissing    = errors.New("no candle in resolution window")
	ErrPersistenceFailure       = errors.New("persistence failure")

	ErrModelNotReady    = errors.New("model not built or loaded")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyValidated = errors.New("prediction already validated")
)
