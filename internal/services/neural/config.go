package neural

import (
	"fmt"

	"CandleSense/internal/services/features"
)

// Config is the network shape and the training schedule.
type Config struct {
	InputSize       int       `yaml:"input_size" default:"60" validate:"gte=1"`
	Hidden          []int     `yaml:"hidden" validate:"min=1,dive,gte=1"`
	Dropout         []float64 `yaml:"dropout" validate:"dive,gte=0,lt=1"`
	Activation      string    `yaml:"activation" default:"relu" validate:"oneof=relu tanh sigmoid"`
	LearningRate    float64   `yaml:"learning_rate" default:"0.001" validate:"gt=0"`
	Epochs          int       `yaml:"epochs" default:"10" validate:"gte=1"`
	BatchSize       int       `yaml:"batch_size" default:"32" validate:"gte=1"`
	ValidationSplit float64   `yaml:"validation_split" default:"0.2" validate:"gte=0,lt=1"`
	Seed            int64     `yaml:"seed" default:"42"`
}

// DefaultConfig is 60 -> 128 -> 64 -> 32 -> 3 with dropout after the first two hidden layers.
func DefaultConfig() Config {
	return Config{
		InputSize:       features.VectorSize,
		Hidden:          []int{128, 64, 32},
		Dropout:         []float64{0.3, 0.2},
		Activation:      "relu",
		LearningRate:    0.001,
		Epochs:          10,
		BatchSize:       32,
		ValidationSplit: 0.2,
		Seed:            42,
	}
}

func (c Config) Validate() error {
	if c.InputSize < 1 {
		return fmt.Errorf("neural: input_size must be >= 1")
	}
	if len(c.Hidden) == 0 {
		return fmt.Errorf("neural: at least one hidden layer is required")
	}
	for i, w := range c.Hidden {
		if w < 1 {
			return fmt.Errorf("neural: hidden[%d] must be >= 1", i)
		}
	}
	if len(c.Dropout) > len(c.Hidden) {
		return fmt.Errorf("neural: %d dropout rates for %d hidden layers", len(c.Dropout), len(c.Hidden))
	}
	for i, r := range c.Dropout {
		if r < 0 || r >= 1 {
			return fmt.Errorf("neural: dropout[%d] must be in [0,1)", i)
		}
	}
	if _, err := activationByName(c.Activation); err != nil {
		return err
	}
	if c.LearningRate <= 0 || c.Epochs < 1 || c.BatchSize < 1 {
		return fmt.Errorf("neural: learning_rate, epochs and batch_size must be positive")
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("neural: validation_split must be in [0,1)")
	}
	return nil
}

func (c Config) dropoutAt(layer int) float64 {
	if layer < len(c.Dropout) {
		return c.Dropout[layer]
	}
	return 0
}
