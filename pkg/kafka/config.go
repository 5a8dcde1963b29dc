package kafka

import (
	"fmt"
	"time"
)

// ProducerConfig tunes the batching writer. Brokers, acks and compression are shared with the
// consumer side of the application config and set through options.
type ProducerConfig struct {
	Brokers      []string `yaml:"-"`
	RequiredAcks int      `yaml:"-"`
	Compression  string   `yaml:"-"`
	// HashByKey keeps every message for one key (a symbol) on one partition.
	HashByKey bool `yaml:"-"`

	MaxAttempts  int           `yaml:"max_attempts" default:"5" validate:"gte=1"`
	Linger       time.Duration `yaml:"linger" default:"50ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576" validate:"gte=1"`
	BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  5,
		Linger:       50 * time.Millisecond,
		BatchBytes:   1 << 20,
		BatchSize:    100,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

func (c ProducerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers are required")
	}
	switch c.RequiredAcks {
	case -1, 0, 1:
	default:
		return fmt.Errorf("kafka producer: required_acks must be -1, 0 or 1")
	}
	if c.MaxAttempts < 1 || c.BatchSize < 1 || c.BatchBytes < 1 {
		return fmt.Errorf("kafka producer: max_attempts, batch_size and batch_bytes must be positive")
	}
	return nil
}

// ProducerOption overrides the connection-level fields of a ProducerConfig.
type ProducerOption func(*ProducerConfig)

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4 or zstd.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = compression }
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}
