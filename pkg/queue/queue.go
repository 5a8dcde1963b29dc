package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config for a worker pool draining one queue.
type Config struct {
	Workers     int           `yaml:"workers" default:"1" validate:"gte=1"`
	RetryLimit  int           `yaml:"retry_limit" default:"2" validate:"gte=0"`
	RetryDelay  time.Duration `yaml:"retry_delay" default:"30s"`
	PollTimeout time.Duration `yaml:"poll_timeout" default:"1s"`
	Prefix      string        `yaml:"prefix" default:"candlesense:jobs"`
}

func DefaultConfig() Config {
	return Config{
		Workers:     1,
		RetryLimit:  2,
		RetryDelay:  30 * time.Second,
		PollTimeout: time.Second,
		Prefix:      "candlesense:jobs",
	}
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("queue: workers must be >= 1")
	}
	if c.RetryLimit < 0 {
		return fmt.Errorf("queue: retry_limit must be >= 0")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("queue: poll_timeout must be > 0")
	}
	if c.Prefix == "" {
		return fmt.Errorf("queue: prefix cannot be empty")
	}
	return nil
}

// Message is the stored form of a job.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals a job payload into T. An empty payload yields the zero value.
func Decode[T any](payload json.RawMessage) (T, error) {
	var out T
	if len(payload) == 0 || string(payload) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func newMessage(id, jobType string, payload interface{}, now time.Time) (Message, error) {
	msg := Message{ID: id, Type: jobType, EnqueuedAt: now}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal payload: %w", err)
		}
		msg.Payload = b
	}
	return msg, nil
}
