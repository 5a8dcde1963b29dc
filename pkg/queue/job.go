package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Enqueuer is the producer half of a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) error
}
