package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	applogger "CandleSense/pkg/logger"
)

var (
	ErrUnknownJob = errors.New("queue: no job registered for type")
	ErrRunning    = errors.New("queue: already running")
)

type action int

const (
	actionDone action = iota
	actionRetry
	actionDead
)

// RedisQueue is a list-backed job queue shared by every replica. Failed jobs wait in a
// sorted set until their retry time and land in a dead-letter list once retries run out.
type RedisQueue struct {
	cfg    Config
	client *redis.Client
	log    *applogger.Logger

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now func() time.Time
}

func NewRedisQueue(cfg Config, client *redis.Client, log *applogger.Logger) (*RedisQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("queue: redis client is required")
	}
	return &RedisQueue{
		cfg:    cfg,
		client: client,
		log:    applogger.OrNop(log).With(applogger.String("component", "queue")),
		jobs:   make(map[string]Job),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register adds a handler. A second job for the same type is ignored.
func (q *RedisQueue) Register(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[job.Type()]; exists {
		q.log.Warn("job already registered", applogger.String("type", job.Type()))
		return
	}
	q.jobs[job.Type()] = job
	q.log.Debug("job registered", applogger.String("type", job.Type()))
}

// Start pings Redis and launches the workers and the retry mover.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrRunning
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = stop
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx, i)
	}
	q.wg.Add(1)
	go q.retryLoop(runCtx)
	q.log.Info("queue started",
		applogger.Int("workers", q.cfg.Workers),
		applogger.String("addr", q.client.Options().Addr))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs until ctx expires.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	case <-done:
		q.log.Info("queue stopped")
		return nil
	}
}

// Enqueue pushes a job for any replica to pick up.
func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	q.mu.RLock()
	_, ok := q.jobs[jobType]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobType)
	}
	msg, err := newMessage(uuid.NewString(), jobType, payload, q.now())
	if err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey(), b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	q.log.Debug("job enqueued", applogger.String("type", jobType), applogger.String("id", msg.ID))
	return nil
}

func (q *RedisQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.cfg.PollTimeout, q.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.log.Error("brpop failed", applogger.Int("worker_id", id), applogger.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.log.Error("undecodable message dropped", applogger.Error(err))
			continue
		}
		q.settle(ctx, msg, q.dispatch(ctx, &msg))
	}
}

// dispatch runs the job and decides what happens to the message next. Attempts is
// incremented on failure.
func (q *RedisQueue) dispatch(ctx context.Context, msg *Message) action {
	q.mu.RLock()
	job, ok := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !ok {
		q.log.Error("no job for message", applogger.String("type", msg.Type), applogger.String("id", msg.ID))
		return actionDead
	}
	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		q.log.Debug("job done",
			applogger.String("type", msg.Type),
			applogger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return actionDone
	}
	if errors.Is(err, context.Canceled) {
		// shutting down; put it back untouched
		return actionRetry
	}
	msg.Attempts++
	q.log.Warn("job failed",
		applogger.String("type", msg.Type),
		applogger.String("id", msg.ID),
		applogger.Int("attempt", msg.Attempts),
		applogger.Error(err))
	if msg.Attempts > q.cfg.RetryLimit {
		return actionDead
	}
	return actionRetry
}

func (q *RedisQueue) settle(ctx context.Context, msg Message, a action) {
	if a == actionDone {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		q.log.Error("marshal message", applogger.Error(err))
		return
	}
	// the job's ctx may already be cancelled
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	switch a {
	case actionRetry:
		at := q.now().Add(q.cfg.RetryDelay)
		err = q.client.ZAdd(wctx, q.retryKey(), redis.Z{Score: float64(at.Unix()), Member: b}).Err()
	case actionDead:
		q.log.Error("job moved to dead letters", applogger.String("type", msg.Type), applogger.String("id", msg.ID))
		err = q.client.LPush(wctx, q.deadKey(), b).Err()
	}
	if err != nil {
		q.log.Error("requeue failed", applogger.String("id", msg.ID), applogger.Error(err))
	}
}

func (q *RedisQueue) retryLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.moveDue(ctx)
		}
	}
}

// moveDue returns due retries to the main list. ZRem decides which replica moves a member.
func (q *RedisQueue) moveDue(ctx context.Context) {
	due, err := q.client.ZRangeByScore(ctx, q.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.log.Error("fetch retries", applogger.Error(err))
		}
		return
	}
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.retryKey(), member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.queueKey(), member).Err(); err != nil {
			q.log.Error("move retry to queue", applogger.Error(err))
		}
	}
}

func (q *RedisQueue) queueKey() string { return q.cfg.Prefix + ":messages" }
func (q *RedisQueue) retryKey() string { return q.cfg.Prefix + ":retry" }
func (q *RedisQueue) deadKey() string  { return q.cfg.Prefix + ":dlq" }

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
