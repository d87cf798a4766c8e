package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/wizardd/pkg/wire"
)

// RedisStore is the distributed QueueStore backing GET /task: a list
// (LPUSH/BRPOP) holds pending task ids, a hash holds each task's current
// JSON state, and a second hash tracks cancellation flags polled by the
// task manager's cancellation monitor.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies reachability with PING.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("httpapi: redis ping: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "wizard"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) queueKey() string     { return s.prefix + ":queue" }
func (s *RedisStore) tasksKey() string     { return s.prefix + ":tasks" }
func (s *RedisStore) cancelledKey() string { return s.prefix + ":cancelled" }

func (s *RedisStore) Enqueue(ctx context.Context, task *wire.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = wire.TaskStatusPending
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("httpapi: marshal task: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.tasksKey(), task.ID, data)
	pipe.LPush(ctx, s.queueKey(), task.ID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("httpapi: enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks on BRPOP until a task id is available, then loads and
// marks it running.
func (s *RedisStore) Dequeue(ctx context.Context) (*wire.Task, error) {
	for {
		result, err := s.client.BRPop(ctx, 5*time.Second, s.queueKey()).Result()
		if errors.Is(err, redis.Nil) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("httpapi: brpop: %w", err)
		}
		id := result[1]

		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		task.Status = wire.TaskStatusRunning
		task.StartedAt = &now
		if err := s.save(ctx, task); err != nil {
			return nil, err
		}
		return task, nil
	}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*wire.Task, error) {
	data, err := s.client.HGet(ctx, s.tasksKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("httpapi: hget task %s: %w", id, err)
	}
	var task wire.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("httpapi: unmarshal task %s: %w", id, err)
	}
	if cancelled, err := s.client.HGet(ctx, s.cancelledKey(), id).Result(); err == nil && cancelled != "" {
		var canceledAt time.Time
		if parseErr := canceledAt.UnmarshalText([]byte(cancelled)); parseErr == nil {
			task.CanceledAt = &canceledAt
		}
	}
	return &task, nil
}

func (s *RedisStore) Cancel(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	now, err := time.Now().MarshalText()
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.cancelledKey(), id, now).Err(); err != nil {
		return fmt.Errorf("httpapi: cancel %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Complete(ctx context.Context, payload wire.CallbackPayload) error {
	task, err := s.Get(ctx, payload.ID)
	if err != nil {
		return err
	}
	now := time.Now()
	task.Status = payload.Status
	task.Output = payload.Output
	task.Exception = payload.Exception
	task.EndedAt = &now
	return s.save(ctx, task)
}

func (s *RedisStore) save(ctx context.Context, task *wire.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("httpapi: marshal task %s: %w", task.ID, err)
	}
	if err := s.client.HSet(ctx, s.tasksKey(), task.ID, data).Err(); err != nil {
		return fmt.Errorf("httpapi: save task %s: %w", task.ID, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ QueueStore = (*RedisStore)(nil)
