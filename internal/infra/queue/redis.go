package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"brodi-nudge/internal/domain"
	"brodi-nudge/internal/infra/metrics"
)

// RedisNudgeQueue реализует очередь задач доставки на базе Redis lists.
type RedisNudgeQueue struct {
	client *redis.Client
	key    string
}

var _ domain.NudgeQueue = (*RedisNudgeQueue)(nil)

// NewRedisNudgeQueue создаёт очередь по указанному ключу.
func NewRedisNudgeQueue(client *redis.Client, key string) *RedisNudgeQueue {
	return &RedisNudgeQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisNudgeQueue) Enqueue(ctx context.Context, job domain.NudgeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение с success=false
// возвращает задачу в очередь.
func (q *RedisNudgeQueue) Receive(ctx context.Context) (domain.NudgeJob, domain.NudgeAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.NudgeJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.NudgeJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.NudgeJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.NudgeJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := []byte(res[1])
		var job domain.NudgeJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return domain.NudgeJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}
