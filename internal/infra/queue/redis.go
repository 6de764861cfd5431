package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"slack-summarizer/internal/domain"
)

// RedisRenderQueue реализует очередь задач рендеринга на базе Redis lists.
// Используется как запасной вариант, когда брокер AMQP не настроен.
type RedisRenderQueue struct {
	client *redis.Client
	key    string
}

// NewRedisRenderQueue создаёт очередь по указанному ключу.
func NewRedisRenderQueue(client *redis.Client, key string) *RedisRenderQueue {
	return &RedisRenderQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisRenderQueue) Enqueue(ctx context.Context, job domain.RenderJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. BRPop снимает задачу сразу,
// поэтому отрицательный ack возвращает её в очередь повторной публикацией.
func (q *RedisRenderQueue) Receive(ctx context.Context) (domain.RenderJob, domain.RenderAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RenderJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RenderJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RenderJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.RenderJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := []byte(res[1])
		var job domain.RenderJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return domain.RenderJob{}, nil, fmt.Errorf("decode job: %w", err)
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
