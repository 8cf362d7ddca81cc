package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const deadLetterLimit = 1000

// RedisQueue keeps each queue in three lists: waiting, active and failed.
// A fetched job is moved atomically from waiting to active and removed from
// active only when its handler finishes, so a crashed worker leaves the job
// in active where Recover can return it.
type RedisQueue struct {
	*engine
	client *redis.Client
	prefix string
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client, prefix string, opts Options) *RedisQueue {
	if prefix == "" {
		prefix = "paygate"
	}
	q := &RedisQueue{client: client, prefix: prefix}
	q.engine = newEngine(&redisBackend{q: q}, opts)
	return q
}

func (q *RedisQueue) key(name, part string) string {
	return fmt.Sprintf("%s:queue:%s:%s", q.prefix, name, part)
}

// Recover moves every job stranded in the active list back to waiting.
// Only run it while no consumer of the queue is alive.
func (q *RedisQueue) Recover(ctx context.Context, name string) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, q.key(name, "active"), q.key(name, "waiting")).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover %s: %w", name, err)
		}
		moved++
	}
}

type redisBackend struct {
	q *RedisQueue
}

func (b *redisBackend) push(ctx context.Context, name string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.q.client.LPush(ctx, b.q.key(name, "waiting"), data).Err()
}

func (b *redisBackend) fetch(ctx context.Context, name string) (*Job, error) {
	raw, err := b.q.client.BRPopLPush(ctx, b.q.key(name, "waiting"), b.q.key(name, "active"), b.q.opts.BlockTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		b.q.logger.Error("dropping undecodable job", "queue", name, "error", err)
		_, perr := b.q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, b.q.key(name, "active"), 1, raw)
			pipe.LPush(ctx, b.q.key(name, "failed"), raw)
			pipe.Incr(ctx, b.q.key(name, "failed_total"))
			return nil
		})
		return nil, perr
	}
	job.raw = raw
	return &job, nil
}

func (b *redisBackend) ack(ctx context.Context, name string, job *Job) error {
	_, err := b.q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, b.q.key(name, "active"), 1, job.raw)
		pipe.Incr(ctx, b.q.key(name, "completed"))
		return nil
	})
	return err
}

func (b *redisBackend) requeue(ctx context.Context, name string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = b.q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, b.q.key(name, "active"), 1, job.raw)
		pipe.LPush(ctx, b.q.key(name, "waiting"), data)
		return nil
	})
	return err
}

func (b *redisBackend) bury(ctx context.Context, name string, job *Job, cause error) error {
	entry, err := json.Marshal(struct {
		*Job
		Error string `json:"error"`
	}{Job: job, Error: cause.Error()})
	if err != nil {
		return err
	}
	_, err = b.q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, b.q.key(name, "active"), 1, job.raw)
		pipe.LPush(ctx, b.q.key(name, "failed"), entry)
		pipe.LTrim(ctx, b.q.key(name, "failed"), 0, deadLetterLimit-1)
		pipe.Incr(ctx, b.q.key(name, "failed_total"))
		return nil
	})
	return err
}

func (b *redisBackend) stats(ctx context.Context, name string) (Stats, error) {
	pipe := b.q.client.Pipeline()
	waiting := pipe.LLen(ctx, b.q.key(name, "waiting"))
	active := pipe.LLen(ctx, b.q.key(name, "active"))
	completed := pipe.Get(ctx, b.q.key(name, "completed"))
	failed := pipe.Get(ctx, b.q.key(name, "failed_total"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("queue stats %s: %w", name, err)
	}

	return Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: counter(completed),
		Failed:    counter(failed),
	}, nil
}

func counter(cmd *redis.StringCmd) int64 {
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}
