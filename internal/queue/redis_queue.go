// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/wikify/internal/logx"
)

// RedisQueue implements Queue over a Redis list: RPUSH on enqueue, BLPOP
// on dequeue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a Redis-backed queue on key (e.g.
// "wikify:index-jobs"), verifying connectivity up front.
func NewRedisQueue(client *redis.Client, key string) (Queue, error) {
	if key == "" {
		key = "jobs:default"
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisQueue{client: client, key: key}, nil
}

func (r *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("push job to %s: %w", r.key, err)
	}
	logx.Debugf("queue: enqueued job type=%s key=%s", job.Type, r.key)
	return nil
}

// Dequeue blocks on BLPOP until a job is available. The pop runs in its
// own goroutine so a cancelled ctx unblocks the caller immediately even
// while the Redis call is still in flight.
func (r *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	type result struct {
		val []string
		err error
	}
	resultChan := make(chan result, 1)

	go func() {
		val, err := r.client.BLPop(ctx, 0, r.key).Result()
		resultChan <- result{val: val, err: err}
	}()

	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case res := <-resultChan:
		if res.err != nil {
			if res.err == redis.Nil || errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("pop job from %s: %w", r.key, res.err)
		}
		if len(res.val) < 2 {
			return Job{}, fmt.Errorf("unexpected BLPOP result: %d elements", len(res.val))
		}

		var job Job
		if err := json.Unmarshal([]byte(res.val[1]), &job); err != nil {
			return Job{}, fmt.Errorf("unmarshal job: %w", err)
		}
		logx.Debugf("queue: dequeued job type=%s key=%s", job.Type, r.key)
		return job, nil
	}
}
