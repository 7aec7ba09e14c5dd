package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "onboarding:"

// RedisBroker keeps ready jobs in a list per job type, delayed jobs in a
// sorted set scored by run time, and the latest job state in a hash.
type RedisBroker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBroker creates a new Redis-backed broker
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, ttl: DefaultTTL}
}

var _ Broker = (*RedisBroker)(nil)

func readyKey(jobType JobType) string   { return keyPrefix + "queue:" + string(jobType) }
func delayedKey(jobType JobType) string { return keyPrefix + "queue:" + string(jobType) + ":delayed" }
func jobKey(id string) string           { return keyPrefix + "jobs:" + id }

func (b *RedisBroker) saveState(ctx context.Context, job *Job, data []byte) {
	pipe := b.client.Pipeline()
	pipe.HSet(ctx, jobKey(job.ID.String()), "data", data, "status", string(job.Status))
	pipe.Expire(ctx, jobKey(job.ID.String()), b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Warning: failed to store state of job %s: %v", job.ID, err)
	}
}

// Push adds a job to the ready list, or to the delayed set when RunAt is in the future
func (b *RedisBroker) Push(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if job.RunAt.After(time.Now()) {
		err = b.client.ZAdd(ctx, delayedKey(job.Type), &redis.Z{
			Score:  float64(job.RunAt.UnixMilli()),
			Member: data,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to add job to delayed queue: %w", err)
		}
	} else if err := b.client.LPush(ctx, readyKey(job.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}

	b.saveState(ctx, job, data)
	return nil
}

// Pop takes the oldest ready job, waiting up to wait for one to arrive
func (b *RedisBroker) Pop(ctx context.Context, jobType JobType, wait time.Duration) (*Job, error) {
	result, err := b.client.BRPop(ctx, wait, readyKey(jobType)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	job.Status = JobStatusProcessing
	job.UpdatedAt = time.Now()
	if data, err := json.Marshal(job); err == nil {
		b.saveState(ctx, &job, data)
	}
	return &job, nil
}

// PromoteDue moves due delayed jobs to the ready list. ZREM decides the
// winner when several workers promote at once.
func (b *RedisBroker) PromoteDue(ctx context.Context, jobType JobType) (int, error) {
	members, err := b.client.ZRangeByScore(ctx, delayedKey(jobType), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	moved := 0
	for _, member := range members {
		removed, err := b.client.ZRem(ctx, delayedKey(jobType), member).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to remove delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := b.client.LPush(ctx, readyKey(jobType), member).Err(); err != nil {
			return moved, fmt.Errorf("failed to move delayed job: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Finish stores the terminal state of a job
func (b *RedisBroker) Finish(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	b.saveState(ctx, job, data)
	return nil
}

// Stats reports queue depth for a job type
func (b *RedisBroker) Stats(ctx context.Context, jobType JobType) (*QueueStats, error) {
	waiting, err := b.client.LLen(ctx, readyKey(jobType)).Result()
	if err != nil {
		return nil, err
	}
	delayed, err := b.client.ZCard(ctx, delayedKey(jobType)).Result()
	if err != nil {
		return nil, err
	}
	return &QueueStats{Queue: string(jobType), Waiting: waiting, Delayed: delayed}, nil
}
