// Package queue implements a Redis-list-backed job queue: jobs are pushed as
// JSON onto a per-queue list, popped blocking by workers, and moved onto a
// failed list (with the failure cause attached) when a handler errors.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	pendingKeyPrefix = "queue:"
	failedKeyPrefix  = "queue-failed:"
)

// Job is one queued unit of work.
type Job struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	Attempts   int            `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueued_at"`

	// Failure metadata, set when the job lands on the failed list.
	Error    string     `json:"error,omitempty"`
	FailedAt *time.Time `json:"failed_at,omitempty"`
}

// Queue wraps one named Redis list pair (pending and failed).
type Queue struct {
	client *redis.Client
	name   string
}

// New creates a queue over the client.
func New(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) pendingKey() string { return pendingKeyPrefix + q.name }
func (q *Queue) failedKey() string  { return failedKeyPrefix + q.name }

// Push enqueues a job and returns its generated ID.
func (q *Queue) Push(ctx context.Context, jobType string, payload map[string]any) (string, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.push(ctx, q.pendingKey(), job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next job. It returns nil without error
// when the queue stays empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.pendingKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop job: %w", err)
	}

	// BRPop returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Fail records the job on the failed list with its failure cause.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) error {
	now := time.Now().UTC()
	job.Error = cause.Error()
	job.FailedAt = &now
	return q.push(ctx, q.failedKey(), job)
}

// Retry re-enqueues the job, bumping its attempt counter and clearing
// failure metadata.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempts++
	job.Error = ""
	job.FailedAt = nil
	return q.push(ctx, q.pendingKey(), job)
}

// RetryFailed moves every job from the failed list back onto the pending
// list and returns how many were moved.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	moved := 0
	for {
		data, err := q.client.RPop(ctx, q.failedKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return moved, nil
			}
			return moved, fmt.Errorf("pop failed job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			return moved, fmt.Errorf("unmarshal failed job: %w", err)
		}
		if err := q.Retry(ctx, &job); err != nil {
			return moved, err
		}
		moved++
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pendingKey()).Result()
}

// FailedLen returns the number of failed jobs.
func (q *Queue) FailedLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.failedKey()).Result()
}
