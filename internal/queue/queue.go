package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypeVerificationWebhook carries one vendor webhook delivery
	JobTypeVerificationWebhook JobType = "verification_webhook"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	// JobStatusDead means retries are exhausted
	JobStatusDead JobStatus = "dead"
)

const (
	DefaultMaxRetries = 5
	DefaultTTL        = 72 * time.Hour
)

// ErrNoHandler is returned when a job type has no registered handler
var ErrNoHandler = errors.New("no handler registered for job type")

// Job represents a background job
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	RunAt      time.Time       `json:"run_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Error      string          `json:"error,omitempty"`
}

// NewJob builds a pending job with a JSON-encoded payload
func NewJob(jobType JobType, payload interface{}, opts ...EnqueueOption) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	o := EnqueueOptions{maxRetry: DefaultMaxRetries}
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now()
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    raw,
		Status:     JobStatusPending,
		MaxRetries: o.maxRetry,
		RunAt:      now.Add(o.delay),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Decode unmarshals the job payload
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job Job) (interface{}, error)

// Broker stores jobs until a worker takes them
type Broker interface {
	// Push stores a job. Jobs whose RunAt is in the future wait in the delayed set.
	Push(ctx context.Context, job *Job) error
	// Pop blocks up to wait for a ready job of the given type. It returns nil, nil on timeout.
	Pop(ctx context.Context, jobType JobType, wait time.Duration) (*Job, error)
	// PromoteDue moves delayed jobs whose RunAt has passed onto the ready list
	PromoteDue(ctx context.Context, jobType JobType) (int, error)
	// Finish records the final state of a job
	Finish(ctx context.Context, job *Job) error
}

// Queue is the producer side used by request handlers
type Queue struct {
	broker Broker
}

// New creates a queue over the broker
func New(broker Broker) *Queue {
	return &Queue{broker: broker}
}

// Enqueue adds a job and returns its id
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (uuid.UUID, error) {
	job, err := NewJob(jobType, payload, opts...)
	if err != nil {
		return uuid.Nil, err
	}
	if err := q.broker.Push(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	return job.ID, nil
}
