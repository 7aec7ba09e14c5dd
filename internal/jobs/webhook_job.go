package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/queue"
	"github.com/revaspay/onboarding/internal/services/onboarding"
)

// WebhookJobPayload is one verification webhook delivery as received
type WebhookJobPayload struct {
	Kind       string          `json:"kind"`
	Body       json.RawMessage `json:"body"`
	ReceivedAt time.Time       `json:"received_at"`
}

// EventHandler runs one vendor event through correlation and state reconciliation
type EventHandler interface {
	Handle(ctx context.Context, ev *onboarding.Event) (*onboarding.Result, error)
}

// WebhookJob processes queued verification webhooks
type WebhookJob struct {
	handler    EventHandler
	queue      *queue.Queue
	maxRetries int
}

// NewWebhookJob creates a new webhook job handler
func NewWebhookJob(handler EventHandler, q *queue.Queue) *WebhookJob {
	return &WebhookJob{handler: handler, queue: q, maxRetries: queue.DefaultMaxRetries}
}

// WithMaxRetries sets how often a failed delivery is retried
func (j *WebhookJob) WithMaxRetries(n int) *WebhookJob {
	if n > 0 {
		j.maxRetries = n
	}
	return j
}

// Enqueue hands a delivery to the workers and returns the job id
func (j *WebhookJob) Enqueue(ctx context.Context, kind onboarding.EventKind, body []byte) (uuid.UUID, error) {
	return j.queue.Enqueue(ctx, queue.JobTypeVerificationWebhook, WebhookJobPayload{
		Kind:       string(kind),
		Body:       body,
		ReceivedAt: time.Now(),
	}, queue.WithMaxRetry(j.maxRetries))
}

// Process is the queue.JobHandler for verification webhooks. Malformed
// deliveries fail permanently; store and lock errors are retried.
func (j *WebhookJob) Process(ctx context.Context, job queue.Job) (interface{}, error) {
	var payload WebhookJobPayload
	if err := job.Decode(&payload); err != nil {
		return nil, queue.Permanent(err)
	}

	kind, err := onboarding.ParseEventKind(payload.Kind)
	if err != nil {
		return nil, queue.Permanent(err)
	}
	ev, err := onboarding.ParseEvent(kind, payload.Body)
	if err != nil {
		return nil, queue.Permanent(err)
	}

	res, err := j.handler.Handle(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("failed to process %s webhook: %w", kind, err)
	}

	if res.Outcome == onboarding.ResultUnresolved {
		log.Printf("Unresolved %s webhook (request %s, onboarding %s, reference %s)",
			kind, ev.RequestID, ev.OnboardingID, ev.ReferenceID)
	}

	return map[string]interface{}{
		"outcome":    res.Outcome,
		"request_id": res.RequestID,
		"status":     res.Status,
	}, nil
}
