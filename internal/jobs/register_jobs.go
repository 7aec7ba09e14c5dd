package jobs

import (
	"github.com/revaspay/onboarding/internal/queue"
)

// RegisterAllJobHandlers registers all job handlers with the worker manager
func RegisterAllJobHandlers(manager *queue.WorkerManager, webhookJob *WebhookJob, workers int) {
	manager.RegisterWorker(queue.JobTypeVerificationWebhook, webhookJob.Process, workers)
}
