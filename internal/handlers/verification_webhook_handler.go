package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/services/onboarding"
)

// maxWebhookBody caps vendor payloads; corporate payloads with many
// shareholders stay well below it
const maxWebhookBody = 2 << 20

// EventHandler runs one vendor event through the onboarding pipeline
type EventHandler interface {
	Handle(ctx context.Context, ev *onboarding.Event) (*onboarding.Result, error)
}

// WebhookEnqueuer hands a raw delivery to the background workers
type WebhookEnqueuer interface {
	Enqueue(ctx context.Context, kind onboarding.EventKind, body []byte) (uuid.UUID, error)
}

// VerificationWebhookHandler receives KYC/KYB/liveness/COD notifications
// from the verification vendor
type VerificationWebhookHandler struct {
	events EventHandler
	queue  WebhookEnqueuer
}

// NewVerificationWebhookHandler creates the handler. A nil queue processes
// deliveries inline.
func NewVerificationWebhookHandler(events EventHandler, queue WebhookEnqueuer) *VerificationWebhookHandler {
	return &VerificationWebhookHandler{events: events, queue: queue}
}

// Receive handles POST /api/v1/webhooks/verification/:kind. Deliveries that
// match no onboarding record are still acknowledged with 200.
func (h *VerificationWebhookHandler) Receive(c *gin.Context) {
	kind, err := onboarding.ParseEventKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown webhook kind"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	if h.queue != nil {
		jobID, err := h.queue.Enqueue(c.Request.Context(), kind, body)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"status": "accepted", "job_id": jobID})
			return
		}
		log.Printf("Failed to enqueue %s webhook, processing inline: %v", kind, err)
	}

	h.process(c, kind, body)
}

func (h *VerificationWebhookHandler) process(c *gin.Context, kind onboarding.EventKind, body []byte) {
	ev, err := onboarding.ParseEvent(kind, body)
	if err != nil {
		log.Printf("Unresolved %s webhook: %v", kind, err)
		c.JSON(http.StatusOK, gin.H{"status": onboarding.ResultUnresolved})
		return
	}

	res, err := h.events.Handle(c.Request.Context(), ev)
	if err != nil {
		// A 5xx makes the vendor redeliver; processing is idempotent
		log.Printf("Failed to process %s webhook for %q: %v", kind, ev.RequestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	resp := gin.H{"status": res.Outcome}
	if res.RequestID != "" {
		resp["request_id"] = res.RequestID
		resp["onboarding_status"] = res.Status
	}
	c.JSON(http.StatusOK, resp)
}
