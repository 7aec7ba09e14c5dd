package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/middleware"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/onboarding"
)

// OnboardingService is the caller-facing onboarding API
type OnboardingService interface {
	Start(ctx context.Context, callerID, orgID uuid.UUID, kind models.OnboardingKind) (*onboarding.StartResult, error)
	Retry(ctx context.Context, callerID, orgID uuid.UUID) (*models.OnboardingRecord, error)
	GetStatus(ctx context.Context, callerID, orgID uuid.UUID) (*onboarding.StatusView, error)
	SyncStatus(ctx context.Context, callerID, orgID uuid.UUID) (*onboarding.StatusView, error)
}

// OnboardingHandler handles organization onboarding requests
type OnboardingHandler struct {
	service OnboardingService
}

// NewOnboardingHandler creates a new onboarding handler
func NewOnboardingHandler(service OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{service: service}
}

// StartOnboardingRequest is the body of the start endpoint
type StartOnboardingRequest struct {
	Kind models.OnboardingKind `json:"kind" binding:"required"`
}

// onboardingResponse is returned by start and retry
type onboardingResponse struct {
	RequestID  string                  `json:"request_id"`
	Kind       models.OnboardingKind   `json:"kind"`
	Status     models.OnboardingStatus `json:"status"`
	VerifyLink string                  `json:"verify_link"`
	ExpiresAt  *time.Time              `json:"verify_link_expires_at,omitempty"`
	Resumed    bool                    `json:"resumed"`
}

func newOnboardingResponse(record *models.OnboardingRecord, resumed bool) onboardingResponse {
	return onboardingResponse{
		RequestID:  record.RequestID,
		Kind:       record.OnboardingKind,
		Status:     record.Status,
		VerifyLink: record.VerifyLink,
		ExpiresAt:  record.VerifyLinkExpiresAt,
		Resumed:    resumed,
	}
}

// caller extracts the authenticated user and the organization path parameter
func caller(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, err := uuid.Parse(c.GetString(middleware.ContextUserID))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return uuid.Nil, uuid.Nil, false
	}

	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, orgID, true
}

// StartOnboarding issues (or resumes) a verify link for the organization
func (h *OnboardingHandler) StartOnboarding(c *gin.Context) {
	userID, orgID, ok := caller(c)
	if !ok {
		return
	}

	var req StartOnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be individual or corporate"})
		return
	}

	result, err := h.service.Start(c.Request.Context(), userID, orgID, req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, newOnboardingResponse(result.Record, result.Resumed))
}

// RetryOnboarding restarts the organization's verification flow
func (h *OnboardingHandler) RetryOnboarding(c *gin.Context) {
	userID, orgID, ok := caller(c)
	if !ok {
		return
	}

	record, err := h.service.Retry(c.Request.Context(), userID, orgID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOnboardingResponse(record, false))
}

// GetOnboardingStatus returns the stored onboarding status
func (h *OnboardingHandler) GetOnboardingStatus(c *gin.Context) {
	userID, orgID, ok := caller(c)
	if !ok {
		return
	}

	view, err := h.service.GetStatus(c.Request.Context(), userID, orgID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SyncOnboardingStatus polls the vendor and returns the reconciled status
func (h *OnboardingHandler) SyncOnboardingStatus(c *gin.Context) {
	userID, orgID, ok := caller(c)
	if !ok {
		return
	}

	view, err := h.service.SyncStatus(c.Request.Context(), userID, orgID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
