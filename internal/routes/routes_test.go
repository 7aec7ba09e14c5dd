package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/revaspay/onboarding/internal/config"
	"github.com/revaspay/onboarding/internal/handlers"
	"github.com/revaspay/onboarding/internal/metrics"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/onboarding"
	"github.com/revaspay/onboarding/internal/utils"
	"github.com/stretchr/testify/assert"
)

type stubEvents struct{}

func (stubEvents) Handle(ctx context.Context, ev *onboarding.Event) (*onboarding.Result, error) {
	return &onboarding.Result{Outcome: onboarding.ResultUnresolved}, nil
}

type stubService struct{}

func (stubService) Start(ctx context.Context, callerID, orgID uuid.UUID, kind models.OnboardingKind) (*onboarding.StartResult, error) {
	return nil, onboarding.ErrNotFound
}

func (stubService) Retry(ctx context.Context, callerID, orgID uuid.UUID) (*models.OnboardingRecord, error) {
	return nil, onboarding.ErrNotFound
}

func (stubService) GetStatus(ctx context.Context, callerID, orgID uuid.UUID) (*onboarding.StatusView, error) {
	return &onboarding.StatusView{OrganizationID: orgID, OnboardingStatus: models.OnboardingStatusPending}, nil
}

func (stubService) SyncStatus(ctx context.Context, callerID, orgID uuid.UUID) (*onboarding.StatusView, error) {
	return nil, onboarding.ErrNotFound
}

func newTestRouter(t *testing.T) (*gin.Engine, *utils.TokenSigner) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	metrics.New(reg).IncWebhookEvent("kyc", "unresolved")

	signer := utils.NewTokenSigner("test-secret", time.Hour)
	cfg := &config.Config{
		Environment: "test",
		Security:    config.SecurityConfig{CORSAllowedOrigins: []string{"https://app.example"}},
	}
	router := NewRouter(Deps{
		Config:     cfg,
		Signer:     signer,
		Gatherer:   reg,
		Webhook:    handlers.NewVerificationWebhookHandler(stubEvents{}, nil),
		Onboarding: handlers.NewOnboardingHandler(stubService{}),
		Health:     handlers.NewHealthHandler(nil),
	})
	return router, signer
}

func TestRouterEndpoints(t *testing.T) {
	router, signer := newTestRouter(t)
	token, _, err := signer.GenerateToken(uuid.New(), "", false)
	assert.NoError(t, err)
	orgPath := "/api/v1/organizations/" + uuid.New().String() + "/onboarding"

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   bool
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", false, http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", false, http.StatusOK},
		{"webhook unresolved", http.MethodPost, "/api/v1/webhooks/verification/kyc", `{"requestId":"KYC1"}`, false, http.StatusOK},
		{"webhook unknown kind", http.MethodPost, "/api/v1/webhooks/verification/aml", `{}`, false, http.StatusBadRequest},
		{"status without token", http.MethodGet, orgPath, "", false, http.StatusUnauthorized},
		{"status", http.MethodGet, orgPath, "", true, http.StatusOK},
		{"sync missing record", http.MethodPost, orgPath + "/sync", "", true, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/v1/payments", "", false, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			if tt.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouterMetricsExposition(t *testing.T) {
	router, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `onboarding_webhook_events_total{kind="kyc",outcome="unresolved"} 1`)
}

func TestRouterCORS(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/webhooks/verification/kyc", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfigWildcard(t *testing.T) {
	assert.True(t, corsConfig([]string{"*"}).AllowAllOrigins)
	assert.True(t, corsConfig(nil).AllowAllOrigins)

	cfg := corsConfig([]string{"https://a.example", "https://b.example"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowOrigins)
}
