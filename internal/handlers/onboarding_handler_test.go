package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/middleware"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/kyc/regtank"
	"github.com/revaspay/onboarding/internal/services/onboarding"
	"github.com/revaspay/onboarding/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOnboardingService is a mock implementation of OnboardingService
type MockOnboardingService struct {
	mock.Mock
}

func (m *MockOnboardingService) Start(ctx context.Context, callerID, orgID uuid.UUID, kind models.OnboardingKind) (*onboarding.StartResult, error) {
	args := m.Called(ctx, callerID, orgID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*onboarding.StartResult), args.Error(1)
}

func (m *MockOnboardingService) Retry(ctx context.Context, callerID, orgID uuid.UUID) (*models.OnboardingRecord, error) {
	args := m.Called(ctx, callerID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OnboardingRecord), args.Error(1)
}

func (m *MockOnboardingService) GetStatus(ctx context.Context, callerID, orgID uuid.UUID) (*onboarding.StatusView, error) {
	args := m.Called(ctx, callerID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*onboarding.StatusView), args.Error(1)
}

func (m *MockOnboardingService) SyncStatus(ctx context.Context, callerID, orgID uuid.UUID) (*onboarding.StatusView, error) {
	args := m.Called(ctx, callerID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*onboarding.StatusView), args.Error(1)
}

type onboardingFixture struct {
	service *MockOnboardingService
	router  *gin.Engine
	token   string
	userID  uuid.UUID
	orgID   uuid.UUID
}

func newOnboardingFixture(t *testing.T) *onboardingFixture {
	t.Helper()
	signer := utils.NewTokenSigner("test-secret", time.Hour)
	userID := uuid.New()
	token, _, err := signer.GenerateToken(userID, "owner@example.com", false)
	require.NoError(t, err)

	service := new(MockOnboardingService)
	handler := NewOnboardingHandler(service)

	router := setupTestRouter()
	group := router.Group("/organizations/:id/onboarding", middleware.AuthMiddleware(signer))
	group.POST("", handler.StartOnboarding)
	group.GET("", handler.GetOnboardingStatus)
	group.POST("/retry", handler.RetryOnboarding)
	group.POST("/sync", handler.SyncOnboardingStatus)

	t.Cleanup(func() { service.AssertExpectations(t) })
	return &onboardingFixture{service: service, router: router, token: token, userID: userID, orgID: uuid.New()}
}

func (f *onboardingFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, fmt.Sprintf("/organizations/%s/onboarding%s", f.orgID, path), bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestStartOnboarding(t *testing.T) {
	f := newOnboardingFixture(t)
	expires := time.Now().Add(72 * time.Hour).UTC()
	f.service.On("Start", mock.Anything, f.userID, f.orgID, models.OnboardingKindCorporate).Return(&onboarding.StartResult{
		Record: &models.OnboardingRecord{
			RequestID:           "COD00012",
			OnboardingKind:      models.OnboardingKindCorporate,
			Status:              models.OnboardingStatusInProgress,
			VerifyLink:          "https://verify.example/COD00012",
			VerifyLinkExpiresAt: &expires,
		},
	}, nil).Once()

	w := f.do(http.MethodPost, "", `{"kind":"corporate"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, "COD00012", resp["request_id"])
	assert.Equal(t, "https://verify.example/COD00012", resp["verify_link"])
	assert.Equal(t, false, resp["resumed"])
	assert.NotEmpty(t, resp["verify_link_expires_at"])
}

func TestStartOnboardingResumed(t *testing.T) {
	f := newOnboardingFixture(t)
	f.service.On("Start", mock.Anything, f.userID, f.orgID, models.OnboardingKindIndividual).Return(&onboarding.StartResult{
		Record:  &models.OnboardingRecord{RequestID: "LD001", Status: models.OnboardingStatusFormFilling, VerifyLink: "https://verify.example/LD001"},
		Resumed: true,
	}, nil).Once()

	w := f.do(http.MethodPost, "", `{"kind":"individual"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["resumed"])
}

func TestStartOnboardingValidation(t *testing.T) {
	f := newOnboardingFixture(t)

	for _, body := range []string{`{}`, `{"kind":"partnership"}`, `not json`} {
		w := f.do(http.MethodPost, "", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/organizations/not-a-uuid/onboarding", nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOnboardingErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("organization x: %w", onboarding.ErrNotFound), http.StatusNotFound},
		{"forbidden", fmt.Errorf("%w: viewer", onboarding.ErrForbidden), http.StatusForbidden},
		{"conflict", fmt.Errorf("%w: already completed", onboarding.ErrConflict), http.StatusConflict},
		{"invalid", fmt.Errorf("%w: kind", onboarding.ErrInvalidInput), http.StatusBadRequest},
		{"vendor", fmt.Errorf("failed to restart onboarding: %w", &regtank.VendorError{Op: "restart", StatusCode: 422, Code: "ERR_STATE"}), http.StatusBadGateway},
		{"other", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOnboardingFixture(t)
			f.service.On("Retry", mock.Anything, f.userID, f.orgID).Return(nil, tt.err).Once()

			w := f.do(http.MethodPost, "/retry", "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRetryOnboarding(t *testing.T) {
	f := newOnboardingFixture(t)
	f.service.On("Retry", mock.Anything, f.userID, f.orgID).Return(&models.OnboardingRecord{
		RequestID:  "LD002",
		Status:     models.OnboardingStatusInProgress,
		VerifyLink: "https://verify.example/LD002",
	}, nil).Once()

	w := f.do(http.MethodPost, "/retry", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "LD002", decodeBody(t, w)["request_id"])
}

func TestOnboardingStatusEndpoints(t *testing.T) {
	f := newOnboardingFixture(t)
	view := &onboarding.StatusView{
		OrganizationID:   f.orgID,
		OnboardingStatus: models.OnboardingStatusPendingApproval,
		Record:           &onboarding.RecordView{RequestID: "LD001", Status: models.OnboardingStatusLivenessPassed, PayloadCount: 3},
	}
	f.service.On("GetStatus", mock.Anything, f.userID, f.orgID).Return(view, nil).Once()
	f.service.On("SyncStatus", mock.Anything, f.userID, f.orgID).Return(view, nil).Once()

	for _, call := range []struct{ method, path string }{{http.MethodGet, ""}, {http.MethodPost, "/sync"}} {
		w := f.do(call.method, call.path, "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeBody(t, w)
		assert.Equal(t, "PENDING_APPROVAL", resp["onboarding_status"])
		record := resp["record"].(map[string]interface{})
		assert.Equal(t, "LD001", record["request_id"])
		assert.Equal(t, float64(3), record["payload_count"])
	}
}

func TestOnboardingRequiresToken(t *testing.T) {
	f := newOnboardingFixture(t)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/organizations/%s/onboarding", f.orgID), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
