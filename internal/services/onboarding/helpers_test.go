package onboarding

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/revaspay/onboarding/internal/lock"
	"github.com/revaspay/onboarding/internal/metrics"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/kyc/regtank"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVendor is a mock implementation of the Vendor interface
type MockVendor struct {
	mock.Mock
}

func (m *MockVendor) CreateIndividualOnboarding(ctx context.Context, req regtank.IndividualOnboardingRequest) (*regtank.OnboardingResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*regtank.OnboardingResponse), args.Error(1)
}

func (m *MockVendor) CreateCorporateOnboarding(ctx context.Context, req regtank.CorporateOnboardingRequest) (*regtank.OnboardingResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*regtank.OnboardingResponse), args.Error(1)
}

func (m *MockVendor) GetOnboardingDetails(ctx context.Context, kind regtank.Kind, requestID string) (*regtank.OnboardingDetails, error) {
	args := m.Called(ctx, kind, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*regtank.OnboardingDetails), args.Error(1)
}

func (m *MockVendor) RestartOnboarding(ctx context.Context, kind regtank.Kind, requestID string) (*regtank.OnboardingResponse, error) {
	args := m.Called(ctx, kind, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*regtank.OnboardingResponse), args.Error(1)
}

func (m *MockVendor) SetWebhookPreferences(ctx context.Context, prefs regtank.WebhookPreferences) error {
	return m.Called(ctx, prefs).Error(0)
}

func (m *MockVendor) SetOnboardingSettings(ctx context.Context, kind regtank.Kind, settings regtank.OnboardingSettings) error {
	return m.Called(ctx, kind, settings).Error(0)
}

type testEnv struct {
	store        *MemoryStore
	vendor       *MockVendor
	graph        *IdentityMappingGraph
	processor    *Processor
	orchestrator *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := NewMemoryStore()
	vendor := &MockVendor{}
	vendor.On("SetWebhookPreferences", mock.Anything, mock.Anything).Return(nil).Maybe()
	vendor.On("SetOnboardingSettings", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	m := metrics.New(prometheus.NewRegistry())
	graph := NewIdentityMappingGraph(store)
	applier := NewEffectApplier(store, store, graph)
	locker := lock.NewLocal()
	processor := NewProcessor(store, NewCorrelator(store, store), applier, graph, locker, m)
	orch := NewOrchestrator(Deps{
		Records:   store,
		Orgs:      store,
		Graph:     graph,
		Processor: processor,
		Vendor:    vendor,
		Audit:     store,
		Locker:    locker,
		Metrics:   m,
	}, OrchestratorConfig{VendorTimeout: time.Second, LinkTTL: time.Hour, WebhookURL: "https://api.example/webhooks"})

	t.Cleanup(func() { vendor.AssertExpectations(t) })
	return &testEnv{store: store, vendor: vendor, graph: graph, processor: processor, orchestrator: orch}
}

func (e *testEnv) seedOrg(kind models.OrganizationKind) (*models.Organization, uuid.UUID) {
	owner := uuid.New()
	org := &models.Organization{
		Base:         models.Base{ID: uuid.New()},
		Name:         "Acme Holdings",
		Kind:         kind,
		OwnerUserID:  owner,
		ContactName:  "Jane Tan",
		ContactEmail: "jane@x.com",
		CountryCode:  "SG",
	}
	e.store.CreateOrganization(org)
	e.store.AddMember(org.ID, owner, models.MemberRoleOwner)
	e.store.AddAccountSlot(models.UserAccountSlot{UserID: owner, Position: 0, Placeholder: true})
	return org, owner
}

func (e *testEnv) seedRecord(t *testing.T, org *models.Organization, kind models.OnboardingKind, requestID string, status models.OnboardingStatus) *models.OnboardingRecord {
	t.Helper()
	expires := time.Now().Add(time.Hour)
	record := &models.OnboardingRecord{
		RequestID:           requestID,
		ReferenceID:         org.ID.String(),
		OrganizationID:      org.ID,
		OrganizationKind:    org.Kind,
		OnboardingKind:      kind,
		Status:              status,
		VerifyLink:          "https://verify.example/" + requestID,
		VerifyLinkExpiresAt: &expires,
	}
	require.NoError(t, e.store.Upsert(context.Background(), record))
	return record
}

func (e *testEnv) org(t *testing.T, id uuid.UUID) *models.Organization {
	t.Helper()
	org, err := e.store.FindOrganization(context.Background(), id)
	require.NoError(t, err)
	return org
}

func (e *testEnv) record(t *testing.T, orgID uuid.UUID) *models.OnboardingRecord {
	t.Helper()
	record, err := e.store.FindByOrganizationID(context.Background(), orgID)
	require.NoError(t, err)
	return record
}

func (e *testEnv) deliver(t *testing.T, kind EventKind, payload map[string]interface{}) *Result {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	ev, err := ParseEvent(kind, body)
	require.NoError(t, err)
	res, err := e.processor.Handle(context.Background(), ev)
	require.NoError(t, err)
	return res
}
