package onboarding

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/lock"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/kyc/regtank"
	"github.com/revaspay/onboarding/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestIndividualOnboardingToCompletion(t *testing.T) {
	env := newTestEnv(t)
	org, owner := env.seedOrg(models.OrganizationKindInvestor)
	env.vendor.On("CreateIndividualOnboarding", mock.Anything, mock.MatchedBy(func(req regtank.IndividualOnboardingRequest) bool {
		return req.ReferenceID == org.ID.String() && req.Email == "jane@x.com"
	})).Return(&regtank.OnboardingResponse{RequestID: "LD001", VerifyLink: "https://verify.example/LD001"}, nil).Once()

	started, err := env.orchestrator.Start(context.Background(), owner, org.ID, models.OnboardingKindIndividual)
	require.NoError(t, err)
	assert.False(t, started.Resumed)
	assert.Equal(t, models.OnboardingStatusInProgress, env.record(t, org.ID).Status)

	env.deliver(t, EventKindLiveness, map[string]interface{}{
		"requestId": "LV9", "onboardingId": "LD001", "status": "LIVENESS_PASSED",
	})
	assert.Equal(t, models.OnboardingStatusPendingApproval, env.org(t, org.ID).OnboardingStatus)
	assert.Contains(t, env.store.AuditEvents(org.ID), utils.AuditEventFormFilled)

	res := env.deliver(t, EventKindLiveness, map[string]interface{}{
		"requestId": "LV9", "onboardingId": "LD001", "status": "APPROVED",
	})
	assert.Equal(t, ResultResolved, res.Outcome)
	assert.Equal(t, MatchRequestID, res.Via)

	final := env.org(t, org.ID)
	assert.Equal(t, models.OnboardingStatusCompleted, final.OnboardingStatus)
	assert.NotNil(t, final.OnboardedAt)
	assert.Equal(t, models.OnboardingStatusPendingAML, env.record(t, org.ID).Status)

	slots := env.store.AccountSlots(owner)
	require.Len(t, slots, 1)
	assert.False(t, slots[0].Placeholder)
	require.NotNil(t, slots[0].OrganizationID)
	assert.Equal(t, org.ID, *slots[0].OrganizationID)
	assert.Contains(t, env.store.AuditEvents(org.ID), utils.AuditEventOnboardingCompleted)
}

func TestDuplicateDirectorsConvergeOnKYCResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org, _ := env.seedOrg(models.OrganizationKindIssuer)
	env.seedRecord(t, org, models.OnboardingKindCorporate, "COD001", models.OnboardingStatusInProgress)

	_, err := env.graph.UpsertMapping(ctx, janeDirector(org.ID, "COD001", "EOD001"))
	require.NoError(t, err)
	_, err = env.graph.UpsertMapping(ctx, janeDirector(org.ID, "COD002", "EOD002"))
	require.NoError(t, err)

	res := env.deliver(t, EventKindKYC, map[string]interface{}{
		"requestId": "KYC12345", "onboardingId": "EOD001", "status": "APPROVED", "riskScore": 10,
	})
	assert.Equal(t, ResultSubEntity, res.Outcome)
	assert.Equal(t, MatchSubEntityIndex, res.Via)

	mappings, err := env.store.ListMappings(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	for _, m := range mappings {
		assert.Equal(t, "KYC12345", m.KYCID, m.EODRequestID)
	}

	status, err := env.store.FindEntityAMLStatus(ctx, org.ID, "KYC12345")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", status.Status)
	assert.Equal(t, "10", status.RiskScore.String())

	// Sub-entity events never move the parent record or the organization
	assert.Equal(t, models.OnboardingStatusInProgress, env.record(t, org.ID).Status)
	assert.False(t, env.org(t, org.ID).AMLApproved)
}

func TestUnresolvedEventMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	org, _ := env.seedOrg(models.OrganizationKindInvestor)
	env.seedRecord(t, org, models.OnboardingKindIndividual, "LD001", models.OnboardingStatusInProgress)

	res := env.deliver(t, EventKindLiveness, map[string]interface{}{
		"requestId": "LV1", "onboardingId": "LD999", "status": "APPROVED",
	})

	assert.Equal(t, ResultUnresolved, res.Outcome)
	record := env.record(t, org.ID)
	assert.Equal(t, models.OnboardingStatusInProgress, record.Status)
	assert.Zero(t, record.PayloadCount)
	assert.Equal(t, models.OnboardingStatusPending, env.org(t, org.ID).OnboardingStatus)
	assert.Empty(t, env.store.AuditEvents(org.ID))
}

func TestSubEntityFallsBackToHistoryScan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org, _ := env.seedOrg(models.OrganizationKindIssuer)
	env.seedRecord(t, org, models.OnboardingKindCorporate, "COD001", models.OnboardingStatusInProgress)
	env.store.SaveEntity(ctx, &models.OrganizationEntity{
		OrganizationID: org.ID,
		Kind:           models.EntityKindDirector,
		Name:           "Ken Lee",
		Email:          "ken@x.com",
	})

	// Parent event lists the sub-entity as a bare id, so no mapping exists
	env.deliver(t, EventKindCOD, map[string]interface{}{
		"requestId": "COD001", "onboardingId": "COD001", "status": "PROCESSING",
		"directors": []interface{}{"EOD02188"},
	})

	res := env.deliver(t, EventKindKYC, map[string]interface{}{
		"requestId": "KYC777", "onboardingId": "EOD02188", "status": "WAIT_FOR_APPROVAL", "riskLevel": "HIGH",
	})

	assert.Equal(t, ResultSubEntity, res.Outcome)
	assert.Equal(t, MatchHistoryScan, res.Via)
	assert.Equal(t, "COD001", res.RequestID)

	payloads, err := env.store.ListPayloads(ctx, env.record(t, org.ID).ID)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, 2, payloads[1].Sequence)
	assert.Contains(t, string(payloads[1].Payload), "KYC777")

	status, err := env.store.FindEntityAMLStatus(ctx, org.ID, "KYC777")
	require.NoError(t, err)
	assert.Equal(t, "HIGH", status.RiskLevel)
	assert.Nil(t, status.EntityID)
}

func TestSubEntityBackfillsEntity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org, _ := env.seedOrg(models.OrganizationKindIssuer)
	env.seedRecord(t, org, models.OnboardingKindCorporate, "COD001", models.OnboardingStatusInProgress)
	entity := &models.OrganizationEntity{
		OrganizationID:     org.ID,
		Kind:               models.EntityKindDirector,
		Name:               "Jane Tan",
		Email:              "jane@x.com",
		SubEntityRequestID: "EOD001",
	}
	require.NoError(t, env.store.SaveEntity(ctx, entity))
	_, err := env.graph.UpsertMapping(ctx, janeDirector(org.ID, "COD001", "EOD001"))
	require.NoError(t, err)

	env.deliver(t, EventKindKYC, map[string]interface{}{
		"requestId": "KYC12345", "onboardingId": "EOD001", "status": "APPROVED",
	})

	got, err := env.store.FindEntityBySubEntityID(ctx, org.ID, "EOD001")
	require.NoError(t, err)
	assert.Equal(t, "KYC12345", got.VerificationID)

	status, err := env.store.FindEntityAMLStatus(ctx, org.ID, "KYC12345")
	require.NoError(t, err)
	require.NotNil(t, status.EntityID)
	assert.Equal(t, entity.ID, *status.EntityID)
}

func TestReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	org, _ := env.seedOrg(models.OrganizationKindInvestor)
	env.seedRecord(t, org, models.OnboardingKindIndividual, "LD001", models.OnboardingStatusInProgress)

	events := []struct {
		kind    EventKind
		payload map[string]interface{}
	}{
		{EventKindLiveness, map[string]interface{}{"onboardingId": "LD001", "status": "LIVENESS_PASSED"}},
		{EventKindKYC, map[string]interface{}{"requestId": "KYC1", "onboardingId": "LD001", "status": "APPROVED"}},
	}

	type snapshot struct {
		record models.OnboardingStatus
		org    models.OnboardingStatus
		aml    bool
		audit  int
	}
	take := func() snapshot {
		o := env.org(t, org.ID)
		return snapshot{env.record(t, org.ID).Status, o.OnboardingStatus, o.AMLApproved, len(env.store.AuditEvents(org.ID))}
	}

	for _, ev := range events {
		env.deliver(t, ev.kind, ev.payload)
	}
	once := take()
	assert.Equal(t, models.OnboardingStatusApproved, once.record)
	assert.Equal(t, models.OnboardingStatusPendingFinalApproval, once.org)
	assert.True(t, once.aml)

	for i := 0; i < 3; i++ {
		for _, ev := range events {
			env.deliver(t, ev.kind, ev.payload)
		}
	}
	assert.Equal(t, once, take())
	assert.Equal(t, 8, env.record(t, org.ID).PayloadCount)
}

func TestRejectedRecordIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	org, owner := env.seedOrg(models.OrganizationKindInvestor)
	env.seedRecord(t, org, models.OnboardingKindIndividual, "LD001", models.OnboardingStatusPendingApproval)

	env.deliver(t, EventKindKYC, map[string]interface{}{"requestId": "KYC1", "onboardingId": "LD001", "status": "REJECTED"})
	record := env.record(t, org.ID)
	assert.Equal(t, models.OnboardingStatusRejected, record.Status)
	assert.NotNil(t, record.CompletedAt)
	assert.Equal(t, models.OnboardingStatusRejected, env.org(t, org.ID).OnboardingStatus)

	res := env.deliver(t, EventKindLiveness, map[string]interface{}{"onboardingId": "LD001", "status": "APPROVED"})
	assert.Equal(t, OutcomeTerminal, res.Decision.Outcome)
	assert.Equal(t, models.OnboardingStatusRejected, env.record(t, org.ID).Status)
	assert.Equal(t, models.OnboardingStatusRejected, env.org(t, org.ID).OnboardingStatus)
	assert.True(t, env.store.AccountSlots(owner)[0].Placeholder)
}

func TestCorporateRejectionLeavesOrganization(t *testing.T) {
	env := newTestEnv(t)
	org, _ := env.seedOrg(models.OrganizationKindIssuer)
	env.seedRecord(t, org, models.OnboardingKindCorporate, "COD001", models.OnboardingStatusPendingApproval)
	o := env.org(t, org.ID)
	o.OnboardingStatus = models.OnboardingStatusPendingApproval
	require.NoError(t, env.store.SaveOrganization(context.Background(), o))

	env.deliver(t, EventKindKYB, map[string]interface{}{"requestId": "KYB1", "onboardingId": "COD001", "status": "REJECTED"})

	assert.Equal(t, models.OnboardingStatusRejected, env.record(t, org.ID).Status)
	assert.Equal(t, models.OnboardingStatusPendingApproval, env.org(t, org.ID).OnboardingStatus)
	assert.Contains(t, env.store.AuditEvents(org.ID), utils.AuditEventOnboardingRejected)
}

func TestOutOfOrderApprovalsStillComplete(t *testing.T) {
	env := newTestEnv(t)
	org, _ := env.seedOrg(models.OrganizationKindInvestor)
	env.seedRecord(t, org, models.OnboardingKindIndividual, "LD001", models.OnboardingStatusPendingApproval)

	env.deliver(t, EventKindKYC, map[string]interface{}{"requestId": "KYC1", "onboardingId": "LD001", "status": "APPROVED"})
	res := env.deliver(t, EventKindLiveness, map[string]interface{}{"onboardingId": "LD001", "status": "APPROVED"})

	assert.Equal(t, OutcomeHeld, res.Decision.Outcome)
	assert.Equal(t, models.OnboardingStatusApproved, env.record(t, org.ID).Status)
	final := env.org(t, org.ID)
	assert.Equal(t, models.OnboardingStatusCompleted, final.OnboardingStatus)
	assert.True(t, final.AMLApproved)
}

func TestStaleRequestIsHistoryOnly(t *testing.T) {
	env := newTestEnv(t)
	org, _ := env.seedOrg(models.OrganizationKindInvestor)
	env.seedRecord(t, org, models.OnboardingKindIndividual, "LD002", models.OnboardingStatusInProgress)

	res := env.deliver(t, EventKindLiveness, map[string]interface{}{
		"onboardingId": "LD001", "referenceId": org.ID.String(), "status": "REJECTED",
	})

	assert.Equal(t, ResultStale, res.Outcome)
	record := env.record(t, org.ID)
	assert.Equal(t, models.OnboardingStatusInProgress, record.Status)
	assert.Equal(t, 1, record.PayloadCount)
}

func TestUnknownOrganizationForMapping(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.graph.UpsertMapping(context.Background(), janeDirector(uuid.New(), "COD001", "EOD001"))
	require.NoError(t, err)

	res := env.deliver(t, EventKindKYC, map[string]interface{}{"requestId": "KYC1", "onboardingId": "EOD001", "status": "APPROVED"})
	assert.Equal(t, ResultUnresolved, res.Outcome)
}

// holdTracker records how many callers hold the same key at once
type holdTracker struct {
	inner *lock.Local

	mu      sync.Mutex
	active  map[string]int
	maxHeld int
}

func (h *holdTracker) Lock(ctx context.Context, key string) (func(), error) {
	unlock, err := h.inner.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.active[key]++
	if h.active[key] > h.maxHeld {
		h.maxHeld = h.active[key]
	}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.active[key]--
		h.mu.Unlock()
		unlock()
	}, nil
}

func TestConcurrentEventsOnOneRecordAreSerialized(t *testing.T) {
	store := NewMemoryStore()
	graph := NewIdentityMappingGraph(store)
	tracker := &holdTracker{inner: lock.NewLocal(), active: make(map[string]int)}
	processor := NewProcessor(store, NewCorrelator(store, store), NewEffectApplier(store, store, graph), graph, tracker, nil)
	env := &testEnv{store: store, graph: graph, processor: processor}

	ctx := context.Background()
	org, _ := env.seedOrg(models.OrganizationKindInvestor)
	env.seedRecord(t, org, models.OnboardingKindIndividual, "LD001", models.OnboardingStatusInProgress)

	deliveries := []struct {
		kind EventKind
		body string
	}{
		{EventKindLiveness, `{"requestId":"LV1","onboardingId":"LD001","status":"PROCESSING"}`},
		{EventKindLiveness, `{"requestId":"LV1","onboardingId":"LD001","status":"LIVENESS_PASSED"}`},
		{EventKindLiveness, `{"requestId":"LV1","onboardingId":"LD001","status":"WAIT_FOR_APPROVAL"}`},
		{EventKindKYC, `{"requestId":"KYC1","onboardingId":"LD001","status":"APPROVED"}`},
	}
	const rounds = 10

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		for _, d := range deliveries {
			wg.Add(1)
			go func(kind EventKind, body string) {
				defer wg.Done()
				ev, err := ParseEvent(kind, []byte(body))
				if !assert.NoError(t, err) {
					return
				}
				res, err := processor.Handle(ctx, ev)
				if assert.NoError(t, err) {
					assert.Equal(t, ResultResolved, res.Outcome)
				}
			}(d.kind, d.body)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, tracker.maxHeld)

	record := env.record(t, org.ID)
	assert.Equal(t, models.OnboardingStatusApproved, record.Status)
	assert.Equal(t, rounds*len(deliveries), record.PayloadCount)

	payloads, err := store.ListPayloads(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, payloads, rounds*len(deliveries))
	for i, p := range payloads {
		assert.Equal(t, i+1, p.Sequence)
	}

	final := env.org(t, org.ID)
	assert.Equal(t, models.OnboardingStatusPendingFinalApproval, final.OnboardingStatus)
	assert.True(t, final.AMLApproved)
}
