package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/metrics"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/kyc/regtank"
	"github.com/revaspay/onboarding/internal/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// OrchestratorConfig tunes the caller-facing operations
type OrchestratorConfig struct {
	VendorTimeout      time.Duration
	LinkTTL            time.Duration
	WebhookURL         string
	LivenessConfidence int
	ApprovalMode       bool
	SyncConcurrency    int
}

// Orchestrator implements start, retry, status and resync for organizations
type Orchestrator struct {
	records   RecordStore
	orgs      OrganizationStore
	graph     *IdentityMappingGraph
	processor *Processor
	vendor    Vendor
	audit     AuditSink
	locker    Locker
	metrics   *metrics.Metrics
	cfg       OrchestratorConfig
	now       func() time.Time

	vendorConfigured atomic.Bool
	syncGroup        singleflight.Group
}

// Deps bundles the orchestrator's collaborators
type Deps struct {
	Records   RecordStore
	Orgs      OrganizationStore
	Graph     *IdentityMappingGraph
	Processor *Processor
	Vendor    Vendor
	Audit     AuditSink
	Locker    Locker
	Metrics   *metrics.Metrics
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps, cfg OrchestratorConfig) *Orchestrator {
	if cfg.VendorTimeout <= 0 {
		cfg.VendorTimeout = 15 * time.Second
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 72 * time.Hour
	}
	if cfg.SyncConcurrency <= 0 {
		cfg.SyncConcurrency = 4
	}
	return &Orchestrator{
		records:   deps.Records,
		orgs:      deps.Orgs,
		graph:     deps.Graph,
		processor: deps.Processor,
		vendor:    deps.Vendor,
		audit:     deps.Audit,
		locker:    deps.Locker,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       time.Now,
	}
}

// StartResult is returned by Start
type StartResult struct {
	Record  *models.OnboardingRecord
	Resumed bool
}

// RecordView is the caller-facing projection of an onboarding record
type RecordView struct {
	RequestID    string                  `json:"request_id"`
	Kind         models.OnboardingKind   `json:"kind"`
	Status       models.OnboardingStatus `json:"status"`
	Substatus    string                  `json:"substatus,omitempty"`
	VerifyLink   string                  `json:"verify_link,omitempty"`
	ExpiresAt    *time.Time              `json:"verify_link_expires_at,omitempty"`
	SubmittedAt  *time.Time              `json:"submitted_at,omitempty"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
	PayloadCount int                     `json:"payload_count"`
}

// EntityAMLView is one entry of the per-entity AML status list
type EntityAMLView struct {
	VerificationID string          `json:"verification_id"`
	EntityID       *uuid.UUID      `json:"entity_id,omitempty"`
	Status         string          `json:"status"`
	RiskScore      decimal.Decimal `json:"risk_score"`
	RiskLevel      string          `json:"risk_level,omitempty"`
	MessageStatus  string          `json:"message_status,omitempty"`
	LastUpdatedAt  time.Time       `json:"last_updated_at"`
}

// StatusView is the read-only onboarding status of an organization
type StatusView struct {
	OrganizationID   uuid.UUID               `json:"organization_id"`
	OnboardingStatus models.OnboardingStatus `json:"onboarding_status"`
	AMLApproved      bool                    `json:"aml_approved"`
	OnboardedAt      *time.Time              `json:"onboarded_at,omitempty"`
	Record           *RecordView             `json:"record,omitempty"`
	EntityAML        []EntityAMLView         `json:"entity_aml,omitempty"`
}

// Start issues a verify link for the organization, resuming the existing one
// when the flow has not progressed
func (o *Orchestrator) Start(ctx context.Context, callerID, orgID uuid.UUID, kind models.OnboardingKind) (*StartResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown onboarding kind %q", ErrInvalidInput, kind)
	}
	org, err := o.authorize(ctx, callerID, orgID)
	if err != nil {
		return nil, err
	}
	if org.OnboardingStatus == models.OnboardingStatusCompleted {
		return nil, fmt.Errorf("%w: organization %s has already completed onboarding", ErrConflict, orgID)
	}

	// Outside the organization lock so only the create call counts against its lease
	o.ensureVendorConfigured(ctx)

	unlock, err := o.locker.Lock(ctx, organizationLockKey(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock organization: %w", err)
	}
	defer unlock()

	existing, err := o.records.FindByOrganizationID(ctx, orgID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to load onboarding record: %w", err)
	}
	if err != nil {
		existing = nil
	}

	now := o.now()
	if existing != nil && canResume(org, existing, now) {
		o.logAudit(ctx, orgID, &callerID, utils.AuditEventOnboardingResumed, "Existing verify link resumed", map[string]interface{}{
			"request_id": existing.RequestID,
		})
		return &StartResult{Record: existing, Resumed: true}, nil
	}

	resp, err := o.createVendorOnboarding(ctx, org, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to start onboarding: %w", err)
	}

	record := existing
	if record == nil {
		record = &models.OnboardingRecord{}
	}
	record.RequestID = resp.RequestID
	record.ReferenceID = orgID.String()
	record.OrganizationID = orgID
	record.OrganizationKind = org.Kind
	record.OnboardingKind = kind
	record.Status = models.OnboardingStatusInProgress
	record.Substatus = ""
	record.VerifyLink = resp.VerifyLink
	record.VerifyLinkExpiresAt = o.linkExpiry(resp, now)
	record.SubmittedAt = &now
	record.CompletedAt = nil

	if err := o.records.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save onboarding record: %w", err)
	}

	if reopenStatus(org) {
		if err := o.orgs.SaveOrganization(ctx, org); err != nil {
			return nil, fmt.Errorf("failed to update organization: %w", err)
		}
	}

	if kind == models.OnboardingKindCorporate {
		o.recordSubEntities(ctx, org, record, resp)
	}

	o.logAudit(ctx, orgID, &callerID, utils.AuditEventOnboardingStarted, "Onboarding started", map[string]interface{}{
		"request_id": record.RequestID,
		"kind":       string(kind),
	})
	return &StartResult{Record: record}, nil
}

// canResume reports whether the existing verify link may be handed out again
func canResume(org *models.Organization, record *models.OnboardingRecord, now time.Time) bool {
	if org.OnboardingStatus.Rank() > models.OnboardingStatusPendingApproval.Rank() {
		return false
	}
	switch record.Status {
	case models.OnboardingStatusLivenessPassed, models.OnboardingStatusPendingApproval, models.OnboardingStatusApproved:
		return false
	}
	return record.HasUsableLink(now)
}

func reopenStatus(org *models.Organization) bool {
	switch org.OnboardingStatus {
	case models.OnboardingStatusPending, models.OnboardingStatusExpired, models.OnboardingStatusRejected, "":
		org.OnboardingStatus = models.OnboardingStatusInProgress
		return true
	}
	return false
}

func (o *Orchestrator) createVendorOnboarding(ctx context.Context, org *models.Organization, kind models.OnboardingKind) (*regtank.OnboardingResponse, error) {
	vctx, cancel := context.WithTimeout(ctx, o.cfg.VendorTimeout)
	defer cancel()

	if kind == models.OnboardingKindIndividual {
		return o.vendor.CreateIndividualOnboarding(vctx, regtank.IndividualOnboardingRequest{
			ReferenceID:        org.ID.String(),
			Email:              org.ContactEmail,
			FullName:           org.ContactName,
			CountryOfResidence: org.CountryCode,
		})
	}

	entities, err := o.orgs.ListEntities(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization entities: %w", err)
	}
	req := regtank.CorporateOnboardingRequest{
		ReferenceID:            org.ID.String(),
		BusinessName:           org.Name,
		Email:                  org.ContactEmail,
		CountryOfIncorporation: org.CountryCode,
	}
	for _, e := range entities {
		switch e.Kind {
		case models.EntityKindDirector:
			req.Directors = append(req.Directors, regtank.EntityInput{Name: e.Name, Email: e.Email})
		case models.EntityKindIndividualShareholder:
			req.IndividualShareholders = append(req.IndividualShareholders, regtank.EntityInput{Name: e.Name, Email: e.Email})
		case models.EntityKindBusinessShareholder:
			req.BusinessShareholders = append(req.BusinessShareholders, regtank.BusinessEntityInput{BusinessName: e.BusinessName, Email: e.Email})
		}
	}
	return o.vendor.CreateCorporateOnboarding(vctx, req)
}

func (o *Orchestrator) linkExpiry(resp *regtank.OnboardingResponse, now time.Time) *time.Time {
	if resp.ExpiredAt != nil && !resp.ExpiredAt.IsZero() {
		t := *resp.ExpiredAt
		return &t
	}
	t := now.Add(o.cfg.LinkTTL)
	return &t
}

// recordSubEntities stores the sub-entity ids the vendor issued for each
// director and shareholder. Failures are logged; the flow itself has started.
func (o *Orchestrator) recordSubEntities(ctx context.Context, org *models.Organization, record *models.OnboardingRecord, resp *regtank.OnboardingResponse) {
	var inputs []MappingInput
	add := func(kind models.EntityKind, subs []regtank.SubEntity) {
		for _, s := range subs {
			inputs = append(inputs, MappingInput{
				OrganizationID:   org.ID,
				OrganizationKind: org.Kind,
				EntityKind:       kind,
				Name:             s.Name,
				Email:            s.Email,
				BusinessName:     s.BusinessName,
				CODRequestID:     record.RequestID,
				EODRequestID:     s.RequestID,
			})
		}
	}
	add(models.EntityKindDirector, resp.Directors)
	add(models.EntityKindIndividualShareholder, resp.IndividualShareholders)
	add(models.EntityKindBusinessShareholder, resp.BusinessShareholders)
	if len(inputs) == 0 {
		return
	}

	if o.graph != nil {
		res := o.graph.BulkUpsert(ctx, inputs)
		if res.Failed > 0 {
			log.Printf("onboarding: %d of %d identity mappings failed for %s", res.Failed, len(inputs), record.RequestID)
		}
	}

	entities, err := o.orgs.ListEntities(ctx, org.ID)
	if err != nil {
		log.Printf("onboarding: failed to list entities of %s: %v", org.ID, err)
		return
	}
	for i := range entities {
		e := &entities[i]
		key := models.IdentityKeyFor(e.Kind, e.Name, e.Email, e.BusinessName)
		for _, in := range inputs {
			if in.EntityKind != e.Kind || models.IdentityKeyFor(in.EntityKind, in.Name, in.Email, in.BusinessName) != key {
				continue
			}
			if e.SubEntityRequestID == in.EODRequestID {
				break
			}
			e.SubEntityRequestID = in.EODRequestID
			if err := o.orgs.SaveEntity(ctx, e); err != nil {
				log.Printf("onboarding: failed to link entity %s to %s: %v", e.ID, in.EODRequestID, err)
			}
			break
		}
	}
}

// Retry asks the vendor to restart the organization's flow and stores the
// fresh link
func (o *Orchestrator) Retry(ctx context.Context, callerID, orgID uuid.UUID) (*models.OnboardingRecord, error) {
	org, err := o.authorize(ctx, callerID, orgID)
	if err != nil {
		return nil, err
	}
	if org.OnboardingStatus == models.OnboardingStatusCompleted {
		return nil, fmt.Errorf("%w: organization %s has already completed onboarding", ErrConflict, orgID)
	}

	unlock, err := o.locker.Lock(ctx, organizationLockKey(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock organization: %w", err)
	}
	defer unlock()

	record, err := o.records.FindByOrganizationID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("onboarding record for organization %s: %w", orgID, err)
	}
	if record.Status == models.OnboardingStatusCompleted {
		return nil, fmt.Errorf("%w: onboarding %s is already completed", ErrConflict, record.RequestID)
	}

	vctx, cancel := context.WithTimeout(ctx, o.cfg.VendorTimeout)
	resp, err := o.vendor.RestartOnboarding(vctx, vendorKind(record.OnboardingKind), record.RequestID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to restart onboarding: %w", err)
	}

	now := o.now()
	previous := record.RequestID
	if resp.RequestID != "" {
		record.RequestID = resp.RequestID
	}
	if resp.VerifyLink != "" {
		record.VerifyLink = resp.VerifyLink
	}
	record.VerifyLinkExpiresAt = o.linkExpiry(resp, now)
	record.Status = models.OnboardingStatusInProgress
	record.Substatus = ""
	record.SubmittedAt = &now
	record.CompletedAt = nil
	if err := o.records.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save onboarding record: %w", err)
	}

	if reopenStatus(org) {
		if err := o.orgs.SaveOrganization(ctx, org); err != nil {
			return nil, fmt.Errorf("failed to update organization: %w", err)
		}
	}

	o.logAudit(ctx, orgID, &callerID, utils.AuditEventOnboardingRestarted, "Onboarding restarted", map[string]interface{}{
		"previous_request_id": previous,
		"request_id":          record.RequestID,
	})
	return record, nil
}

// SyncStatus polls the vendor for the organization's flow, feeds the answer
// through the webhook pipeline and returns the resulting status
func (o *Orchestrator) SyncStatus(ctx context.Context, callerID, orgID uuid.UUID) (*StatusView, error) {
	if _, err := o.authorize(ctx, callerID, orgID); err != nil {
		return nil, err
	}
	if err := o.ResyncOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return o.statusView(ctx, orgID)
}

// ResyncOrganization polls the vendor without a caller check. It backs
// operator tooling and SyncStatus.
func (o *Orchestrator) ResyncOrganization(ctx context.Context, orgID uuid.UUID) error {
	record, err := o.records.FindByOrganizationID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("onboarding record for organization %s: %w", orgID, err)
	}
	return o.syncRecord(ctx, record)
}

func (o *Orchestrator) syncRecord(ctx context.Context, record *models.OnboardingRecord) error {
	_, err, _ := o.syncGroup.Do(record.RequestID, func() (interface{}, error) {
		vctx, cancel := context.WithTimeout(ctx, o.cfg.VendorTimeout)
		details, err := o.vendor.GetOnboardingDetails(vctx, vendorKind(record.OnboardingKind), record.RequestID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch onboarding details for %s: %w", record.RequestID, err)
		}

		identityKind, screeningKind := EventKindLiveness, EventKindKYC
		if record.OnboardingKind == models.OnboardingKindCorporate {
			identityKind, screeningKind = EventKindCOD, EventKindKYB
		}

		// Screening first so an identity approval lands after AML is recorded
		if details.KYCStatus != "" {
			ev := &Event{
				Kind:          screeningKind,
				Source:        models.PayloadSourcePoll,
				RequestID:     details.KYCRequestID,
				OnboardingID:  record.RequestID,
				ReferenceID:   record.ReferenceID,
				Status:        details.KYCStatus,
				RiskScore:     details.RiskScore,
				RiskLevel:     details.RiskLevel,
				MessageStatus: details.MessageStatus,
				Raw:           details.Raw,
			}
			if _, err := o.processor.Handle(ctx, ev); err != nil {
				return nil, err
			}
		}

		ev := &Event{
			Kind:         identityKind,
			Source:       models.PayloadSourcePoll,
			RequestID:    details.RequestID,
			OnboardingID: record.RequestID,
			ReferenceID:  record.ReferenceID,
			Status:       details.Status,
			Substatus:    details.Substatus,
			Raw:          details.Raw,
		}
		res, err := o.processor.Handle(ctx, ev)
		if err != nil {
			return nil, err
		}
		if res.Previous != res.Status {
			o.logAudit(ctx, record.OrganizationID, nil, utils.AuditEventStatusSynced, "Onboarding status synced from vendor", map[string]interface{}{
				"request_id": record.RequestID,
				"previous":   string(res.Previous),
				"status":     string(res.Status),
			})
		}
		return nil, nil
	})
	return err
}

// GetStatus returns the organization's onboarding status without side effects
func (o *Orchestrator) GetStatus(ctx context.Context, callerID, orgID uuid.UUID) (*StatusView, error) {
	if _, err := o.authorize(ctx, callerID, orgID); err != nil {
		return nil, err
	}
	return o.statusView(ctx, orgID)
}

// StatusOf returns the organization's onboarding status without a caller
// check, for operator tooling
func (o *Orchestrator) StatusOf(ctx context.Context, orgID uuid.UUID) (*StatusView, error) {
	return o.statusView(ctx, orgID)
}

func (o *Orchestrator) statusView(ctx context.Context, orgID uuid.UUID) (*StatusView, error) {
	org, err := o.orgs.FindOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", orgID, err)
	}
	view := &StatusView{
		OrganizationID:   org.ID,
		OnboardingStatus: org.OnboardingStatus,
		AMLApproved:      org.AMLApproved,
		OnboardedAt:      org.OnboardedAt,
	}

	record, err := o.records.FindByOrganizationID(ctx, orgID)
	switch {
	case err == nil:
		rv := &RecordView{
			RequestID:    record.RequestID,
			Kind:         record.OnboardingKind,
			Status:       record.Status,
			Substatus:    record.Substatus,
			SubmittedAt:  record.SubmittedAt,
			CompletedAt:  record.CompletedAt,
			PayloadCount: record.PayloadCount,
		}
		// The link is only useful until the user has passed liveness
		if record.Status.Rank() < models.OnboardingStatusLivenessPassed.Rank() && record.HasUsableLink(o.now()) {
			rv.VerifyLink = record.VerifyLink
			rv.ExpiresAt = record.VerifyLinkExpiresAt
		}
		view.Record = rv
	case !isNotFound(err):
		return nil, fmt.Errorf("failed to load onboarding record: %w", err)
	}

	statuses, err := o.orgs.ListEntityAMLStatuses(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity AML statuses: %w", err)
	}
	for _, s := range statuses {
		view.EntityAML = append(view.EntityAML, EntityAMLView{
			VerificationID: s.VerificationID,
			EntityID:       s.EntityID,
			Status:         s.Status,
			RiskScore:      s.RiskScore,
			RiskLevel:      s.RiskLevel,
			MessageStatus:  s.MessageStatus,
			LastUpdatedAt:  s.LastUpdatedAt,
		})
	}
	return view, nil
}

// staleStatuses are the record statuses still waiting on the vendor
var staleStatuses = []models.OnboardingStatus{
	models.OnboardingStatusInProgress,
	models.OnboardingStatusFormFilling,
	models.OnboardingStatusLivenessPassed,
	models.OnboardingStatusPendingApproval,
	models.OnboardingStatusPendingAML,
	models.OnboardingStatusPendingFinalApproval,
	models.OnboardingStatusApproved,
}

// SyncStale resyncs records that have not changed for olderThan. Individual
// failures are logged; it returns the number of records synced.
func (o *Orchestrator) SyncStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	records, err := o.records.ListStale(ctx, staleStatuses, o.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale records: %w", err)
	}

	var synced atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.SyncConcurrency)
	for i := range records {
		record := &records[i]
		g.Go(func() error {
			if err := o.syncRecord(gctx, record); err != nil {
				log.Printf("onboarding: stale sync of %s failed: %v", record.RequestID, err)
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(synced.Load()), err
	}

	n := int(synced.Load())
	o.metrics.AddSwept(n)
	return n, nil
}

// ConfigureVendor registers the webhook endpoint and flow settings with the
// vendor. Callers treat failures as non-fatal; after a success Start stops
// reconfiguring.
func (o *Orchestrator) ConfigureVendor(ctx context.Context) error {
	vctx, cancel := context.WithTimeout(ctx, o.cfg.VendorTimeout)
	defer cancel()

	var errs []error
	if o.cfg.WebhookURL != "" {
		if err := o.vendor.SetWebhookPreferences(vctx, regtank.WebhookPreferences{WebhookURL: o.cfg.WebhookURL, WebhookEnabled: true}); err != nil {
			errs = append(errs, err)
		}
	}
	settings := regtank.OnboardingSettings{
		LivenessConfidence: o.cfg.LivenessConfidence,
		ApprovalMode:       o.cfg.ApprovalMode,
		LinkTTLHours:       int(o.cfg.LinkTTL / time.Hour),
	}
	for _, kind := range []regtank.Kind{regtank.KindIndividual, regtank.KindCorporate} {
		if err := o.vendor.SetOnboardingSettings(vctx, kind, settings); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	o.vendorConfigured.Store(true)
	return nil
}

func (o *Orchestrator) ensureVendorConfigured(ctx context.Context) {
	if o.vendorConfigured.Load() {
		return
	}
	if err := o.ConfigureVendor(ctx); err != nil {
		log.Printf("onboarding: vendor configuration failed, continuing: %v", err)
	}
}

// authorize loads the organization and checks the caller may administer it
func (o *Orchestrator) authorize(ctx context.Context, callerID, orgID uuid.UUID) (*models.Organization, error) {
	org, err := o.orgs.FindOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", orgID, err)
	}
	if org.OwnerUserID == callerID {
		return org, nil
	}

	role, err := o.orgs.MemberRole(ctx, orgID, callerID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: user %s is not a member of organization %s", ErrForbidden, callerID, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !role.CanAdminister() {
		return nil, fmt.Errorf("%w: role %s cannot manage onboarding", ErrForbidden, role)
	}
	return org, nil
}

func (o *Orchestrator) logAudit(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, eventType utils.AuditEventType, description string, details map[string]interface{}) {
	if o.audit == nil {
		return
	}
	if err := o.audit.LogOrganizationEvent(ctx, orgID, userID, eventType, description, details); err != nil {
		log.Printf("onboarding: failed to write %s audit entry for organization %s: %v", eventType, orgID, err)
	}
}

func vendorKind(kind models.OnboardingKind) regtank.Kind {
	if kind == models.OnboardingKindCorporate {
		return regtank.KindCorporate
	}
	return regtank.KindIndividual
}
