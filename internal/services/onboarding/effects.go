package onboarding

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/utils"
	"gorm.io/datatypes"
)

// EffectApplier applies state machine decisions to organization and entity
// approval state
type EffectApplier struct {
	orgs  OrganizationStore
	audit AuditSink
	graph *IdentityMappingGraph
	now   func() time.Time
}

// NewEffectApplier creates an applier. audit may be nil.
func NewEffectApplier(orgs OrganizationStore, audit AuditSink, graph *IdentityMappingGraph) *EffectApplier {
	return &EffectApplier{orgs: orgs, audit: audit, graph: graph, now: time.Now}
}

type auditEntry struct {
	eventType   utils.AuditEventType
	description string
	details     map[string]interface{}
}

// Apply applies the decision's effects. Organization status only moves
// forward and never leaves a terminal status, so replays are no-ops.
func (a *EffectApplier) Apply(ctx context.Context, record *models.OnboardingRecord, decision Decision, ev *Event) error {
	eff := decision.Effects
	if !eff.Any() {
		return nil
	}

	org, err := a.orgs.FindOrganization(ctx, record.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to load organization %s: %w", record.OrganizationID, err)
	}

	now := a.now()
	dirty := false
	var entries []auditEntry
	details := map[string]interface{}{
		"request_id":    record.RequestID,
		"event_kind":    string(ev.Kind),
		"vendor_status": ev.Status,
	}

	if eff.LivenessCompleted && advanceStatus(org, models.OnboardingStatusPendingApproval) {
		dirty = true
		entries = append(entries, auditEntry{utils.AuditEventFormFilled, "Verification form and liveness check completed", details})
	}

	if eff.AMLApproved {
		flagChanged := !org.AMLApproved
		org.AMLApproved = true
		statusChanged := advanceStatus(org, decision.AMLOrgStatus)
		if len(ev.Raw) > 0 {
			org.LastVerificationResponse = datatypes.JSON(ev.Raw)
		}
		dirty = true
		if flagChanged || statusChanged {
			entries = append(entries, auditEntry{utils.AuditEventAMLApproved, "AML screening approved", details})
		}
	}

	if eff.OnboardingCompleted {
		if advanceStatus(org, models.OnboardingStatusCompleted) {
			org.OnboardedAt = &now
			dirty = true
			entries = append(entries, auditEntry{utils.AuditEventOnboardingCompleted, "Onboarding completed", details})
		}
	}

	if eff.Rejected {
		if record.OnboardingKind == models.OnboardingKindIndividual {
			if advanceStatus(org, models.OnboardingStatusRejected) {
				dirty = true
				entries = append(entries, auditEntry{utils.AuditEventOnboardingRejected, "Onboarding rejected", details})
			}
		} else if decision.Changed() {
			// Corporate rejections are left for manual review
			entries = append(entries, auditEntry{utils.AuditEventOnboardingRejected, "Corporate onboarding rejected, pending manual review", details})
		}
	}

	if dirty {
		if err := a.orgs.SaveOrganization(ctx, org); err != nil {
			return fmt.Errorf("failed to save organization %s: %w", org.ID, err)
		}
	}

	if eff.OnboardingCompleted && org.OnboardingStatus == models.OnboardingStatusCompleted {
		replaced, err := a.orgs.ReplacePlaceholderSlot(ctx, org.OwnerUserID, org.ID)
		if err != nil {
			return fmt.Errorf("failed to replace placeholder slot: %w", err)
		}
		if replaced {
			log.Printf("onboarding: organization %s added to account list of user %s", org.ID, org.OwnerUserID)
		}
	}

	for _, e := range entries {
		a.logAudit(ctx, org.ID, e)
	}
	return nil
}

// SyncSubEntity records a screening result for a director or shareholder of
// a corporate record and converges the identity mappings for it
func (a *EffectApplier) SyncSubEntity(ctx context.Context, record *models.OnboardingRecord, subEntityID string, ev *Event) error {
	orgID := record.OrganizationID
	verificationID := ev.RequestID

	entity, err := a.orgs.FindEntityBySubEntityID(ctx, orgID, subEntityID)
	if isNotFound(err) && verificationID != "" {
		entity, err = a.orgs.FindEntityByVerificationID(ctx, orgID, verificationID)
	}
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to find entity for %s: %w", subEntityID, err)
	}
	if isNotFound(err) {
		entity = nil
	}

	if entity != nil {
		changed := false
		if entity.VerificationID == "" && verificationID != "" {
			entity.VerificationID = verificationID
			changed = true
		}
		if entity.SubEntityRequestID == "" {
			entity.SubEntityRequestID = subEntityID
			changed = true
		}
		if changed {
			if err := a.orgs.SaveEntity(ctx, entity); err != nil {
				return fmt.Errorf("failed to backfill entity %s: %w", entity.ID, err)
			}
		}
	}

	if ev.Kind.Channel() == ChannelScreening && verificationID != "" {
		updated, err := a.upsertAMLStatus(ctx, orgID, verificationID, entity, ev)
		if err != nil {
			return err
		}
		if updated {
			a.logAudit(ctx, orgID, auditEntry{utils.AuditEventEntityAMLUpdated, "Entity AML status updated", map[string]interface{}{
				"sub_entity_id":   subEntityID,
				"verification_id": verificationID,
				"status":          ev.Status,
			}})
		}
	}

	if a.graph != nil && ev.Kind.Channel() == ChannelScreening {
		if err := a.graph.ResolveSubEntity(ctx, orgID, subEntityID, verificationID); err != nil {
			return fmt.Errorf("failed to converge identity mappings: %w", err)
		}
	}
	return nil
}

func (a *EffectApplier) upsertAMLStatus(ctx context.Context, orgID uuid.UUID, verificationID string, entity *models.OrganizationEntity, ev *Event) (bool, error) {
	current, err := a.orgs.FindEntityAMLStatus(ctx, orgID, verificationID)
	if err != nil && !isNotFound(err) {
		return false, fmt.Errorf("failed to load entity AML status: %w", err)
	}
	if isNotFound(err) {
		current = &models.EntityAMLStatus{OrganizationID: orgID, VerificationID: verificationID}
	}

	next := *current
	if entity != nil {
		id := entity.ID
		next.EntityID = &id
	}
	if ev.Status != "" {
		next.Status = ev.Status
	}
	if ev.RiskScore != nil {
		next.RiskScore = *ev.RiskScore
	}
	if ev.RiskLevel != "" {
		next.RiskLevel = ev.RiskLevel
	}
	if ev.MessageStatus != "" {
		next.MessageStatus = ev.MessageStatus
	}

	if current.ID != uuid.Nil && sameAMLStatus(*current, next) {
		return false, nil
	}
	next.LastUpdatedAt = a.now()
	if err := a.orgs.UpsertEntityAMLStatus(ctx, &next); err != nil {
		return false, fmt.Errorf("failed to upsert entity AML status: %w", err)
	}
	return true, nil
}

func sameAMLStatus(a, b models.EntityAMLStatus) bool {
	sameEntity := (a.EntityID == nil && b.EntityID == nil) ||
		(a.EntityID != nil && b.EntityID != nil && *a.EntityID == *b.EntityID)
	return sameEntity &&
		a.Status == b.Status &&
		a.RiskScore.Equal(b.RiskScore) &&
		a.RiskLevel == b.RiskLevel &&
		a.MessageStatus == b.MessageStatus
}

// advanceStatus moves org forward to target. It reports whether anything changed.
func advanceStatus(org *models.Organization, target models.OnboardingStatus) bool {
	if target == "" || org.OnboardingStatus.IsTerminal() {
		return false
	}
	if target.Rank() <= org.OnboardingStatus.Rank() {
		return false
	}
	org.OnboardingStatus = target
	return true
}

func (a *EffectApplier) logAudit(ctx context.Context, orgID uuid.UUID, e auditEntry) {
	if a.audit == nil {
		return
	}
	if err := a.audit.LogOrganizationEvent(ctx, orgID, nil, e.eventType, e.description, e.details); err != nil {
		log.Printf("onboarding: failed to write %s audit entry for organization %s: %v", e.eventType, orgID, err)
	}
}
