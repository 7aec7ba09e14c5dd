package onboarding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/kyc/regtank"
	"github.com/revaspay/onboarding/internal/utils"
)

// RecordStore persists onboarding records and their payload history
type RecordStore interface {
	FindByRequestID(ctx context.Context, requestID string) (*models.OnboardingRecord, error)
	FindByReferenceID(ctx context.Context, referenceID string) (*models.OnboardingRecord, error)
	FindByOrganizationID(ctx context.Context, orgID uuid.UUID) (*models.OnboardingRecord, error)
	// FindCorporateBySubEntityID scans corporate records' payload history for a
	// parent event that lists the sub-entity id.
	FindCorporateBySubEntityID(ctx context.Context, subEntityID string) (*models.OnboardingRecord, error)
	// Upsert creates the record or replaces the row with the same reference id.
	Upsert(ctx context.Context, record *models.OnboardingRecord) error
	Save(ctx context.Context, record *models.OnboardingRecord) error
	// AppendPayload adds the next history entry and bumps record.PayloadCount.
	AppendPayload(ctx context.Context, record *models.OnboardingRecord, payload *models.OnboardingPayload) error
	ListPayloads(ctx context.Context, recordID uuid.UUID) ([]models.OnboardingPayload, error)
	// ListStale skips records whose organization is COMPLETED or REJECTED.
	ListStale(ctx context.Context, statuses []models.OnboardingStatus, updatedBefore time.Time, limit int) ([]models.OnboardingRecord, error)
}

// OrganizationStore persists organization approval state
type OrganizationStore interface {
	FindOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	MemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.MemberRole, error)
	SaveOrganization(ctx context.Context, org *models.Organization) error

	ListEntities(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationEntity, error)
	FindEntityBySubEntityID(ctx context.Context, orgID uuid.UUID, subEntityID string) (*models.OrganizationEntity, error)
	FindEntityByVerificationID(ctx context.Context, orgID uuid.UUID, verificationID string) (*models.OrganizationEntity, error)
	SaveEntity(ctx context.Context, entity *models.OrganizationEntity) error

	FindEntityAMLStatus(ctx context.Context, orgID uuid.UUID, verificationID string) (*models.EntityAMLStatus, error)
	UpsertEntityAMLStatus(ctx context.Context, status *models.EntityAMLStatus) error
	ListEntityAMLStatuses(ctx context.Context, orgID uuid.UUID) ([]models.EntityAMLStatus, error)

	// ReplacePlaceholderSlot fills the user's first placeholder account slot
	// with orgID. It reports false when the org is already listed or no
	// placeholder is left.
	ReplacePlaceholderSlot(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// MappingStore persists identity mappings
type MappingStore interface {
	FindMappingByEODRequestID(ctx context.Context, eodRequestID string) (*models.IdentityMapping, error)
	ListMappingsByIdentityKey(ctx context.Context, orgID uuid.UUID, identityKey string) ([]models.IdentityMapping, error)
	ListMappings(ctx context.Context, orgID uuid.UUID) ([]models.IdentityMapping, error)
	CreateMapping(ctx context.Context, mapping *models.IdentityMapping) error
	SaveMapping(ctx context.Context, mapping *models.IdentityMapping) error
}

// AuditSink records organization audit events
type AuditSink interface {
	LogOrganizationEvent(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, eventType utils.AuditEventType, description string, details map[string]interface{}) error
}

// Locker serializes work on a key. The returned unlock func must be called
// exactly once. Implementations live in internal/lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Vendor is the verification vendor API
type Vendor interface {
	CreateIndividualOnboarding(ctx context.Context, req regtank.IndividualOnboardingRequest) (*regtank.OnboardingResponse, error)
	CreateCorporateOnboarding(ctx context.Context, req regtank.CorporateOnboardingRequest) (*regtank.OnboardingResponse, error)
	GetOnboardingDetails(ctx context.Context, kind regtank.Kind, requestID string) (*regtank.OnboardingDetails, error)
	RestartOnboarding(ctx context.Context, kind regtank.Kind, requestID string) (*regtank.OnboardingResponse, error)
	SetWebhookPreferences(ctx context.Context, prefs regtank.WebhookPreferences) error
	SetOnboardingSettings(ctx context.Context, kind regtank.Kind, settings regtank.OnboardingSettings) error
}

func organizationLockKey(orgID uuid.UUID) string {
	return "onboarding:org:" + orgID.String()
}
