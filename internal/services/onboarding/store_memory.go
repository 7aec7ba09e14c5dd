package onboarding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/utils"
)

// MemoryStore is an in-process implementation of every onboarding store.
// It backs tests and the server's memory driver for local development.
type MemoryStore struct {
	mu sync.RWMutex

	records  map[uuid.UUID]models.OnboardingRecord
	payloads map[uuid.UUID][]models.OnboardingPayload
	orgs     map[uuid.UUID]models.Organization
	members  map[[2]uuid.UUID]models.MemberRole
	entities map[uuid.UUID]models.OrganizationEntity
	aml      map[string]models.EntityAMLStatus
	mappings map[uuid.UUID]models.IdentityMapping
	slots    map[uuid.UUID][]models.UserAccountSlot
	audit    []utils.AuditLog
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[uuid.UUID]models.OnboardingRecord),
		payloads: make(map[uuid.UUID][]models.OnboardingPayload),
		orgs:     make(map[uuid.UUID]models.Organization),
		members:  make(map[[2]uuid.UUID]models.MemberRole),
		entities: make(map[uuid.UUID]models.OrganizationEntity),
		aml:      make(map[string]models.EntityAMLStatus),
		mappings: make(map[uuid.UUID]models.IdentityMapping),
		slots:    make(map[uuid.UUID][]models.UserAccountSlot),
	}
}

func touch(base *models.Base, now time.Time) {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
}

// Records

func (s *MemoryStore) findRecord(match func(models.OnboardingRecord) bool) (*models.OnboardingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if match(r) {
			r := r
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByRequestID(ctx context.Context, requestID string) (*models.OnboardingRecord, error) {
	return s.findRecord(func(r models.OnboardingRecord) bool { return r.RequestID == requestID })
}

func (s *MemoryStore) FindByReferenceID(ctx context.Context, referenceID string) (*models.OnboardingRecord, error) {
	return s.findRecord(func(r models.OnboardingRecord) bool { return r.ReferenceID == referenceID })
}

func (s *MemoryStore) FindByOrganizationID(ctx context.Context, orgID uuid.UUID) (*models.OnboardingRecord, error) {
	return s.findRecord(func(r models.OnboardingRecord) bool { return r.OrganizationID == orgID })
}

func (s *MemoryStore) FindCorporateBySubEntityID(ctx context.Context, subEntityID string) (*models.OnboardingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, r := range s.records {
		if r.OnboardingKind != models.OnboardingKindCorporate {
			continue
		}
		for _, p := range s.payloads[id] {
			if ListsSubEntity(p.Payload, subEntityID) {
				r := r
				return &r, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Upsert(ctx context.Context, record *models.OnboardingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.ReferenceID == record.ReferenceID {
			record.ID = id
			record.CreatedAt = r.CreatedAt
			record.PayloadCount = r.PayloadCount
			break
		}
	}
	return s.putRecord(record)
}

func (s *MemoryStore) Save(ctx context.Context, record *models.OnboardingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return ErrNotFound
	}
	return s.putRecord(record)
}

func (s *MemoryStore) putRecord(record *models.OnboardingRecord) error {
	for id, r := range s.records {
		if id == record.ID {
			continue
		}
		if r.RequestID == record.RequestID || r.ReferenceID == record.ReferenceID {
			return fmt.Errorf("%w: duplicate request or reference id", ErrConflict)
		}
	}
	touch(&record.Base, time.Now())
	s.records[record.ID] = *record
	return nil
}

func (s *MemoryStore) AppendPayload(ctx context.Context, record *models.OnboardingRecord, payload *models.OnboardingPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.ID]
	if !ok {
		return ErrNotFound
	}
	if payload.ID == uuid.Nil {
		payload.ID = uuid.New()
	}
	payload.RecordID = record.ID
	payload.Sequence = len(s.payloads[record.ID]) + 1
	s.payloads[record.ID] = append(s.payloads[record.ID], *payload)

	stored.PayloadCount = payload.Sequence
	s.records[record.ID] = stored
	record.PayloadCount = payload.Sequence
	return nil
}

func (s *MemoryStore) ListPayloads(ctx context.Context, recordID uuid.UUID) ([]models.OnboardingPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OnboardingPayload, len(s.payloads[recordID]))
	copy(out, s.payloads[recordID])
	return out, nil
}

func (s *MemoryStore) ListStale(ctx context.Context, statuses []models.OnboardingStatus, updatedBefore time.Time, limit int) ([]models.OnboardingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[models.OnboardingStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []models.OnboardingRecord
	for _, r := range s.records {
		if !want[r.Status] || !r.UpdatedAt.Before(updatedBefore) {
			continue
		}
		if org, ok := s.orgs[r.OrganizationID]; ok && org.OnboardingStatus.IsTerminal() {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Organizations

// CreateOrganization seeds an organization
func (s *MemoryStore) CreateOrganization(org *models.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.OnboardingStatus == "" {
		org.OnboardingStatus = models.OnboardingStatusPending
	}
	touch(&org.Base, time.Now())
	s.orgs[org.ID] = *org
}

// AddMember seeds an organization membership
func (s *MemoryStore) AddMember(orgID, userID uuid.UUID, role models.MemberRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[[2]uuid.UUID{orgID, userID}] = role
}

// AddAccountSlot seeds a user account slot
func (s *MemoryStore) AddAccountSlot(slot models.UserAccountSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.UserID] = append(s.slots[slot.UserID], slot)
	sort.Slice(s.slots[slot.UserID], func(i, j int) bool {
		return s.slots[slot.UserID][i].Position < s.slots[slot.UserID][j].Position
	})
}

// AccountSlots returns a user's slots in position order
func (s *MemoryStore) AccountSlots(userID uuid.UUID) []models.UserAccountSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.UserAccountSlot, len(s.slots[userID]))
	copy(out, s.slots[userID])
	return out
}

func (s *MemoryStore) FindOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &org, nil
}

func (s *MemoryStore) MemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.MemberRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.members[[2]uuid.UUID{orgID, userID}]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

func (s *MemoryStore) SaveOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[org.ID]; !ok {
		return ErrNotFound
	}
	touch(&org.Base, time.Now())
	s.orgs[org.ID] = *org
	return nil
}

func (s *MemoryStore) ListEntities(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OrganizationEntity
	for _, e := range s.entities {
		if e.OrganizationID == orgID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) findEntity(match func(models.OrganizationEntity) bool) (*models.OrganizationEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities {
		if match(e) {
			e := e
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindEntityBySubEntityID(ctx context.Context, orgID uuid.UUID, subEntityID string) (*models.OrganizationEntity, error) {
	return s.findEntity(func(e models.OrganizationEntity) bool {
		return e.OrganizationID == orgID && e.SubEntityRequestID != "" && e.SubEntityRequestID == subEntityID
	})
}

func (s *MemoryStore) FindEntityByVerificationID(ctx context.Context, orgID uuid.UUID, verificationID string) (*models.OrganizationEntity, error) {
	return s.findEntity(func(e models.OrganizationEntity) bool {
		return e.OrganizationID == orgID && e.VerificationID != "" && e.VerificationID == verificationID
	})
}

func (s *MemoryStore) SaveEntity(ctx context.Context, entity *models.OrganizationEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&entity.Base, time.Now())
	s.entities[entity.ID] = *entity
	return nil
}

func amlKey(orgID uuid.UUID, verificationID string) string {
	return orgID.String() + "/" + verificationID
}

func (s *MemoryStore) FindEntityAMLStatus(ctx context.Context, orgID uuid.UUID, verificationID string) (*models.EntityAMLStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.aml[amlKey(orgID, verificationID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (s *MemoryStore) UpsertEntityAMLStatus(ctx context.Context, status *models.EntityAMLStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := amlKey(status.OrganizationID, status.VerificationID)
	if existing, ok := s.aml[key]; ok {
		status.ID = existing.ID
		status.CreatedAt = existing.CreatedAt
	}
	touch(&status.Base, time.Now())
	s.aml[key] = *status
	return nil
}

func (s *MemoryStore) ListEntityAMLStatuses(ctx context.Context, orgID uuid.UUID) ([]models.EntityAMLStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EntityAMLStatus
	for _, st := range s.aml {
		if st.OrganizationID == orgID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VerificationID < out[j].VerificationID })
	return out, nil
}

func (s *MemoryStore) ReplacePlaceholderSlot(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := s.slots[userID]
	for _, slot := range slots {
		if slot.OrganizationID != nil && *slot.OrganizationID == orgID {
			return false, nil
		}
	}
	for i := range slots {
		if slots[i].Placeholder {
			id := orgID
			slots[i].OrganizationID = &id
			slots[i].Placeholder = false
			slots[i].UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

// Identity mappings

func (s *MemoryStore) FindMappingByEODRequestID(ctx context.Context, eodRequestID string) (*models.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if eodRequestID == "" {
		return nil, ErrNotFound
	}
	for _, m := range s.mappings {
		if m.EODRequestID == eodRequestID {
			m := m
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListMappingsByIdentityKey(ctx context.Context, orgID uuid.UUID, identityKey string) ([]models.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.IdentityMapping
	for _, m := range s.mappings {
		if m.OrganizationID == orgID && m.IdentityKey == identityKey {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListMappings(ctx context.Context, orgID uuid.UUID) ([]models.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.IdentityMapping
	for _, m := range s.mappings {
		if m.OrganizationID == orgID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateMapping(ctx context.Context, mapping *models.IdentityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.OrganizationID == mapping.OrganizationID && m.EntityKind == mapping.EntityKind &&
			m.IdentityKey == mapping.IdentityKey && m.CODRequestID == mapping.CODRequestID {
			return fmt.Errorf("%w: identity mapping already exists", ErrConflict)
		}
	}
	touch(&mapping.Base, time.Now())
	s.mappings[mapping.ID] = *mapping
	return nil
}

func (s *MemoryStore) SaveMapping(ctx context.Context, mapping *models.IdentityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[mapping.ID]; !ok {
		return ErrNotFound
	}
	touch(&mapping.Base, time.Now())
	s.mappings[mapping.ID] = *mapping
	return nil
}

// Audit

func (s *MemoryStore) LogOrganizationEvent(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, eventType utils.AuditEventType, description string, details map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, utils.AuditLog{
		ID:             uuid.New(),
		Timestamp:      time.Now(),
		OrganizationID: orgID,
		UserID:         userID,
		EventType:      eventType,
		Description:    description,
	})
	return nil
}

// AuditEvents returns the event types logged for an organization, in order
func (s *MemoryStore) AuditEvents(orgID uuid.UUID) []utils.AuditEventType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []utils.AuditEventType
	for _, e := range s.audit {
		if e.OrganizationID == orgID {
			out = append(out, e.EventType)
		}
	}
	return out
}
