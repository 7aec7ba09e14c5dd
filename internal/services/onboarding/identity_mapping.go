package onboarding

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/models"
)

// MappingInput carries identity data learned from any corporate sub-flow.
// Empty id fields mean "unknown" and never overwrite stored values.
type MappingInput struct {
	OrganizationID   uuid.UUID
	OrganizationKind models.OrganizationKind
	EntityKind       models.EntityKind
	Name             string
	Email            string
	BusinessName     string
	CODRequestID     string
	EODRequestID     string
	KYCID            string
	KYBID            string
}

// BulkResult summarizes a BulkUpsert
type BulkResult struct {
	Upserted int
	Failed   int
	Errors   []error
}

// IdentityMappingGraph deduplicates directors and shareholders across
// corporate sub-flows and converges their verification ids
type IdentityMappingGraph struct {
	store MappingStore
	now   func() time.Time
}

// NewIdentityMappingGraph creates a graph backed by store
func NewIdentityMappingGraph(store MappingStore) *IdentityMappingGraph {
	return &IdentityMappingGraph{store: store, now: time.Now}
}

// UpsertMapping finds the mapping by sub-entity id, then by identity key, and
// creates it when absent.
func (g *IdentityMappingGraph) UpsertMapping(ctx context.Context, in MappingInput) (*models.IdentityMapping, error) {
	if in.OrganizationID == uuid.Nil {
		return nil, fmt.Errorf("%w: mapping requires an organization", ErrInvalidInput)
	}
	switch in.EntityKind {
	case models.EntityKindDirector, models.EntityKindIndividualShareholder, models.EntityKindBusinessShareholder:
	default:
		return nil, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, in.EntityKind)
	}
	if in.EntityKind.IsBusiness() && in.BusinessName == "" {
		return nil, fmt.Errorf("%w: business shareholder requires a business name", ErrInvalidInput)
	}
	if !in.EntityKind.IsBusiness() && in.Name == "" && in.Email == "" {
		return nil, fmt.Errorf("%w: individual requires a name or email", ErrInvalidInput)
	}

	key := models.IdentityKeyFor(in.EntityKind, in.Name, in.Email, in.BusinessName)
	siblings, err := g.store.ListMappingsByIdentityKey(ctx, in.OrganizationID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}

	existing, err := g.find(ctx, in, siblings)
	if err != nil {
		return nil, err
	}

	now := g.now()
	if existing == nil {
		mapping := &models.IdentityMapping{
			OrganizationID:   in.OrganizationID,
			OrganizationKind: in.OrganizationKind,
			EntityKind:       in.EntityKind,
			IdentityKey:      key,
			CODRequestID:     in.CODRequestID,
			Name:             in.Name,
			Email:            in.Email,
			BusinessName:     in.BusinessName,
			EODRequestID:     in.EODRequestID,
			KYCID:            in.KYCID,
			KYBID:            in.KYBID,
			LastSyncedAt:     &now,
		}
		// A late duplicate joins ids its siblings already resolved
		for _, s := range siblings {
			if mapping.KYCID == "" && s.KYCID != "" && !s.EntityKind.IsBusiness() {
				mapping.KYCID = s.KYCID
			}
			if mapping.KYBID == "" && s.KYBID != "" && s.EntityKind.IsBusiness() {
				mapping.KYBID = s.KYBID
			}
		}
		if err := g.store.CreateMapping(ctx, mapping); err != nil {
			return nil, fmt.Errorf("failed to create mapping: %w", err)
		}
		return mapping, nil
	}

	mergeMapping(existing, in)
	existing.LastSyncedAt = &now
	if err := g.store.SaveMapping(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update mapping: %w", err)
	}
	return existing, nil
}

func (g *IdentityMappingGraph) find(ctx context.Context, in MappingInput, siblings []models.IdentityMapping) (*models.IdentityMapping, error) {
	if in.EODRequestID != "" {
		m, err := g.store.FindMappingByEODRequestID(ctx, in.EODRequestID)
		if err == nil && m.OrganizationID == in.OrganizationID {
			return m, nil
		}
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("failed to find mapping by sub-entity id: %w", err)
		}
	}

	var fallback *models.IdentityMapping
	for i := range siblings {
		s := &siblings[i]
		if s.EntityKind != in.EntityKind {
			continue
		}
		if s.CODRequestID == in.CODRequestID {
			if in.EODRequestID == "" || s.EODRequestID == "" || s.EODRequestID == in.EODRequestID {
				return s, nil
			}
		}
		// Without a flow id the caller is updating whichever row holds the identity
		if in.CODRequestID == "" && in.EODRequestID == "" && fallback == nil {
			fallback = s
		}
	}
	return fallback, nil
}

func mergeMapping(m *models.IdentityMapping, in MappingInput) {
	if in.OrganizationKind != "" {
		m.OrganizationKind = in.OrganizationKind
	}
	if in.Name != "" {
		m.Name = in.Name
	}
	if in.Email != "" {
		m.Email = in.Email
	}
	if in.BusinessName != "" {
		m.BusinessName = in.BusinessName
	}
	if m.CODRequestID == "" && in.CODRequestID != "" {
		m.CODRequestID = in.CODRequestID
	}
	if in.EODRequestID != "" {
		m.EODRequestID = in.EODRequestID
	}
	if in.KYCID != "" {
		m.KYCID = in.KYCID
	}
	if in.KYBID != "" {
		m.KYBID = in.KYBID
	}
}

// PropagateVerificationID sets the KYC id on every individual mapping in the
// organization that shares the (name, email) identity. It returns the number
// of rows changed.
func (g *IdentityMappingGraph) PropagateVerificationID(ctx context.Context, orgID uuid.UUID, verificationID, name, email string) (int, error) {
	if verificationID == "" {
		return 0, nil
	}
	key := models.IndividualIdentityKey(name, email)
	return g.propagate(ctx, orgID, key, func(m *models.IdentityMapping) bool {
		if m.EntityKind.IsBusiness() || m.KYCID == verificationID {
			return false
		}
		m.KYCID = verificationID
		return true
	})
}

// PropagateBusinessVerificationID sets the KYB id on every business mapping in
// the organization with the same business name
func (g *IdentityMappingGraph) PropagateBusinessVerificationID(ctx context.Context, orgID uuid.UUID, kybID, businessName string) (int, error) {
	if kybID == "" {
		return 0, nil
	}
	key := models.BusinessIdentityKey(businessName)
	return g.propagate(ctx, orgID, key, func(m *models.IdentityMapping) bool {
		if !m.EntityKind.IsBusiness() || m.KYBID == kybID {
			return false
		}
		m.KYBID = kybID
		return true
	})
}

func (g *IdentityMappingGraph) propagate(ctx context.Context, orgID uuid.UUID, key string, apply func(*models.IdentityMapping) bool) (int, error) {
	mappings, err := g.store.ListMappingsByIdentityKey(ctx, orgID, key)
	if err != nil {
		return 0, fmt.Errorf("failed to list mappings: %w", err)
	}

	now := g.now()
	changed := 0
	for i := range mappings {
		m := &mappings[i]
		if !apply(m) {
			continue
		}
		m.LastSyncedAt = &now
		if err := g.store.SaveMapping(ctx, m); err != nil {
			return changed, fmt.Errorf("failed to update mapping %s: %w", m.ID, err)
		}
		changed++
	}
	return changed, nil
}

// BulkUpsert upserts every input, logging and skipping the ones that fail
func (g *IdentityMappingGraph) BulkUpsert(ctx context.Context, inputs []MappingInput) BulkResult {
	var res BulkResult
	for _, in := range inputs {
		if _, err := g.UpsertMapping(ctx, in); err != nil {
			log.Printf("onboarding: skipping identity mapping %s/%s: %v", in.EntityKind, in.EODRequestID, err)
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Upserted++
	}
	return res
}

// ResolveSubEntity records a verification id learned for a sub-entity and
// converges every mapping of the same identity to it
func (g *IdentityMappingGraph) ResolveSubEntity(ctx context.Context, orgID uuid.UUID, subEntityID, verificationID string) error {
	if verificationID == "" {
		return nil
	}
	mapping, err := g.store.FindMappingByEODRequestID(ctx, subEntityID)
	if isNotFound(err) {
		log.Printf("onboarding: no identity mapping for sub-entity %s", subEntityID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find mapping by sub-entity id: %w", err)
	}
	if mapping.OrganizationID != orgID {
		return nil
	}

	if mapping.EntityKind.IsBusiness() {
		_, err = g.PropagateBusinessVerificationID(ctx, orgID, verificationID, mapping.BusinessName)
	} else {
		_, err = g.PropagateVerificationID(ctx, orgID, verificationID, mapping.Name, mapping.Email)
	}
	return err
}

// MappingsFromParentEvent extracts the directors and shareholders listed in a
// corporate parent payload
func MappingsFromParentEvent(orgID uuid.UUID, orgKind models.OrganizationKind, codRequestID string, raw []byte) []MappingInput {
	refs := SubEntityRefs(raw)
	inputs := make([]MappingInput, 0, len(refs))
	for _, ref := range refs {
		if ref.Name == "" && ref.Email == "" && ref.BusinessName == "" {
			continue
		}
		inputs = append(inputs, MappingInput{
			OrganizationID:   orgID,
			OrganizationKind: orgKind,
			EntityKind:       ref.Kind,
			Name:             ref.Name,
			Email:            ref.Email,
			BusinessName:     ref.BusinessName,
			CODRequestID:     codRequestID,
			EODRequestID:     ref.RequestID,
		})
	}
	return inputs
}
