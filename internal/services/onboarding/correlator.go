package onboarding

import (
	"context"
	"fmt"
	"log"

	"github.com/revaspay/onboarding/internal/models"
)

// Correlation match sources, in chain order
const (
	MatchRequestID      = "request_id"
	MatchReferenceID    = "reference_id"
	MatchSubEntityIndex = "sub_entity_index"
	MatchHistoryScan    = "history_scan"
)

// Correlation is a resolved event
type Correlation struct {
	Record *models.OnboardingRecord
	Via    string
	// SubEntityID is set when the event reports on a director or
	// shareholder of the matched corporate record
	SubEntityID string
	// Stale is set when the event belongs to a superseded request of the
	// same organization
	Stale bool
}

// Correlator resolves vendor events to onboarding records
type Correlator struct {
	records  RecordStore
	mappings MappingStore
}

// NewCorrelator creates a correlator
func NewCorrelator(records RecordStore, mappings MappingStore) *Correlator {
	return &Correlator{records: records, mappings: mappings}
}

// Resolve runs the lookup chain. It returns nil, nil when nothing matches;
// that is an expected outcome for standalone vendor checks.
func (c *Correlator) Resolve(ctx context.Context, ev *Event) (*Correlation, error) {
	record, via, err := c.lookup(ctx, ev)
	if err != nil || record == nil {
		return nil, err
	}

	corr := &Correlation{Record: record, Via: via}
	if ev.OnboardingID != "" && ev.OnboardingID != record.RequestID {
		if IsSubEntityID(ev.OnboardingID) && record.OnboardingKind == models.OnboardingKindCorporate {
			corr.SubEntityID = ev.OnboardingID
		} else if !IsSubEntityID(ev.OnboardingID) {
			corr.Stale = true
		}
	}
	return corr, nil
}

func (c *Correlator) lookup(ctx context.Context, ev *Event) (*models.OnboardingRecord, string, error) {
	if ev.OnboardingID != "" {
		record, err := c.records.FindByRequestID(ctx, ev.OnboardingID)
		if err == nil {
			return record, MatchRequestID, nil
		}
		if !isNotFound(err) {
			return nil, "", fmt.Errorf("lookup by request id: %w", err)
		}
	}

	if ev.ReferenceID != "" {
		record, err := c.records.FindByReferenceID(ctx, ev.ReferenceID)
		if err == nil {
			return record, MatchReferenceID, nil
		}
		if !isNotFound(err) {
			return nil, "", fmt.Errorf("lookup by reference id: %w", err)
		}
	}

	if !IsSubEntityID(ev.OnboardingID) {
		return nil, "", nil
	}

	if c.mappings != nil {
		record, err := c.lookupByMapping(ctx, ev.OnboardingID)
		if err != nil {
			return nil, "", err
		}
		if record != nil {
			return record, MatchSubEntityIndex, nil
		}
	}

	record, err := c.records.FindCorporateBySubEntityID(ctx, ev.OnboardingID)
	if err == nil {
		return record, MatchHistoryScan, nil
	}
	if !isNotFound(err) {
		return nil, "", fmt.Errorf("scan corporate history: %w", err)
	}
	return nil, "", nil
}

func (c *Correlator) lookupByMapping(ctx context.Context, subEntityID string) (*models.OnboardingRecord, error) {
	mapping, err := c.mappings.FindMappingByEODRequestID(ctx, subEntityID)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup sub-entity mapping: %w", err)
	}

	record, err := c.records.FindByOrganizationID(ctx, mapping.OrganizationID)
	if isNotFound(err) {
		log.Printf("onboarding: mapping for %s points at organization %s without a record", subEntityID, mapping.OrganizationID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup record for organization: %w", err)
	}
	if record.OnboardingKind != models.OnboardingKindCorporate {
		return nil, nil
	}
	return record, nil
}
