package onboarding

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/revaspay/onboarding/internal/metrics"
	"github.com/revaspay/onboarding/internal/models"
	"gorm.io/datatypes"
)

// Pipeline outcomes
const (
	ResultResolved   = "resolved"
	ResultUnresolved = "unresolved"
	ResultStale      = "stale"
	ResultSubEntity  = "sub_entity"
)

// Result describes what the pipeline did with one event
type Result struct {
	Outcome   string
	RequestID string
	Via       string
	Previous  models.OnboardingStatus
	Status    models.OnboardingStatus
	Decision  Decision
}

// Processor correlates vendor events and applies them. Webhooks and status
// polls go through the same path.
type Processor struct {
	records    RecordStore
	correlator *Correlator
	applier    *EffectApplier
	graph      *IdentityMappingGraph
	locker     Locker
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewProcessor wires the event pipeline
func NewProcessor(records RecordStore, correlator *Correlator, applier *EffectApplier, graph *IdentityMappingGraph, locker Locker, m *metrics.Metrics) *Processor {
	return &Processor{
		records:    records,
		correlator: correlator,
		applier:    applier,
		graph:      graph,
		locker:     locker,
		metrics:    m,
		now:        time.Now,
	}
}

// Handle processes one event. An event that matches no record returns an
// unresolved result and a nil error.
func (p *Processor) Handle(ctx context.Context, ev *Event) (*Result, error) {
	res, err := p.handle(ctx, ev)
	if err != nil {
		p.metrics.IncWebhookEvent(string(ev.Kind), "failed")
		return nil, err
	}
	p.metrics.IncWebhookEvent(string(ev.Kind), res.Outcome)
	return res, nil
}

func (p *Processor) handle(ctx context.Context, ev *Event) (*Result, error) {
	corr, err := p.correlator.Resolve(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("failed to correlate %s event: %w", ev.Kind, err)
	}
	if corr == nil {
		log.Printf("onboarding: unresolved %s event requestId=%q onboardingId=%q referenceId=%q status=%q",
			ev.Kind, ev.RequestID, ev.OnboardingID, ev.ReferenceID, ev.Status)
		return &Result{Outcome: ResultUnresolved}, nil
	}

	unlock, err := p.locker.Lock(ctx, organizationLockKey(corr.Record.OrganizationID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock organization %s: %w", corr.Record.OrganizationID, err)
	}
	defer unlock()

	// Reload under the lock; the reference id is stable across re-issues
	record, err := p.records.FindByReferenceID(ctx, corr.Record.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload record %s: %w", corr.Record.ReferenceID, err)
	}
	if corr.Via == MatchRequestID && record.RequestID != corr.Record.RequestID {
		corr.Stale = true
	}

	payload := &models.OnboardingPayload{
		RecordID:   record.ID,
		EventKind:  string(ev.Kind),
		Source:     ev.Source,
		Payload:    datatypes.JSON(ev.Raw),
		ReceivedAt: p.now(),
	}
	if len(payload.Payload) == 0 {
		payload.Payload = datatypes.JSON("{}")
	}
	if err := p.records.AppendPayload(ctx, record, payload); err != nil {
		return nil, fmt.Errorf("failed to append payload to %s: %w", record.RequestID, err)
	}

	res := &Result{
		Outcome:   ResultResolved,
		RequestID: record.RequestID,
		Via:       corr.Via,
		Previous:  record.Status,
		Status:    record.Status,
	}

	if corr.Stale {
		log.Printf("onboarding: %s event for superseded request %q kept in history of %s", ev.Kind, ev.OnboardingID, record.RequestID)
		res.Outcome = ResultStale
		return res, nil
	}

	if corr.SubEntityID != "" {
		if err := p.applier.SyncSubEntity(ctx, record, corr.SubEntityID, ev); err != nil {
			return nil, err
		}
		res.Outcome = ResultSubEntity
		return res, nil
	}

	if ev.Kind == EventKindCOD && p.graph != nil {
		inputs := MappingsFromParentEvent(record.OrganizationID, record.OrganizationKind, record.RequestID, ev.Raw)
		if len(inputs) > 0 {
			p.graph.BulkUpsert(ctx, inputs)
		}
	}

	decision := Next(Transition{
		Current:   record.Status,
		RawStatus: ev.Status,
		Kind:      record.OnboardingKind,
		Channel:   ev.Kind.Channel(),
	})
	res.Decision = decision
	p.metrics.IncTransition(string(decision.Outcome))

	switch decision.Outcome {
	case OutcomeUnknown:
		log.Printf("onboarding: ignoring unknown vendor status %q for %s", ev.Status, record.RequestID)
		return res, nil
	case OutcomeTerminal:
		log.Printf("onboarding: %s is %s, ignoring %s status %q", record.RequestID, record.Status, ev.Kind, ev.Status)
		return res, nil
	case OutcomeHeld:
		log.Printf("onboarding: holding %s at %s, %s status %q would move it backwards", record.RequestID, record.Status, ev.Kind, ev.Status)
	}

	if decision.Changed() || (ev.Substatus != "" && ev.Substatus != record.Substatus && decision.Outcome == OutcomeUnchanged) {
		if decision.Changed() {
			record.Status = decision.Next
			if decision.Effects.MarkCompleted && record.CompletedAt == nil {
				now := p.now()
				record.CompletedAt = &now
			}
		}
		if ev.Substatus != "" {
			record.Substatus = ev.Substatus
		}
		if err := p.records.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save record %s: %w", record.RequestID, err)
		}
	}
	res.Status = record.Status

	if err := p.applier.Apply(ctx, record, decision, ev); err != nil {
		return nil, err
	}
	return res, nil
}
