package onboarding

import (
	"strings"

	"github.com/revaspay/onboarding/internal/models"
)

// Outcome describes what a decision does to the record status
type Outcome string

const (
	// OutcomeApplied moves the record to Decision.Next
	OutcomeApplied Outcome = "applied"
	// OutcomeUnchanged repeats the current status; effects still apply
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeHeld keeps the record status because the event would move it
	// backwards; effects still apply monotonically
	OutcomeHeld Outcome = "held"
	// OutcomeTerminal ignores the event, the record is already final
	OutcomeTerminal Outcome = "terminal"
	// OutcomeUnknown ignores an event whose status is not recognized
	OutcomeUnknown Outcome = "unknown"
)

// Effects are the organization-level consequences of an event
type Effects struct {
	LivenessCompleted   bool
	AMLApproved         bool
	OnboardingCompleted bool
	Rejected            bool
	MarkCompleted       bool
}

// Any reports whether at least one effect is set
func (e Effects) Any() bool {
	return e.LivenessCompleted || e.AMLApproved || e.OnboardingCompleted || e.Rejected
}

// Transition is the input to the state machine
type Transition struct {
	Current   models.OnboardingStatus
	RawStatus string
	Kind      models.OnboardingKind
	Channel   Channel
}

// Decision is the state machine's verdict for one event
type Decision struct {
	Next    models.OnboardingStatus
	Outcome Outcome
	Effects Effects
	// AMLOrgStatus is where the organization moves on AML approval
	AMLOrgStatus models.OnboardingStatus
}

// Changed reports whether the record status moves
func (d Decision) Changed() bool {
	return d.Outcome == OutcomeApplied
}

// Next computes the record status and organization effects for an event.
// It has no side effects.
func Next(t Transition) Decision {
	target, effects, ok := mapVendorStatus(t.RawStatus, t.Channel)
	if !ok {
		return Decision{Next: t.Current, Outcome: OutcomeUnknown}
	}

	if t.Current.IsTerminal() {
		return Decision{Next: t.Current, Outcome: OutcomeTerminal}
	}

	d := Decision{Next: target, Outcome: OutcomeApplied, Effects: effects}
	if effects.AMLApproved {
		d.AMLOrgStatus = AMLApprovalStatus(t.Kind)
	}

	switch {
	case target == models.OnboardingStatusExpired:
		// Expiry only applies before the user has passed liveness
		if t.Current == models.OnboardingStatusExpired {
			d.Next, d.Outcome = t.Current, OutcomeUnchanged
		} else if t.Current.Rank() >= models.OnboardingStatusLivenessPassed.Rank() {
			d.Next, d.Outcome = t.Current, OutcomeHeld
		}
	case target == t.Current:
		d.Outcome = OutcomeUnchanged
	case target.Rank() < t.Current.Rank():
		d.Next, d.Outcome = t.Current, OutcomeHeld
	}
	return d
}

// AMLApprovalStatus is the organization status reached on AML approval
func AMLApprovalStatus(kind models.OnboardingKind) models.OnboardingStatus {
	if kind == models.OnboardingKindCorporate {
		return models.OnboardingStatusPendingAML
	}
	return models.OnboardingStatusPendingFinalApproval
}

func mapVendorStatus(raw string, channel Channel) (models.OnboardingStatus, Effects, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PROCESSING", "ID_UPLOADED", "LIVENESS_STARTED":
		return models.OnboardingStatusFormFilling, Effects{}, true
	case "LIVENESS_PASSED":
		return models.OnboardingStatusLivenessPassed, Effects{LivenessCompleted: true}, true
	case "WAIT_FOR_APPROVAL", "PENDING_APPROVAL":
		return models.OnboardingStatusPendingApproval, Effects{LivenessCompleted: true}, true
	case "APPROVED":
		if channel == ChannelScreening {
			return models.OnboardingStatusApproved, Effects{AMLApproved: true}, true
		}
		return models.OnboardingStatusPendingAML, Effects{OnboardingCompleted: true}, true
	case "REJECTED":
		return models.OnboardingStatusRejected, Effects{Rejected: true, MarkCompleted: true}, true
	case "EXPIRED":
		return models.OnboardingStatusExpired, Effects{}, true
	}
	return "", Effects{}, false
}
