package onboarding

import (
	"testing"

	"github.com/revaspay/onboarding/internal/models"
	"github.com/stretchr/testify/assert"
)

var allStatuses = []models.OnboardingStatus{
	models.OnboardingStatusPending,
	models.OnboardingStatusInProgress,
	models.OnboardingStatusFormFilling,
	models.OnboardingStatusLivenessPassed,
	models.OnboardingStatusPendingApproval,
	models.OnboardingStatusPendingAML,
	models.OnboardingStatusPendingFinalApproval,
	models.OnboardingStatusApproved,
	models.OnboardingStatusRejected,
	models.OnboardingStatusCompleted,
	models.OnboardingStatusExpired,
}

var rawStatuses = []string{
	"PROCESSING", "ID_UPLOADED", "LIVENESS_STARTED", "LIVENESS_PASSED", "WAIT_FOR_APPROVAL",
	"APPROVED", "REJECTED", "EXPIRED", "SOMETHING_NEW", "",
}

func TestNextIsDeterministic(t *testing.T) {
	for _, current := range allStatuses {
		for _, raw := range rawStatuses {
			for _, kind := range []models.OnboardingKind{models.OnboardingKindIndividual, models.OnboardingKindCorporate} {
				for _, ch := range []Channel{ChannelIdentity, ChannelScreening} {
					in := Transition{Current: current, RawStatus: raw, Kind: kind, Channel: ch}
					first := Next(in)
					for i := 0; i < 3; i++ {
						assert.Equal(t, first, Next(in), "%+v", in)
					}
				}
			}
		}
	}
}

func TestNextMapping(t *testing.T) {
	tests := []struct {
		name    string
		in      Transition
		next    models.OnboardingStatus
		outcome Outcome
		effects Effects
		amlOrg  models.OnboardingStatus
	}{
		{
			name:    "processing starts form filling",
			in:      Transition{Current: models.OnboardingStatusInProgress, RawStatus: "PROCESSING", Channel: ChannelIdentity},
			next:    models.OnboardingStatusFormFilling,
			outcome: OutcomeApplied,
		},
		{
			name:    "liveness started is case insensitive",
			in:      Transition{Current: models.OnboardingStatusInProgress, RawStatus: " liveness_started ", Channel: ChannelIdentity},
			next:    models.OnboardingStatusFormFilling,
			outcome: OutcomeApplied,
		},
		{
			name:    "liveness passed",
			in:      Transition{Current: models.OnboardingStatusFormFilling, RawStatus: "LIVENESS_PASSED", Channel: ChannelIdentity},
			next:    models.OnboardingStatusLivenessPassed,
			outcome: OutcomeApplied,
			effects: Effects{LivenessCompleted: true},
		},
		{
			name:    "wait for approval",
			in:      Transition{Current: models.OnboardingStatusLivenessPassed, RawStatus: "WAIT_FOR_APPROVAL", Channel: ChannelIdentity},
			next:    models.OnboardingStatusPendingApproval,
			outcome: OutcomeApplied,
			effects: Effects{LivenessCompleted: true},
		},
		{
			name:    "identity approval waits for AML",
			in:      Transition{Current: models.OnboardingStatusPendingApproval, RawStatus: "APPROVED", Kind: models.OnboardingKindIndividual, Channel: ChannelIdentity},
			next:    models.OnboardingStatusPendingAML,
			outcome: OutcomeApplied,
			effects: Effects{OnboardingCompleted: true},
		},
		{
			name:    "individual screening approval",
			in:      Transition{Current: models.OnboardingStatusPendingApproval, RawStatus: "APPROVED", Kind: models.OnboardingKindIndividual, Channel: ChannelScreening},
			next:    models.OnboardingStatusApproved,
			outcome: OutcomeApplied,
			effects: Effects{AMLApproved: true},
			amlOrg:  models.OnboardingStatusPendingFinalApproval,
		},
		{
			name:    "corporate screening approval",
			in:      Transition{Current: models.OnboardingStatusPendingApproval, RawStatus: "APPROVED", Kind: models.OnboardingKindCorporate, Channel: ChannelScreening},
			next:    models.OnboardingStatusApproved,
			outcome: OutcomeApplied,
			effects: Effects{AMLApproved: true},
			amlOrg:  models.OnboardingStatusPendingAML,
		},
		{
			name:    "rejection from either channel",
			in:      Transition{Current: models.OnboardingStatusApproved, RawStatus: "REJECTED", Channel: ChannelScreening},
			next:    models.OnboardingStatusRejected,
			outcome: OutcomeApplied,
			effects: Effects{Rejected: true, MarkCompleted: true},
		},
		{
			name:    "expiry before liveness",
			in:      Transition{Current: models.OnboardingStatusFormFilling, RawStatus: "EXPIRED", Channel: ChannelIdentity},
			next:    models.OnboardingStatusExpired,
			outcome: OutcomeApplied,
		},
		{
			name:    "expiry after liveness is held",
			in:      Transition{Current: models.OnboardingStatusPendingApproval, RawStatus: "EXPIRED", Channel: ChannelIdentity},
			next:    models.OnboardingStatusPendingApproval,
			outcome: OutcomeHeld,
		},
		{
			name:    "backwards move is held with effects",
			in:      Transition{Current: models.OnboardingStatusApproved, RawStatus: "APPROVED", Kind: models.OnboardingKindIndividual, Channel: ChannelIdentity},
			next:    models.OnboardingStatusApproved,
			outcome: OutcomeHeld,
			effects: Effects{OnboardingCompleted: true},
		},
		{
			name:    "late processing after liveness is held",
			in:      Transition{Current: models.OnboardingStatusLivenessPassed, RawStatus: "PROCESSING", Channel: ChannelIdentity},
			next:    models.OnboardingStatusLivenessPassed,
			outcome: OutcomeHeld,
		},
		{
			name:    "repeat is unchanged",
			in:      Transition{Current: models.OnboardingStatusLivenessPassed, RawStatus: "LIVENESS_PASSED", Channel: ChannelIdentity},
			next:    models.OnboardingStatusLivenessPassed,
			outcome: OutcomeUnchanged,
			effects: Effects{LivenessCompleted: true},
		},
		{
			name:    "rejected is terminal",
			in:      Transition{Current: models.OnboardingStatusRejected, RawStatus: "APPROVED", Channel: ChannelIdentity},
			next:    models.OnboardingStatusRejected,
			outcome: OutcomeTerminal,
		},
		{
			name:    "completed is terminal",
			in:      Transition{Current: models.OnboardingStatusCompleted, RawStatus: "REJECTED", Channel: ChannelScreening},
			next:    models.OnboardingStatusCompleted,
			outcome: OutcomeTerminal,
		},
		{
			name:    "unknown status",
			in:      Transition{Current: models.OnboardingStatusInProgress, RawStatus: "SOMETHING_NEW", Channel: ChannelIdentity},
			next:    models.OnboardingStatusInProgress,
			outcome: OutcomeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Next(tt.in)
			assert.Equal(t, tt.next, d.Next)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.effects, d.Effects)
			assert.Equal(t, tt.amlOrg, d.AMLOrgStatus)
		})
	}
}

func TestNextNeverRegresses(t *testing.T) {
	for _, current := range allStatuses {
		for _, raw := range rawStatuses {
			for _, ch := range []Channel{ChannelIdentity, ChannelScreening} {
				d := Next(Transition{Current: current, RawStatus: raw, Kind: models.OnboardingKindIndividual, Channel: ch})
				if current.IsTerminal() {
					assert.Equal(t, current, d.Next)
					assert.False(t, d.Effects.Any())
					continue
				}
				if d.Next != models.OnboardingStatusExpired {
					assert.GreaterOrEqual(t, d.Next.Rank(), current.Rank(), "%s + %s", current, raw)
				}
			}
		}
	}
}
