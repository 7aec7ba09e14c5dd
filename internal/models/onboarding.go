package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// OnboardingStatus is the lifecycle status shared by onboarding records and
// the coarse onboarding status of an organization.
type OnboardingStatus string

const (
	OnboardingStatusPending              OnboardingStatus = "PENDING"
	OnboardingStatusInProgress           OnboardingStatus = "IN_PROGRESS"
	OnboardingStatusFormFilling          OnboardingStatus = "FORM_FILLING"
	OnboardingStatusLivenessPassed       OnboardingStatus = "LIVENESS_PASSED"
	OnboardingStatusPendingApproval      OnboardingStatus = "PENDING_APPROVAL"
	OnboardingStatusPendingAML           OnboardingStatus = "PENDING_AML"
	OnboardingStatusPendingFinalApproval OnboardingStatus = "PENDING_FINAL_APPROVAL"
	OnboardingStatusApproved             OnboardingStatus = "APPROVED"
	OnboardingStatusRejected             OnboardingStatus = "REJECTED"
	OnboardingStatusCompleted            OnboardingStatus = "COMPLETED"
	OnboardingStatusExpired              OnboardingStatus = "EXPIRED"
)

// statusRank orders statuses along the onboarding lifecycle.
var statusRank = map[OnboardingStatus]int{
	OnboardingStatusPending:              0,
	OnboardingStatusExpired:              0,
	OnboardingStatusInProgress:           1,
	OnboardingStatusFormFilling:          2,
	OnboardingStatusLivenessPassed:       3,
	OnboardingStatusPendingApproval:      4,
	OnboardingStatusPendingAML:           5,
	OnboardingStatusPendingFinalApproval: 6,
	OnboardingStatusApproved:             7,
	OnboardingStatusCompleted:            8,
	OnboardingStatusRejected:             9,
}

// Rank returns the lifecycle position of the status. Unknown statuses rank
// below PENDING.
func (s OnboardingStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further transition may be applied.
func (s OnboardingStatus) IsTerminal() bool {
	return s == OnboardingStatusRejected || s == OnboardingStatusCompleted
}

// Valid reports whether s is one of the known statuses.
func (s OnboardingStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// OnboardingKind distinguishes individual from corporate verification flows
type OnboardingKind string

const (
	OnboardingKindIndividual OnboardingKind = "individual"
	OnboardingKindCorporate  OnboardingKind = "corporate"
)

// Valid reports whether k is a known onboarding kind
func (k OnboardingKind) Valid() bool {
	return k == OnboardingKindIndividual || k == OnboardingKindCorporate
}

// OrganizationKind is the account type of an organization
type OrganizationKind string

const (
	OrganizationKindInvestor OrganizationKind = "investor"
	OrganizationKindIssuer   OrganizationKind = "issuer"
)

// PayloadSource records how a payload reached the history
type PayloadSource string

const (
	PayloadSourceWebhook PayloadSource = "webhook"
	PayloadSourcePoll    PayloadSource = "poll"
)

// OnboardingRecord is one organization's attempt to complete vendor identity
// verification. It is never deleted.
type OnboardingRecord struct {
	Base
	RequestID           string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	ReferenceID         string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference_id"`
	OrganizationID      uuid.UUID        `gorm:"type:uuid;index;not null" json:"organization_id"`
	OrganizationKind    OrganizationKind `gorm:"type:varchar(20);not null" json:"organization_kind"`
	OnboardingKind      OnboardingKind   `gorm:"type:varchar(20);index;not null" json:"onboarding_kind"`
	Status              OnboardingStatus `gorm:"type:varchar(32);index;not null;default:'PENDING'" json:"status"`
	Substatus           string           `gorm:"type:varchar(255)" json:"substatus"`
	VerifyLink          string           `gorm:"type:text" json:"verify_link"`
	VerifyLinkExpiresAt *time.Time       `json:"verify_link_expires_at"`
	PayloadCount        int              `gorm:"not null;default:0" json:"payload_count"`
	SubmittedAt         *time.Time       `json:"submitted_at"`
	CompletedAt         *time.Time       `json:"completed_at"`
}

// HasUsableLink reports whether the verify link can still be handed out
func (r *OnboardingRecord) HasUsableLink(now time.Time) bool {
	if r.VerifyLink == "" || r.VerifyLinkExpiresAt == nil {
		return false
	}
	return r.VerifyLinkExpiresAt.After(now)
}

// OnboardingPayload is one entry of a record's append-only webhook history
type OnboardingPayload struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RecordID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:ux_onboarding_payload_seq,priority:1" json:"record_id"`
	Sequence   int            `gorm:"not null;uniqueIndex:ux_onboarding_payload_seq,priority:2" json:"sequence"`
	EventKind  string         `gorm:"type:varchar(20);not null" json:"event_kind"`
	Source     PayloadSource  `gorm:"type:varchar(20);not null" json:"source"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	ReceivedAt time.Time      `gorm:"not null" json:"received_at"`
}
