package regtank

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// IndividualOnboardingRequest starts an individual liveness + KYC flow
type IndividualOnboardingRequest struct {
	ReferenceID        string `json:"referenceId"`
	Email              string `json:"email"`
	FullName           string `json:"fullName"`
	CountryOfResidence string `json:"countryOfResidence,omitempty"`
	Language           string `json:"language,omitempty"`
}

// EntityInput describes a director or individual shareholder
type EntityInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BusinessEntityInput describes a business shareholder
type BusinessEntityInput struct {
	BusinessName string `json:"businessName"`
	Email        string `json:"email,omitempty"`
}

// CorporateOnboardingRequest starts a corporate (COD) flow with its sub-entities
type CorporateOnboardingRequest struct {
	ReferenceID            string                `json:"referenceId"`
	BusinessName           string                `json:"businessName"`
	Email                  string                `json:"email"`
	CountryOfIncorporation string                `json:"countryOfIncorporation,omitempty"`
	Directors              []EntityInput         `json:"directors,omitempty"`
	IndividualShareholders []EntityInput         `json:"individualShareholders,omitempty"`
	BusinessShareholders   []BusinessEntityInput `json:"businessShareholders,omitempty"`
}

// SubEntity is a sub-entity (EOD) created inside a corporate flow
type SubEntity struct {
	RequestID    string `json:"requestId"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	BusinessName string `json:"businessName,omitempty"`
}

// OnboardingResponse is returned by create and restart calls
type OnboardingResponse struct {
	RequestID              string      `json:"requestId"`
	VerifyLink             string      `json:"verifyLink"`
	ExpiredAt              *time.Time  `json:"expiredAt,omitempty"`
	Status                 string      `json:"status,omitempty"`
	Directors              []SubEntity `json:"directors,omitempty"`
	IndividualShareholders []SubEntity `json:"individualShareholders,omitempty"`
	BusinessShareholders   []SubEntity `json:"businessShareholders,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// OnboardingDetails is the vendor's current view of an onboarding flow
type OnboardingDetails struct {
	RequestID     string           `json:"requestId"`
	ReferenceID   string           `json:"referenceId"`
	Status        string           `json:"status"`
	Substatus     string           `json:"substatus,omitempty"`
	KYCRequestID  string           `json:"kycRequestId,omitempty"`
	KYCStatus     string           `json:"kycStatus,omitempty"`
	RiskScore     *decimal.Decimal `json:"riskScore,omitempty"`
	RiskLevel     string           `json:"riskLevel,omitempty"`
	MessageStatus string           `json:"messageStatus,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// WebhookPreferences configures where the vendor delivers events
type WebhookPreferences struct {
	WebhookURL     string `json:"webhookUrl"`
	WebhookEnabled bool   `json:"webhookEnabled"`
}

// OnboardingSettings configures the vendor-side onboarding flow
type OnboardingSettings struct {
	FormID             int  `json:"formId,omitempty"`
	LivenessConfidence int  `json:"livenessConfidence"`
	ApprovalMode       bool `json:"approveMode"`
	LinkTTLHours       int  `json:"linkTtlHours,omitempty"`
}

// Kind selects the individual or corporate endpoint family
type Kind string

const (
	KindIndividual Kind = "indv"
	KindCorporate  Kind = "corp"
)
