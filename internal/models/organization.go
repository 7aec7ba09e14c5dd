package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Organization is an investor or issuer account going through onboarding
type Organization struct {
	Base
	Name                     string           `gorm:"type:varchar(255);not null" json:"name"`
	Kind                     OrganizationKind `gorm:"type:varchar(20);not null" json:"kind"`
	OwnerUserID              uuid.UUID        `gorm:"type:uuid;index;not null" json:"owner_user_id"`
	ContactName              string           `gorm:"type:varchar(255)" json:"contact_name"`
	ContactEmail             string           `gorm:"type:varchar(255)" json:"contact_email"`
	CountryCode              string           `gorm:"type:varchar(3)" json:"country_code"`
	OnboardingStatus         OnboardingStatus `gorm:"type:varchar(32);not null;default:'PENDING'" json:"onboarding_status"`
	AMLApproved              bool             `gorm:"not null;default:false" json:"aml_approved"`
	LastVerificationResponse datatypes.JSON   `gorm:"type:jsonb" json:"last_verification_response,omitempty"`
	OnboardedAt              *time.Time       `json:"onboarded_at"`
}

// MemberRole is a user's role within an organization
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// CanAdminister reports whether the role may drive onboarding
func (r MemberRole) CanAdminister() bool {
	return r == MemberRoleOwner || r == MemberRoleAdmin
}

// OrganizationMember links a user to an organization
type OrganizationMember struct {
	OrganizationID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"organization_id"`
	UserID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	Role           MemberRole `gorm:"type:varchar(20);not null" json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EntityKind identifies the type of a corporate sub-entity
type EntityKind string

const (
	EntityKindDirector              EntityKind = "director"
	EntityKindIndividualShareholder EntityKind = "individual_shareholder"
	EntityKindBusinessShareholder   EntityKind = "business_shareholder"
)

// IsBusiness reports whether the entity is identified by business name
func (k EntityKind) IsBusiness() bool {
	return k == EntityKindBusinessShareholder
}

// OrganizationEntity is a director or shareholder declared by an organization
type OrganizationEntity struct {
	Base
	OrganizationID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"organization_id"`
	Kind               EntityKind `gorm:"type:varchar(32);not null" json:"kind"`
	Name               string     `gorm:"type:varchar(255)" json:"name"`
	Email              string     `gorm:"type:varchar(255)" json:"email"`
	BusinessName       string     `gorm:"type:varchar(255)" json:"business_name"`
	SubEntityRequestID string     `gorm:"type:varchar(64);index" json:"sub_entity_request_id"`
	VerificationID     string     `gorm:"type:varchar(64);index" json:"verification_id"`
}

// EntityAMLStatus is the latest screening outcome for one verified entity
type EntityAMLStatus struct {
	Base
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_entity_aml_status,priority:1" json:"organization_id"`
	VerificationID string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_entity_aml_status,priority:2" json:"verification_id"`
	EntityID       *uuid.UUID      `gorm:"type:uuid" json:"entity_id"`
	Status         string          `gorm:"type:varchar(32)" json:"status"`
	RiskScore      decimal.Decimal `gorm:"type:numeric(10,2)" json:"risk_score"`
	RiskLevel      string          `gorm:"type:varchar(32)" json:"risk_level"`
	MessageStatus  string          `gorm:"type:varchar(32)" json:"message_status"`
	LastUpdatedAt  time.Time       `json:"last_updated_at"`
}
