package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// IdentityMapping ties a corporate sub-entity to the vendor ids produced for it
// across corporate sub-flows
type IdentityMapping struct {
	Base
	OrganizationID   uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:ux_identity_mapping,priority:1" json:"organization_id"`
	OrganizationKind OrganizationKind `gorm:"type:varchar(20);not null" json:"organization_kind"`
	EntityKind       EntityKind       `gorm:"type:varchar(32);not null;uniqueIndex:ux_identity_mapping,priority:2" json:"entity_kind"`
	IdentityKey      string           `gorm:"type:varchar(512);not null;uniqueIndex:ux_identity_mapping,priority:3;index" json:"identity_key"`
	CODRequestID     string           `gorm:"type:varchar(64);not null;default:'';uniqueIndex:ux_identity_mapping,priority:4" json:"cod_request_id"`
	Name             string           `gorm:"type:varchar(255)" json:"name"`
	Email            string           `gorm:"type:varchar(255)" json:"email"`
	BusinessName     string           `gorm:"type:varchar(255)" json:"business_name"`
	EODRequestID     string           `gorm:"type:varchar(64);index" json:"eod_request_id"`
	KYCID            string           `gorm:"type:varchar(64)" json:"kyc_id"`
	KYBID            string           `gorm:"type:varchar(64)" json:"kyb_id"`
	LastSyncedAt     *time.Time       `json:"last_synced_at"`
}

// IndividualIdentityKey normalizes a name and email into a mapping key
func IndividualIdentityKey(name, email string) string {
	return slug.Make(name) + "|" + strings.ToLower(strings.TrimSpace(email))
}

// BusinessIdentityKey normalizes a business name into a mapping key
func BusinessIdentityKey(businessName string) string {
	return slug.Make(businessName)
}

// IdentityKeyFor returns the key for an entity of the given kind
func IdentityKeyFor(kind EntityKind, name, email, businessName string) string {
	if kind.IsBusiness() {
		return BusinessIdentityKey(businessName)
	}
	return IndividualIdentityKey(name, email)
}
