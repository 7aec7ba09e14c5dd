package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FirstName string    `gorm:"type:varchar(100)" json:"first_name"`
	LastName  string    `gorm:"type:varchar(100)" json:"last_name"`
	IsAdmin   bool      `gorm:"default:false" json:"is_admin"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// UserAccountSlot is one position in a user's account list. Signup creates a
// placeholder slot that is filled with the organization once onboarding completes.
type UserAccountSlot struct {
	UserID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	Position       int        `gorm:"primaryKey" json:"position"`
	OrganizationID *uuid.UUID `gorm:"type:uuid" json:"organization_id"`
	Placeholder    bool       `gorm:"not null;default:true" json:"placeholder"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
