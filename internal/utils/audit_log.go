package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEventType represents the type of onboarding audit event
type AuditEventType string

// Define audit event types
const (
	AuditEventOnboardingStarted   AuditEventType = "ONBOARDING_STARTED"
	AuditEventOnboardingResumed   AuditEventType = "ONBOARDING_RESUMED"
	AuditEventOnboardingRestarted AuditEventType = "ONBOARDING_RESTARTED"
	AuditEventFormFilled          AuditEventType = "FORM_FILLED"
	AuditEventAMLApproved         AuditEventType = "AML_APPROVED"
	AuditEventOnboardingCompleted AuditEventType = "ONBOARDING_COMPLETED"
	AuditEventOnboardingRejected  AuditEventType = "ONBOARDING_REJECTED"
	AuditEventEntityAMLUpdated    AuditEventType = "ENTITY_AML_UPDATED"
	AuditEventStatusSynced        AuditEventType = "STATUS_SYNCED"
)

// AuditEventSeverity represents the severity level of an audit event
type AuditEventSeverity string

// Define audit event severity levels
const (
	AuditSeverityInfo    AuditEventSeverity = "INFO"
	AuditSeverityWarning AuditEventSeverity = "WARNING"
	AuditSeverityError   AuditEventSeverity = "ERROR"
)

// AuditLog represents an organization audit log entry
type AuditLog struct {
	ID             uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Timestamp      time.Time          `gorm:"index" json:"timestamp"`
	OrganizationID uuid.UUID          `gorm:"type:uuid;index" json:"organization_id"`
	UserID         *uuid.UUID         `gorm:"type:uuid" json:"user_id"`
	EventType      AuditEventType     `gorm:"type:varchar(40);index" json:"event_type"`
	Severity       AuditEventSeverity `gorm:"type:varchar(20)" json:"severity"`
	Description    string             `json:"description"`
	Details        string             `gorm:"type:text" json:"details"` // JSON string of additional details
	CreatedAt      time.Time          `json:"created_at"`
}

// AuditLogger writes organization audit entries
type AuditLogger struct {
	db *gorm.DB
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(db *gorm.DB) *AuditLogger {
	return &AuditLogger{
		db: db,
	}
}

// LogOrganizationEvent records an onboarding event for an organization
func (a *AuditLogger) LogOrganizationEvent(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, eventType AuditEventType, description string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log details: %w", err)
	}

	auditLog := AuditLog{
		ID:             uuid.New(),
		Timestamp:      time.Now(),
		OrganizationID: orgID,
		UserID:         userID,
		EventType:      eventType,
		Severity:       severityFor(eventType),
		Description:    description,
		Details:        string(detailsJSON),
	}

	if err := a.db.WithContext(ctx).Create(&auditLog).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

// QueryOrganizationLogs returns the most recent audit entries for an organization
func (a *AuditLogger) QueryOrganizationLogs(ctx context.Context, orgID uuid.UUID, eventTypes []AuditEventType, limit int) ([]AuditLog, error) {
	var logs []AuditLog

	query := a.db.WithContext(ctx).Model(&AuditLog{}).Where("organization_id = ?", orgID)
	if len(eventTypes) > 0 {
		query = query.Where("event_type IN ?", eventTypes)
	}
	if limit <= 0 {
		limit = 50
	}

	if err := query.Order("timestamp DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	return logs, nil
}

func severityFor(eventType AuditEventType) AuditEventSeverity {
	if eventType == AuditEventOnboardingRejected {
		return AuditSeverityWarning
	}
	return AuditSeverityInfo
}
