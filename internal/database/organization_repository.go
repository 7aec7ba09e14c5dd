package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/onboarding"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrganizationRepository is the postgres-backed organization store
type OrganizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

var _ onboarding.OrganizationStore = (*OrganizationRepository)(nil)

func (r *OrganizationRepository) FindOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, translateError(err)
	}
	return &org, nil
}

func (r *OrganizationRepository) MemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.MemberRole, error) {
	var member models.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		First(&member).Error
	if err != nil {
		return "", translateError(err)
	}
	return member.Role, nil
}

func (r *OrganizationRepository) SaveOrganization(ctx context.Context, org *models.Organization) error {
	res := r.db.WithContext(ctx).Model(org).Select("*").Omit("created_at").Updates(org)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return onboarding.ErrNotFound
	}
	return nil
}

func (r *OrganizationRepository) ListEntities(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationEntity, error) {
	var entities []models.OrganizationEntity
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&entities).Error
	return entities, err
}

func (r *OrganizationRepository) findEntity(ctx context.Context, orgID uuid.UUID, column, value string) (*models.OrganizationEntity, error) {
	if value == "" {
		return nil, onboarding.ErrNotFound
	}
	var entity models.OrganizationEntity
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		First(&entity).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &entity, nil
}

func (r *OrganizationRepository) FindEntityBySubEntityID(ctx context.Context, orgID uuid.UUID, subEntityID string) (*models.OrganizationEntity, error) {
	return r.findEntity(ctx, orgID, "sub_entity_request_id", subEntityID)
}

func (r *OrganizationRepository) FindEntityByVerificationID(ctx context.Context, orgID uuid.UUID, verificationID string) (*models.OrganizationEntity, error) {
	return r.findEntity(ctx, orgID, "verification_id", verificationID)
}

func (r *OrganizationRepository) SaveEntity(ctx context.Context, entity *models.OrganizationEntity) error {
	return translateError(r.db.WithContext(ctx).Save(entity).Error)
}

func (r *OrganizationRepository) FindEntityAMLStatus(ctx context.Context, orgID uuid.UUID, verificationID string) (*models.EntityAMLStatus, error) {
	var status models.EntityAMLStatus
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND verification_id = ?", orgID, verificationID).
		First(&status).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &status, nil
}

// UpsertEntityAMLStatus inserts or overwrites the row keyed by (organization, verification id)
func (r *OrganizationRepository) UpsertEntityAMLStatus(ctx context.Context, status *models.EntityAMLStatus) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "organization_id"}, {Name: "verification_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"entity_id", "status", "risk_score", "risk_level", "message_status", "last_updated_at", "updated_at",
		}),
	}).Create(status).Error
	return translateError(err)
}

func (r *OrganizationRepository) ListEntityAMLStatuses(ctx context.Context, orgID uuid.UUID) ([]models.EntityAMLStatus, error) {
	var statuses []models.EntityAMLStatus
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("verification_id ASC").
		Find(&statuses).Error
	return statuses, err
}

// ReplacePlaceholderSlot fills the user's lowest placeholder slot with orgID
func (r *OrganizationRepository) ReplacePlaceholderSlot(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	replaced := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listed int64
		if err := tx.Model(&models.UserAccountSlot{}).
			Where("user_id = ? AND organization_id = ?", userID, orgID).
			Count(&listed).Error; err != nil {
			return err
		}
		if listed > 0 {
			return nil
		}

		var slot models.UserAccountSlot
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND placeholder = ?", userID, true).
			Order("position ASC").
			First(&slot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&models.UserAccountSlot{}).
			Where("user_id = ? AND position = ?", slot.UserID, slot.Position).
			Updates(map[string]interface{}{
				"organization_id": orgID,
				"placeholder":     false,
				"updated_at":      time.Now(),
			}).Error; err != nil {
			return err
		}
		replaced = true
		return nil
	})
	return replaced, err
}
