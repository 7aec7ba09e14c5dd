package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/revaspay/onboarding/internal/models"
	"github.com/revaspay/onboarding/internal/services/onboarding"
	"gorm.io/gorm"
)

// MappingRepository is the postgres-backed identity mapping store
type MappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new mapping repository
func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

var _ onboarding.MappingStore = (*MappingRepository)(nil)

func (r *MappingRepository) FindMappingByEODRequestID(ctx context.Context, eodRequestID string) (*models.IdentityMapping, error) {
	if eodRequestID == "" {
		return nil, onboarding.ErrNotFound
	}
	var mapping models.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("eod_request_id = ?", eodRequestID).
		Order("updated_at DESC").
		First(&mapping).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &mapping, nil
}

func (r *MappingRepository) ListMappingsByIdentityKey(ctx context.Context, orgID uuid.UUID, identityKey string) ([]models.IdentityMapping, error) {
	var mappings []models.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND identity_key = ?", orgID, identityKey).
		Order("created_at ASC").
		Find(&mappings).Error
	return mappings, err
}

func (r *MappingRepository) ListMappings(ctx context.Context, orgID uuid.UUID) ([]models.IdentityMapping, error) {
	var mappings []models.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&mappings).Error
	return mappings, err
}

// CreateMapping inserts a mapping; a unique key collision surfaces as ErrConflict
func (r *MappingRepository) CreateMapping(ctx context.Context, mapping *models.IdentityMapping) error {
	return translateError(r.db.WithContext(ctx).Create(mapping).Error)
}

func (r *MappingRepository) SaveMapping(ctx context.Context, mapping *models.IdentityMapping) error {
	res := r.db.WithContext(ctx).Model(mapping).Select("*").Omit("created_at").Updates(mapping)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return onboarding.ErrNotFound
	}
	return nil
}

// Stores bundles the repositories behind the onboarding ports
type Stores struct {
	Records  *RecordRepository
	Orgs     *OrganizationRepository
	Mappings *MappingRepository
}

// NewStores creates every repository over one connection
func NewStores(db *gorm.DB) *Stores {
	return &Stores{
		Records:  NewRecordRepository(db),
		Orgs:     NewOrganizationRepository(db),
		Mappings: NewMappingRepository(db),
	}
}
