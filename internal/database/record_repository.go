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

const payloadScanBatchSize = 100

var errStopScan = errors.New("stop scan")

var settledStatuses = []models.OnboardingStatus{models.OnboardingStatusCompleted, models.OnboardingStatusRejected}

// RecordRepository is the postgres-backed onboarding record store
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

var _ onboarding.RecordStore = (*RecordRepository)(nil)

func (r *RecordRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.OnboardingRecord, error) {
	var record models.OnboardingRecord
	if err := r.db.WithContext(ctx).Where(query, args...).First(&record).Error; err != nil {
		return nil, translateError(err)
	}
	return &record, nil
}

// FindByRequestID finds the record created for a vendor request id
func (r *RecordRepository) FindByRequestID(ctx context.Context, requestID string) (*models.OnboardingRecord, error) {
	return r.findOne(ctx, "request_id = ?", requestID)
}

// FindByReferenceID finds a record by our own reference id
func (r *RecordRepository) FindByReferenceID(ctx context.Context, referenceID string) (*models.OnboardingRecord, error) {
	return r.findOne(ctx, "reference_id = ?", referenceID)
}

// FindByOrganizationID finds the organization's most recent record
func (r *RecordRepository) FindByOrganizationID(ctx context.Context, orgID uuid.UUID) (*models.OnboardingRecord, error) {
	var record models.OnboardingRecord
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("updated_at DESC").
		First(&record).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &record, nil
}

// FindCorporateBySubEntityID walks corporate payload history for a parent
// event listing the sub-entity. The LIKE filter only narrows candidates;
// each hit is confirmed against the parsed payload.
func (r *RecordRepository) FindCorporateBySubEntityID(ctx context.Context, subEntityID string) (*models.OnboardingRecord, error) {
	if subEntityID == "" {
		return nil, onboarding.ErrNotFound
	}

	var (
		batch   []models.OnboardingPayload
		matched uuid.UUID
	)
	err := r.db.WithContext(ctx).
		Joins("JOIN onboarding_records ON onboarding_records.id = onboarding_payloads.record_id").
		Where("onboarding_records.onboarding_kind = ?", models.OnboardingKindCorporate).
		Where("onboarding_payloads.payload::text LIKE ?", "%"+subEntityID+"%").
		FindInBatches(&batch, payloadScanBatchSize, func(tx *gorm.DB, _ int) error {
			for _, p := range batch {
				if onboarding.ListsSubEntity(p.Payload, subEntityID) {
					matched = p.RecordID
					return errStopScan
				}
			}
			return nil
		}).Error
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	if matched == uuid.Nil {
		return nil, onboarding.ErrNotFound
	}
	return r.findOne(ctx, "id = ?", matched)
}

// Upsert creates the record or overwrites the row holding the same reference id
func (r *RecordRepository) Upsert(ctx context.Context, record *models.OnboardingRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.OnboardingRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reference_id = ?", record.ReferenceID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return translateError(tx.Create(record).Error)
		case err != nil:
			return err
		}

		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		record.PayloadCount = existing.PayloadCount
		return translateError(tx.Model(record).Select("*").Omit("created_at", "payload_count").Updates(record).Error)
	})
}

// Save writes every column of an existing record except the payload counter
func (r *RecordRepository) Save(ctx context.Context, record *models.OnboardingRecord) error {
	res := r.db.WithContext(ctx).Model(record).Select("*").Omit("created_at", "payload_count").Updates(record)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return onboarding.ErrNotFound
	}
	return nil
}

// AppendPayload stores the next history entry. The counter bump and the
// insert share a transaction so sequences stay gapless.
func (r *RecordRepository) AppendPayload(ctx context.Context, record *models.OnboardingRecord, payload *models.OnboardingPayload) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.OnboardingRecord{}).
			Where("id = ?", record.ID).
			UpdateColumn("payload_count", gorm.Expr("payload_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return onboarding.ErrNotFound
		}

		var seq int
		if err := tx.Model(&models.OnboardingRecord{}).
			Where("id = ?", record.ID).
			Pluck("payload_count", &seq).Error; err != nil {
			return err
		}

		payload.RecordID = record.ID
		payload.Sequence = seq
		if payload.ReceivedAt.IsZero() {
			payload.ReceivedAt = time.Now()
		}
		if err := tx.Create(payload).Error; err != nil {
			return translateError(err)
		}

		record.PayloadCount = seq
		return nil
	})
}

// ListPayloads returns a record's history in arrival order
func (r *RecordRepository) ListPayloads(ctx context.Context, recordID uuid.UUID) ([]models.OnboardingPayload, error) {
	var payloads []models.OnboardingPayload
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("sequence ASC").
		Find(&payloads).Error
	return payloads, err
}

// ListStale returns records in the given statuses not touched since
// updatedBefore, oldest first. Records of settled organizations are skipped.
func (r *RecordRepository) ListStale(ctx context.Context, statuses []models.OnboardingStatus, updatedBefore time.Time, limit int) ([]models.OnboardingRecord, error) {
	var records []models.OnboardingRecord
	query := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("updated_at < ?", updatedBefore).
		Where("NOT EXISTS (SELECT 1 FROM organizations WHERE organizations.id = onboarding_records.organization_id AND organizations.onboarding_status IN ?)", settledStatuses).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
