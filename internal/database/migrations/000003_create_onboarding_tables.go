package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/revaspay/onboarding/internal/models"
	"gorm.io/gorm"
)

func createOnboardingTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_onboarding_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&models.OnboardingRecord{}, &models.OnboardingPayload{}); err != nil {
				return err
			}

			// Stale sweeps filter on status and age
			return tx.Exec(`
				CREATE INDEX IF NOT EXISTS idx_onboarding_records_status_updated
				ON onboarding_records(status, updated_at)
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.OnboardingPayload{}, &models.OnboardingRecord{})
		},
	}
}
