package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/revaspay/onboarding/internal/models"
	"gorm.io/gorm"
)

func createIdentityMappingsMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_identity_mappings",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.IdentityMapping{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.IdentityMapping{})
		},
	}
}
