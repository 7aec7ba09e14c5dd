package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/revaspay/onboarding/internal/models"
	"gorm.io/gorm"
)

func createOrganizationTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_organization_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.User{},
				&models.UserAccountSlot{},
				&models.Organization{},
				&models.OrganizationMember{},
				&models.OrganizationEntity{},
				&models.EntityAMLStatus{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&models.EntityAMLStatus{},
				&models.OrganizationEntity{},
				&models.OrganizationMember{},
				&models.Organization{},
				&models.UserAccountSlot{},
				&models.User{},
			)
		},
	}
}
