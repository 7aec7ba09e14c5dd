package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/revaspay/onboarding/internal/utils"
	"gorm.io/gorm"
)

func createAuditLogsMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_audit_logs",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&utils.AuditLog{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&utils.AuditLog{})
		},
	}
}
