package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func enableExtensionsMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_enable_extensions",
		Migrate: func(tx *gorm.DB) error {
			// gen_random_uuid() on postgres < 13
			return tx.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return nil
		},
	}
}
