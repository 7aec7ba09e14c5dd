package migrations

import (
	"log"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// migrationsList holds all migrations in apply order
var migrationsList = []*gormigrate.Migration{
	enableExtensionsMigration(),
	createOrganizationTablesMigration(),
	createOnboardingTablesMigration(),
	createIdentityMappingsMigration(),
	createAuditLogsMigration(),
}

// RunMigrations runs all database migrations
func RunMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrationsList)

	if err := m.Migrate(); err != nil {
		log.Printf("Could not migrate: %v", err)
		return err
	}
	log.Printf("Migrations ran successfully")
	return nil
}

// RollbackLast reverts the most recently applied migration
func RollbackLast(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrationsList)
	if err := m.RollbackLast(); err != nil {
		log.Printf("Could not roll back: %v", err)
		return err
	}
	return nil
}

// IDs lists the migration ids in apply order
func IDs() []string {
	ids := make([]string, 0, len(migrationsList))
	for _, m := range migrationsList {
		ids = append(ids, m.ID)
	}
	return ids
}
