package postgres

import (
	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/cory-johannsen/crypdoebucks/internal/storage/migration"
	"github.com/cory-johannsen/crypdoebucks/migrations"
)

// NewMigrator opens a migrator for the ledger schema against the database
// at dsn.
//
// Precondition: dsn must be a postgres:// URL.
func NewMigrator(dsn string) (*migration.Migrator, error) {
	return migration.FromURL(migrations.FS, dsn)
}
