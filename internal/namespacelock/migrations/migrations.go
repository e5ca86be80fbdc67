// Package migrations embeds the namespace lock table's schema migration.
package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/ponder-go/ponder/internal/db"
	"github.com/ponder-go/ponder/internal/logger"
)

//go:embed 001_namespace_locks_init.sql
var mig001 string

// RunMigrations applies all pending namespace lock migrations against dbPath.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, []db.Migration{
		{ID: "001_namespace_locks_init.sql", SQL: mig001},
	})
}

// RunMigrationsDB applies all pending namespace lock migrations against an
// already-open database handle.
func RunMigrationsDB(d *sql.DB) error {
	return db.RunMigrationsDB(logger.GetDefaultLogger(), d, []db.Migration{
		{ID: "001_namespace_locks_init.sql", SQL: mig001},
	})
}
