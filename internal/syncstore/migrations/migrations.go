// Package migrations embeds the sync store's schema migrations.
package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/ponder-go/ponder/internal/db"
	"github.com/ponder-go/ponder/internal/logger"
)

//go:embed 001_sync_store_init.sql
var mig001 string

// RunMigrations applies all pending sync store migrations against dbPath.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, []db.Migration{
		{ID: "001_sync_store_init.sql", SQL: mig001},
	})
}

// RunMigrationsDB applies all pending sync store migrations against an
// already-open database handle.
func RunMigrationsDB(d *sql.DB) error {
	return db.RunMigrationsDB(logger.GetDefaultLogger(), d, []db.Migration{
		{ID: "001_sync_store_init.sql", SQL: mig001},
	})
}
