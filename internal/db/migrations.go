package db

import (
	"database/sql"
	"fmt"
	"strings"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/ponder-go/ponder/internal/logger"
)

const (
	upDownSeparator   = "-- +migrate Up"
	downMarker        = "-- +migrate Down"
	noLimitMigrations = 0
	migrationDirections = 2
)

// Migration is one embedded SQL migration file, split on the
// "-- +migrate Up" marker into down/up sections.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrations opens dbPath and applies all pending migrations.
func RunMigrations(dbPath string, migrations []Migration) error {
	conn, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("db: open %s for migrations: %w", dbPath, err)
	}
	return RunMigrationsDB(logger.GetDefaultLogger(), conn, migrations)
}

// RunMigrationsDB applies all pending migrations against an open handle.
func RunMigrationsDB(log *logger.Logger, conn *sql.DB, migrations []Migration) error {
	return RunMigrationsDBExtended(log, conn, migrations, migrate.Up, noLimitMigrations)
}

// RunMigrationsDBExtended applies migrations in the given direction, up to
// maxMigrations (0 for no limit).
func RunMigrationsDBExtended(log *logger.Logger, conn *sql.DB, migrations []Migration, dir migrate.MigrationDirection, maxMigrations int) error {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	migs := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}
	if maxMigrations != noLimitMigrations {
		migrate.SetIgnoreUnknown(true)
	}

	for _, m := range migrations {
		parts := strings.Split(m.SQL, upDownSeparator)
		if len(parts) < migrationDirections {
			return fmt.Errorf("db: migration %s missing %q separator", m.ID, upDownSeparator)
		}

		downSQL := parts[0]
		if idx := strings.Index(downSQL, downMarker); idx != -1 {
			downSQL = strings.TrimSpace(downSQL[idx+len(downMarker):])
		} else {
			downSQL = strings.TrimSpace(downSQL)
		}

		upSQL := strings.TrimSpace(parts[1])

		migs.Migrations = append(migs.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{upSQL},
			Down: []string{downSQL},
		})
	}

	var names strings.Builder
	for _, m := range migs.Migrations {
		names.WriteString(m.Id + ", ")
	}

	log.Debugf("running migrations (max %d/%d): %s", maxMigrations, len(migs.Migrations), names.String())

	n, err := migrate.ExecMax(conn, "sqlite3", migs, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("db: exec migrations (max %d/%d, %s): %w", maxMigrations, len(migs.Migrations), names.String(), err)
	}

	log.Infof("applied %d migrations: %s", n, names.String())
	return nil
}
