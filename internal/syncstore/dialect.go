package syncstore

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect isolates the handful of SQL differences between backends so
// Store's query building can stay driver-agnostic. Only the SQLite
// dialect is exercised end-to-end by Store today; Postgres is a scaffold
// for the seam spec.md §6 names as a supported target.
type Dialect interface {
	DriverName() string
	Open(dsn string) (*sql.DB, error)
	Placeholder(argIndex int) string
	UpsertIgnore(table, conflictColumns string) string
}

type sqliteDialect struct{}

func (sqliteDialect) DriverName() string { return "sqlite3" }

func (sqliteDialect) Open(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite3", dsn)
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) UpsertIgnore(table, conflictColumns string) string {
	return fmt.Sprintf("INSERT INTO %s", table)
}

// postgresDialect is the scaffold named in the external interfaces section:
// live tables in userNamespace, cache in a ponder_cache schema. Query
// building in Store still assumes SQLite's "?" placeholders; wiring this
// dialect through Store.db is future work tracked in DESIGN.md.
type postgresDialect struct{}

func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) Open(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

func (postgresDialect) Placeholder(argIndex int) string {
	return fmt.Sprintf("$%d", argIndex)
}

func (postgresDialect) UpsertIgnore(table, conflictColumns string) string {
	return fmt.Sprintf("INSERT INTO %s", table)
}

// NewDialect resolves a Dialect by database.kind ("sqlite" or "postgres").
func NewDialect(kind string) (Dialect, error) {
	switch kind {
	case "sqlite", "":
		return sqliteDialect{}, nil
	case "postgres":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("syncstore: unknown database kind %q", kind)
	}
}
