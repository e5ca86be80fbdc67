// Package db provides the low-level SQLite connection and migration
// plumbing shared by the sync store and the database service.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ponder-go/ponder/internal/config"
)

// NewSQLiteDB opens a SQLite database at dbPath with the engine's default
// connection pragmas.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=30000",
		dbPath,
	))
}

// NewSQLiteDBFromConfig opens a SQLite database using the tuning parameters
// from a DatabaseConfig.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"file:%s/ponder.db?_txlock=immediate&_foreign_keys=on&_journal_mode=%s&_busy_timeout=%s",
		cfg.Directory,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", connStr, err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)

	pragmas := []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSizeKB),
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("db: apply pragma %q: %w", pragma, err)
		}
	}

	return conn, nil
}

// NewSQLiteCacheDB opens the separate cache database attached alongside the
// live database, per spec.md §4.10's cache-layout note.
func NewSQLiteCacheDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"file:%s/ponder_cache.db?_txlock=immediate&_foreign_keys=on&_journal_mode=%s&_busy_timeout=%s",
		cfg.Directory,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("db: open cache %s: %w", connStr, err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)

	return conn, nil
}
