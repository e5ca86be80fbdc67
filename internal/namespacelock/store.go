// Package namespacelock implements the namespace lease table against
// SQLite, using single-row transactions as the CAS target described in
// spec.md §4.10/§5.
package namespacelock

import (
	"database/sql"
	"fmt"

	"github.com/ponder-go/ponder/internal/logger"
	pkgnamespacelock "github.com/ponder-go/ponder/pkg/namespacelock"
)

var _ pkgnamespacelock.Store = (*Store)(nil)

// Store persists namespace_locks rows.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New creates a Store. Callers must have already run the migration that
// creates the namespace_locks table.
func New(db *sql.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log.WithComponent("namespacelock")}
}

// Acquire implements the CAS in spec.md §4.10 steps 1-3 inside one
// transaction: readers never observe a half-acquired row.
func (s *Store) Acquire(namespace, buildID, schemaJSON string, leaseTTLSeconds int64, nowUnix int64) (pkgnamespacelock.Lock, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return pkgnamespacelock.Lock{}, fmt.Errorf("namespacelock: begin acquire: %w", err)
	}
	defer tx.Rollback()

	var existing pkgnamespacelock.Lock
	var isLocked int
	err = tx.QueryRow(`SELECT namespace, is_locked, heartbeat_at, build_id, finalized_checkpoint, schema_json
		FROM namespace_locks WHERE namespace = ?`, namespace).
		Scan(&existing.Namespace, &isLocked, &existing.HeartbeatAtUnix, &existing.BuildID, &existing.FinalizedCheckpoint, &existing.SchemaJSON)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO namespace_locks (namespace, is_locked, heartbeat_at, build_id, finalized_checkpoint, schema_json)
			VALUES (?, 1, ?, ?, '', ?)`, namespace, nowUnix, buildID, schemaJSON); err != nil {
			return pkgnamespacelock.Lock{}, fmt.Errorf("namespacelock: inserting lock row: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return pkgnamespacelock.Lock{}, err
		}
		return pkgnamespacelock.Lock{Namespace: namespace, IsLocked: true, HeartbeatAtUnix: nowUnix, BuildID: buildID, SchemaJSON: schemaJSON}, nil

	case err != nil:
		return pkgnamespacelock.Lock{}, fmt.Errorf("namespacelock: reading lock row: %w", err)
	}

	existing.IsLocked = isLocked == 1
	expired := nowUnix-existing.HeartbeatAtUnix > leaseTTLSeconds

	if existing.IsLocked && !expired {
		msUntilExpiry := (leaseTTLSeconds - (nowUnix - existing.HeartbeatAtUnix)) * 1000
		if msUntilExpiry < 0 {
			msUntilExpiry = 0
		}
		return pkgnamespacelock.Lock{}, &pkgnamespacelock.LockedError{Namespace: namespace, MsUntilExpiry: msUntilExpiry}
	}

	if _, err := tx.Exec(`UPDATE namespace_locks SET is_locked = 1, heartbeat_at = ?, build_id = ?, schema_json = ?
		WHERE namespace = ?`, nowUnix, buildID, schemaJSON, namespace); err != nil {
		return pkgnamespacelock.Lock{}, fmt.Errorf("namespacelock: acquiring lock row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return pkgnamespacelock.Lock{}, err
	}

	existing.IsLocked = true
	existing.HeartbeatAtUnix = nowUnix
	existing.BuildID = buildID
	existing.SchemaJSON = schemaJSON
	return existing, nil
}

func (s *Store) Heartbeat(namespace string, nowUnix int64) error {
	_, err := s.db.Exec(`UPDATE namespace_locks SET heartbeat_at = ? WHERE namespace = ?`, nowUnix, namespace)
	if err != nil {
		return fmt.Errorf("namespacelock: heartbeat: %w", err)
	}
	return nil
}

func (s *Store) Release(namespace string) error {
	_, err := s.db.Exec(`UPDATE namespace_locks SET is_locked = 0 WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("namespacelock: release: %w", err)
	}
	return nil
}

func (s *Store) Get(namespace string) (pkgnamespacelock.Lock, bool, error) {
	var lock pkgnamespacelock.Lock
	var isLocked int
	err := s.db.QueryRow(`SELECT namespace, is_locked, heartbeat_at, build_id, finalized_checkpoint, schema_json
		FROM namespace_locks WHERE namespace = ?`, namespace).
		Scan(&lock.Namespace, &isLocked, &lock.HeartbeatAtUnix, &lock.BuildID, &lock.FinalizedCheckpoint, &lock.SchemaJSON)
	if err == sql.ErrNoRows {
		return pkgnamespacelock.Lock{}, false, nil
	}
	if err != nil {
		return pkgnamespacelock.Lock{}, false, fmt.Errorf("namespacelock: get: %w", err)
	}
	lock.IsLocked = isLocked == 1
	return lock, true, nil
}

func (s *Store) SetFinalizedCheckpoint(namespace, checkpoint string) error {
	_, err := s.db.Exec(`UPDATE namespace_locks SET finalized_checkpoint = ? WHERE namespace = ?`, checkpoint, namespace)
	if err != nil {
		return fmt.Errorf("namespacelock: setFinalizedCheckpoint: %w", err)
	}
	return nil
}
