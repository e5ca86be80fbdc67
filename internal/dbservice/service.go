// Package dbservice implements the database service described in spec.md
// §4.10: it provisions a namespace's live tables for a build, owns the
// namespace's lease via a background heartbeat, and promotes/demotes rows
// between a build's live tables and its cache tables. Live and cache tables
// live in separate SQLite files, so promotion/flush is a row-level copy
// across two independent connections rather than a single cross-database
// statement.
package dbservice

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ponder-go/ponder/internal/indexstore"
	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgnamespacelock "github.com/ponder-go/ponder/pkg/namespacelock"
	pkgschema "github.com/ponder-go/ponder/pkg/schema"
)

// Config bounds the lease lifecycle.
type Config struct {
	LeaseTTL          time.Duration
	HeartbeatInterval time.Duration
}

var DefaultConfig = Config{LeaseTTL: 60 * time.Second, HeartbeatInterval: 10 * time.Second}

func (c *Config) applyDefaults() {
	if c.LeaseTTL == 0 {
		c.LeaseTTL = DefaultConfig.LeaseTTL
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultConfig.HeartbeatInterval
	}
}

// Service owns one namespace's lease and live/cache table lifecycle. live
// and cache are independent SQLite connections, potentially to separate
// files, so every copy between them goes row-by-row through Go rather than
// through a single SQL statement.
type Service struct {
	live      *sql.DB
	cache     *sql.DB
	lockStore pkgnamespacelock.Store
	namespace string
	cfg       Config
	log       *logger.Logger

	mu              sync.Mutex
	buildID         string
	heartbeatCancel context.CancelFunc
	heartbeatWg     sync.WaitGroup
}

// New creates a Service scoped to one namespace. live holds the namespace's
// working tables; cache holds the build-keyed cache tables shared across
// namespaces (see internal/db.NewSQLiteCacheDB).
func New(live, cache *sql.DB, lockStore pkgnamespacelock.Store, namespace string, cfg Config, log *logger.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		live:      live,
		cache:     cache,
		lockStore: lockStore,
		namespace: namespace,
		cfg:       cfg,
		log:       log.WithComponent("dbservice"),
	}
}

// SetupResult is what setup() returns to the caller.
type SetupResult struct {
	// FinalizedCheckpoint is the checkpoint the engine should resume from:
	// the namespace's own finalized checkpoint on reuse, the cache's
	// common checkpoint on cache promotion, or the zero checkpoint on a
	// fresh build.
	FinalizedCheckpoint string
}

// Setup implements spec.md §4.10's six-step algorithm. schemaJSON is the
// schema's canonical encoding, used to detect a build-compatible reuse.
func (s *Service) Setup(ctx context.Context, schema pkgschema.Schema, schemaJSON, buildID string) (SetupResult, error) {
	prior, hadPrior, err := s.lockStore.Get(s.namespace)
	if err != nil {
		return SetupResult{}, fmt.Errorf("dbservice: reading prior lock state: %w", err)
	}

	now := time.Now().Unix()
	if _, err := s.lockStore.Acquire(s.namespace, buildID, schemaJSON, int64(s.cfg.LeaseTTL.Seconds()), now); err != nil {
		return SetupResult{}, err // *pkgnamespacelock.LockedError on contention
	}

	s.mu.Lock()
	s.buildID = buildID
	s.mu.Unlock()

	switch {
	case hadPrior && prior.BuildID == buildID && prior.SchemaJSON == schemaJSON:
		s.log.Infof("reusing live tables for namespace %q, build %q", s.namespace, buildID)
		return SetupResult{FinalizedCheckpoint: prior.FinalizedCheckpoint}, nil

	default:
		cp, restored, err := s.promoteFromCache(ctx, schema, buildID)
		if err != nil {
			return SetupResult{}, err
		}
		if restored {
			s.log.Infof("restored namespace %q from cache, build %q", s.namespace, buildID)
			return SetupResult{FinalizedCheckpoint: cp}, nil
		}

		if err := s.createFreshTables(ctx, schema, buildID); err != nil {
			return SetupResult{}, err
		}
		s.log.Infof("creating fresh live tables for namespace %q, build %q", s.namespace, buildID)
		return SetupResult{FinalizedCheckpoint: checkpoint.Encode(checkpoint.Zero)}, nil
	}
}

// createFreshTables creates every schema table's physical live table plus
// its user-friendly "namespace.tableName" view, per spec.md §4.10 step 6.
// Tables are created eagerly here rather than lazily on first write, so a
// table is visible immediately after Setup returns.
func (s *Service) createFreshTables(ctx context.Context, schema pkgschema.Schema, buildID string) error {
	for tableName := range schema.Tables {
		liveTable := indexstore.PhysicalTableName(s.namespace, buildID, tableName)
		if err := ensureLiveTable(ctx, s.live, liveTable); err != nil {
			return fmt.Errorf("dbservice: creating live table %s: %w", tableName, err)
		}
		if err := ensureView(ctx, s.live, s.namespace, tableName, liveTable); err != nil {
			return fmt.Errorf("dbservice: creating view for table %s: %w", tableName, err)
		}
	}
	return nil
}

// internalEngineTables are the engine's own bookkeeping tables that share
// the live connection with a namespace's data tables, per the migrations
// under internal/namespacelock/migrations and internal/syncstore/migrations
// (the latter also creates the RPC result cache table), plus the tracking table sql-migrate
// (github.com/rubenv/sql-migrate) creates for itself on every connection it
// runs migrations against, and sqlite_sequence, which SQLite creates for the
// AUTOINCREMENT history tables. None of these belong to any namespace, so
// ListNamespaceTables must never surface them as if a user created them.
var internalEngineTables = map[string]bool{
	"gorp_migrations":              true,
	"sqlite_sequence":              true,
	"namespace_locks":              true,
	"log_filters":                  true,
	"factories":                    true,
	"log_filter_intervals":         true,
	"factory_log_filter_intervals": true,
	"blocks":                       true,
	"transactions":                 true,
	"transaction_receipts":         true,
	"logs":                         true,
	"rpc_request_results":          true,
}

// ListNamespaceTables returns everything a user querying this namespace
// would see: Ponder's own tableName views (with the namespace prefix
// stripped back off) plus any table not created by Ponder at all. Ponder's
// hash-named physical tables and history shadow tables are never listed
// directly, only their views are, and the engine's own internal bookkeeping
// tables (lease, migration tracking, sync store) are excluded outright.
// Per spec.md §8 boundary scenario 3.
func (s *Service) ListNamespaceTables(ctx context.Context) ([]string, error) {
	rows, err := s.live.QueryContext(ctx, `
		SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'ponder_%' AND name NOT LIKE '%__history'`)
	if err != nil {
		return nil, fmt.Errorf("dbservice: listing namespace tables: %w", err)
	}
	defer rows.Close()

	prefix := s.namespace + "."
	var names []string
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, err
		}
		if kind == "view" {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			names = append(names, strings.TrimPrefix(name, prefix))
			continue
		}
		if internalEngineTables[name] {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Start begins the background heartbeat worker.
func (s *Service) Start(ctx context.Context) {
	hctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.heartbeatCancel = cancel
	s.mu.Unlock()

	s.heartbeatWg.Add(1)
	go s.heartbeatWorker(hctx)
}

func (s *Service) heartbeatWorker(ctx context.Context) {
	defer s.heartbeatWg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.lockStore.Heartbeat(s.namespace, time.Now().Unix()); err != nil {
				s.log.Warnf("heartbeat failed for namespace %q: %v", s.namespace, err)
			}
		}
	}
}

// Kill stops the heartbeat, flushes finalized rows to the cache, and
// releases the namespace's lease.
func (s *Service) Kill(ctx context.Context, schema pkgschema.Schema, finalizedCheckpoint string) error {
	s.mu.Lock()
	cancel := s.heartbeatCancel
	buildID := s.buildID
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.heartbeatWg.Wait()
	}

	if buildID != "" {
		if err := s.flushToCache(ctx, schema, buildID, finalizedCheckpoint); err != nil {
			s.log.Warnf("cache flush failed for namespace %q: %v", s.namespace, err)
		}
	}

	if err := s.lockStore.SetFinalizedCheckpoint(s.namespace, finalizedCheckpoint); err != nil {
		s.log.Warnf("persisting finalized checkpoint failed for namespace %q: %v", s.namespace, err)
	}

	return s.lockStore.Release(s.namespace)
}

// cachedRow is one row read out of a cache or live table for copying to the
// other connection.
type cachedRow struct {
	id         string
	data       string
	checkpoint string
	deleted    int
}

// promoteFromCache copies a build's cached finalized rows into fresh live
// tables, returning whether any cache table existed for this build at all.
func (s *Service) promoteFromCache(ctx context.Context, schema pkgschema.Schema, buildID string) (string, bool, error) {
	var maxCheckpoint string
	found := false

	for tableName := range schema.Tables {
		cacheTable := indexstore.CacheTableName(buildID, tableName)
		liveTable := indexstore.PhysicalTableName(s.namespace, buildID, tableName)

		exists, err := tableExists(ctx, s.cache, cacheTable)
		if err != nil {
			return "", false, err
		}
		if !exists {
			continue
		}
		found = true

		rows, err := readRows(ctx, s.cache, cacheTable, "")
		if err != nil {
			return "", false, fmt.Errorf("dbservice: reading cache table %s: %w", tableName, err)
		}

		if err := ensureLiveTable(ctx, s.live, liveTable); err != nil {
			return "", false, err
		}
		if err := ensureView(ctx, s.live, s.namespace, tableName, liveTable); err != nil {
			return "", false, fmt.Errorf("dbservice: creating view for table %s: %w", tableName, err)
		}
		if err := writeRows(ctx, s.live, liveTable, rows); err != nil {
			return "", false, fmt.Errorf("dbservice: promoting cache table %s: %w", tableName, err)
		}

		for _, r := range rows {
			if r.checkpoint > maxCheckpoint {
				maxCheckpoint = r.checkpoint
			}
		}
	}

	return maxCheckpoint, found, nil
}

// flushToCache idempotently copies every live row at or below
// finalizedCheckpoint into the build's cache tables.
func (s *Service) flushToCache(ctx context.Context, schema pkgschema.Schema, buildID, finalizedCheckpoint string) error {
	for tableName := range schema.Tables {
		liveTable := indexstore.PhysicalTableName(s.namespace, buildID, tableName)
		cacheTable := indexstore.CacheTableName(buildID, tableName)

		exists, err := tableExists(ctx, s.live, liveTable)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}

		rows, err := readRows(ctx, s.live, liveTable, finalizedCheckpoint)
		if err != nil {
			return fmt.Errorf("dbservice: reading live table %s: %w", tableName, err)
		}

		if err := ensureCacheTable(ctx, s.cache, cacheTable); err != nil {
			return fmt.Errorf("dbservice: creating cache table %s: %w", tableName, err)
		}
		if err := writeRows(ctx, s.cache, cacheTable, rows); err != nil {
			return fmt.Errorf("dbservice: flushing table %s to cache: %w", tableName, err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("dbservice: checking table existence: %w", err)
	}
	return count > 0, nil
}

func ensureLiveTable(ctx context.Context, db *sql.DB, name string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS "%s" (id TEXT PRIMARY KEY, data TEXT, checkpoint TEXT, deleted INTEGER)`, name)); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS "%s__history" (seq INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT, data TEXT, checkpoint TEXT, deleted INTEGER)`, name))
	return err
}

// ensureView creates the user-friendly "namespace.tableName" view a handler
// host (or a human at a SQLite shell) queries instead of the hash-named
// physical table.
func ensureView(ctx context.Context, db *sql.DB, namespace, tableName, physicalTable string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIEW IF NOT EXISTS "%s.%s" AS SELECT id, data, checkpoint, deleted FROM "%s" WHERE deleted = 0`,
		namespace, tableName, physicalTable))
	return err
}

func ensureCacheTable(ctx context.Context, db *sql.DB, name string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS "%s" (id TEXT PRIMARY KEY, data TEXT, checkpoint TEXT, deleted INTEGER)`, name))
	return err
}

// readRows reads every non-deleted row from table, optionally filtered to
// checkpoint <= maxCheckpoint (an empty maxCheckpoint means no filter).
func readRows(ctx context.Context, db *sql.DB, table, maxCheckpoint string) ([]cachedRow, error) {
	query := fmt.Sprintf(`SELECT id, data, checkpoint, deleted FROM "%s" WHERE deleted = 0`, table)
	args := []any{}
	if maxCheckpoint != "" {
		query += ` AND checkpoint <= ?`
		args = append(args, maxCheckpoint)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cachedRow
	for rows.Next() {
		var r cachedRow
		if err := rows.Scan(&r.id, &r.data, &r.checkpoint, &r.deleted); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// writeRows upserts every row into table on the given connection.
func writeRows(ctx context.Context, db *sql.DB, table string, rows []cachedRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf(
		`INSERT INTO "%s" (id, data, checkpoint, deleted) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, checkpoint = excluded.checkpoint, deleted = excluded.deleted`,
		table)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, stmt, r.id, r.data, r.checkpoint, r.deleted); err != nil {
			return err
		}
	}

	return tx.Commit()
}
