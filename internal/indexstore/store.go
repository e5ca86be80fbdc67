// Package indexstore persists typed rows written by handlers into
// per-build physical tables, tagging every write with the checkpoint that
// produced it so a reorg can revert strictly-above-checkpoint writes.
package indexstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgindexstore "github.com/ponder-go/ponder/pkg/indexstore"
	pkgschema "github.com/ponder-go/ponder/pkg/schema"
)

var _ pkgindexstore.Store = (*Store)(nil)

// Store implements pkg/indexstore.Store against SQLite, one physical table
// plus a history shadow table per logical table, scoped to a single
// (namespace, buildId).
type Store struct {
	db        *sql.DB
	namespace string
	buildID   string
	schema    pkgschema.Schema
	log       *logger.Logger

	mu       sync.Mutex
	ensured  map[string]bool
}

// New creates a Store scoped to one build's live tables.
func New(db *sql.DB, namespace, buildID string, schema pkgschema.Schema, log *logger.Logger) *Store {
	return &Store{
		db:        db,
		namespace: namespace,
		buildID:   buildID,
		schema:    schema,
		log:       log.WithComponent("indexstore"),
		ensured:   make(map[string]bool),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) physical(table string) string {
	return PhysicalTableName(s.namespace, s.buildID, table)
}

func (s *Store) ensureTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	phys := s.physical(table)
	if s.ensured[phys] {
		return nil
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			checkpoint TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0
		)`, phys),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s__history" (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			data TEXT,
			checkpoint TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0
		)`, phys),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s__history_id_idx" ON "%s__history" (id, checkpoint)`, phys, phys),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("indexstore: ensuring table %q: %w", table, err)
		}
	}

	s.ensured[phys] = true
	return nil
}

// validate checks data against the schema's table definition. Reference
// values are only checked to be string ids; whether the referenced row
// exists is neither enforced nor logged.
func (s *Store) validate(table, id string, data pkgindexstore.Row) error {
	def, ok := s.schema.Tables[table]
	if !ok {
		return nil // no schema loaded, or table not declared: best-effort passthrough
	}

	for _, col := range def.AllColumns() {
		if col.Name == "id" {
			continue
		}
		value, present := data[col.Name]
		if !present || value == nil {
			if !col.Optional {
				return &pkgindexstore.SchemaViolationError{Table: table, Column: col.Name, Err: fmt.Errorf("missing required column")}
			}
			continue
		}
		if err := validateValue(s.schema, col, value); err != nil {
			return &pkgindexstore.SchemaViolationError{Table: table, Column: col.Name, Err: err}
		}
	}

	return nil
}

func validateValue(schema pkgschema.Schema, col pkgschema.Column, value any) error {
	if col.List {
		list, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected a list")
		}
		for _, item := range list {
			if err := validateScalarOrEnum(schema, col, item); err != nil {
				return err
			}
		}
		return nil
	}
	return validateScalarOrEnum(schema, col, value)
}

func validateScalarOrEnum(schema pkgschema.Schema, col pkgschema.Column, value any) error {
	switch col.Kind {
	case pkgschema.KindEnum:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("enum value must be a string")
		}
		enum := schema.Enums[col.EnumName]
		for _, v := range enum.Values {
			if v == str {
				return nil
			}
		}
		return fmt.Errorf("%q is not a member of enum %s", str, col.EnumName)
	case pkgschema.KindReference:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("reference value must be a string id")
		}
		return nil // existence intentionally not enforced, per spec.md §4.8
	default:
		return validateScalar(col.Scalar, value)
	}
}

func validateScalar(scalar pkgschema.Scalar, value any) error {
	switch scalar {
	case pkgschema.ScalarString, pkgschema.ScalarBigInt, pkgschema.ScalarBytes:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected a string-encoded %s", scalar)
		}
	case pkgschema.ScalarInt:
		switch value.(type) {
		case int, int32, int64, float64:
		default:
			return fmt.Errorf("expected an int")
		}
	case pkgschema.ScalarFloat:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("expected a float")
		}
	case pkgschema.ScalarBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected a bool")
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, table, id string, data pkgindexstore.Row, cp checkpoint.Checkpoint) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	if err := s.validate(table, id, data); err != nil {
		return err
	}

	phys := s.physical(table)
	var exists int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM "%s" WHERE id = ? AND deleted = 0`, phys), id).Scan(&exists)
	if err == nil {
		return &pkgindexstore.UniqueViolationError{Table: table, ID: id}
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("indexstore: checking existing row: %w", err)
	}

	return s.writeRow(ctx, phys, id, data, cp, false)
}

func (s *Store) CreateMany(ctx context.Context, table string, rows []pkgindexstore.Row, cp checkpoint.Checkpoint) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("indexstore: begin createMany: %w", err)
	}
	defer tx.Rollback()

	phys := s.physical(table)
	for _, row := range rows {
		id, ok := row["id"].(string)
		if !ok {
			return fmt.Errorf("indexstore: createMany: row missing string id")
		}
		if err := s.validate(table, id, row); err != nil {
			return err
		}
		if err := writeRowTx(ctx, tx, phys, id, row, cp, false); err != nil {
			return fmt.Errorf("indexstore: createMany: row %q: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *Store) Update(ctx context.Context, table, id string, update pkgindexstore.UpdateFunc, cp checkpoint.Checkpoint) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	current, found, err := s.FindUnique(ctx, table, id)
	if err != nil {
		return err
	}
	if !found {
		return &pkgindexstore.NotFoundError{Table: table, ID: id}
	}

	newData := update(current)
	if err := s.validate(table, id, newData); err != nil {
		return err
	}

	return s.writeRow(ctx, s.physical(table), id, newData, cp, false)
}

func (s *Store) Upsert(ctx context.Context, table, id string, create pkgindexstore.Row, update pkgindexstore.UpdateFunc, cp checkpoint.Checkpoint) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	current, found, err := s.FindUnique(ctx, table, id)
	if err != nil {
		return err
	}

	data := create
	if found {
		data = update(current)
	}

	if err := s.validate(table, id, data); err != nil {
		return err
	}

	return s.writeRow(ctx, s.physical(table), id, data, cp, false)
}

func (s *Store) Delete(ctx context.Context, table, id string, cp checkpoint.Checkpoint) (bool, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return false, err
	}

	_, found, err := s.FindUnique(ctx, table, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if err := s.writeRow(ctx, s.physical(table), id, nil, cp, true); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) writeRow(ctx context.Context, phys, id string, data pkgindexstore.Row, cp checkpoint.Checkpoint, deleted bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("indexstore: begin write: %w", err)
	}
	defer tx.Rollback()

	if err := writeRowTx(ctx, tx, phys, id, data, cp, deleted); err != nil {
		return err
	}

	return tx.Commit()
}

func writeRowTx(ctx context.Context, tx *sql.Tx, phys, id string, data pkgindexstore.Row, cp checkpoint.Checkpoint, deleted bool) error {
	var dataJSON []byte
	var err error
	if data != nil {
		dataJSON, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("indexstore: encoding row: %w", err)
		}
	}

	encodedCp := checkpoint.Encode(cp)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO "%s" (id, data, checkpoint, deleted) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, checkpoint = excluded.checkpoint, deleted = excluded.deleted`,
		phys), id, string(dataJSON), encodedCp, boolToInt(deleted)); err != nil {
		return fmt.Errorf("indexstore: upserting current row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO "%s__history" (id, data, checkpoint, deleted) VALUES (?, ?, ?, ?)`,
		phys), id, string(dataJSON), encodedCp, boolToInt(deleted)); err != nil {
		return fmt.Errorf("indexstore: appending history row: %w", err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) FindUnique(ctx context.Context, table, id string) (pkgindexstore.Row, bool, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, false, err
	}

	var dataJSON sql.NullString
	var deleted int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data, deleted FROM "%s" WHERE id = ?`, s.physical(table)), id).
		Scan(&dataJSON, &deleted)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("indexstore: findUnique: %w", err)
	}
	if deleted == 1 {
		return nil, false, nil
	}

	row, err := decodeRow(id, dataJSON)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func decodeRow(id string, dataJSON sql.NullString) (pkgindexstore.Row, error) {
	row := pkgindexstore.Row{"id": id}
	if !dataJSON.Valid || dataJSON.String == "" {
		return row, nil
	}
	if err := json.Unmarshal([]byte(dataJSON.String), &row); err != nil {
		return nil, fmt.Errorf("indexstore: decoding row: %w", err)
	}
	row["id"] = id
	return row, nil
}

func (s *Store) FindMany(ctx context.Context, table string, params pkgindexstore.QueryParams) (pkgindexstore.Page, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return pkgindexstore.Page{}, err
	}

	orderBy := "id"
	if params.OrderBy != "" {
		orderBy = params.OrderBy
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf(`SELECT id, data FROM "%s" WHERE deleted = 0`, s.physical(table)))
	var args []any

	if params.After != nil {
		b.WriteString(" AND id > ?")
		args = append(args, *params.After)
	}
	if params.Before != nil {
		b.WriteString(" AND id < ?")
		args = append(args, *params.Before)
	}

	whereCols := make([]string, 0, len(params.Where))
	for col := range params.Where {
		whereCols = append(whereCols, col)
	}
	sort.Strings(whereCols)
	for _, col := range whereCols {
		value := params.Where[col]
		if col == "id" {
			b.WriteString(" AND id = ?")
			args = append(args, fmt.Sprint(value))
			continue
		}
		b.WriteString(fmt.Sprintf(" AND json_extract(data, '$.%s') = ?", jsonPathSegment(col)))
		args = append(args, value)
	}

	b.WriteString(fmt.Sprintf(" ORDER BY %s ASC LIMIT ?", quoteIdentifier(orderBy)))
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return pkgindexstore.Page{}, fmt.Errorf("indexstore: findMany: %w", err)
	}
	defer rows.Close()

	var items []pkgindexstore.Row
	for rows.Next() {
		var id string
		var dataJSON sql.NullString
		if err := rows.Scan(&id, &dataJSON); err != nil {
			return pkgindexstore.Page{}, fmt.Errorf("indexstore: scanning row: %w", err)
		}
		row, err := decodeRow(id, dataJSON)
		if err != nil {
			return pkgindexstore.Page{}, err
		}
		items = append(items, row)
	}

	page := pkgindexstore.Page{}
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	page.Items = items
	page.PageInfo.HasNextPage = hasMore
	if len(items) > 0 {
		page.PageInfo.StartCursor = fmt.Sprint(items[0]["id"])
		page.PageInfo.EndCursor = fmt.Sprint(items[len(items)-1]["id"])
	}

	return page, nil
}

// jsonPathSegment escapes a column name for use as a SQLite json_extract
// path segment.
func jsonPathSegment(name string) string {
	return strings.ReplaceAll(name, `"`, `\"`)
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// RevertToCheckpoint undoes writes strictly above toCheckpoint, across
// every table this build has ever written to.
func (s *Store) RevertToCheckpoint(ctx context.Context, toCheckpoint checkpoint.Checkpoint) error {
	tables, err := s.listTables(ctx)
	if err != nil {
		return err
	}

	for _, phys := range tables {
		if err := s.revertTable(ctx, phys, toCheckpoint); err != nil {
			return fmt.Errorf("indexstore: reverting %s: %w", phys, err)
		}
	}
	return nil
}

func (s *Store) listTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'ponder_%' AND name NOT LIKE '%__history'`)
	if err != nil {
		return nil, fmt.Errorf("indexstore: listing tables: %w", err)
	}
	defer rows.Close()

	own := make(map[string]bool, len(s.schema.Tables))
	for table := range s.schema.Tables {
		own[s.physical(table)] = true
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if own[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) revertTable(ctx context.Context, phys string, toCheckpoint checkpoint.Checkpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	encoded := checkpoint.Encode(toCheckpoint)

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT id FROM "%s__history" WHERE checkpoint > ?`, phys), encoded)
	if err != nil {
		return fmt.Errorf("finding affected ids: %w", err)
	}
	var affectedIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		affectedIDs = append(affectedIDs, id)
	}
	rows.Close()

	for _, id := range affectedIDs {
		var dataJSON sql.NullString
		var priorCheckpoint string
		var deleted int
		restoreErr := tx.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT data, checkpoint, deleted FROM "%s__history" WHERE id = ? AND checkpoint <= ? ORDER BY checkpoint DESC, seq DESC LIMIT 1`,
			phys), id, encoded).Scan(&dataJSON, &priorCheckpoint, &deleted)

		switch {
		case restoreErr == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM "%s" WHERE id = ?`, phys), id); err != nil {
				return fmt.Errorf("deleting unwound row %q: %w", id, err)
			}
		case restoreErr != nil:
			return fmt.Errorf("loading prior version of %q: %w", id, restoreErr)
		default:
			// Restore with the row's own prior checkpoint, not the revert
			// target, so its true version stamp survives for a later revert.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				`INSERT INTO "%s" (id, data, checkpoint, deleted) VALUES (?, ?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET data = excluded.data, checkpoint = excluded.checkpoint, deleted = excluded.deleted`,
				phys), id, dataJSON.String, priorCheckpoint, deleted); err != nil {
				return fmt.Errorf("restoring prior version of %q: %w", id, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM "%s__history" WHERE checkpoint > ?`, phys), encoded); err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}

	return tx.Commit()
}
