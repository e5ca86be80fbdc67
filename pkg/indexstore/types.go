// Package indexstore defines the typed-record contract handlers write
// through: create/update/upsert/delete/findUnique/findMany, all keyed by
// (tableName, id) and tagged with the checkpoint that produced them so a
// reorg can revert strictly-above-checkpoint writes.
package indexstore

import (
	"context"
	"fmt"

	"github.com/ponder-go/ponder/pkg/checkpoint"
)

// Row is a typed record's column values, keyed by column name including
// "id". Values are validated against the schema at write time.
type Row map[string]any

// UniqueViolationError is returned by Create when (tableName, id) already
// exists.
type UniqueViolationError struct {
	Table string
	ID    string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("indexstore: %s: row %q already exists", e.Table, e.ID)
}

// NotFoundError is returned by Update when (tableName, id) does not exist.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("indexstore: %s: row %q not found", e.Table, e.ID)
}

// SchemaViolationError is returned when a write's data doesn't match the
// schema's declared columns: a missing required column, a wrong scalar
// type, or a value outside an enum's members. Per spec.md §7 this is a
// SchemaViolation, routed to onFatalError rather than treated as a
// reloadable handler bug.
type SchemaViolationError struct {
	Table  string
	Column string
	Err    error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("indexstore: %s.%s: %v", e.Table, e.Column, e.Err)
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

// UpdateFunc computes a row's new data from its current data, for
// update/upsert calls that need to read-then-write.
type UpdateFunc func(current Row) Row

// QueryParams bounds a findMany scan.
type QueryParams struct {
	// Where matches rows whose columns equal every given value (simple
	// equality filter; richer predicates are out of scope).
	Where map[string]any
	// OrderBy names the column findMany sorts and paginates by; defaults
	// to "id".
	OrderBy string
	// Before/After are opaque cursors from a prior PageInfo.
	Before, After *string
	Limit         int
}

// PageInfo describes one page of a findMany result.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     string
	EndCursor       string
}

// Page is one cursor-paginated findMany result.
type Page struct {
	Items    []Row
	PageInfo PageInfo
}

// Store is the indexing store's contract, scoped to one build's live
// tables.
type Store interface {
	Create(ctx context.Context, table, id string, data Row, cp checkpoint.Checkpoint) error
	CreateMany(ctx context.Context, table string, rows []Row, cp checkpoint.Checkpoint) error
	Update(ctx context.Context, table, id string, update UpdateFunc, cp checkpoint.Checkpoint) error
	Upsert(ctx context.Context, table, id string, create Row, update UpdateFunc, cp checkpoint.Checkpoint) error
	Delete(ctx context.Context, table, id string, cp checkpoint.Checkpoint) (bool, error)

	FindUnique(ctx context.Context, table, id string) (Row, bool, error)
	FindMany(ctx context.Context, table string, params QueryParams) (Page, error)

	// RevertToCheckpoint undoes every write strictly above toCheckpoint,
	// across all tables.
	RevertToCheckpoint(ctx context.Context, toCheckpoint checkpoint.Checkpoint) error

	Close() error
}
