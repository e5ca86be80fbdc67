package indexstore

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgindexstore "github.com/ponder-go/ponder/pkg/indexstore"
	pkgschema "github.com/ponder-go/ponder/pkg/schema"
)

func newTestStore(t *testing.T) *Store {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema := pkgschema.Schema{
		Tables: map[string]pkgschema.Table{
			"Account": {
				Name: "Account",
				ID:   pkgschema.Column{Name: "id", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarString},
				Columns: []pkgschema.Column{
					{Name: "balance", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarBigInt},
					{Name: "nickname", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarString, Optional: true},
				},
			},
		},
		Enums: map[string]pkgschema.Enum{},
	}

	return New(db, "testns", "build1", schema, logger.NewNopLogger())
}

func cp(ts uint64) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{BlockTimestamp: ts, ChainID: 1, BlockNumber: ts}
}

func TestCreateAndFindUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Create(ctx, "Account", "0xabc", pkgindexstore.Row{"balance": "100"}, cp(1))
	require.NoError(t, err)

	row, found, err := s.FindUnique(ctx, "Account", "0xabc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "100", row["balance"])
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "Account", "0xabc", pkgindexstore.Row{"balance": "100"}, cp(1)))
	err := s.Create(ctx, "Account", "0xabc", pkgindexstore.Row{"balance": "200"}, cp(2))
	require.Error(t, err)
	var uverr *pkgindexstore.UniqueViolationError
	require.ErrorAs(t, err, &uverr)
}

func TestCreateRejectsMissingRequiredColumn(t *testing.T) {
	s := newTestStore(t)
	err := s.Create(context.Background(), "Account", "0xabc", pkgindexstore.Row{}, cp(1))
	require.Error(t, err)
	var sverr *pkgindexstore.SchemaViolationError
	require.ErrorAs(t, err, &sverr)
}

func TestCreateRejectsWrongScalarType(t *testing.T) {
	s := newTestStore(t)
	err := s.Create(context.Background(), "Account", "0xabc", pkgindexstore.Row{"balance": 100}, cp(1))
	require.Error(t, err)
	var sverr *pkgindexstore.SchemaViolationError
	require.ErrorAs(t, err, &sverr)
}

func TestUpdateAppliesFunctionToCurrentRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "Account", "0xabc", pkgindexstore.Row{"balance": "100"}, cp(1)))

	err := s.Update(ctx, "Account", "0xabc", func(current pkgindexstore.Row) pkgindexstore.Row {
		current["balance"] = "150"
		return current
	}, cp(2))
	require.NoError(t, err)

	row, _, err := s.FindUnique(ctx, "Account", "0xabc")
	require.NoError(t, err)
	require.Equal(t, "150", row["balance"])
}

func TestUpdateOnMissingRowReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(context.Background(), "Account", "missing", func(r pkgindexstore.Row) pkgindexstore.Row { return r }, cp(1))
	require.Error(t, err)
	var nferr *pkgindexstore.NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	create := pkgindexstore.Row{"balance": "10"}
	update := func(current pkgindexstore.Row) pkgindexstore.Row {
		current["balance"] = "20"
		return current
	}

	require.NoError(t, s.Upsert(ctx, "Account", "0xabc", create, update, cp(1)))
	row, _, err := s.FindUnique(ctx, "Account", "0xabc")
	require.NoError(t, err)
	require.Equal(t, "10", row["balance"])

	require.NoError(t, s.Upsert(ctx, "Account", "0xabc", create, update, cp(2)))
	row, _, err = s.FindUnique(ctx, "Account", "0xabc")
	require.NoError(t, err)
	require.Equal(t, "20", row["balance"])
}

func TestDeleteHidesRowFromFindUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "Account", "0xabc", pkgindexstore.Row{"balance": "10"}, cp(1)))

	deleted, err := s.Delete(ctx, "Account", "0xabc", cp(2))
	require.NoError(t, err)
	require.True(t, deleted)

	_, found, err := s.FindUnique(ctx, "Account", "0xabc")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCreateManyInsertsAllRowsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateMany(ctx, "Account", []pkgindexstore.Row{
		{"id": "0x1", "balance": "1"},
		{"id": "0x2", "balance": "2"},
	}, cp(1))
	require.NoError(t, err)

	page, err := s.FindMany(ctx, "Account", pkgindexstore.QueryParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
}

func TestFindManyFiltersByWhereWithinThePage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Interleave matching and non-matching rows so a naive LIMIT-then-filter
	// would drop matches sitting outside the unfiltered window.
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		balance := "100"
		if i%2 == 0 {
			balance = "999"
		}
		require.NoError(t, s.Create(ctx, "Account", id, pkgindexstore.Row{"balance": balance}, cp(uint64(i+1))))
	}

	page, err := s.FindMany(ctx, "Account", pkgindexstore.QueryParams{
		Where: map[string]any{"balance": "100"},
		Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, row := range page.Items {
		require.Equal(t, "100", row["balance"])
	}
}

func TestFindManyPaginatesWithCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, s.Create(ctx, "Account", id, pkgindexstore.Row{"balance": "1"}, cp(uint64(i+1))))
	}

	page, err := s.FindMany(ctx, "Account", pkgindexstore.QueryParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.True(t, page.PageInfo.HasNextPage)

	cursor := page.PageInfo.EndCursor
	page2, err := s.FindMany(ctx, "Account", pkgindexstore.QueryParams{Limit: 2, After: &cursor})
	require.NoError(t, err)
	require.Len(t, page2.Items, 2)
	require.NotEqual(t, page.Items[0]["id"], page2.Items[0]["id"])
}

func TestRevertToCheckpointUndoesLaterWritesAndRestoresPriorVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "Account", "0xabc", pkgindexstore.Row{"balance": "100"}, cp(1)))
	require.NoError(t, s.Update(ctx, "Account", "0xabc", func(r pkgindexstore.Row) pkgindexstore.Row {
		r["balance"] = "200"
		return r
	}, cp(5)))

	require.NoError(t, s.RevertToCheckpoint(ctx, cp(3)))

	row, found, err := s.FindUnique(ctx, "Account", "0xabc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "100", row["balance"])
}

func TestRevertToCheckpointRemovesRowCreatedAfterCheckpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "Account", "0xabc", pkgindexstore.Row{"balance": "100"}, cp(5)))
	require.NoError(t, s.RevertToCheckpoint(ctx, cp(1)))

	_, found, err := s.FindUnique(ctx, "Account", "0xabc")
	require.NoError(t, err)
	require.False(t, found)
}
