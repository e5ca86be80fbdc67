package dbservice

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/ponder-go/ponder/internal/indexstore"
	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/internal/namespacelock"
	"github.com/ponder-go/ponder/internal/namespacelock/migrations"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgnamespacelock "github.com/ponder-go/ponder/pkg/namespacelock"
	pkgschema "github.com/ponder-go/ponder/pkg/schema"
)

// newTestService opens two independent in-memory databases, one for live
// tables and one for the cache, mirroring the two separate SQLite files the
// engine opens in production.
func newTestService(t *testing.T) (*Service, *sql.DB, *sql.DB) {
	live, err := sql.Open("sqlite3", "file:dbservice_live?mode=memory&cache=shared&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { live.Close() })
	require.NoError(t, migrations.RunMigrationsDB(live))

	cache, err := sql.Open("sqlite3", "file:dbservice_cache?mode=memory&cache=shared&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	lockStore := namespacelock.New(live, logger.NewNopLogger())
	svc := New(live, cache, lockStore, "public", Config{LeaseTTL: time.Minute, HeartbeatInterval: time.Hour}, logger.NewNopLogger())
	return svc, live, cache
}

func testSchema() pkgschema.Schema {
	return pkgschema.Schema{
		Tables: map[string]pkgschema.Table{
			"Account": {Name: "Account", ID: pkgschema.Column{Name: "id", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarString}},
		},
		Enums: map[string]pkgschema.Enum{},
	}
}

func petPersonSchema() pkgschema.Schema {
	return pkgschema.Schema{
		Tables: map[string]pkgschema.Table{
			"Pet": {
				Name: "Pet",
				ID:   pkgschema.Column{Name: "id", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarString},
				Columns: []pkgschema.Column{
					{Name: "name", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarString},
					{Name: "age", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarInt, Optional: true},
				},
			},
			"Person": {
				Name: "Person",
				ID:   pkgschema.Column{Name: "id", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarString},
				Columns: []pkgschema.Column{
					{Name: "name", Kind: pkgschema.KindScalar, Scalar: pkgschema.ScalarString},
				},
			},
		},
		Enums: map[string]pkgschema.Enum{},
	}
}

func TestSetupCreatesFreshTablesOnFirstRun(t *testing.T) {
	svc, _, _ := newTestService(t)
	result, err := svc.Setup(context.Background(), testSchema(), `{"Account":["id"]}`, "build1")
	require.NoError(t, err)
	require.Equal(t, checkpoint.Encode(checkpoint.Zero), result.FinalizedCheckpoint)
}

func TestSetupExposesUserFriendlyViewsPerTable(t *testing.T) {
	svc, _, _ := newTestService(t)
	result, err := svc.Setup(context.Background(), petPersonSchema(), `{"Pet":["id"],"Person":["id"]}`, "abc")
	require.NoError(t, err)
	require.Equal(t, checkpoint.Encode(checkpoint.Zero), result.FinalizedCheckpoint)

	tables, err := svc.ListNamespaceTables(context.Background())
	require.NoError(t, err)
	sort.Strings(tables)
	require.Equal(t, []string{"Person", "Pet"}, tables)
}

func TestListNamespaceTablesPreservesNonPonderTables(t *testing.T) {
	svc, live, _ := newTestService(t)

	_, err := live.Exec(`CREATE TABLE not_a_ponder_table (id TEXT)`)
	require.NoError(t, err)
	_, err = live.Exec(`CREATE TABLE "AnotherTable" (id TEXT)`)
	require.NoError(t, err)

	_, err = svc.Setup(context.Background(), petPersonSchema(), `{"Pet":["id"],"Person":["id"]}`, "build2")
	require.NoError(t, err)

	tables, err := svc.ListNamespaceTables(context.Background())
	require.NoError(t, err)
	sort.Strings(tables)
	require.Equal(t, []string{"AnotherTable", "Person", "Pet", "not_a_ponder_table"}, tables)
}

func TestListNamespaceTablesExcludesEngineBookkeepingTables(t *testing.T) {
	svc, live, _ := newTestService(t)

	_, err := svc.Setup(context.Background(), petPersonSchema(), `{"Pet":["id"],"Person":["id"]}`, "build3")
	require.NoError(t, err)

	// namespace_locks (namespacelock migration) and gorp_migrations
	// (sql-migrate's own tracking table) live on the same connection but
	// belong to the engine, not to the namespace.
	var count int
	require.NoError(t, live.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE name IN ('namespace_locks', 'gorp_migrations')`).Scan(&count))
	require.Equal(t, 2, count)

	tables, err := svc.ListNamespaceTables(context.Background())
	require.NoError(t, err)
	sort.Strings(tables)
	require.Equal(t, []string{"Person", "Pet"}, tables)
}

func TestSetupReusesTablesOnMatchingBuild(t *testing.T) {
	svc, live, cache := newTestService(t)
	schema := testSchema()

	_, err := svc.Setup(context.Background(), schema, `{"Account":["id"]}`, "build1")
	require.NoError(t, err)
	require.NoError(t, svc.Kill(context.Background(), schema, "cp-100"))

	svc2 := New(live, cache, namespacelock.New(live, logger.NewNopLogger()), "public", Config{LeaseTTL: time.Minute, HeartbeatInterval: time.Hour}, logger.NewNopLogger())
	result, err := svc2.Setup(context.Background(), schema, `{"Account":["id"]}`, "build1")
	require.NoError(t, err)
	require.Equal(t, "cp-100", result.FinalizedCheckpoint)
}

func TestSetupFailsOnContendedLease(t *testing.T) {
	svc, live, cache := newTestService(t)
	schema := testSchema()

	_, err := svc.Setup(context.Background(), schema, "{}", "build1")
	require.NoError(t, err)

	svc2 := New(live, cache, namespacelock.New(live, logger.NewNopLogger()), "public", Config{LeaseTTL: time.Minute, HeartbeatInterval: time.Hour}, logger.NewNopLogger())
	_, err = svc2.Setup(context.Background(), schema, "{}", "build2")
	require.Error(t, err)
	var lockedErr *pkgnamespacelock.LockedError
	require.ErrorAs(t, err, &lockedErr)
}

func TestKillFlushesFinalizedRowsToCache(t *testing.T) {
	svc, live, cache := newTestService(t)
	schema := testSchema()

	_, err := svc.Setup(context.Background(), schema, "{}", "build1")
	require.NoError(t, err)

	liveTable := indexstore.PhysicalTableName("public", "build1", "Account")
	_, err = live.Exec(`CREATE TABLE IF NOT EXISTS "` + liveTable + `" (id TEXT PRIMARY KEY, data TEXT, checkpoint TEXT, deleted INTEGER)`)
	require.NoError(t, err)
	_, err = live.Exec(`INSERT INTO "`+liveTable+`" (id, data, checkpoint, deleted) VALUES ('acc1', '{}', 'cp-050', 0)`)
	require.NoError(t, err)

	require.NoError(t, svc.Kill(context.Background(), schema, "cp-100"))

	cacheTable := indexstore.CacheTableName("build1", "Account")
	var count int
	require.NoError(t, cache.QueryRow(`SELECT COUNT(1) FROM "`+cacheTable+`"`).Scan(&count))
	require.Equal(t, 1, count)
}
