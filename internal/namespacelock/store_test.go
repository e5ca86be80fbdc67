package namespacelock

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/internal/namespacelock/migrations"
	pkgnamespacelock "github.com/ponder-go/ponder/pkg/namespacelock"
)

func newTestStore(t *testing.T) *Store {
	conn, err := sql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrations.RunMigrationsDB(conn))
	return New(conn, logger.NewNopLogger())
}

func TestAcquireGrantsFreshNamespace(t *testing.T) {
	s := newTestStore(t)
	lock, err := s.Acquire("public", "build1", `{"Account":["id"]}`, 60, 1000)
	require.NoError(t, err)
	require.True(t, lock.IsLocked)
	require.Equal(t, "build1", lock.BuildID)
}

func TestAcquireFailsWhileLeaseIsFresh(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Acquire("public", "build1", "{}", 60, 1000)
	require.NoError(t, err)

	_, err = s.Acquire("public", "build2", "{}", 60, 1010)
	require.Error(t, err)
	var lockedErr *pkgnamespacelock.LockedError
	require.ErrorAs(t, err, &lockedErr)
}

func TestAcquireSucceedsAfterLeaseExpires(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Acquire("public", "build1", "{}", 60, 1000)
	require.NoError(t, err)

	lock, err := s.Acquire("public", "build2", "{}", 60, 1000+61)
	require.NoError(t, err)
	require.Equal(t, "build2", lock.BuildID)
}

func TestHeartbeatUpdatesTimestamp(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Acquire("public", "build1", "{}", 60, 1000)
	require.NoError(t, err)

	require.NoError(t, s.Heartbeat("public", 1050))

	lock, found, err := s.Get("public")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1050), lock.HeartbeatAtUnix)
}

func TestReleaseAllowsImmediateReacquisition(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Acquire("public", "build1", "{}", 60, 1000)
	require.NoError(t, err)
	require.NoError(t, s.Release("public"))

	lock, err := s.Acquire("public", "build2", "{}", 60, 1001)
	require.NoError(t, err)
	require.Equal(t, "build2", lock.BuildID)
}
