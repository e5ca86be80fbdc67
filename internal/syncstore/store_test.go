package syncstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/internal/syncstore/migrations"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	conn, err := sql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, migrations.RunMigrationsDB(conn))

	return New(conn, logger.NewNopLogger()), conn
}

func TestInsertLogFilterIntervalMergesWithExisting(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertLogFilter(ctx, pkgsyncstore.LogFilter{ChainID: 1})
	require.NoError(t, err)

	require.NoError(t, store.InsertLogFilterInterval(ctx, id, pkgsyncstore.Interval{StartBlock: 0, EndBlock: 100}))
	require.NoError(t, store.InsertLogFilterInterval(ctx, id, pkgsyncstore.Interval{StartBlock: 101, EndBlock: 200}))

	intervals, err := store.GetLogFilterIntervals(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []pkgsyncstore.Interval{{StartBlock: 0, EndBlock: 200}}, intervals)
}

func TestInsertLogFilterIsIdempotentByUniqueKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	f := pkgsyncstore.LogFilter{ChainID: 1}
	id1, err := store.InsertLogFilter(ctx, f)
	require.NoError(t, err)

	id2, err := store.InsertLogFilter(ctx, f)
	require.NoError(t, err)

	require.Equal(t, id1, id2)
}

func TestGetFactoryChildAddressesHonorsTopicLocation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	factoryID, err := store.InsertFactory(ctx, pkgsyncstore.Factory{
		ChainID:              1,
		Address:              common.HexToAddress("0x1111111111111111111111111111111111111111"),
		EventSelector:        common.HexToHash("0xabc"),
		ChildAddressLocation: pkgsyncstore.ChildAddressTopic2,
	})
	require.NoError(t, err)

	child := common.HexToAddress("0x2222222222222222222222222222222222222222")
	// topic1 deliberately carries an unrelated indexed value, to prove the
	// real child address (in topic2) isn't shadowed by it.
	sender := common.HexToAddress("0x3333333333333333333333333333333333333333")

	require.NoError(t, store.InsertLogs(ctx, 1, []pkgsyncstore.LogEvent{{
		Log: types.Log{
			BlockHash:   common.HexToHash("0xblock1"),
			Index:       0,
			BlockNumber: 100,
			Topics: []common.Hash{
				common.HexToHash("0xabc"),
				common.BytesToHash(sender.Bytes()),
				common.BytesToHash(child.Bytes()),
			},
		},
		FactoryID: &factoryID,
	}}))

	children, err := store.GetFactoryChildAddresses(ctx, factoryID, 1000)
	require.NoError(t, err)
	require.Contains(t, children, child)
	require.NotContains(t, children, sender)
}

func TestGetFactoryChildAddressesHonorsDataOffsetLocation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	factoryID, err := store.InsertFactory(ctx, pkgsyncstore.Factory{
		ChainID:              1,
		Address:              common.HexToAddress("0x1111111111111111111111111111111111111111"),
		EventSelector:        common.HexToHash("0xabc"),
		ChildAddressLocation: "offset32",
	})
	require.NoError(t, err)

	child := common.HexToAddress("0x4444444444444444444444444444444444444444")
	data := make([]byte, 52)
	copy(data[32:52], child.Bytes())

	require.NoError(t, store.InsertLogs(ctx, 1, []pkgsyncstore.LogEvent{{
		Log: types.Log{
			BlockHash:   common.HexToHash("0xblock2"),
			Index:       0,
			BlockNumber: 100,
			Topics:      []common.Hash{common.HexToHash("0xabc")},
			Data:        data,
		},
		FactoryID: &factoryID,
	}}))

	children, err := store.GetFactoryChildAddresses(ctx, factoryID, 1000)
	require.NoError(t, err)
	require.Contains(t, children, child)
}

func TestPutAndGetRPCRequestResult(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.GetRPCRequestResult(ctx, 1, 100, "abc")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.PutRPCRequestResult(ctx, 1, 100, "abc", []byte("result")))

	result, found, err := store.GetRPCRequestResult(ctx, 1, 100, "abc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("result"), result)
}
