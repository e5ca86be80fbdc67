package historicalsync

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/ponder-go/ponder/internal/logger"
	pkgrpc "github.com/ponder-go/ponder/pkg/rpc"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

type fakeEthClient struct {
	pkgrpc.EthClient
	logs    []types.Log
	headers map[uint64]*types.Header
}

func (f *fakeEthClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeEthClient) GetBlockByNumber(ctx context.Context, blockNum uint64) (*types.Block, error) {
	h := f.headers[blockNum]
	return types.NewBlockWithHeader(h), nil
}

func (f *fakeEthClient) BatchGetTransactionReceipts(ctx context.Context, txHashes []common.Hash) ([]*types.Receipt, error) {
	out := make([]*types.Receipt, len(txHashes))
	for i := range txHashes {
		out[i] = &types.Receipt{Status: 1}
	}
	return out, nil
}

type fakeStore struct {
	pkgsyncstore.Store
	intervals    map[int64][]pkgsyncstore.Interval
	insertedLogs int
	nextFilterID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{intervals: make(map[int64][]pkgsyncstore.Interval)}
}

func (f *fakeStore) GetLogFilterIntervals(ctx context.Context, id int64) ([]pkgsyncstore.Interval, error) {
	return f.intervals[id], nil
}

func (f *fakeStore) InsertLogFilterInterval(ctx context.Context, id int64, interval pkgsyncstore.Interval) error {
	f.intervals[id] = pkgsyncstore.MergeIntervals(append(f.intervals[id], interval))
	return nil
}

func (f *fakeStore) InsertBlock(ctx context.Context, chainID uint64, header *types.Header) error { return nil }

func (f *fakeStore) InsertTransactions(ctx context.Context, chainID uint64, txs []*types.Transaction, blockHash common.Hash, blockNumber uint64) error {
	return nil
}

func (f *fakeStore) InsertReceipts(ctx context.Context, chainID uint64, receipts []*types.Receipt) error {
	return nil
}

func (f *fakeStore) InsertLogs(ctx context.Context, chainID uint64, events []pkgsyncstore.LogEvent) error {
	f.insertedLogs += len(events)
	return nil
}

func TestSyncSourceFetchesAndInsertsIntervalWhenNothingCached(t *testing.T) {
	blockHash := common.HexToHash("0x1")
	filterID := int64(1)

	rpcClient := &fakeEthClient{
		logs: []types.Log{
			{BlockHash: blockHash, BlockNumber: 5, TxHash: common.HexToHash("0xabc")},
		},
		headers: map[uint64]*types.Header{
			5: {Number: big.NewInt(5), Time: 100},
		},
	}
	store := newFakeStore()

	syncer := New(Config{MaxBlockRange: 100, MaxConcurrency: 2}, rpcClient, store, logger.NewNopLogger(), nil)

	src := Source{
		ChainID:     1,
		LogFilterID: &filterID,
		StartBlock:  0,
		EndBlock:    nil,
		Address:     common.HexToAddress("0xdead"),
	}

	require.NoError(t, syncer.SyncSource(context.Background(), src, 10))
	require.Equal(t, []pkgsyncstore.Interval{{StartBlock: 0, EndBlock: 10}}, store.intervals[filterID])
	require.Equal(t, 1, store.insertedLogs)
}

func TestSyncSourceSkipsFetchWhenFullyCached(t *testing.T) {
	filterID := int64(1)
	store := newFakeStore()
	store.intervals[filterID] = []pkgsyncstore.Interval{{StartBlock: 0, EndBlock: 10}}

	rpcClient := &fakeEthClient{}
	syncer := New(DefaultConfig, rpcClient, store, logger.NewNopLogger(), nil)

	src := Source{ChainID: 1, LogFilterID: &filterID, StartBlock: 0}
	require.NoError(t, syncer.SyncSource(context.Background(), src, 10))
	require.Equal(t, 0, store.insertedLogs)
}
