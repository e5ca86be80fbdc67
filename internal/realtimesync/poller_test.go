package realtimesync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

type fakeStore struct {
	pkgsyncstore.Store
	prunedFromBlock uint64
	pruned          bool
}

func (f *fakeStore) PruneByBlock(ctx context.Context, chainID uint64, fromBlock uint64) error {
	f.prunedFromBlock = fromBlock
	f.pruned = true
	return nil
}

type fakeIndexes struct {
	revertedTo checkpoint.Checkpoint
	reverted   bool
}

func (f *fakeIndexes) RevertToCheckpoint(ctx context.Context, toCheckpoint checkpoint.Checkpoint) error {
	f.revertedTo = toCheckpoint
	f.reverted = true
	return nil
}

func TestExtendInvokesHeadHandlerWithCorrectRange(t *testing.T) {
	var gotFrom, gotTo uint64
	p := New(DefaultConfig, 1, nil, &fakeStore{}, nil, func(ctx context.Context, fromBlock, toBlock uint64) error {
		gotFrom, gotTo = fromBlock, toBlock
		return nil
	}, logger.NewNopLogger())

	tip := blockRef{Number: 10}
	head := blockRef{Number: 12}

	require.NoError(t, p.extend(context.Background(), tip, head))
	require.Equal(t, uint64(11), gotFrom)
	require.Equal(t, uint64(12), gotTo)
}

func TestHandleReorgRevertsToMaxCheckpointWithinAncestorBlock(t *testing.T) {
	store := &fakeStore{}
	indexes := &fakeIndexes{}
	p := New(DefaultConfig, 1, nil, store, indexes, func(ctx context.Context, fromBlock, toBlock uint64) error {
		return nil
	}, logger.NewNopLogger())

	ancestor := blockRef{Number: 990, Hash: hashOf(990), Timestamp: 1000}
	p.chain = []blockRef{ancestor}

	require.NoError(t, p.handleReorg(context.Background(), ancestor))

	require.True(t, indexes.reverted)
	require.Equal(t, uint64(990), indexes.revertedTo.BlockNumber)
	require.Equal(t, checkpoint.Max.TransactionIndex, indexes.revertedTo.TransactionIndex)
	require.Equal(t, checkpoint.Max.EventIndex, indexes.revertedTo.EventIndex)

	// A checkpoint at (990, tx=5, event=2) sorts at or below the max-pinned
	// revert target, so events within the ancestor block are not undone.
	withinAncestor := checkpoint.Checkpoint{BlockTimestamp: 1000, ChainID: 1, BlockNumber: 990, TransactionIndex: 5, EventIndex: 2}
	require.True(t, checkpoint.LessOrEqual(withinAncestor, indexes.revertedTo))
}

func TestHandleReorgPrunesFromAncestor(t *testing.T) {
	store := &fakeStore{}
	p := New(DefaultConfig, 1, nil, store, nil, func(ctx context.Context, fromBlock, toBlock uint64) error {
		return nil
	}, logger.NewNopLogger())

	ancestor := blockRef{Number: 5, Hash: hashOf(5)}
	p.chain = []blockRef{
		{Number: 4, Hash: hashOf(4)},
		ancestor,
		{Number: 6, Hash: hashOf(99)}, // stale fork
	}

	// findCommonAncestor would normally walk back via RPC; since the ancestor
	// is already head itself in this synthetic setup, call handleReorg with
	// head == ancestor to exercise prune + re-extend without network calls.
	require.NoError(t, p.handleReorg(context.Background(), ancestor))

	require.True(t, store.pruned)
	require.Equal(t, uint64(5), store.prunedFromBlock)
}

func TestStateTransitionsFromSyncingToRealtimeOnCatchUp(t *testing.T) {
	p := New(DefaultConfig, 1, nil, &fakeStore{}, nil, nil, logger.NewNopLogger())
	require.Equal(t, Syncing, p.State())
	p.MarkCaughtUp()
	require.Equal(t, Realtime, p.State())
}

func hashOf(n uint16) (h [32]byte) {
	h[30] = byte(n >> 8)
	h[31] = byte(n)
	return h
}

func TestContinuesTipOnEmptyChain(t *testing.T) {
	require.True(t, continuesTip(blockRef{}, blockRef{Number: 5, Hash: hashOf(5)}))
}

func TestContinuesTipWhenHeadBuildsOnTip(t *testing.T) {
	tip := blockRef{Number: 10, Hash: hashOf(10)}
	head := blockRef{Number: 11, Hash: hashOf(11), ParentHash: hashOf(10)}
	require.True(t, continuesTip(tip, head))
}

func TestContinuesTipRejectsCompetingBlockAtLowerOrEqualHeight(t *testing.T) {
	tip := blockRef{Number: 10, Hash: hashOf(10)}

	// A competing block at the same height with an unrelated parent is a
	// reorg, not a continuation, even though head.Number <= tip.Number.
	sameHeight := blockRef{Number: 10, Hash: hashOf(99), ParentHash: hashOf(9)}
	require.False(t, continuesTip(tip, sameHeight))

	lowerHeight := blockRef{Number: 8, Hash: hashOf(98), ParentHash: hashOf(7)}
	require.False(t, continuesTip(tip, lowerHeight))
}

func TestContinuesTipRejectsUnrelatedParent(t *testing.T) {
	tip := blockRef{Number: 10, Hash: hashOf(10)}
	head := blockRef{Number: 11, Hash: hashOf(11), ParentHash: hashOf(99)}
	require.False(t, continuesTip(tip, head))
}
