package eventstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

type fakeIterator struct {
	events []pkgsyncstore.LogEvent
	pos    int
}

func (f *fakeIterator) Next(ctx context.Context) (pkgsyncstore.LogEvent, bool, error) {
	if f.pos >= len(f.events) {
		return pkgsyncstore.LogEvent{}, false, nil
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, true, nil
}

func (f *fakeIterator) Close() error { return nil }

type fakeStore struct {
	pkgsyncstore.Store
	events []pkgsyncstore.LogEvent
}

func (f *fakeStore) GetLogEvents(ctx context.Context, params pkgsyncstore.GetLogEventsParams) (pkgsyncstore.Iterator, error) {
	var matched []pkgsyncstore.LogEvent
	for _, ev := range f.events {
		if checkpoint.LessOrEqual(params.FromCheckpoint, ev.Checkpoint) && checkpoint.LessOrEqual(ev.Checkpoint, params.ToCheckpoint) {
			matched = append(matched, ev)
		}
	}
	return &fakeIterator{events: matched}, nil
}

func cp(ts, chainID, block uint64) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{BlockTimestamp: ts, ChainID: chainID, BlockNumber: block}
}

func TestNextMergesTwoNetworksInCheckpointOrder(t *testing.T) {
	storeA := &fakeStore{events: []pkgsyncstore.LogEvent{
		{ChainID: 1, Checkpoint: cp(100, 1, 1)},
		{ChainID: 1, Checkpoint: cp(300, 1, 2)},
	}}
	storeB := &fakeStore{events: []pkgsyncstore.LogEvent{
		{ChainID: 2, Checkpoint: cp(200, 2, 1)},
	}}

	safe := cp(1000, 0, 0)
	s := New(DefaultConfig, []NetworkCursor{
		{ChainID: 1, Store: storeA, SafeCheckpoint: func(ctx context.Context) (checkpoint.Checkpoint, error) { return safe, nil }},
		{ChainID: 2, Store: storeB, SafeCheckpoint: func(ctx context.Context) (checkpoint.Checkpoint, error) { return safe, nil }},
	}, logger.NewNopLogger())

	batch, err := s.Next(context.Background(), checkpoint.Zero)
	require.NoError(t, err)
	require.Len(t, batch.Events, 3)
	require.Equal(t, uint64(100), batch.Events[0].Checkpoint.BlockTimestamp)
	require.Equal(t, uint64(200), batch.Events[1].Checkpoint.BlockTimestamp)
	require.Equal(t, uint64(300), batch.Events[2].Checkpoint.BlockTimestamp)
}

func TestNextClampsToMinimumSafeCheckpointAcrossNetworks(t *testing.T) {
	storeA := &fakeStore{events: []pkgsyncstore.LogEvent{
		{ChainID: 1, Checkpoint: cp(500, 1, 1)},
	}}
	storeB := &fakeStore{}

	s := New(DefaultConfig, []NetworkCursor{
		{ChainID: 1, Store: storeA, SafeCheckpoint: func(ctx context.Context) (checkpoint.Checkpoint, error) { return cp(1000, 0, 0), nil }},
		{ChainID: 2, Store: storeB, SafeCheckpoint: func(ctx context.Context) (checkpoint.Checkpoint, error) { return cp(100, 0, 0), nil }},
	}, logger.NewNopLogger())

	batch, err := s.Next(context.Background(), checkpoint.Zero)
	require.NoError(t, err)
	require.Empty(t, batch.Events)
}

func TestNextReturnsEmptyBatchWhenNothingSafelyMergeable(t *testing.T) {
	storeA := &fakeStore{}
	s := New(DefaultConfig, []NetworkCursor{
		{ChainID: 1, Store: storeA, SafeCheckpoint: func(ctx context.Context) (checkpoint.Checkpoint, error) { return checkpoint.Zero, nil }},
	}, logger.NewNopLogger())

	batch, err := s.Next(context.Background(), checkpoint.Zero)
	require.NoError(t, err)
	require.Empty(t, batch.Events)
}
