package syncstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeIntervalsCombinesOverlappingAndAdjacent(t *testing.T) {
	in := []Interval{
		{StartBlock: 10, EndBlock: 20},
		{StartBlock: 21, EndBlock: 30}, // adjacent
		{StartBlock: 5, EndBlock: 9},   // adjacent, out of order
		{StartBlock: 100, EndBlock: 200},
	}

	merged := MergeIntervals(in)

	require.Equal(t, []Interval{
		{StartBlock: 5, EndBlock: 30},
		{StartBlock: 100, EndBlock: 200},
	}, merged)
}

func TestMergeIntervalsLeavesDisjointRangesSeparate(t *testing.T) {
	in := []Interval{
		{StartBlock: 1, EndBlock: 5},
		{StartBlock: 10, EndBlock: 15},
	}
	require.Equal(t, in, MergeIntervals(in))
}

func TestGapSetReturnsWholeRangeWhenNothingCached(t *testing.T) {
	gaps := GapSet(Interval{StartBlock: 0, EndBlock: 100}, nil)
	require.Equal(t, []Interval{{StartBlock: 0, EndBlock: 100}}, gaps)
}

func TestGapSetSubtractsCachedIntervals(t *testing.T) {
	requested := Interval{StartBlock: 0, EndBlock: 100}
	cached := []Interval{
		{StartBlock: 0, EndBlock: 20},
		{StartBlock: 50, EndBlock: 70},
	}

	gaps := GapSet(requested, cached)

	require.Equal(t, []Interval{
		{StartBlock: 21, EndBlock: 49},
		{StartBlock: 71, EndBlock: 100},
	}, gaps)
}

func TestGapSetReturnsNothingWhenFullyCached(t *testing.T) {
	requested := Interval{StartBlock: 0, EndBlock: 100}
	cached := []Interval{{StartBlock: 0, EndBlock: 100}}

	require.Empty(t, GapSet(requested, cached))
}

func TestChunkIntervalSplitsByMaxSize(t *testing.T) {
	chunks := ChunkInterval(Interval{StartBlock: 0, EndBlock: 25}, 10)

	require.Equal(t, []Interval{
		{StartBlock: 0, EndBlock: 9},
		{StartBlock: 10, EndBlock: 19},
		{StartBlock: 20, EndBlock: 25},
	}, chunks)
}

func TestChunkIntervalSingleChunkWhenSmallerThanMax(t *testing.T) {
	chunks := ChunkInterval(Interval{StartBlock: 5, EndBlock: 8}, 10)
	require.Equal(t, []Interval{{StartBlock: 5, EndBlock: 8}}, chunks)
}
