// Package syncstore defines the public contract for persisting raw chain
// data (blocks, transactions, receipts, logs) and the interval bookkeeping
// that tracks which block ranges have already been fetched per filter.
package syncstore

import (
	"context"
	"math/big"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ponder-go/ponder/pkg/checkpoint"
)

// LogFilter identifies a fixed address/topic combination being synced.
type LogFilter struct {
	ID                         int64
	ChainID                    uint64
	Address                    common.Address
	Topic0, Topic1, Topic2, Topic3 *common.Hash
	IncludeTransactionReceipts bool
}

// Factory identifies a dynamic address source discovered from a parent
// contract's logs.
type Factory struct {
	ID                         int64
	ChainID                    uint64
	Address                    common.Address
	EventSelector              common.Hash
	ChildAddressLocation       ChildAddressLocation
	Topic0, Topic1, Topic2, Topic3 *common.Hash
	IncludeTransactionReceipts bool
}

// ChildAddressLocation identifies where in a factory event a child address
// is encoded.
type ChildAddressLocation string

const (
	ChildAddressTopic1 ChildAddressLocation = "topic1"
	ChildAddressTopic2 ChildAddressLocation = "topic2"
	ChildAddressTopic3 ChildAddressLocation = "topic3"
)

// IsOffset reports whether the location names a byte offset into log data
// ("offsetN") rather than a topic slot.
func (l ChildAddressLocation) IsOffset() bool {
	return len(l) > len("offset") && l[:len("offset")] == "offset"
}

// Offset parses the byte offset out of an "offsetN" location. ok is false
// if l isn't an offset location or N doesn't parse.
func (l ChildAddressLocation) Offset() (n int, ok bool) {
	if !l.IsOffset() {
		return 0, false
	}
	v, err := strconv.Atoi(string(l[len("offset"):]))
	if err != nil {
		return 0, false
	}
	return v, true
}

// Interval is a closed-closed inclusive block range.
type Interval struct {
	StartBlock uint64
	EndBlock   uint64
}

// Overlaps reports whether two intervals share or abut a block (so they
// should be merged into one).
func (i Interval) Overlaps(other Interval) bool {
	return i.StartBlock <= other.EndBlock+1 && other.StartBlock <= i.EndBlock+1
}

// LogEvent bundles a single log with the chain rows required to compute its
// checkpoint and satisfy the "log implies block+transaction present"
// invariant.
type LogEvent struct {
	Checkpoint  checkpoint.Checkpoint
	ChainID     uint64
	Log         types.Log
	Block       *types.Header
	Transaction *types.Transaction
	Receipt     *types.Receipt // nil unless IncludeTransactionReceipts

	// LogFilterID or FactoryID identifies which filter produced this log,
	// mutually exclusive; used for interval bookkeeping and, for factory
	// logs, child-address extraction.
	LogFilterID *int64
	FactoryID   *int64
}

// GetLogEventsParams bounds a checkpoint-ordered scan over persisted logs.
type GetLogEventsParams struct {
	// ChainID restricts the scan to one network's cursor; required by
	// eventstream's per-network merge since checkpoints order by timestamp
	// first, not by chain.
	ChainID        uint64
	FromCheckpoint checkpoint.Checkpoint
	ToCheckpoint   checkpoint.Checkpoint
	LogFilterIDs   []int64
	FactoryIDs     []int64
	Limit          int
}

// Store is the persistence contract the sync pipeline writes to and the
// event stream reads from.
type Store interface {
	InsertLogFilter(ctx context.Context, f LogFilter) (int64, error)
	InsertFactory(ctx context.Context, f Factory) (int64, error)

	InsertBlock(ctx context.Context, chainID uint64, block *types.Header) error
	InsertTransactions(ctx context.Context, chainID uint64, txs []*types.Transaction, blockHash common.Hash, blockNumber uint64) error
	InsertReceipts(ctx context.Context, chainID uint64, receipts []*types.Receipt) error
	InsertLogs(ctx context.Context, chainID uint64, logs []LogEvent) error

	InsertLogFilterInterval(ctx context.Context, logFilterID int64, interval Interval) error
	GetLogFilterIntervals(ctx context.Context, logFilterID int64) ([]Interval, error)

	InsertFactoryLogFilterInterval(ctx context.Context, factoryID int64, interval Interval) error
	GetFactoryLogFilterIntervals(ctx context.Context, factoryID int64) ([]Interval, error)

	GetFactoryChildAddresses(ctx context.Context, factoryID int64, upToBlock uint64) (map[common.Address]uint64, error)

	GetLogEvents(ctx context.Context, params GetLogEventsParams) (Iterator, error)

	// PruneByBlock removes blocks/transactions/logs/intervals strictly
	// above fromBlock for the given chain, atomically.
	PruneByBlock(ctx context.Context, chainID uint64, fromBlock uint64) error

	// PutRPCRequestResult memoizes an eth_call result for a given block.
	PutRPCRequestResult(ctx context.Context, chainID uint64, blockNumber uint64, requestHash string, result []byte) error
	GetRPCRequestResult(ctx context.Context, chainID uint64, blockNumber uint64, requestHash string) ([]byte, bool, error)

	Close() error
}

// Iterator yields LogEvents in checkpoint order. Callers must call Close.
type Iterator interface {
	Next(ctx context.Context) (LogEvent, bool, error)
	Close() error
}

// GapSet computes requested \ cached for a single filter's interval set,
// used by historical sync to find the block ranges it still needs to fetch.
func GapSet(requested Interval, cached []Interval) []Interval {
	if requested.StartBlock > requested.EndBlock {
		return nil
	}

	merged := MergeIntervals(cached)
	var gaps []Interval
	cursor := requested.StartBlock

	for _, c := range merged {
		if c.EndBlock < cursor {
			continue
		}
		if c.StartBlock > requested.EndBlock {
			break
		}
		if c.StartBlock > cursor {
			end := c.StartBlock - 1
			if end > requested.EndBlock {
				end = requested.EndBlock
			}
			gaps = append(gaps, Interval{StartBlock: cursor, EndBlock: end})
		}
		if c.EndBlock >= cursor {
			cursor = c.EndBlock + 1
		}
		if cursor > requested.EndBlock {
			break
		}
	}

	if cursor <= requested.EndBlock {
		gaps = append(gaps, Interval{StartBlock: cursor, EndBlock: requested.EndBlock})
	}

	return gaps
}

// MergeIntervals sorts and merges overlapping/adjacent intervals in
// O((n+1) log n).
func MergeIntervals(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sortIntervals(sorted)

	merged := []Interval{sorted[0]}
	for _, next := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.Overlaps(next) {
			if next.EndBlock > last.EndBlock {
				last.EndBlock = next.EndBlock
			}
			continue
		}
		merged = append(merged, next)
	}

	return merged
}

// sortIntervals orders intervals by StartBlock in O(n log n).
func sortIntervals(intervals []Interval) {
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].StartBlock < intervals[j].StartBlock
	})
}

// ChunkInterval splits an interval into chunks of at most maxSize blocks.
func ChunkInterval(i Interval, maxSize uint64) []Interval {
	if maxSize == 0 {
		return []Interval{i}
	}

	var chunks []Interval
	start := i.StartBlock
	for start <= i.EndBlock {
		end := start + maxSize - 1
		if end > i.EndBlock {
			end = i.EndBlock
		}
		chunks = append(chunks, Interval{StartBlock: start, EndBlock: end})
		if end == i.EndBlock {
			break
		}
		start = end + 1
	}
	return chunks
}

// BigIntRange returns [StartBlock, EndBlock] as *big.Int for RPC filter
// queries.
func (i Interval) BigIntRange() (from, to *big.Int) {
	return new(big.Int).SetUint64(i.StartBlock), new(big.Int).SetUint64(i.EndBlock)
}
