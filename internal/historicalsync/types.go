// Package historicalsync fetches the block ranges a log filter or factory
// has not yet cached and persists them through the sync store, chunked and
// processed with bounded parallelism.
package historicalsync

import (
	"github.com/ethereum/go-ethereum/common"

	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

// Source is a single thing historical sync keeps cached: either a fixed
// LogFilter or a Factory's own discovery filter. Dynamic child addresses
// discovered from a factory are materialized into additional Sources by
// the Syncer itself, not declared up front.
type Source struct {
	ChainID uint64

	// LogFilterID is set for a fixed-address filter. Mutually exclusive
	// with FactoryID.
	LogFilterID *int64
	// FactoryID is set for a factory's own child-discovery filter.
	FactoryID *int64

	StartBlock uint64
	EndBlock   *uint64 // nil means "track chain tip"

	IncludeTransactionReceipts bool

	// Filter building.
	Address                     common.Address
	Topic0, Topic1, Topic2, Topic3 *common.Hash

	// ChildAddressLocation is set only for factory sources.
	ChildAddressLocation pkgsyncstore.ChildAddressLocation
}

// ProgressFunc reports the lowest block number not yet cached for a chain.
type ProgressFunc func(chainID uint64, minUncachedBlock uint64)

// Config controls chunking and concurrency.
type Config struct {
	// MaxBlockRange bounds the size of a single eth_getLogs chunk.
	MaxBlockRange uint64
	// MaxConcurrency bounds how many chunks of one SyncSource call are in
	// flight at once; the limit is not shared across sources.
	MaxConcurrency int
}

// DefaultConfig mirrors spec.md §4.4's default maxBlockRange of 10,000.
var DefaultConfig = Config{
	MaxBlockRange: 10_000,
	MaxConcurrency: 8,
}

func (c *Config) applyDefaults() {
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = DefaultConfig.MaxBlockRange
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = DefaultConfig.MaxConcurrency
	}
}
