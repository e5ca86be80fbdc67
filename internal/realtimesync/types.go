// Package realtimesync tails the chain head, detects reorganizations by
// parent-hash continuity, and promotes blocks to finalized once they fall
// behind the head by the configured finality window.
package realtimesync

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ponder-go/ponder/pkg/checkpoint"
)

// State is one of the four states a network's realtime sync can be in.
type State int

const (
	Syncing State = iota
	Realtime
	Stalled
	Errored
)

func (s State) String() string {
	switch s {
	case Syncing:
		return "syncing"
	case Realtime:
		return "realtime"
	case Stalled:
		return "stalled"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Config controls polling cadence and the finality/stall windows.
type Config struct {
	PollingInterval     time.Duration
	FinalityBlockCount  uint64
	StallTimeout        time.Duration
}

var DefaultConfig = Config{
	PollingInterval:    3 * time.Second,
	FinalityBlockCount: 64,
	StallTimeout:       60 * time.Second,
}

func (c *Config) applyDefaults() {
	if c.PollingInterval == 0 {
		c.PollingInterval = DefaultConfig.PollingInterval
	}
	if c.FinalityBlockCount == 0 {
		c.FinalityBlockCount = DefaultConfig.FinalityBlockCount
	}
	if c.StallTimeout == 0 {
		c.StallTimeout = DefaultConfig.StallTimeout
	}
}

// IndexStoreRollback is the minimal surface realtimesync needs from the
// indexing store to undo rows written past a reorg's common ancestor. It is
// satisfied by internal/indexstore.Store without creating an import cycle.
type IndexStoreRollback interface {
	RevertToCheckpoint(ctx context.Context, toCheckpoint checkpoint.Checkpoint) error
}

// HeadHandler is invoked with every newly extended, non-reorged block range
// so the caller can fetch and persist logs for it.
type HeadHandler func(ctx context.Context, fromBlock, toBlock uint64) error

// blockRef is the minimal info realtimesync keeps about a tracked header.
type blockRef struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  uint64
}
