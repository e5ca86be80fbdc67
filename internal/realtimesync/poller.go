package realtimesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/internal/metrics"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgrpc "github.com/ponder-go/ponder/pkg/rpc"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

// Poller tails one network's chain head via polling, maintaining an
// in-memory ring of the last FinalityBlockCount headers to detect reorgs
// by parent-hash continuity.
type Poller struct {
	cfg     Config
	chainID uint64
	rpc     pkgrpc.EthClient
	store   pkgsyncstore.Store
	indexes IndexStoreRollback
	onHead  HeadHandler
	log     *logger.Logger

	mu      sync.Mutex
	state   State
	chain   []blockRef // oldest first, bounded to FinalityBlockCount
	lastSeenHead time.Time
}

// New creates a Poller for one network.
func New(cfg Config, chainID uint64, rpcClient pkgrpc.EthClient, store pkgsyncstore.Store, indexes IndexStoreRollback, onHead HeadHandler, log *logger.Logger) *Poller {
	cfg.applyDefaults()
	return &Poller{
		cfg:     cfg,
		chainID: chainID,
		rpc:     rpcClient,
		store:   store,
		indexes: indexes,
		onHead:  onHead,
		log:     log.WithComponent("realtimesync").WithChain(chainID),
		state:   Syncing,
	}
}

// State returns the poller's current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	changed := p.state != s
	p.state = s
	p.mu.Unlock()
	if changed {
		metrics.RealtimeSyncState.WithLabelValues(fmt.Sprint(p.chainID)).Set(float64(s))
		p.log.Infof("state transition to %s", s)
	}
}

// MarkCaughtUp transitions Syncing -> Realtime once historical gaps are
// empty, per spec.md §4.5's transition table.
func (p *Poller) MarkCaughtUp() {
	if p.State() == Syncing {
		p.setState(Realtime)
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollingInterval)
	defer ticker.Stop()

	p.lastSeenHead = time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				p.log.Errorf("poll failed: %v", err)
				if !isRetryable(err) {
					p.setState(Errored)
					return fmt.Errorf("realtimesync: fatal error: %w", err)
				}
			}
			p.checkStall()
		}
	}
}

func (p *Poller) checkStall() {
	if time.Since(p.lastSeenHead) > p.cfg.StallTimeout {
		p.setState(Stalled)
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	latestHeader, err := p.rpc.GetLatestBlockHeader(ctx)
	if err != nil {
		return fmt.Errorf("fetching latest header: %w", err)
	}

	block, err := p.rpc.GetBlockByNumber(ctx, latestHeader.Number.Uint64())
	if err != nil {
		return fmt.Errorf("fetching latest block: %w", err)
	}
	head := blockRef{
		Number:     block.NumberU64(),
		Hash:       block.Hash(),
		ParentHash: block.ParentHash(),
		Timestamp:  block.Time(),
	}

	p.mu.Lock()
	tip := blockRef{}
	if len(p.chain) > 0 {
		tip = p.chain[len(p.chain)-1]
	}
	p.mu.Unlock()

	if head.Hash == tip.Hash {
		// No new head yet; nothing to do.
		return nil
	}

	p.lastSeenHead = time.Now()

	switch {
	case continuesTip(tip, head):
		if err := p.extend(ctx, tip, head); err != nil {
			return err
		}
	default:
		if err := p.handleReorg(ctx, head); err != nil {
			return err
		}
	}

	if err := p.finalize(ctx, head.Number); err != nil {
		return fmt.Errorf("finalizing: %w", err)
	}

	p.MarkCaughtUp()
	if p.State() == Stalled {
		p.setState(Realtime)
	}

	return nil
}

var blockRefZero = blockRef{}

// continuesTip reports whether head builds directly on tip: either tip is
// the empty chain start, or head's parent is tip. Any other case -
// including a competing block at or below tip's height - is a reorg, not
// a continuation.
func continuesTip(tip, head blockRef) bool {
	return tip.Hash == blockRefZero.Hash || head.ParentHash == tip.Hash
}

// extend appends head to the tracked chain and fetches logs for the newly
// visible range (tip.Number+1 .. head.Number).
func (p *Poller) extend(ctx context.Context, tip, head blockRef) error {
	fromBlock := tip.Number + 1
	if tip.Hash == blockRefZero.Hash {
		fromBlock = head.Number
	}

	p.mu.Lock()
	p.chain = append(p.chain, head)
	if uint64(len(p.chain)) > p.cfg.FinalityBlockCount*2 {
		p.chain = p.chain[uint64(len(p.chain))-p.cfg.FinalityBlockCount:]
	}
	p.mu.Unlock()

	if p.onHead != nil {
		if err := p.onHead(ctx, fromBlock, head.Number); err != nil {
			return fmt.Errorf("head handler: %w", err)
		}
	}

	metrics.BlocksProcessed.WithLabelValues(fmt.Sprint(p.chainID), "realtime").Add(float64(head.Number - fromBlock + 1))
	metrics.LastIndexedBlock.WithLabelValues(fmt.Sprint(p.chainID)).Set(float64(head.Number))

	return nil
}

// handleReorg walks back the tracked chain to find the common ancestor with
// the new head's lineage, prunes the sync store above it, rolls the
// indexing store back to the ancestor's checkpoint, then re-extends forward.
func (p *Poller) handleReorg(ctx context.Context, head blockRef) error {
	metrics.ReorgsDetected.WithLabelValues(fmt.Sprint(p.chainID)).Inc()

	ancestor, err := p.findCommonAncestor(ctx, head)
	if err != nil {
		return fmt.Errorf("finding common ancestor: %w", err)
	}

	p.log.Warnf("reorg detected, rolling back to ancestor block %d", ancestor.Number)

	if err := p.store.PruneByBlock(ctx, p.chainID, ancestor.Number); err != nil {
		return fmt.Errorf("pruning sync store: %w", err)
	}

	if p.indexes != nil {
		// TransactionIndex/EventIndex are pinned to their maximum values so
		// RevertToCheckpoint's strictly-above comparison only undoes blocks
		// after the ancestor, not events within it: the ancestor block must
		// survive a reorg intact.
		ancestorCheckpoint := checkpoint.Checkpoint{
			BlockTimestamp:   ancestor.Timestamp,
			ChainID:          p.chainID,
			BlockNumber:      ancestor.Number,
			TransactionIndex: checkpoint.Max.TransactionIndex,
			EventIndex:       checkpoint.Max.EventIndex,
		}
		if err := p.indexes.RevertToCheckpoint(ctx, ancestorCheckpoint); err != nil {
			return fmt.Errorf("rolling back indexing store: %w", err)
		}
	}

	p.mu.Lock()
	truncated := p.chain[:0]
	for _, b := range p.chain {
		if b.Number <= ancestor.Number {
			truncated = append(truncated, b)
		}
	}
	p.chain = truncated
	p.mu.Unlock()

	return p.extend(ctx, ancestor, head)
}

// findCommonAncestor walks back from head via ParentHash lookups until it
// finds a block number present in the tracked chain with a matching hash.
func (p *Poller) findCommonAncestor(ctx context.Context, head blockRef) (blockRef, error) {
	p.mu.Lock()
	tracked := make(map[uint64]common.Hash, len(p.chain))
	for _, b := range p.chain {
		tracked[b.Number] = b.Hash
	}
	p.mu.Unlock()

	current := head
	for {
		if h, ok := tracked[current.Number]; ok && h == current.Hash {
			return current, nil
		}
		if current.Number == 0 {
			return current, nil
		}

		block, err := p.rpc.GetBlockByNumber(ctx, current.Number-1)
		if err != nil {
			return blockRef{}, fmt.Errorf("fetching block %d: %w", current.Number-1, err)
		}
		current = blockRef{
			Number:     block.NumberU64(),
			Hash:       block.Hash(),
			ParentHash: block.ParentHash(),
			Timestamp:  block.Time(),
		}
	}
}

// finalize promotes blocks at or below head-FinalityBlockCount. The actual
// flush-to-cache/advance-checkpoint step belongs to the database service
// (internal/dbservice); here we only trim the in-memory ring so memory
// stays bounded.
func (p *Poller) finalize(ctx context.Context, headNumber uint64) error {
	if headNumber < p.cfg.FinalityBlockCount {
		return nil
	}
	finalizedBoundary := headNumber - p.cfg.FinalityBlockCount

	p.mu.Lock()
	kept := p.chain[:0]
	for _, b := range p.chain {
		if b.Number > finalizedBoundary {
			kept = append(kept, b)
		}
	}
	p.chain = kept
	p.mu.Unlock()

	return nil
}

func isRetryable(err error) bool {
	// Non-retryable errors are those the request queue has already given up
	// on after exhausting its own retries; surface those as fatal.
	var rpcErr *pkgrpc.RpcError
	return !asRPCError(err, &rpcErr)
}

func asRPCError(err error, target **pkgrpc.RpcError) bool {
	return errors.As(err, target)
}
