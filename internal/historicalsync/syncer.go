package historicalsync

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/internal/metrics"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgrpc "github.com/ponder-go/ponder/pkg/rpc"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

// Syncer drives the gap-fill loop for a fixed set of Sources against one
// network's request queue and sync store.
type Syncer struct {
	cfg      Config
	rpc      pkgrpc.EthClient
	store    pkgsyncstore.Store
	log      *logger.Logger
	onProgress ProgressFunc
}

// New creates a Syncer. onProgress may be nil.
func New(cfg Config, rpcClient pkgrpc.EthClient, store pkgsyncstore.Store, log *logger.Logger, onProgress ProgressFunc) *Syncer {
	cfg.applyDefaults()
	return &Syncer{
		cfg:        cfg,
		rpc:        rpcClient,
		store:      store,
		log:        log.WithComponent("historicalsync"),
		onProgress: onProgress,
	}
}

// SyncSource fills every gap in [src.StartBlock, tipBlock] (or src.EndBlock
// if set and lower) not already cached for src, then, for factory sources,
// discovers child addresses and recursively syncs each as a dynamic Source.
func (s *Syncer) SyncSource(ctx context.Context, src Source, tipBlock uint64) error {
	endBlock := tipBlock
	if src.EndBlock != nil && *src.EndBlock < endBlock {
		endBlock = *src.EndBlock
	}
	if src.StartBlock > endBlock {
		return nil
	}

	cached, err := s.cachedIntervals(ctx, src)
	if err != nil {
		return fmt.Errorf("historicalsync: loading cached intervals: %w", err)
	}

	gaps := pkgsyncstore.GapSet(pkgsyncstore.Interval{StartBlock: src.StartBlock, EndBlock: endBlock}, cached)
	if len(gaps) == 0 {
		s.reportProgress(src.ChainID, endBlock+1)
		return nil
	}

	var chunks []pkgsyncstore.Interval
	for _, gap := range gaps {
		chunks = append(chunks, pkgsyncstore.ChunkInterval(gap, s.cfg.MaxBlockRange)...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			if err := s.processChunk(gctx, src, chunk); err != nil {
				return fmt.Errorf("historicalsync: chunk %d-%d: %w", chunk.StartBlock, chunk.EndBlock, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	minUncached, err := s.minUncachedBlock(ctx, src, endBlock)
	if err != nil {
		return err
	}
	s.reportProgress(src.ChainID, minUncached)

	if src.FactoryID != nil {
		return s.syncFactoryChildren(ctx, src, endBlock)
	}

	return nil
}

func (s *Syncer) cachedIntervals(ctx context.Context, src Source) ([]pkgsyncstore.Interval, error) {
	if src.LogFilterID != nil {
		return s.store.GetLogFilterIntervals(ctx, *src.LogFilterID)
	}
	return s.store.GetFactoryLogFilterIntervals(ctx, *src.FactoryID)
}

func (s *Syncer) minUncachedBlock(ctx context.Context, src Source, upperBound uint64) (uint64, error) {
	cached, err := s.cachedIntervals(ctx, src)
	if err != nil {
		return 0, err
	}
	gaps := pkgsyncstore.GapSet(pkgsyncstore.Interval{StartBlock: src.StartBlock, EndBlock: upperBound}, cached)
	if len(gaps) == 0 {
		return upperBound + 1, nil
	}
	return gaps[0].StartBlock, nil
}

func (s *Syncer) reportProgress(chainID, minUncachedBlock uint64) {
	metrics.HistoricalSyncMinUncachedBlock.WithLabelValues(fmt.Sprint(chainID)).Set(float64(minUncachedBlock))
	if s.onProgress != nil {
		s.onProgress(chainID, minUncachedBlock)
	}
}

// processChunk executes the five steps of spec.md §4.4 for one chunk:
// fetch logs, resolve blocks/transactions, resolve receipts, compute
// checkpoints, persist, insert interval.
func (s *Syncer) processChunk(ctx context.Context, src Source, chunk pkgsyncstore.Interval) error {
	query := buildFilterQuery(src, chunk)

	logs, err := s.rpc.GetLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("eth_getLogs: %w", err)
	}

	blockHeaders, blockTxs, err := s.resolveBlocks(ctx, src.ChainID, logs)
	if err != nil {
		return fmt.Errorf("resolving blocks: %w", err)
	}

	var receipts map[common.Hash]*types.Receipt
	if src.IncludeTransactionReceipts {
		receipts, err = s.resolveReceipts(ctx, logs)
		if err != nil {
			return fmt.Errorf("resolving receipts: %w", err)
		}
	}

	events, err := s.buildLogEvents(src, logs, blockHeaders, blockTxs, receipts)
	if err != nil {
		return fmt.Errorf("building log events: %w", err)
	}

	if err := s.persist(ctx, src.ChainID, blockHeaders, blockTxs, receipts, events); err != nil {
		return fmt.Errorf("persisting: %w", err)
	}

	if src.LogFilterID != nil {
		return s.store.InsertLogFilterInterval(ctx, *src.LogFilterID, chunk)
	}
	return s.store.InsertFactoryLogFilterInterval(ctx, *src.FactoryID, chunk)
}

func buildFilterQuery(src Source, chunk pkgsyncstore.Interval) ethereum.FilterQuery {
	from, to := chunk.BigIntRange()
	topics := make([][]common.Hash, 0, 4)
	for _, t := range []*common.Hash{src.Topic0, src.Topic1, src.Topic2, src.Topic3} {
		if t == nil {
			break
		}
		topics = append(topics, []common.Hash{*t})
	}
	return ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{src.Address},
		Topics:    topics,
	}
}

func (s *Syncer) resolveBlocks(ctx context.Context, chainID uint64, logs []types.Log) (map[common.Hash]*types.Header, map[common.Hash][]*types.Transaction, error) {
	headers := make(map[common.Hash]*types.Header)
	blockNums := make(map[common.Hash]uint64)
	for _, l := range logs {
		if _, ok := headers[l.BlockHash]; !ok {
			headers[l.BlockHash] = nil
			blockNums[l.BlockHash] = l.BlockNumber
		}
	}

	txsByBlock := make(map[common.Hash][]*types.Transaction)
	for hash, num := range blockNums {
		block, err := s.rpc.GetBlockByNumber(ctx, num)
		if err != nil {
			return nil, nil, fmt.Errorf("block %d: %w", num, err)
		}
		headers[hash] = block.Header()
		txsByBlock[hash] = block.Transactions()
	}

	return headers, txsByBlock, nil
}

func (s *Syncer) resolveReceipts(ctx context.Context, logs []types.Log) (map[common.Hash]*types.Receipt, error) {
	seen := make(map[common.Hash]struct{})
	var hashes []common.Hash
	for _, l := range logs {
		if _, ok := seen[l.TxHash]; ok {
			continue
		}
		seen[l.TxHash] = struct{}{}
		hashes = append(hashes, l.TxHash)
	}

	receipts, err := s.rpc.BatchGetTransactionReceipts(ctx, hashes)
	if err != nil {
		return nil, err
	}

	out := make(map[common.Hash]*types.Receipt, len(receipts))
	for i, r := range receipts {
		out[hashes[i]] = r
	}
	return out, nil
}

func (s *Syncer) buildLogEvents(
	src Source,
	logs []types.Log,
	headers map[common.Hash]*types.Header,
	txsByBlock map[common.Hash][]*types.Transaction,
	receipts map[common.Hash]*types.Receipt,
) ([]pkgsyncstore.LogEvent, error) {
	events := make([]pkgsyncstore.LogEvent, 0, len(logs))
	for _, l := range logs {
		header, ok := headers[l.BlockHash]
		if !ok || header == nil {
			return nil, fmt.Errorf("missing resolved header for block %s", l.BlockHash)
		}

		var tx *types.Transaction
		for _, candidate := range txsByBlock[l.BlockHash] {
			if candidate.Hash() == l.TxHash {
				tx = candidate
				break
			}
		}

		event := pkgsyncstore.LogEvent{
			Checkpoint: checkpoint.Checkpoint{
				BlockTimestamp:   header.Time,
				ChainID:          src.ChainID,
				BlockNumber:      l.BlockNumber,
				TransactionIndex: uint64(l.TxIndex),
				EventIndex:       uint64(l.Index),
			},
			ChainID:     src.ChainID,
			Log:         l,
			Block:       header,
			Transaction: tx,
			LogFilterID: src.LogFilterID,
			FactoryID:   src.FactoryID,
		}
		if receipts != nil {
			event.Receipt = receipts[l.TxHash]
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *Syncer) persist(
	ctx context.Context,
	chainID uint64,
	headers map[common.Hash]*types.Header,
	txsByBlock map[common.Hash][]*types.Transaction,
	receipts map[common.Hash]*types.Receipt,
	events []pkgsyncstore.LogEvent,
) error {
	for hash, header := range headers {
		if err := s.store.InsertBlock(ctx, chainID, header); err != nil {
			return fmt.Errorf("block %s: %w", hash, err)
		}
		if txs := txsByBlock[hash]; len(txs) > 0 {
			if err := s.store.InsertTransactions(ctx, chainID, txs, hash, header.Number.Uint64()); err != nil {
				return fmt.Errorf("transactions for block %s: %w", hash, err)
			}
		}
	}

	if len(receipts) > 0 {
		rs := make([]*types.Receipt, 0, len(receipts))
		for _, r := range receipts {
			rs = append(rs, r)
		}
		if err := s.store.InsertReceipts(ctx, chainID, rs); err != nil {
			return fmt.Errorf("receipts: %w", err)
		}
	}

	if len(events) > 0 {
		metrics.LogsIndexed.WithLabelValues(fmt.Sprint(chainID)).Add(float64(len(events)))
		if err := s.store.InsertLogs(ctx, chainID, events); err != nil {
			return fmt.Errorf("logs: %w", err)
		}
	}

	return nil
}

// syncFactoryChildren materializes child addresses discovered from a
// factory's own filter as dynamic Sources, bounded below by
// max(childCreationBlock, factoryStartBlock) per spec.md §4.4.
func (s *Syncer) syncFactoryChildren(ctx context.Context, factory Source, tipBlock uint64) error {
	children, err := s.store.GetFactoryChildAddresses(ctx, *factory.FactoryID, tipBlock)
	if err != nil {
		return fmt.Errorf("historicalsync: loading factory children: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for addr, creationBlock := range children {
		addr, creationBlock := addr, creationBlock
		g.Go(func() error {
			start := creationBlock
			if factory.StartBlock > start {
				start = factory.StartBlock
			}

			// Each dynamic child gets its own log_filters row so its
			// interval bookkeeping doesn't collide with siblings or with
			// the factory's own discovery filter.
			logFilterID, err := s.store.InsertLogFilter(gctx, pkgsyncstore.LogFilter{
				ChainID:                    factory.ChainID,
				Address:                    addr,
				IncludeTransactionReceipts: factory.IncludeTransactionReceipts,
			})
			if err != nil {
				return fmt.Errorf("registering child log filter for %s: %w", addr, err)
			}

			child := Source{
				ChainID:                    factory.ChainID,
				LogFilterID:                &logFilterID,
				StartBlock:                 start,
				EndBlock:                   factory.EndBlock,
				IncludeTransactionReceipts: factory.IncludeTransactionReceipts,
				Address:                    addr,
			}
			return s.SyncSource(gctx, child, tipBlock)
		})
	}

	return g.Wait()
}
