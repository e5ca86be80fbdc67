package rpc

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/internal/metrics"
	pkgrpc "github.com/ponder-go/ponder/pkg/rpc"
)

// QueueConfig controls concurrency, rate, and retry behavior of a Queue.
type QueueConfig struct {
	MaxConcurrentRequests int64
	// MaxRequestsPerSecond bounds the sustained request rate. Zero or less
	// falls back to DefaultQueueConfig's rate.
	MaxRequestsPerSecond int
	Retry                RetryConfig
}

// DefaultQueueConfig mirrors the teacher's downloader defaults: a handful of
// concurrent in-flight requests, conservative retry budget.
var DefaultQueueConfig = QueueConfig{
	MaxConcurrentRequests: 8,
	MaxRequestsPerSecond:  50,
	Retry:                 DefaultRetryConfig,
}

// Queue wraps a pkgrpc.EthClient with concurrency limiting, a
// requests/second token bucket, and retry. It is the concrete type
// historical and realtime sync hold a reference to; it satisfies
// pkgrpc.EthClient itself so either can be used interchangeably in tests.
type Queue struct {
	client  pkgrpc.EthClient
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	cfg     QueueConfig
	log     *logger.Logger
}

var _ pkgrpc.EthClient = (*Queue)(nil)

// NewQueue wraps client with the given concurrency, rate, and retry policy.
func NewQueue(client pkgrpc.EthClient, cfg QueueConfig, log *logger.Logger) *Queue {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = DefaultQueueConfig.MaxConcurrentRequests
	}
	if cfg.MaxRequestsPerSecond <= 0 {
		cfg.MaxRequestsPerSecond = DefaultQueueConfig.MaxRequestsPerSecond
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig
	}

	return &Queue{
		client:  client,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.MaxRequestsPerSecond),
		cfg:     cfg,
		log:     log.WithComponent("rpc_queue"),
	}
}

// do runs fn under the concurrency semaphore and the requests/sec limiter,
// with retry and metrics.
func (q *Queue) do(ctx context.Context, method string, fn func() error) error {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer q.sem.Release(1)

	if err := q.limiter.Wait(ctx); err != nil {
		return err
	}

	metrics.RPCRequestInc(method)
	start := time.Now()

	err := retryWithBackoff(ctx, q.cfg.Retry, method, fn)

	metrics.RPCRequestDuration(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrorInc(method)
	}

	return err
}

func (q *Queue) Close() { q.client.Close() }

func (q *Queue) ChainID(ctx context.Context) (*big.Int, error) {
	var result *big.Int
	err := q.do(ctx, "eth_chainId", func() error {
		v, err := q.client.ChainID(ctx)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	var result *types.Header
	err := q.do(ctx, "eth_getBlockByNumber", func() error {
		v, err := q.client.GetBlockHeader(ctx, blockNum)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) GetBlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	var result *types.Block
	err := q.do(ctx, "eth_getBlockByHash", func() error {
		v, err := q.client.GetBlockByHash(ctx, hash)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	var result *types.Header
	err := q.do(ctx, "eth_getBlockByNumber_latest", func() error {
		v, err := q.client.GetLatestBlockHeader(ctx)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	var result *types.Header
	err := q.do(ctx, "eth_getBlockByNumber_finalized", func() error {
		v, err := q.client.GetFinalizedBlockHeader(ctx)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	var result *types.Header
	err := q.do(ctx, "eth_getBlockByNumber_safe", func() error {
		v, err := q.client.GetSafeBlockHeader(ctx)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) GetBlockByNumber(ctx context.Context, blockNum uint64) (*types.Block, error) {
	var result *types.Block
	err := q.do(ctx, "eth_getBlockByNumber_full", func() error {
		v, err := q.client.GetBlockByNumber(ctx, blockNum)
		result = v
		return err
	})
	return result, err
}

// GetLogs fetches logs for the query, automatically bisecting the block
// range and retrying each half when the node rejects the request for
// returning too many results.
func (q *Queue) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return q.getLogsBisecting(ctx, query)
}

func (q *Queue) getLogsBisecting(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var result []types.Log
	err := q.do(ctx, "eth_getLogs", func() error {
		v, err := q.client.GetLogs(ctx, query)
		result = v
		return err
	})
	if err == nil {
		return result, nil
	}

	if !IsTooManyResultsError(err) {
		return nil, err
	}
	if query.FromBlock == nil || query.ToBlock == nil {
		return nil, err
	}

	from := query.FromBlock.Uint64()
	to := query.ToBlock.Uint64()
	if from >= to {
		return nil, err
	}

	if suggestedFrom, suggestedTo, ok := ParseSuggestedBlockRange(err.Error()); ok && suggestedTo >= suggestedFrom {
		to = suggestedTo
		if to < from {
			return nil, err
		}
		query.ToBlock = new(big.Int).SetUint64(to)
		return q.getLogsBisecting(ctx, query)
	}

	mid := from + (to-from)/2
	firstHalf := query
	firstHalf.FromBlock = new(big.Int).SetUint64(from)
	firstHalf.ToBlock = new(big.Int).SetUint64(mid)

	secondHalf := query
	secondHalf.FromBlock = new(big.Int).SetUint64(mid + 1)
	secondHalf.ToBlock = new(big.Int).SetUint64(to)

	firstLogs, err := q.getLogsBisecting(ctx, firstHalf)
	if err != nil {
		return nil, err
	}

	secondLogs, err := q.getLogsBisecting(ctx, secondHalf)
	if err != nil {
		return nil, err
	}

	return append(firstLogs, secondLogs...), nil
}

func (q *Queue) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var result *types.Receipt
	err := q.do(ctx, "eth_getTransactionReceipt", func() error {
		v, err := q.client.GetTransactionReceipt(ctx, txHash)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	err := q.do(ctx, "eth_call", func() error {
		v, err := q.client.CallContract(ctx, msg, blockNumber)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) BatchGetLogs(ctx context.Context, queries []ethereum.FilterQuery) ([][]types.Log, error) {
	var result [][]types.Log
	err := q.do(ctx, "eth_getLogs_batch", func() error {
		v, err := q.client.BatchGetLogs(ctx, queries)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	var result []*types.Header
	err := q.do(ctx, "eth_getBlockByNumber_batch", func() error {
		v, err := q.client.BatchGetBlockHeaders(ctx, blockNums)
		result = v
		return err
	})
	return result, err
}

func (q *Queue) BatchGetTransactionReceipts(ctx context.Context, txHashes []common.Hash) ([]*types.Receipt, error) {
	var result []*types.Receipt
	err := q.do(ctx, "eth_getTransactionReceipt_batch", func() error {
		v, err := q.client.BatchGetTransactionReceipts(ctx, txHashes)
		result = v
		return err
	})
	return result, err
}
