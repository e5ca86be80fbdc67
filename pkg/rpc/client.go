// Package rpc defines the read-only JSON-RPC surface the engine requires
// from an Ethereum node.
package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthClient is the chain interface from spec.md §6. It is read-only: the
// engine never broadcasts transactions.
type EthClient interface {
	Close()

	ChainID(ctx context.Context) (*big.Int, error)

	GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error)
	GetBlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	GetLatestBlockHeader(ctx context.Context) (*types.Header, error)
	GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error)
	GetSafeBlockHeader(ctx context.Context) (*types.Header, error)

	// GetBlockByNumber returns the full block, including transactions.
	GetBlockByNumber(ctx context.Context, blockNum uint64) (*types.Block, error)

	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	BatchGetLogs(ctx context.Context, queries []ethereum.FilterQuery) ([][]types.Log, error)
	BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error)
	BatchGetTransactionReceipts(ctx context.Context, txHashes []common.Hash) ([]*types.Receipt, error)
}
