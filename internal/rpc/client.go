package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	pkgrpc "github.com/ponder-go/ponder/pkg/rpc"
)

// Compile-time check to ensure Client implements pkgrpc.EthClient.
var _ pkgrpc.EthClient = (*Client)(nil)

// Client wraps the Ethereum RPC client with the convenience methods the
// engine needs. It performs no retrying itself; that is the Queue's job.
type Client struct {
	eth *ethclient.Client
	rpc *gethrpc.Client
}

// NewClient creates a new RPC client connected to the given endpoint.
func NewClient(ctx context.Context, endpoint string) (*Client, error) {
	rpcClient, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", endpoint, err)
	}

	return &Client{
		eth: ethclient.NewClient(rpcClient),
		rpc: rpcClient,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the chain ID reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// GetBlockHeader retrieves the header for a specific block number.
func (c *Client) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	header, err := c.eth.HeaderByNumber(ctx, big.NewInt(int64(blockNum)))
	if err != nil {
		return nil, wrapNotFound(blockNum, err)
	}
	return header, nil
}

// GetBlockByHash retrieves the full block (with transactions) for a hash.
func (c *Client) GetBlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	return c.eth.BlockByHash(ctx, hash)
}

// GetLatestBlockHeader retrieves the latest block header.
func (c *Client) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, nil)
}

// GetFinalizedBlockHeader retrieves the finalized block header.
func (c *Client) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, big.NewInt(int64(gethrpc.FinalizedBlockNumber)))
}

// GetSafeBlockHeader retrieves the safe block header.
func (c *Client) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, big.NewInt(int64(gethrpc.SafeBlockNumber)))
}

// GetBlockByNumber retrieves the full block, including transactions.
func (c *Client) GetBlockByNumber(ctx context.Context, blockNum uint64) (*types.Block, error) {
	block, err := c.eth.BlockByNumber(ctx, big.NewInt(int64(blockNum)))
	if err != nil {
		return nil, wrapNotFound(blockNum, err)
	}
	return block, nil
}

// GetLogs retrieves logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return c.eth.FilterLogs(ctx, query)
}

// GetTransactionReceipt retrieves the receipt for a transaction hash.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, &pkgrpc.TransactionReceiptNotFoundError{TxHash: txHash.Hex()}
		}
		return nil, err
	}
	return receipt, nil
}

// CallContract executes a read-only contract call at the given block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// BatchGetLogs retrieves logs for multiple filter queries in a single batch call.
func (c *Client) BatchGetLogs(ctx context.Context, queries []ethereum.FilterQuery) ([][]types.Log, error) {
	batch := make([]gethrpc.BatchElem, len(queries))
	results := make([][]types.Log, len(queries))

	for i, query := range queries {
		batch[i] = gethrpc.BatchElem{
			Method: "eth_getLogs",
			Args:   []any{toFilterArg(query)},
			Result: &results[i],
		}
	}

	if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
		return nil, err
	}

	for _, elem := range batch {
		if elem.Error != nil {
			return nil, elem.Error
		}
	}

	return results, nil
}

const maxHeaderBatch = 100

// BatchGetBlockHeaders retrieves headers for multiple block numbers in chunked batch calls.
func (c *Client) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	var allResults []*types.Header

	for i := 0; i < len(blockNums); i += maxHeaderBatch {
		end := min(i+maxHeaderBatch, len(blockNums))
		chunk := blockNums[i:end]

		batch := make([]gethrpc.BatchElem, len(chunk))
		results := make([]*types.Header, len(chunk))

		for j, blockNum := range chunk {
			batch[j] = gethrpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{toBlockNumArg(blockNum), false},
				Result: &results[j],
			}
		}

		if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
			return nil, err
		}

		for _, elem := range batch {
			if elem.Error != nil {
				return nil, elem.Error
			}
		}

		allResults = append(allResults, results...)
	}

	return allResults, nil
}

// BatchGetTransactionReceipts retrieves receipts for multiple transaction hashes in chunked batch calls.
func (c *Client) BatchGetTransactionReceipts(ctx context.Context, txHashes []common.Hash) ([]*types.Receipt, error) {
	var allResults []*types.Receipt

	for i := 0; i < len(txHashes); i += maxHeaderBatch {
		end := min(i+maxHeaderBatch, len(txHashes))
		chunk := txHashes[i:end]

		batch := make([]gethrpc.BatchElem, len(chunk))
		results := make([]*types.Receipt, len(chunk))

		for j, hash := range chunk {
			batch[j] = gethrpc.BatchElem{
				Method: "eth_getTransactionReceipt",
				Args:   []any{hash},
				Result: &results[j],
			}
		}

		if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
			return nil, err
		}

		for _, elem := range batch {
			if elem.Error != nil {
				return nil, elem.Error
			}
		}

		allResults = append(allResults, results...)
	}

	return allResults, nil
}

func wrapNotFound(blockNum uint64, err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return &pkgrpc.BlockNotFoundError{BlockNumber: blockNum}
	}
	return err
}

// toFilterArg converts ethereum.FilterQuery to the format expected by eth_getLogs.
func toFilterArg(q ethereum.FilterQuery) any {
	arg := map[string]any{
		"topics": q.Topics,
	}

	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		if q.FromBlock != nil {
			arg["fromBlock"] = toBlockNumArg(q.FromBlock.Uint64())
		}
		if q.ToBlock != nil {
			arg["toBlock"] = toBlockNumArg(q.ToBlock.Uint64())
		}
	}

	if len(q.Addresses) > 0 {
		if len(q.Addresses) == 1 {
			arg["address"] = q.Addresses[0]
		} else {
			arg["address"] = q.Addresses
		}
	}

	return arg
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}
