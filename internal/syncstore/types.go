package syncstore

import (
	"github.com/ethereum/go-ethereum/common"
)

type dbLogFilter struct {
	ID                         int64          `meddler:"id,pk"`
	ChainID                    uint64         `meddler:"chain_id"`
	Address                    common.Address `meddler:"address,address"`
	Topic0                     *common.Hash   `meddler:"topic0,hash"`
	Topic1                     *common.Hash   `meddler:"topic1,hash"`
	Topic2                     *common.Hash   `meddler:"topic2,hash"`
	Topic3                     *common.Hash   `meddler:"topic3,hash"`
	IncludeTransactionReceipts bool           `meddler:"include_transaction_receipts"`
	CreatedAt                  string         `meddler:"created_at"`
}

type dbFactory struct {
	ID                         int64          `meddler:"id,pk"`
	ChainID                    uint64         `meddler:"chain_id"`
	Address                    common.Address `meddler:"address,address"`
	EventSelector              common.Hash    `meddler:"event_selector,hash"`
	ChildAddressLocation       string         `meddler:"child_address_location"`
	Topic0                     *common.Hash   `meddler:"topic0,hash"`
	Topic1                     *common.Hash   `meddler:"topic1,hash"`
	Topic2                     *common.Hash   `meddler:"topic2,hash"`
	Topic3                     *common.Hash   `meddler:"topic3,hash"`
	IncludeTransactionReceipts bool           `meddler:"include_transaction_receipts"`
	CreatedAt                  string         `meddler:"created_at"`
}

type dbInterval struct {
	ID          int64  `meddler:"id,pk"`
	LogFilterID int64  `meddler:"log_filter_id"`
	StartBlock  uint64 `meddler:"start_block"`
	EndBlock    uint64 `meddler:"end_block"`
	CreatedAt   string `meddler:"created_at"`
}

type dbFactoryInterval struct {
	ID         int64  `meddler:"id,pk"`
	FactoryID  int64  `meddler:"factory_id"`
	StartBlock uint64 `meddler:"start_block"`
	EndBlock   uint64 `meddler:"end_block"`
	CreatedAt  string `meddler:"created_at"`
}

type dbBlock struct {
	ChainID          uint64       `meddler:"chain_id"`
	Hash             common.Hash  `meddler:"hash,hash"`
	Number           uint64       `meddler:"number"`
	Timestamp        uint64       `meddler:"timestamp"`
	ParentHash       common.Hash  `meddler:"parent_hash,hash"`
	Miner            *common.Address `meddler:"miner,address"`
	GasLimit         uint64       `meddler:"gas_limit"`
	GasUsed          uint64       `meddler:"gas_used"`
	BaseFeePerGas    string       `meddler:"base_fee_per_gas,zeroisnull"`
	StateRoot        common.Hash  `meddler:"state_root,hash"`
	TransactionsRoot common.Hash  `meddler:"transactions_root,hash"`
	ReceiptsRoot     common.Hash  `meddler:"receipts_root,hash"`
	LogsBloom        []byte       `meddler:"logs_bloom"`
	Difficulty       string       `meddler:"difficulty,zeroisnull"`
	TotalDifficulty  string       `meddler:"total_difficulty,zeroisnull"`
	ExtraData        []byte       `meddler:"extra_data"`
	MixHash          common.Hash  `meddler:"mix_hash,hash"`
	Nonce            string       `meddler:"nonce,zeroisnull"`
	Size             uint64       `meddler:"size"`
	CreatedAt        string       `meddler:"created_at"`
}

type dbTransaction struct {
	ChainID               uint64          `meddler:"chain_id"`
	Hash                  common.Hash     `meddler:"hash,hash"`
	BlockHash             common.Hash     `meddler:"block_hash,hash"`
	BlockNumber           uint64          `meddler:"block_number"`
	TransactionIndex      uint64          `meddler:"transaction_index"`
	From                  common.Address  `meddler:"from_address,address"`
	To                    *common.Address `meddler:"to_address,address"`
	Input                 []byte          `meddler:"input"`
	Value                 string          `meddler:"value,zeroisnull"`
	Gas                   uint64          `meddler:"gas"`
	GasPrice              string          `meddler:"gas_price,zeroisnull"`
	MaxFeePerGas          string          `meddler:"max_fee_per_gas,zeroisnull"`
	MaxPriorityFeePerGas  string          `meddler:"max_priority_fee_per_gas,zeroisnull"`
	Nonce                 uint64          `meddler:"nonce"`
	AccessList            string          `meddler:"access_list,zeroisnull"`
	Type                  uint8           `meddler:"type"`
	CreatedAt             string          `meddler:"created_at"`
}

type dbReceipt struct {
	ChainID            uint64      `meddler:"chain_id"`
	TransactionHash    common.Hash `meddler:"transaction_hash,hash"`
	Status             uint64      `meddler:"status"`
	LogsBloom          []byte      `meddler:"logs_bloom"`
	GasUsed            uint64      `meddler:"gas_used"`
	CumulativeGasUsed  uint64      `meddler:"cumulative_gas_used"`
	EffectiveGasPrice  string      `meddler:"effective_gas_price,zeroisnull"`
	ContractAddress    *common.Address `meddler:"contract_address,address"`
	CreatedAt          string      `meddler:"created_at"`
}

type dbLog struct {
	ChainID          uint64         `meddler:"chain_id"`
	ID               string         `meddler:"id,pk"`
	Address          common.Address `meddler:"address,address"`
	BlockHash        common.Hash    `meddler:"block_hash,hash"`
	BlockNumber      uint64         `meddler:"block_number"`
	LogIndex         uint64         `meddler:"log_index"`
	Topic0           *common.Hash   `meddler:"topic0,hash"`
	Topic1           *common.Hash   `meddler:"topic1,hash"`
	Topic2           *common.Hash   `meddler:"topic2,hash"`
	Topic3           *common.Hash   `meddler:"topic3,hash"`
	Data             []byte         `meddler:"data"`
	TransactionHash  common.Hash    `meddler:"transaction_hash,hash"`
	TransactionIndex uint64         `meddler:"transaction_index"`
	Checkpoint       string         `meddler:"checkpoint"`
	LogFilterID      *int64         `meddler:"log_filter_id"`
	FactoryID        *int64         `meddler:"factory_id"`
	CreatedAt        string         `meddler:"created_at"`
}

type dbRPCResult struct {
	ChainID     uint64 `meddler:"chain_id"`
	BlockNumber uint64 `meddler:"block_number"`
	RequestHash string `meddler:"request_hash"`
	Result      []byte `meddler:"result"`
	CreatedAt   string `meddler:"created_at"`
}
