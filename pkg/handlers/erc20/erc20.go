// Package erc20 provides the engine's built-in ERC20 Transfer/Approval
// handlers, registered against the scheduler the same way any user handler
// would be. They expect a schema with an "Account" table (id, balance), a
// "Transfer" log table (id, from, to, value, blockNumber) and an "Approval"
// log table (id, owner, spender, value, blockNumber).
package erc20

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ponder-go/ponder/internal/scheduler"
	pkgindexstore "github.com/ponder-go/ponder/pkg/indexstore"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

const (
	AccountTable  = "Account"
	TransferTable = "Transfer"
	ApprovalTable = "Approval"
)

var (
	// TransferTopic and ApprovalTopic are the standard ERC20 event
	// signature hashes.
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
)

// NewTransferHandler builds a Registration that debits/credits Account
// balances on every Transfer log from address, and appends a row to the
// Transfer table for it.
func NewTransferHandler(address common.Address) scheduler.Registration {
	topic := TransferTopic
	return scheduler.Registration{
		Name:    fmt.Sprintf("erc20.Transfer(%s)", address.Hex()),
		Address: address,
		Topic0:  &topic,
		Reads:   []string{AccountTable},
		Writes:  []string{AccountTable, TransferTable},
		Handle:  handleTransfer,
	}
}

// NewApprovalHandler builds a Registration that records every Approval log
// from address into the Approval table. Approvals don't move balances, so
// this handler only writes.
func NewApprovalHandler(address common.Address) scheduler.Registration {
	topic := ApprovalTopic
	return scheduler.Registration{
		Name:    fmt.Sprintf("erc20.Approval(%s)", address.Hex()),
		Address: address,
		Topic0:  &topic,
		Writes:  []string{ApprovalTable},
		Handle:  handleApproval,
	}
}

func handleTransfer(hctx scheduler.HandlerContext, event pkgsyncstore.LogEvent) error {
	log := event.Log
	if len(log.Topics) < 3 || len(log.Data) < 32 {
		return fmt.Errorf("erc20: malformed Transfer log at block %d index %d", log.BlockNumber, log.Index)
	}

	from := common.HexToAddress(log.Topics[1].Hex())
	to := common.HexToAddress(log.Topics[2].Hex())
	value := new(big.Int).SetBytes(log.Data[:32])

	if err := adjustBalance(hctx, from, new(big.Int).Neg(value)); err != nil {
		return fmt.Errorf("erc20: debiting %s: %w", from.Hex(), err)
	}
	if err := adjustBalance(hctx, to, value); err != nil {
		return fmt.Errorf("erc20: crediting %s: %w", to.Hex(), err)
	}

	id := fmt.Sprintf("%s-%d", log.TxHash.Hex(), log.Index)
	return hctx.DB.Create(TransferTable, id, pkgindexstore.Row{
		"id":          id,
		"from":        from.Hex(),
		"to":          to.Hex(),
		"value":       value.String(),
		"blockNumber": log.BlockNumber,
	})
}

func handleApproval(hctx scheduler.HandlerContext, event pkgsyncstore.LogEvent) error {
	log := event.Log
	if len(log.Topics) < 3 || len(log.Data) < 32 {
		return fmt.Errorf("erc20: malformed Approval log at block %d index %d", log.BlockNumber, log.Index)
	}

	owner := common.HexToAddress(log.Topics[1].Hex())
	spender := common.HexToAddress(log.Topics[2].Hex())
	value := new(big.Int).SetBytes(log.Data[:32])

	id := fmt.Sprintf("%s-%d", log.TxHash.Hex(), log.Index)
	return hctx.DB.Create(ApprovalTable, id, pkgindexstore.Row{
		"id":          id,
		"owner":       owner.Hex(),
		"spender":     spender.Hex(),
		"value":       value.String(),
		"blockNumber": log.BlockNumber,
	})
}

// adjustBalance upserts an Account row, adding delta to its balance.
// delta is negative for debits.
func adjustBalance(hctx scheduler.HandlerContext, addr common.Address, delta *big.Int) error {
	id := addr.Hex()
	return hctx.DB.Upsert(AccountTable, id,
		pkgindexstore.Row{"id": id, "balance": delta.String()},
		func(current pkgindexstore.Row) pkgindexstore.Row {
			balance := new(big.Int)
			if s, ok := current["balance"].(string); ok {
				balance.SetString(s, 10)
			}
			balance.Add(balance, delta)
			current["balance"] = balance.String()
			return current
		},
	)
}
