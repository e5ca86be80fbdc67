// Package syncstore is the SQLite-backed implementation of pkg/syncstore's
// Store contract.
package syncstore

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/russross/meddler"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

var _ pkgsyncstore.Store = (*Store)(nil)

// Store is the SQLite-backed sync store.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New wraps an already-migrated SQLite connection.
func New(conn *sql.DB, log *logger.Logger) *Store {
	return &Store{db: conn, log: log.WithComponent("sync_store")}
}

func (s *Store) Close() error { return nil }

func (s *Store) InsertLogFilter(ctx context.Context, f pkgsyncstore.LogFilter) (int64, error) {
	row := &dbLogFilter{
		ChainID:                    f.ChainID,
		Address:                    f.Address,
		Topic0:                     f.Topic0,
		Topic1:                     f.Topic1,
		Topic2:                     f.Topic2,
		Topic3:                     f.Topic3,
		IncludeTransactionReceipts: f.IncludeTransactionReceipts,
	}

	// The unique index treats NULL topics as distinct, so an existing row is
	// looked up before inserting rather than relying on a constraint error.
	if existing, err := s.findLogFilter(ctx, f); err == nil && existing != 0 {
		return existing, nil
	}

	if err := meddler.Insert(s.db, "log_filters", row); err != nil {
		if existing, ferr := s.findLogFilter(ctx, f); ferr == nil && existing != 0 {
			return existing, nil
		}
		return 0, fmt.Errorf("syncstore: insert log filter: %w", err)
	}
	return row.ID, nil
}

func (s *Store) findLogFilter(ctx context.Context, f pkgsyncstore.LogFilter) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM log_filters WHERE chain_id = ? AND address = ? AND
			topic0 IS ? AND topic1 IS ? AND topic2 IS ? AND topic3 IS ?`,
		f.ChainID, f.Address.Hex(), hashOrNil(f.Topic0), hashOrNil(f.Topic1), hashOrNil(f.Topic2), hashOrNil(f.Topic3),
	).Scan(&id)
	return id, err
}

func hashOrNil(h *common.Hash) any {
	if h == nil {
		return nil
	}
	return h.Hex()
}

func (s *Store) InsertFactory(ctx context.Context, f pkgsyncstore.Factory) (int64, error) {
	row := &dbFactory{
		ChainID:                    f.ChainID,
		Address:                    f.Address,
		EventSelector:              f.EventSelector,
		ChildAddressLocation:       string(f.ChildAddressLocation),
		Topic0:                     f.Topic0,
		Topic1:                     f.Topic1,
		Topic2:                     f.Topic2,
		Topic3:                     f.Topic3,
		IncludeTransactionReceipts: f.IncludeTransactionReceipts,
	}

	if err := meddler.Insert(s.db, "factories", row); err != nil {
		var id int64
		ferr := s.db.QueryRowContext(ctx,
			`SELECT id FROM factories WHERE chain_id = ? AND address = ? AND event_selector = ?`,
			f.ChainID, f.Address.Hex(), f.EventSelector.Hex(),
		).Scan(&id)
		if ferr == nil {
			return id, nil
		}
		return 0, fmt.Errorf("syncstore: insert factory: %w", err)
	}
	return row.ID, nil
}

func (s *Store) InsertBlock(ctx context.Context, chainID uint64, header *types.Header) error {
	row := &dbBlock{
		ChainID:          chainID,
		Hash:             header.Hash(),
		Number:           header.Number.Uint64(),
		Timestamp:        header.Time,
		ParentHash:       header.ParentHash,
		GasLimit:         header.GasLimit,
		GasUsed:          header.GasUsed,
		StateRoot:        header.Root,
		TransactionsRoot: header.TxHash,
		ReceiptsRoot:     header.ReceiptHash,
		LogsBloom:        header.Bloom.Bytes(),
		ExtraData:        header.Extra,
		MixHash:          header.MixDigest,
		Size:             uint64(header.Size()),
	}

	miner := header.Coinbase
	row.Miner = &miner

	if header.BaseFee != nil {
		row.BaseFeePerGas = header.BaseFee.String()
	}
	if header.Difficulty != nil {
		row.Difficulty = header.Difficulty.String()
	}
	row.Nonce = fmt.Sprintf("%x", header.Nonce)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (chain_id, hash, number, timestamp, parent_hash, miner, gas_limit, gas_used,
			base_fee_per_gas, state_root, transactions_root, receipts_root, logs_bloom, difficulty,
			total_difficulty, extra_data, mix_hash, nonce, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, hash) DO NOTHING`,
		row.ChainID, row.Hash.Hex(), row.Number, row.Timestamp, row.ParentHash.Hex(), row.Miner.Hex(),
		row.GasLimit, row.GasUsed, nullIfEmpty(row.BaseFeePerGas), row.StateRoot.Hex(), row.TransactionsRoot.Hex(),
		row.ReceiptsRoot.Hex(), row.LogsBloom, nullIfEmpty(row.Difficulty), nullIfEmpty(row.TotalDifficulty),
		row.ExtraData, row.MixHash.Hex(), row.Nonce, row.Size,
	)
	if err != nil {
		return fmt.Errorf("syncstore: insert block %d: %w", row.Number, err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) InsertTransactions(ctx context.Context, chainID uint64, txs []*types.Transaction, blockHash common.Hash, blockNumber uint64) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("syncstore: begin insert transactions: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (chain_id, hash, block_hash, block_number, transaction_index, from_address,
			to_address, input, value, gas, gas_price, max_fee_per_gas, max_priority_fee_per_gas, nonce, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, hash) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("syncstore: prepare insert transactions: %w", err)
	}
	defer stmt.Close()

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	for i, t := range txs {
		from, _ := types.Sender(signer, t)
		var to any
		if t.To() != nil {
			to = t.To().Hex()
		}

		_, err := stmt.ExecContext(ctx,
			chainID, t.Hash().Hex(), blockHash.Hex(), blockNumber, i, from.Hex(), to,
			t.Data(), t.Value().String(), t.Gas(), t.GasPrice().String(),
			nullIfZeroBig(t.GasFeeCap()), nullIfZeroBig(t.GasTipCap()), t.Nonce(), t.Type(),
		)
		if err != nil {
			return fmt.Errorf("syncstore: insert transaction %s: %w", t.Hash().Hex(), err)
		}
	}

	return tx.Commit()
}

func nullIfZeroBig(v *big.Int) any {
	if v == nil || v.Sign() == 0 {
		return nil
	}
	return v.String()
}

func (s *Store) InsertReceipts(ctx context.Context, chainID uint64, receipts []*types.Receipt) error {
	if len(receipts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("syncstore: begin insert receipts: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transaction_receipts (chain_id, transaction_hash, status, logs_bloom, gas_used,
			cumulative_gas_used, effective_gas_price, contract_address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, transaction_hash) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("syncstore: prepare insert receipts: %w", err)
	}
	defer stmt.Close()

	for _, r := range receipts {
		var contractAddr any
		if r.ContractAddress != (common.Address{}) {
			contractAddr = r.ContractAddress.Hex()
		}

		_, err := stmt.ExecContext(ctx,
			chainID, r.TxHash.Hex(), r.Status, r.Bloom.Bytes(), r.GasUsed, r.CumulativeGasUsed,
			nullIfZeroBig(r.EffectiveGasPrice), contractAddr,
		)
		if err != nil {
			return fmt.Errorf("syncstore: insert receipt %s: %w", r.TxHash.Hex(), err)
		}
	}

	return tx.Commit()
}

func (s *Store) InsertLogs(ctx context.Context, chainID uint64, events []pkgsyncstore.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("syncstore: begin insert logs: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO logs (chain_id, id, address, block_hash, block_number, log_index, topic0, topic1,
			topic2, topic3, data, transaction_hash, transaction_index, checkpoint, log_filter_id, factory_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("syncstore: prepare insert logs: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		l := ev.Log
		id := logID(l.BlockHash, l.Index)

		var t0, t1, t2, t3 any
		if len(l.Topics) > 0 {
			t0 = l.Topics[0].Hex()
		}
		if len(l.Topics) > 1 {
			t1 = l.Topics[1].Hex()
		}
		if len(l.Topics) > 2 {
			t2 = l.Topics[2].Hex()
		}
		if len(l.Topics) > 3 {
			t3 = l.Topics[3].Hex()
		}

		_, err := stmt.ExecContext(ctx,
			chainID, id, l.Address.Hex(), l.BlockHash.Hex(), l.BlockNumber, l.Index,
			t0, t1, t2, t3, l.Data, l.TxHash.Hex(), l.TxIndex, checkpoint.Encode(ev.Checkpoint),
			int64OrNil(ev.LogFilterID), int64OrNil(ev.FactoryID),
		)
		if err != nil {
			return fmt.Errorf("syncstore: insert log %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func int64OrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// logID mirrors spec.md §3's id=blockHash||logIndex convention.
func logID(blockHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s-%d", blockHash.Hex(), logIndex)
}

func (s *Store) InsertLogFilterInterval(ctx context.Context, logFilterID int64, interval pkgsyncstore.Interval) error {
	return s.insertIntervalMerged(ctx, "log_filter_intervals", "log_filter_id", logFilterID, interval)
}

func (s *Store) InsertFactoryLogFilterInterval(ctx context.Context, factoryID int64, interval pkgsyncstore.Interval) error {
	return s.insertIntervalMerged(ctx, "factory_log_filter_intervals", "factory_id", factoryID, interval)
}

// insertIntervalMerged loads the existing intervals for the owner, merges in
// the new one, and rewrites the row set — keeping the invariant that
// intervals for a given owner are pairwise disjoint after normalization.
func (s *Store) insertIntervalMerged(ctx context.Context, table, fkColumn string, ownerID int64, interval pkgsyncstore.Interval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("syncstore: begin insert interval: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := queryIntervals(ctx, tx, table, fkColumn, ownerID)
	if err != nil {
		return err
	}

	merged := pkgsyncstore.MergeIntervals(append(existing, interval))

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, fkColumn), ownerID); err != nil {
		return fmt.Errorf("syncstore: clear intervals: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s, start_block, end_block) VALUES (?, ?, ?)", table, fkColumn))
	if err != nil {
		return fmt.Errorf("syncstore: prepare insert interval: %w", err)
	}
	defer stmt.Close()

	for _, m := range merged {
		if _, err := stmt.ExecContext(ctx, ownerID, m.StartBlock, m.EndBlock); err != nil {
			return fmt.Errorf("syncstore: insert merged interval: %w", err)
		}
	}

	return tx.Commit()
}

func queryIntervals(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, table, fkColumn string, ownerID int64) ([]pkgsyncstore.Interval, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		"SELECT start_block, end_block FROM %s WHERE %s = ? ORDER BY start_block", table, fkColumn), ownerID)
	if err != nil {
		return nil, fmt.Errorf("syncstore: query intervals: %w", err)
	}
	defer rows.Close()

	var out []pkgsyncstore.Interval
	for rows.Next() {
		var iv pkgsyncstore.Interval
		if err := rows.Scan(&iv.StartBlock, &iv.EndBlock); err != nil {
			return nil, fmt.Errorf("syncstore: scan interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *Store) GetLogFilterIntervals(ctx context.Context, logFilterID int64) ([]pkgsyncstore.Interval, error) {
	return queryIntervals(ctx, s.db, "log_filter_intervals", "log_filter_id", logFilterID)
}

func (s *Store) GetFactoryLogFilterIntervals(ctx context.Context, factoryID int64) ([]pkgsyncstore.Interval, error) {
	return queryIntervals(ctx, s.db, "factory_log_filter_intervals", "factory_id", factoryID)
}

func (s *Store) GetFactoryChildAddresses(ctx context.Context, factoryID int64, upToBlock uint64) (map[common.Address]uint64, error) {
	var location string
	if err := s.db.QueryRowContext(ctx,
		`SELECT child_address_location FROM factories WHERE id = ?`, factoryID).Scan(&location); err != nil {
		return nil, fmt.Errorf("syncstore: loading factory %d's child address location: %w", factoryID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT topic1, topic2, topic3, data, block_number FROM logs
		WHERE factory_id = ? AND block_number <= ? ORDER BY block_number ASC`, factoryID, upToBlock)
	if err != nil {
		return nil, fmt.Errorf("syncstore: query factory children: %w", err)
	}
	defer rows.Close()

	result := make(map[common.Address]uint64)
	for rows.Next() {
		var t1, t2, t3 sql.NullString
		var data []byte
		var blockNumber uint64
		if err := rows.Scan(&t1, &t2, &t3, &data, &blockNumber); err != nil {
			return nil, fmt.Errorf("syncstore: scan factory child: %w", err)
		}

		addr, ok := extractChildAddress(pkgsyncstore.ChildAddressLocation(location), t1, t2, t3, data)
		if !ok {
			continue
		}
		if _, seen := result[addr]; !seen {
			result[addr] = blockNumber
		}
	}

	return result, rows.Err()
}

// extractChildAddress pulls a 20-byte address out of the topic slot or data
// byte offset the factory's declared location names; addresses in topics
// are left-padded to 32 bytes.
func extractChildAddress(location pkgsyncstore.ChildAddressLocation, t1, t2, t3 sql.NullString, data []byte) (common.Address, bool) {
	if n, ok := location.Offset(); ok {
		if n < 0 || n+20 > len(data) {
			return common.Address{}, false
		}
		return common.BytesToAddress(data[n : n+20]), true
	}

	var topic sql.NullString
	switch location {
	case pkgsyncstore.ChildAddressTopic1:
		topic = t1
	case pkgsyncstore.ChildAddressTopic2:
		topic = t2
	case pkgsyncstore.ChildAddressTopic3:
		topic = t3
	default:
		return common.Address{}, false
	}
	if !topic.Valid || topic.String == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(topic.String), true
}

func (s *Store) PruneByBlock(ctx context.Context, chainID uint64, fromBlock uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("syncstore: begin prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		"DELETE FROM logs WHERE chain_id = ? AND block_number > ?",
		"DELETE FROM transaction_receipts WHERE chain_id = ? AND transaction_hash IN (SELECT hash FROM transactions WHERE chain_id = ? AND block_number > ?)",
		"DELETE FROM transactions WHERE chain_id = ? AND block_number > ?",
		"DELETE FROM blocks WHERE chain_id = ? AND number > ?",
	}

	if _, err := tx.ExecContext(ctx, stmts[0], chainID, fromBlock); err != nil {
		return fmt.Errorf("syncstore: prune logs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmts[1], chainID, chainID, fromBlock); err != nil {
		return fmt.Errorf("syncstore: prune receipts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmts[2], chainID, fromBlock); err != nil {
		return fmt.Errorf("syncstore: prune transactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmts[3], chainID, fromBlock); err != nil {
		return fmt.Errorf("syncstore: prune blocks: %w", err)
	}

	if err := s.truncateIntervalsAbove(ctx, tx, "log_filter_intervals", "log_filter_id", fromBlock); err != nil {
		return err
	}
	if err := s.truncateIntervalsAbove(ctx, tx, "factory_log_filter_intervals", "factory_id", fromBlock); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) truncateIntervalsAbove(ctx context.Context, tx *sql.Tx, table, fkColumn string, fromBlock uint64) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE start_block > ?", table), fromBlock); err != nil {
		return fmt.Errorf("syncstore: truncate %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET end_block = ? WHERE end_block > ?", table), fromBlock, fromBlock); err != nil {
		return fmt.Errorf("syncstore: clip %s: %w", table, err)
	}
	return nil
}

func (s *Store) PutRPCRequestResult(ctx context.Context, chainID uint64, blockNumber uint64, requestHash string, result []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rpc_request_results (chain_id, block_number, request_hash, result)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chain_id, block_number, request_hash) DO NOTHING`,
		chainID, blockNumber, requestHash, result)
	if err != nil {
		return fmt.Errorf("syncstore: memoize rpc result: %w", err)
	}
	return nil
}

func (s *Store) GetRPCRequestResult(ctx context.Context, chainID uint64, blockNumber uint64, requestHash string) ([]byte, bool, error) {
	var result []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM rpc_request_results WHERE chain_id = ? AND block_number = ? AND request_hash = ?`,
		chainID, blockNumber, requestHash).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("syncstore: get rpc result: %w", err)
	}
	return result, true, nil
}

func (s *Store) GetLogEvents(ctx context.Context, params pkgsyncstore.GetLogEventsParams) (pkgsyncstore.Iterator, error) {
	var b strings.Builder
	b.WriteString(`SELECT l.chain_id, l.id, l.address, l.block_hash, l.block_number, l.log_index,
		l.topic0, l.topic1, l.topic2, l.topic3, l.data, l.transaction_hash, l.transaction_index, l.checkpoint
		FROM logs l WHERE l.chain_id = ? AND l.checkpoint >= ? AND l.checkpoint <= ?`)
	args := []any{params.ChainID, checkpoint.Encode(params.FromCheckpoint), checkpoint.Encode(params.ToCheckpoint)}

	if len(params.LogFilterIDs) > 0 {
		b.WriteString(" AND l.log_filter_id IN (" + placeholders(len(params.LogFilterIDs)) + ")")
		for _, id := range params.LogFilterIDs {
			args = append(args, id)
		}
	}
	if len(params.FactoryIDs) > 0 {
		b.WriteString(" AND l.factory_id IN (" + placeholders(len(params.FactoryIDs)) + ")")
		for _, id := range params.FactoryIDs {
			args = append(args, id)
		}
	}

	b.WriteString(" ORDER BY l.checkpoint ASC")
	if params.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", params.Limit))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("syncstore: query log events: %w", err)
	}

	return &rowIterator{rows: rows, store: s, ctx: ctx}, nil
}

// fetchBlockTxReceipt loads the block header, transaction, and (if present)
// receipt that back a log event, satisfying the "a log implies its block
// and transaction are present" invariant.
func (s *Store) fetchBlockTxReceipt(ctx context.Context, chainID uint64, blockHash, txHash common.Hash) (*types.Header, *types.Transaction, *types.Receipt, error) {
	var dbb dbBlock
	err := meddler.QueryRow(s.db, &dbb, `SELECT * FROM blocks WHERE chain_id = ? AND hash = ?`, chainID, blockHash.Hex())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("syncstore: load block %s: %w", blockHash.Hex(), err)
	}

	header := &types.Header{
		Number:      new(big.Int).SetUint64(dbb.Number),
		Time:        dbb.Timestamp,
		ParentHash:  dbb.ParentHash,
		GasLimit:    dbb.GasLimit,
		GasUsed:     dbb.GasUsed,
		Root:        dbb.StateRoot,
		TxHash:      dbb.TransactionsRoot,
		ReceiptHash: dbb.ReceiptsRoot,
		Extra:       dbb.ExtraData,
		MixDigest:   dbb.MixHash,
	}
	if dbb.Miner != nil {
		header.Coinbase = *dbb.Miner
	}
	header.Bloom.SetBytes(dbb.LogsBloom)
	if dbb.Difficulty != "" {
		header.Difficulty, _ = new(big.Int).SetString(dbb.Difficulty, 10)
	} else {
		header.Difficulty = new(big.Int)
	}
	if dbb.BaseFeePerGas != "" {
		header.BaseFee, _ = new(big.Int).SetString(dbb.BaseFeePerGas, 10)
	}

	var dbt dbTransaction
	err = meddler.QueryRow(s.db, &dbt, `SELECT * FROM transactions WHERE chain_id = ? AND hash = ?`, chainID, txHash.Hex())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("syncstore: load transaction %s: %w", txHash.Hex(), err)
	}

	value, _ := new(big.Int).SetString(dbt.Value, 10)
	gasPrice, _ := new(big.Int).SetString(dbt.GasPrice, 10)
	txData := &types.LegacyTx{
		Nonce:    dbt.Nonce,
		GasPrice: gasPrice,
		Gas:      dbt.Gas,
		Value:    value,
		Data:     dbt.Input,
	}
	if dbt.To != nil {
		txData.To = dbt.To
	}
	transaction := types.NewTx(txData)

	var receipt *types.Receipt
	var dbr dbReceipt
	err = meddler.QueryRow(s.db, &dbr, `SELECT * FROM transaction_receipts WHERE chain_id = ? AND transaction_hash = ?`, chainID, txHash.Hex())
	switch err {
	case nil:
		receipt = &types.Receipt{
			Status:            dbr.Status,
			GasUsed:           dbr.GasUsed,
			CumulativeGasUsed: dbr.CumulativeGasUsed,
			TxHash:            txHash,
		}
		receipt.Bloom.SetBytes(dbr.LogsBloom)
		if dbr.ContractAddress != nil {
			receipt.ContractAddress = *dbr.ContractAddress
		}
	case sql.ErrNoRows:
		receipt = nil
	default:
		return nil, nil, nil, fmt.Errorf("syncstore: load receipt %s: %w", txHash.Hex(), err)
	}

	return header, transaction, receipt, nil
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ",")
}

type rowIterator struct {
	rows  *sql.Rows
	store *Store
	ctx   context.Context
}

func (it *rowIterator) Next(ctx context.Context) (pkgsyncstore.LogEvent, bool, error) {
	if !it.rows.Next() {
		return pkgsyncstore.LogEvent{}, false, it.rows.Err()
	}

	var (
		chainID                          uint64
		id, address, blockHash           string
		blockNumber, logIndex            uint64
		t0, t1, t2, t3                   sql.NullString
		data                             []byte
		txHash                           string
		txIndex                          uint64
		checkpointStr                    string
	)

	if err := it.rows.Scan(&chainID, &id, &address, &blockHash, &blockNumber, &logIndex,
		&t0, &t1, &t2, &t3, &data, &txHash, &txIndex, &checkpointStr); err != nil {
		return pkgsyncstore.LogEvent{}, false, fmt.Errorf("syncstore: scan log event: %w", err)
	}

	cp, err := checkpoint.Decode(checkpointStr)
	if err != nil {
		return pkgsyncstore.LogEvent{}, false, fmt.Errorf("syncstore: decode checkpoint: %w", err)
	}

	l := types.Log{
		Address:     common.HexToAddress(address),
		BlockNumber: blockNumber,
		BlockHash:   common.HexToHash(blockHash),
		TxHash:      common.HexToHash(txHash),
		TxIndex:     uint(txIndex),
		Index:       uint(logIndex),
		Data:        data,
		Topics:      collectTopics(t0, t1, t2, t3),
	}

	block, tx, receipt, err := it.store.fetchBlockTxReceipt(it.ctx, chainID, l.BlockHash, l.TxHash)
	if err != nil {
		return pkgsyncstore.LogEvent{}, false, err
	}

	return pkgsyncstore.LogEvent{
		Checkpoint:  cp,
		ChainID:     chainID,
		Log:         l,
		Block:       block,
		Transaction: tx,
		Receipt:     receipt,
	}, true, nil
}

func collectTopics(t0, t1, t2, t3 sql.NullString) []common.Hash {
	var topics []common.Hash
	for _, t := range []sql.NullString{t0, t1, t2, t3} {
		if !t.Valid {
			break
		}
		topics = append(topics, common.HexToHash(t.String))
	}
	return topics
}

func (it *rowIterator) Close() error {
	return it.rows.Close()
}
