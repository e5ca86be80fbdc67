package erc20

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/ponder-go/ponder/internal/scheduler"
	pkgindexstore "github.com/ponder-go/ponder/pkg/indexstore"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

// fakeStore is a minimal in-memory scheduler.HandlerStore for exercising
// the handlers without a real indexing store.
type fakeStore struct {
	rows map[string]pkgindexstore.Row
}

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string]pkgindexstore.Row)} }

func (f *fakeStore) key(table, id string) string { return table + "/" + id }

func (f *fakeStore) Create(table, id string, data pkgindexstore.Row) error {
	if _, ok := f.rows[f.key(table, id)]; ok {
		return &pkgindexstore.UniqueViolationError{Table: table, ID: id}
	}
	f.rows[f.key(table, id)] = data
	return nil
}

func (f *fakeStore) CreateMany(table string, rows []pkgindexstore.Row) error {
	for _, r := range rows {
		if err := f.Create(table, r["id"].(string), r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) Update(table, id string, update pkgindexstore.UpdateFunc) error {
	current, ok := f.rows[f.key(table, id)]
	if !ok {
		return &pkgindexstore.NotFoundError{Table: table, ID: id}
	}
	f.rows[f.key(table, id)] = update(current)
	return nil
}

func (f *fakeStore) Upsert(table, id string, create pkgindexstore.Row, update pkgindexstore.UpdateFunc) error {
	current, ok := f.rows[f.key(table, id)]
	if ok {
		f.rows[f.key(table, id)] = update(current)
	} else {
		f.rows[f.key(table, id)] = create
	}
	return nil
}

func (f *fakeStore) Delete(table, id string) (bool, error) {
	_, ok := f.rows[f.key(table, id)]
	delete(f.rows, f.key(table, id))
	return ok, nil
}

func (f *fakeStore) FindUnique(table, id string) (pkgindexstore.Row, bool, error) {
	row, ok := f.rows[f.key(table, id)]
	return row, ok, nil
}

func (f *fakeStore) FindMany(table string, params pkgindexstore.QueryParams) (pkgindexstore.Page, error) {
	return pkgindexstore.Page{}, nil
}

func transferLog(address, from, to common.Address, value *big.Int, txHash common.Hash, index uint) types.Log {
	data := make([]byte, 32)
	value.FillBytes(data)
	return types.Log{
		Address: address,
		Topics:  []common.Hash{TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:    data,
		TxHash:  txHash,
		Index:   index,
	}
}

func TestTransferHandlerMovesBalance(t *testing.T) {
	address := common.HexToAddress("0x1111111111111111111111111111111111111111")
	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")

	store := newFakeStore()
	require.NoError(t, store.Create(AccountTable, from.Hex(), pkgindexstore.Row{"id": from.Hex(), "balance": "1000"}))

	reg := NewTransferHandler(address)
	require.Equal(t, address, reg.Address)
	require.Equal(t, TransferTopic, *reg.Topic0)

	event := pkgsyncstore.LogEvent{Log: transferLog(address, from, to, big.NewInt(300), common.HexToHash("0xaa"), 0)}
	hctx := scheduler.HandlerContext{DB: store}

	require.NoError(t, reg.Handle(hctx, event))

	fromRow, ok, err := store.FindUnique(AccountTable, from.Hex())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "700", fromRow["balance"])

	toRow, ok, err := store.FindUnique(AccountTable, to.Hex())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "300", toRow["balance"])

	transferRow, ok, err := store.FindUnique(TransferTable, event.Log.TxHash.Hex()+"-0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "300", transferRow["value"])
}

func TestTransferHandlerRejectsMalformedLog(t *testing.T) {
	address := common.HexToAddress("0x1111111111111111111111111111111111111111")
	reg := NewTransferHandler(address)

	event := pkgsyncstore.LogEvent{Log: types.Log{Address: address, Topics: []common.Hash{TransferTopic}}}
	hctx := scheduler.HandlerContext{DB: newFakeStore()}

	require.Error(t, reg.Handle(hctx, event))
}

func TestApprovalHandlerRecordsApproval(t *testing.T) {
	address := common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner := common.HexToAddress("0x2222222222222222222222222222222222222222")
	spender := common.HexToAddress("0x3333333333333333333333333333333333333333")

	store := newFakeStore()
	reg := NewApprovalHandler(address)
	require.Equal(t, ApprovalTopic, *reg.Topic0)

	data := make([]byte, 32)
	big.NewInt(50).FillBytes(data)
	event := pkgsyncstore.LogEvent{Log: types.Log{
		Address: address,
		Topics:  []common.Hash{ApprovalTopic, common.BytesToHash(owner.Bytes()), common.BytesToHash(spender.Bytes())},
		Data:    data,
		TxHash:  common.HexToHash("0xbb"),
		Index:   1,
	}}

	hctx := scheduler.HandlerContext{DB: store}
	require.NoError(t, reg.Handle(hctx, event))

	row, ok, err := store.FindUnique(ApprovalTable, event.Log.TxHash.Hex()+"-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "50", row["value"])
}
