package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("address", addressMeddler{})
	meddler.Register("hash", hashMeddler{})
}

// addressMeddler converts between common.Address and its hex string
// representation, nil-safe for optional (*common.Address) columns.
type addressMeddler struct{}

func (addressMeddler) PreRead(fieldAddr any) (scanTarget any, err error) {
	return new(sql.NullString), nil
}

func (addressMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("db: address meddler: expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **common.Address:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		addr := common.HexToAddress(ns.String)
		*ptr = &addr
		return nil
	case *common.Address:
		if ns.Valid {
			*ptr = common.HexToAddress(ns.String)
		}
		return nil
	default:
		return fmt.Errorf("db: address meddler: expected *common.Address or **common.Address, got %T", fieldAddr)
	}
}

func (addressMeddler) PreWrite(field any) (saveValue any, err error) {
	switch v := field.(type) {
	case *common.Address:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	case common.Address:
		return v.Hex(), nil
	default:
		return nil, fmt.Errorf("db: address meddler: expected common.Address or *common.Address, got %T", field)
	}
}

// hashMeddler converts between common.Hash and its hex string
// representation, nil-safe for optional (*common.Hash) columns.
type hashMeddler struct{}

func (hashMeddler) PreRead(fieldAddr any) (scanTarget any, err error) {
	return new(sql.NullString), nil
}

func (hashMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("db: hash meddler: expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **common.Hash:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		h := common.HexToHash(ns.String)
		*ptr = &h
		return nil
	case *common.Hash:
		if ns.Valid {
			*ptr = common.HexToHash(ns.String)
		}
		return nil
	default:
		return fmt.Errorf("db: hash meddler: expected *common.Hash or **common.Hash, got %T", fieldAddr)
	}
}

func (hashMeddler) PreWrite(field any) (saveValue any, err error) {
	switch v := field.(type) {
	case *common.Hash:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	case common.Hash:
		return v.Hex(), nil
	default:
		return nil, fmt.Errorf("db: hash meddler: expected common.Hash or *common.Hash, got %T", field)
	}
}
