// Package scheduler dispatches event-stream batches to user handlers,
// respecting the read/write dependency DAG derived from the schema.
package scheduler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgindexstore "github.com/ponder-go/ponder/pkg/indexstore"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

// Network identifies which chain an invocation's event came from.
type Network struct {
	ChainID uint64
	Name    string
}

// HandlerContext is passed to every handler invocation; it exposes the
// indexing store pre-tagged with the event's checkpoint and the network
// the event came from. Contract views are an external-host responsibility
// (spec.md §4.9's "decoded contract views"): Client is opaque here and
// threaded through unmodified.
type HandlerContext struct {
	Context context.Context
	DB      HandlerStore
	Network Network
	Client  any
}

// HandlerStore is the write surface a handler invocation sees: the
// indexing store with its checkpoint argument already bound to this
// event's checkpoint.
type HandlerStore interface {
	Create(table, id string, data pkgindexstore.Row) error
	CreateMany(table string, rows []pkgindexstore.Row) error
	Update(table, id string, update pkgindexstore.UpdateFunc) error
	Upsert(table, id string, create pkgindexstore.Row, update pkgindexstore.UpdateFunc) error
	Delete(table, id string) (bool, error)
	FindUnique(table, id string) (pkgindexstore.Row, bool, error)
	FindMany(table string, params pkgindexstore.QueryParams) (pkgindexstore.Page, error)
}

// HandlerFunc is a user indexing function.
type HandlerFunc func(hctx HandlerContext, event pkgsyncstore.LogEvent) error

// Registration binds a handler to the (address, topic0) pairs that route
// events to it; a nil Topic0 means "every topic from this address", mirroring
// the teacher's addressAllTopics routing.
type Registration struct {
	Name    string
	Address common.Address
	Topic0  *common.Hash

	Reads  []string
	Writes []string

	Handle HandlerFunc
}

// Config controls dispatch concurrency.
type Config struct {
	// MaxConcurrency bounds how many handler instances run at once within
	// a topological layer.
	MaxConcurrency int
}

var DefaultConfig = Config{MaxConcurrency: 8}

func (c *Config) applyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultConfig.MaxConcurrency
	}
}

// boundStore adapts pkg/indexstore.Store to HandlerStore by fixing the
// checkpoint argument for one event's worth of writes.
type boundStore struct {
	store pkgindexstore.Store
	ctx   context.Context
	cp    checkpoint.Checkpoint
}

func (b boundStore) Create(table, id string, data pkgindexstore.Row) error {
	return b.store.Create(b.ctx, table, id, data, b.cp)
}

func (b boundStore) CreateMany(table string, rows []pkgindexstore.Row) error {
	return b.store.CreateMany(b.ctx, table, rows, b.cp)
}

func (b boundStore) Update(table, id string, update pkgindexstore.UpdateFunc) error {
	return b.store.Update(b.ctx, table, id, update, b.cp)
}

func (b boundStore) Upsert(table, id string, create pkgindexstore.Row, update pkgindexstore.UpdateFunc) error {
	return b.store.Upsert(b.ctx, table, id, create, update, b.cp)
}

func (b boundStore) Delete(table, id string) (bool, error) {
	return b.store.Delete(b.ctx, table, id, b.cp)
}

func (b boundStore) FindUnique(table, id string) (pkgindexstore.Row, bool, error) {
	return b.store.FindUnique(b.ctx, table, id)
}

func (b boundStore) FindMany(table string, params pkgindexstore.QueryParams) (pkgindexstore.Page, error) {
	return b.store.FindMany(b.ctx, table, params)
}
