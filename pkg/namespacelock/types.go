// Package namespacelock defines the row-level lease that ensures at most
// one live writer per (database, namespace), per spec.md §4.10.
package namespacelock

import "fmt"

// Lock is one namespace's lease row: { namespace, is_locked, heartbeat_at,
// build_id, finalized_checkpoint, schema_json }.
type Lock struct {
	Namespace           string
	IsLocked            bool
	HeartbeatAtUnix     int64
	BuildID             string
	FinalizedCheckpoint string
	SchemaJSON          string
}

// LockedError is returned by Acquire when another live writer already
// holds the namespace's lease.
type LockedError struct {
	Namespace      string
	MsUntilExpiry  int64
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("namespacelock: namespace %q is locked, expires in %dms", e.Namespace, e.MsUntilExpiry)
}

// Store is the lease table's persistence contract.
type Store interface {
	// Acquire runs the CAS described in spec.md §4.10 steps 1-3 inside a
	// single-row transaction: acquire if no row exists, the row is
	// unlocked, or its heartbeat has expired past leaseTTL; otherwise fail
	// with *LockedError.
	Acquire(namespace, buildID, schemaJSON string, leaseTTLSeconds int64, nowUnix int64) (Lock, error)

	// Heartbeat refreshes heartbeat_at for a namespace this process holds.
	Heartbeat(namespace string, nowUnix int64) error

	// Release sets is_locked=0.
	Release(namespace string) error

	// Get returns the current row, if any.
	Get(namespace string) (Lock, bool, error)

	// SetFinalizedCheckpoint persists the namespace's finalized checkpoint,
	// called on cache promotion.
	SetFinalizedCheckpoint(namespace, checkpoint string) error
}
