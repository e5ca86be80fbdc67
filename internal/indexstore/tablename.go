package indexstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// hashPrefixLength is the number of hex characters of the content hash kept
// in a physical table name, per spec.md §6: "first 10 hex chars of a stable
// content hash prefixed by a safe identifier".
const hashPrefixLength = 10

// PhysicalTableName derives the hash-backed physical table name for a
// logical (namespace, buildId, tableName) triple, generalizing the
// hash-backed meddler column convention to hash-backed table names so many
// builds can coexist in one database (spec.md §3: "Physical tables are
// named by hash(userNamespace, buildId, tableName)").
func PhysicalTableName(namespace, buildID, tableName string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", namespace, buildID, tableName)
	return "ponder_" + hex.EncodeToString(h.Sum(nil))[:hashPrefixLength]
}

// CacheTableName derives a build's cache-schema table name, keyed by
// (buildId, tableName) only: the cache is shared by every namespace that
// reuses the same build (spec.md §4.10: "a separate schema/db holds one
// table per (buildId, tableName)").
func CacheTableName(buildID, tableName string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s", buildID, tableName)
	return "ponder_cache_" + hex.EncodeToString(h.Sum(nil))[:hashPrefixLength]
}
