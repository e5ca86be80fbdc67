// Package buildid computes the deterministic content hash that identifies
// one (config, schema, handler code) triple, per spec.md §4.11.
package buildid

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// HandlerSource is one handler's resolved source plus the build IDs of the
// handlers whose writes it reads from, so a change anywhere upstream
// propagates into this handler's own ID.
type HandlerSource struct {
	Name         string
	Source       string
	UpstreamIDs  []string
}

// Input is everything a build ID is derived from. ConfigSubset and
// SchemaColumns are arbitrary JSON-marshalable values the caller has
// already reduced to the fields that affect indexing output (not the full
// config/schema documents, which may carry fields irrelevant to identity).
type Input struct {
	ConfigSubset  any
	SchemaColumns any
	Handlers      []HandlerSource
}

// Compute derives buildId = hash(config_subset, schema_columns,
// handler_sources_resolved, per_handler_upstream_ids), stably ordered so
// the result is deterministic across platforms and map-iteration order.
func Compute(in Input) (string, error) {
	handlers := make([]HandlerSource, len(in.Handlers))
	copy(handlers, in.Handlers)
	sort.Slice(handlers, func(i, j int) bool { return handlers[i].Name < handlers[j].Name })
	for i := range handlers {
		upstream := make([]string, len(handlers[i].UpstreamIDs))
		copy(upstream, handlers[i].UpstreamIDs)
		sort.Strings(upstream)
		handlers[i].UpstreamIDs = upstream
	}

	encoded := struct {
		ConfigSubset  any             `json:"configSubset"`
		SchemaColumns any             `json:"schemaColumns"`
		Handlers      []HandlerSource `json:"handlers"`
	}{
		ConfigSubset:  in.ConfigSubset,
		SchemaColumns: in.SchemaColumns,
		Handlers:      handlers,
	}

	// encoding/json sorts object keys produced from Go maps, which is what
	// makes this hash stable across runs: any map reached transitively from
	// ConfigSubset/SchemaColumns is re-serialized with keys in sorted order.
	data, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("buildid: encoding input: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
