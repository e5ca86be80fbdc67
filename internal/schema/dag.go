package schema

import (
	"fmt"
	"sort"
)

// HandlerSpec is a handler's declared read/write sets, supplied by the host
// (spec.md §9: a light static analysis of the handler source is an
// external responsibility; the engine only consumes the pre-computed sets).
type HandlerSpec struct {
	Name   string
	Reads  []string
	Writes []string
}

// Graph is the handler dependency DAG: an edge A -> B exists iff
// writes(A) ∩ reads(B) != ∅ or writes(A) ∩ writes(B) != ∅. A self-loop
// marks a handler that must serialize against its own other invocations
// (update/upsert/delete/updateMany semantics).
type Graph struct {
	Handlers  map[string]HandlerSpec
	Edges     map[string][]string // A -> []B it points to
	SelfLoops map[string]bool
}

// Build constructs the dependency graph from a set of handler specs.
func Build(specs []HandlerSpec) (*Graph, error) {
	g := &Graph{
		Handlers:  make(map[string]HandlerSpec, len(specs)),
		Edges:     make(map[string][]string),
		SelfLoops: make(map[string]bool),
	}

	for _, spec := range specs {
		if _, dup := g.Handlers[spec.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate handler name %q", spec.Name)
		}
		g.Handlers[spec.Name] = spec
	}

	names := sortedNames(g.Handlers)
	for _, a := range names {
		for _, b := range names {
			if a == b {
				if intersects(g.Handlers[a].Writes, g.Handlers[a].Reads) || hasDuplicateWrite(g.Handlers[a].Writes) {
					g.SelfLoops[a] = true
				}
				continue
			}
			if intersects(g.Handlers[a].Writes, g.Handlers[b].Reads) || intersects(g.Handlers[a].Writes, g.Handlers[b].Writes) {
				g.Edges[a] = append(g.Edges[a], b)
			}
		}
	}

	return g, nil
}

func hasDuplicateWrite(writes []string) bool {
	seen := make(map[string]bool, len(writes))
	for _, w := range writes {
		if seen[w] {
			return true
		}
		seen[w] = true
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func sortedNames(handlers map[string]HandlerSpec) []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Layers topologically sorts the graph into layers via Kahn's algorithm:
// layer 0 has no incoming edges, layer 1 depends only on layer 0, etc.
// Self-loops are ignored for cycle detection (they're same-node and handled
// by per-handler serialization, not layering) but a cross-handler cycle is
// an error.
func (g *Graph) Layers() ([][]string, error) {
	inDegree := make(map[string]int, len(g.Handlers))
	for name := range g.Handlers {
		inDegree[name] = 0
	}
	for a, targets := range g.Edges {
		for _, b := range targets {
			if a == b {
				continue
			}
			inDegree[b]++
		}
	}

	var layers [][]string
	remaining := len(g.Handlers)
	processed := make(map[string]bool, len(g.Handlers))

	for remaining > 0 {
		var layer []string
		for _, name := range sortedNames(g.Handlers) {
			if !processed[name] && inDegree[name] == 0 {
				layer = append(layer, name)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("schema: cycle detected among handlers %v", g.unprocessedNames(processed))
		}

		for _, name := range layer {
			processed[name] = true
			remaining--
			for _, target := range g.Edges[name] {
				if target != name {
					inDegree[target]--
				}
			}
		}

		layers = append(layers, layer)
	}

	return layers, nil
}

func (g *Graph) unprocessedNames(processed map[string]bool) []string {
	var names []string
	for name := range g.Handlers {
		if !processed[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
