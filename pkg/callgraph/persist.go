package callgraph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SnapshotVersion is bumped whenever the on-disk layout changes.
const SnapshotVersion = 1

// ErrInvalidSnapshot is returned when a snapshot fails schema or edge checks.
var ErrInvalidSnapshot = errors.New("invalid call graph snapshot")

// Snapshot is the persisted form of a CallGraph. Derived indices are absent.
type Snapshot struct {
	Version int            `json:"version"`
	Nodes   []FunctionNode `json:"nodes"`
	Edges   []FunctionCall `json:"edges"`
}

const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "nodes", "edges"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "nodes": {"type": ["array", "null"], "items": {"$ref": "#/$defs/node"}},
    "edges": {"type": ["array", "null"], "items": {"$ref": "#/$defs/edge"}}
  },
  "$defs": {
    "id": {
      "type": "object",
      "required": ["file", "name", "line"],
      "properties": {
        "file": {"type": "string"},
        "name": {"type": "string", "minLength": 1},
        "line": {"type": "integer", "minimum": 0},
        "module_path": {"type": "string"}
      }
    },
    "node": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "is_entry_point": {"type": "boolean"},
        "is_test": {"type": "boolean"},
        "complexity": {"type": "integer", "minimum": 0},
        "lines": {"type": "integer", "minimum": 0}
      }
    },
    "edge": {
      "type": "object",
      "required": ["caller", "callee", "call_type"],
      "properties": {
        "caller": {"$ref": "#/$defs/id"},
        "callee": {"$ref": "#/$defs/id"},
        "call_type": {"enum": ["direct", "delegate", "pipeline", "async", "callback", "observer_dispatch"]}
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(snapshotSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("snapshot.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("snapshot.json")
})

// Snapshot returns the persistable view of the graph.
func (g *CallGraph) Snapshot() Snapshot {
	return Snapshot{
		Version: SnapshotVersion,
		Nodes:   g.Nodes(),
		Edges:   g.GetAllCalls(),
	}
}

// Save writes the graph as JSON.
func (g *CallGraph) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g.Snapshot()); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Load reads a graph written by Save and rebuilds all derived indices.
func Load(r io.Reader) (*CallGraph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrInvalidSnapshot, snap.Version, SnapshotVersion)
	}
	return FromSnapshot(snap)
}

// FromSnapshot rebuilds a graph from its persisted form.
func FromSnapshot(snap Snapshot) (*CallGraph, error) {
	g := New()
	for _, n := range snap.Nodes {
		g.nodes[n.ID] = &FunctionNode{
			ID:           n.ID,
			IsEntryPoint: n.IsEntryPoint,
			IsTest:       n.IsTest,
			Complexity:   n.Complexity,
			Lines:        n.Lines,
		}
	}
	for _, e := range snap.Edges {
		if !g.HasFunction(e.Caller) || !g.HasFunction(e.Callee) {
			return nil, fmt.Errorf("%w: edge %s -> %s has a dangling endpoint", ErrInvalidSnapshot, e.Caller, e.Callee)
		}
	}
	g.edges = append(g.edges, snap.Edges...)
	g.RebuildIndices()
	return g, nil
}
