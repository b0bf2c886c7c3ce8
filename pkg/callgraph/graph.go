package callgraph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// ErrUnknownFunction is returned when an edge references a function that has
// not been registered.
var ErrUnknownFunction = errors.New("unknown function")

// FunctionNode is a registered function definition.
type FunctionNode struct {
	ID           FunctionID `json:"id"`
	IsEntryPoint bool       `json:"is_entry_point"`
	IsTest       bool       `json:"is_test"`
	Complexity   uint32     `json:"complexity"`
	Lines        int        `json:"lines"`
}

// FunctionCall is a directed edge between two registered functions.
type FunctionCall struct {
	Caller   FunctionID `json:"caller"`
	Callee   FunctionID `json:"callee"`
	CallType CallType   `json:"call_type"`
}

type idSet map[FunctionID]struct{}

// CallGraph owns nodes and edges plus the indices derived from them.
//
// The caller and callee indices are updated on every AddCall. The fuzzy, name
// and file indices are derived from the node map and rebuilt on load; they are
// never serialized. A CallGraph has a single writer: build it from one
// goroutine, then share it read-only.
type CallGraph struct {
	nodes map[FunctionID]*FunctionNode
	edges []FunctionCall

	callerIndex map[FunctionID]idSet // caller -> callees
	calleeIndex map[FunctionID]idSet // callee -> callers

	fuzzyIndex map[uint64][]FunctionID
	nameIndex  map[string][]FunctionID
	fileIndex  map[string][]FunctionID
}

// New creates an empty call graph.
func New() *CallGraph {
	return &CallGraph{
		nodes:       make(map[FunctionID]*FunctionNode),
		callerIndex: make(map[FunctionID]idSet),
		calleeIndex: make(map[FunctionID]idSet),
		fuzzyIndex:  make(map[uint64][]FunctionID),
		nameIndex:   make(map[string][]FunctionID),
		fileIndex:   make(map[string][]FunctionID),
	}
}

func fuzzyHash(k FuzzyKey) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(k.File)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(k.Name)
	return d.Sum64()
}

// AddFunction registers a node. Registering an existing identity replaces
// the node's attributes without duplicating index entries.
func (g *CallGraph) AddFunction(node FunctionNode) {
	if existing, ok := g.nodes[node.ID]; ok {
		*existing = node
		return
	}
	n := node
	g.nodes[node.ID] = &n
	g.indexNode(node.ID)
}

func (g *CallGraph) indexNode(id FunctionID) {
	h := fuzzyHash(id.FuzzyKey())
	g.fuzzyIndex[h] = append(g.fuzzyIndex[h], id)
	short := id.ShortName()
	g.nameIndex[short] = append(g.nameIndex[short], id)
	if full := id.SimpleKey().Name; full != short {
		g.nameIndex[full] = append(g.nameIndex[full], id)
	}
	g.fileIndex[id.File] = append(g.fileIndex[id.File], id)
}

// AddCall appends an edge and updates both traversal indices.
// Both endpoints must already be registered.
func (g *CallGraph) AddCall(call FunctionCall) error {
	if _, ok := g.nodes[call.Caller]; !ok {
		return fmt.Errorf("caller %s: %w", call.Caller, ErrUnknownFunction)
	}
	if _, ok := g.nodes[call.Callee]; !ok {
		return fmt.Errorf("callee %s: %w", call.Callee, ErrUnknownFunction)
	}
	g.edges = append(g.edges, call)
	g.link(call.Caller, call.Callee)
	return nil
}

func (g *CallGraph) link(caller, callee FunctionID) {
	callees, ok := g.callerIndex[caller]
	if !ok {
		callees = make(idSet)
		g.callerIndex[caller] = callees
	}
	callees[callee] = struct{}{}

	callers, ok := g.calleeIndex[callee]
	if !ok {
		callers = make(idSet)
		g.calleeIndex[callee] = callers
	}
	callers[caller] = struct{}{}
}

// Node returns the registered node for id.
func (g *CallGraph) Node(id FunctionID) (FunctionNode, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return FunctionNode{}, false
	}
	return *n, true
}

// HasFunction reports whether id is registered.
func (g *CallGraph) HasFunction(id FunctionID) bool {
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of registered functions.
func (g *CallGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges, duplicates included.
func (g *CallGraph) EdgeCount() int { return len(g.edges) }

// FindAllFunctions returns every registered identity in stable order.
func (g *CallGraph) FindAllFunctions() []FunctionID {
	ids := make([]FunctionID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Nodes returns a copy of every node in stable order.
func (g *CallGraph) Nodes() []FunctionNode {
	ids := g.FindAllFunctions()
	out := make([]FunctionNode, len(ids))
	for i, id := range ids {
		out[i] = *g.nodes[id]
	}
	return out
}

// GetCallers returns the distinct functions calling id.
func (g *CallGraph) GetCallers(id FunctionID) []FunctionID {
	return setToSlice(g.calleeIndex[id])
}

// GetCallees returns the distinct functions called by id.
func (g *CallGraph) GetCallees(id FunctionID) []FunctionID {
	return setToSlice(g.callerIndex[id])
}

// CallerCount returns the number of distinct callers without allocating.
func (g *CallGraph) CallerCount(id FunctionID) int {
	return len(g.calleeIndex[id])
}

// CalleeCount returns the number of distinct callees without allocating.
func (g *CallGraph) CalleeCount(id FunctionID) int {
	return len(g.callerIndex[id])
}

// GetAllCalls returns a copy of the edge list in insertion order.
func (g *CallGraph) GetAllCalls() []FunctionCall {
	return slices.Clone(g.edges)
}

// FindByFuzzyKey returns nodes whose fuzzy key equals key.
func (g *CallGraph) FindByFuzzyKey(key FuzzyKey) []FunctionID {
	key = FuzzyKey{File: CanonicalPath(key.File), Name: NormalizeName(key.Name)}
	var out []FunctionID
	// hash buckets may collide; verify each candidate
	for _, id := range g.fuzzyIndex[fuzzyHash(key)] {
		if id.FuzzyKey() == key {
			out = append(out, id)
		}
	}
	return out
}

// FindByName returns nodes whose normalized or short name equals name.
func (g *CallGraph) FindByName(name string) []FunctionID {
	return slices.Clone(g.nameIndex[NormalizeName(name)])
}

// FunctionsInFile returns every node defined in file.
func (g *CallGraph) FunctionsInFile(file string) []FunctionID {
	return slices.Clone(g.fileIndex[CanonicalPath(file)])
}

// RebuildIndices recomputes every derived index from nodes and edges.
func (g *CallGraph) RebuildIndices() {
	g.fuzzyIndex = make(map[uint64][]FunctionID, len(g.nodes))
	g.nameIndex = make(map[string][]FunctionID, len(g.nodes))
	g.fileIndex = make(map[string][]FunctionID)
	for _, id := range g.FindAllFunctions() {
		g.indexNode(id)
	}

	g.callerIndex = make(map[FunctionID]idSet)
	g.calleeIndex = make(map[FunctionID]idSet)
	for _, e := range g.edges {
		g.link(e.Caller, e.Callee)
	}
}

func setToSlice(s idSet) []FunctionID {
	if len(s) == 0 {
		return nil
	}
	out := make([]FunctionID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []FunctionID) {
	slices.SortFunc(ids, func(a, b FunctionID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
}
