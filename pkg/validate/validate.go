// Package validate scores a finished call graph and reports structural
// anomalies: orphaned functions, unresolved calls, CFG invariant violations
// and mutual recursion.
package validate

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/reachability"
	"github.com/panbanda/reach/pkg/resolve"
)

// Severity grades an issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Kind names an issue category.
type Kind string

const (
	KindOrphan          Kind = "orphan"
	KindUnresolvedRatio Kind = "unresolved_ratio"
	KindUnresolvedCall  Kind = "unresolved_call"
	KindCFGInvariant    Kind = "cfg_invariant"
	KindRecursionCycle  Kind = "recursion_cycle"
)

// Issue is one structural finding.
type Issue struct {
	Kind      Kind                   `json:"kind" toon:"kind"`
	Severity  Severity               `json:"severity" toon:"severity"`
	Message   string                 `json:"message" toon:"message"`
	Functions []callgraph.FunctionID `json:"functions,omitempty" toon:"functions,omitempty"`
}

// Stats are the graph measurements the score is derived from.
type Stats struct {
	Functions       int     `json:"functions" toon:"functions"`
	Edges           int     `json:"edges" toon:"edges"`
	Orphans         int     `json:"orphans" toon:"orphans"`
	EntryPoints     int     `json:"entry_points" toon:"entry_points"`
	ResolvedCalls   int     `json:"resolved_calls" toon:"resolved_calls"`
	UnresolvedCalls int     `json:"unresolved_calls" toon:"unresolved_calls"`
	UnresolvedRatio float64 `json:"unresolved_ratio" toon:"unresolved_ratio"`
	CFGErrors       int     `json:"cfg_errors" toon:"cfg_errors"`
	Cycles          int     `json:"cycles" toon:"cycles"`
	Unreferenced    int     `json:"unreferenced" toon:"unreferenced"`
}

// Report is the outcome of validating a graph.
type Report struct {
	HealthScore int     `json:"health_score" toon:"health_score"`
	Issues      []Issue `json:"issues" toon:"issues"`
	Stats       Stats   `json:"stats" toon:"stats"`
}

// HasIssues reports whether any issue is a warning or an error.
// Informational findings such as recursion cycles do not count.
func (r *Report) HasIssues() bool {
	for _, is := range r.Issues {
		if is.Severity != SeverityInfo {
			return true
		}
	}
	return false
}

// Count returns the number of issues of a kind.
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, is := range r.Issues {
		if is.Kind == kind {
			n++
		}
	}
	return n
}

// Input bundles what the validator inspects. Only Graph is required.
type Input struct {
	Graph        *callgraph.CallGraph
	Resolution   *resolve.Result
	Reachability *reachability.Analysis
	CFGErrors    []error
}

// Validator computes health reports.
type Validator struct {
	trace              map[string]bool
	unresolvedRatioMax float64
	orphanPenalty      float64
	unresolvedPenalty  float64
	cfgPenalty         float64
	logger             *slog.Logger
}

// Option is a functional option for configuring Validator.
type Option func(*Validator)

// WithTraceFunctions logs the neighborhood of every function whose simple or
// qualified name is in names at Debug level.
func WithTraceFunctions(names []string) Option {
	return func(v *Validator) {
		for _, n := range names {
			v.trace[n] = true
		}
	}
}

// WithUnresolvedRatioThreshold sets the unresolved share above which an
// issue is raised.
func WithUnresolvedRatioThreshold(ratio float64) Option {
	return func(v *Validator) {
		v.unresolvedRatioMax = ratio
	}
}

// WithPenalties sets the weight of orphans and unresolved calls in the
// score. A weight of 0.5 costs up to 50 points.
func WithPenalties(orphan, unresolved float64) Option {
	return func(v *Validator) {
		v.orphanPenalty = orphan
		v.unresolvedPenalty = unresolved
	}
}

// WithLogger sets the logger used for trace output.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		trace:              make(map[string]bool),
		unresolvedRatioMax: 0.25,
		orphanPenalty:      0.3,
		unresolvedPenalty:  0.5,
		cfgPenalty:         10,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate inspects a finished graph.
func (v *Validator) Validate(in Input) *Report {
	g := in.Graph
	r := &Report{Stats: Stats{Functions: g.NodeCount(), Edges: g.EdgeCount()}}

	for _, id := range g.FindAllFunctions() {
		node, _ := g.Node(id)
		if node.IsEntryPoint {
			r.Stats.EntryPoints++
		}
		if g.CallerCount(id) == 0 && g.CalleeCount(id) == 0 {
			r.Stats.Orphans++
			r.Issues = append(r.Issues, Issue{
				Kind:      KindOrphan,
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("%s has no callers and no callees", id.Name),
				Functions: []callgraph.FunctionID{id},
			})
		}
		if v.traced(id) {
			v.traceFunction(g, id, in.Reachability)
		}
	}

	if res := in.Resolution; res != nil {
		r.Stats.ResolvedCalls = res.Resolved
		r.Stats.UnresolvedCalls = len(res.Unresolved)
		r.Stats.UnresolvedRatio = res.UnresolvedRatio()
		for _, u := range res.Unresolved {
			r.Issues = append(r.Issues, Issue{
				Kind:      KindUnresolvedCall,
				Severity:  SeverityInfo,
				Message:   fmt.Sprintf("%s:%d: %s: %s", u.Site.Caller.File, u.Site.Line, u.Site.Display(), u.Reason),
				Functions: []callgraph.FunctionID{u.Site.Caller},
			})
			if v.traced(u.Site.Caller) {
				v.logger.Debug("trace unresolved call",
					slog.String("function", u.Site.Caller.String()),
					slog.String("call", u.Site.Display()),
					slog.Int("line", u.Site.Line),
					slog.String("reason", u.Reason))
			}
		}
		if r.Stats.UnresolvedRatio > v.unresolvedRatioMax {
			r.Issues = append(r.Issues, Issue{
				Kind:     KindUnresolvedRatio,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("%.1f%% of in-tree calls are unresolved (threshold %.1f%%)",
					r.Stats.UnresolvedRatio*100, v.unresolvedRatioMax*100),
			})
		}
	}

	r.Stats.CFGErrors = len(in.CFGErrors)
	for _, err := range in.CFGErrors {
		r.Issues = append(r.Issues, Issue{
			Kind:     KindCFGInvariant,
			Severity: SeverityError,
			Message:  err.Error(),
		})
	}

	for _, cycle := range recursionCycles(g) {
		r.Stats.Cycles++
		r.Issues = append(r.Issues, Issue{
			Kind:      KindRecursionCycle,
			Severity:  SeverityInfo,
			Message:   fmt.Sprintf("%d functions call each other recursively", len(cycle)),
			Functions: cycle,
		})
	}

	if in.Reachability != nil {
		r.Stats.Unreferenced = in.Reachability.Summary.Unreferenced
	}
	r.HealthScore = v.score(r.Stats)
	return r
}

// score starts at 100 and subtracts weighted orphan and unresolved shares
// plus a fixed amount per CFG invariant violation.
func (v *Validator) score(s Stats) int {
	score := 100.0
	if s.Functions > 0 {
		score -= v.orphanPenalty * 100 * float64(s.Orphans) / float64(s.Functions)
	}
	score -= v.unresolvedPenalty * 100 * s.UnresolvedRatio
	score -= v.cfgPenalty * float64(s.CFGErrors)
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

func (v *Validator) traced(id callgraph.FunctionID) bool {
	return len(v.trace) > 0 && (v.trace[id.Name] || v.trace[id.ShortName()])
}

func (v *Validator) traceFunction(g *callgraph.CallGraph, id callgraph.FunctionID, a *reachability.Analysis) {
	attrs := []any{
		slog.String("function", id.String()),
		slog.Int("callers", g.CallerCount(id)),
		slog.Int("callees", g.CalleeCount(id)),
	}
	if a != nil {
		if c, ok := a.Get(id); ok {
			attrs = append(attrs, slog.String("status", c.Status.String()), slog.String("reason", c.Reason))
		}
	}
	v.logger.Debug("trace function", attrs...)
	for _, caller := range g.GetCallers(id) {
		v.logger.Debug("trace caller", slog.String("function", id.String()), slog.String("caller", caller.String()))
	}
	for _, callee := range g.GetCallees(id) {
		v.logger.Debug("trace callee", slog.String("function", id.String()), slog.String("callee", callee.String()))
	}
}

// recursionCycles returns the strongly connected components with more than
// one function, each sorted, in a deterministic order.
func recursionCycles(g *callgraph.CallGraph) [][]callgraph.FunctionID {
	ids := g.FindAllFunctions()
	index := make(map[callgraph.FunctionID]int64, len(ids))
	dg := simple.NewDirectedGraph()
	for i, id := range ids {
		index[id] = int64(i)
		dg.AddNode(simple.Node(int64(i)))
	}
	// simple graphs reject self-loops; direct recursion is not a cycle here
	for _, c := range g.GetAllCalls() {
		from, okFrom := index[c.Caller]
		to, okTo := index[c.Callee]
		if okFrom && okTo && from != to {
			dg.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}

	var cycles [][]callgraph.FunctionID
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			continue
		}
		members := make([]callgraph.FunctionID, 0, len(scc))
		for _, n := range scc {
			members = append(members, ids[n.ID()])
		}
		slices.SortFunc(members, compareIDs)
		cycles = append(cycles, members)
	}
	slices.SortFunc(cycles, func(a, b []callgraph.FunctionID) int {
		return compareIDs(a[0], b[0])
	})
	return cycles
}

func compareIDs(a, b callgraph.FunctionID) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
