// Package reachability decides which functions of a finished call graph are
// production entry points, live, or dead.
package reachability

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/extract"
	"github.com/panbanda/reach/pkg/resolve"
)

// IsProductionEntryPoint reports whether node starts production execution:
// it is flagged as an entry point, or nothing calls it and it is not a test.
func IsProductionEntryPoint(node callgraph.FunctionNode, knownCallers []callgraph.FunctionID) bool {
	if node.IsEntryPoint {
		return true
	}
	return len(knownCallers) == 0 && !node.IsTest
}

// Classifier labels every function of a call graph.
type Classifier struct {
	minConfidence resolve.Confidence
	publicRoots   bool
}

// Option is a functional option for configuring Classifier.
type Option func(*Classifier)

// WithMinConfidence sets the weakest import that keeps a singleton's methods
// alive when another module calls them.
func WithMinConfidence(c resolve.Confidence) Option {
	return func(cl *Classifier) {
		cl.minConfidence = c
	}
}

// WithPublicAPIRoots treats exported functions as roots. Enabled by default.
func WithPublicAPIRoots(enabled bool) Option {
	return func(cl *Classifier) {
		cl.publicRoots = enabled
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		minConfidence: resolve.Medium,
		publicRoots:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pass is the state of one classification run. Functions are numbered by
// their position in the sorted function list so reachable sets fit in
// roaring bitmaps.
type pass struct {
	c   *Classifier
	g   *callgraph.CallGraph
	reg *resolve.Registry

	ids   []callgraph.FunctionID
	index map[callgraph.FunctionID]uint32
	// implied holds edges the graph lacks but dispatch implies, keyed by
	// caller; impliedBy is the same set keyed by callee.
	implied   map[uint32][]uint32
	impliedBy map[uint32][]uint32
	reason    map[uint32]string
}

// Classify labels every node of g. reg and res may be nil when the graph was
// loaded from a snapshot; trait, singleton and ambiguity information is then
// unavailable.
//
// A function with any caller, graph or implied by dispatch, is never
// unreferenced. A function nobody calls that is not a test is a production
// entry point; unless a convention, its visibility or an external trait
// accounts for it, it is reported as unreferenced.
func (c *Classifier) Classify(g *callgraph.CallGraph, reg *resolve.Registry, res *resolve.Result) *Analysis {
	p := &pass{
		c:         c,
		g:         g,
		reg:       reg,
		ids:       g.FindAllFunctions(),
		implied:   make(map[uint32][]uint32),
		impliedBy: make(map[uint32][]uint32),
		reason:    make(map[uint32]string),
	}
	p.index = make(map[callgraph.FunctionID]uint32, len(p.ids))
	for i, id := range p.ids {
		p.index[id] = uint32(i)
	}
	p.singletonEdges()
	p.traitEdges()

	live := roaring.New()
	p.markReachable(live, p.roots())

	tested := roaring.New()
	p.markReachable(tested, p.testRoots())

	ambiguous := ambiguousNames(res)
	a := &Analysis{
		Classifications: make([]Classification, 0, len(p.ids)),
		byID:            make(map[callgraph.FunctionID]int, len(p.ids)),
	}
	for i, id := range p.ids {
		cl := p.classify(uint32(i), live, tested, ambiguous)
		a.byID[id] = len(a.Classifications)
		a.Classifications = append(a.Classifications, cl)
		a.Summary.add(cl.Status)
	}
	return a
}

// knownCallers returns the graph callers of a function plus the callers
// dispatch implies.
func (p *pass) knownCallers(idx uint32) []callgraph.FunctionID {
	callers := p.g.GetCallers(p.ids[idx])
	for _, c := range p.impliedBy[idx] {
		callers = append(callers, p.ids[c])
	}
	return callers
}

func (p *pass) imply(caller, target uint32, reason string) {
	if caller == target {
		return
	}
	for _, t := range p.implied[caller] {
		if t == target {
			return
		}
	}
	p.implied[caller] = append(p.implied[caller], target)
	p.impliedBy[target] = append(p.impliedBy[target], caller)
	if _, set := p.reason[target]; !set {
		p.reason[target] = reason
	}
}

func (p *pass) def(id callgraph.FunctionID) (extract.FunctionDef, bool) {
	if p.reg == nil {
		return extract.FunctionDef{}, false
	}
	return p.reg.Def(id)
}

// roots returns the production entry points plus the public API. A called
// function they do not reach is reached only from tests or from a cycle.
func (p *pass) roots() []uint32 {
	var roots []uint32
	for i, id := range p.ids {
		node, _ := p.g.Node(id)
		idx := uint32(i)
		if IsProductionEntryPoint(node, p.knownCallers(idx)) {
			roots = append(roots, idx)
			continue
		}
		if def, ok := p.def(id); ok && def.Exported && p.c.publicRoots && !node.IsTest {
			roots = append(roots, idx)
		}
	}
	return roots
}

// externalTrait reports the trait a function implements when that trait is
// defined outside the tree, so the compiler or a dependency calls it.
func (p *pass) externalTrait(id callgraph.FunctionID) (string, bool) {
	def, ok := p.def(id)
	if !ok || def.Trait == "" || def.Owner == def.Trait || p.reg.IsTrait(def.Trait) {
		return "", false
	}
	return def.Trait, true
}

func (p *pass) testRoots() []uint32 {
	var roots []uint32
	for i, id := range p.ids {
		if node, _ := p.g.Node(id); node.IsTest {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

// markReachable runs a BFS from roots over call edges and implied dispatch
// edges, adding every visited function to set.
func (p *pass) markReachable(set *roaring.Bitmap, roots []uint32) {
	queue := make([]uint32, 0, len(roots)*2)
	for _, r := range roots {
		if set.CheckedAdd(r) {
			queue = append(queue, r)
		}
	}
	for head := 0; head < len(queue); head++ {
		current := queue[head]
		for _, callee := range p.g.GetCallees(p.ids[current]) {
			if idx, ok := p.index[callee]; ok && set.CheckedAdd(idx) {
				queue = append(queue, idx)
			}
		}
		for _, idx := range p.implied[current] {
			if set.CheckedAdd(idx) {
				queue = append(queue, idx)
			}
		}
	}
}

// singletonEdges adds an implied edge from every function that calls a
// method on an imported module-level instance to that method, provided the
// import is trusted at the configured confidence.
func (p *pass) singletonEdges() {
	if p.reg == nil {
		return
	}
	ir := resolve.NewImportResolver(p.reg)
	for _, f := range p.reg.Files() {
		for _, site := range f.Calls {
			if !site.IsMethod || site.Receiver == "" || len(site.FieldChain) > 0 {
				continue
			}
			caller, ok := p.index[site.Caller]
			if !ok {
				continue
			}
			local, _, _ := strings.Cut(site.Receiver, ".")
			sym, ok := ir.ResolveSymbol(f.Path, local)
			if !ok || sym.External() || sym.Symbol == "" || !sym.Confidence.AtLeast(p.c.minConfidence) {
				continue
			}
			s, ok := p.reg.Singleton(sym.File, sym.Symbol)
			if !ok {
				continue
			}
			name := extract.Qualify(sym.File, s.Type, site.Callee)
			for _, id := range p.g.FunctionsInFile(sym.File) {
				if id.Name != name {
					continue
				}
				p.imply(caller, p.index[id], fmt.Sprintf("method of singleton %s imported by %s", s.Name, f.Path))
			}
		}
	}
}

// traitEdges gives every implementation of a trait method the callers of
// its sibling implementations, since a call through the trait may select any
// of them at runtime.
func (p *pass) traitEdges() {
	if p.reg == nil {
		return
	}
	type method struct{ trait, name string }
	groups := make(map[method][]uint32)
	for i, id := range p.ids {
		def, ok := p.def(id)
		if !ok || def.Trait == "" || !p.reg.IsTrait(def.Trait) {
			continue
		}
		key := method{def.Trait, id.ShortName()}
		groups[key] = append(groups[key], uint32(i))
	}
	for key, members := range groups {
		if len(members) < 2 {
			continue
		}
		reason := "implements " + key.trait + " called through the trait"
		for _, m := range members {
			for _, caller := range p.g.GetCallers(p.ids[m]) {
				c, ok := p.index[caller]
				if !ok {
					continue
				}
				for _, sibling := range members {
					if sibling != m {
						p.imply(c, sibling, reason)
					}
				}
			}
		}
	}
}

func (p *pass) classify(idx uint32, live, tested *roaring.Bitmap, ambiguous map[string]bool) Classification {
	id := p.ids[idx]
	node, _ := p.g.Node(id)
	cl := Classification{ID: id, Callers: p.g.CallerCount(id)}
	def, hasDef := p.def(id)

	if node.IsTest {
		cl.Status, cl.Reason = StatusTest, "test function"
		return cl
	}

	if IsProductionEntryPoint(node, p.knownCallers(idx)) {
		trait, external := p.externalTrait(id)
		switch {
		case node.IsEntryPoint:
			cl.Status, cl.Reason = StatusEntryPoint, "entry point"
		case hasDef && def.Exported && p.c.publicRoots:
			cl.Status, cl.Reason = StatusPublicAPI, "exported"
		case external:
			cl.Status, cl.Reason = StatusEntryPoint, "implements external trait "+trait
		default:
			cl.Status, cl.Reason = StatusUnreferenced, "no callers"
			cl.Confidence = deadConfidence(def, hasDef, ambiguous[id.ShortName()])
			cl.ConfidenceLevel = LevelFor(cl.Confidence)
		}
		return cl
	}

	switch {
	case live.Contains(idx):
		cl.Status, cl.Reason = StatusLive, p.reason[idx]
	case tested.Contains(idx):
		cl.Status, cl.Reason = StatusTestOnly, "reachable from tests only"
		return cl
	default:
		// callers exist but sit in a cycle no entry point enters
		cl.Status = StatusLive
	}
	if cl.Reason == "" {
		cl.Reason = fmt.Sprintf("called by %d function(s)", cl.Callers)
	}
	return cl
}

// deadConfidence scores how certain it is that an unreferenced function is
// dead code.
func deadConfidence(def extract.FunctionDef, hasDef bool, ambiguous bool) float64 {
	confidence := 0.9

	if hasDef {
		if def.Exported {
			confidence -= 0.3
		} else {
			confidence += 0.05
		}
		if extract.IsTestFile(def.ID.File) {
			confidence -= 0.15
		}
		if isFFI(def.Attributes) {
			confidence -= 0.25
		}
	}
	// a name-only match elsewhere suggests dynamic use the resolver could
	// not pin down
	if ambiguous {
		confidence -= 0.2
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}
	return confidence
}

func isFFI(attrs []string) bool {
	for _, a := range attrs {
		if strings.Contains(a, "no_mangle") || strings.Contains(a, "export_name") ||
			strings.Contains(a, "pyfunction") || strings.Contains(a, "wasm_bindgen") {
			return true
		}
	}
	return false
}

func ambiguousNames(res *resolve.Result) map[string]bool {
	out := make(map[string]bool)
	if res == nil {
		return out
	}
	for id := range res.AmbiguousTargets {
		out[id.ShortName()] = true
	}
	return out
}
