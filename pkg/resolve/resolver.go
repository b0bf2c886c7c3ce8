package resolve

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/extract"
)

// Tier is the precision level that produced a resolution.
type Tier uint8

const (
	// TierNone means no candidate was found.
	TierNone Tier = iota
	// TierSameFile matched a definition in the caller's own file.
	TierSameFile
	// TierImport followed an import binding to the defining file.
	TierImport
	// TierFuzzy matched across files by qualified type or fuzzy key.
	TierFuzzy
	// TierNameOnly matched every function with the same simple name.
	TierNameOnly
)

func (t Tier) String() string {
	switch t {
	case TierSameFile:
		return "same_file"
	case TierImport:
		return "import"
	case TierFuzzy:
		return "fuzzy"
	case TierNameOnly:
		return "name_only"
	default:
		return "none"
	}
}

// UnresolvedCall is a call site no tier could link to a definition in the
// analyzed tree.
type UnresolvedCall struct {
	Site   extract.CallSite
	Reason string
}

// Result summarizes a resolution pass.
type Result struct {
	// Sites is the number of call sites considered.
	Sites int
	// Resolved counts sites linked to at least one definition.
	Resolved int
	// Edges counts edges inserted, one per candidate.
	Edges int
	// External counts calls into code outside the analyzed tree.
	External int
	// Dropped counts function references that matched nothing.
	Dropped int
	// Ambiguous counts sites linked to more than one candidate by name.
	Ambiguous int
	ByTier    map[Tier]int
	// AmbiguousTargets holds callees reached through ambiguous name-only
	// matches.
	AmbiguousTargets map[callgraph.FunctionID]bool
	Unresolved       []UnresolvedCall
}

// UnresolvedRatio is the share of in-tree call sites left unresolved.
func (r *Result) UnresolvedRatio() float64 {
	total := r.Resolved + len(r.Unresolved)
	if total == 0 {
		return 0
	}
	return float64(len(r.Unresolved)) / float64(total)
}

// Resolver links call sites to registered functions.
type Resolver struct {
	nameOnly          bool
	maxNameCandidates int
	minConfidence     Confidence
	workers           int
}

// Option is a functional option for configuring Resolver.
type Option func(*Resolver)

// WithNameOnlyFallback toggles the name-only tier.
func WithNameOnlyFallback(enabled bool) Option {
	return func(r *Resolver) {
		r.nameOnly = enabled
	}
}

// WithMaxNameCandidates leaves a site unresolved when the name-only tier
// matches more than n functions. Zero means unlimited.
func WithMaxNameCandidates(n int) Option {
	return func(r *Resolver) {
		r.maxNameCandidates = n
	}
}

// WithMinConfidence sets the weakest import accepted when following an
// imported singleton to its type.
func WithMinConfidence(c Confidence) Option {
	return func(r *Resolver) {
		r.minConfidence = c
	}
}

// WithWorkers sets the number of goroutines computing candidates.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		nameOnly:      true,
		minConfidence: Medium,
		workers:       runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type outcome uint8

const (
	linked outcome = iota
	external
	dropped
	unresolved
)

type resolution struct {
	candidates []callgraph.FunctionID
	tier       Tier
	outcome    outcome
	reason     string
}

// Resolve links every call site in reg to nodes of g. Every function of reg
// must already be registered in g.
//
// Candidates are computed in parallel against the read-only graph; edges are
// then inserted by this goroutine alone, in site order, so the traversal
// indices never lag behind the edge list.
func (r *Resolver) Resolve(ctx context.Context, g *callgraph.CallGraph, reg *Registry) (*Result, error) {
	var sites []extract.CallSite
	for _, f := range reg.Files() {
		sites = append(sites, f.Calls...)
	}

	l := &lookup{r: r, g: g, reg: reg, imports: NewImportResolver(reg)}
	resolutions := make([]resolution, len(sites))

	p := pool.New().WithMaxGoroutines(r.workers).WithContext(ctx)
	const batch = 256
	for start := 0; start < len(sites); start += batch {
		end := min(start+batch, len(sites))
		p.Go(func(ctx context.Context) error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				resolutions[i] = l.resolve(sites[i])
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Sites:            len(sites),
		ByTier:           make(map[Tier]int),
		AmbiguousTargets: make(map[callgraph.FunctionID]bool),
	}
	for i, rs := range resolutions {
		site := sites[i]
		switch rs.outcome {
		case external:
			res.External++
			continue
		case dropped:
			res.Dropped++
			continue
		case unresolved:
			res.Unresolved = append(res.Unresolved, UnresolvedCall{Site: site, Reason: rs.reason})
			continue
		}
		for _, callee := range rs.candidates {
			err := g.AddCall(callgraph.FunctionCall{Caller: site.Caller, Callee: callee, CallType: site.Type})
			if err != nil {
				return nil, fmt.Errorf("link %s at %s:%d: %w", site.Display(), site.Caller.File, site.Line, err)
			}
			res.Edges++
			if rs.tier == TierNameOnly && len(rs.candidates) > 1 {
				res.AmbiguousTargets[callee] = true
			}
		}
		res.Resolved++
		res.ByTier[rs.tier]++
		if rs.tier == TierNameOnly && len(rs.candidates) > 1 {
			res.Ambiguous++
		}
	}
	return res, nil
}

// lookup computes candidates for one site. It only reads g and reg.
type lookup struct {
	r       *Resolver
	g       *callgraph.CallGraph
	reg     *Registry
	imports *ImportResolver
}

func (l *lookup) resolve(site extract.CallSite) resolution {
	typ := l.receiverType(site)

	if site.SameFile || typ != "" {
		if ids := l.sameFile(site, typ); len(ids) > 0 {
			if typ != "" {
				ids = dedupe(append(ids, l.dispatchTargets(typ, site.Callee, site.Caller.File)...))
			}
			return resolution{candidates: ids, tier: TierSameFile}
		}
	}
	if ids, bound := l.viaImports(site); len(ids) > 0 {
		return resolution{candidates: ids, tier: TierImport}
	} else if bound == boundExternal {
		return l.miss(site, typ, true)
	}
	if ids := l.fuzzy(site, typ); len(ids) > 0 {
		return resolution{candidates: ids, tier: TierFuzzy}
	}
	if site.IsReference {
		return resolution{outcome: dropped}
	}
	if l.r.nameOnly {
		ids := l.nameOnly(site)
		if n := l.r.maxNameCandidates; n > 0 && len(ids) > n {
			return resolution{outcome: unresolved, reason: fmt.Sprintf("%d name-only candidates exceed limit %d", len(ids), n)}
		}
		if len(ids) > 0 {
			return resolution{candidates: ids, tier: TierNameOnly}
		}
	}
	return l.miss(site, typ, false)
}

// miss decides whether an unmatched site is an in-tree diagnostic or a
// call into external code.
func (l *lookup) miss(site extract.CallSite, typ string, boundOutside bool) resolution {
	if site.IsReference {
		return resolution{outcome: dropped}
	}
	if boundOutside || isConstructor(site.Callee) {
		return resolution{outcome: external}
	}
	switch {
	case typ != "" && l.reg.DefinesType(typ):
		return resolution{outcome: unresolved, reason: "no method " + site.Callee + " on " + typ}
	case site.SameFile && !site.IsMethod && site.Qualifier == "":
		return resolution{outcome: unresolved, reason: "no definition of " + site.Callee + " in " + site.Caller.File}
	case len(site.FieldChain) > 0:
		return resolution{outcome: unresolved, reason: "field chain " + strings.Join(site.FieldChain, ".") + " not inferable"}
	}
	return resolution{outcome: external}
}

func isConstructor(name string) bool {
	return name == "__init__" || name == "constructor"
}

// receiverType is the static type a call is made on, when known.
func (l *lookup) receiverType(site extract.CallSite) string {
	if site.Qualifier != "" {
		if t := typePart(site.Qualifier); t != "" {
			return t
		}
		return ""
	}
	if len(site.FieldChain) > 0 {
		return l.chainType(site)
	}
	if site.IsMethod && site.Receiver != "" {
		if s, ok := l.reg.Singleton(site.Caller.File, site.Receiver); ok {
			return s.Type
		}
	}
	return ""
}

// typePart returns the type named by a qualifier: "Store" for
// "crate::store::Store", "" for a module path such as "store".
func typePart(q string) string {
	q = callgraph.NormalizeName(q)
	last := q
	if i := strings.LastIndex(q, "::"); i >= 0 {
		last = q[i+2:]
	}
	if i := strings.LastIndex(last, "."); i >= 0 {
		last = last[i+1:]
	}
	if last == "" || last[0] < 'A' || last[0] > 'Z' {
		return ""
	}
	return last
}

// chainType walks self.a.b from the caller's enclosing type through declared
// field types.
func (l *lookup) chainType(site extract.CallSite) string {
	def, ok := l.reg.Def(site.Caller)
	if !ok || def.Owner == "" {
		return ""
	}
	typ := def.Owner
	for _, field := range site.FieldChain {
		next, ok := l.reg.FieldType(typ, field, site.Caller.File)
		if !ok {
			return ""
		}
		typ = next
	}
	return typ
}

func qualify(file, typ, name string) string {
	return extract.Qualify(file, typ, name)
}

func (l *lookup) sameFile(site extract.CallSite, typ string) []callgraph.FunctionID {
	file := site.Caller.File
	if typ != "" {
		for _, t := range l.typeChain(typ, file) {
			if ids := l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: file, Name: qualify(file, t, site.Callee)}); len(ids) > 0 {
				return ids
			}
		}
		return nil
	}
	if site.IsMethod || site.Qualifier != "" {
		return nil
	}
	return l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: file, Name: site.Callee})
}

// typeChain is typ followed by its base classes and, for Rust types, the
// traits it implements (for default methods).
func (l *lookup) typeChain(typ, file string) []string {
	chain := []string{typ}
	seen := map[string]bool{typ: true}
	for i := 0; i < len(chain); i++ {
		for _, b := range l.reg.Bases(chain[i], file) {
			if !seen[b] {
				seen[b] = true
				chain = append(chain, b)
			}
		}
	}
	for _, trait := range l.reg.TraitsOf(typ) {
		if !seen[trait] {
			seen[trait] = true
			chain = append(chain, trait)
		}
	}
	return chain
}

type binding uint8

const (
	unbound binding = iota
	boundInternal
	boundExternal
)

// viaImports follows the import binding of the callee, the qualifier or the
// receiver to the defining file.
func (l *lookup) viaImports(site extract.CallSite) ([]callgraph.FunctionID, binding) {
	file := site.Caller.File
	switch {
	case site.Qualifier != "":
		return l.qualifiedImport(site)
	case !site.IsMethod:
		res, ok := l.imports.ResolveSymbol(file, site.Callee)
		if !ok {
			return nil, unbound
		}
		if res.External() {
			return nil, boundExternal
		}
		return l.symbolIn(res, site.Callee), boundInternal
	case site.Receiver != "" && len(site.FieldChain) == 0:
		return l.receiverImport(site)
	}
	return nil, unbound
}

// symbolIn finds a function called by its local name in the defining file.
func (l *lookup) symbolIn(res SymbolResolution, local string) []callgraph.FunctionID {
	name := res.Symbol
	if name == "" {
		name = local
	}
	if name == "default" {
		if ids := l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: res.File, Name: local}); len(ids) > 0 {
			return ids
		}
	}
	return l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: res.File, Name: name})
}

// qualifiedImport handles `Type::method`, `module::function` and
// `Class()` constructor sites whose first segment is imported.
func (l *lookup) qualifiedImport(site extract.CallSite) ([]callgraph.FunctionID, binding) {
	file := site.Caller.File
	q := callgraph.NormalizeName(site.Qualifier)
	segs := splitPath(q)
	res, ok := l.imports.ResolveSymbol(file, segs[0])
	if !ok {
		// absolute crate paths need no import
		f, found := l.reg.File(file)
		switch {
		case !found:
		case segs[0] == "crate" || segs[0] == "super" || segs[0] == "self":
			module := rustModulePath(f.ModulePath, q, l.reg)
			return l.inModulePath(module, site, file), boundInternal
		}
		return nil, unbound
	}
	if res.External() {
		return nil, boundExternal
	}
	target := res.File
	// walk submodules named by the remaining segments
	rest := segs[1:]
	if res.Symbol != "" {
		rest = append([]string{res.Symbol}, rest...)
	}
	module := res.DefiningModule
	for len(rest) > 0 && typePart(rest[0]) == "" {
		sub := module + extract.Separator(file) + rest[0]
		if f, ok := l.reg.ModuleFile(sub, file); ok {
			module, target = sub, f
			rest = rest[1:]
			continue
		}
		break
	}
	name := site.Callee
	if len(rest) > 0 {
		name = qualify(file, rest[len(rest)-1], site.Callee)
	}
	if ids := l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: target, Name: name}); len(ids) > 0 {
		return ids, boundInternal
	}
	return nil, boundInternal
}

// inModulePath resolves `crate::a::b::Type::method` style paths.
func (l *lookup) inModulePath(module string, site extract.CallSite, from string) []callgraph.FunctionID {
	name := site.Callee
	if t := typePart(module); t != "" {
		name = qualify(from, t, site.Callee)
		module = module[:max(0, len(module)-len(t)-2)]
	}
	for m := module; m != ""; {
		if f, ok := l.reg.ModuleFile(m, from); ok {
			return l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: f, Name: name})
		}
		i := strings.LastIndex(m, "::")
		if i < 0 {
			break
		}
		m = m[:i]
	}
	return nil
}

func splitPath(q string) []string {
	if strings.Contains(q, "::") {
		return strings.Split(q, "::")
	}
	return strings.Split(q, ".")
}

// receiverImport handles `manager.add()` where manager is an imported
// singleton, class or module.
func (l *lookup) receiverImport(site extract.CallSite) ([]callgraph.FunctionID, binding) {
	file := site.Caller.File
	segs := splitPath(site.Receiver)
	// a dotted receiver may be a whole imported module path
	res, ok := l.imports.ResolveSymbol(file, site.Receiver)
	if ok && !res.External() {
		segs = segs[:1]
	} else {
		res, ok = l.imports.ResolveSymbol(file, segs[0])
	}
	if !ok {
		return nil, unbound
	}
	if res.External() {
		return nil, boundExternal
	}
	if !res.Confidence.AtLeast(l.r.minConfidence) {
		return nil, unbound
	}

	target, module, symbol := res.File, res.DefiningModule, res.Symbol
	for _, seg := range segs[1:] {
		if symbol != "" {
			return nil, boundInternal
		}
		sub := module + extract.Separator(file) + seg
		if f, ok := l.reg.ModuleFile(sub, file); ok {
			module, target = sub, f
			continue
		}
		symbol = seg
	}

	if symbol == "" {
		return l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: target, Name: site.Callee}), boundInternal
	}
	typ := symbol
	if s, ok := l.reg.Singleton(target, symbol); ok {
		typ = s.Type
	}
	for _, t := range l.typeChain(typ, target) {
		name := qualify(target, t, site.Callee)
		if ids := l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: target, Name: name}); len(ids) > 0 {
			return ids, boundInternal
		}
		if ids := l.g.FindByName(name); len(ids) > 0 {
			return ids, boundInternal
		}
	}
	return nil, boundInternal
}

// fuzzy resolves across files: methods of a known type wherever they are
// defined (including trait implementations and subclass overrides), and
// free functions brought in by star imports.
func (l *lookup) fuzzy(site extract.CallSite, typ string) []callgraph.FunctionID {
	file := site.Caller.File
	if typ != "" {
		var ids []callgraph.FunctionID
		for _, t := range l.typeChain(typ, file) {
			if ids = l.g.FindByName(qualify(file, t, site.Callee)); len(ids) > 0 {
				break
			}
		}
		ids = append(ids, l.dispatchTargets(typ, site.Callee, file)...)
		return dedupe(ids)
	}
	if site.IsMethod || site.Qualifier != "" {
		return nil
	}
	for _, res := range l.imports.StarTargets(file) {
		if ids := l.g.FindByFuzzyKey(callgraph.FuzzyKey{File: res.File, Name: site.Callee}); len(ids) > 0 {
			return ids
		}
	}
	return nil
}

// dispatchTargets lists overrides a call through typ may reach at runtime:
// trait implementations and subclass methods.
func (l *lookup) dispatchTargets(typ, method, file string) []callgraph.FunctionID {
	var out []callgraph.FunctionID
	for _, impl := range l.reg.Implementations(typ) {
		out = append(out, l.g.FindByName(qualify(file, impl, method))...)
	}
	seen := map[string]bool{typ: true}
	queue := l.reg.Subtypes(typ)
	for len(queue) > 0 {
		sub := queue[0]
		queue = queue[1:]
		if seen[sub] {
			continue
		}
		seen[sub] = true
		out = append(out, l.g.FindByName(qualify(file, sub, method))...)
		queue = append(queue, l.reg.Subtypes(sub)...)
	}
	return out
}

func (l *lookup) nameOnly(site extract.CallSite) []callgraph.FunctionID {
	var out []callgraph.FunctionID
	for _, id := range l.g.FindByName(site.Callee) {
		if id.ShortName() != callgraph.ShortName(site.Callee) {
			continue
		}
		isMethod := callgraph.Qualifier(id.Name) != ""
		if site.IsMethod && (!isMethod || id == site.Caller) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func dedupe(ids []callgraph.FunctionID) []callgraph.FunctionID {
	seen := make(map[callgraph.FunctionID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
