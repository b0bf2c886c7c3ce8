package extract

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/cfg"
	"github.com/panbanda/reach/pkg/parser"
)

// rustWrappers are generic containers looked through when inferring the
// type a field or local resolves methods on.
var rustWrappers = map[string]bool{
	"Box": true, "Arc": true, "Rc": true, "RefCell": true, "Cell": true,
	"Mutex": true, "RwLock": true, "Option": true, "Weak": true, "Pin": true,
	"Cow": true, "Lazy": true, "LazyLock": true, "OnceCell": true, "OnceLock": true,
	"ManuallyDrop": true,
}

type rustVisitor struct {
	x        *Extractor
	facts    *FileFacts
	src      []byte
	testFile bool

	imported   map[string]bool
	localTypes map[string]bool
}

func newRustVisitor(x *Extractor, facts *FileFacts, src []byte) *rustVisitor {
	return &rustVisitor{
		x:          x,
		facts:      facts,
		src:        src,
		testFile:   IsTestFile(facts.Path),
		imported:   make(map[string]bool),
		localTypes: make(map[string]bool),
	}
}

func (v *rustVisitor) file(root *sitter.Node) {
	// Imports and type names are collected up front so call sites see them
	// regardless of declaration order.
	parser.WalkTyped(root, v.src, func(n *sitter.Node, t string, src []byte) bool {
		switch t {
		case "use_declaration":
			v.use(n)
			return false
		case "struct_item", "enum_item", "trait_item", "union_item", "type_item":
			if name := parser.FieldText(n, "name", src); name != "" {
				v.localTypes[name] = true
			}
		}
		return true
	})
	v.items(root, v.facts.ModulePath, false)
}

func (v *rustVisitor) items(node *sitter.Node, module string, inTest bool) {
	for _, child := range parser.NamedChildren(node) {
		switch child.Type() {
		case "function_item":
			v.function(child, "", "", module, inTest)
		case "impl_item":
			v.impl(child, module, inTest)
		case "trait_item":
			v.trait(child, module, inTest)
		case "struct_item":
			v.structDef(child)
		case "static_item", "const_item":
			v.static(child)
		case "mod_item":
			body := child.ChildByFieldName("body")
			if body == nil {
				continue
			}
			name := parser.FieldText(child, "name", v.src)
			v.items(body, module+"::"+name, inTest || hasCfgTest(v.attributes(child)))
		}
	}
}

// attributes returns the bodies of the outer attributes attached to an item,
// e.g. "test" for #[test].
func (v *rustVisitor) attributes(node *sitter.Node) []string {
	var attrs []string
	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		t := prev.Type()
		if t == "line_comment" || t == "block_comment" {
			continue
		}
		if t != "attribute_item" {
			break
		}
		text := parser.GetNodeText(prev, v.src)
		text = strings.TrimSuffix(strings.TrimPrefix(text, "#["), "]")
		attrs = append([]string{strings.TrimSpace(text)}, attrs...)
	}
	return attrs
}

func hasCfgTest(attrs []string) bool {
	for _, a := range attrs {
		if strings.ReplaceAll(a, " ", "") == "cfg(test)" {
			return true
		}
	}
	return false
}

func (v *rustVisitor) isExternC(node *sitter.Node) bool {
	mods := parser.ChildOfType(node, "function_modifiers")
	return mods != nil && strings.Contains(parser.GetNodeText(mods, v.src), "extern")
}

func (v *rustVisitor) function(node *sitter.Node, owner, trait, module string, inTest bool) {
	name := parser.FieldText(node, "name", v.src)
	if name == "" {
		return
	}
	attrs := v.attributes(node)
	id := callgraph.NewFunctionID(v.facts.Path, Qualify(v.facts.Path, owner, name), parser.StartLine(node), module)
	def := FunctionDef{
		ID:         id,
		Owner:      owner,
		Trait:      trait,
		Attributes: attrs,
		Lines:      lineSpan(node),
		Exported:   parser.ChildOfType(node, "visibility_modifier") != nil,
		IsTest:     inTest || v.testFile,
	}
	for _, a := range attrs {
		if rustTestAttribute(a) {
			def.IsTest = true
		}
		if rustEntryAttribute(a) {
			def.IsEntryPoint = true
		}
	}
	if v.isExternC(node) || v.x.isEntryName(name) {
		def.IsEntryPoint = true
	}
	def.Complexity = v.complexity(node)

	sc := newScope(id, owner, module)
	sc.inTest = def.IsTest
	v.params(node.ChildByFieldName("parameters"), sc)

	v.facts.Functions = append(v.facts.Functions, def)
	from := len(v.facts.Calls)
	v.walk(node.ChildByFieldName("body"), sc)
	markDelegate(v.facts, from, id)
}

// complexity lowers the body into a CFG and reports its cyclomatic number.
// A CFG that fails validation is recorded and complexity falls back to
// counting decision nodes.
func (v *rustVisitor) complexity(node *sitter.Node) uint32 {
	body := node.ChildByFieldName("body")
	if !v.x.buildCFG || body == nil {
		return decisionComplexity(body, v.src)
	}
	g := cfg.BuildFunction(node, v.src)
	if err := g.Validate(); err != nil {
		v.facts.CFGErrors = append(v.facts.CFGErrors, err)
		return decisionComplexity(body, v.src)
	}
	return uint32(g.Cyclomatic())
}

func (v *rustVisitor) params(params *sitter.Node, sc *scope) {
	for _, p := range parser.NamedChildren(params) {
		switch p.Type() {
		case "self_parameter":
			sc.locals["self"] = sc.owner
		case "parameter":
			names := cfg.PatternBindings(p.ChildByFieldName("pattern"), v.src)
			typ := rustTypeName(parser.FieldText(p, "type", v.src))
			for _, n := range names {
				sc.locals[n] = ""
			}
			if len(names) == 1 {
				sc.locals[names[0]] = typ
			}
		}
	}
}

func (v *rustVisitor) impl(node *sitter.Node, module string, inTest bool) {
	block := ImplBlock{
		Type:  rustTypeName(parser.FieldText(node, "type", v.src)),
		Trait: rustTypeName(parser.FieldText(node, "trait", v.src)),
	}
	inTest = inTest || hasCfgTest(v.attributes(node))
	for _, child := range parser.NamedChildren(node.ChildByFieldName("body")) {
		if child.Type() != "function_item" {
			continue
		}
		block.Methods = append(block.Methods, parser.FieldText(child, "name", v.src))
		v.function(child, block.Type, block.Trait, module, inTest)
	}
	v.facts.Impls = append(v.facts.Impls, block)
}

func (v *rustVisitor) trait(node *sitter.Node, module string, inTest bool) {
	def := TraitDef{Name: parser.FieldText(node, "name", v.src)}
	for _, child := range parser.NamedChildren(node.ChildByFieldName("body")) {
		switch child.Type() {
		case "function_signature_item":
			def.Methods = append(def.Methods, parser.FieldText(child, "name", v.src))
		case "function_item":
			def.Methods = append(def.Methods, parser.FieldText(child, "name", v.src))
			v.function(child, def.Name, def.Name, module, inTest)
		}
	}
	v.facts.Traits = append(v.facts.Traits, def)
}

func (v *rustVisitor) structDef(node *sitter.Node) {
	def := TypeDef{
		Name:   parser.FieldText(node, "name", v.src),
		Fields: make(map[string]string),
		Line:   parser.StartLine(node),
	}
	body := node.ChildByFieldName("body")
	switch {
	case body == nil:
	case body.Type() == "field_declaration_list":
		for _, f := range parser.NamedChildren(body) {
			if f.Type() != "field_declaration" {
				continue
			}
			name := parser.FieldText(f, "name", v.src)
			def.Fields[name] = rustTypeName(parser.FieldText(f, "type", v.src))
		}
	case body.Type() == "ordered_field_declaration_list":
		i := 0
		for _, f := range parser.NamedChildren(body) {
			switch f.Type() {
			case "visibility_modifier", "attribute_item", "line_comment", "block_comment":
				continue
			}
			def.Fields[strconv.Itoa(i)] = rustTypeName(parser.GetNodeText(f, v.src))
			i++
		}
	}
	v.facts.Types = append(v.facts.Types, def)
}

func (v *rustVisitor) static(node *sitter.Node) {
	name := parser.FieldText(node, "name", v.src)
	typ := rustTypeName(parser.FieldText(node, "type", v.src))
	if name == "" || typ == "" || !isUpper(typ[0]) {
		return
	}
	v.facts.Singletons = append(v.facts.Singletons, Singleton{Name: name, Type: typ, Line: parser.StartLine(node)})
}

func (v *rustVisitor) use(node *sitter.Node) {
	arg := parser.FieldText(node, "argument", v.src)
	for _, item := range expandUse(arg) {
		imp, ok := rustImport(item)
		if !ok {
			continue
		}
		imp.Line = parser.StartLine(node)
		v.facts.Imports = append(v.facts.Imports, imp)
		if imp.Kind != ImportStar {
			v.imported[imp.Local()] = true
		}
	}
}

// walk records the calls under n. Closures and async blocks are walked with
// the enclosing function's scope; nested named items start their own.
func (v *rustVisitor) walk(n *sitter.Node, sc *scope) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "function_item":
		v.function(n, "", "", sc.module, sc.inTest)
		return
	case "impl_item":
		v.impl(n, sc.module, sc.inTest)
		return
	case "trait_item":
		v.trait(n, sc.module, sc.inTest)
		return
	case "struct_item":
		v.structDef(n)
		return
	case "use_declaration", "attribute_item", "line_comment", "block_comment":
		return
	case "macro_invocation":
		v.macroCalls(parser.ChildOfType(n, "token_tree"), sc)
		return
	case "call_expression":
		v.call(n, sc)
		return
	case "async_block":
		v.children(n, sc.with(callgraph.Async))
		return
	case "let_declaration":
		v.let(n, sc)
		return
	case "for_expression":
		v.forLoop(n, sc)
		return
	case "closure_expression":
		v.closure(n, sc)
		return
	}
	v.children(n, sc)
}

func (v *rustVisitor) children(n *sitter.Node, sc *scope) {
	for _, c := range parser.NamedChildren(n) {
		v.walk(c, sc)
	}
}

func (v *rustVisitor) let(n *sitter.Node, sc *scope) {
	value := n.ChildByFieldName("value")
	v.walk(value, sc)
	v.walk(n.ChildByFieldName("alternative"), sc)

	names := cfg.PatternBindings(n.ChildByFieldName("pattern"), v.src)
	typ := ""
	if t := n.ChildByFieldName("type"); t != nil {
		typ = rustTypeName(parser.GetNodeText(t, v.src))
	} else {
		typ = v.inferType(value)
	}
	for _, name := range names {
		sc.locals[name] = ""
	}
	if len(names) == 1 {
		sc.locals[names[0]] = typ
	}
}

// inferType recognizes constructor calls and struct literals.
func (v *rustVisitor) inferType(value *sitter.Node) string {
	if value == nil {
		return ""
	}
	switch value.Type() {
	case "struct_expression":
		return rustTypeName(parser.FieldText(value, "name", v.src))
	case "reference_expression":
		return v.inferType(value.ChildByFieldName("value"))
	case "try_expression", "parenthesized_expression":
		if c := value.NamedChild(0); c != nil {
			return v.inferType(c)
		}
	case "call_expression":
		fn := value.ChildByFieldName("function")
		if fn == nil || fn.Type() != "scoped_identifier" {
			return ""
		}
		typ := rustTypeName(parser.FieldText(fn, "path", v.src))
		if rustWrappers[typ] {
			args := parser.NamedChildren(value.ChildByFieldName("arguments"))
			if len(args) == 1 {
				return v.inferType(args[0])
			}
			return ""
		}
		name := parser.FieldText(fn, "name", v.src)
		if typ != "" && isUpper(typ[0]) && isConstructorName(name) {
			return typ
		}
	}
	return ""
}

func isConstructorName(name string) bool {
	return name == "new" || name == "default" || name == "open" || name == "connect" ||
		strings.HasPrefix(name, "new_") || strings.HasPrefix(name, "with_") ||
		strings.HasPrefix(name, "from_") || name == "from" || name == "build"
}

func (v *rustVisitor) forLoop(n *sitter.Node, sc *scope) {
	value := n.ChildByFieldName("value")
	v.walk(value, sc)
	names := cfg.PatternBindings(n.ChildByFieldName("pattern"), v.src)
	for _, name := range names {
		sc.locals[name] = ""
	}
	body := sc
	if field := v.selfCollection(value); field != "" && isObserverCollection(field, v.x.observerCollections) {
		body = sc.observing(names)
	}
	v.walk(n.ChildByFieldName("body"), body)
}

// selfCollection returns the field name when n iterates a field of self,
// looking through references and iterator adapters.
func (v *rustVisitor) selfCollection(n *sitter.Node) string {
	for n != nil {
		switch n.Type() {
		case "reference_expression":
			n = n.ChildByFieldName("value")
		case "parenthesized_expression", "try_expression":
			n = n.NamedChild(0)
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil || fn.Type() != "field_expression" || !iteratorAdapters[parser.FieldText(fn, "field", v.src)] {
				return ""
			}
			n = fn.ChildByFieldName("value")
		case "field_expression":
			value := n.ChildByFieldName("value")
			if value != nil && value.Type() == "self" {
				return parser.FieldText(n, "field", v.src)
			}
			return ""
		default:
			return ""
		}
	}
	return ""
}

func (v *rustVisitor) closure(n *sitter.Node, sc *scope) {
	for _, name := range v.closureParams(n) {
		sc.locals[name] = ""
	}
	v.walk(n.ChildByFieldName("body"), sc)
}

func (v *rustVisitor) closureParams(n *sitter.Node) []string {
	var names []string
	for _, p := range parser.NamedChildren(n.ChildByFieldName("parameters")) {
		if p.Type() == "parameter" {
			names = append(names, cfg.PatternBindings(p.ChildByFieldName("pattern"), v.src)...)
			continue
		}
		names = append(names, cfg.PatternBindings(p, v.src)...)
	}
	return names
}

func (v *rustVisitor) call(n *sitter.Node, sc *scope) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")

	argScope := sc
	site, ok := v.callSite(fn, sc, n)
	if ok {
		v.facts.Calls = append(v.facts.Calls, site)
		switch {
		case asyncSpawners[site.Callee]:
			argScope = sc.with(callgraph.Async)
		case site.IsMethod && pipelineMethods[site.Callee]:
			argScope = sc.with(callgraph.Pipeline)
		case callbackRegistrars[site.Callee]:
			argScope = sc.with(callgraph.Callback)
		}
		if site.IsMethod && pipelineMethods[site.Callee] {
			field := v.selfCollection(fn.ChildByFieldName("value"))
			if field != "" && isObserverCollection(field, v.x.observerCollections) {
				var params []string
				for _, a := range parser.NamedChildren(args) {
					if a.Type() == "closure_expression" {
						params = append(params, v.closureParams(a)...)
					}
				}
				argScope = argScope.observing(params)
			}
		}
	}

	switch {
	case fn == nil:
	case fn.Type() == "field_expression":
		v.walk(fn.ChildByFieldName("value"), sc)
	case fn.Type() != "identifier" && fn.Type() != "scoped_identifier" && fn.Type() != "generic_function":
		v.walk(fn, sc)
	}

	for _, a := range parser.NamedChildren(args) {
		v.reference(a, argScope)
		v.walk(a, argScope)
	}
}

// reference records a function passed by name as an argument.
func (v *rustVisitor) reference(a *sitter.Node, sc *scope) {
	switch a.Type() {
	case "identifier":
		name := parser.GetNodeText(a, v.src)
		if name == "" || isUpper(name[0]) || sc.isLocal(name) {
			return
		}
		s := sc.site(name, a)
		s.IsReference = true
		s.SameFile = !v.imported[name]
		v.facts.Calls = append(v.facts.Calls, s)
	case "scoped_identifier":
		name := parser.FieldText(a, "name", v.src)
		if name == "" || isUpper(name[0]) {
			return
		}
		s := sc.site(name, a)
		s.IsReference = true
		v.qualify(&s, callgraph.NormalizeName(parser.FieldText(a, "path", v.src)), sc)
		v.facts.Calls = append(v.facts.Calls, s)
	}
}

func (v *rustVisitor) callSite(fn *sitter.Node, sc *scope, call *sitter.Node) (CallSite, bool) {
	if fn == nil {
		return CallSite{}, false
	}
	switch fn.Type() {
	case "identifier":
		name := parser.GetNodeText(fn, v.src)
		// locals hold closures and fn pointers; capitalized names are
		// tuple structs and enum variants
		if name == "" || isUpper(name[0]) || sc.isLocal(name) {
			return CallSite{}, false
		}
		s := sc.site(name, call)
		s.SameFile = !v.imported[name]
		return s, true
	case "scoped_identifier":
		name := parser.FieldText(fn, "name", v.src)
		if name == "" || isUpper(name[0]) {
			return CallSite{}, false
		}
		s := sc.site(name, call)
		v.qualify(&s, callgraph.NormalizeName(parser.FieldText(fn, "path", v.src)), sc)
		return s, true
	case "field_expression":
		s := sc.site(parser.FieldText(fn, "field", v.src), call)
		s.IsMethod = true
		v.describeReceiver(&s, fn.ChildByFieldName("value"), sc)
		return s, s.Callee != ""
	case "generic_function":
		return v.callSite(fn.ChildByFieldName("function"), sc, call)
	}
	return CallSite{}, false
}

func (v *rustVisitor) qualify(s *CallSite, path string, sc *scope) {
	switch {
	case path == "Self":
		s.Qualifier = sc.owner
		s.SameFile = true
	case path == "self":
		s.SameFile = true
	default:
		s.Qualifier = path
		s.SameFile = path == sc.owner || v.localTypes[path]
	}
}

func (v *rustVisitor) describeReceiver(s *CallSite, value *sitter.Node, sc *scope) {
	if value == nil {
		return
	}
	s.Receiver = compact(parser.GetNodeText(value, v.src))
	switch value.Type() {
	case "self":
		s.Qualifier = sc.owner
		s.SameFile = true
	case "field_expression":
		if chain, ok := v.selfFieldChain(value); ok {
			s.FieldChain = chain
		}
	case "identifier":
		name := s.Receiver
		if sc.observers[name] {
			s.Type = callgraph.ObserverDispatch
		}
		if t := sc.locals[name]; t != "" {
			s.Qualifier = t
			s.SameFile = v.localTypes[t]
		}
	}
}

// selfFieldChain returns ["a", "b"] for self.a.b.
func (v *rustVisitor) selfFieldChain(n *sitter.Node) ([]string, bool) {
	var chain []string
	for n != nil && n.Type() == "field_expression" {
		chain = append([]string{parser.FieldText(n, "field", v.src)}, chain...)
		n = n.ChildByFieldName("value")
	}
	if n == nil || n.Type() != "self" {
		return nil, false
	}
	return chain, true
}

// macroCalls scans a macro's token tree for `name(...)`, `recv.name(...)` and
// `path::name(...)` shapes. Macro bodies are never expanded.
func (v *rustVisitor) macroCalls(tt *sitter.Node, sc *scope) {
	if tt == nil {
		return
	}
	kids := make([]*sitter.Node, 0, tt.ChildCount())
	for i := range int(tt.ChildCount()) {
		if c := tt.Child(i); c != nil {
			kids = append(kids, c)
		}
	}
	text := func(i int) string {
		if i < 0 {
			return ""
		}
		return parser.GetNodeText(kids[i], v.src)
	}
	for i, c := range kids {
		if c.Type() != "token_tree" {
			continue
		}
		if i > 0 && kids[i-1].Type() == "identifier" && strings.HasPrefix(text(i), "(") {
			name := text(i - 1)
			if name != "" && !isUpper(name[0]) && !sc.isLocal(name) {
				s := sc.site(name, c)
				switch {
				case i >= 3 && text(i-2) == "." && text(i-3) == "self":
					s.IsMethod = true
					s.Receiver = "self"
					s.Qualifier = sc.owner
					s.SameFile = true
				case i >= 3 && text(i-2) == ".":
					s.IsMethod = true
					s.Receiver = text(i - 3)
					if t := sc.locals[s.Receiver]; t != "" {
						s.Qualifier = t
					}
				case i >= 3 && text(i-2) == "::":
					v.qualify(&s, text(i-3), sc)
				default:
					s.SameFile = !v.imported[name]
				}
				v.facts.Calls = append(v.facts.Calls, s)
			}
		}
		v.macroCalls(c, sc)
	}
}

// rustTypeName reduces a type expression to the nominal type methods are
// resolved on: `&mut Arc<Mutex<store::Store<T>>>` becomes `Store`.
func rustTypeName(text string) string {
	t := strings.TrimSpace(text)
	for {
		prev := t
		t = strings.TrimSpace(t)
		t = strings.TrimPrefix(t, "&")
		if strings.HasPrefix(t, "'") {
			if i := strings.IndexByte(t, ' '); i >= 0 {
				t = t[i+1:]
			}
		}
		t = strings.TrimPrefix(t, "mut ")
		t = strings.TrimPrefix(t, "dyn ")
		t = strings.TrimPrefix(t, "impl ")
		if t == prev {
			break
		}
	}
	for {
		open := strings.IndexByte(t, '<')
		if open < 0 {
			break
		}
		base := lastPathSegment(t[:open])
		end := strings.LastIndexByte(t, '>')
		if !rustWrappers[base] || end < open {
			t = t[:open]
			break
		}
		t = rustTypeName(firstTopLevelArg(t[open+1 : end]))
	}
	if i := strings.IndexByte(t, '+'); i >= 0 {
		t = t[:i]
	}
	return lastPathSegment(strings.TrimSpace(t))
}

func lastPathSegment(s string) string {
	if i := strings.LastIndex(s, "::"); i >= 0 {
		return s[i+2:]
	}
	return s
}

func firstTopLevelArg(s string) string {
	parts := splitTopLevel(s, ',')
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// splitTopLevel splits on sep outside of <>, (), [] and {} nesting.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[', '{':
			depth++
		case '>', ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// expandUse flattens a use tree: `a::{b, c::{d as e}}` yields
// ["a::b", "a::c::d as e"].
func expandUse(s string) []string {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '{')
	if open < 0 {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	end := strings.LastIndexByte(s, '}')
	if end < open {
		return nil
	}
	prefix := strings.TrimSpace(s[:open])
	var out []string
	for _, part := range splitTopLevel(s[open+1:end], ',') {
		if part == "self" {
			out = append(out, strings.TrimSuffix(prefix, "::"))
			continue
		}
		out = append(out, expandUse(prefix+part)...)
	}
	return out
}

func rustImport(item string) (Import, bool) {
	alias := ""
	if i := strings.Index(item, " as "); i >= 0 {
		alias = strings.TrimSpace(item[i+4:])
		item = item[:i]
	}
	item = strings.Join(strings.Fields(item), "")
	if item == "" || alias == "_" {
		return Import{}, false
	}
	if strings.HasSuffix(item, "::*") {
		mod := strings.TrimSuffix(item, "::*")
		imp := Import{Module: mod, Kind: ImportStar, Level: superLevel(mod)}
		return imp, true
	}
	mod, name := "", item
	if i := strings.LastIndex(item, "::"); i >= 0 {
		mod, name = item[:i], item[i+2:]
	}
	imp := Import{Module: mod, Name: name, Alias: alias, Kind: ImportFrom}
	if lvl := superLevel(mod); lvl > 0 {
		imp.Kind = ImportRelative
		imp.Level = lvl
	} else if mod == "self" || strings.HasPrefix(mod, "self::") {
		imp.Kind = ImportRelative
		imp.Level = 1
	} else if mod == "" {
		imp.Kind = ImportDirect
	}
	return imp, true
}

// superLevel counts leading `super` segments.
func superLevel(mod string) int {
	n := 0
	for _, seg := range strings.Split(mod, "::") {
		if seg != "super" {
			break
		}
		n++
	}
	return n
}
