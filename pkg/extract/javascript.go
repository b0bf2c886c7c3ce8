package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/parser"
)

type jsVisitor struct {
	x        *Extractor
	facts    *FileFacts
	src      []byte
	testFile bool

	imported      map[string]bool
	classes       map[string]*TypeDef
	classOrder    []string
	defaultExport string

	moduleID    callgraph.FunctionID
	moduleScope *scope
}

func newJSVisitor(x *Extractor, facts *FileFacts, src []byte) *jsVisitor {
	id := callgraph.NewFunctionID(facts.Path, ModuleFunction, 0, facts.ModulePath)
	return &jsVisitor{
		x:           x,
		facts:       facts,
		src:         src,
		testFile:    IsTestFile(facts.Path),
		imported:    make(map[string]bool),
		classes:     make(map[string]*TypeDef),
		moduleID:    id,
		moduleScope: newScope(id, "", facts.ModulePath),
	}
}

func (v *jsVisitor) file(root *sitter.Node) {
	parser.WalkTyped(root, v.src, func(n *sitter.Node, t string, src []byte) bool {
		switch t {
		case "import_statement":
			v.importStatement(n)
			return false
		case "class_declaration", "abstract_class_declaration":
			v.class(parser.FieldText(n, "name", src))
		}
		return true
	})
	for _, child := range parser.NamedChildren(root) {
		v.walk(child, v.moduleScope)
	}
	v.finish(root)
}

func (v *jsVisitor) finish(root *sitter.Node) {
	for _, name := range v.classOrder {
		v.facts.Types = append(v.facts.Types, *v.classes[name])
	}
	exported := make(map[string]bool, len(v.facts.Exports))
	for _, e := range v.facts.Exports {
		exported[e] = true
	}
	for i := range v.facts.Functions {
		d := &v.facts.Functions[i]
		if d.Owner == "" && exported[d.ID.Name] {
			d.Exported = true
		}
		if d.Owner == "" && d.ID.Name == v.defaultExport {
			d.IsEntryPoint = true
		}
	}
	for _, c := range v.facts.Calls {
		if c.Caller == v.moduleID {
			v.facts.Functions = append([]FunctionDef{{
				ID:           v.moduleID,
				IsEntryPoint: true,
				IsTest:       v.testFile,
				Complexity:   1,
				Lines:        parser.EndLine(root),
			}}, v.facts.Functions...)
			break
		}
	}
}

func (v *jsVisitor) class(name string) *TypeDef {
	if td, ok := v.classes[name]; ok {
		return td
	}
	td := &TypeDef{Name: name, Fields: make(map[string]string)}
	v.classes[name] = td
	v.classOrder = append(v.classOrder, name)
	return td
}

func isFunctionValue(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

func (v *jsVisitor) walk(n *sitter.Node, sc *scope) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		v.function(n, parser.FieldText(n, "name", v.src), "", false, false)
		return
	case "class_declaration", "abstract_class_declaration", "class":
		v.classDef(n, false)
		return
	case "export_statement":
		v.export(n, sc)
		return
	case "lexical_declaration", "variable_declaration":
		v.declaration(n, sc, false)
		return
	case "import_statement", "comment", "interface_declaration", "type_alias_declaration":
		return
	case "call_expression":
		v.call(n, sc)
		return
	case "new_expression":
		v.newExpr(n, sc)
		return
	case "for_in_statement":
		v.forLoop(n, sc)
		return
	case "assignment_expression":
		v.assignment(n, sc)
		return
	case "arrow_function", "function_expression", "function", "generator_function":
		v.params(n, sc)
		v.walk(n.ChildByFieldName("body"), sc)
		return
	case "jsx_opening_element", "jsx_self_closing_element":
		v.jsxElement(n, sc)
	}
	for _, c := range parser.NamedChildren(n) {
		v.walk(c, sc)
	}
}

func (v *jsVisitor) export(n *sitter.Node, sc *scope) {
	isDefault := parser.ChildOfType(n, "default") != nil
	if src := n.ChildByFieldName("source"); src != nil {
		// re-exports behave like imports for resolution
		v.reexport(n, unquote(parser.GetNodeText(src, v.src)))
		return
	}
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		switch decl.Type() {
		case "function_declaration", "generator_function_declaration":
			v.function(decl, parser.FieldText(decl, "name", v.src), "", true, isDefault)
		case "class_declaration", "abstract_class_declaration":
			v.classDef(decl, true)
		case "lexical_declaration", "variable_declaration":
			v.declaration(decl, sc, true)
		default:
			v.walk(decl, sc)
		}
		return
	}
	if value := n.ChildByFieldName("value"); value != nil {
		switch {
		case isFunctionValue(value):
			name := parser.FieldText(value, "name", v.src)
			if name == "" {
				name = "default"
			}
			v.function(value, name, "", true, true)
		case value.Type() == "identifier":
			v.defaultExport = parser.GetNodeText(value, v.src)
			v.facts.Exports = append(v.facts.Exports, v.defaultExport)
		case value.Type() == "class":
			v.classDef(value, true)
		default:
			v.walk(value, sc)
		}
		return
	}
	if clause := parser.ChildOfType(n, "export_clause"); clause != nil {
		for _, spec := range parser.NamedChildren(clause) {
			if spec.Type() == "export_specifier" {
				v.facts.Exports = append(v.facts.Exports, parser.FieldText(spec, "name", v.src))
			}
		}
	}
}

func (v *jsVisitor) reexport(n *sitter.Node, module string) {
	kind, level := jsImportKind(module)
	clause := parser.ChildOfType(n, "export_clause")
	if clause == nil {
		v.facts.Imports = append(v.facts.Imports, Import{Module: module, Kind: ImportStar, Level: level, Line: parser.StartLine(n)})
		return
	}
	for _, spec := range parser.NamedChildren(clause) {
		if spec.Type() != "export_specifier" {
			continue
		}
		imp := Import{
			Module: module,
			Name:   parser.FieldText(spec, "name", v.src),
			Alias:  parser.FieldText(spec, "alias", v.src),
			Kind:   kind,
			Level:  level,
			Line:   parser.StartLine(n),
		}
		v.facts.Imports = append(v.facts.Imports, imp)
		v.facts.Exports = append(v.facts.Exports, imp.Local())
	}
}

func (v *jsVisitor) declaration(n *sitter.Node, sc *scope, exported bool) {
	for _, d := range parser.NamedChildren(n) {
		if d.Type() != "variable_declarator" {
			continue
		}
		nameNode := d.ChildByFieldName("name")
		value := d.ChildByFieldName("value")
		if nameNode != nil && nameNode.Type() == "identifier" && isFunctionValue(value) {
			v.function(value, parser.GetNodeText(nameNode, v.src), "", exported, false)
			continue
		}
		v.declarator(d, nameNode, value, sc, exported)
	}
}

func (v *jsVisitor) declarator(d, nameNode, value *sitter.Node, sc *scope, exported bool) {
	if nameNode == nil {
		return
	}
	if mod, ok := v.requireCall(value); ok {
		v.requireImport(nameNode, mod, parser.StartLine(d))
		return
	}
	if mod, ok := v.dynamicImport(value); ok {
		imp := Import{Module: mod, Kind: ImportDynamic, Line: parser.StartLine(d)}
		if nameNode.Type() == "identifier" {
			imp.Alias = parser.GetNodeText(nameNode, v.src)
			v.imported[imp.Alias] = true
		}
		v.facts.Imports = append(v.facts.Imports, imp)
		return
	}

	v.walk(value, sc)
	switch nameNode.Type() {
	case "identifier":
		name := parser.GetNodeText(nameNode, v.src)
		typ := jsTypeName(parser.FieldText(d, "type", v.src))
		if typ == "" {
			typ = v.constructed(value)
		}
		sc.locals[name] = typ
		if exported {
			v.facts.Exports = append(v.facts.Exports, name)
		}
		if sc == v.moduleScope && v.constructed(value) != "" {
			v.facts.Singletons = append(v.facts.Singletons, Singleton{Name: name, Type: typ, Line: parser.StartLine(d)})
		}
	default:
		for _, name := range v.patternNames(nameNode) {
			sc.locals[name] = ""
		}
	}
}

// patternNames lists identifiers bound by a destructuring pattern.
func (v *jsVisitor) patternNames(n *sitter.Node) []string {
	var names []string
	parser.WalkTyped(n, v.src, func(c *sitter.Node, t string, src []byte) bool {
		switch t {
		case "identifier", "shorthand_property_identifier_pattern":
			names = append(names, parser.GetNodeText(c, src))
			return false
		case "pair_pattern":
			names = append(names, patternLeaf(c.ChildByFieldName("value"), src)...)
			return false
		}
		return true
	})
	return names
}

func patternLeaf(n *sitter.Node, src []byte) []string {
	if n == nil {
		return nil
	}
	if n.Type() == "identifier" {
		return []string{parser.GetNodeText(n, src)}
	}
	if n.Type() == "assignment_pattern" {
		return patternLeaf(n.ChildByFieldName("left"), src)
	}
	return nil
}

func (v *jsVisitor) requireCall(n *sitter.Node) (string, bool) {
	if n == nil || n.Type() != "call_expression" {
		return "", false
	}
	if parser.FieldText(n, "function", v.src) != "require" {
		return "", false
	}
	args := parser.NamedChildren(n.ChildByFieldName("arguments"))
	if len(args) != 1 || args[0].Type() != "string" {
		return "", false
	}
	return unquote(parser.GetNodeText(args[0], v.src)), true
}

func (v *jsVisitor) dynamicImport(n *sitter.Node) (string, bool) {
	if n != nil && n.Type() == "await_expression" {
		n = n.NamedChild(0)
	}
	if n == nil || n.Type() != "call_expression" {
		return "", false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "import" {
		return "", false
	}
	args := parser.NamedChildren(n.ChildByFieldName("arguments"))
	if len(args) == 0 || args[0].Type() != "string" {
		return "", false
	}
	return unquote(parser.GetNodeText(args[0], v.src)), true
}

func (v *jsVisitor) requireImport(nameNode *sitter.Node, module string, line int) {
	kind, level := jsImportKind(module)
	if nameNode.Type() == "identifier" {
		alias := parser.GetNodeText(nameNode, v.src)
		v.facts.Imports = append(v.facts.Imports, Import{Module: module, Alias: alias, Kind: ImportDirect, Level: level, Line: line})
		v.imported[alias] = true
		return
	}
	for _, name := range v.patternNames(nameNode) {
		v.facts.Imports = append(v.facts.Imports, Import{Module: module, Name: name, Kind: kind, Level: level, Line: line})
		v.imported[name] = true
	}
}

func (v *jsVisitor) constructed(n *sitter.Node) string {
	if n != nil && n.Type() == "await_expression" {
		n = n.NamedChild(0)
	}
	if n == nil || n.Type() != "new_expression" {
		return ""
	}
	ctor := n.ChildByFieldName("constructor")
	if ctor == nil {
		return ""
	}
	switch ctor.Type() {
	case "identifier":
		return parser.GetNodeText(ctor, v.src)
	case "member_expression":
		return parser.FieldText(ctor, "property", v.src)
	}
	return ""
}

func (v *jsVisitor) assignment(n *sitter.Node, sc *scope) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	v.walk(right, sc)
	if left == nil || left.Type() != "member_expression" {
		return
	}
	obj := left.ChildByFieldName("object")
	if obj != nil && obj.Type() == "this" && sc.owner != "" {
		if typ := v.constructed(right); typ != "" {
			v.class(sc.owner).Fields[parser.FieldText(left, "property", v.src)] = typ
		}
		return
	}
	v.walk(obj, sc)
}

func (v *jsVisitor) classDef(n *sitter.Node, exported bool) {
	name := parser.FieldText(n, "name", v.src)
	if name == "" {
		name = "default"
	}
	td := v.class(name)
	td.Line = parser.StartLine(n)
	if h := parser.ChildOfType(n, "class_heritage"); h != nil {
		td.Bases = append(td.Bases, heritageBase(h, v.src))
	}

	for _, m := range parser.NamedChildren(n.ChildByFieldName("body")) {
		switch m.Type() {
		case "method_definition":
			v.function(m, parser.FieldText(m, "name", v.src), name, exported, false)
		case "field_definition", "public_field_definition":
			fieldName := parser.FieldText(m, "property", v.src)
			if fieldName == "" {
				fieldName = parser.FieldText(m, "name", v.src)
			}
			value := m.ChildByFieldName("value")
			if isFunctionValue(value) {
				v.function(value, fieldName, name, exported, false)
				continue
			}
			if typ := jsTypeName(parser.FieldText(m, "type", v.src)); typ != "" {
				td.Fields[fieldName] = typ
			} else if typ := v.constructed(value); typ != "" {
				td.Fields[fieldName] = typ
			}
			v.walk(value, v.moduleScope)
		default:
			v.walk(m, v.moduleScope)
		}
	}
}

func heritageBase(h *sitter.Node, src []byte) string {
	var base string
	parser.WalkTyped(h, src, func(n *sitter.Node, t string, s []byte) bool {
		if base != "" {
			return false
		}
		switch t {
		case "implements_clause":
			return false
		case "identifier", "type_identifier":
			base = parser.GetNodeText(n, s)
			return false
		case "member_expression":
			base = parser.FieldText(n, "property", s)
			return false
		}
		return true
	})
	return base
}

func (v *jsVisitor) function(n *sitter.Node, name, owner string, exported, isDefault bool) {
	if name == "" {
		return
	}
	id := callgraph.NewFunctionID(v.facts.Path, Qualify(v.facts.Path, owner, name), parser.StartLine(n), v.facts.ModulePath)
	body := n.ChildByFieldName("body")
	def := FunctionDef{
		ID:           id,
		Owner:        owner,
		Lines:        lineSpan(n),
		Complexity:   decisionComplexity(body, v.src),
		IsTest:       v.testFile,
		Exported:     exported,
		IsEntryPoint: isDefault || v.x.isEntryName(name),
	}
	if exported && owner == "" {
		v.facts.Exports = append(v.facts.Exports, name)
	}

	sc := newScope(id, owner, v.facts.ModulePath)
	sc.inTest = def.IsTest
	if owner != "" {
		sc.locals["this"] = owner
	}
	v.params(n, sc)

	v.facts.Functions = append(v.facts.Functions, def)
	from := len(v.facts.Calls)
	v.walk(body, sc)
	markDelegate(v.facts, from, id)
}

func (v *jsVisitor) params(fn *sitter.Node, sc *scope) {
	if p := fn.ChildByFieldName("parameter"); p != nil {
		sc.locals[parser.GetNodeText(p, v.src)] = ""
		return
	}
	for _, p := range parser.NamedChildren(fn.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "identifier":
			sc.locals[parser.GetNodeText(p, v.src)] = ""
		case "required_parameter", "optional_parameter":
			pattern := p.ChildByFieldName("pattern")
			typ := jsTypeName(parser.FieldText(p, "type", v.src))
			if pattern != nil && pattern.Type() == "identifier" {
				name := parser.GetNodeText(pattern, v.src)
				sc.locals[name] = typ
				// constructor parameter properties declare fields
				if parser.ChildOfType(p, "accessibility_modifier") != nil && sc.owner != "" && typ != "" {
					v.class(sc.owner).Fields[name] = typ
				}
				continue
			}
			for _, name := range v.patternNames(pattern) {
				sc.locals[name] = ""
			}
		default:
			for _, name := range v.patternNames(p) {
				sc.locals[name] = ""
			}
		}
	}
}

func (v *jsVisitor) forLoop(n *sitter.Node, sc *scope) {
	right := n.ChildByFieldName("right")
	v.walk(right, sc)
	names := v.patternNames(n.ChildByFieldName("left"))
	for _, name := range names {
		sc.locals[name] = ""
	}
	body := sc
	if field := v.thisCollection(right); field != "" && isObserverCollection(field, v.x.observerCollections) {
		body = sc.observing(names)
	}
	v.walk(n.ChildByFieldName("body"), body)
}

// thisCollection returns the property name when n iterates this.<prop>.
func (v *jsVisitor) thisCollection(n *sitter.Node) string {
	for n != nil {
		switch n.Type() {
		case "member_expression":
			obj := n.ChildByFieldName("object")
			if obj != nil && obj.Type() == "this" {
				return strings.TrimPrefix(parser.FieldText(n, "property", v.src), "#")
			}
			return ""
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil || fn.Type() != "member_expression" || !iteratorAdapters[parser.FieldText(fn, "property", v.src)] {
				return ""
			}
			n = fn.ChildByFieldName("object")
		case "parenthesized_expression":
			n = n.NamedChild(0)
		default:
			return ""
		}
	}
	return ""
}

func (v *jsVisitor) call(n *sitter.Node, sc *scope) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")

	if mod, ok := v.dynamicImport(n); ok {
		v.facts.Imports = append(v.facts.Imports, Import{Module: mod, Kind: ImportDynamic, Line: parser.StartLine(n)})
		return
	}
	if _, ok := v.requireCall(n); ok {
		return
	}

	argScope := sc
	if site, ok := v.callSite(fn, sc, n); ok {
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
			field := v.thisCollection(fn.ChildByFieldName("object"))
			if field != "" && isObserverCollection(field, v.x.observerCollections) {
				var params []string
				for _, a := range parser.NamedChildren(args) {
					if isFunctionValue(a) {
						probe := newScope(sc.caller, sc.owner, sc.module)
						v.params(a, probe)
						for name := range probe.locals {
							params = append(params, name)
						}
					}
				}
				argScope = argScope.observing(params)
			}
		}
	}

	if fn != nil {
		switch fn.Type() {
		case "member_expression":
			v.walk(fn.ChildByFieldName("object"), sc)
		case "identifier", "import", "super":
		default:
			v.walk(fn, sc)
		}
	}
	v.arguments(args, argScope)
}

func (v *jsVisitor) arguments(args *sitter.Node, sc *scope) {
	for _, a := range parser.NamedChildren(args) {
		v.reference(a, sc)
		v.walk(a, sc)
	}
}

func (v *jsVisitor) newExpr(n *sitter.Node, sc *scope) {
	ctor := n.ChildByFieldName("constructor")
	if ctor != nil {
		s := sc.site("constructor", n)
		switch ctor.Type() {
		case "identifier":
			s.Qualifier = parser.GetNodeText(ctor, v.src)
			s.SameFile = !v.imported[s.Qualifier]
			v.facts.Calls = append(v.facts.Calls, s)
		case "member_expression":
			s.Qualifier = parser.FieldText(ctor, "property", v.src)
			s.Receiver = compact(parser.FieldText(ctor, "object", v.src))
			v.facts.Calls = append(v.facts.Calls, s)
		default:
			v.walk(ctor, sc)
		}
	}
	v.arguments(n.ChildByFieldName("arguments"), sc)
}

func (v *jsVisitor) jsxElement(n *sitter.Node, sc *scope) {
	name := parser.FieldText(n, "name", v.src)
	if name == "" || !isUpper(name[0]) || strings.Contains(name, ".") {
		return
	}
	s := sc.site(name, n)
	s.SameFile = !v.imported[name]
	s.IsReference = true
	v.facts.Calls = append(v.facts.Calls, s)
}

func (v *jsVisitor) reference(a *sitter.Node, sc *scope) {
	switch a.Type() {
	case "identifier":
		name := parser.GetNodeText(a, v.src)
		if name == "" || name == "undefined" || sc.isLocal(name) {
			return
		}
		s := sc.site(name, a)
		s.IsReference = true
		s.SameFile = !v.imported[name]
		v.facts.Calls = append(v.facts.Calls, s)
	case "member_expression":
		obj := a.ChildByFieldName("object")
		if obj == nil || obj.Type() != "this" {
			return
		}
		s := sc.site(strings.TrimPrefix(parser.FieldText(a, "property", v.src), "#"), a)
		s.IsReference = true
		s.IsMethod = true
		s.Receiver = "this"
		s.Qualifier = sc.owner
		s.SameFile = true
		v.facts.Calls = append(v.facts.Calls, s)
	}
}

func (v *jsVisitor) callSite(fn *sitter.Node, sc *scope, call *sitter.Node) (CallSite, bool) {
	if fn == nil {
		return CallSite{}, false
	}
	switch fn.Type() {
	case "identifier":
		name := parser.GetNodeText(fn, v.src)
		if name == "" || sc.isLocal(name) {
			return CallSite{}, false
		}
		s := sc.site(name, call)
		s.SameFile = !v.imported[name]
		return s, true
	case "member_expression":
		method := strings.TrimPrefix(parser.FieldText(fn, "property", v.src), "#")
		if method == "" {
			return CallSite{}, false
		}
		s := sc.site(method, call)
		s.IsMethod = true
		v.describeReceiver(&s, fn.ChildByFieldName("object"), sc)
		return s, true
	case "super":
		// super(...) in a constructor runs the base constructor
		if td, ok := v.classes[sc.owner]; ok && len(td.Bases) > 0 {
			s := sc.site("constructor", call)
			s.Qualifier = td.Bases[0]
			_, s.SameFile = v.classes[td.Bases[0]]
			return s, true
		}
	}
	return CallSite{}, false
}

func (v *jsVisitor) describeReceiver(s *CallSite, obj *sitter.Node, sc *scope) {
	if obj == nil {
		return
	}
	s.Receiver = compact(parser.GetNodeText(obj, v.src))
	switch obj.Type() {
	case "this":
		s.Qualifier = sc.owner
		s.SameFile = sc.owner != ""
	case "super":
		if td, ok := v.classes[sc.owner]; ok && len(td.Bases) > 0 {
			s.Qualifier = td.Bases[0]
			_, s.SameFile = v.classes[td.Bases[0]]
		}
	case "member_expression":
		if chain, ok := v.thisFieldChain(obj); ok {
			s.FieldChain = chain
		}
	case "identifier":
		name := s.Receiver
		if sc.observers[name] {
			s.Type = callgraph.ObserverDispatch
		}
		if t := sc.locals[name]; t != "" {
			s.Qualifier = t
			_, s.SameFile = v.classes[t]
		}
	}
}

func (v *jsVisitor) thisFieldChain(n *sitter.Node) ([]string, bool) {
	var chain []string
	for n != nil && n.Type() == "member_expression" {
		prop := strings.TrimPrefix(parser.FieldText(n, "property", v.src), "#")
		chain = append([]string{prop}, chain...)
		n = n.ChildByFieldName("object")
	}
	if n == nil || n.Type() != "this" {
		return nil, false
	}
	return chain, true
}

func (v *jsVisitor) importStatement(n *sitter.Node) {
	module := unquote(parser.FieldText(n, "source", v.src))
	if module == "" {
		return
	}
	kind, level := jsImportKind(module)
	line := parser.StartLine(n)
	add := func(imp Import) {
		imp.Module, imp.Level, imp.Line = module, level, line
		v.facts.Imports = append(v.facts.Imports, imp)
		if imp.Kind != ImportStar && imp.Local() != module {
			v.imported[imp.Local()] = true
		}
	}

	clause := parser.ChildOfType(n, "import_clause")
	if clause == nil {
		add(Import{Kind: ImportDirect})
		return
	}
	for _, c := range parser.NamedChildren(clause) {
		switch c.Type() {
		case "identifier":
			add(Import{Name: "default", Alias: parser.GetNodeText(c, v.src), Kind: kind})
		case "namespace_import":
			if id := parser.ChildOfType(c, "identifier"); id != nil {
				add(Import{Alias: parser.GetNodeText(id, v.src), Kind: ImportDirect})
			}
		case "named_imports":
			for _, spec := range parser.NamedChildren(c) {
				if spec.Type() != "import_specifier" {
					continue
				}
				add(Import{
					Name:  parser.FieldText(spec, "name", v.src),
					Alias: parser.FieldText(spec, "alias", v.src),
					Kind:  kind,
				})
			}
		}
	}
}

// jsImportKind classifies a module specifier. Relative specifiers count one
// level for "./" and one per "../".
func jsImportKind(module string) (ImportKind, int) {
	if !strings.HasPrefix(module, ".") {
		return ImportFrom, 0
	}
	level := strings.Count(module, "../")
	if level == 0 {
		level = 1
	}
	return ImportRelative, level
}

// jsTypeName reduces a TypeScript annotation to a class name.
func jsTypeName(text string) string {
	t := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), ":"))
	if t == "" {
		return ""
	}
	for _, p := range strings.Split(t, "|") {
		p = strings.TrimSpace(p)
		if p != "undefined" && p != "null" {
			t = p
			break
		}
	}
	if i := strings.IndexByte(t, '<'); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSuffix(t, "[]")
	t = lastDotted(strings.TrimSpace(t))
	if t == "" || !isUpper(t[0]) {
		return ""
	}
	return t
}
