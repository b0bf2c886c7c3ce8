package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/parser"
)

type pythonVisitor struct {
	x        *Extractor
	facts    *FileFacts
	src      []byte
	testFile bool

	imported   map[string]bool
	classes    map[string]*TypeDef
	classOrder []string

	moduleID    callgraph.FunctionID
	moduleScope *scope
}

func newPythonVisitor(x *Extractor, facts *FileFacts, src []byte) *pythonVisitor {
	id := callgraph.NewFunctionID(facts.Path, ModuleFunction, 0, facts.ModulePath)
	return &pythonVisitor{
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

func (v *pythonVisitor) file(root *sitter.Node) {
	parser.WalkTyped(root, v.src, func(n *sitter.Node, t string, src []byte) bool {
		switch t {
		case "import_statement":
			v.importStatement(n)
			return false
		case "import_from_statement":
			v.importFrom(n)
			return false
		case "class_definition":
			v.class(parser.FieldText(n, "name", src))
		}
		return true
	})

	for _, child := range parser.NamedChildren(root) {
		if child.Type() == "expression_statement" {
			v.moduleAssignment(child)
		}
		v.walk(child, v.moduleScope)
	}
	v.finish(root)
}

func (v *pythonVisitor) finish(root *sitter.Node) {
	for _, name := range v.classOrder {
		v.facts.Types = append(v.facts.Types, *v.classes[name])
	}
	exported := make(map[string]bool, len(v.facts.Exports))
	for _, e := range v.facts.Exports {
		exported[e] = true
	}
	for i := range v.facts.Functions {
		d := &v.facts.Functions[i]
		if exported[d.ID.Name] || d.Owner != "" && exported[d.Owner] {
			d.Exported = true
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

func (v *pythonVisitor) class(name string) *TypeDef {
	if td, ok := v.classes[name]; ok {
		return td
	}
	td := &TypeDef{Name: name, Fields: make(map[string]string)}
	v.classes[name] = td
	v.classOrder = append(v.classOrder, name)
	return td
}

// moduleAssignment records singletons and __all__ from a top-level
// expression statement.
func (v *pythonVisitor) moduleAssignment(stmt *sitter.Node) {
	a := stmt.NamedChild(0)
	if a == nil || a.Type() != "assignment" {
		return
	}
	left := a.ChildByFieldName("left")
	right := a.ChildByFieldName("right")
	if left == nil || left.Type() != "identifier" || right == nil {
		return
	}
	name := parser.GetNodeText(left, v.src)
	if name == "__all__" {
		for _, s := range parser.NamedChildren(right) {
			if s.Type() == "string" {
				v.facts.Exports = append(v.facts.Exports, unquote(parser.GetNodeText(s, v.src)))
			}
		}
		return
	}
	if typ := v.constructed(right); typ != "" {
		v.facts.Singletons = append(v.facts.Singletons, Singleton{Name: name, Type: typ, Line: parser.StartLine(a)})
	}
}

func (v *pythonVisitor) walk(n *sitter.Node, sc *scope) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "function_definition":
		v.function(n, "", nil)
		return
	case "class_definition":
		v.classDef(n, nil)
		return
	case "decorated_definition":
		v.decorated(n, "", sc)
		return
	case "import_statement", "import_from_statement", "comment":
		return
	case "call":
		v.call(n, sc)
		return
	case "for_statement":
		v.forLoop(n, sc)
		return
	case "assignment":
		v.assignment(n, sc)
		return
	case "lambda":
		for _, p := range parser.NamedChildren(n.ChildByFieldName("parameters")) {
			v.bindParam(p, sc)
		}
		v.walk(n.ChildByFieldName("body"), sc)
		return
	}
	for _, c := range parser.NamedChildren(n) {
		v.walk(c, sc)
	}
}

func (v *pythonVisitor) decorated(n *sitter.Node, owner string, sc *scope) {
	var decos []string
	for _, c := range parser.NamedChildren(n) {
		if c.Type() != "decorator" {
			continue
		}
		decos = append(decos, parser.GetNodeText(c, v.src))
		expr := c.NamedChild(0)
		if expr == nil {
			continue
		}
		// a bare decorator is invoked with the function it wraps
		if expr.Type() == "identifier" || expr.Type() == "attribute" {
			v.reference(expr, sc)
			continue
		}
		v.walk(expr, sc)
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		return
	}
	switch def.Type() {
	case "function_definition":
		v.function(def, owner, decos)
	case "class_definition":
		v.classDef(def, decos)
	}
}

func (v *pythonVisitor) classDef(n *sitter.Node, decos []string) {
	name := parser.FieldText(n, "name", v.src)
	td := v.class(name)
	td.Line = parser.StartLine(n)
	for _, b := range parser.NamedChildren(n.ChildByFieldName("superclasses")) {
		switch b.Type() {
		case "identifier", "attribute":
			td.Bases = append(td.Bases, lastDotted(parser.GetNodeText(b, v.src)))
		}
	}

	for _, c := range parser.NamedChildren(n.ChildByFieldName("body")) {
		switch c.Type() {
		case "function_definition":
			v.function(c, name, nil)
		case "decorated_definition":
			v.decorated(c, name, v.moduleScope)
		case "expression_statement":
			// class-level annotations declare instance field types
			if a := c.NamedChild(0); a != nil && a.Type() == "assignment" {
				if left := a.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
					if t := a.ChildByFieldName("type"); t != nil {
						td.Fields[parser.GetNodeText(left, v.src)] = pythonTypeName(parser.GetNodeText(t, v.src))
					}
				}
			}
			v.walk(c, v.moduleScope)
		default:
			v.walk(c, v.moduleScope)
		}
	}
}

func (v *pythonVisitor) function(n *sitter.Node, owner string, decos []string) {
	name := parser.FieldText(n, "name", v.src)
	if name == "" {
		return
	}
	id := callgraph.NewFunctionID(v.facts.Path, Qualify(v.facts.Path, owner, name), parser.StartLine(n), v.facts.ModulePath)
	body := n.ChildByFieldName("body")
	def := FunctionDef{
		ID:         id,
		Owner:      owner,
		Attributes: decos,
		Lines:      lineSpan(n),
		Complexity: decisionComplexity(body, v.src),
		IsTest:     v.testFile || isPythonTestName(name, owner),
	}
	for _, d := range decos {
		if pythonTestDecorator(d) {
			def.IsTest = true
		}
		if pythonEntryDecorator(d) {
			def.IsEntryPoint = true
		}
	}
	if v.x.isEntryName(name) {
		def.IsEntryPoint = true
	}

	sc := newScope(id, owner, v.facts.ModulePath)
	sc.inTest = def.IsTest
	for _, p := range parser.NamedChildren(n.ChildByFieldName("parameters")) {
		v.bindParam(p, sc)
	}

	v.facts.Functions = append(v.facts.Functions, def)
	from := len(v.facts.Calls)
	v.walk(body, sc)
	markDelegate(v.facts, from, id)
}

func isPythonTestName(name, owner string) bool {
	if name == "test" || strings.HasPrefix(name, "test_") {
		return true
	}
	return strings.HasPrefix(owner, "Test") && strings.HasPrefix(name, "test")
}

func (v *pythonVisitor) bindParam(p *sitter.Node, sc *scope) {
	name, typ := "", ""
	switch p.Type() {
	case "identifier":
		name = parser.GetNodeText(p, v.src)
	case "typed_parameter":
		if id := p.NamedChild(0); id != nil && id.Type() == "identifier" {
			name = parser.GetNodeText(id, v.src)
		}
		typ = pythonTypeName(parser.FieldText(p, "type", v.src))
	case "default_parameter":
		name = parser.FieldText(p, "name", v.src)
	case "typed_default_parameter":
		name = parser.FieldText(p, "name", v.src)
		typ = pythonTypeName(parser.FieldText(p, "type", v.src))
	case "list_splat_pattern", "dictionary_splat_pattern":
		if id := p.NamedChild(0); id != nil {
			name = parser.GetNodeText(id, v.src)
		}
	}
	if name == "" {
		return
	}
	if (name == "self" || name == "cls") && sc.owner != "" {
		typ = sc.owner
	}
	sc.locals[name] = typ
}

func (v *pythonVisitor) assignment(n *sitter.Node, sc *scope) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	v.walk(right, sc)
	if left == nil {
		return
	}

	typ := ""
	if t := n.ChildByFieldName("type"); t != nil {
		typ = pythonTypeName(parser.GetNodeText(t, v.src))
	} else {
		typ = v.constructed(right)
	}

	switch left.Type() {
	case "identifier":
		name := parser.GetNodeText(left, v.src)
		sc.locals[name] = typ
		if mod, ok := v.dynamicImport(right); ok {
			v.facts.Imports = append(v.facts.Imports, Import{
				Module: mod, Alias: name, Kind: ImportDynamic, Line: parser.StartLine(n),
			})
			v.imported[name] = true
		}
	case "attribute":
		obj := left.ChildByFieldName("object")
		if obj != nil && parser.GetNodeText(obj, v.src) == "self" && sc.owner != "" && typ != "" {
			v.class(sc.owner).Fields[parser.FieldText(left, "attribute", v.src)] = typ
		}
		v.walk(obj, sc)
	case "pattern_list", "tuple_pattern", "list_pattern":
		for _, id := range parser.NamedChildren(left) {
			if id.Type() == "identifier" {
				sc.locals[parser.GetNodeText(id, v.src)] = ""
			}
		}
	}
}

// constructed returns the class name when n instantiates one: `Manager()` or
// `models.Manager()`.
func (v *pythonVisitor) constructed(n *sitter.Node) string {
	if n == nil || n.Type() != "call" {
		return ""
	}
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	name := ""
	switch fn.Type() {
	case "identifier":
		name = parser.GetNodeText(fn, v.src)
	case "attribute":
		name = parser.FieldText(fn, "attribute", v.src)
	}
	if name == "" || !isUpper(name[0]) {
		return ""
	}
	return name
}

// dynamicImport recognizes importlib.import_module("m") and __import__("m").
func (v *pythonVisitor) dynamicImport(n *sitter.Node) (string, bool) {
	if n == nil || n.Type() != "call" {
		return "", false
	}
	fn := parser.GetNodeText(n.ChildByFieldName("function"), v.src)
	if fn != "importlib.import_module" && fn != "import_module" && fn != "__import__" {
		return "", false
	}
	args := parser.NamedChildren(n.ChildByFieldName("arguments"))
	if len(args) == 0 || args[0].Type() != "string" {
		return "", false
	}
	return unquote(parser.GetNodeText(args[0], v.src)), true
}

func (v *pythonVisitor) forLoop(n *sitter.Node, sc *scope) {
	right := n.ChildByFieldName("right")
	v.walk(right, sc)
	var names []string
	left := n.ChildByFieldName("left")
	if left != nil && left.Type() == "identifier" {
		names = append(names, parser.GetNodeText(left, v.src))
	} else {
		for _, id := range parser.NamedChildren(left) {
			if id.Type() == "identifier" {
				names = append(names, parser.GetNodeText(id, v.src))
			}
		}
	}
	for _, name := range names {
		sc.locals[name] = ""
	}
	body := sc
	if field := v.selfCollection(right); field != "" && isObserverCollection(field, v.x.observerCollections) {
		body = sc.observing(names)
	}
	v.walk(n.ChildByFieldName("body"), body)
	v.walk(n.ChildByFieldName("alternative"), sc)
}

// selfCollection returns the attribute name when n iterates self.<attr>,
// looking through .values(), .copy(), list(...) and similar wrappers.
func (v *pythonVisitor) selfCollection(n *sitter.Node) string {
	for n != nil {
		switch n.Type() {
		case "attribute":
			obj := n.ChildByFieldName("object")
			if obj != nil && parser.GetNodeText(obj, v.src) == "self" {
				return parser.FieldText(n, "attribute", v.src)
			}
			return ""
		case "call":
			fn := n.ChildByFieldName("function")
			switch {
			case fn == nil:
				return ""
			case fn.Type() == "attribute" && iteratorAdapters[parser.FieldText(fn, "attribute", v.src)]:
				n = fn.ChildByFieldName("object")
			case fn.Type() == "identifier":
				switch parser.GetNodeText(fn, v.src) {
				case "list", "tuple", "sorted", "reversed", "copy", "iter":
					args := n.ChildByFieldName("arguments")
					if args == nil {
						return ""
					}
					n = args.NamedChild(0)
				default:
					return ""
				}
			default:
				return ""
			}
		default:
			return ""
		}
	}
	return ""
}

func (v *pythonVisitor) call(n *sitter.Node, sc *scope) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")

	argScope := sc
	if site, ok := v.callSite(fn, sc, n); ok {
		v.facts.Calls = append(v.facts.Calls, site)
		name := site.Callee
		if name == "__init__" {
			name = site.Qualifier
		}
		switch {
		case asyncSpawners[name]:
			argScope = sc.with(callgraph.Async)
		case pipelineMethods[name]:
			argScope = sc.with(callgraph.Pipeline)
		case callbackRegistrars[name]:
			argScope = sc.with(callgraph.Callback)
		}
	}

	if fn != nil {
		switch fn.Type() {
		case "attribute":
			v.walk(fn.ChildByFieldName("object"), sc)
		case "identifier":
		default:
			v.walk(fn, sc)
		}
	}

	for _, a := range parser.NamedChildren(args) {
		if a.Type() == "keyword_argument" {
			a = a.ChildByFieldName("value")
			if a == nil {
				continue
			}
		}
		v.reference(a, argScope)
		v.walk(a, argScope)
	}
}

// reference records a function passed as a value: `Thread(target=worker)`,
// `map(self.convert, xs)`.
func (v *pythonVisitor) reference(a *sitter.Node, sc *scope) {
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
	case "attribute":
		s := sc.site(parser.FieldText(a, "attribute", v.src), a)
		if s.Callee == "" {
			return
		}
		s.IsReference = true
		s.IsMethod = true
		v.describeReceiver(&s, a.ChildByFieldName("object"), sc)
		v.facts.Calls = append(v.facts.Calls, s)
	}
}

func (v *pythonVisitor) callSite(fn *sitter.Node, sc *scope, call *sitter.Node) (CallSite, bool) {
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
		if isUpper(name[0]) {
			s.Qualifier = name
			s.Callee = "__init__"
		}
		return s, true
	case "attribute":
		method := parser.FieldText(fn, "attribute", v.src)
		if method == "" {
			return CallSite{}, false
		}
		s := sc.site(method, call)
		s.IsMethod = true
		v.describeReceiver(&s, fn.ChildByFieldName("object"), sc)
		if isUpper(method[0]) {
			// module.Class() instantiates
			s.Qualifier = method
			s.Callee = "__init__"
			s.IsMethod = false
		}
		return s, true
	}
	return CallSite{}, false
}

func (v *pythonVisitor) describeReceiver(s *CallSite, obj *sitter.Node, sc *scope) {
	if obj == nil {
		return
	}
	s.Receiver = compact(parser.GetNodeText(obj, v.src))
	switch obj.Type() {
	case "identifier":
		name := s.Receiver
		switch {
		case (name == "self" || name == "cls") && sc.owner != "":
			s.Qualifier = sc.owner
			s.SameFile = true
			return
		case sc.observers[name]:
			s.Type = callgraph.ObserverDispatch
		}
		if t := sc.locals[name]; t != "" {
			s.Qualifier = t
			_, s.SameFile = v.classes[t]
		}
	case "attribute":
		if chain, ok := v.selfFieldChain(obj); ok {
			s.FieldChain = chain
		}
	case "call":
		if parser.FieldText(obj, "function", v.src) == "super" && sc.owner != "" {
			if td, ok := v.classes[sc.owner]; ok && len(td.Bases) > 0 {
				s.Qualifier = td.Bases[0]
				_, s.SameFile = v.classes[td.Bases[0]]
			}
		}
	}
}

func (v *pythonVisitor) selfFieldChain(n *sitter.Node) ([]string, bool) {
	var chain []string
	for n != nil && n.Type() == "attribute" {
		chain = append([]string{parser.FieldText(n, "attribute", v.src)}, chain...)
		n = n.ChildByFieldName("object")
	}
	if n == nil || n.Type() != "identifier" || parser.GetNodeText(n, v.src) != "self" {
		return nil, false
	}
	return chain, true
}

func (v *pythonVisitor) importStatement(n *sitter.Node) {
	for _, c := range parser.NamedChildren(n) {
		imp := Import{Kind: ImportDirect, Line: parser.StartLine(n)}
		switch c.Type() {
		case "dotted_name":
			imp.Module = parser.GetNodeText(c, v.src)
		case "aliased_import":
			imp.Module = parser.FieldText(c, "name", v.src)
			imp.Alias = parser.FieldText(c, "alias", v.src)
		default:
			continue
		}
		v.facts.Imports = append(v.facts.Imports, imp)
		local := imp.Local()
		if i := strings.IndexByte(local, '.'); i >= 0 && imp.Alias == "" {
			local = local[:i]
		}
		v.imported[local] = true
	}
}

func (v *pythonVisitor) importFrom(n *sitter.Node) {
	modNode := n.ChildByFieldName("module_name")
	if modNode == nil {
		return
	}
	module, level := "", 0
	if modNode.Type() == "relative_import" {
		level = len(parser.GetNodeText(parser.ChildOfType(modNode, "import_prefix"), v.src))
		module = parser.GetNodeText(parser.ChildOfType(modNode, "dotted_name"), v.src)
	} else {
		module = parser.GetNodeText(modNode, v.src)
	}
	kind := ImportFrom
	if level > 0 {
		kind = ImportRelative
	}

	for _, c := range parser.NamedChildren(n) {
		if c.StartByte() == modNode.StartByte() && c.Type() == modNode.Type() {
			continue
		}
		imp := Import{Module: module, Kind: kind, Level: level, Line: parser.StartLine(n)}
		switch c.Type() {
		case "wildcard_import":
			imp.Kind = ImportStar
		case "dotted_name":
			imp.Name = parser.GetNodeText(c, v.src)
		case "aliased_import":
			imp.Name = parser.FieldText(c, "name", v.src)
			imp.Alias = parser.FieldText(c, "alias", v.src)
		default:
			continue
		}
		v.facts.Imports = append(v.facts.Imports, imp)
		if imp.Kind != ImportStar {
			v.imported[imp.Local()] = true
		}
	}
}

// pythonTypeName reduces an annotation to a class name:
// `Optional["store.Store"]` becomes `Store`.
func pythonTypeName(text string) string {
	t := unquote(strings.TrimSpace(text))
	if i := strings.Index(t, "|"); i >= 0 {
		parts := strings.Split(t, "|")
		t = ""
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "None" {
				t = p
				break
			}
		}
	}
	for {
		open := strings.IndexByte(t, '[')
		if open < 0 {
			break
		}
		base := lastDotted(t[:open])
		end := strings.LastIndexByte(t, ']')
		switch base {
		case "Optional", "Final", "ClassVar", "Annotated", "Type", "type":
			if end > open {
				t = unquote(firstTopLevelArg(t[open+1 : end]))
				continue
			}
		}
		t = t[:open]
		break
	}
	return lastDotted(strings.TrimSpace(t))
}

func lastDotted(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}
