package cfg

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reach/pkg/parser"
)

// mutatingMethods are receiver methods that require a mutable borrow.
var mutatingMethods = map[string]bool{
	"push":           true,
	"push_str":       true,
	"push_back":      true,
	"push_front":     true,
	"pop":            true,
	"pop_back":       true,
	"pop_front":      true,
	"insert":         true,
	"remove":         true,
	"clear":          true,
	"sort":           true,
	"sort_by":        true,
	"sort_by_key":    true,
	"sort_unstable":  true,
	"retain":         true,
	"truncate":       true,
	"extend":         true,
	"append":         true,
	"drain":          true,
	"dedup":          true,
	"reverse":        true,
	"swap":           true,
	"resize":         true,
	"fill":           true,
	"entry":          true,
	"get_mut":        true,
	"iter_mut":       true,
	"borrow_mut":     true,
	"split_off":      true,
	"shrink_to_fit":  true,
	"or_insert":      true,
	"or_insert_with": true,
}

// IsMutatingMethod reports whether calling name on a receiver mutates it.
func IsMutatingMethod(name string) bool {
	return mutatingMethods[name]
}

// captureVisitor accumulates the captures of one closure literal.
type captureVisitor struct {
	source []byte
	outer  map[string]bool
	isMove bool

	order    []VarID
	captures map[VarID]*CapturedVar
}

// AnalyzeClosure computes the captures of a closure_expression against the
// names defined before it in the enclosing function.
func AnalyzeClosure(node *sitter.Node, source []byte, outer map[string]bool) Closure {
	return analyzeClosure(node, source, outer, nil)
}

func analyzeClosure(node *sitter.Node, source []byte, outer, inheritedParams map[string]bool) Closure {
	v := &captureVisitor{
		source:   source,
		outer:    outer,
		isMove:   isMoveClosure(node),
		captures: make(map[VarID]*CapturedVar),
	}
	root := &scope{names: make(map[string]bool)}
	for name := range inheritedParams {
		root.names[name] = true
	}
	root.bind(closureParams(node, source))

	v.walk(node.ChildByFieldName("body"), root)

	out := Closure{Line: parser.StartLine(node), IsMove: v.isMove}
	for _, name := range v.order {
		out.Captures = append(out.Captures, *v.captures[name])
	}
	return out
}

// scope holds the names bound inside a closure at one point of its body.
// A let binding is visible only to code after its pattern.
type scope struct {
	parent *scope
	names  map[string]bool
}

func (s *scope) child() *scope {
	return &scope{parent: s, names: make(map[string]bool)}
}

func (s *scope) bind(names []string) {
	for _, n := range names {
		s.names[n] = true
	}
}

func (s *scope) has(name string) bool {
	for c := s; c != nil; c = c.parent {
		if c.names[name] {
			return true
		}
	}
	return false
}

func (s *scope) flatten() map[string]bool {
	out := make(map[string]bool)
	for c := s; c != nil; c = c.parent {
		for n := range c.names {
			out[n] = true
		}
	}
	return out
}

func isMoveClosure(node *sitter.Node) bool {
	for i := range int(node.ChildCount()) {
		if c := node.Child(i); c != nil && c.Type() == "move" {
			return true
		}
	}
	return false
}

func closureParams(node *sitter.Node, source []byte) []string {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	var names []string
	for _, p := range parser.NamedChildren(params) {
		if p.Type() == "parameter" {
			names = append(names, patternBindings(p.ChildByFieldName("pattern"), source)...)
			continue
		}
		names = append(names, patternBindings(p, source)...)
	}
	return names
}

func (v *captureVisitor) add(name string, mode CaptureMode, mutated bool) {
	id := VarID(name)
	if existing, ok := v.captures[id]; ok {
		if mutated {
			v.upgrade(existing)
		} else if mode == ByMutRef && !v.isMove {
			existing.Mode = ByMutRef
		}
		return
	}
	c := &CapturedVar{Var: id, Mode: mode}
	if v.isMove {
		c.Mode = ByValue
	}
	v.captures[id] = c
	v.order = append(v.order, id)
	if mutated {
		v.upgrade(c)
	}
}

func (v *captureVisitor) upgrade(c *CapturedVar) {
	c.IsMutated = true
	if !v.isMove {
		c.Mode = ByMutRef
	}
}

// walk visits node in source order, capturing outer names that no closure
// binding in sc shadows.
func (v *captureVisitor) walk(node *sitter.Node, sc *scope) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier", "self":
		name := parser.GetNodeText(node, v.source)
		if v.outer[name] && !sc.has(name) {
			v.add(name, ByRef, false)
		}
		return
	case "scoped_identifier", "scoped_type_identifier", "type_identifier", "field_identifier":
		return
	case "closure_expression":
		v.mergeNested(node, sc)
		return
	case "block":
		v.walkChildren(node, sc.child(), nil, nil)
		return
	case "let_declaration":
		v.walk(node.ChildByFieldName("value"), sc)
		v.walk(node.ChildByFieldName("alternative"), sc)
		sc.bind(patternBindings(node.ChildByFieldName("pattern"), v.source))
		return
	case "let_condition":
		v.walk(node.ChildByFieldName("value"), sc)
		sc.bind(patternBindings(node.ChildByFieldName("pattern"), v.source))
		return
	case "if_expression", "while_expression":
		alt := node.ChildByFieldName("alternative")
		v.walkChildren(node, sc.child(), alt, sc)
		return
	case "if_let_expression", "while_let_expression", "for_expression":
		v.walk(node.ChildByFieldName("value"), sc)
		inner := sc.child()
		inner.bind(patternBindings(node.ChildByFieldName("pattern"), v.source))
		if body := node.ChildByFieldName("body"); body != nil {
			v.walk(body, inner)
		}
		v.walk(node.ChildByFieldName("consequence"), inner)
		v.walk(node.ChildByFieldName("alternative"), sc)
		return
	case "match_arm":
		inner := sc.child()
		pattern := node.ChildByFieldName("pattern")
		inner.bind(patternBindings(pattern, v.source))
		if pattern != nil && pattern.Type() == "match_pattern" {
			v.walk(pattern.ChildByFieldName("condition"), inner)
		}
		v.walk(node.ChildByFieldName("value"), inner)
		return
	case "assignment_expression", "compound_assignment_expr":
		v.mutate(node.ChildByFieldName("left"), sc)
	case "call_expression":
		fn := node.ChildByFieldName("function")
		if fn != nil && fn.Type() == "field_expression" && mutatingMethods[parser.FieldText(fn, "field", v.source)] {
			v.mutate(fn.ChildByFieldName("value"), sc)
		}
	}
	v.walkChildren(node, sc, nil, nil)
}

// walkChildren visits every child of node in sc, except skip, which is
// visited in skipScope.
func (v *captureVisitor) walkChildren(node *sitter.Node, sc *scope, skip *sitter.Node, skipScope *scope) {
	for i := range int(node.ChildCount()) {
		c := node.Child(i)
		if c == nil {
			continue
		}
		if skip != nil && sameNode(c, skip) {
			v.walk(c, skipScope)
			continue
		}
		v.walk(c, sc)
	}
}

// mergeNested analyzes a nested closure with everything bound so far in
// scope and folds its captures into this closure's set.
func (v *captureVisitor) mergeNested(n *sitter.Node, sc *scope) {
	inner := analyzeClosure(n, v.source, v.outer, sc.flatten())
	for _, c := range inner.Captures {
		mode := ByRef
		if c.Mode == ByMutRef {
			mode = ByMutRef
		}
		v.add(string(c.Var), mode, c.IsMutated)
	}
}

// mutate records a write through target when it is rooted at a captured
// outer name.
func (v *captureVisitor) mutate(target *sitter.Node, sc *scope) {
	name := string(primaryVar(target, v.source))
	if name == "" || !v.outer[name] || sc.has(name) {
		return
	}
	v.add(name, ByRef, true)
}

// patternBindings lists the variable names a pattern binds, in source order.
// Constructor paths and capitalized identifiers are treated as non-bindings.
func patternBindings(node *sitter.Node, source []byte) []string {
	var names []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "identifier":
			name := parser.GetNodeText(n, source)
			if name != "" && name != "_" && !isUpper(name[0]) {
				names = append(names, name)
			}
			return
		case "self":
			names = append(names, "self")
			return
		case "shorthand_field_identifier":
			names = append(names, parser.GetNodeText(n, source))
			return
		case "scoped_identifier", "field_identifier", "type_identifier",
			"integer_literal", "string_literal", "char_literal", "boolean_literal":
			return
		case "tuple_struct_pattern", "struct_pattern":
			typ := n.ChildByFieldName("type")
			for _, c := range parser.NamedChildren(n) {
				if typ != nil && sameNode(c, typ) {
					continue
				}
				visit(c)
			}
			return
		case "field_pattern":
			if p := n.ChildByFieldName("pattern"); p != nil {
				visit(p)
				return
			}
			if name := n.ChildByFieldName("name"); name != nil {
				names = append(names, parser.GetNodeText(name, source))
			}
			return
		case "match_pattern":
			cond := n.ChildByFieldName("condition")
			for _, c := range parser.NamedChildren(n) {
				if cond != nil && sameNode(c, cond) {
					continue
				}
				visit(c)
			}
			return
		}
		for _, c := range parser.NamedChildren(n) {
			visit(c)
		}
	}
	visit(node)
	return names
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }

// primaryVar reduces an expression to the variable it is rooted at, or "".
func primaryVar(node *sitter.Node, source []byte) VarID {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "identifier":
		return VarID(parser.GetNodeText(node, source))
	case "self":
		return "self"
	case "field_expression":
		return primaryVar(node.ChildByFieldName("value"), source)
	case "index_expression":
		if nc := node.NamedChild(0); nc != nil {
			return primaryVar(nc, source)
		}
	case "reference_expression":
		return primaryVar(node.ChildByFieldName("value"), source)
	case "parenthesized_expression":
		if nc := node.NamedChild(0); nc != nil {
			return primaryVar(nc, source)
		}
	case "unary_expression":
		// only a dereference keeps the variable's identity
		if op := node.Child(0); op != nil && op.Type() == "*" {
			return primaryVar(node.NamedChild(0), source)
		}
	}
	return ""
}

// PatternBindings lists the variable names a pattern binds, in source order.
func PatternBindings(node *sitter.Node, source []byte) []string {
	return patternBindings(node, source)
}
