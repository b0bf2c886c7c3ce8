package cfg

import (
	"fmt"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reach/pkg/parser"
)

type loopFrame struct {
	head BlockID
	exit BlockID
	// exit is allocated lazily for `loop`, which has no natural exit edge
	hasExit bool
}

// Builder lowers one function body. Create a new Builder per function; it
// holds per-function accumulator state and is not reusable.
type Builder struct {
	source []byte

	blocks     []BasicBlock
	current    BlockID
	terminated bool

	scope    map[string]bool
	params   []VarID
	temps    map[string]int
	loops    []loopFrame
	closures []Closure
}

// NewBuilder returns a builder over the given source bytes.
func NewBuilder(source []byte) *Builder {
	return &Builder{
		source: source,
		scope:  make(map[string]bool),
		temps:  make(map[string]int),
	}
}

// BuildFunction lowers a Rust function_item. It never fails: constructs that
// are not modeled become opaque expression statements.
func BuildFunction(fn *sitter.Node, source []byte) *CFG {
	b := NewBuilder(source)
	return b.Build(parser.FieldText(fn, "name", source), fn.ChildByFieldName("parameters"), fn.ChildByFieldName("body"))
}

// Build lowers a body given its parameter list node.
func (b *Builder) Build(name string, params, body *sitter.Node) *CFG {
	b.declareParams(params)
	b.current = b.newBlock()

	if body != nil {
		b.lowerFunctionBody(body)
	}
	if !b.terminated {
		b.terminate(Terminator{Kind: TermReturn})
	}

	return &CFG{
		Function: name,
		Params:   b.params,
		Blocks:   b.blocks,
		Closures: b.closures,
	}
}

func (b *Builder) declareParams(params *sitter.Node) {
	for _, p := range parser.NamedChildren(params) {
		var names []string
		switch p.Type() {
		case "self_parameter":
			names = []string{"self"}
		case "parameter":
			names = patternBindings(p.ChildByFieldName("pattern"), b.source)
		}
		for _, n := range names {
			b.scope[n] = true
			b.params = append(b.params, VarID(n))
		}
	}
}

func (b *Builder) newBlock() BlockID {
	id := BlockID(len(b.blocks))
	b.blocks = append(b.blocks, BasicBlock{ID: id})
	return id
}

// switchTo makes id the open block.
func (b *Builder) switchTo(id BlockID) {
	b.current = id
	b.terminated = false
}

func (b *Builder) addStmt(s Statement) {
	if b.terminated {
		return
	}
	blk := &b.blocks[b.current]
	blk.Statements = append(blk.Statements, s)
}

func (b *Builder) terminate(t Terminator) {
	if b.terminated {
		return
	}
	b.blocks[b.current].Terminator = t
	b.terminated = true
}

func (b *Builder) temp(base string) VarID {
	n := b.temps[base]
	b.temps[base] = n + 1
	if n == 0 {
		return VarID(base)
	}
	return VarID(base + strconv.Itoa(n))
}

func (b *Builder) declare(name string) {
	b.scope[name] = true
}

// outerScope snapshots the names visible at this point.
func (b *Builder) outerScope() map[string]bool {
	out := make(map[string]bool, len(b.scope))
	for k := range b.scope {
		out[k] = true
	}
	return out
}

// lowerFunctionBody lowers the outermost block; its tail expression becomes
// the return value.
func (b *Builder) lowerFunctionBody(body *sitter.Node) {
	stmts, tail := splitBlock(body)
	for _, s := range stmts {
		b.lowerStatement(s)
	}
	if tail != nil && !b.terminated {
		b.emitReturn(tail)
	}
}

// splitBlock separates a block's statements from its tail expression.
func splitBlock(block *sitter.Node) ([]*sitter.Node, *sitter.Node) {
	children := parser.NamedChildren(block)
	var stmts []*sitter.Node
	for _, c := range children {
		if c.Type() == "line_comment" || c.Type() == "block_comment" {
			continue
		}
		stmts = append(stmts, c)
	}
	if len(stmts) == 0 {
		return nil, nil
	}
	last := stmts[len(stmts)-1]
	if isTailExpression(last) {
		return stmts[:len(stmts)-1], last
	}
	// block-like expressions without a semicolon parse as statements but
	// still produce the block's value
	if last.Type() == "expression_statement" && !endsWithSemicolon(last) {
		if inner := last.NamedChild(0); inner != nil && producesValue(inner) {
			return stmts[:len(stmts)-1], inner
		}
	}
	return stmts, nil
}

func endsWithSemicolon(n *sitter.Node) bool {
	count := int(n.ChildCount())
	if count == 0 {
		return false
	}
	last := n.Child(count - 1)
	return last != nil && last.Type() == ";"
}

// producesValue reports whether a block-like expression yields its branches'
// values. Loops are excluded: they evaluate to unit here.
func producesValue(n *sitter.Node) bool {
	switch n.Type() {
	case "if_expression", "if_let_expression", "match_expression", "block", "unsafe_block":
		return true
	}
	return false
}

func isTailExpression(n *sitter.Node) bool {
	switch n.Type() {
	case "expression_statement", "let_declaration", "empty_statement",
		"function_item", "struct_item", "enum_item", "impl_item", "trait_item",
		"use_declaration", "const_item", "static_item", "mod_item", "type_item",
		"macro_definition", "attribute_item":
		return false
	}
	return true
}

// lowerBlockInto lowers a nested block. When result is set, the tail value is
// assigned to it.
func (b *Builder) lowerBlockInto(block *sitter.Node, result VarID) {
	if block == nil || b.terminated {
		return
	}
	if block.Type() != "block" {
		b.lowerValue(block, result)
		return
	}
	stmts, tail := splitBlock(block)
	for _, s := range stmts {
		b.lowerStatement(s)
	}
	if tail != nil {
		b.lowerValue(tail, result)
	}
}

func (b *Builder) lowerStatement(n *sitter.Node) {
	if b.terminated {
		return
	}
	switch n.Type() {
	case "let_declaration":
		b.lowerLet(n)
	case "expression_statement":
		if inner := n.NamedChild(0); inner != nil {
			b.lowerValue(inner, "")
		}
	case "empty_statement":
	default:
		if isTailExpression(n) {
			b.lowerValue(n, "")
		}
	}
}

func (b *Builder) lowerLet(n *sitter.Node) {
	names := patternBindings(n.ChildByFieldName("pattern"), b.source)
	value := n.ChildByFieldName("value")
	line := parser.StartLine(n)

	if len(names) == 0 {
		if value != nil {
			b.lowerValue(value, "")
		}
		return
	}

	if len(names) > 1 && value != nil {
		// destructuring: bind positionally against the reduced value
		b.bindPattern(names, b.reduce(value, "_tmp"), line)
		return
	}

	first := VarID(names[0])
	switch {
	case value == nil:
		b.addStmt(Statement{Kind: StmtDeclare, Target: first, Value: Expr{Kind: ExprOther, Text: "uninit"}, Line: line})
	case isControlFlow(value):
		tmp := b.temp("_tmp")
		b.lowerValue(value, tmp)
		b.addStmt(Statement{Kind: StmtDeclare, Target: first, Value: Expr{Kind: ExprUse, Var: tmp}, Line: line})
	default:
		b.addStmt(Statement{Kind: StmtDeclare, Target: first, Value: b.lowerExpr(value), Line: line})
	}
	for _, name := range names {
		b.declare(name)
	}
}

func isControlFlow(n *sitter.Node) bool {
	switch n.Type() {
	case "if_expression", "if_let_expression", "match_expression",
		"while_expression", "while_let_expression", "loop_expression",
		"for_expression", "block", "unsafe_block", "return_expression",
		"break_expression", "continue_expression":
		return true
	}
	return false
}

// lowerValue lowers an expression in statement or value position.
func (b *Builder) lowerValue(n *sitter.Node, result VarID) {
	if n == nil || b.terminated {
		return
	}
	switch n.Type() {
	case "if_expression", "if_let_expression":
		b.lowerIf(n, result)
	case "match_expression":
		b.lowerMatch(n, result)
	case "while_expression", "while_let_expression":
		b.lowerWhile(n)
	case "loop_expression":
		b.lowerLoop(n)
	case "for_expression":
		b.lowerFor(n)
	case "block":
		b.lowerBlockInto(n, result)
	case "unsafe_block":
		b.lowerBlockInto(parser.ChildOfType(n, "block"), result)
	case "return_expression":
		b.emitReturn(n.NamedChild(0))
	case "break_expression":
		b.lowerBreak()
	case "continue_expression":
		if len(b.loops) > 0 {
			b.terminate(Terminator{Kind: TermGoto, Target: b.loops[len(b.loops)-1].head})
		}
	case "assignment_expression":
		b.lowerAssign(n, "")
	case "compound_assignment_expr":
		op := parser.FieldText(n, "operator", b.source)
		b.lowerAssign(n, op)
	default:
		line := parser.StartLine(n)
		expr := b.lowerExpr(n)
		if result != "" {
			b.addStmt(Statement{Kind: StmtAssign, Target: result, Value: expr, Line: line})
			return
		}
		b.addStmt(Statement{Kind: StmtExpr, Value: expr, Line: line})
	}
}

func (b *Builder) lowerAssign(n *sitter.Node, op string) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	target := primaryVar(left, b.source)
	if target == "" {
		target = VarID(parser.GetNodeText(left, b.source))
	}
	value := b.lowerExpr(right)
	if op != "" {
		value = Expr{Kind: ExprBinary, Op: op, Args: []VarID{target, b.operand(right)}}
	}
	if left != nil && left.Type() == "field_expression" {
		// writes through a field are modeled as an assignment to the root
		value.Text = parser.GetNodeText(left, b.source)
	}
	b.addStmt(Statement{Kind: StmtAssign, Target: target, Value: value, Line: parser.StartLine(n)})
}

// reduce turns an expression into a variable, synthesizing a temporary named
// base when it is not a plain variable reference.
func (b *Builder) reduce(n *sitter.Node, base string) VarID {
	if n == nil {
		return ""
	}
	if n.Type() == "parenthesized_expression" {
		if inner := n.NamedChild(0); inner != nil {
			return b.reduce(inner, base)
		}
	}
	if v := primaryVar(n, b.source); v != "" && (n.Type() == "identifier" || n.Type() == "self") {
		return v
	}
	tmp := b.temp(base)
	if isControlFlow(n) {
		b.lowerValue(n, tmp)
		return tmp
	}
	b.addStmt(Statement{Kind: StmtAssign, Target: tmp, Value: b.lowerExpr(n), Line: parser.StartLine(n)})
	return tmp
}

func (b *Builder) emitReturn(value *sitter.Node) {
	if b.terminated {
		return
	}
	if value == nil {
		b.terminate(Terminator{Kind: TermReturn})
		return
	}
	if v := primaryVar(value, b.source); v != "" {
		b.terminate(Terminator{Kind: TermReturn, Value: v})
		return
	}
	if isControlFlow(value) && !producesValue(value) {
		b.lowerValue(value, "")
		b.terminate(Terminator{Kind: TermReturn})
		return
	}
	tmp := b.temp("_ret")
	if isControlFlow(value) {
		b.lowerValue(value, tmp)
	} else {
		b.addStmt(Statement{Kind: StmtAssign, Target: tmp, Value: b.lowerExpr(value), Line: parser.StartLine(value)})
	}
	b.terminate(Terminator{Kind: TermReturn, Value: tmp})
}

// condition reduces an if/while condition. A let condition binds its pattern
// against the scrutinee and returns the scrutinee as the branch variable.
func (b *Builder) condition(n *sitter.Node) (VarID, []string) {
	if n == nil {
		return "", nil
	}
	switch n.Type() {
	case "let_condition":
		scrut := b.reduce(n.ChildByFieldName("value"), "_cond")
		return scrut, patternBindings(n.ChildByFieldName("pattern"), b.source)
	case "let_chain":
		var names []string
		var last VarID
		for _, c := range parser.NamedChildren(n) {
			v, bound := b.condition(c)
			last = v
			names = append(names, bound...)
		}
		return last, names
	}
	return b.reduce(n, "_cond"), nil
}

func (b *Builder) bindPattern(names []string, scrutinee VarID, line int) {
	for i, name := range names {
		value := Expr{Kind: ExprUse, Var: scrutinee}
		if i > 0 {
			value = Expr{Kind: ExprFieldAccess, Base: scrutinee, Field: strconv.Itoa(i)}
		}
		b.addStmt(Statement{Kind: StmtDeclare, Target: VarID(name), Value: value, Line: line})
		b.declare(name)
	}
}

func (b *Builder) lowerIf(n *sitter.Node, result VarID) {
	var cond VarID
	var bound []string
	if n.Type() == "if_let_expression" {
		cond = b.reduce(n.ChildByFieldName("value"), "_cond")
		bound = patternBindings(n.ChildByFieldName("pattern"), b.source)
	} else {
		cond, bound = b.condition(n.ChildByFieldName("condition"))
	}
	if b.terminated {
		return
	}

	thenB := b.newBlock()
	elseB := b.newBlock()
	b.terminate(Terminator{Kind: TermBranch, Condition: cond, Then: thenB, Else: elseB})

	b.switchTo(thenB)
	b.bindPattern(bound, cond, parser.StartLine(n))
	b.lowerBlockInto(n.ChildByFieldName("consequence"), result)
	thenEnd, thenOpen := b.current, !b.terminated

	b.switchTo(elseB)
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		if alt.Type() == "else_clause" {
			alt = alt.NamedChild(0)
		}
		b.lowerBlockInto(alt, result)
	}
	elseEnd, elseOpen := b.current, !b.terminated

	if !thenOpen && !elseOpen {
		// both arms diverge; whatever follows is unreachable
		b.terminated = true
		return
	}

	join := b.newBlock()
	if thenOpen {
		b.current, b.terminated = thenEnd, false
		b.terminate(Terminator{Kind: TermGoto, Target: join})
	}
	if elseOpen {
		b.current, b.terminated = elseEnd, false
		b.terminate(Terminator{Kind: TermGoto, Target: join})
	}
	b.switchTo(join)
}

func (b *Builder) lowerMatch(n *sitter.Node, result VarID) {
	scrut := b.reduce(n.ChildByFieldName("value"), "_scrutinee")
	if b.terminated {
		return
	}

	var armNodes []*sitter.Node
	for _, c := range parser.NamedChildren(n.ChildByFieldName("body")) {
		if c.Type() == "match_arm" {
			armNodes = append(armNodes, c)
		}
	}

	arms := make([]MatchArm, len(armNodes))
	for i, a := range armNodes {
		arms[i] = MatchArm{
			Pattern: patternText(a.ChildByFieldName("pattern"), b.source),
			Block:   b.newBlock(),
		}
	}
	join := b.newBlock()
	b.terminate(Terminator{Kind: TermMatch, Scrutinee: scrut, Arms: arms, Join: join})

	for i, a := range armNodes {
		b.switchTo(arms[i].Block)
		pattern := a.ChildByFieldName("pattern")
		b.bindPattern(patternBindings(pattern, b.source), scrut, parser.StartLine(a))
		if pattern != nil {
			if guard := pattern.ChildByFieldName("condition"); guard != nil {
				// guards stay inside the arm block; they do not split it
				arms[i].Guard = b.reduce(guard, "_guard")
			}
		}
		b.lowerBlockInto(a.ChildByFieldName("value"), result)
		b.terminate(Terminator{Kind: TermGoto, Target: join})
	}

	b.switchTo(join)
}

// patternText renders an arm pattern without its guard.
func patternText(pattern *sitter.Node, source []byte) string {
	if pattern == nil {
		return "_"
	}
	if guard := pattern.ChildByFieldName("condition"); guard != nil {
		if first := pattern.NamedChild(0); first != nil && !sameNode(first, guard) {
			return parser.GetNodeText(first, source)
		}
	}
	return parser.GetNodeText(pattern, source)
}

func (b *Builder) enterLoop(head BlockID, exit BlockID, hasExit bool) {
	b.loops = append(b.loops, loopFrame{head: head, exit: exit, hasExit: hasExit})
}

func (b *Builder) exitLoop() loopFrame {
	f := b.loops[len(b.loops)-1]
	b.loops = b.loops[:len(b.loops)-1]
	return f
}

func (b *Builder) lowerBreak() {
	if len(b.loops) == 0 {
		return
	}
	f := &b.loops[len(b.loops)-1]
	if !f.hasExit {
		f.exit = b.newBlock()
		f.hasExit = true
	}
	b.terminate(Terminator{Kind: TermGoto, Target: f.exit})
}

func (b *Builder) lowerWhile(n *sitter.Node) {
	head := b.newBlock()
	b.terminate(Terminator{Kind: TermGoto, Target: head})
	b.switchTo(head)

	var cond VarID
	var bound []string
	if n.Type() == "while_let_expression" {
		cond = b.reduce(n.ChildByFieldName("value"), "_cond")
		bound = patternBindings(n.ChildByFieldName("pattern"), b.source)
	} else {
		cond, bound = b.condition(n.ChildByFieldName("condition"))
	}

	body := b.newBlock()
	exit := b.newBlock()
	b.terminate(Terminator{Kind: TermBranch, Condition: cond, Then: body, Else: exit})

	b.enterLoop(head, exit, true)
	b.switchTo(body)
	b.bindPattern(bound, cond, parser.StartLine(n))
	b.lowerBlockInto(n.ChildByFieldName("body"), "")
	b.terminate(Terminator{Kind: TermGoto, Target: head})
	b.exitLoop()

	b.switchTo(exit)
}

func (b *Builder) lowerLoop(n *sitter.Node) {
	head := b.newBlock()
	b.terminate(Terminator{Kind: TermGoto, Target: head})
	b.switchTo(head)

	b.enterLoop(head, 0, false)
	b.lowerBlockInto(n.ChildByFieldName("body"), "")
	b.terminate(Terminator{Kind: TermGoto, Target: head})
	f := b.exitLoop()

	if !f.hasExit {
		// no break: control never leaves the loop
		b.terminated = true
		return
	}
	b.switchTo(f.exit)
}

func (b *Builder) lowerFor(n *sitter.Node) {
	iter := b.reduce(n.ChildByFieldName("value"), "_iter")
	if b.terminated {
		return
	}
	head := b.newBlock()
	b.terminate(Terminator{Kind: TermGoto, Target: head})

	b.switchTo(head)
	next := b.temp("_next")
	b.addStmt(Statement{Kind: StmtAssign, Target: next, Value: Expr{Kind: ExprMethodCall, Receiver: iter, Callee: "next"}, Line: parser.StartLine(n)})
	body := b.newBlock()
	exit := b.newBlock()
	b.terminate(Terminator{Kind: TermBranch, Condition: next, Then: body, Else: exit})

	b.enterLoop(head, exit, true)
	b.switchTo(body)
	b.bindPattern(patternBindings(n.ChildByFieldName("pattern"), b.source), next, parser.StartLine(n))
	b.lowerBlockInto(n.ChildByFieldName("body"), "")
	b.terminate(Terminator{Kind: TermGoto, Target: head})
	b.exitLoop()

	b.switchTo(exit)
}

// operand reduces an argument to a variable without emitting statements;
// non-variable operands render as their source text.
func (b *Builder) operand(n *sitter.Node) VarID {
	if v := primaryVar(n, b.source); v != "" {
		return v
	}
	return VarID(parser.GetNodeText(n, b.source))
}

// lowerExpr converts an expression into an rvalue. Closures nested inside the
// expression are analyzed and emitted as their own statements first.
func (b *Builder) lowerExpr(n *sitter.Node) Expr {
	if n == nil {
		return Expr{Kind: ExprOther}
	}
	switch n.Type() {
	case "closure_expression":
		return b.closure(n)
	case "identifier", "self":
		return Expr{Kind: ExprUse, Var: VarID(parser.GetNodeText(n, b.source))}
	case "parenthesized_expression":
		return b.lowerExpr(n.NamedChild(0))
	case "field_expression":
		b.emitNestedClosures(n)
		return Expr{Kind: ExprFieldAccess, Base: b.operand(n.ChildByFieldName("value")), Field: parser.FieldText(n, "field", b.source)}
	case "call_expression":
		b.emitNestedClosures(n)
		args := b.args(n.ChildByFieldName("arguments"))
		fn := n.ChildByFieldName("function")
		if fn != nil && fn.Type() == "field_expression" {
			return Expr{
				Kind:     ExprMethodCall,
				Receiver: b.operand(fn.ChildByFieldName("value")),
				Callee:   parser.FieldText(fn, "field", b.source),
				Args:     args,
			}
		}
		return Expr{Kind: ExprCall, Callee: parser.GetNodeText(fn, b.source), Args: args}
	case "binary_expression":
		b.emitNestedClosures(n)
		return Expr{
			Kind: ExprBinary,
			Op:   parser.FieldText(n, "operator", b.source),
			Args: []VarID{b.operand(n.ChildByFieldName("left")), b.operand(n.ChildByFieldName("right"))},
		}
	case "reference_expression", "unary_expression":
		if v := primaryVar(n, b.source); v != "" {
			return Expr{Kind: ExprUse, Var: v}
		}
		b.emitNestedClosures(n)
		return Expr{Kind: ExprOther, Text: parser.GetNodeText(n, b.source)}
	case "integer_literal", "float_literal", "string_literal", "raw_string_literal",
		"char_literal", "boolean_literal", "unit_expression":
		return Expr{Kind: ExprLiteral, Text: parser.GetNodeText(n, b.source)}
	case "macro_invocation":
		return Expr{Kind: ExprMacro, Callee: parser.FieldText(n, "macro", b.source)}
	}
	b.emitNestedClosures(n)
	return Expr{Kind: ExprOther, Text: n.Type()}
}

func (b *Builder) args(list *sitter.Node) []VarID {
	var out []VarID
	for _, a := range parser.NamedChildren(list) {
		if a.Type() == "closure_expression" {
			out = append(out, VarID(fmt.Sprintf("closure@%d", parser.StartLine(a))))
			continue
		}
		out = append(out, b.operand(a))
	}
	return out
}

// emitNestedClosures records every closure literal inside n (not descending
// into closures themselves) as an expression statement.
func (b *Builder) emitNestedClosures(n *sitter.Node) {
	parser.WalkTyped(n, b.source, func(c *sitter.Node, t string, _ []byte) bool {
		if t == "closure_expression" {
			expr := b.closure(c)
			b.addStmt(Statement{Kind: StmtExpr, Value: expr, Line: parser.StartLine(c)})
			return false
		}
		return true
	})
}

func (b *Builder) closure(n *sitter.Node) Expr {
	cl := AnalyzeClosure(n, b.source, b.outerScope())
	if !b.terminated {
		b.closures = append(b.closures, cl)
	}
	return Expr{Kind: ExprClosure, Captures: cl.Captures, IsMove: cl.IsMove}
}

// BuildNamed lowers every Rust function_item under root whose name is name,
// in source order.
func BuildNamed(root *sitter.Node, source []byte, name string) []*CFG {
	var out []*CFG
	for _, fn := range parser.FindNodesByType(root, source, "function_item") {
		if parser.FieldText(fn, "name", source) == name {
			out = append(out, BuildFunction(fn, source))
		}
	}
	return out
}
