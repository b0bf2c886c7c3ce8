// Package cfg lowers Rust function bodies into basic blocks and terminators
// and records what every closure captures from its enclosing scope.
package cfg

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// BlockID is a dense block index starting at zero.
type BlockID int

// VarID names a local variable or a synthesized temporary.
type VarID string

// CaptureMode is how a closure holds a captured variable.
type CaptureMode uint8

const (
	ByRef CaptureMode = iota
	ByMutRef
	ByValue
)

func (m CaptureMode) String() string {
	switch m {
	case ByValue:
		return "by_value"
	case ByMutRef:
		return "by_mut_ref"
	default:
		return "by_ref"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m CaptureMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// CapturedVar is one variable a closure captures.
type CapturedVar struct {
	Var       VarID       `json:"var"`
	Mode      CaptureMode `json:"mode"`
	IsMutated bool        `json:"is_mutated"`
}

// ExprKind discriminates Expr.
type ExprKind uint8

const (
	ExprOther ExprKind = iota
	ExprUse
	ExprFieldAccess
	ExprCall
	ExprMethodCall
	ExprBinary
	ExprLiteral
	ExprMacro
	ExprClosure
)

var exprKindNames = [...]string{
	ExprOther:       "other",
	ExprUse:         "use",
	ExprFieldAccess: "field",
	ExprCall:        "call",
	ExprMethodCall:  "method_call",
	ExprBinary:      "binary",
	ExprLiteral:     "literal",
	ExprMacro:       "macro",
	ExprClosure:     "closure",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return "other"
}

// Expr is an rvalue. Only the fields relevant to Kind are set.
type Expr struct {
	Kind ExprKind `json:"kind"`

	// Use
	Var VarID `json:"var,omitempty"`

	// FieldAccess: Field is a declared name or a positional index.
	Base  VarID  `json:"base,omitempty"`
	Field string `json:"field,omitempty"`

	// Call, MethodCall, Macro
	Callee   string  `json:"callee,omitempty"`
	Receiver VarID   `json:"receiver,omitempty"`
	Args     []VarID `json:"args,omitempty"`

	// Binary
	Op string `json:"op,omitempty"`

	// Literal, Other
	Text string `json:"text,omitempty"`

	// Closure
	Captures []CapturedVar `json:"captures,omitempty"`
	IsMove   bool          `json:"is_move,omitempty"`
}

func (e Expr) String() string {
	switch e.Kind {
	case ExprUse:
		return string(e.Var)
	case ExprFieldAccess:
		return fmt.Sprintf("%s.%s", e.Base, e.Field)
	case ExprCall:
		return fmt.Sprintf("%s(%s)", e.Callee, joinVars(e.Args))
	case ExprMethodCall:
		return fmt.Sprintf("%s.%s(%s)", e.Receiver, e.Callee, joinVars(e.Args))
	case ExprBinary:
		if len(e.Args) == 2 {
			return fmt.Sprintf("%s %s %s", e.Args[0], e.Op, e.Args[1])
		}
		return fmt.Sprintf("%s %s", e.Op, joinVars(e.Args))
	case ExprLiteral:
		return e.Text
	case ExprMacro:
		return e.Callee + "!(..)"
	case ExprClosure:
		parts := make([]string, len(e.Captures))
		for i, c := range e.Captures {
			parts[i] = fmt.Sprintf("%s:%s", c.Var, c.Mode)
		}
		prefix := "closure"
		if e.IsMove {
			prefix = "move closure"
		}
		return fmt.Sprintf("%s[%s]", prefix, strings.Join(parts, ", "))
	default:
		if e.Text != "" {
			return "<" + e.Text + ">"
		}
		return "<?>"
	}
}

func joinVars(vs []VarID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// StatementKind discriminates Statement.
type StatementKind uint8

const (
	StmtExpr StatementKind = iota
	StmtAssign
	StmtDeclare
)

// Statement is one straight-line operation inside a block.
type Statement struct {
	Kind   StatementKind `json:"kind"`
	Target VarID         `json:"target,omitempty"`
	Value  Expr          `json:"value"`
	Line   int           `json:"line"`
}

func (s Statement) String() string {
	switch s.Kind {
	case StmtAssign:
		return fmt.Sprintf("%s = %s", s.Target, s.Value)
	case StmtDeclare:
		return fmt.Sprintf("let %s = %s", s.Target, s.Value)
	default:
		return s.Value.String()
	}
}

// TerminatorKind discriminates Terminator. The zero value marks a block that
// has not been terminated yet.
type TerminatorKind uint8

const (
	TermNone TerminatorKind = iota
	TermGoto
	TermBranch
	TermReturn
	TermMatch
)

// MatchArm is one arm of a Match terminator.
type MatchArm struct {
	Pattern string  `json:"pattern"`
	Guard   VarID   `json:"guard,omitempty"`
	Block   BlockID `json:"block"`
}

// Terminator ends a block.
type Terminator struct {
	Kind TerminatorKind `json:"kind"`

	// Goto
	Target BlockID `json:"target,omitempty"`

	// Branch
	Condition VarID   `json:"condition,omitempty"`
	Then      BlockID `json:"then,omitempty"`
	Else      BlockID `json:"else,omitempty"`

	// Return; empty when the function returns unit.
	Value VarID `json:"value,omitempty"`

	// Match
	Scrutinee VarID      `json:"scrutinee,omitempty"`
	Arms      []MatchArm `json:"arms,omitempty"`
	Join      BlockID    `json:"join,omitempty"`
}

// Successors lists the blocks control may transfer to.
func (t Terminator) Successors() []BlockID {
	switch t.Kind {
	case TermGoto:
		return []BlockID{t.Target}
	case TermBranch:
		return []BlockID{t.Then, t.Else}
	case TermMatch:
		out := make([]BlockID, len(t.Arms))
		for i, a := range t.Arms {
			out[i] = a.Block
		}
		return out
	default:
		return nil
	}
}

func (t Terminator) String() string {
	switch t.Kind {
	case TermGoto:
		return fmt.Sprintf("goto bb%d", t.Target)
	case TermBranch:
		return fmt.Sprintf("branch %s ? bb%d : bb%d", t.Condition, t.Then, t.Else)
	case TermReturn:
		if t.Value == "" {
			return "return"
		}
		return "return " + string(t.Value)
	case TermMatch:
		arms := make([]string, len(t.Arms))
		for i, a := range t.Arms {
			arm := fmt.Sprintf("%s => bb%d", a.Pattern, a.Block)
			if a.Guard != "" {
				arm = fmt.Sprintf("%s if %s => bb%d", a.Pattern, a.Guard, a.Block)
			}
			arms[i] = arm
		}
		return fmt.Sprintf("match %s { %s } join bb%d", t.Scrutinee, strings.Join(arms, ", "), t.Join)
	default:
		return "<unterminated>"
	}
}

// BasicBlock is a straight-line statement list ending in one terminator.
type BasicBlock struct {
	ID         BlockID     `json:"id"`
	Statements []Statement `json:"statements"`
	Terminator Terminator  `json:"terminator"`
}

// Closure is the capture summary for one closure literal.
type Closure struct {
	Line     int           `json:"line"`
	IsMove   bool          `json:"is_move"`
	Captures []CapturedVar `json:"captures"`
}

// CFG is the lowered form of one function body.
type CFG struct {
	Function string       `json:"function"`
	Params   []VarID      `json:"params"`
	Blocks   []BasicBlock `json:"blocks"`
	Closures []Closure    `json:"closures,omitempty"`
}

// Entry is always the first block.
func (c *CFG) Entry() BlockID { return 0 }

// EdgeCount counts control-flow edges between blocks.
func (c *CFG) EdgeCount() int {
	n := 0
	for _, b := range c.Blocks {
		n += len(b.Terminator.Successors())
	}
	return n
}

// Cyclomatic returns E - N + 2 over the block graph.
func (c *CFG) Cyclomatic() int {
	if len(c.Blocks) == 0 {
		return 1
	}
	v := c.EdgeCount() - len(c.Blocks) + 2
	if v < 1 {
		return 1
	}
	return v
}

// Write prints a readable listing of the blocks.
func (c *CFG) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "fn %s(%s)\n", c.Function, joinVars(c.Params)); err != nil {
		return err
	}
	for _, b := range c.Blocks {
		fmt.Fprintf(w, "  bb%d:\n", b.ID)
		for _, s := range b.Statements {
			fmt.Fprintf(w, "    %s\n", s)
		}
		fmt.Fprintf(w, "    %s\n", b.Terminator)
	}
	for _, cl := range c.Closures {
		fmt.Fprintf(w, "  closure@%d %s\n", cl.Line, Expr{Kind: ExprClosure, Captures: cl.Captures, IsMove: cl.IsMove})
	}
	return nil
}

// ErrInvalidBlock marks a terminator that references a missing block.
var ErrInvalidBlock = errors.New("invalid block reference")

// ErrUnterminated marks a block without a terminator.
var ErrUnterminated = errors.New("unterminated block")

// InvariantError reports a structural defect in a built CFG.
type InvariantError struct {
	Function string
	Block    BlockID
	Err      error
	Detail   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("cfg %s bb%d: %v (%s)", e.Function, e.Block, e.Err, e.Detail)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// Validate checks that every block is terminated and every referenced block
// exists. It returns the first violation found.
func (c *CFG) Validate() error {
	n := BlockID(len(c.Blocks))
	valid := func(id BlockID) bool { return id >= 0 && id < n }

	for i, b := range c.Blocks {
		if b.ID != BlockID(i) {
			return &InvariantError{Function: c.Function, Block: BlockID(i), Err: ErrInvalidBlock, Detail: fmt.Sprintf("id %d at index %d", b.ID, i)}
		}
		t := b.Terminator
		if t.Kind == TermNone {
			return &InvariantError{Function: c.Function, Block: b.ID, Err: ErrUnterminated, Detail: "no terminator"}
		}
		for _, s := range t.Successors() {
			if !valid(s) {
				return &InvariantError{Function: c.Function, Block: b.ID, Err: ErrInvalidBlock, Detail: fmt.Sprintf("target bb%d", s)}
			}
		}
		if t.Kind == TermMatch && !valid(t.Join) {
			return &InvariantError{Function: c.Function, Block: b.ID, Err: ErrInvalidBlock, Detail: fmt.Sprintf("join bb%d", t.Join)}
		}
	}
	return nil
}
