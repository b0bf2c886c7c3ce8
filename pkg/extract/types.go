package extract

import (
	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/parser"
)

// ModuleFunction is the name of the synthetic function that owns calls made
// at module scope (Python and JavaScript top-level statements).
const ModuleFunction = "<module>"

// FunctionDef is a named function found in a file.
type FunctionDef struct {
	ID callgraph.FunctionID
	// Owner is the enclosing impl type or class, if any.
	Owner string
	// Trait is set for methods inside `impl Trait for Type` and for trait
	// default methods.
	Trait        string
	IsEntryPoint bool
	IsTest       bool
	Exported     bool
	Complexity   uint32
	Lines        int
	Attributes   []string
}

// Node converts the definition into a call graph node.
func (d FunctionDef) Node() callgraph.FunctionNode {
	return callgraph.FunctionNode{
		ID:           d.ID,
		IsEntryPoint: d.IsEntryPoint,
		IsTest:       d.IsTest,
		Complexity:   d.Complexity,
		Lines:        d.Lines,
	}
}

// CallSite is an unresolved call record.
type CallSite struct {
	Caller callgraph.FunctionID
	// Callee is the final name segment.
	Callee string
	// Qualifier is the path or static type before Callee, when known:
	// "Self"-style calls carry the impl type, `a::b::c()` carries "a::b".
	Qualifier string
	// Receiver is the receiver expression text for method calls.
	Receiver string
	// FieldChain holds the fields walked from self/this, e.g. self.a.b.m()
	// yields ["a", "b"].
	FieldChain []string
	IsMethod   bool
	// IsReference marks a function passed as a value rather than invoked.
	IsReference bool
	SameFile    bool
	Type        callgraph.CallType
	Line        int
}

// Display renders the call target as written.
func (c CallSite) Display() string {
	switch {
	case c.Receiver != "":
		return c.Receiver + "." + c.Callee
	case c.Qualifier != "":
		return c.Qualifier + Separator(c.Caller.File) + c.Callee
	default:
		return c.Callee
	}
}

// ImportKind records how a name was imported. It drives resolution
// confidence.
type ImportKind uint8

const (
	// ImportDirect is `import a.b` or `use a::b`.
	ImportDirect ImportKind = iota
	// ImportFrom is `from a import b` or `import { b } from "a"`.
	ImportFrom
	// ImportRelative is a relative import; Level holds the depth.
	ImportRelative
	// ImportStar brings every public name of a module into scope.
	ImportStar
	// ImportDynamic is importlib/__import__/import() with a literal module.
	ImportDynamic
)

func (k ImportKind) String() string {
	switch k {
	case ImportFrom:
		return "from"
	case ImportRelative:
		return "relative"
	case ImportStar:
		return "star"
	case ImportDynamic:
		return "dynamic"
	default:
		return "direct"
	}
}

// Import is one imported binding.
type Import struct {
	// Module is the module path as written, without relative prefix.
	Module string
	// Name is the imported symbol; empty for whole-module imports.
	Name string
	// Alias is the local binding name.
	Alias string
	Kind  ImportKind
	// Level is the number of leading dots (Python) or parent hops (JS, Rust super).
	Level int
	Line  int
}

// Local returns the name the import binds in the importing file.
func (i Import) Local() string {
	if i.Alias != "" {
		return i.Alias
	}
	if i.Name != "" {
		return i.Name
	}
	return i.Module
}

// Singleton is a module-level instance such as `manager = Manager()`.
type Singleton struct {
	Name string
	Type string
	Line int
}

// TypeDef is a struct or class with its declared field types.
type TypeDef struct {
	Name   string
	Fields map[string]string
	Bases  []string
	Line   int
}

// ImplBlock groups the methods of one Rust impl block.
type ImplBlock struct {
	Type    string
	Trait   string
	Methods []string
}

// TraitDef is a Rust trait with its method names.
type TraitDef struct {
	Name    string
	Methods []string
}

// FileFacts is everything phase one learns about a file. It holds no
// references to other files.
type FileFacts struct {
	Path       string
	Language   parser.Language
	ModulePath string

	Functions  []FunctionDef
	Calls      []CallSite
	Types      []TypeDef
	Impls      []ImplBlock
	Traits     []TraitDef
	Imports    []Import
	Singletons []Singleton
	// Exports lists names re-exported through __all__ or `export { }`.
	Exports []string

	// CFGErrors holds invariant violations found while lowering bodies.
	CFGErrors []error
	Hash      string
}

// Function returns the definition with the given id.
func (f *FileFacts) Function(id callgraph.FunctionID) (FunctionDef, bool) {
	for _, d := range f.Functions {
		if d.ID == id {
			return d, true
		}
	}
	return FunctionDef{}, false
}
