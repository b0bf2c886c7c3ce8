// Package extract walks parsed files and records function definitions and
// unresolved call sites, attributing calls in closures, async blocks and
// spawned tasks to the enclosing named function.
package extract

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/parser"
)

// Extractor turns parse results into FileFacts. It holds configuration only
// and is safe for concurrent use.
type Extractor struct {
	observerCollections []string
	entryPoints         map[string]bool
	buildCFG            bool
}

// Option is a functional option for configuring Extractor.
type Option func(*Extractor)

// WithObserverCollections adds field names treated as callback registries.
func WithObserverCollections(names []string) Option {
	return func(x *Extractor) {
		x.observerCollections = append(x.observerCollections, names...)
	}
}

// WithEntryPoints adds function names treated as entry points.
func WithEntryPoints(names []string) Option {
	return func(x *Extractor) {
		for _, n := range names {
			x.entryPoints[n] = true
		}
	}
}

// WithoutCFG skips CFG lowering for Rust functions. Complexity then falls
// back to counting decision nodes.
func WithoutCFG() Option {
	return func(x *Extractor) {
		x.buildCFG = false
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	x := &Extractor{
		entryPoints: make(map[string]bool),
		buildCFG:    true,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract collects the facts of one parsed file. relPath is the path used in
// function identities.
func (x *Extractor) Extract(result *parser.ParseResult, relPath string) (*FileFacts, error) {
	if result == nil || result.Tree == nil {
		return nil, fmt.Errorf("extract %s: no syntax tree", relPath)
	}
	facts := &FileFacts{
		Path:       callgraph.CanonicalPath(relPath),
		Language:   result.Language,
		ModulePath: ModulePathFor(relPath, result.Language),
	}
	root := result.Root()
	switch {
	case result.Language == parser.LangRust:
		newRustVisitor(x, facts, result.Source).file(root)
	case result.Language == parser.LangPython:
		newPythonVisitor(x, facts, result.Source).file(root)
	case result.Language.IsJSFamily():
		newJSVisitor(x, facts, result.Source).file(root)
	default:
		return nil, fmt.Errorf("extract %s: unsupported language %s", relPath, result.Language)
	}
	return facts, nil
}

func (x *Extractor) isEntryName(name string) bool {
	return x.entryPoints[name] || isEntryName(name)
}

// Separator is the qualified-name separator used for a file's language.
func Separator(file string) string {
	if strings.HasSuffix(file, ".rs") {
		return "::"
	}
	return "."
}

// Qualify joins an owner type and a member name the way the file's language
// spells it.
func Qualify(file, owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + Separator(file) + name
}

// ModulePathFor derives the module path of a file: `crate::a::b` for Rust,
// `pkg.mod` for Python and the extension-less path for JavaScript.
func ModulePathFor(relPath string, lang parser.Language) string {
	p := callgraph.CanonicalPath(relPath)
	ext := path.Ext(p)
	p = strings.TrimSuffix(p, ext)
	switch {
	case lang == parser.LangRust:
		if i := strings.LastIndex(p, "src/"); i >= 0 {
			p = p[i+len("src/"):]
		}
		p = strings.TrimSuffix(p, "/mod")
		if p == "lib" || p == "main" || p == "mod" {
			return "crate"
		}
		return "crate::" + strings.ReplaceAll(p, "/", "::")
	case lang == parser.LangPython:
		p = strings.TrimSuffix(p, "/__init__")
		if p == "__init__" {
			return ""
		}
		return strings.ReplaceAll(p, "/", ".")
	default:
		return strings.TrimSuffix(p, "/index")
	}
}

// scope is the per-function accumulator context threaded through a body walk.
// Child scopes are copies; locals are shared across one function.
type scope struct {
	caller    callgraph.FunctionID
	owner     string
	callType  callgraph.CallType
	observers map[string]bool
	locals    map[string]string
	module    string
	inTest    bool
}

func newScope(caller callgraph.FunctionID, owner, module string) *scope {
	return &scope{
		caller: caller,
		owner:  owner,
		locals: make(map[string]string),
		module: module,
	}
}

// callTypeRank orders hints so a stronger context is never downgraded.
func callTypeRank(t callgraph.CallType) int {
	switch t {
	case callgraph.Async:
		return 3
	case callgraph.Callback, callgraph.Pipeline:
		return 2
	case callgraph.ObserverDispatch:
		return 1
	default:
		return 0
	}
}

func (s *scope) with(t callgraph.CallType) *scope {
	c := *s
	if callTypeRank(t) > callTypeRank(s.callType) {
		c.callType = t
	}
	return &c
}

func (s *scope) observing(names []string) *scope {
	if len(names) == 0 {
		return s
	}
	c := *s
	c.observers = make(map[string]bool, len(s.observers)+len(names))
	for k := range s.observers {
		c.observers[k] = true
	}
	for _, n := range names {
		c.observers[n] = true
	}
	return &c
}

func (s *scope) isLocal(name string) bool {
	_, ok := s.locals[name]
	return ok
}

func (s *scope) site(callee string, node *sitter.Node) CallSite {
	return CallSite{
		Caller: s.caller,
		Callee: callee,
		Type:   s.callType,
		Line:   parser.StartLine(node),
	}
}

// markDelegate flags a body whose only call forwards to the same-named
// method on a field, e.g. `fn save(&self) { self.inner.save() }`.
func markDelegate(facts *FileFacts, from int, id callgraph.FunctionID) {
	calls := facts.Calls[from:]
	if len(calls) != 1 {
		return
	}
	c := &calls[0]
	if c.Caller != id || !c.IsMethod || len(c.FieldChain) == 0 {
		return
	}
	if c.Callee == id.ShortName() && c.Type == callgraph.Direct {
		c.Type = callgraph.Delegate
	}
}

// decisionNodes per language, counted for cyclomatic complexity when no CFG
// is built.
var decisionNodes = map[string]bool{
	// Python
	"if_statement": true, "elif_clause": true, "for_statement": true, "while_statement": true,
	"except_clause": true, "conditional_expression": true, "boolean_operator": true,
	"case_clause": true, "for_in_clause": true, "if_clause": true,
	// JavaScript
	"for_in_statement": true, "do_statement": true, "switch_case": true,
	"catch_clause": true, "ternary_expression": true,
	// Rust
	"if_expression": true, "while_expression": true, "for_expression": true,
	"loop_expression": true, "match_arm": true,
}

var nestedFunctionNodes = map[string]bool{
	"function_definition": true, "function_declaration": true, "function_item": true,
	"class_definition": true, "class_declaration": true, "method_definition": true,
}

// decisionComplexity is one plus the number of branch points in body,
// excluding nested named functions.
func decisionComplexity(body *sitter.Node, source []byte) uint32 {
	n := uint32(1)
	parser.WalkTyped(body, source, func(node *sitter.Node, t string, src []byte) bool {
		if node != body && nestedFunctionNodes[t] {
			return false
		}
		if decisionNodes[t] {
			n++
		}
		if t == "binary_expression" {
			switch parser.FieldText(node, "operator", src) {
			case "&&", "||", "??":
				n++
			}
		}
		return true
	})
	return n
}

func lineSpan(node *sitter.Node) int {
	return parser.EndLine(node) - parser.StartLine(node) + 1
}

// compact collapses whitespace in receiver text and bounds its length.
func compact(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 80 {
		cut := 77
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}
