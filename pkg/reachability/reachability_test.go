package reachability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/extract"
	"github.com/panbanda/reach/pkg/parser"
	"github.com/panbanda/reach/pkg/resolve"
)

type fixture struct {
	g   *callgraph.CallGraph
	reg *resolve.Registry
	res *resolve.Result
}

func build(t *testing.T, sources map[string]string, opts ...resolve.Option) fixture {
	t.Helper()
	p := parser.New()
	defer p.Close()
	x := extract.New()

	var files []*extract.FileFacts
	for path, code := range sources {
		result, err := p.ParseSource([]byte(code), path)
		require.NoError(t, err)
		facts, err := x.Extract(result, path)
		require.NoError(t, err)
		files = append(files, facts)
	}
	reg := resolve.NewRegistry(files)
	g := callgraph.New()
	for _, f := range reg.Files() {
		for _, d := range f.Functions {
			g.AddFunction(d.Node())
		}
	}
	res, err := resolve.New(opts...).Resolve(context.Background(), g, reg)
	require.NoError(t, err)
	return fixture{g: g, reg: reg, res: res}
}

func (f fixture) status(t *testing.T, a *Analysis, file, name string) Classification {
	t.Helper()
	for _, id := range f.g.FunctionsInFile(file) {
		if id.Name == name {
			c, ok := a.Get(id)
			require.True(t, ok)
			return c
		}
	}
	t.Fatalf("function %s not found in %s", name, file)
	return Classification{}
}

func TestIsProductionEntryPoint(t *testing.T) {
	caller := callgraph.NewFunctionID("a.rs", "caller", 1, "crate::a")
	tests := []struct {
		name    string
		node    callgraph.FunctionNode
		callers []callgraph.FunctionID
		want    bool
	}{
		{"flagged entry point", callgraph.FunctionNode{IsEntryPoint: true}, []callgraph.FunctionID{caller}, true},
		{"uncalled production function", callgraph.FunctionNode{}, nil, true},
		{"uncalled test", callgraph.FunctionNode{IsTest: true}, nil, false},
		{"called function", callgraph.FunctionNode{}, []callgraph.FunctionID{caller}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsProductionEntryPoint(tt.node, tt.callers))
		})
	}
}

func TestFieldAccessChainKeepsMethodLive(t *testing.T) {
	f := build(t, map[string]string{
		"src/main.rs": `
struct Inner;

impl Inner {
    fn flush(&self) {}
}

struct Outer {
    inner: Inner,
}

struct App {
    outer: Outer,
}

impl App {
    fn run(&self) {
        self.outer.inner.flush();
    }
}

fn main() {
    let app = App { outer: Outer { inner: Inner } };
    App::run(&app);
}

fn unused() {}
`,
	})
	a := New().Classify(f.g, f.reg, f.res)

	assert.Equal(t, StatusEntryPoint, f.status(t, a, "src/main.rs", "main").Status)
	assert.Equal(t, StatusLive, f.status(t, a, "src/main.rs", "App::run").Status)
	assert.Equal(t, StatusLive, f.status(t, a, "src/main.rs", "Inner::flush").Status)

	unused := f.status(t, a, "src/main.rs", "unused")
	assert.Equal(t, StatusUnreferenced, unused.Status)
	assert.Equal(t, ConfidenceHigh, unused.ConfidenceLevel)
	assert.InDelta(t, 0.95, unused.Confidence, 1e-9)
	assert.Equal(t, 1, a.Summary.Unreferenced)
}

func TestLibraryWithoutMainKeepsCalledMethodsLive(t *testing.T) {
	f := build(t, map[string]string{
		"src/lib.rs": `
struct Inner;

impl Inner {
    fn flush(&self) {}
}

struct App {
    inner: Inner,
}

impl App {
    fn run(&self) {
        self.inner.flush();
    }
}
`,
	})
	a := New().Classify(f.g, f.reg, f.res)

	flush := f.status(t, a, "src/lib.rs", "Inner::flush")
	assert.Equal(t, StatusLive, flush.Status)
	assert.Equal(t, 1, flush.Callers)
	assert.Zero(t, flush.Confidence)

	run := f.status(t, a, "src/lib.rs", "App::run")
	assert.Equal(t, StatusUnreferenced, run.Status)
	node, ok := f.g.Node(run.ID)
	require.True(t, ok)
	assert.True(t, IsProductionEntryPoint(node, f.g.GetCallers(run.ID)))
	assert.Len(t, a.Dead(0), 1)
}

func TestLibraryWithoutMainKeepsSingletonMethodLive(t *testing.T) {
	f := build(t, map[string]string{
		"mgr/a.py": `
class Manager:
    def add_message(self, msg):
        pass

manager = Manager()
`,
		"mgr/b.py": `
from mgr.a import manager

def run():
    manager.add_message('x')
`,
	})
	a := New().Classify(f.g, f.reg, f.res)

	assert.Equal(t, StatusLive, f.status(t, a, "mgr/a.py", "Manager.add_message").Status)
	assert.Equal(t, StatusUnreferenced, f.status(t, a, "mgr/b.py", "run").Status)
	for _, c := range a.Dead(0) {
		assert.NotEqual(t, "Manager.add_message", c.ID.Name)
	}
}

func TestTraitImplementationsStayLive(t *testing.T) {
	f := build(t, map[string]string{
		"src/lib.rs": `
pub trait Sink {
    fn write(&self);
}

struct FileSink;
struct NullSink;
struct Counter;

impl Sink for FileSink {
    fn write(&self) {}
}

impl Sink for NullSink {
    fn write(&self) {}
}

impl std::ops::Add for Counter {
    type Output = Counter;

    fn add(self, _other: Counter) -> Counter {
        self
    }
}

pub fn emit(s: &FileSink) {
    FileSink::write(s);
}
`,
	})
	a := New().Classify(f.g, f.reg, f.res)

	assert.Equal(t, StatusPublicAPI, f.status(t, a, "src/lib.rs", "emit").Status)
	assert.Equal(t, StatusLive, f.status(t, a, "src/lib.rs", "FileSink::write").Status)

	sibling := f.status(t, a, "src/lib.rs", "NullSink::write")
	assert.Equal(t, StatusLive, sibling.Status)

	add := f.status(t, a, "src/lib.rs", "Counter::add")
	assert.Equal(t, StatusEntryPoint, add.Status)
	assert.Contains(t, add.Reason, "external trait Add")
	assert.Zero(t, a.Summary.Unreferenced)
}

func TestImportedSingletonMethodIsLive(t *testing.T) {
	sources := map[string]string{
		"pkg/state.py": `
class Manager:
    def add_message(self, msg):
        pass

    def clear(self):
        pass

manager = Manager()
`,
		"pkg/app.py": `
from .state import manager

def main():
    manager.add_message("ready")
`,
	}
	// without the name-only tier and with a strict resolver the call stays
	// unlinked, so liveness comes from the import alone
	f := build(t, sources, resolve.WithNameOnlyFallback(false), resolve.WithMinConfidence(resolve.High))
	require.Zero(t, f.g.CallerCount(fn(t, f.g, "pkg/state.py", "Manager.add_message")))

	a := New(WithMinConfidence(resolve.Medium)).Classify(f.g, f.reg, f.res)
	live := f.status(t, a, "pkg/state.py", "Manager.add_message")
	assert.Equal(t, StatusLive, live.Status)
	assert.Contains(t, live.Reason, "singleton manager")
	assert.Equal(t, StatusUnreferenced, f.status(t, a, "pkg/state.py", "Manager.clear").Status)

	strict := New(WithMinConfidence(resolve.High)).Classify(f.g, f.reg, f.res)
	assert.Equal(t, StatusUnreferenced, f.status(t, strict, "pkg/state.py", "Manager.add_message").Status)
}

func TestImportedSingletonResolvedEdge(t *testing.T) {
	f := build(t, map[string]string{
		"a.py": `
class Manager:
    def add_message(self, msg):
        pass

manager = Manager()
`,
		"b.py": `
from a import manager

def main():
    manager.add_message("hi")
`,
	})
	a := New().Classify(f.g, f.reg, f.res)
	c := f.status(t, a, "a.py", "Manager.add_message")
	assert.Equal(t, StatusLive, c.Status)
	assert.Equal(t, 1, c.Callers)
}

func TestTestOnlyAndAmbiguousConfidence(t *testing.T) {
	f := build(t, map[string]string{
		"lib.py": `
def helper():
    pass

def orphan():
    pass

def test_helper():
    helper()
`,
		"x.py": "def save():\n    pass\n",
		"y.py": "def save():\n    pass\n",
		"z.py": "def test_save():\n    save()\n",
	})
	a := New().Classify(f.g, f.reg, f.res)

	assert.Equal(t, StatusTest, f.status(t, a, "lib.py", "test_helper").Status)
	assert.Equal(t, StatusTestOnly, f.status(t, a, "lib.py", "helper").Status)
	assert.Equal(t, StatusUnreferenced, f.status(t, a, "lib.py", "orphan").Status)

	x := f.status(t, a, "x.py", "save")
	assert.Equal(t, StatusTestOnly, x.Status)
	require.Len(t, f.res.AmbiguousTargets, 2)

	assert.Len(t, a.Dead(0), 1)
	assert.Empty(t, a.Dead(0.99))
}

func TestClassifyWithoutRegistry(t *testing.T) {
	g := callgraph.New()
	main := callgraph.NewFunctionID("main.rs", "main", 1, "crate")
	used := callgraph.NewFunctionID("main.rs", "used", 5, "crate")
	cold := callgraph.NewFunctionID("main.rs", "cold", 9, "crate")
	lonely := callgraph.NewFunctionID("main.rs", "lonely", 13, "crate")
	g.AddFunction(callgraph.FunctionNode{ID: main, IsEntryPoint: true})
	g.AddFunction(callgraph.FunctionNode{ID: used})
	g.AddFunction(callgraph.FunctionNode{ID: cold})
	g.AddFunction(callgraph.FunctionNode{ID: lonely})
	require.NoError(t, g.AddCall(callgraph.FunctionCall{Caller: main, Callee: used, CallType: callgraph.Direct}))
	require.NoError(t, g.AddCall(callgraph.FunctionCall{Caller: cold, Callee: cold, CallType: callgraph.Direct}))

	a := New().Classify(g, nil, nil)
	assert.Equal(t, StatusLive, a.Status(used))

	// a caller of any kind keeps a function live, even its own recursion
	c, ok := a.Get(cold)
	require.True(t, ok)
	assert.Equal(t, StatusLive, c.Status)
	assert.Equal(t, "called by 1 function(s)", c.Reason)

	c, ok = a.Get(lonely)
	require.True(t, ok)
	assert.Equal(t, StatusUnreferenced, c.Status)
	assert.Equal(t, "no callers", c.Reason)
	assert.InDelta(t, 0.9, c.Confidence, 1e-9)
	assert.Equal(t, Summary{Total: 4, EntryPoints: 1, Live: 2, Unreferenced: 1}, a.Summary)
}

func TestCalledOnlyByUnreferencedFunctionIsLive(t *testing.T) {
	g := callgraph.New()
	entry := callgraph.NewFunctionID("lib.rs", "entry", 1, "crate")
	leaf := callgraph.NewFunctionID("lib.rs", "leaf", 5, "crate")
	g.AddFunction(callgraph.FunctionNode{ID: entry})
	g.AddFunction(callgraph.FunctionNode{ID: leaf})
	require.NoError(t, g.AddCall(callgraph.FunctionCall{Caller: entry, Callee: leaf, CallType: callgraph.Direct}))

	a := New().Classify(g, nil, nil)
	assert.Equal(t, StatusUnreferenced, a.Status(entry))
	assert.Equal(t, StatusLive, a.Status(leaf))
}

func TestStatusText(t *testing.T) {
	for st := StatusUnreferenced; st <= StatusTestOnly; st++ {
		parsed, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}
	_, err := ParseStatus("zombie")
	assert.Error(t, err)
	assert.Equal(t, ConfidenceMedium, LevelFor(0.6))
	assert.Equal(t, ConfidenceLow, LevelFor(0.2))
}

func fn(t *testing.T, g *callgraph.CallGraph, file, name string) callgraph.FunctionID {
	t.Helper()
	for _, id := range g.FunctionsInFile(file) {
		if id.Name == name {
			return id
		}
	}
	t.Fatalf("function %s not found in %s", name, file)
	return callgraph.FunctionID{}
}
