package validate

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/extract"
	"github.com/panbanda/reach/pkg/reachability"
	"github.com/panbanda/reach/pkg/resolve"
)

type sample struct {
	g                     *callgraph.CallGraph
	main, ping, pong, cold callgraph.FunctionID
}

// newSample builds main -> ping <-> pong plus an orphan.
func newSample(t *testing.T) sample {
	t.Helper()
	s := sample{
		g:    callgraph.New(),
		main: callgraph.NewFunctionID("src/main.rs", "main", 1, "crate"),
		ping: callgraph.NewFunctionID("src/main.rs", "ping", 5, "crate"),
		pong: callgraph.NewFunctionID("src/main.rs", "pong", 9, "crate"),
		cold: callgraph.NewFunctionID("src/main.rs", "cold", 13, "crate"),
	}
	s.g.AddFunction(callgraph.FunctionNode{ID: s.main, IsEntryPoint: true})
	s.g.AddFunction(callgraph.FunctionNode{ID: s.ping})
	s.g.AddFunction(callgraph.FunctionNode{ID: s.pong})
	s.g.AddFunction(callgraph.FunctionNode{ID: s.cold})
	for _, c := range []callgraph.FunctionCall{
		{Caller: s.main, Callee: s.ping},
		{Caller: s.ping, Callee: s.pong},
		{Caller: s.pong, Callee: s.ping},
	} {
		require.NoError(t, s.g.AddCall(c))
	}
	return s
}

func TestValidateEmptyGraph(t *testing.T) {
	r := New().Validate(Input{Graph: callgraph.New()})
	assert.Equal(t, 100, r.HealthScore)
	assert.False(t, r.HasIssues())
	assert.Empty(t, r.Issues)
}

func TestValidateReportsStructuralIssues(t *testing.T) {
	s := newSample(t)
	res := &resolve.Result{
		Resolved: 1,
		Unresolved: []resolve.UnresolvedCall{{
			Site:   extract.CallSite{Caller: s.main, Callee: "missing", Line: 2},
			Reason: "no definition of missing in src/main.rs",
		}},
	}

	r := New().Validate(Input{
		Graph:      s.g,
		Resolution: res,
		CFGErrors:  []error{errors.New("block 3: terminator targets block 9")},
	})

	assert.True(t, r.HasIssues())
	assert.Equal(t, 1, r.Count(KindOrphan))
	assert.Equal(t, 1, r.Count(KindUnresolvedCall))
	assert.Equal(t, 1, r.Count(KindUnresolvedRatio))
	assert.Equal(t, 1, r.Count(KindCFGInvariant))
	assert.Equal(t, 1, r.Count(KindRecursionCycle))

	assert.Equal(t, Stats{
		Functions:       4,
		Edges:           3,
		Orphans:         1,
		EntryPoints:     1,
		ResolvedCalls:   1,
		UnresolvedCalls: 1,
		UnresolvedRatio: 0.5,
		CFGErrors:       1,
		Cycles:          1,
	}, r.Stats)

	// 100 - 0.3*25 (orphans) - 0.5*50 (unresolved) - 10 (cfg)
	assert.Equal(t, 58, r.HealthScore)

	for _, is := range r.Issues {
		if is.Kind == KindRecursionCycle {
			assert.Equal(t, []callgraph.FunctionID{s.ping, s.pong}, is.Functions)
			assert.Equal(t, SeverityInfo, is.Severity)
		}
	}
}

func TestRecursionCyclesAreInformational(t *testing.T) {
	s := newSample(t)
	require.NoError(t, s.g.AddCall(callgraph.FunctionCall{Caller: s.main, Callee: s.cold}))

	r := New().Validate(Input{Graph: s.g, Resolution: &resolve.Result{Resolved: 4}})
	assert.Equal(t, 1, r.Stats.Cycles)
	assert.False(t, r.HasIssues())
	assert.Equal(t, 100, r.HealthScore)
}

func TestValidateThresholdAndPenalties(t *testing.T) {
	s := newSample(t)
	res := &resolve.Result{Resolved: 1, Unresolved: []resolve.UnresolvedCall{{Site: extract.CallSite{Caller: s.main}}}}

	r := New(WithUnresolvedRatioThreshold(0.6), WithPenalties(0, 0)).Validate(Input{Graph: s.g, Resolution: res})
	assert.Zero(t, r.Count(KindUnresolvedRatio))
	assert.Equal(t, 100, r.HealthScore)
	// the orphan still counts as an issue
	assert.True(t, r.HasIssues())
}

func TestValidateTraceFilter(t *testing.T) {
	s := newSample(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := reachability.New().Classify(s.g, nil, nil)
	New(WithTraceFunctions([]string{"ping"}), WithLogger(logger)).Validate(Input{Graph: s.g, Reachability: a})

	out := buf.String()
	assert.Contains(t, out, "trace function")
	assert.Contains(t, out, "src/main.rs:ping:5")
	assert.Contains(t, out, "caller=src/main.rs:main:1")
	assert.Contains(t, out, "callee=src/main.rs:pong:9")
	assert.Contains(t, out, "status=live")
	assert.NotContains(t, out, "cold")
}

func TestValidateCountsUnreferencedFunctions(t *testing.T) {
	s := newSample(t)
	a := reachability.New().Classify(s.g, nil, nil)
	r := New().Validate(Input{Graph: s.g, Reachability: a})
	assert.Equal(t, 1, r.Stats.Unreferenced)
}
