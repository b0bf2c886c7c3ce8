package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureMap(c Closure) map[VarID]CapturedVar {
	out := make(map[VarID]CapturedVar, len(c.Captures))
	for _, v := range c.Captures {
		out[v.Var] = v
	}
	return out
}

func TestClosureCapturesByRef(t *testing.T) {
	src := `fn outer() {
    let items = vec![1, 2, 3];
    let name = String::new();
    let unused = 5;
    items.iter().for_each(|x| log(&name, x));
}`
	g := buildRust(t, src, "outer")

	require.Len(t, g.Closures, 1)
	caps := captureMap(g.Closures[0])
	require.Len(t, caps, 1)
	assert.Equal(t, CapturedVar{Var: "name", Mode: ByRef}, caps["name"])
	assert.False(t, g.Closures[0].IsMove)
}

func TestClosureMutationUpgradesToMutRef(t *testing.T) {
	src := `fn outer() {
    let mut count = 0;
    let mut seen = Vec::new();
    let total = 10;
    let mut f = |x: i32| {
        count += x;
        seen.push(x);
        total + x
    };
    f(1);
}`
	g := buildRust(t, src, "outer")

	require.Len(t, g.Closures, 1)
	caps := captureMap(g.Closures[0])
	assert.Equal(t, CapturedVar{Var: "count", Mode: ByMutRef, IsMutated: true}, caps["count"])
	assert.Equal(t, CapturedVar{Var: "seen", Mode: ByMutRef, IsMutated: true}, caps["seen"])
	assert.Equal(t, CapturedVar{Var: "total", Mode: ByRef}, caps["total"])
	assert.NotContains(t, caps, VarID("x"), "closure params are not captures")
}

func TestMoveClosureKeepsByValue(t *testing.T) {
	src := `fn outer() {
    let mut v = Vec::new();
    let label = String::new();
    let f = move || {
        v.push(1);
        print_it(label);
    };
}`
	g := buildRust(t, src, "outer")

	require.Len(t, g.Closures, 1)
	assert.True(t, g.Closures[0].IsMove)
	caps := captureMap(g.Closures[0])
	assert.Equal(t, CapturedVar{Var: "v", Mode: ByValue, IsMutated: true}, caps["v"])
	assert.Equal(t, CapturedVar{Var: "label", Mode: ByValue}, caps["label"])
}

func TestNestedClosureCapturesMerge(t *testing.T) {
	src := `fn outer() {
    let a = 1;
    let b = 2;
    let mut acc = Vec::new();
    let f = |x: i32| {
        let g = |y: i32| a + y + x;
        acc.iter().for_each(|z| acc_len(z));
        g(x) + b
    };
}`
	g := buildRust(t, src, "outer")

	require.NotEmpty(t, g.Closures)
	caps := captureMap(g.Closures[0])
	assert.Contains(t, caps, VarID("a"), "nested capture is merged into the outer closure")
	assert.Contains(t, caps, VarID("b"))
	assert.Contains(t, caps, VarID("acc"))
	assert.NotContains(t, caps, VarID("x"), "outer params stay excluded in nested closures")
	assert.NotContains(t, caps, VarID("g"), "closure-local lets are not captures")
	assert.Len(t, caps, 3)
}

func TestClosureOnlySeesEarlierNames(t *testing.T) {
	src := `fn outer() {
    let f = || later();
    let later = 1;
}`
	g := buildRust(t, src, "outer")
	require.Len(t, g.Closures, 1)
	assert.Empty(t, g.Closures[0].Captures)
}

func TestShadowingLetStillCapturesInitializer(t *testing.T) {
	src := `fn g(total: i32) {
    let c = || {
        let total = total + 1;
        total
    };
}`
	g := buildRust(t, src, "g")
	require.Len(t, g.Closures, 1)
	assert.Equal(t, []CapturedVar{{Var: "total", Mode: ByRef}}, g.Closures[0].Captures)
}

func TestLetInNestedBlockDoesNotHideLaterUse(t *testing.T) {
	src := `fn g(mut n: i32) {
    let c = || {
        {
            let n = 0;
            n + 1;
        }
        n += 1;
    };
}`
	g := buildRust(t, src, "g")
	require.Len(t, g.Closures, 1)
	caps := captureMap(g.Closures[0])
	assert.Equal(t, CapturedVar{Var: "n", Mode: ByMutRef, IsMutated: true}, caps["n"])
}

func TestClosureLocalMutationIsNotACapture(t *testing.T) {
	src := `fn g(items: Vec<i32>) {
    let c = || {
        let mut items = Vec::new();
        items.push(1);
        for x in items.iter() {
            log(x);
        }
        match items.first() {
            Some(items) => log(items),
            None => {}
        }
    };
}`
	g := buildRust(t, src, "g")
	require.Len(t, g.Closures, 1)
	assert.Empty(t, g.Closures[0].Captures)
}

func TestClosureCapturesSelfAndParams(t *testing.T) {
	src := `impl S {
    fn run(&self, limit: usize) {
        let f = || self.check(limit);
    }
}`
	g := buildRust(t, src, "run")
	require.Len(t, g.Closures, 1)
	caps := captureMap(g.Closures[0])
	assert.Contains(t, caps, VarID("self"))
	assert.Contains(t, caps, VarID("limit"))
}

func TestIsMutatingMethod(t *testing.T) {
	for _, m := range []string{"push", "insert", "sort", "retain"} {
		assert.True(t, IsMutatingMethod(m), m)
	}
	for _, m := range []string{"len", "iter", "get", "clone"} {
		assert.False(t, IsMutatingMethod(m), m)
	}
}
