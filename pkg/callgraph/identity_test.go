package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"foo", "foo"},
		{"  foo  ", "foo"},
		{"foo<T>", "foo"},
		{"map<String>", "map"},
		{"map<HashMap<K, Vec<V>>>", "map"},
		{"Type::method", "Type::method"},
		{"Vec<T>::push", "Vec<T>::push"},
		{"module::Type::method<T>", "module::Type::method"},
		{"collect::<Vec<_>>", "collect"},
		{"foo<A><B>", "foo"},
		{"<T>", "<T>"},
		{"a > b", "a > b"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeNameIdempotent(t *testing.T) {
	names := []string{
		"foo", "foo<T>", "foo<T><U>", " Type::method<A, B> ", "x::<T>",
		"Outer<Inner<T>>::f<G>", "weird<", "weird>", "<>", "a::b::c",
	}
	for _, n := range names {
		once := NormalizeName(n)
		assert.Equal(t, once, NormalizeName(once), "normalize not idempotent for %q", n)
	}
}

func TestNormalizeNamePreservesNamespace(t *testing.T) {
	assert.Equal(t, "a::b::c", NormalizeName("a::b::c<T>"))
	assert.Contains(t, NormalizeName("std::collections::HashMap<K, V>::new"), "::")
}

func TestFuzzyKeyIgnoresLine(t *testing.T) {
	a := NewFunctionID("src/lib.rs", "process", 10, "crate")
	b := NewFunctionID("src/lib.rs", "process", 42, "crate")
	assert.Equal(t, a.FuzzyKey(), b.FuzzyKey())
	assert.NotEqual(t, a.ExactKey(), b.ExactKey())
}

func TestFuzzyKeyDistinguishesFiles(t *testing.T) {
	a := NewFunctionID("src/a.rs", "process", 10, "")
	b := NewFunctionID("src/b.rs", "process", 10, "")
	assert.NotEqual(t, a.FuzzyKey(), b.FuzzyKey())
	assert.Equal(t, a.SimpleKey(), b.SimpleKey())
}

func TestFuzzyKeyUnifiesGenerics(t *testing.T) {
	a := NewFunctionID("src/lib.rs", "map<T>", 1, "")
	b := NewFunctionID("src/lib.rs", "map<String>", 9, "")
	assert.Equal(t, a.FuzzyKey(), b.FuzzyKey())
}

func TestFuzzyKeyCanonicalizesPath(t *testing.T) {
	a := FunctionID{File: "./src/../src/lib.rs", Name: "f"}
	b := FunctionID{File: "src/lib.rs", Name: "f"}
	assert.Equal(t, a.FuzzyKey(), b.FuzzyKey())
}

func TestShortNameAndQualifier(t *testing.T) {
	tests := []struct {
		in, short, qual string
	}{
		{"helper", "helper", ""},
		{"Manager::add_message", "add_message", "Manager"},
		{"Manager.add_message", "add_message", "Manager"},
		{"a::B::c<T>", "c", "a::B"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.short, ShortName(tt.in), tt.in)
		assert.Equal(t, tt.qual, Qualifier(tt.in), tt.in)
	}
}

func TestFunctionIDLess(t *testing.T) {
	a := FunctionID{File: "a.rs", Name: "z", Line: 1}
	b := FunctionID{File: "a.rs", Name: "a", Line: 2}
	c := FunctionID{File: "b.rs", Name: "a", Line: 1}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
	assert.True(t, FunctionID{}.IsZero())
	assert.Equal(t, "a.rs:z:1", a.String())
}
