package parser

import (
	"os"
	"path/filepath"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("New() returned nil")
	}
	if p.parser == nil {
		t.Error("parser field is nil")
	}
	p.Close()
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"main.rs", LangRust},
		{"src/lib.rs", LangRust},
		{"script.py", LangPython},
		{"module.pyw", LangPython},
		{"types.pyi", LangPython},
		{"app.ts", LangTypeScript},
		{"esm.mts", LangTypeScript},
		{"component.tsx", LangTSX},
		{"component.jsx", LangTSX},
		{"script.js", LangJavaScript},
		{"module.mjs", LangJavaScript},
		{"common.cjs", LangJavaScript},
		{"MAIN.RS", LangRust},
		{"main.go", LangUnknown},
		{"README.md", LangUnknown},
		{"Makefile", LangUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectLanguage(tt.path); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsJSFamily(t *testing.T) {
	assert.True(t, LangJavaScript.IsJSFamily())
	assert.True(t, LangTypeScript.IsJSFamily())
	assert.True(t, LangTSX.IsJSFamily())
	assert.False(t, LangRust.IsJSFamily())
	assert.False(t, LangPython.IsJSFamily())
}

func TestGetTreeSitterLanguage(t *testing.T) {
	for _, lang := range []Language{LangRust, LangPython, LangTypeScript, LangTSX, LangJavaScript} {
		got, err := GetTreeSitterLanguage(lang)
		require.NoError(t, err, lang)
		assert.NotNil(t, got, lang)
	}

	_, err := GetTreeSitterLanguage(LangUnknown)
	assert.Error(t, err)
}

func TestParseRust(t *testing.T) {
	p := New()
	defer p.Close()

	src := []byte("fn caller() -> i32 { helper() }\nfn helper() -> i32 { 42 }\n")
	result, err := p.Parse(src, LangRust, "lib.rs")
	require.NoError(t, err)
	require.NotNil(t, result.Tree)

	fns := FindNodesByType(result.Root(), result.Source, "function_item")
	require.Len(t, fns, 2)
	assert.Equal(t, "caller", FieldText(fns[0], "name", result.Source))
	assert.Equal(t, "helper", FieldText(fns[1], "name", result.Source))
	assert.Equal(t, 1, StartLine(fns[0]))
	assert.Equal(t, 2, StartLine(fns[1]))
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.py")
	if err := os.WriteFile(path, []byte("def main():\n    run()\n"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p := New()
	defer p.Close()

	result, err := p.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, LangPython, result.Language)
	assert.Equal(t, path, result.Path)

	calls := FindNodesByType(result.Root(), result.Source, "call")
	require.Len(t, calls, 1)
	assert.Equal(t, "run()", GetNodeText(calls[0], result.Source))
}

func TestParseFileUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p := New()
	defer p.Close()

	_, err := p.ParseFile(path)
	assert.Error(t, err)

	_, err = p.ParseFile(filepath.Join(dir, "missing.rs"))
	assert.Error(t, err)
}

func TestWalkSkipsChildren(t *testing.T) {
	p := New()
	defer p.Close()

	src := []byte("fn outer() { inner(); }\n")
	result, err := p.Parse(src, LangRust, "a.rs")
	require.NoError(t, err)

	var seenCall bool
	Walk(result.Root(), result.Source, func(n *sitter.Node, _ []byte) bool {
		if n.Type() == "call_expression" {
			seenCall = true
		}
		return n.Type() != "function_item"
	})
	assert.False(t, seenCall, "children of function_item should be skipped")
}

func TestNodeHelpers(t *testing.T) {
	p := New()
	defer p.Close()

	src := []byte("const x = 1;\n")
	result, err := p.Parse(src, LangJavaScript, "a.js")
	require.NoError(t, err)

	decl := ChildOfType(result.Root(), "lexical_declaration")
	require.NotNil(t, decl)
	children := NamedChildren(decl)
	require.Len(t, children, 1)
	assert.Equal(t, "variable_declarator", children[0].Type())

	assert.Equal(t, "", GetNodeText(nil, src))
	assert.Equal(t, "", FieldText(nil, "name", src))
	assert.Nil(t, ChildOfType(nil, "x"))
	assert.Nil(t, NamedChildren(nil))
}
