package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/reach/pkg/extract"
)

func TestImportConfidence(t *testing.T) {
	tests := []struct {
		name string
		imp  extract.Import
		want Confidence
	}{
		{"direct", extract.Import{Module: "os", Kind: extract.ImportDirect}, High},
		{"from", extract.Import{Module: "a", Name: "b", Kind: extract.ImportFrom}, High},
		{"shallow relative", extract.Import{Module: "models", Kind: extract.ImportRelative, Level: 1}, Medium},
		{"deep relative", extract.Import{Module: "base", Kind: extract.ImportRelative, Level: 2}, Low},
		{"star", extract.Import{Module: "helpers", Kind: extract.ImportStar}, Low},
		{"dynamic", extract.Import{Module: "plugins.x", Kind: extract.ImportDynamic}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, importConfidence(tt.imp))
		})
	}
}

func TestParseConfidence(t *testing.T) {
	c, err := ParseConfidence("")
	require.NoError(t, err)
	assert.Equal(t, Medium, c)

	c, err = ParseConfidence("HIGH")
	require.NoError(t, err)
	assert.Equal(t, High, c)

	c, err = ParseConfidence("any")
	require.NoError(t, err)
	assert.Equal(t, Unknown, c)

	_, err = ParseConfidence("certain")
	assert.Error(t, err)
}

func TestResolveSymbolPython(t *testing.T) {
	_, reg := project(t, map[string]string{
		"pkg/sub/mod.py": `
from .models import Manager
from ..base import Thing
from .helpers import *
import pkg.util

def load():
    plugin = importlib.import_module("plugins.extra")
`,
		"pkg/sub/models.py": "class Manager:\n    pass\n",
		"pkg/sub/helpers.py": "def util():\n    pass\n",
		"pkg/base.py":        "class Thing:\n    pass\n",
		"pkg/util.py":        "def run():\n    pass\n",
	})
	ir := NewImportResolver(reg)

	t.Run("shallow relative", func(t *testing.T) {
		res, ok := ir.ResolveSymbol("pkg/sub/mod.py", "Manager")
		require.True(t, ok)
		assert.Equal(t, "pkg.sub.models", res.DefiningModule)
		assert.Equal(t, "pkg/sub/models.py", res.File)
		assert.Equal(t, "Manager", res.Symbol)
		assert.Equal(t, Medium, res.Confidence)
	})

	t.Run("deep relative", func(t *testing.T) {
		res, ok := ir.ResolveSymbol("pkg/sub/mod.py", "Thing")
		require.True(t, ok)
		assert.Equal(t, "pkg/base.py", res.File)
		assert.Equal(t, Low, res.Confidence)
	})

	t.Run("star import matches defined names only", func(t *testing.T) {
		res, ok := ir.ResolveSymbol("pkg/sub/mod.py", "util")
		require.True(t, ok)
		assert.Equal(t, "pkg/sub/helpers.py", res.File)
		assert.Equal(t, Low, res.Confidence)

		_, ok = ir.ResolveSymbol("pkg/sub/mod.py", "missing")
		assert.False(t, ok)
	})

	t.Run("dotted import binds the top package", func(t *testing.T) {
		res, ok := ir.ResolveSymbol("pkg/sub/mod.py", "pkg.util")
		require.True(t, ok)
		assert.Equal(t, "pkg/util.py", res.File)
		assert.Equal(t, High, res.Confidence)
	})

	t.Run("dynamic import is external when unanalyzed", func(t *testing.T) {
		res, ok := ir.ResolveSymbol("pkg/sub/mod.py", "plugin")
		require.True(t, ok)
		assert.Equal(t, Unknown, res.Confidence)
		assert.True(t, res.External())
	})

	require.Len(t, ir.StarTargets("pkg/sub/mod.py"), 1)
}

func TestResolveSymbolRust(t *testing.T) {
	_, reg := project(t, map[string]string{
		"src/lib.rs":        "pub mod store;\npub mod api;\n",
		"src/store.rs":      "pub struct Store;\n",
		"src/api/mod.rs":    "pub mod handlers;\n",
		"src/api/handlers.rs": `
use super::super::store::Store;
use crate::api;
use serde::Serialize;
`,
	})
	ir := NewImportResolver(reg)

	res, ok := ir.ResolveSymbol("src/api/handlers.rs", "Store")
	require.True(t, ok)
	assert.Equal(t, "crate::store", res.DefiningModule)
	assert.Equal(t, "src/store.rs", res.File)
	assert.Equal(t, "Store", res.Symbol)

	res, ok = ir.ResolveSymbol("src/api/handlers.rs", "api")
	require.True(t, ok)
	assert.Equal(t, "crate::api", res.DefiningModule)
	assert.Equal(t, "src/api/mod.rs", res.File)
	assert.Empty(t, res.Symbol)

	res, ok = ir.ResolveSymbol("src/api/handlers.rs", "Serialize")
	require.True(t, ok)
	assert.True(t, res.External())
}

func TestResolveSymbolJavaScript(t *testing.T) {
	_, reg := project(t, map[string]string{
		"web/src/app.ts": `
import { Store } from "./store";
import defaultClient from "../lib/client";
import React from "react";
`,
		"web/src/store.ts":       "export class Store {}\n",
		"web/lib/client/index.ts": "export default function client() {}\n",
	})
	ir := NewImportResolver(reg)

	res, ok := ir.ResolveSymbol("web/src/app.ts", "Store")
	require.True(t, ok)
	assert.Equal(t, "web/src/store.ts", res.File)
	assert.Equal(t, "Store", res.Symbol)

	res, ok = ir.ResolveSymbol("web/src/app.ts", "defaultClient")
	require.True(t, ok)
	assert.Equal(t, "web/lib/client/index.ts", res.File)
	assert.Equal(t, "default", res.Symbol)

	res, ok = ir.ResolveSymbol("web/src/app.ts", "React")
	require.True(t, ok)
	assert.True(t, res.External())
}

func TestRegistryTypes(t *testing.T) {
	_, reg := project(t, map[string]string{
		"src/shape.rs": `
pub trait Shape {
    fn area(&self) -> f64;
}
pub struct Circle;
impl Shape for Circle {
    fn area(&self) -> f64 { 1.0 }
}
`,
		"models.py": `
class Base:
    pass

class Child(Base):
    repo: "Repo"
`,
	})

	assert.True(t, reg.IsTrait("Shape"))
	assert.Equal(t, []string{"Circle"}, reg.Implementations("Shape"))
	assert.Equal(t, []string{"Shape"}, reg.TraitsOf("Circle"))
	assert.True(t, reg.DefinesType("Circle"))
	assert.False(t, reg.DefinesType("Vec"))

	assert.Equal(t, []string{"Child"}, reg.Subtypes("Base"))
	assert.Equal(t, []string{"Base"}, reg.Bases("Child", "models.py"))
	ft, ok := reg.FieldType("Child", "repo", "models.py")
	require.True(t, ok)
	assert.Equal(t, "Repo", ft)
}
