package resolve

import (
	"path"
	"strings"

	"github.com/panbanda/reach/pkg/extract"
	"github.com/panbanda/reach/pkg/parser"
)

// SymbolResolution is where an imported name is defined.
type SymbolResolution struct {
	// DefiningModule is the module path the name comes from.
	DefiningModule string
	// File is the analyzed file for DefiningModule, or "" when the module
	// lies outside the analyzed tree.
	File string
	// Symbol is the name inside DefiningModule; "" when the binding is the
	// module itself.
	Symbol     string
	Confidence Confidence
	Kind       extract.ImportKind
}

// External reports whether the symbol comes from outside the analyzed tree.
func (s SymbolResolution) External() bool { return s.File == "" }

// ImportResolver answers which module defines a name bound by an import.
type ImportResolver struct {
	reg *Registry
}

// NewImportResolver creates an ImportResolver over a registry.
func NewImportResolver(reg *Registry) *ImportResolver {
	return &ImportResolver{reg: reg}
}

// ResolveSymbol finds the import in file that binds name. Explicit bindings
// win over star imports; a star import only matches when its target module
// defines name.
func (ir *ImportResolver) ResolveSymbol(file, name string) (SymbolResolution, bool) {
	f, ok := ir.reg.File(file)
	if !ok || name == "" {
		return SymbolResolution{}, false
	}
	for _, imp := range f.Imports {
		if imp.Kind == extract.ImportStar || !binds(f, imp, name) {
			continue
		}
		return ir.resolveImport(f, imp, name), true
	}
	for _, imp := range f.Imports {
		if imp.Kind != extract.ImportStar {
			continue
		}
		res := ir.resolveImport(f, imp, name)
		if res.File != "" && ir.reg.defines(res.File, name) {
			res.Symbol = name
			return res, true
		}
	}
	return SymbolResolution{}, false
}

// StarTargets returns the analyzed files brought in by star imports of file.
func (ir *ImportResolver) StarTargets(file string) []SymbolResolution {
	f, ok := ir.reg.File(file)
	if !ok {
		return nil
	}
	var out []SymbolResolution
	for _, imp := range f.Imports {
		if imp.Kind != extract.ImportStar {
			continue
		}
		if res := ir.resolveImport(f, imp, ""); res.File != "" {
			out = append(out, res)
		}
	}
	return out
}

// binds reports whether imp introduces name. Python `import a.b` binds both
// `a` and the dotted path `a.b`.
func binds(f *extract.FileFacts, imp extract.Import, name string) bool {
	if imp.Local() == name {
		return true
	}
	if f.Language == parser.LangPython && imp.Kind == extract.ImportDirect && imp.Alias == "" {
		first, _, _ := strings.Cut(imp.Module, ".")
		return first == name || strings.HasPrefix(imp.Module, name+".")
	}
	return false
}

func (ir *ImportResolver) resolveImport(f *extract.FileFacts, imp extract.Import, name string) SymbolResolution {
	res := SymbolResolution{Confidence: importConfidence(imp), Kind: imp.Kind}
	switch {
	case f.Language == parser.LangRust:
		ir.rustTarget(f, imp, &res)
	case f.Language == parser.LangPython:
		ir.pythonTarget(f, imp, name, &res)
	default:
		ir.jsTarget(f, imp, &res)
	}
	return res
}

func (ir *ImportResolver) pythonTarget(f *extract.FileFacts, imp extract.Import, name string, res *SymbolResolution) {
	module := imp.Module
	if imp.Level > 0 {
		module = pythonRelative(f, imp.Level, imp.Module)
	}
	switch imp.Kind {
	case extract.ImportDirect, extract.ImportDynamic:
		// `import a.b` used as `a` binds the top package
		if imp.Alias == "" && name != "" && name != module && strings.HasPrefix(module, name+".") {
			module = name
		}
		res.DefiningModule = module
		res.File, _ = ir.reg.ModuleFile(module, f.Path)
		return
	}
	if imp.Name != "" {
		sub := joinDotted(module, imp.Name)
		if file, ok := ir.reg.ModuleFile(sub, f.Path); ok {
			res.DefiningModule, res.File = sub, file
			return
		}
	}
	res.DefiningModule = module
	res.File, _ = ir.reg.ModuleFile(module, f.Path)
	res.Symbol = imp.Name
}

// pythonRelative anchors a relative module at the importer's package.
func pythonRelative(f *extract.FileFacts, level int, module string) string {
	var parts []string
	if f.ModulePath != "" {
		parts = strings.Split(f.ModulePath, ".")
	}
	if path.Base(f.Path) != "__init__.py" && len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}
	drop := min(level-1, len(parts))
	parts = parts[:len(parts)-drop]
	if module != "" {
		parts = append(parts, module)
	}
	return strings.Join(parts, ".")
}

func joinDotted(a, b string) string {
	if a == "" {
		return b
	}
	return a + "." + b
}

func (ir *ImportResolver) rustTarget(f *extract.FileFacts, imp extract.Import, res *SymbolResolution) {
	module := rustModulePath(f.ModulePath, imp.Module, ir.reg)
	if imp.Name != "" {
		sub := module + "::" + imp.Name
		if module == "" {
			sub = "crate::" + imp.Name
		}
		if ir.reg.hasModule(sub) {
			res.DefiningModule = sub
			res.File, _ = ir.reg.ModuleFile(sub, f.Path)
			return
		}
		if module == "" {
			// `use some_crate;`
			res.DefiningModule = imp.Name
			return
		}
		res.Symbol = imp.Name
	}
	res.DefiningModule = module
	// items in inline modules live in the enclosing file
	for m := module; strings.HasPrefix(m, "crate"); {
		if file, ok := ir.reg.ModuleFile(m, f.Path); ok {
			res.File = file
			return
		}
		i := strings.LastIndex(m, "::")
		if i < 0 {
			return
		}
		m = m[:i]
	}
}

// rustModulePath turns a use path prefix into an absolute crate path.
func rustModulePath(from, module string, reg *Registry) string {
	if module == "" {
		return ""
	}
	segs := strings.Split(module, "::")
	switch segs[0] {
	case "crate":
		return module
	case "self":
		return strings.Join(append([]string{from}, segs[1:]...), "::")
	case "super":
		base := strings.Split(from, "::")
		n := 0
		for n < len(segs) && segs[n] == "super" {
			n++
		}
		keep := max(len(base)-n, 1)
		return strings.Join(append(base[:keep], segs[n:]...), "::")
	}
	if reg.hasModule("crate::" + module) {
		return "crate::" + module
	}
	return module
}

var jsExtensions = map[string]bool{
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true, ".ts": true, ".tsx": true,
}

func (ir *ImportResolver) jsTarget(f *extract.FileFacts, imp extract.Import, res *SymbolResolution) {
	module := imp.Module
	if strings.HasPrefix(module, ".") {
		module = path.Clean(path.Join(path.Dir(f.Path), module))
		if jsExtensions[path.Ext(module)] {
			module = strings.TrimSuffix(module, path.Ext(module))
		}
		module = strings.TrimSuffix(module, "/index")
	}
	res.DefiningModule = module
	res.File, _ = ir.reg.ModuleFile(module, f.Path)
	res.Symbol = imp.Name
}
