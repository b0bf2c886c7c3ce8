// Package resolve links extracted call sites to registered functions. It owns
// the cross-file view of phase one output: modules, types, trait
// implementations, singletons and imports.
package resolve

import (
	"path"
	"slices"
	"strings"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/extract"
	"github.com/panbanda/reach/pkg/parser"
)

// typeRef is one definition of a named type.
type typeRef struct {
	file string
	def  extract.TypeDef
}

// Registry indexes every file's facts. It is built once after phase one and
// is read-only afterwards, so lookups are safe from many goroutines.
type Registry struct {
	files   map[string]*extract.FileFacts
	order   []string
	modules map[string][]string

	defs     map[callgraph.FunctionID]extract.FunctionDef
	types    map[string][]typeRef
	traits   map[string]extract.TraitDef
	impls    map[string][]string // trait -> implementing types
	subtypes map[string][]string // base -> derived classes
}

// NewRegistry indexes files. Later files with the same path replace earlier
// ones.
func NewRegistry(files []*extract.FileFacts) *Registry {
	r := &Registry{
		files:    make(map[string]*extract.FileFacts, len(files)),
		modules:  make(map[string][]string),
		defs:     make(map[callgraph.FunctionID]extract.FunctionDef),
		types:    make(map[string][]typeRef),
		traits:   make(map[string]extract.TraitDef),
		impls:    make(map[string][]string),
		subtypes: make(map[string][]string),
	}
	for _, f := range files {
		if f == nil {
			continue
		}
		if _, seen := r.files[f.Path]; !seen {
			r.order = append(r.order, f.Path)
		}
		r.files[f.Path] = f
	}
	for _, p := range r.order {
		r.index(r.files[p])
	}
	return r
}

func (r *Registry) index(f *extract.FileFacts) {
	if f.ModulePath != "" {
		r.modules[f.ModulePath] = append(r.modules[f.ModulePath], f.Path)
	}
	for _, d := range f.Functions {
		r.defs[d.ID] = d
	}
	for _, t := range f.Types {
		r.types[t.Name] = append(r.types[t.Name], typeRef{file: f.Path, def: t})
		for _, base := range t.Bases {
			if base != "" && !slices.Contains(r.subtypes[base], t.Name) {
				r.subtypes[base] = append(r.subtypes[base], t.Name)
			}
		}
	}
	for _, t := range f.Traits {
		r.traits[t.Name] = t
	}
	for _, impl := range f.Impls {
		if impl.Trait != "" && !slices.Contains(r.impls[impl.Trait], impl.Type) {
			r.impls[impl.Trait] = append(r.impls[impl.Trait], impl.Type)
		}
	}
}

// File returns the facts of a file.
func (r *Registry) File(p string) (*extract.FileFacts, bool) {
	f, ok := r.files[callgraph.CanonicalPath(p)]
	return f, ok
}

// Files returns every file in registration order.
func (r *Registry) Files() []*extract.FileFacts {
	out := make([]*extract.FileFacts, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.files[p])
	}
	return out
}

// Def returns the extracted definition behind a function identity.
func (r *Registry) Def(id callgraph.FunctionID) (extract.FunctionDef, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// IsTrait reports whether name is a trait defined in the analyzed tree.
func (r *Registry) IsTrait(name string) bool {
	_, ok := r.traits[name]
	return ok
}

// Trait returns a project trait definition.
func (r *Registry) Trait(name string) (extract.TraitDef, bool) {
	t, ok := r.traits[name]
	return t, ok
}

// Implementations lists the types implementing a trait.
func (r *Registry) Implementations(trait string) []string {
	return slices.Clone(r.impls[trait])
}

// TraitsOf lists the traits typ implements, sorted.
func (r *Registry) TraitsOf(typ string) []string {
	var out []string
	for trait, types := range r.impls {
		if slices.Contains(types, typ) {
			out = append(out, trait)
		}
	}
	slices.Sort(out)
	return out
}

// Subtypes lists the classes that name base directly.
func (r *Registry) Subtypes(base string) []string {
	return slices.Clone(r.subtypes[base])
}

// Bases returns the declared base classes of a type, preferring the
// definition in file.
func (r *Registry) Bases(typ, file string) []string {
	if ref, ok := r.typeDef(typ, file); ok {
		return ref.def.Bases
	}
	return nil
}

// DefinesType reports whether any analyzed file declares typ as a struct,
// class, trait or impl target.
func (r *Registry) DefinesType(typ string) bool {
	if _, ok := r.types[typ]; ok {
		return true
	}
	if _, ok := r.traits[typ]; ok {
		return true
	}
	for _, f := range r.files {
		for _, impl := range f.Impls {
			if impl.Type == typ {
				return true
			}
		}
	}
	return false
}

func (r *Registry) typeDef(typ, file string) (typeRef, bool) {
	refs := r.types[typ]
	for _, ref := range refs {
		if ref.file == file {
			return ref, true
		}
	}
	if len(refs) > 0 {
		return refs[0], true
	}
	return typeRef{}, false
}

// FieldType returns the declared type of typ.field. The definition in file
// wins; otherwise the first registered definition is used. Base classes are
// searched when the type itself does not declare the field.
func (r *Registry) FieldType(typ, field, file string) (string, bool) {
	seen := make(map[string]bool)
	for queue := []string{typ}; len(queue) > 0; queue = queue[1:] {
		t := queue[0]
		if seen[t] {
			continue
		}
		seen[t] = true
		ref, ok := r.typeDef(t, file)
		if !ok {
			continue
		}
		if ft, ok := ref.def.Fields[field]; ok && ft != "" {
			return ft, true
		}
		queue = append(queue, ref.def.Bases...)
	}
	return "", false
}

// Singleton returns a module-level instance named name in file.
func (r *Registry) Singleton(file, name string) (extract.Singleton, bool) {
	f, ok := r.files[file]
	if !ok {
		return extract.Singleton{}, false
	}
	for _, s := range f.Singletons {
		if s.Name == name {
			return s, true
		}
	}
	return extract.Singleton{}, false
}

// defines reports whether file declares a top-level function, type or
// singleton called name.
func (r *Registry) defines(file, name string) bool {
	f, ok := r.files[file]
	if !ok {
		return false
	}
	for _, d := range f.Functions {
		if d.Owner == "" && d.ID.Name == name {
			return true
		}
	}
	for _, t := range f.Types {
		if t.Name == name {
			return true
		}
	}
	for _, s := range f.Singletons {
		if s.Name == name {
			return true
		}
	}
	return false
}

// ModuleFile maps a module path to a file, preferring the candidate closest
// to from in the directory tree. Python modules also match on a dotted
// suffix so imports rooted below the repository root resolve.
func (r *Registry) ModuleFile(module, from string) (string, bool) {
	if files := r.modules[module]; len(files) > 0 {
		return closest(files, from), true
	}
	if f, ok := r.files[from]; ok && f.Language == parser.LangPython && module != "" {
		var matches []string
		for _, p := range r.order {
			mp := r.files[p].ModulePath
			if strings.HasSuffix(mp, "."+module) {
				matches = append(matches, p)
			}
		}
		if len(matches) > 0 {
			return closest(matches, from), true
		}
	}
	return "", false
}

func (r *Registry) hasModule(module string) bool {
	_, ok := r.modules[module]
	return ok
}

// closest picks the candidate sharing the longest directory prefix with from.
func closest(files []string, from string) string {
	best, bestLen := files[0], -1
	dir := path.Dir(from)
	for _, f := range files {
		n := commonPrefix(path.Dir(f), dir)
		if n > bestLen {
			best, bestLen = f, n
		}
	}
	return best
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
