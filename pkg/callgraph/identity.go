// Package callgraph holds function identities and the process-wide call graph
// with its bidirectional and lookup indices.
package callgraph

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FunctionID identifies a function definition.
type FunctionID struct {
	File       string `json:"file"`
	Name       string `json:"name"`
	Line       int    `json:"line"`
	ModulePath string `json:"module_path"`
}

// ExactKey matches records produced by identical passes over the same file.
type ExactKey struct {
	File       string
	Name       string
	Line       int
	ModulePath string
}

// FuzzyKey ignores line drift and generic parameters.
type FuzzyKey struct {
	File string
	Name string
}

// SimpleKey is the normalized name alone. It is ambiguous by construction.
type SimpleKey struct {
	Name string
}

// NewFunctionID builds an identity with a canonical file path.
func NewFunctionID(file, name string, line int, modulePath string) FunctionID {
	return FunctionID{
		File:       CanonicalPath(file),
		Name:       strings.TrimSpace(name),
		Line:       line,
		ModulePath: modulePath,
	}
}

// ExactKey returns the key built from all four fields.
func (id FunctionID) ExactKey() ExactKey {
	return ExactKey{File: id.File, Name: id.Name, Line: id.Line, ModulePath: id.ModulePath}
}

// FuzzyKey returns the canonical file plus the normalized name.
func (id FunctionID) FuzzyKey() FuzzyKey {
	return FuzzyKey{File: CanonicalPath(id.File), Name: NormalizeName(id.Name)}
}

// SimpleKey returns the normalized name.
func (id FunctionID) SimpleKey() SimpleKey {
	return SimpleKey{Name: NormalizeName(id.Name)}
}

// ShortName is the last namespace segment of the normalized name.
func (id FunctionID) ShortName() string {
	return ShortName(id.Name)
}

// IsZero reports whether the identity is unset.
func (id FunctionID) IsZero() bool {
	return id == FunctionID{}
}

func (id FunctionID) String() string {
	return fmt.Sprintf("%s:%s:%d", id.File, id.Name, id.Line)
}

// Less orders identities by file, line, then name.
func (id FunctionID) Less(other FunctionID) bool {
	if id.File != other.File {
		return id.File < other.File
	}
	if id.Line != other.Line {
		return id.Line < other.Line
	}
	return id.Name < other.Name
}

// NormalizeName trims whitespace and strips a trailing generic argument list.
// Namespace separators are left untouched, so "Vec<T>::push" is unchanged and
// "map<String>" becomes "map". Adjacent trailing lists are stripped together
// ("foo<A><B>" becomes "foo") so that normalizing twice changes nothing.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	for strings.HasSuffix(name, ">") {
		open := matchingOpen(name)
		if open <= 0 {
			break
		}
		name = strings.TrimSpace(name[:open])
		// turbofish: foo::<T>
		if strings.HasSuffix(name, "::") && len(name) > 2 {
			name = strings.TrimSpace(strings.TrimSuffix(name, "::"))
		}
	}
	return name
}

// matchingOpen returns the index of the '<' that balances the final '>'.
func matchingOpen(name string) int {
	depth := 0
	for i := len(name) - 1; i >= 0; i-- {
		switch name[i] {
		case '>':
			depth++
		case '<':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ShortName returns the final segment of a "::" or "." qualified name.
func ShortName(name string) string {
	name = NormalizeName(name)
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Qualifier returns everything before the final segment, or "".
func Qualifier(name string) string {
	name = NormalizeName(name)
	short := ShortName(name)
	q := strings.TrimSuffix(name, short)
	q = strings.TrimSuffix(q, "::")
	q = strings.TrimSuffix(q, ".")
	return q
}

// CanonicalPath cleans a path and uses forward slashes.
func CanonicalPath(path string) string {
	if path == "" {
		return ""
	}
	p := filepath.ToSlash(filepath.Clean(path))
	return strings.TrimPrefix(p, "./")
}
