package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/reach/pkg/config"
	"github.com/panbanda/reach/pkg/parser"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func relAll(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestNewScanner(t *testing.T) {
	s := NewScanner(nil)
	require.NotNil(t, s)
	assert.NotNil(t, s.config)

	cfg := config.DefaultConfig()
	assert.Same(t, cfg, NewScanner(cfg).config)
}

func TestScanDir(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/main.rs":              "fn main() {}\n",
		"src/store.rs":             "pub struct Store;\n",
		"app/views.py":             "def index():\n    pass\n",
		"web/src/app.ts":           "export function boot() {}\n",
		"web/src/widget.tsx":       "export default function W() {}\n",
		"README.md":                "# readme\n",
		"main.go":                  "package main\n",
		"node_modules/react/x.js":  "module.exports = {}\n",
		"target/debug/build.rs":    "fn main() {}\n",
		"web/dist/bundle.min.js":   "var a;\n",
		"web/src/types/api.d.ts":   "declare const x: number;\n",
		"app/__pycache__/views.py": "\n",
		"tests/test_views.py":      "def test_index():\n    pass\n",
	})

	files, err := NewScanner(nil).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"app/views.py",
		"src/main.rs",
		"src/store.rs",
		"tests/test_views.py",
		"web/src/app.ts",
		"web/src/widget.tsx",
	}, relAll(t, root, files))
}

func TestScanDirLanguagesAndTests(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"lib.rs":            "fn a() {}\n",
		"app.py":            "def a():\n    pass\n",
		"tests/test_app.py": "def test_a():\n    pass\n",
	})

	cfg := config.DefaultConfig()
	cfg.Analysis.Languages = []string{"python"}
	cfg.Analysis.IncludeTests = false

	files, err := NewScanner(cfg).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, relAll(t, root, files))
}

func TestScanDirExcludesPatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/lib.rs":           "fn a() {}\n",
		"src/generated/api.rs": "fn b() {}\n",
		"fixtures/sample.py":   "def c():\n    pass\n",
	})

	cfg := config.DefaultConfig()
	cfg.Exclude.Patterns = []string{"generated/"}
	cfg.Exclude.Dirs = append(cfg.Exclude.Dirs, "fixtures")

	files, err := NewScanner(cfg).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/lib.rs"}, relAll(t, root, files))
}

func TestScanDirWithGitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	writeTree(t, root, map[string]string{
		".gitignore":        "scratch/\n*.gen.py\n",
		"pkg/.gitignore":    "local.py\n",
		"pkg/app.py":        "def a():\n    pass\n",
		"pkg/local.py":      "def b():\n    pass\n",
		"pkg/schema.gen.py": "def c():\n    pass\n",
		"scratch/try.rs":    "fn main() {}\n",
	})

	files, err := NewScanner(nil).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/app.py"}, relAll(t, root, files))

	cfg := config.DefaultConfig()
	cfg.Exclude.Gitignore = false
	files, err = NewScanner(cfg).ScanDir(root)
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestScanDirGitignoreFromSubdirectory(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	writeTree(t, repo, map[string]string{
		".gitignore":         "service/gen/\n",
		"service/main.rs":    "fn main() {}\n",
		"service/gen/api.rs": "fn api() {}\n",
	})

	root := filepath.Join(repo, "service")
	files, err := NewScanner(nil).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.rs"}, relAll(t, root, files))
}

func TestScanDirSkipsEscapingSymlinks(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"secret.rs": "fn leak() {}\n"})

	root := t.TempDir()
	writeTree(t, root, map[string]string{"lib.rs": "fn a() {}\n"})
	if err := os.Symlink(filepath.Join(outside, "secret.rs"), filepath.Join(root, "link.rs")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "missing.rs"), filepath.Join(root, "dangling.rs")))

	files, err := NewScanner(nil).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib.rs"}, relAll(t, root, files))
}

func TestAccept(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Analysis.IncludeTests = false
	s := NewScanner(cfg)

	assert.True(t, s.Accept("src/lib.rs"))
	assert.False(t, s.Accept("src/lib_test.py"))
	assert.False(t, s.Accept("tests/test_lib.py"))
	assert.False(t, s.Accept("README.md"))
	assert.False(t, s.Accept(filepath.Join("node_modules", "x", "index.js")))
}

func TestGroupByLanguage(t *testing.T) {
	groups := GroupByLanguage([]string{"a.rs", "b.py", "c.rs", "d.txt", "e.tsx"})
	assert.Equal(t, []string{"a.rs", "c.rs"}, groups[parser.LangRust])
	assert.Equal(t, []string{"b.py"}, groups[parser.LangPython])
	assert.Equal(t, []string{"e.tsx"}, groups[parser.LangTSX])
	assert.NotContains(t, groups, parser.LangUnknown)
}

func TestFilterBySize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.rs": "fn a() {}\n",
		"large.rs": string(make([]byte, 4096)),
	})
	files := []string{filepath.Join(root, "small.rs"), filepath.Join(root, "large.rs"), filepath.Join(root, "gone.rs")}

	kept, skipped := FilterBySize(files, 1024)
	assert.Equal(t, []string{filepath.Join(root, "small.rs")}, kept)
	assert.Equal(t, 2, skipped)

	kept, skipped = FilterBySize(files, 0)
	assert.Equal(t, files, kept)
	assert.Zero(t, skipped)
}

func TestIsWithinRoot(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "repo")
	assert.True(t, isWithinRoot(root, root))
	assert.True(t, isWithinRoot(filepath.Join(root, "src", "lib.rs"), root))
	assert.False(t, isWithinRoot(filepath.Join(string(filepath.Separator), "repo2", "lib.rs"), root))
	assert.False(t, isWithinRoot(filepath.Join(root, "..", "etc"), root))
}

func TestFindGitRoot(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	nested := filepath.Join(repo, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, repo, findGitRoot(nested))
}
