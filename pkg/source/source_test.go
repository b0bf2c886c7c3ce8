package source

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ContentSource = (*FilesystemSource)(nil)
	_ ContentSource = (*RevisionSource)(nil)
)

func commitFiles(t *testing.T, repo *git.Repository, root string, files map[string]string, msg string) {
	t.Helper()
	w, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		_, err := w.Add(name)
		require.NoError(t, err)
	}
	_, err = w.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
}

func TestFilesystemSource(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib.rs"), []byte("fn a() {}\n"), 0o644))

	src := NewFilesystem(root)
	content, err := src.Read("src/lib.rs")
	require.NoError(t, err)
	assert.Equal(t, "fn a() {}\n", string(content))

	content, err = src.Read(filepath.Join(root, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn a() {}\n", string(content))

	_, err = src.Read("missing.rs")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRevisionSource(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)

	commitFiles(t, repo, root, map[string]string{
		"src/main.rs": "fn main() {}\n",
		"app.py":      "def run():\n    pass\n",
	}, "initial")
	commitFiles(t, repo, root, map[string]string{
		"src/main.rs": "fn main() { helper(); }\nfn helper() {}\n",
	}, "add helper")

	// uncommitted edits are invisible to a revision source
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("broken"), 0o644))

	head, err := OpenRevision(root, "HEAD")
	require.NoError(t, err)
	assert.Len(t, head.Hash(), 40)

	files, err := head.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "src/main.rs"}, files)

	content, err := head.Read("app.py")
	require.NoError(t, err)
	assert.Equal(t, "def run():\n    pass\n", string(content))

	content, err = head.Read("src/main.rs")
	require.NoError(t, err)
	assert.Contains(t, string(content), "helper")

	prev, err := OpenRevision(root, "HEAD~1")
	require.NoError(t, err)
	assert.NotEqual(t, head.Hash(), prev.Hash())
	content, err = prev.Read("src/main.rs")
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}\n", string(content))

	_, err = head.Read("nope.rs")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRevisionSourceSubdirectory(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	commitFiles(t, repo, root, map[string]string{
		"service/src/lib.rs": "pub fn serve() {}\n",
		"tools/gen.py":       "def gen():\n    pass\n",
	}, "initial")

	src, err := OpenRevision(filepath.Join(root, "service"), "HEAD")
	require.NoError(t, err)

	files, err := src.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/lib.rs"}, files)

	content, err := src.Read("src/lib.rs")
	require.NoError(t, err)
	assert.Equal(t, "pub fn serve() {}\n", string(content))
}

func TestOpenRevisionErrors(t *testing.T) {
	_, err := OpenRevision(t.TempDir(), "HEAD")
	assert.Error(t, err)

	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	commitFiles(t, repo, root, map[string]string{"a.rs": "fn a() {}\n"}, "initial")

	_, err = OpenRevision(root, "no-such-branch")
	assert.Error(t, err)
}
