// Package source supplies file contents to the analysis, either from the
// working tree or from a git revision.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ContentSource provides file content from a specific source.
type ContentSource interface {
	// Read returns the content of the file at path, relative to the
	// analyzed root.
	Read(path string) ([]byte, error)
}

// FilesystemSource reads files from the local filesystem.
type FilesystemSource struct {
	root string
}

// NewFilesystem creates a source that reads relative paths under root.
// Absolute paths are read as given.
func NewFilesystem(root string) *FilesystemSource {
	return &FilesystemSource{root: root}
}

// Read implements ContentSource.
func (f *FilesystemSource) Read(p string) ([]byte, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.root, filepath.FromSlash(p))
	}
	return os.ReadFile(p)
}

// RevisionSource reads files from the tree of a git commit.
// It is safe for concurrent use by multiple goroutines.
type RevisionSource struct {
	tree   *object.Tree
	hash   plumbing.Hash
	prefix string
	mu     sync.Mutex
}

// OpenRevision resolves rev (a branch, tag, hash or expression such as
// HEAD~2) in the repository containing dir. Paths are relative to dir, which
// may be a subdirectory of the repository.
func OpenRevision(dir, rev string) (*RevisionSource, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", dir, err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve revision %q: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree of %s: %w", hash, err)
	}

	prefix, err := repoPrefix(repo, dir)
	if err != nil {
		return nil, err
	}
	return &RevisionSource{tree: tree, hash: *hash, prefix: prefix}, nil
}

// repoPrefix is dir relative to the worktree root, in slash form, or "" at
// the root.
func repoPrefix(repo *git.Repository, dir string) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	root, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// Hash returns the resolved commit hash.
func (r *RevisionSource) Hash() string {
	return r.hash.String()
}

// Files lists the files of the revision under the source directory, sorted.
func (r *RevisionSource) Files() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var files []string
	err := r.tree.Files().ForEach(func(f *object.File) error {
		if !f.Mode.IsFile() {
			return nil
		}
		name := f.Name
		if r.prefix != "" {
			if !strings.HasPrefix(name, r.prefix+"/") {
				return nil
			}
			name = strings.TrimPrefix(name, r.prefix+"/")
		}
		files = append(files, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files at %s: %w", r.hash, err)
	}
	slices.Sort(files)
	return files, nil
}

// Read implements ContentSource. A path missing from the revision yields an
// error wrapping fs.ErrNotExist.
func (r *RevisionSource) Read(p string) ([]byte, error) {
	name := filepath.ToSlash(p)
	if r.prefix != "" {
		name = path.Join(r.prefix, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.tree.File(name)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, fmt.Errorf("%s at %s: %w", p, r.hash, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("%s at %s: %w", p, r.hash, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", p, r.hash, err)
	}
	return []byte(content), nil
}
