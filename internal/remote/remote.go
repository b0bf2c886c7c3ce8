// Package remote clones repositories named on the command line so they can
// be analyzed like a local tree.
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Source represents a remote repository to analyze.
type Source struct {
	URL      string // normalized git URL
	Ref      string // branch, tag, or SHA (empty = default branch)
	CloneDir string // temp directory after clone
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// Parse detects if a path is a remote reference.
// Returns nil if path exists on filesystem (local path takes precedence).
func Parse(path string) (*Source, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, nil
	}

	// SSH URLs carry an @ before the host; only a later @ starts a ref.
	ref := ""
	if idx := strings.LastIndex(path, "@"); idx != -1 && !isSSHUserOnly(path, idx) {
		ref = path[idx+1:]
		if ref == "" {
			return nil, fmt.Errorf("empty ref in %q", path)
		}
		path = path[:idx]
	}

	switch {
	case strings.HasPrefix(path, "https://"), strings.HasPrefix(path, "http://"):
		return &Source{URL: path, Ref: ref}, nil
	case strings.HasPrefix(path, "git@"), strings.HasPrefix(path, "ssh://"):
		return &Source{URL: path, Ref: ref}, nil
	case isHostPath(path):
		return &Source{URL: "https://" + path, Ref: ref}, nil
	case isGitHubShorthand(path):
		return &Source{URL: "https://github.com/" + path, Ref: ref}, nil
	}
	return nil, nil
}

// isSSHUserOnly reports whether the @ at idx separates the user from the
// host of an scp-style URL rather than a ref.
func isSSHUserOnly(path string, idx int) bool {
	return strings.HasPrefix(path, "git@") && idx == len("git")
}

// isHostPath matches host/owner/repo where the host contains a dot.
func isHostPath(path string) bool {
	parts := strings.Split(path, "/")
	return len(parts) >= 3 && strings.Contains(parts[0], ".") && parts[1] != "" && parts[2] != ""
}

// isGitHubShorthand returns true if path matches owner/repo pattern.
func isGitHubShorthand(path string) bool {
	slashIdx := strings.Index(path, "/")
	if slashIdx == -1 {
		return false
	}
	if strings.Count(path, "/") != 1 {
		return false
	}
	// No dots before the slash (would indicate a domain)
	if strings.Contains(path[:slashIdx], ".") {
		return false
	}
	return slashIdx > 0 && slashIdx < len(path)-1
}

// Clone fetches the repository into a temporary directory and checks out
// Ref. A shallow clone fetches only the tip of a branch or tag; commit
// hashes always need the full history.
func (s *Source) Clone(ctx context.Context, progress io.Writer, shallow bool) error {
	dir, err := os.MkdirTemp("", "reach-clone-*")
	if err != nil {
		return fmt.Errorf("create clone dir: %w", err)
	}
	s.CloneDir = dir

	opts := &git.CloneOptions{URL: s.URL, Progress: progress}
	if shallow && !hashPattern.MatchString(s.Ref) {
		opts.Depth = 1
		opts.SingleBranch = true
	}

	switch {
	case s.Ref == "":
		_, err = git.PlainCloneContext(ctx, dir, false, opts)
	case hashPattern.MatchString(s.Ref):
		err = s.cloneHash(ctx, opts)
	default:
		err = s.cloneNamed(ctx, opts)
	}
	if err != nil {
		s.Cleanup()
		return fmt.Errorf("clone %s: %w", s.URL, err)
	}
	return nil
}

func (s *Source) cloneHash(ctx context.Context, opts *git.CloneOptions) error {
	repo, err := git.PlainCloneContext(ctx, s.CloneDir, false, opts)
	if err != nil {
		return err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(s.Ref))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.Ref, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Checkout(&git.CheckoutOptions{Hash: *hash})
}

// cloneNamed tries Ref as a branch, then as a tag.
func (s *Source) cloneNamed(ctx context.Context, opts *git.CloneOptions) error {
	var err error
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(s.Ref),
		plumbing.NewTagReferenceName(s.Ref),
	} {
		opts.ReferenceName = name
		if _, err = git.PlainCloneContext(ctx, s.CloneDir, false, opts); err == nil {
			return nil
		}
		if rmErr := os.RemoveAll(s.CloneDir); rmErr != nil {
			return rmErr
		}
		if mkErr := os.MkdirAll(s.CloneDir, 0o755); mkErr != nil {
			return mkErr
		}
	}
	return fmt.Errorf("ref %s not found: %w", s.Ref, err)
}

// Cleanup removes the clone directory.
func (s *Source) Cleanup() error {
	if s.CloneDir == "" {
		return nil
	}
	err := os.RemoveAll(s.CloneDir)
	s.CloneDir = ""
	return err
}
