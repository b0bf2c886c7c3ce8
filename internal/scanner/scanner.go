// Package scanner finds the source files an analysis covers.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/reach/pkg/config"
	"github.com/panbanda/reach/pkg/extract"
	"github.com/panbanda/reach/pkg/parser"
)

// Scanner finds source files in a directory.
type Scanner struct {
	config *config.Config
	// patterns match paths relative to the scan root.
	patterns gitignore.Matcher
	// ignored matches paths relative to gitRoot.
	ignored gitignore.Matcher
	gitRoot string
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg}
}

// findGitRoot finds the root of the git repository by looking for .git.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadExcludePatterns parses config patterns as gitignore syntax and, when
// enabled, reads every .gitignore of the enclosing repository.
func (s *Scanner) loadExcludePatterns(absRoot string) {
	var patterns []gitignore.Pattern
	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}
	if len(patterns) > 0 {
		s.patterns = gitignore.NewMatcher(patterns)
	}

	if !s.config.Exclude.Gitignore {
		return
	}
	s.gitRoot = findGitRoot(absRoot)
	if s.gitRoot == "" {
		return
	}
	if gitPatterns, err := gitignore.ReadPatterns(osfs.New(s.gitRoot), nil); err == nil && len(gitPatterns) > 0 {
		s.ignored = gitignore.NewMatcher(gitPatterns)
	}
}

func splitPath(p string) []string {
	return strings.Split(filepath.ToSlash(p), "/")
}

// isExcluded checks rel (relative to the scan root) and abs against the
// configured patterns, excluded directories and .gitignore files.
func (s *Scanner) isExcluded(rel, abs string, isDir bool) bool {
	if isDir && slices.Contains(s.config.Exclude.Dirs, filepath.Base(rel)) {
		return true
	}
	if s.patterns != nil && s.patterns.Match(splitPath(rel), isDir) {
		return true
	}
	if s.ignored != nil {
		if fromGit, err := filepath.Rel(s.gitRoot, abs); err == nil && !strings.HasPrefix(fromGit, "..") {
			return s.ignored.Match(splitPath(fromGit), isDir)
		}
	}
	return false
}

// Accept reports whether a file path relative to the scan root is analyzed:
// its language is enabled, it is not excluded by name, and tests are
// included or it is not a test file. .gitignore rules are not consulted.
func (s *Scanner) Accept(rel string) bool {
	lang := parser.DetectLanguage(rel)
	if lang == parser.LangUnknown || !s.config.LanguageEnabled(lang) {
		return false
	}
	if !s.config.Analysis.IncludeTests && extract.IsTestFile(filepath.ToSlash(rel)) {
		return false
	}
	if s.config.ShouldExclude(rel) {
		return false
	}
	return s.patterns == nil || !s.patterns.Match(splitPath(rel), false)
}

// ScanDir recursively scans a directory for source files and returns their
// paths sorted. Symlinks that resolve outside root are skipped.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	s.loadExcludePatterns(absRoot)

	files := make([]string, 0, 1024)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, _ := filepath.Rel(root, path)
		if relPath == "." {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		abs := filepath.Join(absRoot, relPath)
		if d.IsDir() {
			if s.isExcluded(relPath, abs, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.isExcluded(relPath, abs, false) || !s.Accept(relPath) {
			return nil
		}
		files = append(files, path)
		return nil
	})

	slices.Sort(files)
	return files, walkErr
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// GroupByLanguage groups files by their detected language.
func GroupByLanguage(files []string) map[parser.Language][]string {
	groups := make(map[parser.Language][]string)
	for _, f := range files {
		lang := parser.DetectLanguage(f)
		if lang != parser.LangUnknown {
			groups[lang] = append(groups[lang], f)
		}
	}
	return groups
}

// FilterBySize filters files that exceed maxSize bytes.
// Returns the filtered list and the count of files that were skipped.
// If maxSize is 0, returns the original list unchanged.
func FilterBySize(files []string, maxSize int64) ([]string, int) {
	if maxSize <= 0 {
		return files, 0
	}

	filtered := make([]string, 0, len(files))
	skipped := 0
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil || info.Size() > maxSize {
			skipped++
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered, skipped
}
