package fileproc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/reach/pkg/parser"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMapFilesKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.rs", "b.py", "c.ts", "d.js", "e.rs", "f.py"} {
		files = append(files, createTestFile(t, dir, name, ""))
	}

	results, errs := MapFilesWithContext(context.Background(), files, 3, func(_ *parser.Parser, path string) (string, error) {
		return filepath.Base(path), nil
	}, nil)

	assert.Nil(t, errs)
	assert.Equal(t, []string{"a.rs", "b.py", "c.ts", "d.js", "e.rs", "f.py"}, results)
}

func TestMapFilesParsesWithWorkerParser(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		createTestFile(t, dir, "main.rs", "fn main() { helper(); }\nfn helper() {}\n"),
		createTestFile(t, dir, "app.py", "def run():\n    pass\n"),
	}

	langs, errs := MapFilesWithContext(context.Background(), files, 0, func(p *parser.Parser, path string) (parser.Language, error) {
		result, err := p.ParseFile(path)
		if err != nil {
			return parser.LangUnknown, err
		}
		return result.Language, nil
	}, nil)

	assert.Nil(t, errs)
	assert.Equal(t, []parser.Language{parser.LangRust, parser.LangPython}, langs)
}

func TestMapFilesCollectsErrors(t *testing.T) {
	errBroken := errors.New("broken")
	files := []string{"ok1.rs", "bad2.rs", "ok3.rs", "bad1.rs"}

	var progress atomic.Int32
	results, errs := MapFilesWithContext(context.Background(), files, 2, func(_ *parser.Parser, path string) (string, error) {
		if path[:3] == "bad" {
			return "", errBroken
		}
		return path, nil
	}, func() { progress.Add(1) })

	assert.Equal(t, []string{"ok1.rs", "ok3.rs"}, results)
	require.NotNil(t, errs)
	require.Len(t, errs.Errors, 2)
	assert.Equal(t, "bad1.rs", errs.Errors[0].Path)
	assert.Equal(t, "bad2.rs", errs.Errors[1].Path)
	assert.ErrorIs(t, errs, errBroken)
	assert.Contains(t, errs.Error(), "2 files failed")
	assert.Equal(t, int32(len(files)), progress.Load())
}

func TestMapFilesEmpty(t *testing.T) {
	results, errs := MapFilesWithContext(context.Background(), nil, 4, func(_ *parser.Parser, path string) (string, error) {
		return path, nil
	}, nil)
	assert.Nil(t, results)
	assert.Nil(t, errs)
}

func TestMapFilesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	files := []string{"a.rs", "b.rs", "c.rs"}
	results, errs := MapFilesWithContext(ctx, files, 1, func(_ *parser.Parser, path string) (string, error) {
		calls.Add(1)
		return path, nil
	}, nil)

	assert.Empty(t, results)
	require.NotNil(t, errs)
	assert.Len(t, errs.Errors, len(files))
	assert.ErrorIs(t, errs, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestMapFilesRespectsWorkerLimit(t *testing.T) {
	files := make([]string, 20)
	for i := range files {
		files[i] = filepath.Join("src", string(rune('a'+i))+".rs")
	}

	var mu sync.Mutex
	active, peak := 0, 0
	_, errs := MapFilesWithContext(context.Background(), files, 2, func(_ *parser.Parser, path string) (string, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
		return path, nil
	}, nil)

	assert.Nil(t, errs)
	assert.LessOrEqual(t, peak, 2)
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Workers(3))
	assert.Positive(t, Workers(0))
	assert.Equal(t, Workers(0), Workers(-1))
}
