// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/reach/pkg/parser"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error { return e.Err }

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e *ProcessingErrors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}

func (e *ProcessingErrors) sort() {
	slices.SortFunc(e.Errors, func(a, b ProcessingError) int {
		return strings.Compare(a.Path, b.Path)
	})
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x suits the mix of file I/O and CGO parsing.
const DefaultWorkerMultiplier = 2

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// Workers resolves a configured worker count; n <= 0 means 2x NumCPU.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU() * DefaultWorkerMultiplier
}

// MapFilesWithContext processes files in parallel. Each worker owns one
// parser for its lifetime, since a tree-sitter parser is not safe for
// concurrent use. Results keep the order of files; files whose fn failed are
// left out and reported in the returned ProcessingErrors, which is nil when
// every file succeeded. Cancellation stops scheduling and records ctx.Err()
// for every file not yet processed.
func MapFilesWithContext[T any](
	ctx context.Context,
	files []string,
	maxWorkers int,
	fn func(*parser.Parser, string) (T, error),
	onProgress ProgressFunc,
) ([]T, *ProcessingErrors) {
	if len(files) == 0 {
		return nil, nil
	}
	maxWorkers = min(Workers(maxWorkers), len(files))

	parsers := make(chan *parser.Parser, maxWorkers)
	for range maxWorkers {
		parsers <- parser.New()
	}
	defer func() {
		close(parsers)
		for psr := range parsers {
			psr.Close()
		}
	}()

	slots := make([]T, len(files))
	ok := make([]bool, len(files))
	errs := &ProcessingErrors{}

	p := pool.New().WithMaxGoroutines(maxWorkers).WithContext(ctx)
	for i, path := range files {
		p.Go(func(ctx context.Context) error {
			if onProgress != nil {
				defer onProgress()
			}
			if err := ctx.Err(); err != nil {
				errs.Add(path, err)
				return nil
			}

			psr := <-parsers
			defer func() { parsers <- psr }()

			result, err := fn(psr, path)
			if err != nil {
				errs.Add(path, err)
				return nil // one bad file never stops the pool
			}
			slots[i], ok[i] = result, true
			return nil
		})
	}
	_ = p.Wait()

	results := make([]T, 0, len(files))
	for i := range slots {
		if ok[i] {
			results = append(results, slots[i])
		}
	}
	if !errs.HasErrors() {
		return results, nil
	}
	errs.sort()
	return results, errs
}
