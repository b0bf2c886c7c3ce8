// Package engine runs the two-phase analysis: parallel per-file extraction,
// then single-writer resolution, classification and validation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/panbanda/reach/internal/cache"
	"github.com/panbanda/reach/internal/fileproc"
	"github.com/panbanda/reach/internal/scanner"
	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/config"
	"github.com/panbanda/reach/pkg/extract"
	"github.com/panbanda/reach/pkg/parser"
	"github.com/panbanda/reach/pkg/reachability"
	"github.com/panbanda/reach/pkg/resolve"
	"github.com/panbanda/reach/pkg/source"
	"github.com/panbanda/reach/pkg/validate"
)

// ErrFileTooLarge marks a file skipped for exceeding analysis.max_file_size.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// Progress receives stage progress. Tick may be called concurrently.
type Progress interface {
	Start(label string, total int)
	Tick()
	Finish()
}

type noProgress struct{}

func (noProgress) Start(string, int) {}
func (noProgress) Tick()             {}
func (noProgress) Finish()           {}

// Result is everything one run produces.
type Result struct {
	Root     string
	Revision string
	Files    []*extract.FileFacts
	// FileErrors lists files that could not be read, parsed or extracted.
	FileErrors *fileproc.ProcessingErrors

	Graph        *callgraph.CallGraph
	Registry     *resolve.Registry
	Resolution   *resolve.Result
	Reachability *reachability.Analysis
	Report       *validate.Report

	// Fingerprint digests every input file and the settings; it keys the cache.
	Fingerprint string
	Cached      bool
}

// CFGErrors gathers the CFG invariant violations of every file.
func (r *Result) CFGErrors() []error {
	var out []error
	for _, f := range r.Files {
		out = append(out, f.CFGErrors...)
	}
	return out
}

// Engine wires the analysis stages together according to a Config.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	progress Progress
	cache    *cache.Cache
	revision string
}

// Option is a functional option for configuring Engine.
type Option func(*Engine)

// WithLogger sets the logger for skipped files and CFG violations.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress reports stage progress.
func WithProgress(p Progress) Option {
	return func(e *Engine) {
		if p != nil {
			e.progress = p
		}
	}
}

// WithCache reuses and stores finished graphs.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// OpenCache opens the snapshot cache cfg describes. A relative cache.dir is
// resolved against root.
func OpenCache(root string, cfg *config.Config) (*cache.Cache, error) {
	dir := cfg.Cache.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return cache.New(dir, cfg.Cache.Enabled)
}

// WithRevision analyzes files at a git revision instead of the working tree.
func WithRevision(rev string) Option {
	return func(e *Engine) {
		e.revision = rev
	}
}

// New creates an Engine. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		cfg:      cfg,
		logger:   slog.Default(),
		progress: noProgress{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Run analyzes the tree rooted at root.
func (e *Engine) Run(ctx context.Context, root string) (*Result, error) {
	src, files, err := e.discover(root)
	if err != nil {
		return nil, err
	}
	facts, errs := e.Extract(ctx, src, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := e.Build(ctx, facts)
	if err != nil {
		return nil, err
	}
	res.Root = root
	res.Revision = e.revision
	res.FileErrors = errs
	return res, nil
}

// discover lists the files to analyze as slash paths relative to root,
// together with the source that reads them.
func (e *Engine) discover(root string) (source.ContentSource, []string, error) {
	sc := scanner.NewScanner(e.cfg)

	if e.revision != "" {
		rs, err := source.OpenRevision(root, e.revision)
		if err != nil {
			return nil, nil, err
		}
		all, err := rs.Files()
		if err != nil {
			return nil, nil, err
		}
		files := make([]string, 0, len(all))
		for _, f := range all {
			if sc.Accept(f) {
				files = append(files, f)
			}
		}
		e.logger.Debug("listed revision", slog.String("revision", rs.Hash()), slog.Int("files", len(files)))
		return rs, files, nil
	}

	paths, err := sc.ScanDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}
	paths, skipped := scanner.FilterBySize(paths, e.cfg.Analysis.MaxFileSize)
	if skipped > 0 {
		e.logger.Warn("skipped large files", slog.Int("count", skipped), slog.Int64("max_file_size", e.cfg.Analysis.MaxFileSize))
	}
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil, nil, fmt.Errorf("relativize %s: %w", p, err)
		}
		files = append(files, filepath.ToSlash(rel))
	}
	return source.NewFilesystem(root), files, nil
}

// Extractor builds the extractor the configuration describes.
func (e *Engine) Extractor() *extract.Extractor {
	return extract.New(
		extract.WithEntryPoints(e.cfg.Reachability.EntryPoints),
		extract.WithObserverCollections(e.cfg.Reachability.ObserverCollections),
	)
}

// Extract is phase one. Each file is read, parsed and walked independently
// on a worker pool; no worker sees another file's facts. Failures are
// logged and returned, never fatal.
func (e *Engine) Extract(ctx context.Context, src source.ContentSource, files []string) ([]*extract.FileFacts, *fileproc.ProcessingErrors) {
	x := e.Extractor()
	maxSize := e.cfg.Analysis.MaxFileSize

	e.progress.Start("Extracting", len(files))
	facts, errs := fileproc.MapFilesWithContext(ctx, files, e.cfg.WorkerCount(),
		func(p *parser.Parser, rel string) (*extract.FileFacts, error) {
			content, err := src.Read(rel)
			if err != nil {
				return nil, err
			}
			if maxSize > 0 && int64(len(content)) > maxSize {
				return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(content))
			}
			result, err := p.ParseSource(content, rel)
			if err != nil {
				return nil, err
			}
			defer result.Tree.Close()
			f, err := x.Extract(result, rel)
			if err != nil {
				return nil, err
			}
			f.Hash = cache.HashBytes(content)
			return f, nil
		}, e.progress.Tick)
	e.progress.Finish()

	if errs != nil {
		for _, pe := range errs.Errors {
			if errors.Is(pe.Err, context.Canceled) || errors.Is(pe.Err, context.DeadlineExceeded) {
				continue
			}
			e.logger.Warn("skipped file", slog.String("path", pe.Path), slog.String("error", pe.Err.Error()))
		}
	}
	return facts, errs
}

// Build is phase two: it registers every function, then resolves, classifies
// and validates. The graph has a single writer throughout.
func (e *Engine) Build(ctx context.Context, facts []*extract.FileFacts) (*Result, error) {
	minConf, err := e.cfg.MinConfidence()
	if err != nil {
		return nil, err
	}
	reg := resolve.NewRegistry(facts)
	out := &Result{Files: reg.Files(), Registry: reg}

	for _, err := range out.CFGErrors() {
		e.logger.Error("cfg invariant violated", slog.String("error", err.Error()))
	}

	salt, err := e.cfg.WriteTOML()
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(out.Files))
	for _, f := range out.Files {
		hashes[f.Path] = f.Hash
	}
	out.Fingerprint = cache.Key(salt, hashes)

	if e.cache != nil {
		if g, res, ok := e.cache.Get(out.Fingerprint); ok {
			e.logger.Debug("cache hit", slog.String("key", out.Fingerprint))
			out.Graph, out.Resolution, out.Cached = g, res, true
			e.Evaluate(out)
			return out, nil
		}
	}

	g := callgraph.New()
	for _, f := range out.Files {
		for _, d := range f.Functions {
			g.AddFunction(d.Node())
		}
	}

	e.progress.Start("Resolving", -1)
	res, err := resolve.New(
		resolve.WithNameOnlyFallback(e.cfg.Resolve.NameOnlyFallback),
		resolve.WithMaxNameCandidates(e.cfg.Resolve.MaxNameCandidates),
		resolve.WithMinConfidence(minConf),
		resolve.WithWorkers(e.cfg.WorkerCount()),
	).Resolve(ctx, g, reg)
	e.progress.Finish()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	out.Graph, out.Resolution = g, res

	e.logger.Debug("resolved call sites",
		slog.Int("sites", res.Sites),
		slog.Int("resolved", res.Resolved),
		slog.Int("unresolved", len(res.Unresolved)),
		slog.Int("edges", res.Edges))

	if e.cache != nil {
		if err := e.cache.Put(out.Fingerprint, g, res); err != nil {
			e.logger.Warn("cache write failed", slog.String("error", err.Error()))
		}
	}
	e.Evaluate(out)
	return out, nil
}

// Evaluate classifies and validates a built graph. Registry and Resolution
// may be nil, as for a graph loaded from a snapshot.
func (e *Engine) Evaluate(r *Result) {
	minConf, err := e.cfg.MinConfidence()
	if err != nil {
		minConf = resolve.Medium
	}
	r.Reachability = reachability.New(reachability.WithMinConfidence(minConf)).
		Classify(r.Graph, r.Registry, r.Resolution)

	v := validate.New(
		validate.WithTraceFunctions(e.cfg.Validate.TraceFunctions),
		validate.WithUnresolvedRatioThreshold(e.cfg.Validate.UnresolvedRatioThreshold),
		validate.WithPenalties(e.cfg.Validate.OrphanPenalty, e.cfg.Validate.UnresolvedPenalty),
		validate.WithLogger(e.logger),
	)
	r.Report = v.Validate(validate.Input{
		Graph:        r.Graph,
		Resolution:   r.Resolution,
		Reachability: r.Reachability,
		CFGErrors:    r.CFGErrors(),
	})
}

// FromGraph wraps a loaded snapshot in a Result and evaluates it without
// registry or resolution information.
func (e *Engine) FromGraph(g *callgraph.CallGraph) *Result {
	r := &Result{Graph: g}
	e.Evaluate(r)
	return r
}
