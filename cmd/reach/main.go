package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/reach/internal/output"
	"github.com/panbanda/reach/internal/progress"
	"github.com/panbanda/reach/internal/remote"
	"github.com/panbanda/reach/pkg/config"
	"github.com/panbanda/reach/pkg/engine"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "reach",
		Usage:    "Call graphs and reachability for Rust, Python, JavaScript and TypeScript",
		Version:  version,
		Metadata: make(map[string]interface{}),
		Description: `reach builds a call graph of a source tree, resolves calls across files,
classifies every function as live or dead, and checks the graph's health.

Supports: Rust, Python, JavaScript, TypeScript`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"REACH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, yaml, markdown, toon (default from config)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the snapshot cache",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Hide progress bars",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.StringFlag{
				Name:  "pprof",
				Usage: "Enable pprof profiling and write to specified prefix (creates <prefix>.cpu.pprof and <prefix>.mem.pprof)",
			},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelWarn
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})))
			if c.Bool("no-color") {
				color.NoColor = true
			}

			if pprofPrefix := c.String("pprof"); pprofPrefix != "" {
				cpuFile, err := os.Create(pprofPrefix + ".cpu.pprof")
				if err != nil {
					return fmt.Errorf("failed to create CPU profile: %w", err)
				}
				if err := pprof.StartCPUProfile(cpuFile); err != nil {
					cpuFile.Close()
					return fmt.Errorf("failed to start CPU profile: %w", err)
				}
				c.App.Metadata["pprofCPU"] = cpuFile
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if pprofPrefix := c.String("pprof"); pprofPrefix != "" {
				pprof.StopCPUProfile()
				if cpuFile, ok := c.App.Metadata["pprofCPU"].(*os.File); ok {
					cpuFile.Close()
					color.Green("CPU profile written to %s.cpu.pprof", pprofPrefix)
				}

				memFile, err := os.Create(pprofPrefix + ".mem.pprof")
				if err != nil {
					return fmt.Errorf("failed to create memory profile: %w", err)
				}
				defer memFile.Close()

				runtime.GC()
				if err := pprof.WriteHeapProfile(memFile); err != nil {
					return fmt.Errorf("failed to write memory profile: %w", err)
				}
				color.Green("Memory profile written to %s.mem.pprof", pprofPrefix)
			}
			return nil
		},
		Commands: []*cli.Command{
			analyzeCmd(),
			callersCmd(),
			calleesCmd(),
			deadcodeCmd(),
			validateCmd(),
			cfgCmd(),
			watchCmd(),
			mcpCmd(),
			initCmd(),
			configCmd(),
		},
	}
}

// getPath returns the tree root from the first positional arg, defaulting to ".".
func getPath(c *cli.Context, index int) string {
	if c.Args().Len() > index {
		return c.Args().Get(index)
	}
	return "."
}

// loadConfig reads --config if set, otherwise the first config found under
// root. Global flags override file settings.
func loadConfig(c *cli.Context, root string) (*config.Config, error) {
	var (
		cfg    *config.Config
		source string
		err    error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		source = path
	} else {
		cfg, source, err = config.LoadOrDefault(root)
	}
	if err != nil {
		return nil, err
	}
	if source != "" {
		slog.Debug("loaded config", slog.String("path", source))
	}
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if c.Bool("no-color") {
		cfg.Output.Color = false
	}
	return cfg, nil
}

// newFormatter writes to --output, or to the app writer when unset.
func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	name := c.String("format")
	if name == "" {
		name = cfg.Output.Format
	}
	format := output.ParseFormat(name)
	colored := cfg.Output.Color && !color.NoColor
	if path := c.String("output"); path != "" {
		return output.NewFormatter(format, path, false)
	}
	return output.NewWriterFormatter(format, c.App.Writer, colored), nil
}

// engineOptions builds the options every analyzing command shares.
func engineOptions(c *cli.Context, root string, cfg *config.Config) ([]engine.Option, error) {
	opts := []engine.Option{engine.WithLogger(slog.Default())}

	cache, err := engine.OpenCache(root, cfg)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	opts = append(opts, engine.WithCache(cache))

	if !c.Bool("no-progress") && !c.Bool("verbose") {
		opts = append(opts, engine.WithProgress(progress.NewStages()))
	}
	if c.IsSet("rev") && c.String("rev") != "" {
		opts = append(opts, engine.WithRevision(c.String("rev")))
	}
	return opts, nil
}

// analyze runs the engine over the tree at root.
func analyze(c *cli.Context, root string, cfg *config.Config) (*engine.Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid path %s: %w", root, err)
	}
	opts, err := engineOptions(c, absRoot, cfg)
	if err != nil {
		return nil, err
	}
	res, err := engine.New(cfg, opts...).Run(c.Context, absRoot)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	if res.FileErrors != nil && res.FileErrors.HasErrors() {
		slog.Warn("some files were skipped", slog.Int("count", len(res.FileErrors.Errors)))
	}
	return res, nil
}

// resolveRoot clones arg when it names a remote repository and returns the
// directory to analyze with a function that removes the clone.
func resolveRoot(c *cli.Context, arg string) (string, func(), error) {
	src, err := remote.Parse(arg)
	if err != nil {
		return "", nil, err
	}
	if src == nil {
		return arg, func() {}, nil
	}

	var progressOut io.Writer = io.Discard
	if !c.Bool("no-progress") {
		progressOut = c.App.ErrWriter
	}
	slog.Info("cloning repository", slog.String("url", src.URL), slog.String("ref", src.Ref))
	if err := src.Clone(c.Context, progressOut, true); err != nil {
		return "", nil, err
	}
	return src.CloneDir, func() {
		if err := src.Cleanup(); err != nil {
			slog.Warn("remove clone", slog.String("dir", src.CloneDir), slog.String("error", err.Error()))
		}
	}, nil
}

// revFlag selects a git revision instead of the working tree.
func revFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "rev",
		Usage: "Analyze files at a git revision instead of the working tree",
	}
}
