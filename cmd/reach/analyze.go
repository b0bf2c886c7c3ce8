package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/reach/internal/output"
	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/engine"
)

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"a"},
		Usage:     "Build the call graph and summarize resolution and reachability",
		ArgsUsage: "[path]",
		Description: `Builds the call graph of the tree at path and prints a summary.

Examples:
  reach analyze                      # Analyze the current directory
  reach analyze --rev v1.2.0 .       # Analyze a git revision
  reach analyze --save graph.json    # Persist the graph
  reach analyze --load graph.json    # Evaluate a saved graph without parsing`,
		Flags: []cli.Flag{
			revFlag(),
			&cli.StringFlag{
				Name:  "save",
				Usage: "Write the call graph snapshot to a file",
			},
			&cli.StringFlag{
				Name:  "load",
				Usage: "Read a call graph snapshot instead of analyzing sources",
			},
		},
		Action: runAnalyzeCmd,
	}
}

func runAnalyzeCmd(c *cli.Context) error {
	root, cleanup, err := resolveRoot(c, getPath(c, 0))
	if err != nil {
		return err
	}
	defer cleanup()
	cfg, err := loadConfig(c, root)
	if err != nil {
		return err
	}

	var res *engine.Result
	if path := c.String("load"); path != "" {
		g, err := loadSnapshot(path)
		if err != nil {
			return err
		}
		res = engine.New(cfg).FromGraph(g)
	} else {
		res, err = analyze(c, root, cfg)
		if err != nil {
			return err
		}
		if len(res.Files) == 0 {
			color.Yellow("No source files found")
			return nil
		}
	}

	if path := c.String("save"); path != "" {
		if err := saveSnapshot(path, res.Graph); err != nil {
			return err
		}
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(output.Summary(res)); err != nil {
		return err
	}
	if path := c.String("save"); path != "" && !formatter.Structured() {
		formatter.Success("Saved graph to %s", path)
	}
	return nil
}

func saveSnapshot(path string, g *callgraph.CallGraph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := g.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	return f.Close()
}

func loadSnapshot(path string) (*callgraph.CallGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	g, err := callgraph.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return g, nil
}
