package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reach/internal/output"
)

func deadcodeCmd() *cli.Command {
	return &cli.Command{
		Name:      "deadcode",
		Aliases:   []string{"dc"},
		Usage:     "List functions nothing calls that no entry point convention or export explains",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			revFlag(),
			&cli.Float64Flag{
				Name:  "confidence",
				Value: 0.8,
				Usage: "Minimum confidence threshold (0.0-1.0)",
			},
		},
		Action: runDeadCodeCmd,
	}
}

func runDeadCodeCmd(c *cli.Context) error {
	confidence := c.Float64("confidence")
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("--confidence must be between 0 and 1 (got %g)", confidence)
	}
	root, cleanup, err := resolveRoot(c, getPath(c, 0))
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, err := loadConfig(c, root)
	if err != nil {
		return err
	}
	res, err := analyze(c, root, cfg)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if len(res.Files) == 0 {
		formatter.Warning("No source files found")
		return nil
	}

	dead := res.Dead(confidence)
	if err := formatter.Output(output.DeadCode(dead)); err != nil {
		return err
	}

	if !formatter.Structured() {
		s := res.Reachability.Summary
		fmt.Fprintf(formatter.Writer(), "\nSummary: %d dead functions at confidence >= %.2f (%d unreferenced of %d total)\n",
			len(dead), confidence, s.Unreferenced, s.Total)
	}
	return nil
}
