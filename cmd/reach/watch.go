package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/reach/internal/output"
	"github.com/panbanda/reach/pkg/config"
	"github.com/panbanda/reach/pkg/watch"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Watch for file changes and re-analyze",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Value: watch.DefaultDebounce,
				Usage: "Quiet period before a burst of changes is analyzed",
			},
		},
		Action: runWatchCmd,
	}
}

func runWatchCmd(c *cli.Context) error {
	absPath, err := filepath.Abs(getPath(c, 0))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	cfg, err := loadConfig(c, absPath)
	if err != nil {
		return err
	}

	watcher, err := watch.NewWatcher(absPath, cfg,
		watch.WithDebounce(c.Duration("debounce")),
		watch.WithLogger(slog.Default()),
		watch.WithOutput(c.App.Writer),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Stop()

	if err := reanalyze(c, absPath, cfg); err != nil {
		return err
	}

	watcher.SetCallback(func(ctx context.Context, changed []string) {
		if err := reanalyze(c, absPath, cfg); err != nil {
			color.Red("Analysis error: %v", err)
		}
	})

	err = watcher.Start(c.Context)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reanalyze runs the engine and prints the summary and validation report.
func reanalyze(c *cli.Context, root string, cfg *config.Config) error {
	res, err := analyze(c, root, cfg)
	if err != nil {
		return err
	}
	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(output.Summary(res)); err != nil {
		return err
	}
	return formatter.Output(output.Validation(res.Report))
}
