package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reach/internal/output"
	"github.com/panbanda/reach/pkg/engine"
)

func callersCmd() *cli.Command {
	return &cli.Command{
		Name:      "callers",
		Usage:     "List the functions that directly call a function",
		ArgsUsage: "<name> [path]",
		Description: `Matches name against simple names (save) and qualified names
(Repo.save, Store::save) and prints the direct callers of every match.`,
		Flags: []cli.Flag{revFlag()},
		Action: func(c *cli.Context) error {
			return runNeighbors(c, engine.Callers)
		},
	}
}

func calleesCmd() *cli.Command {
	return &cli.Command{
		Name:      "callees",
		Usage:     "List the functions a function directly calls",
		ArgsUsage: "<name> [path]",
		Flags:     []cli.Flag{revFlag()},
		Action: func(c *cli.Context) error {
			return runNeighbors(c, engine.Callees)
		},
	}
}

func runNeighbors(c *cli.Context, dir engine.Direction) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("function name required")
	}
	name := c.Args().First()
	root, cleanup, err := resolveRoot(c, getPath(c, 1))
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

	return formatter.Output(output.Neighbors(name, dir, res.Neighbors(name, dir)))
}
