package main

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reach/internal/output"
)

// errValidationFailed is returned by validate --strict when the graph has
// warnings or errors.
var errValidationFailed = errors.New("call graph validation found issues")

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check the structural health of the call graph",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			revFlag(),
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Exit non-zero when warnings or errors are found",
			},
		},
		Action: runValidateCmd,
	}
}

func runValidateCmd(c *cli.Context) error {
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

	if err := formatter.Output(output.Validation(res.Report)); err != nil {
		return err
	}
	if c.Bool("strict") && res.Report.HasIssues() {
		return errValidationFailed
	}
	return nil
}
