package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reach/internal/output"
	"github.com/panbanda/reach/pkg/cfg"
	"github.com/panbanda/reach/pkg/parser"
)

func cfgCmd() *cli.Command {
	return &cli.Command{
		Name:      "cfg",
		Usage:     "Print the control flow graph of a Rust function",
		ArgsUsage: "<file> <function>",
		Description: `Lowers every function named <function> in a Rust file and prints its
blocks, terminators and closure captures.

Example:
  reach cfg src/lib.rs parse_header`,
		Action: runCFGCmd,
	}
}

func runCFGCmd(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: reach cfg <file> <function>")
	}
	path, name := c.Args().Get(0), c.Args().Get(1)

	if lang := parser.DetectLanguage(path); lang != parser.LangRust {
		return fmt.Errorf("control flow graphs are built for Rust only, %s is %s", path, lang)
	}

	p := parser.New()
	defer p.Close()
	result, err := p.ParseFile(path)
	if err != nil {
		return err
	}
	defer result.Tree.Close()

	graphs := cfg.BuildNamed(result.Root(), result.Source, name)
	if len(graphs) == 0 {
		return fmt.Errorf("no function named %s in %s", name, path)
	}

	conf, err := loadConfig(c, ".")
	if err != nil {
		return err
	}
	formatter, err := newFormatter(c, conf)
	if err != nil {
		return err
	}
	defer formatter.Close()

	return formatter.Output(output.CFGs(graphs))
}
