package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reach/internal/mcpserver"
	"github.com/panbanda/reach/pkg/config"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that exposes reach's call graph
queries as tools that LLMs can invoke.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "reach": {
        "command": "reach",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - analyze_graph     Graph size, resolution by tier, reachability counts
  - find_callers      Direct callers of a function
  - find_callees      Direct callees of a function
  - find_dead_code    Functions no entry point, public API or test reaches
  - validate_graph    Health score, orphans, unresolved calls, recursion cycles`,
		Action: runMCPCmd,
		Subcommands: []*cli.Command{
			{
				Name:   "manifest",
				Usage:  "Print the MCP registry manifest (server.json)",
				Action: runMCPManifestCmd,
			},
		},
	}
}

func runMCPCmd(c *cli.Context) error {
	// Without --config every request loads the config of the tree it names.
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	server := mcpserver.NewServer(version, cfg, slog.Default())
	return server.Run(c.Context)
}

func runMCPManifestCmd(c *cli.Context) error {
	data, err := mcpserver.GenerateManifest(version)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}
