package mcpserver

import (
	"bytes"
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/reach/internal/output"
	"github.com/panbanda/reach/pkg/config"
	"github.com/panbanda/reach/pkg/engine"
	"github.com/panbanda/reach/pkg/reachability"
	"github.com/panbanda/reach/pkg/validate"
)

// AnalyzeInput is the base input for all tools.
type AnalyzeInput struct {
	Path     string `json:"path,omitempty" jsonschema:"Root of the tree to analyze. Defaults to the current directory."`
	Revision string `json:"revision,omitempty" jsonschema:"Git revision to analyze instead of the working tree."`
	Format   string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, yaml, or markdown."`
}

// QueryInput names the function whose neighbors are listed.
type QueryInput struct {
	AnalyzeInput
	Name string `json:"name" jsonschema:"Function name to look up. Matches the simple name (helper) or the qualified name (Type::helper)."`
}

// DeadCodeInput adds dead-code options.
type DeadCodeInput struct {
	AnalyzeInput
	Confidence float64 `json:"confidence,omitempty" jsonschema:"Minimum confidence (0.0-1.0) a dead verdict must reach. Default 0.5."`
}

// ValidateInput adds validation options.
type ValidateInput struct {
	AnalyzeInput
	IncludeInfo bool `json:"include_info,omitempty" jsonschema:"Include informational issues such as recursion cycles."`
}

func getPath(input AnalyzeInput) string {
	if input.Path == "" {
		return "."
	}
	return input.Path
}

func getFormat(input AnalyzeInput) output.Format {
	switch strings.ToLower(input.Format) {
	case "json":
		return output.FormatJSON
	case "yaml", "yml":
		return output.FormatYAML
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func formatOutput(data any, format output.Format) (string, error) {
	var buf bytes.Buffer
	switch format {
	case output.FormatMarkdown:
		if err := output.Encode(&buf, output.FormatTOON, data); err != nil {
			return "", err
		}
		return "```\n" + strings.TrimRight(buf.String(), "\n") + "\n```", nil
	default:
		if err := output.Encode(&buf, format, data); err != nil {
			return "", err
		}
		return strings.TrimRight(buf.String(), "\n"), nil
	}
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

// analyze runs the engine over the tree input names. Results come from the
// snapshot cache when nothing changed since the previous call.
func (s *Server) analyze(ctx context.Context, input AnalyzeInput) (*engine.Result, error) {
	root := getPath(input)
	cfg := s.config
	if cfg == nil {
		loaded, _, err := config.LoadOrDefault(root)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	c, err := engine.OpenCache(root, cfg)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{engine.WithLogger(s.logger), engine.WithCache(c)}
	if input.Revision != "" {
		opts = append(opts, engine.WithRevision(input.Revision))
	}
	return engine.New(cfg, opts...).Run(ctx, root)
}

// Tool handlers

func (s *Server) handleAnalyzeGraph(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeInput) (*mcp.CallToolResult, any, error) {
	res, err := s.analyze(ctx, input)
	if err != nil {
		return toolError(err.Error())
	}
	if len(res.Files) == 0 {
		return toolError("no source files found")
	}
	return toolResult(output.Summary(res).RenderData(), getFormat(input))
}

func (s *Server) handleFindCallers(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, any, error) {
	return s.neighbors(ctx, input, engine.Callers)
}

func (s *Server) handleFindCallees(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, any, error) {
	return s.neighbors(ctx, input, engine.Callees)
}

func (s *Server) neighbors(ctx context.Context, input QueryInput, dir engine.Direction) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return toolError("name is required")
	}
	res, err := s.analyze(ctx, input.AnalyzeInput)
	if err != nil {
		return toolError(err.Error())
	}
	hoods := res.Neighbors(input.Name, dir)
	if len(hoods) == 0 {
		return toolError("no function named " + input.Name)
	}
	return toolResult(hoods, getFormat(input.AnalyzeInput))
}

func (s *Server) handleFindDeadCode(ctx context.Context, req *mcp.CallToolRequest, input DeadCodeInput) (*mcp.CallToolResult, any, error) {
	minConfidence := input.Confidence
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	if minConfidence > 1 {
		return toolError("confidence must be between 0 and 1")
	}
	res, err := s.analyze(ctx, input.AnalyzeInput)
	if err != nil {
		return toolError(err.Error())
	}
	dead := res.Dead(minConfidence)
	if dead == nil {
		dead = []reachability.Classification{}
	}
	out := struct {
		Dead    []reachability.Classification `json:"dead"`
		Summary reachability.Summary          `json:"summary"`
	}{dead, res.Reachability.Summary}
	return toolResult(out, getFormat(input.AnalyzeInput))
}

func (s *Server) handleValidateGraph(ctx context.Context, req *mcp.CallToolRequest, input ValidateInput) (*mcp.CallToolResult, any, error) {
	res, err := s.analyze(ctx, input.AnalyzeInput)
	if err != nil {
		return toolError(err.Error())
	}
	report := *res.Report
	if !input.IncludeInfo {
		report.Issues = make([]validate.Issue, 0, len(res.Report.Issues))
		for _, is := range res.Report.Issues {
			if is.Severity != validate.SeverityInfo {
				report.Issues = append(report.Issues, is)
			}
		}
	}
	out := struct {
		HasIssues bool            `json:"has_issues"`
		Report    validate.Report `json:"report"`
	}{res.Report.HasIssues(), report}
	return toolResult(out, getFormat(input.AnalyzeInput))
}
