package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/cfg"
	"github.com/panbanda/reach/pkg/engine"
	"github.com/panbanda/reach/pkg/reachability"
	"github.com/panbanda/reach/pkg/resolve"
	"github.com/panbanda/reach/pkg/validate"
)

var printer = message.NewPrinter(language.English)

// count formats n with thousands separators.
func count(n int) string {
	return printer.Sprintf("%d", n)
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func location(id callgraph.FunctionID) string {
	return id.File + ":" + strconv.Itoa(id.Line)
}

// ResolutionData is the serializable form of a resolution pass.
type ResolutionData struct {
	Sites           int            `json:"sites"`
	Resolved        int            `json:"resolved"`
	Unresolved      int            `json:"unresolved"`
	Edges           int            `json:"edges"`
	External        int            `json:"external"`
	Ambiguous       int            `json:"ambiguous"`
	ByTier          map[string]int `json:"by_tier"`
	UnresolvedRatio float64        `json:"unresolved_ratio"`
}

func resolutionData(res *resolve.Result) *ResolutionData {
	if res == nil {
		return nil
	}
	byTier := make(map[string]int, len(res.ByTier))
	for tier, n := range res.ByTier {
		byTier[tier.String()] = n
	}
	return &ResolutionData{
		Sites:           res.Sites,
		Resolved:        res.Resolved,
		Unresolved:      len(res.Unresolved),
		Edges:           res.Edges,
		External:        res.External,
		Ambiguous:       res.Ambiguous,
		ByTier:          byTier,
		UnresolvedRatio: res.UnresolvedRatio(),
	}
}

// SummaryData is the serializable form of an analysis run.
type SummaryData struct {
	Root         string               `json:"root,omitempty"`
	Revision     string               `json:"revision,omitempty"`
	Files        int                  `json:"files"`
	SkippedFiles int                  `json:"skipped_files"`
	Functions    int                  `json:"functions"`
	Edges        int                  `json:"edges"`
	Cached       bool                 `json:"cached"`
	Fingerprint  string               `json:"fingerprint,omitempty"`
	Resolution   *ResolutionData      `json:"resolution,omitempty"`
	Reachability reachability.Summary `json:"reachability"`
	HealthScore  int                  `json:"health_score"`
}

// Summary renders the overview of an analysis run.
func Summary(res *engine.Result) *Report {
	data := SummaryData{
		Root:        res.Root,
		Revision:    res.Revision,
		Files:       len(res.Files),
		Functions:   res.Graph.NodeCount(),
		Edges:       res.Graph.EdgeCount(),
		Cached:      res.Cached,
		Fingerprint: res.Fingerprint,
		Resolution:  resolutionData(res.Resolution),
	}
	if res.FileErrors != nil {
		data.SkippedFiles = len(res.FileErrors.Errors)
	}
	if res.Reachability != nil {
		data.Reachability = res.Reachability.Summary
	}
	if res.Report != nil {
		data.HealthScore = res.Report.HealthScore
	}

	var lines []string
	if data.Root != "" {
		lines = append(lines, "Root:        "+data.Root)
	}
	if data.Revision != "" {
		lines = append(lines, "Revision:    "+data.Revision)
	}
	lines = append(lines,
		"Files:       "+count(data.Files),
		"Functions:   "+count(data.Functions),
		"Edges:       "+count(data.Edges),
		"Health:      "+strconv.Itoa(data.HealthScore)+"/100",
	)
	if data.SkippedFiles > 0 {
		lines = append(lines, "Skipped:     "+count(data.SkippedFiles)+" files")
	}
	if data.Cached {
		lines = append(lines, "Cache:       hit")
	}

	report := &Report{
		Title:    "Call Graph Summary",
		Sections: []Renderable{&Section{Content: strings.Join(lines, "\n")}},
		Data:     data,
	}

	if r := data.Resolution; r != nil {
		rows := [][]string{
			{"call sites", count(r.Sites)},
			{"resolved", count(r.Resolved)},
			{"unresolved", count(r.Unresolved) + " (" + percent(r.UnresolvedRatio) + ")"},
			{"external", count(r.External)},
			{"ambiguous", count(r.Ambiguous)},
		}
		for tier := resolve.TierSameFile; tier <= resolve.TierNameOnly; tier++ {
			rows = append(rows, []string{"via " + tier.String(), count(r.ByTier[tier.String()])})
		}
		report.Sections = append(report.Sections, NewTable("Resolution", []string{"Metric", "Count"}, rows, nil, nil))
	}

	s := data.Reachability
	report.Sections = append(report.Sections, NewTable("Reachability",
		[]string{"Status", "Functions"},
		[][]string{
			{"entry points", count(s.EntryPoints)},
			{"live", count(s.Live)},
			{"public api", count(s.PublicAPI)},
			{"tests", count(s.Tests)},
			{"test only", count(s.TestOnly)},
			{"unreferenced", count(s.Unreferenced)},
		},
		[]string{"total", count(s.Total)},
		nil,
	))
	return report
}

// DeadCode renders dead-code candidates as a table.
func DeadCode(items []reachability.Classification) *Table {
	if items == nil {
		items = []reachability.Classification{}
	}
	rows := make([][]string, len(items))
	for i, c := range items {
		rows[i] = []string{
			location(c.ID),
			c.ID.Name,
			fmt.Sprintf("%.2f", c.Confidence),
			string(c.ConfidenceLevel),
			c.Reason,
		}
	}
	return NewTable(
		"Dead Code",
		[]string{"Location", "Function", "Confidence", "Level", "Reason"},
		rows,
		[]string{"", count(len(items)) + " functions", "", "", ""},
		items,
	)
}

// Neighbors renders a callers or callees query.
func Neighbors(query string, dir engine.Direction, hoods []engine.Neighborhood) *Report {
	if hoods == nil {
		hoods = []engine.Neighborhood{}
	}
	report := &Report{
		Title: fmt.Sprintf("%s of %s", cases.Title(language.English).String(string(dir)), query),
		Data:  hoods,
	}
	if len(hoods) == 0 {
		report.Sections = append(report.Sections, &Section{Content: "no function named " + query})
		return report
	}
	for _, h := range hoods {
		rows := make([][]string, len(h.Neighbors))
		for i, n := range h.Neighbors {
			rows[i] = []string{location(n.ID), n.ID.Name, n.CallType.String()}
		}
		title := fmt.Sprintf("%s (%s, %s)", h.Function.Name, location(h.Function), h.Status)
		report.Sections = append(report.Sections,
			NewTable(title, []string{"Location", "Function", "Call Type"}, rows, nil, h))
	}
	return report
}

// Validation renders a validator report.
func Validation(r *validate.Report) Renderable {
	return &validationView{report: r}
}

type validationView struct {
	report *validate.Report
}

func (v *validationView) RenderData() any { return v.report }

func (v *validationView) statsRows() [][]string {
	s := v.report.Stats
	return [][]string{
		{"functions", count(s.Functions)},
		{"edges", count(s.Edges)},
		{"entry points", count(s.EntryPoints)},
		{"orphans", count(s.Orphans)},
		{"resolved calls", count(s.ResolvedCalls)},
		{"unresolved calls", count(s.UnresolvedCalls) + " (" + percent(s.UnresolvedRatio) + ")"},
		{"cfg errors", count(s.CFGErrors)},
		{"recursion cycles", count(s.Cycles)},
		{"unreferenced", count(s.Unreferenced)},
	}
}

func healthLevel(score int) string {
	switch {
	case score >= 80:
		return "good"
	case score >= 50:
		return "medium"
	default:
		return "high"
	}
}

func (v *validationView) RenderText(w io.Writer, colored bool) error {
	score := fmt.Sprintf("Health score: %d/100", v.report.HealthScore)
	if colored {
		score = SeverityColor(healthLevel(v.report.HealthScore), score)
	}
	writeTitle(w, "Graph Validation", colored, color.New(color.Bold, color.FgCyan))
	fmt.Fprintln(w)
	fmt.Fprintln(w, score)
	fmt.Fprintln(w)

	if err := NewTable("Stats", []string{"Metric", "Value"}, v.statsRows(), nil, nil).RenderText(w, colored); err != nil {
		return err
	}

	if len(v.report.Issues) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return nil
	}
	fmt.Fprintln(w, "Issues")
	fmt.Fprintln(w, "------")
	for _, is := range v.report.Issues {
		tag := "[" + string(is.Severity) + "]"
		if colored {
			tag = SeverityColor(string(is.Severity), tag)
		}
		fmt.Fprintf(w, "%s %s: %s\n", tag, is.Kind, is.Message)
		for _, id := range is.Functions {
			fmt.Fprintf(w, "    %s (%s)\n", id.Name, location(id))
		}
	}
	return nil
}

func (v *validationView) RenderMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "# Graph Validation\n\n**Health score:** %d/100\n\n", v.report.HealthScore)
	if err := NewTable("Stats", []string{"Metric", "Value"}, v.statsRows(), nil, nil).RenderMarkdown(w); err != nil {
		return err
	}
	if len(v.report.Issues) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return nil
	}
	rows := make([][]string, len(v.report.Issues))
	for i, is := range v.report.Issues {
		names := make([]string, len(is.Functions))
		for j, id := range is.Functions {
			names[j] = id.Name
		}
		rows[i] = []string{string(is.Severity), string(is.Kind), is.Message, strings.Join(names, ", ")}
	}
	return NewTable("Issues", []string{"Severity", "Kind", "Message", "Functions"}, rows, nil, nil).RenderMarkdown(w)
}

// CFGData is the serializable form of a lowered function.
type CFGData struct {
	*cfg.CFG
	Edges      int    `json:"edges"`
	Cyclomatic int    `json:"cyclomatic"`
	Error      string `json:"error,omitempty"`
}

// CFGs renders lowered function bodies.
func CFGs(graphs []*cfg.CFG) Renderable {
	return &cfgView{graphs: graphs}
}

type cfgView struct {
	graphs []*cfg.CFG
}

func (v *cfgView) RenderData() any {
	out := make([]CFGData, len(v.graphs))
	for i, g := range v.graphs {
		out[i] = CFGData{CFG: g, Edges: g.EdgeCount(), Cyclomatic: g.Cyclomatic()}
		if err := g.Validate(); err != nil {
			out[i].Error = err.Error()
		}
	}
	return out
}

func (v *cfgView) write(w io.Writer, g *cfg.CFG) error {
	if err := g.Write(w); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ; %d blocks, %d edges, cyclomatic %d\n", len(g.Blocks), g.EdgeCount(), g.Cyclomatic())
	if err := g.Validate(); err != nil {
		fmt.Fprintf(w, "  ; invalid: %v\n", err)
	}
	return nil
}

func (v *cfgView) RenderText(w io.Writer, _ bool) error {
	for i, g := range v.graphs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := v.write(w, g); err != nil {
			return err
		}
	}
	return nil
}

func (v *cfgView) RenderMarkdown(w io.Writer) error {
	for _, g := range v.graphs {
		fmt.Fprintf(w, "## %s\n\n```\n", g.Function)
		if err := v.write(w, g); err != nil {
			return err
		}
		fmt.Fprint(w, "```\n\n")
	}
	return nil
}
