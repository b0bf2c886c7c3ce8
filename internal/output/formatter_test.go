package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"TEXT", FormatText},
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"yaml", FormatYAML},
		{"yml", FormatYAML},
		{"toon", FormatTOON},
		{"", FormatText},
		{"invalid", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseFormat(tt.input)
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	f, err := NewFormatter(FormatMarkdown, "", true)
	if err != nil {
		t.Fatalf("NewFormatter() error: %v", err)
	}
	defer f.Close()

	if f.Format() != FormatMarkdown {
		t.Errorf("Format() = %q, want %q", f.Format(), FormatMarkdown)
	}
	if !f.Colored() {
		t.Error("Colored() = false, want true")
	}
	if f.file != nil {
		t.Error("file should be nil for stdout")
	}
	if f.Writer() == nil {
		t.Error("Writer() should not be nil")
	}
}

func TestNewFormatterWithFile(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "output.txt")

	f, err := NewFormatter(FormatJSON, outputPath, true)
	if err != nil {
		t.Fatalf("NewFormatter() error: %v", err)
	}
	if f.colored {
		t.Error("colored should be false when writing to file")
	}
	if err := f.Output(map[string]int{"functions": 3}); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.Contains(string(content), `"functions": 3`) {
		t.Errorf("file content = %q", content)
	}
}

func TestNewFormatterInvalidPath(t *testing.T) {
	_, err := NewFormatter(FormatText, "/nonexistent/directory/file.txt", false)
	if err == nil {
		t.Error("NewFormatter() should error for invalid path")
	}
}

func TestFormatterStructured(t *testing.T) {
	for format, want := range map[Format]bool{
		FormatText:     false,
		FormatMarkdown: false,
		FormatJSON:     true,
		FormatYAML:     true,
		FormatTOON:     true,
	} {
		f := NewWriterFormatter(format, &bytes.Buffer{}, false)
		if got := f.Structured(); got != want {
			t.Errorf("Structured(%s) = %v, want %v", format, got, want)
		}
	}
}

type point struct {
	Name  string `json:"name"`
	Line  int    `json:"line"`
	Score float64
}

func TestEncodeFormats(t *testing.T) {
	data := []point{{Name: "helper", Line: 42, Score: 0.5}}

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatJSON, []string{`"name": "helper"`, `"line": 42`, `"Score": 0.5`}},
		{FormatYAML, []string{"name: helper", "line: 42", "Score: 0.5"}},
		{FormatTOON, []string{"helper", "42", "name", "line"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tt.format, data); err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Encode(%s) missing %q in:\n%s", tt.format, want, out)
				}
			}
		})
	}
}

func TestEncodeYAMLKeepsFieldOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, FormatYAML, point{Name: "b", Line: 1}); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	out := buf.String()
	if strings.Index(out, "name:") > strings.Index(out, "line:") {
		t.Errorf("fields reordered:\n%s", out)
	}
}

func TestTableRenderText(t *testing.T) {
	tests := []struct {
		name  string
		table *Table
		want  []string
	}{
		{
			name: "simple_table",
			table: NewTable(
				"Dead Code",
				[]string{"Function", "Location"},
				[][]string{
					{"unused", "src/lib.rs:10"},
					{"stale", "app/views.py:3"},
				},
				nil,
				nil,
			),
			want: []string{"Dead Code", "FUNCTION", "LOCATION", "unused", "src/lib.rs:10"},
		},
		{
			name: "table_with_footer",
			table: NewTable(
				"Reachability",
				[]string{"Status", "Functions"},
				[][]string{{"live", "10"}},
				[]string{"total", "12"},
				nil,
			),
			want: []string{"Reachability", "STATUS", "live", "10", "12"},
		},
		{
			name:  "no_title",
			table: NewTable("", []string{"A", "B"}, [][]string{{"1", "2"}}, nil, nil),
			want:  []string{"A", "B", "1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.table.RenderText(&buf, false); err != nil {
				t.Fatalf("RenderText() error: %v", err)
			}
			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("RenderText() missing %q in output:\n%s", want, output)
				}
			}
		})
	}
}

func TestTableRenderMarkdown(t *testing.T) {
	table := NewTable(
		"Callers",
		[]string{"Function", "Call Type"},
		[][]string{{"a|b", "direct"}},
		[]string{"1", ""},
		nil,
	)

	var buf bytes.Buffer
	if err := table.RenderMarkdown(&buf); err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"## Callers", "| Function | Call Type |", "| --- | --- |", `| a\|b | direct |`} {
		if !strings.Contains(output, want) {
			t.Errorf("RenderMarkdown() missing %q in output:\n%s", want, output)
		}
	}
}

func TestTableRenderData(t *testing.T) {
	table := NewTable("", []string{"Name", "Line"}, [][]string{{"main", "1"}}, nil, nil)
	rows, ok := table.RenderData().([]map[string]string)
	if !ok || len(rows) != 1 {
		t.Fatalf("RenderData() = %#v", table.RenderData())
	}
	if rows[0]["Name"] != "main" || rows[0]["Line"] != "1" {
		t.Errorf("row = %v", rows[0])
	}

	custom := NewTable("", nil, nil, nil, []int{1, 2})
	if got, ok := custom.RenderData().([]int); !ok || len(got) != 2 {
		t.Errorf("RenderData() = %#v, want wrapped data", custom.RenderData())
	}
}

func TestSectionRender(t *testing.T) {
	s := &Section{
		Title:   "Summary",
		Content: "Functions: 7",
		Sections: []Section{
			{Title: "Resolution", Content: "resolved: 5"},
		},
	}

	var text bytes.Buffer
	if err := s.RenderText(&text, false); err != nil {
		t.Fatalf("RenderText() error: %v", err)
	}
	for _, want := range []string{"Summary\n=======", "Functions: 7", "Resolution\n----------", "resolved: 5"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("RenderText() missing %q in:\n%s", want, text.String())
		}
	}

	var md bytes.Buffer
	if err := s.RenderMarkdown(&md); err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	for _, want := range []string{"## Summary", "### Resolution"} {
		if !strings.Contains(md.String(), want) {
			t.Errorf("RenderMarkdown() missing %q in:\n%s", want, md.String())
		}
	}

	if s.RenderData() != s {
		t.Error("RenderData() should return the section itself without Data")
	}
}

func TestReportRender(t *testing.T) {
	r := &Report{
		Title: "Validation",
		Sections: []Renderable{
			&Section{Title: "Score", Content: "90/100"},
			NewTable("Issues", []string{"Kind"}, [][]string{{"orphan"}}, nil, nil),
		},
	}

	var text bytes.Buffer
	if err := r.RenderText(&text, false); err != nil {
		t.Fatalf("RenderText() error: %v", err)
	}
	for _, want := range []string{"Validation", "90/100", "orphan"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("RenderText() missing %q", want)
		}
	}

	var md bytes.Buffer
	if err := r.RenderMarkdown(&md); err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	if !strings.HasPrefix(md.String(), "# Validation") {
		t.Errorf("RenderMarkdown() = %q", md.String())
	}

	data, ok := r.RenderData().(map[string]any)
	if !ok {
		t.Fatalf("RenderData() = %#v", r.RenderData())
	}
	if data["title"] != "Validation" {
		t.Errorf("title = %v", data["title"])
	}
	if sections, ok := data["sections"].([]any); !ok || len(sections) != 2 {
		t.Errorf("sections = %v", data["sections"])
	}
}

func TestFormatterOutputRenderable(t *testing.T) {
	table := NewTable("Callees", []string{"Function"}, [][]string{{"helper"}}, nil, []string{"helper"})

	tests := []struct {
		format Format
		want   string
	}{
		{FormatText, "helper"},
		{FormatMarkdown, "| helper |"},
		{FormatJSON, `"helper"`},
		{FormatYAML, "- helper"},
		{FormatTOON, "helper"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			f := NewWriterFormatter(tt.format, &buf, false)
			if err := f.Output(table); err != nil {
				t.Fatalf("Output() error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("Output(%s) missing %q in:\n%s", tt.format, tt.want, buf.String())
			}
		})
	}
}

func TestFormatterOutputRaw(t *testing.T) {
	data := map[string]any{"edges": 3}

	var plain bytes.Buffer
	if err := NewWriterFormatter(FormatText, &plain, false).Output(data); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(plain.Bytes(), &decoded); err != nil {
		t.Fatalf("text output of raw data should be JSON: %v", err)
	}
	if decoded["edges"].(float64) != 3 {
		t.Errorf("edges = %v", decoded["edges"])
	}

	var md bytes.Buffer
	if err := NewWriterFormatter(FormatMarkdown, &md, false).Output(data); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if !strings.HasPrefix(md.String(), "```json\n") || !strings.HasSuffix(md.String(), "```\n") {
		t.Errorf("markdown output = %q", md.String())
	}

	var nilMap map[string]any
	if err := NewWriterFormatter(FormatJSON, &bytes.Buffer{}, false).Output(nilMap); err != nil {
		t.Errorf("Output() should handle nil map: %v", err)
	}
}

func TestFormatterMessageMethods(t *testing.T) {
	tests := []struct {
		name   string
		method func(*Formatter, string, ...any)
		format string
		args   []any
		want   string
	}{
		{"success", (*Formatter).Success, "Analysis complete", nil, "Analysis complete"},
		{"warning", (*Formatter).Warning, "%d files skipped", []any{2}, "WARNING: 2 files skipped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewWriterFormatter(FormatText, &buf, false)
			tt.method(f, tt.format, tt.args...)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestSeverityColor(t *testing.T) {
	for _, severity := range []string{"error", "warning", "info", "live", "unknown", ""} {
		t.Run(severity, func(t *testing.T) {
			if got := SeverityColor(severity, "text"); !strings.Contains(got, "text") {
				t.Errorf("SeverityColor() = %q", got)
			}
		})
	}
}
