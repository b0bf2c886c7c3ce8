package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/reach/pkg/parser"
	"github.com/panbanda/reach/pkg/resolve"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.True(t, cfg.Resolve.NameOnlyFallback)
	assert.Zero(t, cfg.Resolve.MaxNameCandidates)
	assert.Equal(t, 0.25, cfg.Validate.UnresolvedRatioThreshold)
	assert.Equal(t, 0.3, cfg.Validate.OrphanPenalty)
	assert.Equal(t, 0.5, cfg.Validate.UnresolvedPenalty)
	assert.True(t, cfg.Exclude.Gitignore)
	assert.Contains(t, cfg.Exclude.Dirs, "node_modules")
	assert.Equal(t, "text", cfg.Output.Format)

	conf, err := cfg.MinConfidence()
	require.NoError(t, err)
	assert.Equal(t, resolve.Medium, conf)
	assert.NoError(t, cfg.Check())
	assert.Positive(t, cfg.WorkerCount())
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reach.toml")
	content := `
[analysis]
workers = 3

[resolve]
name_only_fallback = false
max_name_candidates = 4

[reachability]
entry_points = ["bootstrap"]
min_confidence = "high"

[validate]
trace_functions = ["Store::save"]
unresolved_ratio_threshold = 0.4

[exclude]
dirs = ["vendor", "fixtures"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.WorkerCount())
	assert.False(t, cfg.Resolve.NameOnlyFallback)
	assert.Equal(t, 4, cfg.Resolve.MaxNameCandidates)
	assert.Equal(t, []string{"bootstrap"}, cfg.Reachability.EntryPoints)
	assert.Equal(t, []string{"Store::save"}, cfg.Validate.TraceFunctions)
	assert.Equal(t, 0.4, cfg.Validate.UnresolvedRatioThreshold)
	assert.Contains(t, cfg.Exclude.Dirs, "fixtures")

	conf, err := cfg.MinConfidence()
	require.NoError(t, err)
	assert.Equal(t, resolve.High, conf)

	// untouched sections keep their defaults
	assert.Equal(t, 0.3, cfg.Validate.OrphanPenalty)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "reach.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("output:\n  format: json\n  color: false\n"), 0o644))
	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.False(t, cfg.Output.Color)

	jsonPath := filepath.Join(dir, "reach.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"analysis": {"languages": ["python"]}}`), 0o644))
	cfg, err = Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"python"}, cfg.Analysis.Languages)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative workers", "[analysis]\nworkers = -1\n"},
		{"bad confidence", "[reachability]\nmin_confidence = \"certain\"\n"},
		{"penalty out of range", "[validate]\norphan_penalty = 1.5\n"},
		{"malformed toml", "[analysis\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "reach.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, path, err := LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultConfig(), cfg)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".reach"), 0o755))
	nested := filepath.Join(dir, ".reach", "config.toml")
	require.NoError(t, os.WriteFile(nested, []byte("[resolve]\nmax_name_candidates = 2\n"), 0o644))

	cfg, path, err = LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, nested, path)
	assert.Equal(t, 2, cfg.Resolve.MaxNameCandidates)

	// reach.toml wins over .reach/config.toml
	top := filepath.Join(dir, "reach.toml")
	require.NoError(t, os.WriteFile(top, []byte("[resolve]\nmax_name_candidates = 7\n"), 0o644))
	cfg, path, err = LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, top, path)
	assert.Equal(t, 7, cfg.Resolve.MaxNameCandidates)
}

func TestShouldExclude(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join("node_modules", "react", "index.js"), true},
		{filepath.Join("web", "node_modules", "x.js"), true},
		{filepath.Join("web", "app.min.js"), true},
		{filepath.Join("types", "api.d.ts"), true},
		{filepath.Join("src", "main.rs"), false},
		{filepath.Join("src", "builder.py"), false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.ShouldExclude(tt.path))
		})
	}
}

func TestLanguageEnabled(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.LanguageEnabled(parser.LangRust))
	assert.True(t, cfg.LanguageEnabled(parser.LangTSX))

	cfg.Analysis.Languages = []string{"Python"}
	assert.True(t, cfg.LanguageEnabled(parser.LangPython))
	assert.False(t, cfg.LanguageEnabled(parser.LangRust))
	assert.False(t, cfg.LanguageEnabled(parser.LangTSX))

	cfg.Analysis.Languages = []string{"javascript"}
	assert.True(t, cfg.LanguageEnabled(parser.LangTSX))
	assert.False(t, cfg.LanguageEnabled(parser.LangTypeScript))
}

func TestWriteTOMLRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reachability.EntryPoints = []string{"serve"}

	content, err := cfg.WriteTOML()
	require.NoError(t, err)
	assert.Contains(t, string(content), "[validate]")

	path := filepath.Join(t.TempDir(), "reach.toml")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"serve"}, loaded.Reachability.EntryPoints)
	assert.Equal(t, cfg.Validate.OrphanPenalty, loaded.Validate.OrphanPenalty)
	assert.Equal(t, cfg.Validate.UnresolvedRatioThreshold, loaded.Validate.UnresolvedRatioThreshold)
	assert.Equal(t, cfg.Analysis.MaxFileSize, loaded.Analysis.MaxFileSize)
}
