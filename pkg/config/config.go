package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	gotoml "github.com/pelletier/go-toml"

	"github.com/panbanda/reach/pkg/parser"
	"github.com/panbanda/reach/pkg/resolve"
)

// Config holds all configuration options for reach.
type Config struct {
	Analysis     AnalysisConfig     `koanf:"analysis" toml:"analysis"`
	Resolve      ResolveConfig      `koanf:"resolve" toml:"resolve"`
	Reachability ReachabilityConfig `koanf:"reachability" toml:"reachability"`
	Validate     ValidateConfig     `koanf:"validate" toml:"validate"`
	Exclude      ExcludeConfig      `koanf:"exclude" toml:"exclude"`
	Cache        CacheConfig        `koanf:"cache" toml:"cache"`
	Output       OutputConfig       `koanf:"output" toml:"output"`
}

// AnalysisConfig controls file discovery and the phase-one worker pool.
type AnalysisConfig struct {
	// Workers is the extraction pool size; 0 means twice the CPU count.
	Workers      int      `koanf:"workers" toml:"workers"`
	MaxFileSize  int64    `koanf:"max_file_size" toml:"max_file_size"`
	Languages    []string `koanf:"languages" toml:"languages"`
	IncludeTests bool     `koanf:"include_tests" toml:"include_tests"`
}

// ResolveConfig tunes the cross-file resolver.
type ResolveConfig struct {
	NameOnlyFallback  bool `koanf:"name_only_fallback" toml:"name_only_fallback"`
	MaxNameCandidates int  `koanf:"max_name_candidates" toml:"max_name_candidates"`
}

// ReachabilityConfig tunes entry-point detection and liveness.
type ReachabilityConfig struct {
	EntryPoints         []string `koanf:"entry_points" toml:"entry_points"`
	ObserverCollections []string `koanf:"observer_collections" toml:"observer_collections"`
	MinConfidence       string   `koanf:"min_confidence" toml:"min_confidence"`
}

// ValidateConfig tunes the health score.
type ValidateConfig struct {
	TraceFunctions           []string `koanf:"trace_functions" toml:"trace_functions"`
	UnresolvedRatioThreshold float64  `koanf:"unresolved_ratio_threshold" toml:"unresolved_ratio_threshold"`
	OrphanPenalty            float64  `koanf:"orphan_penalty" toml:"orphan_penalty"`
	UnresolvedPenalty        float64  `koanf:"unresolved_penalty" toml:"unresolved_penalty"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore"`
}

// CacheConfig controls the snapshot cache.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format" toml:"format"` // text, markdown, json, yaml, toon
	Color  bool   `koanf:"color" toml:"color"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			MaxFileSize:  1 << 20,
			Languages:    []string{"rust", "python", "javascript", "typescript"},
			IncludeTests: true,
		},
		Resolve: ResolveConfig{
			NameOnlyFallback: true,
		},
		Reachability: ReachabilityConfig{
			MinConfidence: "medium",
		},
		Validate: ValidateConfig{
			UnresolvedRatioThreshold: 0.25,
			OrphanPenalty:            0.3,
			UnresolvedPenalty:        0.5,
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"*.min.js",
				"*.d.ts",
			},
			Dirs: []string{
				"vendor",
				"node_modules",
				".git",
				".reach",
				"target",
				"dist",
				"build",
				"__pycache__",
				".venv",
			},
			Gitignore: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".reach/cache",
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// SearchPaths are the config locations LoadOrDefault tries, in order.
var SearchPaths = []string{
	"reach.toml",
	".reach.toml",
	filepath.Join(".reach", "config.toml"),
	"reach.yaml",
	"reach.yml",
	"reach.json",
}

// LoadOrDefault loads the first config found under dir, or the defaults.
// A config file that exists but fails to load is an error.
func LoadOrDefault(dir string) (*Config, string, error) {
	for _, name := range SearchPaths {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	return DefaultConfig(), "", nil
}

// Check rejects values no component can honor.
func (c *Config) Check() error {
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("analysis.workers must not be negative, got %d", c.Analysis.Workers)
	}
	if c.Resolve.MaxNameCandidates < 0 {
		return fmt.Errorf("resolve.max_name_candidates must not be negative, got %d", c.Resolve.MaxNameCandidates)
	}
	if _, err := c.MinConfidence(); err != nil {
		return fmt.Errorf("reachability.min_confidence: %w", err)
	}
	for name, v := range map[string]float64{
		"validate.unresolved_ratio_threshold": c.Validate.UnresolvedRatioThreshold,
		"validate.orphan_penalty":             c.Validate.OrphanPenalty,
		"validate.unresolved_penalty":         c.Validate.UnresolvedPenalty,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %g", name, v)
		}
	}
	return nil
}

// MinConfidence parses reachability.min_confidence.
func (c *Config) MinConfidence() (resolve.Confidence, error) {
	return resolve.ParseConfidence(c.Reachability.MinConfidence)
}

// WorkerCount resolves analysis.workers, defaulting to twice the CPU count.
func (c *Config) WorkerCount() int {
	if c.Analysis.Workers > 0 {
		return c.Analysis.Workers
	}
	return runtime.NumCPU() * 2
}

// LanguageEnabled reports whether files of lang are analyzed. TSX follows
// either of typescript and javascript since it also parses .jsx files.
func (c *Config) LanguageEnabled(lang parser.Language) bool {
	if len(c.Analysis.Languages) == 0 {
		return lang != parser.LangUnknown
	}
	for _, l := range c.Analysis.Languages {
		switch parser.Language(strings.ToLower(l)) {
		case lang:
			return true
		case parser.LangTypeScript, parser.LangJavaScript:
			if lang == parser.LangTSX {
				return true
			}
		}
	}
	return false
}

// ShouldExclude checks if a path should be excluded from analysis.
func (c *Config) ShouldExclude(path string) bool {
	sep := string(filepath.Separator)
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, sep+dir+sep) || strings.HasPrefix(path, dir+sep) {
			return true
		}
	}
	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// WriteTOML encodes the config as TOML, the format `reach init` writes.
func (c *Config) WriteTOML() ([]byte, error) {
	content, err := gotoml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return content, nil
}
