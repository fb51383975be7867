package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/codeprobe/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProvider         = "openai"
	DefaultMaxTokens        = 4000
	DefaultSummaryMaxTokens = 600
	DefaultMaxSteps         = 25
	DefaultSearchResults    = 5

	dirName = ".codeprobe"
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type WebSearch struct {
	Endpoint   string `yaml:"endpoint"`
	MaxResults int    `yaml:"max_results"`
}

type Config struct {
	Provider         string           `yaml:"provider"`
	Model            string           `yaml:"model"`
	MaxTokens        int              `yaml:"max_tokens"`
	SummaryMaxTokens int              `yaml:"summary_max_tokens"`
	MaxSteps         *int             `yaml:"max_steps"`
	FilesystemAccess FilesystemAccess `yaml:"filesystem_access"`
	MCPServers       []MCPServer      `yaml:"mcp_servers"`
	WebSearch        WebSearch        `yaml:"web_search"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	steps := DefaultMaxSteps
	return &Config{
		Provider:         DefaultProvider,
		MaxTokens:        DefaultMaxTokens,
		SummaryMaxTokens: DefaultSummaryMaxTokens,
		MaxSteps:         &steps,
		FilesystemAccess: FilesystemAccess{
			Hidden: []string{dirName, dirName + "/**"},
		},
		WebSearch: WebSearch{MaxResults: DefaultSearchResults},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, dirName, "config.yaml"))
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	paths = append(paths, filepath.Join(wd, dirName, "config.yaml"))
	return LoadFrom(paths...)
}

// LoadFrom applies each existing file in order on top of Default. Missing
// files are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	cfg := Default()
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := loadFromFile(p, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", p)
		}
	}
	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	hidden := cfg.FilesystemAccess.Hidden
	// Unmarshal overwrites the fields present in the file, so a later file
	// replaces lists set by an earlier one. The default hidden patterns are
	// kept regardless.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	cfg.FilesystemAccess.Hidden = union(hidden, cfg.FilesystemAccess.Hidden)
	return nil
}

func (c *Config) normalize() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.SummaryMaxTokens <= 0 {
		c.SummaryMaxTokens = DefaultSummaryMaxTokens
	}
	if c.MaxSteps == nil || *c.MaxSteps < 0 {
		steps := DefaultMaxSteps
		c.MaxSteps = &steps
	}
	if c.WebSearch.MaxResults <= 0 {
		c.WebSearch.MaxResults = DefaultSearchResults
	}
}

// StepLimit returns the configured step cap; 0 means unbounded.
func (c *Config) StepLimit() int {
	if c.MaxSteps == nil {
		return DefaultMaxSteps
	}
	return *c.MaxSteps
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
