// Package config loads the optional .driverkit YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up from the base directory upward.
const FileName = ".driverkit"

// Default values used when the configuration leaves a field empty.
const (
	DefaultTool            = "dotnet"
	DefaultTemplate        = "GBG_FAST"
	DefaultTemplateReadme  = "https://github.com/biosero/gbgdriver-project-templates.git"
	DefaultCheckTimeout    = 30 * time.Second
	DefaultSolutionTimeout = 30 * time.Second
	DefaultTemplateTimeout = 60 * time.Second
	DefaultRegisterTimeout = 30 * time.Second
	DefaultRepoTimeout     = 15 * time.Minute
	DefaultMaxOutput       = 1 << 20 // 1 MB
	DefaultBasePathEnv     = "GITHUB_AS_CODE_PATH"
	DefaultInstallLevels   = 5
	DefaultHistorySize     = 16
)

// DefaultListArgs lists installed templates.
var DefaultListArgs = []string{"new", "list"}

// DefaultScriptPath is the repository script, relative to the install root.
var DefaultScriptPath = []string{"Workflows", "NewDriverDevelopment", "scripts", "New-DriverRepo.ps1"}

// Config holds the parsed .driverkit configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int            `yaml:"version"`
	Tool         string         `yaml:"tool"`       // build-tool CLI, default dotnet
	RawMaxOutput int            `yaml:"max_output"` // bytes per stream
	TraceFile    string         `yaml:"trace_file"` // write OpenTelemetry spans here when set
	Template     TemplateConfig `yaml:"template"`
	Timeouts     TimeoutConfig  `yaml:"timeouts"`
	Repo         RepoConfig     `yaml:"repo"`
	History      HistoryConfig  `yaml:"history"`
}

// TemplateConfig names the project template the pipeline instantiates.
type TemplateConfig struct {
	Name     string   `yaml:"name"`      // template short name, e.g. GBG_FAST
	Readme   string   `yaml:"readme"`    // install instructions shown when missing
	ListArgs []string `yaml:"list_args"` // default: [new, list]
}

// TimeoutConfig holds per-step timeouts as duration strings ("30s", "2m").
type TimeoutConfig struct {
	Check    string `yaml:"check"`
	Solution string `yaml:"solution"`
	Template string `yaml:"template"`
	Register string `yaml:"register"`
	Repo     string `yaml:"repo"` // "0" disables the cap
}

// RepoConfig controls the driver repository script invocation.
type RepoConfig struct {
	Interpreter      string `yaml:"interpreter"`    // default powershell.exe on Windows, pwsh elsewhere
	Script           string `yaml:"script"`         // explicit script path; skips install-relative lookup
	RawInstallLevels int    `yaml:"install_levels"` // parents walked up from the executable
	BasePathEnv      string `yaml:"base_path_env"`  // default GITHUB_AS_CODE_PATH
}

// HistoryConfig selects where run records are kept.
type HistoryConfig struct {
	Backend string `yaml:"backend"` // disk (default) or sqlite
	Path    string `yaml:"path"`    // directory for disk, database file for sqlite
	Size    int    `yaml:"size"`    // in-memory cache capacity
}

// ToolName returns the configured build tool or the default.
func (c *Config) ToolName() string {
	if c.Tool != "" {
		return c.Tool
	}
	return DefaultTool
}

// TemplateName returns the configured template short name or the default.
func (c *Config) TemplateName() string {
	if c.Template.Name != "" {
		return c.Template.Name
	}
	return DefaultTemplate
}

// TemplateReadme returns the template installation reference.
func (c *Config) TemplateReadme() string {
	if c.Template.Readme != "" {
		return c.Template.Readme
	}
	return DefaultTemplateReadme
}

// ListArgs returns the arguments that list installed templates.
func (c *Config) ListArgs() []string {
	if len(c.Template.ListArgs) > 0 {
		return c.Template.ListArgs
	}
	return DefaultListArgs
}

// CheckTimeout bounds the template listing step.
func (c *Config) CheckTimeout() time.Duration {
	return positiveDuration(c.Timeouts.Check, DefaultCheckTimeout)
}

// SolutionTimeout bounds solution creation.
func (c *Config) SolutionTimeout() time.Duration {
	return positiveDuration(c.Timeouts.Solution, DefaultSolutionTimeout)
}

// TemplateTimeout bounds template instantiation.
func (c *Config) TemplateTimeout() time.Duration {
	return positiveDuration(c.Timeouts.Template, DefaultTemplateTimeout)
}

// RegisterTimeout bounds adding the project to the solution.
func (c *Config) RegisterTimeout() time.Duration {
	return positiveDuration(c.Timeouts.Register, DefaultRegisterTimeout)
}

// RepoTimeout bounds the repository script. Zero means no cap.
func (c *Config) RepoTimeout() time.Duration {
	if c.Timeouts.Repo != "" {
		d, err := time.ParseDuration(c.Timeouts.Repo)
		if err == nil && d >= 0 {
			return d
		}
	}
	return DefaultRepoTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// Interpreter returns the script interpreter for the repository script.
func (c *Config) Interpreter() string {
	if c.Repo.Interpreter != "" {
		return c.Repo.Interpreter
	}
	if runtime.GOOS == "windows" {
		return "powershell.exe"
	}
	return "pwsh"
}

// InstallLevels returns how many parents of the executable's directory
// form the install root.
func (c *Config) InstallLevels() int {
	if c.Repo.RawInstallLevels > 0 {
		return c.Repo.RawInstallLevels
	}
	return DefaultInstallLevels
}

// BasePathEnv names the environment variable holding the repository base path.
func (c *Config) BasePathEnv() string {
	if c.Repo.BasePathEnv != "" {
		return c.Repo.BasePathEnv
	}
	return DefaultBasePathEnv
}

// HistorySize returns the in-memory run cache capacity.
func (c *Config) HistorySize() int {
	if c.History.Size > 0 {
		return c.History.Size
	}
	return DefaultHistorySize
}

func positiveDuration(raw string, def time.Duration) time.Duration {
	if raw != "" {
		d, err := time.ParseDuration(raw)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

// LoadResult holds the parsed config and where it was found.
type LoadResult struct {
	Config *Config
	Path   string // absolute path of the loaded file; empty when defaults are used
}

// Load looks for a .driverkit file in dir and its parents. The nearest
// file wins. If none exists, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	path, err := findConfig(dir)
	if err != nil {
		return &LoadResult{Config: &Config{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return &LoadResult{Config: cfg, Path: path}, nil
}

func (c *Config) validate() error {
	switch c.History.Backend {
	case "", "disk", "sqlite":
	default:
		return fmt.Errorf("history.backend %q: want disk or sqlite", c.History.Backend)
	}
	return nil
}

// resolvePaths anchors relative paths in the file to the file's directory.
func (c *Config) resolvePaths(root string) {
	for _, p := range []*string{&c.Repo.Script, &c.History.Path, &c.TraceFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}

// findConfig walks upward from dir looking for FileName.
func findConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
