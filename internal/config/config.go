package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the config file name inside both the global and the repo directory.
const FileName = "config.toml"

// Config holds application configuration.
type Config struct {
	// CarryoverMinutes widens the lower bound of the transcript window so content
	// split across a distillation boundary is seen twice rather than never.
	CarryoverMinutes int `toml:"carryover_minutes"`

	// Verbose mirrors the log to stderr.
	Verbose bool `toml:"verbose"`

	Generate GenerateConfig `toml:"generate"`
	Sources  SourcesConfig  `toml:"sources"`
	MCP      MCPConfig      `toml:"mcp"`
	DB       DBConfig       `toml:"db"`
}

// GenerateConfig configures the external generation command.
type GenerateConfig struct {
	// Command is the host CLI invoked for generation calls.
	Command string `toml:"command"`

	// Model is passed as --model when non-empty.
	Model string `toml:"model"`

	// TimeoutSeconds bounds a single generation call.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// SourcesConfig locates transcripts.
type SourcesConfig struct {
	// ClaudeProjectsDir defaults to ~/.claude/projects.
	ClaudeProjectsDir string `toml:"claude_projects_dir"`

	// CodexSessionsDir defaults to ~/.codex/sessions.
	CodexSessionsDir string `toml:"codex_sessions_dir"`

	// Codex enables Codex rollout transcripts as a second source.
	Codex bool `toml:"codex"`
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `toml:"disabled_tools"`
}

// DBConfig tunes the run-history database pool. Zero means sql.DB default.
type DBConfig struct {
	MaxOpenConns int `toml:"max_open_conns"`
	MaxIdleConns int `toml:"max_idle_conns"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CarryoverMinutes: 5,
		Generate: GenerateConfig{
			Command:        "claude",
			TimeoutSeconds: 300,
		},
		Sources: SourcesConfig{
			ClaudeProjectsDir: "~/.claude/projects",
			CodexSessionsDir:  "~/.codex/sessions",
		},
	}
}

// Carryover returns the carryover window as a duration.
func (c *Config) Carryover() time.Duration {
	return time.Duration(c.CarryoverMinutes) * time.Minute
}

// GenerateTimeout returns the per-call generation timeout.
func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.Generate.TimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.toml.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.config/wm.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, FileName))
}

// LoadWithRepo loads configuration from both global (~/.config/wm) and repo (.wm) directories.
// Repo config is found by walking upward from startDir to find the nearest .wm/config.toml.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, FileName))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .wm/config.toml.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".wm", FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// DefaultGlobalDir returns ~/.config/wm.
func DefaultGlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "wm"), nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	cfg := &Config{}
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.CarryoverMinutes = pickInt(overlay.CarryoverMinutes, base.CarryoverMinutes)
	result.Generate.Command = pickString(overlay.Generate.Command, base.Generate.Command)
	result.Generate.Model = pickString(overlay.Generate.Model, base.Generate.Model)
	result.Generate.TimeoutSeconds = pickInt(overlay.Generate.TimeoutSeconds, base.Generate.TimeoutSeconds)
	result.Sources.ClaudeProjectsDir = pickString(overlay.Sources.ClaudeProjectsDir, base.Sources.ClaudeProjectsDir)
	result.Sources.CodexSessionsDir = pickString(overlay.Sources.CodexSessionsDir, base.Sources.CodexSessionsDir)
	result.DB.MaxOpenConns = pickInt(overlay.DB.MaxOpenConns, base.DB.MaxOpenConns)
	result.DB.MaxIdleConns = pickInt(overlay.DB.MaxIdleConns, base.DB.MaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.Verbose = base.Verbose || overlay.Verbose
	result.Sources.Codex = base.Sources.Codex || overlay.Sources.Codex

	// Arrays: merge and deduplicate
	result.MCP.DisabledTools = mergeStringSlice(base.MCP.DisabledTools, overlay.MCP.DisabledTools)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
