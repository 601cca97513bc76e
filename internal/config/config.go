package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Server contains connection settings for the local inference server.
type Server struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	PollInterval   int    `toml:"poll_interval"`
}

// Planner contains connection settings for the remote planner.
type Planner struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains toast queue and error log sizing.
type Notifications struct {
	ToastTTLSeconds int `toml:"toast_ttl_seconds"`
	MaxToasts       int `toml:"max_toasts"`
	MaxRecentErrors int `toml:"max_recent_errors"`
}

// Assistant contains tuning for the action orchestrator.
type Assistant struct {
	MaxRetries            int  `toml:"max_retries"`
	ProactiveSuggestions  bool `toml:"proactive_suggestions"`
	SuggestionCooldown    int  `toml:"suggestion_cooldown_seconds"`
	ModelWaitTimeout      int  `toml:"model_wait_timeout_seconds"`
	ModelWaitPollInterval int  `toml:"model_wait_poll_seconds"`
	CatalogTTLSeconds     int  `toml:"catalog_ttl_seconds"`
}

// History contains bounds for the status history and continuation ledger.
type History struct {
	StatusCapacity          int `toml:"status_capacity"`
	ContinuationTTLMinutes  int `toml:"continuation_ttl_minutes"`
	ContinuationSweepMinute int `toml:"continuation_sweep_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for easel.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and status API bind address
//   - Server: local inference server connection and poll fallback
//   - Planner: remote planner (chat completion) connection settings
//   - Notifications: toast queue capacity and expiry
//   - Assistant: orchestrator retry budget, waits, suggestion gating
//   - History: status history capacity and continuation TTL/sweep
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Planner       Planner       `toml:"planner"`
	Notifications Notifications `toml:"notifications"`
	Assistant     Assistant     `toml:"assistant"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/easel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("easel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for engine operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// PlannerConfig contains resolved planner connection settings.
type PlannerConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetPlanner returns the planner connection settings with whitespace trimmed.
func (c *Config) GetPlanner() PlannerConfig {
	return PlannerConfig{
		APIKey:         strings.TrimSpace(c.Planner.APIKey),
		BaseURL:        strings.TrimSpace(c.Planner.BaseURL),
		Model:          strings.TrimSpace(c.Planner.Model),
		Referer:        strings.TrimSpace(c.Planner.Referer),
		Title:          strings.TrimSpace(c.Planner.Title),
		TimeoutSeconds: c.Planner.TimeoutSeconds,
	}
}
