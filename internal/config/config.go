// Package config loads duckling process configuration: server address,
// storage path, scheduler cadence, logging, and the Jira connection for
// task imports. Engine behavior (branch prefix, tokens, retry limits)
// lives in the settings table instead, owned by the running server.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the config file name inside the duckling directory.
	ConfigFileName = "config.yaml"
	// DucklingDir is the duckling configuration directory name.
	DucklingDir = ".duckling"
	// DBFileName is the default SQLite database file name.
	DBFileName = "duckling.db"
)

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080" or "127.0.0.1:8080".
	Addr string `yaml:"addr"`
}

// DBConfig configures task storage.
type DBConfig struct {
	// Driver selects the backend: sqlite (default) or postgres.
	Driver string `yaml:"driver"`
	// Path is the SQLite database file path.
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string, used when Driver is postgres.
	DSN string `yaml:"dsn,omitempty"`
}

// SchedulerConfig configures the background task scheduler.
type SchedulerConfig struct {
	// TickSeconds is the scheduler cadence in seconds.
	TickSeconds int `yaml:"tick_seconds"`
}

// LogConfig configures process logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// JiraConfig holds the Jira Cloud connection used by task imports.
type JiraConfig struct {
	URL   string `yaml:"url,omitempty"`
	Email string `yaml:"email,omitempty"`
	// APIToken is usually supplied via DUCKLING_JIRA_TOKEN rather than
	// stored in the config file.
	APIToken string `yaml:"api_token,omitempty"`
}

// Config represents the duckling process configuration.
type Config struct {
	// Version is the config file version.
	Version int `yaml:"version"`

	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
	Jira      JiraConfig      `yaml:"jira,omitempty"`
}

// TickInterval returns the scheduler cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}

// SlogLevel maps the configured log level to a slog level. Unknown values
// fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch strings.ToLower(c.DB.Driver) {
	case "", "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is postgres")
		}
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.Scheduler.TickSeconds < 1 {
		return fmt.Errorf("scheduler.tick_seconds must be at least 1, got %d", c.Scheduler.TickSeconds)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Dir returns the duckling configuration directory (~/.duckling, falling
// back to a relative .duckling when the home directory is unknown).
func Dir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, DucklingDir)
	}
	return DucklingDir
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), ConfigFileName)
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Server:  ServerConfig{Addr: ":8080"},
		DB:      DBConfig{Driver: "sqlite", Path: filepath.Join(Dir(), DBFileName)},
		Scheduler: SchedulerConfig{
			TickSeconds: 60,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load loads the config, preferring a project-local .duckling/config.yaml
// over the user one, then applies DUCKLING_* environment overrides. A
// missing file yields the defaults.
func Load() (*Config, error) {
	path := filepath.Join(DucklingDir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		path = DefaultPath()
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}
	ApplyEnvVars(cfg)
	return cfg, nil
}

// LoadFrom loads the config from a specific path. A missing file yields
// the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config to the default location.
func (c *Config) Save() error {
	return c.SaveTo(DefaultPath())
}

// SaveTo writes the config to a specific path, creating parent directories.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := atomicWrite(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// atomicWrite writes data to a temp file in the target directory, syncs it,
// and renames it over path so a crash mid-write never leaves a truncated
// config behind.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Init creates the duckling directory with a default config file.
func Init(force bool) error {
	if !force {
		if _, err := os.Stat(DefaultPath()); err == nil {
			return fmt.Errorf("duckling already initialized at %s (use --force to overwrite)", DefaultPath())
		}
	}

	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", Dir(), err)
	}

	return Default().Save()
}

// IsInitialized reports whether a duckling config file exists.
func IsInitialized() bool {
	_, err := os.Stat(DefaultPath())
	return err == nil
}
