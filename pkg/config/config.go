// Package config loads graphsync run configuration from defaults, an
// optional YAML file, and GRAPHSYNC_* environment variables, in that order.
// Command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/graphsync/pkg/filter"
	"github.com/entrhq/graphsync/pkg/logging"
)

// Mode selects the pipeline to run.
type Mode string

const (
	// ModeRead captures mutating graph queries from a live instance into the journal
	ModeRead Mode = "read"
	// ModeWrite replays the journal against an instance
	ModeWrite Mode = "write"
)

// Config represents the configuration for a capture or replay run
type Config struct {
	// Pipeline to run
	Mode Mode `yaml:"mode" env:"GRAPHSYNC_MODE"`

	// Connection URI of the instance to monitor or replay into
	URI string `yaml:"uri" env:"GRAPHSYNC_URI"`

	// Journal file path
	File string `yaml:"file" env:"GRAPHSYNC_FILE"`

	// Replay options
	StartWriteFromLine string `yaml:"start_write_from_line" env:"GRAPHSYNC_START_WRITE_FROM_LINE"`
	StartAfterLine     int    `yaml:"start_after_line" env:"GRAPHSYNC_START_AFTER_LINE"`
	RequireMarker      bool   `yaml:"require_marker" env:"GRAPHSYNC_REQUIRE_MARKER"`
	ContinueOnError    bool   `yaml:"continue_on_error" env:"GRAPHSYNC_CONTINUE_ON_ERROR"`
	DryRun             bool   `yaml:"dry_run" env:"GRAPHSYNC_DRY_RUN"`

	// Graph name filtering, applied in both modes
	Graphs GraphsConfig `yaml:"graphs" envPrefix:"GRAPHSYNC_GRAPHS_"`

	// Connection settings
	Connection ConnectionConfig `yaml:"connection" envPrefix:"GRAPHSYNC_CONNECTION_"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" envPrefix:"GRAPHSYNC_LOG_"`

	// Directory for the run summary; empty disables it
	SummaryDir string `yaml:"summary_dir" env:"GRAPHSYNC_SUMMARY_DIR"`
}

// GraphsConfig holds glob patterns over graph names
type GraphsConfig struct {
	Include []string `yaml:"include" env:"INCLUDE" envSeparator:","`
	Exclude []string `yaml:"exclude" env:"EXCLUDE" envSeparator:","`
}

// ConnectionConfig controls how the database connection is established
type ConnectionConfig struct {
	Retries     int           `yaml:"retries" env:"RETRIES"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" env:"VERBOSITY"`

	// Dir receives a per-session log file when set
	Dir string `yaml:"dir" env:"DIR"`
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Retries:     3,
			RetryDelay:  500 * time.Millisecond,
			DialTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// loadFile merges a YAML file into the configuration
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LogLevel returns the parsed logging verbosity
func (c *Config) LogLevel() logging.Level {
	level, err := logging.ParseLevel(c.Logging.Verbosity)
	if err != nil {
		return logging.LevelNormal
	}
	return level
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Mode != ModeRead && c.Mode != ModeWrite {
		return fmt.Errorf("invalid mode: %q (must be 'read' or 'write')", c.Mode)
	}

	// A dry run never connects.
	if c.URI == "" && !(c.Mode == ModeWrite && c.DryRun) {
		return fmt.Errorf("uri is required")
	}

	if c.File == "" {
		return fmt.Errorf("file is required")
	}

	if c.Mode == ModeRead {
		if c.StartWriteFromLine != "" {
			return fmt.Errorf("start_write_from_line only applies to write mode")
		}
		if c.StartAfterLine != 0 {
			return fmt.Errorf("start_after_line only applies to write mode")
		}
		if c.DryRun {
			return fmt.Errorf("dry_run only applies to write mode")
		}
	}

	if c.StartAfterLine < 0 {
		return fmt.Errorf("start_after_line cannot be negative")
	}

	if c.StartAfterLine > 0 && c.StartWriteFromLine != "" {
		return fmt.Errorf("start_after_line and start_write_from_line are mutually exclusive")
	}

	if c.RequireMarker && c.StartWriteFromLine == "" {
		return fmt.Errorf("require_marker needs start_write_from_line to be set")
	}

	if _, err := filter.NewGraphMatcher(c.Graphs.Include, c.Graphs.Exclude); err != nil {
		return fmt.Errorf("invalid graph filter: %w", err)
	}

	if c.Connection.Retries < 0 {
		return fmt.Errorf("connection retries cannot be negative")
	}

	if c.Connection.RetryDelay < 0 {
		return fmt.Errorf("connection retry_delay cannot be negative")
	}

	if c.Connection.DialTimeout < 0 {
		return fmt.Errorf("connection dial_timeout cannot be negative")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	if _, err := logging.ParseLevel(c.Logging.Verbosity); err != nil {
		return fmt.Errorf("invalid logging verbosity: %w", err)
	}

	return nil
}
