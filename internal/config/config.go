// Package config provides configuration management for the timeline service.
// Process settings come from environment variables with sensible defaults;
// editor tuning comes from an optional YAML settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".heimdex-timeline"

	// Environment variable names
	EnvPort     = "TIMELINE_PORT"
	EnvLogLevel = "TIMELINE_LOG_LEVEL"
	EnvDataDir  = "TIMELINE_DATA_DIR"
	EnvTray     = "TIMELINE_TRAY"
	EnvSettings = "TIMELINE_CONFIG"

	// Database filename
	DBFilename = "timeline.db"

	// Settings filename inside the data directory
	SettingsFilename = "settings.yaml"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	SettingsPath() string
	TrayEnabled() bool
	Settings() Settings
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port         int
	logLevel     string
	dataDir      string
	settingsPath string
	tray         bool
	settings     Settings
}

// New creates a new EnvConfig with defaults and environment variable
// overrides, then loads the settings file.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:     DefaultPort,
		logLevel: DefaultLogLevel,
		dataDir:  defaultDataDir(),
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	// the tray is opt-in so the service runs headless by default
	if tr := os.Getenv(EnvTray); tr != "" {
		on, err := strconv.ParseBool(strings.TrimSpace(tr))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvTray, err)
		}
		cfg.tray = on
	}

	cfg.settingsPath = filepath.Join(cfg.dataDir, SettingsFilename)
	if sp := os.Getenv(EnvSettings); sp != "" {
		cfg.settingsPath = sp
	}

	settings, err := LoadSettings(cfg.settingsPath)
	if err != nil {
		return nil, err
	}
	cfg.settings = settings

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) SettingsPath() string {
	return c.settingsPath
}

func (c *EnvConfig) TrayEnabled() bool {
	return c.tray
}

func (c *EnvConfig) Settings() Settings {
	return c.settings
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
