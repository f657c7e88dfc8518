// Package config provides configuration management for the hookforge server.
// Values come from defaults, then an optional YAML file named by
// HOOKFORGE_CONFIG, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8787
	DefaultLogLevel        = "info"
	DefaultDataDir         = ".hookforge"
	DefaultStore           = StoreSQLite
	DefaultMaxBatchOps     = 500
	DefaultUndoTTL         = 24 * time.Hour
	DefaultJanitorInterval = 10 * time.Minute

	// Environment variable names
	EnvConfigFile      = "HOOKFORGE_CONFIG"
	EnvHost            = "HOOKFORGE_HOST"
	EnvPort            = "HOOKFORGE_PORT"
	EnvLogLevel        = "HOOKFORGE_LOG_LEVEL"
	EnvDataDir         = "HOOKFORGE_DATA_DIR"
	EnvStore           = "HOOKFORGE_STORE"
	EnvMaxBatchOps     = "HOOKFORGE_MAX_BATCH_OPS"
	EnvUndoTTL         = "HOOKFORGE_UNDO_TTL"
	EnvJanitorInterval = "HOOKFORGE_JANITOR_INTERVAL"
	EnvAllowedOrigins  = "HOOKFORGE_ALLOWED_ORIGINS"
	EnvExportDir       = "HOOKFORGE_EXPORT_DIR"

	// Timeline store backends
	StoreSQLite = "sqlite"
	StoreBadger = "badger"

	DBFilename = "hookforge.db"
	BadgerDir  = "timeline.badger"
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	Store() string
	BadgerDir() string
	MaxBatchOps() int
	UndoTTL() time.Duration
	JanitorInterval() time.Duration
	AllowedOrigins() []string
	ExportDir() string
}

// fileConfig is the YAML file layout. Durations use time.ParseDuration syntax.
type fileConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	LogLevel        string   `yaml:"log_level"`
	DataDir         string   `yaml:"data_dir"`
	Store           string   `yaml:"store"`
	MaxBatchOps     int      `yaml:"max_batch_ops"`
	UndoTTL         string   `yaml:"undo_ttl"`
	JanitorInterval string   `yaml:"janitor_interval"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ExportDir       string   `yaml:"export_dir"`
}

// EnvConfig reads configuration from an optional file and the environment
type EnvConfig struct {
	host            string
	port            int
	logLevel        string
	dataDir         string
	store           string
	maxBatchOps     int
	undoTTL         time.Duration
	janitorInterval time.Duration
	allowedOrigins  []string
	exportDir       string
}

// New creates a new EnvConfig with defaults, file values and environment
// variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		host:            DefaultHost,
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		store:           DefaultStore,
		maxBatchOps:     DefaultMaxBatchOps,
		undoTTL:         DefaultUndoTTL,
		janitorInterval: DefaultJanitorInterval,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Host != "" {
		c.host = fc.Host
	}
	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.DataDir != "" {
		c.dataDir = fc.DataDir
	}
	if fc.Store != "" {
		c.store = fc.Store
	}
	if fc.MaxBatchOps != 0 {
		c.maxBatchOps = fc.MaxBatchOps
	}
	if fc.UndoTTL != "" {
		d, err := time.ParseDuration(fc.UndoTTL)
		if err != nil {
			return fmt.Errorf("invalid undo_ttl in %s: %w", path, err)
		}
		c.undoTTL = d
	}
	if fc.JanitorInterval != "" {
		d, err := time.ParseDuration(fc.JanitorInterval)
		if err != nil {
			return fmt.Errorf("invalid janitor_interval in %s: %w", path, err)
		}
		c.janitorInterval = d
	}
	if len(fc.AllowedOrigins) > 0 {
		c.allowedOrigins = fc.AllowedOrigins
	}
	if fc.ExportDir != "" {
		c.exportDir = fc.ExportDir
	}
	return nil
}

func (c *EnvConfig) loadEnv() error {
	if h := os.Getenv(EnvHost); h != "" {
		c.host = h
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}

	if s := os.Getenv(EnvStore); s != "" {
		c.store = strings.ToLower(s)
	}

	if m := os.Getenv(EnvMaxBatchOps); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxBatchOps, err)
		}
		c.maxBatchOps = n
	}

	if v := os.Getenv(EnvUndoTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvUndoTTL, err)
		}
		c.undoTTL = d
	}

	if v := os.Getenv(EnvJanitorInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvJanitorInterval, err)
		}
		c.janitorInterval = d
	}

	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		c.allowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.allowedOrigins = append(c.allowedOrigins, o)
			}
		}
	}

	if v := os.Getenv(EnvExportDir); v != "" {
		c.exportDir = v
	}
	return nil
}

func (c *EnvConfig) validate() error {
	var errs []error
	if c.port < 1 || c.port > 65535 {
		errs = append(errs, errors.New("port must be between 1 and 65535"))
	}
	if c.store != StoreSQLite && c.store != StoreBadger {
		errs = append(errs, fmt.Errorf("store must be %q or %q, got %q", StoreSQLite, StoreBadger, c.store))
	}
	if c.maxBatchOps < 1 {
		errs = append(errs, errors.New("max batch ops must be positive"))
	}
	if c.undoTTL <= 0 {
		errs = append(errs, errors.New("undo ttl must be positive"))
	}
	if c.janitorInterval <= 0 {
		errs = append(errs, errors.New("janitor interval must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Host returns the interface the HTTP server binds to
func (c *EnvConfig) Host() string {
	return c.host
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

// Store returns the timeline store backend, sqlite or badger
func (c *EnvConfig) Store() string {
	return c.store
}

// BadgerDir returns the Badger directory used when Store is badger
func (c *EnvConfig) BadgerDir() string {
	return filepath.Join(c.dataDir, BadgerDir)
}

func (c *EnvConfig) MaxBatchOps() int {
	return c.maxBatchOps
}

func (c *EnvConfig) UndoTTL() time.Duration {
	return c.undoTTL
}

func (c *EnvConfig) JanitorInterval() time.Duration {
	return c.janitorInterval
}

func (c *EnvConfig) AllowedOrigins() []string {
	return c.allowedOrigins
}

// ExportDir is the root EDL files may be written under. Empty disables
// writing EDLs to disk.
func (c *EnvConfig) ExportDir() string {
	return c.exportDir
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
