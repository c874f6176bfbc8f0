// Package config resolves clutter's runtime settings.
//
// Precedence, highest first: command-line flags (bound by the CLI),
// CLUTTER_* environment variables, an optional config file in the base
// directory, built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all resolved settings.
type Config struct {
	// BaseDir is the clutter home, default ~/.clutter. Everything the
	// tool persists lives under it.
	BaseDir string `mapstructure:"base_dir"`

	// LockWait bounds how long a process waits for another process's
	// per-alias lock before failing with ErrConcurrentModification.
	LockWait time.Duration `mapstructure:"lock_wait"`

	// Debounce batches rapid watcher events before dispatch.
	Debounce time.Duration `mapstructure:"debounce"`

	// MoveWindow is how long the watcher waits to correlate a rename
	// with a matching create before classifying the event as a delete.
	MoveWindow time.Duration `mapstructure:"move_window"`

	// DashboardAddr is the listen address for the daemon's live status
	// server. Empty disables the dashboard.
	DashboardAddr string `mapstructure:"dashboard_addr"`

	// LogFile is the rotating daemon log, relative paths resolve under
	// BaseDir.
	LogFile string `mapstructure:"log_file"`

	// IgnoreFile is the TOML file with indexer ignore rules, relative
	// paths resolve under BaseDir.
	IgnoreFile string `mapstructure:"ignore_file"`
}

// Load resolves the configuration. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	v.SetDefault("base_dir", filepath.Join(home, ".clutter"))
	v.SetDefault("lock_wait", 5*time.Second)
	v.SetDefault("debounce", 100*time.Millisecond)
	v.SetDefault("move_window", 500*time.Millisecond)
	v.SetDefault("dashboard_addr", "")
	v.SetDefault("log_file", filepath.Join("logs", "clutter.log"))
	v.SetDefault("ignore_file", "ignore.toml")

	v.SetEnvPrefix("CLUTTER")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.AddConfigPath(v.GetString("base_dir"))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if !filepath.IsAbs(cfg.LogFile) {
		cfg.LogFile = filepath.Join(cfg.BaseDir, cfg.LogFile)
	}
	if !filepath.IsAbs(cfg.IgnoreFile) {
		cfg.IgnoreFile = filepath.Join(cfg.BaseDir, cfg.IgnoreFile)
	}

	return &cfg, nil
}

// EnsureLayout creates the base directory tree.
func (c *Config) EnsureLayout() error {
	for _, dir := range []string{
		c.BaseDir,
		c.RefsDir(),
		c.SandboxesDir(),
		c.SnapshotsDir(),
		c.LocksDir(),
		filepath.Dir(c.LogFile),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// DBPath is the registry database file.
func (c *Config) DBPath() string { return filepath.Join(c.BaseDir, "clutter.db") }

// RefsDir holds the per-alias reference symlinks.
func (c *Config) RefsDir() string { return filepath.Join(c.BaseDir, "refs") }

// SandboxesDir holds the per-alias working copies.
func (c *Config) SandboxesDir() string { return filepath.Join(c.BaseDir, "sandboxes") }

// SnapshotsDir holds the immutable safety snapshots.
func (c *Config) SnapshotsDir() string { return filepath.Join(c.BaseDir, "snapshots") }

// LocksDir holds the per-alias advisory lock files.
func (c *Config) LocksDir() string { return filepath.Join(c.BaseDir, "locks") }

// PidFile is the daemon's singleton pid file.
func (c *Config) PidFile() string { return filepath.Join(c.BaseDir, "daemon.pid") }

// ResumeFile remembers the last alias touched by work/pull.
func (c *Config) ResumeFile() string { return filepath.Join(c.BaseDir, "last_worked") }
