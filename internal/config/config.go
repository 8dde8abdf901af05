// Package config provides configuration management for spiral.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultWorkerPort    = 8917
	DefaultPrimaryModel  = "gemini-2.5-flash"
	DefaultFallbackModel = "gemini-2.0-flash"
	DefaultGenTimeoutSec = 20
	DefaultMaxConns      = 4
)

// Config holds runtime settings for the worker.
type Config struct {
	WorkerPort    int    `yaml:"worker_port"`
	MaxConns      int    `yaml:"max_conns"`
	PrimaryModel  string `yaml:"primary_model"`
	FallbackModel string `yaml:"fallback_model"`
	GenTimeoutSec int    `yaml:"gen_timeout_sec"`
	RedisAddr     string `yaml:"redis_addr"` // empty = archetype cache disabled
	DBPath        string `yaml:"db_path"`
}

var (
	mu      sync.RWMutex
	current *Config
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		WorkerPort:    DefaultWorkerPort,
		MaxConns:      DefaultMaxConns,
		PrimaryModel:  DefaultPrimaryModel,
		FallbackModel: DefaultFallbackModel,
		GenTimeoutSec: DefaultGenTimeoutSec,
		DBPath:        DBPath(),
	}
}

// DataDir returns the spiral data directory (~/.spiral).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".spiral")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "spiral.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// CrisisPhrasesPath returns the optional crisis phrase override file path.
func CrisisPhrasesPath() string {
	return filepath.Join(DataDir(), "crisis_phrases.txt")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureAll creates the data directory and default settings.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads settings from disk, applies env overrides, and caches the
// result for Get.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.WorkerPort <= 0 {
		cfg.WorkerPort = DefaultWorkerPort
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.GenTimeoutSec <= 0 {
		cfg.GenTimeoutSec = DefaultGenTimeoutSec
	}
	if cfg.PrimaryModel == "" {
		cfg.PrimaryModel = DefaultPrimaryModel
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = DefaultFallbackModel
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DBPath()
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// Get returns the cached config, loading defaults if Load was never called.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}
	loaded, err := Load()
	if err != nil {
		return Default()
	}
	return loaded
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPIRAL_WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPort = port
		}
	}
	if v := os.Getenv("SPIRAL_PRIMARY_MODEL"); v != "" {
		cfg.PrimaryModel = v
	}
	if v := os.Getenv("SPIRAL_FALLBACK_MODEL"); v != "" {
		cfg.FallbackModel = v
	}
	if v := os.Getenv("SPIRAL_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("SPIRAL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
}
