/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config provides the configuration management system for NestDB.

The configuration system supports multiple sources with clear precedence:
 1. Environment variables (highest priority)
 2. Configuration file
 3. Default values (lowest priority)

Configuration File Format:
The configuration file uses TOML format for readability and ease of use.

Example configuration file:

	# NestDB Configuration
	db_path = "/var/lib/nestdb/nest.ndb"
	buffer_pool_size = 1024   # in pages, 0 = auto-size
	leaf_max_size = 0         # 0 = derive from page size
	internal_max_size = 0     # 0 = derive from page size
	cycle_detection_ms = 50   # deadlock detection interval
	encryption_enabled = false
	log_level = "info"
	log_json = false

Environment Variables:
  - NESTDB_DB_PATH: Path to the database file
  - NESTDB_BUFFER_POOL_SIZE: Buffer pool size in pages (0 = auto)
  - NESTDB_LEAF_MAX_SIZE: Max entries per leaf page (0 = derive)
  - NESTDB_INTERNAL_MAX_SIZE: Max entries per internal page (0 = derive)
  - NESTDB_CYCLE_DETECTION_MS: Deadlock detection interval in milliseconds
  - NESTDB_ENCRYPTION_ENABLED: Enable data-at-rest encryption (true/false)
  - NESTDB_ENCRYPTION_PASSPHRASE: Passphrase for encryption key derivation
  - NESTDB_LOG_LEVEL: Log level (debug, info, warn, error)
  - NESTDB_LOG_JSON: Enable JSON logging (true/false)
  - NESTDB_CONFIG_FILE: Path to configuration file
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Environment variable names for configuration.
const (
	EnvDBPath               = "NESTDB_DB_PATH"
	EnvBufferPoolSize       = "NESTDB_BUFFER_POOL_SIZE"
	EnvLeafMaxSize          = "NESTDB_LEAF_MAX_SIZE"
	EnvInternalMaxSize      = "NESTDB_INTERNAL_MAX_SIZE"
	EnvCycleDetectionMs     = "NESTDB_CYCLE_DETECTION_MS"
	EnvEncryptionEnabled    = "NESTDB_ENCRYPTION_ENABLED"
	EnvEncryptionPassphrase = "NESTDB_ENCRYPTION_PASSPHRASE"
	EnvLogLevel             = "NESTDB_LOG_LEVEL"
	EnvLogJSON              = "NESTDB_LOG_JSON"
	EnvConfigFile           = "NESTDB_CONFIG_FILE"
)

// GetDefaultDataDir returns the default directory for database storage.
// For root users, it uses /var/lib/nestdb (Filesystem Hierarchy Standard).
// For non-root users, it uses ~/.local/share/nestdb (XDG Base Directory).
func GetDefaultDataDir() string {
	if os.Getuid() == 0 {
		return "/var/lib/nestdb"
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "nestdb")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "share", "nestdb")
	}
	return "./data"
}

// DefaultConfigPaths are the configuration file paths searched in order.
var DefaultConfigPaths = []string{
	"/etc/nestdb/nestdb.conf",
	"$HOME/.config/nestdb/nestdb.conf",
	"./nestdb.conf",
}

// Config holds all configuration values for NestDB.
type Config struct {
	// Storage configuration
	DBPath         string `toml:"db_path" json:"db_path"`
	BufferPoolSize int    `toml:"buffer_pool_size" json:"buffer_pool_size"` // in pages, 0 = auto-size

	// Index configuration
	LeafMaxSize     int `toml:"leaf_max_size" json:"leaf_max_size"`         // 0 = derive from page size
	InternalMaxSize int `toml:"internal_max_size" json:"internal_max_size"` // 0 = derive from page size

	// Concurrency configuration
	CycleDetectionMs int `toml:"cycle_detection_ms" json:"cycle_detection_ms"` // deadlock detection interval

	// Encryption configuration for data at rest
	EncryptionEnabled    bool   `toml:"encryption_enabled" json:"encryption_enabled"`
	EncryptionPassphrase string `toml:"-" json:"-"` // Not persisted to file for security

	// Logging configuration
	LogLevel string `toml:"log_level" json:"log_level"`
	LogJSON  bool   `toml:"log_json" json:"log_json"`

	// Metadata
	ConfigFile string `toml:"-" json:"-"` // Path to loaded config file
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		DBPath:           filepath.Join(GetDefaultDataDir(), "nest.ndb"),
		BufferPoolSize:   0, // auto-size based on available memory
		LeafMaxSize:      0, // derive from page size
		InternalMaxSize:  0, // derive from page size
		CycleDetectionMs: 50,
		LogLevel:         "info",
		LogJSON:          false,
	}
}

// Manager handles configuration loading, validation, and access.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

// NewManager creates a new configuration manager with default values.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Global manager instance for convenience.
var globalManager = NewManager()

// Global returns the global configuration manager.
func Global() *Manager {
	return globalManager
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Set updates the configuration.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.DBPath == "" {
		errs = append(errs, "db_path must not be empty")
	}
	if c.BufferPoolSize < 0 {
		errs = append(errs, fmt.Sprintf("invalid buffer_pool_size: %d", c.BufferPoolSize))
	}
	if c.LeafMaxSize < 0 || c.LeafMaxSize == 1 || c.LeafMaxSize == 2 {
		errs = append(errs, fmt.Sprintf("invalid leaf_max_size: %d (must be 0 or >= 3)", c.LeafMaxSize))
	}
	if c.InternalMaxSize < 0 || (c.InternalMaxSize > 0 && c.InternalMaxSize < 3) {
		errs = append(errs, fmt.Sprintf("invalid internal_max_size: %d (must be 0 or >= 3)", c.InternalMaxSize))
	}
	if c.CycleDetectionMs <= 0 {
		errs = append(errs, fmt.Sprintf("invalid cycle_detection_ms: %d (must be > 0)", c.CycleDetectionMs))
	}
	if c.EncryptionEnabled && c.EncryptionPassphrase == "" {
		errs = append(errs, "encryption is enabled but no passphrase is set ("+EnvEncryptionPassphrase+")")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log_level: %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadFromFile loads configuration from a TOML file.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := parseTOML(string(data), m.config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	m.config.ConfigFile = path
	return nil
}

// LoadFromEnv applies environment variable overrides.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v := os.Getenv(EnvDBPath); v != "" {
		m.config.DBPath = v
	}
	if v := os.Getenv(EnvBufferPoolSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.BufferPoolSize = n
		}
	}
	if v := os.Getenv(EnvLeafMaxSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.LeafMaxSize = n
		}
	}
	if v := os.Getenv(EnvInternalMaxSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.InternalMaxSize = n
		}
	}
	if v := os.Getenv(EnvCycleDetectionMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.CycleDetectionMs = n
		}
	}
	if v := os.Getenv(EnvEncryptionEnabled); v != "" {
		m.config.EncryptionEnabled = parseBool(v)
	}
	if v := os.Getenv(EnvEncryptionPassphrase); v != "" {
		m.config.EncryptionPassphrase = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		m.config.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		m.config.LogJSON = parseBool(v)
	}
}

// FindConfigFile returns the first existing config file from the search
// paths, or the empty string when none exists.
func FindConfigFile() string {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		expanded := os.ExpandEnv(path)
		if _, err := os.Stat(expanded); err == nil {
			return expanded
		}
	}
	return ""
}

// Load applies the full precedence chain: defaults, file, environment.
func (m *Manager) Load() error {
	if path := FindConfigFile(); path != "" {
		if err := m.LoadFromFile(path); err != nil {
			return err
		}
	}
	m.LoadFromEnv()

	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()
	return cfg.Validate()
}

// parseTOML parses a minimal TOML subset: key = value lines with comments.
func parseTOML(data string, cfg *Config) error {
	for lineNo, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("line %d: expected key = value", lineNo+1)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		if err := applyConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("line %d: %w", lineNo+1, err)
		}
	}
	return nil
}

// applyConfigValue assigns a single parsed key/value pair.
func applyConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "db_path":
		cfg.DBPath = value
	case "buffer_pool_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("buffer_pool_size: %w", err)
		}
		cfg.BufferPoolSize = n
	case "leaf_max_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("leaf_max_size: %w", err)
		}
		cfg.LeafMaxSize = n
	case "internal_max_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("internal_max_size: %w", err)
		}
		cfg.InternalMaxSize = n
	case "cycle_detection_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("cycle_detection_ms: %w", err)
		}
		cfg.CycleDetectionMs = n
	case "encryption_enabled":
		cfg.EncryptionEnabled = parseBool(value)
	case "log_level":
		cfg.LogLevel = value
	case "log_json":
		cfg.LogJSON = parseBool(value)
	default:
		// Unknown keys are ignored so old config files keep loading.
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// String returns a printable form with secrets elided.
func (c *Config) String() string {
	return fmt.Sprintf(
		"db_path=%s buffer_pool_size=%d leaf_max_size=%d internal_max_size=%d cycle_detection_ms=%d encryption=%t log_level=%s",
		c.DBPath, c.BufferPoolSize, c.LeafMaxSize, c.InternalMaxSize, c.CycleDetectionMs, c.EncryptionEnabled, c.LogLevel)
}
