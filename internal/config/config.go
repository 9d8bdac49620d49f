// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for photochat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.photochat/config.toml
//   - ~/.photochat/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/photochat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete photochat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend is the REST API configuration
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Push is the live event channel configuration
	Push PushConfig `toml:"push" json:"push"`

	// Cache is the local credential/profile cache configuration
	Cache CacheConfig `toml:"cache" json:"cache"`

	// Log is the logging configuration
	Log LogConfig `toml:"log" json:"log"`
}

// BackendConfig contains REST API settings.
type BackendConfig struct {
	// BaseURL is the backend API root, e.g. https://api.example.com
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the per-request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// PageSize is the message history page size
	PageSize int `toml:"page_size" json:"page_size"`
}

// PushConfig contains live event channel settings.
type PushConfig struct {
	// URL is the push endpoint, e.g. wss://api.example.com/socket
	URL string `toml:"url" json:"url"`
	// StopTypingDelayMs is how long after the last keystroke the stop
	// signal is emitted
	StopTypingDelayMs int `toml:"stop_typing_delay_ms" json:"stop_typing_delay_ms"`
	// HandshakeTimeoutSecs bounds the websocket dial
	HandshakeTimeoutSecs int `toml:"handshake_timeout_secs" json:"handshake_timeout_secs"`
}

// CacheConfig contains local cache settings.
type CacheConfig struct {
	// Path is the SQLite cache file (empty = ~/.photochat/cache.db)
	Path string `toml:"path" json:"path"`
	// InMemory skips the on-disk cache entirely
	InMemory bool `toml:"in_memory" json:"in_memory"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of: trace, debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Pretty enables human-readable console output instead of JSON
	Pretty bool `toml:"pretty" json:"pretty"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Backend: BackendConfig{
			BaseURL:     "http://127.0.0.1:8080",
			TimeoutSecs: 15,
			PageSize:    20,
		},
		Push: PushConfig{
			URL:                  "ws://127.0.0.1:8080/socket",
			StopTypingDelayMs:    2000,
			HandshakeTimeoutSecs: 10,
		},
		Cache: CacheConfig{
			Path:     "",
			InMemory: false,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the photochat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".photochat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// DefaultCachePath returns the on-disk cache location used when the config
// does not name one.
func DefaultCachePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 because they may hold tokens.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finish(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finish(cfg)
		}
	}

	return finish(cfg)
}

// LoadFromPath loads configuration from an explicit file, picking the codec
// by extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = def.Backend.BaseURL
	}
	if cfg.Backend.TimeoutSecs <= 0 {
		cfg.Backend.TimeoutSecs = def.Backend.TimeoutSecs
	}
	if cfg.Backend.PageSize <= 0 {
		cfg.Backend.PageSize = def.Backend.PageSize
	}
	if cfg.Push.URL == "" {
		cfg.Push.URL = def.Push.URL
	}
	if cfg.Push.StopTypingDelayMs <= 0 {
		cfg.Push.StopTypingDelayMs = def.Push.StopTypingDelayMs
	}
	if cfg.Push.HandshakeTimeoutSecs <= 0 {
		cfg.Push.HandshakeTimeoutSecs = def.Push.HandshakeTimeoutSecs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies PHOTOCHAT_* environment variables over the
// loaded values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PHOTOCHAT_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("PHOTOCHAT_PUSH_URL"); v != "" {
		c.Push.URL = v
	}
	if v := os.Getenv("PHOTOCHAT_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Backend.PageSize = n
		}
	}
	if v := os.Getenv("PHOTOCHAT_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("PHOTOCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the TOML config file.
// RELIABILITY: Atomic write prevents a torn config on crash.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600, 0700)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	parts := make([]string, len(e))
	for i, err := range e {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("must be an http(s) URL, got %q", c.Backend.BaseURL),
		})
	}
	if u, err := url.Parse(c.Push.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, ValidationError{
			Field:   "push.url",
			Message: fmt.Sprintf("must be a ws(s) URL, got %q", c.Push.URL),
		})
	}
	if c.Backend.PageSize < 1 || c.Backend.PageSize > 100 {
		errs = append(errs, ValidationError{
			Field:   "backend.page_size",
			Message: fmt.Sprintf("must be between 1 and 100, got %d", c.Backend.PageSize),
		})
	}
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("must be one of trace, debug, info, warn, error; got %q", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
