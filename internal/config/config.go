// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the chatRAG client.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.chatrag/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatrag-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete client configuration.
type Config struct {
	// Backend connection settings
	Backend BackendConfig `toml:"backend"`

	// Chat defaults
	Chat ChatConfig `toml:"chat"`

	// Download monitor settings
	Download DownloadConfig `toml:"download"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// BackendConfig contains backend connection configuration.
type BackendConfig struct {
	// URL is the base URL of the chatRAG backend
	URL string `toml:"url"`
	// Credential is the bearer credential for the session.
	// Prefer the CHATRAG_TOKEN environment variable over storing it here.
	Credential string `toml:"credential"`
	// TimeoutSecs is the request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs"`
}

// ChatConfig contains chat defaults.
type ChatConfig struct {
	// DefaultMode is the agent mode at startup: "local" or "enligne"
	DefaultMode string `toml:"default_mode"`
	// DefaultModel preselects a model by id; empty picks the catalog's first
	DefaultModel string `toml:"default_model"`
}

// DownloadConfig contains download monitor configuration.
type DownloadConfig struct {
	// PollIntervalMS is the pause between download progress checks.
	// Values below the floor are clamped.
	PollIntervalMS int `toml:"poll_interval_ms"`
	// NoticeDurationMS is how long the finished notice stays visible
	NoticeDurationMS int `toml:"notice_duration_ms"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Markdown renders assistant replies as markdown when true
	Markdown bool `toml:"markdown"`
	// Theme selects the color theme: "dark" or "light"
	Theme string `toml:"theme"`
}

// Limits applied during validation.
const (
	// MinPollIntervalMS is the floor for the progress poll pause.
	// Anything lower hammers the backend for no visible benefit.
	MinPollIntervalMS = 200

	// MinTimeoutSecs is the floor for the request timeout.
	MinTimeoutSecs = 1
)

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:         "http://localhost:5000",
			TimeoutSecs: 120,
		},
		Chat: ChatConfig{
			DefaultMode: "local",
		},
		Download: DownloadConfig{
			PollIntervalMS:   1500,
			NoticeDurationMS: 3000,
		},
		UI: UIConfig{
			Markdown: true,
			Theme:    "dark",
		},
	}
}

// ConfigDir returns the configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatrag"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back
// to defaults when no file exists. Environment overrides are applied
// last, then validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from an explicit file path. A
// missing file is not an error; the defaults apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ensureSecurePermissions checks and fixes permissions on the config
// file. The credential may be stored there, so 0600 only.
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
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CHATRAG_* environment variables over the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATRAG_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("CHATRAG_TOKEN"); v != "" {
		c.Backend.Credential = v
	}
	if v := os.Getenv("CHATRAG_MODE"); v != "" {
		c.Chat.DefaultMode = v
	}
	if v := os.Getenv("CHATRAG_MODEL"); v != "" {
		c.Chat.DefaultModel = v
	}
	if v := os.Getenv("CHATRAG_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Download.PollIntervalMS = n
		}
	}
	if v := os.Getenv("CHATRAG_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors aggregates validation failures.
type ValidateErrors []ValidationError

// Error implements the error interface.
func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for problems. Out-of-range timing
// values are clamped rather than rejected.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Backend.URL == "" {
		errs = append(errs, ValidationError{"backend.url", "must not be empty"})
	} else if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{"backend.url", "must be a valid absolute URL"})
	}

	switch c.Chat.DefaultMode {
	case "local", "enligne":
	default:
		errs = append(errs, ValidationError{"chat.default_mode", `must be "local" or "enligne"`})
	}

	switch c.UI.Theme {
	case "dark", "light":
	default:
		errs = append(errs, ValidationError{"ui.theme", `must be "dark" or "light"`})
	}

	if c.Backend.TimeoutSecs < MinTimeoutSecs {
		c.Backend.TimeoutSecs = MinTimeoutSecs
	}
	if c.Download.PollIntervalMS < MinPollIntervalMS {
		c.Download.PollIntervalMS = MinPollIntervalMS
	}
	if c.Download.NoticeDurationMS < 0 {
		c.Download.NoticeDurationMS = 0
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Timeout returns the backend request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSecs) * time.Second
}

// PollInterval returns the download poll pause.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Download.PollIntervalMS) * time.Millisecond
}

// NoticeDuration returns the finished-notice lifetime.
func (c *Config) NoticeDuration() time.Duration {
	return time.Duration(c.Download.NoticeDurationMS) * time.Millisecond
}

// Save writes the configuration to the default config file. The write
// is atomic and the file is restricted to the owner because it may
// hold the credential.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}
