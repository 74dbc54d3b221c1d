// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Backend.URL != "http://localhost:5000" {
		t.Errorf("backend url = %q", cfg.Backend.URL)
	}
	if cfg.Chat.DefaultMode != "local" {
		t.Errorf("default mode = %q, want local", cfg.Chat.DefaultMode)
	}
	if got := cfg.PollInterval(); got != 1500*time.Millisecond {
		t.Errorf("poll interval = %v, want 1.5s", got)
	}
	if got := cfg.NoticeDuration(); got != 3*time.Second {
		t.Errorf("notice duration = %v, want 3s", got)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[backend]
url = "https://rag.example.com"
timeout_secs = 30

[chat]
default_mode = "enligne"
default_model = "mistral-7b"

[download]
poll_interval_ms = 500

[ui]
markdown = false
theme = "light"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Backend.URL != "https://rag.example.com" {
		t.Errorf("url = %q", cfg.Backend.URL)
	}
	if cfg.Chat.DefaultMode != "enligne" {
		t.Errorf("mode = %q", cfg.Chat.DefaultMode)
	}
	if cfg.Chat.DefaultModel != "mistral-7b" {
		t.Errorf("model = %q", cfg.Chat.DefaultModel)
	}
	if got := cfg.PollInterval(); got != 500*time.Millisecond {
		t.Errorf("poll interval = %v", got)
	}
	if cfg.UI.Markdown {
		t.Error("markdown should be disabled")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Backend.URL != Default().Backend.URL {
		t.Errorf("url = %q, want default", cfg.Backend.URL)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATRAG_BACKEND_URL", "http://10.0.0.5:5000")
	t.Setenv("CHATRAG_TOKEN", "secret")
	t.Setenv("CHATRAG_MODE", "enligne")
	t.Setenv("CHATRAG_POLL_INTERVAL_MS", "800")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Backend.URL != "http://10.0.0.5:5000" {
		t.Errorf("url = %q", cfg.Backend.URL)
	}
	if cfg.Backend.Credential != "secret" {
		t.Errorf("credential = %q", cfg.Backend.Credential)
	}
	if cfg.Chat.DefaultMode != "enligne" {
		t.Errorf("mode = %q", cfg.Chat.DefaultMode)
	}
	if cfg.Download.PollIntervalMS != 800 {
		t.Errorf("poll interval = %d", cfg.Download.PollIntervalMS)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Backend.URL = "" }},
		{"relative url", func(c *Config) { c.Backend.URL = "localhost" }},
		{"unknown mode", func(c *Config) { c.Chat.DefaultMode = "offline" }},
		{"unknown theme", func(c *Config) { c.UI.Theme = "solarized" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Errorf("error type = %T, want ValidateErrors", err)
			}
		})
	}
}

func TestValidateClampsTimings(t *testing.T) {
	cfg := Default()
	cfg.Download.PollIntervalMS = 50
	cfg.Backend.TimeoutSecs = 0
	cfg.Download.NoticeDurationMS = -1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Download.PollIntervalMS != MinPollIntervalMS {
		t.Errorf("poll interval = %d, want clamped to %d", cfg.Download.PollIntervalMS, MinPollIntervalMS)
	}
	if cfg.Backend.TimeoutSecs != MinTimeoutSecs {
		t.Errorf("timeout = %d, want clamped to %d", cfg.Backend.TimeoutSecs, MinTimeoutSecs)
	}
	if cfg.Download.NoticeDurationMS != 0 {
		t.Errorf("notice duration = %d, want 0", cfg.Download.NoticeDurationMS)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := Default()
	cfg.Backend.URL = "https://rag.example.com"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Errorf("permissions = %o, want 0600", got)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Backend.URL != "https://rag.example.com" {
		t.Errorf("url = %q after round trip", loaded.Backend.URL)
	}
}

func TestLoadFixesPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[backend]\nurl = \"http://localhost:5000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Errorf("permissions = %o, want 0600", got)
	}
}
