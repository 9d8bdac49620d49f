// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = "1.0.0"

[backend]
base_url = "https://api.example.com"
page_size = 50

[push]
url = "wss://api.example.com/socket"

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.Backend.PageSize)
	}
	if cfg.Backend.TimeoutSecs != 15 {
		t.Errorf("TimeoutSecs = %d, want default 15", cfg.Backend.TimeoutSecs)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"backend":{"base_url":"http://localhost:9000"},"push":{"url":"ws://localhost:9000/socket"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:9000" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PHOTOCHAT_BACKEND_URL", "https://override.example.com")
	t.Setenv("PHOTOCHAT_LOG_LEVEL", "warn")
	t.Setenv("PHOTOCHAT_PAGE_SIZE", "33")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Backend.BaseURL != "https://override.example.com" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Backend.PageSize != 33 {
		t.Errorf("PageSize = %d", cfg.Backend.PageSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad backend scheme", func(c *Config) { c.Backend.BaseURL = "ftp://x" }, "backend.base_url"},
		{"bad push scheme", func(c *Config) { c.Push.URL = "http://x" }, "push.url"},
		{"page size too big", func(c *Config) { c.Backend.PageSize = 500 }, "backend.page_size"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tc := range tests {
		cfg := Default()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		verrs, ok := err.(ValidateErrors)
		if !ok || len(verrs) != 1 || verrs[0].Field != tc.field {
			t.Errorf("%s: err = %v, want single error on %s", tc.name, err, tc.field)
		}
	}
}

func TestLoadFixesInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`version = "1.0.0"`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("permissions = %o, want 0600", mode)
	}
}
