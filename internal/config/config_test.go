//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("empty path gives in-memory defaults", func(t *testing.T) {
		cfg, err := LoadConfig("", true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Storage.Driver != DriverMemory || cfg.HTTP.Port != 8080 {
			t.Errorf("unexpected defaults %+v", cfg)
		}
		if cfg.Chat.MinDelay != time.Second || cfg.Chat.MaxDelay != 2*time.Second {
			t.Errorf("unexpected delay window %s..%s", cfg.Chat.MinDelay, cfg.Chat.MaxDelay)
		}
		if !cfg.Chat.GreetingEnabled() || cfg.Chat.TemplatesLang != "en" {
			t.Errorf("unexpected chat defaults %+v", cfg.Chat)
		}
		if cfg.Redis.TTL != 24*time.Hour || !cfg.Runtime.Dev {
			t.Errorf("unexpected runtime/redis defaults")
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
log:
  level: debug
  format: console
http:
  port: 9090
chat:
  min_delay: 100ms
  max_delay: 300ms
  seed_greeting: false
lexicon:
  database: ["MariaDB"]
profile:
  operating_system: Ubuntu 22.04 LTS
  include_database: false
`)
		cfg, err := LoadConfig(path, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.HTTP.Port != 9090 || cfg.Log.Level != "debug" {
			t.Errorf("overrides not applied: %+v", cfg)
		}
		if cfg.Chat.MinDelay != 100*time.Millisecond || cfg.Chat.GreetingEnabled() {
			t.Errorf("chat overrides not applied: %+v", cfg.Chat)
		}
		if len(cfg.Lexicon.Database) != 1 || !cfg.Profile.IsSet() {
			t.Errorf("lexicon/profile not parsed")
		}
		if cfg.Profile.IncludeDatabase == nil || *cfg.Profile.IncludeDatabase {
			t.Errorf("expected include_database=false")
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"inverted window", "chat:\n  min_delay: 3s\n  max_delay: 1s\n", "min_delay"},
		{"unknown driver", "storage:\n  driver: sqlite\n", "unknown storage.driver"},
		{"postgres without url", "storage:\n  driver: postgres\n", "database.url"},
		{"redis without url", "storage:\n  driver: redis\n", "redis.url"},
		{"limit without redis", "chat:\n  submit_limit: 5\n", "submit_limit"},
		{"bad key length", "security:\n  encryption_key: short\n", "encryption_key"},
		{"short auth secret", "http:\n  auth_secret: tiny\n", "auth_secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body), false)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
