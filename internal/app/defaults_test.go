package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("TRAIL_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("TRAIL_HOME", "/custom/trail")
		t.Setenv("TRAIL_SCOPE", "club")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults.ConfigPath != "/custom/config.toml" {
			t.Errorf("ConfigPath = %q, want %q", defaults.ConfigPath, "/custom/config.toml")
		}
		if defaults.BaseDir != "/custom/trail" {
			t.Errorf("BaseDir = %q, want %q", defaults.BaseDir, "/custom/trail")
		}
		if defaults.LogDir != "/custom/trail/log" {
			t.Errorf("LogDir = %q, want %q", defaults.LogDir, "/custom/trail/log")
		}
		if defaults.Scope != "club" {
			t.Errorf("Scope = %q, want %q", defaults.Scope, "club")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("TRAIL_CONFIG_PATH", "")
		t.Setenv("TRAIL_HOME", "")
		t.Setenv("TRAIL_SCOPE", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "trail.toml")
		if defaults.ConfigPath != wantConfig {
			t.Errorf("ConfigPath = %q, want %q", defaults.ConfigPath, wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "trail")
		if defaults.BaseDir != wantBase {
			t.Errorf("BaseDir = %q, want %q", defaults.BaseDir, wantBase)
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults.LogDir != wantLog {
			t.Errorf("LogDir = %q, want %q", defaults.LogDir, wantLog)
		}
		if defaults.Scope == "" {
			t.Error("Scope is empty")
		}
	})
}
