package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	v, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got := v.GetInt("server.port"); got != 8080 {
		t.Errorf("server.port = %d, want 8080", got)
	}
	if got := v.GetString("logging.format"); got != "json" {
		t.Errorf("logging.format = %q, want json", got)
	}
	if got := v.GetString("database.path"); got != "./data/treeline.db" {
		t.Errorf("database.path = %q, want ./data/treeline.db", got)
	}
	if got := v.GetInt("plugins.treesync.min_devices"); got != 20 {
		t.Errorf("plugins.treesync.min_devices = %d, want 20", got)
	}
	if got := v.GetString("plugins.treesync.internal_label"); got != "CC Infrastructure" {
		t.Errorf("plugins.treesync.internal_label = %q", got)
	}
	if !v.GetBool("plugins.sites.enabled") {
		t.Error("plugins.sites.enabled should default to true")
	}
	if v.GetBool("server.read_only") {
		t.Error("server.read_only should default to false")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("TL_SERVER_PORT", "9191")

	v, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got := v.GetInt("server.port"); got != 9191 {
		t.Errorf("server.port = %d, want 9191 from TL_SERVER_PORT", got)
	}
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "treeline.yaml")
	yaml := []byte("server:\n  port: 9999\nplugins:\n  treesync:\n    min_devices: 5\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got := v.GetInt("server.port"); got != 9999 {
		t.Errorf("server.port = %d, want 9999", got)
	}
	if got := v.GetInt("plugins.treesync.min_devices"); got != 5 {
		t.Errorf("plugins.treesync.min_devices = %d, want 5", got)
	}
	// Keys absent from the file keep their defaults.
	if got := v.GetInt("plugins.treesync.workers"); got != 4 {
		t.Errorf("plugins.treesync.workers = %d, want 4", got)
	}
}

func TestLoadConfig_BadExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestConfigAddr(t *testing.T) {
	c := Config{Host: "127.0.0.1", Port: 8080}
	if got := c.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8080", got)
	}
}
