package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8317 {
		t.Errorf("Port = %d, want default 8317", cfg.Port)
	}
	if cfg.CredentialsFile != "credentials.hujson" {
		t.Errorf("CredentialsFile = %q, want default", cfg.CredentialsFile)
	}
	if cfg.UsageStatistics.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want default 30", cfg.UsageStatistics.RetentionDays)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
port: 9000
proxy-url: "socks5://127.0.0.1:1080"
api-keys:
  - key-one
  - key-two
credentials-file: /etc/gateway/creds.hujson
debug: true
usage-statistics:
  enabled: true
  db-path: /var/lib/gateway/usage.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Errorf("ProxyURL = %q", cfg.ProxyURL)
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[0] != "key-one" {
		t.Errorf("APIKeys = %v", cfg.APIKeys)
	}
	if !cfg.Debug {
		t.Error("Debug not set")
	}
	if !cfg.UsageStatistics.Enabled || cfg.UsageStatistics.DBPath != "/var/lib/gateway/usage.db" {
		t.Errorf("UsageStatistics = %+v", cfg.UsageStatistics)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "port: 9000\n")

	t.Setenv("GATEWAY_PORT", "9100")
	t.Setenv("GATEWAY_API_KEYS", "a, b , ,c")
	t.Setenv("GATEWAY_DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Port)
	}
	if len(cfg.APIKeys) != 3 || cfg.APIKeys[2] != "c" {
		t.Errorf("APIKeys = %v, want trimmed non-empty entries", cfg.APIKeys)
	}
	if !cfg.Debug {
		t.Error("GATEWAY_DEBUG not applied")
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	for _, content := range []string{"port: 0\n", "port: -1\n", "port: 70000\n"} {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("Load accepted %q", content)
		}
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "port: [not a number\n")); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}
