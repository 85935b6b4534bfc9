// Package config loads the gateway's YAML configuration file and applies
// environment overrides. Structured access only; consumers never re-parse.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UsageStatistics configures the SQLite usage persister.
type UsageStatistics struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db-path"`
	RetentionDays int    `yaml:"retention-days"`
}

// Config represents the application configuration, loaded from a YAML file.
type Config struct {
	// Port the HTTP front end listens on.
	Port int `yaml:"port"`

	// Host overrides the region-derived backend host. Normally empty.
	Host string `yaml:"host"`

	// ProxyURL is an optional outbound proxy (http, https, or socks5).
	ProxyURL string `yaml:"proxy-url"`

	// APIKeys are the inbound client keys; empty disables client auth.
	APIKeys []string `yaml:"api-keys"`

	// CredentialsFile is the HuJSON settings file holding the backend
	// credential. Watched for changes at runtime.
	CredentialsFile string `yaml:"credentials-file"`

	// LoggingToFile switches log output to a rotated file under LogDir.
	LoggingToFile bool   `yaml:"logging-to-file"`
	LogDir        string `yaml:"log-dir"`
	Debug         bool   `yaml:"debug"`

	UsageStatistics UsageStatistics `yaml:"usage-statistics"`
}

func defaults() *Config {
	return &Config{
		Port:            8317,
		CredentialsFile: "credentials.hujson",
		LogDir:          "logs",
		UsageStatistics: UsageStatistics{
			DBPath:        "usage.db",
			RetentionDays: 30,
		},
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment are enough to run.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: invalid port %d", cfg.Port)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("GATEWAY_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_PROXY_URL")); v != "" {
		cfg.ProxyURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_CREDENTIALS_FILE")); v != "" {
		cfg.CredentialsFile = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_API_KEYS")); v != "" {
		keys := strings.Split(v, ",")
		cfg.APIKeys = cfg.APIKeys[:0]
		for _, k := range keys {
			if k = strings.TrimSpace(k); k != "" {
				cfg.APIKeys = append(cfg.APIKeys, k)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_DEBUG")); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}
