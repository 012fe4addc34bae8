// Package config loads backend configuration from a YAML file with
// environment-variable overrides for the deployment knobs.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Broker   BrokerConfig   `yaml:"broker"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
	Audit    AuditConfig    `yaml:"audit"`
	Defense  DefenseConfig  `yaml:"defense"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"` // "local" | "production"
}

type BrokerConfig struct {
	// Mode selects the broker backend: "memory", "redis" or "pubsub".
	Mode          string `yaml:"mode"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PubSubProject string `yaml:"pubsub_project"`
}

type PrivacyConfig struct {
	// PrivacyMode on means only corporate destinations are captured.
	PrivacyMode bool `yaml:"privacy_mode"`
	// MonitorUnknown keeps the monitor-by-default stance for external
	// destinations without a domain hint; false drops them instead.
	MonitorUnknown bool `yaml:"monitor_unknown"`
}

type AuditConfig struct {
	LedgerPath string `yaml:"ledger_path"`
}

type DefenseConfig struct {
	AutoQuarantineThreshold float64 `yaml:"auto_quarantine_threshold"`
}

type AlertsConfig struct {
	WindowSize int `yaml:"window_size"`
}

type AnalyzerConfig struct {
	EnableClassifier bool `yaml:"enable_classifier"`
}

// Default returns the local-mode configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, Env: "local"},
		Broker:   BrokerConfig{Mode: "memory", RedisAddr: "localhost:6379"},
		Privacy:  PrivacyConfig{PrivacyMode: true, MonitorUnknown: true},
		Audit:    AuditConfig{LedgerPath: "logs/audit_ledger.jsonl"},
		Defense:  DefenseConfig{AutoQuarantineThreshold: 0.90},
		Alerts:   AlertsConfig{WindowSize: 100},
		Analyzer: AnalyzerConfig{EnableClassifier: true},
	}
}

// Load reads path (when non-empty and present) over the defaults, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv maps SH_* environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("SH_ENV"); v != "" {
		c.Server.Env = strings.ToLower(v)
	}
	if v := os.Getenv("SH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SH_BROKER_MODE"); v != "" {
		c.Broker.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("SH_REDIS_ADDR"); v != "" {
		c.Broker.RedisAddr = v
	}
	if v := os.Getenv("SH_PUBSUB_PROJECT"); v != "" {
		c.Broker.PubSubProject = v
	}
	if v := os.Getenv("SH_PRIVACY_MODE"); v != "" {
		c.Privacy.PrivacyMode = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("SH_MONITOR_UNKNOWN"); v != "" {
		c.Privacy.MonitorUnknown = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("SH_AUDIT_LEDGER_PATH"); v != "" {
		c.Audit.LedgerPath = v
	}
}
