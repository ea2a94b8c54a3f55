package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/meridian/pkg/inventory"
)

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies MERIDIAN_* environment variable overrides on top. Environment
// variables always take precedence over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies MERIDIAN_SECTION_FIELD environment overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("MERIDIAN_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("MERIDIAN_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("MERIDIAN_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("MERIDIAN_SHARDING_DEFAULT_REGION"); val != "" {
		cfg.Sharding.DefaultRegion = val
	}
	if val := os.Getenv("MERIDIAN_SHARDING_FAILOVER_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Sharding.FailoverThreshold = f
		}
	}
	if val := os.Getenv("MERIDIAN_SHARDING_HEALTH_CHECK_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Sharding.HealthCheckInterval = d
		}
	}
	if val := os.Getenv("MERIDIAN_BALANCER_STRATEGY"); val != "" {
		cfg.Balancer.Strategy = val
	}
	if val := os.Getenv("MERIDIAN_BALANCER_LOCAL_REGION"); val != "" {
		cfg.Balancer.LocalRegion = val
	}
	if val := os.Getenv("MERIDIAN_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("MERIDIAN_STORAGE_DB_PATH"); val != "" {
		cfg.Storage.DBPath = val
	}
	if val := os.Getenv("MERIDIAN_REDIS_URL"); val != "" {
		cfg.Redis.URL = val
	}
	if val := os.Getenv("MERIDIAN_GEOIP_DB_PATH"); val != "" {
		cfg.GeoIP.DBPath = val
	}
}

// Inventory is the shape of the watched inventory file: region→proxies
// plus domain affinity, both as plain data.
type Inventory struct {
	Proxies        map[string][]inventory.EndpointSpec `yaml:"proxies"`
	DomainAffinity map[string]string                   `yaml:"domain_affinity"`
}

// LoadInventory parses an inventory YAML file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file %q: %w", path, err)
	}

	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory file %q: %w", path, err)
	}
	return &inv, nil
}
