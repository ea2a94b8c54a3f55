package config

import (
	"fmt"

	"mercator-hq/meridian/pkg/geo"
)

// Validate checks the configuration for structural errors. Unknown region
// names inside Proxies and DomainAffinity are deliberately not validation
// errors; they are skipped at load time with a warning, favoring
// availability over strict validation of operator-supplied mappings.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address must not be empty")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", cfg.Logging.Format)
	}

	if _, err := geo.ParseRegion(cfg.Sharding.DefaultRegion); err != nil {
		return fmt.Errorf("sharding.default_region: %w", err)
	}
	if cfg.Sharding.FailoverThreshold < 0 || cfg.Sharding.FailoverThreshold > 1 {
		return fmt.Errorf("sharding.failover_threshold %v must be in [0, 1]", cfg.Sharding.FailoverThreshold)
	}
	if cfg.Sharding.UnhealthyThreshold < 1 {
		return fmt.Errorf("sharding.unhealthy_threshold must be at least 1")
	}

	switch cfg.Balancer.Strategy {
	case "locality-first", "round-robin", "latency-based", "cost-optimized":
	default:
		return fmt.Errorf("balancer.strategy %q is not a known strategy", cfg.Balancer.Strategy)
	}
	if _, err := geo.ParseRegion(cfg.Balancer.LocalRegion); err != nil {
		return fmt.Errorf("balancer.local_region: %w", err)
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, sqlite", cfg.Storage.Backend)
	}

	return nil
}
