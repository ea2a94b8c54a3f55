package config

import "time"

// ApplyDefaults fills in zero-valued fields with production defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Sharding.DefaultRegion == "" {
		cfg.Sharding.DefaultRegion = "us-east-1"
	}
	if cfg.Sharding.HealthCheckInterval == 0 {
		cfg.Sharding.HealthCheckInterval = 30 * time.Second
	}
	if cfg.Sharding.ProbeTimeout == 0 {
		cfg.Sharding.ProbeTimeout = 5 * time.Second
	}
	if cfg.Sharding.UnhealthyThreshold == 0 {
		cfg.Sharding.UnhealthyThreshold = 3
	}
	if cfg.Sharding.QuotaMaxPerMinute == 0 {
		cfg.Sharding.QuotaMaxPerMinute = 600
	}
	if cfg.Sharding.QuotaMaxPerHour == 0 {
		cfg.Sharding.QuotaMaxPerHour = 10000
	}

	if cfg.Balancer.Strategy == "" {
		cfg.Balancer.Strategy = "locality-first"
	}
	if cfg.Balancer.LocalRegion == "" {
		cfg.Balancer.LocalRegion = cfg.Sharding.DefaultRegion
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.RetentionDays == 0 {
		cfg.Storage.RetentionDays = 7
	}

	if cfg.Redis.HashKey == "" {
		cfg.Redis.HashKey = "meridian:regions"
	}
}
