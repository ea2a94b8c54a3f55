package config

import (
	"time"

	"mercator-hq/meridian/pkg/inventory"
)

// Config is the root configuration for the meridian binary.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sharding ShardingConfig `yaml:"sharding"`
	Balancer BalancerConfig `yaml:"balancer"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	GeoIP    GeoIPConfig    `yaml:"geoip"`

	// Proxies maps region names to the proxy endpoints assigned to
	// them. The reserved "auto" key holds endpoints whose region is
	// resolved from their address via GeoIP (falling back to the
	// default region). Unknown region names are skipped at load time,
	// not rejected.
	Proxies map[string][]inventory.EndpointSpec `yaml:"proxies"`

	// DomainAffinity maps target domains to region names for sticky
	// routing.
	DomainAffinity map[string]string `yaml:"domain_affinity"`

	// InventoryFile is an optional path to a separate proxies/affinity
	// YAML file watched for changes at runtime.
	InventoryFile string `yaml:"inventory_file"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// ShardingConfig configures the shard manager.
type ShardingConfig struct {
	DefaultRegion       string        `yaml:"default_region"`
	FailoverThreshold   float64       `yaml:"failover_threshold"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	UnhealthyThreshold  int           `yaml:"unhealthy_threshold"`
	QuotaMaxPerMinute   int           `yaml:"quota_max_per_minute"`
	QuotaMaxPerHour     int           `yaml:"quota_max_per_hour"`
}

// BalancerConfig configures the cross-region balancer.
type BalancerConfig struct {
	Strategy    string `yaml:"strategy"`
	LocalRegion string `yaml:"local_region"`
}

// StorageConfig configures the selection journal.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// DBPath is the SQLite database path (sqlite backend only).
	DBPath string `yaml:"db_path"`

	// RetentionDays is how long journal records are kept.
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Empty disables it.
	PruneSchedule string `yaml:"prune_schedule"`
}

// RedisConfig configures the optional stats snapshot publisher.
type RedisConfig struct {
	// URL is a redis:// connection URL. Empty disables publishing.
	URL string `yaml:"url"`

	// HashKey is the Redis hash the snapshots are written to.
	HashKey string `yaml:"hash_key"`
}

// GeoIPConfig configures region resolution for endpoints whose config
// carries no region.
type GeoIPConfig struct {
	// DBPath is a MaxMind GeoIP2/GeoLite2 database path. Empty
	// disables GeoIP resolution.
	DBPath string `yaml:"db_path"`
}
