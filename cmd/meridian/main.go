// Meridian routes outbound HTTP traffic through a geographically sharded
// pool of residential proxy endpoints.
//
// It chooses the best egress proxy for a request while respecting
// per-region quotas, observed endpoint health, and domain stickiness:
//   - Per-region proxy pools with health and latency aggregates
//   - Weighted proxy selection with nearest-region failover
//   - Pluggable cross-region balancing strategies
//   - Background health probing of every endpoint
//   - Prometheus metrics and a JSON admin API
//
// Usage:
//
//	# Start with default configuration
//	meridian run
//
//	# Start with a custom configuration file
//	meridian run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	meridian validate --config /path/to/config.yaml
//
//	# Show version information
//	meridian version
package main

func main() {
	Execute()
}
