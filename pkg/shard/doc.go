// Package shard implements the geo-distributed proxy sharding engine:
// per-region endpoint pools with health and latency aggregates, and the
// manager that performs weighted proxy selection with nearest-region
// failover while a background loop probes endpoint health.
//
// Pool aggregates are eventually consistent with respect to concurrent
// health checks; a selection may read a success rate computed before the
// most recent sweep finished. Freshness is traded for request-path
// latency.
package shard
