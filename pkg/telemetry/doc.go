// Package telemetry groups Meridian's observability surfaces.
//
//   - logging: process-wide structured logging via log/slog
//   - metrics: Prometheus counters and per-region gauges
package telemetry
