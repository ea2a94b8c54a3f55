// Package metrics provides the Prometheus metrics surface for the geo
// proxy sharding engine: request/failover counters and per-region health
// gauges, exposed both as an HTTP scrape handler and as rendered
// exposition-format text.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the Prometheus registry and metric instances for the
// sharding engine. All methods are safe for concurrent use; the
// underlying prometheus types handle their own synchronization.
type Collector struct {
	registry *prometheus.Registry

	totalRequests prometheus.Counter
	failoverCount prometheus.Counter

	regionHealthScore      *prometheus.GaugeVec
	regionAvgLatencyMs     *prometheus.GaugeVec
	regionSuccessRate      *prometheus.GaugeVec
	regionHealthyEndpoints *prometheus.GaugeVec
	regionQuotaUtilization *prometheus.GaugeVec
}

// NewCollector creates a collector registered against the given registry.
// If registry is nil a private registry is created, which keeps tests and
// multiple manager instances from colliding on the default registry.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		totalRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geo_proxy_total_requests",
			Help: "Total proxy selection requests processed.",
		}),
		failoverCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geo_proxy_failover_count",
			Help: "Selections served by a region other than the target region.",
		}),
		regionHealthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geo_proxy_region_health_score",
			Help: "Blended pool health score per region, 0 to 1.",
		}, []string{"region"}),
		regionAvgLatencyMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geo_proxy_region_avg_latency_ms",
			Help: "Mean healthy-endpoint latency per region in milliseconds.",
		}, []string{"region"}),
		regionSuccessRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geo_proxy_region_success_rate",
			Help: "Pooled endpoint success ratio per region, 0 to 1.",
		}, []string{"region"}),
		regionHealthyEndpoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geo_proxy_region_healthy_endpoints",
			Help: "Healthy endpoint count per region.",
		}, []string{"region"}),
		regionQuotaUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geo_proxy_region_quota_utilization",
			Help: "Worst-case quota utilization per region, 0 to 1.",
		}, []string{"region"}),
	}

	registry.MustRegister(
		c.totalRequests,
		c.failoverCount,
		c.regionHealthScore,
		c.regionAvgLatencyMs,
		c.regionSuccessRate,
		c.regionHealthyEndpoints,
		c.regionQuotaUtilization,
	)

	return c
}

// IncTotalRequests increments the selection-request counter.
func (c *Collector) IncTotalRequests() {
	c.totalRequests.Inc()
}

// IncFailover increments the failover counter.
func (c *Collector) IncFailover() {
	c.failoverCount.Inc()
}

// SetRegionStats updates all per-region gauges in one call, typically
// after a pool metrics recomputation.
func (c *Collector) SetRegionStats(region string, healthScore, avgLatencyMs, successRate float64, healthyEndpoints int, quotaUtilization float64) {
	labels := prometheus.Labels{"region": region}
	c.regionHealthScore.With(labels).Set(healthScore)
	c.regionAvgLatencyMs.With(labels).Set(avgLatencyMs)
	c.regionSuccessRate.With(labels).Set(successRate)
	c.regionHealthyEndpoints.With(labels).Set(float64(healthyEndpoints))
	c.regionQuotaUtilization.With(labels).Set(quotaUtilization)
}

// Registry returns the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
