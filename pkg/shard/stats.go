package shard

import (
	"time"

	"mercator-hq/meridian/pkg/geo"
)

// RegionStats is a snapshot of one region: pool aggregates plus quota
// state.
type RegionStats struct {
	Region           geo.Region `json:"region"`
	TotalCount       int        `json:"total_count"`
	HealthyCount     int        `json:"healthy_count"`
	AvgLatencyMs     float64    `json:"avg_latency_ms"`
	SuccessRate      float64    `json:"success_rate"`
	HealthScore      float64    `json:"health_score"`
	Available        bool       `json:"available"`
	QuotaUtilization float64    `json:"quota_utilization"`
	QuotaLimited     bool       `json:"quota_limited"`
}

// Stats is a snapshot of the whole manager.
type Stats struct {
	TotalRequests      int64                  `json:"total_requests"`
	SuccessfulRequests int64                  `json:"successful_requests"`
	SuccessRate        float64                `json:"success_rate"`
	FailoverCount      int64                  `json:"failover_count"`
	Regions            map[string]RegionStats `json:"regions"`
	Timestamp          time.Time              `json:"timestamp"`
}

// RegionStats returns a snapshot for one region, or nil for an empty or
// unknown region value.
func (m *Manager) RegionStats(region geo.Region) *RegionStats {
	pool, ok := m.pools[region]
	if !ok {
		return nil
	}

	poolStats := pool.Stats()
	q := m.quotas[region]

	return &RegionStats{
		Region:           region,
		TotalCount:       poolStats.TotalCount,
		HealthyCount:     poolStats.HealthyCount,
		AvgLatencyMs:     poolStats.AvgLatencyMs,
		SuccessRate:      poolStats.SuccessRate,
		HealthScore:      poolStats.HealthScore,
		Available:        poolStats.Available,
		QuotaUtilization: q.Utilization(),
		QuotaLimited:     q.IsRateLimited(),
	}
}

// AllStats returns a snapshot across all regions plus the manager
// counters. With no requests recorded the overall success rate is 0.
func (m *Manager) AllStats() *Stats {
	total := m.totalRequests.Load()
	successful := m.successfulRequests.Load()

	successRate := 0.0
	if total > 0 {
		successRate = float64(successful) / float64(total)
	}

	regions := make(map[string]RegionStats, len(m.pools))
	for _, region := range geo.AllRegions() {
		if rs := m.RegionStats(region); rs != nil {
			regions[region.String()] = *rs
		}
	}

	return &Stats{
		TotalRequests:      total,
		SuccessfulRequests: successful,
		SuccessRate:        successRate,
		FailoverCount:      m.failoverCount.Load(),
		Regions:            regions,
		Timestamp:          m.now(),
	}
}

// MetricsPrometheus renders the manager's metrics as Prometheus
// exposition-format text. Per-region gauges are refreshed from the
// current pool aggregates before rendering.
func (m *Manager) MetricsPrometheus() (string, error) {
	m.refreshRegionGauges()
	return m.collector.Render()
}

// refreshRegionGauges pushes current pool aggregates into the per-region
// gauges.
func (m *Manager) refreshRegionGauges() {
	for _, region := range geo.AllRegions() {
		rs := m.RegionStats(region)
		if rs == nil {
			continue
		}
		m.collector.SetRegionStats(
			region.String(),
			rs.HealthScore,
			rs.AvgLatencyMs,
			rs.SuccessRate,
			rs.HealthyCount,
			rs.QuotaUtilization,
		)
	}
}
