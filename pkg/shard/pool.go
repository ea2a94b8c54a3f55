package shard

import (
	"sync"
	"time"

	"mercator-hq/meridian/pkg/geo"
	"mercator-hq/meridian/pkg/inventory"
)

// historyCapacity bounds the per-pool request history. The buffer is
// circular: once full, each append overwrites the oldest record.
const historyCapacity = 1000

// RequestRecord is one entry in a pool's request history.
type RequestRecord struct {
	ProxyID   string    `json:"proxy_id"`
	Success   bool      `json:"success"`
	LatencyMs int       `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// RegionalPool owns the proxy endpoints assigned to one region along with
// derived health aggregates and a bounded request history.
//
// The pool is mutated concurrently by the health-check sweep and the
// selection path, so all state is guarded by the pool lock. Aggregates
// are only recomputed by UpdateMetrics, never inline on the request path.
type RegionalPool struct {
	mu sync.Mutex

	region    geo.Region
	endpoints []*inventory.Endpoint

	// history is a fixed-capacity circular buffer; head is the next
	// write slot and size the number of valid records.
	history [historyCapacity]RequestRecord
	head    int
	size    int

	// Aggregates, recomputed over currently-healthy endpoints.
	healthyCount int
	avgLatencyMs float64
	successRate  float64
	healthScore  float64
}

// NewRegionalPool creates an empty pool for the given region.
func NewRegionalPool(region geo.Region) *RegionalPool {
	return &RegionalPool{region: region}
}

// Region returns the region this pool serves.
func (p *RegionalPool) Region() geo.Region {
	return p.region
}

// AddEndpoint appends an endpoint to the pool. The endpoint's region is
// force-set to the pool's region so records can never disagree with the
// pool that owns them, regardless of what the caller supplied.
func (p *RegionalPool) AddEndpoint(ep *inventory.Endpoint) {
	ep.SetRegion(p.region)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = append(p.endpoints, ep)
}

// Endpoints returns a copy of the endpoint list in insertion order.
func (p *RegionalPool) Endpoints() []*inventory.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*inventory.Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// FindEndpoint returns the endpoint with the given ID, or nil.
func (p *RegionalPool) FindEndpoint(id string) *inventory.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ep := range p.endpoints {
		if ep.ID == id {
			return ep
		}
	}
	return nil
}

// HealthyEndpoints returns endpoints with a healthy status, preserving
// insertion order.
func (p *RegionalPool) HealthyEndpoints() []*inventory.Endpoint {
	p.mu.Lock()
	endpoints := make([]*inventory.Endpoint, len(p.endpoints))
	copy(endpoints, p.endpoints)
	p.mu.Unlock()

	healthy := make([]*inventory.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.GetStatus() == inventory.StatusHealthy {
			healthy = append(healthy, ep)
		}
	}
	return healthy
}

// AvailableEndpoints returns healthy endpoints that are not currently
// rate-limited at the endpoint level.
func (p *RegionalPool) AvailableEndpoints() []*inventory.Endpoint {
	healthy := p.HealthyEndpoints()

	available := make([]*inventory.Endpoint, 0, len(healthy))
	for _, ep := range healthy {
		if !ep.IsRateLimited() {
			available = append(available, ep)
		}
	}
	return available
}

// UpdateMetrics recomputes the pool aggregates over currently-healthy
// endpoints. An empty or all-unhealthy pool yields zero latency, zero
// success rate and a zero health score.
func (p *RegionalPool) UpdateMetrics() {
	healthy := p.HealthyEndpoints()

	var (
		latencySum int
		successSum int
		failureSum int
	)
	for _, ep := range healthy {
		snap := ep.Snapshot()
		latencySum += snap.ResponseTimeMs
		successSum += snap.SuccessCount
		failureSum += snap.FailureCount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.healthyCount = len(healthy)

	if len(healthy) == 0 {
		p.avgLatencyMs = 0
	} else {
		p.avgLatencyMs = float64(latencySum) / float64(len(healthy))
	}

	if successSum+failureSum == 0 {
		p.successRate = 0
	} else {
		p.successRate = float64(successSum) / float64(successSum+failureSum)
	}

	total := len(p.endpoints)
	if total == 0 {
		p.healthScore = 0
		return
	}

	// Blend of healthy-fraction and observed success rate. Either
	// signal alone is misleading: a pool can be fully healthy with a
	// poor success rate, or have one excellent endpoint among many
	// dead ones.
	healthyFraction := float64(p.healthyCount) / float64(total)
	p.healthScore = (healthyFraction + p.successRate) / 2
}

// RecordRequest appends an entry to the request history. Once the buffer
// holds historyCapacity records the oldest entry is overwritten, so the
// most recent records are always retained.
func (p *RegionalPool) RecordRequest(proxyID string, success bool, latencyMs int, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history[p.head] = RequestRecord{
		ProxyID:   proxyID,
		Success:   success,
		LatencyMs: latencyMs,
		Timestamp: at,
	}
	p.head = (p.head + 1) % historyCapacity
	if p.size < historyCapacity {
		p.size++
	}
}

// History returns the request history oldest-first. The newest record is
// always last.
func (p *RegionalPool) History() []RequestRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]RequestRecord, 0, p.size)
	start := p.head - p.size
	if start < 0 {
		start += historyCapacity
	}
	for i := 0; i < p.size; i++ {
		out = append(out, p.history[(start+i)%historyCapacity])
	}
	return out
}

// HistoryLen returns the number of records currently in the history.
func (p *RegionalPool) HistoryLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// TotalCount returns the number of endpoints assigned to the pool.
func (p *RegionalPool) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// HealthyCount returns the healthy-endpoint count as of the last
// UpdateMetrics.
func (p *RegionalPool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthyCount
}

// AvgLatencyMs returns the mean healthy-endpoint latency as of the last
// UpdateMetrics.
func (p *RegionalPool) AvgLatencyMs() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.avgLatencyMs
}

// SuccessRate returns the pooled success ratio as of the last
// UpdateMetrics.
func (p *RegionalPool) SuccessRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successRate
}

// HealthScore returns the blended health score in [0, 1] as of the last
// UpdateMetrics.
func (p *RegionalPool) HealthScore() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthScore
}

// Available reports whether the pool has endpoints and a non-zero health
// score.
func (p *RegionalPool) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints) > 0 && p.healthScore > 0
}

// Stats returns a point-in-time snapshot of the pool aggregates.
func (p *RegionalPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Region:       p.region,
		TotalCount:   len(p.endpoints),
		HealthyCount: p.healthyCount,
		AvgLatencyMs: p.avgLatencyMs,
		SuccessRate:  p.successRate,
		HealthScore:  p.healthScore,
		Available:    len(p.endpoints) > 0 && p.healthScore > 0,
	}
}

// PoolStats is a snapshot of one pool's aggregates.
type PoolStats struct {
	Region       geo.Region `json:"region"`
	TotalCount   int        `json:"total_count"`
	HealthyCount int        `json:"healthy_count"`
	AvgLatencyMs float64    `json:"avg_latency_ms"`
	SuccessRate  float64    `json:"success_rate"`
	HealthScore  float64    `json:"health_score"`
	Available    bool       `json:"available"`
}
