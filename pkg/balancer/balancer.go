// Package balancer implements cross-region load balancing on top of the
// shard manager. The balancer chooses which region a request should
// target according to a selectable strategy, then delegates endpoint
// selection inside that region to the manager.
package balancer

import (
	"fmt"
	"sync/atomic"

	"mercator-hq/meridian/pkg/geo"
	"mercator-hq/meridian/pkg/inventory"
	"mercator-hq/meridian/pkg/shard"
)

// Strategy selects which region a request targets.
type Strategy string

const (
	// StrategyLocalityFirst prefers the local region while it has
	// healthy endpoints, then the nearest region that does.
	StrategyLocalityFirst Strategy = "locality-first"

	// StrategyRoundRobin rotates across available regions.
	StrategyRoundRobin Strategy = "round-robin"

	// StrategyLatencyBased picks the region with the lowest average
	// healthy-endpoint latency.
	StrategyLatencyBased Strategy = "latency-based"

	// StrategyCostOptimized picks the region with the highest pool
	// success rate; ties resolve to the earliest region in canonical
	// order.
	StrategyCostOptimized Strategy = "cost-optimized"
)

// ParseStrategy resolves a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLocalityFirst, StrategyRoundRobin, StrategyLatencyBased, StrategyCostOptimized:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown balancing strategy %q", s)
	}
}

// CrossRegionBalancer wraps a shard manager and chooses target regions
// via its configured strategy. It is safe for concurrent use.
type CrossRegionBalancer struct {
	manager     *shard.Manager
	strategy    Strategy
	localRegion geo.Region

	// rrCounter is the monotonic round-robin cursor. Each call
	// increments first, then indexes, so a fresh balancer over [A,B]
	// yields B, A, B, ...
	rrCounter atomic.Int64
}

// New creates a balancer. An unknown strategy or invalid local region is
// a construction-time error; selection itself never fails structurally.
func New(manager *shard.Manager, strategy Strategy, localRegion geo.Region) (*CrossRegionBalancer, error) {
	if manager == nil {
		return nil, fmt.Errorf("balancer requires a shard manager")
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if !localRegion.IsValid() {
		return nil, fmt.Errorf("invalid local region %q", localRegion)
	}

	return &CrossRegionBalancer{
		manager:     manager,
		strategy:    strategy,
		localRegion: localRegion,
	}, nil
}

// Strategy returns the configured strategy.
func (b *CrossRegionBalancer) Strategy() Strategy {
	return b.strategy
}

// SelectRegion chooses the region a request for the given domain should
// target. A domain affinity pin takes precedence over the strategy; with
// no pin the configured strategy decides.
func (b *CrossRegionBalancer) SelectRegion(targetDomain string) geo.Region {
	if targetDomain != "" {
		if region, ok := b.manager.DomainRegion(targetDomain); ok {
			return region
		}
	}

	switch b.strategy {
	case StrategyRoundRobin:
		return b.selectRoundRobin()
	case StrategyLatencyBased:
		return b.selectLatencyBased()
	case StrategyCostOptimized:
		return b.selectCostOptimized(geo.AllRegions())
	default:
		return b.selectLocalityFirst()
	}
}

// GetProxy selects a region for the domain and then an endpoint inside
// it, with the manager's normal failover behavior. Returns nil when no
// region can serve.
func (b *CrossRegionBalancer) GetProxy(targetDomain string) *inventory.Endpoint {
	region := b.SelectRegion(targetDomain)
	return b.manager.SelectProxy(region, targetDomain, true)
}

// selectLocalityFirst returns the local region while it has healthy
// endpoints, else the nearest region that does, else the local region
// anyway (the manager's failover handles the rest).
func (b *CrossRegionBalancer) selectLocalityFirst() geo.Region {
	if b.healthyCount(b.localRegion) > 0 {
		return b.localRegion
	}

	for _, region := range geo.NearestRegions(b.localRegion, len(geo.AllRegions())-1) {
		if b.healthyCount(region) > 0 {
			return region
		}
	}
	return b.localRegion
}

// selectRoundRobin rotates across regions whose pool is available. The
// counter is incremented before indexing.
func (b *CrossRegionBalancer) selectRoundRobin() geo.Region {
	available := b.availableRegions()
	if len(available) == 0 {
		return b.localRegion
	}

	n := b.rrCounter.Add(1)
	return available[int(n%int64(len(available)))]
}

// selectLatencyBased returns the region with healthy endpoints and the
// lowest average latency; ties keep canonical order.
func (b *CrossRegionBalancer) selectLatencyBased() geo.Region {
	best := geo.Region("")
	bestLatency := 0.0

	for _, region := range geo.AllRegions() {
		pool := b.manager.Pool(region)
		if pool == nil || pool.HealthyCount() == 0 {
			continue
		}
		latency := pool.AvgLatencyMs()
		if best == "" || latency < bestLatency {
			best = region
			bestLatency = latency
		}
	}

	if best == "" {
		return b.localRegion
	}
	return best
}

// selectCostOptimized returns the region with the highest pool success
// rate among the given regions. Ties resolve to the earliest region in
// the input list.
func (b *CrossRegionBalancer) selectCostOptimized(regions []geo.Region) geo.Region {
	if len(regions) == 0 {
		return b.localRegion
	}

	best := regions[0]
	bestRate := b.successRate(best)
	for _, region := range regions[1:] {
		if rate := b.successRate(region); rate > bestRate {
			best = region
			bestRate = rate
		}
	}
	return best
}

// availableRegions returns regions whose pool is available, in canonical
// order.
func (b *CrossRegionBalancer) availableRegions() []geo.Region {
	var out []geo.Region
	for _, region := range geo.AllRegions() {
		if pool := b.manager.Pool(region); pool != nil && pool.Available() {
			out = append(out, region)
		}
	}
	return out
}

func (b *CrossRegionBalancer) healthyCount(region geo.Region) int {
	pool := b.manager.Pool(region)
	if pool == nil {
		return 0
	}
	return pool.HealthyCount()
}

func (b *CrossRegionBalancer) successRate(region geo.Region) float64 {
	pool := b.manager.Pool(region)
	if pool == nil {
		return 0
	}
	return pool.SuccessRate()
}
