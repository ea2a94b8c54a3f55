package shard

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/meridian/pkg/geo"
	"mercator-hq/meridian/pkg/inventory"
	"mercator-hq/meridian/pkg/quota"
	"mercator-hq/meridian/pkg/storage"
	"mercator-hq/meridian/pkg/telemetry/metrics"
)

// failoverCandidates is how many nearest regions are tried when the
// target region cannot produce an endpoint.
const failoverCandidates = 3

// AutoRegion is the reserved proxies key for endpoints whose region
// should be resolved from their address via the installed resolver.
const AutoRegion = "auto"

// RegionResolver resolves a proxy address to a region. Implemented by the
// geodb package; injected so the manager never depends on a GeoIP
// database being present.
type RegionResolver interface {
	ResolveRegion(address string) (geo.Region, bool)
}

// SnapshotSink receives stats snapshots after each health sweep.
// Implemented by the redissync publisher; injected as a capability so a
// deployment without Redis simply has no sink.
type SnapshotSink interface {
	PublishSnapshot(ctx context.Context, stats *Stats) error
}

// Config holds manager tuning knobs.
type Config struct {
	// DefaultRegion is used when a selection names no region and the
	// target domain has no affinity.
	DefaultRegion geo.Region

	// FailoverThreshold is the minimum pool success rate required
	// before selecting in a region. Pools below it are treated as
	// unusable even if individual endpoints look fine.
	FailoverThreshold float64

	// HealthCheckInterval is the delay between health sweeps.
	// Default: 30s.
	HealthCheckInterval time.Duration

	// ProbeTimeout bounds each endpoint probe. Default: 5s.
	ProbeTimeout time.Duration

	// UnhealthyThreshold is the failure count at which an endpoint is
	// marked unhealthy. Default: 3.
	UnhealthyThreshold int

	// QuotaMaxPerMinute and QuotaMaxPerHour are the per-region request
	// ceilings.
	QuotaMaxPerMinute int
	QuotaMaxPerHour   int
}

// Manager owns one pool and one quota per region and performs proxy
// selection with same-region preference and nearest-region failover.
//
// Callers of SelectProxy see either an endpoint or nil; ordinary
// unavailability is never an error. The background health loop started by
// Start probes every endpoint in every pool and recomputes pool
// aggregates.
type Manager struct {
	cfg Config

	pools  map[geo.Region]*RegionalPool
	quotas map[geo.Region]*quota.RegionalQuota

	affinityMu     sync.RWMutex
	domainAffinity map[string]geo.Region

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failoverCount      atomic.Int64

	prober    Prober
	resolver  RegionResolver
	journal   storage.Journal
	sink      SnapshotSink
	collector *metrics.Collector
	logger    *slog.Logger

	// randFloat is the selection random source; returning 0 makes the
	// weighted draw deterministic (first candidate in pool order).
	randFloat func() float64
	now       func() time.Time

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a manager with one empty pool and quota per region.
func NewManager(cfg Config) *Manager {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = geo.RegionUSEast
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = 3
	}

	pools := make(map[geo.Region]*RegionalPool)
	quotas := make(map[geo.Region]*quota.RegionalQuota)
	for _, region := range geo.AllRegions() {
		pools[region] = NewRegionalPool(region)
		quotas[region] = quota.New(cfg.QuotaMaxPerMinute, cfg.QuotaMaxPerHour)
	}

	return &Manager{
		cfg:            cfg,
		pools:          pools,
		quotas:         quotas,
		domainAffinity: make(map[string]geo.Region),
		prober:         NewHTTPProber(cfg.ProbeTimeout),
		collector:      metrics.NewCollector(nil),
		logger:         slog.Default().With("component", "shard.manager"),
		randFloat:      rand.Float64,
		now:            time.Now,
	}
}

// SetProber replaces the health prober. Call before Start.
func (m *Manager) SetProber(p Prober) {
	m.prober = p
}

// SetRegionResolver installs a GeoIP-backed region resolver used by
// AddProxyAuto for specs that carry no region.
func (m *Manager) SetRegionResolver(r RegionResolver) {
	m.resolver = r
}

// SetJournal installs a selection journal. Journal failures are logged,
// never surfaced to selection callers.
func (m *Manager) SetJournal(j storage.Journal) {
	m.journal = j
}

// SetSnapshotSink installs a stats sink notified after each health sweep.
func (m *Manager) SetSnapshotSink(s SnapshotSink) {
	m.sink = s
}

// SetRandom replaces the selection random source. Test seam: a source
// pinned to 0 always draws the first candidate in pool order.
func (m *Manager) SetRandom(f func() float64) {
	m.randFloat = f
}

// Collector returns the manager's metrics collector, for mounting the
// scrape handler.
func (m *Manager) Collector() *metrics.Collector {
	return m.collector
}

// Pool returns the pool for a region, or nil for an unknown region.
func (m *Manager) Pool(region geo.Region) *RegionalPool {
	return m.pools[region]
}

// Quota returns the quota for a region, or nil for an unknown region.
func (m *Manager) Quota(region geo.Region) *quota.RegionalQuota {
	return m.quotas[region]
}

// DefaultRegion returns the configured default region.
func (m *Manager) DefaultRegion() geo.Region {
	return m.cfg.DefaultRegion
}

// AddProxyToRegion adds an endpoint to a region's pool. The endpoint's
// region field is overwritten with the pool's region.
func (m *Manager) AddProxyToRegion(ep *inventory.Endpoint, region geo.Region) error {
	pool, ok := m.pools[region]
	if !ok {
		return fmt.Errorf("unknown region %q", region)
	}
	pool.AddEndpoint(ep)
	pool.UpdateMetrics()
	return nil
}

// AddProxyAuto adds an endpoint from a spec whose region may be empty,
// resolving the region from the endpoint address via the installed
// resolver. Specs that cannot be resolved fall back to the default
// region; availability is favored over strict placement.
func (m *Manager) AddProxyAuto(spec inventory.EndpointSpec) error {
	region, err := geo.ParseRegion(spec.Region)
	if err != nil {
		region = m.cfg.DefaultRegion
		if m.resolver != nil {
			if resolved, ok := m.resolver.ResolveRegion(spec.Address); ok {
				region = resolved
			}
		}
		m.logger.Debug("resolved region for endpoint",
			"address", spec.Address,
			"region", region,
		)
	}
	return m.AddProxyToRegion(inventory.NewEndpoint(spec), region)
}

// AddProxiesFromConfig bulk-adds endpoints from a region→specs mapping.
// Specs under the reserved AutoRegion key are placed via AddProxyAuto, so
// an inventory can list endpoints without knowing where they egress from.
// Unknown region keys are skipped with a warning rather than aborting the
// batch; the system favors availability over strict validation of
// operator-supplied config.
func (m *Manager) AddProxiesFromConfig(mapping map[string][]inventory.EndpointSpec) {
	for regionName, specs := range mapping {
		if regionName == AutoRegion {
			for _, spec := range specs {
				if err := m.AddProxyAuto(spec); err != nil {
					m.logger.Warn("failed to place auto-region proxy",
						"address", spec.Address,
						"error", err,
					)
				}
			}
			continue
		}

		region, err := geo.ParseRegion(regionName)
		if err != nil {
			m.logger.Warn("skipping proxies for unknown region",
				"region", regionName,
				"count", len(specs),
			)
			continue
		}

		pool := m.pools[region]
		for _, spec := range specs {
			pool.AddEndpoint(inventory.NewEndpoint(spec))
		}
		pool.UpdateMetrics()

		m.logger.Info("loaded proxies for region",
			"region", region,
			"count", len(specs),
		)
	}
}

// SetDomainAffinity pins a target domain to a region.
func (m *Manager) SetDomainAffinity(domain string, region geo.Region) {
	m.affinityMu.Lock()
	defer m.affinityMu.Unlock()
	m.domainAffinity[domain] = region
}

// DomainRegion returns the region pinned to a domain. Unknown domains
// return ("", false); the caller falls back to the default region or the
// strategy-driven choice.
func (m *Manager) DomainRegion(domain string) (geo.Region, bool) {
	m.affinityMu.RLock()
	defer m.affinityMu.RUnlock()
	region, ok := m.domainAffinity[domain]
	return region, ok
}

// SelectProxy selects an endpoint for a request.
//
// The target region is resolved from preferred, else from the target
// domain's affinity, else from the default region. If the target region
// cannot produce an endpoint and allowFailover is set, progressively
// farther regions are tried in ascending latency order. Returns nil when
// no region can serve.
func (m *Manager) SelectProxy(preferred geo.Region, targetDomain string, allowFailover bool) *inventory.Endpoint {
	m.totalRequests.Add(1)
	m.collector.IncTotalRequests()

	target := preferred
	if target == "" && targetDomain != "" {
		if region, ok := m.DomainRegion(targetDomain); ok {
			target = region
		}
	}
	if target == "" {
		target = m.cfg.DefaultRegion
	}

	if ep := m.selectFromRegion(target, true); ep != nil {
		return ep
	}

	if !allowFailover {
		return nil
	}

	for _, candidate := range geo.NearestRegions(target, failoverCandidates) {
		if ep := m.selectFromRegion(candidate, true); ep != nil {
			m.failoverCount.Add(1)
			m.collector.IncFailover()
			m.logger.Info("selection failed over",
				"target_region", target,
				"served_region", candidate,
				"proxy_id", ep.ID,
			)
			return ep
		}
	}

	m.logger.Warn("no region could serve selection",
		"target_region", target,
		"target_domain", targetDomain,
	)
	return nil
}

// selectFromRegion draws one endpoint from a region's pool via weighted
// random selection, or returns nil if the region cannot serve.
//
// With requireHealthy set (the normal mode) the candidates are healthy,
// non-rate-limited endpoints, the region quota gates the draw, and a pool
// whose success rate sits below the failover threshold is rejected
// outright: a degraded region is unusable even if individual endpoints
// look fine. With requireHealthy unset (last-resort mode) every endpoint
// is a candidate regardless of status or rate-limit state.
func (m *Manager) selectFromRegion(region geo.Region, requireHealthy bool) *inventory.Endpoint {
	pool, ok := m.pools[region]
	if !ok {
		return nil
	}

	var candidates []*inventory.Endpoint
	if requireHealthy {
		if m.quotas[region].IsRateLimited() {
			m.logger.Debug("region quota exhausted", "region", region)
			return nil
		}
		candidates = pool.AvailableEndpoints()
		if len(candidates) == 0 {
			return nil
		}
		if pool.SuccessRate() < m.cfg.FailoverThreshold {
			m.logger.Debug("pool below failover threshold",
				"region", region,
				"success_rate", pool.SuccessRate(),
				"threshold", m.cfg.FailoverThreshold,
			)
			return nil
		}
	} else {
		candidates = pool.Endpoints()
		if len(candidates) == 0 {
			return nil
		}
	}

	selected := m.weightedDraw(candidates)
	if selected == nil {
		return nil
	}

	now := m.now()
	m.successfulRequests.Add(1)
	selected.MarkSelected(now)

	_, latencyMs := selected.Weights()
	pool.RecordRequest(selected.ID, true, latencyMs, now)
	m.quotas[region].RecordRequest()
	m.journalAppend(selected.ID, region, true, latencyMs, now)

	return selected
}

// weightedDraw picks one candidate with probability proportional to
// (1+successes)/(1+latencyMs). Weights are snapshotted before drawing so
// concurrent counter mutation cannot skew the walk mid-computation.
func (m *Manager) weightedDraw(candidates []*inventory.Endpoint) *inventory.Endpoint {
	weights := make([]float64, len(candidates))
	var total float64
	for i, ep := range candidates {
		successes, latencyMs := ep.Weights()
		if latencyMs < 0 {
			latencyMs = 0
		}
		// Reliable and fast endpoints win; an endpoint with no
		// observed traffic gets a neutral baseline.
		w := float64(1+successes) / float64(1+latencyMs)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return candidates[0]
	}

	r := m.randFloat() * total
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if cumulative > r {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// ReportResult feeds an end-to-end proxied-request outcome back into the
// endpoint counters and the pool history. Unknown endpoints are ignored.
func (m *Manager) ReportResult(proxyID string, region geo.Region, success bool, latencyMs int) {
	pool, ok := m.pools[region]
	if !ok {
		return
	}
	ep := pool.FindEndpoint(proxyID)
	if ep == nil {
		m.logger.Debug("outcome for unknown endpoint",
			"proxy_id", proxyID,
			"region", region,
		)
		return
	}

	now := m.now()
	ep.RecordOutcome(success, latencyMs, m.cfg.UnhealthyThreshold)
	pool.RecordRequest(proxyID, success, latencyMs, now)
	pool.UpdateMetrics()
	m.journalAppend(proxyID, region, success, latencyMs, now)
}

// journalAppend writes a record to the journal if one is installed.
// Journal failures never reach the selection path.
func (m *Manager) journalAppend(proxyID string, region geo.Region, success bool, latencyMs int, at time.Time) {
	if m.journal == nil {
		return
	}
	rec := storage.Record{
		ID:        uuid.NewString(),
		ProxyID:   proxyID,
		Region:    region.String(),
		Success:   success,
		LatencyMs: latencyMs,
		Timestamp: at,
	}
	if err := m.journal.Append(context.Background(), rec); err != nil {
		m.logger.Warn("failed to append journal record", "error", err)
	}
}
