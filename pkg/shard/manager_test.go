package shard

import (
	"context"
	"strings"
	"sync"
	"testing"

	"mercator-hq/meridian/pkg/geo"
	"mercator-hq/meridian/pkg/inventory"
	"mercator-hq/meridian/pkg/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Config{
		DefaultRegion:     geo.RegionUSEast,
		FailoverThreshold: 0,
	})
	m.SetRandom(func() float64 { return 0 })
	return m
}

func addHealthy(t *testing.T, m *Manager, region geo.Region, id string, latencyMs, successes int) *inventory.Endpoint {
	t.Helper()
	ep := newTestEndpoint(id, inventory.StatusHealthy, latencyMs, successes, 0)
	if err := m.AddProxyToRegion(ep, region); err != nil {
		t.Fatalf("AddProxyToRegion(%s, %s) failed: %v", id, region, err)
	}
	return ep
}

func TestManager_SelectProxy_Deterministic(t *testing.T) {
	m := newTestManager(t)

	p1 := addHealthy(t, m, geo.RegionUSEast, "p1", 100, 5)
	addHealthy(t, m, geo.RegionUSEast, "p2", 200, 1)

	got := m.SelectProxy(geo.RegionUSEast, "", false)
	if got == nil {
		t.Fatal("SelectProxy returned nil, want p1")
	}
	if got.ID != "p1" {
		t.Errorf("SelectProxy with zero random source = %s, want p1 (first in pool order)", got.ID)
	}

	if n := m.successfulRequests.Load(); n != 1 {
		t.Errorf("successfulRequests = %d, want 1", n)
	}
	if n := p1.RecentRequestCount(); n != 1 {
		t.Errorf("p1 recent-request count = %d, want 1", n)
	}
	if n := m.Pool(geo.RegionUSEast).HistoryLen(); n != 1 {
		t.Errorf("pool history length = %d, want 1", n)
	}
}

func TestManager_SelectProxy_EmptyRegion(t *testing.T) {
	m := newTestManager(t)
	if got := m.SelectProxy(geo.RegionUSEast, "", false); got != nil {
		t.Errorf("SelectProxy from empty region = %v, want nil", got.ID)
	}
	if n := m.totalRequests.Load(); n != 1 {
		t.Errorf("totalRequests = %d, want 1 (counted even on failure)", n)
	}
}

func TestManager_SelectProxy_BelowFailoverThreshold(t *testing.T) {
	m := NewManager(Config{
		DefaultRegion:     geo.RegionUSEast,
		FailoverThreshold: 0.8,
	})
	m.SetRandom(func() float64 { return 0 })

	// Healthy endpoint, but the pool success rate (1/2) sits below the
	// 0.8 threshold: the pool-level circuit breaker must reject it.
	ep := newTestEndpoint("p1", inventory.StatusHealthy, 100, 1, 1)
	if err := m.AddProxyToRegion(ep, geo.RegionUSEast); err != nil {
		t.Fatal(err)
	}

	if got := m.SelectProxy(geo.RegionUSEast, "", false); got != nil {
		t.Errorf("SelectProxy below threshold = %s, want nil", got.ID)
	}
}

func TestManager_SelectProxy_Failover(t *testing.T) {
	m := newTestManager(t)

	// Primary region empty; us-west-2 is the nearest region to
	// us-east-1 and holds the only endpoint.
	addHealthy(t, m, geo.RegionUSWest, "west-1", 50, 3)

	got := m.SelectProxy(geo.RegionUSEast, "", true)
	if got == nil {
		t.Fatal("SelectProxy with failover returned nil")
	}
	if got.Snapshot().Region != geo.RegionUSWest {
		t.Errorf("failover served from %s, want %s", got.Snapshot().Region, geo.RegionUSWest)
	}
	if n := m.failoverCount.Load(); n != 1 {
		t.Errorf("failoverCount = %d, want exactly 1", n)
	}
}

func TestManager_SelectProxy_FailoverDisallowed(t *testing.T) {
	m := newTestManager(t)
	addHealthy(t, m, geo.RegionUSWest, "west-1", 50, 3)

	if got := m.SelectProxy(geo.RegionUSEast, "", false); got != nil {
		t.Errorf("SelectProxy without failover = %s, want nil", got.ID)
	}
	if n := m.failoverCount.Load(); n != 0 {
		t.Errorf("failoverCount = %d, want 0", n)
	}
}

func TestManager_SelectProxy_DomainAffinity(t *testing.T) {
	m := newTestManager(t)
	addHealthy(t, m, geo.RegionEUWest, "eu-1", 80, 2)
	addHealthy(t, m, geo.RegionUSEast, "us-1", 80, 2)

	m.SetDomainAffinity("example.de", geo.RegionEUWest)

	got := m.SelectProxy("", "example.de", false)
	if got == nil {
		t.Fatal("SelectProxy returned nil")
	}
	if got.ID != "eu-1" {
		t.Errorf("affinity-routed selection = %s, want eu-1", got.ID)
	}

	// Unknown domains fall back to the default region.
	got = m.SelectProxy("", "unknown.example", false)
	if got == nil || got.ID != "us-1" {
		t.Errorf("fallback selection = %v, want us-1", got)
	}
}

func TestManager_DomainRegion(t *testing.T) {
	m := newTestManager(t)

	if _, ok := m.DomainRegion("nope.example"); ok {
		t.Error("DomainRegion for unknown domain should report no affinity")
	}

	m.SetDomainAffinity("example.com", geo.RegionAsiaNortheast)
	region, ok := m.DomainRegion("example.com")
	if !ok || region != geo.RegionAsiaNortheast {
		t.Errorf("DomainRegion = (%s, %v), want (%s, true)", region, ok, geo.RegionAsiaNortheast)
	}
}

func TestManager_AddProxiesFromConfig_SkipsUnknownRegions(t *testing.T) {
	m := newTestManager(t)

	m.AddProxiesFromConfig(map[string][]inventory.EndpointSpec{
		"us-east-1": {
			{ID: "a", Address: "10.0.0.1:8080"},
			{ID: "b", Address: "10.0.0.2:8080"},
		},
		"not-a-region": {
			{ID: "c", Address: "10.0.0.3:8080"},
		},
	})

	if got := m.Pool(geo.RegionUSEast).TotalCount(); got != 2 {
		t.Errorf("us-east-1 pool size = %d, want 2", got)
	}
	for _, region := range geo.AllRegions() {
		if region == geo.RegionUSEast {
			continue
		}
		if got := m.Pool(region).TotalCount(); got != 0 {
			t.Errorf("pool %s size = %d, want 0", region, got)
		}
	}
}

// fakeResolver maps addresses to regions from a fixed table.
type fakeResolver struct {
	regions map[string]geo.Region
}

func (f *fakeResolver) ResolveRegion(address string) (geo.Region, bool) {
	region, ok := f.regions[address]
	return region, ok
}

func TestManager_AddProxiesFromConfig_AutoRegion(t *testing.T) {
	m := newTestManager(t)
	m.SetRegionResolver(&fakeResolver{regions: map[string]geo.Region{
		"10.0.0.1:8080": geo.RegionEUWest,
	}})

	m.AddProxiesFromConfig(map[string][]inventory.EndpointSpec{
		"auto": {
			{ID: "resolved", Address: "10.0.0.1:8080"},
			{ID: "unresolved", Address: "203.0.113.9:8080"},
		},
	})

	if ep := m.Pool(geo.RegionEUWest).FindEndpoint("resolved"); ep == nil {
		t.Error("resolved endpoint should land in the region the resolver reported")
	}
	// Addresses the resolver cannot place fall back to the default region.
	if ep := m.Pool(geo.RegionUSEast).FindEndpoint("unresolved"); ep == nil {
		t.Error("unresolvable endpoint should fall back to the default region")
	}
}

func TestManager_AddProxiesFromConfig_AutoRegionWithoutResolver(t *testing.T) {
	m := newTestManager(t)

	m.AddProxiesFromConfig(map[string][]inventory.EndpointSpec{
		"auto": {
			{ID: "a", Address: "10.0.0.1:8080"},
		},
	})

	if ep := m.Pool(geo.RegionUSEast).FindEndpoint("a"); ep == nil {
		t.Error("auto endpoints without a resolver should land in the default region")
	}
}

func TestManager_AddProxyAuto(t *testing.T) {
	m := newTestManager(t)

	// No resolver installed: specs without a region land in the
	// default region.
	if err := m.AddProxyAuto(inventory.EndpointSpec{ID: "x", Address: "10.0.0.1:8080"}); err != nil {
		t.Fatal(err)
	}
	if got := m.Pool(geo.RegionUSEast).TotalCount(); got != 1 {
		t.Errorf("default-region pool size = %d, want 1", got)
	}

	// A spec naming a valid region goes straight there.
	if err := m.AddProxyAuto(inventory.EndpointSpec{ID: "y", Address: "10.0.0.2:8080", Region: "eu-west-1"}); err != nil {
		t.Fatal(err)
	}
	if got := m.Pool(geo.RegionEUWest).TotalCount(); got != 1 {
		t.Errorf("eu-west-1 pool size = %d, want 1", got)
	}
}

func TestManager_SelectFromRegion_LastResort(t *testing.T) {
	m := newTestManager(t)

	ep := newTestEndpoint("down", inventory.StatusUnhealthy, 100, 0, 5)
	if err := m.AddProxyToRegion(ep, geo.RegionUSEast); err != nil {
		t.Fatal(err)
	}

	// Normal mode rejects a region with no healthy endpoints.
	if got := m.selectFromRegion(geo.RegionUSEast, true); got != nil {
		t.Errorf("healthy-only selection = %s, want nil", got.ID)
	}

	// Last-resort mode draws from every endpoint regardless of status,
	// with the usual selection bookkeeping.
	got := m.selectFromRegion(geo.RegionUSEast, false)
	if got == nil || got.ID != "down" {
		t.Fatalf("last-resort selection = %v, want the unhealthy endpoint", got)
	}
	if n := m.successfulRequests.Load(); n != 1 {
		t.Errorf("successfulRequests = %d, want 1", n)
	}
	if n := ep.RecentRequestCount(); n != 1 {
		t.Errorf("recent-request count = %d, want 1", n)
	}
	if n := m.Pool(geo.RegionUSEast).HistoryLen(); n != 1 {
		t.Errorf("pool history length = %d, want 1", n)
	}
}

func TestManager_ReportResult(t *testing.T) {
	m := newTestManager(t)
	ep := addHealthy(t, m, geo.RegionUSEast, "p1", 100, 0)

	m.ReportResult("p1", geo.RegionUSEast, true, 80)
	snap := ep.Snapshot()
	if snap.SuccessCount != 1 {
		t.Errorf("SuccessCount after success report = %d, want 1", snap.SuccessCount)
	}
	if snap.ResponseTimeMs != 80 {
		t.Errorf("ResponseTimeMs = %d, want 80", snap.ResponseTimeMs)
	}

	for i := 0; i < 3; i++ {
		m.ReportResult("p1", geo.RegionUSEast, false, 0)
	}
	if got := ep.GetStatus(); got != inventory.StatusUnhealthy {
		t.Errorf("status after 3 failure reports = %s, want %s", got, inventory.StatusUnhealthy)
	}

	// Unknown endpoints and regions are ignored, not errors.
	m.ReportResult("ghost", geo.RegionUSEast, true, 10)
	m.ReportResult("p1", geo.Region("nowhere"), true, 10)
}

func TestManager_Journal(t *testing.T) {
	m := newTestManager(t)
	journal := storage.NewMemoryJournal(100)
	m.SetJournal(journal)

	addHealthy(t, m, geo.RegionUSEast, "p1", 100, 5)

	if got := m.SelectProxy(geo.RegionUSEast, "", false); got == nil {
		t.Fatal("SelectProxy returned nil")
	}

	recs, err := journal.RecentByRegion(context.Background(), "us-east-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("journal records = %d, want 1", len(recs))
	}
	if recs[0].ProxyID != "p1" || !recs[0].Success {
		t.Errorf("journal record = %+v, want success for p1", recs[0])
	}
}

func TestManager_AllStats(t *testing.T) {
	m := newTestManager(t)

	stats := m.AllStats()
	if stats.SuccessRate != 0 {
		t.Errorf("SuccessRate with no requests = %v, want 0", stats.SuccessRate)
	}
	if len(stats.Regions) != len(geo.AllRegions()) {
		t.Errorf("stats cover %d regions, want %d", len(stats.Regions), len(geo.AllRegions()))
	}

	addHealthy(t, m, geo.RegionUSEast, "p1", 100, 5)
	m.SelectProxy(geo.RegionUSEast, "", false)
	m.SelectProxy(geo.RegionSouthAmerica, "", false) // fails, empty pool

	stats = m.AllStats()
	if stats.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", stats.TotalRequests)
	}
	if stats.SuccessfulRequests != 1 {
		t.Errorf("SuccessfulRequests = %d, want 1", stats.SuccessfulRequests)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", stats.SuccessRate)
	}
}

func TestManager_RegionStats(t *testing.T) {
	m := newTestManager(t)

	if got := m.RegionStats(geo.Region("")); got != nil {
		t.Errorf("RegionStats for empty region = %+v, want nil", got)
	}

	addHealthy(t, m, geo.RegionUSEast, "p1", 100, 5)
	rs := m.RegionStats(geo.RegionUSEast)
	if rs == nil {
		t.Fatal("RegionStats returned nil for a known region")
	}
	if rs.TotalCount != 1 || rs.HealthyCount != 1 {
		t.Errorf("RegionStats counts = (%d, %d), want (1, 1)", rs.TotalCount, rs.HealthyCount)
	}
	if !rs.Available {
		t.Error("region with a healthy endpoint should be available")
	}
}

func TestManager_MetricsPrometheus(t *testing.T) {
	m := newTestManager(t)
	addHealthy(t, m, geo.RegionUSEast, "p1", 100, 5)
	m.SelectProxy(geo.RegionUSEast, "", false)

	text, err := m.MetricsPrometheus()
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"geo_proxy_total_requests 1",
		"geo_proxy_failover_count 0",
		`geo_proxy_region_health_score{region="us-east-1"}`,
		`geo_proxy_region_avg_latency_ms{region="us-east-1"}`,
		`geo_proxy_region_success_rate{region="us-east-1"}`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestManager_ConcurrentSelection(t *testing.T) {
	m := NewManager(Config{
		DefaultRegion:     geo.RegionUSEast,
		FailoverThreshold: 0,
		QuotaMaxPerMinute: 1 << 20,
		QuotaMaxPerHour:   1 << 20,
	})

	for i := 0; i < 5; i++ {
		ep := newTestEndpoint("", inventory.StatusHealthy, 100, 10, 0)
		if err := m.AddProxyToRegion(ep, geo.RegionUSEast); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.SelectProxy(geo.RegionUSEast, "", true)
			}
		}()
	}
	wg.Wait()

	if n := m.totalRequests.Load(); n != 400 {
		t.Errorf("totalRequests = %d, want 400", n)
	}
}
