package shard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mercator-hq/meridian/pkg/geo"
	"mercator-hq/meridian/pkg/inventory"
)

// healthLoopBackoff is the pause after an unexpected sweep failure before
// the loop resumes. The loop runs for the process lifetime and must
// survive transient errors in any single iteration.
const healthLoopBackoff = 5 * time.Second

// Prober checks whether a proxy endpoint is reachable. Implementations
// must respect the context deadline.
type Prober interface {
	// Probe returns the observed latency in milliseconds on success,
	// or an error when the endpoint did not answer with HTTP 200.
	Probe(ctx context.Context, address string) (latencyMs int, err error)
}

// HTTPProber probes endpoints with a bounded-timeout HTTP GET.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober whose requests are bounded by timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
	}
}

// Probe issues a GET against the endpoint address. Any transport error or
// non-200 status is a failed probe.
func (p *HTTPProber) Probe(ctx context.Context, address string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+"/", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latencyMs := int(time.Since(start).Milliseconds())
	if err != nil {
		return latencyMs, fmt.Errorf("probe transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return latencyMs, fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return latencyMs, nil
}

// Start launches the background health-check loop. It is a no-op error if
// the manager is already running.
func (m *Manager) Start() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return fmt.Errorf("manager is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.healthLoop(ctx)

	m.logger.Info("health-check loop started",
		"interval", m.cfg.HealthCheckInterval,
	)
	return nil
}

// Stop cancels the health-check loop and waits for the in-flight sweep to
// finish, so no probe callback writes to pool state after Stop returns.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}
	m.cancel()
	<-m.done
	m.running = false
	m.logger.Info("health-check loop stopped")
}

// healthLoop runs sweeps on a fixed interval until cancelled.
// Cancellation is a normal termination path, not an error.
func (m *Manager) healthLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok := m.runSweep(ctx); !ok {
				// Back off after a failed iteration, but stay
				// responsive to cancellation.
				select {
				case <-ctx.Done():
					return
				case <-time.After(healthLoopBackoff):
				}
			}
		}
	}
}

// runSweep executes one health sweep, containing any panic so a single
// bad iteration cannot kill the loop.
func (m *Manager) runSweep(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health sweep panicked", "panic", r)
			ok = false
		}
	}()

	m.CheckAllRegions(ctx)
	return true
}

// CheckAllRegions probes every endpoint in every pool, recomputes pool
// aggregates, refreshes the region gauges, and notifies the snapshot sink
// if one is installed.
func (m *Manager) CheckAllRegions(ctx context.Context) {
	for _, pool := range m.poolsInOrder() {
		for _, ep := range pool.Endpoints() {
			if ctx.Err() != nil {
				return
			}
			m.checkEndpoint(ctx, ep)
		}
		pool.UpdateMetrics()
	}

	m.refreshRegionGauges()

	if m.sink != nil {
		if err := m.sink.PublishSnapshot(ctx, m.AllStats()); err != nil {
			m.logger.Warn("failed to publish stats snapshot", "error", err)
		}
	}
}

// checkEndpoint probes one endpoint and applies the outcome: HTTP 200
// restores the endpoint to healthy immediately, while failures accumulate
// until the unhealthy threshold flips it out of rotation. The last-check
// stamp is updated regardless of outcome.
func (m *Manager) checkEndpoint(ctx context.Context, ep *inventory.Endpoint) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	latencyMs, err := m.prober.Probe(probeCtx, ep.Address)
	now := m.now()

	if err != nil {
		ep.RecordProbe(false, -1, m.cfg.UnhealthyThreshold, now)
		if ep.GetStatus() == inventory.StatusUnhealthy {
			m.logger.Warn("endpoint marked unhealthy",
				"proxy_id", ep.ID,
				"address", ep.Address,
				"error", err,
			)
		} else {
			m.logger.Debug("endpoint probe failed",
				"proxy_id", ep.ID,
				"error", err,
			)
		}
		return
	}

	ep.RecordProbe(true, latencyMs, m.cfg.UnhealthyThreshold, now)
	m.logger.Debug("endpoint probe passed",
		"proxy_id", ep.ID,
		"latency_ms", latencyMs,
	)
}

// poolsInOrder returns pools in canonical region order so sweeps and logs
// are deterministic.
func (m *Manager) poolsInOrder() []*RegionalPool {
	regions := geo.AllRegions()
	pools := make([]*RegionalPool, 0, len(regions))
	for _, region := range regions {
		pools = append(pools, m.pools[region])
	}
	return pools
}
