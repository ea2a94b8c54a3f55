package inventory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/meridian/pkg/geo"
)

// Status is the observed health state of a proxy endpoint.
type Status string

const (
	// StatusHealthy means the endpoint passed its most recent probe.
	StatusHealthy Status = "healthy"

	// StatusDegraded means the endpoint is serving but with elevated
	// latency or error rate. Degraded endpoints are excluded from
	// normal selection.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means the endpoint accumulated enough probe
	// failures to be taken out of rotation.
	StatusUnhealthy Status = "unhealthy"

	// StatusBanned means the egress address was blocked by a target and
	// must not be selected until the inventory service rotates it.
	StatusBanned Status = "banned"
)

// DefaultMaxRequestsPerMinute bounds the per-endpoint short-term request
// rate. Residential endpoints that burst above this draw attention from
// target sites, so selection skips them until the window drains.
const DefaultMaxRequestsPerMinute = 60

// Endpoint is a single residential proxy egress point.
//
// Endpoints are created from EndpointSpec config (or handed over by the
// inventory service) and then mutated concurrently by the health-check
// loop and the selection path, so all field access goes through methods
// holding the endpoint's own lock.
type Endpoint struct {
	mu sync.Mutex

	// ID uniquely identifies the endpoint across the fleet.
	ID string

	// Address is the host:port the transport dials.
	Address string

	// Region is the geographic shard the endpoint egresses from.
	// RegionalPool.AddEndpoint force-sets this to the pool's region.
	Region geo.Region

	// Status is the current health classification.
	Status Status

	// ResponseTimeMs is the most recently observed probe latency.
	ResponseTimeMs int

	// SuccessCount and FailureCount accumulate probe and traffic
	// outcomes. A single success restores Healthy; failures flip the
	// endpoint Unhealthy once they reach the manager's threshold.
	SuccessCount int
	FailureCount int

	// LastCheck is when the health loop last probed this endpoint,
	// regardless of outcome.
	LastCheck time.Time

	// MaxRequestsPerMinute caps the short-term selection rate.
	MaxRequestsPerMinute int

	// recentRequests holds selection timestamps inside the rate window.
	recentRequests []time.Time
}

// EndpointSpec is the plain-data configuration form of an endpoint, as it
// appears in the region→proxies mapping.
type EndpointSpec struct {
	ID                   string `yaml:"id"`
	Address              string `yaml:"address"`
	Region               string `yaml:"region"`
	MaxRequestsPerMinute int    `yaml:"max_requests_per_minute"`
}

// NewEndpoint builds an Endpoint from a spec. Missing IDs get a generated
// uuid so journal rows and Redis snapshots always have a stable key. New
// endpoints start Healthy; the first probe corrects that if needed.
func NewEndpoint(spec EndpointSpec) *Endpoint {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	maxPerMinute := spec.MaxRequestsPerMinute
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxRequestsPerMinute
	}

	return &Endpoint{
		ID:                   id,
		Address:              spec.Address,
		Region:               geo.Region(spec.Region),
		Status:               StatusHealthy,
		MaxRequestsPerMinute: maxPerMinute,
	}
}

// IsRateLimited reports whether the endpoint has been selected at or above
// its per-minute cap within the last minute. Expired timestamps are pruned
// as a side effect.
func (e *Endpoint) IsRateLimited() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked(time.Now())
	return len(e.recentRequests) >= e.MaxRequestsPerMinute
}

// MarkSelected appends a selection timestamp to the endpoint's recent
// request window. Called by the manager once per produced candidate.
func (e *Endpoint) MarkSelected(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked(at)
	e.recentRequests = append(e.recentRequests, at)
}

// RecentRequestCount returns the number of selections inside the current
// rate window.
func (e *Endpoint) RecentRequestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked(time.Now())
	return len(e.recentRequests)
}

// pruneLocked drops timestamps older than one minute. Caller holds e.mu.
func (e *Endpoint) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	kept := e.recentRequests[:0]
	for _, t := range e.recentRequests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.recentRequests = kept
}

// RecordProbe applies a health-probe outcome. A successful probe restores
// Healthy immediately; a failed probe increments the failure count and
// flips the endpoint Unhealthy once failures reach unhealthyThreshold.
// LastCheck is stamped on every call.
func (e *Endpoint) RecordProbe(success bool, latencyMs int, unhealthyThreshold int, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.LastCheck = at
	if success {
		e.SuccessCount++
		e.Status = StatusHealthy
		if latencyMs >= 0 {
			e.ResponseTimeMs = latencyMs
		}
		return
	}

	e.FailureCount++
	if e.FailureCount >= unhealthyThreshold {
		e.Status = StatusUnhealthy
	}
}

// RecordOutcome applies an end-to-end traffic outcome reported by the
// caller after using the endpoint. Unlike RecordProbe it never changes
// Status on success and does not stamp LastCheck.
func (e *Endpoint) RecordOutcome(success bool, latencyMs int, unhealthyThreshold int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if success {
		e.SuccessCount++
		if latencyMs >= 0 {
			e.ResponseTimeMs = latencyMs
		}
		return
	}

	e.FailureCount++
	if e.FailureCount >= unhealthyThreshold {
		e.Status = StatusUnhealthy
	}
}

// Snapshot returns a copy of the endpoint's observable fields for stats
// and metrics, taken under the endpoint lock.
func (e *Endpoint) Snapshot() EndpointSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return EndpointSnapshot{
		ID:             e.ID,
		Address:        e.Address,
		Region:         e.Region,
		Status:         e.Status,
		ResponseTimeMs: e.ResponseTimeMs,
		SuccessCount:   e.SuccessCount,
		FailureCount:   e.FailureCount,
		LastCheck:      e.LastCheck,
	}
}

// GetStatus returns the current status under the endpoint lock.
func (e *Endpoint) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Status
}

// SetStatus overrides the status. Used by the inventory reconciler when
// the upstream service bans or restores an endpoint out of band.
func (e *Endpoint) SetStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status = s
}

// SetRegion force-assigns the endpoint to a region. Pools call this on add
// so endpoint records can never disagree with the pool that owns them.
func (e *Endpoint) SetRegion(r geo.Region) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Region = r
}

// Weights returns the success count and response time used for weighted
// selection, read under the endpoint lock so the draw sees a consistent
// pair.
func (e *Endpoint) Weights() (successCount, responseTimeMs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.SuccessCount, e.ResponseTimeMs
}

// EndpointSnapshot is a point-in-time copy of an endpoint's observable
// state, safe to read without locks.
type EndpointSnapshot struct {
	ID             string     `json:"id"`
	Address        string     `json:"address"`
	Region         geo.Region `json:"region"`
	Status         Status     `json:"status"`
	ResponseTimeMs int        `json:"response_time_ms"`
	SuccessCount   int        `json:"success_count"`
	FailureCount   int        `json:"failure_count"`
	LastCheck      time.Time  `json:"last_check"`
}
