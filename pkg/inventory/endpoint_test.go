package inventory

import (
	"testing"
	"time"

	"mercator-hq/meridian/pkg/geo"
)

func TestNewEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		spec       EndpointSpec
		wantID     string
		wantMaxRPM int
	}{
		{
			name:       "full spec",
			spec:       EndpointSpec{ID: "ep-1", Address: "10.0.0.1:8080", Region: "us-east-1", MaxRequestsPerMinute: 30},
			wantID:     "ep-1",
			wantMaxRPM: 30,
		},
		{
			name:       "defaults applied",
			spec:       EndpointSpec{Address: "10.0.0.2:8080"},
			wantMaxRPM: DefaultMaxRequestsPerMinute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := NewEndpoint(tt.spec)

			if tt.wantID != "" && ep.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", ep.ID, tt.wantID)
			}
			if tt.wantID == "" && ep.ID == "" {
				t.Error("ID should be generated when the spec omits one")
			}
			if ep.MaxRequestsPerMinute != tt.wantMaxRPM {
				t.Errorf("MaxRequestsPerMinute = %d, want %d", ep.MaxRequestsPerMinute, tt.wantMaxRPM)
			}
			if ep.Status != StatusHealthy {
				t.Errorf("new endpoint status = %s, want %s", ep.Status, StatusHealthy)
			}
		})
	}
}

func TestEndpoint_IsRateLimited(t *testing.T) {
	ep := NewEndpoint(EndpointSpec{Address: "10.0.0.1:8080", MaxRequestsPerMinute: 3})
	now := time.Now()

	if ep.IsRateLimited() {
		t.Fatal("fresh endpoint should not be rate limited")
	}

	for i := 0; i < 3; i++ {
		ep.MarkSelected(now)
	}
	if !ep.IsRateLimited() {
		t.Error("endpoint at its per-minute cap should be rate limited")
	}

	// Selections older than the window must not count.
	ep2 := NewEndpoint(EndpointSpec{Address: "10.0.0.2:8080", MaxRequestsPerMinute: 3})
	old := now.Add(-2 * time.Minute)
	for i := 0; i < 3; i++ {
		ep2.MarkSelected(old)
	}
	if ep2.IsRateLimited() {
		t.Error("selections outside the one-minute window should be pruned")
	}
}

func TestEndpoint_RecordProbe(t *testing.T) {
	ep := NewEndpoint(EndpointSpec{Address: "10.0.0.1:8080"})
	now := time.Now()

	// Three consecutive failures flip the endpoint unhealthy.
	for i := 1; i <= 3; i++ {
		ep.RecordProbe(false, -1, 3, now)
		snap := ep.Snapshot()
		if i < 3 && snap.Status != StatusHealthy {
			t.Errorf("status after %d failures = %s, want still %s", i, snap.Status, StatusHealthy)
		}
	}
	if got := ep.GetStatus(); got != StatusUnhealthy {
		t.Fatalf("status after 3 failures = %s, want %s", got, StatusUnhealthy)
	}

	// A single success restores healthy regardless of prior failures.
	ep.RecordProbe(true, 42, 3, now)
	snap := ep.Snapshot()
	if snap.Status != StatusHealthy {
		t.Errorf("status after success = %s, want %s", snap.Status, StatusHealthy)
	}
	if snap.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", snap.SuccessCount)
	}
	if snap.ResponseTimeMs != 42 {
		t.Errorf("ResponseTimeMs = %d, want 42", snap.ResponseTimeMs)
	}
}

func TestEndpoint_RecordProbe_StampsLastCheck(t *testing.T) {
	ep := NewEndpoint(EndpointSpec{Address: "10.0.0.1:8080"})
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	ep.RecordProbe(false, -1, 3, at)
	if got := ep.Snapshot().LastCheck; !got.Equal(at) {
		t.Errorf("LastCheck after failed probe = %v, want %v", got, at)
	}

	later := at.Add(time.Minute)
	ep.RecordProbe(true, 10, 3, later)
	if got := ep.Snapshot().LastCheck; !got.Equal(later) {
		t.Errorf("LastCheck after successful probe = %v, want %v", got, later)
	}
}

func TestEndpoint_SetRegion(t *testing.T) {
	ep := NewEndpoint(EndpointSpec{Address: "10.0.0.1:8080", Region: "eu-west-1"})
	ep.SetRegion(geo.RegionUSEast)
	if got := ep.Snapshot().Region; got != geo.RegionUSEast {
		t.Errorf("Region = %s, want %s", got, geo.RegionUSEast)
	}
}

func TestEndpoint_RecentRequestCount(t *testing.T) {
	ep := NewEndpoint(EndpointSpec{Address: "10.0.0.1:8080"})
	now := time.Now()

	ep.MarkSelected(now)
	ep.MarkSelected(now)
	if got := ep.RecentRequestCount(); got != 2 {
		t.Errorf("RecentRequestCount() = %d, want 2", got)
	}
}
