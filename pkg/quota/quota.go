// Package quota implements per-region request quotas with independent
// fixed minute and hour windows. The windows reset when the wall clock
// crosses a boundary, tracked separately so an hour rollover never depends
// on a minute rollover having happened first.
package quota

import (
	"sync"
	"time"
)

// RegionalQuota tracks dispatched-request counts for one region against
// per-minute and per-hour ceilings.
//
// RecordRequest must be called once per dispatched request (a selection
// that produced an endpoint), not per attempt. All methods are safe for
// concurrent use.
type RegionalQuota struct {
	mu sync.Mutex

	maxPerMinute int
	maxPerHour   int

	requestsThisMinute int
	requestsThisHour   int
	minuteStart        time.Time
	hourStart          time.Time

	// now is injectable for window-boundary tests.
	now func() time.Time
}

// New creates a quota with the given ceilings. Non-positive ceilings are
// treated as unlimited-in-practice defaults.
func New(maxPerMinute, maxPerHour int) *RegionalQuota {
	if maxPerMinute <= 0 {
		maxPerMinute = 600
	}
	if maxPerHour <= 0 {
		maxPerHour = 10000
	}

	now := time.Now
	t := now()
	return &RegionalQuota{
		maxPerMinute: maxPerMinute,
		maxPerHour:   maxPerHour,
		minuteStart:  t.Truncate(time.Minute),
		hourStart:    t.Truncate(time.Hour),
		now:          now,
	}
}

// SetClock replaces the quota's time source and re-anchors the window
// starts to it. Test seam.
func (q *RegionalQuota) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now

	t := now()
	q.minuteStart = t.Truncate(time.Minute)
	q.hourStart = t.Truncate(time.Hour)
}

// RecordRequest rolls over any elapsed windows and then increments both
// counters. The minute and hour windows are tracked independently: either,
// both, or neither may reset on a given call.
func (q *RegionalQuota) RecordRequest() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rolloverLocked(q.now())
	q.requestsThisMinute++
	q.requestsThisHour++
}

// IsRateLimited reports whether either counter has reached its ceiling for
// the current window.
func (q *RegionalQuota) IsRateLimited() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rolloverLocked(q.now())
	return q.requestsThisMinute >= q.maxPerMinute || q.requestsThisHour >= q.maxPerHour
}

// Utilization returns the worse of the two counter/ceiling ratios,
// bounded to [0, 1]. Observability only; selection gates on IsRateLimited.
func (q *RegionalQuota) Utilization() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rolloverLocked(q.now())

	minuteRatio := float64(q.requestsThisMinute) / float64(q.maxPerMinute)
	hourRatio := float64(q.requestsThisHour) / float64(q.maxPerHour)

	ratio := minuteRatio
	if hourRatio > ratio {
		ratio = hourRatio
	}
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// Counts returns the current window counters after rollover.
func (q *RegionalQuota) Counts() (minute, hour int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rolloverLocked(q.now())
	return q.requestsThisMinute, q.requestsThisHour
}

// Limits returns the configured ceilings.
func (q *RegionalQuota) Limits() (maxPerMinute, maxPerHour int) {
	return q.maxPerMinute, q.maxPerHour
}

// rolloverLocked resets exactly the counters whose window the clock has
// left. Caller holds q.mu.
func (q *RegionalQuota) rolloverLocked(now time.Time) {
	if minuteStart := now.Truncate(time.Minute); minuteStart.After(q.minuteStart) {
		q.requestsThisMinute = 0
		q.minuteStart = minuteStart
	}
	if hourStart := now.Truncate(time.Hour); hourStart.After(q.hourStart) {
		q.requestsThisHour = 0
		q.hourStart = hourStart
	}
}
