package geo

import (
	"fmt"
	"sort"
)

// Region identifies a geographic traffic shard.
type Region string

// The full set of regions Meridian can shard across. Pools are pre-created
// for every region, so adding a region here is all that is needed to make
// it routable.
const (
	RegionUSEast        Region = "us-east-1"
	RegionUSWest        Region = "us-west-2"
	RegionEUWest        Region = "eu-west-1"
	RegionEUCentral     Region = "eu-central-1"
	RegionAsiaNortheast Region = "asia-northeast-1"
	RegionAsiaSoutheast Region = "asia-southeast-1"
	RegionSouthAmerica  Region = "sa-east-1"
)

// DefaultLatencyMs is returned for region pairs missing from the latency
// table. Missing pairs are expected for newly added regions and must not
// be an error.
const DefaultLatencyMs = 100

// allRegions is the canonical ordering used for stats output and for
// strategy iteration. Keep it stable: cost-optimized tie-breaking is
// first-wins over this order.
var allRegions = []Region{
	RegionUSEast,
	RegionUSWest,
	RegionEUWest,
	RegionEUCentral,
	RegionAsiaNortheast,
	RegionAsiaSoutheast,
	RegionSouthAmerica,
}

// regionSet allows O(1) validation of operator-supplied region strings.
var regionSet = func() map[Region]struct{} {
	set := make(map[Region]struct{}, len(allRegions))
	for _, r := range allRegions {
		set[r] = struct{}{}
	}
	return set
}()

// latencyPair is an unordered region pair; entries are stored with the
// lexicographically smaller region first so (A,B) and (B,A) hit the same key.
type latencyPair struct {
	a, b Region
}

func pairKey(a, b Region) latencyPair {
	if b < a {
		a, b = b, a
	}
	return latencyPair{a: a, b: b}
}

// interRegionLatencyMs holds estimated round-trip latencies in milliseconds.
// Values are coarse operator estimates, not live measurements; they only
// need to order regions sensibly for failover.
var interRegionLatencyMs = map[latencyPair]int{
	pairKey(RegionUSEast, RegionUSWest):               60,
	pairKey(RegionUSEast, RegionEUWest):               75,
	pairKey(RegionUSEast, RegionEUCentral):            85,
	pairKey(RegionUSEast, RegionAsiaNortheast):        160,
	pairKey(RegionUSEast, RegionAsiaSoutheast):        210,
	pairKey(RegionUSEast, RegionSouthAmerica):         115,
	pairKey(RegionUSWest, RegionEUWest):               135,
	pairKey(RegionUSWest, RegionEUCentral):            145,
	pairKey(RegionUSWest, RegionAsiaNortheast):        105,
	pairKey(RegionUSWest, RegionAsiaSoutheast):        165,
	pairKey(RegionUSWest, RegionSouthAmerica):         170,
	pairKey(RegionEUWest, RegionEUCentral):            25,
	pairKey(RegionEUWest, RegionAsiaNortheast):        220,
	pairKey(RegionEUWest, RegionAsiaSoutheast):        175,
	pairKey(RegionEUWest, RegionSouthAmerica):         185,
	pairKey(RegionEUCentral, RegionAsiaNortheast):     230,
	pairKey(RegionEUCentral, RegionAsiaSoutheast):     160,
	pairKey(RegionEUCentral, RegionSouthAmerica):      205,
	pairKey(RegionAsiaNortheast, RegionAsiaSoutheast): 70,
	pairKey(RegionAsiaNortheast, RegionSouthAmerica):  255,
	pairKey(RegionAsiaSoutheast, RegionSouthAmerica):  325,
}

// AllRegions returns the canonical region list. The returned slice is a
// copy; callers may reorder it freely.
func AllRegions() []Region {
	out := make([]Region, len(allRegions))
	copy(out, allRegions)
	return out
}

// IsValid reports whether r is a known region.
func (r Region) IsValid() bool {
	_, ok := regionSet[r]
	return ok
}

// String returns the region identifier (e.g. "us-east-1").
func (r Region) String() string {
	return string(r)
}

// ParseRegion resolves an operator-supplied region string to a Region.
// Unknown strings return an error; callers handling bulk configuration are
// expected to skip (not abort on) unknown regions.
func ParseRegion(s string) (Region, error) {
	r := Region(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown region %q", s)
	}
	return r, nil
}

// RegionLatency returns the estimated round-trip latency in milliseconds
// between two regions. Same-region latency is always 0. Pairs missing from
// the table return DefaultLatencyMs.
func RegionLatency(a, b Region) int {
	if a == b {
		return 0
	}
	if ms, ok := interRegionLatencyMs[pairKey(a, b)]; ok {
		return ms
	}
	return DefaultLatencyMs
}

// NearestRegions returns up to count regions ordered by ascending latency
// from the given region. The origin region is never included. The sort is
// stable, so equal-latency regions keep canonical order.
func NearestRegions(from Region, count int) []Region {
	if count <= 0 {
		return nil
	}

	candidates := make([]Region, 0, len(allRegions)-1)
	for _, r := range allRegions {
		if r != from {
			candidates = append(candidates, r)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return RegionLatency(from, candidates[i]) < RegionLatency(from, candidates[j])
	})

	if count < len(candidates) {
		candidates = candidates[:count]
	}
	return candidates
}
