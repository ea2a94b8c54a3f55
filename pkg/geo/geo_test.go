package geo

import "testing"

func TestRegionLatency_Symmetry(t *testing.T) {
	regions := AllRegions()
	for _, a := range regions {
		for _, b := range regions {
			ab := RegionLatency(a, b)
			ba := RegionLatency(b, a)
			if ab != ba {
				t.Errorf("RegionLatency(%s, %s) = %d, RegionLatency(%s, %s) = %d; want symmetric",
					a, b, ab, b, a, ba)
			}
		}
	}
}

func TestRegionLatency_SameRegionIsZero(t *testing.T) {
	for _, r := range AllRegions() {
		if got := RegionLatency(r, r); got != 0 {
			t.Errorf("RegionLatency(%s, %s) = %d, want 0", r, r, got)
		}
	}
}

func TestRegionLatency_MissingPairFallback(t *testing.T) {
	// A made-up region pair is not in the table; the lookup must fall
	// back to the default rather than error.
	unknown := Region("mars-north-1")
	if got := RegionLatency(RegionUSEast, unknown); got != DefaultLatencyMs {
		t.Errorf("RegionLatency with unknown region = %d, want %d", got, DefaultLatencyMs)
	}
}

func TestNearestRegions(t *testing.T) {
	tests := []struct {
		name    string
		from    Region
		count   int
		wantLen int
	}{
		{name: "default count", from: RegionUSEast, count: 3, wantLen: 3},
		{name: "count larger than regions", from: RegionUSEast, count: 100, wantLen: len(AllRegions()) - 1},
		{name: "zero count", from: RegionUSEast, count: 0, wantLen: 0},
		{name: "single", from: RegionEUWest, count: 1, wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NearestRegions(tt.from, tt.count)
			if len(got) != tt.wantLen {
				t.Fatalf("NearestRegions(%s, %d) returned %d regions, want %d",
					tt.from, tt.count, len(got), tt.wantLen)
			}

			for _, r := range got {
				if r == tt.from {
					t.Errorf("NearestRegions(%s) included the origin region", tt.from)
				}
			}

			for i := 1; i < len(got); i++ {
				prev := RegionLatency(tt.from, got[i-1])
				cur := RegionLatency(tt.from, got[i])
				if prev > cur {
					t.Errorf("NearestRegions(%s) not sorted: %s (%dms) before %s (%dms)",
						tt.from, got[i-1], prev, got[i], cur)
				}
			}
		})
	}
}

func TestNearestRegions_USEastOrder(t *testing.T) {
	got := NearestRegions(RegionUSEast, 3)
	want := []Region{RegionUSWest, RegionEUWest, RegionEUCentral}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NearestRegions(us-east-1, 3)[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseRegion(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{input: "us-east-1", wantErr: false},
		{input: "asia-northeast-1", wantErr: false},
		{input: "not-a-region", wantErr: true},
		{input: "", wantErr: true},
		{input: "US-EAST-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRegion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRegion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.input {
				t.Errorf("ParseRegion(%q) = %s", tt.input, got)
			}
		})
	}
}

func TestAllRegions_ReturnsCopy(t *testing.T) {
	first := AllRegions()
	first[0] = Region("mutated")
	second := AllRegions()
	if second[0] == Region("mutated") {
		t.Error("AllRegions() returned a shared slice; callers can corrupt the canonical order")
	}
}
