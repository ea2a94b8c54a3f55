package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(SQLiteConfig{
		DBPath: filepath.Join(t.TempDir(), "journal.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteJournal failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestNewSQLiteJournal_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteJournal(SQLiteConfig{}); err == nil {
		t.Error("NewSQLiteJournal without a path should fail")
	}
}

func TestSQLiteJournal_RoundTrip(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		rec := Record{
			ID:        fmt.Sprintf("r%d", i),
			ProxyID:   "p1",
			Region:    "us-east-1",
			Success:   i%2 == 0,
			LatencyMs: 100 + i,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := j.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Append(ctx, Record{ID: "eu", ProxyID: "p2", Region: "eu-west-1", Success: true, LatencyMs: 30, Timestamp: base}); err != nil {
		t.Fatal(err)
	}

	recs, err := j.RecentByRegion(ctx, "us-east-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("RecentByRegion returned %d records, want 2", len(recs))
	}
	if recs[0].ID != "r3" || recs[1].ID != "r2" {
		t.Errorf("RecentByRegion order = [%s, %s], want [r3, r2]", recs[0].ID, recs[1].ID)
	}
	if recs[0].Success {
		t.Error("r3 success flag should round-trip as false")
	}
	if recs[0].LatencyMs != 103 {
		t.Errorf("LatencyMs = %d, want 103", recs[0].LatencyMs)
	}
	if !recs[0].Timestamp.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("Timestamp = %v, want %v", recs[0].Timestamp, base.Add(3*time.Minute))
	}
}

func TestSQLiteJournal_Prune(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	j.Append(ctx, Record{ID: "old", ProxyID: "p1", Region: "us-east-1", Timestamp: base.Add(-48 * time.Hour)})
	j.Append(ctx, Record{ID: "fresh", ProxyID: "p1", Region: "us-east-1", Timestamp: base})

	removed, err := j.Prune(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}

	recs, err := j.RecentByRegion(ctx, "us-east-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "fresh" {
		t.Errorf("surviving records = %v, want only the fresh record", recs)
	}
}

func TestSQLiteJournal_Closed(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	if err := j.Append(ctx, Record{ID: "r", ProxyID: "p", Region: "us-east-1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after Close = %v, want ErrClosed", err)
	}
	if _, err := j.RecentByRegion(ctx, "us-east-1", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("RecentByRegion after Close = %v, want ErrClosed", err)
	}
}
