package storage

import (
	"context"
	"sync"
	"time"
)

// defaultMemoryCapacity bounds the in-memory journal so a long-running
// test or ephemeral deployment cannot grow without limit.
const defaultMemoryCapacity = 10000

// MemoryJournal is an in-memory Journal. It keeps at most capacity
// records, discarding the oldest first.
type MemoryJournal struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
	closed   bool
}

// NewMemoryJournal creates an in-memory journal. capacity <= 0 uses the
// default.
func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryJournal{capacity: capacity}
}

// Append stores one record, discarding the oldest when at capacity.
func (m *MemoryJournal) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.records = append(m.records, rec)
	if len(m.records) > m.capacity {
		m.records = m.records[len(m.records)-m.capacity:]
	}
	return nil
}

// RecentByRegion returns up to limit most-recent records for a region,
// newest first.
func (m *MemoryJournal) RecentByRegion(ctx context.Context, region string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := make([]Record, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].Region == region {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

// Prune removes records older than the cutoff.
func (m *MemoryJournal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	kept := m.records[:0]
	var removed int64
	for _, rec := range m.records {
		if rec.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return removed, nil
}

// Len returns the number of stored records.
func (m *MemoryJournal) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close marks the journal closed.
func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
