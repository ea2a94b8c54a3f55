package storage

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by journal operations after Close.
var ErrClosed = errors.New("journal is closed")

// Record is one journal entry: a selection or a reported outcome for a
// proxy endpoint in a region.
type Record struct {
	// ID uniquely identifies the record.
	ID string

	// ProxyID is the endpoint the record refers to.
	ProxyID string

	// Region is the region the selection was served from.
	Region string

	// Success is whether a candidate was produced (selection records)
	// or whether the proxied request succeeded (outcome records).
	Success bool

	// LatencyMs is the endpoint latency associated with the record.
	LatencyMs int

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Journal is the narrow persistence capability the shard manager writes
// through. Implementations must be safe for concurrent use.
type Journal interface {
	// Append stores one record.
	Append(ctx context.Context, rec Record) error

	// RecentByRegion returns up to limit most-recent records for a
	// region, newest first.
	RecentByRegion(ctx context.Context, region string, limit int) ([]Record, error)

	// Prune removes records older than the cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}
