// Package redissync publishes region stats snapshots to a Redis hash so
// operators (and sibling Meridian instances) can see fleet-wide pool
// health without scraping every process. Publishing is strictly
// best-effort; Redis being down never affects selection.
package redissync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/meridian/pkg/shard"
)

// defaultHashKey is the Redis hash snapshots are written to when the
// configuration names none.
const defaultHashKey = "meridian:regions"

// Publisher writes per-region stats snapshots into a Redis hash, one
// field per region plus a "_summary" field with the manager counters.
type Publisher struct {
	client  *redis.Client
	enabled bool
	hashKey string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a publisher. An empty URL yields a disabled publisher whose
// methods are no-ops, so callers never need to branch on configuration.
func New(redisURL, hashKey string) (*Publisher, error) {
	if hashKey == "" {
		hashKey = defaultHashKey
	}

	p := &Publisher{
		hashKey: hashKey,
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "redissync"),
	}

	if redisURL == "" {
		return p, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	p.client = redis.NewClient(opts)
	p.enabled = true
	return p, nil
}

// Enabled reports whether the publisher has a Redis connection.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishSnapshot writes the stats snapshot to the configured hash.
// Implements shard.SnapshotSink.
func (p *Publisher) PublishSnapshot(ctx context.Context, stats *shard.Stats) error {
	if !p.enabled || stats == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fields := make(map[string]interface{}, len(stats.Regions)+1)
	for name, rs := range stats.Regions {
		data, err := json.Marshal(rs)
		if err != nil {
			return fmt.Errorf("failed to marshal region stats: %w", err)
		}
		fields[name] = data
	}

	summary, err := json.Marshal(map[string]interface{}{
		"total_requests":      stats.TotalRequests,
		"successful_requests": stats.SuccessfulRequests,
		"failover_count":      stats.FailoverCount,
		"success_rate":        stats.SuccessRate,
		"updated_at":          stats.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	fields["_summary"] = summary

	if err := p.client.HSet(ctx, p.hashKey, fields).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot hash: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection. Disabled publishers always succeed.
func (p *Publisher) Ping(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	return p.client.Close()
}
