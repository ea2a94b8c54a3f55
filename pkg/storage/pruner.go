package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PrunerConfig configures scheduled journal pruning.
type PrunerConfig struct {
	// RetentionDays is how many days of journal records to keep.
	// Default: 7.
	RetentionDays int

	// Schedule is a standard cron expression (e.g. "0 3 * * *" for
	// daily at 3 AM). Empty disables scheduled pruning.
	Schedule string
}

// Pruner removes aged journal records on a cron schedule.
type Pruner struct {
	journal Journal
	config  PrunerConfig
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
}

// NewPruner creates a pruner for the given journal.
func NewPruner(journal Journal, cfg PrunerConfig) *Pruner {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	return &Pruner{
		journal: journal,
		config:  cfg,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "storage.pruner"),
	}
}

// Start begins scheduled pruning. A missing schedule is not an error; the
// pruner simply stays idle.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("pruner is already running")
	}
	if p.config.Schedule == "" {
		p.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(p.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.config.Schedule, err)
	}

	_, err := p.cron.AddFunc(p.config.Schedule, func() {
		p.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("journal pruning scheduled",
		"schedule", p.config.Schedule,
		"retention_days", p.config.RetentionDays,
	)
	return nil
}

// RunOnce performs a single pruning pass.
func (p *Pruner) RunOnce(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -p.config.RetentionDays)

	removed, err := p.journal.Prune(ctx, cutoff)
	if err != nil {
		p.logger.Error("journal pruning failed", "error", err)
		return
	}
	p.logger.Info("journal pruned", "removed", removed, "cutoff", cutoff)
}

// Stop stops the scheduler and waits for a running job to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
	p.running = false
}
