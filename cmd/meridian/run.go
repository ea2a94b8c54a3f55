package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/balancer"
	"mercator-hq/meridian/pkg/config"
	"mercator-hq/meridian/pkg/geo"
	"mercator-hq/meridian/pkg/geodb"
	"mercator-hq/meridian/pkg/redissync"
	"mercator-hq/meridian/pkg/server"
	"mercator-hq/meridian/pkg/shard"
	"mercator-hq/meridian/pkg/storage"
	"mercator-hq/meridian/pkg/telemetry/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Meridian server",
	Long: `Start the Meridian server: load the proxy inventory, start the
background health-check loop, and serve the admin API.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.Setup(cfg.Logging, nil)
	if err != nil {
		return err
	}

	// buildManager always returns a valid cleanup, including on error,
	// so collaborators opened before a failure are still released.
	manager, cleanup, err := buildManager(cfg, logger)
	defer cleanup()
	if err != nil {
		return err
	}

	strategy, err := balancer.ParseStrategy(cfg.Balancer.Strategy)
	if err != nil {
		return err
	}
	localRegion, err := geo.ParseRegion(cfg.Balancer.LocalRegion)
	if err != nil {
		return err
	}
	lb, err := balancer.New(manager, strategy, localRegion)
	if err != nil {
		return err
	}

	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.InventoryFile != "" {
		watcher, err := config.NewInventoryWatcher(cfg.InventoryFile, logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
		go func() {
			err := watcher.Watch(ctx, func(inv *config.Inventory) {
				applyInventory(manager, inv)
			})
			if err != nil {
				logger.Error("inventory watcher failed", "error", err)
			}
		}()
	}

	logger.Info("meridian starting",
		"strategy", strategy,
		"local_region", localRegion,
		"default_region", manager.DefaultRegion(),
	)

	srv := server.NewServer(&cfg.Server, manager, lb)
	return srv.Start(ctx)
}

// buildManager wires the shard manager with its configured collaborators:
// journal, GeoIP resolver, Redis snapshot sink, and the proxy inventory.
func buildManager(cfg *config.Config, logger *slog.Logger) (*shard.Manager, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	defaultRegion, err := geo.ParseRegion(cfg.Sharding.DefaultRegion)
	if err != nil {
		return nil, cleanup, err
	}

	manager := shard.NewManager(shard.Config{
		DefaultRegion:       defaultRegion,
		FailoverThreshold:   cfg.Sharding.FailoverThreshold,
		HealthCheckInterval: cfg.Sharding.HealthCheckInterval,
		ProbeTimeout:        cfg.Sharding.ProbeTimeout,
		UnhealthyThreshold:  cfg.Sharding.UnhealthyThreshold,
		QuotaMaxPerMinute:   cfg.Sharding.QuotaMaxPerMinute,
		QuotaMaxPerHour:     cfg.Sharding.QuotaMaxPerHour,
	})

	journal, err := buildJournal(cfg)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func() { journal.Close() })
	manager.SetJournal(journal)

	pruner := storage.NewPruner(journal, storage.PrunerConfig{
		RetentionDays: cfg.Storage.RetentionDays,
		Schedule:      cfg.Storage.PruneSchedule,
	})
	if err := pruner.Start(context.Background()); err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, pruner.Stop)

	if cfg.GeoIP.DBPath != "" {
		resolver, err := geodb.Open(cfg.GeoIP.DBPath)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { resolver.Close() })
		manager.SetRegionResolver(resolver)
	}

	publisher, err := redissync.New(cfg.Redis.URL, cfg.Redis.HashKey)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func() { publisher.Close() })
	if publisher.Enabled() {
		manager.SetSnapshotSink(publisher)
		logger.Info("redis snapshot publishing enabled")
	}

	manager.AddProxiesFromConfig(cfg.Proxies)
	applyAffinity(manager, cfg.DomainAffinity, logger)

	if cfg.InventoryFile != "" {
		inv, err := config.LoadInventory(cfg.InventoryFile)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to load inventory: %w", err)
		}
		applyInventory(manager, inv)
	}

	return manager, cleanup, nil
}

func buildJournal(cfg *config.Config) (storage.Journal, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return storage.NewSQLiteJournal(storage.SQLiteConfig{DBPath: cfg.Storage.DBPath})
	default:
		return storage.NewMemoryJournal(0), nil
	}
}

// applyInventory loads proxies and affinities from an inventory file.
// Reconciliation is add-only: endpoints already in a pool stay there.
func applyInventory(manager *shard.Manager, inv *config.Inventory) {
	manager.AddProxiesFromConfig(inv.Proxies)
	applyAffinity(manager, inv.DomainAffinity, slog.Default())
}

// applyAffinity installs domain→region pins, skipping unknown regions
// with a warning.
func applyAffinity(manager *shard.Manager, affinity map[string]string, logger *slog.Logger) {
	for domain, regionName := range affinity {
		region, err := geo.ParseRegion(regionName)
		if err != nil {
			logger.Warn("skipping affinity for unknown region",
				"domain", domain,
				"region", regionName,
			)
			continue
		}
		manager.SetDomainAffinity(domain, region)
	}
}
