package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/governance"
	"mercator-hq/ganymede/pkg/health"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/state"
	"mercator-hq/ganymede/pkg/state/archiver"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	rulesPath     string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede governance core",
	Long: `Start the governance core with the specified configuration.

The server loads the rule artifact, opens the state store, recovers any
persisted containment state, starts the health monitor, and serves the
governance API on the configured address.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override listen address
  ganymede run --listen 0.0.0.0:8750

  # Validate config and rules without starting
  ganymede run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.rulesPath, "rules", "", "override rule artifact path")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and rules without starting")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.rulesPath != "" {
		cfg.Policy.RulesPath = runFlags.rulesPath
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	// The rule artifact is loaded exactly once. There is no reload path:
	// changing rules means restarting the process.
	rules, err := policy.LoadRuleSet(cfg.Policy.RulesPath)
	if err != nil {
		return cli.NewConfigError("policy.rules_path", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		fmt.Printf("✓ Rule artifact valid (%d rules, checksum %s)\n", rules.Len(), rules.Checksum())
		return nil
	}

	fmt.Printf("Ganymede v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")
	fmt.Printf("✓ Rule artifact loaded (%d rules)\n", rules.Len())

	// State store
	var store state.Store
	switch cfg.State.Backend {
	case "sqlite":
		store, err = state.NewSQLiteStore(&state.SQLiteConfig{
			Path:         cfg.State.Path,
			Driver:       string(cfg.State.Driver),
			MaxOpenConns: cfg.State.MaxOpenConns,
			MaxIdleConns: cfg.State.MaxIdleConns,
			WALMode:      cfg.State.WALMode,
			BusyTimeout:  cfg.State.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to open state store: %w", err)
		}
	case "memory":
		store = state.NewMemoryStore()
	default:
		return cli.NewConfigError("state.backend", fmt.Sprintf("unsupported backend: %s", cfg.State.Backend))
	}
	defer store.Close()
	fmt.Printf("✓ State store initialized (%s)\n", cfg.State.Backend)

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	engine := policy.NewEngine(rules, logger)
	trackerCfg := health.DefaultTrackerConfig()
	tracker := health.NewTracker(&health.TrackerConfig{
		Window:             trackerCfg.Window,
		HeartbeatTimeout:   cfg.Health.HeartbeatTimeout,
		DegradedP95Ms:      cfg.Health.DegradedP95Ms,
		UnhealthyErrorRate: cfg.Health.UnhealthyErrorRate,
	})

	coordinator := governance.NewCoordinator(&governance.Config{
		CriticalWindow:    cfg.Governance.CriticalWindow,
		CriticalThreshold: cfg.Governance.CriticalThreshold,
		RestoreCooldown:   cfg.Health.RestoreCooldown,
	}, engine, store, tracker, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A halt or isolation persisted before a crash stays in force.
	if err := coordinator.RecoverState(ctx); err != nil {
		return fmt.Errorf("failed to recover containment state: %w", err)
	}

	// Health monitor
	monitor := health.NewMonitor(&cfg.Health, tracker, rules, collector)
	monitor.AddProbe(health.StoreProbe(store))
	monitor.SetSnapshotStore(store)
	monitor.SetSystemInfo(coordinator.SystemInfo)
	monitor.SetHooks(health.Hooks{
		OnDrift:         coordinator.HandleDrift,
		OnResourceAlert: coordinator.HandleResourceAlert,
	})

	// The server is built before the monitor starts so its in-flight
	// counter can feed the snapshot's queue depth.
	srv := server.NewServer(&cfg.Server, coordinator, monitor, store, rules, collector, server.VersionInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
	})
	monitor.SetQueueDepth(srv.InFlight)

	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start health monitor: %w", err)
	}
	defer monitor.Stop()
	fmt.Println("✓ Health monitor started")

	// Rule artifact watcher
	if cfg.Health.WatchRules {
		watcher, err := health.NewRuleWatcher(cfg.Policy.RulesPath, logger)
		if err != nil {
			return fmt.Errorf("failed to create rule watcher: %w", err)
		}
		go func() {
			if err := watcher.Watch(ctx, monitor.CheckDriftNow); err != nil {
				logger.Error("rule watcher failed", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	// Audit archival
	if cfg.Audit.ArchiveEnabled {
		source, ok := store.(archiver.AuditSource)
		if !ok {
			return cli.NewConfigError("audit.archive_enabled",
				fmt.Sprintf("backend %s does not support archival", cfg.State.Backend))
		}
		arch := archiver.NewArchiver(&archiver.Config{
			RetentionDays: cfg.Audit.RetentionDays,
			ArchivePath:   cfg.Audit.ArchivePath,
		}, source)
		scheduler := archiver.NewScheduler(arch, cfg.Audit.ArchiveSchedule)
		if err := scheduler.Start(ctx); err != nil {
			logger.Warn("failed to start audit archival scheduler", "error", err)
		} else {
			defer scheduler.Stop()
			fmt.Println("✓ Audit archival scheduled")
		}
	}

	// HTTP server
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if collector != nil {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}
