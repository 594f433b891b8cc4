// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// crowdwatch is the crowd density monitoring daemon for pilgrimage sites:
// it ingests per-area density readings, evaluates them against configurable
// thresholds, raises and resolves alerts, manages the emergency mode flag,
// and serves the admin dashboard API with SSE/WebSocket live feeds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yatra.is/crowdwatch/internal/alerting"
	"yatra.is/crowdwatch/internal/api"
	"yatra.is/crowdwatch/internal/audit"
	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/emergency"
	"yatra.is/crowdwatch/internal/feed"
	"yatra.is/crowdwatch/internal/health"
	"yatra.is/crowdwatch/internal/history"
	"yatra.is/crowdwatch/internal/logging"
	"yatra.is/crowdwatch/internal/metrics"
	"yatra.is/crowdwatch/internal/monitor"
	"yatra.is/crowdwatch/internal/threshold"
)

func main() {
	configPath := flag.String("config", "crowdwatch.hcl", "path to the HCL configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "crowdwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)
	logging.SetDefault(logger)
	logger.Info("Starting crowdwatch", "config", configPath, "areas", len(cfg.Areas))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)

	tracker := health.NewTracker(logging.WithComponent("health"))

	// Audit trail
	var auditStore *audit.Store
	if cfg.Audit != nil && cfg.Audit.Enabled {
		path := cfg.Audit.DatabasePath
		if path == "" {
			path = "audit.db"
		}
		auditStore, err = audit.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer auditStore.Close()
	}
	auditLog := audit.NewLogger(auditStore, logging.WithComponent("audit"))
	if cfg.Audit != nil {
		auditLog.StartRetentionSweep(cfg.Audit.RetentionDays, stop)
	}

	// Core pipeline: monitor -> alert engine -> emergency manager
	defaults := config.DefaultThresholds()
	if cfg.Thresholds != nil {
		defaults = *cfg.Thresholds
	}
	mon := monitor.New(cfg.Areas, logging.WithComponent("monitor"))
	thresholds := threshold.NewManager(cfg.Areas, defaults, auditLog, logging.WithComponent("threshold"))
	emergencyMgr := emergency.NewManager(cfg.Areas, auditLog, logging.WithComponent("emergency"))
	engine := alerting.NewEngine(thresholds, emergencyMgr, auditLog, logging.WithComponent("alerting"))
	mon.Subscribe(engine.Evaluate)

	wireMetrics(mon, engine, emergencyMgr)

	// Density history persistence
	var historyDB *history.Store
	if cfg.History != nil && cfg.History.Enabled {
		path := cfg.History.DatabasePath
		if path == "" {
			path = "history.db"
		}
		historyDB, err = history.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		defer historyDB.Close()

		collector := history.NewCollector(historyDB, time.Minute, func(areaID string, at time.Time, density float64) threshold.Level {
			eff, err := thresholds.EffectiveAt(areaID, at)
			if err != nil {
				return threshold.LevelNormal
			}
			lvl, _ := threshold.LevelFor(density, eff)
			return lvl
		})
		mon.Subscribe(collector.Ingest)
		collector.StartBackgroundFlush(config.Duration(cfg.History.FlushInterval, time.Minute), stop)
		if cfg.History.RetentionDays > 0 {
			collector.StartRetentionSweep(time.Duration(cfg.History.RetentionDays)*24*time.Hour, stop)
		}
	}

	// Simulated density feed
	if cfg.Feed != nil && cfg.Feed.Enabled {
		interval := config.Duration(cfg.Feed.Interval, 5*time.Second)
		if cfg.Feed.ScenarioFile != "" {
			scenario, err := feed.LoadScenario(cfg.Feed.ScenarioFile)
			if err != nil {
				return err
			}
			go feed.NewReplayer(mon, scenario, interval, tracker, logging.WithComponent("feed")).Run(ctx)
		} else {
			go feed.New(mon, cfg.Areas, interval, cfg.Feed.Seed, tracker, logging.WithComponent("feed")).Run(ctx)
		}
	}

	server := api.NewServer(api.ServerOptions{
		Config:     cfg,
		Monitor:    mon,
		Thresholds: thresholds,
		Engine:     engine,
		Emergency:  emergencyMgr,
		Tracker:    tracker,
		AuditLog:   auditLog,
		HistoryDB:  historyDB,
		Logger:     logging.WithComponent("api"),
	})
	server.Wire(stop)

	addr := ":8321"
	if cfg.Server != nil && cfg.Server.ListenAddr != "" {
		addr = cfg.Server.ListenAddr
	}

	err = server.Start(ctx, addr)
	logger.Info("Shutdown complete")
	return err
}

func buildLogger(cfg *config.Config) *logging.Logger {
	lc := logging.DefaultConfig()
	if cfg.Logging != nil {
		if cfg.Logging.Level != "" {
			lc.Level = cfg.Logging.Level
		}
		if cfg.Logging.Format != "" {
			lc.Format = cfg.Logging.Format
		}
		if cfg.Logging.Syslog != nil {
			lc.Syslog = *cfg.Logging.Syslog
		}
	}
	return logging.New(lc)
}

// wireMetrics keeps the Prometheus gauges in step with the live pipeline.
func wireMetrics(mon *monitor.Monitor, engine *alerting.Engine, em *emergency.Manager) {
	mon.Subscribe(func(r monitor.Reading) {
		metrics.ReadingsTotal.Inc()
		metrics.AreaDensity.WithLabelValues(r.AreaID).Set(r.Density)
		metrics.AreaLevel.WithLabelValues(r.AreaID).Set(float64(engine.CurrentLevel(r.AreaID).Rank()))
	})
	engine.Subscribe(func(ev alerting.AlertEvent) {
		if !ev.Resolved && !ev.Acknowledged {
			metrics.AlertsTotal.WithLabelValues(string(ev.Severity)).Inc()
		}
	})
	em.Subscribe(func(st *emergency.State) {
		if st != nil {
			metrics.EmergencyActive.Set(1)
		} else {
			metrics.EmergencyActive.Set(0)
		}
	})
}
