// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"grimm.is/tcbridge/internal/api"
	"grimm.is/tcbridge/internal/brand"
	"grimm.is/tcbridge/internal/bridge"
	"grimm.is/tcbridge/internal/cmdexec"
	"grimm.is/tcbridge/internal/config"
	"grimm.is/tcbridge/internal/iface"
	"grimm.is/tcbridge/internal/logging"
	"grimm.is/tcbridge/internal/metrics"
	"grimm.is/tcbridge/internal/monitor"
	"grimm.is/tcbridge/internal/qos"
)

const shutdownTimeout = 10 * time.Second

// RunServe runs the controller in the foreground until SIGINT or SIGTERM.
func RunServe(configFile string) error {
	if configFile == "" {
		configFile = brand.DefaultConfigPath()
	}
	res, found, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	cfg := res.Config

	logger := setupLogging(cfg)
	log := logger.WithComponent("main")
	if found {
		log.Info("configuration loaded", "path", configFile, "format", res.Format)
	} else {
		log.Info("configuration file not found, using defaults", "path", configFile)
	}
	for _, w := range res.Warnings {
		log.Warn("configuration warning", "detail", w)
	}

	if missing := lookTools(RequiredTools...); len(missing) > 0 {
		log.Warn("tools not found on PATH, related operations will fail", "missing", strings.Join(missing, ","))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	runner := cmdexec.NewExecutor(cfg.CommandTimeout(), logger.WithComponent("exec"), m)
	links := iface.NewEnumerator(nil, cfg.Interfaces.Excluded, cfg.Interfaces.ExcludedPrefixes,
		logger.WithComponent("iface"))

	br := bridge.NewManager(bridge.Options{
		Name:    cfg.Bridge.Name,
		Address: cfg.Bridge.Address,
		Runner:  runner,
		Links:   links,
		Logger:  logger.WithComponent("bridge"),
		Metrics: m,
	})
	if active, err := br.Detect(ctx); err != nil {
		log.Warn("bridge detection failed", "bridge", cfg.Bridge.Name, "error", err)
	} else if active {
		st := br.State()
		log.Info("adopted existing bridge", "bridge", st.Name, "members", strings.Join(st.Members, ","))
	}

	shaper := qos.NewManager(runner, logger.WithComponent("qos"), m)

	srv := api.NewServer(api.Options{
		Bridge:       br,
		Shaper:       shaper,
		Interfaces:   links,
		TCDefaults:   *cfg.TCDefaults,
		Metrics:      m,
		ServeMetrics: cfg.MetricsEnabled(),
		Logger:       logger.WithComponent("api"),
		Version:      brand.Version,
	})

	mon := monitor.NewService(br, srv.Broadcaster(), monitor.Options{
		Interval:         cfg.PollInterval(),
		IterationTimeout: cfg.CommandTimeout(),
		Logger:           logger.WithComponent("monitor"),
	})
	mon.Start(ctx)
	defer mon.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.API.Listen) }()

	log.Info("controller started", "version", brand.Version, "listen", cfg.API.Listen, "bridge", cfg.Bridge.Name)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// setupLogging installs the process logger. TCBRIDGE_LOG_LEVEL overrides
// the configured level.
func setupLogging(cfg *config.Config) *logging.Logger {
	level := cfg.LogLevel
	if v := brand.Env("LOG_LEVEL"); v != "" {
		level = v
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(level)
	logCfg.JSON = cfg.LogJSON

	logger := logging.New(logCfg)
	logging.SetDefault(logger)
	return logger
}
