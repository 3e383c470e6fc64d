// Command plugifyd is the reference host process embedding the
// Plugify core: it reads its own YAML configuration, wires up the
// optional backing services (NATS event bus, Redis resolver cache,
// Postgres report store), drives the orchestrator through the full
// startup sequence against a caller-supplied manifest source, and then
// serves the read-only admin API and a fixed-interval update pump
// until it receives a shutdown signal. Grounded on the teacher's
// cmd/main.go: environment-driven optional-service bring-up (continue
// without a backing service rather than fail startup), an HTTP server
// with security timeouts, and signal-triggered graceful shutdown with
// a bounded timeout.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamspace/plugify/internal/adminapi"
	"github.com/streamspace/plugify/internal/eventbus"
	"github.com/streamspace/plugify/internal/hostconfig"
	"github.com/streamspace/plugify/internal/logger"
	"github.com/streamspace/plugify/internal/manifest"
	"github.com/streamspace/plugify/internal/nativeloader"
	"github.com/streamspace/plugify/internal/orchestrator"
	"github.com/streamspace/plugify/internal/provider"
	"github.com/streamspace/plugify/internal/reportstore"
	"github.com/streamspace/plugify/internal/resolvecache"
	"github.com/streamspace/plugify/internal/scheduler"
)

// staticManifestSource returns a fixed manifest set supplied at
// construction. It stands in for the real discovery mechanism (reading
// a directory, a database, a remote registry) that spec §1 treats as an
// external collaborator the core does not implement; an embedder
// swaps this out for its own ManifestSource.
type staticManifestSource struct {
	manifests []manifest.Manifest
}

func (s staticManifestSource) Discover(ctx context.Context) ([]manifest.Manifest, error) {
	return s.manifests, nil
}

func main() {
	configPath := flag.String("config", os.Getenv("PLUGIFYD_CONFIG"), "path to the plugifyd YAML config file")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	logPretty := flag.Bool("log-pretty", getEnv("LOG_PRETTY", "false") == "true", "render console-friendly logs instead of JSON")
	flag.Parse()

	logger.Initialize(*logLevel, *logPretty)
	log := logger.GetLogger()

	cfg, err := hostconfig.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load host configuration")
	}

	// Optional event bus: falls back to in-process-only fan-out if NATS
	// is unreachable or unconfigured, never aborts startup.
	events, err := eventbus.New(eventbus.Config{URL: cfg.Events.URL, User: cfg.Events.User, Password: cfg.Events.Password}, *log)
	if err != nil {
		log.Warn().Err(err).Msg("event bus unavailable, continuing with in-process events only")
	}
	defer events.Close()

	// Optional resolver cache.
	resolveCache, err := resolvecache.New(resolvecache.Config{
		Enabled:  cfg.Cache.Enabled,
		Host:     cfg.Cache.Host,
		Port:     cfg.Cache.Port,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("resolver cache unavailable, continuing without caching")
		resolveCache, _ = resolvecache.New(resolvecache.Config{Enabled: false})
	}
	defer resolveCache.Close()

	// Optional report history. reportStore stays nil when disabled or
	// unreachable; reportHistory is only ever assigned a non-nil *Store
	// so it never becomes a nil interface wrapping a typed nil pointer.
	var reportStore *reportstore.Store
	var reportHistory adminapi.ReportHistory
	if cfg.Reports.Enabled {
		store, err := reportstore.New(reportstore.Config{
			Host:     cfg.Reports.Host,
			Port:     cfg.Reports.Port,
			User:     cfg.Reports.User,
			Password: cfg.Reports.Password,
			DBName:   cfg.Reports.DBName,
			SSLMode:  cfg.Reports.SSLMode,
		})
		if err != nil {
			log.Warn().Err(err).Msg("report store unavailable, startup history will not be persisted")
		} else {
			defer store.Close()
			reportStore = store
			reportHistory = store
		}
	}

	loader := nativeloader.New()

	orch := orchestrator.New(*log, loader, orchestrator.Options{
		Platform: manifest.Platform(cfg.Platform),
		Config: provider.HostConfig{
			BasePath:    cfg.Paths.Base,
			ConfigsPath: cfg.Paths.Configs,
			DataPath:    cfg.Paths.Data,
			LogsPath:    cfg.Paths.Logs,
		},
		Events:       events,
		ResolveCache: resolveCache,
	})

	source := staticManifestSource{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	report, err := orch.Run(ctx, source)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("startup sequence failed")
	}
	if reportStore != nil {
		if _, err := reportStore.Record(report.Aborted, report.AbortedAt, report); err != nil {
			log.Warn().Err(err).Msg("failed to persist startup report")
		}
	}
	if report.Aborted {
		log.Fatal().Str("phase", report.AbortedAt).Msg("startup aborted")
	}

	ticker := scheduler.New(*log)
	if err := ticker.StartTickEvery(cfg.TickInterval, orch.Tick); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule update pump")
	}
	ticker.Start()

	var adminSrv *http.Server
	if cfg.AdminAPI.Enabled {
		api := adminapi.New(*log, orch, reportHistory, events)
		adminSrv = &http.Server{
			Addr:              cfg.AdminAPI.Addr,
			Handler:           api.Handler(),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		go func() {
			log.Info().Str("addr", cfg.AdminAPI.Addr).Msg("admin api listening")
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin api server stopped unexpectedly")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	ticker.Stop()

	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("admin api server forced to shutdown")
		}
		shutdownCancel()
	}

	orch.Shutdown()
	log.Info().Msg("plugifyd stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
