// Package main is the entry point for the avalb load balancer.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/balancer"
	"github.com/vyrodovalexey/avalb/internal/circuitbreaker"
	"github.com/vyrodovalexey/avalb/internal/config"
	"github.com/vyrodovalexey/avalb/internal/conntrack"
	"github.com/vyrodovalexey/avalb/internal/healthcheck"
	"github.com/vyrodovalexey/avalb/internal/metrics"
	"github.com/vyrodovalexey/avalb/internal/observability"
	"github.com/vyrodovalexey/avalb/internal/proxy"
	"github.com/vyrodovalexey/avalb/internal/retry"
	"github.com/vyrodovalexey/avalb/internal/server"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)
	app := buildApplication(cfg, logger)

	run(app, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVALB_CONFIG_PATH", "configs/avalb.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVALB_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVALB_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avalb version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadConfig loads and validates the configuration.
func loadConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting avalb",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	return cfg
}

// application holds the wired components.
type application struct {
	cfg        *config.Config
	collector  *metrics.Collector
	checker    *healthcheck.Checker
	proxySrv   *server.Server
	metricsSrv *server.Server
}

// buildApplication wires the registry, breakers, picker, retry policy,
// connection tracker, health checker, and both HTTP servers.
func buildApplication(cfg *config.Config, logger observability.Logger) *application {
	collector := metrics.NewCollector(nil)

	registry, err := backend.NewRegistry(cfg.Backends, logger)
	if err != nil {
		logger.Fatal("failed to build backend registry", observability.Error(err))
	}

	names := make([]string, 0, registry.Len())
	for _, b := range registry.All() {
		names = append(names, b.Name())
	}
	collector.InitBackends(names)

	breakers := circuitbreaker.NewRegistry(names, circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout.Duration(),
	},
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithStateChangeFunc(breakerMetrics(collector)),
	)

	picker, err := balancer.New(cfg.Algorithm)
	if err != nil {
		logger.Fatal("failed to build selector", observability.Error(err))
	}

	policy := retry.NewPolicy(cfg.Retry)
	tracker := conntrack.New(cfg.MaxConnections, collector)

	checker := healthcheck.New(registry, cfg.HealthCheck,
		healthcheck.WithLogger(logger),
		healthcheck.WithCollector(collector),
	)

	handler := proxy.New(registry, picker, breakers, policy, tracker,
		proxy.WithLogger(logger),
		proxy.WithCollector(collector),
	)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", collector.Handler())

	return &application{
		cfg:       cfg,
		collector: collector,
		checker:   checker,
		proxySrv: server.New("proxy", cfg.ListenAddr, handler,
			server.WithLogger(logger)),
		metricsSrv: server.New("metrics", cfg.MetricsAddr, metricsMux,
			server.WithLogger(logger)),
	}
}

// breakerMetrics adapts breaker state transitions onto the collector.
func breakerMetrics(collector *metrics.Collector) circuitbreaker.StateChangeFunc {
	return func(name string, from, to circuitbreaker.State) {
		collector.SetCircuitBreakerState(name, int(to))
		if from == circuitbreaker.StateClosed && to == circuitbreaker.StateOpen {
			collector.IncCircuitBreakerTrips(name)
		}
	}
}

// run starts the health checker and both servers, then blocks until a
// shutdown signal arrives.
func run(app *application, logger observability.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.checker.Start(ctx)
	defer app.checker.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(app.proxySrv.Start)
	g.Go(app.metricsSrv.Start)

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := app.proxySrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("proxy shutdown failed", observability.Error(err))
		}
		return app.metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("load balancer exited with error", observability.Error(err))
		os.Exit(1)
	}

	logger.Info("load balancer stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
