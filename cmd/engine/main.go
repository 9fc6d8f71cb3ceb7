// Package main is the entry point for the girder workflow engine server.
// It wires all dependencies together and starts the HTTP server.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/internal/capability"
	"github.com/sitehq/girder/internal/config"
	"github.com/sitehq/girder/internal/definition"
	"github.com/sitehq/girder/internal/graph"
	"github.com/sitehq/girder/internal/guard"
	"github.com/sitehq/girder/internal/observability"
	"github.com/sitehq/girder/internal/transport"
	"github.com/sitehq/girder/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "girder-engine", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Guard engine and the built-in workflow definitions. Every guard
	// expression is compiled at startup so a broken definition fails fast.
	guards := guard.NewEngine()
	registry, err := definition.NewValidatedRegistry(definition.Builtin(), guards.Compile)
	if err != nil {
		logger.Error("definition validation failed", zap.Error(err))
		return 1
	}

	capResolver, err := buildCapabilityResolver(cfg.Capability)
	if err != nil {
		logger.Error("capability resolver initialization failed", zap.Error(err))
		return 1
	}

	stores, storesClose, err := buildStores(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}

	executor := workflow.NewExecutor(registry, stores.instances, stores.audit, guards, nil, logger)
	graphSvc := graph.NewService(stores.graph, stores.audit, logger, nil)

	secret := os.Getenv(cfg.Identity.SecretEnv)
	if secret == "" {
		logger.Error("JWT secret not configured", zap.String("env", cfg.Identity.SecretEnv))
		return 1
	}
	authn := transport.NewAuthenticator(cfg.Identity, []byte(secret), capResolver, logger)

	readinessChecks := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return len(registry.All()) > 0 },
	}
	if hc, ok := stores.instances.(observability.HealthChecker); ok {
		readinessChecks.InstanceStore = hc
	}
	if hc, ok := stores.graph.(observability.HealthChecker); ok {
		readinessChecks.GraphStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Executor:     executor,
		Graph:        graphSvc,
		Authenticate: authn.Middleware,
		Readiness:    readinessChecks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Int("definitions", len(registry.All())),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if storesClose != nil {
		storesClose()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// stores bundles the three persistence seams behind one driver choice. All
// three always share a backend so that audit appends commit atomically with
// the row changes they describe.
type stores struct {
	audit     audit.Store
	instances workflow.InstanceStore
	graph     graph.Store
}

// buildStores creates the store set based on config.
func buildStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (stores, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory stores")
		auditStore := audit.NewMemStore()
		return stores{
			audit:     auditStore,
			instances: workflow.NewMemInstanceStore(auditStore),
			graph:     graph.NewMemStore(auditStore),
		}, nil, nil

	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return stores{}, nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return stores{}, nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return stores{}, nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return stores{}, nil, fmt.Errorf("store: ping: %w", err)
		}

		return stores{
			audit:     audit.NewPgStore(pool),
			instances: workflow.NewPgInstanceStore(pool),
			graph:     graph.NewPgStore(pool),
		}, pool.Close, nil

	default:
		return stores{}, nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildCapabilityResolver creates the role-to-capability resolver. Without a
// policy file the compiled-in defaults apply.
func buildCapabilityResolver(cfg config.CapabilityConfig) (*capability.Resolver, error) {
	if cfg.StaticPolicyFile == "" {
		return capability.NewResolver(capability.NewDefaultPolicyEvaluator(), cfg.CacheTTL), nil
	}
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.StaticPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("static policy: %w", err)
	}
	return capability.NewResolver(evaluator, cfg.CacheTTL), nil
}
