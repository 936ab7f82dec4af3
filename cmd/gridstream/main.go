// Package main implements the entry point for the GridStream application.
// GridStream is a telemetry distribution pipeline that partitions device
// measurements across validator replicas, persists accepted readings, and
// fans live events out to WebSocket subscribers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/gridstream/broadcast"
	"github.com/c360/gridstream/component"
	"github.com/c360/gridstream/config"
	gatewayhttp "github.com/c360/gridstream/gateway/http"
	"github.com/c360/gridstream/metric"
	"github.com/c360/gridstream/natsclient"
	"github.com/c360/gridstream/router"
	"github.com/c360/gridstream/storage/postgres"
	"github.com/c360/gridstream/topology"
	"github.com/c360/gridstream/validator"
)

// Build information constants
const (
	Version   = "1.0.0"
	BuildTime = "dev"
	appName   = "gridstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting GridStream",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := config.NewLoader().Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.ReplicaID >= 0 {
		cfg.Validator.ReplicaID = cliCfg.ReplicaID
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "roles", cfg.Roles)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsRegistry := metric.NewMetricsRegistry()

	natsClient, err := setupNATS(ctx, cfg, logger, metricsRegistry)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer closeCancel()
			_ = natsClient.Close(closeCtx)
		}()
	}

	store, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	deps := component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		Platform: component.PlatformMeta{
			Organization: cfg.Platform.Org,
			Platform:     cfg.Platform.ID,
		},
	}

	manager := component.NewManager(logger)
	if err := registerComponents(cfg, deps, store, manager); err != nil {
		return err
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = metricsServer.Stop() }()
	}

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	slog.Info("GridStream started", "roles", cfg.Roles)

	<-ctx.Done()
	slog.Info("Received shutdown signal")

	if err := manager.StopAll(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("GridStream shutdown complete")
	return nil
}

// natsRoles lists the roles that talk to the message broker
var natsRoles = []config.Role{config.RoleRouter, config.RoleValidator, config.RoleBroadcaster}

func needsNATS(cfg *config.Config) bool {
	for _, role := range natsRoles {
		if cfg.HasRole(role) {
			return true
		}
	}
	return false
}

func needsStore(cfg *config.Config) bool {
	return cfg.HasRole(config.RoleValidator) || cfg.HasRole(config.RoleGateway)
}

// setupNATS creates and connects the broker client, retrying with a
// fixed delay until the broker is reachable or the process is signalled.
func setupNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) (*natsclient.Client, error) {
	if !needsNATS(cfg) {
		return nil, nil
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName(fmt.Sprintf("%s-%s", appName, cfg.Platform.ID)),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithCoreMetrics(registry.Metrics),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}

	natsClient, err := natsclient.NewClient(cfg.NATSURL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", cfg.NATSURL())
	if err := natsClient.ConnectWithRetry(ctx, cfg.NATS.ConnectRetry); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return natsClient, nil
}

// setupStore opens the measurement store and ensures its schema exists
func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.Store, error) {
	if !needsStore(cfg) {
		return nil, nil
	}

	slog.Info("Connecting to measurement store")
	store, err := postgres.Open(ctx, cfg.Postgres.DSN, postgres.Options{
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
		ConnectRetry: cfg.Postgres.ConnectRetry,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open measurement store: %w", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure store schema: %w", err)
	}

	return store, nil
}

// registerComponents builds the components the configured roles require.
// Registration order is start order: the topology consumer starts before
// the validator that reads its table.
func registerComponents(cfg *config.Config, deps component.Dependencies, store *postgres.Store, manager *component.Manager) error {
	if cfg.HasRole(config.RoleValidator) {
		replicaCfg, err := json.Marshal(cfg.Validator)
		if err != nil {
			return fmt.Errorf("marshal validator config: %w", err)
		}

		matComp, err := topology.NewMaterializer(replicaCfg, deps)
		if err != nil {
			return fmt.Errorf("create topology materializer: %w", err)
		}
		mat, ok := matComp.(*topology.Materializer)
		if !ok {
			return fmt.Errorf("unexpected materializer type %T", matComp)
		}
		if err := manager.Register("topology-materializer", matComp); err != nil {
			return err
		}

		validatorComp, err := validator.NewValidator(replicaCfg, deps, store, mat.Table())
		if err != nil {
			return fmt.Errorf("create validator: %w", err)
		}
		if err := manager.Register("validator", validatorComp); err != nil {
			return err
		}
	}

	if cfg.HasRole(config.RoleRouter) {
		routerCfg, err := json.Marshal(cfg.Router)
		if err != nil {
			return fmt.Errorf("marshal router config: %w", err)
		}
		routerComp, err := router.NewRouter(routerCfg, deps)
		if err != nil {
			return fmt.Errorf("create partition router: %w", err)
		}
		if err := manager.Register("partition-router", routerComp); err != nil {
			return err
		}
	}

	if cfg.HasRole(config.RoleBroadcaster) {
		broadcastCfg, err := json.Marshal(cfg.Broadcast)
		if err != nil {
			return fmt.Errorf("marshal broadcast config: %w", err)
		}
		broadcastComp, err := broadcast.NewBroadcaster(broadcastCfg, deps)
		if err != nil {
			return fmt.Errorf("create broadcaster: %w", err)
		}
		if err := manager.Register("fanout-broadcaster", broadcastComp); err != nil {
			return err
		}
	}

	if cfg.HasRole(config.RoleGateway) {
		gatewayCfg, err := json.Marshal(cfg.Gateway)
		if err != nil {
			return fmt.Errorf("marshal gateway config: %w", err)
		}
		gatewayComp, err := gatewayhttp.NewGateway(gatewayCfg, deps, store)
		if err != nil {
			return fmt.Errorf("create HTTP gateway: %w", err)
		}
		if err := manager.Register("http-gateway", gatewayComp); err != nil {
			return err
		}
	}

	return nil
}
