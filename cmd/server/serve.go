package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/example/kanrigate/internal/api"
	"github.com/example/kanrigate/internal/config"
	"github.com/example/kanrigate/internal/db"
	"github.com/example/kanrigate/internal/k8s"
	"github.com/example/kanrigate/internal/logging"
	"github.com/example/kanrigate/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is read from the environment and from a .env file in the
working directory. See APP_*, LDAP_*, AUDIT_ENABLED and DB_* variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.ProbeControlPlane {
		if err := cfg.CheckControlPlane(ctx); err != nil {
			return err
		}
	}

	client, err := k8s.NewClientFromPath(cfg.Kubeconfig)
	if err != nil {
		return err
	}

	m := metrics.New()
	opts := []k8s.Option{
		k8s.WithCredentialNamespace(cfg.CredentialNamespace),
		k8s.WithScanConcurrency(cfg.ScanConcurrency),
		k8s.WithLogger(logger),
		k8s.WithMetrics(m),
	}

	deps := api.Deps{Config: cfg, Logger: logger, Metrics: m}
	if cfg.AuditEnabled {
		gdb, err := db.InitPostgres(cfg)
		if err != nil {
			return err
		}
		defer db.Close(gdb)
		if err := db.AutoMigrate(gdb); err != nil {
			return fmt.Errorf("failed to migrate audit tables: %w", err)
		}
		store := db.NewAuditStore(gdb, logger)
		opts = append(opts, k8s.WithAuditor(store))
		deps.Audit = store
	}
	deps.Ops = k8s.NewOps(client, opts...)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("HTTP server starting",
		slog.String("addr", httpServer.Addr),
		logging.Cluster(cfg.ClusterName),
		logging.Host(cfg.ControlPlaneAddress),
		logging.Namespace(cfg.CredentialNamespace),
		slog.Bool("ldap", cfg.LDAPEnabled()),
		slog.Bool("audit", cfg.AuditEnabled))

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	}
}
