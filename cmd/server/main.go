package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/lockexport/internal/audit"
	"github.com/JonMunkholm/lockexport/internal/config"
	"github.com/JonMunkholm/lockexport/internal/core"
	"github.com/JonMunkholm/lockexport/internal/logging"
	"github.com/JonMunkholm/lockexport/internal/metrics"
	"github.com/JonMunkholm/lockexport/internal/session"
	"github.com/JonMunkholm/lockexport/internal/tapkey"
	"github.com/JonMunkholm/lockexport/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"tapkey_base_uri", cfg.Tapkey.BaseURI,
		"session_backend", cfg.Session.Backend,
		"export_max_concurrent", cfg.Export.MaxConcurrent,
		"lookup_mode", cfg.Export.LookupMode,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	registry := metrics.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := openSessionStore(ctx, cfg.Session)
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	auditRecorder, closeAudit, err := openAuditRecorder(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	defer closeAudit()

	service := core.NewService(core.ServiceConfig{
		Export: core.ExportOptions{
			PageSize:        cfg.Export.PageSize,
			LookupChunkSize: cfg.Export.LookupChunkSize,
			LookupMode:      core.LookupMode(cfg.Export.LookupMode),
		},
		Timeout:       cfg.Export.Timeout,
		MaxConcurrent: cfg.Export.MaxConcurrent,
		MaxWait:       cfg.Export.MaxWaitTime,
	}, auditRecorder, recorder)

	// Create server with config
	server := web.NewServer(cfg, web.Deps{
		Service: service,
		Auth:    tapkey.NewAuthorizer(cfg.Tapkey, recorder),
		Sessions: session.NewManager(store, session.Options{
			SecretKey:  cfg.Session.SecretKey,
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Session.CookieSecure,
		}),
		Metrics: registry,
	})

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running exports to complete (with timeout)
		exportStatus := service.LimiterStatus()
		if exportStatus.Active > 0 {
			slog.Info("waiting for exports to complete", "active", exportStatus.Active)
			if err := service.WaitForExports(shutdownCtx); err != nil {
				slog.Warn("exports did not complete in time", "error", err)
			} else {
				slog.Info("all exports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		return
	}
	<-idle
	slog.Info("server stopped")
}

// openSessionStore returns the configured session store and its cleanup.
func openSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, func(), error) {
	if cfg.UseRedis() {
		client, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		store := session.NewRedisStore(client, "")
		slog.Info("sessions stored in redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return store, func() { _ = store.Close() }, nil
	}

	store := session.NewMemoryStore(cfg.TTL / 4)
	slog.Info("sessions stored in memory")
	return store, func() { _ = store.Close() }, nil
}

// openAuditRecorder stores audit records in Postgres when a database URL is
// configured and logs them otherwise.
func openAuditRecorder(ctx context.Context, cfg config.DatabaseConfig) (core.AuditRecorder, func(), error) {
	if cfg.URL == "" {
		slog.Info("no audit database configured, export audit goes to the log")
		return audit.NewLogRecorder(slog.Default()), func() {}, nil
	}

	pool, err := audit.NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	recorder := audit.NewPostgresRecorder(pool)
	if err := recorder.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to audit database", "name", dbName)
	} else {
		slog.Info("connected to audit database")
	}
	return recorder, pool.Close, nil
}
