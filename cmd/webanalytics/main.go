// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/olegiv/webanalytics-go/internal/cache"
	"github.com/olegiv/webanalytics-go/internal/config"
	"github.com/olegiv/webanalytics-go/internal/handler"
	"github.com/olegiv/webanalytics-go/internal/inject"
	"github.com/olegiv/webanalytics-go/internal/logging"
	"github.com/olegiv/webanalytics-go/internal/record"
	"github.com/olegiv/webanalytics-go/internal/scheduler"
	"github.com/olegiv/webanalytics-go/internal/tool"
	"github.com/olegiv/webanalytics-go/internal/version"
	"github.com/olegiv/webanalytics-go/tools/ganalytics"
	"github.com/olegiv/webanalytics-go/tools/gtagmanager"
	"github.com/olegiv/webanalytics-go/tools/guniversal"
	"github.com/olegiv/webanalytics-go/tools/matomo"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "webanalytics - web analytics injection service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WA_WWWROOT             Canonical URL of the tracked site (required)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WA_DB_PATH             SQLite database path (default: ./data/webanalytics.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WA_SERVER_PORT         Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WA_ENV                 Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WA_REDIS_URL           Redis URL for a shared markup cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WA_MATOMO_SITEURL      Matomo instance URL for auto-provisioning (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WA_MATOMO_APITOKEN     Matomo API token for auto-provisioning (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "\nFor more information, see: https://github.com/olegiv/webanalytics-go\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
		_, _ = fmt.Printf("webanalytics %s\n", info)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := &version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	logLevel := logging.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ensure data directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := record.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := record.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Upgrade logger to also persist WARN and ERROR logs to the database
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewErrorLogHandler(textHandler, db))
	slog.SetDefault(logger)

	store := record.NewSQLiteStore(db)

	// Markup cache: Redis when configured, in-memory otherwise
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisURL = cfg.RedisURL
	cacheCfg.Prefix = cfg.CachePrefix
	cacheCfg.DefaultTTL = time.Duration(cfg.CacheTTLSecs) * time.Second
	markupCache, err := cache.New(cacheCfg)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() {
		if err := markupCache.Close(); err != nil {
			slog.Error("error closing cache", "error", err)
		}
	}()
	slog.Info("markup cache ready", "backend", cacheBackend(cfg))

	// Provider kinds
	registry := tool.NewRegistry(logger)

	matomoCfg := matomo.Config{
		SiteURL:           cfg.MatomoSiteURL,
		APIToken:          cfg.MatomoAPIToken,
		WWWRoot:           cfg.WWWRoot,
		SiteName:          cfg.SiteName,
		DefaultAutoUpdate: cfg.MatomoDefaultAutoUpdate,
		Timezone:          cfg.MatomoTimezone,
		Currency:          cfg.MatomoCurrency,
	}
	var matomoClient *matomo.Client
	if cfg.MatomoProvisionEnabled() {
		matomoClient = matomo.NewClient(cfg.MatomoSiteURL, cfg.MatomoAPIToken, logger)
		slog.Info("Matomo auto-provisioning enabled", "instance", cfg.MatomoSiteURL)
	}

	for _, k := range []tool.Kind{
		matomo.New(matomoCfg, store, store, matomoClient, logger),
		ganalytics.New(),
		gtagmanager.New(),
		guniversal.New(),
	} {
		if err := registry.Register(k); err != nil {
			return fmt.Errorf("registering kind %s: %w", k.Name(), err)
		}
	}
	slog.Info("provider kinds registered", "kinds", registry.Kinds())

	injector := inject.New(store, registry, logger,
		inject.WithCache(markupCache, cacheCfg.DefaultTTL))

	// Periodic sweep keeps provisioning alive on sites with no traffic
	sched := scheduler.New(injector, cfg.SweepSchedule, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	h := handler.New(store, registry, injector, markupCache, versionInfo, logger)

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           h.Routes(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func cacheBackend(cfg *config.Config) string {
	if cfg.UseRedisCache() {
		return "redis"
	}
	return "memory"
}
