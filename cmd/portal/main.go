package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/assocportal/portal/internal/app"
	"github.com/assocportal/portal/internal/auth"
	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/finance"
	"github.com/assocportal/portal/internal/members"
	"github.com/assocportal/portal/internal/observability"
	"github.com/assocportal/portal/internal/platform/cache"
	"github.com/assocportal/portal/internal/projects"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/secureapi"
	"github.com/assocportal/portal/internal/shared"
	"github.com/assocportal/portal/internal/view"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	backendClient := backend.NewClient(backend.Config{
		BaseURL:    cfg.BackendURL,
		Timeout:    cfg.BackendTimeout,
		AuthScheme: cfg.BackendAuthScheme,
	})

	registry := rbac.NewRegistry(rbac.RegistryConfig{
		Fetcher:  backendClient,
		Logger:   logger,
		Recorder: metrics,
		Size:     cfg.PermissionsCacheSize,
		TTL:      cfg.PermissionsCacheTTL,
	})

	api := app.NewAPIFactory(app.APIParams{Backend: backendClient, Registry: registry, Logger: logger, Metrics: metrics})
	routeGuard := app.NewGuard(cfg, templates, logger, metrics)

	authService := auth.NewService(backendClient, registry, logger)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Registry:           registry,
		AuthHandler:        authHandler,
		MembersHandler:     members.NewHandler(logger, api, templates, csrfManager, routeGuard),
		ProjectsHandler:    projects.NewHandler(logger, api, templates, csrfManager, routeGuard),
		FinanceHandler:     finance.NewHandler(logger, api, templates, csrfManager, routeGuard),
		ProxyHandler:       secureapi.NewProxyHandler(api, nil),
		PermissionsHandler: rbac.NewPermissionsHandler(),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.BackendURL))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
