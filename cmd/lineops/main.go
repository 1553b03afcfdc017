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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/movitel/lineops/internal/cache"
	"github.com/movitel/lineops/internal/eventbus"
	journalapp "github.com/movitel/lineops/internal/journal/app"
	journalpg "github.com/movitel/lineops/internal/journal/repository/postgres"
	"github.com/movitel/lineops/internal/lifecycle/adapters/rest"
	"github.com/movitel/lineops/internal/lifecycle/app"
	"github.com/movitel/lineops/internal/platform/config"
	"github.com/movitel/lineops/internal/platform/database"
	"github.com/movitel/lineops/internal/platform/logger"
	"github.com/movitel/lineops/internal/platform/messagebroker"
	"github.com/movitel/lineops/internal/realtime"
	"github.com/movitel/lineops/internal/relay"
	"github.com/movitel/lineops/internal/session"
	httptransport "github.com/movitel/lineops/internal/transport/http"
	"github.com/movitel/lineops/internal/transport/http/middleware"
)

const (
	serviceName     = "lineops"
	shutdownTimeout = 15 * time.Second
)

// httpLogger is a middleware that logs HTTP requests using slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			requestID := chiMiddleware.GetReqID(r.Context())

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", duration.Milliseconds()),
				slog.String("request_id", requestID),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)

	appLogger.Info("Line operations service starting...",
		"http_port", cfg.HTTPPort,
		"metrics_port", cfg.MetricsPort,
		"upstream", cfg.UpstreamBaseURL,
		"log_level", cfg.LogLevel,
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS", "url", cfg.NATSUrl)

	// Core in-process plumbing: bus, caches and the invalidation bridge.
	bus := eventbus.New(appLogger)
	store := cache.NewStore(appLogger)
	bridge := cache.NewBridge(store, bus, appLogger)
	bridge.Register()
	defer bridge.Unregister()

	sessionStore := session.NewStore(cfg.SessionFile, cfg.JWTAccessSecret, appLogger)
	upstream := rest.NewClient(cfg.UpstreamBaseURL, sessionStore, appLogger)
	orchestrator := app.NewOrchestrator(upstream, upstream, store, appLogger)

	manager := realtime.NewManager(
		realtime.NewSSETransport(cfg.UpstreamBaseURL),
		bus,
		appLogger,
		time.Duration(cfg.ReconnectBaseDelayMS)*time.Millisecond,
		cfg.ReconnectMaxAttempts,
	)

	// Resume the push channel from a persisted session, if one survives.
	if sess, err := sessionStore.Load(); err == nil {
		if err := manager.Connect(mainCtx, sess.Token, sess.Role, sess.AgencyID); err != nil {
			appLogger.Warn("Failed to resume push channel from stored session", "error", err)
		}
	} else if errors.Is(err, session.ErrReauthRequired) {
		appLogger.Info("No stored session; push channel stays idle until login")
	} else {
		appLogger.Warn("Failed to load stored session", "error", err)
	}

	eventRepo := journalpg.NewPgEventRepository(dbPool, appLogger)
	recorder := journalapp.NewRecorder(eventRepo, bus, appLogger)

	eventRelay := relay.New(natsClient, bus, appLogger)
	eventRelay.Register(mainCtx)
	defer eventRelay.Unregister()

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return recorder.Start(groupCtx)
	})

	// --- HTTP API Server ---
	lifecycleHandler := httptransport.NewLifecycleHandler(orchestrator, upstream, appLogger)
	statusHandler := httptransport.NewStatusHandler(manager, appLogger)

	httpRouter := chi.NewRouter()
	httpRouter.Use(chiMiddleware.RequestID)
	httpRouter.Use(chiMiddleware.RealIP)
	httpRouter.Use(chiMiddleware.Recoverer)
	httpRouter.Use(httpLogger(appLogger))

	statusHandler.RegisterRoutes(httpRouter)
	httpRouter.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
		lifecycleHandler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	// --- Metrics HTTP Server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Metrics HTTP server shut down gracefully.")
		return nil
	})

	// --- Graceful Shutdown Handling ---
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown...")

		shutdownCtx, cancelShutdownTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdownTimeout()

		manager.Disconnect()

		var shutdownErrors error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		return shutdownErrors
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service shut down with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Line operations service stopped.")
}
