package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kvecd/internal/config"
	"github.com/kailas-cloud/kvecd/internal/db"
	dbMemory "github.com/kailas-cloud/kvecd/internal/db/memory"
	dbRedis "github.com/kailas-cloud/kvecd/internal/db/redis"
	"github.com/kailas-cloud/kvecd/internal/kernel"
	logpkg "github.com/kailas-cloud/kvecd/internal/logger"
	"github.com/kailas-cloud/kvecd/internal/metrics"
	"github.com/kailas-cloud/kvecd/internal/repository/payload"
	"github.com/kailas-cloud/kvecd/internal/session"
	chiTransport "github.com/kailas-cloud/kvecd/internal/transport/chi"
	batchuc "github.com/kailas-cloud/kvecd/internal/usecase/batch"
	collectionuc "github.com/kailas-cloud/kvecd/internal/usecase/collection"
	pointuc "github.com/kailas-cloud/kvecd/internal/usecase/point"
	recommenduc "github.com/kailas-cloud/kvecd/internal/usecase/recommend"
	scrolluc "github.com/kailas-cloud/kvecd/internal/usecase/scroll"
	searchuc "github.com/kailas-cloud/kvecd/internal/usecase/search"
	"github.com/kailas-cloud/kvecd/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kvecd adapter",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("device_driver", cfg.Device.Driver),
		zap.String("store_driver", cfg.Store.Driver),
	)

	// Register device metrics explicitly (no init())
	metrics.RegisterDeviceMetrics()

	// Open the vector device based on driver
	var raw kernel.Bridge
	switch cfg.Device.Driver {
	case "memory":
		raw = kernel.NewMemory()
	case "ioctl":
		dev, err := kernel.OpenDevice(cfg.Device.Path)
		if err != nil {
			logger.Fatal("Failed to open vector device",
				zap.String("path", cfg.Device.Path), zap.Error(err))
		}
		raw = dev
	default:
		logger.Fatal("Unknown device driver", zap.String("driver", cfg.Device.Driver))
	}

	// Pool bounds device concurrency and applies a per-call timeout.
	bridge := kernel.NewPool(raw, cfg.Device.PoolSize, time.Duration(cfg.Device.CallTimeoutSec)*time.Second)
	defer func() { _ = bridge.Close() }()
	logger.Info("Vector device ready",
		zap.Int("pool_size", cfg.Device.PoolSize),
		zap.Int("call_timeout_sec", cfg.Device.CallTimeoutSec),
	)

	// Create the payload/session store based on driver
	var store db.Store
	switch cfg.Store.Driver {
	case "memory":
		store = dbMemory.NewStore()
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Store.Addrs,
			Password: cfg.Store.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create store", zap.Error(err))
		}
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Store.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Connected to store")

	// Create repositories
	payloads := payload.New(store, cfg.Store.KeyPrefix)
	sessions := session.NewStore(store, cfg.Store.KeyPrefix, time.Duration(cfg.Session.TTLSec)*time.Second)

	// Create use case services
	collectionSvc := collectionuc.New(bridge, payloads, kernel.MaxDim)
	pointSvc := pointuc.New(bridge, payloads, cfg.Limits.MaxBatchSize)
	searchSvc := searchuc.New(bridge, payloads, cfg.Limits.SearchOverfetch)
	recommendSvc := recommenduc.New(bridge, searchSvc, cfg.Recommend.DiversityLambda)
	scrollSvc := scrolluc.New(bridge, payloads, sessions, cfg.Limits.DefaultPageSize, cfg.Limits.MaxPageSize)
	batchSvc := batchuc.New(searchSvc, pointSvc, cfg.Limits.MaxConcurrency)

	// Create chi server
	server := chiTransport.NewServer(
		collectionSvc, pointSvc, searchSvc, recommendSvc, scrollSvc, batchSvc,
		bridge, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
