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

	"github.com/stashbox-io/stashbox/internal/config"
	"github.com/stashbox-io/stashbox/internal/domain"
	logpkg "github.com/stashbox-io/stashbox/internal/logger"
	"github.com/stashbox-io/stashbox/internal/metrics"
	"github.com/stashbox-io/stashbox/internal/repository/itemstore"
	"github.com/stashbox-io/stashbox/internal/repository/session"
	"github.com/stashbox-io/stashbox/internal/repository/vectorindex"
	"github.com/stashbox-io/stashbox/internal/transport/httpapi"
	openaiTransport "github.com/stashbox-io/stashbox/internal/transport/openai"
	exactuc "github.com/stashbox-io/stashbox/internal/usecase/exact"
	feedbackuc "github.com/stashbox-io/stashbox/internal/usecase/feedback"
	fuzzyuc "github.com/stashbox-io/stashbox/internal/usecase/fuzzy"
	healthuc "github.com/stashbox-io/stashbox/internal/usecase/health"
	reindexuc "github.com/stashbox-io/stashbox/internal/usecase/reindex"
	searchuc "github.com/stashbox-io/stashbox/internal/usecase/search"
	"github.com/stashbox-io/stashbox/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting stashd search engine",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_path", cfg.Storage.Path),
		zap.String("session_backend", cfg.Sessions.Backend),
	)

	metrics.Register()

	// Item store
	store, err := itemstore.Open(cfg.Storage.Path, cfg.Storage.InMemory, logger)
	if err != nil {
		logger.Fatal("Failed to open item store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	// Session store
	var sessions session.Store
	switch cfg.Sessions.Backend {
	case "", "memory":
		sessions = session.NewMemoryStore(cfg.Sessions.TTL(), logger)
	case "redis":
		sessions, err = session.NewRedisStore(session.RedisConfig{
			Addrs:     cfg.Sessions.RedisAddrs,
			Password:  cfg.Sessions.RedisPassword,
			KeyPrefix: cfg.Sessions.KeyPrefix,
			TTL:       cfg.Sessions.TTL(),
		})
		if err != nil {
			logger.Fatal("Failed to connect session store", zap.Error(err))
		}
	default:
		logger.Fatal("Unknown session backend", zap.String("backend", cfg.Sessions.Backend))
	}
	defer func() { _ = sessions.Close() }()

	// Embedding provider. Without an API key the engine runs lexical-only.
	var embedder domain.Embedder
	var healthChecker healthuc.EmbeddingChecker
	if cfg.Embedding.APIKey != "" {
		emb := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		embedder = emb
		healthChecker = emb
		logger.Info("Embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	} else {
		logger.Warn("No embedding API key configured, semantic search disabled")
	}

	index := vectorindex.New(cfg.Embedding.Dimensions)

	// Use case services
	searchSvc := searchuc.New(
		store, index, embedder,
		fuzzyuc.New(cfg.Search.FuzzyMinScore), exactuc.New(), sessions,
		logger, searchuc.Config{
			EngineTimeout:   cfg.Search.EngineTimeout(),
			EnhanceTimeout:  cfg.Enhancement.Timeout(),
			TopK:            cfg.Search.TopK,
			QuickLimit:      cfg.Search.QuickLimit,
			DefaultPageSize: cfg.Search.DefaultPageSize,
		},
	)
	if cfg.Enhancement.Enabled && cfg.Embedding.APIKey != "" {
		searchSvc.WithEnhancer(openaiTransport.NewEnhancer(&openaiTransport.EnhancerConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Enhancement.Model,
			MaxRewrite: cfg.Enhancement.MaxRewrite,
			Logger:     logger,
		}))
		logger.Info("Query enhancement enabled", zap.String("model", cfg.Enhancement.Model))
	}

	reindexSvc := reindexuc.New(store, index, embedder, logger, cfg.Search.ReindexWorkers)
	feedbackSvc := feedbackuc.New(store, logger)
	healthSvc := healthuc.New(store, healthChecker, index)

	// Warm the index from persisted vectors before serving traffic.
	if _, err := reindexSvc.Warm(context.Background()); err != nil {
		logger.Error("Index warm-up failed", zap.Error(err))
	}

	server := httpapi.NewServer(searchSvc, reindexSvc, feedbackSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpapi.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

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

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

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
