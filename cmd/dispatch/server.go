package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
	"github.com/transitmesh/dispatch/config"
	"github.com/transitmesh/dispatch/history"
	"github.com/transitmesh/dispatch/internal/metrics"
	"github.com/transitmesh/dispatch/internal/server"
	"github.com/transitmesh/dispatch/internal/telemetry"
	"github.com/transitmesh/dispatch/match"
	"github.com/transitmesh/dispatch/orchestrator"
	"github.com/transitmesh/dispatch/transport"
)

// Server wires the dispatch pipeline to its HTTP serving surface.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	orch             *orchestrator.Orchestrator
	catalogCache     *catalog.Cache
	historyStore     *history.Store
	snapshotStore    *catalog.RedisStore
	sessionTransport *transport.SessionTransport
	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers

	rateLimiterCancel context.CancelFunc
}

// NewServer creates the server shell; wiring happens in Start.
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: providers,
	}
}

// Start builds the pipeline, validates startup requirements, and brings up
// the API and metrics servers.
func (s *Server) Start(ctx context.Context) error {
	s.metricsCollector = metrics.NewCollector("dispatch", prometheus.DefaultRegisterer, s.logger)

	orch, err := s.buildPipeline()
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	s.orch = orch

	if err := s.orch.Startup(ctx); err != nil {
		return err
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("session_transport", s.cfg.Transport.SessionEnabled),
		zap.Bool("decomposition", s.cfg.Matcher.DecompositionEnabled),
	)
	return nil
}

// buildPipeline constructs the orchestrator and its collaborators from
// configuration.
func (s *Server) buildPipeline() (*orchestrator.Orchestrator, error) {
	registryClient := catalog.NewClient(catalog.ClientConfig{
		BaseURL:          s.cfg.Registry.URL,
		HealthTimeout:    s.cfg.Registry.HealthTimeout,
		FetchTimeout:     s.cfg.Registry.FetchTimeout,
		FetchConcurrency: s.cfg.Registry.FetchConcurrency,
	}, s.logger)

	var snapshotStore catalog.SnapshotStore
	if s.cfg.Redis.Enabled {
		store, err := catalog.NewRedisStore(catalog.RedisStoreConfig{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			TTL:      s.cfg.Redis.SnapshotTTL,
		}, s.logger)
		if err != nil {
			s.logger.Warn("snapshot store unavailable, cold starts need the registry", zap.Error(err))
		} else {
			s.snapshotStore = store
			snapshotStore = store
		}
	}

	cache := catalog.NewCache(registryClient, snapshotStore, catalog.CacheConfig{
		TTL: s.cfg.Registry.CacheTTL,
	}, s.logger)
	s.catalogCache = cache

	chatClient := match.NewOpenAIClient(match.OpenAIConfig{
		BaseURL: s.cfg.Matcher.BaseURL,
		APIKey:  s.cfg.Matcher.APIKey,
		Model:   s.cfg.Matcher.Model,
		Timeout: s.cfg.Matcher.Timeout,
	}, s.logger)
	matcher := match.NewLLMMatcher(chatClient, s.logger)
	decomposer := match.NewLLMDecomposer(chatClient, s.logger)

	transports := []transport.Transport{
		transport.NewHTTPTransport(&transport.HTTPConfig{
			Timeout: s.cfg.Transport.HTTPTimeout,
		}, s.logger),
	}
	preferred := transport.KindHTTP
	var sessions orchestrator.SessionInitializer
	if s.cfg.Transport.SessionEnabled {
		s.sessionTransport = transport.NewSessionTransport(&transport.SessionConfig{
			Endpoints: s.cfg.Transport.Sessions,
		}, s.logger)
		transports = append(transports, s.sessionTransport)
		preferred = transport.KindSession
		sessions = s.sessionTransport
	}

	executor := transport.NewExecutor(&transport.ExecutorConfig{
		Preferred:      preferred,
		SessionTimeout: s.cfg.Transport.SessionTimeout,
		HTTPTimeout:    s.cfg.Transport.HTTPTimeout,
	}, transports, s.logger)

	var recorder orchestrator.Recorder
	if s.cfg.Database.Enabled {
		store, err := history.NewStore(history.StoreConfig{
			Driver: s.cfg.Database.Driver,
			DSN:    s.cfg.Database.DSN,
		}, s.logger)
		if err != nil {
			s.logger.Warn("history store unavailable, recording disabled", zap.Error(err))
		} else {
			s.historyStore = store
			recorder = store
		}
	}

	return orchestrator.New(&orchestrator.Config{
		DecompositionEnabled: s.cfg.Matcher.DecompositionEnabled,
		ExecuteConcurrency:   s.cfg.Transport.ExecuteConcurrency,
		RequestBudget:        s.cfg.Transport.RequestBudget,
	}, orchestrator.Dependencies{
		Catalog:    cache,
		Matcher:    matcher,
		Decomposer: decomposer,
		Executor:   executor,
		Health:     registryClient,
		Sessions:   sessions,
		History:    recorder,
		Metrics:    s.metricsCollector,
	}, s.logger)
}

func (s *Server) startHTTPServer() error {
	api := newAPIHandler(s.orch, s.catalogCache, s.historyStore, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", api.handleHealth)
	mux.HandleFunc("/healthz", api.handleHealth)
	mux.HandleFunc("/version", api.handleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc("POST /v1/messages", api.handleMessage)
	mux.HandleFunc("GET /v1/conversations/{id}", api.handleConversation)

	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	handler := Chain(mux, middlewares...)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.metricsManager.Start()
}

// WaitForShutdown blocks until a shutdown signal or server failure, then
// tears everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown closes all servers and pipeline resources.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.sessionTransport != nil {
		if err := s.sessionTransport.Close(); err != nil {
			s.logger.Error("session transport close error", zap.Error(err))
		}
	}
	if s.historyStore != nil {
		if err := s.historyStore.Close(); err != nil {
			s.logger.Error("history store close error", zap.Error(err))
		}
	}
	if s.snapshotStore != nil {
		if err := s.snapshotStore.Close(); err != nil {
			s.logger.Error("snapshot store close error", zap.Error(err))
		}
	}
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
