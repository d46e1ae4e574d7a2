package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/realty-ai-platform/internal/api/router"
	appconfig "github.com/kestrelhq/realty-ai-platform/internal/config"
	"github.com/kestrelhq/realty-ai-platform/internal/conversation"
	"github.com/kestrelhq/realty-ai-platform/internal/crm/hubspot"
	httpmiddleware "github.com/kestrelhq/realty-ai-platform/internal/http/middleware"
	"github.com/kestrelhq/realty-ai-platform/internal/llm"
	"github.com/kestrelhq/realty-ai-platform/internal/observability/metrics"
	"github.com/kestrelhq/realty-ai-platform/internal/retrieval"
	"github.com/kestrelhq/realty-ai-platform/internal/scheduling/calendly"
	"github.com/kestrelhq/realty-ai-platform/internal/session"
	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

func main() {
	// Load .env in development; ignored when absent
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting realty-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.GroqAPIKey == "" {
		logger.Error("GROQ_API_KEY is required")
		os.Exit(1)
	}

	// Session store: Redis when reachable, in-memory otherwise (dev mode)
	sessions := buildSessionStore(cfg, logger)

	// LLM gateway
	groqClient := llm.NewGroqClient(cfg.GroqAPIKey, cfg.GroqBaseURL)
	generator := llm.NewGroqGateway(groqClient, cfg.GroqModel, cfg.GroqMaxTokens, float32(cfg.GroqTemperature), logger)

	// Knowledge retrieval; a missing index only costs context snippets
	var retriever conversation.Retriever
	if cfg.EmbeddingAPIKey != "" {
		embClient := llm.NewGroqClient(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL)
		store := retrieval.NewStore(embClient, cfg.EmbeddingModel, logger)
		if err := store.LoadIndex(cfg.KnowledgeIndexPath, cfg.KnowledgeMetadataPath); err != nil {
			logger.Warn("knowledge index unavailable, continuing without retrieval", "error", err)
		} else {
			retriever = store
		}
	} else {
		logger.Warn("EMBEDDING_API_KEY not set, retrieval disabled")
	}

	// CRM
	var crm conversation.CRMSyncer
	if cfg.HubSpotAPIKey != "" {
		crm = hubspot.NewClient(cfg.HubSpotAPIKey, cfg.HubSpotBaseURL, logger)
	} else {
		logger.Warn("HUBSPOT_API_KEY not set, CRM sync disabled")
	}

	// Scheduling; authentication is verified at construction time
	var scheduler conversation.SchedulingGateway
	if cfg.CalendlyAPIKey != "" {
		authCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		calendlyClient, err := calendly.NewClient(authCtx, cfg.CalendlyAPIKey, cfg.CalendlyUsername, cfg.CalendlyBaseURL, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize Calendly client", "error", err)
			os.Exit(1)
		}
		scheduler = calendlyClient
	} else {
		logger.Warn("CALENDLY_API_KEY not set, scheduling disabled")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	chatMetrics := metrics.NewChatMetrics(registry)

	orchestrator := conversation.NewOrchestrator(conversation.Config{
		Sessions:  sessions,
		Retriever: retriever,
		Generator: generator,
		CRM:       crm,
		Scheduler: scheduler,
		TopK:      cfg.RetrievalTopK,
		Metrics:   chatMetrics,
		Logger:    logger,
	})
	conversationHandler := conversation.NewHandler(orchestrator, scheduler, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversationHandler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ChatLimits: httpmiddleware.Limits{
			PerMinute: cfg.ChatLimitPerMinute,
			PerHour:   cfg.ChatLimitPerHour,
			PerDay:    cfg.ChatLimitPerDay,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func buildSessionStore(cfg *appconfig.Config, logger *logging.Logger) session.Store {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-memory session store", "addr", cfg.RedisAddr, "error", err)
		return session.NewMemoryStore()
	}
	logger.Info("redis session store connected", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL.String())
	return session.NewRedisStore(client, cfg.SessionTTL)
}
