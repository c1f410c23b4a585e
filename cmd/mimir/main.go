// Command mimir runs the ingestion, retrieval, and chat HTTP server
// described in spec.md, grounded on the teacher's cmd/conexus/main.go
// wiring order (config -> logging -> metrics -> tracing -> Sentry ->
// storage -> providers -> server) but trimmed to mimir's HTTP-only
// surface: no stdio/MCP-JSON-RPC mode, no SQLite stores, no TLS manager,
// no JWT auth.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mimir-run/mimir/internal/chunker"
	"github.com/mimir-run/mimir/internal/config"
	"github.com/mimir-run/mimir/internal/httpapi"
	"github.com/mimir-run/mimir/internal/ingest"
	"github.com/mimir-run/mimir/internal/llm/chat"
	"github.com/mimir-run/mimir/internal/llm/embedding"
	"github.com/mimir-run/mimir/internal/llm/ratelimit"
	"github.com/mimir-run/mimir/internal/mcp"
	"github.com/mimir-run/mimir/internal/observability"
	"github.com/mimir-run/mimir/internal/repoconfig"
	"github.com/mimir-run/mimir/internal/source"
	"github.com/mimir-run/mimir/internal/vectorstore/postgres"
)

// Version is mimir's released version string.
const Version = "0.1.0"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.LogLevel,
		Format:        cfg.LogFormat,
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: cfg.SentryEnabled(),
	})
	logger.Info("mimir starting", "version", Version)

	metrics := observability.NewMetricsCollector("mimir")
	metrics.SetSystemStartTime(time.Now())

	tracerProvider, err := observability.NewTracerProvider(observability.DefaultTracerConfig())
	if err != nil {
		logger.Error("failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	if cfg.SentryEnabled() {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, EnableTracing: false}); err != nil {
			logger.Error("failed to initialize sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	errorHandler := observability.NewErrorHandler(logger, metrics, cfg.SentryEnabled())

	store, err := postgres.New(ctx, postgres.Config{
		DSN:       cfg.SupabaseURL,
		Table:     cfg.SupabaseTable,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		logger.Error("failed to connect to vector store", "error", err)
		os.Exit(1)
	}

	embeddingClient, err := buildEmbeddingClient(ctx, cfg.Embedding)
	if err != nil {
		logger.Error("failed to build embedding client", "error", err)
		os.Exit(1)
	}

	chatClient, err := buildChatClient(ctx, cfg.Chat)
	if err != nil {
		logger.Error("failed to build chat client", "error", err)
		os.Exit(1)
	}

	repos, err := repoconfig.Load(os.Getenv)
	if err != nil {
		logger.Error("failed to load repository configuration", "error", err)
		os.Exit(1)
	}

	counter := chunker.NewCl100kCounter()
	chunkService := chunker.NewService([]chunker.EntityExtractor{chunker.GoExtractor{}}, counter, chunker.ModelTokenCap(cfg.Embedding.Model))

	pipeline := ingest.Pipeline{
		Fetcher:    source.NewFetcher(),
		Chunker:    chunkService,
		Store:      store,
		ContextGen: chatClient,
		Embedder:   embeddingClient,
		Counter:    counter,
		Logger:     logger,
		Metrics:    metrics,
	}

	coordinator := ingest.NewCoordinator(ctx, pipeline, repos, cfg.ExcludePatterns)

	router, err := httpapi.NewRouter(httpapi.Deps{
		APIKey:          cfg.ServerAPIKey,
		WebhookSecret:   cfg.GithubWebhookSecret,
		Coordinator:     coordinator,
		CoordinatorStat: coordinator,
		Trigger:         coordinator,
		Metrics:         metrics,
		Chat: httpapi.ChatDeps{
			Store:             store,
			Embedder:          embeddingClient,
			ChatClient:        chatClient,
			DefaultMatchCount: cfg.MatchCount,
			DefaultSimilarity: cfg.SimilarityThreshold,
			HybridEnabled:     cfg.HybridSearchEnabled,
			BM25MatchCount:    cfg.BM25MatchCount,
		},
		MCP: mcp.Deps{
			Store:             store,
			Embedder:          embeddingClient,
			DefaultMatchCount: cfg.MatchCount,
			DefaultSimilarity: cfg.SimilarityThreshold,
			HybridEnabled:     cfg.HybridSearchEnabled,
			BM25MatchCount:    cfg.BM25MatchCount,
		},
		CORS:      httpapi.DefaultCORSConfig(),
		Security:  httpapi.DefaultSecurityConfig(),
		RateLimit: rateLimitConfig(cfg.RedisURL),
	})
	if err != nil {
		logger.Error("failed to build http router", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", promhttp.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorHandler.HandleError(ctx, err, observability.ErrorContext{Route: "http", Stage: "listen"})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// rateLimitConfig applies mimir's default rate-limit budgets with the
// configured Redis backend, if any.
func rateLimitConfig(redisURL string) httpapi.RateLimitConfig {
	cfg := httpapi.DefaultRateLimitConfig()
	cfg.RedisURL = redisURL
	return cfg
}

func buildEmbeddingClient(ctx context.Context, cfg config.ProviderConfig) (*embedding.Client, error) {
	sched := ratelimit.New(ratelimit.Config{
		Concurrency:          cfg.Concurrency,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		MaxTokensPerMinute:   cfg.MaxTokensPerMinute,
		Retries:              cfg.Retries,
	})
	estimator := chunker.NewCl100kCounter()

	var provider embedding.Provider
	switch cfg.Provider {
	case "google":
		p, err := embedding.NewGoogleProvider(ctx, cfg.APIKey, cfg.Model, cfg.Dimension)
		if err != nil {
			return nil, fmt.Errorf("embedding: google provider: %w", err)
		}
		provider = p
	case "mistral":
		provider = embedding.NewMistralProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension)
	case "openai", "":
		provider = embedding.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}

	return embedding.New(provider, sched, estimator, embedding.Config{BatchSize: cfg.BatchSize}), nil
}

func buildChatClient(ctx context.Context, cfg config.ChatProviderConfig) (*chat.Client, error) {
	sched := ratelimit.New(ratelimit.Config{
		Concurrency:          cfg.Concurrency,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		MaxTokensPerMinute:   cfg.MaxTokensPerMinute,
		Retries:              cfg.Retries,
	})
	estimator := chunker.NewCl100kCounter()

	var provider chat.Provider
	switch cfg.Provider {
	case "anthropic":
		provider = chat.NewAnthropicProvider(cfg.APIKey, cfg.Model)
	case "google":
		p, err := chat.NewGoogleProvider(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("chat: google provider: %w", err)
		}
		provider = p
	case "mistral":
		provider = chat.NewMistralProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "openai", "":
		provider = chat.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("chat: unknown provider %q", cfg.Provider)
	}

	return chat.New(provider, sched, estimator, chat.Config{
		MaxOutputTokens: cfg.MaxOutputTokens,
		Temperature:     cfg.Temperature,
	}), nil
}
