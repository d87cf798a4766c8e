package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/wizardd/internal/agent"
	"github.com/haasonsaas/wizardd/internal/auth"
	"github.com/haasonsaas/wizardd/internal/config"
	"github.com/haasonsaas/wizardd/internal/embed"
	"github.com/haasonsaas/wizardd/internal/httpapi"
	"github.com/haasonsaas/wizardd/internal/infra"
	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/internal/llm/bedrock"
	"github.com/haasonsaas/wizardd/internal/objectstore"
	"github.com/haasonsaas/wizardd/internal/observability"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/internal/rag/chunkretriever"
	"github.com/haasonsaas/wizardd/internal/rag/rerank"
	"github.com/haasonsaas/wizardd/internal/rag/resourcehandlers"
	"github.com/haasonsaas/wizardd/internal/rag/websearch"
	"github.com/haasonsaas/wizardd/internal/resourceapi"
	"github.com/haasonsaas/wizardd/internal/taskqueue"
	"github.com/haasonsaas/wizardd/internal/worker"
	"github.com/haasonsaas/wizardd/internal/worker/callback"
	"github.com/haasonsaas/wizardd/internal/worker/schedule"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// Per-tool-class admission-control buckets: one for document-format
// reads, one for Markdown reads, plus a catch-all for web search.
const (
	categoryDocumentRead = "document-read"
	categoryMarkdownRead = "markdown-read"
	categoryWebRead      = "web-read"
)

func buildServeCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker pool and its HTTP task-queue surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("WIZARDD")
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Worker.Count = workers
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 1, "number of worker goroutines to run")
	return cmd
}

func runServe(parentCtx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.Info(ctx, "starting wizardd", "version", version, "commit", commit, "workers", cfg.Worker.Count)

	_, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Trace.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Trace.Environment,
		Endpoint:       cfg.Trace.Endpoint,
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}()

	shutdown := infra.NewShutdownCoordinator(30*time.Second, nil)
	metrics := observability.NewMetrics()

	llmClient, err := buildLLMClient(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("wizardd: build llm client: %w", err)
	}

	embedder, err := embed.New(embed.Config{
		APIKey:  firstNonEmpty(cfg.Embed.APIKey, cfg.LLM.APIKey),
		BaseURL: firstNonEmpty(cfg.Embed.BaseURL, cfg.LLM.BaseURL),
		Model:   cfg.Embed.Model,
	})
	if err != nil {
		return fmt.Errorf("wizardd: build embedder: %w", err)
	}

	semaphores := infra.NewSemaphorePool(16)
	registry, err := buildToolRegistry(cfg, embedder, semaphores)
	if err != nil {
		return fmt.Errorf("wizardd: build tool registry: %w", err)
	}

	reranker := rerank.New(rerank.Config{
		BaseURL:   cfg.Rerank.BaseURL,
		APIKey:    cfg.Rerank.APIKey,
		Model:     cfg.Rerank.Model,
		K:         cfg.Rerank.K,
		Threshold: cfg.Rerank.Threshold,
	})

	loop := agent.New(llmClient, reranker, registry, agent.DefaultSystemPrompt)
	loop.SetMetrics(metrics)

	authSvc := auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry.Std(),
	})

	var blobs *objectstore.Store
	if cfg.Blobs.Bucket != "" {
		blobs, err = objectstore.New(ctx, &objectstore.StoreConfig{
			Bucket:   cfg.Blobs.Bucket,
			Region:   cfg.Blobs.Region,
			Endpoint: cfg.Blobs.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("wizardd: build object store: %w", err)
		}
	}

	var store httpapi.QueueStore
	if cfg.Queue.RedisAddr != "" {
		redisStore, err := httpapi.NewRedisStore(ctx, httpapi.RedisStoreConfig{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
			Prefix:   cfg.Queue.RedisPrefix,
		})
		if err != nil {
			return fmt.Errorf("wizardd: connect redis queue store: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		store = httpapi.NewMemoryStore()
	}
	startedAt := time.Now()

	queueClient := taskqueue.NewHTTPClient(cfg.Queue.BaseURL, nil, nil)
	cbSender := callback.NewSender(cfg.Queue.BaseURL, nil, callback.DefaultThresholdBytes)
	cbSender.SetMetrics(metrics)

	handlers := map[string]worker.FunctionHandler{
		"agent-run":   worker.NewAgentRunHandler(loop),
		"file_reader": worker.FileReaderHandler,
	}

	pool := worker.NewPool(cfg.Worker.Count, queueClient, handlers, cbSender, worker.Config{
		GlobalTimeout: cfg.Worker.GlobalTimeout.Std(),
		CheckInterval: cfg.Worker.CheckInterval.Std(),
		Metrics:       metrics,
	}, nil)
	pool.Start(ctx)
	shutdown.RegisterService("worker-pool", func(ctx context.Context) error {
		pool.Stop()
		return nil
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Store:       store,
		Loop:        loop,
		HealthTrack: pool.Health(),
		Blobs:       blobs,
		Auth:        authSvc,
		Logger:      logger,
		StartedAt:   startedAt,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	shutdown.RegisterService("http-server", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	go func() {
		logger.Info(ctx, "http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http server failed", "error", err)
		}
	}()

	if cfg.Schedule.AgentRunSpec != "" {
		sched := schedule.New(store, logger)
		input, _ := json.Marshal(worker.AgentRunInput{Query: cfg.Schedule.DefaultQuery})
		if err := sched.Add(schedule.Entry{
			Name:        "recurring-agent-run",
			Spec:        cfg.Schedule.AgentRunSpec,
			Function:    "agent-run",
			NamespaceID: cfg.Schedule.NamespaceID,
			Input:       input,
		}); err != nil {
			return fmt.Errorf("wizardd: add schedule entry: %w", err)
		}
		sched.Start()
		shutdown.RegisterService("scheduler", func(ctx context.Context) error {
			return sched.Stop(ctx)
		})
	}

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, result := range shutdown.Shutdown(shutdownCtx) {
		if result.Error != nil {
			logger.Warn(context.Background(), "shutdown handler failed", "name", result.Name, "error", result.Error)
		}
	}

	return nil
}

func buildLLMClient(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{
			Region:          cfg.Region,
			ModelID:         cfg.Model,
			ThinkingModelID: cfg.ThinkingModel,
		})
	default:
		return llm.NewOpenAICompatible(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.ThinkingModel), nil
	}
}

func buildToolRegistry(cfg *config.Config, embedder *embed.Client, semaphores *infra.SemaphorePool) (*rag.Registry, error) {
	registry := rag.NewRegistry()

	retriever, err := chunkretriever.New(chunkretriever.Config{
		Host:   cfg.RAG.QdrantHost,
		Port:   cfg.RAG.QdrantPort,
		APIKey: cfg.RAG.QdrantAPIKey,
	}, embedder)
	if err != nil {
		return nil, fmt.Errorf("build chunk retriever: %w", err)
	}
	registry.Register("private_search", rag.Factory{
		Schema: retriever.Schema(),
		Search: func(sel models.ToolSelection) rag.SearchHandler {
			return limitedSearch{inner: retriever, pool: semaphores, category: categoryDocumentRead}
		},
	})

	if cfg.RAG.WebSearchURL != "" {
		ws := websearch.New(websearch.Config{BaseURL: cfg.RAG.WebSearchURL})
		registry.Register("web_search", rag.Factory{
			Schema: ws.Schema(),
			Search: func(sel models.ToolSelection) rag.SearchHandler {
				return limitedSearch{inner: ws, pool: semaphores, category: categoryWebRead}
			},
		})
	}

	if cfg.RAG.ResourceAPIURL != "" {
		client := resourceapi.New(cfg.RAG.ResourceAPIURL, nil, map[string]string{
			"Authorization": "Bearer " + cfg.RAG.ResourceAPIKey,
		})
		registerResourceTool(registry, "get_resources", resourcehandlers.GetResources{Client: client}, semaphores)
		registerResourceTool(registry, "get_children", resourcehandlers.GetChildren{Client: client}, semaphores)
		registerResourceTool(registry, "get_parent", resourcehandlers.GetParent{Client: client}, semaphores)
		registerResourceTool(registry, "filter_by_time", resourcehandlers.FilterByTime{Client: client}, semaphores)
		registerResourceTool(registry, "filter_by_tag", resourcehandlers.FilterByTag{Client: client}, semaphores)
	}

	return registry, nil
}

func registerResourceTool(registry *rag.Registry, name string, handler rag.ResourceHandler, semaphores *infra.SemaphorePool) {
	registry.Register(name, rag.Factory{
		Schema: handler.Schema(),
		Resource: func(sel models.ToolSelection) rag.ResourceHandler {
			return limitedResource{inner: handler, pool: semaphores, category: categoryMarkdownRead}
		},
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
