// Groundline server — HTTP API, compilation worker pool, and the
// retrieval-augmented reasoning engine behind one binary.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/groundline/groundline/pkg/analyze"
	"github.com/groundline/groundline/pkg/api"
	"github.com/groundline/groundline/pkg/cleanup"
	"github.com/groundline/groundline/pkg/compile"
	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/database"
	"github.com/groundline/groundline/pkg/embedding"
	"github.com/groundline/groundline/pkg/events"
	"github.com/groundline/groundline/pkg/index"
	"github.com/groundline/groundline/pkg/ingest"
	"github.com/groundline/groundline/pkg/llm"
	"github.com/groundline/groundline/pkg/queue"
	"github.com/groundline/groundline/pkg/reason"
	"github.com/groundline/groundline/pkg/services"
	"github.com/groundline/groundline/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	httpAddr := ":" + getEnv("HTTP_PORT", "8080")
	slog.Info("Starting groundline",
		"version", version.Full(),
		"addr", httpAddr,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services
	agentService := services.NewAgentService(dbClient, cfg.Artifacts.Dir)
	jobService := services.NewJobService(dbClient)
	slog.Info("Services initialized")

	// 4. Provider clients
	llmClient, err := llm.NewOpenAIClient(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	embedder := embedding.NewOpenAIProvider(cfg.Embedding)
	slog.Info("Provider clients initialized",
		"llm_base_url", cfg.LLM.BaseURL,
		"embedding_model", cfg.Embedding.Model)

	// 5. Chunk index and progress bus
	chunkIndex := index.NewPostgres(dbClient.Pool())
	progressBus := events.NewProgressBus()

	// 6. Reasoning engine
	engine := reason.NewEngine(reason.EngineDeps{
		Loader:    agentService,
		Index:     chunkIndex,
		Embedder:  embedder,
		Guardrail: reason.NewGuardrail(cfg.Guardrail),
		Reranker:  reason.NewReranker(cfg.Reranker),
		Synth:     reason.NewSynthesizer(llmClient),
		Attrib:    reason.NewAttributor(embedder),
		Faith:     reason.NewFaithfulnessScorer(llmClient, cfg.Faithfulness),
		Conf:      reason.NewConfidenceCalculator(cfg.Confidence),
		Retrieval: cfg.Retrieval,
	})

	// 7. Compiler and worker pool
	compiler := compile.NewCompiler(compile.Deps{
		Agents:      agentService,
		Jobs:        jobService,
		Bus:         progressBus,
		Analyzer:    analyze.NewAnalyzer(llmClient),
		Parser:      ingest.NewParser(),
		Chunker:     ingest.NewChunker(cfg.Chunker),
		Embedder:    embedder,
		Index:       chunkIndex,
		Cache:       engine,
		Sufficiency: cfg.Sufficiency,
	})

	pool := queue.NewWorkerPool(*cfg.Queue, compiler, compiler)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}
	slog.Info("Worker pool started", "workers", cfg.Queue.WorkerCount)

	cleanupService := cleanup.NewService(cfg.Artifacts, agentService)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 8. HTTP server
	server := api.NewServer(api.Deps{
		Config:       cfg.Server,
		Agents:       agentService,
		Jobs:         jobService,
		Engine:       engine,
		Pool:         pool,
		Bus:          progressBus,
		LLM:          llmClient,
		DB:           dbClient,
		ArtifactsDir: cfg.Artifacts.Dir,
	})
	httpServer := server.HTTPServer(httpAddr)

	go func() {
		slog.Info("HTTP server listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: stop accepting requests, then drain workers.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool drained")
	case <-time.After(cfg.Queue.GracefulShutdownTimeout):
		slog.Warn("Worker pool drain timed out, exiting anyway",
			"timeout", cfg.Queue.GracefulShutdownTimeout)
	}

	slog.Info("Shutdown complete")
}
