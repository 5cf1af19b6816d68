// Refinery server — exposes the requirements-refinement pipeline over
// HTTP and manages conversation memory.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/refinehq/refinery/pkg/agent"
	"github.com/refinehq/refinery/pkg/agent/orchestrator"
	"github.com/refinehq/refinery/pkg/api"
	"github.com/refinehq/refinery/pkg/config"
	"github.com/refinehq/refinery/pkg/memory"
	"github.com/refinehq/refinery/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogging() {
	level := slog.LevelInfo
	switch getEnv("LOG_LEVEL", "") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if getEnv("LOG_FORMAT", "json") == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	setupLogging()

	slog.Info("Starting refinery",
		"version", version.GitCommit,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the conversation memory store
	store, err := memory.Open(ctx, cfg.StoreURI, memory.Options{
		DuplicateWindow: cfg.DuplicateWindow,
	})
	if err != nil {
		slog.Error("Failed to open memory store", "store", cfg.StoreScheme(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Error closing memory store", "error", err)
		}
	}()
	slog.Info("Memory store ready", "backend", cfg.StoreScheme())

	// 3. Create the analysis backend client with retry
	analyzer, err := agent.NewOpenAIAnalyzer(agent.OpenAIConfig{
		APIKey:  cfg.AnalyzerAPIKey,
		BaseURL: cfg.AnalyzerEndpoint,
		Model:   cfg.AnalyzerModel,
	})
	if err != nil {
		slog.Error("Failed to initialize analyzer client", "error", err)
		os.Exit(1)
	}
	retrying := agent.WithRetry(analyzer, agent.RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
		CallTimeout: cfg.AnalyzerTimeout(),
	})
	slog.Info("Analyzer client initialized", "model", cfg.AnalyzerModel)

	// 4. Create the orchestrator
	orch := orchestrator.New(retrying, store, orchestrator.Config{
		HistoryContextLimit: cfg.HistoryContextLimit,
		RequestTimeout:      cfg.RequestTimeout(),
	})

	// 5. Create and start the HTTP server (non-blocking)
	httpServer := api.NewServer(orch, store, version.GitCommit, cfg.StoreScheme())

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.ListenAddress
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown: stop accepting requests, then let active
	// runs finish within the request timeout budget.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	runShutdownCtx, runCancel := context.WithTimeout(ctx, 10*time.Second)
	defer runCancel()
	if err := orch.Shutdown(runShutdownCtx); err != nil {
		slog.Warn("Shutdown timeout exceeded, abandoning active runs", "error", err)
	}

	slog.Info("Shutdown complete")
}
