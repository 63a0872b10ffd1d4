// qnwis orchestrates ministerial decision-support runs - provides the
// HTTP/WebSocket API and owns the pipeline driver, the deterministic
// data layer, and the materialized-view refresher.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albarami/qnwis/pkg/app"
	"github.com/albarami/qnwis/pkg/llm"
	"github.com/albarami/qnwis/pkg/llm/httpprovider"
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

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	httpAddr := ":" + getEnv("HTTP_PORT", "8080")

	log.Printf("starting qnwis")
	log.Printf("config directory: %s", *configDir)
	log.Printf("http address: %s", httpAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := httpprovider.New(
		getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
		os.Getenv("LLM_API_KEY"),
		getEnv("LLM_MODEL", "gpt-4o-mini"),
	)

	// No embedding/context backend is wired yet; the rag stage degrades
	// to an empty payload per spec §6.3 rather than failing.
	var retriever llm.Retriever = llm.NullRetriever{}

	application, err := app.Build(ctx, *configDir, provider, retriever)
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}
	defer func() {
		if err := application.DBClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()

	if err := application.Refresher.Start(ctx); err != nil {
		log.Fatalf("failed to start materialization refresher: %v", err)
	}
	defer application.Refresher.Stop()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", httpAddr)
		if err := application.Server.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during server shutdown: %v", err)
	}
	application.Refresher.Stop()
	log.Printf("shutdown complete")
}
